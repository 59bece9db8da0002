// Utility to create the database schema and optionally fill it with sample
// data for development.
package main

import (
	"encoding/json"
	"flag"
	"log"
	"os"
	"time"

	_ "github.com/teamchat/inbox/server/db/mysql"
	_ "github.com/teamchat/inbox/server/db/postgres"
	"github.com/teamchat/inbox/server/store"
	"github.com/teamchat/inbox/server/store/types"
	jcr "github.com/tinode/jsonco"
)

type configType struct {
	StoreConfig json.RawMessage `json:"store_config"`
}

/*
User object in data.json

	"name": "alice",
	"role": "admin"
*/
type User struct {
	Name string `json:"name"`
	Role string `json:"role"`
}

/*
Chatroom object in data.json

	"name": "Support line",
	"address": "+15550001111"
*/
type Chatroom struct {
	Name    string `json:"name"`
	Address string `json:"address"`
}

/*
Grant object in data.json

	"user": "bob",
	"chatroom": "Support line"
*/
type Grant struct {
	User     string `json:"user"`
	Chatroom string `json:"chatroom"`
}

/*
Message object in data.json

	"chatroom": "Support line",
	"direction": "inbound",
	"from": "+15550002222",
	"body": "hello, is anyone there?",
	"createdAt": "-30m",
	"read": true
*/
type Message struct {
	CreatedAt string `json:"createdAt"`
	Chatroom  string `json:"chatroom"`
	Direction string `json:"direction"`
	From      string `json:"from"`
	To        string `json:"to"`
	Body      string `json:"body"`
	Read      bool   `json:"read"`
}

// Data is the schema of data.json.
type Data struct {
	Users     []User     `json:"users"`
	Chatrooms []Chatroom `json:"chatrooms"`
	Grants    []Grant    `json:"grants"`
	Messages  []Message  `json:"messages"`
}

func main() {
	var reset = flag.Bool("reset", false, "force database reset")
	var noInit = flag.Bool("no_init", false, "check that database exists but don't create if missing")
	var datafile = flag.String("data", "", "name of file with sample data to load")
	var conffile = flag.String("config", "./inbox.conf", "config of the database connection")

	flag.Parse()

	var data Data
	if *datafile != "" && *datafile != "-" {
		raw, err := os.ReadFile(*datafile)
		if err != nil {
			log.Fatalln("Failed to read sample data file:", err)
		}
		if err = json.Unmarshal(raw, &data); err != nil {
			log.Fatalln("Failed to parse sample data:", err)
		}
	}

	var config configType
	if file, err := os.Open(*conffile); err != nil {
		log.Fatalln("Failed to read config file:", err)
	} else {
		jr := jcr.New(file)
		if err = json.NewDecoder(jr).Decode(&config); err != nil {
			switch jerr := err.(type) {
			case *json.UnmarshalTypeError:
				lnum, cnum, _ := jr.LineAndChar(jerr.Offset)
				log.Fatalf("Unmarshall error in config file in %s at %d:%d (offset %d bytes): %s",
					jerr.Field, lnum, cnum, jerr.Offset, jerr.Error())
			case *json.SyntaxError:
				lnum, cnum, _ := jr.LineAndChar(jerr.Offset)
				log.Fatalf("Syntax error in config file at %d:%d (offset %d bytes): %s",
					lnum, cnum, jerr.Offset, jerr.Error())
			default:
				log.Fatal("Failed to parse config file: ", err)
			}
		}
		file.Close()
	}

	if err := store.Store.Open(1, config.StoreConfig); err != nil {
		log.Fatalln("Failed to init DB adapter:", err)
	}
	defer store.Store.Close()

	log.Println("Database", store.Store.GetAdapterName(), store.Store.GetAdapterVersion())

	if *noInit {
		log.Println("Database exists. All done.")
		return
	}

	if err := store.Store.InitDb(nil, *reset); err != nil {
		log.Fatalln("Failed to create database:", err)
	}
	log.Println("Database schema created.")

	if len(data.Users) == 0 && len(data.Chatrooms) == 0 {
		return
	}

	genDb(&data)
}

// genDb fills the database with sample data.
func genDb(data *Data) {
	users := make(map[string]types.Uid, len(data.Users))
	rooms := make(map[string]types.Uid, len(data.Chatrooms))
	seqs := make(map[types.Uid]int)

	for _, u := range data.Users {
		user, err := store.Users.Create(&types.User{Name: u.Name, Role: u.Role})
		if err != nil {
			log.Fatalln("Failed to create user", u.Name, err)
		}
		users[u.Name] = user.Id
		log.Printf("Created %s user '%s' as %s", u.Role, u.Name, user.Id.String())
	}

	for _, c := range data.Chatrooms {
		room, err := store.Chatrooms.Create(&types.Chatroom{Name: c.Name, Address: c.Address})
		if err != nil {
			log.Fatalln("Failed to create chatroom", c.Name, err)
		}
		rooms[c.Name] = room.Id
		log.Printf("Created chatroom '%s' bound to %s as %s", c.Name, c.Address, room.Id.String())
	}

	for _, g := range data.Grants {
		user, ok := users[g.User]
		if !ok {
			log.Fatalln("Grant references unknown user:", g.User)
		}
		room, ok := rooms[g.Chatroom]
		if !ok {
			log.Fatalln("Grant references unknown chatroom:", g.Chatroom)
		}
		if err := store.Users.GrantAdd(user, room); err != nil {
			log.Fatalln("Failed to add grant", g.User, g.Chatroom, err)
		}
	}

	for _, m := range data.Messages {
		room, ok := rooms[m.Chatroom]
		if !ok {
			log.Fatalln("Message references unknown chatroom:", m.Chatroom)
		}
		seqs[room]++
		msg := &types.Message{
			CreatedAt: timeAgo(m.CreatedAt),
			Chatroom:  room,
			SeqId:     seqs[room],
			Direction: m.Direction,
			From:      m.From,
			To:        m.To,
			Channel:   "sms",
			Body:      m.Body,
			Read:      m.Read,
		}
		if _, err := store.Messages.Save(msg); err != nil {
			log.Fatalln("Failed to save message in", m.Chatroom, err)
		}
	}

	log.Printf("Sample data loaded: %d users, %d chatrooms, %d grants, %d messages",
		len(data.Users), len(data.Chatrooms), len(data.Grants), len(data.Messages))
}

// timeAgo converts a relative offset like "-30m" to an absolute timestamp.
func timeAgo(offset string) time.Time {
	if offset == "" {
		return types.TimeNow()
	}
	d, err := time.ParseDuration(offset)
	if err != nil {
		log.Fatalln("Invalid createdAt offset:", offset, err)
	}
	return types.TimeNow().Add(d)
}
