// Command line inbox client. Connects to the websocket endpoint, attaches to
// a chatroom and relays messages between the terminal and the server.
package main

import (
	"bufio"
	"encoding/json"
	"flag"
	"fmt"
	"log"
	"net/url"
	"os"
	"strconv"
	"time"

	"github.com/gorilla/websocket"
	"github.com/teamchat/inbox/server/logs"
)

var (
	host     = flag.String("host", "localhost:6060", "address of the inbox server")
	ssl      = flag.Bool("ssl", false, "connect over wss")
	token    = flag.String("token", "", "authentication token, base64-encoded")
	chatroom = flag.String("chatroom", "", "id of the chatroom to attach to")
	since    = flag.Int("since", 0, "fetch history starting with this seq id")
	limit    = flag.Int("limit", 24, "maximum number of history messages to fetch")
	verbose  = flag.Bool("verbose", false, "log full JSON representation of all messages")
)

// Client-side mirrors of the wire protocol. Only the fields the CLI uses.

type msgLogin struct {
	Id        string `json:"id,omitempty"`
	Token     string `json:"token"`
	UserAgent string `json:"ua,omitempty"`
}

type msgGetOpts struct {
	SinceId int `json:"since,omitempty"`
	Limit   int `json:"limit,omitempty"`
}

type msgSub struct {
	Id       string      `json:"id,omitempty"`
	Chatroom string      `json:"chatroom"`
	Get      *msgGetOpts `json:"get,omitempty"`
}

type msgPub struct {
	Id       string `json:"id,omitempty"`
	Chatroom string `json:"chatroom"`
	Body     string `json:"body"`
}

type clientMsg struct {
	Login *msgLogin `json:"login,omitempty"`
	Sub   *msgSub   `json:"sub,omitempty"`
	Pub   *msgPub   `json:"pub,omitempty"`
}

type msgCtrl struct {
	Id       string      `json:"id"`
	Chatroom string      `json:"chatroom"`
	Code     int         `json:"code"`
	Text     string      `json:"text"`
	Params   interface{} `json:"params"`
}

type msgData struct {
	Chatroom  string    `json:"chatroom"`
	SeqId     int       `json:"seq"`
	Direction string    `json:"dir"`
	From      string    `json:"from"`
	Body      string    `json:"body"`
	Timestamp time.Time `json:"ts"`
}

type msgMeta struct {
	Chatroom string    `json:"chatroom"`
	Data     []msgData `json:"data"`
}

type serverMsg struct {
	Ctrl *msgCtrl `json:"ctrl"`
	Data *msgData `json:"data"`
	Meta *msgMeta `json:"meta"`
}

func main() {
	flag.Parse()
	logs.Init()

	if *token == "" {
		log.Fatal("--token must be provided; generate one with keygen")
	}

	scheme := "ws"
	if *ssl {
		scheme = "wss"
	}
	addr := url.URL{Scheme: scheme, Host: *host, Path: "/v0/channels"}
	conn, _, err := websocket.DefaultDialer.Dial(addr.String(), nil)
	if err != nil {
		log.Fatalf("failed to connect to %s: %v", addr.String(), err)
	}
	defer conn.Close()

	var msgId int
	nextId := func() string {
		msgId++
		return strconv.Itoa(msgId)
	}

	login := clientMsg{Login: &msgLogin{Id: nextId(), Token: *token, UserAgent: "inbox-cli/1.0"}}
	if err = send(conn, &login); err != nil {
		log.Fatalf("failed to send login: %v", err)
	}

	resp, err := recv(conn)
	if err != nil {
		log.Fatalf("failed to receive login response: %v", err)
	}
	if resp.Ctrl == nil || resp.Ctrl.Code != 200 {
		if resp.Ctrl != nil {
			log.Fatalf("login failed: %d %s", resp.Ctrl.Code, resp.Ctrl.Text)
		}
		log.Fatal("login failed: unexpected response")
	}
	if params, ok := resp.Ctrl.Params.(map[string]interface{}); ok {
		logs.Info.Printf("logged in as %v", params["user"])
	}

	if *chatroom == "" {
		logs.Info.Println("no --chatroom given, exiting")
		return
	}

	sub := clientMsg{Sub: &msgSub{
		Id:       nextId(),
		Chatroom: *chatroom,
		Get:      &msgGetOpts{SinceId: *since, Limit: *limit},
	}}
	if err = send(conn, &sub); err != nil {
		log.Fatalf("failed to send sub: %v", err)
	}

	// Server replies and chatroom traffic.
	go func() {
		for {
			msg, err := recv(conn)
			if err != nil {
				log.Fatalf("connection closed: %v", err)
			}
			switch {
			case msg.Data != nil:
				printData(msg.Data)
			case msg.Meta != nil:
				for i := range msg.Meta.Data {
					printData(&msg.Meta.Data[i])
				}
			case msg.Ctrl != nil:
				logs.Info.Printf("ctrl: %d %s", msg.Ctrl.Code, msg.Ctrl.Text)
				if msg.Ctrl.Code == 205 {
					os.Exit(1)
				}
			}
		}
	}()

	// Terminal input, one outbound message per line.
	scanner := bufio.NewScanner(os.Stdin)
	for scanner.Scan() {
		line := scanner.Text()
		if line == "" {
			continue
		}
		pub := clientMsg{Pub: &msgPub{Id: nextId(), Chatroom: *chatroom, Body: line}}
		if err = send(conn, &pub); err != nil {
			log.Fatalf("failed to send pub: %v", err)
		}
	}
}

func send(conn *websocket.Conn, msg *clientMsg) error {
	if *verbose {
		out, _ := json.Marshal(msg)
		logs.Info.Println("out:", string(out))
	}
	return conn.WriteJSON(msg)
}

func recv(conn *websocket.Conn) (*serverMsg, error) {
	_, raw, err := conn.ReadMessage()
	if err != nil {
		return nil, err
	}
	if *verbose {
		logs.Info.Println("in:", string(raw))
	}
	var msg serverMsg
	if err = json.Unmarshal(raw, &msg); err != nil {
		return nil, err
	}
	return &msg, nil
}

func printData(data *msgData) {
	fmt.Printf("[%s #%d] %s %s: %s\n",
		data.Timestamp.Format("15:04:05"), data.SeqId, data.Direction, data.From, data.Body)
}
