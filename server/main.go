/******************************************************************************
 *
 *  Description :
 *
 *  Setup & initialization.
 *
 *****************************************************************************/

package main

import (
	"encoding/json"
	"flag"
	"net/http"
	"os"
	"runtime"
	"time"

	gh "github.com/gorilla/handlers"
	jcr "github.com/tinode/jsonco"

	"github.com/teamchat/inbox/server/auth"
	_ "github.com/teamchat/inbox/server/db/mysql"
	_ "github.com/teamchat/inbox/server/db/postgres"
	"github.com/teamchat/inbox/server/logs"
	"github.com/teamchat/inbox/server/queue"
	"github.com/teamchat/inbox/server/store"
)

const (
	// currentVersion is the current API/protocol version.
	currentVersion = "0.1"

	// Default country code to assume when a chatroom address or destination
	// number is not in international format.
	defaultCountryCode = "US"

	// Maximum accepted length of a websocket frame.
	defaultMaxMessageSize = 1 << 17 // 128K

	// How long to remember inbound messages for duplicate suppression.
	defaultDedupWindow = 300 // seconds
)

// Build version number defined by the compiler:
//
//	-ldflags "-X main.buildstamp=value_to_assign_to_buildstamp"
var buildstamp = "undef"

var globals struct {
	// Chatroom registry and message fan-in.
	hub *Hub
	// Live sessions.
	sessionStore *SessionStore
	// Validation, resolution and persistence pipeline for messages.
	router *DeliveryRouter
	// Per-user chatroom access checks.
	policy *AccessPolicy
	// Provider address to chatroom mapping.
	resolver *AddressResolver
	// Duplicate suppression for inbound webhook deliveries.
	dedup *dedupCache
	// Outbound SMS gateway; nil when not configured.
	provider *SMSProvider
	// Worker pool for outbound carrier API calls. Set iff provider is set.
	sendPool *ThreadPool
	// Message event feed; nil when not configured.
	events *queue.Publisher

	// Channel for processing expvar updates.
	statsUpdate chan *varUpdate

	// Maximum allowed upload size.
	maxMessageSize int64
	// Country code to use when normalizing short phone numbers.
	defaultCountryCode string
	// Strict-Transport-Security max age parameter.
	tlsStrictMaxAge string
}

type configType struct {
	// HTTP(S) address:port to listen on.
	Listen string `json:"listen"`
	// URL path for exposing runtime stats. Disabled if the path is blank or "-".
	ExpvarPath string `json:"expvar"`
	// Maximum message size allowed from client in bytes.
	MaxMessageSize int64 `json:"max_message_size"`
	// Country code to assume for addresses without one, e.g. "US".
	DefaultCountryCode string `json:"default_country_code"`
	// Duplicate suppression window in seconds.
	DedupWindow int `json:"dedup_window"`

	// Configs for subsystems.
	Auth     json.RawMessage `json:"auth_config"`
	Store    json.RawMessage `json:"store_config"`
	Provider json.RawMessage `json:"sms_provider_config"`
	Events   json.RawMessage `json:"event_queue_config"`
	TLS      json.RawMessage `json:"tls"`
}

type authConfig struct {
	// HMAC signing key for session tokens. At least 32 random bytes, base64-encoded.
	Key []byte `json:"key"`
	// Token lifetime in seconds.
	ExpireIn int `json:"expire_in"`
}

func main() {
	executable, _ := os.Executable()

	logs.Init()

	logs.Info.Printf("Server v%s:%s pid %d started with %d process(es)", currentVersion, buildstamp,
		os.Getpid(), runtime.GOMAXPROCS(runtime.NumCPU()))

	var configfile = flag.String("config", "inbox.conf", "Path to config file.")
	var listenOn = flag.String("listen", "", "Override address and port to listen on for HTTP(S) clients.")
	var expvarPath = flag.String("expvar", "", "Override the path where runtime stats are exposed. Use '-' to disable.")
	var pprofUrl = flag.String("pprof_url", "", "Debugging only! URL path where to serve runtime profiling data.")
	var threadzUrl = flag.String("threadz_url", "", "Debugging only! URL path where to serve stack traces of all goroutines.")
	flag.Parse()

	curwd, err := os.Getwd()
	if err != nil {
		logs.Err.Fatal("Couldn't get current working directory: ", err)
	}

	logs.Info.Printf("Using config from '%s'", *configfile)

	var config configType
	if file, err := os.Open(*configfile); err != nil {
		logs.Err.Fatal("Failed to read config file: ", err)
	} else {
		jr := jcr.New(file)
		if err = json.NewDecoder(jr).Decode(&config); err != nil {
			switch jerr := err.(type) {
			case *json.UnmarshalTypeError:
				lnum, cnum, _ := jr.LineAndChar(jerr.Offset)
				logs.Err.Fatalf("Unmarshall error in config file in %s at %d:%d (offset %d bytes): %s",
					jerr.Field, lnum, cnum, jerr.Offset, jerr.Error())
			case *json.SyntaxError:
				lnum, cnum, _ := jr.LineAndChar(jerr.Offset)
				logs.Err.Fatalf("Syntax error in config file at %d:%d (offset %d bytes): %s",
					lnum, cnum, jerr.Offset, jerr.Error())
			default:
				logs.Err.Fatal("Failed to parse config file: ", err)
			}
		}
		file.Close()
	}

	if *listenOn != "" {
		config.Listen = *listenOn
	}
	if *expvarPath != "" {
		config.ExpvarPath = *expvarPath
	}

	if err = store.Store.Open(1, config.Store); err != nil {
		logs.Err.Fatal("Failed to connect to DB: ", err)
	}
	logs.Info.Println("DB adapter", store.Store.GetAdapterName(), store.Store.GetAdapterVersion())
	defer func() {
		store.Store.Close()
		logs.Info.Println("Closed database connection(s)")
		logs.Info.Println("All done, good bye")
	}()

	var ac authConfig
	if len(config.Auth) == 0 {
		logs.Err.Fatal("Auth config is missing")
	}
	if err = json.Unmarshal(config.Auth, &ac); err != nil {
		logs.Err.Fatal("Failed to parse auth config: ", err)
	}
	if err = auth.TokenInit(ac.Key, time.Duration(ac.ExpireIn)*time.Second); err != nil {
		logs.Err.Fatal("Failed to initialize token authenticator: ", err)
	}

	globals.maxMessageSize = config.MaxMessageSize
	if globals.maxMessageSize <= 0 {
		globals.maxMessageSize = defaultMaxMessageSize
	}
	globals.defaultCountryCode = config.DefaultCountryCode
	if globals.defaultCountryCode == "" {
		globals.defaultCountryCode = defaultCountryCode
	}

	dedupWindow := config.DedupWindow
	if dedupWindow <= 0 {
		dedupWindow = defaultDedupWindow
	}

	if globals.provider, err = newSMSProvider(config.Provider); err != nil {
		logs.Err.Fatal("Failed to initialize SMS provider: ", err)
	}
	if globals.provider == nil {
		logs.Info.Println("Outbound SMS provider not configured")
	} else {
		globals.sendPool = NewThreadPool(16)
		defer globals.sendPool.Stop()
	}

	if globals.events, err = queue.NewPublisher(config.Events); err != nil {
		logs.Err.Fatal("Failed to initialize event queue: ", err)
	}

	mux := http.NewServeMux()

	// Expose defined debug and runtime variables.
	statsInit(mux, config.ExpvarPath)
	statsRegisterInt("LiveSessions")
	statsRegisterInt("TotalSessions")

	// Debug endpoints, off unless requested.
	servePprof(mux, *pprofUrl)
	threadzInit(mux, *threadzUrl)

	globals.sessionStore = NewSessionStore()
	globals.policy = NewAccessPolicy()
	globals.resolver = NewAddressResolver(globals.defaultCountryCode)
	globals.dedup = newDedupCache(time.Duration(dedupWindow) * time.Second)
	globals.hub = newHub()
	globals.router = NewDeliveryRouter(globals.hub, globals.resolver, globals.dedup)
	defer globals.dedup.shutdown()
	defer func() {
		if globals.events != nil {
			globals.events.Shutdown()
		}
	}()
	defer statsShutdown()

	// Streaming channels for agent clients.
	mux.HandleFunc("/v0/channels", serveWebSocket)

	// Provider callback for inbound messages.
	mux.HandleFunc("/v0/webhook/sms", serveWebhookSMS)

	// Request-response endpoints.
	mux.Handle("/v0/messages", gh.CompressHandler(http.HandlerFunc(serveMessages)))
	mux.Handle("/v0/messages/read", gh.CompressHandler(http.HandlerFunc(serveMessagesRead)))
	mux.Handle("/v0/chatrooms", gh.CompressHandler(http.HandlerFunc(serveChatrooms)))
	mux.Handle("/v0/chatrooms/", gh.CompressHandler(http.HandlerFunc(serveChatrooms)))
	mux.Handle("/v0/grants", gh.CompressHandler(http.HandlerFunc(serveGrants)))
	mux.Handle("/v0/users", gh.CompressHandler(http.HandlerFunc(serveUsers)))
	mux.Handle("/v0/users/", gh.CompressHandler(http.HandlerFunc(serveUsers)))

	mux.HandleFunc("/", serve404)

	logs.Info.Println("Monitoring SMS webhooks and agent connections at", config.Listen, "from", executable, "in", curwd)
	if err = listenAndServe(config.Listen, mux, config.TLS, signalHandler()); err != nil {
		logs.Err.Fatal(err)
	}
}
