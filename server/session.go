/******************************************************************************
 *
 *  Description :
 *
 *  Handling of user sessions/connections. One user may have multiple
 *  sessions. Each session may be attached to multiple chatrooms.
 *
 *****************************************************************************/

package main

import (
	"encoding/json"
	"strconv"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/teamchat/inbox/server/auth"
	"github.com/teamchat/inbox/server/logs"
	"github.com/teamchat/inbox/server/store/types"
)

// Wire transport.
const (
	NONE = iota
	WEBSOCK
)

// Session represents a single WS connection. A user may have multiple
// sessions.
type Session struct {
	// protocol - NONE (unset) or WEBSOCK.
	proto int

	// Websocket. Set only for websocket sessions.
	ws *websocket.Conn

	// IP address of the client.
	remoteAddr string

	// User agent, a string provided by an authenticated client in {login} packet.
	userAgent string

	// ID of the current user or 0.
	uid types.Uid

	// Authentication level - NONE (unset), AGENT, ADMIN.
	authLvl auth.Level

	// Time when the session received any packet from client.
	lastAction time.Time

	// Outbound messages, buffered.
	// The content must be serialized in format suitable for the session.
	send chan interface{}

	// Channel for shutting down the session, buffer 1.
	// Content in the same format as for 'send'.
	stop chan interface{}

	// detach - channel for detaching session from a chatroom, buffered.
	detach chan string

	// Map of chatroom subscriptions, indexed by chatroom name.
	// Don't access directly. Use getters/setters.
	subs map[string]*Subscription
	// Mutex for subs access: both room go routines and network go routines
	// access subs concurrently.
	subsLock sync.RWMutex

	// Session ID.
	sid string
}

// Subscription is a mapper of sessions to chatrooms.
type Subscription struct {
	// Session sends a signal to the room when this session is unsubscribed.
	// This is a copy of Room.unreg.
	done chan<- *sessionLeave

	// Channel to send {meta} requests, copy of Room.meta.
	meta chan<- *metaReq
}

func (s *Session) addSub(chatroom string, sub *Subscription) {
	s.subsLock.Lock()
	defer s.subsLock.Unlock()

	s.subs[chatroom] = sub
}

func (s *Session) getSub(chatroom string) *Subscription {
	s.subsLock.RLock()
	defer s.subsLock.RUnlock()

	return s.subs[chatroom]
}

func (s *Session) delSub(chatroom string) {
	s.subsLock.Lock()
	defer s.subsLock.Unlock()

	delete(s.subs, chatroom)
}

func (s *Session) unsubAll() {
	s.subsLock.RLock()
	defer s.subsLock.RUnlock()

	for _, sub := range s.subs {
		// sub.done is the same as room.unreg
		sub.done <- &sessionLeave{sess: s}
	}
}

// queueOut attempts to send a ServerComMessage to a session; if the send
// buffer is full, timeout is 50 usec.
func (s *Session) queueOut(msg *ServerComMessage) bool {
	if s == nil {
		return true
	}

	if msg.Ctrl != nil {
		statsInc("CtrlCodesTotal"+strconv.Itoa(msg.Ctrl.Code/100)+"xx", 1)
	}

	select {
	case s.send <- s.serialize(msg):
	case <-time.After(time.Microsecond * 50):
		logs.Err.Println("s.queueOut: timeout", s.sid)
		return false
	}
	return true
}

func (s *Session) serialize(msg *ServerComMessage) interface{} {
	out, _ := json.Marshal(msg)
	return out
}

func (s *Session) cleanUp() {
	globals.sessionStore.Delete(s)
	s.unsubAll()
}

// Message received, convert bytes to ClientComMessage and dispatch.
func (s *Session) dispatchRaw(raw []byte) {
	var msg ClientComMessage

	toLog := raw
	truncated := ""
	if len(raw) > 512 {
		toLog = raw[:512]
		truncated = "<...>"
	}
	logs.Info.Printf("in: '%s%s' ip='%s' sid='%s' uid='%s'", toLog, truncated, s.remoteAddr, s.sid, s.uid.String())

	if err := json.Unmarshal(raw, &msg); err != nil {
		// Malformed message
		logs.Warn.Println("s.dispatch", err, s.sid)
		s.queueOut(ErrMalformed("", "", types.TimeNow()))
		return
	}

	s.dispatch(&msg)
}

func (s *Session) dispatch(msg *ClientComMessage) {
	s.lastAction = types.TimeNow()
	msg.Timestamp = s.lastAction
	msg.AsUser = s.uid.String()
	msg.AuthLvl = int(s.authLvl)
	msg.sess = s

	var handler func(*ClientComMessage)

	// Check if user is logged in.
	checkUser := func(m *ClientComMessage, handler func(*ClientComMessage)) func(*ClientComMessage) {
		return func(m *ClientComMessage) {
			if s.uid.IsZero() {
				s.queueOut(ErrAuthRequired(m.Id, m.Original, m.Timestamp))
				return
			}
			handler(m)
		}
	}

	switch {
	case msg.Login != nil:
		handler = s.login
		msg.Id = msg.Login.Id

	case msg.Sub != nil:
		handler = checkUser(msg, s.subscribe)
		msg.Id = msg.Sub.Id
		msg.Original = msg.Sub.Chatroom

	case msg.Leave != nil:
		handler = checkUser(msg, s.leave)
		msg.Id = msg.Leave.Id
		msg.Original = msg.Leave.Chatroom

	case msg.Pub != nil:
		handler = checkUser(msg, s.publish)
		msg.Id = msg.Pub.Id
		msg.Original = msg.Pub.Chatroom

	case msg.Get != nil:
		handler = checkUser(msg, s.get)
		msg.Id = msg.Get.Id
		msg.Original = msg.Get.Chatroom

	case msg.Note != nil:
		handler = checkUser(msg, s.note)
		msg.Original = msg.Note.Chatroom

	default:
		// Unknown message.
		s.queueOut(ErrMalformed("", "", msg.Timestamp))
		logs.Warn.Println("s.dispatch: unknown message", s.sid)
		return
	}

	handler(msg)
}

// Authenticate the session with a token.
func (s *Session) login(msg *ClientComMessage) {
	if !s.uid.IsZero() {
		s.queueOut(ErrCommandOutOfSequence(msg.Id, "", msg.Timestamp))
		return
	}

	rec, err := authenticateToken(msg.Login.Token)
	if err != nil {
		logs.Warn.Println("s.login: failed", err, s.sid)
		s.queueOut(decodeStoreError(err, msg.Id, "", msg.Timestamp))
		return
	}

	s.uid = rec.Uid
	s.authLvl = rec.AuthLevel
	s.userAgent = msg.Login.UserAgent

	s.queueOut(NoErrParams(msg.Id, "", msg.Timestamp,
		map[string]interface{}{"user": s.uid.String(), "authlvl": s.authLvl.String()}))
}

// Request to subscribe to a chatroom.
func (s *Session) subscribe(msg *ClientComMessage) {
	expanded, errReply := s.expandRoomName(msg)
	if errReply != nil {
		s.queueOut(errReply)
		return
	}
	msg.RcptTo = expanded

	if sub := s.getSub(expanded); sub != nil {
		logs.Warn.Println("s.subscribe: already subscribed to", expanded, "sid=", s.sid)
		s.queueOut(InfoAlreadySubscribed(msg.Id, msg.Original, msg.Timestamp))
		return
	}

	// Hub will send Ctrl success/failure packets back to session.
	globals.hub.join <- &sessionJoin{
		chatroom: expanded,
		pkt:      msg,
		sess:     s,
	}
}

// Leave a chatroom.
func (s *Session) leave(msg *ClientComMessage) {
	expanded, errReply := s.expandRoomName(msg)
	if errReply != nil {
		s.queueOut(errReply)
		return
	}

	if sub := s.getSub(expanded); sub != nil {
		// Unlink from the room, the room will send a reply.
		s.delSub(expanded)
		sub.done <- &sessionLeave{
			sess:  s,
			reqId: msg.Id,
		}
	} else {
		// Session is not attached to the room, wants to leave - fine, no change.
		s.queueOut(InfoNotJoined(msg.Id, msg.Original, msg.Timestamp))
	}
}

// Send an outbound message to the chatroom's remote party.
func (s *Session) publish(msg *ClientComMessage) {
	expanded, errReply := s.expandRoomName(msg)
	if errReply != nil {
		s.queueOut(errReply)
		return
	}
	msg.RcptTo = expanded

	if sub := s.getSub(expanded); sub == nil {
		// Publish request received without attaching to the room first.
		s.queueOut(ErrCommandOutOfSequence(msg.Id, msg.Original, msg.Timestamp))
		return
	}

	if msg.Pub.Body == "" {
		s.queueOut(ErrMalformed(msg.Id, msg.Original, msg.Timestamp))
		return
	}

	if err := globals.router.Send(msg); err != nil {
		s.queueOut(decodeStoreError(err, msg.Id, msg.Original, msg.Timestamp))
	}
	// The room acknowledges the message to the originating session after
	// it's persisted.
}

// Query chatroom history.
func (s *Session) get(msg *ClientComMessage) {
	expanded, errReply := s.expandRoomName(msg)
	if errReply != nil {
		s.queueOut(errReply)
		return
	}
	msg.RcptTo = expanded

	sub := s.getSub(expanded)
	if sub == nil {
		s.queueOut(ErrCommandOutOfSequence(msg.Id, msg.Original, msg.Timestamp))
		return
	}

	sub.meta <- &metaReq{
		pkt:  msg,
		sess: s,
		what: metaGet,
	}
}

// Mark a message read.
func (s *Session) note(msg *ClientComMessage) {
	expanded, errReply := s.expandRoomName(msg)
	if errReply != nil {
		s.queueOut(errReply)
		return
	}
	msg.RcptTo = expanded

	sub := s.getSub(expanded)
	if sub == nil {
		// Drop unsolicited notes silently, they carry no message id to reply to.
		return
	}

	sub.meta <- &metaReq{
		pkt:  msg,
		sess: s,
		what: metaNote,
	}
}

// expandRoomName validates the chatroom name of the request. The wire name
// is the base64 text form of the chatroom id.
func (s *Session) expandRoomName(msg *ClientComMessage) (string, *ServerComMessage) {
	if msg.Original == "" {
		return "", ErrMalformed(msg.Id, "", msg.Timestamp)
	}

	if types.ParseUid(msg.Original).IsZero() {
		return "", ErrChatroomNotFound(msg.Id, msg.Original, msg.Timestamp)
	}

	return msg.Original, nil
}
