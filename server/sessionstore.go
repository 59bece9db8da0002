/******************************************************************************
 *
 *  Description :
 *
 *  Management of live sessions
 *
 *****************************************************************************/

package main

import (
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/teamchat/inbox/server/logs"
	"github.com/teamchat/inbox/server/store"
	"github.com/teamchat/inbox/server/store/types"
)

// SessionStore holds live sessions indexed by session ID.
type SessionStore struct {
	lock sync.Mutex

	sessCache map[string]*Session
}

// NewSession creates a new session and saves it to the session store.
func (ss *SessionStore) NewSession(conn interface{}, sid string) (*Session, int) {
	var s Session

	s.sid = sid

	switch c := conn.(type) {
	case *websocket.Conn:
		s.proto = WEBSOCK
		s.ws = c
	default:
		s.proto = NONE
	}

	if s.proto != NONE {
		s.subs = make(map[string]*Subscription)
		s.send = make(chan interface{}, 256) // buffered
		s.stop = make(chan interface{}, 1)   // Buffered by 1 just to make it non-blocking
		s.detach = make(chan string, 64)     // buffered
	}

	s.lastAction = types.TimeNow()
	if s.sid == "" {
		s.sid = store.Store.GetUidString()
	}

	ss.lock.Lock()
	ss.sessCache[s.sid] = &s
	count := len(ss.sessCache)
	ss.lock.Unlock()

	statsSet("LiveSessions", int64(count))
	statsInc("TotalSessions", 1)

	return &s, count
}

// Delete removes session from store.
func (ss *SessionStore) Delete(s *Session) int {
	ss.lock.Lock()
	defer ss.lock.Unlock()

	delete(ss.sessCache, s.sid)
	count := len(ss.sessCache)
	statsSet("LiveSessions", int64(count))

	return count
}

// Range calls given function for all live sessions. It stops if the function
// returns false.
func (ss *SessionStore) Range(f func(sid string, s *Session) bool) {
	ss.lock.Lock()
	for sid, s := range ss.sessCache {
		if !f(sid, s) {
			break
		}
	}
	ss.lock.Unlock()
}

// Shutdown terminates sessionStore. No need to clean up.
func (ss *SessionStore) Shutdown() {
	shutdown := NoErrShutdown(time.Now().UTC().Round(time.Millisecond))
	count := 0
	ss.Range(func(sid string, s *Session) bool {
		count++
		if s.stop != nil {
			s.stop <- s.serialize(shutdown)
		}
		return true
	})

	logs.Info.Printf("SessionStore shut down, sessions terminated: %d", count)
}

// NewSessionStore initializes a session store.
func NewSessionStore() *SessionStore {
	return &SessionStore{
		sessCache: make(map[string]*Session),
	}
}
