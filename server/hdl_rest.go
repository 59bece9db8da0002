/******************************************************************************
 *
 *  Description :
 *
 *    REST endpoints: message history and outbound sends for agent
 *    integrations, chatroom and grant administration.
 *
 *****************************************************************************/

package main

import (
	"encoding/json"
	"net/http"
	"strconv"
	"strings"

	"github.com/teamchat/inbox/server/auth"
	"github.com/teamchat/inbox/server/logs"
	"github.com/teamchat/inbox/server/store"
	"github.com/teamchat/inbox/server/store/types"
	"github.com/teamchat/inbox/server/validate/tel"
)

// Header carrying the authentication token of REST requests.
const authHeader = "X-Inbox-Auth"

func writeJSON(wrt http.ResponseWriter, code int, body interface{}) {
	wrt.Header().Set("Content-Type", "application/json; charset=utf-8")
	wrt.WriteHeader(code)
	json.NewEncoder(wrt).Encode(body)
}

func writeCtrl(wrt http.ResponseWriter, msg *ServerComMessage) {
	writeJSON(wrt, msg.Ctrl.Code, msg)
}

// restAuth authenticates a REST request. Returns nil after replying to the
// client if authentication failed.
func restAuth(wrt http.ResponseWriter, req *http.Request) *auth.Rec {
	token := req.Header.Get(authHeader)
	if token == "" {
		token = req.URL.Query().Get("auth")
	}
	rec, err := authenticateToken(token)
	if err != nil {
		writeCtrl(wrt, decodeStoreError(err, "", "", types.TimeNow()))
		return nil
	}
	return rec
}

// restAuthAdmin authenticates a REST request and requires the admin level.
func restAuthAdmin(wrt http.ResponseWriter, req *http.Request) *auth.Rec {
	rec := restAuth(wrt, req)
	if rec == nil {
		return nil
	}
	if rec.AuthLevel != auth.LevelAdmin {
		writeCtrl(wrt, ErrPermissionDenied("", "", types.TimeNow()))
		return nil
	}
	return rec
}

// chatroomOf extracts and access-checks the chatroom named in the request
// query or body. Replies to the client and returns zero uid on failure.
func chatroomOf(wrt http.ResponseWriter, rec *auth.Rec, name string) types.Uid {
	now := types.TimeNow()

	id := types.ParseUid(name)
	if id.IsZero() {
		writeCtrl(wrt, ErrChatroomNotFound("", name, now))
		return types.ZeroUid
	}

	ok, err := globals.policy.CanAccess(rec.Uid, id)
	if err != nil {
		logs.Err.Println("rest: access check failed", err)
		writeCtrl(wrt, ErrUnknown("", name, now))
		return types.ZeroUid
	}
	if !ok {
		writeCtrl(wrt, ErrPermissionDenied("", name, now))
		return types.ZeroUid
	}

	return id
}

// serveMessages handles GET (history) and POST (outbound send) on
// /v0/messages.
func serveMessages(wrt http.ResponseWriter, req *http.Request) {
	switch req.Method {
	case http.MethodGet:
		serveMessagesGet(wrt, req)
	case http.MethodPost:
		serveMessagesSend(wrt, req)
	default:
		wrt.WriteHeader(http.StatusMethodNotAllowed)
	}
}

func serveMessagesGet(wrt http.ResponseWriter, req *http.Request) {
	rec := restAuth(wrt, req)
	if rec == nil {
		return
	}

	query := req.URL.Query()
	chatroom := chatroomOf(wrt, rec, query.Get("chatroom"))
	if chatroom.IsZero() {
		return
	}

	opts := &types.QueryOpt{}
	opts.Since, _ = strconv.Atoi(query.Get("since"))
	opts.Before, _ = strconv.Atoi(query.Get("before"))
	opts.Limit, _ = strconv.Atoi(query.Get("limit"))
	opts.Ascending = query.Get("asc") == "true"
	opts.UnreadOnly = query.Get("unread") == "true"
	if dir := query.Get("dir"); dir == types.DirInbound || dir == types.DirOutbound {
		opts.Direction = dir
	}

	messages, err := store.Messages.GetAll(chatroom, opts)
	if err != nil {
		logs.Err.Println("rest: failed to load history", err)
		writeCtrl(wrt, ErrUnknown("", "", types.TimeNow()))
		return
	}

	writeJSON(wrt, http.StatusOK, map[string]interface{}{"messages": messages})
}

func serveMessagesSend(wrt http.ResponseWriter, req *http.Request) {
	rec := restAuth(wrt, req)
	if rec == nil {
		return
	}

	var payload struct {
		Chatroom string `json:"chatroom"`
		To       string `json:"to,omitempty"`
		Body     string `json:"body"`
	}
	if err := json.NewDecoder(req.Body).Decode(&payload); err != nil {
		writeCtrl(wrt, ErrMalformed("", "", types.TimeNow()))
		return
	}

	chatroom := chatroomOf(wrt, rec, payload.Chatroom)
	if chatroom.IsZero() {
		return
	}

	if err := globals.router.SendBlocking(chatroom, payload.To, payload.Body); err != nil {
		writeCtrl(wrt, decodeStoreError(err, "", payload.Chatroom, types.TimeNow()))
		return
	}

	writeCtrl(wrt, NoErr("", payload.Chatroom, types.TimeNow()))
}

// serveMessagesRead marks a single message read: POST /v0/messages/read.
func serveMessagesRead(wrt http.ResponseWriter, req *http.Request) {
	if req.Method != http.MethodPost {
		wrt.WriteHeader(http.StatusMethodNotAllowed)
		return
	}

	rec := restAuth(wrt, req)
	if rec == nil {
		return
	}

	var payload struct {
		Chatroom string `json:"chatroom"`
		SeqId    int    `json:"seq"`
	}
	if err := json.NewDecoder(req.Body).Decode(&payload); err != nil || payload.SeqId < 1 {
		writeCtrl(wrt, ErrMalformed("", "", types.TimeNow()))
		return
	}

	chatroom := chatroomOf(wrt, rec, payload.Chatroom)
	if chatroom.IsZero() {
		return
	}

	err := store.Messages.MarkRead(chatroom, payload.SeqId)
	if err == types.ErrNotFound {
		// Already read or no such message: marking read is idempotent,
		// same as the websocket {note} path.
		writeCtrl(wrt, InfoNoAction("", payload.Chatroom, types.TimeNow()))
		return
	}
	if err != nil {
		writeCtrl(wrt, decodeStoreError(err, "", payload.Chatroom, types.TimeNow()))
		return
	}

	writeCtrl(wrt, NoErr("", payload.Chatroom, types.TimeNow()))
}

// serveChatrooms handles GET (list), POST (create) and DELETE on
// /v0/chatrooms.
func serveChatrooms(wrt http.ResponseWriter, req *http.Request) {
	switch req.Method {
	case http.MethodGet:
		serveChatroomsList(wrt, req)
	case http.MethodPost:
		serveChatroomsCreate(wrt, req)
	case http.MethodDelete:
		serveChatroomsDelete(wrt, req)
	default:
		wrt.WriteHeader(http.StatusMethodNotAllowed)
	}
}

func serveChatroomsList(wrt http.ResponseWriter, req *http.Request) {
	rec := restAuth(wrt, req)
	if rec == nil {
		return
	}

	rooms, err := store.Chatrooms.GetAll()
	if err != nil {
		logs.Err.Println("rest: failed to load chatrooms", err)
		writeCtrl(wrt, ErrUnknown("", "", types.TimeNow()))
		return
	}

	// Agents see only the rooms they can read.
	if rec.AuthLevel != auth.LevelAdmin {
		readable := rooms[:0]
		for _, room := range rooms {
			if ok, _ := globals.policy.CanAccess(rec.Uid, room.Id); ok {
				readable = append(readable, room)
			}
		}
		rooms = readable
	}

	writeJSON(wrt, http.StatusOK, map[string]interface{}{"chatrooms": rooms})
}

func serveChatroomsCreate(wrt http.ResponseWriter, req *http.Request) {
	if rec := restAuthAdmin(wrt, req); rec == nil {
		return
	}

	now := types.TimeNow()

	var payload struct {
		Name    string `json:"name"`
		Address string `json:"address"`
	}
	if err := json.NewDecoder(req.Body).Decode(&payload); err != nil {
		writeCtrl(wrt, ErrMalformed("", "", now))
		return
	}

	address, err := tel.Normalize(payload.Address, globals.defaultCountryCode)
	if err != nil {
		writeCtrl(wrt, ErrMalformed("", "", now))
		return
	}

	room, err := store.Chatrooms.Create(&types.Chatroom{
		Name:    payload.Name,
		Address: address,
	})
	if err != nil {
		writeCtrl(wrt, decodeStoreError(err, "", "", now))
		return
	}

	writeJSON(wrt, http.StatusCreated, room)
}

func serveChatroomsDelete(wrt http.ResponseWriter, req *http.Request) {
	if rec := restAuthAdmin(wrt, req); rec == nil {
		return
	}

	now := types.TimeNow()

	name := strings.TrimPrefix(req.URL.Path, "/v0/chatrooms/")
	id := types.ParseUid(name)
	if id.IsZero() {
		writeCtrl(wrt, ErrChatroomNotFound("", name, now))
		return
	}

	room, err := store.Chatrooms.Get(id)
	if err != nil {
		writeCtrl(wrt, decodeStoreError(err, "", name, now))
		return
	}
	if room == nil {
		writeCtrl(wrt, ErrChatroomNotFound("", name, now))
		return
	}

	// Evict subscribers and unload the room before removing the record.
	done := make(chan bool)
	globals.hub.unreg <- &roomUnreg{rcptTo: name, del: true, done: done}
	<-done

	if err := store.Chatrooms.Delete(id); err != nil {
		writeCtrl(wrt, decodeStoreError(err, "", name, now))
		return
	}

	globals.resolver.Forget(room.Address)
	globals.policy.InvalidateAll()

	writeCtrl(wrt, NoErr("", name, now))
}

// serveGrants handles POST (add) and DELETE (revoke) on /v0/grants.
func serveGrants(wrt http.ResponseWriter, req *http.Request) {
	if req.Method != http.MethodPost && req.Method != http.MethodDelete {
		wrt.WriteHeader(http.StatusMethodNotAllowed)
		return
	}

	if rec := restAuthAdmin(wrt, req); rec == nil {
		return
	}

	now := types.TimeNow()

	var payload struct {
		User     string `json:"user"`
		Chatroom string `json:"chatroom"`
	}
	if err := json.NewDecoder(req.Body).Decode(&payload); err != nil {
		writeCtrl(wrt, ErrMalformed("", "", now))
		return
	}

	user := types.ParseUid(payload.User)
	chatroom := types.ParseUid(payload.Chatroom)
	if user.IsZero() || chatroom.IsZero() {
		writeCtrl(wrt, ErrMalformed("", "", now))
		return
	}

	var err error
	if req.Method == http.MethodPost {
		err = store.Users.GrantAdd(user, chatroom)
	} else {
		err = store.Users.GrantDel(user, chatroom)
	}
	if err != nil {
		writeCtrl(wrt, decodeStoreError(err, "", payload.Chatroom, now))
		return
	}

	// The change must be visible to the delivery path right away.
	globals.policy.Invalidate(user)

	if req.Method == http.MethodPost {
		writeCtrl(wrt, NoErrCreated("", payload.Chatroom, now))
	} else {
		writeCtrl(wrt, NoErr("", payload.Chatroom, now))
	}
}

// serveUsers handles POST (create) and DELETE on /v0/users.
func serveUsers(wrt http.ResponseWriter, req *http.Request) {
	switch req.Method {
	case http.MethodPost:
		serveUsersCreate(wrt, req)
	case http.MethodDelete:
		serveUsersDelete(wrt, req)
	default:
		wrt.WriteHeader(http.StatusMethodNotAllowed)
	}
}

func serveUsersCreate(wrt http.ResponseWriter, req *http.Request) {
	if rec := restAuthAdmin(wrt, req); rec == nil {
		return
	}

	now := types.TimeNow()

	var payload struct {
		Name string `json:"name"`
		Role string `json:"role"`
	}
	if err := json.NewDecoder(req.Body).Decode(&payload); err != nil {
		writeCtrl(wrt, ErrMalformed("", "", now))
		return
	}

	user, err := store.Users.Create(&types.User{
		Name: payload.Name,
		Role: payload.Role,
	})
	if err != nil {
		writeCtrl(wrt, decodeStoreError(err, "", "", now))
		return
	}

	token, err := auth.GenSecret(&auth.Rec{
		Uid:       user.Id,
		AuthLevel: auth.LevelForRole(user.Role),
	})
	if err != nil {
		logs.Err.Println("rest: failed to issue token", err)
		writeCtrl(wrt, ErrUnknown("", "", now))
		return
	}

	writeJSON(wrt, http.StatusCreated, map[string]interface{}{
		"user":  user,
		"token": string(token),
	})
}

func serveUsersDelete(wrt http.ResponseWriter, req *http.Request) {
	if rec := restAuthAdmin(wrt, req); rec == nil {
		return
	}

	now := types.TimeNow()

	name := strings.TrimPrefix(req.URL.Path, "/v0/users/")
	id := types.ParseUid(name)
	if id.IsZero() {
		writeCtrl(wrt, ErrNotFound("", "", now))
		return
	}

	if err := store.Users.Delete(id); err != nil {
		writeCtrl(wrt, decodeStoreError(err, "", "", now))
		return
	}

	globals.policy.Invalidate(id)

	writeCtrl(wrt, NoErr("", "", now))
}
