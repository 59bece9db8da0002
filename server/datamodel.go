package main

/******************************************************************************
 *
 *  Description :
 *
 *    Wire protocol structures
 *
 *****************************************************************************/

import (
	"net/http"
	"time"

	"github.com/teamchat/inbox/server/store/types"
)

// MsgGetOpts defines message history query parameters.
type MsgGetOpts struct {
	// Load messages with seq ids equal or greater than this (inclusive or closed).
	SinceId int `json:"since,omitempty"`
	// Load messages with seq ids lower than this (exclusive or open).
	BeforeId int `json:"before,omitempty"`
	// Limit the number of messages loaded.
	Limit int `json:"limit,omitempty"`
	// Oldest first instead of the default newest first.
	Ascending bool `json:"asc,omitempty"`
	// Filter by direction: "inbound" or "outbound". Empty means both.
	Direction string `json:"dir,omitempty"`
	// Return unread messages only.
	UnreadOnly bool `json:"unread,omitempty"`
}

// Client to Server (C2S) messages.

// MsgClientLogin is a login {login} message.
type MsgClientLogin struct {
	// Message Id.
	Id string `json:"id,omitempty"`
	// Authentication token.
	Token string `json:"token"`
	// User agent.
	UserAgent string `json:"ua,omitempty"`
}

// MsgClientSub is a subscription request {sub} to a chatroom.
type MsgClientSub struct {
	Id       string `json:"id,omitempty"`
	Chatroom string `json:"chatroom"`

	// Also fetch history on subscription, same semantics as {get}.
	Get *MsgGetOpts `json:"get,omitempty"`
}

// MsgClientLeave is an unsubscribe {leave} request.
type MsgClientLeave struct {
	Id       string `json:"id,omitempty"`
	Chatroom string `json:"chatroom"`
}

// MsgClientPub is a request {pub} to send an outbound message to the
// chatroom's remote party.
type MsgClientPub struct {
	Id       string `json:"id,omitempty"`
	Chatroom string `json:"chatroom"`
	// Destination address. Empty means the address of the latest inbound
	// message in the chatroom.
	To   string `json:"to,omitempty"`
	Body string `json:"body"`
}

// MsgClientGet is a query {get} of chatroom history.
type MsgClientGet struct {
	Id       string `json:"id,omitempty"`
	Chatroom string `json:"chatroom"`

	MsgGetOpts
}

// MsgClientNote is a read notification {note}: marks a single message read.
type MsgClientNote struct {
	Chatroom string `json:"chatroom"`
	// Seq id of the message to mark read.
	SeqId int `json:"seq"`
}

// ClientComMessage is a wrapper for client messages.
type ClientComMessage struct {
	Login *MsgClientLogin `json:"login"`
	Sub   *MsgClientSub   `json:"sub"`
	Leave *MsgClientLeave `json:"leave"`
	Pub   *MsgClientPub   `json:"pub"`
	Get   *MsgClientGet   `json:"get"`
	Note  *MsgClientNote  `json:"note"`

	// Internal fields, routed only within the server.

	// Message Id denormalized.
	Id string `json:"-"`
	// Un-routable name of the original chatroom, denormalized.
	Original string `json:"-"`
	// Routable name of the chatroom.
	RcptTo string `json:"-"`
	// Sender's UserId as string.
	AsUser string `json:"-"`
	// Sender's authentication level.
	AuthLvl int `json:"-"`
	// Timestamp when this message was received by the server.
	Timestamp time.Time `json:"-"`

	// Originating session to send an acknowledgement to.
	sess *Session
}

// Server to Client (S2C) messages.

// MsgServerCtrl is a server control message {ctrl}.
type MsgServerCtrl struct {
	Id       string `json:"id,omitempty"`
	Chatroom string `json:"chatroom,omitempty"`

	Params    interface{} `json:"params,omitempty"`
	Code      int         `json:"code"`
	Text      string      `json:"text,omitempty"`
	Timestamp time.Time   `json:"ts"`
}

// MsgServerData is a chatroom message delivered to subscribers {data}.
type MsgServerData struct {
	Chatroom  string    `json:"chatroom"`
	SeqId     int       `json:"seq"`
	Direction string    `json:"dir"`
	From      string    `json:"from"`
	To        string    `json:"to,omitempty"`
	Channel   string    `json:"channel,omitempty"`
	Body      string    `json:"body"`
	Read      bool      `json:"read,omitempty"`
	Timestamp time.Time `json:"ts"`
}

// MsgServerMeta is a chatroom metadata {meta} message: history and room
// description responses.
type MsgServerMeta struct {
	Id       string `json:"id,omitempty"`
	Chatroom string `json:"chatroom"`

	Timestamp time.Time `json:"ts"`

	// Chatroom description.
	Desc *MsgChatroomDesc `json:"desc,omitempty"`
	// Message history.
	Data []MsgServerData `json:"data,omitempty"`
}

// MsgChatroomDesc is a chatroom description.
type MsgChatroomDesc struct {
	Chatroom  string    `json:"chatroom"`
	Name      string    `json:"name"`
	Address   string    `json:"address"`
	SeqId     int       `json:"seq"`
	CreatedAt time.Time `json:"created"`
}

// ServerComMessage is a wrapper for server-side messages.
type ServerComMessage struct {
	Ctrl *MsgServerCtrl `json:"ctrl,omitempty"`
	Data *MsgServerData `json:"data,omitempty"`
	Meta *MsgServerMeta `json:"meta,omitempty"`

	// Internal fields.

	// Message Id denormalized.
	Id string `json:"-"`
	// Routable name of the chatroom affected by this message.
	RcptTo string `json:"-"`
	// Timestamp for consistency of timestamps in {ctrl} messages
	// (corresponds to originating client message receipt timestamp).
	Timestamp time.Time `json:"-"`
	// Originating session to send an acknowledgement to. Could be nil.
	sess *Session
	// Session ID to skip when sending the packet to sessions. Used to skip
	// the original session. Could be empty.
	SkipSid string `json:"-"`
}

// Generators of server-side replies {ctrl}.

// NoErr indicates successful completion (200).
func NoErr(id, chatroom string, ts time.Time) *ServerComMessage {
	return NoErrParams(id, chatroom, ts, nil)
}

// NoErrParams indicates successful completion with additional parameters (200).
func NoErrParams(id, chatroom string, ts time.Time, params interface{}) *ServerComMessage {
	return &ServerComMessage{Ctrl: &MsgServerCtrl{
		Id:        id,
		Code:      http.StatusOK, // 200
		Text:      "ok",
		Chatroom:  chatroom,
		Params:    params,
		Timestamp: ts}, Id: id, Timestamp: ts}
}

// NoErrCreated indicates successful creation of an object (201).
func NoErrCreated(id, chatroom string, ts time.Time) *ServerComMessage {
	return &ServerComMessage{Ctrl: &MsgServerCtrl{
		Id:        id,
		Code:      http.StatusCreated, // 201
		Text:      "created",
		Chatroom:  chatroom,
		Timestamp: ts}, Id: id, Timestamp: ts}
}

// NoErrAccepted indicates the request was accepted but not processed yet (202).
func NoErrAccepted(id, chatroom string, ts time.Time) *ServerComMessage {
	return &ServerComMessage{Ctrl: &MsgServerCtrl{
		Id:        id,
		Code:      http.StatusAccepted, // 202
		Text:      "accepted",
		Chatroom:  chatroom,
		Timestamp: ts}, Id: id, Timestamp: ts}
}

// NoErrEvicted indicates the user was disconnected from the chatroom for no
// fault of the user (205).
func NoErrEvicted(id, chatroom string, ts time.Time) *ServerComMessage {
	return &ServerComMessage{Ctrl: &MsgServerCtrl{
		Id:        id,
		Code:      http.StatusResetContent, // 205
		Text:      "evicted",
		Chatroom:  chatroom,
		Timestamp: ts}, Id: id}
}

// NoErrShutdown means the user was disconnected because system shutdown is
// in progress (205).
func NoErrShutdown(ts time.Time) *ServerComMessage {
	return &ServerComMessage{Ctrl: &MsgServerCtrl{
		Code:      http.StatusResetContent, // 205
		Text:      "server shutdown",
		Timestamp: ts}}
}

// InfoAlreadySubscribed means the subscribe request was ignored because the
// session is already attached to the chatroom (304).
func InfoAlreadySubscribed(id, chatroom string, ts time.Time) *ServerComMessage {
	return &ServerComMessage{Ctrl: &MsgServerCtrl{
		Id:        id,
		Code:      http.StatusNotModified, // 304
		Text:      "already subscribed",
		Chatroom:  chatroom,
		Timestamp: ts}, Id: id, Timestamp: ts}
}

// InfoNotJoined means the leave request was ignored because the session was
// not attached to the chatroom (304).
func InfoNotJoined(id, chatroom string, ts time.Time) *ServerComMessage {
	return &ServerComMessage{Ctrl: &MsgServerCtrl{
		Id:        id,
		Code:      http.StatusNotModified, // 304
		Text:      "not joined",
		Chatroom:  chatroom,
		Timestamp: ts}, Id: id, Timestamp: ts}
}

// InfoNoAction means the request was ignored because the object was already
// in the desired state (304).
func InfoNoAction(id, chatroom string, ts time.Time) *ServerComMessage {
	return &ServerComMessage{Ctrl: &MsgServerCtrl{
		Id:        id,
		Code:      http.StatusNotModified, // 304
		Text:      "no action",
		Chatroom:  chatroom,
		Timestamp: ts}, Id: id, Timestamp: ts}
}

// 4xx Errors.

// ErrMalformed means the request was malformed (400).
func ErrMalformed(id, chatroom string, ts time.Time) *ServerComMessage {
	return &ServerComMessage{Ctrl: &MsgServerCtrl{
		Id:        id,
		Code:      http.StatusBadRequest, // 400
		Text:      "malformed",
		Chatroom:  chatroom,
		Timestamp: ts}, Id: id, Timestamp: ts}
}

// ErrAuthRequired means the request requires authentication (401).
func ErrAuthRequired(id, chatroom string, ts time.Time) *ServerComMessage {
	return &ServerComMessage{Ctrl: &MsgServerCtrl{
		Id:        id,
		Code:      http.StatusUnauthorized, // 401
		Text:      "authentication required",
		Chatroom:  chatroom,
		Timestamp: ts}, Id: id, Timestamp: ts}
}

// ErrAuthFailed means authentication failed (401).
func ErrAuthFailed(id, chatroom string, ts time.Time) *ServerComMessage {
	return &ServerComMessage{Ctrl: &MsgServerCtrl{
		Id:        id,
		Code:      http.StatusUnauthorized, // 401
		Text:      "authentication failed",
		Chatroom:  chatroom,
		Timestamp: ts}, Id: id, Timestamp: ts}
}

// ErrPermissionDenied means the user is authenticated but the access is not
// granted (403).
func ErrPermissionDenied(id, chatroom string, ts time.Time) *ServerComMessage {
	return &ServerComMessage{Ctrl: &MsgServerCtrl{
		Id:        id,
		Code:      http.StatusForbidden, // 403
		Text:      "permission denied",
		Chatroom:  chatroom,
		Timestamp: ts}, Id: id, Timestamp: ts}
}

// ErrChatroomNotFound means the chatroom is not found (404).
func ErrChatroomNotFound(id, chatroom string, ts time.Time) *ServerComMessage {
	return &ServerComMessage{Ctrl: &MsgServerCtrl{
		Id:        id,
		Code:      http.StatusNotFound, // 404
		Text:      "chatroom not found",
		Chatroom:  chatroom,
		Timestamp: ts}, Id: id, Timestamp: ts}
}

// ErrNotFound means the object was not found (404).
func ErrNotFound(id, chatroom string, ts time.Time) *ServerComMessage {
	return &ServerComMessage{Ctrl: &MsgServerCtrl{
		Id:        id,
		Code:      http.StatusNotFound, // 404
		Text:      "not found",
		Chatroom:  chatroom,
		Timestamp: ts}, Id: id, Timestamp: ts}
}

// ErrDuplicateValue means the value is already in use, e.g. an address
// already bound to another chatroom (409).
func ErrDuplicateValue(id, chatroom string, ts time.Time) *ServerComMessage {
	return &ServerComMessage{Ctrl: &MsgServerCtrl{
		Id:        id,
		Code:      http.StatusConflict, // 409
		Text:      "duplicate value",
		Chatroom:  chatroom,
		Timestamp: ts}, Id: id, Timestamp: ts}
}

// ErrCommandOutOfSequence means the command is valid but out of order, e.g.
// a {sub} before {login} (409).
func ErrCommandOutOfSequence(id, chatroom string, ts time.Time) *ServerComMessage {
	return &ServerComMessage{Ctrl: &MsgServerCtrl{
		Id:        id,
		Code:      http.StatusConflict, // 409
		Text:      "command out of sequence",
		Chatroom:  chatroom,
		Timestamp: ts}, Id: id, Timestamp: ts}
}

// ErrUnknown means a generic failure (500).
func ErrUnknown(id, chatroom string, ts time.Time) *ServerComMessage {
	return &ServerComMessage{Ctrl: &MsgServerCtrl{
		Id:        id,
		Code:      http.StatusInternalServerError, // 500
		Text:      "internal error",
		Chatroom:  chatroom,
		Timestamp: ts}, Id: id, Timestamp: ts}
}

// ErrServiceUnavailable means the server is being shut down or overloaded (503).
func ErrServiceUnavailable(id, chatroom string, ts time.Time) *ServerComMessage {
	return &ServerComMessage{Ctrl: &MsgServerCtrl{
		Id:        id,
		Code:      http.StatusServiceUnavailable, // 503
		Text:      "service unavailable",
		Chatroom:  chatroom,
		Timestamp: ts}, Id: id, Timestamp: ts}
}

// decodeStoreError converts a store error into a {ctrl} reply to the client.
func decodeStoreError(err error, id, chatroom string, timestamp time.Time) *ServerComMessage {
	var errmsg *ServerComMessage

	if err == nil {
		errmsg = NoErr(id, chatroom, timestamp)
	} else if storeErr, ok := err.(types.StoreError); !ok {
		errmsg = ErrUnknown(id, chatroom, timestamp)
	} else {
		switch storeErr {
		case types.ErrInternal:
			errmsg = ErrUnknown(id, chatroom, timestamp)
		case types.ErrMalformed:
			errmsg = ErrMalformed(id, chatroom, timestamp)
		case types.ErrFailed:
			errmsg = ErrAuthFailed(id, chatroom, timestamp)
		case types.ErrPermissionDenied:
			errmsg = ErrPermissionDenied(id, chatroom, timestamp)
		case types.ErrDuplicate:
			errmsg = ErrDuplicateValue(id, chatroom, timestamp)
		case types.ErrNotFound:
			errmsg = ErrNotFound(id, chatroom, timestamp)
		case types.ErrUnsupported:
			errmsg = ErrMalformed(id, chatroom, timestamp)
		case types.ErrNotOpen:
			errmsg = ErrServiceUnavailable(id, chatroom, timestamp)
		default:
			errmsg = ErrUnknown(id, chatroom, timestamp)
		}
	}

	return errmsg
}
