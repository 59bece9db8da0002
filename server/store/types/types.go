// Package types declares the objects persisted by the message store and the
// errors the store reports.
package types

import (
	"encoding/base64"
	"encoding/binary"
	"errors"
	"time"
)

// Uid is a database-specific record id, suitable to be used as a primary key.
type Uid uint64

// ZeroUid is a constant representing invalid Uid.
var ZeroUid Uid = 0

const (
	uidBase64Unpadded = 11
	uidBase64Padded   = 12
)

// IsZero checks if Uid is uninitialized.
func (uid Uid) IsZero() bool {
	return uid == 0
}

// Compare returns 0 if uid is equal to u2, 1 if uid is greater than u2, -1 if uid is smaller.
func (uid Uid) Compare(u2 Uid) int {
	if uid < u2 {
		return -1
	} else if uid > u2 {
		return 1
	}
	return 0
}

// MarshalBinary converts Uid to byte slice.
func (uid Uid) MarshalBinary() ([]byte, error) {
	dst := make([]byte, 8)
	binary.LittleEndian.PutUint64(dst, uint64(uid))
	return dst, nil
}

// UnmarshalBinary reads Uid from byte slice.
func (uid *Uid) UnmarshalBinary(b []byte) error {
	if len(b) < 8 {
		return errors.New("Uid.UnmarshalBinary: invalid length")
	}
	*uid = Uid(binary.LittleEndian.Uint64(b))
	return nil
}

// UnmarshalText reads Uid from base64-URL encoded string.
func (uid *Uid) UnmarshalText(src []byte) error {
	if len(src) != uidBase64Unpadded {
		return errors.New("Uid.UnmarshalText: invalid length")
	}
	dec := make([]byte, base64.URLEncoding.DecodedLen(uidBase64Padded))
	for len(src) < uidBase64Padded {
		src = append(src, '=')
	}
	count, err := base64.URLEncoding.Decode(dec, src)
	if count < 8 {
		if err != nil {
			return errors.New("Uid.UnmarshalText: failed to decode " + err.Error())
		}
		return errors.New("Uid.UnmarshalText: failed to decode")
	}
	*uid = Uid(binary.LittleEndian.Uint64(dec))
	return nil
}

// MarshalText converts Uid to base64-URL encoded string.
func (uid Uid) MarshalText() ([]byte, error) {
	if uid == 0 {
		return []byte{}, nil
	}
	src := make([]byte, 8)
	dst := make([]byte, base64.URLEncoding.EncodedLen(8))
	binary.LittleEndian.PutUint64(src, uint64(uid))
	base64.URLEncoding.Encode(dst, src)
	return dst[0:uidBase64Unpadded], nil
}

// MarshalJSON converts Uid to double quoted ("ajjj") string.
func (uid Uid) MarshalJSON() ([]byte, error) {
	dst, _ := uid.MarshalText()
	return append(append([]byte{'"'}, dst...), '"'), nil
}

// UnmarshalJSON reads Uid from a double quoted string.
func (uid *Uid) UnmarshalJSON(b []byte) error {
	size := len(b)
	if size != (uidBase64Unpadded + 2) {
		return errors.New("Uid.UnmarshalJSON: invalid length")
	} else if b[0] != '"' || b[size-1] != '"' {
		return errors.New("Uid.UnmarshalJSON: unrecognized")
	}
	return uid.UnmarshalText(b[1 : size-1])
}

// String converts Uid to base64 string.
func (uid Uid) String() string {
	buf, _ := uid.MarshalText()
	return string(buf)
}

// ParseUid parses string NOT prefixed with anything.
func ParseUid(s string) Uid {
	var uid Uid
	uid.UnmarshalText([]byte(s))
	return uid
}

// TimeNow returns current wall time in UTC rounded to milliseconds.
func TimeNow() time.Time {
	return time.Now().UTC().Round(time.Millisecond)
}

// StoreError satisfies Error interface but allows constant values for
// direct comparison.
type StoreError string

// Error is required by error interface.
func (s StoreError) Error() string {
	return string(s)
}

const (
	// ErrInternal means DB or other internal failure.
	ErrInternal = StoreError("internal")
	// ErrMalformed means the input is malformed.
	ErrMalformed = StoreError("malformed")
	// ErrFailed means the operation failed for any other reason.
	ErrFailed = StoreError("failed")
	// ErrDuplicate means the object already exists, e.g. address already bound.
	ErrDuplicate = StoreError("duplicate value")
	// ErrPermissionDenied means the operation is not permitted.
	ErrPermissionDenied = StoreError("denied")
	// ErrNotFound means the referenced object was not found.
	ErrNotFound = StoreError("not found")
	// ErrUnsupported means the operation is not supported.
	ErrUnsupported = StoreError("unsupported")
	// ErrNotOpen means the adapter connection is not initialized.
	ErrNotOpen = StoreError("not open")
)

// Message direction: either received from an external channel or sent by an agent.
const (
	// DirInbound is a message received from an external address via a channel webhook.
	DirInbound = "inbound"
	// DirOutbound is a message authored by an authenticated agent.
	DirOutbound = "outbound"
)

// Chatroom is a tenant mailbox bound to exactly one external address.
// Inbound traffic addressed to Address is routed to this chatroom.
type Chatroom struct {
	Id        Uid       `json:"id"`
	CreatedAt time.Time `json:"created_at"`
	// Human-readable chatroom name.
	Name string `json:"name"`
	// Bound external address in E.164 form. Unique across all chatrooms.
	Address string `json:"address"`
	// Sequential id of the last message appended to the chatroom.
	SeqId int `json:"seq_id"`
}

// Message is a single message in a chatroom. Immutable once persisted
// except for the Read flag.
type Message struct {
	Id        Uid       `json:"id"`
	CreatedAt time.Time `json:"created_at"`
	// Chatroom which owns the message.
	Chatroom Uid `json:"chatroom"`
	// Chatroom-sequential id, starts at 1. Tie-break for equal timestamps.
	SeqId int `json:"seq_id"`
	// Either DirInbound or DirOutbound.
	Direction string `json:"direction"`
	// Sender address for inbound, agent user id string for outbound.
	From string `json:"from"`
	// Recipient address.
	To string `json:"to"`
	// Channel the message arrived on or is sent through, e.g. "sms".
	Channel string `json:"channel"`
	Body    string `json:"body"`
	Read    bool   `json:"read"`
}

// User role.
const (
	// RoleAdmin has implicit access to all chatrooms.
	RoleAdmin = "admin"
	// RoleAgent has access to explicitly granted chatrooms only.
	RoleAgent = "agent"
)

// User is an account which may read chatrooms and author outbound messages.
type User struct {
	Id        Uid       `json:"id"`
	CreatedAt time.Time `json:"created_at"`
	Name      string    `json:"name"`
	// Either RoleAdmin or RoleAgent.
	Role string `json:"role"`
}

// QueryOpt is options of a message query.
type QueryOpt struct {
	// Load messages with seq ids equal or greater than this (inclusive).
	Since int
	// Load messages with seq ids lower than this (exclusive).
	Before int
	// Limit the number of messages loaded.
	Limit int
	// Return oldest-first instead of the default newest-first.
	Ascending bool
	// Filter by direction, DirInbound or DirOutbound; empty for both.
	Direction string
	// Return unread messages only.
	UnreadOnly bool
}
