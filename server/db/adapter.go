// Package adapter contains the interface to be implemented by the database adapter.
package adapter

import (
	"encoding/json"

	t "github.com/teamchat/inbox/server/store/types"
)

// Adapter is the interface that must be implemented by a database adapter.
// The current schema supports a single connection by database type.
type Adapter interface {
	// General

	// Open and configure the adapter.
	Open(config json.RawMessage) error
	// Close the adapter.
	Close() error
	// IsOpen checks if the adapter is ready for use.
	IsOpen() bool
	// GetName returns the name of the adapter.
	GetName() string
	// SetMaxResults configures how many results can be returned in a single DB call.
	SetMaxResults(val int) error
	// CreateDb creates the database optionally dropping an existing database first.
	CreateDb(reset bool) error
	// Version returns adapter version.
	Version() int
	// Stats returns a DB connection stats object.
	Stats() interface{}

	// User management

	// UserCreate creates a user record.
	UserCreate(user *t.User) error
	// UserGet returns a record for the given user ID.
	UserGet(uid t.Uid) (*t.User, error)
	// UserDelete deletes a user record.
	UserDelete(uid t.Uid) error

	// Chatroom grants

	// GrantAdd gives the user access to the chatroom. Inserting an existing
	// grant is a no-op.
	GrantAdd(user, chatroom t.Uid) error
	// GrantDel revokes the user's access to the chatroom. Deleting an absent
	// grant is a no-op.
	GrantDel(user, chatroom t.Uid) error
	// GrantsGet returns ids of all chatrooms granted to the user.
	GrantsGet(user t.Uid) ([]t.Uid, error)

	// Chatroom management

	// ChatroomCreate creates a chatroom record binding its address.
	// Returns types.ErrDuplicate if the address is already bound.
	ChatroomCreate(room *t.Chatroom) error
	// ChatroomGet returns a record for the given chatroom ID.
	ChatroomGet(id t.Uid) (*t.Chatroom, error)
	// ChatroomGetByAddress returns the chatroom which owns the given bound address.
	ChatroomGetByAddress(address string) (*t.Chatroom, error)
	// ChatroomGetAll returns all chatroom records.
	ChatroomGetAll() ([]t.Chatroom, error)
	// ChatroomDelete deletes a chatroom together with its messages and grants.
	ChatroomDelete(id t.Uid) error

	// Messages

	// MessageSave persists a new message and advances the chatroom seq counter.
	MessageSave(msg *t.Message) error
	// MessageGetAll returns messages of a single chatroom ordered by
	// (createdat, seqid).
	MessageGetAll(chatroom t.Uid, opts *t.QueryOpt) ([]t.Message, error)
	// MessageMarkRead sets the read flag of a single message.
	MessageMarkRead(chatroom t.Uid, seq int) error
}
