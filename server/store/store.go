// Package store provides methods for registering and accessing database adapters.
package store

import (
	"encoding/json"
	"errors"

	adapter "github.com/teamchat/inbox/server/db"
	"github.com/teamchat/inbox/server/store/types"
)

var adp adapter.Adapter
var availableAdapters = make(map[string]adapter.Adapter)

// Unique ID generator.
var uGen types.UidGenerator

type configType struct {
	// 16-byte key for XTEA. Used to initialize types.UidGenerator.
	UidKey []byte `json:"uid_key"`
	// Maximum number of results to return from adapter.
	MaxResults int `json:"max_results"`
	// DB adapter name to use. Should be one of those specified in `Adapters`.
	UseAdapter string `json:"use_adapter"`
	// Configurations for individual adapters.
	Adapters map[string]json.RawMessage `json:"adapters"`
}

func openAdapter(workerId int, jsonconf json.RawMessage) error {
	var config configType
	if err := json.Unmarshal(jsonconf, &config); err != nil {
		return errors.New("store: failed to parse config: " + err.Error() + "(" + string(jsonconf) + ")")
	}

	if adp == nil {
		if len(config.UseAdapter) > 0 {
			// Adapter name specified explicitly.
			if ad, ok := availableAdapters[config.UseAdapter]; ok {
				adp = ad
			} else {
				return errors.New("store: " + config.UseAdapter + " adapter is not available in this binary")
			}
		} else if len(availableAdapters) == 1 {
			// Default to the only entry in availableAdapters.
			for _, v := range availableAdapters {
				adp = v
			}
		} else {
			return errors.New("store: db adapter is not specified. Please set `store_config.use_adapter` in the config file")
		}
	}

	if adp.IsOpen() {
		return errors.New("store: connection is already opened")
	}

	if workerId < 0 || workerId > 1023 {
		return errors.New("store: invalid worker ID")
	}

	if err := uGen.Init(uint(workerId), config.UidKey); err != nil {
		return errors.New("store: failed to init snowflake: " + err.Error())
	}

	if err := adp.SetMaxResults(config.MaxResults); err != nil {
		return err
	}

	var adapterConfig json.RawMessage
	if config.Adapters != nil {
		adapterConfig = config.Adapters[adp.GetName()]
	}

	return adp.Open(adapterConfig)
}

// PersistentStorageInterface defines methods used for interaction with persistent storage.
type PersistentStorageInterface interface {
	Open(workerId int, jsonconf json.RawMessage) error
	Close() error
	IsOpen() bool
	GetAdapterName() string
	GetAdapterVersion() int
	InitDb(jsonconf json.RawMessage, reset bool) error
	GetUid() types.Uid
	GetUidString() string
	DbStats() func() interface{}
}

// Store is the main object for interacting with persistent storage.
var Store PersistentStorageInterface = storeObj{}

type storeObj struct{}

// Open initializes the persistence system. Adapter holds a connection pool
// for a database instance.
//
//	workerId - the id of this process to initialize snowflake
//	jsonconf - configuration string
func (storeObj) Open(workerId int, jsonconf json.RawMessage) error {
	return openAdapter(workerId, jsonconf)
}

// Close terminates connection to persistent storage.
func (storeObj) Close() error {
	if adp.IsOpen() {
		return adp.Close()
	}

	return nil
}

// IsOpen checks if persistent storage connection has been initialized.
func (storeObj) IsOpen() bool {
	if adp != nil {
		return adp.IsOpen()
	}

	return false
}

// GetAdapterName returns the name of the current adapter.
func (storeObj) GetAdapterName() string {
	if adp != nil {
		return adp.GetName()
	}

	return ""
}

// GetAdapterVersion returns version of the current adapter.
func (storeObj) GetAdapterVersion() int {
	if adp != nil {
		return adp.Version()
	}

	return -1
}

// InitDb creates the database schema. If 'reset' is true it will first
// attempt to drop an existing database. If jsonconf is nil it will assume
// that the adapter is already open.
func (s storeObj) InitDb(jsonconf json.RawMessage, reset bool) error {
	if !s.IsOpen() {
		if err := openAdapter(1, jsonconf); err != nil {
			return err
		}
	}
	return adp.CreateDb(reset)
}

// GetUid generates a unique ID suitable for use as a primary key.
func (storeObj) GetUid() types.Uid {
	return uGen.Get()
}

// GetUidString generates a unique ID in base64 string form.
func (storeObj) GetUidString() string {
	return uGen.GetStr()
}

// DbStats returns a callback returning db connection stats object.
func (s storeObj) DbStats() func() interface{} {
	if !s.IsOpen() {
		return nil
	}
	return func() interface{} {
		return adp.Stats()
	}
}

// DecodeUid converts a Uid to a signed int64 as stored in an SQL database.
// For use by adapters only.
func DecodeUid(uid types.Uid) int64 {
	if uid.IsZero() {
		return 0
	}
	return uGen.DecodeUid(uid)
}

// EncodeUid restores a Uid from its signed int64 SQL form.
// For use by adapters only.
func EncodeUid(id int64) types.Uid {
	if id == 0 {
		return types.ZeroUid
	}
	return uGen.EncodeInt64(id)
}

// RegisterAdapter makes a persistence adapter available.
// If Register is called twice or if the adapter is nil, it panics.
func RegisterAdapter(a adapter.Adapter) {
	if a == nil {
		panic("store: register adapter is nil")
	}

	adapterName := a.GetName()
	if _, ok := availableAdapters[adapterName]; ok {
		panic("store: adapter '" + adapterName + "' is already registered")
	}
	availableAdapters[adapterName] = a
}

// UsersPersistenceInterface is an interface which defines methods for
// persistent storage of user records and chatroom grants.
type UsersPersistenceInterface interface {
	Create(user *types.User) (*types.User, error)
	Get(uid types.Uid) (*types.User, error)
	Delete(uid types.Uid) error
	GrantAdd(user, chatroom types.Uid) error
	GrantDel(user, chatroom types.Uid) error
	GrantsGet(user types.Uid) ([]types.Uid, error)
}

// Users is the anchor for storing/retrieving User objects.
var Users UsersPersistenceInterface = usersMapper{}

type usersMapper struct{}

// Create inserts a new user record assigning it a unique id.
func (usersMapper) Create(user *types.User) (*types.User, error) {
	if user.Role != types.RoleAdmin && user.Role != types.RoleAgent {
		return nil, types.ErrMalformed
	}

	user.Id = Store.GetUid()
	user.CreatedAt = types.TimeNow()

	if err := adp.UserCreate(user); err != nil {
		return nil, err
	}

	return user, nil
}

// Get loads a user record by id.
func (usersMapper) Get(uid types.Uid) (*types.User, error) {
	return adp.UserGet(uid)
}

// Delete removes a user record together with the user's grants.
func (usersMapper) Delete(uid types.Uid) error {
	return adp.UserDelete(uid)
}

// GrantAdd gives the user access to the chatroom.
func (usersMapper) GrantAdd(user, chatroom types.Uid) error {
	return adp.GrantAdd(user, chatroom)
}

// GrantDel revokes the user's access to the chatroom.
func (usersMapper) GrantDel(user, chatroom types.Uid) error {
	return adp.GrantDel(user, chatroom)
}

// GrantsGet returns ids of all chatrooms the user has explicit access to.
func (usersMapper) GrantsGet(user types.Uid) ([]types.Uid, error) {
	return adp.GrantsGet(user)
}

// ChatroomsPersistenceInterface is an interface which defines methods for
// persistent storage of chatrooms.
type ChatroomsPersistenceInterface interface {
	Create(room *types.Chatroom) (*types.Chatroom, error)
	Get(id types.Uid) (*types.Chatroom, error)
	GetByAddress(address string) (*types.Chatroom, error)
	GetAll() ([]types.Chatroom, error)
	Delete(id types.Uid) error
}

// Chatrooms is the anchor for storing/retrieving Chatroom objects.
var Chatrooms ChatroomsPersistenceInterface = chatroomsMapper{}

type chatroomsMapper struct{}

// Create inserts a new chatroom binding its address. The bound address must
// be unique; a second bind fails with types.ErrDuplicate.
func (chatroomsMapper) Create(room *types.Chatroom) (*types.Chatroom, error) {
	if room.Address == "" || room.Name == "" {
		return nil, types.ErrMalformed
	}

	room.Id = Store.GetUid()
	room.CreatedAt = types.TimeNow()
	room.SeqId = 0

	if err := adp.ChatroomCreate(room); err != nil {
		return nil, err
	}

	return room, nil
}

// Get loads a chatroom record by id.
func (chatroomsMapper) Get(id types.Uid) (*types.Chatroom, error) {
	return adp.ChatroomGet(id)
}

// GetByAddress loads the chatroom which owns the given bound address.
// The lookup is exact-match against the unique address index.
func (chatroomsMapper) GetByAddress(address string) (*types.Chatroom, error) {
	return adp.ChatroomGetByAddress(address)
}

// GetAll returns all chatrooms.
func (chatroomsMapper) GetAll() ([]types.Chatroom, error) {
	return adp.ChatroomGetAll()
}

// Delete removes a chatroom together with its messages and grants.
func (chatroomsMapper) Delete(id types.Uid) error {
	return adp.ChatroomDelete(id)
}

// MessagesPersistenceInterface is an interface which defines methods for
// persistent storage of messages.
type MessagesPersistenceInterface interface {
	Save(msg *types.Message) (*types.Message, error)
	GetAll(chatroom types.Uid, opts *types.QueryOpt) ([]types.Message, error)
	MarkRead(chatroom types.Uid, seq int) error
}

// Messages is the anchor for storing/retrieving Message objects.
var Messages MessagesPersistenceInterface = messagesMapper{}

type messagesMapper struct{}

// Save appends a message to its chatroom. Id and CreatedAt are assigned
// here; SeqId must have been assigned by the chatroom's serializer before
// the call.
func (messagesMapper) Save(msg *types.Message) (*types.Message, error) {
	if msg.Chatroom.IsZero() || msg.SeqId <= 0 {
		return nil, types.ErrMalformed
	}

	msg.Id = Store.GetUid()
	if msg.CreatedAt.IsZero() {
		msg.CreatedAt = types.TimeNow()
	}

	if err := adp.MessageSave(msg); err != nil {
		return nil, err
	}

	return msg, nil
}

// GetAll loads messages of a single chatroom ordered by (createdat, seqid).
func (messagesMapper) GetAll(chatroom types.Uid, opts *types.QueryOpt) ([]types.Message, error) {
	return adp.MessageGetAll(chatroom, opts)
}

// MarkRead sets the read flag of a single message. This is the only
// permitted mutation of a persisted message.
func (messagesMapper) MarkRead(chatroom types.Uid, seq int) error {
	return adp.MessageMarkRead(chatroom, seq)
}
