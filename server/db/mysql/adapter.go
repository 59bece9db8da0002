// Package mysql is a database adapter for MySQL.
package mysql

import (
	"database/sql"
	"encoding/json"
	"errors"
	"strings"
	"time"

	ms "github.com/go-sql-driver/mysql"
	"github.com/jmoiron/sqlx"
	"github.com/teamchat/inbox/server/store"
	t "github.com/teamchat/inbox/server/store/types"
)

// adapter holds MySQL connection data.
type adapter struct {
	db     *sqlx.DB
	dsn    string
	dbName string
	// Maximum number of records to return.
	maxResults int
	version    int
}

const (
	defaultDSN      = "root:@tcp(localhost:3306)/inbox?parseTime=true&collation=utf8mb4_unicode_ci"
	defaultDatabase = "inbox"

	adpVersion  = 100
	adapterName = "mysql"

	defaultMaxResults = 1024
)

type configType struct {
	DSN    string `json:"dsn,omitempty"`
	DBName string `json:"database,omitempty"`

	// Connection pool settings.
	MaxOpenConns    int `json:"max_open_conns,omitempty"`
	MaxIdleConns    int `json:"max_idle_conns,omitempty"`
	ConnMaxLifetime int `json:"conn_max_lifetime,omitempty"`
}

// Open initializes the MySQL session.
func (a *adapter) Open(jsonconfig json.RawMessage) error {
	if a.db != nil {
		return errors.New("mysql adapter is already connected")
	}

	var err error
	var config configType

	if err = json.Unmarshal(jsonconfig, &config); err != nil {
		return errors.New("mysql adapter failed to parse config: " + err.Error())
	}

	a.dsn = config.DSN
	if a.dsn == "" {
		a.dsn = defaultDSN
	}

	a.dbName = config.DBName
	if a.dbName == "" {
		a.dbName = defaultDatabase
	}

	if a.maxResults <= 0 {
		a.maxResults = defaultMaxResults
	}

	a.db, err = sqlx.Open("mysql", a.dsn)
	if err != nil {
		return err
	}

	// sql.Open does not open the network connection.
	// Force network connection here. An unknown database is not fatal:
	// CreateDb connects without a default schema to create it.
	if err = a.db.Ping(); err != nil && !isMissingDb(err) {
		a.db.Close()
		a.db = nil
		return err
	}

	if config.MaxOpenConns > 0 {
		a.db.SetMaxOpenConns(config.MaxOpenConns)
	}
	if config.MaxIdleConns > 0 {
		a.db.SetMaxIdleConns(config.MaxIdleConns)
	}
	if config.ConnMaxLifetime > 0 {
		a.db.SetConnMaxLifetime(time.Duration(config.ConnMaxLifetime) * time.Second)
	}

	a.version = adpVersion

	return nil
}

// Close closes the underlying database connection.
func (a *adapter) Close() error {
	var err error
	if a.db != nil {
		err = a.db.Close()
		a.db = nil
	}
	return err
}

// IsOpen returns true if connection to database has been established.
// It does not check if the connection is actually live.
func (a *adapter) IsOpen() bool {
	return a.db != nil
}

// GetName returns string that adapter uses to register itself with store.
func (a *adapter) GetName() string {
	return adapterName
}

// SetMaxResults configures how many results can be returned in a single DB call.
func (a *adapter) SetMaxResults(val int) error {
	if val <= 0 {
		a.maxResults = defaultMaxResults
	} else {
		a.maxResults = val
	}
	return nil
}

// Version returns adapter version.
func (a *adapter) Version() int {
	return adpVersion
}

// Stats returns the DB connection pool stats.
func (a *adapter) Stats() interface{} {
	if a.db == nil {
		return nil
	}
	return a.db.Stats()
}

// CreateDb initializes the storage.
func (a *adapter) CreateDb(reset bool) error {
	var err error
	var tx *sql.Tx

	// Can't use an existing connection because it's bound to a database name
	// which may not exist yet.
	if a.db != nil {
		a.db.Close()
	}

	cfg, err := ms.ParseDSN(a.dsn)
	if err != nil {
		return err
	}
	cfg.DBName = ""

	a.db, err = sqlx.Open("mysql", cfg.FormatDSN())
	if err != nil {
		return err
	}

	defer func() {
		if err != nil && tx != nil {
			tx.Rollback()
		}
	}()

	if tx, err = a.db.Begin(); err != nil {
		return err
	}

	if reset {
		if _, err = tx.Exec("DROP DATABASE IF EXISTS " + a.dbName); err != nil {
			return err
		}
	}

	if _, err = tx.Exec("CREATE DATABASE " + a.dbName + " CHARACTER SET utf8mb4 COLLATE utf8mb4_unicode_ci"); err != nil {
		return err
	}

	if _, err = tx.Exec("USE " + a.dbName); err != nil {
		return err
	}

	if _, err = tx.Exec(
		`CREATE TABLE users(
			id        BIGINT NOT NULL,
			createdat DATETIME(3) NOT NULL,
			name      VARCHAR(64) NOT NULL,
			role      VARCHAR(8) NOT NULL,
			PRIMARY KEY(id)
		)`); err != nil {
		return err
	}

	if _, err = tx.Exec(
		`CREATE TABLE chatrooms(
			id        BIGINT NOT NULL,
			createdat DATETIME(3) NOT NULL,
			name      VARCHAR(255) NOT NULL,
			address   VARCHAR(32) NOT NULL,
			seqid     INT NOT NULL DEFAULT 0,
			PRIMARY KEY(id),
			UNIQUE INDEX chatrooms_address(address)
		)`); err != nil {
		return err
	}

	if _, err = tx.Exec(
		`CREATE TABLE grants(
			userid     BIGINT NOT NULL,
			chatroomid BIGINT NOT NULL,
			createdat  DATETIME(3) NOT NULL,
			PRIMARY KEY(userid, chatroomid),
			FOREIGN KEY(userid) REFERENCES users(id),
			FOREIGN KEY(chatroomid) REFERENCES chatrooms(id)
		)`); err != nil {
		return err
	}

	if _, err = tx.Exec(
		`CREATE TABLE messages(
			id        BIGINT NOT NULL,
			createdat DATETIME(3) NOT NULL,
			chatroom  BIGINT NOT NULL,
			seqid     INT NOT NULL,
			direction VARCHAR(8) NOT NULL,
			sender    VARCHAR(64) NOT NULL,
			recipient VARCHAR(64) NOT NULL,
			channel   VARCHAR(16) NOT NULL,
			body      TEXT NOT NULL,
			isread    TINYINT NOT NULL DEFAULT 0,
			PRIMARY KEY(id),
			FOREIGN KEY(chatroom) REFERENCES chatrooms(id),
			UNIQUE INDEX messages_chatroom_seqid(chatroom, seqid),
			INDEX messages_chatroom_createdat(chatroom, createdat)
		)`); err != nil {
		return err
	}

	if _, err = tx.Exec(
		`CREATE TABLE kvmeta(` +
			"`key` CHAR(32)," +
			"`value` TEXT," +
			"PRIMARY KEY(`key`)" +
			`)`); err != nil {
		return err
	}
	if _, err = tx.Exec("INSERT INTO kvmeta(`key`, `value`) VALUES('version', ?)", adpVersion); err != nil {
		return err
	}

	if err = tx.Commit(); err != nil {
		return err
	}

	// Reconnect with the full DSN so the pool uses the new database as its
	// default schema.
	a.db.Close()
	a.db, err = sqlx.Open("mysql", a.dsn)
	return err
}

// isDupe checks if the given error is the MySQL duplicate-entry error.
func isDupe(err error) bool {
	if err == nil {
		return false
	}

	var myerr *ms.MySQLError
	return errors.As(err, &myerr) && myerr.Number == 1062
}

// isMissingDb checks if the given error is the MySQL unknown-database error.
func isMissingDb(err error) bool {
	if err == nil {
		return false
	}

	var myerr *ms.MySQLError
	return errors.As(err, &myerr) && myerr.Number == 1049
}

// Rows as stored; ids are signed and XTEA-decoded, see store.DecodeUid.

type userRow struct {
	Id        int64     `db:"id"`
	CreatedAt time.Time `db:"createdat"`
	Name      string    `db:"name"`
	Role      string    `db:"role"`
}

type chatroomRow struct {
	Id        int64     `db:"id"`
	CreatedAt time.Time `db:"createdat"`
	Name      string    `db:"name"`
	Address   string    `db:"address"`
	SeqId     int       `db:"seqid"`
}

type messageRow struct {
	Id        int64     `db:"id"`
	CreatedAt time.Time `db:"createdat"`
	Chatroom  int64     `db:"chatroom"`
	SeqId     int       `db:"seqid"`
	Direction string    `db:"direction"`
	Sender    string    `db:"sender"`
	Recipient string    `db:"recipient"`
	Channel   string    `db:"channel"`
	Body      string    `db:"body"`
	IsRead    bool      `db:"isread"`
}

func (r *chatroomRow) chatroom() *t.Chatroom {
	return &t.Chatroom{
		Id:        store.EncodeUid(r.Id),
		CreatedAt: r.CreatedAt.UTC(),
		Name:      r.Name,
		Address:   r.Address,
		SeqId:     r.SeqId,
	}
}

func (r *messageRow) message() t.Message {
	return t.Message{
		Id:        store.EncodeUid(r.Id),
		CreatedAt: r.CreatedAt.UTC(),
		Chatroom:  store.EncodeUid(r.Chatroom),
		SeqId:     r.SeqId,
		Direction: r.Direction,
		From:      r.Sender,
		To:        r.Recipient,
		Channel:   r.Channel,
		Body:      r.Body,
		Read:      r.IsRead,
	}
}

// UserCreate creates a new user record.
func (a *adapter) UserCreate(user *t.User) error {
	_, err := a.db.Exec("INSERT INTO users(id,createdat,name,role) VALUES(?,?,?,?)",
		store.DecodeUid(user.Id), user.CreatedAt, user.Name, user.Role)
	if isDupe(err) {
		return t.ErrDuplicate
	}
	return err
}

// UserGet fetches a single user by user id. If the user is missing it
// returns (nil, nil).
func (a *adapter) UserGet(uid t.Uid) (*t.User, error) {
	var row userRow
	err := a.db.Get(&row, "SELECT id,createdat,name,role FROM users WHERE id=?", store.DecodeUid(uid))
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	return &t.User{
		Id:        store.EncodeUid(row.Id),
		CreatedAt: row.CreatedAt.UTC(),
		Name:      row.Name,
		Role:      row.Role,
	}, nil
}

// UserDelete deletes a user record together with the user's grants.
func (a *adapter) UserDelete(uid t.Uid) error {
	tx, err := a.db.Begin()
	if err != nil {
		return err
	}
	defer func() {
		if err != nil {
			tx.Rollback()
		}
	}()

	decoded := store.DecodeUid(uid)
	if _, err = tx.Exec("DELETE FROM grants WHERE userid=?", decoded); err != nil {
		return err
	}
	if _, err = tx.Exec("DELETE FROM users WHERE id=?", decoded); err != nil {
		return err
	}

	return tx.Commit()
}

// GrantAdd gives the user access to the chatroom. Re-adding an existing
// grant is a no-op.
func (a *adapter) GrantAdd(user, chatroom t.Uid) error {
	_, err := a.db.Exec("INSERT INTO grants(userid,chatroomid,createdat) VALUES(?,?,?)",
		store.DecodeUid(user), store.DecodeUid(chatroom), t.TimeNow())
	if isDupe(err) {
		// Grant already present.
		return nil
	}
	return err
}

// GrantDel revokes the user's access to the chatroom. Removing an absent
// grant is a no-op.
func (a *adapter) GrantDel(user, chatroom t.Uid) error {
	_, err := a.db.Exec("DELETE FROM grants WHERE userid=? AND chatroomid=?",
		store.DecodeUid(user), store.DecodeUid(chatroom))
	return err
}

// GrantsGet returns ids of all chatrooms granted to the user.
func (a *adapter) GrantsGet(user t.Uid) ([]t.Uid, error) {
	rows, err := a.db.Queryx("SELECT chatroomid FROM grants WHERE userid=?", store.DecodeUid(user))
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var grants []t.Uid
	for rows.Next() {
		var id int64
		if err = rows.Scan(&id); err != nil {
			return nil, err
		}
		grants = append(grants, store.EncodeUid(id))
	}

	return grants, rows.Err()
}

// ChatroomCreate creates a chatroom record binding its address.
func (a *adapter) ChatroomCreate(room *t.Chatroom) error {
	_, err := a.db.Exec("INSERT INTO chatrooms(id,createdat,name,address,seqid) VALUES(?,?,?,?,0)",
		store.DecodeUid(room.Id), room.CreatedAt, room.Name, room.Address)
	if isDupe(err) {
		return t.ErrDuplicate
	}
	return err
}

// ChatroomGet fetches a single chatroom by id.
func (a *adapter) ChatroomGet(id t.Uid) (*t.Chatroom, error) {
	var row chatroomRow
	err := a.db.Get(&row, "SELECT id,createdat,name,address,seqid FROM chatrooms WHERE id=?",
		store.DecodeUid(id))
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	return row.chatroom(), nil
}

// ChatroomGetByAddress fetches the chatroom which owns the bound address.
// Exact match only.
func (a *adapter) ChatroomGetByAddress(address string) (*t.Chatroom, error) {
	var row chatroomRow
	err := a.db.Get(&row, "SELECT id,createdat,name,address,seqid FROM chatrooms WHERE address=?", address)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	return row.chatroom(), nil
}

// ChatroomGetAll returns all chatroom records.
func (a *adapter) ChatroomGetAll() ([]t.Chatroom, error) {
	rows, err := a.db.Queryx("SELECT id,createdat,name,address,seqid FROM chatrooms ORDER BY createdat")
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var rooms []t.Chatroom
	for rows.Next() {
		var row chatroomRow
		if err = rows.StructScan(&row); err != nil {
			return nil, err
		}
		rooms = append(rooms, *row.chatroom())
	}

	return rooms, rows.Err()
}

// ChatroomDelete deletes a chatroom together with its messages and grants.
func (a *adapter) ChatroomDelete(id t.Uid) error {
	tx, err := a.db.Begin()
	if err != nil {
		return err
	}
	defer func() {
		if err != nil {
			tx.Rollback()
		}
	}()

	decoded := store.DecodeUid(id)
	if _, err = tx.Exec("DELETE FROM messages WHERE chatroom=?", decoded); err != nil {
		return err
	}
	if _, err = tx.Exec("DELETE FROM grants WHERE chatroomid=?", decoded); err != nil {
		return err
	}
	var res sql.Result
	if res, err = tx.Exec("DELETE FROM chatrooms WHERE id=?", decoded); err != nil {
		return err
	}
	if count, _ := res.RowsAffected(); count == 0 {
		err = t.ErrNotFound
		return err
	}

	return tx.Commit()
}

// MessageSave persists a message and advances the chatroom's seq counter in
// a single transaction.
func (a *adapter) MessageSave(msg *t.Message) error {
	tx, err := a.db.Begin()
	if err != nil {
		return err
	}
	defer func() {
		if err != nil {
			tx.Rollback()
		}
	}()

	room := store.DecodeUid(msg.Chatroom)
	if _, err = tx.Exec(
		"INSERT INTO messages(id,createdat,chatroom,seqid,direction,sender,recipient,channel,body,isread)"+
			" VALUES(?,?,?,?,?,?,?,?,?,?)",
		store.DecodeUid(msg.Id), msg.CreatedAt, room, msg.SeqId, msg.Direction,
		msg.From, msg.To, msg.Channel, msg.Body, msg.Read); err != nil {
		if isDupe(err) {
			err = t.ErrDuplicate
		}
		return err
	}

	if _, err = tx.Exec("UPDATE chatrooms SET seqid=? WHERE id=? AND seqid<?",
		msg.SeqId, room, msg.SeqId); err != nil {
		return err
	}

	return tx.Commit()
}

// MessageGetAll returns messages of a single chatroom ordered by creation
// timestamp with seqid as the tie-break.
func (a *adapter) MessageGetAll(chatroom t.Uid, opts *t.QueryOpt) ([]t.Message, error) {
	limit := a.maxResults
	var lower = 0
	var upper = 1 << 31

	order := "DESC"
	var filters []string
	args := []interface{}{store.DecodeUid(chatroom)}

	if opts != nil {
		if opts.Since > 0 {
			lower = opts.Since
		}
		if opts.Before > 0 {
			// MySQL BETWEEN is inclusive-inclusive while the API is
			// inclusive-exclusive, thus -1.
			upper = opts.Before - 1
		}
		if opts.Limit > 0 && opts.Limit < limit {
			limit = opts.Limit
		}
		if opts.Ascending {
			order = "ASC"
		}
		if opts.Direction != "" {
			filters = append(filters, "direction=?")
		}
		if opts.UnreadOnly {
			filters = append(filters, "isread=0")
		}
	}

	args = append(args, lower, upper)
	if opts != nil && opts.Direction != "" {
		args = append(args, opts.Direction)
	}
	args = append(args, limit)

	query := "SELECT id,createdat,chatroom,seqid,direction,sender,recipient,channel,body,isread" +
		" FROM messages WHERE chatroom=? AND seqid BETWEEN ? AND ?"
	if len(filters) > 0 {
		query += " AND " + strings.Join(filters, " AND ")
	}
	query += " ORDER BY createdat " + order + ", seqid " + order + " LIMIT ?"

	rows, err := a.db.Queryx(query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var msgs []t.Message
	for rows.Next() {
		var row messageRow
		if err = rows.StructScan(&row); err != nil {
			return nil, err
		}
		msgs = append(msgs, row.message())
	}

	return msgs, rows.Err()
}

// MessageMarkRead sets the read flag of a single message.
func (a *adapter) MessageMarkRead(chatroom t.Uid, seq int) error {
	res, err := a.db.Exec("UPDATE messages SET isread=1 WHERE chatroom=? AND seqid=?",
		store.DecodeUid(chatroom), seq)
	if err != nil {
		return err
	}
	if count, _ := res.RowsAffected(); count == 0 {
		return t.ErrNotFound
	}
	return nil
}

func init() {
	store.RegisterAdapter(&adapter{})
}
