package main

import (
	"encoding/json"
	"fmt"
	"os"
	"sync"
	"testing"
	"time"

	"github.com/golang/mock/gomock"
	"github.com/google/go-cmp/cmp"
	"github.com/teamchat/inbox/server/auth"
	"github.com/teamchat/inbox/server/logs"
	"github.com/teamchat/inbox/server/store"
	"github.com/teamchat/inbox/server/store/mock_store"
	"github.com/teamchat/inbox/server/store/types"
)

type Responses struct {
	messages []interface{}
}

func TestMain(m *testing.M) {
	logs.Init()
	if err := auth.TokenInit([]byte("0123456789abcdef0123456789abcdef"), time.Hour); err != nil {
		logs.Err.Fatal(err)
	}
	os.Exit(m.Run())
}

func (s *Session) testWriteLoop(results *Responses, wg *sync.WaitGroup) {
	for msg := range s.send {
		results.messages = append(results.messages, msg)
	}
	wg.Done()
}

// Sessions serialize outbound packets, decode them back for assertions.
func decodeResponse(t *testing.T, msg interface{}) *ServerComMessage {
	t.Helper()
	raw, ok := msg.([]byte)
	if !ok {
		t.Fatalf("Expected a serialized message, got %T", msg)
	}
	var resp ServerComMessage
	if err := json.Unmarshal(raw, &resp); err != nil {
		t.Fatal("Failed to parse response:", err)
	}
	return &resp
}

func makeTestSessions(n int, firstUid types.Uid) ([]*Session, []*Responses, *sync.WaitGroup) {
	ss := make([]*Session, n)
	messages := make([]*Responses, n)
	wg := &sync.WaitGroup{}
	for i := range ss {
		ss[i] = &Session{
			sid:    fmt.Sprintf("sid%d", i),
			uid:    firstUid + types.Uid(i),
			send:   make(chan interface{}, 16),
			detach: make(chan string, 16),
			subs:   make(map[string]*Subscription),
		}
		messages[i] = &Responses{}
		wg.Add(1)
		go ss[i].testWriteLoop(messages[i], wg)
	}
	return ss, messages, wg
}

// Policy cache preloaded so access checks don't touch the store.
func testPolicy(grants map[types.Uid][]types.Uid, admins ...types.Uid) *AccessPolicy {
	p := NewAccessPolicy()
	for user, rooms := range grants {
		gs := &grantSet{rooms: make(map[types.Uid]struct{})}
		for _, room := range rooms {
			gs.rooms[room] = struct{}{}
		}
		p.perUser[user] = gs
	}
	for _, user := range admins {
		p.perUser[user] = &grantSet{unrestricted: true}
	}
	return p
}

func TestHandleDeliveryInbound(t *testing.T) {
	roomId := types.Uid(100)
	uid1 := types.Uid(1)
	uid2 := types.Uid(2)

	ctrl := gomock.NewController(t)
	mm := mock_store.NewMockMessagesPersistenceInterface(ctrl)
	store.Messages = mm
	defer func() {
		store.Messages = nil
		ctrl.Finish()
	}()

	mm.EXPECT().Save(gomock.Any()).DoAndReturn(func(msg *types.Message) (*types.Message, error) {
		saved := *msg
		saved.Id = types.Uid(5000)
		return &saved, nil
	})

	globals.policy = testPolicy(map[types.Uid][]types.Uid{uid1: {roomId}}, uid2)
	defer func() { globals.policy = nil }()

	ss, messages, wg := makeTestSessions(2, uid1)

	r := &Room{
		name:     roomId.String(),
		uid:      roomId,
		address:  "+15550001111",
		seq:      7,
		sessions: map[*Session]struct{}{ss[0]: {}, ss[1]: {}},
	}

	done := make(chan error, 1)
	req := &deliverReq{
		rcptTo:    r.name,
		original:  r.name,
		direction: types.DirInbound,
		from:      "+15550002222",
		to:        "+15550001111",
		channel:   "sms",
		body:      "hello",
		timestamp: types.TimeNow(),
		done:      done,
	}
	r.handleDelivery(req)

	for _, s := range ss {
		close(s.send)
	}
	wg.Wait()

	select {
	case err := <-done:
		if err != nil {
			t.Fatal("Expected delivery to be acknowledged, got", err)
		}
	default:
		t.Fatal("Delivery was not acknowledged")
	}

	if r.seq != 8 {
		t.Errorf("Room seq: expected 8, got %d", r.seq)
	}
	if r.peer != "+15550002222" {
		t.Errorf("Room peer: expected sender address, got '%s'", r.peer)
	}

	for i, m := range messages {
		if len(m.messages) != 1 {
			t.Fatalf("Session %d: expected 1 message, got %d", i, len(m.messages))
		}
		resp := decodeResponse(t, m.messages[0])
		if resp.Data == nil {
			t.Fatalf("Session %d: expected {data}, got %+v", i, resp)
		}
		if resp.Data.SeqId != 8 {
			t.Errorf("Session %d: expected seq 8, got %d", i, resp.Data.SeqId)
		}
		if resp.Data.Body != "hello" {
			t.Errorf("Session %d: expected body 'hello', got '%s'", i, resp.Data.Body)
		}
		if resp.Data.Direction != types.DirInbound {
			t.Errorf("Session %d: wrong direction '%s'", i, resp.Data.Direction)
		}
	}
}

func TestHandleDeliveryOutboundNoDestination(t *testing.T) {
	roomId := types.Uid(100)

	ctrl := gomock.NewController(t)
	mm := mock_store.NewMockMessagesPersistenceInterface(ctrl)
	store.Messages = mm
	defer func() {
		store.Messages = nil
		ctrl.Finish()
	}()
	// No Save expected: the request is rejected before persistence.

	r := &Room{
		name:     roomId.String(),
		uid:      roomId,
		address:  "+15550001111",
		sessions: map[*Session]struct{}{},
	}

	done := make(chan error, 1)
	r.handleDelivery(&deliverReq{
		rcptTo:    r.name,
		original:  r.name,
		direction: types.DirOutbound,
		channel:   "sms",
		body:      "hello",
		timestamp: types.TimeNow(),
		done:      done,
	})

	select {
	case err := <-done:
		if err != types.ErrMalformed {
			t.Fatal("Expected ErrMalformed, got", err)
		}
	default:
		t.Fatal("Rejection was not reported")
	}
}

func TestHandleDeliveryRevokedSender(t *testing.T) {
	roomId := types.Uid(100)
	uid1 := types.Uid(1)

	ctrl := gomock.NewController(t)
	mm := mock_store.NewMockMessagesPersistenceInterface(ctrl)
	store.Messages = mm
	defer func() {
		store.Messages = nil
		ctrl.Finish()
	}()
	// No Save expected: the sender lost access, nothing may be persisted.

	// The session subscribed earlier; the grant is gone now.
	globals.policy = testPolicy(map[types.Uid][]types.Uid{uid1: {}})
	defer func() { globals.policy = nil }()

	ss, messages, wg := makeTestSessions(1, uid1)
	ss[0].addSub(roomId.String(), &Subscription{})

	r := &Room{
		name:     roomId.String(),
		uid:      roomId,
		address:  "+15550001111",
		peer:     "+15550002222",
		seq:      7,
		sessions: map[*Session]struct{}{ss[0]: {}},
	}

	r.handleDelivery(&deliverReq{
		rcptTo:    r.name,
		original:  r.name,
		direction: types.DirOutbound,
		channel:   "sms",
		body:      "hello",
		timestamp: types.TimeNow(),
		sess:      ss[0],
		pktId:     "123",
	})

	close(ss[0].send)
	wg.Wait()

	if r.seq != 7 {
		t.Errorf("Room seq advanced to %d for a forbidden message", r.seq)
	}
	if len(messages[0].messages) != 1 {
		t.Fatalf("Expected 1 response, got %d", len(messages[0].messages))
	}
	resp := decodeResponse(t, messages[0].messages[0])
	if resp.Ctrl == nil || resp.Ctrl.Code != 403 {
		t.Fatalf("Expected ctrl 403, got %+v", resp)
	}
}

func TestHandleDeliveryOutboundSkipsOriginator(t *testing.T) {
	roomId := types.Uid(100)
	uid1 := types.Uid(1)
	uid2 := types.Uid(2)

	ctrl := gomock.NewController(t)
	mm := mock_store.NewMockMessagesPersistenceInterface(ctrl)
	store.Messages = mm
	defer func() {
		store.Messages = nil
		ctrl.Finish()
	}()

	mm.EXPECT().Save(gomock.Any()).DoAndReturn(func(msg *types.Message) (*types.Message, error) {
		saved := *msg
		saved.Id = types.Uid(5000)
		return &saved, nil
	})

	globals.policy = testPolicy(map[types.Uid][]types.Uid{
		uid1: {roomId},
		uid2: {roomId},
	})
	defer func() { globals.policy = nil }()

	ss, messages, wg := makeTestSessions(2, uid1)

	r := &Room{
		name:     roomId.String(),
		uid:      roomId,
		address:  "+15550001111",
		peer:     "+15550002222",
		seq:      7,
		sessions: map[*Session]struct{}{ss[0]: {}, ss[1]: {}},
	}

	r.handleDelivery(&deliverReq{
		rcptTo:    r.name,
		original:  r.name,
		direction: types.DirOutbound,
		channel:   "sms",
		body:      "hello",
		timestamp: types.TimeNow(),
		sess:      ss[0],
		pktId:     "123",
	})

	for _, s := range ss {
		close(s.send)
	}
	wg.Wait()

	// The originator gets the {ctrl} ack only, no echo of its own message.
	if len(messages[0].messages) != 1 {
		t.Fatalf("Originator: expected 1 packet, got %d", len(messages[0].messages))
	}
	resp := decodeResponse(t, messages[0].messages[0])
	if resp.Ctrl == nil || resp.Ctrl.Code != 202 {
		t.Fatalf("Originator: expected ctrl 202, got %+v", resp)
	}

	// The other subscriber gets the {data}.
	if len(messages[1].messages) != 1 {
		t.Fatalf("Subscriber: expected 1 packet, got %d", len(messages[1].messages))
	}
	resp = decodeResponse(t, messages[1].messages[0])
	if resp.Data == nil || resp.Data.SeqId != 8 {
		t.Fatalf("Subscriber: expected {data} with seq 8, got %+v", resp)
	}
}

func TestFanoutSkipsRevokedSession(t *testing.T) {
	roomId := types.Uid(100)
	uid1 := types.Uid(1)
	uid2 := types.Uid(2)

	// uid1 holds a grant, uid2 does not.
	globals.policy = testPolicy(map[types.Uid][]types.Uid{
		uid1: {roomId},
		uid2: {},
	})
	defer func() { globals.policy = nil }()

	ss, messages, wg := makeTestSessions(2, uid1)
	for _, s := range ss {
		s.addSub(roomId.String(), &Subscription{})
	}

	r := &Room{
		name:     roomId.String(),
		uid:      roomId,
		sessions: map[*Session]struct{}{ss[0]: {}, ss[1]: {}},
	}

	now := types.TimeNow()
	r.fanout(&ServerComMessage{Data: &MsgServerData{
		Chatroom:  r.name,
		SeqId:     1,
		Body:      "hello",
		Timestamp: now,
	}, RcptTo: r.name, Timestamp: now})

	for _, s := range ss {
		close(s.send)
	}
	wg.Wait()

	if len(r.sessions) != 1 {
		t.Fatalf("Expected 1 remaining session, got %d", len(r.sessions))
	}
	if _, attached := r.sessions[ss[0]]; !attached {
		t.Fatal("Authorized session was detached")
	}

	if len(messages[0].messages) != 1 {
		t.Fatalf("Authorized session: expected 1 message, got %d", len(messages[0].messages))
	}
	if resp := decodeResponse(t, messages[0].messages[0]); resp.Data == nil {
		t.Fatalf("Authorized session: expected {data}, got %+v", resp)
	}

	// The revoked session gets an eviction notice instead of the message.
	if len(messages[1].messages) != 1 {
		t.Fatalf("Revoked session: expected 1 message, got %d", len(messages[1].messages))
	}
	resp := decodeResponse(t, messages[1].messages[0])
	if resp.Ctrl == nil || resp.Ctrl.Code != 205 {
		t.Fatalf("Revoked session: expected ctrl 205, got %+v", resp)
	}
	if ss[1].getSub(roomId.String()) != nil {
		t.Fatal("Revoked session still subscribed")
	}
}

func TestHandleJoinForbidden(t *testing.T) {
	roomId := types.Uid(100)
	uid1 := types.Uid(1)

	globals.policy = testPolicy(map[types.Uid][]types.Uid{uid1: {}})
	defer func() { globals.policy = nil }()

	ss, messages, wg := makeTestSessions(1, uid1)

	r := &Room{
		name:     roomId.String(),
		uid:      roomId,
		sessions: map[*Session]struct{}{},
		unreg:    make(chan *sessionLeave, 16),
		meta:     make(chan *metaReq, 16),
	}

	r.handleJoin(&sessionJoin{
		chatroom: r.name,
		pkt: &ClientComMessage{
			Id:        "123",
			Original:  r.name,
			RcptTo:    r.name,
			Timestamp: types.TimeNow(),
			Sub:       &MsgClientSub{Id: "123", Chatroom: r.name},
		},
		sess: ss[0],
	})

	close(ss[0].send)
	wg.Wait()

	if len(r.sessions) != 0 {
		t.Fatal("Forbidden session was attached")
	}
	if len(messages[0].messages) != 1 {
		t.Fatalf("Expected 1 response, got %d", len(messages[0].messages))
	}
	resp := decodeResponse(t, messages[0].messages[0])
	if resp.Ctrl == nil || resp.Ctrl.Code != 403 {
		t.Fatalf("Expected ctrl 403, got %+v", resp)
	}
}

func TestHandleJoinSendsDesc(t *testing.T) {
	roomId := types.Uid(100)
	uid1 := types.Uid(1)

	globals.policy = testPolicy(map[types.Uid][]types.Uid{uid1: {roomId}})
	defer func() { globals.policy = nil }()

	ss, messages, wg := makeTestSessions(1, uid1)

	now := types.TimeNow()
	r := &Room{
		name:     roomId.String(),
		uid:      roomId,
		roomName: "Support",
		address:  "+15550001111",
		seq:      7,
		created:  now,
		sessions: map[*Session]struct{}{},
		unreg:    make(chan *sessionLeave, 16),
		meta:     make(chan *metaReq, 16),
	}

	r.handleJoin(&sessionJoin{
		chatroom: r.name,
		pkt: &ClientComMessage{
			Id:        "123",
			Original:  r.name,
			RcptTo:    r.name,
			Timestamp: now,
			Sub:       &MsgClientSub{Id: "123", Chatroom: r.name},
		},
		sess: ss[0],
	})

	close(ss[0].send)
	wg.Wait()

	if len(r.sessions) != 1 {
		t.Fatal("Session was not attached")
	}
	if len(messages[0].messages) != 2 {
		t.Fatalf("Expected ctrl + meta, got %d packets", len(messages[0].messages))
	}
	ack := decodeResponse(t, messages[0].messages[0])
	if ack.Ctrl == nil || ack.Ctrl.Code != 200 {
		t.Fatalf("Expected ctrl 200, got %+v", ack)
	}
	meta := decodeResponse(t, messages[0].messages[1])
	if meta.Meta == nil || meta.Meta.Desc == nil {
		t.Fatalf("Expected {meta} with description, got %+v", meta)
	}
	desc := meta.Meta.Desc
	if desc.Name != "Support" || desc.Address != "+15550001111" || desc.SeqId != 7 {
		t.Fatalf("Wrong description: %+v", desc)
	}
}

func TestReplyGetData(t *testing.T) {
	roomId := types.Uid(100)

	ctrl := gomock.NewController(t)
	mm := mock_store.NewMockMessagesPersistenceInterface(ctrl)
	store.Messages = mm
	defer func() {
		store.Messages = nil
		ctrl.Finish()
	}()

	now := types.TimeNow()
	mm.EXPECT().GetAll(roomId, gomock.Any()).DoAndReturn(
		func(chatroom types.Uid, opts *types.QueryOpt) ([]types.Message, error) {
			if opts.Since != 3 || opts.Limit != 10 {
				t.Errorf("Query options not passed through: %+v", opts)
			}
			return []types.Message{
				{Chatroom: chatroom, SeqId: 4, Direction: types.DirInbound, Body: "one", CreatedAt: now},
				{Chatroom: chatroom, SeqId: 3, Direction: types.DirOutbound, Body: "two", CreatedAt: now},
			}, nil
		})

	ss, messages, wg := makeTestSessions(1, types.Uid(1))

	r := &Room{name: roomId.String(), uid: roomId, seq: 4}
	r.replyGetData(ss[0], &ClientComMessage{
		Get: &MsgClientGet{
			Id:         "123",
			Chatroom:   r.name,
			MsgGetOpts: MsgGetOpts{SinceId: 3, Limit: 10},
		},
		Id:        "123",
		Original:  r.name,
		RcptTo:    r.name,
		Timestamp: now,
	})

	close(ss[0].send)
	wg.Wait()

	if len(messages[0].messages) != 1 {
		t.Fatalf("Expected 1 {meta} packet, got %d", len(messages[0].messages))
	}
	resp := decodeResponse(t, messages[0].messages[0])
	if resp.Meta == nil {
		t.Fatalf("Expected {meta}, got %+v", resp)
	}
	expected := []MsgServerData{
		{Chatroom: r.name, SeqId: 4, Direction: types.DirInbound, Body: "one", Timestamp: now},
		{Chatroom: r.name, SeqId: 3, Direction: types.DirOutbound, Body: "two", Timestamp: now},
	}
	if diff := cmp.Diff(expected, resp.Meta.Data); diff != "" {
		t.Errorf("History mismatch (-want +got):\n%s", diff)
	}
}

func TestHandleNote(t *testing.T) {
	roomId := types.Uid(100)

	ctrl := gomock.NewController(t)
	mm := mock_store.NewMockMessagesPersistenceInterface(ctrl)
	store.Messages = mm
	defer func() {
		store.Messages = nil
		ctrl.Finish()
	}()

	mm.EXPECT().MarkRead(roomId, 3).Return(nil)

	ss, _, wg := makeTestSessions(1, types.Uid(1))

	r := &Room{name: roomId.String(), uid: roomId, seq: 5}
	r.handleNote(ss[0], &ClientComMessage{
		Note: &MsgClientNote{Chatroom: r.name, SeqId: 3},
	})

	// Out of range seq ids are dropped without touching the store.
	r.handleNote(ss[0], &ClientComMessage{
		Note: &MsgClientNote{Chatroom: r.name, SeqId: 6},
	})
	r.handleNote(ss[0], &ClientComMessage{
		Note: &MsgClientNote{Chatroom: r.name, SeqId: 0},
	})

	close(ss[0].send)
	wg.Wait()
}
