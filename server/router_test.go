package main

import (
	"testing"
	"time"

	"github.com/golang/mock/gomock"
	"github.com/teamchat/inbox/server/store"
	"github.com/teamchat/inbox/server/store/mock_store"
	"github.com/teamchat/inbox/server/store/types"
)

func testRouter() (*DeliveryRouter, *Hub, *dedupCache) {
	hub := &Hub{deliver: make(chan *deliverReq, 16)}
	dedup := newDedupCache(time.Minute)
	return NewDeliveryRouter(hub, NewAddressResolver("US"), dedup), hub, dedup
}

// Drains hub.deliver and acknowledges every request.
func testRoomLoop(hub *Hub, delivered *[]*deliverReq, done chan bool) {
	for req := range hub.deliver {
		*delivered = append(*delivered, req)
		req.respond(nil)
	}
	done <- true
}

func TestInboundSMSMalformed(t *testing.T) {
	rt, _, dedup := testRouter()
	defer dedup.shutdown()

	if err := rt.InboundSMS("SM1", "+15550002222", "+15550001111", ""); err != types.ErrMalformed {
		t.Error("Empty body: expected ErrMalformed, got", err)
	}
	if err := rt.InboundSMS("SM2", "", "+15550001111", "hello"); err != types.ErrMalformed {
		t.Error("Empty sender: expected ErrMalformed, got", err)
	}
	if err := rt.InboundSMS("SM3", "not-a-number", "+15550001111", "hello"); err != types.ErrMalformed {
		t.Error("Garbage sender: expected ErrMalformed, got", err)
	}
}

func TestInboundSMSUnknownDestination(t *testing.T) {
	ctrl := gomock.NewController(t)
	mc := mock_store.NewMockChatroomsPersistenceInterface(ctrl)
	store.Chatrooms = mc
	defer func() {
		store.Chatrooms = nil
		ctrl.Finish()
	}()

	mc.EXPECT().GetByAddress("+15550001111").Return(nil, nil)

	rt, hub, dedup := testRouter()
	defer dedup.shutdown()

	if err := rt.InboundSMS("SM1", "+15550002222", "+15550001111", "hello"); err != types.ErrNotFound {
		t.Fatal("Expected ErrNotFound, got", err)
	}

	// Nothing may reach a room: unroutable messages are dropped, not
	// provisioned.
	select {
	case req := <-hub.deliver:
		t.Fatal("Unroutable message was forwarded to a room:", req)
	default:
	}
}

func TestInboundSMSDuplicateSuppressed(t *testing.T) {
	roomId := types.Uid(100)

	ctrl := gomock.NewController(t)
	mc := mock_store.NewMockChatroomsPersistenceInterface(ctrl)
	store.Chatrooms = mc
	defer func() {
		store.Chatrooms = nil
		ctrl.Finish()
	}()

	// The resolver caches the address after the first lookup.
	mc.EXPECT().GetByAddress("+15550001111").Return(
		&types.Chatroom{Id: roomId, Address: "+15550001111"}, nil)

	rt, hub, dedup := testRouter()
	defer dedup.shutdown()

	var delivered []*deliverReq
	roomDone := make(chan bool)
	go testRoomLoop(hub, &delivered, roomDone)

	if err := rt.InboundSMS("SM1", "+15550002222", "+15550001111", "hello"); err != nil {
		t.Fatal("First delivery failed:", err)
	}
	// Provider retry of the same message: acknowledged but not delivered.
	if err := rt.InboundSMS("SM1", "+15550002222", "+15550001111", "hello"); err != nil {
		t.Fatal("Duplicate delivery was not acknowledged:", err)
	}

	close(hub.deliver)
	<-roomDone

	if len(delivered) != 1 {
		t.Fatalf("Expected exactly 1 message delivered, got %d", len(delivered))
	}
	req := delivered[0]
	if req.rcptTo != roomId.String() {
		t.Errorf("Wrong destination chatroom: '%s'", req.rcptTo)
	}
	if req.direction != types.DirInbound {
		t.Errorf("Wrong direction: '%s'", req.direction)
	}
	if req.from != "+15550002222" {
		t.Errorf("Sender not normalized: '%s'", req.from)
	}
}

func TestInboundSMSRetryAfterStoreFailure(t *testing.T) {
	roomId := types.Uid(100)

	ctrl := gomock.NewController(t)
	mc := mock_store.NewMockChatroomsPersistenceInterface(ctrl)
	store.Chatrooms = mc
	defer func() {
		store.Chatrooms = nil
		ctrl.Finish()
	}()

	mc.EXPECT().GetByAddress("+15550001111").Return(
		&types.Chatroom{Id: roomId, Address: "+15550001111"}, nil)

	rt, hub, dedup := testRouter()
	defer dedup.shutdown()

	// The first append fails, the second succeeds.
	var delivered []*deliverReq
	roomDone := make(chan bool)
	go func() {
		for req := range hub.deliver {
			delivered = append(delivered, req)
			if len(delivered) == 1 {
				req.respond(types.ErrInternal)
			} else {
				req.respond(nil)
			}
		}
		roomDone <- true
	}()

	if err := rt.InboundSMS("SM1", "+15550002222", "+15550001111", "hello"); err != types.ErrInternal {
		t.Fatal("Failed append: expected ErrInternal, got", err)
	}

	// The provider retries after a 5xx. A message which was never stored
	// must not be suppressed as a duplicate.
	if err := rt.InboundSMS("SM1", "+15550002222", "+15550001111", "hello"); err != nil {
		t.Fatal("Retry was suppressed:", err)
	}

	// A further identical delivery is a real duplicate now.
	if err := rt.InboundSMS("SM1", "+15550002222", "+15550001111", "hello"); err != nil {
		t.Fatal("Duplicate delivery was not acknowledged:", err)
	}

	close(hub.deliver)
	<-roomDone

	if len(delivered) != 2 {
		t.Fatalf("Expected 2 messages to reach the room, got %d", len(delivered))
	}
}

func TestInboundSMSContentKeyDedup(t *testing.T) {
	roomId := types.Uid(100)

	ctrl := gomock.NewController(t)
	mc := mock_store.NewMockChatroomsPersistenceInterface(ctrl)
	store.Chatrooms = mc
	defer func() {
		store.Chatrooms = nil
		ctrl.Finish()
	}()

	mc.EXPECT().GetByAddress("+15550001111").Return(
		&types.Chatroom{Id: roomId, Address: "+15550001111"}, nil)

	rt, hub, dedup := testRouter()
	defer dedup.shutdown()

	var delivered []*deliverReq
	roomDone := make(chan bool)
	go testRoomLoop(hub, &delivered, roomDone)

	// No provider message id: duplicates are recognized by content.
	if err := rt.InboundSMS("", "+15550002222", "+15550001111", "hello"); err != nil {
		t.Fatal("First delivery failed:", err)
	}
	if err := rt.InboundSMS("", "+15550002222", "+15550001111", "hello"); err != nil {
		t.Fatal("Duplicate delivery was not acknowledged:", err)
	}
	// Different body is a different message.
	if err := rt.InboundSMS("", "+15550002222", "+15550001111", "hello again"); err != nil {
		t.Fatal("Third delivery failed:", err)
	}

	close(hub.deliver)
	<-roomDone

	if len(delivered) != 2 {
		t.Fatalf("Expected 2 messages delivered, got %d", len(delivered))
	}
}

func TestSendBlocking(t *testing.T) {
	roomId := types.Uid(100)

	rt, hub, dedup := testRouter()
	defer dedup.shutdown()

	var delivered []*deliverReq
	roomDone := make(chan bool)
	go testRoomLoop(hub, &delivered, roomDone)

	if err := rt.SendBlocking(roomId, "", ""); err != types.ErrMalformed {
		t.Fatal("Empty body: expected ErrMalformed, got", err)
	}
	if err := rt.SendBlocking(roomId, "garbage", "hello"); err != types.ErrMalformed {
		t.Fatal("Bad destination: expected ErrMalformed, got", err)
	}
	if err := rt.SendBlocking(roomId, "(555) 000-2222", "hello"); err != nil {
		t.Fatal("Send failed:", err)
	}

	close(hub.deliver)
	<-roomDone

	if len(delivered) != 1 {
		t.Fatalf("Expected 1 message delivered, got %d", len(delivered))
	}
	req := delivered[0]
	if req.direction != types.DirOutbound {
		t.Errorf("Wrong direction: '%s'", req.direction)
	}
	if req.to != "+15550002222" {
		t.Errorf("Destination not normalized: '%s'", req.to)
	}
	// The room fills in the sender address.
	if req.from != "" {
		t.Errorf("Sender unexpectedly set: '%s'", req.from)
	}
}
