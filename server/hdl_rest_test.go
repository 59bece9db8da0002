package main

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"

	"github.com/golang/mock/gomock"
	"github.com/teamchat/inbox/server/auth"
	"github.com/teamchat/inbox/server/store"
	"github.com/teamchat/inbox/server/store/mock_store"
	"github.com/teamchat/inbox/server/store/types"
)

func testAgentToken(t *testing.T, uid types.Uid) string {
	t.Helper()
	token, err := auth.GenSecret(&auth.Rec{Uid: uid, AuthLevel: auth.LevelAgent})
	if err != nil {
		t.Fatal("Failed to mint token:", err)
	}
	return string(token)
}

func TestServeMessagesGetForbidden(t *testing.T) {
	roomId := types.Uid(100)
	uid1 := types.Uid(1)

	ctrl := gomock.NewController(t)
	mu := mock_store.NewMockUsersPersistenceInterface(ctrl)
	mm := mock_store.NewMockMessagesPersistenceInterface(ctrl)
	store.Users = mu
	store.Messages = mm
	defer func() {
		store.Users = nil
		store.Messages = nil
		ctrl.Finish()
	}()

	mu.EXPECT().Get(uid1).Return(&types.User{Id: uid1, Role: types.RoleAgent}, nil)
	// No GetAll expected: the chatroom is outside the agent's grant set.

	globals.policy = testPolicy(map[types.Uid][]types.Uid{uid1: {}})
	defer func() { globals.policy = nil }()

	req := httptest.NewRequest(http.MethodGet, "/v0/messages?chatroom="+roomId.String(), nil)
	req.Header.Set(authHeader, testAgentToken(t, uid1))
	resp := httptest.NewRecorder()

	serveMessages(resp, req)

	if resp.Code != http.StatusForbidden {
		t.Fatalf("Expected 403, got %d: %s", resp.Code, resp.Body.String())
	}
}

func TestServeMessagesGetGranted(t *testing.T) {
	roomId := types.Uid(100)
	uid1 := types.Uid(1)

	ctrl := gomock.NewController(t)
	mu := mock_store.NewMockUsersPersistenceInterface(ctrl)
	mm := mock_store.NewMockMessagesPersistenceInterface(ctrl)
	store.Users = mu
	store.Messages = mm
	defer func() {
		store.Users = nil
		store.Messages = nil
		ctrl.Finish()
	}()

	mu.EXPECT().Get(uid1).Return(&types.User{Id: uid1, Role: types.RoleAgent}, nil)
	mm.EXPECT().GetAll(roomId, gomock.Any()).Return([]types.Message{
		{Chatroom: roomId, SeqId: 1, Direction: types.DirInbound, Body: "hello", CreatedAt: types.TimeNow()},
	}, nil)

	globals.policy = testPolicy(map[types.Uid][]types.Uid{uid1: {roomId}})
	defer func() { globals.policy = nil }()

	req := httptest.NewRequest(http.MethodGet, "/v0/messages?chatroom="+roomId.String(), nil)
	req.Header.Set(authHeader, testAgentToken(t, uid1))
	resp := httptest.NewRecorder()

	serveMessages(resp, req)

	if resp.Code != http.StatusOK {
		t.Fatalf("Expected 200, got %d: %s", resp.Code, resp.Body.String())
	}
	var body struct {
		Messages []types.Message `json:"messages"`
	}
	if err := json.Unmarshal(resp.Body.Bytes(), &body); err != nil {
		t.Fatal("Failed to parse response:", err)
	}
	if len(body.Messages) != 1 || body.Messages[0].Body != "hello" {
		t.Fatalf("Unexpected history: %+v", body.Messages)
	}
}

func TestServeChatroomsListAgentFilter(t *testing.T) {
	room1 := types.Uid(100)
	room2 := types.Uid(200)
	uid1 := types.Uid(1)

	ctrl := gomock.NewController(t)
	mu := mock_store.NewMockUsersPersistenceInterface(ctrl)
	mc := mock_store.NewMockChatroomsPersistenceInterface(ctrl)
	store.Users = mu
	store.Chatrooms = mc
	defer func() {
		store.Users = nil
		store.Chatrooms = nil
		ctrl.Finish()
	}()

	mu.EXPECT().Get(uid1).Return(&types.User{Id: uid1, Role: types.RoleAgent}, nil)
	mc.EXPECT().GetAll().Return([]types.Chatroom{
		{Id: room1, Name: "Support", Address: "+15550001111"},
		{Id: room2, Name: "Billing", Address: "+15550001112"},
	}, nil)

	// The agent holds a grant for room1 only.
	globals.policy = testPolicy(map[types.Uid][]types.Uid{uid1: {room1}})
	defer func() { globals.policy = nil }()

	req := httptest.NewRequest(http.MethodGet, "/v0/chatrooms", nil)
	req.Header.Set(authHeader, testAgentToken(t, uid1))
	resp := httptest.NewRecorder()

	serveChatrooms(resp, req)

	if resp.Code != http.StatusOK {
		t.Fatalf("Expected 200, got %d: %s", resp.Code, resp.Body.String())
	}
	var body struct {
		Chatrooms []types.Chatroom `json:"chatrooms"`
	}
	if err := json.Unmarshal(resp.Body.Bytes(), &body); err != nil {
		t.Fatal("Failed to parse response:", err)
	}
	if len(body.Chatrooms) != 1 || body.Chatrooms[0].Id != room1 {
		t.Fatalf("Expected the granted chatroom only, got %+v", body.Chatrooms)
	}
}

func TestServeChatroomsCreateDuplicate(t *testing.T) {
	uid1 := types.Uid(1)

	ctrl := gomock.NewController(t)
	mu := mock_store.NewMockUsersPersistenceInterface(ctrl)
	mc := mock_store.NewMockChatroomsPersistenceInterface(ctrl)
	store.Users = mu
	store.Chatrooms = mc
	defer func() {
		store.Users = nil
		store.Chatrooms = nil
		ctrl.Finish()
	}()

	mu.EXPECT().Get(uid1).Return(&types.User{Id: uid1, Role: types.RoleAdmin}, nil)
	// The address is already bound to another chatroom.
	mc.EXPECT().Create(gomock.Any()).Return(nil, types.ErrDuplicate)

	token, err := auth.GenSecret(&auth.Rec{Uid: uid1, AuthLevel: auth.LevelAdmin})
	if err != nil {
		t.Fatal("Failed to mint token:", err)
	}

	req := httptest.NewRequest(http.MethodPost, "/v0/chatrooms",
		strings.NewReader(`{"name":"Support","address":"+15550001111"}`))
	req.Header.Set(authHeader, string(token))
	resp := httptest.NewRecorder()

	serveChatrooms(resp, req)

	if resp.Code != http.StatusConflict {
		t.Fatalf("Expected 409, got %d: %s", resp.Code, resp.Body.String())
	}
}

func TestServeWebhookSMSCodes(t *testing.T) {
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
	mc.EXPECT().GetByAddress("+15550009999").Return(nil, nil)

	rt, hub, dedup := testRouter()
	defer dedup.shutdown()
	globals.router = rt
	defer func() { globals.router = nil }()

	var delivered []*deliverReq
	roomDone := make(chan bool)
	go testRoomLoop(hub, &delivered, roomDone)

	post := func(form url.Values) *httptest.ResponseRecorder {
		req := httptest.NewRequest(http.MethodPost, "/v0/webhook/sms",
			strings.NewReader(form.Encode()))
		req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
		resp := httptest.NewRecorder()
		serveWebhookSMS(resp, req)
		return resp
	}

	// Routable message: acknowledged.
	resp := post(url.Values{
		"MessageSid": {"SM1"},
		"From":       {"+15550002222"},
		"To":         {"+15550001111"},
		"Body":       {"hello"},
	})
	if resp.Code != http.StatusNoContent {
		t.Fatalf("Routable message: expected 204, got %d", resp.Code)
	}

	// No chatroom bound to the destination: rejected, no retry.
	resp = post(url.Values{
		"MessageSid": {"SM2"},
		"From":       {"+15550002222"},
		"To":         {"+15550009999"},
		"Body":       {"hello"},
	})
	if resp.Code != http.StatusNotFound {
		t.Fatalf("Unbound destination: expected 404, got %d", resp.Code)
	}

	// Empty body: invalid payload.
	resp = post(url.Values{
		"MessageSid": {"SM3"},
		"From":       {"+15550002222"},
		"To":         {"+15550001111"},
	})
	if resp.Code != http.StatusBadRequest {
		t.Fatalf("Empty body: expected 400, got %d", resp.Code)
	}

	close(hub.deliver)
	<-roomDone

	if len(delivered) != 1 {
		t.Fatalf("Expected 1 message to reach the room, got %d", len(delivered))
	}
}
