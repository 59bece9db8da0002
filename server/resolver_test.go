package main

import (
	"testing"

	"github.com/golang/mock/gomock"
	"github.com/teamchat/inbox/server/store"
	"github.com/teamchat/inbox/server/store/mock_store"
	"github.com/teamchat/inbox/server/store/types"
)

func TestResolveKnownAddress(t *testing.T) {
	roomId := types.Uid(100)

	ctrl := gomock.NewController(t)
	mc := mock_store.NewMockChatroomsPersistenceInterface(ctrl)
	store.Chatrooms = mc
	defer func() {
		store.Chatrooms = nil
		ctrl.Finish()
	}()

	// The store is queried once; repeat lookups hit the cache, including
	// lookups by a differently formatted variant of the same number.
	mc.EXPECT().GetByAddress("+15550001111").Return(
		&types.Chatroom{Id: roomId, Address: "+15550001111"}, nil).Times(1)

	r := NewAddressResolver("US")

	id, err := r.Resolve("+15550001111")
	if err != nil {
		t.Fatal("Resolve failed:", err)
	}
	if id != roomId {
		t.Fatalf("Expected chatroom %s, got %s", roomId.String(), id.String())
	}

	if id, _ = r.Resolve("(555) 000-1111"); id != roomId {
		t.Fatal("Formatted variant did not resolve to the same chatroom")
	}
}

func TestResolveUnknownAddress(t *testing.T) {
	ctrl := gomock.NewController(t)
	mc := mock_store.NewMockChatroomsPersistenceInterface(ctrl)
	store.Chatrooms = mc
	defer func() {
		store.Chatrooms = nil
		ctrl.Finish()
	}()

	// Negative results are not cached: a freshly provisioned chatroom must
	// be visible immediately, so every miss queries the store.
	mc.EXPECT().GetByAddress("+15550001111").Return(nil, nil).Times(2)

	r := NewAddressResolver("US")

	id, err := r.Resolve("+15550001111")
	if err != nil {
		t.Fatal("Resolve failed:", err)
	}
	if !id.IsZero() {
		t.Fatal("Unknown address resolved to", id.String())
	}
	r.Resolve("+15550001111")
}

func TestResolveMalformedAddress(t *testing.T) {
	r := NewAddressResolver("US")

	if _, err := r.Resolve("not-a-number"); err != types.ErrMalformed {
		t.Fatal("Expected ErrMalformed, got", err)
	}
	if _, err := r.Resolve(""); err != types.ErrMalformed {
		t.Fatal("Expected ErrMalformed for empty address, got", err)
	}
}

func TestResolverForget(t *testing.T) {
	roomId := types.Uid(100)

	ctrl := gomock.NewController(t)
	mc := mock_store.NewMockChatroomsPersistenceInterface(ctrl)
	store.Chatrooms = mc
	defer func() {
		store.Chatrooms = nil
		ctrl.Finish()
	}()

	first := mc.EXPECT().GetByAddress("+15550001111").Return(
		&types.Chatroom{Id: roomId, Address: "+15550001111"}, nil)
	// After Forget the binding is gone from the cache and the store says
	// the chatroom is deleted.
	mc.EXPECT().GetByAddress("+15550001111").Return(nil, nil).After(first)

	r := NewAddressResolver("US")

	if id, _ := r.Resolve("+15550001111"); id != roomId {
		t.Fatal("Expected the address to resolve")
	}

	r.Forget("+15550001111")

	if id, _ := r.Resolve("+15550001111"); !id.IsZero() {
		t.Fatal("Expected the address to be unbound after Forget")
	}
}
