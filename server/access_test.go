package main

import (
	"testing"

	"github.com/golang/mock/gomock"
	"github.com/teamchat/inbox/server/store"
	"github.com/teamchat/inbox/server/store/mock_store"
	"github.com/teamchat/inbox/server/store/types"
)

func TestCanAccessAgent(t *testing.T) {
	uid := types.Uid(1)
	granted := types.Uid(100)
	other := types.Uid(200)

	ctrl := gomock.NewController(t)
	mu := mock_store.NewMockUsersPersistenceInterface(ctrl)
	store.Users = mu
	defer func() {
		store.Users = nil
		ctrl.Finish()
	}()

	// One load for any number of checks.
	mu.EXPECT().Get(uid).Return(&types.User{Id: uid, Role: types.RoleAgent}, nil).Times(1)
	mu.EXPECT().GrantsGet(uid).Return([]types.Uid{granted}, nil).Times(1)

	p := NewAccessPolicy()

	if ok, err := p.CanAccess(uid, granted); err != nil || !ok {
		t.Fatalf("Granted chatroom: expected access, got %v, %v", ok, err)
	}
	if ok, err := p.CanAccess(uid, other); err != nil || ok {
		t.Fatalf("Ungranted chatroom: expected no access, got %v, %v", ok, err)
	}
	// Second check of the same chatroom is served from the cache.
	if ok, _ := p.CanAccess(uid, granted); !ok {
		t.Fatal("Cached check: expected access")
	}
}

func TestCanAccessAdmin(t *testing.T) {
	uid := types.Uid(1)

	ctrl := gomock.NewController(t)
	mu := mock_store.NewMockUsersPersistenceInterface(ctrl)
	store.Users = mu
	defer func() {
		store.Users = nil
		ctrl.Finish()
	}()

	// Admins don't need their grants loaded.
	mu.EXPECT().Get(uid).Return(&types.User{Id: uid, Role: types.RoleAdmin}, nil).Times(1)

	p := NewAccessPolicy()

	if ok, err := p.CanAccess(uid, types.Uid(100)); err != nil || !ok {
		t.Fatalf("Admin: expected access, got %v, %v", ok, err)
	}
	if ok, _ := p.CanAccess(uid, types.Uid(999)); !ok {
		t.Fatal("Admin: expected access to any chatroom")
	}
}

func TestCanAccessUnknownUser(t *testing.T) {
	uid := types.Uid(1)

	ctrl := gomock.NewController(t)
	mu := mock_store.NewMockUsersPersistenceInterface(ctrl)
	store.Users = mu
	defer func() {
		store.Users = nil
		ctrl.Finish()
	}()

	// The empty result is cached too.
	mu.EXPECT().Get(uid).Return(nil, nil).Times(1)

	p := NewAccessPolicy()

	if ok, err := p.CanAccess(uid, types.Uid(100)); err != nil || ok {
		t.Fatalf("Unknown user: expected no access, got %v, %v", ok, err)
	}
	if ok, _ := p.CanAccess(uid, types.Uid(100)); ok {
		t.Fatal("Unknown user: expected no access on repeat check")
	}

	if ok, _ := p.CanAccess(types.ZeroUid, types.Uid(100)); ok {
		t.Fatal("Zero uid: expected no access")
	}
}

func TestAccessInvalidate(t *testing.T) {
	uid := types.Uid(1)
	room := types.Uid(100)

	ctrl := gomock.NewController(t)
	mu := mock_store.NewMockUsersPersistenceInterface(ctrl)
	store.Users = mu
	defer func() {
		store.Users = nil
		ctrl.Finish()
	}()

	// First load: no grants. After invalidation: one grant.
	first := mu.EXPECT().Get(uid).Return(&types.User{Id: uid, Role: types.RoleAgent}, nil)
	mu.EXPECT().Get(uid).Return(&types.User{Id: uid, Role: types.RoleAgent}, nil).After(first)
	firstGrants := mu.EXPECT().GrantsGet(uid).Return(nil, nil)
	mu.EXPECT().GrantsGet(uid).Return([]types.Uid{room}, nil).After(firstGrants)

	p := NewAccessPolicy()

	if ok, _ := p.CanAccess(uid, room); ok {
		t.Fatal("Expected no access before the grant")
	}

	p.Invalidate(uid)

	if ok, _ := p.CanAccess(uid, room); !ok {
		t.Fatal("Expected access after the grant")
	}
}
