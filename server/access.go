package main

/******************************************************************************
 *
 *  Description :
 *
 *    Chatroom access checks. Admins read every chatroom, agents read only
 *    chatrooms they hold an explicit grant for. Grant sets are cached per
 *    user so the check on the delivery path is a map lookup; the cache
 *    entry is dropped whenever the user's grants change.
 *
 *****************************************************************************/

import (
	"sync"

	"github.com/teamchat/inbox/server/store"
	"github.com/teamchat/inbox/server/store/types"
)

// grantSet is a cached snapshot of a single user's readable chatrooms.
type grantSet struct {
	// Admin: all chatrooms readable, rooms is ignored.
	unrestricted bool
	rooms        map[types.Uid]struct{}
}

// AccessPolicy decides which users may read which chatrooms.
type AccessPolicy struct {
	lock    sync.RWMutex
	perUser map[types.Uid]*grantSet
}

// NewAccessPolicy creates an empty policy cache.
func NewAccessPolicy() *AccessPolicy {
	return &AccessPolicy{perUser: make(map[types.Uid]*grantSet)}
}

// CanAccess reports whether the user may read the given chatroom. The first
// check for a user loads the grant set from the store; subsequent checks
// are served from the cache. An unknown user has no access.
func (p *AccessPolicy) CanAccess(user, chatroom types.Uid) (bool, error) {
	if user.IsZero() || chatroom.IsZero() {
		return false, nil
	}

	p.lock.RLock()
	gs := p.perUser[user]
	p.lock.RUnlock()

	if gs == nil {
		var err error
		if gs, err = p.load(user); err != nil {
			return false, err
		}
	}

	if gs.unrestricted {
		return true, nil
	}
	_, ok := gs.rooms[chatroom]
	return ok, nil
}

// Invalidate drops the cached grant set of a single user. Must be called
// after any grant or role change affecting the user.
func (p *AccessPolicy) Invalidate(user types.Uid) {
	p.lock.Lock()
	delete(p.perUser, user)
	p.lock.Unlock()
}

// InvalidateAll drops the entire cache, e.g. after a chatroom is deleted.
func (p *AccessPolicy) InvalidateAll() {
	p.lock.Lock()
	p.perUser = make(map[types.Uid]*grantSet)
	p.lock.Unlock()
}

// load reads the user's role and grants from the store and caches them.
func (p *AccessPolicy) load(user types.Uid) (*grantSet, error) {
	usr, err := store.Users.Get(user)
	if err != nil {
		return nil, err
	}

	gs := &grantSet{}
	if usr == nil {
		// Deleted or never existed: cache the empty set so repeated checks
		// don't hit the store.
		gs.rooms = map[types.Uid]struct{}{}
	} else if usr.Role == types.RoleAdmin {
		gs.unrestricted = true
	} else {
		grants, err := store.Users.GrantsGet(user)
		if err != nil {
			return nil, err
		}
		gs.rooms = make(map[types.Uid]struct{}, len(grants))
		for _, room := range grants {
			gs.rooms[room] = struct{}{}
		}
	}

	p.lock.Lock()
	// A concurrent Invalidate between load and store loses: acceptable,
	// the stale entry is at most one grant change behind and the next
	// Invalidate clears it.
	if cached := p.perUser[user]; cached != nil {
		gs = cached
	} else {
		p.perUser[user] = gs
	}
	p.lock.Unlock()

	return gs, nil
}
