package main

/******************************************************************************
 *
 *  Description :
 *
 *    Mapping of externally visible addresses (E.164 phone numbers) to
 *    chatrooms. The mapping is an exact match on the normalized address.
 *    Unknown addresses do not create chatrooms: provisioning is an explicit
 *    administrative action.
 *
 *****************************************************************************/

import (
	"sync"

	"github.com/teamchat/inbox/server/store"
	"github.com/teamchat/inbox/server/store/types"
	"github.com/teamchat/inbox/server/validate/tel"
)

// AddressResolver resolves inbound destination addresses to chatrooms.
type AddressResolver struct {
	// Default region for parsing numbers sent without the leading '+'.
	region string

	lock sync.RWMutex
	// Normalized address -> chatroom id. Negative results are not cached;
	// an unknown address is expected to be rare and must notice a freshly
	// provisioned chatroom right away.
	byAddress map[string]types.Uid
}

// NewAddressResolver creates a resolver with an empty cache.
func NewAddressResolver(defaultRegion string) *AddressResolver {
	return &AddressResolver{
		region:    defaultRegion,
		byAddress: make(map[string]types.Uid),
	}
}

// Resolve maps a raw destination address to a chatroom id. The address is
// normalized first; the lookup is an exact match on the normalized form.
// Returns types.ZeroUid and no error if no chatroom is bound to the address.
func (r *AddressResolver) Resolve(rawAddress string) (types.Uid, error) {
	address, err := tel.Normalize(rawAddress, r.region)
	if err != nil {
		return types.ZeroUid, types.ErrMalformed
	}

	r.lock.RLock()
	id, ok := r.byAddress[address]
	r.lock.RUnlock()
	if ok {
		return id, nil
	}

	room, err := store.Chatrooms.GetByAddress(address)
	if err != nil {
		return types.ZeroUid, err
	}
	if room == nil {
		return types.ZeroUid, nil
	}

	r.lock.Lock()
	r.byAddress[address] = room.Id
	r.lock.Unlock()

	return room.Id, nil
}

// Forget drops a cached address binding. Must be called when the chatroom
// owning the address is deleted.
func (r *AddressResolver) Forget(address string) {
	r.lock.Lock()
	delete(r.byAddress, address)
	r.lock.Unlock()
}
