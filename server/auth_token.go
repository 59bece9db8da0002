package main

import (
	"github.com/teamchat/inbox/server/auth"
	"github.com/teamchat/inbox/server/store"
	"github.com/teamchat/inbox/server/store/types"
)

// authenticateToken verifies a client-supplied token and confirms that the
// user it names still exists. The authorization level is taken from the
// user's current role, not from the token, so a role change takes effect
// on the next login.
func authenticateToken(token string) (*auth.Rec, error) {
	if token == "" {
		return nil, types.ErrMalformed
	}

	rec, err := auth.AuthenticateToken([]byte(token))
	if err != nil {
		return nil, err
	}

	user, err := store.Users.Get(rec.Uid)
	if err != nil {
		return nil, err
	}
	if user == nil {
		// The user was deleted after the token was issued.
		return nil, types.ErrFailed
	}

	rec.AuthLevel = auth.LevelForRole(user.Role)
	if rec.AuthLevel == auth.LevelNone {
		return nil, types.ErrFailed
	}

	return rec, nil
}
