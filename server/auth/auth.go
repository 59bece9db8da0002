// Package auth provides authentication levels and the authenticated-identity
// record shared between transports.
package auth

import (
	"github.com/teamchat/inbox/server/store/types"
)

// Level is the authorization level of an authenticated identity.
type Level int

// Authorization levels.
const (
	// LevelNone is an undefined/not authenticated level.
	LevelNone Level = iota * 10
	// LevelAgent is an agent with an explicit chatroom grant set.
	LevelAgent
	// LevelAdmin is an administrator with access to all chatrooms.
	LevelAdmin
)

// String implements fmt.Stringer interface for Level.
func (a Level) String() string {
	switch a {
	case LevelNone:
		return ""
	case LevelAgent:
		return "agent"
	case LevelAdmin:
		return "admin"
	default:
		return "unknown"
	}
}

// ParseAuthLevel parses authentication level from a string.
func ParseAuthLevel(name string) Level {
	switch name {
	case "agent":
		return LevelAgent
	case "admin":
		return LevelAdmin
	default:
		return LevelNone
	}
}

// LevelForRole maps a persisted user role to an authorization level.
func LevelForRole(role string) Level {
	switch role {
	case types.RoleAdmin:
		return LevelAdmin
	case types.RoleAgent:
		return LevelAgent
	default:
		return LevelNone
	}
}

// Rec is an authenticated identity.
type Rec struct {
	// User id.
	Uid types.Uid `json:"uid,omitempty"`
	// Authorization level.
	AuthLevel Level `json:"authlvl,omitempty"`
}
