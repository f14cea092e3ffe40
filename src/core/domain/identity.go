package domain

import (
	"fmt"
	"strings"
)

// Role is the closed set of account roles.
type Role uint8

const (
	RoleNone Role = iota
	RoleUser
	RoleJudge
	RoleAdmin
	RoleSuperadmin
)

var roleNames = [...]string{
	RoleNone:       "none",
	RoleUser:       "user",
	RoleJudge:      "judge",
	RoleAdmin:      "admin",
	RoleSuperadmin: "superadmin",
}

func (r Role) String() string {
	if int(r) < len(roleNames) {
		return roleNames[r]
	}
	return fmt.Sprintf("role(%d)", uint8(r))
}

// ParseRole maps a stored role name to a Role. Unknown names map to RoleNone.
func ParseRole(s string) Role {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "user":
		return RoleUser
	case "judge":
		return RoleJudge
	case "admin":
		return RoleAdmin
	case "superadmin":
		return RoleSuperadmin
	default:
		return RoleNone
	}
}

// CanAccessPanel: judges and above may see the rating panel and moderate the queue.
func (r Role) CanAccessPanel() bool { return r >= RoleJudge }

// IsAdmin: admins and superadmins.
func (r Role) IsAdmin() bool { return r >= RoleAdmin }

// Identity is the caller as reported by the identity provider.
type Identity struct {
	ID          int64
	Username    string
	DisplayName string
	Role        Role
}

// Anonymous is the identity of an unauthenticated viewer.
var Anonymous = Identity{}

// IsAuthenticated reports whether the identity maps to an account.
func (i Identity) IsAuthenticated() bool { return i.ID > 0 }

// Name is the label shown on the panel.
func (i Identity) Name() string {
	if n := strings.TrimSpace(i.DisplayName); n != "" {
		return n
	}
	return i.Username
}
