package model

import (
	"regexp"

	"github.com/secmon-lab/orgsync/pkg/domain/types"
)

// Role is a destination organization role. Lower values rank higher.
type Role int

const (
	RoleMaster Role = 10
	RoleAdmin  Role = 20
	RoleMember Role = 30
	RoleGuest  Role = 40
)

// String returns the role name
func (r Role) String() string {
	switch r {
	case RoleMaster:
		return "MASTER"
	case RoleAdmin:
		return "ADMIN"
	case RoleMember:
		return "MEMBER"
	case RoleGuest:
		return "GUEST"
	}
	return "UNKNOWN"
}

// Outranks reports whether r ranks strictly above other
func (r Role) Outranks(other Role) bool {
	return r < other
}

// IsPrivileged reports whether the role must never be deactivated automatically
func (r Role) IsPrivileged() bool {
	return r == RoleMaster || r == RoleAdmin
}

// DestinationUser is a user as reported by the destination organization
type DestinationUser struct {
	ID          types.UserID
	Name        string
	Email       types.Email
	PhoneNumber string
	IsActive    bool
	Role        Role
}

// UserCreate is the payload for provisioning a new destination user
type UserCreate struct {
	Name        string
	Email       types.Email
	PhoneNumber string
	Language    string
	Timezone    string
}

// UserPatch lists only the fields to change; nil means unchanged
type UserPatch struct {
	Name        *string
	PhoneNumber *string
}

// IsEmpty reports whether the patch changes nothing
func (p *UserPatch) IsEmpty() bool {
	return p == nil || (p.Name == nil && p.PhoneNumber == nil)
}

var phoneNumberNoise = regexp.MustCompile(`[^0-9+-]`)

// NormalizePhoneNumber keeps digits, '+' and '-' only
func NormalizePhoneNumber(s string) string {
	return phoneNumberNoise.ReplaceAllString(s, "")
}
