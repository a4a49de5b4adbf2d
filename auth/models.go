package auth

import (
	"time"

	"sealedcourt/account"
)

type Role string

const (
	// RoleOwner may pause and unpause arbitrators.
	RoleOwner Role = "owner"
	RoleUser  Role = "user"
)

// Principal is the caller identity carried by a verified token.
type Principal struct {
	Address account.Address
	Role    Role
}

// Token is a freshly minted bearer token.
type Token struct {
	Token     string
	Principal Principal
	ExpiresAt time.Time
}
