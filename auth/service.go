package auth

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"sealedcourt/account"
)

var (
	// ErrInvalidToken signals a token that fails parsing or validation.
	ErrInvalidToken = errors.New("auth: invalid token")
	// ErrInvalidAddress rejects minting a token for the null address.
	ErrInvalidAddress = errors.New("auth: address is required")
)

// DefaultTTL is the lifetime of minted tokens.
const DefaultTTL = 24 * time.Hour

type claims struct {
	Address string `json:"addr"`
	Role    Role   `json:"role"`
	jwt.RegisteredClaims
}

// Service mints and verifies HS256 bearer tokens binding a caller to an
// address.
type Service struct {
	jwtSecret []byte
	owner     account.Address
	ttl       time.Duration
	now       func() time.Time
}

// NewService creates a token service. Tokens for owner carry RoleOwner.
func NewService(jwtSecret string, owner account.Address, ttl time.Duration) *Service {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &Service{
		jwtSecret: []byte(jwtSecret),
		owner:     owner,
		ttl:       ttl,
		now:       time.Now,
	}
}

// Issue creates a token for addr.
func (s *Service) Issue(addr account.Address) (Token, error) {
	if addr.IsZero() {
		return Token{}, ErrInvalidAddress
	}
	role := RoleUser
	if addr == s.owner {
		role = RoleOwner
	}

	now := s.now()
	exp := now.Add(s.ttl)
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims{
		Address: addr.String(),
		Role:    role,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   addr.String(),
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(exp),
		},
	})
	signed, err := token.SignedString(s.jwtSecret)
	if err != nil {
		return Token{}, fmt.Errorf("auth: sign token: %w", err)
	}
	return Token{
		Token:     signed,
		Principal: Principal{Address: addr, Role: role},
		ExpiresAt: exp,
	}, nil
}

// VerifyToken validates a token and returns its principal.
func (s *Service) VerifyToken(tokenString string) (Principal, error) {
	var c claims
	token, err := jwt.ParseWithClaims(tokenString, &c, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
		}
		return s.jwtSecret, nil
	}, jwt.WithTimeFunc(s.now), jwt.WithExpirationRequired())
	if err != nil {
		return Principal{}, fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}
	if !token.Valid {
		return Principal{}, ErrInvalidToken
	}

	addr := account.Parse(c.Address)
	if addr.IsZero() {
		return Principal{}, fmt.Errorf("%w: missing address", ErrInvalidToken)
	}
	if !isValidRole(c.Role) {
		return Principal{}, fmt.Errorf("%w: invalid role %q", ErrInvalidToken, c.Role)
	}
	// The owner role is only honoured for the configured owner.
	if c.Role == RoleOwner && addr != s.owner {
		return Principal{}, fmt.Errorf("%w: role mismatch", ErrInvalidToken)
	}
	return Principal{Address: addr, Role: c.Role}, nil
}

func isValidRole(role Role) bool {
	switch role {
	case RoleOwner, RoleUser:
		return true
	default:
		return false
	}
}
