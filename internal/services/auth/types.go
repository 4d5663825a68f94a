package auth

import (
	"errors"
	"strings"
	"time"
)

var ErrUnauthorized = errors.New("unauthorized")

type AccessClaims struct {
	UserID    string
	SID       string
	Role      string
	ExpiresAt time.Time
}

// RoleSet is a case-insensitive set of role names.
type RoleSet map[string]struct{}

func NewRoleSet(roles ...string) RoleSet {
	set := make(RoleSet, len(roles))
	for _, role := range roles {
		normalized := strings.ToLower(strings.TrimSpace(role))
		if normalized == "" {
			continue
		}
		set[normalized] = struct{}{}
	}
	return set
}

func (s RoleSet) Has(role string) bool {
	_, ok := s[strings.ToLower(strings.TrimSpace(role))]
	return ok
}
