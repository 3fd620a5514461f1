// Package session tracks the signed-in identity. Tokens are issued by the
// external auth service; the client reads their claims but cannot verify
// signatures, which stay the service's job.
package session

import (
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

type Role string

const (
	RoleAgent   Role = "agent"
	RoleManager Role = "manager"
)

var (
	ErrNoIdentity = errors.New("no signed-in identity")
	ErrExpired    = errors.New("session token expired")
)

// Identity is who the device is acting as. AgentID is empty for managers
// without an agent profile.
type Identity struct {
	UserID  string
	AgentID string
	Role    Role
	Name    string
	Token   string
	Expires time.Time
}

func (i Identity) IsManager() bool { return i.Role == RoleManager }

// Claims is the session token payload. Subject carries the user id.
type Claims struct {
	jwt.RegisteredClaims
	AgentID string `json:"agent_id,omitempty"`
	Role    Role   `json:"role"`
	Name    string `json:"name,omitempty"`
}

// Parse decodes a session token without verifying its signature.
func Parse(token string, now time.Time) (Identity, error) {
	token = strings.TrimSpace(token)
	if token == "" {
		return Identity{}, ErrNoIdentity
	}
	claims := &Claims{}
	if _, _, err := jwt.NewParser().ParseUnverified(token, claims); err != nil {
		return Identity{}, fmt.Errorf("parse session token: %w", err)
	}
	if claims.Subject == "" {
		return Identity{}, errors.New("session token missing subject")
	}
	id := Identity{
		UserID:  claims.Subject,
		AgentID: claims.AgentID,
		Role:    claims.Role,
		Name:    claims.Name,
		Token:   token,
	}
	if id.Role == "" {
		id.Role = RoleAgent
	}
	if claims.ExpiresAt != nil {
		id.Expires = claims.ExpiresAt.Time
		if !now.Before(id.Expires) {
			return Identity{}, ErrExpired
		}
	}
	return id, nil
}

// Holder guards the current identity. The zero value is signed out.
type Holder struct {
	mu  sync.RWMutex
	cur *Identity
}

func (h *Holder) Current() (Identity, bool) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	if h.cur == nil {
		return Identity{}, false
	}
	return *h.cur, true
}

func (h *Holder) Set(id Identity) {
	h.mu.Lock()
	h.cur = &id
	h.mu.Unlock()
}

func (h *Holder) Clear() {
	h.mu.Lock()
	h.cur = nil
	h.mu.Unlock()
}
