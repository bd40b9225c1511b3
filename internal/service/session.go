package service

import (
	"context"
	"encoding/json"
	"time"

	"pneumodetect/internal/domain"
	"pneumodetect/internal/store"

	"github.com/google/uuid"
)

// Actor is the authenticated identity attached to a request.
type Actor struct {
	UserID   int64       `json:"user_id"`
	Username string      `json:"username"`
	Role     domain.Role `json:"role"`
}

// SessionManager stores opaque session tokens in the KV store. Tokens are
// random uuids; nothing about the user is derivable from the cookie.
type SessionManager struct {
	kv  store.KV
	ttl time.Duration
}

func NewSessionManager(kv store.KV, ttl time.Duration) *SessionManager {
	return &SessionManager{kv: kv, ttl: ttl}
}

func sessionKey(token string) string { return "session:" + token }

// Create issues a new token for the actor.
func (m *SessionManager) Create(ctx context.Context, actor Actor) (string, error) {
	token := uuid.NewString()
	payload, err := json.Marshal(actor)
	if err != nil {
		return "", err
	}
	if err := m.kv.Set(ctx, sessionKey(token), string(payload), m.ttl); err != nil {
		return "", err
	}
	return token, nil
}

// Get resolves a token. A missing or expired token returns store.ErrMiss.
func (m *SessionManager) Get(ctx context.Context, token string) (*Actor, error) {
	raw, err := m.kv.Get(ctx, sessionKey(token))
	if err != nil {
		return nil, err
	}
	var actor Actor
	if err := json.Unmarshal([]byte(raw), &actor); err != nil {
		return nil, err
	}
	return &actor, nil
}

// Destroy invalidates a token.
func (m *SessionManager) Destroy(ctx context.Context, token string) error {
	return m.kv.Del(ctx, sessionKey(token))
}
