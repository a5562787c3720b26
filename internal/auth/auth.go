// Package auth verifies player credentials against the store and hands
// out opaque session tokens. Sessions live in process memory; losing them
// on restart just means logging in again.
package auth

import (
	"context"
	"errors"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"

	"tradeup/internal/game"
	"tradeup/internal/store"
)

var (
	ErrInvalidCredentials = errors.New("invalid credentials")
	ErrInvalidSession     = errors.New("invalid or expired session")
)

const DefaultSessionTTL = 24 * time.Hour

type Session struct {
	Token     string    `json:"token"`
	PlayerID  int64     `json:"player_id"`
	Username  string    `json:"username"`
	Firstname string    `json:"firstname"`
	ExpiresAt time.Time `json:"expires_at"`
}

type Service struct {
	store store.Store
	clock game.Clock
	ttl   time.Duration

	mu       sync.RWMutex
	sessions map[string]Session
}

type realClock struct{}

func (realClock) Now() time.Time { return time.Now() }

func NewService(st store.Store, ttl time.Duration) *Service {
	if ttl <= 0 {
		ttl = DefaultSessionTTL
	}
	return &Service{
		store:    st,
		clock:    realClock{},
		ttl:      ttl,
		sessions: make(map[string]Session),
	}
}

// Login checks the bcrypt hash for the username and issues a session.
func (s *Service) Login(ctx context.Context, username, password string) (Session, error) {
	player, hash, err := s.store.PlayerByUsername(ctx, strings.TrimSpace(username))
	if errors.Is(err, store.ErrNotFound) {
		return Session{}, ErrInvalidCredentials
	}
	if err != nil {
		return Session{}, err
	}
	if bcrypt.CompareHashAndPassword([]byte(hash), []byte(password)) != nil {
		return Session{}, ErrInvalidCredentials
	}

	session := Session{
		Token:     uuid.NewString(),
		PlayerID:  player.ID,
		Username:  player.Username,
		Firstname: player.Firstname,
		ExpiresAt: s.clock.Now().Add(s.ttl),
	}
	s.mu.Lock()
	s.sessions[session.Token] = session
	s.mu.Unlock()
	return session, nil
}

// Resolve maps a bearer token to the acting player.
func (s *Service) Resolve(token string) (Session, error) {
	s.mu.RLock()
	session, ok := s.sessions[token]
	s.mu.RUnlock()
	if !ok {
		return Session{}, ErrInvalidSession
	}
	if s.clock.Now().After(session.ExpiresAt) {
		s.mu.Lock()
		delete(s.sessions, token)
		s.mu.Unlock()
		return Session{}, ErrInvalidSession
	}
	return session, nil
}

// Logout drops the session; unknown tokens are a no-op.
func (s *Service) Logout(token string) {
	s.mu.Lock()
	delete(s.sessions, token)
	s.mu.Unlock()
}
