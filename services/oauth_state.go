package services

import (
	"context"
	"crypto/rand"
	"encoding/base64"
	"fmt"
	"sync"
	"time"

	"github.com/samabos/tymblok/models"
)

const oauthStateTTL = 10 * time.Minute

// StateData is what an OAuth state token binds together for the lifetime
// of one authorization round trip. It is never persisted to the database.
type StateData struct {
	UserID            uint                       `json:"user_id"`
	Provider          models.IntegrationProvider `json:"provider"`
	MobileRedirectURI string                     `json:"mobile_redirect_uri,omitempty"`
	ExpiresAt         time.Time                  `json:"expires_at"`
}

// StateStore holds pending OAuth states. The in-memory implementation is
// correct for a single process; a multi-instance deployment swaps in the
// Redis-backed one.
type StateStore interface {
	Save(ctx context.Context, token string, data StateData) error
	// Consume removes and returns the entry in one step so a state can
	// never validate twice. Returns nil when absent.
	Consume(ctx context.Context, token string) (*StateData, error)
	// Sweep drops expired entries.
	Sweep(ctx context.Context) error
}

// OAuthStateService issues and validates the CSRF state tokens used in the
// provider authorization flows.
type OAuthStateService struct {
	store StateStore
	ttl   time.Duration
}

func NewOAuthStateService(store StateStore) *OAuthStateService {
	return &OAuthStateService{store: store, ttl: oauthStateTTL}
}

func (s *OAuthStateService) GenerateState(ctx context.Context, userID uint, provider models.IntegrationProvider, mobileRedirectURI string) (string, error) {
	// Opportunistic cleanup keeps abandoned flows from piling up.
	_ = s.store.Sweep(ctx)

	raw := make([]byte, 32)
	if _, err := rand.Read(raw); err != nil {
		return "", fmt.Errorf("failed to generate state token: %w", err)
	}
	token := base64.RawURLEncoding.EncodeToString(raw)

	data := StateData{
		UserID:            userID,
		Provider:          provider,
		MobileRedirectURI: mobileRedirectURI,
		ExpiresAt:         time.Now().Add(s.ttl),
	}
	if err := s.store.Save(ctx, token, data); err != nil {
		return "", err
	}
	return token, nil
}

// ValidateState consumes the token and returns its data, or nil when the
// token is unknown, already used, or expired.
func (s *OAuthStateService) ValidateState(ctx context.Context, token string) *StateData {
	if token == "" {
		return nil
	}
	data, err := s.store.Consume(ctx, token)
	if err != nil || data == nil {
		return nil
	}
	if time.Now().After(data.ExpiresAt) {
		return nil
	}
	return data
}

// MemoryStateStore keeps states in process memory. Generate and validate
// race freely across callback requests, so everything goes through a
// concurrent map.
type MemoryStateStore struct {
	states sync.Map
}

func NewMemoryStateStore() *MemoryStateStore {
	return &MemoryStateStore{}
}

func (m *MemoryStateStore) Save(_ context.Context, token string, data StateData) error {
	m.states.Store(token, data)
	return nil
}

func (m *MemoryStateStore) Consume(_ context.Context, token string) (*StateData, error) {
	value, ok := m.states.LoadAndDelete(token)
	if !ok {
		return nil, nil
	}
	data := value.(StateData)
	return &data, nil
}

func (m *MemoryStateStore) Sweep(_ context.Context) error {
	now := time.Now()
	m.states.Range(func(key, value any) bool {
		if now.After(value.(StateData).ExpiresAt) {
			m.states.Delete(key)
		}
		return true
	})
	return nil
}
