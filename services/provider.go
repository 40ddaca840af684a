package services

import (
	"context"
	"time"

	"github.com/samabos/tymblok/models"
)

// maxDescriptionLength caps imported descriptions before storage.
const maxDescriptionLength = 500

// OAuthTokenResult is what a provider hands back after a code exchange or
// a token refresh. Tokens here are plaintext; the integration service
// encrypts them before anything is persisted.
type OAuthTokenResult struct {
	AccessToken       string
	RefreshToken      string
	ExpiresAt         *time.Time
	ExternalUserID    string
	ExternalUsername  string
	ExternalAvatarURL string
}

// SyncResult summarizes one sync pass.
type SyncResult struct {
	ItemsSynced int       `json:"items_synced"`
	SyncedAt    time.Time `json:"synced_at"`
}

// Provider is the per-provider OAuth + sync contract. Adapters work with
// plaintext tokens only; token storage and encryption stay with the
// integration service.
type Provider interface {
	Provider() models.IntegrationProvider

	// GetAuthURL builds the provider authorization URL with a fresh
	// single-use state token.
	GetAuthURL(ctx context.Context, userID uint, redirectURI, mobileRedirectURI string) (authURL, state string, err error)

	// ExchangeCode swaps the authorization code for tokens and fetches
	// the external profile that identifies the connected account.
	ExchangeCode(ctx context.Context, code, redirectURI string) (*OAuthTokenResult, error)

	// Sync pulls remote state and reconciles it into local rows.
	Sync(ctx context.Context, integration *models.Integration, accessToken string) (*SyncResult, error)

	// RefreshToken rotates an access token. Returns (nil, nil) when the
	// provider has nothing to rotate, e.g. GitHub tokens never expire.
	RefreshToken(ctx context.Context, refreshToken string) (*OAuthTokenResult, error)

	// RevokeAccess is best effort; disconnect proceeds even if it fails.
	RevokeAccess(ctx context.Context, accessToken string) error
}

// ProviderRegistry is a fixed provider-to-adapter table resolved once at
// startup.
type ProviderRegistry map[models.IntegrationProvider]Provider

func NewProviderRegistry(providers ...Provider) ProviderRegistry {
	registry := make(ProviderRegistry, len(providers))
	for _, p := range providers {
		registry[p.Provider()] = p
	}
	return registry
}

func (r ProviderRegistry) Get(provider models.IntegrationProvider) (Provider, error) {
	p, ok := r[provider]
	if !ok {
		return nil, models.NewValidationError("unsupported provider: " + string(provider))
	}
	return p, nil
}

func truncateDescription(s string) string {
	runes := []rune(s)
	if len(runes) <= maxDescriptionLength {
		return s
	}
	return string(runes[:maxDescriptionLength])
}
