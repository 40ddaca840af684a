package services

import (
	"context"
	"errors"
	"time"

	"github.com/samabos/tymblok/config"
	"github.com/samabos/tymblok/models"
	"github.com/samabos/tymblok/repositories"
	"github.com/sirupsen/logrus"
	"gorm.io/gorm"
)

// tokenRefreshLeeway is how close to expiry a token gets refreshed before
// a sync uses it.
const tokenRefreshLeeway = 5 * time.Minute

// SyncAllResult aggregates a debounced sync-all pass over every provider a
// user has connected.
type SyncAllResult struct {
	Attempted   int `json:"attempted"`
	Succeeded   int `json:"succeeded"`
	Failed      int `json:"failed"`
	Skipped     int `json:"skipped"`
	ItemsSynced int `json:"items_synced"`
}

// IntegrationService orchestrates the provider adapters: connect flows,
// token lifecycle, sync bookkeeping, and disconnect.
type IntegrationService struct {
	integrations repositories.IntegrationRepository
	inbox        repositories.InboxRepository
	providers    ProviderRegistry
	crypto       *TokenEncryptionService
	states       *OAuthStateService
}

func NewIntegrationService(
	integrations repositories.IntegrationRepository,
	inbox repositories.InboxRepository,
	providers ProviderRegistry,
	crypto *TokenEncryptionService,
	states *OAuthStateService,
) *IntegrationService {
	return &IntegrationService{
		integrations: integrations,
		inbox:        inbox,
		providers:    providers,
		crypto:       crypto,
		states:       states,
	}
}

func (s *IntegrationService) List(ctx context.Context, userID uint) ([]models.Integration, error) {
	return s.integrations.FindAllByUser(ctx, userID)
}

// Connect starts the OAuth flow for a provider the user is not yet
// connected to.
func (s *IntegrationService) Connect(ctx context.Context, userID uint, provider models.IntegrationProvider, redirectURI, mobileRedirectURI string) (string, string, error) {
	adapter, err := s.providers.Get(provider)
	if err != nil {
		return "", "", err
	}

	if _, err := s.integrations.FindByUserAndProvider(ctx, userID, provider); err == nil {
		return "", "", models.NewConflictError(string(provider) + " is already connected")
	} else if !errors.Is(err, gorm.ErrRecordNotFound) {
		return "", "", err
	}

	return adapter.GetAuthURL(ctx, userID, redirectURI, mobileRedirectURI)
}

// Callback completes the OAuth flow: validates state, exchanges the code,
// persists the integration with encrypted tokens, and kicks off one
// best-effort initial sync so the user sees data without waiting for the
// scheduler. The second return value is the mobile redirect target bound
// into the state, when one was requested at connect time.
func (s *IntegrationService) Callback(ctx context.Context, userID uint, provider models.IntegrationProvider, code, state, redirectURI string) (*models.Integration, string, error) {
	adapter, err := s.providers.Get(provider)
	if err != nil {
		return nil, "", err
	}

	data := s.states.ValidateState(ctx, state)
	if data == nil || data.UserID != userID || data.Provider != provider {
		return nil, "", models.NewValidationError("invalid or expired state token")
	}
	mobileRedirectURI := data.MobileRedirectURI

	// Re-check: another device may have finished connecting while this
	// authorization round trip was in flight.
	if _, err := s.integrations.FindByUserAndProvider(ctx, userID, provider); err == nil {
		return nil, "", models.NewConflictError(string(provider) + " is already connected")
	} else if !errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, "", err
	}

	tokens, err := adapter.ExchangeCode(ctx, code, redirectURI)
	if err != nil {
		return nil, "", models.NewIntegrationError("authorization code exchange failed", err)
	}

	encryptedAccess, err := s.crypto.Encrypt(tokens.AccessToken)
	if err != nil {
		return nil, "", err
	}

	integration := &models.Integration{
		UserID:            userID,
		Provider:          provider,
		AccessToken:       encryptedAccess,
		TokenExpiresAt:    tokens.ExpiresAt,
		ExternalUserID:    tokens.ExternalUserID,
		ExternalUsername:  tokens.ExternalUsername,
		ExternalAvatarURL: tokens.ExternalAvatarURL,
	}
	if tokens.RefreshToken != "" {
		encryptedRefresh, err := s.crypto.Encrypt(tokens.RefreshToken)
		if err != nil {
			return nil, "", err
		}
		integration.RefreshToken = &encryptedRefresh
	}

	if err := s.integrations.Create(ctx, integration); err != nil {
		// The unique index is the final backstop for two devices racing
		// past the existence check above.
		if errors.Is(err, gorm.ErrDuplicatedKey) {
			return nil, "", models.NewConflictError(string(provider) + " is already connected")
		}
		return nil, "", err
	}

	logrus.WithFields(logrus.Fields{
		"provider":          provider,
		"user_id":           userID,
		"external_username": tokens.ExternalUsername,
	}).Info("Integration connected")

	if _, err := s.Sync(ctx, userID, provider); err != nil {
		logrus.WithFields(logrus.Fields{
			"provider": provider,
			"user_id":  userID,
		}).WithError(err).Warn("Initial sync after connect failed")
	}

	return integration, mobileRedirectURI, nil
}

// Sync runs one sync pass for the user's integration with this provider.
// Success and failure are both recorded on the integration row; a failure
// is still surfaced to the caller.
func (s *IntegrationService) Sync(ctx context.Context, userID uint, provider models.IntegrationProvider) (*SyncResult, error) {
	adapter, err := s.providers.Get(provider)
	if err != nil {
		return nil, err
	}

	integration, err := s.integrations.FindByUserAndProvider(ctx, userID, provider)
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, models.NewNotFoundError(string(provider) + " is not connected")
	}
	if err != nil {
		return nil, err
	}

	accessToken, err := s.crypto.Decrypt(integration.AccessToken)
	if err != nil {
		// A token that fails authenticated decryption must never be sent
		// upstream as if it were valid.
		return nil, models.NewIntegrationError("stored access token is unreadable", err)
	}

	accessToken = s.refreshIfExpiring(ctx, adapter, integration, accessToken)

	start := time.Now()
	result, err := adapter.Sync(ctx, integration, accessToken)
	config.SyncDuration.WithLabelValues(string(provider)).Observe(time.Since(start).Seconds())

	if err != nil {
		message := err.Error()
		integration.LastSyncError = &message
		if updateErr := s.integrations.Update(ctx, integration); updateErr != nil {
			logrus.WithFields(logrus.Fields{
				"provider": provider,
				"user_id":  userID,
			}).WithError(updateErr).Error("Failed to record sync error")
		}
		config.SyncsTotal.WithLabelValues(string(provider), "failure").Inc()
		return nil, models.NewIntegrationError("provider sync failed", err)
	}

	integration.LastSyncAt = &result.SyncedAt
	integration.LastSyncError = nil
	if err := s.integrations.Update(ctx, integration); err != nil {
		return nil, err
	}

	config.SyncsTotal.WithLabelValues(string(provider), "success").Inc()
	config.ItemsSynced.WithLabelValues(string(provider)).Add(float64(result.ItemsSynced))

	logrus.WithFields(logrus.Fields{
		"provider":     provider,
		"user_id":      userID,
		"items_synced": result.ItemsSynced,
		"duration_ms":  time.Since(start).Milliseconds(),
	}).Info("Integration synced")

	return result, nil
}

// SyncAll syncs every integration of the user whose last sync is older
// than minInterval. One provider failing never blocks the others.
func (s *IntegrationService) SyncAll(ctx context.Context, userID uint, minInterval time.Duration) (*SyncAllResult, error) {
	integrations, err := s.integrations.FindAllByUser(ctx, userID)
	if err != nil {
		return nil, err
	}

	result := &SyncAllResult{}
	cutoff := time.Now().Add(-minInterval)
	for _, integration := range integrations {
		if integration.LastSyncAt != nil && integration.LastSyncAt.After(cutoff) {
			result.Skipped++
			continue
		}

		result.Attempted++
		syncResult, err := s.Sync(ctx, userID, integration.Provider)
		if err != nil {
			result.Failed++
			logrus.WithFields(logrus.Fields{
				"provider": integration.Provider,
				"user_id":  userID,
			}).WithError(err).Error("Sync failed during sync-all")
			continue
		}
		result.Succeeded++
		result.ItemsSynced += syncResult.ItemsSynced
	}
	return result, nil
}

// Disconnect revokes provider access best effort, removes the integration,
// and detaches its inbox items without deleting them.
func (s *IntegrationService) Disconnect(ctx context.Context, userID uint, provider models.IntegrationProvider) error {
	adapter, err := s.providers.Get(provider)
	if err != nil {
		return err
	}

	integration, err := s.integrations.FindByUserAndProvider(ctx, userID, provider)
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return models.NewNotFoundError(string(provider) + " is not connected")
	}
	if err != nil {
		return err
	}

	logger := logrus.WithFields(logrus.Fields{
		"provider": provider,
		"user_id":  userID,
	})

	if accessToken, err := s.crypto.Decrypt(integration.AccessToken); err == nil {
		if err := adapter.RevokeAccess(ctx, accessToken); err != nil {
			logger.WithError(err).Warn("Provider token revocation failed")
		}
	} else {
		logger.WithError(err).Warn("Skipping revocation, stored token unreadable")
	}

	// Synced history stays with the user; only the back-reference goes.
	if err := s.inbox.ClearIntegrationID(ctx, integration.ID); err != nil {
		return err
	}
	if err := s.integrations.Delete(ctx, integration); err != nil {
		return err
	}

	logger.Info("Integration disconnected")
	return nil
}

// refreshIfExpiring rotates the access token when it is about to expire.
// A refresh failure degrades to using the current token: many providers
// honor a short grace period, and the sync error path reports the real
// failure if they do not.
func (s *IntegrationService) refreshIfExpiring(ctx context.Context, adapter Provider, integration *models.Integration, accessToken string) string {
	if integration.TokenExpiresAt == nil || time.Until(*integration.TokenExpiresAt) > tokenRefreshLeeway {
		return accessToken
	}
	if integration.RefreshToken == nil {
		return accessToken
	}

	logger := logrus.WithFields(logrus.Fields{
		"provider": integration.Provider,
		"user_id":  integration.UserID,
	})

	refreshToken, err := s.crypto.Decrypt(*integration.RefreshToken)
	if err != nil {
		logger.WithError(err).Warn("Stored refresh token unreadable, keeping current access token")
		return accessToken
	}

	tokens, err := adapter.RefreshToken(ctx, refreshToken)
	if err != nil {
		logger.WithError(err).Warn("Token refresh failed, keeping current access token")
		return accessToken
	}
	if tokens == nil {
		return accessToken
	}

	encryptedAccess, err := s.crypto.Encrypt(tokens.AccessToken)
	if err != nil {
		logger.WithError(err).Warn("Failed to encrypt refreshed token")
		return accessToken
	}
	integration.AccessToken = encryptedAccess
	integration.TokenExpiresAt = tokens.ExpiresAt
	if tokens.RefreshToken != "" {
		encryptedRefresh, err := s.crypto.Encrypt(tokens.RefreshToken)
		if err == nil {
			integration.RefreshToken = &encryptedRefresh
		}
	}
	if err := s.integrations.Update(ctx, integration); err != nil {
		logger.WithError(err).Warn("Failed to persist refreshed token")
	}

	return tokens.AccessToken
}
