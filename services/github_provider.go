package services

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/samabos/tymblok/config"
	"github.com/samabos/tymblok/models"
	"github.com/samabos/tymblok/repositories"
	"github.com/sirupsen/logrus"
	"golang.org/x/oauth2"
	githuboauth "golang.org/x/oauth2/github"
	"gorm.io/gorm"
)

const (
	githubAPIBaseURL = "https://api.github.com"
	// githubFirstSyncWindow is how far back the first sync of a fresh
	// integration looks for notifications.
	githubFirstSyncWindow = 7 * 24 * time.Hour
	githubPageSize        = 50
)

// GitHubProvider imports review-requested pull requests from the user's
// participating notifications into the inbox.
type GitHubProvider struct {
	oauth      *oauth2.Config
	states     *OAuthStateService
	inbox      repositories.InboxRepository
	apiBaseURL string
	maxItems   int
	rateFloor  int
}

func NewGitHubProvider(cfg *config.Config, states *OAuthStateService, inbox repositories.InboxRepository) *GitHubProvider {
	return &GitHubProvider{
		oauth: &oauth2.Config{
			ClientID:     cfg.GitHubClientID,
			ClientSecret: cfg.GitHubClientSecret,
			Scopes:       cfg.GitHubScopes,
			Endpoint:     githuboauth.Endpoint,
		},
		states:     states,
		inbox:      inbox,
		apiBaseURL: githubAPIBaseURL,
		maxItems:   cfg.SyncMaxItems,
		rateFloor:  cfg.RateLimitThreshold,
	}
}

func (p *GitHubProvider) Provider() models.IntegrationProvider {
	return models.ProviderGitHub
}

func (p *GitHubProvider) GetAuthURL(ctx context.Context, userID uint, redirectURI, mobileRedirectURI string) (string, string, error) {
	state, err := p.states.GenerateState(ctx, userID, models.ProviderGitHub, mobileRedirectURI)
	if err != nil {
		return "", "", err
	}

	conf := *p.oauth
	conf.RedirectURL = redirectURI
	return conf.AuthCodeURL(state), state, nil
}

func (p *GitHubProvider) ExchangeCode(ctx context.Context, code, redirectURI string) (*OAuthTokenResult, error) {
	conf := *p.oauth
	conf.RedirectURL = redirectURI

	token, err := conf.Exchange(ctx, code)
	if err != nil {
		return nil, fmt.Errorf("github code exchange failed: %w", err)
	}

	profile, err := p.fetchProfile(ctx, conf.Client(ctx, token))
	if err != nil {
		return nil, err
	}

	result := &OAuthTokenResult{
		AccessToken:       token.AccessToken,
		RefreshToken:      token.RefreshToken,
		ExternalUserID:    strconv.FormatInt(profile.ID, 10),
		ExternalUsername:  profile.Login,
		ExternalAvatarURL: profile.AvatarURL,
	}
	if !token.Expiry.IsZero() {
		expiry := token.Expiry
		result.ExpiresAt = &expiry
	}
	return result, nil
}

// RefreshToken is a no-op: classic GitHub OAuth tokens do not expire.
func (p *GitHubProvider) RefreshToken(context.Context, string) (*OAuthTokenResult, error) {
	return nil, nil
}

// RevokeAccess deletes the OAuth app grant, invalidating every token the
// app holds for this account.
func (p *GitHubProvider) RevokeAccess(ctx context.Context, accessToken string) error {
	body, _ := json.Marshal(map[string]string{"access_token": accessToken})
	endpoint := fmt.Sprintf("%s/applications/%s/grant", p.apiBaseURL, p.oauth.ClientID)

	req, err := http.NewRequestWithContext(ctx, http.MethodDelete, endpoint, bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.SetBasicAuth(p.oauth.ClientID, p.oauth.ClientSecret)
	req.Header.Set("Accept", "application/vnd.github+json")

	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return fmt.Errorf("github grant revocation failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusNoContent && resp.StatusCode != http.StatusNotFound {
		return fmt.Errorf("github grant revocation failed: status %d", resp.StatusCode)
	}
	return nil
}

// Sync imports review-requested pull requests since the last sync, then
// runs a best-effort cleanup pass that dismisses items whose PRs are no
// longer in the active notification set.
func (p *GitHubProvider) Sync(ctx context.Context, integration *models.Integration, accessToken string) (*SyncResult, error) {
	logger := logrus.WithFields(logrus.Fields{
		"provider": models.ProviderGitHub,
		"user_id":  integration.UserID,
	})

	client := p.oauth.Client(ctx, &oauth2.Token{AccessToken: accessToken})

	since := time.Now().Add(-githubFirstSyncWindow)
	if integration.LastSyncAt != nil {
		since = *integration.LastSyncAt
	}

	synced, err := p.importNotifications(ctx, client, integration, since, logger)
	if err != nil {
		return nil, err
	}

	// Cleanup is reconciliation, not correctness: a failure here must not
	// fail a sync that already imported items.
	if err := p.cleanupResolved(ctx, client, integration); err != nil {
		logger.WithError(err).Warn("GitHub cleanup pass failed")
	}

	return &SyncResult{ItemsSynced: synced, SyncedAt: time.Now().UTC()}, nil
}

func (p *GitHubProvider) importNotifications(ctx context.Context, client *http.Client, integration *models.Integration, since time.Time, logger *logrus.Entry) (int, error) {
	synced := 0
	for page := 1; ; page++ {
		if err := ctx.Err(); err != nil {
			return synced, err
		}

		notifications, remaining, err := p.fetchNotifications(ctx, client, since, page)
		if err != nil {
			// A failed follow-up page stops pagination early instead of
			// discarding what earlier pages already imported.
			if page > 1 {
				logger.WithError(err).WithField("page", page).Warn("Stopping notification pagination early")
				return synced, nil
			}
			return 0, err
		}

		for _, n := range notifications {
			if err := ctx.Err(); err != nil {
				return synced, err
			}
			if n.Reason != "review_requested" || n.Subject.Type != "PullRequest" {
				continue
			}

			externalID, htmlURL, ok := pullRequestIdentity(n.Subject.URL)
			if !ok {
				continue
			}

			if _, err := p.inbox.FindByExternalID(ctx, integration.UserID, externalID); err == nil {
				continue
			} else if !errors.Is(err, gorm.ErrRecordNotFound) {
				return synced, fmt.Errorf("inbox lookup failed: %w", err)
			}

			item := &models.InboxItem{
				UserID:        integration.UserID,
				Title:         n.Subject.Title,
				Description:   truncateDescription("Review requested in " + n.Repository.FullName),
				URL:           htmlURL,
				Source:        models.InboxSourceGitHub,
				Type:          models.InboxItemTypeTask,
				Priority:      models.InboxPriorityHigh,
				ExternalID:    &externalID,
				IntegrationID: &integration.ID,
			}
			if err := p.inbox.Create(ctx, item); err != nil {
				return synced, fmt.Errorf("failed to create inbox item: %w", err)
			}
			synced++

			if synced >= p.maxItems {
				logger.WithField("max_items", p.maxItems).Info("Per-sync item cap reached")
				return synced, nil
			}
		}

		if remaining >= 0 && remaining < p.rateFloor {
			logger.WithField("remaining", remaining).Warn("Rate limit quota low, stopping pagination")
			return synced, nil
		}
		if len(notifications) < githubPageSize {
			return synced, nil
		}
	}
}

// cleanupResolved refetches the full active notification set and dismisses
// previously synced items whose pull request is no longer in it (merged,
// closed, or review completed outside the app).
func (p *GitHubProvider) cleanupResolved(ctx context.Context, client *http.Client, integration *models.Integration) error {
	active := make(map[string]struct{})
	for page := 1; ; page++ {
		if err := ctx.Err(); err != nil {
			return err
		}
		notifications, _, err := p.fetchNotifications(ctx, client, time.Time{}, page)
		if err != nil {
			return err
		}
		for _, n := range notifications {
			if n.Subject.Type != "PullRequest" {
				continue
			}
			if externalID, _, ok := pullRequestIdentity(n.Subject.URL); ok {
				active[externalID] = struct{}{}
			}
		}
		if len(notifications) < githubPageSize {
			break
		}
	}

	items, err := p.inbox.FindActiveBySource(ctx, integration.UserID, models.InboxSourceGitHub)
	if err != nil {
		return err
	}

	now := time.Now().UTC()
	for i := range items {
		item := items[i]
		if item.ExternalID == nil {
			continue
		}
		if _, stillActive := active[*item.ExternalID]; stillActive {
			continue
		}
		item.IsDismissed = true
		item.DismissedAt = &now
		if err := p.inbox.Update(ctx, &item); err != nil {
			return err
		}
	}
	return nil
}

type githubNotification struct {
	ID      string `json:"id"`
	Reason  string `json:"reason"`
	Subject struct {
		Title string `json:"title"`
		URL   string `json:"url"`
		Type  string `json:"type"`
	} `json:"subject"`
	Repository struct {
		FullName string `json:"full_name"`
	} `json:"repository"`
}

// fetchNotifications returns one page of participating notifications plus
// the remaining rate-limit quota (-1 when the header is absent). A zero
// since time fetches the full active set.
func (p *GitHubProvider) fetchNotifications(ctx context.Context, client *http.Client, since time.Time, page int) ([]githubNotification, int, error) {
	query := url.Values{}
	query.Set("participating", "true")
	query.Set("per_page", strconv.Itoa(githubPageSize))
	query.Set("page", strconv.Itoa(page))
	if !since.IsZero() {
		query.Set("since", since.UTC().Format(time.RFC3339))
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, p.apiBaseURL+"/notifications?"+query.Encode(), nil)
	if err != nil {
		return nil, -1, err
	}
	req.Header.Set("Accept", "application/vnd.github+json")

	resp, err := client.Do(req)
	if err != nil {
		return nil, -1, fmt.Errorf("github notifications request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, -1, fmt.Errorf("github notifications request failed: status %d", resp.StatusCode)
	}

	remaining := -1
	if v := resp.Header.Get("X-RateLimit-Remaining"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			remaining = n
		}
	}

	var notifications []githubNotification
	if err := json.NewDecoder(resp.Body).Decode(&notifications); err != nil {
		return nil, remaining, fmt.Errorf("failed to decode notifications: %w", err)
	}
	return notifications, remaining, nil
}

type githubProfile struct {
	ID        int64  `json:"id"`
	Login     string `json:"login"`
	AvatarURL string `json:"avatar_url"`
}

func (p *GitHubProvider) fetchProfile(ctx context.Context, client *http.Client) (*githubProfile, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, p.apiBaseURL+"/user", nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Accept", "application/vnd.github+json")

	resp, err := client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch github profile: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("failed to fetch github profile: status %d", resp.StatusCode)
	}

	var profile githubProfile
	if err := json.NewDecoder(resp.Body).Decode(&profile); err != nil {
		return nil, fmt.Errorf("failed to decode github profile: %w", err)
	}
	return &profile, nil
}

// pullRequestIdentity derives the stable dedup key and the browser URL for
// a pull request from its API subject URL. Notification ids are not stable
// across refetches, so the key is built from owner/repo/number instead.
func pullRequestIdentity(subjectURL string) (externalID, htmlURL string, ok bool) {
	_, after, found := strings.Cut(subjectURL, "/repos/")
	if !found {
		return "", "", false
	}
	parts := strings.Split(after, "/")
	if len(parts) != 4 || parts[2] != "pulls" {
		return "", "", false
	}
	owner, repo, number := parts[0], parts[1], parts[3]
	if owner == "" || repo == "" || number == "" {
		return "", "", false
	}

	externalID = fmt.Sprintf("%s:%s/%s#%s", models.ProviderGitHub, owner, repo, number)
	htmlURL = fmt.Sprintf("https://github.com/%s/%s/pull/%s", owner, repo, number)
	return externalID, htmlURL, true
}
