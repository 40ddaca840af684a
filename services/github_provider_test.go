package services

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"net/url"
	"testing"
	"time"

	"github.com/samabos/tymblok/config"
	"github.com/samabos/tymblok/models"
	"github.com/samabos/tymblok/repositories"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/oauth2"
)

type fakeNotification struct {
	reason      string
	subjectType string
	title       string
	owner       string
	repo        string
	number      int
}

func notificationJSON(n fakeNotification) map[string]any {
	return map[string]any{
		"id":     "n-" + n.title,
		"reason": n.reason,
		"subject": map[string]any{
			"title": n.title,
			"type":  n.subjectType,
			"url":   fmt.Sprintf("https://api.github.com/repos/%s/%s/pulls/%d", n.owner, n.repo, n.number),
		},
		"repository": map[string]any{
			"full_name": n.owner + "/" + n.repo,
		},
	}
}

func reviewRequest(owner, repo string, number int) fakeNotification {
	return fakeNotification{
		reason:      "review_requested",
		subjectType: "PullRequest",
		title:       fmt.Sprintf("PR %d", number),
		owner:       owner,
		repo:        repo,
		number:      number,
	}
}

// githubFixture serves the notification endpoints: incremental requests
// carry a since param, the cleanup refetch does not.
type githubFixture struct {
	incremental  []fakeNotification
	active       []fakeNotification
	remaining    string
	failCleanup  bool
	mainRequests int
}

func (f *githubFixture) handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/notifications", func(w http.ResponseWriter, r *http.Request) {
		source := f.active
		if r.URL.Query().Get("since") != "" {
			f.mainRequests++
			source = f.incremental
		} else if f.failCleanup {
			w.WriteHeader(http.StatusInternalServerError)
			return
		}

		if f.remaining != "" {
			w.Header().Set("X-RateLimit-Remaining", f.remaining)
		}
		payload := make([]map[string]any, 0, len(source))
		for _, n := range source {
			payload = append(payload, notificationJSON(n))
		}
		json.NewEncoder(w).Encode(payload)
	})
	return mux
}

func newGitHubTestProvider(t *testing.T, fixture *githubFixture, inbox repositories.InboxRepository) *GitHubProvider {
	t.Helper()
	server := httptest.NewServer(fixture.handler())
	t.Cleanup(server.Close)

	cfg := &config.Config{
		GitHubClientID:     "client-id",
		GitHubClientSecret: "client-secret",
		GitHubScopes:       []string{"notifications", "read:user"},
		SyncMaxItems:       50,
		RateLimitThreshold: 10,
	}
	provider := NewGitHubProvider(cfg, NewOAuthStateService(NewMemoryStateStore()), inbox)
	provider.apiBaseURL = server.URL
	return provider
}

func githubIntegration() *models.Integration {
	integration := &models.Integration{UserID: 1, Provider: models.ProviderGitHub}
	integration.ID = 10
	return integration
}

func TestGitHubSyncImportsReviewRequests(t *testing.T) {
	fixture := &githubFixture{
		incremental: []fakeNotification{
			reviewRequest("acme", "api", 42),
			{reason: "mention", subjectType: "PullRequest", title: "mentioned", owner: "acme", repo: "api", number: 43},
			{reason: "review_requested", subjectType: "Issue", title: "issue", owner: "acme", repo: "api", number: 44},
		},
		active: []fakeNotification{reviewRequest("acme", "api", 42)},
	}
	inbox := repositories.NewMockInboxRepository()
	provider := newGitHubTestProvider(t, fixture, inbox)

	result, err := provider.Sync(context.Background(), githubIntegration(), "token")
	require.NoError(t, err)
	assert.Equal(t, 1, result.ItemsSynced)
	assert.WithinDuration(t, time.Now(), result.SyncedAt, time.Minute)

	rows := inbox.Rows()
	require.Len(t, rows, 1)
	item := rows[0]
	assert.Equal(t, "PR 42", item.Title)
	assert.Equal(t, models.InboxSourceGitHub, item.Source)
	assert.Equal(t, models.InboxPriorityHigh, item.Priority)
	assert.Equal(t, "https://github.com/acme/api/pull/42", item.URL)
	require.NotNil(t, item.ExternalID)
	assert.Equal(t, "github:acme/api#42", *item.ExternalID)
	require.NotNil(t, item.IntegrationID)
	assert.Equal(t, uint(10), *item.IntegrationID)
}

func TestGitHubSyncIsIdempotent(t *testing.T) {
	fixture := &githubFixture{
		incremental: []fakeNotification{reviewRequest("acme", "api", 42)},
		active:      []fakeNotification{reviewRequest("acme", "api", 42)},
	}
	inbox := repositories.NewMockInboxRepository()
	provider := newGitHubTestProvider(t, fixture, inbox)
	integration := githubIntegration()

	first, err := provider.Sync(context.Background(), integration, "token")
	require.NoError(t, err)
	assert.Equal(t, 1, first.ItemsSynced)

	second, err := provider.Sync(context.Background(), integration, "token")
	require.NoError(t, err)
	assert.Equal(t, 0, second.ItemsSynced)
	assert.Len(t, inbox.Rows(), 1)
}

func TestGitHubSyncHonorsItemCap(t *testing.T) {
	fixture := &githubFixture{
		incremental: []fakeNotification{
			reviewRequest("acme", "api", 1),
			reviewRequest("acme", "api", 2),
			reviewRequest("acme", "api", 3),
		},
	}
	inbox := repositories.NewMockInboxRepository()
	provider := newGitHubTestProvider(t, fixture, inbox)
	provider.maxItems = 2

	result, err := provider.Sync(context.Background(), githubIntegration(), "token")
	require.NoError(t, err)
	assert.Equal(t, 2, result.ItemsSynced)
	assert.Len(t, inbox.Rows(), 2)
}

func TestGitHubSyncStopsWhenRateLimitLow(t *testing.T) {
	// A full page would normally trigger a fetch of the next one; the low
	// remaining quota must stop pagination first.
	var full []fakeNotification
	for i := 1; i <= githubPageSize; i++ {
		full = append(full, reviewRequest("acme", "api", i))
	}
	fixture := &githubFixture{incremental: full, remaining: "5"}
	inbox := repositories.NewMockInboxRepository()
	provider := newGitHubTestProvider(t, fixture, inbox)
	provider.maxItems = 200

	result, err := provider.Sync(context.Background(), githubIntegration(), "token")
	require.NoError(t, err)
	assert.Equal(t, githubPageSize, result.ItemsSynced)
	assert.Equal(t, 1, fixture.mainRequests)
}

func TestGitHubCleanupDismissesResolvedItems(t *testing.T) {
	fixture := &githubFixture{
		incremental: []fakeNotification{reviewRequest("acme", "api", 42)},
		active:      []fakeNotification{reviewRequest("acme", "api", 42)},
	}
	inbox := repositories.NewMockInboxRepository()

	resolvedID := "github:acme/api#1"
	require.NoError(t, inbox.Create(context.Background(), &models.InboxItem{
		UserID:     1,
		Title:      "PR 1",
		Source:     models.InboxSourceGitHub,
		ExternalID: &resolvedID,
	}))

	provider := newGitHubTestProvider(t, fixture, inbox)
	_, err := provider.Sync(context.Background(), githubIntegration(), "token")
	require.NoError(t, err)

	var resolved, current *models.InboxItem
	for _, row := range inbox.Rows() {
		row := row
		switch *row.ExternalID {
		case resolvedID:
			resolved = &row
		case "github:acme/api#42":
			current = &row
		}
	}
	require.NotNil(t, resolved)
	assert.True(t, resolved.IsDismissed)
	assert.NotNil(t, resolved.DismissedAt)
	require.NotNil(t, current)
	assert.False(t, current.IsDismissed)
}

func TestGitHubCleanupFailureDoesNotFailSync(t *testing.T) {
	fixture := &githubFixture{
		incremental: []fakeNotification{reviewRequest("acme", "api", 42)},
		failCleanup: true,
	}
	inbox := repositories.NewMockInboxRepository()
	provider := newGitHubTestProvider(t, fixture, inbox)

	result, err := provider.Sync(context.Background(), githubIntegration(), "token")
	require.NoError(t, err)
	assert.Equal(t, 1, result.ItemsSynced)
}

func TestGitHubSyncStopsOnCancelledContext(t *testing.T) {
	fixture := &githubFixture{incremental: []fakeNotification{reviewRequest("acme", "api", 42)}}
	inbox := repositories.NewMockInboxRepository()
	provider := newGitHubTestProvider(t, fixture, inbox)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := provider.Sync(ctx, githubIntegration(), "token")
	assert.ErrorIs(t, err, context.Canceled)
}

func TestGitHubExchangeCodeFetchesProfile(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/login/oauth/access_token", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(map[string]string{
			"access_token": "gho_fresh",
			"token_type":   "bearer",
		})
	})
	mux.HandleFunc("/user", func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(map[string]any{
			"id":         99,
			"login":      "octocat",
			"avatar_url": "https://example.com/a.png",
		})
	})
	server := httptest.NewServer(mux)
	defer server.Close()

	cfg := &config.Config{GitHubClientID: "client-id", GitHubClientSecret: "client-secret", SyncMaxItems: 50, RateLimitThreshold: 10}
	provider := NewGitHubProvider(cfg, NewOAuthStateService(NewMemoryStateStore()), repositories.NewMockInboxRepository())
	provider.apiBaseURL = server.URL
	provider.oauth.Endpoint = oauth2.Endpoint{
		AuthURL:   server.URL + "/login/oauth/authorize",
		TokenURL:  server.URL + "/login/oauth/access_token",
		AuthStyle: oauth2.AuthStyleInParams,
	}

	result, err := provider.ExchangeCode(context.Background(), "the-code", "https://app.example.com/callback")
	require.NoError(t, err)
	assert.Equal(t, "gho_fresh", result.AccessToken)
	assert.Equal(t, "99", result.ExternalUserID)
	assert.Equal(t, "octocat", result.ExternalUsername)
	assert.Equal(t, "https://example.com/a.png", result.ExternalAvatarURL)
	assert.Nil(t, result.ExpiresAt)
}

func TestGitHubAuthURLCarriesValidState(t *testing.T) {
	states := NewOAuthStateService(NewMemoryStateStore())
	cfg := &config.Config{GitHubClientID: "client-id", GitHubScopes: []string{"notifications"}, SyncMaxItems: 50, RateLimitThreshold: 10}
	provider := NewGitHubProvider(cfg, states, repositories.NewMockInboxRepository())

	authURL, state, err := provider.GetAuthURL(context.Background(), 7, "https://app.example.com/callback", "tymblok://done")
	require.NoError(t, err)

	parsed, err := url.Parse(authURL)
	require.NoError(t, err)
	assert.Equal(t, "client-id", parsed.Query().Get("client_id"))
	assert.Equal(t, state, parsed.Query().Get("state"))
	assert.Equal(t, "https://app.example.com/callback", parsed.Query().Get("redirect_uri"))

	data := states.ValidateState(context.Background(), state)
	require.NotNil(t, data)
	assert.Equal(t, uint(7), data.UserID)
	assert.Equal(t, models.ProviderGitHub, data.Provider)
	assert.Equal(t, "tymblok://done", data.MobileRedirectURI)
}

func TestPullRequestIdentity(t *testing.T) {
	externalID, htmlURL, ok := pullRequestIdentity("https://api.github.com/repos/acme/api/pulls/42")
	require.True(t, ok)
	assert.Equal(t, "github:acme/api#42", externalID)
	assert.Equal(t, "https://github.com/acme/api/pull/42", htmlURL)

	for _, bad := range []string{
		"",
		"https://api.github.com/repos/acme/api/issues/42",
		"https://api.github.com/notifications/threads/1",
		"https://api.github.com/repos/acme/api/pulls/",
	} {
		_, _, ok := pullRequestIdentity(bad)
		assert.False(t, ok, bad)
	}
}
