package services

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/samabos/tymblok/config"
	"github.com/samabos/tymblok/models"
	"github.com/samabos/tymblok/repositories"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/oauth2"
	"google.golang.org/api/calendar/v3"
)

type googleFixture struct {
	events []*calendar.Event
}

func (f *googleFixture) handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/calendars/primary/events", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(&calendar.Events{Items: f.events})
	})
	return mux
}

type googleTestEnv struct {
	provider   *GoogleCalendarProvider
	fixture    *googleFixture
	inbox      *repositories.MockInboxRepository
	blocks     *repositories.MockTimeBlockRepository
	categories *repositories.MockCategoryRepository
}

func newGoogleTestEnv(t *testing.T) *googleTestEnv {
	t.Helper()
	fixture := &googleFixture{}
	server := httptest.NewServer(fixture.handler())
	t.Cleanup(server.Close)

	cfg := &config.Config{
		GoogleClientID:     "client-id",
		GoogleClientSecret: "client-secret",
		GoogleScopes:       []string{calendar.CalendarReadonlyScope},
	}
	env := &googleTestEnv{
		fixture:    fixture,
		inbox:      repositories.NewMockInboxRepository(),
		blocks:     repositories.NewMockTimeBlockRepository(),
		categories: repositories.NewMockCategoryRepository(),
	}
	env.provider = NewGoogleCalendarProvider(cfg, NewOAuthStateService(NewMemoryStateStore()), env.inbox, env.blocks, env.categories)
	env.provider.apiEndpoint = server.URL
	return env
}

func googleIntegration() *models.Integration {
	integration := &models.Integration{UserID: 1, Provider: models.ProviderGoogleCalendar}
	integration.ID = 20
	return integration
}

func timedEvent(id, summary string, start, end time.Time) *calendar.Event {
	return &calendar.Event{
		Id:       id,
		Summary:  summary,
		HtmlLink: "https://calendar.google.com/event?eid=" + id,
		Start:    &calendar.EventDateTime{DateTime: start.Format(time.RFC3339)},
		End:      &calendar.EventDateTime{DateTime: end.Format(time.RFC3339)},
	}
}

func allDayEvent(id, summary string) *calendar.Event {
	return &calendar.Event{
		Id:       id,
		Summary:  summary,
		HtmlLink: "https://calendar.google.com/event?eid=" + id,
		Start:    &calendar.EventDateTime{Date: "2026-09-02"},
		End:      &calendar.EventDateTime{Date: "2026-09-03"},
	}
}

func TestGoogleSyncCreatesTimeBlockForTimedEvent(t *testing.T) {
	env := newGoogleTestEnv(t)
	start := time.Now().UTC().Add(2 * time.Hour).Truncate(time.Second)
	end := start.Add(45 * time.Minute)
	event := timedEvent("ev-1", "Sprint planning", start, end)
	event.Location = "Room 4"
	env.fixture.events = []*calendar.Event{event}

	result, err := env.provider.Sync(context.Background(), googleIntegration(), "token")
	require.NoError(t, err)
	assert.Equal(t, 1, result.ItemsSynced)

	rows := env.blocks.Rows()
	require.Len(t, rows, 1)
	block := rows[0]
	assert.Equal(t, "Sprint planning", block.Title)
	assert.Equal(t, "Room 4", block.Location)
	assert.Equal(t, 45, block.DurationMinutes)
	assert.True(t, block.StartTime.Equal(start))
	assert.True(t, block.EndTime.Equal(end))
	assert.True(t, block.Date.Equal(time.Date(start.Year(), start.Month(), start.Day(), 0, 0, 0, 0, start.Location())))
	require.NotNil(t, block.ExternalID)
	assert.Equal(t, "googlecalendar:ev-1", *block.ExternalID)
	require.NotNil(t, block.ExternalSource)
	assert.Equal(t, "googlecalendar", *block.ExternalSource)

	meeting, err := env.categories.FindSystemByName(context.Background(), models.MeetingCategoryName)
	require.NoError(t, err)
	assert.Equal(t, meeting.ID, block.CategoryID)
}

func TestGoogleSyncUpdatesTimeBlockInPlace(t *testing.T) {
	env := newGoogleTestEnv(t)
	start := time.Now().UTC().Add(2 * time.Hour).Truncate(time.Second)
	env.fixture.events = []*calendar.Event{timedEvent("ev-1", "Standup", start, start.Add(15*time.Minute))}
	integration := googleIntegration()

	first, err := env.provider.Sync(context.Background(), integration, "token")
	require.NoError(t, err)
	assert.Equal(t, 1, first.ItemsSynced)

	// Unchanged event must not count as synced again.
	second, err := env.provider.Sync(context.Background(), integration, "token")
	require.NoError(t, err)
	assert.Equal(t, 0, second.ItemsSynced)

	env.fixture.events = []*calendar.Event{timedEvent("ev-1", "Standup (moved)", start.Add(time.Hour), start.Add(time.Hour+15*time.Minute))}
	third, err := env.provider.Sync(context.Background(), integration, "token")
	require.NoError(t, err)
	assert.Equal(t, 1, third.ItemsSynced)

	rows := env.blocks.Rows()
	require.Len(t, rows, 1)
	assert.Equal(t, "Standup (moved)", rows[0].Title)
	assert.True(t, rows[0].StartTime.Equal(start.Add(time.Hour)))
}

func TestGoogleSyncSkipsUntitledAndOutOfRangeEvents(t *testing.T) {
	env := newGoogleTestEnv(t)
	start := time.Now().UTC().Add(2 * time.Hour).Truncate(time.Second)
	env.fixture.events = []*calendar.Event{
		timedEvent("ev-untitled", "", start, start.Add(time.Hour)),
		timedEvent("ev-zero", "Zero length", start, start),
		timedEvent("ev-backwards", "Ends before start", start, start.Add(-time.Hour)),
		timedEvent("ev-marathon", "Two day offsite", start, start.Add(30*time.Hour)),
	}

	result, err := env.provider.Sync(context.Background(), googleIntegration(), "token")
	require.NoError(t, err)
	assert.Equal(t, 0, result.ItemsSynced)
	assert.Empty(t, env.blocks.Rows())
	assert.Empty(t, env.inbox.Rows())
}

func TestGoogleSyncImportsAllDayEventOnce(t *testing.T) {
	env := newGoogleTestEnv(t)
	env.fixture.events = []*calendar.Event{allDayEvent("ev-holiday", "Company holiday")}
	integration := googleIntegration()

	first, err := env.provider.Sync(context.Background(), integration, "token")
	require.NoError(t, err)
	assert.Equal(t, 1, first.ItemsSynced)

	second, err := env.provider.Sync(context.Background(), integration, "token")
	require.NoError(t, err)
	assert.Equal(t, 0, second.ItemsSynced)

	rows := env.inbox.Rows()
	require.Len(t, rows, 1)
	item := rows[0]
	assert.Equal(t, "Company holiday", item.Title)
	assert.Equal(t, models.InboxSourceGoogleCalendar, item.Source)
	assert.Equal(t, models.InboxItemTypeEvent, item.Type)
	assert.Equal(t, models.InboxPriorityMedium, item.Priority)
	require.NotNil(t, item.ExternalID)
	assert.Equal(t, "googlecalendar:ev-holiday", *item.ExternalID)
}

func TestGoogleSyncDismissesRemovedAllDayEvents(t *testing.T) {
	env := newGoogleTestEnv(t)
	env.fixture.events = []*calendar.Event{
		allDayEvent("ev-holiday", "Company holiday"),
		allDayEvent("ev-offsite", "Team offsite"),
	}
	integration := googleIntegration()

	_, err := env.provider.Sync(context.Background(), integration, "token")
	require.NoError(t, err)

	env.fixture.events = []*calendar.Event{allDayEvent("ev-offsite", "Team offsite")}
	_, err = env.provider.Sync(context.Background(), integration, "token")
	require.NoError(t, err)

	for _, item := range env.inbox.Rows() {
		switch *item.ExternalID {
		case "googlecalendar:ev-holiday":
			assert.True(t, item.IsDismissed)
			assert.NotNil(t, item.DismissedAt)
		case "googlecalendar:ev-offsite":
			assert.False(t, item.IsDismissed)
		}
	}
}

func TestGoogleSyncTruncatesLongDescriptions(t *testing.T) {
	env := newGoogleTestEnv(t)
	start := time.Now().UTC().Add(2 * time.Hour).Truncate(time.Second)
	event := timedEvent("ev-1", "All hands", start, start.Add(time.Hour))
	for len(event.Description) < 2000 {
		event.Description += "agenda "
	}
	env.fixture.events = []*calendar.Event{event}

	_, err := env.provider.Sync(context.Background(), googleIntegration(), "token")
	require.NoError(t, err)

	rows := env.blocks.Rows()
	require.Len(t, rows, 1)
	assert.Len(t, []rune(rows[0].Description), maxDescriptionLength)
}

func TestGoogleRefreshTokenWithoutRefreshTokenIsNoop(t *testing.T) {
	env := newGoogleTestEnv(t)
	result, err := env.provider.RefreshToken(context.Background(), "")
	require.NoError(t, err)
	assert.Nil(t, result)
}

func TestGoogleRefreshTokenKeepsOldRefreshTokenWhenOmitted(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/token", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(map[string]any{
			"access_token": "ya29.fresh",
			"token_type":   "Bearer",
			"expires_in":   3600,
		})
	})
	server := httptest.NewServer(mux)
	defer server.Close()

	env := newGoogleTestEnv(t)
	env.provider.oauth.Endpoint = oauth2.Endpoint{
		AuthURL:  server.URL + "/auth",
		TokenURL: server.URL + "/token",
	}

	result, err := env.provider.RefreshToken(context.Background(), "1//old-refresh")
	require.NoError(t, err)
	require.NotNil(t, result)
	assert.Equal(t, "ya29.fresh", result.AccessToken)
	assert.Equal(t, "1//old-refresh", result.RefreshToken)
	require.NotNil(t, result.ExpiresAt)
	assert.WithinDuration(t, time.Now().Add(time.Hour), *result.ExpiresAt, time.Minute)
}

func TestGoogleRevokeAccessPostsToken(t *testing.T) {
	var gotToken string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.NoError(t, r.ParseForm())
		gotToken = r.FormValue("token")
		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	env := newGoogleTestEnv(t)
	env.provider.revokeURL = server.URL

	require.NoError(t, env.provider.RevokeAccess(context.Background(), "ya29.current"))
	assert.Equal(t, "ya29.current", gotToken)
}

func TestGoogleAuthURLRequestsOfflineAccess(t *testing.T) {
	env := newGoogleTestEnv(t)

	authURL, state, err := env.provider.GetAuthURL(context.Background(), 7, "https://app.example.com/callback", "")
	require.NoError(t, err)
	assert.NotEmpty(t, state)
	assert.Contains(t, authURL, "access_type=offline")
	assert.Contains(t, authURL, "prompt=consent")
	assert.Contains(t, authURL, "state="+state)
}
