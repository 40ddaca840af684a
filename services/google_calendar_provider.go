package services

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/samabos/tymblok/config"
	"github.com/samabos/tymblok/models"
	"github.com/samabos/tymblok/repositories"
	"github.com/sirupsen/logrus"
	"golang.org/x/oauth2"
	googleoauth "golang.org/x/oauth2/google"
	"google.golang.org/api/calendar/v3"
	goauth2 "google.golang.org/api/oauth2/v2"
	"google.golang.org/api/option"
	"gorm.io/gorm"
)

const (
	// googleSyncWindow is the rolling forward window of events each sync
	// refetches in full.
	googleSyncWindow   = 30 * 24 * time.Hour
	googleMaxBlockSpan = 24 * time.Hour
	googlePageSize     = 100
	googleRevokeURL    = "https://oauth2.googleapis.com/revoke"
)

// GoogleCalendarProvider imports calendar events: timed events become time
// blocks in the Meeting category, all-day events become inbox items.
type GoogleCalendarProvider struct {
	oauth      *oauth2.Config
	states     *OAuthStateService
	inbox      repositories.InboxRepository
	blocks     repositories.TimeBlockRepository
	categories repositories.CategoryRepository
	// apiEndpoint overrides the Google API base URL in tests.
	apiEndpoint string
	revokeURL   string
}

func NewGoogleCalendarProvider(
	cfg *config.Config,
	states *OAuthStateService,
	inbox repositories.InboxRepository,
	blocks repositories.TimeBlockRepository,
	categories repositories.CategoryRepository,
) *GoogleCalendarProvider {
	return &GoogleCalendarProvider{
		oauth: &oauth2.Config{
			ClientID:     cfg.GoogleClientID,
			ClientSecret: cfg.GoogleClientSecret,
			Scopes:       cfg.GoogleScopes,
			Endpoint:     googleoauth.Endpoint,
		},
		states:     states,
		inbox:      inbox,
		blocks:     blocks,
		categories: categories,
		revokeURL:  googleRevokeURL,
	}
}

func (p *GoogleCalendarProvider) Provider() models.IntegrationProvider {
	return models.ProviderGoogleCalendar
}

func (p *GoogleCalendarProvider) GetAuthURL(ctx context.Context, userID uint, redirectURI, mobileRedirectURI string) (string, string, error) {
	state, err := p.states.GenerateState(ctx, userID, models.ProviderGoogleCalendar, mobileRedirectURI)
	if err != nil {
		return "", "", err
	}

	conf := *p.oauth
	conf.RedirectURL = redirectURI
	// Offline access with forced consent so Google issues a refresh token
	// even on reconnects.
	authURL := conf.AuthCodeURL(state, oauth2.AccessTypeOffline, oauth2.SetAuthURLParam("prompt", "consent"))
	return authURL, state, nil
}

func (p *GoogleCalendarProvider) ExchangeCode(ctx context.Context, code, redirectURI string) (*OAuthTokenResult, error) {
	conf := *p.oauth
	conf.RedirectURL = redirectURI

	token, err := conf.Exchange(ctx, code)
	if err != nil {
		return nil, fmt.Errorf("google code exchange failed: %w", err)
	}

	userinfoService, err := goauth2.NewService(ctx, p.clientOptions(conf.Client(ctx, token))...)
	if err != nil {
		return nil, fmt.Errorf("failed to build userinfo client: %w", err)
	}
	info, err := userinfoService.Userinfo.Get().Context(ctx).Do()
	if err != nil {
		return nil, fmt.Errorf("failed to fetch google profile: %w", err)
	}

	result := &OAuthTokenResult{
		AccessToken:       token.AccessToken,
		RefreshToken:      token.RefreshToken,
		ExternalUserID:    info.Id,
		ExternalUsername:  info.Email,
		ExternalAvatarURL: info.Picture,
	}
	if !token.Expiry.IsZero() {
		expiry := token.Expiry
		result.ExpiresAt = &expiry
	}
	return result, nil
}

func (p *GoogleCalendarProvider) RefreshToken(ctx context.Context, refreshToken string) (*OAuthTokenResult, error) {
	if refreshToken == "" {
		return nil, nil
	}

	source := p.oauth.TokenSource(ctx, &oauth2.Token{RefreshToken: refreshToken})
	token, err := source.Token()
	if err != nil {
		return nil, fmt.Errorf("google token refresh failed: %w", err)
	}

	result := &OAuthTokenResult{
		AccessToken:  token.AccessToken,
		RefreshToken: token.RefreshToken,
	}
	if result.RefreshToken == "" {
		// Google often omits the refresh token on rotation; keep the one
		// we already have.
		result.RefreshToken = refreshToken
	}
	if !token.Expiry.IsZero() {
		expiry := token.Expiry
		result.ExpiresAt = &expiry
	}
	return result, nil
}

func (p *GoogleCalendarProvider) RevokeAccess(ctx context.Context, accessToken string) error {
	form := url.Values{"token": {accessToken}}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.revokeURL, strings.NewReader(form.Encode()))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return fmt.Errorf("google token revocation failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("google token revocation failed: status %d", resp.StatusCode)
	}
	return nil
}

// Sync lists events in the rolling 30-day window, upserts timed events as
// time blocks, imports all-day events into the inbox, then dismisses
// all-day items that disappeared from the window.
func (p *GoogleCalendarProvider) Sync(ctx context.Context, integration *models.Integration, accessToken string) (*SyncResult, error) {
	logger := logrus.WithFields(logrus.Fields{
		"provider": models.ProviderGoogleCalendar,
		"user_id":  integration.UserID,
	})

	client := p.oauth.Client(ctx, &oauth2.Token{AccessToken: accessToken})
	service, err := calendar.NewService(ctx, p.clientOptions(client)...)
	if err != nil {
		return nil, fmt.Errorf("failed to build calendar client: %w", err)
	}

	meeting, err := p.categories.FindSystemByName(ctx, models.MeetingCategoryName)
	if err != nil {
		return nil, fmt.Errorf("meeting category lookup failed: %w", err)
	}

	windowStart := time.Now()
	windowEnd := windowStart.Add(googleSyncWindow)

	synced := 0
	seenAllDay := make(map[string]struct{})
	pageToken := ""
	for {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		call := service.Events.List("primary").
			TimeMin(windowStart.Format(time.RFC3339)).
			TimeMax(windowEnd.Format(time.RFC3339)).
			SingleEvents(true).
			ShowDeleted(false).
			MaxResults(googlePageSize).
			Context(ctx)
		if pageToken != "" {
			call = call.PageToken(pageToken)
		}

		events, err := call.Do()
		if err != nil {
			return nil, fmt.Errorf("google events request failed: %w", err)
		}

		for _, event := range events.Items {
			if err := ctx.Err(); err != nil {
				return nil, err
			}
			if event.Summary == "" {
				continue
			}

			externalID := fmt.Sprintf("%s:%s", models.ProviderGoogleCalendar, event.Id)

			if event.Start != nil && event.Start.DateTime != "" {
				changed, err := p.upsertTimeBlock(ctx, integration, meeting.ID, externalID, event)
				if err != nil {
					return nil, err
				}
				if changed {
					synced++
				}
				continue
			}

			seenAllDay[externalID] = struct{}{}
			created, err := p.importAllDayEvent(ctx, integration, externalID, event)
			if err != nil {
				return nil, err
			}
			if created {
				synced++
			}
		}

		pageToken = events.NextPageToken
		if pageToken == "" {
			break
		}
	}

	// The window is refetched in full each pass, so an all-day item we did
	// not see was deleted or moved out of range. Cleanup stays best effort.
	if err := p.dismissMissingAllDay(ctx, integration, seenAllDay); err != nil {
		logger.WithError(err).Warn("Google Calendar cleanup pass failed")
	}

	return &SyncResult{ItemsSynced: synced, SyncedAt: time.Now().UTC()}, nil
}

// upsertTimeBlock maps a timed event to a time block keyed by external id,
// updating in place when any mapped field drifted. Returns whether a row
// was created or updated.
func (p *GoogleCalendarProvider) upsertTimeBlock(ctx context.Context, integration *models.Integration, categoryID uint, externalID string, event *calendar.Event) (bool, error) {
	start, err := time.Parse(time.RFC3339, event.Start.DateTime)
	if err != nil {
		return false, nil
	}
	end, err := time.Parse(time.RFC3339, event.End.DateTime)
	if err != nil {
		return false, nil
	}

	duration := end.Sub(start)
	if duration <= 0 || duration > googleMaxBlockSpan {
		return false, nil
	}

	date := time.Date(start.Year(), start.Month(), start.Day(), 0, 0, 0, 0, start.Location())
	durationMinutes := int(duration.Minutes())
	source := string(models.ProviderGoogleCalendar)

	existing, err := p.blocks.FindByExternalID(ctx, integration.UserID, externalID)
	if errors.Is(err, gorm.ErrRecordNotFound) {
		block := &models.TimeBlock{
			UserID:          integration.UserID,
			CategoryID:      categoryID,
			Title:           event.Summary,
			Description:     truncateDescription(event.Description),
			Location:        event.Location,
			URL:             event.HtmlLink,
			Date:            date,
			StartTime:       start,
			EndTime:         end,
			DurationMinutes: durationMinutes,
			ExternalID:      &externalID,
			ExternalSource:  &source,
		}
		if err := p.blocks.Create(ctx, block); err != nil {
			return false, fmt.Errorf("failed to create time block: %w", err)
		}
		return true, nil
	}
	if err != nil {
		return false, fmt.Errorf("time block lookup failed: %w", err)
	}

	if existing.Title == event.Summary &&
		existing.Location == event.Location &&
		existing.Date.Equal(date) &&
		existing.StartTime.Equal(start) &&
		existing.EndTime.Equal(end) &&
		existing.DurationMinutes == durationMinutes &&
		existing.URL == event.HtmlLink {
		return false, nil
	}

	existing.Title = event.Summary
	existing.Description = truncateDescription(event.Description)
	existing.Location = event.Location
	existing.URL = event.HtmlLink
	existing.Date = date
	existing.StartTime = start
	existing.EndTime = end
	existing.DurationMinutes = durationMinutes
	if err := p.blocks.Update(ctx, existing); err != nil {
		return false, fmt.Errorf("failed to update time block: %w", err)
	}
	return true, nil
}

func (p *GoogleCalendarProvider) importAllDayEvent(ctx context.Context, integration *models.Integration, externalID string, event *calendar.Event) (bool, error) {
	if _, err := p.inbox.FindByExternalID(ctx, integration.UserID, externalID); err == nil {
		return false, nil
	} else if !errors.Is(err, gorm.ErrRecordNotFound) {
		return false, fmt.Errorf("inbox lookup failed: %w", err)
	}

	item := &models.InboxItem{
		UserID:        integration.UserID,
		Title:         event.Summary,
		Description:   truncateDescription(event.Description),
		URL:           event.HtmlLink,
		Source:        models.InboxSourceGoogleCalendar,
		Type:          models.InboxItemTypeEvent,
		Priority:      models.InboxPriorityMedium,
		ExternalID:    &externalID,
		IntegrationID: &integration.ID,
	}
	if err := p.inbox.Create(ctx, item); err != nil {
		return false, fmt.Errorf("failed to create inbox item: %w", err)
	}
	return true, nil
}

func (p *GoogleCalendarProvider) dismissMissingAllDay(ctx context.Context, integration *models.Integration, seen map[string]struct{}) error {
	items, err := p.inbox.FindActiveBySource(ctx, integration.UserID, models.InboxSourceGoogleCalendar)
	if err != nil {
		return err
	}

	now := time.Now().UTC()
	for i := range items {
		item := items[i]
		if item.ExternalID == nil {
			continue
		}
		if _, ok := seen[*item.ExternalID]; ok {
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

func (p *GoogleCalendarProvider) clientOptions(client *http.Client) []option.ClientOption {
	opts := []option.ClientOption{option.WithHTTPClient(client)}
	if p.apiEndpoint != "" {
		opts = append(opts, option.WithEndpoint(p.apiEndpoint))
	}
	return opts
}
