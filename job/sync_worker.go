// Package job runs the unattended background tasks.
package job

import (
	"context"
	"time"

	"github.com/samabos/tymblok/repositories"
	"github.com/samabos/tymblok/services"
	"github.com/sirupsen/logrus"
)

// SyncWorker periodically syncs every integration that has an access
// token. Each integration is handled in sequence with its own error
// isolation, so one broken provider never kills the loop.
type SyncWorker struct {
	integrations repositories.IntegrationRepository
	service      *services.IntegrationService
	interval     time.Duration
}

func NewSyncWorker(integrations repositories.IntegrationRepository, service *services.IntegrationService, interval time.Duration) *SyncWorker {
	return &SyncWorker{
		integrations: integrations,
		service:      service,
		interval:     interval,
	}
}

// Run blocks until ctx is cancelled.
func (w *SyncWorker) Run(ctx context.Context) error {
	logrus.WithField("interval", w.interval.String()).Info("Integration sync worker started")

	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			logrus.Info("Integration sync worker stopped")
			return ctx.Err()
		case <-ticker.C:
			w.runOnce(ctx)
		}
	}
}

func (w *SyncWorker) runOnce(ctx context.Context) {
	integrations, err := w.integrations.FindAllActive(ctx)
	if err != nil {
		logrus.WithError(err).Error("Failed to list integrations for background sync")
		return
	}

	for _, integration := range integrations {
		if ctx.Err() != nil {
			return
		}
		if _, err := w.service.Sync(ctx, integration.UserID, integration.Provider); err != nil {
			logrus.WithFields(logrus.Fields{
				"provider": integration.Provider,
				"user_id":  integration.UserID,
			}).WithError(err).Error("Background sync failed")
		}
	}
}
