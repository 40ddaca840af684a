package repositories

import (
	"context"

	"github.com/samabos/tymblok/models"
	"gorm.io/gorm"
)

// InboxRepository is the narrow inbox contract the sync engine consumes.
// The CRUD API for inbox items lives elsewhere.
type InboxRepository interface {
	// FindByExternalID looks up a user's item by its dedup key, dismissed
	// or not. Returns gorm.ErrRecordNotFound when absent.
	FindByExternalID(ctx context.Context, userID uint, externalID string) (*models.InboxItem, error)
	// FindActiveBySource returns the user's non-dismissed items from one
	// provider, for the cleanup reconciliation pass.
	FindActiveBySource(ctx context.Context, userID uint, source models.InboxSource) ([]models.InboxItem, error)
	Create(ctx context.Context, item *models.InboxItem) error
	Update(ctx context.Context, item *models.InboxItem) error
	// ClearIntegrationID detaches all items from a removed integration
	// while keeping the items themselves.
	ClearIntegrationID(ctx context.Context, integrationID uint) error
}

type inboxRepositoryImpl struct {
	db *gorm.DB
}

func NewInboxRepository(db *gorm.DB) InboxRepository {
	return &inboxRepositoryImpl{db: db}
}

func (r *inboxRepositoryImpl) FindByExternalID(ctx context.Context, userID uint, externalID string) (*models.InboxItem, error) {
	var item models.InboxItem
	err := r.db.WithContext(ctx).
		Where("user_id = ? AND external_id = ?", userID, externalID).
		First(&item).Error
	if err != nil {
		return nil, err
	}
	return &item, nil
}

func (r *inboxRepositoryImpl) FindActiveBySource(ctx context.Context, userID uint, source models.InboxSource) ([]models.InboxItem, error) {
	var items []models.InboxItem
	err := r.db.WithContext(ctx).
		Where("user_id = ? AND source = ? AND is_dismissed = false", userID, source).
		Find(&items).Error
	return items, err
}

func (r *inboxRepositoryImpl) Create(ctx context.Context, item *models.InboxItem) error {
	return r.db.WithContext(ctx).Create(item).Error
}

func (r *inboxRepositoryImpl) Update(ctx context.Context, item *models.InboxItem) error {
	return r.db.WithContext(ctx).Save(item).Error
}

func (r *inboxRepositoryImpl) ClearIntegrationID(ctx context.Context, integrationID uint) error {
	return r.db.WithContext(ctx).
		Model(&models.InboxItem{}).
		Where("integration_id = ?", integrationID).
		Update("integration_id", nil).Error
}
