package repositories

import (
	"context"

	"github.com/samabos/tymblok/models"
	"gorm.io/gorm"
)

// TimeBlockRepository is the narrow time-block contract consumed by the
// Google Calendar adapter.
type TimeBlockRepository interface {
	FindByExternalID(ctx context.Context, userID uint, externalID string) (*models.TimeBlock, error)
	Create(ctx context.Context, block *models.TimeBlock) error
	Update(ctx context.Context, block *models.TimeBlock) error
}

type timeBlockRepositoryImpl struct {
	db *gorm.DB
}

func NewTimeBlockRepository(db *gorm.DB) TimeBlockRepository {
	return &timeBlockRepositoryImpl{db: db}
}

func (r *timeBlockRepositoryImpl) FindByExternalID(ctx context.Context, userID uint, externalID string) (*models.TimeBlock, error) {
	var block models.TimeBlock
	err := r.db.WithContext(ctx).
		Where("user_id = ? AND external_id = ?", userID, externalID).
		First(&block).Error
	if err != nil {
		return nil, err
	}
	return &block, nil
}

func (r *timeBlockRepositoryImpl) Create(ctx context.Context, block *models.TimeBlock) error {
	return r.db.WithContext(ctx).Create(block).Error
}

func (r *timeBlockRepositoryImpl) Update(ctx context.Context, block *models.TimeBlock) error {
	return r.db.WithContext(ctx).Save(block).Error
}
