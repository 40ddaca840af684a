package repositories

import (
	"context"

	"github.com/samabos/tymblok/models"
	"gorm.io/gorm"
)

// IntegrationRepository defines the persistence operations the sync engine
// needs for integrations. The engine never issues raw queries.
type IntegrationRepository interface {
	FindByUserAndProvider(ctx context.Context, userID uint, provider models.IntegrationProvider) (*models.Integration, error)
	FindAllByUser(ctx context.Context, userID uint) ([]models.Integration, error)
	// FindAllActive returns every integration with a non-empty access
	// token, across all users. Used by the background worker.
	FindAllActive(ctx context.Context) ([]models.Integration, error)
	Create(ctx context.Context, integration *models.Integration) error
	Update(ctx context.Context, integration *models.Integration) error
	// Delete removes the row permanently. Disconnect is a hard delete so
	// the (user, provider) slot frees up for a future reconnect.
	Delete(ctx context.Context, integration *models.Integration) error
}

type integrationRepositoryImpl struct {
	db *gorm.DB
}

func NewIntegrationRepository(db *gorm.DB) IntegrationRepository {
	return &integrationRepositoryImpl{db: db}
}

func (r *integrationRepositoryImpl) FindByUserAndProvider(ctx context.Context, userID uint, provider models.IntegrationProvider) (*models.Integration, error) {
	var integration models.Integration
	err := r.db.WithContext(ctx).
		Where("user_id = ? AND provider = ?", userID, provider).
		First(&integration).Error
	if err != nil {
		return nil, err
	}
	return &integration, nil
}

func (r *integrationRepositoryImpl) FindAllByUser(ctx context.Context, userID uint) ([]models.Integration, error) {
	var integrations []models.Integration
	err := r.db.WithContext(ctx).
		Where("user_id = ?", userID).
		Find(&integrations).Error
	return integrations, err
}

func (r *integrationRepositoryImpl) FindAllActive(ctx context.Context) ([]models.Integration, error) {
	var integrations []models.Integration
	err := r.db.WithContext(ctx).
		Where("access_token <> ''").
		Find(&integrations).Error
	return integrations, err
}

func (r *integrationRepositoryImpl) Create(ctx context.Context, integration *models.Integration) error {
	return r.db.WithContext(ctx).Create(integration).Error
}

func (r *integrationRepositoryImpl) Update(ctx context.Context, integration *models.Integration) error {
	return r.db.WithContext(ctx).Save(integration).Error
}

func (r *integrationRepositoryImpl) Delete(ctx context.Context, integration *models.Integration) error {
	return r.db.WithContext(ctx).Unscoped().Delete(integration).Error
}
