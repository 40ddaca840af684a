package repositories

import (
	"context"
	"sync"

	"github.com/samabos/tymblok/models"
	"gorm.io/gorm"
)

// In-memory repository doubles used by the service tests. They mirror the
// gorm-backed behavior that matters to callers: ErrRecordNotFound on miss
// and ErrDuplicatedKey when the (user, provider) unique index would fire.

type MockIntegrationRepository struct {
	mu     sync.Mutex
	nextID uint
	rows   []models.Integration
}

func NewMockIntegrationRepository() *MockIntegrationRepository {
	return &MockIntegrationRepository{nextID: 1}
}

func (m *MockIntegrationRepository) FindByUserAndProvider(_ context.Context, userID uint, provider models.IntegrationProvider) (*models.Integration, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for i := range m.rows {
		if m.rows[i].UserID == userID && m.rows[i].Provider == provider {
			row := m.rows[i]
			return &row, nil
		}
	}
	return nil, gorm.ErrRecordNotFound
}

func (m *MockIntegrationRepository) FindAllByUser(_ context.Context, userID uint) ([]models.Integration, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []models.Integration
	for _, row := range m.rows {
		if row.UserID == userID {
			out = append(out, row)
		}
	}
	return out, nil
}

func (m *MockIntegrationRepository) FindAllActive(_ context.Context) ([]models.Integration, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []models.Integration
	for _, row := range m.rows {
		if row.AccessToken != "" {
			out = append(out, row)
		}
	}
	return out, nil
}

func (m *MockIntegrationRepository) Create(_ context.Context, integration *models.Integration) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, row := range m.rows {
		if row.UserID == integration.UserID && row.Provider == integration.Provider {
			return gorm.ErrDuplicatedKey
		}
	}
	integration.ID = m.nextID
	m.nextID++
	m.rows = append(m.rows, *integration)
	return nil
}

func (m *MockIntegrationRepository) Update(_ context.Context, integration *models.Integration) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for i := range m.rows {
		if m.rows[i].ID == integration.ID {
			m.rows[i] = *integration
			return nil
		}
	}
	return gorm.ErrRecordNotFound
}

func (m *MockIntegrationRepository) Delete(_ context.Context, integration *models.Integration) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for i := range m.rows {
		if m.rows[i].ID == integration.ID {
			m.rows = append(m.rows[:i], m.rows[i+1:]...)
			return nil
		}
	}
	return gorm.ErrRecordNotFound
}

func (m *MockIntegrationRepository) Rows() []models.Integration {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]models.Integration(nil), m.rows...)
}

type MockInboxRepository struct {
	mu     sync.Mutex
	nextID uint
	rows   []models.InboxItem
}

func NewMockInboxRepository() *MockInboxRepository {
	return &MockInboxRepository{nextID: 1}
}

func (m *MockInboxRepository) FindByExternalID(_ context.Context, userID uint, externalID string) (*models.InboxItem, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for i := range m.rows {
		if m.rows[i].UserID == userID && m.rows[i].ExternalID != nil && *m.rows[i].ExternalID == externalID {
			row := m.rows[i]
			return &row, nil
		}
	}
	return nil, gorm.ErrRecordNotFound
}

func (m *MockInboxRepository) FindActiveBySource(_ context.Context, userID uint, source models.InboxSource) ([]models.InboxItem, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []models.InboxItem
	for _, row := range m.rows {
		if row.UserID == userID && row.Source == source && !row.IsDismissed {
			out = append(out, row)
		}
	}
	return out, nil
}

func (m *MockInboxRepository) Create(_ context.Context, item *models.InboxItem) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	item.ID = m.nextID
	m.nextID++
	m.rows = append(m.rows, *item)
	return nil
}

func (m *MockInboxRepository) Update(_ context.Context, item *models.InboxItem) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for i := range m.rows {
		if m.rows[i].ID == item.ID {
			m.rows[i] = *item
			return nil
		}
	}
	return gorm.ErrRecordNotFound
}

func (m *MockInboxRepository) ClearIntegrationID(_ context.Context, integrationID uint) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for i := range m.rows {
		if m.rows[i].IntegrationID != nil && *m.rows[i].IntegrationID == integrationID {
			m.rows[i].IntegrationID = nil
		}
	}
	return nil
}

func (m *MockInboxRepository) Rows() []models.InboxItem {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]models.InboxItem(nil), m.rows...)
}

type MockTimeBlockRepository struct {
	mu     sync.Mutex
	nextID uint
	rows   []models.TimeBlock
}

func NewMockTimeBlockRepository() *MockTimeBlockRepository {
	return &MockTimeBlockRepository{nextID: 1}
}

func (m *MockTimeBlockRepository) FindByExternalID(_ context.Context, userID uint, externalID string) (*models.TimeBlock, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for i := range m.rows {
		if m.rows[i].UserID == userID && m.rows[i].ExternalID != nil && *m.rows[i].ExternalID == externalID {
			row := m.rows[i]
			return &row, nil
		}
	}
	return nil, gorm.ErrRecordNotFound
}

func (m *MockTimeBlockRepository) Create(_ context.Context, block *models.TimeBlock) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	block.ID = m.nextID
	m.nextID++
	m.rows = append(m.rows, *block)
	return nil
}

func (m *MockTimeBlockRepository) Update(_ context.Context, block *models.TimeBlock) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for i := range m.rows {
		if m.rows[i].ID == block.ID {
			m.rows[i] = *block
			return nil
		}
	}
	return gorm.ErrRecordNotFound
}

func (m *MockTimeBlockRepository) Rows() []models.TimeBlock {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]models.TimeBlock(nil), m.rows...)
}

type MockCategoryRepository struct {
	mu     sync.Mutex
	nextID uint
	rows   []models.Category
}

// NewMockCategoryRepository starts with the seeded Meeting system category,
// matching what migrations guarantee in production.
func NewMockCategoryRepository() *MockCategoryRepository {
	m := &MockCategoryRepository{nextID: 1}
	m.rows = append(m.rows, models.Category{
		Model:    gorm.Model{ID: m.nextID},
		Name:     models.MeetingCategoryName,
		IsSystem: true,
	})
	m.nextID++
	return m
}

func (m *MockCategoryRepository) FindSystemByName(_ context.Context, name string) (*models.Category, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for i := range m.rows {
		if m.rows[i].Name == name && m.rows[i].IsSystem {
			row := m.rows[i]
			return &row, nil
		}
	}
	return nil, gorm.ErrRecordNotFound
}

func (m *MockCategoryRepository) Create(_ context.Context, category *models.Category) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	category.ID = m.nextID
	m.nextID++
	m.rows = append(m.rows, *category)
	return nil
}
