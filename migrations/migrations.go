package migrations

import (
	"fmt"

	"github.com/samabos/tymblok/models"
	"github.com/sirupsen/logrus"
	"gorm.io/gorm"
)

// RunMigrations creates the schema and seeds the system categories.
func RunMigrations(db *gorm.DB) error {
	logrus.Info("Running migrations...")

	if err := db.AutoMigrate(&models.User{}); err != nil {
		return fmt.Errorf("failed to migrate User: %w", err)
	}
	if err := db.AutoMigrate(&models.Category{}); err != nil {
		return fmt.Errorf("failed to migrate Category: %w", err)
	}
	if err := db.AutoMigrate(&models.Integration{}); err != nil {
		return fmt.Errorf("failed to migrate Integration: %w", err)
	}
	if err := db.AutoMigrate(&models.InboxItem{}); err != nil {
		return fmt.Errorf("failed to migrate InboxItem: %w", err)
	}
	if err := db.AutoMigrate(&models.TimeBlock{}); err != nil {
		return fmt.Errorf("failed to migrate TimeBlock: %w", err)
	}

	// Calendar-imported blocks land in the Meeting system category.
	meeting := models.Category{Name: models.MeetingCategoryName, Color: "#4A90D9", IsSystem: true}
	if err := db.Where("name = ? AND is_system = true", models.MeetingCategoryName).
		FirstOrCreate(&meeting).Error; err != nil {
		return fmt.Errorf("failed to seed Meeting category: %w", err)
	}

	logrus.Info("Migrations completed successfully")
	return nil
}
