package db

import (
	"fmt"

	"github.com/router-for-me/PersistedObjects/internal/models"
	"gorm.io/gorm"
)

// Migrate creates or updates the system tables.
func Migrate(conn *gorm.DB) error {
	if conn == nil {
		return fmt.Errorf("db: nil connection")
	}
	if errMigrate := conn.AutoMigrate(&models.TableSnapshot{}); errMigrate != nil {
		return fmt.Errorf("db: migrate: %w", errMigrate)
	}
	return nil
}
