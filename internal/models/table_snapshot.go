package models

import (
	"time"

	"gorm.io/datatypes"
)

// TableSnapshot records the last materialized shape of a model table.
type TableSnapshot struct {
	Table       string         `gorm:"column:table_name;type:varchar(63);primaryKey"` // Materialized table name.
	ModelName   string         `gorm:"type:varchar(255);not null"`                    // Model that owns the table.
	Fingerprint string         `gorm:"type:varchar(64);not null"`                     // Hash of the storage-relevant definition.
	Definition  datatypes.JSON `gorm:"not null"`                                      // Derived columns and constraints.
	CreatedAt   time.Time      `gorm:"not null;autoCreateTime"`                       // First materialization.
	UpdatedAt   time.Time      `gorm:"not null;autoUpdateTime"`                       // Last materialization.
}

// TableName binds the snapshot model to its table.
func (TableSnapshot) TableName() string { return "persisted_tables" }
