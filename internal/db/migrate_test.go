package db

import (
	"testing"

	"github.com/glebarez/sqlite"
	"gorm.io/gorm"
)

func TestMigrateSQLiteSnapshotTable(t *testing.T) {
	conn, errOpen := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{})
	if errOpen != nil {
		t.Fatalf("open sqlite: %v", errOpen)
	}

	if errMigrate := Migrate(conn); errMigrate != nil {
		t.Fatalf("migrate: %v", errMigrate)
	}
	if errMigrate := Migrate(conn); errMigrate != nil {
		t.Fatalf("second migrate: %v", errMigrate)
	}

	for _, column := range []string{"table_name", "model_name", "fingerprint", "definition", "created_at", "updated_at"} {
		if !conn.Migrator().HasColumn("persisted_tables", column) {
			t.Fatalf("persisted_tables missing column %s", column)
		}
	}
}
