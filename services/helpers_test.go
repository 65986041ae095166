package services

import (
	"path/filepath"
	"testing"
	"time"

	"options_watchlist_backend/models"

	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// newTestDB opens a throwaway sqlite database with all models migrated
func newTestDB(t *testing.T) *gorm.DB {
	t.Helper()

	path := filepath.Join(t.TempDir(), "test.db")
	db, err := gorm.Open(sqlite.Open(path), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		t.Fatalf("failed to open test database: %v", err)
	}

	if err := models.MigrateTrackingModels(db); err != nil {
		t.Fatalf("failed to migrate tracking models: %v", err)
	}
	if err := models.MigrateSnapshotModels(db); err != nil {
		t.Fatalf("failed to migrate snapshot models: %v", err)
	}
	return db
}

func floatPtr(v float64) *float64 {
	return &v
}

func mustTime(t *testing.T, value string) time.Time {
	t.Helper()
	parsed, err := time.Parse(time.RFC3339, value)
	if err != nil {
		t.Fatalf("bad test time %q: %v", value, err)
	}
	return parsed
}
