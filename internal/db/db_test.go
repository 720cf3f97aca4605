package db

import (
	"fmt"
	"path/filepath"
	"testing"
	"time"

	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

func TestMigrateDropsUnsealedSessions(t *testing.T) {
	dsn := fmt.Sprintf("file:db-migrate-%d?mode=memory&cache=shared", time.Now().UnixNano())
	conn, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{Logger: logger.Default.LogMode(logger.Silent)})
	if err != nil {
		t.Fatalf("failed to open database: %v", err)
	}
	t.Cleanup(func() {
		if sqlDB, err := conn.DB(); err == nil {
			sqlDB.Close()
		}
	})

	if err := conn.AutoMigrate(&AdminSession{}); err != nil {
		t.Fatalf("failed to migrate: %v", err)
	}
	rows := []AdminSession{
		{ID: "legacy", UserID: "u1"},
		{ID: "sealed", UserID: "u2", SealedToken: []byte{1, 2, 3}},
	}
	if err := conn.Create(&rows).Error; err != nil {
		t.Fatalf("failed to seed: %v", err)
	}

	if err := Migrate(conn); err != nil {
		t.Fatalf("migrate failed: %v", err)
	}

	var ids []string
	conn.Model(&AdminSession{}).Order("id").Pluck("id", &ids)
	if len(ids) != 1 || ids[0] != "sealed" {
		t.Fatalf("expected only the sealed session to survive, got %v", ids)
	}
}

func TestInitCreatesParentDirectory(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "admin.db")
	if err := Init(path); err != nil {
		t.Fatalf("init failed: %v", err)
	}
	t.Cleanup(func() { Close() })

	if !DB.Migrator().HasTable(&AdminSession{}) {
		t.Fatalf("expected admin_sessions table")
	}
}
