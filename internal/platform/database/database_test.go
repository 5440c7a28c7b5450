package database

import (
	"path/filepath"
	"testing"

	"ontohub/internal/platform/config"
)

func TestMigrate_Idempotent(t *testing.T) {
	db, err := Open(config.DatabaseConfig{URL: "file:" + filepath.Join(t.TempDir(), "sub", "test.db")})
	if err != nil {
		t.Fatalf("Failed to open db: %v", err)
	}
	defer db.Close()

	if err := Migrate(db); err != nil {
		t.Fatalf("first migrate: %v", err)
	}
	if err := Migrate(db); err != nil {
		t.Fatalf("second migrate: %v", err)
	}

	for _, table := range []string{"ontology_packages", "webhooks", "webhook_deliveries"} {
		var name string
		err := db.QueryRow("SELECT name FROM sqlite_master WHERE type = 'table' AND name = ?", table).Scan(&name)
		if err != nil {
			t.Errorf("expected table %s: %v", table, err)
		}
	}

	var applied int
	if err := db.QueryRow("SELECT COUNT(*) FROM schema_migrations").Scan(&applied); err != nil {
		t.Fatalf("count migrations: %v", err)
	}
	if applied != 1 {
		t.Errorf("Expected 1 applied migration, got %d", applied)
	}
}

func TestOpen_RequiresURL(t *testing.T) {
	if _, err := Open(config.DatabaseConfig{}); err == nil {
		t.Error("Expected error for empty url")
	}
}
