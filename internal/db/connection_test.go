package db

import (
	"net/url"
	"strings"
	"testing"
)

func TestConfigDSN(t *testing.T) {
	cfg := DefaultConfig()
	dsn := cfg.DSN()
	for _, part := range []string{"host=localhost", "port=5432", "dbname=clinic_leads", "sslmode=disable"} {
		if !strings.Contains(dsn, part) {
			t.Fatalf("expected dsn to contain %q, got %s", part, dsn)
		}
	}
}

func TestConfigMigrationURL(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Password = "p@ss word"

	parsed, err := url.Parse(cfg.MigrationURL())
	if err != nil {
		t.Fatalf("migration url did not parse: %v", err)
	}
	if parsed.Scheme != "pgx5" {
		t.Fatalf("expected pgx5 scheme, got %s", parsed.Scheme)
	}
	if parsed.Host != "localhost:5432" {
		t.Fatalf("unexpected host %s", parsed.Host)
	}
	if parsed.Path != "/clinic_leads" {
		t.Fatalf("unexpected path %s", parsed.Path)
	}
	if password, _ := parsed.User.Password(); password != "p@ss word" {
		t.Fatalf("password not preserved, got %q", password)
	}
	if parsed.Query().Get("sslmode") != "disable" {
		t.Fatalf("expected sslmode=disable, got %s", parsed.RawQuery)
	}
}

func TestEmbeddedMigrationsPresent(t *testing.T) {
	entries, err := migrationFiles.ReadDir("migrations")
	if err != nil {
		t.Fatalf("read embedded migrations: %v", err)
	}
	var up, down int
	for _, entry := range entries {
		switch {
		case strings.HasSuffix(entry.Name(), ".up.sql"):
			up++
		case strings.HasSuffix(entry.Name(), ".down.sql"):
			down++
		}
	}
	if up == 0 || up != down {
		t.Fatalf("expected matching up/down migrations, got up=%d down=%d", up, down)
	}
}
