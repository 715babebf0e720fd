package database

import (
	"context"
	"testing"
	"testing/fstest"
)

// testMigrations is a small two-step schema.
func testMigrations() fstest.MapFS {
	return fstest.MapFS{
		"20260101_000000_create_lines.up.sql": {Data: []byte(
			"CREATE TABLE lines (id INTEGER PRIMARY KEY, body TEXT NOT NULL);")},
		"20260101_000000_create_lines.down.sql": {Data: []byte(
			"DROP TABLE lines;")},
		"20260102_000000_add_topic.up.sql": {Data: []byte(
			"ALTER TABLE lines ADD COLUMN topic TEXT;")},
		"README.md": {Data: []byte("ignored")},
	}
}

func tableExists(t *testing.T, db *DB, name string) bool {
	t.Helper()
	var count int
	err := db.QueryRowContext(context.Background(),
		"SELECT COUNT(*) FROM sqlite_master WHERE type='table' AND name=?", name,
	).Scan(&count)
	if err != nil {
		t.Fatalf("querying sqlite_master: %v", err)
	}
	return count == 1
}

func TestMigrate(t *testing.T) {
	db := openTestDB(t)
	ctx := context.Background()

	if err := db.Migrate(ctx, testMigrations()); err != nil {
		t.Fatalf("Migrate() error = %v", err)
	}
	if !tableExists(t, db, "lines") {
		t.Fatal("table lines not created")
	}

	applied, err := db.appliedMigrations(ctx)
	if err != nil {
		t.Fatalf("appliedMigrations() error = %v", err)
	}
	if len(applied) != 2 {
		t.Fatalf("applied = %d, want 2", len(applied))
	}
	if applied[0].Version != "20260101_000000" || applied[0].AppliedAt.IsZero() {
		t.Errorf("first applied = %+v", applied[0])
	}
}

func TestMigrate_Idempotent(t *testing.T) {
	db := openTestDB(t)
	ctx := context.Background()

	for i := 0; i < 2; i++ {
		if err := db.Migrate(ctx, testMigrations()); err != nil {
			t.Fatalf("Migrate() run %d error = %v", i+1, err)
		}
	}
}

func TestMigrate_NilFS(t *testing.T) {
	db := openTestDB(t)

	if err := db.Migrate(context.Background(), nil); err != nil {
		t.Errorf("Migrate(nil) error = %v", err)
	}
}

func TestMigrate_FailureStopsAtBrokenMigration(t *testing.T) {
	db := openTestDB(t)
	ctx := context.Background()

	fsys := testMigrations()
	fsys["20260102_000000_add_topic.up.sql"] = &fstest.MapFile{Data: []byte("NOT VALID SQL")}

	if err := db.Migrate(ctx, fsys); err == nil {
		t.Fatal("Migrate() with broken SQL should fail")
	}

	pending, err := db.pendingMigrations(ctx, fsys)
	if err != nil {
		t.Fatalf("pendingMigrations() error = %v", err)
	}
	if len(pending) != 1 || pending[0].Version != "20260102_000000" {
		t.Errorf("pending = %+v, want only 20260102_000000", pending)
	}
}

func TestLoadMigrations_SkipsDownFiles(t *testing.T) {
	migrations, err := loadMigrations(testMigrations())
	if err != nil {
		t.Fatalf("loadMigrations() error = %v", err)
	}
	if len(migrations) != 2 {
		t.Fatalf("loaded %d migrations, want 2", len(migrations))
	}
	if migrations[0].Name != "create_lines" || migrations[1].Name != "add_topic" {
		t.Errorf("order = %s, %s; want create_lines, add_topic", migrations[0].Name, migrations[1].Name)
	}
}

func TestParseMigrationFilename(t *testing.T) {
	tests := []struct {
		name        string
		wantVersion string
		wantDesc    string
		wantUp      bool
		wantOK      bool
	}{
		{name: "20260301_120000_relay_history.up.sql", wantVersion: "20260301_120000", wantDesc: "relay_history", wantUp: true, wantOK: true},
		{name: "20260301_120000_relay_history.down.sql", wantVersion: "20260301_120000", wantDesc: "relay_history", wantOK: true},
		{name: "20260301_120000.up.sql", wantVersion: "20260301_120000", wantUp: true, wantOK: true},
		{name: "20260301_120000_x.sql"},
		{name: "notes.up.sql"},
		{name: "2026_12_x.up.sql"},
		{name: "20260301_120000_x.up.txt"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			version, desc, up, ok := parseMigrationFilename(tt.name)
			if ok != tt.wantOK {
				t.Fatalf("ok = %v, want %v", ok, tt.wantOK)
			}
			if !ok {
				return
			}
			if version != tt.wantVersion || desc != tt.wantDesc || up != tt.wantUp {
				t.Errorf("got (%q, %q, %v), want (%q, %q, %v)", version, desc, up, tt.wantVersion, tt.wantDesc, tt.wantUp)
			}
		})
	}
}
