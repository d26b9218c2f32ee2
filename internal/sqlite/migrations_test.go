package sqlite

import (
	"context"
	"testing"
	"testing/fstest"
)

// testMigrationsFS builds an in-memory migration filesystem.
func testMigrationsFS() fstest.MapFS {
	return fstest.MapFS{
		"migrations/20260101_120000_create_items.up.sql": &fstest.MapFile{
			Data: []byte("CREATE TABLE items (id INTEGER PRIMARY KEY, name TEXT NOT NULL)"),
		},
		"migrations/20260101_120000_create_items.down.sql": &fstest.MapFile{
			Data: []byte("DROP TABLE items"),
		},
		"migrations/20260102_090000_add_index.up.sql": &fstest.MapFile{
			Data: []byte("CREATE INDEX idx_items_name ON items(name)"),
		},
		"migrations/20260102_090000_add_index.down.sql": &fstest.MapFile{
			Data: []byte("DROP INDEX idx_items_name"),
		},
	}
}

func TestMigrator_Migrate(t *testing.T) {
	conn := testConn(t)
	ctx := context.Background()

	m := NewMigrator(testMigrationsFS(), "migrations")

	if err := m.Migrate(ctx, conn); err != nil {
		t.Fatalf("Migrate failed: %v", err)
	}

	applied, pending, err := m.Status(ctx, conn)
	if err != nil {
		t.Fatalf("Status failed: %v", err)
	}
	if len(applied) != 2 {
		t.Errorf("expected 2 applied migrations, got %d", len(applied))
	}
	if len(pending) != 0 {
		t.Errorf("expected 0 pending migrations, got %d", len(pending))
	}

	// The migrated schema is usable.
	if _, err := conn.Execute(ctx, "INSERT INTO items (name) VALUES (?)", "first"); err != nil {
		t.Errorf("inserting into migrated table: %v", err)
	}
}

func TestMigrator_MigrateIsIdempotent(t *testing.T) {
	conn := testConn(t)
	ctx := context.Background()

	m := NewMigrator(testMigrationsFS(), "migrations")

	if err := m.Migrate(ctx, conn); err != nil {
		t.Fatalf("first Migrate failed: %v", err)
	}
	if err := m.Migrate(ctx, conn); err != nil {
		t.Fatalf("second Migrate failed: %v", err)
	}

	applied, _, err := m.Status(ctx, conn)
	if err != nil {
		t.Fatalf("Status failed: %v", err)
	}
	if len(applied) != 2 {
		t.Errorf("expected 2 applied migrations after re-run, got %d", len(applied))
	}
}

func TestMigrator_FailedMigrationRollsBack(t *testing.T) {
	conn := testConn(t)
	ctx := context.Background()

	fsys := fstest.MapFS{
		"migrations/20260101_120000_good.up.sql": &fstest.MapFile{
			Data: []byte("CREATE TABLE good (id INTEGER PRIMARY KEY)"),
		},
		"migrations/20260102_120000_bad.up.sql": &fstest.MapFile{
			Data: []byte("THIS IS NOT SQL"),
		},
	}
	m := NewMigrator(fsys, "migrations")

	if err := m.Migrate(ctx, conn); err == nil {
		t.Fatal("expected Migrate to fail on invalid SQL")
	}

	// The good migration stays committed, the bad one leaves no record.
	applied, pending, err := m.Status(ctx, conn)
	if err != nil {
		t.Fatalf("Status failed: %v", err)
	}
	if len(applied) != 1 {
		t.Errorf("expected 1 applied migration, got %d", len(applied))
	}
	if len(pending) != 1 {
		t.Errorf("expected 1 pending migration, got %d", len(pending))
	}
}

func TestMigrator_MigrateDown(t *testing.T) {
	conn := testConn(t)
	ctx := context.Background()

	m := NewMigrator(testMigrationsFS(), "migrations")

	if err := m.Migrate(ctx, conn); err != nil {
		t.Fatalf("Migrate failed: %v", err)
	}
	if err := m.MigrateDown(ctx, conn); err != nil {
		t.Fatalf("MigrateDown failed: %v", err)
	}

	applied, pending, err := m.Status(ctx, conn)
	if err != nil {
		t.Fatalf("Status failed: %v", err)
	}
	if len(applied) != 1 {
		t.Errorf("expected 1 applied migration after rollback, got %d", len(applied))
	}
	if len(pending) != 1 {
		t.Errorf("expected 1 pending migration after rollback, got %d", len(pending))
	}
}

func TestMigrator_NoMigrations(t *testing.T) {
	conn := testConn(t)

	m := NewMigrator(fstest.MapFS{}, "migrations")

	if err := m.Migrate(context.Background(), conn); err != nil {
		t.Errorf("Migrate with empty filesystem should succeed, got %v", err)
	}
}

func TestParseMigrationFilename(t *testing.T) {
	tests := []struct {
		name        string
		filename    string
		wantVersion string
		wantUp      bool
		wantOK      bool
	}{
		{
			name:        "valid up migration",
			filename:    "20260118_120000_initial_schema.up.sql",
			wantVersion: "20260118_120000",
			wantUp:      true,
			wantOK:      true,
		},
		{
			name:        "valid down migration",
			filename:    "20260118_120000_initial_schema.down.sql",
			wantVersion: "20260118_120000",
			wantUp:      false,
			wantOK:      true,
		},
		{name: "not sql", filename: "readme.md", wantOK: false},
		{name: "missing direction", filename: "20260118_120000_schema.sql", wantOK: false},
		{name: "missing version", filename: "schema.up.sql", wantOK: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			version, isUp, ok := parseMigrationFilename(tt.filename)
			if ok != tt.wantOK {
				t.Fatalf("ok = %v, want %v", ok, tt.wantOK)
			}
			if !ok {
				return
			}
			if version != tt.wantVersion {
				t.Errorf("version = %q, want %q", version, tt.wantVersion)
			}
			if isUp != tt.wantUp {
				t.Errorf("isUp = %v, want %v", isUp, tt.wantUp)
			}
		})
	}
}
