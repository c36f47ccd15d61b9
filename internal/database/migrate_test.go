package database

import "testing"

func TestExtractVersion(t *testing.T) {
	tests := []struct {
		filename string
		want     int
	}{
		{"001_create_prospects.up.sql", 1},
		{"012_add_index.up.sql", 12},
		{"create_prospects.up.sql", 0},
		{"_leading_underscore.up.sql", 0},
		{"abc_def.up.sql", 0},
	}
	for _, tt := range tests {
		if got := extractVersion(tt.filename); got != tt.want {
			t.Errorf("extractVersion(%q) = %d, want %d", tt.filename, got, tt.want)
		}
	}
}

func TestEmbeddedMigrationsPresent(t *testing.T) {
	entries, err := migrationsFS.ReadDir("migrations")
	if err != nil {
		t.Fatalf("reading embedded migrations: %v", err)
	}
	if len(entries) == 0 {
		t.Fatal("no embedded migrations found")
	}
	for _, e := range entries {
		if extractVersion(e.Name()) == 0 {
			t.Errorf("migration %q has no valid numeric version prefix", e.Name())
		}
	}
}
