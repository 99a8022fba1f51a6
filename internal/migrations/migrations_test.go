package migrations

import (
	"io/fs"
	"strings"
	"testing"
)

func TestMigrationsEmbedded(t *testing.T) {
	names, err := fs.Glob(Files, "*.sql")
	if err != nil {
		t.Fatalf("glob migrations: %v", err)
	}
	if len(names) < 2 {
		t.Fatalf("expected embedded migrations, got %v", names)
	}
	data, err := Files.ReadFile("001_init.sql")
	if err != nil {
		t.Fatalf("expected embedded migration, got error: %v", err)
	}
	for _, table := range []string{"bookings", "booking_options", "booking_option_dates", "users"} {
		if !strings.Contains(string(data), "CREATE TABLE IF NOT EXISTS "+table+" ") {
			t.Errorf("initial migration does not create %s", table)
		}
	}
}
