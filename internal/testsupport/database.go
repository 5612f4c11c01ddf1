package testsupport

import (
	"path/filepath"
	"testing"

	"photoflow/internal/database"
)

// MustOpenDatabase opens a fresh SQLite database in a temp directory and
// registers cleanup.
func MustOpenDatabase(t testing.TB) *database.DB {
	t.Helper()

	db, err := database.OpenPath(filepath.Join(t.TempDir(), database.FileName))
	if err != nil {
		t.Fatalf("database.OpenPath: %v", err)
	}
	t.Cleanup(func() {
		_ = db.Close()
	})
	return db
}
