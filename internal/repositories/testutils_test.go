package repositories_test

import (
	"context"
	"io"
	"testing"

	_ "embed"

	"github.com/myrjola/lorebook/internal/sqlite"
	"github.com/myrjola/lorebook/internal/testhelpers"
)

//go:embed testdata/fixtures.sql
var testFixtures string

// newTestDB creates a new in-memory database for testing purposes.
func newTestDB(t *testing.T) *sqlite.Database {
	t.Helper()

	logger := testhelpers.NewLogger(io.Discard)
	dbs, err := sqlite.NewDatabase(context.Background(), ":memory:", logger)
	if err != nil {
		t.Fatal(err)
	}

	// Add test data
	if _, err = dbs.ReadWrite.Exec(testFixtures); err != nil {
		t.Fatal(err)
	}

	t.Cleanup(func() {
		if err = dbs.Close(); err != nil {
			t.Fatal(err)
		}
	})

	return dbs
}
