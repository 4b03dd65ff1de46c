package sqlite_test

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
	"github.com/warp/leave-engine/store/sqlite"
	"github.com/warp/leave-engine/store/storetest"
	"github.com/warp/leave-engine/timeoff"
)

func newTestStore(t *testing.T) *sqlite.Store {
	t.Helper()
	store, err := sqlite.New(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })
	return store
}

func TestSQLiteStore(t *testing.T) {
	storetest.Run(t, func(t *testing.T) timeoff.Store {
		return newTestStore(t)
	})
}

func TestSQLiteStore_FileSurvivesReopen(t *testing.T) {
	path := filepath.Join(t.TempDir(), "leave.db")

	store, err := sqlite.New(path)
	require.NoError(t, err)
	require.NoError(t, store.CreateIntern(t.Context(), storetest.NewTestIntern("@alice")))
	require.NoError(t, store.Close())

	// GIVEN: a reopened database
	store, err = sqlite.New(path)
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })

	// THEN: the migration is idempotent and the roster is intact
	intern, err := store.GetInternByHandle(t.Context(), "@alice")
	require.NoError(t, err)
	require.Len(t, intern.Accounts, len(timeoff.Categories))
}
