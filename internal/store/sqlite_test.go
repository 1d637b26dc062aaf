package store

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestStore(t *testing.T) *SQLiteStore {
	t.Helper()
	st, err := NewSQLite(filepath.Join(t.TempDir(), "places.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = st.Close() })
	require.NoError(t, st.Migrate(context.Background()))
	return st
}

func TestSQLite_SaveAndListPlaces(t *testing.T) {
	st := newTestStore(t)
	ctx := context.Background()

	require.NoError(t, st.SavePlace(ctx, "Birmingham Office", 33.5186, -86.8104))
	require.NoError(t, st.SavePlace(ctx, "Denver Office", 39.7392, -104.9903))

	places, err := st.ListPlaces(ctx, 10)
	require.NoError(t, err)
	require.Len(t, places, 2)

	names := []string{places[0].Name, places[1].Name}
	assert.Contains(t, names, "Birmingham Office")
	assert.Contains(t, names, "Denver Office")
	for _, p := range places {
		assert.NotEmpty(t, p.ID)
		assert.NotZero(t, p.Latitude)
		assert.NotZero(t, p.Longitude)
		assert.False(t, p.CreatedAt.IsZero())
	}
}

func TestSQLite_ListPlacesLimit(t *testing.T) {
	st := newTestStore(t)
	ctx := context.Background()

	for i := 0; i < 5; i++ {
		require.NoError(t, st.SavePlace(ctx, "Place", float64(i), float64(-i)))
	}

	places, err := st.ListPlaces(ctx, 3)
	require.NoError(t, err)
	assert.Len(t, places, 3)

	// Non-positive limit falls back to the default.
	places, err = st.ListPlaces(ctx, 0)
	require.NoError(t, err)
	assert.Len(t, places, 5)
}

func TestSQLite_MigrateIsIdempotent(t *testing.T) {
	st := newTestStore(t)
	require.NoError(t, st.Migrate(context.Background()))
}

func TestSQLite_RecordImportRun(t *testing.T) {
	st := newTestStore(t)
	require.NoError(t, st.RecordImportRun(context.Background(), "https://example.com/contact", 4, 3))
}
