package seed

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nessa01macias/spotlight/internal/store"
)

func TestDefaults(t *testing.T) {
	defaults, err := Defaults()
	require.NoError(t, err)
	require.Len(t, defaults, 5)

	categories := make(map[string]bool)
	for _, c := range defaults {
		assert.True(t, c.IsSystemDefault)
		assert.True(t, c.IsActive)
		assert.NotEmpty(t, c.ID)
		assert.NotEmpty(t, c.Name)
		assert.Positive(t, c.BaseRevenue)
		require.NoError(t, c.Validate(), c.Category)
		categories[c.Category] = true
	}
	for _, want := range []string{"qsr", "coffee", "fast_casual", "casual_dining", "fine_dining"} {
		assert.True(t, categories[want], want)
	}
}

func TestEnsure_IdempotentAndNonDestructive(t *testing.T) {
	st, err := store.NewSQLite(filepath.Join(t.TempDir(), "test.db"))
	require.NoError(t, err)
	t.Cleanup(func() { st.Close() })
	ctx := context.Background()
	require.NoError(t, st.Migrate(ctx))

	inserted, err := Ensure(ctx, st)
	require.NoError(t, err)
	assert.Equal(t, 5, inserted)

	// A second run finds every category seeded.
	inserted, err = Ensure(ctx, st)
	require.NoError(t, err)
	assert.Equal(t, 0, inserted)

	concepts, err := st.ListConcepts(ctx)
	require.NoError(t, err)
	assert.Len(t, concepts, 5)

	// The active concept for each category resolves to the seeded default.
	active, err := st.GetActiveConcept(ctx, "coffee")
	require.NoError(t, err)
	assert.True(t, active.IsSystemDefault)
}
