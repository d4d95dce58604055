package sink

import (
	"context"
	"testing"

	"github.com/jackc/pgx/v4/pgxpool"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/armadaproject/loadgen/internal/common/database"
	"github.com/armadaproject/loadgen/internal/loadgen/model"
)

func withPostgresSink(t *testing.T, action func(db *pgxpool.Pool, newSink func(seed int64) *PostgresSink)) {
	migrations, err := PostgresMigrations()
	require.NoError(t, err)
	err = database.WithTestDb(t, migrations, func(_ string, db *pgxpool.Pool) error {
		action(db, func(seed int64) *PostgresSink { return NewPostgresSinkFromPool(db, testOptions(seed)) })
		return nil
	})
	require.NoError(t, err)
}

func TestPostgresSink_SeedsOnceAcrossInstances(t *testing.T) {
	withPostgresSink(t, func(db *pgxpool.Pool, newSink func(int64) *PostgresSink) {
		ctx := context.Background()
		pool, err := newSink(1).EnsurePoolSeeded(ctx)
		require.NoError(t, err)
		require.Len(t, pool, 25)

		again, err := newSink(2).EnsurePoolSeeded(ctx)
		require.NoError(t, err)
		require.Len(t, again, 25)
		for i := range pool {
			assert.Equal(t, pool[i].ID, again[i].ID)
			assert.Equal(t, pool[i].Sku, again[i].Sku)
			assert.Equal(t, pool[i].Price, again[i].Price)
		}
	})
}

func TestPostgresSink_WriteBatch(t *testing.T) {
	withPostgresSink(t, func(db *pgxpool.Pool, newSink func(int64) *PostgresSink) {
		ctx := context.Background()
		s := newSink(1)
		customers := testBatch(t, ctx, s, 10)
		counts := model.CountEntities(customers)

		n, err := s.WriteBatch(ctx, customers)
		require.NoError(t, err)
		assert.Equal(t, counts.Total(), n)

		for table, want := range map[string]int{
			"customers":         counts.Customers,
			"customer_profiles": counts.Profiles,
			"orders":            counts.Orders,
			"order_items":       counts.Items,
		} {
			var got int
			require.NoError(t, db.QueryRow(ctx, "SELECT count(*) FROM "+table).Scan(&got))
			assert.Equal(t, want, got, table)
		}

		// A failing batch leaves nothing behind
		_, err = s.WriteBatch(ctx, customers)
		require.Error(t, err)
		var got int
		require.NoError(t, db.QueryRow(ctx, "SELECT count(*) FROM customers").Scan(&got))
		assert.Equal(t, counts.Customers, got)
	})
}
