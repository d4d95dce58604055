package sink

import (
	"context"
	"encoding/json"
	"strconv"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/go-redis/redis"
	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/armadaproject/loadgen/internal/common/compress"
	"github.com/armadaproject/loadgen/internal/common/loaderrors"
	"github.com/armadaproject/loadgen/internal/loadgen/configuration"
	"github.com/armadaproject/loadgen/internal/loadgen/model"
)

func withRedisSink(t *testing.T, cfg configuration.RedisSinkConfig, action func(mr *miniredis.Miniredis, newSink func(seed int64) *RedisSink)) {
	mr, err := miniredis.Run()
	require.NoError(t, err)
	defer mr.Close()

	newSink := func(seed int64) *RedisSink {
		s := NewRedisSinkFromClient(redis.NewClient(&redis.Options{Addr: mr.Addr()}), cfg, testOptions(seed))
		t.Cleanup(func() { _ = s.Close() })
		return s
	}
	action(mr, newSink)
}

func TestRedisSink_SeedsOnceAcrossInstances(t *testing.T) {
	cfg := configuration.RedisSinkConfig{KeyPrefix: "lg:"}
	withRedisSink(t, cfg, func(mr *miniredis.Miniredis, newSink func(int64) *RedisSink) {
		ctx := context.Background()

		pool, err := newSink(1).EnsurePoolSeeded(ctx)
		require.NoError(t, err)
		require.Len(t, pool, 25)
		assert.True(t, mr.Exists("lg:products:seeded"))
		assert.False(t, mr.Exists("lg:products:seed-lock"))

		again, err := newSink(2).EnsurePoolSeeded(ctx)
		require.NoError(t, err)
		assert.Equal(t, pool, again)
	})
}

func TestRedisSink_WaitsForOtherSeeder(t *testing.T) {
	cfg := configuration.RedisSinkConfig{SeedWaitTimeout: 5 * time.Second}
	withRedisSink(t, cfg, func(mr *miniredis.Miniredis, newSink func(int64) *RedisSink) {
		ctx := context.Background()
		require.NoError(t, mr.Set("products:seed-lock", "other"))

		seeder := newSink(1)
		go func() {
			time.Sleep(300 * time.Millisecond)
			assert.NoError(t, seeder.seed(seeder.db))
		}()

		waiter := newSink(2)
		pool, err := waiter.EnsurePoolSeeded(ctx)
		require.NoError(t, err)
		assert.Len(t, pool, 25)
	})
}

func TestRedisSink_SeedKeepsPoolCommittedByExpiredLockHolder(t *testing.T) {
	withRedisSink(t, configuration.RedisSinkConfig{}, func(mr *miniredis.Miniredis, newSink func(int64) *RedisSink) {
		ctx := context.Background()

		// The late seeder's lock has expired: the first seeder commits while it is still generating.
		var committed []model.Product
		late := newSink(2)
		late.opts.Now = func() time.Time {
			pool, err := newSink(1).EnsurePoolSeeded(ctx)
			require.NoError(t, err)
			committed = pool
			return testNow
		}

		require.NoError(t, late.seed(late.db))
		require.NotEmpty(t, committed)

		stored, err := late.loadProducts(late.db)
		require.NoError(t, err)
		assert.Equal(t, committed, stored)
		assert.Equal(t, strconv.Itoa(len(committed)), mustGet(t, mr, "products:seeded"))
	})
}

func TestRedisSink_SeedSkipsWhenMarkerExists(t *testing.T) {
	withRedisSink(t, configuration.RedisSinkConfig{}, func(mr *miniredis.Miniredis, newSink func(int64) *RedisSink) {
		pool, err := newSink(1).EnsurePoolSeeded(context.Background())
		require.NoError(t, err)

		other := newSink(2)
		require.NoError(t, other.seed(other.db))

		stored, err := other.loadProducts(other.db)
		require.NoError(t, err)
		assert.Equal(t, pool, stored)
	})
}

func mustGet(t *testing.T, mr *miniredis.Miniredis, key string) string {
	t.Helper()
	v, err := mr.Get(key)
	require.NoError(t, err)
	return v
}

func TestRedisSink_SeedWaitTimesOut(t *testing.T) {
	cfg := configuration.RedisSinkConfig{SeedWaitTimeout: 300 * time.Millisecond}
	withRedisSink(t, cfg, func(mr *miniredis.Miniredis, newSink func(int64) *RedisSink) {
		require.NoError(t, mr.Set("products:seed-lock", "other"))

		_, err := newSink(1).EnsurePoolSeeded(context.Background())
		var seedErr *loaderrors.ErrSeed
		require.True(t, errors.As(err, &seedErr))
		assert.Equal(t, "redis", seedErr.Sink)
	})
}

func TestRedisSink_WriteBatch(t *testing.T) {
	for _, codec := range []compress.Codec{compress.None, compress.Snappy, compress.Zlib} {
		t.Run(string(codec), func(t *testing.T) {
			cfg := configuration.RedisSinkConfig{KeyPrefix: "lg:", Compression: codec}
			withRedisSink(t, cfg, func(mr *miniredis.Miniredis, newSink func(int64) *RedisSink) {
				ctx := context.Background()
				s := newSink(1)
				assert.Equal(t, model.ShapeDocument, s.Shape())
				customers := testBatch(t, ctx, s, 6)

				n, err := s.WriteBatch(ctx, customers)
				require.NoError(t, err)
				assert.Equal(t, 6, n)

				members, err := mr.Members("lg:customers")
				require.NoError(t, err)
				assert.Len(t, members, 6)

				raw, err := mr.Get("lg:customer:" + customers[0].ID)
				require.NoError(t, err)
				assert.Equal(t, codec == compress.None, json.Valid([]byte(raw)))

				read, err := s.ReadCustomer(ctx, customers[0].ID)
				require.NoError(t, err)
				assert.Equal(t, customers[0].ID, read.ID)
				assert.Equal(t, customers[0].Email, read.Email)
				require.Len(t, read.Orders, len(customers[0].Orders))
				assert.Equal(t, customers[0].Orders[0].TotalAmount, read.Orders[0].TotalAmount)
			})
		})
	}
}

func TestRedisSink_WriteFailure(t *testing.T) {
	withRedisSink(t, configuration.RedisSinkConfig{}, func(mr *miniredis.Miniredis, newSink func(int64) *RedisSink) {
		ctx := context.Background()
		s := newSink(1)
		customers := testBatch(t, ctx, s, 2)
		require.NoError(t, s.Check(ctx))

		mr.Close()
		_, err := s.WriteBatch(ctx, customers)
		var sinkErr *loaderrors.ErrSink
		require.True(t, errors.As(err, &sinkErr))
		assert.Error(t, s.Check(ctx))
	})
}
