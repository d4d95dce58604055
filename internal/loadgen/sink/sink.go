// Package sink contains the storage backends the load generator writes through.
//
// Two layouts are supported. Normalized sinks (postgres, sqlite) spread an aggregate over one table per
// entity and link rows with pre-allocated keys. Document sinks (redis, s3, memory) store each customer as
// one self-contained JSON document in which every order item carries a snapshot of its product.
package sink

import (
	"context"
	"math/rand"
	"time"

	"github.com/pkg/errors"

	"github.com/armadaproject/loadgen/internal/common/loaderrors"
	"github.com/armadaproject/loadgen/internal/loadgen/configuration"
	"github.com/armadaproject/loadgen/internal/loadgen/estimation"
	"github.com/armadaproject/loadgen/internal/loadgen/generator"
	"github.com/armadaproject/loadgen/internal/loadgen/model"
)

// Sink is a storage backend.
type Sink interface {
	Name() string
	Shape() model.Shape
	// CostModel is the assumed cost of a batch write, used to estimate capacity.
	CostModel() estimation.CostModel
	// EnsurePoolSeeded makes sure the product pool exists and returns it. Only one caller, across all
	// processes sharing the backend, ever generates the pool; everyone else reads what it wrote.
	// Errors are *loaderrors.ErrSeed.
	EnsurePoolSeeded(ctx context.Context) ([]model.Product, error)
	// WriteBatch persists the customers and everything they own, returning the number of entities written.
	// Errors are *loaderrors.ErrSink.
	WriteBatch(ctx context.Context, customers []*model.Customer) (int, error)
	// Check reports whether the backend is reachable.
	Check(ctx context.Context) error
	Close() error
}

// costModels holds the assumed write cost of each sink. Relational sinks pay a round trip per tier;
// document sinks pay mostly for serialization, except s3, which pays a request per customer.
var costModels = map[configuration.SinkKind]estimation.CostModel{
	configuration.SinkPostgres: {FixedOverheadMs: 20, PerEntityMs: 0.6},
	configuration.SinkSqlite:   {FixedOverheadMs: 8, PerEntityMs: 0.9},
	configuration.SinkRedis:    {FixedOverheadMs: 3, PerEntityMs: 0.12},
	configuration.SinkS3:       {FixedOverheadMs: 40, PerEntityMs: 1.5},
	configuration.SinkMemory:   {FixedOverheadMs: 5, PerEntityMs: 0.15},
}

// CostModelFor returns the cost model of a sink kind without connecting to it.
func CostModelFor(kind configuration.SinkKind) (estimation.CostModel, error) {
	cost, ok := costModels[kind]
	if !ok {
		return estimation.CostModel{}, errors.Errorf("unknown sink kind %q", kind)
	}
	return cost, nil
}

type Options struct {
	// Number of products generated when the pool is empty
	ProductPoolSize int
	// Source of randomness for the seed pool; nil seeds from the clock
	Rand *rand.Rand
	// Time source for seeded products; nil means time.Now
	Now func() time.Time
}

func (o Options) withDefaults() Options {
	if o.ProductPoolSize <= 0 {
		o.ProductPoolSize = 200
	}
	if o.Rand == nil {
		o.Rand = rand.New(rand.NewSource(time.Now().UnixNano()))
	}
	if o.Now == nil {
		o.Now = time.Now
	}
	return o
}

func (o Options) generatePool() []model.Product {
	return generator.Products(o.Rand, o.ProductPoolSize, o.Now().UTC())
}

// New builds the sink selected by cfg.Kind.
func New(ctx context.Context, cfg configuration.SinkConfig, opts Options) (Sink, error) {
	switch cfg.Kind {
	case configuration.SinkPostgres:
		return NewPostgresSink(ctx, cfg.Postgres, opts)
	case configuration.SinkSqlite:
		return NewSqliteSink(ctx, cfg.Sqlite, opts)
	case configuration.SinkRedis:
		return NewRedisSink(ctx, cfg.Redis, opts)
	case configuration.SinkS3:
		return NewS3Sink(ctx, cfg.S3, opts)
	case configuration.SinkMemory:
		return NewMemorySink(opts), nil
	}
	return nil, errors.Errorf("unknown sink kind %q", cfg.Kind)
}

func writeError(sink string, err error) error {
	return &loaderrors.ErrSink{Sink: sink, Op: "write batch", Err: errors.WithStack(err)}
}

func seedError(sink string, err error) error {
	return &loaderrors.ErrSeed{Sink: sink, Err: errors.WithStack(err)}
}

// assignProductIDs numbers a freshly generated pool from 1, for sinks without their own key generator.
func assignProductIDs(products []model.Product) {
	for i := range products {
		products[i].ID = int64(i + 1)
	}
}
