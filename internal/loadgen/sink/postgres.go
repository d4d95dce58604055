package sink

import (
	"context"
	"fmt"
	"sync"

	"github.com/doug-martin/goqu/v9"
	_ "github.com/doug-martin/goqu/v9/dialect/postgres"
	"github.com/jackc/pgx/v4"
	"github.com/jackc/pgx/v4/pgxpool"
	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"

	"github.com/armadaproject/loadgen/internal/common/database"
	"github.com/armadaproject/loadgen/internal/loadgen/configuration"
	"github.com/armadaproject/loadgen/internal/loadgen/estimation"
	"github.com/armadaproject/loadgen/internal/loadgen/model"
)

// Arbitrary, but must be the same in every process seeding the same database.
const productSeedLockKey = 7_238_104_553

var pgDialect = goqu.Dialect("postgres")

// PostgresSink writes aggregates into normalized tables. Every batch is one transaction.
type PostgresSink struct {
	pool *pgxpool.Pool
	opts Options

	seedMu sync.Mutex
	cached []model.Product
}

// NewPostgresSink connects to the database described by cfg and, if asked to, brings the schema up to date.
func NewPostgresSink(ctx context.Context, cfg configuration.PostgresSinkConfig, opts Options) (*PostgresSink, error) {
	pool, err := database.OpenPgxPool(ctx, cfg.PostgresConfig)
	if err != nil {
		return nil, err
	}
	if cfg.ApplyMigrations {
		migrations, err := PostgresMigrations()
		if err != nil {
			pool.Close()
			return nil, err
		}
		err = database.UpdateDatabase(ctx, pool, migrations)
		if database.IsConcurrentSchemaChange(err) {
			// Someone else is migrating the same database; their version is visible once they're done.
			log.WithError(err).Warn("Schema was created concurrently, retrying migrations")
			err = database.UpdateDatabase(ctx, pool, migrations)
		}
		if err != nil {
			pool.Close()
			return nil, err
		}
	}
	return NewPostgresSinkFromPool(pool, opts), nil
}

// NewPostgresSinkFromPool wraps an existing pool. The schema must already exist. Close closes the pool.
func NewPostgresSinkFromPool(pool *pgxpool.Pool, opts Options) *PostgresSink {
	return &PostgresSink{pool: pool, opts: opts.withDefaults()}
}

func (p *PostgresSink) Name() string { return "postgres" }

func (p *PostgresSink) Shape() model.Shape { return model.ShapeNormalized }

// CostModel reflects one round trip per tier plus key allocation inside a transaction.
func (p *PostgresSink) CostModel() estimation.CostModel {
	return costModels[configuration.SinkPostgres]
}

func (p *PostgresSink) EnsurePoolSeeded(ctx context.Context) ([]model.Product, error) {
	p.seedMu.Lock()
	defer p.seedMu.Unlock()
	if len(p.cached) > 0 {
		return p.cached, nil
	}

	err := p.pool.BeginTxFunc(ctx, pgx.TxOptions{
		IsoLevel:   pgx.ReadCommitted,
		AccessMode: pgx.ReadWrite,
	}, func(tx pgx.Tx) error {
		// The lock is released automatically on transaction rollback/commit.
		if _, err := tx.Exec(ctx, "SELECT pg_advisory_xact_lock($1)", productSeedLockKey); err != nil {
			return errors.Wrap(err, "could not obtain seed lock")
		}
		var count int64
		if err := tx.QueryRow(ctx, "SELECT count(*) FROM products").Scan(&count); err != nil {
			return errors.WithStack(err)
		}
		if count > 0 {
			return nil
		}
		products := p.opts.generatePool()
		log.Infof("No products found, seeding %d", len(products))
		_, err := tx.CopyFrom(ctx,
			pgx.Identifier{"products"},
			[]string{"name", "sku", "description", "price", "category", "weight", "in_stock", "created_at", "updated_at"},
			pgx.CopyFromSlice(len(products), func(i int) ([]interface{}, error) {
				pr := products[i]
				return []interface{}{
					pr.Name, pr.Sku, pr.Description, pr.Price.String(), pr.Category,
					pr.Weight, pr.InStock, pr.CreatedAt, pr.UpdatedAt,
				}, nil
			}),
		)
		return errors.WithStack(err)
	})
	if err != nil {
		return nil, seedError(p.Name(), err)
	}

	products, err := p.loadProducts(ctx)
	if err != nil {
		return nil, seedError(p.Name(), err)
	}
	if len(products) == 0 {
		return nil, seedError(p.Name(), errors.New("product table is empty after seeding"))
	}
	p.cached = products
	return products, nil
}

func (p *PostgresSink) loadProducts(ctx context.Context) ([]model.Product, error) {
	query, args, err := pgDialect.
		From("products").
		Select("id", "name", "sku", "description", goqu.L("price::text"), "category", "weight", "in_stock", "created_at", "updated_at").
		Order(goqu.C("id").Asc()).
		ToSQL()
	if err != nil {
		return nil, errors.WithStack(err)
	}
	rows, err := p.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, errors.WithStack(err)
	}
	defer rows.Close()

	var products []model.Product
	for rows.Next() {
		var pr model.Product
		var description *string
		if err := rows.Scan(&pr.ID, &pr.Name, &pr.Sku, &description, &pr.Price, &pr.Category, &pr.Weight, &pr.InStock, &pr.CreatedAt, &pr.UpdatedAt); err != nil {
			return nil, errors.WithStack(err)
		}
		if description != nil {
			pr.Description = *description
		}
		products = append(products, pr)
	}
	return products, errors.WithStack(rows.Err())
}

// WriteBatch allocates ids for customers and orders up front, then copies each tier in dependency order.
func (p *PostgresSink) WriteBatch(ctx context.Context, customers []*model.Customer) (int, error) {
	if len(customers) == 0 {
		return 0, nil
	}
	counts := model.CountEntities(customers)

	err := p.pool.BeginTxFunc(ctx, pgx.TxOptions{
		IsoLevel:   pgx.ReadCommitted,
		AccessMode: pgx.ReadWrite,
	}, func(tx pgx.Tx) error {
		customerIDs, err := allocateKeys(ctx, tx, "customers_id_seq", counts.Customers)
		if err != nil {
			return err
		}
		orderIDs, err := allocateKeys(ctx, tx, "orders_id_seq", counts.Orders)
		if err != nil {
			return err
		}
		rows := buildRows(customers, customerIDs, orderIDs)

		for _, t := range rows.tables() {
			if _, err := tx.CopyFrom(ctx, pgx.Identifier{t.name}, t.columns, pgx.CopyFromRows(t.rows)); err != nil {
				return errors.Wrapf(err, "copying into %s", t.name)
			}
		}
		return nil
	})
	if err != nil {
		return 0, writeError(p.Name(), err)
	}
	return counts.Total(), nil
}

// allocateKeys draws n values from sequence. sequence must be a trusted identifier.
func allocateKeys(ctx context.Context, tx pgx.Tx, sequence string, n int) ([]int64, error) {
	rows, err := tx.Query(ctx, fmt.Sprintf("SELECT nextval('%s') FROM generate_series(1, $1)", sequence), n)
	if err != nil {
		return nil, errors.WithStack(err)
	}
	defer rows.Close()

	keys := make([]int64, 0, n)
	for rows.Next() {
		var k int64
		if err := rows.Scan(&k); err != nil {
			return nil, errors.WithStack(err)
		}
		keys = append(keys, k)
	}
	if err := rows.Err(); err != nil {
		return nil, errors.WithStack(err)
	}
	if len(keys) != n {
		return nil, errors.Errorf("allocated %d keys from %s, wanted %d", len(keys), sequence, n)
	}
	return keys, nil
}

func (p *PostgresSink) Check(ctx context.Context) error {
	return errors.WithStack(p.pool.Ping(ctx))
}

func (p *PostgresSink) Close() error {
	p.pool.Close()
	return nil
}
