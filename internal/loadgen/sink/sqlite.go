package sink

import (
	"context"
	"database/sql"
	"fmt"
	"sync"
	"time"

	"github.com/doug-martin/goqu/v9"
	_ "github.com/doug-martin/goqu/v9/dialect/sqlite3"
	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"
	_ "modernc.org/sqlite"

	"github.com/armadaproject/loadgen/internal/loadgen/configuration"
	"github.com/armadaproject/loadgen/internal/loadgen/estimation"
	"github.com/armadaproject/loadgen/internal/loadgen/model"
)

const defaultSqliteChunkSize = 500

var sqliteDialect = goqu.Dialect("sqlite3")

// SqliteSink writes aggregates into normalized tables of a single sqlite file.
// sqlite allows one writer at a time, so the sink holds a single connection and every write
// runs in a BEGIN IMMEDIATE transaction, which also serializes writers in other processes.
type SqliteSink struct {
	db        *sql.DB
	opts      Options
	chunkSize int

	seedMu sync.Mutex
	cached []model.Product
}

func NewSqliteSink(ctx context.Context, cfg configuration.SqliteSinkConfig, opts Options) (*SqliteSink, error) {
	db, err := sql.Open("sqlite", cfg.Path)
	if err != nil {
		return nil, errors.WithStack(err)
	}
	db.SetMaxOpenConns(1)

	busyTimeout := cfg.BusyTimeout
	if busyTimeout <= 0 {
		busyTimeout = 5 * time.Second
	}
	pragmas := []string{
		"PRAGMA foreign_keys = ON",
		fmt.Sprintf("PRAGMA busy_timeout = %d", busyTimeout.Milliseconds()),
		"PRAGMA journal_mode = WAL",
	}
	for _, pragma := range pragmas {
		if _, err := db.ExecContext(ctx, pragma); err != nil {
			_ = db.Close()
			return nil, errors.Wrapf(err, "executing %s", pragma)
		}
	}

	schema, err := sqliteSchema()
	if err != nil {
		_ = db.Close()
		return nil, errors.WithStack(err)
	}
	if _, err := db.ExecContext(ctx, schema); err != nil {
		_ = db.Close()
		return nil, errors.Wrap(err, "creating sqlite schema")
	}

	chunkSize := cfg.InsertChunkSize
	if chunkSize <= 0 {
		chunkSize = defaultSqliteChunkSize
	}
	return &SqliteSink{db: db, opts: opts.withDefaults(), chunkSize: chunkSize}, nil
}

func (s *SqliteSink) Name() string { return "sqlite" }

func (s *SqliteSink) Shape() model.Shape { return model.ShapeNormalized }

// CostModel: cheap transactions, but a single writer and row-at-a-time storage.
func (s *SqliteSink) CostModel() estimation.CostModel {
	return costModels[configuration.SinkSqlite]
}

func (s *SqliteSink) EnsurePoolSeeded(ctx context.Context) ([]model.Product, error) {
	s.seedMu.Lock()
	defer s.seedMu.Unlock()
	if len(s.cached) > 0 {
		return s.cached, nil
	}

	err := s.withImmediateTx(ctx, func(conn *sql.Conn) error {
		count, err := s.maxOrCount(ctx, conn, goqu.COUNT("*"), "products")
		if err != nil {
			return err
		}
		if count > 0 {
			return nil
		}
		products := s.opts.generatePool()
		log.Infof("No products found, seeding %d", len(products))
		rows := make([][]interface{}, len(products))
		for i, pr := range products {
			rows[i] = []interface{}{
				pr.Name, pr.Sku, pr.Description, pr.Price, pr.Category,
				pr.Weight, pr.InStock, formatSqliteTime(pr.CreatedAt), formatSqliteTime(pr.UpdatedAt),
			}
		}
		return s.insert(ctx, conn, tableRows{
			name:    "products",
			columns: []string{"name", "sku", "description", "price", "category", "weight", "in_stock", "created_at", "updated_at"},
			rows:    rows,
		})
	})
	if err != nil {
		return nil, seedError(s.Name(), err)
	}

	products, err := s.loadProducts(ctx)
	if err != nil {
		return nil, seedError(s.Name(), err)
	}
	if len(products) == 0 {
		return nil, seedError(s.Name(), errors.New("product table is empty after seeding"))
	}
	s.cached = products
	return products, nil
}

func (s *SqliteSink) loadProducts(ctx context.Context) ([]model.Product, error) {
	query, args, err := sqliteDialect.
		From("products").
		Select("id", "name", "sku", "description", "price", "category", "weight", "in_stock", "created_at", "updated_at").
		Order(goqu.C("id").Asc()).
		ToSQL()
	if err != nil {
		return nil, errors.WithStack(err)
	}
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, errors.WithStack(err)
	}
	defer rows.Close()

	var products []model.Product
	for rows.Next() {
		var pr model.Product
		var description sql.NullString
		var createdAt, updatedAt string
		if err := rows.Scan(&pr.ID, &pr.Name, &pr.Sku, &description, &pr.Price, &pr.Category, &pr.Weight, &pr.InStock, &createdAt, &updatedAt); err != nil {
			return nil, errors.WithStack(err)
		}
		pr.Description = description.String
		if pr.CreatedAt, err = time.Parse(time.RFC3339Nano, createdAt); err != nil {
			return nil, errors.WithStack(err)
		}
		if pr.UpdatedAt, err = time.Parse(time.RFC3339Nano, updatedAt); err != nil {
			return nil, errors.WithStack(err)
		}
		products = append(products, pr)
	}
	return products, errors.WithStack(rows.Err())
}

// WriteBatch takes the write lock, allocates keys above the current maxima and inserts tier by tier.
func (s *SqliteSink) WriteBatch(ctx context.Context, customers []*model.Customer) (int, error) {
	if len(customers) == 0 {
		return 0, nil
	}
	counts := model.CountEntities(customers)

	err := s.withImmediateTx(ctx, func(conn *sql.Conn) error {
		maxCustomer, err := s.maxOrCount(ctx, conn, goqu.MAX("id"), "customers")
		if err != nil {
			return err
		}
		maxOrder, err := s.maxOrCount(ctx, conn, goqu.MAX("id"), "orders")
		if err != nil {
			return err
		}
		rows := buildRows(customers, keyRange(maxCustomer+1, counts.Customers), keyRange(maxOrder+1, counts.Orders))
		for _, t := range rows.tables() {
			if err := s.insert(ctx, conn, t); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return 0, writeError(s.Name(), err)
	}
	return counts.Total(), nil
}

// withImmediateTx runs f inside BEGIN IMMEDIATE on a dedicated connection, committing if f succeeds.
func (s *SqliteSink) withImmediateTx(ctx context.Context, f func(conn *sql.Conn) error) (err error) {
	conn, err := s.db.Conn(ctx)
	if err != nil {
		return errors.WithStack(err)
	}
	defer conn.Close()

	if _, err := conn.ExecContext(ctx, "BEGIN IMMEDIATE"); err != nil {
		return errors.Wrap(err, "acquiring sqlite write lock")
	}
	defer func() {
		if err != nil {
			if _, rbErr := conn.ExecContext(context.Background(), "ROLLBACK"); rbErr != nil {
				log.WithError(rbErr).Warn("sqlite rollback failed")
			}
		}
	}()

	if err = f(conn); err != nil {
		return err
	}
	_, err = conn.ExecContext(ctx, "COMMIT")
	return errors.WithStack(err)
}

func (s *SqliteSink) maxOrCount(ctx context.Context, conn *sql.Conn, agg interface{}, table string) (int64, error) {
	query, args, err := sqliteDialect.From(table).Select(goqu.COALESCE(agg, 0)).ToSQL()
	if err != nil {
		return 0, errors.WithStack(err)
	}
	var n int64
	if err := conn.QueryRowContext(ctx, query, args...).Scan(&n); err != nil {
		return 0, errors.Wrapf(err, "querying %s", table)
	}
	return n, nil
}

// insert writes t in multi-row INSERT statements of at most chunkSize rows.
func (s *SqliteSink) insert(ctx context.Context, conn *sql.Conn, t tableRows) error {
	cols := make([]interface{}, len(t.columns))
	for i, c := range t.columns {
		cols[i] = c
	}
	for start := 0; start < len(t.rows); start += s.chunkSize {
		end := start + s.chunkSize
		if end > len(t.rows) {
			end = len(t.rows)
		}
		vals := make([][]interface{}, 0, end-start)
		vals = append(vals, t.rows[start:end]...)

		query, args, err := sqliteDialect.Insert(t.name).Prepared(true).Cols(cols...).Vals(vals...).ToSQL()
		if err != nil {
			return errors.WithStack(err)
		}
		if _, err := conn.ExecContext(ctx, query, args...); err != nil {
			return errors.Wrapf(err, "inserting into %s", t.name)
		}
	}
	return nil
}

func (s *SqliteSink) Check(ctx context.Context) error {
	return errors.WithStack(s.db.PingContext(ctx))
}

func (s *SqliteSink) Close() error {
	return errors.WithStack(s.db.Close())
}

// formatSqliteTime renders t the way database/sql renders a time.Time scanned into a string, so products
// read back identically whether or not the driver parsed the column.
func formatSqliteTime(t time.Time) string {
	return t.UTC().Format(time.RFC3339Nano)
}

func keyRange(first int64, n int) []int64 {
	keys := make([]int64, n)
	for i := range keys {
		keys[i] = first + int64(i)
	}
	return keys
}
