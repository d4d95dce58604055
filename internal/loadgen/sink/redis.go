package sink

import (
	"context"
	"encoding/json"
	"sort"
	"strconv"
	"sync"
	"time"

	"github.com/avast/retry-go"
	"github.com/go-redis/redis"
	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"

	"github.com/armadaproject/loadgen/internal/common/compress"
	"github.com/armadaproject/loadgen/internal/loadgen/configuration"
	"github.com/armadaproject/loadgen/internal/loadgen/estimation"
	"github.com/armadaproject/loadgen/internal/loadgen/model"
)

const (
	productsKey     = "products"
	seededKey       = "products:seeded"
	seedLockKey     = "products:seed-lock"
	customerSetKey  = "customers"
	customerKeyPart = "customer:"

	seedPollInterval = 100 * time.Millisecond
)

// RedisSink stores each customer as a (possibly compressed) JSON string under its own key.
// The product pool is a hash keyed by product id.
type RedisSink struct {
	db   *redis.Client
	cfg  configuration.RedisSinkConfig
	opts Options

	seedMu sync.Mutex
	cached []model.Product
}

func NewRedisSink(_ context.Context, cfg configuration.RedisSinkConfig, opts Options) (*RedisSink, error) {
	db := redis.NewClient(cfg.AsOptions())
	if err := db.Ping().Err(); err != nil {
		_ = db.Close()
		return nil, errors.Wrapf(err, "connecting to redis at %s", cfg.Addr)
	}
	return NewRedisSinkFromClient(db, cfg, opts), nil
}

// NewRedisSinkFromClient wraps an existing client. Close closes the client.
func NewRedisSinkFromClient(db *redis.Client, cfg configuration.RedisSinkConfig, opts Options) *RedisSink {
	if cfg.SeedLockTTL <= 0 {
		cfg.SeedLockTTL = 30 * time.Second
	}
	if cfg.SeedWaitTimeout <= 0 {
		cfg.SeedWaitTimeout = 30 * time.Second
	}
	return &RedisSink{db: db, cfg: cfg, opts: opts.withDefaults()}
}

func (r *RedisSink) Name() string { return "redis" }

func (r *RedisSink) Shape() model.Shape { return model.ShapeDocument }

// CostModel: a single pipelined round trip per batch, dominated by serialization.
func (r *RedisSink) CostModel() estimation.CostModel {
	return costModels[configuration.SinkRedis]
}

func (r *RedisSink) key(k string) string {
	return r.cfg.KeyPrefix + k
}

// EnsurePoolSeeded elects a seeder with SETNX. The winner writes the pool and then the marker key in one
// transaction; everyone else polls for the marker until SeedWaitTimeout.
func (r *RedisSink) EnsurePoolSeeded(ctx context.Context) ([]model.Product, error) {
	r.seedMu.Lock()
	defer r.seedMu.Unlock()
	if len(r.cached) > 0 {
		return r.cached, nil
	}
	db := r.db.WithContext(ctx)

	seeded, err := r.isSeeded(db)
	if err != nil {
		return nil, seedError(r.Name(), err)
	}
	if !seeded {
		won, err := db.SetNX(r.key(seedLockKey), strconv.FormatInt(time.Now().UnixNano(), 10), r.cfg.SeedLockTTL).Result()
		if err != nil {
			return nil, seedError(r.Name(), err)
		}
		if won {
			err = r.seed(db)
			if delErr := db.Del(r.key(seedLockKey)).Err(); delErr != nil {
				log.WithError(delErr).Warn("Failed to release redis seed lock")
			}
		} else {
			log.Info("Another process is seeding the product pool, waiting")
			err = r.waitForSeed(ctx, db)
		}
		if err != nil {
			return nil, seedError(r.Name(), err)
		}
	}

	products, err := r.loadProducts(db)
	if err != nil {
		return nil, seedError(r.Name(), err)
	}
	if len(products) == 0 {
		return nil, seedError(r.Name(), errors.New("product pool is empty after seeding"))
	}
	r.cached = products
	return products, nil
}

func (r *RedisSink) isSeeded(db *redis.Client) (bool, error) {
	n, err := db.Exists(r.key(seededKey)).Result()
	if err != nil {
		return false, errors.WithStack(err)
	}
	return n > 0, nil
}

// seed writes the pool unless the marker exists. The marker is watched, so if the lock expired and another
// seeder committed first, the transaction is discarded instead of replacing their pool.
func (r *RedisSink) seed(db *redis.Client) error {
	err := db.Watch(func(tx *redis.Tx) error {
		// The previous lock holder may have finished between our check and taking the lock.
		n, err := tx.Exists(r.key(seededKey)).Result()
		if err != nil || n > 0 {
			return errors.WithStack(err)
		}
		products := r.opts.generatePool()
		assignProductIDs(products)
		log.Infof("No products found, seeding %d", len(products))

		fields := make(map[string]interface{}, len(products))
		for _, pr := range products {
			b, err := json.Marshal(pr)
			if err != nil {
				return errors.WithStack(err)
			}
			fields[strconv.FormatInt(pr.ID, 10)] = b
		}
		_, err = tx.Pipelined(func(pipe redis.Pipeliner) error {
			pipe.Del(r.key(productsKey))
			pipe.HMSet(r.key(productsKey), fields)
			pipe.Set(r.key(seededKey), len(products), 0)
			return nil
		})
		return err
	}, r.key(seededKey))
	if err == redis.TxFailedErr {
		log.Info("Another process seeded the product pool first, keeping theirs")
		return nil
	}
	return errors.Wrap(err, "writing product pool")
}

func (r *RedisSink) waitForSeed(ctx context.Context, db *redis.Client) error {
	attempts := uint(r.cfg.SeedWaitTimeout/seedPollInterval) + 1
	return retry.Do(
		func() error {
			seeded, err := r.isSeeded(db)
			if err != nil {
				return err
			}
			if !seeded {
				return errors.New("product pool not yet seeded")
			}
			return nil
		},
		retry.Context(ctx),
		retry.Attempts(attempts),
		retry.Delay(seedPollInterval),
		retry.DelayType(retry.FixedDelay),
		retry.LastErrorOnly(true),
	)
}

func (r *RedisSink) loadProducts(db *redis.Client) ([]model.Product, error) {
	fields, err := db.HGetAll(r.key(productsKey)).Result()
	if err != nil {
		return nil, errors.WithStack(err)
	}
	products := make([]model.Product, 0, len(fields))
	for id, v := range fields {
		var pr model.Product
		if err := json.Unmarshal([]byte(v), &pr); err != nil {
			return nil, errors.Wrapf(err, "decoding product %s", id)
		}
		products = append(products, pr)
	}
	sort.Slice(products, func(i, j int) bool { return products[i].ID < products[j].ID })
	return products, nil
}

// WriteBatch writes every customer document and its id in the customer index in one MULTI/EXEC.
func (r *RedisSink) WriteBatch(ctx context.Context, customers []*model.Customer) (int, error) {
	if len(customers) == 0 {
		return 0, nil
	}
	compressor, err := compress.NewCompressor(r.cfg.Compression)
	if err != nil {
		return 0, writeError(r.Name(), err)
	}

	pipe := r.db.WithContext(ctx).TxPipeline()
	ids := make([]interface{}, 0, len(customers))
	for _, c := range customers {
		b, err := json.Marshal(c)
		if err != nil {
			return 0, writeError(r.Name(), err)
		}
		b, err = compressor.Compress(b)
		if err != nil {
			return 0, writeError(r.Name(), err)
		}
		pipe.Set(r.key(customerKeyPart+c.ID), b, 0)
		ids = append(ids, c.ID)
	}
	pipe.SAdd(r.key(customerSetKey), ids...)
	if _, err := pipe.Exec(); err != nil {
		return 0, writeError(r.Name(), err)
	}
	return len(customers), nil
}

// ReadCustomer fetches and decodes one stored customer document.
func (r *RedisSink) ReadCustomer(ctx context.Context, id string) (*model.Customer, error) {
	b, err := r.db.WithContext(ctx).Get(r.key(customerKeyPart + id)).Bytes()
	if err != nil {
		return nil, errors.WithStack(err)
	}
	decompressor, err := compress.NewDecompressor(r.cfg.Compression)
	if err != nil {
		return nil, err
	}
	b, err = decompressor.Decompress(b)
	if err != nil {
		return nil, err
	}
	var c model.Customer
	if err := json.Unmarshal(b, &c); err != nil {
		return nil, errors.WithStack(err)
	}
	return &c, nil
}

func (r *RedisSink) Check(ctx context.Context) error {
	return errors.WithStack(r.db.WithContext(ctx).Ping().Err())
}

func (r *RedisSink) Close() error {
	return errors.WithStack(r.db.Close())
}
