package configuration

import (
	"strings"
	"time"

	"github.com/pkg/errors"
	"golang.org/x/exp/maps"

	commonconfig "github.com/armadaproject/loadgen/internal/common/config"
	"github.com/armadaproject/loadgen/internal/common/compress"
	"github.com/armadaproject/loadgen/internal/common/logging"
)

// LoadRequest is the parameter set of one run.
type LoadRequest struct {
	// Customers per batch
	BatchSize int `json:"batchSize"`
	// Target rate of batch admissions
	BatchesPerSecond int `json:"batchesPerSecond"`
	// The run stops by itself once this much time has elapsed
	DurationMinutes int `json:"durationMinutes"`
	// Size of the worker pool; 0 picks max(2, number of CPUs)
	WorkerThreads int `json:"workerThreads"`
}

func (r LoadRequest) Duration() time.Duration {
	return time.Duration(r.DurationMinutes) * time.Minute
}

// CapacityPolicy decides what happens when the requested rate exceeds the estimated capacity of the sink.
type CapacityPolicy string

const (
	// CapacityWarn logs a warning and starts anyway; excess ticks are dropped by admission control.
	CapacityWarn CapacityPolicy = "warn"
	// CapacityReject refuses to start.
	CapacityReject CapacityPolicy = "reject"
)

var validCapacityPolicies = map[CapacityPolicy]bool{CapacityWarn: true, CapacityReject: true}

func (p *CapacityPolicy) UnmarshalText(text []byte) error {
	v := CapacityPolicy(strings.ToLower(strings.TrimSpace(string(text))))
	if !validCapacityPolicies[v] {
		return errors.Errorf("unknown capacity policy %q; valid values are %v", string(text), maps.Keys(validCapacityPolicies))
	}
	*p = v
	return nil
}

type SinkKind string

const (
	SinkPostgres SinkKind = "postgres"
	SinkSqlite   SinkKind = "sqlite"
	SinkRedis    SinkKind = "redis"
	SinkS3       SinkKind = "s3"
	SinkMemory   SinkKind = "memory"
)

var validSinkKinds = map[SinkKind]bool{SinkPostgres: true, SinkSqlite: true, SinkRedis: true, SinkS3: true, SinkMemory: true}

func (k *SinkKind) UnmarshalText(text []byte) error {
	v := SinkKind(strings.ToLower(strings.TrimSpace(string(text))))
	if !validSinkKinds[v] {
		return errors.Errorf("unknown sink kind %q; valid values are %v", string(text), maps.Keys(validSinkKinds))
	}
	*k = v
	return nil
}

type Configuration struct {
	Logging logging.Config
	Engine  EngineConfig
	Sink    SinkConfig
	Api     ApiConfig
	// Port for the prometheus endpoint in run mode; 0 disables it. serve mode exposes /metrics on the API port.
	MetricsPort uint16
	// Defaults for the run and estimate commands, overridable with flags
	Request LoadRequest
}

type EngineConfig struct {
	// Number of products seeded into an empty sink
	ProductPoolSize int `validate:"gt=0"`
	// What to do when the requested rate exceeds estimated capacity
	CapacityPolicy CapacityPolicy `validate:"required"`
	// How long Stop waits for in-flight batches before cancelling them
	ShutdownGracePeriod time.Duration `validate:"gt=0"`
	// Upper bound on a single batch write
	WriteTimeout time.Duration `validate:"gt=0"`
	// How often the run command logs progress
	ProgressInterval time.Duration `validate:"gte=0"`
}

// SinkConfig selects a sink by Kind. Only the sub-config for the selected kind is validated.
type SinkConfig struct {
	Kind     SinkKind           `validate:"required"`
	Postgres PostgresSinkConfig `validate:"-"`
	Sqlite   SqliteSinkConfig   `validate:"-"`
	Redis    RedisSinkConfig    `validate:"-"`
	S3       S3SinkConfig       `validate:"-"`
}

type PostgresSinkConfig struct {
	commonconfig.PostgresConfig `mapstructure:",squash"`
	// Create or upgrade the schema on startup
	ApplyMigrations bool
}

type SqliteSinkConfig struct {
	// Database file; created if missing
	Path        string `validate:"required"`
	BusyTimeout time.Duration
	// Rows per INSERT statement
	InsertChunkSize int `validate:"gte=0"`
}

type RedisSinkConfig struct {
	commonconfig.RedisConfig `mapstructure:",squash"`
	// Prepended to every key written
	KeyPrefix   string
	Compression compress.Codec
	// Lifetime of the seed lock, so a crashed seeder doesn't block others forever
	SeedLockTTL time.Duration `validate:"gt=0"`
	// How long a non-seeding process waits for the pool to appear
	SeedWaitTimeout time.Duration `validate:"gt=0"`
}

type S3SinkConfig struct {
	Bucket string `validate:"required"`
	Region string
	// Custom endpoint, e.g. for minio or localstack
	Endpoint     string
	UsePathStyle bool
	// Prepended to every object key
	Prefix string
	// Maximum concurrent PutObject calls per batch
	Concurrency int `validate:"gte=0"`
	// How long a non-seeding process waits for the pool manifest to become readable
	SeedWaitTimeout time.Duration `validate:"gt=0"`
}

type ApiConfig struct {
	Port          uint16 `validate:"required"`
	HealthTimeout time.Duration
}
