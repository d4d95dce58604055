package sink

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"sync"
	"time"

	"github.com/avast/retry-go"
	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/smithy-go"
	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"

	"github.com/armadaproject/loadgen/internal/loadgen/configuration"
	"github.com/armadaproject/loadgen/internal/loadgen/estimation"
	"github.com/armadaproject/loadgen/internal/loadgen/model"
)

const (
	poolManifestKey    = "products/pool.json"
	customerObjectDir  = "customers/"
	defaultS3PutLimit  = 16
	manifestRetryDelay = 200 * time.Millisecond
)

// s3API is the subset of *s3.Client the sink uses.
type s3API interface {
	PutObject(ctx context.Context, params *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error)
	GetObject(ctx context.Context, params *s3.GetObjectInput, optFns ...func(*s3.Options)) (*s3.GetObjectOutput, error)
	HeadBucket(ctx context.Context, params *s3.HeadBucketInput, optFns ...func(*s3.Options)) (*s3.HeadBucketOutput, error)
}

// S3Sink stores one JSON object per customer. The product pool is a single manifest object created with
// a conditional put, so exactly one writer can ever create it.
type S3Sink struct {
	client s3API
	cfg    configuration.S3SinkConfig
	opts   Options

	seedMu sync.Mutex
	cached []model.Product
}

func NewS3Sink(ctx context.Context, cfg configuration.S3SinkConfig, opts Options) (*S3Sink, error) {
	var loadOpts []func(*awsconfig.LoadOptions) error
	if cfg.Region != "" {
		loadOpts = append(loadOpts, awsconfig.WithRegion(cfg.Region))
	}
	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, loadOpts...)
	if err != nil {
		return nil, errors.Wrap(err, "loading AWS config")
	}

	var s3Opts []func(*s3.Options)
	if cfg.Endpoint != "" {
		s3Opts = append(s3Opts, func(o *s3.Options) {
			o.BaseEndpoint = aws.String(cfg.Endpoint)
		})
	}
	if cfg.UsePathStyle {
		s3Opts = append(s3Opts, func(o *s3.Options) {
			o.UsePathStyle = true
		})
	}
	return NewS3SinkWithClient(s3.NewFromConfig(awsCfg, s3Opts...), cfg, opts), nil
}

// NewS3SinkWithClient builds a sink on a pre-configured client.
func NewS3SinkWithClient(client s3API, cfg configuration.S3SinkConfig, opts Options) *S3Sink {
	if cfg.Concurrency <= 0 {
		cfg.Concurrency = defaultS3PutLimit
	}
	if cfg.SeedWaitTimeout <= 0 {
		cfg.SeedWaitTimeout = 30 * time.Second
	}
	return &S3Sink{client: client, cfg: cfg, opts: opts.withDefaults()}
}

func (s *S3Sink) Name() string { return "s3" }

func (s *S3Sink) Shape() model.Shape { return model.ShapeDocument }

// CostModel: one request per customer, so the per-entity cost is amortized over roughly 18 entities.
func (s *S3Sink) CostModel() estimation.CostModel {
	return costModels[configuration.SinkS3]
}

func (s *S3Sink) key(k string) string {
	return s.cfg.Prefix + k
}

func (s *S3Sink) EnsurePoolSeeded(ctx context.Context) ([]model.Product, error) {
	s.seedMu.Lock()
	defer s.seedMu.Unlock()
	if len(s.cached) > 0 {
		return s.cached, nil
	}

	products, err := s.readManifest(ctx)
	if err != nil && !isNotFound(err) {
		return nil, seedError(s.Name(), err)
	}
	if isNotFound(err) {
		products, err = s.createManifest(ctx)
		if err != nil {
			return nil, seedError(s.Name(), err)
		}
	}
	if len(products) == 0 {
		return nil, seedError(s.Name(), errors.New("product manifest is empty"))
	}
	s.cached = products
	return products, nil
}

// createManifest tries to create the pool. If another writer got there first, its manifest is read instead.
func (s *S3Sink) createManifest(ctx context.Context) ([]model.Product, error) {
	products := s.opts.generatePool()
	assignProductIDs(products)
	body, err := json.Marshal(products)
	if err != nil {
		return nil, errors.WithStack(err)
	}

	_, err = s.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(s.cfg.Bucket),
		Key:         aws.String(s.key(poolManifestKey)),
		Body:        bytes.NewReader(body),
		ContentType: aws.String("application/json"),
		IfNoneMatch: aws.String("*"),
	})
	if err == nil {
		log.Infof("No products found, seeded %d", len(products))
		return products, nil
	}
	if !isPreconditionFailed(err) {
		return nil, errors.Wrap(err, "writing product manifest")
	}

	log.Info("Another process created the product pool, reading it")
	var existing []model.Product
	err = retry.Do(
		func() error {
			var err error
			existing, err = s.readManifest(ctx)
			return err
		},
		retry.Context(ctx),
		retry.Attempts(uint(s.cfg.SeedWaitTimeout/manifestRetryDelay)+1),
		retry.Delay(manifestRetryDelay),
		retry.DelayType(retry.FixedDelay),
		retry.LastErrorOnly(true),
	)
	return existing, err
}

func (s *S3Sink) readManifest(ctx context.Context) ([]model.Product, error) {
	out, err := s.client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(s.cfg.Bucket),
		Key:    aws.String(s.key(poolManifestKey)),
	})
	if err != nil {
		return nil, errors.WithStack(err)
	}
	defer out.Body.Close()

	b, err := io.ReadAll(out.Body)
	if err != nil {
		return nil, errors.WithStack(err)
	}
	var products []model.Product
	if err := json.Unmarshal(b, &products); err != nil {
		return nil, errors.Wrap(err, "decoding product manifest")
	}
	return products, nil
}

// WriteBatch puts one object per customer, at most cfg.Concurrency at a time. Objects already written
// when another put fails stay in the bucket.
func (s *S3Sink) WriteBatch(ctx context.Context, customers []*model.Customer) (int, error) {
	if len(customers) == 0 {
		return 0, nil
	}
	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(s.cfg.Concurrency)
	for _, c := range customers {
		c := c
		g.Go(func() error {
			body, err := json.Marshal(c)
			if err != nil {
				return errors.WithStack(err)
			}
			_, err = s.client.PutObject(ctx, &s3.PutObjectInput{
				Bucket:      aws.String(s.cfg.Bucket),
				Key:         aws.String(s.key(customerObjectDir + c.ID + ".json")),
				Body:        bytes.NewReader(body),
				ContentType: aws.String("application/json"),
			})
			return errors.Wrapf(err, "putting customer %s", c.ID)
		})
	}
	if err := g.Wait(); err != nil {
		return 0, writeError(s.Name(), err)
	}
	return len(customers), nil
}

func (s *S3Sink) Check(ctx context.Context) error {
	_, err := s.client.HeadBucket(ctx, &s3.HeadBucketInput{Bucket: aws.String(s.cfg.Bucket)})
	return errors.WithStack(err)
}

func (s *S3Sink) Close() error { return nil }

func apiErrorCode(err error) string {
	var apiErr smithy.APIError
	if errors.As(err, &apiErr) {
		return apiErr.ErrorCode()
	}
	return ""
}

func isNotFound(err error) bool {
	switch apiErrorCode(err) {
	case "NoSuchKey", "NotFound":
		return true
	}
	return false
}

func isPreconditionFailed(err error) bool {
	switch apiErrorCode(err) {
	case "PreconditionFailed", "ConditionalRequestConflict":
		return true
	}
	return false
}
