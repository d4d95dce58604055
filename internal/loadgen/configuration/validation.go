package configuration

import (
	"github.com/go-playground/validator/v10"
	"github.com/hashicorp/go-multierror"
	"github.com/pkg/errors"

	"github.com/armadaproject/loadgen/internal/common/loaderrors"
)

// Validate checks the request. All problems are reported together as a multierror of *loaderrors.ErrInvalidArgument.
func (r LoadRequest) Validate() error {
	var result *multierror.Error
	if r.BatchSize <= 0 {
		result = multierror.Append(result, &loaderrors.ErrInvalidArgument{
			Name: "batchSize", Value: r.BatchSize, Message: "must be greater than 0",
		})
	}
	if r.BatchesPerSecond <= 0 {
		result = multierror.Append(result, &loaderrors.ErrInvalidArgument{
			Name: "batchesPerSecond", Value: r.BatchesPerSecond, Message: "must be greater than 0",
		})
	}
	if r.DurationMinutes <= 0 {
		result = multierror.Append(result, &loaderrors.ErrInvalidArgument{
			Name: "durationMinutes", Value: r.DurationMinutes, Message: "must be greater than 0",
		})
	}
	if r.WorkerThreads < 0 {
		result = multierror.Append(result, &loaderrors.ErrInvalidArgument{
			Name: "workerThreads", Value: r.WorkerThreads, Message: "must be 0 (auto) or greater",
		})
	}
	return result.ErrorOrNil()
}

func (c Configuration) Validate() error {
	validate := validator.New()
	if err := validate.Struct(c); err != nil {
		return err
	}
	if err := c.Logging.Validate(); err != nil {
		return err
	}

	switch c.Sink.Kind {
	case SinkPostgres:
		return validate.Struct(c.Sink.Postgres)
	case SinkSqlite:
		return validate.Struct(c.Sink.Sqlite)
	case SinkRedis:
		return validate.Struct(c.Sink.Redis)
	case SinkS3:
		return validate.Struct(c.Sink.S3)
	case SinkMemory:
		return nil
	}
	return errors.Errorf("unknown sink kind %q", c.Sink.Kind)
}
