package loaderrors

import (
	"fmt"
	"net/http"
	"testing"

	"github.com/hashicorp/go-multierror"
	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
)

func TestHTTPStatusFromError(t *testing.T) {
	tests := map[string]struct {
		err  error
		want int
	}{
		"nil":                                {nil, http.StatusOK},
		"ErrInvalidArgument":                 {&ErrInvalidArgument{}, http.StatusBadRequest},
		"ErrConflict":                        {&ErrConflict{}, http.StatusConflict},
		"ErrCapacityExceeded":                {&ErrCapacityExceeded{}, http.StatusUnprocessableEntity},
		"ErrSink":                            {&ErrSink{Err: errors.New("boom")}, http.StatusBadGateway},
		"ErrSeed":                            {&ErrSeed{Err: errors.New("boom")}, http.StatusInternalServerError},
		"pkg.Error => ErrConflict":           {errors.WithMessage(&ErrConflict{}, "foo"), http.StatusConflict},
		"fmt wrap => ErrCapacityExceeded":    {fmt.Errorf("foo: %w", &ErrCapacityExceeded{}), http.StatusUnprocessableEntity},
		"multierror => ErrInvalidArgument":   {multierror.Append(nil, &ErrInvalidArgument{Name: "a"}, &ErrInvalidArgument{Name: "b"}), http.StatusBadRequest},
		"pkg.Error":                          {errors.New("foo"), http.StatusInternalServerError},
	}

	for name, tc := range tests {
		t.Run(name, func(t *testing.T) {
			assert.Equal(t, tc.want, HTTPStatusFromError(tc.err))
		})
	}
}

func TestErrorMessages(t *testing.T) {
	assert.Equal(t, `value 0 is invalid for field "batchSize"`, (&ErrInvalidArgument{Name: "batchSize", Value: 0}).Error())
	assert.Equal(t,
		`value -1 is invalid for field "workerThreads"; must be >= 0`,
		(&ErrInvalidArgument{Name: "workerThreads", Value: -1, Message: "must be >= 0"}).Error(),
	)
	assert.Equal(t, "operation not allowed in state Running; already running", (&ErrConflict{State: "Running", Message: "already running"}).Error())
	assert.Contains(t, (&ErrCapacityExceeded{Requested: 100, Estimated: 12}).Error(), "requested 100 batches/s exceeds estimated capacity of 12")
}

func TestUnwrap(t *testing.T) {
	root := errors.New("connection refused")

	sinkErr := &ErrSink{Sink: "redis", Op: "write batch", Err: root}
	assert.ErrorIs(t, sinkErr, root)
	assert.Equal(t, root, errors.Cause(sinkErr))
	assert.Equal(t, "redis sink: write batch: connection refused", sinkErr.Error())

	seedErr := &ErrSeed{Sink: "s3", Err: root}
	assert.ErrorIs(t, seedErr, root)
	assert.Equal(t, "seeding product pool in s3 sink: connection refused", seedErr.Error())
}
