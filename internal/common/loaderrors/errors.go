// Package loaderrors contains the errors returned by the load generator's control surface.
// The HTTP layer looks for the types defined in this file and maps them to a status code.
//
// If several problems are found at once (e.g., more than one invalid start parameter), the
// function should return a multierror.Error from package github.com/hashicorp/go-multierror
// that encapsulates the individual errors.
package loaderrors

import (
	"fmt"
	"net/http"

	"github.com/pkg/errors"
)

// ErrInvalidArgument is returned when a start request or a config value is malformed.
// Message is optional and is omitted from the error message if not provided.
type ErrInvalidArgument struct {
	Name    string      // Name of the field referred to, e.g., "batchSize"
	Value   interface{} // The invalid value that was provided
	Message string      // An optional message, e.g. explaining why the value is invalid
}

func (err *ErrInvalidArgument) Error() string {
	if err.Message == "" {
		return fmt.Sprintf("value %v is invalid for field %q", err.Value, err.Name)
	}
	return fmt.Sprintf("value %v is invalid for field %q; %s", err.Value, err.Name, err.Message)
}

// ErrConflict is returned when an operation is not allowed in the current lifecycle state,
// e.g. starting a generator that is already running.
type ErrConflict struct {
	State   string
	Message string
}

func (err *ErrConflict) Error() string {
	s := fmt.Sprintf("operation not allowed in state %s", err.State)
	if err.Message != "" {
		s = s + fmt.Sprintf("; %s", err.Message)
	}
	return s
}

// ErrCapacityExceeded is returned when the requested rate exceeds the estimated capacity of the sink
// and the capacity policy says to reject.
type ErrCapacityExceeded struct {
	Requested int
	Estimated int
}

func (err *ErrCapacityExceeded) Error() string {
	return fmt.Sprintf(
		"requested %d batches/s exceeds estimated capacity of %d batches/s; reduce the rate or batch size, or add workers",
		err.Requested, err.Estimated,
	)
}

// ErrSink wraps a failure to write to a storage sink.
type ErrSink struct {
	Sink string // e.g. "postgres"
	Op   string // e.g. "write batch"
	Err  error
}

func (err *ErrSink) Error() string {
	return fmt.Sprintf("%s sink: %s: %v", err.Sink, err.Op, err.Err)
}

func (err *ErrSink) Unwrap() error { return err.Err }

func (err *ErrSink) Cause() error { return err.Err }

// ErrSeed wraps a failure to seed the product pool. It is fatal to a start request.
type ErrSeed struct {
	Sink string
	Err  error
}

func (err *ErrSeed) Error() string {
	return fmt.Sprintf("seeding product pool in %s sink: %v", err.Sink, err.Err)
}

func (err *ErrSeed) Unwrap() error { return err.Err }

func (err *ErrSeed) Cause() error { return err.Err }

// HTTPStatusFromError maps error types to HTTP status codes.
// Uses errors.As to look through the chain of errors, as opposed to just considering the topmost error in the chain.
func HTTPStatusFromError(err error) int {
	if err == nil {
		return http.StatusOK
	}

	// Using {} scopes just to re-use the "e" variable name for each case.
	{
		var e *ErrInvalidArgument
		if errors.As(err, &e) {
			return http.StatusBadRequest
		}
	}
	{
		var e *ErrConflict
		if errors.As(err, &e) {
			return http.StatusConflict
		}
	}
	{
		var e *ErrCapacityExceeded
		if errors.As(err, &e) {
			return http.StatusUnprocessableEntity
		}
	}
	{
		var e *ErrSink
		if errors.As(err, &e) {
			return http.StatusBadGateway
		}
	}
	return http.StatusInternalServerError
}
