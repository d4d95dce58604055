package health

import (
	"context"

	"github.com/hashicorp/go-multierror"
)

// Checker reports whether a dependency is usable. A nil error means healthy.
type Checker interface {
	Check(ctx context.Context) error
}

// CheckerFunc adapts a function to a Checker.
type CheckerFunc func(ctx context.Context) error

func (f CheckerFunc) Check(ctx context.Context) error {
	return f(ctx)
}

// MultiChecker is healthy when all of its checkers are.
type MultiChecker struct {
	checkers []Checker
}

func NewMultiChecker(checkers ...Checker) *MultiChecker {
	return &MultiChecker{
		checkers: checkers,
	}
}

// Check runs every checker and returns all failures together.
func (mc *MultiChecker) Check(ctx context.Context) error {
	var result *multierror.Error
	for _, checker := range mc.checkers {
		if err := checker.Check(ctx); err != nil {
			result = multierror.Append(result, err)
		}
	}
	return result.ErrorOrNil()
}
