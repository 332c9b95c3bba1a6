package review

import (
	"errors"
	"fmt"

	"github.com/stitchhq/stitch/fixctx"
	"github.com/stitchhq/stitch/launchtoken"
)

// ErrorClass sorts run failures into the three classes the orchestrator
// distinguishes: fatal aborts the run, degraded logs and continues,
// expected is a normal condition surfaced as a plain message.
type ErrorClass int

const (
	ClassFatal ErrorClass = iota
	ClassDegraded
	ClassExpected
)

func (c ErrorClass) String() string {
	switch c {
	case ClassDegraded:
		return "degraded"
	case ClassExpected:
		return "expected"
	default:
		return "fatal"
	}
}

// RunError is a classified error from one stage of a review run.
type RunError struct {
	Class ErrorClass
	Op    string
	Err   error
}

func (e *RunError) Error() string {
	return fmt.Sprintf("%s: %v", e.Op, e.Err)
}

func (e *RunError) Unwrap() error {
	return e.Err
}

// fatalErr wraps an error that must abort the run.
func fatalErr(op string, err error) error {
	return &RunError{Class: ClassFatal, Op: op, Err: err}
}

// degradedErr wraps an error from a best-effort stage: the run continues
// without the stage's output and the failure is logged, not returned.
func degradedErr(op string, err error) error {
	return &RunError{Class: ClassDegraded, Op: op, Err: err}
}

// ClassOf returns the class of an error. The expected-condition sentinels
// of the stores classify as expected; everything else unclassified is
// treated as fatal, so an unknown failure is never silently downgraded.
func ClassOf(err error) ErrorClass {
	var runErr *RunError
	if errors.As(err, &runErr) {
		return runErr.Class
	}
	if errors.Is(err, fixctx.ErrNotFound) || errors.Is(err, launchtoken.ErrExpired) {
		return ClassExpected
	}
	return ClassFatal
}

// IsFatal reports whether the error should abort the run with a non-zero
// exit.
func IsFatal(err error) bool {
	return err != nil && ClassOf(err) == ClassFatal
}
