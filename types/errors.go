package types

import (
	"errors"
	"fmt"
)

// HandleError is an expected business-rule failure raised while handling a
// dispatch. It carries the status code recorded for the dispatch; the
// processor rolls back the dispatch's savepoint frame and converts the error
// to a record, it never propagates past the per-transaction boundary.
type HandleError struct {
	Code  Status
	Cause error
}

func NewHandleError(code Status) *HandleError {
	return &HandleError{Code: code}
}

func NewHandleErrorf(code Status, format string, args ...any) *HandleError {
	return &HandleError{Code: code, Cause: fmt.Errorf(format, args...)}
}

func (e *HandleError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %v", e.Code, e.Cause)
	}
	return e.Code.String()
}

func (e *HandleError) Unwrap() error {
	return e.Cause
}

// StatusOf extracts the business status carried by err, if any.
func StatusOf(err error) (Status, bool) {
	var he *HandleError
	if errors.As(err, &he) {
		return he.Code, true
	}
	return StatusOK, false
}
