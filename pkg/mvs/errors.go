package mvs

import (
	"errors"
	"fmt"
)

// CorruptDataError is returned when a control block violates a structural
// invariant, for example a linkage stack whose size is not a multiple of
// its entry size.
type CorruptDataError struct {
	Field string
	Value int64
}

func (e *CorruptDataError) Error() string {
	return fmt.Sprintf("corrupt data: %s = %#x", e.Field, e.Value)
}

// UnimplementedError is returned when the saved state of a task is in a
// recognized representation that zdump does not know how to decode.
type UnimplementedError struct {
	Variant string
}

func (e *UnimplementedError) Error() string {
	return fmt.Sprintf("register recovery not implemented for %s", e.Variant)
}

// Variants reported by UnimplementedError.
const (
	VariantOTCBFastPath = "otcb-fastpath"
	VariantMultiRBOther = "multi-rb-other"
)

// InternalError wraps an unexpected failure while recovering registers.
type InternalError struct {
	Cause error
}

func (e *InternalError) Error() string {
	return fmt.Sprintf("internal error recovering registers: %v", e.Cause)
}

func (e *InternalError) Unwrap() error { return e.Cause }

// wrapInternal returns err unchanged if it is one of the recovery errors
// callers are expected to handle and wraps it in an InternalError
// otherwise.
func wrapInternal(err error) error {
	if err == nil {
		return nil
	}
	var (
		corrupt  *CorruptDataError
		unimpl   *UnimplementedError
		internal *InternalError
	)
	if errors.As(err, &corrupt) || errors.As(err, &unimpl) || errors.As(err, &internal) {
		return err
	}
	return &InternalError{Cause: err}
}

var errNilSpace = errors.New("nil address space")
