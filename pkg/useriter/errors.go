package useriter

import "errors"

// ErrUnsupportedBound is returned when a range specifies the one bound kind
// this layer does not implement: an Excluded upper bound for the reverse
// iterator (symmetrically, an Excluded lower bound for the forward
// iterator). Implementers must fail fast here rather than silently
// treating it as Included.
var ErrUnsupportedBound = errors.New("useriter: excluded bound is not supported on this side")

// ErrInvalidState names the error for calling Key or Value while the
// iterator is not valid. Key and Value have no error result and do not
// check validity, so no function in this package returns it.
var ErrInvalidState = errors.New("useriter: Key/Value called on an invalid iterator")

// SourceError wraps an error surfaced by an underlying source iterator so
// callers can distinguish it from errors raised by this layer itself.
type SourceError struct {
	Err error
}

func (e *SourceError) Error() string {
	return "useriter: source error: " + e.Err.Error()
}

func (e *SourceError) Unwrap() error {
	return e.Err
}
