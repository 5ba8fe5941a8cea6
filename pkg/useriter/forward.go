package useriter

import (
	"context"

	"hummock/internal/base"
	"hummock/internal/compare"
	"hummock/pkg/iterator"
)

// Forward is the ascending user-key iterator. Within each internal-key
// group the merged stream it consumes visits versions newest-first, so the
// first visible version of a newly-encountered user key is already the
// answer: Forward never needs to look ahead the way Reverse does.
type Forward struct {
	source    iterator.SourceIterator
	cmp       compare.Compare
	readEpoch base.Epoch
	keyRange  KeyRange

	lastKey    []byte
	lastVal    []byte
	valid      bool
	outOfRange bool
}

var _ Iterator = (*Forward)(nil)

// NewForward constructs a forward user-key iterator over source, which must
// produce internal keys in ascending order. The iterator is not positioned
// until Rewind or Seek is called.
func NewForward(source iterator.SourceIterator, keyRange KeyRange, readEpoch base.Epoch) *Forward {
	return &Forward{
		source:    source,
		cmp:       compare.DefaultCompare,
		readEpoch: readEpoch,
		keyRange:  keyRange,
	}
}

func (f *Forward) reset() {
	f.lastKey = f.lastKey[:0]
	f.lastVal = f.lastVal[:0]
	f.valid = false
	f.outOfRange = false
}

// Rewind positions the iterator at the lower bound (or the very first key,
// if unbounded) and resolves the first visible user key.
func (f *Forward) Rewind(ctx context.Context) error {
	f.reset()
	switch f.keyRange.Lower.Kind {
	case Included:
		ik := base.MakeSearchKey(f.keyRange.Lower.Key).Encode()
		if err := f.source.Seek(ctx, ik); err != nil {
			return &SourceError{Err: err}
		}
	case Excluded:
		return ErrUnsupportedBound
	default:
		if err := f.source.Rewind(ctx); err != nil {
			return &SourceError{Err: err}
		}
	}
	return f.next(ctx)
}

// Seek clamps userKey to the lower bound, positions the source at the first
// internal key of that user key's group, and resolves the first visible
// user key at or after it.
func (f *Forward) Seek(ctx context.Context, userKey []byte) error {
	f.reset()
	uk := userKey
	if f.keyRange.Lower.Kind == Excluded {
		return ErrUnsupportedBound
	}
	if f.keyRange.Lower.Kind == Included && f.cmp(uk, f.keyRange.Lower.Key) < 0 {
		uk = f.keyRange.Lower.Key
	}
	ik := base.MakeSearchKey(uk).Encode()
	if err := f.source.Seek(ctx, ik); err != nil {
		return &SourceError{Err: err}
	}
	return f.next(ctx)
}

// next is the shared engine behind Rewind, Seek and Next: it advances until
// it finds a new user key with a visible live Put, or runs out of input.
func (f *Forward) next(ctx context.Context) error {
	for f.source.IsValid() {
		ik := f.source.Key()
		uk := base.UserKey(ik)
		epoch := base.DecodeEpoch(ik)

		if !visible(epoch, f.readEpoch) {
			if err := f.source.Next(ctx); err != nil {
				return &SourceError{Err: err}
			}
			continue
		}

		// First visible version of a (possibly new) user key group.
		val := f.source.Value()

		if f.keyRange.aboveUpper(f.cmp, uk) {
			f.outOfRange = true
			f.valid = false
			return nil
		}

		if val.IsDelete() {
			// Tombstone: skip the rest of this group.
			if err := f.skipGroup(ctx, uk); err != nil {
				return err
			}
			continue
		}

		f.lastKey = append(f.lastKey[:0], uk...)
		f.lastVal = append(f.lastVal[:0], val.Payload...)
		f.valid = true
		if err := f.skipGroup(ctx, uk); err != nil {
			return err
		}
		return nil
	}
	if f.source.Error() != nil {
		return &SourceError{Err: f.source.Error()}
	}
	f.valid = false
	return nil
}

// skipGroup advances the source past every remaining internal key sharing
// user key uk, leaving it positioned at the first key of the next group (or
// invalid).
func (f *Forward) skipGroup(ctx context.Context, uk []byte) error {
	for f.source.IsValid() {
		next := base.UserKey(f.source.Key())
		if f.cmp(next, uk) != 0 {
			return nil
		}
		if err := f.source.Next(ctx); err != nil {
			return &SourceError{Err: err}
		}
	}
	if f.source.Error() != nil {
		return &SourceError{Err: f.source.Error()}
	}
	return nil
}

// Next advances past the currently-resolved user key and resolves the next
// visible one.
func (f *Forward) Next(ctx context.Context) error {
	return f.next(ctx)
}

// IsValid reports whether the iterator is positioned at a live, in-range
// user key.
func (f *Forward) IsValid() bool {
	return f.valid && !f.outOfRange
}

// Key returns the resolved user key.
func (f *Forward) Key() []byte {
	return f.lastKey
}

// Value returns the resolved live Put payload.
func (f *Forward) Value() []byte {
	return f.lastVal
}

// Close closes the underlying source.
func (f *Forward) Close() error {
	return f.source.Close()
}
