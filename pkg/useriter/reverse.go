package useriter

import (
	"context"

	"hummock/internal/base"
	"hummock/internal/compare"
	"hummock/pkg/iterator"
)

// Reverse is the descending user-key iterator: the hard case. The merged
// stream it consumes visits internal keys in descending order, which means
// each user-key group is visited oldest-version-first. Visibility of a
// group can only be decided once the group is left — by hitting a strictly
// smaller user key, or by the source running out — because the newest
// visible version is whichever one was seen last.
//
// justMetNewKey marks that the source is positioned at the first record of
// a user-key group whose predecessor (in scan order, the next *larger* user
// key) has already been fully resolved and published to the caller, and
// that first record has not yet been folded into lastDelete/lastVal. This
// is what lets Next return control between "finished a group" and
// "consumed the first record of the next group": an equivalent design is a
// one-record lookahead buffer.
type Reverse struct {
	source    iterator.SourceIterator
	cmp       compare.Compare
	readEpoch base.Epoch
	keyRange  KeyRange

	lastKey       []byte
	lastVal       []byte
	lastDelete    bool
	justMetNewKey bool
	outOfRange    bool
}

var _ Iterator = (*Reverse)(nil)

// NewReverse constructs a reverse user-key iterator over source, which must
// produce internal keys in descending order. The iterator is not
// positioned until Rewind or Seek is called.
func NewReverse(source iterator.SourceIterator, keyRange KeyRange, readEpoch base.Epoch) *Reverse {
	return &Reverse{
		source:    source,
		cmp:       compare.DefaultCompare,
		readEpoch: readEpoch,
		keyRange:  keyRange,
	}
}

func (r *Reverse) reset() {
	r.lastKey = r.lastKey[:0]
	r.justMetNewKey = false
	r.lastDelete = true
	r.outOfRange = false
}

// Rewind positions the source at the upper bound — the oldest version of
// the upper-bound key for an Included bound, which is the first record a
// descending scan of that key's group visits, or the very last key if
// unbounded — then primes the state machine with one call to next.
func (r *Reverse) Rewind(ctx context.Context) error {
	switch r.keyRange.Upper.Kind {
	case Included:
		ik := base.MakeReverseSentinelKey(r.keyRange.Upper.Key).Encode()
		if err := r.source.Seek(ctx, ik); err != nil {
			return &SourceError{Err: err}
		}
	case Excluded:
		return ErrUnsupportedBound
	default:
		if err := r.source.Rewind(ctx); err != nil {
			return &SourceError{Err: err}
		}
	}
	r.reset()
	return r.next(ctx)
}

// Seek clamps userKey to the upper bound, positions the source at the
// oldest version of the clamped key (or the largest internal key below it),
// and primes the state machine.
func (r *Reverse) Seek(ctx context.Context, userKey []byte) error {
	if r.keyRange.Upper.Kind == Excluded {
		return ErrUnsupportedBound
	}
	uk := userKey
	if r.keyRange.Upper.Kind == Included && r.cmp(uk, r.keyRange.Upper.Key) > 0 {
		uk = r.keyRange.Upper.Key
	}
	ik := base.MakeReverseSentinelKey(uk).Encode()
	if err := r.source.Seek(ctx, ik); err != nil {
		return &SourceError{Err: err}
	}
	r.reset()
	return r.next(ctx)
}

// Next runs the state machine described on the Reverse type until it either
// publishes a resolved group (S2: a live Put, with the source already
// parked on the next group's first, not-yet-applied record) or exhausts
// the source (S3: lastDelete reflects the last group's final verdict).
func (r *Reverse) Next(ctx context.Context) error {
	return r.next(ctx)
}

func (r *Reverse) next(ctx context.Context) error {
	if !r.source.IsValid() {
		if r.source.Error() != nil {
			return &SourceError{Err: r.source.Error()}
		}
		// Abuse lastDelete to mean "no more data": S3.
		r.lastDelete = true
		return nil
	}

	for r.source.IsValid() {
		ik := r.source.Key()
		epoch := base.DecodeEpoch(ik)
		uk := base.UserKey(ik)

		if !visible(epoch, r.readEpoch) {
			if err := r.advance(ctx); err != nil {
				return err
			}
			continue
		}

		switch {
		case r.justMetNewKey:
			r.lastKey = append(r.lastKey[:0], uk...)
			r.justMetNewKey = false
			if r.keyRange.belowLower(r.cmp, r.lastKey) {
				r.outOfRange = true
				return nil
			}
			r.applyCurrent()

		case r.cmp(r.lastKey, uk) != 0:
			// The source crossed into a smaller user-key group. Decide the
			// fate of the group we were aggregating.
			if !r.lastDelete {
				// That group resolved to a live Put: publish it. The
				// source is left parked on the first (not yet applied)
				// record of the new, smaller group.
				r.justMetNewKey = true
				return nil
			}
			// That group had no live version: discard it and start
			// aggregating the new one.
			r.lastKey = append(r.lastKey[:0], uk...)
			if r.keyRange.belowLower(r.cmp, r.lastKey) {
				r.outOfRange = true
				return nil
			}
			r.applyCurrent()

		default:
			// Same group, a newer version than what we've seen so far
			// (descending order visits oldest-to-newest within a group).
			// A newer Delete masks an older Put and vice versa.
			r.applyCurrent()
		}

		if err := r.advance(ctx); err != nil {
			return err
		}
	}

	if r.source.Error() != nil {
		return &SourceError{Err: r.source.Error()}
	}
	// Source exhausted while aggregating the last group: whatever
	// lastDelete/lastVal hold now is the final verdict for that group.
	return nil
}

// applyCurrent folds the value at the source's current position into the
// in-progress group.
func (r *Reverse) applyCurrent() {
	val := r.source.Value()
	if val.IsDelete() {
		r.lastDelete = true
		return
	}
	r.lastVal = append(r.lastVal[:0], val.Payload...)
	r.lastDelete = false
}

func (r *Reverse) advance(ctx context.Context) error {
	if err := r.source.Next(ctx); err != nil {
		return &SourceError{Err: err}
	}
	return nil
}

// IsValid reports whether the iterator is positioned at a live, in-range
// user key. The disjunction with !lastDelete is what preserves validity for
// one emission after the source runs out: the final group, closed by EOF
// rather than by meeting a smaller key, is still published.
func (r *Reverse) IsValid() bool {
	return (r.source.IsValid() || !r.lastDelete) && !r.outOfRange
}

// Key returns the resolved user key.
func (r *Reverse) Key() []byte {
	return r.lastKey
}

// Value returns the resolved live Put payload.
func (r *Reverse) Value() []byte {
	return r.lastVal
}

// Close closes the underlying source.
func (r *Reverse) Close() error {
	return r.source.Close()
}
