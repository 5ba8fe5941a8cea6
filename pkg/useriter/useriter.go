// Package useriter implements the user-key iteration layer of the storage
// engine: snapshot-epoch filtering, multi-version collapse, tombstone
// suppression and range-bound enforcement on top of a merged internal-key
// stream. See Forward and Reverse for the two concrete orientations; the
// reverse iterator is the hard case because the merged stream it consumes
// visits each user-key group oldest-to-newest, so visibility can only be
// resolved after the group has been fully observed.
package useriter

import (
	"context"

	"hummock/internal/base"
)

// Iterator is the public surface exposed to scan callers: a deduplicated,
// snapshot-filtered, range-bounded view of user keys, built by layering
// version collapse and tombstone suppression over a merged internal-key
// stream.
//
// The usual lifecycle is Rewind or Seek, then repeated Next calls until
// IsValid returns false.
type Iterator interface {
	// Rewind repositions the iterator at the first (forward) or last
	// (reverse) user key in range.
	Rewind(ctx context.Context) error
	// Seek repositions the iterator so that, after bound clamping, the
	// first user key it reports is the smallest key >= userKey (forward)
	// or the largest key <= userKey (reverse).
	Seek(ctx context.Context, userKey []byte) error
	// Next advances to the next user key in the iterator's direction.
	Next(ctx context.Context) error

	// IsValid reports whether the iterator is positioned at a live,
	// in-range user key.
	IsValid() bool
	// Key returns the current user key (with no epoch suffix). Valid only
	// when IsValid reports true.
	Key() []byte
	// Value returns the payload of the current user key's live Put. Valid
	// only when IsValid reports true.
	Value() []byte

	// Close releases the iterator's underlying sources.
	Close() error
}

// visible reports whether a record's epoch is visible under readEpoch:
// records with an epoch greater than readEpoch must be skipped.
func visible(epoch, readEpoch base.Epoch) bool {
	return epoch <= readEpoch
}
