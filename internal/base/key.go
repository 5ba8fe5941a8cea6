// Package base defines the internal-key encoding shared by every layer of
// the iteration stack: the merged sorted iterator, the user-key iterators,
// and the in-memory skiplist that backs the memtable.
package base

import "encoding/binary"

// Epoch is a monotonically increasing version tag assigned at write time.
// A larger epoch is a newer version of the same user key.
type Epoch uint64

const (
	// EpochMax denotes "read the newest version" and is used to build search
	// keys that must sort before every real version of a user key.
	EpochMax Epoch = 1<<64 - 1
	// EpochMin is the smallest valid epoch.
	EpochMin Epoch = 0
)

// epochSuffixLen is the width, in bytes, of the encoded epoch suffix
// appended to every user key to form an internal key.
const epochSuffixLen = 8

// EncodeKey appends the inverse-epoch suffix to userKey, producing an
// internal key such that, for equal user keys, larger epochs sort before
// smaller ones under ascending byte comparison. It does this by encoding
// the complement of the epoch: bytes.Compare on two internal keys therefore
// agrees with (userKey asc, epoch desc).
func EncodeKey(userKey []byte, epoch Epoch) []byte {
	ik := make([]byte, len(userKey)+epochSuffixLen)
	n := copy(ik, userKey)
	binary.BigEndian.PutUint64(ik[n:], uint64(EpochMax-epoch))
	return ik
}

// AppendKey is the allocation-avoiding counterpart of EncodeKey: it appends
// the encoded internal key to dst and returns the extended slice.
func AppendKey(dst, userKey []byte, epoch Epoch) []byte {
	dst = append(dst, userKey...)
	var suffix [epochSuffixLen]byte
	binary.BigEndian.PutUint64(suffix[:], uint64(EpochMax-epoch))
	return append(dst, suffix[:]...)
}

// UserKey returns the user-key prefix of an encoded internal key. The
// returned slice aliases ik.
func UserKey(ik []byte) []byte {
	if len(ik) < epochSuffixLen {
		return nil
	}
	return ik[:len(ik)-epochSuffixLen]
}

// DecodeEpoch returns the epoch component of an encoded internal key.
func DecodeEpoch(ik []byte) Epoch {
	if len(ik) < epochSuffixLen {
		return EpochMin
	}
	inv := binary.BigEndian.Uint64(ik[len(ik)-epochSuffixLen:])
	return EpochMax - Epoch(inv)
}

// PrevUserKey returns the lexicographic predecessor of uk: the largest byte
// string that is strictly less than uk and no longer than uk. It can be used
// to construct inclusive lower
// bounds when a source iterator only supports seeking to the first key
// greater than or equal to a target.
//
// There is no predecessor of the empty string; PrevUserKey panics in that
// case, since callers should never need the predecessor of the absolute
// minimum key.
func PrevUserKey(uk []byte) []byte {
	if len(uk) == 0 {
		panic("base: no predecessor of the empty key")
	}
	prev := make([]byte, len(uk))
	copy(prev, uk)
	last := len(prev) - 1
	if prev[last] == 0 {
		// Borrow: 0x00 has no predecessor byte, so the predecessor is the
		// longest possible string strictly less than uk with that final byte
		// dropped and 0xff repeated to stay maximal, which collapses to just
		// dropping the trailing zero byte.
		return prev[:last]
	}
	prev[last]--
	// prev was allocated with cap == len(uk), so this loop appends nothing:
	// the result keeps uk's length, with no 0xff bytes after the
	// decremented one.
	for i := last + 1; i < cap(prev); i++ {
		prev = append(prev, 0xff)
	}
	return prev
}

// InternalKey is a decoded (user key, epoch) pair, used at construction
// sites where an encoded byte string is not yet available or not needed.
type InternalKey struct {
	UserKey []byte
	Epoch   Epoch
}

// Encode returns the encoded byte-string form of k.
func (k InternalKey) Encode() []byte {
	return EncodeKey(k.UserKey, k.Epoch)
}

// MakeSearchKey builds an internal key suitable for a forward SeekGE: its
// encoding sorts before every real version of userKey, so the seek lands on
// the newest (first, in ascending order) version of the group.
func MakeSearchKey(userKey []byte) InternalKey {
	return InternalKey{UserKey: userKey, Epoch: EpochMax}
}

// MakeReverseSentinelKey builds an internal key suitable for a reverse
// SeekLE: its encoding sorts after every real version of userKey, so the
// seek lands on the oldest (smallest-epoch) version of the group, which is
// the first record a descending scan of that group observes.
func MakeReverseSentinelKey(userKey []byte) InternalKey {
	return InternalKey{UserKey: userKey, Epoch: EpochMin}
}
