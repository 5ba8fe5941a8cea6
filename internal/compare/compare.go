// Package compare holds the comparator types shared by the skiplist and the
// iteration layers built on top of it.
package compare

import "bytes"

// Compare orders two byte strings the same way bytes.Compare does: negative
// if a < b, zero if equal, positive if a > b.
type Compare func(a, b []byte) int

// DefaultCompare is the lexicographic byte-string comparator used for user
// keys, and, because internal keys are constructed so that byte order
// already encodes (user key asc, epoch desc), for internal keys as well.
func DefaultCompare(a, b []byte) int {
	return bytes.Compare(a, b)
}

// Direction selects ascending or descending traversal order for the merged
// and user-key iterators. A single comparator plus a direction flag keeps
// the forward and reverse code paths symmetric instead of requiring
// separate comparator variants.
type Direction int

const (
	Forward Direction = iota
	Backward
)

// Ordered compares a and b in the given direction: Forward behaves like cmp,
// Backward returns the negated result.
func Ordered(cmp Compare, dir Direction, a, b []byte) int {
	c := cmp(a, b)
	if dir == Backward {
		return -c
	}
	return c
}
