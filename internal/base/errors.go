package base

import "errors"

// ErrArenaFull is returned by arena-backed allocators (and, transitively,
// the skiplist) when an insertion would exceed the arena's backing buffer.
var ErrArenaFull = errors.New("base: arena is full")

// ErrRecordExists is returned when an insert targets an internal key
// (user key, epoch) that is already present in the destination.
var ErrRecordExists = errors.New("base: record already exists")
