package engine

import "sync/atomic"

// sequence issues strictly increasing identifiers starting at 1. Safe
// under concurrent issuance; values are never reused within a process.
type sequence struct {
	n uint64
}

func (s *sequence) next() uint64 {
	return atomic.AddUint64(&s.n, 1)
}

func (s *sequence) current() uint64 {
	return atomic.LoadUint64(&s.n)
}
