package engine

import "sync/atomic"

// Sequence numbers the requests one Engine handles, starting at 1. Log
// records carry it next to the request ID so a run of compiles can be read
// back in arrival order.
type Sequence struct {
	n atomic.Int64
}

// Next stamps a new request.
func (s *Sequence) Next() int64 {
	return s.n.Add(1)
}

// Handled is the number of requests stamped so far.
func (s *Sequence) Handled() int64 {
	return s.n.Load()
}
