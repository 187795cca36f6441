package testutil

import "fmt"

// SequentialIDGenerator hands out predictable request IDs.
//
// This enables golden comparison of engine output, which otherwise
// carries a fresh UUIDv7 per request.
//
// Thread-safety: not safe for concurrent use; tests drive one engine
// from one goroutine.
type SequentialIDGenerator struct {
	prefix string
	n      int
}

// NewSequentialIDGenerator creates a generator producing prefix-1,
// prefix-2, and so on. If prefix is empty, "req" is used.
func NewSequentialIDGenerator(prefix string) *SequentialIDGenerator {
	if prefix == "" {
		prefix = "req"
	}
	return &SequentialIDGenerator{prefix: prefix}
}

// Generate returns the next request ID.
//
// Implements engine.IDGenerator interface.
func (g *SequentialIDGenerator) Generate() string {
	g.n++
	return fmt.Sprintf("%s-%d", g.prefix, g.n)
}
