package testutil

import (
	"fmt"
	"sync"
)

// FixedIDGenerator generates the same statement id every time.
//
// This enables deterministic test execution and golden snapshot comparison.
// Thread-safety: FixedIDGenerator is stateless and safe for concurrent use.
type FixedIDGenerator struct {
	id string
}

// NewFixedIDGenerator creates a fixed id generator. If id is empty,
// Generate returns "test-statement".
func NewFixedIDGenerator(id string) *FixedIDGenerator {
	if id == "" {
		id = "test-statement"
	}
	return &FixedIDGenerator{id: id}
}

// Generate returns the fixed id.
func (g *FixedIDGenerator) Generate() string {
	return g.id
}

// SequentialIDGenerator generates "stmt-1", "stmt-2", ... and can be reset
// so the same scenario produces identical ids on every run.
//
// Thread-safety: All methods are safe for concurrent use via internal mutex.
type SequentialIDGenerator struct {
	mu  sync.Mutex
	seq int64
}

// NewSequentialIDGenerator creates a generator whose first id is "stmt-1".
func NewSequentialIDGenerator() *SequentialIDGenerator {
	return &SequentialIDGenerator{}
}

// Generate increments the sequence and returns its id.
func (g *SequentialIDGenerator) Generate() string {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.seq++
	return fmt.Sprintf("stmt-%d", g.seq)
}

// Reset restarts the sequence; the next id is "stmt-1".
func (g *SequentialIDGenerator) Reset() {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.seq = 0
}
