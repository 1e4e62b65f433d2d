package testutil

import (
	"fmt"
	"sync"
)

// SequentialTokens generates numbered session tokens: prefix-1, prefix-2, ...
//
// Unlike engine.FixedGenerator it never runs out, so a scenario may open any
// number of sessions and still produce identical request ids on every run.
//
// Thread-safety: All methods are safe for concurrent use via internal mutex.
type SequentialTokens struct {
	mu     sync.Mutex
	prefix string
	n      int
}

// NewSequentialTokens creates a generator for prefix.
// If prefix is empty, tokens are "session-1", "session-2", ...
func NewSequentialTokens(prefix string) *SequentialTokens {
	if prefix == "" {
		prefix = "session"
	}
	return &SequentialTokens{prefix: prefix}
}

// Generate returns the next token.
//
// Implements engine.SessionTokenGenerator.
func (g *SequentialTokens) Generate() string {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.n++
	return fmt.Sprintf("%s-%d", g.prefix, g.n)
}

// Issued returns how many tokens have been generated.
func (g *SequentialTokens) Issued() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.n
}

// Reset restarts numbering at 1.
func (g *SequentialTokens) Reset() {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.n = 0
}
