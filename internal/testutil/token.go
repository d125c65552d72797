// Package testutil provides deterministic stand-ins for the engine's
// randomized pieces.
package testutil

import (
	"fmt"
	"sync"
)

// SequentialTokenGenerator returns "token-1", "token-2", ... in order.
//
// Substituting it for the UUID generator makes correlation tokens stable
// across runs, so log assertions and golden snapshots stay byte-identical.
//
// Thread-safe via internal mutex.
type SequentialTokenGenerator struct {
	mu sync.Mutex
	n  int
}

// Generate returns the next token in the sequence.
func (g *SequentialTokenGenerator) Generate() string {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.n++
	return fmt.Sprintf("token-%d", g.n)
}

// Reset restarts the sequence. The next Generate returns "token-1".
func (g *SequentialTokenGenerator) Reset() {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.n = 0
}

// FixedTokenGenerator always returns the same token.
//
// Stateless and safe for concurrent use.
type FixedTokenGenerator struct {
	Token string
}

// Generate returns the fixed token, or "test-token" when unset.
func (g FixedTokenGenerator) Generate() string {
	if g.Token == "" {
		return "test-token"
	}
	return g.Token
}
