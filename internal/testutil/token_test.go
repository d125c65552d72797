package testutil

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestSequentialTokenGenerator(t *testing.T) {
	g := &SequentialTokenGenerator{}

	assert.Equal(t, "token-1", g.Generate())
	assert.Equal(t, "token-2", g.Generate())
	assert.Equal(t, "token-3", g.Generate())

	g.Reset()
	assert.Equal(t, "token-1", g.Generate())
}

func TestSequentialTokenGeneratorConcurrent(t *testing.T) {
	g := &SequentialTokenGenerator{}

	var mu sync.Mutex
	seen := make(map[string]bool)

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 100; j++ {
				tok := g.Generate()
				mu.Lock()
				assert.False(t, seen[tok], "duplicate token %s", tok)
				seen[tok] = true
				mu.Unlock()
			}
		}()
	}
	wg.Wait()

	assert.Len(t, seen, 800)
}

func TestFixedTokenGenerator(t *testing.T) {
	assert.Equal(t, "test-token", FixedTokenGenerator{}.Generate())
	assert.Equal(t, "abc", FixedTokenGenerator{Token: "abc"}.Generate())
}
