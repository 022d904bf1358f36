package testutil

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSequenceIDs_Sequence(t *testing.T) {
	g := NewSequenceIDs("act")

	assert.Equal(t, "act-1", g.Generate())
	assert.Equal(t, "act-2", g.Generate())
	assert.Equal(t, "act-3", g.Generate())
	assert.Equal(t, 3, g.Issued())
}

func TestSequenceIDs_DefaultPrefix(t *testing.T) {
	assert.Equal(t, "act-1", NewSequenceIDs("").Generate())
}

func TestSequenceIDs_SameSequenceAcrossInstances(t *testing.T) {
	a, b := NewSequenceIDs("x"), NewSequenceIDs("x")
	for i := 0; i < 5; i++ {
		require.Equal(t, a.Generate(), b.Generate())
	}
}

func TestSequenceIDs_ConcurrentUnique(t *testing.T) {
	g := NewSequenceIDs("c")

	var (
		wg   sync.WaitGroup
		mu   sync.Mutex
		seen = make(map[string]bool)
	)
	for i := 0; i < 100; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			id := g.Generate()
			mu.Lock()
			seen[id] = true
			mu.Unlock()
		}()
	}
	wg.Wait()

	assert.Len(t, seen, 100)
}
