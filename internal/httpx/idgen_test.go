package httpx

import (
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultIDGeneratorShape(t *testing.T) {
	id := DefaultIDGenerator()
	require.True(t, strings.HasPrefix(id, "ORD-"))
	assert.Equal(t, 3, strings.Count(id, "-"), "ORD-<micros>-<seq>-<suffix>: %s", id)
}

func TestDefaultIDGeneratorUniqueUnderConcurrency(t *testing.T) {
	const goroutines = 16
	const perGoroutine = 500

	var mu sync.Mutex
	seen := make(map[string]struct{}, goroutines*perGoroutine)

	var wg sync.WaitGroup
	for i := 0; i < goroutines; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			ids := make([]string, 0, perGoroutine)
			for j := 0; j < perGoroutine; j++ {
				ids = append(ids, DefaultIDGenerator())
			}
			mu.Lock()
			for _, id := range ids {
				seen[id] = struct{}{}
			}
			mu.Unlock()
		}()
	}
	wg.Wait()

	assert.Len(t, seen, goroutines*perGoroutine)
}
