package idgen

import (
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSnowflake_UniqueAndIncreasing(t *testing.T) {
	s, err := New(3)
	require.NoError(t, err)

	var mu sync.Mutex
	seen := make(map[int64]bool)
	var wg sync.WaitGroup
	for g := 0; g < 8; g++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			prev := int64(0)
			for i := 0; i < 1000; i++ {
				id := s.Generate()
				assert.Greater(t, id, prev)
				prev = id
				mu.Lock()
				seen[id] = true
				mu.Unlock()
			}
		}()
	}
	wg.Wait()
	assert.Len(t, seen, 8000)
}

func TestNew_InvalidWorker(t *testing.T) {
	_, err := New(-1)
	assert.Error(t, err)
	_, err = New(1024)
	assert.Error(t, err)
}

func TestGenerators(t *testing.T) {
	no := GenerateTransactionNo()
	assert.True(t, strings.HasPrefix(no, "WTX"))
	assert.Len(t, no, 3+14+8)

	assert.NotEqual(t, GenerateMessageKey("invoice"), GenerateMessageKey("invoice"))
	assert.True(t, strings.HasPrefix(GenerateMessageKey("avoir"), "avoir-"))
}
