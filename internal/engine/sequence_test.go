package engine

import (
	"context"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSequence_StartsAtOne(t *testing.T) {
	var s Sequence
	assert.Equal(t, int64(0), s.Handled())
	assert.Equal(t, int64(1), s.Next())
	assert.Equal(t, int64(2), s.Next())
	assert.Equal(t, int64(2), s.Handled())
}

func TestSequence_ConcurrentRequestsGetDistinctNumbers(t *testing.T) {
	var s Sequence
	const workers = 50
	const perWorker = 200

	var wg sync.WaitGroup
	got := make(chan int64, workers*perWorker)
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < perWorker; j++ {
				got <- s.Next()
			}
		}()
	}
	wg.Wait()
	close(got)

	seen := make(map[int64]bool, workers*perWorker)
	for n := range got {
		assert.False(t, seen[n], "seq %d handed out twice", n)
		seen[n] = true
	}
	assert.Len(t, seen, workers*perWorker)
	assert.Equal(t, int64(workers*perWorker), s.Handled())
}

func TestEngine_HandledCountsFailedRequests(t *testing.T) {
	e := New()
	ctx := context.Background()

	_, err := e.Compile(ctx, Request{Query: "FROM(users) FETCH(name)"})
	require.NoError(t, err)
	_, err = e.Compile(ctx, Request{Query: "FROM(users FETCH(name)"})
	require.Error(t, err)

	assert.Equal(t, int64(2), e.Handled())
}
