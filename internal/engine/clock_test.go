package engine

import (
	"context"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestClock_StartsAt(t *testing.T) {
	assert.Equal(t, int64(0), NewClock().Current())
	assert.Equal(t, int64(100), NewClockAt(100).Current())
}

func TestClock_NextThenCurrent(t *testing.T) {
	c := NewClockAt(7)

	assert.Equal(t, int64(8), c.Next())
	assert.Equal(t, int64(9), c.Next())
	assert.Equal(t, int64(9), c.Current())
	assert.Equal(t, int64(9), c.Current(), "Current must not advance the clock")
}

func TestClock_ConcurrentNextIsUnique(t *testing.T) {
	c := NewClock()
	const workers, perWorker = 50, 200

	var wg sync.WaitGroup
	seqs := make(chan int64, workers*perWorker)
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < perWorker; j++ {
				seqs <- c.Next()
			}
		}()
	}
	wg.Wait()
	close(seqs)

	seen := make(map[int64]bool, workers*perWorker)
	for seq := range seqs {
		require.False(t, seen[seq], "seq %d handed out twice", seq)
		seen[seq] = true
	}
	assert.Len(t, seen, workers*perWorker)
	assert.Equal(t, int64(workers*perWorker), c.Current())
}

// One clock tick per observed dispatch, in dispatch order.
func TestClock_StampsDispatches(t *testing.T) {
	var seqs []int64
	c := newTestContainer(t,
		WithClock(NewClockAt(41)),
		WithObserver(ObserverFunc(func(d Dispatch) { seqs = append(seqs, d.Seq) })),
	)

	ctx := context.Background()
	for _, name := range []string{"a", "b", "a"} {
		_, err := c.Slot(name).Invoke(ctx, Args{})
		require.NoError(t, err)
	}
	assert.Equal(t, []int64{42, 43, 44}, seqs)
}
