package batch

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDriver_SequentialInOrder(t *testing.T) {
	var mu sync.Mutex
	var seen []string

	sum, err := NewDriver(0, 1).Run(context.Background(), []string{"a", "b", "c"}, func(_ context.Context, id string) error {
		mu.Lock()
		defer mu.Unlock()
		seen = append(seen, id)
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, []string{"a", "b", "c"}, seen)
	assert.Equal(t, Summary{Total: 3, Succeeded: 3}, sum)
}

func TestDriver_FailuresDoNotAbort(t *testing.T) {
	sum, err := NewDriver(0, 2).Run(context.Background(), []string{"ok1", "bad", "ok2", "bad2"}, func(_ context.Context, id string) error {
		if id == "bad" || id == "bad2" {
			return errors.New("provider down")
		}
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, Summary{Total: 4, Succeeded: 2, Failed: 2}, sum)
}

func TestDriver_Pacing(t *testing.T) {
	start := time.Now()
	_, err := NewDriver(20*time.Millisecond, 1).Run(context.Background(), []string{"a", "b", "c"}, func(context.Context, string) error {
		return nil
	})
	require.NoError(t, err)
	assert.GreaterOrEqual(t, time.Since(start), 40*time.Millisecond)
}

func TestDriver_SequentialDelayFollowsCompletion(t *testing.T) {
	const delay = 30 * time.Millisecond
	var mu sync.Mutex
	starts := map[string]time.Time{}
	ends := map[string]time.Time{}

	_, err := NewDriver(delay, 1).Run(context.Background(), []string{"slow", "next"}, func(_ context.Context, id string) error {
		mu.Lock()
		starts[id] = time.Now()
		mu.Unlock()
		if id == "slow" {
			time.Sleep(2 * delay)
		}
		mu.Lock()
		ends[id] = time.Now()
		mu.Unlock()
		return nil
	})
	require.NoError(t, err)
	assert.GreaterOrEqual(t, starts["next"].Sub(ends["slow"]), delay)
}

func TestDriver_ConcurrentCancelSkipsRemaining(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sum, err := NewDriver(10*time.Millisecond, 2).Run(ctx, []string{"a", "b", "c", "d"}, func(_ context.Context, id string) error {
		if id == "a" {
			cancel()
		}
		return nil
	})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "context canceled")
	assert.Equal(t, 4, sum.Succeeded+sum.Failed+sum.Skipped)
	assert.Positive(t, sum.Skipped)
}

func TestDriver_ConcurrencyBound(t *testing.T) {
	var active, peak atomic.Int64
	ids := []string{"a", "b", "c", "d", "e", "f"}

	sum, err := NewDriver(0, 2).Run(context.Background(), ids, func(context.Context, string) error {
		n := active.Add(1)
		for {
			p := peak.Load()
			if n <= p || peak.CompareAndSwap(p, n) {
				break
			}
		}
		time.Sleep(5 * time.Millisecond)
		active.Add(-1)
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, 6, sum.Succeeded)
	assert.LessOrEqual(t, peak.Load(), int64(2))
}

func TestDriver_CancelSkipsRemaining(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sum, err := NewDriver(10*time.Millisecond, 1).Run(ctx, []string{"a", "b", "c", "d"}, func(_ context.Context, id string) error {
		if id == "b" {
			cancel()
		}
		return nil
	})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "context canceled")
	assert.Equal(t, 2, sum.Succeeded)
	assert.Equal(t, 2, sum.Skipped)
}

func TestDriver_Empty(t *testing.T) {
	sum, err := NewDriver(time.Second, 1).Run(context.Background(), nil, func(context.Context, string) error {
		t.Fatal("not called")
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, Summary{}, sum)
}
