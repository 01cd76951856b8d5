package worker

import (
	"context"
	"io"
	"log/slog"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/jgivc/mediafetch/internal/common"
	"github.com/stretchr/testify/require"
)

func discardLog() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestPoolRunsTasks(t *testing.T) {
	p := NewPool(3, 10, discardLog())
	p.Start()
	defer p.Stop()

	var (
		wg    sync.WaitGroup
		count atomic.Int32
	)

	for i := 0; i < 10; i++ {
		wg.Add(1)
		require.NoError(t, p.Submit(func(ctx context.Context) {
			defer wg.Done()
			count.Add(1)
		}))
	}

	wg.Wait()
	require.Equal(t, int32(10), count.Load())
}

func TestPoolQueueFull(t *testing.T) {
	p := NewPool(1, 1, discardLog())
	p.Start()

	release := make(chan struct{})
	started := make(chan struct{})

	require.NoError(t, p.Submit(func(ctx context.Context) {
		close(started)
		<-release
	}))
	<-started

	require.NoError(t, p.Submit(func(ctx context.Context) {}))
	require.ErrorIs(t, p.Submit(func(ctx context.Context) {}), common.ErrQueueFull)

	close(release)
	p.Stop()

	require.ErrorIs(t, p.Submit(func(ctx context.Context) {}), common.ErrQueueFull)
}

func TestPoolStopCancelsContext(t *testing.T) {
	p := NewPool(1, 0, discardLog())
	p.Start()

	cancelled := make(chan struct{})
	started := make(chan struct{})

	require.Eventually(t, func() bool {
		return p.Submit(func(ctx context.Context) {
			close(started)
			<-ctx.Done()
			close(cancelled)
		}) == nil
	}, time.Second, 10*time.Millisecond)

	<-started
	p.Stop()

	select {
	case <-cancelled:
	case <-time.After(time.Second):
		t.Fatal("task did not observe cancellation")
	}
}

func TestPoolSurvivesPanic(t *testing.T) {
	p := NewPool(1, 2, discardLog())
	p.Start()
	defer p.Stop()

	done := make(chan struct{})
	require.NoError(t, p.Submit(func(ctx context.Context) { panic("boom") }))
	require.NoError(t, p.Submit(func(ctx context.Context) { close(done) }))

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("worker died after panic")
	}
}
