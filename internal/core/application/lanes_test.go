package application

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestLanes(t *testing.T) {
	t.Run("ordered within a lane", func(t *testing.T) {
		lanes := newLaneSet("test", 16)
		defer lanes.close()

		var lock sync.Mutex
		got := make([]int, 0)
		done := make(chan struct{})
		for i := 0; i < 10; i++ {
			i := i
			require.True(t, lanes.dispatch(context.Background(), 1, func() {
				lock.Lock()
				got = append(got, i)
				lock.Unlock()
				if i == 9 {
					close(done)
				}
			}))
		}

		select {
		case <-done:
		case <-time.After(time.Second):
			t.Fatal("timeout")
		}
		require.Equal(t, []int{0, 1, 2, 3, 4, 5, 6, 7, 8, 9}, got)
	})

	t.Run("lanes run concurrently", func(t *testing.T) {
		lanes := newLaneSet("test", 16)
		defer lanes.close()

		blocked := make(chan struct{})
		released := make(chan struct{})
		require.True(t, lanes.dispatch(context.Background(), 1, func() {
			close(blocked)
			<-released
		}))
		<-blocked

		done := make(chan struct{})
		require.True(t, lanes.dispatch(context.Background(), 2, func() { close(done) }))
		select {
		case <-done:
		case <-time.After(time.Second):
			t.Fatal("lane 2 blocked by lane 1")
		}
		close(released)
	})

	t.Run("panics don't stop the lane", func(t *testing.T) {
		lanes := newLaneSet("test", 16)
		defer lanes.close()

		done := make(chan struct{})
		require.True(t, lanes.dispatch(context.Background(), 1, func() { panic("boom") }))
		require.True(t, lanes.dispatch(context.Background(), 1, func() { close(done) }))
		select {
		case <-done:
		case <-time.After(time.Second):
			t.Fatal("timeout")
		}
	})

	t.Run("prune", func(t *testing.T) {
		lanes := newLaneSet("test", 16)
		defer lanes.close()

		for id := uint64(1); id <= 5; id++ {
			require.True(t, lanes.dispatch(context.Background(), id, func() {}))
		}
		require.Equal(t, 5, lanes.count())

		lanes.prune(4)
		require.Equal(t, 2, lanes.count())

		// pruned ids don't get a new lane
		require.False(t, lanes.dispatch(context.Background(), 2, func() {}))
		require.Equal(t, 2, lanes.count())
		lanes.prune(1)
		require.False(t, lanes.dispatch(context.Background(), 3, func() {}))
		require.True(t, lanes.dispatch(context.Background(), 6, func() {}))
		require.Equal(t, 3, lanes.count())
	})

	t.Run("dispatch after close", func(t *testing.T) {
		lanes := newLaneSet("test", 16)
		lanes.close()

		require.False(t, lanes.dispatch(context.Background(), 1, func() {}))
		// closing twice is a no-op
		lanes.close()
	})

	t.Run("dispatch on full lane honors context", func(t *testing.T) {
		lanes := newLaneSet("test", 1)
		defer lanes.close()

		released := make(chan struct{})
		blocked := make(chan struct{})
		require.True(t, lanes.dispatch(context.Background(), 1, func() {
			close(blocked)
			<-released
		}))
		<-blocked
		require.True(t, lanes.dispatch(context.Background(), 1, func() {}))

		ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
		defer cancel()
		require.False(t, lanes.dispatch(ctx, 1, func() {}))
		close(released)
	})
}
