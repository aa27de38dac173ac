package scheduler

import (
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestSchedulerRunsPeriodically(t *testing.T) {
	s := New("periodic")
	var count atomic.Int64

	require.NoError(t, s.Start(5*time.Millisecond, func() { count.Add(1) }))
	require.True(t, s.IsRunning())

	require.Eventually(t, func() bool { return count.Load() >= 3 }, time.Second, time.Millisecond)
	s.Stop()
	require.False(t, s.IsRunning())

	// nothing runs after Stop returned
	after := count.Load()
	time.Sleep(20 * time.Millisecond)
	require.Equal(t, after, count.Load())
	require.Equal(t, uint64(after), s.Runs())
}

func TestSchedulerStartTwice(t *testing.T) {
	s := New("twice")
	defer s.Stop()

	require.NoError(t, s.Start(time.Hour, func() {}))
	err := s.Start(time.Hour, func() {})
	require.True(t, errors.Is(err, ErrAlreadyRunning))
}

func TestSchedulerStopIdempotent(t *testing.T) {
	s := New("idle")
	s.Stop()

	require.NoError(t, s.Start(time.Millisecond, func() {}))
	s.Stop()
	s.Stop()

	// can be restarted after a stop
	require.NoError(t, s.Start(time.Millisecond, func() {}))
	s.Stop()
}

func TestSchedulerTriggerNow(t *testing.T) {
	s := New("trigger")
	ran := make(chan struct{}, 1)

	require.NoError(t, s.Start(time.Hour, func() {
		select {
		case ran <- struct{}{}:
		default:
		}
	}))
	defer s.Stop()

	s.TriggerNow()
	select {
	case <-ran:
	case <-time.After(time.Second):
		t.Fatal("TriggerNow did not cause a run")
	}
}

func TestSchedulerStopWaitsForAction(t *testing.T) {
	s := New("slow")
	started := make(chan struct{}, 1)
	var finished atomic.Bool

	require.NoError(t, s.Start(time.Millisecond, func() {
		select {
		case started <- struct{}{}:
		default:
		}
		time.Sleep(30 * time.Millisecond)
		finished.Store(true)
	}))

	<-started
	s.Stop()
	require.True(t, finished.Load())
}

func TestSchedulerRecoversPanic(t *testing.T) {
	s := New("panicky")
	var count atomic.Int64

	require.NoError(t, s.Start(time.Millisecond, func() {
		if count.Add(1) == 1 {
			panic("boom")
		}
	}))
	require.Eventually(t, func() bool { return count.Load() >= 3 }, time.Second, time.Millisecond)
	s.Stop()
}

func TestSchedulerRejectsBadInterval(t *testing.T) {
	s := New("bad")
	require.Error(t, s.Start(0, func() {}))
	require.False(t, s.IsRunning())
}
