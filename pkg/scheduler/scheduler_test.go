package scheduler

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

// TestScheduler_WakesDownstreamOnProgress verifies that a stage that
// processes at least one item fires its downstream neighbor
// immediately rather than waiting for that neighbor's own poll interval.
func TestScheduler_WakesDownstreamOnProgress(t *testing.T) {
	var upstreamRuns, downstreamRuns int32
	downstreamWoken := make(chan struct{}, 1)

	upstream := &Stage{
		Name:         "upstream",
		PollInterval: time.Hour,
		Work: func(ctx context.Context) (int, error) {
			if atomic.AddInt32(&upstreamRuns, 1) == 1 {
				return 1, nil
			}
			return 0, nil
		},
	}
	downstream := &Stage{
		Name:         "downstream",
		PollInterval: time.Hour,
		Work: func(ctx context.Context) (int, error) {
			if atomic.AddInt32(&downstreamRuns, 1) == 1 {
				select {
				case downstreamWoken <- struct{}{}:
				default:
				}
			}
			return 0, nil
		},
	}

	s := New(nil, upstream, downstream)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	s.Start(ctx)
	defer s.Stop()

	select {
	case <-downstreamWoken:
	case <-time.After(2 * time.Second):
		t.Fatal("downstream never ran — upstream progress did not fire its wake signal")
	}
}

// TestScheduler_ErrorDoesNotKillLoop exercises the loop's outer failure
// guard: a failing work function must not stop subsequent cycles.
func TestScheduler_ErrorDoesNotKillLoop(t *testing.T) {
	var runs int32
	ran := make(chan struct{}, 4)

	stage := &Stage{
		Name:         "flaky",
		PollInterval: 20 * time.Millisecond,
		Work: func(ctx context.Context) (int, error) {
			atomic.AddInt32(&runs, 1)
			select {
			case ran <- struct{}{}:
			default:
			}
			return 0, errors.New("boom")
		},
	}

	s := New(nil, stage)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	s.Start(ctx)
	defer s.Stop()

	for i := 0; i < 3; i++ {
		select {
		case <-ran:
		case <-time.After(2 * time.Second):
			t.Fatalf("stage stopped cycling after %d runs despite returning an error", atomic.LoadInt32(&runs))
		}
	}
}

// TestScheduler_PanicDoesNotKillLoop exercises the panic-recovery guard in
// runCycle.
func TestScheduler_PanicDoesNotKillLoop(t *testing.T) {
	var runs int32
	ran := make(chan struct{}, 4)

	stage := &Stage{
		Name:         "panicky",
		PollInterval: 20 * time.Millisecond,
		Work: func(ctx context.Context) (int, error) {
			n := atomic.AddInt32(&runs, 1)
			select {
			case ran <- struct{}{}:
			default:
			}
			if n == 1 {
				panic("kaboom")
			}
			return 0, nil
		},
	}

	s := New(nil, stage)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	s.Start(ctx)
	defer s.Stop()

	for i := 0; i < 2; i++ {
		select {
		case <-ran:
		case <-time.After(2 * time.Second):
			t.Fatal("loop did not survive a panicking work function")
		}
	}
}

// TestScheduler_Stop_AwaitsStageExit checks Stop cancels every stage and
// blocks until they have all returned.
func TestScheduler_Stop_AwaitsStageExit(t *testing.T) {
	started := make(chan struct{})
	exited := make(chan struct{})

	stage := &Stage{
		Name:         "blocking",
		PollInterval: time.Hour,
		Work: func(ctx context.Context) (int, error) {
			return 0, nil
		},
	}

	s := New(nil, stage)
	ctx := context.Background()
	s.Start(ctx)
	close(started)

	go func() {
		s.Stop()
		close(exited)
	}()

	<-started
	require.Eventually(t, func() bool {
		select {
		case <-exited:
			return true
		default:
			return false
		}
	}, 2*time.Second, 10*time.Millisecond)
}
