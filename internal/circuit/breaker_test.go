package circuit

import (
	"context"
	"errors"
	"testing"
	"time"

	rfileerrors "github.com/objstore/rfile/pkg/errors"
	"github.com/stretchr/testify/require"
)

func TestState_String(t *testing.T) {
	cases := map[State]string{
		StateClosed:   "CLOSED",
		StateOpen:     "OPEN",
		StateHalfOpen: "HALF_OPEN",
		State(99):     "UNKNOWN",
	}
	for state, want := range cases {
		require.Equal(t, want, state.String())
	}
}

func TestNewCircuitBreaker_Defaults(t *testing.T) {
	cb := NewCircuitBreaker("upstream", Config{})

	require.Equal(t, uint32(1), cb.config.MaxRequests)
	require.Equal(t, 60*time.Second, cb.config.Interval)
	require.Equal(t, 60*time.Second, cb.config.Timeout)
	require.NotNil(t, cb.config.ReadyToTrip)
	require.NotNil(t, cb.config.IsSuccessful)
	require.Equal(t, StateClosed, cb.GetState())
}

func TestDefaultReadyToTrip_TripsAtThreeConsecutiveFailures(t *testing.T) {
	require.False(t, defaultReadyToTrip(Counts{ConsecutiveFailures: 2}))
	require.True(t, defaultReadyToTrip(Counts{ConsecutiveFailures: 3}))
	require.True(t, defaultReadyToTrip(Counts{ConsecutiveFailures: 10}))
}

func TestDefaultIsSuccessful(t *testing.T) {
	require.True(t, defaultIsSuccessful(nil))
	require.False(t, defaultIsSuccessful(errors.New("exhausted")))
}

func TestExecuteWithContext_OpensAfterConsecutiveFailures(t *testing.T) {
	cb := NewCircuitBreaker("upstream", Config{
		Interval: time.Minute,
		Timeout:  time.Minute,
	})

	fail := func(ctx context.Context) error { return errors.New("giving up after 5 tries") }

	for i := 0; i < 3; i++ {
		err := cb.ExecuteWithContext(context.Background(), fail)
		require.Error(t, err)
	}
	require.Equal(t, StateOpen, cb.GetState())

	calls := 0
	err := cb.ExecuteWithContext(context.Background(), func(ctx context.Context) error {
		calls++
		return nil
	})
	require.Error(t, err)
	require.Equal(t, 0, calls, "an open breaker must not invoke fn at all")

	var rfErr *rfileerrors.RemoteFileError
	require.ErrorAs(t, err, &rfErr)
	require.Equal(t, rfileerrors.ErrCodeCircuitOpen, rfErr.Code)
}

func TestExecuteWithContext_RecordsSuccessAndResetsConsecutiveFailures(t *testing.T) {
	cb := NewCircuitBreaker("upstream", Config{})

	err := cb.ExecuteWithContext(context.Background(), func(ctx context.Context) error {
		return errors.New("exhausted")
	})
	require.Error(t, err)
	require.Equal(t, uint32(1), cb.GetCounts().ConsecutiveFailures)

	err = cb.ExecuteWithContext(context.Background(), func(ctx context.Context) error { return nil })
	require.NoError(t, err)

	counts := cb.GetCounts()
	require.Equal(t, uint32(0), counts.ConsecutiveFailures)
	require.Equal(t, uint32(1), counts.ConsecutiveSuccesses)
}

func TestExecuteWithContext_HalfOpenRecoversOnSuccess(t *testing.T) {
	cb := NewCircuitBreaker("upstream", Config{
		Timeout:  10 * time.Millisecond,
		Interval: time.Minute,
	})

	for i := 0; i < 3; i++ {
		_ = cb.ExecuteWithContext(context.Background(), func(ctx context.Context) error {
			return errors.New("exhausted")
		})
	}
	require.Equal(t, StateOpen, cb.GetState())

	time.Sleep(15 * time.Millisecond)
	require.Equal(t, StateHalfOpen, cb.GetState())

	err := cb.ExecuteWithContext(context.Background(), func(ctx context.Context) error { return nil })
	require.NoError(t, err)
	require.Equal(t, StateClosed, cb.GetState())
}

func TestExecuteWithContext_HalfOpenReopensOnFailure(t *testing.T) {
	cb := NewCircuitBreaker("upstream", Config{
		Timeout:  10 * time.Millisecond,
		Interval: time.Minute,
	})

	for i := 0; i < 3; i++ {
		_ = cb.ExecuteWithContext(context.Background(), func(ctx context.Context) error {
			return errors.New("exhausted")
		})
	}
	time.Sleep(15 * time.Millisecond)
	require.Equal(t, StateHalfOpen, cb.GetState())

	err := cb.ExecuteWithContext(context.Background(), func(ctx context.Context) error {
		return errors.New("still down")
	})
	require.Error(t, err)
	require.Equal(t, StateOpen, cb.GetState())
}

func TestExecuteWithContext_HalfOpenRejectsBeyondMaxRequests(t *testing.T) {
	cb := NewCircuitBreaker("upstream", Config{
		MaxRequests: 1,
		Timeout:     10 * time.Millisecond,
		Interval:    time.Minute,
	})

	for i := 0; i < 3; i++ {
		_ = cb.ExecuteWithContext(context.Background(), func(ctx context.Context) error {
			return errors.New("exhausted")
		})
	}
	time.Sleep(15 * time.Millisecond)

	started := make(chan struct{})
	blocked := make(chan struct{})
	go func() {
		_ = cb.ExecuteWithContext(context.Background(), func(ctx context.Context) error {
			close(started)
			<-blocked
			return nil
		})
	}()
	<-started // the in-flight probe claims the single half-open slot

	err := cb.ExecuteWithContext(context.Background(), func(ctx context.Context) error { return nil })
	require.Error(t, err)
	close(blocked)
}

func TestOnStateChange_FiresWithBreakerName(t *testing.T) {
	type transition struct {
		name string
		from State
		to   State
	}
	var transitions []transition

	cb := NewCircuitBreaker("uploads-bucket", Config{
		Interval: time.Minute,
		Timeout:  time.Minute,
		OnStateChange: func(name string, from, to State) {
			transitions = append(transitions, transition{name, from, to})
		},
	})

	for i := 0; i < 3; i++ {
		_ = cb.ExecuteWithContext(context.Background(), func(ctx context.Context) error {
			return errors.New("exhausted")
		})
	}

	require.Len(t, transitions, 1)
	require.Equal(t, "uploads-bucket", transitions[0].name)
	require.Equal(t, StateClosed, transitions[0].from)
	require.Equal(t, StateOpen, transitions[0].to)
}

func TestCounts_Operations(t *testing.T) {
	var c Counts

	c.onRequest()
	require.Equal(t, uint32(1), c.Requests)
	require.False(t, c.LastActivity.IsZero())

	c.onSuccess()
	require.Equal(t, uint32(1), c.TotalSuccesses)
	require.Equal(t, uint32(1), c.ConsecutiveSuccesses)

	c.onFailure()
	require.Equal(t, uint32(1), c.TotalFailures)
	require.Equal(t, uint32(1), c.ConsecutiveFailures)
	require.Equal(t, uint32(0), c.ConsecutiveSuccesses, "a failure must reset the consecutive-success streak")

	c.clear()
	require.Zero(t, c.Requests)
	require.Zero(t, c.TotalSuccesses)
	require.Zero(t, c.TotalFailures)
	require.Zero(t, c.ConsecutiveSuccesses)
	require.Zero(t, c.ConsecutiveFailures)
	require.True(t, c.LastActivity.IsZero())
}
