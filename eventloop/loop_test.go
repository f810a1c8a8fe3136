package eventloop

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type countingSource struct {
	ready  bool
	calls  int
	log    *[]string
	name   string
	action PostAction
	err    error
}

func (s *countingSource) Ready() bool { return s.ready }
func (s *countingSource) Dispatch() (PostAction, error) {
	s.calls++
	if s.log != nil {
		*s.log = append(*s.log, s.name)
	}
	return s.action, s.err
}

func TestSourcesRunInInsertionOrder(t *testing.T) {
	l := New()
	order := []string{}
	for _, name := range []string{"clients", "listener", "input"} {
		require.NoError(t, l.Insert(name, &countingSource{ready: true, log: &order, name: name}))
	}
	require.NoError(t, l.Dispatch(0))
	assert.Equal(t, []string{"clients", "listener", "input"}, order)

	assert.ErrorIs(t, l.Insert("input", &countingSource{}), ErrNameTaken)
}

func TestSourceErrorDoesNotStopTheLoop(t *testing.T) {
	l := New()
	bad := &countingSource{ready: true, err: errors.New("broken pipe")}
	good := &countingSource{ready: true}
	require.NoError(t, l.Insert("bad", bad))
	require.NoError(t, l.Insert("good", good))

	require.NoError(t, l.Dispatch(0))
	require.NoError(t, l.Dispatch(0))
	assert.Equal(t, 2, bad.calls)
	assert.Equal(t, 2, good.calls)
}

func TestRemoveFromDispatchAndPostAction(t *testing.T) {
	l := New()
	once := &countingSource{ready: true, action: Remove}
	require.NoError(t, l.Insert("once", once))
	victim := &countingSource{ready: true}
	require.NoError(t, l.Insert("remover", SourceFunc{
		ReadyFunc: func() bool { return true },
		DispatchFunc: func() (PostAction, error) {
			l.Remove("victim")
			return Continue, nil
		},
	}))
	require.NoError(t, l.Insert("victim", victim))

	require.NoError(t, l.Dispatch(0))
	require.NoError(t, l.Dispatch(0))
	assert.Equal(t, 1, once.calls)
	assert.Equal(t, 0, victim.calls, "removed before its turn")
	assert.Equal(t, []string{"remover"}, l.Sources())
}

func TestTimerReschedulesAndDrops(t *testing.T) {
	l := New()
	fired := 0
	require.NoError(t, l.InsertTimer("redraw", time.Millisecond, func(time.Time) TimeoutAction {
		fired++
		if fired == 3 {
			return Drop()
		}
		return ToDuration(time.Millisecond)
	}))

	deadline := time.Now().Add(2 * time.Second)
	for fired < 3 && time.Now().Before(deadline) {
		require.NoError(t, l.Dispatch(100*time.Millisecond))
	}
	assert.Equal(t, 3, fired)
	assert.Empty(t, l.Sources())
}

func TestWakeUnblocksDispatch(t *testing.T) {
	l := New()
	var pending atomic.Bool
	dispatched := 0
	require.NoError(t, l.Insert("ingress", SourceFunc{
		ReadyFunc: pending.Load,
		DispatchFunc: func() (PostAction, error) {
			pending.Store(false)
			dispatched++
			return Continue, nil
		},
	}))

	go func() {
		time.Sleep(10 * time.Millisecond)
		pending.Store(true)
		l.Signal().Wake()
	}()
	start := time.Now()
	require.NoError(t, l.Dispatch(5*time.Second))
	assert.Less(t, time.Since(start), 2*time.Second)
	assert.Equal(t, 1, dispatched)
}

func TestStopEndsRun(t *testing.T) {
	l := New()
	ticks := 0
	require.NoError(t, l.InsertTimer("tick", 0, func(time.Time) TimeoutAction {
		ticks++
		if ticks == 5 {
			l.Stop()
		}
		return ToDuration(time.Millisecond)
	}))
	require.NoError(t, l.Run(context.Background()))
	assert.Equal(t, 5, ticks)
	assert.ErrorIs(t, l.Dispatch(0), ErrStopped)
	// Stopping twice is fine
	l.Signal().Stop()
}

func TestRunEndsWithContext(t *testing.T) {
	l := New()
	ctx, cancel := context.WithCancel(context.Background())
	errs := make(chan error)
	go func() { errs <- l.Run(ctx) }()
	cancel()
	select {
	case err := <-errs:
		assert.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("loop kept running after cancel")
	}
}
