package scheduler

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

type fakeLoop struct {
	started int32
	stopped int32
	stopDelay time.Duration
}

func (f *fakeLoop) Start(ctx context.Context) { atomic.StoreInt32(&f.started, 1) }

func (f *fakeLoop) Stop() {
	time.Sleep(f.stopDelay)
	atomic.StoreInt32(&f.stopped, 1)
}

func TestSchedulerStartsAndStopsAllLoops(t *testing.T) {
	a := &fakeLoop{}
	b := &fakeLoop{}
	s := New(time.Second, a, b)

	require := assert.New(t)
	require.NoError(s.Start(context.Background()))
	require.EqualValues(1, a.started)
	require.EqualValues(1, b.started)

	require.NoError(s.Stop(context.Background()))
	require.EqualValues(1, a.stopped)
	require.EqualValues(1, b.stopped)
}

func TestSchedulerStopAbandonsSlowLoopsAtDeadline(t *testing.T) {
	slow := &fakeLoop{stopDelay: time.Second}
	s := New(20*time.Millisecond, slow)

	start := time.Now()
	err := s.Stop(context.Background())
	elapsed := time.Since(start)

	assert.NoError(t, err)
	assert.Less(t, elapsed, 500*time.Millisecond, "Stop should return at the deadline, not wait for the slow loop")
}
