package scheduler

import (
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type countingJob struct {
	name  string
	calls int32
	err   error
	block chan struct{}
	start chan struct{}
}

func (j *countingJob) Name() string { return j.name }

func (j *countingJob) Run() error {
	atomic.AddInt32(&j.calls, 1)
	if j.start != nil {
		close(j.start)
	}
	if j.block != nil {
		<-j.block
	}
	return j.err
}

func TestScheduler_AddJob(t *testing.T) {
	s := New(zerolog.Nop())

	require.NoError(t, s.AddJob("0 */5 * * * *", &countingJob{name: "five_minutes"}))
	require.NoError(t, s.AddJob("@every 1h", &countingJob{name: "hourly"}))
	assert.ElementsMatch(t, []string{"five_minutes", "hourly"}, s.Jobs())

	err := s.AddJob("@every 1h", &countingJob{name: "hourly"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "already registered")

	err = s.AddJob("not a schedule", &countingJob{name: "broken"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "broken")
	assert.Len(t, s.Jobs(), 2)
}

func TestScheduler_RunNow(t *testing.T) {
	s := New(zerolog.Nop())

	job := &countingJob{name: "job"}
	require.NoError(t, s.RunNow(job))
	assert.Equal(t, int32(1), atomic.LoadInt32(&job.calls))

	failing := &countingJob{name: "failing", err: errors.New("boom")}
	assert.EqualError(t, s.RunNow(failing), "boom")
}

func TestScheduler_Trigger(t *testing.T) {
	s := New(zerolog.Nop())

	job := &countingJob{name: "cleanup"}
	require.NoError(t, s.AddJob("@every 1h", job))

	require.NoError(t, s.Trigger("cleanup"))
	assert.Equal(t, int32(1), atomic.LoadInt32(&job.calls))

	err := s.Trigger("missing")
	assert.ErrorIs(t, err, ErrUnknownJob)
}

func TestScheduler_SkipsOverlappingRuns(t *testing.T) {
	s := New(zerolog.Nop())
	job := &countingJob{name: "slow", block: make(chan struct{}), start: make(chan struct{})}

	done := make(chan error, 1)
	go func() { done <- s.RunNow(job) }()
	<-job.start

	// second invocation while the first is blocked is skipped
	job.start = nil
	require.NoError(t, s.RunNow(job))
	assert.Equal(t, int32(1), atomic.LoadInt32(&job.calls))

	close(job.block)
	require.NoError(t, <-done)
}

func TestScheduler_RunsScheduledJob(t *testing.T) {
	s := New(zerolog.Nop())
	job := &countingJob{name: "every_second"}
	require.NoError(t, s.AddJob("@every 1s", job))

	s.Start()
	defer s.Stop()

	assert.Eventually(t, func() bool {
		return atomic.LoadInt32(&job.calls) > 0
	}, 3*time.Second, 50*time.Millisecond)
}
