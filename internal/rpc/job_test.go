package rpc

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestJobStartCancelsAndJoinsPrevious(t *testing.T) {
	j := NewJob(time.Second, nil)

	first := j.Start("a", func(ctx context.Context) { <-ctx.Done() }, nil)
	require.True(t, first.Running())

	var sup Superseded
	second := j.Start("b", func(ctx context.Context) { <-ctx.Done() }, func(s Superseded) { sup = s })

	assert.False(t, first.Running())
	assert.Same(t, first, sup.Task)
	assert.True(t, sup.Joined)

	cur, ok := j.Current()
	require.True(t, ok)
	assert.Same(t, second, cur)

	require.NoError(t, j.Close(context.Background()))
	assert.False(t, j.Running())
}

func TestJobJoinTimeout(t *testing.T) {
	j := NewJob(10*time.Millisecond, nil)
	release := make(chan struct{})
	stuck := j.Start("stuck", func(context.Context) { <-release }, nil)

	var sup Superseded
	j.Start("next", func(context.Context) {}, func(s Superseded) { sup = s })
	assert.False(t, sup.Joined)
	assert.True(t, stuck.Running())

	close(release)
	assert.True(t, stuck.Wait(time.Second))
	require.NoError(t, j.Close(context.Background()))
}

func TestJobRecoversPanics(t *testing.T) {
	j := NewJob(time.Second, nil)
	task := j.Start("boom", func(context.Context) { panic("boom") }, nil)
	assert.True(t, task.Wait(time.Second))
	assert.False(t, j.Running())
}

func TestJobCancelIdle(t *testing.T) {
	j := NewJob(time.Second, nil)
	_, ok := j.Cancel()
	assert.False(t, ok)
	assert.NoError(t, j.Close(context.Background()))
}

func TestJobsPerDevice(t *testing.T) {
	jobs := NewJobs(time.Second, nil)
	a := jobs.For("emulator-5554")
	assert.Same(t, a, jobs.For("emulator-5554"))
	assert.NotSame(t, a, jobs.For("chrome"))

	a.Start("x", func(ctx context.Context) { <-ctx.Done() }, nil)
	require.NoError(t, jobs.Close(context.Background()))
	assert.False(t, a.Running())
}
