package server

import (
	"context"
	"errors"
	"net/http"
	"sync"
	"testing"
	"time"

	"github.com/guiyumin/vresolve/internal/core/downloader"
	"github.com/guiyumin/vresolve/internal/core/extractor"
	"github.com/guiyumin/vresolve/internal/core/failure"
	"github.com/guiyumin/vresolve/internal/core/resolver"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func noopTransfer(ctx context.Context, sel *resolver.Selection, progress downloader.ProgressFunc) (string, error) {
	return "/tmp/" + sel.FileName, nil
}

func testSelection() *resolver.Selection {
	return &resolver.Selection{
		SessionID: 1,
		Entry:     extractor.Entry{URL: "https://cdn/a.mp4"},
		FileName:  "a.mp4",
	}
}

func TestAddJobAfterStop(t *testing.T) {
	jq := NewJobQueue(2, noopTransfer)
	jq.Start()
	jq.Stop()

	var (
		job *Job
		err error
	)
	require.NotPanics(t, func() { job, err = jq.AddJob(testSelection()) })
	assert.Nil(t, job)
	assert.ErrorIs(t, err, ErrQueueStopped)
	assert.Empty(t, jq.GetAllJobs())

	// second Stop is a no-op
	assert.NotPanics(t, jq.Stop)
}

func TestAddJobRacesStop(t *testing.T) {
	jq := NewJobQueue(2, noopTransfer)
	jq.Start()

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := jq.AddJob(testSelection())
			if err != nil {
				assert.True(t, errors.Is(err, ErrQueueStopped) || errors.Is(err, ErrQueueFull), err.Error())
			}
		}()
	}
	jq.Stop()
	wg.Wait()
}

func TestAddJobQueueFull(t *testing.T) {
	// no workers, so nothing drains the buffer
	jq := NewJobQueue(1, noopTransfer)
	defer jq.Stop()

	for i := 0; i < queueSize; i++ {
		_, err := jq.AddJob(testSelection())
		require.NoError(t, err)
	}
	_, err := jq.AddJob(testSelection())
	assert.ErrorIs(t, err, ErrQueueFull)
	assert.Len(t, jq.GetAllJobs(), queueSize)
}

func TestJobFailureKind(t *testing.T) {
	jq := NewJobQueue(1, func(ctx context.Context, sel *resolver.Selection, progress downloader.ProgressFunc) (string, error) {
		return "", failure.New(failure.SizeLimitExceeded, "too big")
	})
	jq.Start()
	defer jq.Stop()

	job, err := jq.AddJob(testSelection())
	require.NoError(t, err)

	require.Eventually(t, func() bool {
		j := jq.GetJob(job.ID)
		return j != nil && j.finished()
	}, time.Second, 5*time.Millisecond)

	got := jq.GetJob(job.ID)
	assert.Equal(t, JobStatusFailed, got.Status)
	assert.Equal(t, failure.SizeLimitExceeded, got.ErrorKind)
}

func TestAddJobAfterServerStop(t *testing.T) {
	e := newTestEnv(t, "", 1<<20)
	e.do(t, http.MethodPost, "/api/resolve", ResolveRequest{URL: "https://youtu.be/abc"})
	require.NoError(t, e.srv.Stop(context.Background()))

	w, _ := e.do(t, http.MethodPost, "/api/jobs", JobRequest{SessionID: 1, Index: 1})
	assert.Equal(t, http.StatusServiceUnavailable, w.Code)
}
