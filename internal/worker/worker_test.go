package worker

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/srcf/lightbluetent/pkg/queue"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type stubDeleter struct {
	mu      sync.Mutex
	deleted []string
	fail    map[string]bool
}

func (s *stubDeleter) Delete(_ context.Context, key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.fail[key] {
		return errors.New("access denied")
	}
	s.deleted = append(s.deleted, key)
	return nil
}

type stubQueue struct {
	mu      sync.Mutex
	jobs    []*queue.Job
	retried []*queue.Job
}

func (q *stubQueue) Dequeue(ctx context.Context) (*queue.Job, error) {
	q.mu.Lock()
	if len(q.jobs) > 0 {
		j := q.jobs[0]
		q.jobs = q.jobs[1:]
		q.mu.Unlock()
		return j, nil
	}
	q.mu.Unlock()
	<-ctx.Done()
	return nil, ctx.Err()
}

func (q *stubQueue) Retry(_ context.Context, job *queue.Job) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	job.Attempt++
	q.retried = append(q.retried, job)
	return nil
}

func purgeJob(t *testing.T, objects ...string) *queue.Job {
	t.Helper()
	body, err := json.Marshal(queue.AssetPurgePayload{Key: "jazz", Objects: objects})
	require.NoError(t, err)
	return &queue.Job{ID: "job-1", Type: queue.JobTypeAssetPurge, Payload: body}
}

func TestProcess_DeletesEveryObject(t *testing.T) {
	del := &stubDeleter{}
	p := NewAssetPurger(del, &stubQueue{}, nil)

	require.NoError(t, p.Process(context.Background(), purgeJob(t, "logos/a.png", "logos/a@2x.png")))
	assert.Equal(t, []string{"logos/a.png", "logos/a@2x.png"}, del.deleted)
}

func TestProcess_ReportsFailures(t *testing.T) {
	del := &stubDeleter{fail: map[string]bool{"logos/a.png": true}}
	p := NewAssetPurger(del, &stubQueue{}, nil)

	err := p.Process(context.Background(), purgeJob(t, "logos/a.png", "logos/a@2x.png"))
	require.Error(t, err)
	assert.Equal(t, []string{"logos/a@2x.png"}, del.deleted)
}

func TestProcess_UnknownType(t *testing.T) {
	p := NewAssetPurger(&stubDeleter{}, &stubQueue{}, nil)
	err := p.Process(context.Background(), &queue.Job{Type: "email"})
	assert.Error(t, err)
}

func TestRun_RetriesFailedJobs(t *testing.T) {
	del := &stubDeleter{fail: map[string]bool{"logos/b.png": true}}
	q := &stubQueue{jobs: []*queue.Job{purgeJob(t, "logos/a.png"), purgeJob(t, "logos/b.png")}}
	p := NewAssetPurger(del, q, nil)
	p.backoff = time.Millisecond

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		p.Run(ctx)
		close(done)
	}()

	require.Eventually(t, func() bool {
		q.mu.Lock()
		defer q.mu.Unlock()
		return len(q.retried) == 1
	}, time.Second, 5*time.Millisecond)
	cancel()
	<-done

	assert.Equal(t, 1, q.retried[0].Attempt)
	assert.Equal(t, []string{"logos/a.png"}, del.deleted)
}
