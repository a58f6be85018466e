package queue

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stakevault/backend/internal/logger"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

// MockBackend is a mock implementation of Backend
type MockBackend struct {
	mock.Mock
}

func (m *MockBackend) Dequeue(ctx context.Context, timeout time.Duration, types ...JobType) (*Job, error) {
	args := m.Called(ctx, timeout, types)
	job, _ := args.Get(0).(*Job)
	return job, args.Error(1)
}

func (m *MockBackend) Complete(ctx context.Context, job *Job) error {
	return m.Called(ctx, job).Error(0)
}

func (m *MockBackend) Fail(ctx context.Context, job *Job, jobErr error) error {
	return m.Called(ctx, job, jobErr).Error(0)
}

type testPayload struct {
	ID      string `json:"id"`
	Message string `json:"message"`
}

func newJob(t *testing.T, jobType JobType, payload interface{}) *Job {
	t.Helper()
	data, err := json.Marshal(payload)
	require.NoError(t, err)
	return &Job{ID: "job-1", Type: jobType, Payload: data, Status: JobStatusProcessing, MaxRetries: DefaultMaxRetries}
}

func TestProcessJobCompletes(t *testing.T) {
	backend := new(MockBackend)
	p := NewProcessor(backend, 1, logger.NewSilent())

	var got testPayload
	p.Handle(JobTypeNotifyApproval, func(_ context.Context, job Job) error {
		return job.Decode(&got)
	})

	job := newJob(t, JobTypeNotifyApproval, testPayload{ID: "test-123", Message: "hello"})
	backend.On("Complete", mock.Anything, job).Return(nil)

	require.NoError(t, p.ProcessJob(context.Background(), job))
	assert.Equal(t, "test-123", got.ID)
	assert.Equal(t, "hello", got.Message)
	backend.AssertExpectations(t)
	backend.AssertNotCalled(t, "Fail", mock.Anything, mock.Anything, mock.Anything)
}

func TestProcessJobFailsForRetry(t *testing.T) {
	backend := new(MockBackend)
	p := NewProcessor(backend, 1, logger.NewSilent())

	handlerErr := errors.New("telegram unavailable")
	p.Handle(JobTypeNotifyApproval, func(context.Context, Job) error { return handlerErr })

	job := newJob(t, JobTypeNotifyApproval, testPayload{ID: "x"})
	backend.On("Fail", mock.Anything, job, handlerErr).Return(nil)

	err := p.ProcessJob(context.Background(), job)
	assert.ErrorIs(t, err, handlerErr)
	backend.AssertExpectations(t)
	backend.AssertNotCalled(t, "Complete", mock.Anything, mock.Anything)
}

func TestProcessJobRecoversPanics(t *testing.T) {
	backend := new(MockBackend)
	p := NewProcessor(backend, 1, logger.NewSilent())
	p.Handle(JobTypeProfitSummary, func(context.Context, Job) error { panic("boom") })

	job := newJob(t, JobTypeProfitSummary, testPayload{})
	backend.On("Fail", mock.Anything, job, mock.AnythingOfType("*errors.errorString")).Return(nil)

	err := p.ProcessJob(context.Background(), job)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "boom")
	backend.AssertExpectations(t)
}

func TestProcessJobWithoutHandler(t *testing.T) {
	backend := new(MockBackend)
	p := NewProcessor(backend, 1, logger.NewSilent())

	job := newJob(t, "unknown", testPayload{})
	backend.On("Fail", mock.Anything, job, mock.Anything).Return(nil)

	assert.Error(t, p.ProcessJob(context.Background(), job))
	backend.AssertExpectations(t)
}

func TestProcessorRunsWorkersUntilStopped(t *testing.T) {
	backend := new(MockBackend)
	p := NewProcessor(backend, 2, logger.NewSilent())
	p.pollTimeout = 10 * time.Millisecond

	var mu sync.Mutex
	handled := 0
	p.Handle(JobTypeNotifyApproval, func(context.Context, Job) error {
		mu.Lock()
		handled++
		mu.Unlock()
		return nil
	})

	job := newJob(t, JobTypeNotifyApproval, testPayload{ID: "once"})
	backend.On("Dequeue", mock.Anything, p.pollTimeout, []JobType{JobTypeNotifyApproval}).Return(job, nil).Once()
	backend.On("Dequeue", mock.Anything, p.pollTimeout, []JobType{JobTypeNotifyApproval}).Return(nil, nil)
	backend.On("Complete", mock.Anything, job).Return(nil)

	p.Start(context.Background())
	assert.Eventually(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return handled == 1
	}, time.Second, 5*time.Millisecond)
	p.Stop()

	backend.AssertCalled(t, "Complete", mock.Anything, job)
}

func TestCalculateBackoff(t *testing.T) {
	tests := []struct {
		retry    int
		min, max time.Duration
	}{
		{0, 4 * time.Second, 6 * time.Second},
		{1, 8 * time.Second, 12 * time.Second},
		{3, 32 * time.Second, 48 * time.Second},
		{20, 2880 * time.Second, 4320 * time.Second},
	}

	for _, tt := range tests {
		for i := 0; i < 20; i++ {
			d := calculateBackoff(tt.retry)
			assert.GreaterOrEqual(t, d, tt.min, "retry %d", tt.retry)
			assert.LessOrEqual(t, d, tt.max, "retry %d", tt.retry)
		}
	}
}

func TestApplyOptions(t *testing.T) {
	o := applyOptions(nil)
	assert.Equal(t, DefaultMaxRetries, o.maxRetries)
	assert.Zero(t, o.delay)

	o = applyOptions([]EnqueueOption{WithDelay(time.Minute), WithMaxRetries(1)})
	assert.Equal(t, time.Minute, o.delay)
	assert.Equal(t, 1, o.maxRetries)
}
