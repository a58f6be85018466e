package queue

import (
	"context"
	"encoding/json"
	"math"
	"math/rand"
	"time"
)

// JobType names a kind of job. Each type has its own redis list.
type JobType string

const (
	JobTypeNotifyApproval JobType = "notify_approval"
	JobTypeProfitSummary  JobType = "profit_summary"
)

// JobStatus defines the status of a job
type JobStatus string

const (
	JobStatusPending    JobStatus = "pending"
	JobStatusProcessing JobStatus = "processing"
	JobStatusCompleted  JobStatus = "completed"
	JobStatusFailed     JobStatus = "failed"
)

// Default values
const (
	DefaultMaxRetries = 5
	DefaultTTL        = 24 * time.Hour
)

// Job is a unit of background work
type Job struct {
	ID         string          `json:"id"`
	Type       JobType         `json:"type"`
	Payload    json.RawMessage `json:"payload"`
	Status     JobStatus       `json:"status"`
	RetryCount int             `json:"retry_count"`
	MaxRetries int             `json:"max_retries"`
	Error      string          `json:"error,omitempty"`
	CreatedAt  time.Time       `json:"created_at"`
	UpdatedAt  time.Time       `json:"updated_at"`
	RunAt      time.Time       `json:"run_at"`
}

// Decode unmarshals the payload into v
func (j *Job) Decode(v interface{}) error {
	return json.Unmarshal(j.Payload, v)
}

// Enqueuer puts jobs on a queue
type Enqueuer interface {
	Enqueue(ctx context.Context, jobType JobType, payload interface{}, opts ...EnqueueOption) (string, error)
}

// Backend is what a Processor pulls jobs from
type Backend interface {
	Dequeue(ctx context.Context, timeout time.Duration, types ...JobType) (*Job, error)
	Complete(ctx context.Context, job *Job) error
	Fail(ctx context.Context, job *Job, jobErr error) error
}

// QueueStats represents statistics for a queue
type QueueStats struct {
	Type    JobType `json:"type"`
	Waiting int64   `json:"waiting"`
	Delayed int64   `json:"delayed"`
	Failed  int64   `json:"failed"`
}

// EnqueueOptions represents options for enqueueing a job
type EnqueueOptions struct {
	delay      time.Duration
	maxRetries int
}

// EnqueueOption is a function that modifies EnqueueOptions
type EnqueueOption func(*EnqueueOptions)

// WithDelay adds a delay to a job
func WithDelay(delay time.Duration) EnqueueOption {
	return func(o *EnqueueOptions) {
		o.delay = delay
	}
}

// WithMaxRetries sets the maximum number of retries for a job
func WithMaxRetries(maxRetries int) EnqueueOption {
	return func(o *EnqueueOptions) {
		o.maxRetries = maxRetries
	}
}

func applyOptions(opts []EnqueueOption) EnqueueOptions {
	o := EnqueueOptions{maxRetries: DefaultMaxRetries}
	for _, opt := range opts {
		opt(&o)
	}
	return o
}

// calculateBackoff calculates the backoff duration for a retry
func calculateBackoff(retry int) time.Duration {
	// Exponential backoff with jitter
	// Base: 5 seconds
	// Max: 1 hour
	base := 5.0
	max := 3600.0

	seconds := math.Min(max, base*math.Pow(2, float64(retry)))

	// Add jitter (±20%)
	jitter := seconds * 0.2
	seconds = seconds - jitter + (rand.Float64() * jitter * 2)

	return time.Duration(seconds * float64(time.Second))
}
