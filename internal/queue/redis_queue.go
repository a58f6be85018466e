package queue

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/google/uuid"
	"github.com/stakevault/backend/internal/logger"
)

// Redis key prefixes
const (
	queuePrefix   = "queue:"
	delayedPrefix = "delayed:"
	failedPrefix  = "failed:"
	jobPrefix     = "jobs:"
)

// RedisQueue keeps jobs in redis: a list per job type, a sorted set of
// delayed jobs scored by run time and a hash per job for lookups.
type RedisQueue struct {
	client *redis.Client
	now    func() time.Time
	log    *logger.Logger
}

// NewRedisQueue creates a new Redis queue
func NewRedisQueue(client *redis.Client, log *logger.Logger) *RedisQueue {
	return &RedisQueue{
		client: client,
		now:    time.Now,
		log:    log.Component("queue"),
	}
}

// Enqueue adds a job to the queue
func (q *RedisQueue) Enqueue(ctx context.Context, jobType JobType, payload interface{}, opts ...EnqueueOption) (string, error) {
	payloadBytes, err := json.Marshal(payload)
	if err != nil {
		return "", fmt.Errorf("failed to marshal payload: %w", err)
	}

	o := applyOptions(opts)
	now := q.now()
	job := &Job{
		ID:         uuid.New().String(),
		Type:       jobType,
		Payload:    payloadBytes,
		Status:     JobStatusPending,
		MaxRetries: o.maxRetries,
		CreatedAt:  now,
		UpdatedAt:  now,
		RunAt:      now.Add(o.delay),
	}

	if o.delay > 0 {
		err = q.delay(ctx, job)
	} else {
		err = q.push(ctx, job)
	}
	if err != nil {
		return "", err
	}
	return job.ID, nil
}

func (q *RedisQueue) push(ctx context.Context, job *Job) error {
	data, err := q.store(ctx, job)
	if err != nil {
		return err
	}
	if err := q.client.LPush(ctx, queuePrefix+string(job.Type), data).Err(); err != nil {
		return fmt.Errorf("failed to push job to queue: %w", err)
	}
	return nil
}

func (q *RedisQueue) delay(ctx context.Context, job *Job) error {
	data, err := q.store(ctx, job)
	if err != nil {
		return err
	}
	err = q.client.ZAdd(ctx, delayedPrefix+string(job.Type), &redis.Z{
		Score:  float64(job.RunAt.Unix()),
		Member: data,
	}).Err()
	if err != nil {
		return fmt.Errorf("failed to add job to delayed queue: %w", err)
	}
	return nil
}

// store writes the job hash and returns the serialized job
func (q *RedisQueue) store(ctx context.Context, job *Job) ([]byte, error) {
	data, err := json.Marshal(job)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal job: %w", err)
	}
	if err := q.client.HSet(ctx, jobPrefix+job.ID, "data", data).Err(); err != nil {
		return nil, fmt.Errorf("failed to store job details: %w", err)
	}
	if err := q.client.Expire(ctx, jobPrefix+job.ID, DefaultTTL).Err(); err != nil {
		q.log.Warn().Err(err).Str("job_id", job.ID).Msg("Failed to set TTL on job")
	}
	return data, nil
}

// Dequeue blocks up to timeout for a job of any of the given types. It
// returns nil, nil when nothing arrived.
func (q *RedisQueue) Dequeue(ctx context.Context, timeout time.Duration, types ...JobType) (*Job, error) {
	keys := make([]string, 0, len(types))
	for _, t := range types {
		q.promoteDelayed(ctx, t)
		keys = append(keys, queuePrefix+string(t))
	}

	result, err := q.client.BRPop(ctx, timeout, keys...).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to pop job from queue: %w", err)
	}
	if len(result) < 2 {
		return nil, fmt.Errorf("unexpected result format from BRPOP")
	}

	var job Job
	if err := json.Unmarshal([]byte(result[1]), &job); err != nil {
		return nil, fmt.Errorf("failed to unmarshal job: %w", err)
	}
	job.Status = JobStatusProcessing
	job.UpdatedAt = q.now()
	if _, err := q.store(ctx, &job); err != nil {
		q.log.Warn().Err(err).Str("job_id", job.ID).Msg("Failed to update job status")
	}
	return &job, nil
}

// promoteDelayed moves delayed jobs that are due onto the main list. ZRem
// decides which worker moves a job when several race for it.
func (q *RedisQueue) promoteDelayed(ctx context.Context, jobType JobType) {
	key := delayedPrefix + string(jobType)
	due, err := q.client.ZRangeByScore(ctx, key, &redis.ZRangeBy{
		Min: "0",
		Max: strconv.FormatInt(q.now().Unix(), 10),
	}).Result()
	if err != nil {
		q.log.Error().Err(err).Str("type", string(jobType)).Msg("Failed to read delayed jobs")
		return
	}

	for _, member := range due {
		removed, err := q.client.ZRem(ctx, key, member).Result()
		if err != nil || removed == 0 {
			continue
		}
		if err := q.client.LPush(ctx, queuePrefix+string(jobType), member).Err(); err != nil {
			q.log.Error().Err(err).Str("type", string(jobType)).Msg("Failed to move delayed job")
		}
	}
}

// Complete marks a job as completed
func (q *RedisQueue) Complete(ctx context.Context, job *Job) error {
	job.Status = JobStatusCompleted
	job.Error = ""
	job.UpdatedAt = q.now()
	_, err := q.store(ctx, job)
	return err
}

// Fail schedules a retry with backoff, or parks the job on the failed list
// once its retries are used up
func (q *RedisQueue) Fail(ctx context.Context, job *Job, jobErr error) error {
	job.Error = jobErr.Error()
	job.UpdatedAt = q.now()

	if job.RetryCount < job.MaxRetries {
		job.RetryCount++
		job.Status = JobStatusPending
		job.RunAt = q.now().Add(calculateBackoff(job.RetryCount))
		return q.delay(ctx, job)
	}

	job.Status = JobStatusFailed
	data, err := q.store(ctx, job)
	if err != nil {
		return err
	}
	if err := q.client.LPush(ctx, failedPrefix+string(job.Type), data).Err(); err != nil {
		return fmt.Errorf("failed to record failed job: %w", err)
	}
	return nil
}

// Get returns a job by id
func (q *RedisQueue) Get(ctx context.Context, jobID string) (*Job, error) {
	data, err := q.client.HGet(ctx, jobPrefix+jobID, "data").Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, fmt.Errorf("job %s not found", jobID)
		}
		return nil, fmt.Errorf("failed to get job: %w", err)
	}
	var job Job
	if err := json.Unmarshal([]byte(data), &job); err != nil {
		return nil, fmt.Errorf("failed to unmarshal job: %w", err)
	}
	return &job, nil
}

// Stats gets statistics for a queue
func (q *RedisQueue) Stats(ctx context.Context, jobType JobType) (*QueueStats, error) {
	waiting, err := q.client.LLen(ctx, queuePrefix+string(jobType)).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to count waiting jobs: %w", err)
	}
	delayed, err := q.client.ZCard(ctx, delayedPrefix+string(jobType)).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to count delayed jobs: %w", err)
	}
	failed, err := q.client.LLen(ctx, failedPrefix+string(jobType)).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to count failed jobs: %w", err)
	}
	return &QueueStats{Type: jobType, Waiting: waiting, Delayed: delayed, Failed: failed}, nil
}

var (
	_ Enqueuer = (*RedisQueue)(nil)
	_ Backend  = (*RedisQueue)(nil)
)
