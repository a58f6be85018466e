package approval

import (
	"context"
	"fmt"

	"github.com/stakevault/backend/internal/queue"
)

// QueuedNotifier hands actions to the job queue so delivery is retried
// independently of the request that produced them.
type QueuedNotifier struct {
	queue queue.Enqueuer
}

// NewQueuedNotifier creates a QueuedNotifier on top of q
func NewQueuedNotifier(q queue.Enqueuer) *QueuedNotifier {
	return &QueuedNotifier{queue: q}
}

// Notify enqueues a notify_approval job carrying the action
func (n *QueuedNotifier) Notify(ctx context.Context, action Action) error {
	if _, err := n.queue.Enqueue(ctx, queue.JobTypeNotifyApproval, action); err != nil {
		return fmt.Errorf("failed to enqueue approval action: %w", err)
	}
	return nil
}

// DeliveryHandler returns the queue handler that delivers queued actions
// through inner
func DeliveryHandler(inner Notifier) queue.Handler {
	return func(ctx context.Context, job queue.Job) error {
		var action Action
		if err := job.Decode(&action); err != nil {
			return fmt.Errorf("failed to decode approval action: %w", err)
		}
		return inner.Notify(ctx, action)
	}
}

var _ Notifier = (*QueuedNotifier)(nil)
