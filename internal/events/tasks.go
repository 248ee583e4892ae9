package events

import (
	"context"
	"errors"
	"fmt"

	"github.com/hibiken/asynq"

	"github.com/noah-isme/backend-phongkham/internal/queue"
)

// Enqueuer is satisfied by *asynq.Client.
type Enqueuer interface {
	EnqueueContext(ctx context.Context, task *asynq.Task, opts ...asynq.Option) (*asynq.TaskInfo, error)
}

// TaskNotifier turns invoice events into background inventory tasks.
type TaskNotifier struct {
	Client Enqueuer
}

// Notify implements Notifier. Only invoice.created schedules work; a task
// already queued for the same invoice is not an error.
func (n TaskNotifier) Notify(ctx context.Context, event Event) error {
	if n.Client == nil || event.Topic != TopicInvoiceCreated {
		return nil
	}
	var payload InvoiceCreated
	if err := event.Decode(&payload); err != nil {
		return fmt.Errorf("decode %s: %w", event.Topic, err)
	}
	task, err := queue.NewLowStockCheckTask(event.AggregateID, payload.ProductIDs)
	if err != nil {
		return err
	}
	if _, err := n.Client.EnqueueContext(ctx, task); err != nil && !errors.Is(err, asynq.ErrTaskIDConflict) {
		return fmt.Errorf("enqueue low stock check: %w", err)
	}
	return nil
}
