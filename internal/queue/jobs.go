package queue

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/hibiken/asynq"

	"github.com/dkarpov/warescan/internal/buffer"
)

const (
	// TaskProcessBatch is scheduled each time a chat buffer flushes.
	TaskProcessBatch = "batch:process"
	// TaskRetryBatch is scheduled by the retry inline button.
	TaskRetryBatch = "batch:retry"
	// TaskDeleteBatch is scheduled by the delete inline button.
	TaskDeleteBatch = "batch:delete"
)

// ProcessPayload is serialized into the flush task so the worker knows which
// photos to download and decode.
type ProcessPayload struct {
	ChatID int64         `json:"chat_id"`
	Items  []buffer.Item `json:"items"`
}

// ActionPayload identifies a batch for the retry and delete tasks.
type ActionPayload struct {
	ChatID        int64  `json:"chat_id"`
	CorrelationID string `json:"correlation_id"`
}

// EnqueueProcess enqueues a flushed buffer for batch processing.
func EnqueueProcess(ctx context.Context, client *asynq.Client, payload ProcessPayload) error {
	return enqueue(ctx, client, TaskProcessBatch, payload)
}

// EnqueueRetry enqueues a batch re-run.
func EnqueueRetry(ctx context.Context, client *asynq.Client, payload ActionPayload) error {
	return enqueue(ctx, client, TaskRetryBatch, payload)
}

// EnqueueDelete enqueues a batch deletion.
func EnqueueDelete(ctx context.Context, client *asynq.Client, payload ActionPayload) error {
	return enqueue(ctx, client, TaskDeleteBatch, payload)
}

func enqueue(ctx context.Context, client *asynq.Client, taskName string, payload any) error {
	data, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal payload: %w", err)
	}
	task := asynq.NewTask(taskName, data)
	if _, err := client.EnqueueContext(ctx, task, asynq.MaxRetry(3)); err != nil {
		return fmt.Errorf("enqueue %s: %w", taskName, err)
	}
	return nil
}
