package worker

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/hibiken/asynq"
	"github.com/rs/zerolog"

	"github.com/dkarpov/warescan/internal/batch"
	"github.com/dkarpov/warescan/internal/queue"
)

// Processor is plugged into the asynq worker loop and delegates each task to
// the batch orchestrator.
type Processor struct {
	orch *batch.Orchestrator
	log  zerolog.Logger
}

// NewProcessor constructs a worker processor.
func NewProcessor(orch *batch.Orchestrator, log zerolog.Logger) *Processor {
	return &Processor{orch: orch, log: log}
}

// Handler registers the batch task handlers.
func (p *Processor) Handler() *asynq.ServeMux {
	mux := asynq.NewServeMux()
	mux.HandleFunc(queue.TaskProcessBatch, p.handleProcess)
	mux.HandleFunc(queue.TaskRetryBatch, p.handleRetry)
	mux.HandleFunc(queue.TaskDeleteBatch, p.handleDelete)
	return mux
}

func (p *Processor) handleProcess(ctx context.Context, task *asynq.Task) error {
	var payload queue.ProcessPayload
	if err := json.Unmarshal(task.Payload(), &payload); err != nil {
		return fmt.Errorf("decode payload: %w", err)
	}
	return p.orch.ProcessFlush(ctx, payload.ChatID, payload.Items)
}

func (p *Processor) handleRetry(ctx context.Context, task *asynq.Task) error {
	var payload queue.ActionPayload
	if err := json.Unmarshal(task.Payload(), &payload); err != nil {
		return fmt.Errorf("decode payload: %w", err)
	}
	return p.orch.Retry(ctx, payload.ChatID, payload.CorrelationID)
}

func (p *Processor) handleDelete(ctx context.Context, task *asynq.Task) error {
	var payload queue.ActionPayload
	if err := json.Unmarshal(task.Payload(), &payload); err != nil {
		return fmt.Errorf("decode payload: %w", err)
	}
	return p.orch.Delete(ctx, payload.ChatID, payload.CorrelationID)
}
