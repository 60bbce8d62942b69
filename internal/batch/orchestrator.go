// Package batch turns flushed photo buffers into persisted, decoded and
// submitted batches, and drives the retry/delete compensation flows.
package batch

import (
	"context"
	"crypto/rand"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/dkarpov/warescan/internal/buffer"
	"github.com/dkarpov/warescan/internal/decode"
	"github.com/dkarpov/warescan/internal/pochtoy"
	"github.com/dkarpov/warescan/internal/repository"
)

// Repository is the persistence surface the orchestrator needs.
type Repository interface {
	CreateBatch(ctx context.Context, b *repository.Batch) error
	GetByCorrelation(ctx context.Context, correlationID string) (*repository.Batch, error)
	UpdateCodes(ctx context.Context, batchID string, primary, secondary, barcodes []string) error
	UpdateSubmission(ctx context.Context, batchID string, submitted bool, response []byte) error
	SetStatus(ctx context.Context, batchID string, status repository.BatchStatus) error
	DeleteBatch(ctx context.Context, batchID string) error
	AddPhoto(ctx context.Context, p *repository.Photo) error
	Photos(ctx context.Context, batchID string) ([]repository.Photo, error)
}

// ObjectStore persists photo bytes under batch-derived keys.
type ObjectStore interface {
	Upload(ctx context.Context, objectKey string, data []byte) error
	Download(ctx context.Context, objectKey string) ([]byte, error)
	Remove(ctx context.Context, objectKey string) error
}

// FileSource resolves chat-platform file references to image bytes.
type FileSource interface {
	Fetch(ctx context.Context, fileID string) ([]byte, error)
}

// Pipeline is the decode escalation over one image.
type Pipeline interface {
	Process(ctx context.Context, img decode.Image) decode.Outcome
}

// ShipmentAPI is the downstream inventory integration.
type ShipmentAPI interface {
	Submit(ctx context.Context, sh pochtoy.Shipment) pochtoy.Result
	Delete(ctx context.Context, trackings []string) pochtoy.Result
}

// Notifier delivers chat notifications. Send failures are best-effort and
// surfaced via the returned error for logging only.
type Notifier interface {
	Send(chatID int64, text string) error
	SendActions(chatID int64, html, correlationID string, withRetry bool) error
}

// Orchestrator owns the batch lifecycle from flush to submission, plus the
// user-triggered retry and delete compensations.
type Orchestrator struct {
	repo     Repository
	store    ObjectStore
	files    FileSource
	pipeline Pipeline
	shipment ShipmentAPI
	notify   Notifier
	log      zerolog.Logger
}

// New constructs an Orchestrator.
func New(repo Repository, store ObjectStore, files FileSource, pipeline Pipeline, shipment ShipmentAPI, notify Notifier, log zerolog.Logger) *Orchestrator {
	return &Orchestrator{
		repo:     repo,
		store:    store,
		files:    files,
		pipeline: pipeline,
		shipment: shipment,
		notify:   notify,
		log:      log,
	}
}

// ProcessFlush materializes a flushed buffer: persists the batch, downloads
// and stores each photo in arrival order, runs the decode pipeline per
// photo, classifies the aggregate, and drives submission and notification.
func (o *Orchestrator) ProcessFlush(ctx context.Context, chatID int64, items []buffer.Item) error {
	correlationID := newCorrelationID()
	b := &repository.Batch{
		ID:            uuid.NewString(),
		CorrelationID: correlationID,
		ChatID:        chatID,
		Status:        repository.StatusProcessing,
	}
	if err := o.repo.CreateBatch(ctx, b); err != nil {
		return fmt.Errorf("create batch: %w", err)
	}
	o.log.Info().Str("correlation_id", correlationID).Int64("chat_id", chatID).
		Int("photos", len(items)).Msg("processing batch")

	var (
		results  []decode.Code
		timeline []decode.TimelineEntry
		images   [][]byte
	)
	for idx, item := range items {
		data, err := o.files.Fetch(ctx, item.FileID)
		if err != nil {
			o.log.Error().Err(err).Str("file_id", item.FileID).Msg("photo download failed")
			continue
		}
		objectKey := photoKey(correlationID, idx)
		if err := o.store.Upload(ctx, objectKey, data); err != nil {
			o.log.Error().Err(err).Str("object_key", objectKey).Msg("photo upload failed")
			continue
		}
		photo := &repository.Photo{
			ID:        uuid.NewString(),
			BatchID:   b.ID,
			FileID:    item.FileID,
			ObjectKey: objectKey,
			Order:     idx,
			IsPrimary: idx == 0,
		}
		if err := o.repo.AddPhoto(ctx, photo); err != nil {
			return fmt.Errorf("insert photo: %w", err)
		}
		images = append(images, data)

		out := o.pipeline.Process(ctx, decode.Image{Data: data})
		results = append(results, out.Results...)
		timeline = append(timeline, out.Timeline...)
	}

	primary, secondary, barcodes := Classify(results)
	if err := o.repo.UpdateCodes(ctx, b.ID, primary, secondary, barcodes); err != nil {
		return fmt.Errorf("persist codes: %w", err)
	}

	hasPrimary, hasSecondary := hasPair(primary, secondary)
	if !hasPrimary && !hasSecondary {
		if err := o.repo.SetStatus(ctx, b.ID, repository.StatusFailed); err != nil {
			return fmt.Errorf("mark failed: %w", err)
		}
		if err := o.notify.SendActions(chatID, renderNoLabel(), correlationID, false); err != nil {
			o.log.Error().Err(err).Msg("no-label notification failed")
		}
		return nil
	}

	res := o.shipment.Submit(ctx, pochtoy.Shipment{
		CorrelationID: correlationID,
		Images:        images,
		Trackings:     trackings(primary, secondary, barcodes),
	})
	if err := o.persistSubmission(ctx, b.ID, res); err != nil {
		return err
	}
	if err := o.repo.SetStatus(ctx, b.ID, repository.StatusCompleted); err != nil {
		return fmt.Errorf("mark completed: %w", err)
	}

	summary := renderSummary(summaryInput{
		primary:    primary,
		secondary:  secondary,
		photoCount: len(items),
		submission: res,
		timeline:   timeline,
	})
	if err := o.notify.SendActions(chatID, summary, correlationID, true); err != nil {
		o.log.Error().Err(err).Msg("summary notification failed")
	}
	o.log.Info().Str("correlation_id", correlationID).Bool("submitted", res.Success).Msg("batch completed")
	return nil
}

// Retry compensates a previous submission, re-decodes the stored photos and
// re-submits. The correlation token and photo rows are left untouched; a
// successful re-submission also moves a failed batch to completed.
func (o *Orchestrator) Retry(ctx context.Context, chatID int64, correlationID string) error {
	b, err := o.repo.GetByCorrelation(ctx, correlationID)
	if errors.Is(err, repository.ErrNotFound) {
		if nerr := o.notify.Send(chatID, "❌ Batch not found"); nerr != nil {
			o.log.Error().Err(nerr).Msg("retry notification failed")
		}
		return nil
	}
	if err != nil {
		return fmt.Errorf("lookup batch: %w", err)
	}

	if err := o.notify.Send(chatID, "🔄 Reprocessing..."); err != nil {
		o.log.Error().Err(err).Msg("retry notification failed")
	}

	// Remove the previously submitted trackings first so re-submission does
	// not duplicate them downstream.
	if res := o.shipment.Delete(ctx, b.Trackings()); !res.Success {
		o.log.Warn().Str("error", res.Error).Msg("pre-retry pochtoy delete failed")
	}

	photos, err := o.repo.Photos(ctx, b.ID)
	if err != nil {
		return fmt.Errorf("list photos: %w", err)
	}

	var (
		results  []decode.Code
		timeline []decode.TimelineEntry
		images   [][]byte
	)
	for _, p := range photos {
		data, err := o.store.Download(ctx, p.ObjectKey)
		if err != nil {
			o.log.Error().Err(err).Str("object_key", p.ObjectKey).Msg("stored photo fetch failed")
			continue
		}
		images = append(images, data)
		out := o.pipeline.Process(ctx, decode.Image{Data: data})
		results = append(results, out.Results...)
		timeline = append(timeline, out.Timeline...)
	}

	primary, secondary, barcodes := Classify(results)
	if err := o.repo.UpdateCodes(ctx, b.ID, primary, secondary, barcodes); err != nil {
		return fmt.Errorf("persist codes: %w", err)
	}

	res := o.shipment.Submit(ctx, pochtoy.Shipment{
		CorrelationID: correlationID,
		Images:        images,
		Trackings:     trackings(primary, secondary, barcodes),
	})
	if err := o.persistSubmission(ctx, b.ID, res); err != nil {
		return err
	}
	if res.Success {
		if err := o.repo.SetStatus(ctx, b.ID, repository.StatusCompleted); err != nil {
			return fmt.Errorf("mark completed: %w", err)
		}
	}

	summary := renderSummary(summaryInput{
		retried:    true,
		primary:    primary,
		secondary:  secondary,
		photoCount: len(photos),
		submission: res,
		timeline:   timeline,
	})
	if err := o.notify.SendActions(chatID, summary, correlationID, true); err != nil {
		o.log.Error().Err(err).Msg("summary notification failed")
	}
	return nil
}

// Delete removes the batch downstream and locally. An unknown correlation
// token is a silent no-op so duplicated callbacks stay harmless. Cleanup
// steps are best-effort.
func (o *Orchestrator) Delete(ctx context.Context, chatID int64, correlationID string) error {
	b, err := o.repo.GetByCorrelation(ctx, correlationID)
	if errors.Is(err, repository.ErrNotFound) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("lookup batch: %w", err)
	}

	if res := o.shipment.Delete(ctx, b.Trackings()); !res.Success {
		o.log.Warn().Str("error", res.Error).Msg("pochtoy delete failed")
	}

	photos, err := o.repo.Photos(ctx, b.ID)
	if err != nil {
		return fmt.Errorf("list photos: %w", err)
	}
	for _, p := range photos {
		if err := o.store.Remove(ctx, p.ObjectKey); err != nil {
			o.log.Warn().Err(err).Str("object_key", p.ObjectKey).Msg("photo removal failed")
		}
	}

	if err := o.repo.DeleteBatch(ctx, b.ID); err != nil {
		return fmt.Errorf("delete batch: %w", err)
	}
	if err := o.notify.Send(chatID, "🗑️ Deleted: "+correlationID); err != nil {
		o.log.Error().Err(err).Msg("delete notification failed")
	}
	o.log.Info().Str("correlation_id", correlationID).Msg("batch deleted")
	return nil
}

func (o *Orchestrator) persistSubmission(ctx context.Context, batchID string, res pochtoy.Result) error {
	raw, err := json.Marshal(res)
	if err != nil {
		return fmt.Errorf("marshal submission: %w", err)
	}
	if err := o.repo.UpdateSubmission(ctx, batchID, res.Success, raw); err != nil {
		return fmt.Errorf("persist submission: %w", err)
	}
	return nil
}

func trackings(primary, secondary, barcodes []string) []string {
	out := make([]string, 0, len(primary)+len(secondary)+len(barcodes))
	seen := make(map[string]struct{})
	for _, set := range [][]string{primary, secondary, barcodes} {
		for _, code := range set {
			if _, ok := seen[code]; ok {
				continue
			}
			seen[code] = struct{}{}
			out = append(out, code)
		}
	}
	return out
}

func photoKey(correlationID string, idx int) string {
	return fmt.Sprintf("photos/%s_%d.jpg", correlationID, idx)
}

const correlationAlphabet = "abcdefghijklmnopqrstuvwxyzABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789"

// newCorrelationID returns the short random token exposed to chat users via
// callback payloads. 62^8 values keep collisions negligible at expected
// batch volumes.
func newCorrelationID() string {
	buf := make([]byte, 8)
	if _, err := rand.Read(buf); err != nil {
		return uuid.NewString()[:8]
	}
	for i, b := range buf {
		buf[i] = correlationAlphabet[int(b)%len(correlationAlphabet)]
	}
	return string(buf)
}
