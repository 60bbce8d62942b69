package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// ErrNotFound is returned when a correlation token resolves to no batch.
var ErrNotFound = errors.New("batch not found")

// BatchStatus enumerates the lifecycle of a photo batch.
type BatchStatus string

const (
	StatusProcessing BatchStatus = "processing"
	StatusCompleted  BatchStatus = "completed"
	StatusFailed     BatchStatus = "failed"
)

// Batch represents a row in the photo_batches table. The correlation ID is
// the only handle ever exposed to chat users.
type Batch struct {
	ID                 string      `json:"id"`
	CorrelationID      string      `json:"correlationId"`
	ChatID             int64       `json:"chatId"`
	Status             BatchStatus `json:"status"`
	PrimaryLabels      []string    `json:"primaryLabels"`
	SecondaryCodes     []string    `json:"secondaryCodes"`
	Barcodes           []string    `json:"barcodes"`
	Submitted          bool        `json:"submitted"`
	SubmissionResponse []byte      `json:"submissionResponse,omitempty"`
	CreatedAt          time.Time   `json:"createdAt"`
	UpdatedAt          time.Time   `json:"updatedAt"`
}

// Trackings returns the deduplicated union of every code tracked by the
// batch, in stored order. This is what the shipment API receives.
func (b *Batch) Trackings() []string {
	var out []string
	seen := make(map[string]struct{})
	for _, set := range [][]string{b.PrimaryLabels, b.SecondaryCodes, b.Barcodes} {
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

// Photo represents a row in the photos table. Rows are created once per
// downloaded image and never mutated afterwards.
type Photo struct {
	ID        string    `json:"id"`
	BatchID   string    `json:"batchId"`
	FileID    string    `json:"fileId"`
	ObjectKey string    `json:"objectKey"`
	Order     int       `json:"order"`
	IsPrimary bool      `json:"isPrimary"`
	CreatedAt time.Time `json:"createdAt"`
}

// BatchRepository wraps all SQL used by the worker and the bot.
type BatchRepository struct {
	pool *pgxpool.Pool
}

// NewBatchRepository constructs a repository.
func NewBatchRepository(pool *pgxpool.Pool) *BatchRepository {
	return &BatchRepository{pool: pool}
}

// CreateBatch inserts a processing batch at flush time.
func (r *BatchRepository) CreateBatch(ctx context.Context, b *Batch) error {
	now := time.Now().UTC()
	b.CreatedAt = now
	b.UpdatedAt = now
	_, err := r.pool.Exec(ctx, `
		INSERT INTO photo_batches (id, correlation_id, chat_id, status, created_at, updated_at)
		VALUES ($1,$2,$3,$4,$5,$6)
	`, b.ID, b.CorrelationID, b.ChatID, b.Status, b.CreatedAt, b.UpdatedAt)
	if err != nil {
		return fmt.Errorf("insert batch: %w", err)
	}
	return nil
}

// GetByCorrelation resolves a user-facing correlation token to a batch.
func (r *BatchRepository) GetByCorrelation(ctx context.Context, correlationID string) (*Batch, error) {
	var b Batch
	row := r.pool.QueryRow(ctx, `
		SELECT id, correlation_id, chat_id, status, primary_labels, secondary_codes, barcodes,
		       submitted, submission_response, created_at, updated_at
		FROM photo_batches WHERE correlation_id=$1
	`, correlationID)
	err := row.Scan(&b.ID, &b.CorrelationID, &b.ChatID, &b.Status, &b.PrimaryLabels,
		&b.SecondaryCodes, &b.Barcodes, &b.Submitted, &b.SubmissionResponse, &b.CreatedAt, &b.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("select batch: %w", err)
	}
	return &b, nil
}

// UpdateCodes overwrites the classified code sets.
func (r *BatchRepository) UpdateCodes(ctx context.Context, batchID string, primary, secondary, barcodes []string) error {
	_, err := r.pool.Exec(ctx, `
		UPDATE photo_batches
		SET primary_labels=$1, secondary_codes=$2, barcodes=$3, updated_at=$4
		WHERE id=$5
	`, primary, secondary, barcodes, time.Now().UTC(), batchID)
	if err != nil {
		return fmt.Errorf("update codes: %w", err)
	}
	return nil
}

// UpdateSubmission stores the shipment submission outcome verbatim.
func (r *BatchRepository) UpdateSubmission(ctx context.Context, batchID string, submitted bool, response []byte) error {
	_, err := r.pool.Exec(ctx, `
		UPDATE photo_batches
		SET submitted=$1, submission_response=$2, updated_at=$3
		WHERE id=$4
	`, submitted, response, time.Now().UTC(), batchID)
	if err != nil {
		return fmt.Errorf("update submission: %w", err)
	}
	return nil
}

// SetStatus moves the batch through its lifecycle.
func (r *BatchRepository) SetStatus(ctx context.Context, batchID string, status BatchStatus) error {
	_, err := r.pool.Exec(ctx, `
		UPDATE photo_batches SET status=$1, updated_at=$2 WHERE id=$3
	`, status, time.Now().UTC(), batchID)
	if err != nil {
		return fmt.Errorf("update status: %w", err)
	}
	return nil
}

// DeleteBatch removes the batch; photo rows go with it via the FK cascade.
func (r *BatchRepository) DeleteBatch(ctx context.Context, batchID string) error {
	_, err := r.pool.Exec(ctx, `DELETE FROM photo_batches WHERE id=$1`, batchID)
	if err != nil {
		return fmt.Errorf("delete batch: %w", err)
	}
	return nil
}

// AddPhoto inserts a photo row owned by its batch.
func (r *BatchRepository) AddPhoto(ctx context.Context, p *Photo) error {
	p.CreatedAt = time.Now().UTC()
	_, err := r.pool.Exec(ctx, `
		INSERT INTO photos (id, batch_id, file_id, object_key, ord, is_primary, created_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7)
	`, p.ID, p.BatchID, p.FileID, p.ObjectKey, p.Order, p.IsPrimary, p.CreatedAt)
	if err != nil {
		return fmt.Errorf("insert photo: %w", err)
	}
	return nil
}

// Photos lists a batch's photos in arrival order.
func (r *BatchRepository) Photos(ctx context.Context, batchID string) ([]Photo, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT id, batch_id, file_id, object_key, ord, is_primary, created_at
		FROM photos WHERE batch_id=$1 ORDER BY ord
	`, batchID)
	if err != nil {
		return nil, fmt.Errorf("select photos: %w", err)
	}
	defer rows.Close()

	var photos []Photo
	for rows.Next() {
		var p Photo
		if err := rows.Scan(&p.ID, &p.BatchID, &p.FileID, &p.ObjectKey, &p.Order, &p.IsPrimary, &p.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan photo: %w", err)
		}
		photos = append(photos, p)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate photos: %w", err)
	}
	return photos, nil
}
