package batch

import (
	"context"
	"fmt"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dkarpov/warescan/internal/buffer"
	"github.com/dkarpov/warescan/internal/decode"
	"github.com/dkarpov/warescan/internal/pochtoy"
	"github.com/dkarpov/warescan/internal/repository"
)

type mockRepo struct {
	batches map[string]*repository.Batch
	photos  map[string][]repository.Photo
}

func newMockRepo() *mockRepo {
	return &mockRepo{
		batches: make(map[string]*repository.Batch),
		photos:  make(map[string][]repository.Photo),
	}
}

func (m *mockRepo) CreateBatch(_ context.Context, b *repository.Batch) error {
	cp := *b
	m.batches[b.ID] = &cp
	return nil
}

func (m *mockRepo) GetByCorrelation(_ context.Context, correlationID string) (*repository.Batch, error) {
	for _, b := range m.batches {
		if b.CorrelationID == correlationID {
			cp := *b
			return &cp, nil
		}
	}
	return nil, repository.ErrNotFound
}

func (m *mockRepo) UpdateCodes(_ context.Context, batchID string, primary, secondary, barcodes []string) error {
	b := m.batches[batchID]
	b.PrimaryLabels = primary
	b.SecondaryCodes = secondary
	b.Barcodes = barcodes
	return nil
}

func (m *mockRepo) UpdateSubmission(_ context.Context, batchID string, submitted bool, response []byte) error {
	b := m.batches[batchID]
	b.Submitted = submitted
	b.SubmissionResponse = response
	return nil
}

func (m *mockRepo) SetStatus(_ context.Context, batchID string, status repository.BatchStatus) error {
	m.batches[batchID].Status = status
	return nil
}

func (m *mockRepo) DeleteBatch(_ context.Context, batchID string) error {
	delete(m.batches, batchID)
	delete(m.photos, batchID)
	return nil
}

func (m *mockRepo) AddPhoto(_ context.Context, p *repository.Photo) error {
	m.photos[p.BatchID] = append(m.photos[p.BatchID], *p)
	return nil
}

func (m *mockRepo) Photos(_ context.Context, batchID string) ([]repository.Photo, error) {
	return m.photos[batchID], nil
}

func (m *mockRepo) single(t *testing.T) *repository.Batch {
	t.Helper()
	require.Len(t, m.batches, 1)
	for _, b := range m.batches {
		return b
	}
	return nil
}

type mockStore struct {
	objects map[string][]byte
	removed []string
}

func newMockStore() *mockStore {
	return &mockStore{objects: make(map[string][]byte)}
}

func (m *mockStore) Upload(_ context.Context, objectKey string, data []byte) error {
	m.objects[objectKey] = data
	return nil
}

func (m *mockStore) Download(_ context.Context, objectKey string) ([]byte, error) {
	data, ok := m.objects[objectKey]
	if !ok {
		return nil, fmt.Errorf("no such object: %s", objectKey)
	}
	return data, nil
}

func (m *mockStore) Remove(_ context.Context, objectKey string) error {
	delete(m.objects, objectKey)
	m.removed = append(m.removed, objectKey)
	return nil
}

type mockFiles struct {
	files map[string][]byte
}

func (m *mockFiles) Fetch(_ context.Context, fileID string) ([]byte, error) {
	data, ok := m.files[fileID]
	if !ok {
		return nil, fmt.Errorf("file unavailable: %s", fileID)
	}
	return data, nil
}

// mockPipeline scripts an outcome per image payload.
type mockPipeline struct {
	outcomes map[string]decode.Outcome
}

func (m *mockPipeline) Process(_ context.Context, img decode.Image) decode.Outcome {
	return m.outcomes[string(img.Data)]
}

type mockShipment struct {
	submitResult pochtoy.Result
	deleteResult pochtoy.Result

	calls       []string
	submissions []pochtoy.Shipment
	deletions   [][]string
}

func (m *mockShipment) Submit(_ context.Context, sh pochtoy.Shipment) pochtoy.Result {
	m.calls = append(m.calls, "submit")
	m.submissions = append(m.submissions, sh)
	return m.submitResult
}

func (m *mockShipment) Delete(_ context.Context, trackings []string) pochtoy.Result {
	m.calls = append(m.calls, "delete")
	m.deletions = append(m.deletions, trackings)
	return m.deleteResult
}

type sentAction struct {
	chatID        int64
	html          string
	correlationID string
	withRetry     bool
}

type mockNotifier struct {
	texts   []string
	actions []sentAction
}

func (m *mockNotifier) Send(_ int64, text string) error {
	m.texts = append(m.texts, text)
	return nil
}

func (m *mockNotifier) SendActions(chatID int64, html, correlationID string, withRetry bool) error {
	m.actions = append(m.actions, sentAction{chatID, html, correlationID, withRetry})
	return nil
}

func labelOutcome(decoder string, codes ...decode.Code) decode.Outcome {
	return decode.Outcome{
		Results:  codes,
		Timeline: []decode.TimelineEntry{{Decoder: decoder, Millis: 5, Count: len(codes)}},
	}
}

type fixture struct {
	repo     *mockRepo
	store    *mockStore
	files    *mockFiles
	pipeline *mockPipeline
	shipment *mockShipment
	notify   *mockNotifier
	orch     *Orchestrator
}

func newFixture() *fixture {
	f := &fixture{
		repo:     newMockRepo(),
		store:    newMockStore(),
		files:    &mockFiles{files: make(map[string][]byte)},
		pipeline: &mockPipeline{outcomes: make(map[string]decode.Outcome)},
		shipment: &mockShipment{submitResult: pochtoy.Result{Success: true}, deleteResult: pochtoy.Result{Success: true}},
		notify:   &mockNotifier{},
	}
	f.orch = New(f.repo, f.store, f.files, f.pipeline, f.shipment, f.notify, zerolog.Nop())
	return f
}

func TestProcessFlushCompletesAndSubmits(t *testing.T) {
	f := newFixture()
	f.files.files["f0"] = []byte("img0")
	f.files.files["f1"] = []byte("img1")
	f.files.files["f2"] = []byte("img2")
	f.pipeline.outcomes["img0"] = labelOutcome("zbar",
		decode.Code{Symbology: decode.SymbologyLabel, Data: "GG72712", Source: "gemini"},
		decode.Code{Symbology: decode.SymbologyLabel, Data: "Q26229", Source: "gemini"},
	)
	f.pipeline.outcomes["img1"] = labelOutcome("zbar",
		decode.Code{Symbology: "EAN-13", Data: "4006381333931", Source: "zbar"},
	)

	err := f.orch.ProcessFlush(context.Background(), 42, []buffer.Item{
		{FileID: "f0"}, {FileID: "f1"}, {FileID: "f2"},
	})
	require.NoError(t, err)

	b := f.repo.single(t)
	assert.Equal(t, repository.StatusCompleted, b.Status)
	assert.Equal(t, int64(42), b.ChatID)
	assert.Len(t, b.CorrelationID, 8)
	assert.True(t, b.Submitted)
	assert.Equal(t, []string{"GG72712"}, b.PrimaryLabels)
	assert.Equal(t, []string{"Q26229"}, b.SecondaryCodes)
	assert.Equal(t, []string{"4006381333931"}, b.Barcodes)
	assert.JSONEq(t, `{"success":true}`, string(b.SubmissionResponse))

	photos := f.repo.photos[b.ID]
	require.Len(t, photos, 3)
	for i, p := range photos {
		assert.Equal(t, i, p.Order)
		assert.Equal(t, i == 0, p.IsPrimary)
		assert.Equal(t, fmt.Sprintf("photos/%s_%d.jpg", b.CorrelationID, i), p.ObjectKey)
		assert.Contains(t, f.store.objects, p.ObjectKey)
	}

	require.Len(t, f.shipment.submissions, 1)
	sh := f.shipment.submissions[0]
	assert.Equal(t, b.CorrelationID, sh.CorrelationID)
	assert.Len(t, sh.Images, 3)
	assert.Equal(t, []string{"GG72712", "Q26229", "4006381333931"}, sh.Trackings)

	require.Len(t, f.notify.actions, 1)
	act := f.notify.actions[0]
	assert.Equal(t, int64(42), act.chatID)
	assert.Equal(t, b.CorrelationID, act.correlationID)
	assert.True(t, act.withRetry)
	assert.Contains(t, act.html, "✅ <b>GG label found (complete pair)</b>")
	assert.Contains(t, act.html, "✅ Sent to Pochtoy")
	assert.Contains(t, act.html, "📸 Photos: 3")
}

func TestProcessFlushPersistsOneRowPerPhoto(t *testing.T) {
	f := newFixture()
	items := make([]buffer.Item, 10)
	for i := range items {
		fileID := fmt.Sprintf("f%d", i)
		items[i] = buffer.Item{FileID: fileID}
		f.files.files[fileID] = []byte(fileID)
	}
	f.pipeline.outcomes["f0"] = labelOutcome("gemini",
		decode.Code{Symbology: decode.SymbologyLabel, Data: "GG100", Source: "gemini"},
		decode.Code{Symbology: decode.SymbologyLabel, Data: "Q12345", Source: "gemini"},
	)

	require.NoError(t, f.orch.ProcessFlush(context.Background(), 1, items))

	b := f.repo.single(t)
	assert.Len(t, f.repo.photos[b.ID], 10)
	assert.Len(t, f.shipment.submissions[0].Images, 10)
}

func TestProcessFlushWithoutLabelFails(t *testing.T) {
	f := newFixture()
	f.files.files["f0"] = []byte("img0")
	f.pipeline.outcomes["img0"] = labelOutcome("zbar",
		decode.Code{Symbology: "EAN-13", Data: "4006381333931", Source: "zbar"},
	)

	require.NoError(t, f.orch.ProcessFlush(context.Background(), 42, []buffer.Item{{FileID: "f0"}}))

	b := f.repo.single(t)
	assert.Equal(t, repository.StatusFailed, b.Status)
	assert.False(t, b.Submitted)
	assert.Empty(t, f.shipment.calls, "failed batch must never reach pochtoy")

	require.Len(t, f.notify.actions, 1)
	act := f.notify.actions[0]
	assert.False(t, act.withRetry, "no-label notification offers delete only")
	assert.Contains(t, act.html, "No GG label found")
}

func TestProcessFlushHalfPairStillSubmits(t *testing.T) {
	f := newFixture()
	f.files.files["f0"] = []byte("img0")
	f.pipeline.outcomes["img0"] = labelOutcome("gemini",
		decode.Code{Symbology: decode.SymbologyLabel, Data: "GG727", Source: "gemini"},
	)

	require.NoError(t, f.orch.ProcessFlush(context.Background(), 42, []buffer.Item{{FileID: "f0"}}))

	b := f.repo.single(t)
	assert.Equal(t, repository.StatusCompleted, b.Status)
	require.Len(t, f.shipment.submissions, 1)
	assert.Contains(t, f.notify.actions[0].html, "⚠️ <b>GG label incomplete</b>")
}

func TestProcessFlushBusinessErrorStoredVerbatim(t *testing.T) {
	f := newFixture()
	f.shipment.submitResult = pochtoy.Result{Success: false, Error: "Tracking already exists"}
	f.files.files["f0"] = []byte("img0")
	f.pipeline.outcomes["img0"] = labelOutcome("gemini",
		decode.Code{Symbology: decode.SymbologyLabel, Data: "GG72712", Source: "gemini"},
		decode.Code{Symbology: decode.SymbologyLabel, Data: "Q26229", Source: "gemini"},
	)

	require.NoError(t, f.orch.ProcessFlush(context.Background(), 42, []buffer.Item{{FileID: "f0"}}))

	b := f.repo.single(t)
	assert.Equal(t, repository.StatusCompleted, b.Status)
	assert.False(t, b.Submitted)
	assert.Contains(t, f.notify.actions[0].html, "❌ Pochtoy error: Tracking already exists")
	assert.True(t, f.notify.actions[0].withRetry, "a rejected batch stays retryable")
}

func TestProcessFlushSkipsUnfetchablePhoto(t *testing.T) {
	f := newFixture()
	f.files.files["ok"] = []byte("img")
	f.pipeline.outcomes["img"] = labelOutcome("gemini",
		decode.Code{Symbology: decode.SymbologyLabel, Data: "GG72712", Source: "gemini"},
		decode.Code{Symbology: decode.SymbologyLabel, Data: "Q26229", Source: "gemini"},
	)

	err := f.orch.ProcessFlush(context.Background(), 42, []buffer.Item{
		{FileID: "gone"}, {FileID: "ok"},
	})
	require.NoError(t, err)

	b := f.repo.single(t)
	assert.Equal(t, repository.StatusCompleted, b.Status)
	require.Len(t, f.repo.photos[b.ID], 1)
	assert.Len(t, f.shipment.submissions[0].Images, 1)
}

func seedBatch(f *fixture, status repository.BatchStatus) *repository.Batch {
	b := &repository.Batch{
		ID:             "batch-1",
		CorrelationID:  "abc12345",
		ChatID:         42,
		Status:         status,
		PrimaryLabels:  []string{"GG72712"},
		SecondaryCodes: []string{"Q26229"},
		Barcodes:       []string{"4006381333931"},
		Submitted:      status == repository.StatusCompleted,
	}
	f.repo.batches[b.ID] = b
	for i := 0; i < 2; i++ {
		key := fmt.Sprintf("photos/%s_%d.jpg", b.CorrelationID, i)
		f.repo.photos[b.ID] = append(f.repo.photos[b.ID], repository.Photo{
			ID: fmt.Sprintf("photo-%d", i), BatchID: b.ID,
			ObjectKey: key, Order: i, IsPrimary: i == 0,
		})
		f.store.objects[key] = []byte(fmt.Sprintf("stored%d", i))
	}
	return b
}

func TestRetryReprocessesStoredPhotos(t *testing.T) {
	f := newFixture()
	seedBatch(f, repository.StatusFailed)
	f.pipeline.outcomes["stored0"] = labelOutcome("gemini",
		decode.Code{Symbology: decode.SymbologyLabel, Data: "GG99999", Source: "gemini"},
		decode.Code{Symbology: decode.SymbologyLabel, Data: "Q55555", Source: "gemini"},
	)

	require.NoError(t, f.orch.Retry(context.Background(), 42, "abc12345"))

	// Old trackings are removed downstream before the batch is re-submitted.
	require.Equal(t, []string{"delete", "submit"}, f.shipment.calls)
	assert.Equal(t, []string{"GG72712", "Q26229", "4006381333931"}, f.shipment.deletions[0])

	b := f.repo.batches["batch-1"]
	assert.Equal(t, "abc12345", b.CorrelationID, "retry keeps the correlation token")
	assert.Equal(t, repository.StatusCompleted, b.Status)
	assert.True(t, b.Submitted)
	assert.Equal(t, []string{"GG99999"}, b.PrimaryLabels)
	assert.Equal(t, []string{"Q55555"}, b.SecondaryCodes)
	assert.Len(t, f.repo.photos["batch-1"], 2, "retry keeps the photo rows")

	sh := f.shipment.submissions[0]
	assert.Equal(t, "abc12345", sh.CorrelationID)
	assert.Len(t, sh.Images, 2)
	assert.Equal(t, []string{"GG99999", "Q55555"}, sh.Trackings)

	assert.Contains(t, f.notify.texts, "🔄 Reprocessing...")
	require.Len(t, f.notify.actions, 1)
	assert.Contains(t, f.notify.actions[0].html, "🔄 <b>Reprocessed</b>")
}

func TestRetryFailedSubmissionKeepsStatus(t *testing.T) {
	f := newFixture()
	seedBatch(f, repository.StatusFailed)
	f.shipment.submitResult = pochtoy.Result{Success: false, Error: "upstream down"}

	require.NoError(t, f.orch.Retry(context.Background(), 42, "abc12345"))

	b := f.repo.batches["batch-1"]
	assert.Equal(t, repository.StatusFailed, b.Status, "status flips only on a successful re-submission")
	assert.False(t, b.Submitted)
}

func TestRetryUnknownCorrelation(t *testing.T) {
	f := newFixture()

	require.NoError(t, f.orch.Retry(context.Background(), 42, "nope"))

	assert.Equal(t, []string{"❌ Batch not found"}, f.notify.texts)
	assert.Empty(t, f.shipment.calls)
}

func TestDeleteRemovesEverything(t *testing.T) {
	f := newFixture()
	seedBatch(f, repository.StatusCompleted)

	require.NoError(t, f.orch.Delete(context.Background(), 42, "abc12345"))

	assert.Empty(t, f.repo.batches)
	assert.Empty(t, f.repo.photos["batch-1"])
	assert.Len(t, f.store.removed, 2)
	assert.Equal(t, [][]string{{"GG72712", "Q26229", "4006381333931"}}, f.shipment.deletions)
	assert.Equal(t, []string{"🗑️ Deleted: abc12345"}, f.notify.texts)
}

func TestDeleteIsIdempotent(t *testing.T) {
	f := newFixture()
	seedBatch(f, repository.StatusCompleted)

	require.NoError(t, f.orch.Delete(context.Background(), 42, "abc12345"))
	require.NoError(t, f.orch.Delete(context.Background(), 42, "abc12345"))

	assert.Len(t, f.notify.texts, 1, "a repeated delete callback stays silent")
	assert.Len(t, f.shipment.deletions, 1)
}

func TestTrackingsUnionDeduplicates(t *testing.T) {
	got := trackings([]string{"GG1", "GG2"}, []string{"Q1", "GG1"}, []string{"123", "Q1"})
	assert.Equal(t, []string{"GG1", "GG2", "Q1", "123"}, got)
}

func TestNewCorrelationIDShape(t *testing.T) {
	seen := make(map[string]struct{})
	for i := 0; i < 100; i++ {
		id := newCorrelationID()
		require.Len(t, id, 8)
		for _, r := range id {
			assert.Contains(t, correlationAlphabet, string(r))
		}
		seen[id] = struct{}{}
	}
	assert.Greater(t, len(seen), 90, "tokens must not collide in practice")
}
