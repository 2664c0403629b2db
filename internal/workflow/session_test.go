package workflow

import (
	"context"
	"errors"
	"log/slog"
	"os"
	"sync"
	"testing"
	"time"

	"github.com/dukerupert/handover"
	"github.com/dukerupert/handover/internal/catalog"
	"github.com/dukerupert/handover/mock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testChecklist = `
phases:
  - phase: on_delivery
    evidence: Photo of the defect
    sections:
      - id: exterior
        name: Exterior
        items:
          - id: paint
            name: Paint
          - id: glass
            name: Glass
          - id: wheels
            name: Wheels
  - phase: test_drive
    sections:
      - id: drive
        name: Driving
        items:
          - id: brakes
            name: Brakes
`

// fakeBackend is an in-memory server. Failure fields make the next calls
// fail with the given error.
type fakeBackend struct {
	mu     sync.Mutex
	byNum  map[string]*handover.Inspection
	nextID int64
	clock  time.Time

	failFind     error
	failUpdate   error
	failPhase    error
	failReport   error
	updates      int
	reportRuns   int
	completeRuns int

	// When release is set, UpdateInspection signals entered and waits for
	// release to close before applying the update.
	entered chan struct{}
	release chan struct{}
}

func newFakeBackend() *fakeBackend {
	return &fakeBackend{
		byNum: make(map[string]*handover.Inspection),
		clock: time.Date(2026, 4, 1, 9, 0, 0, 0, time.UTC),
	}
}

func (b *fakeBackend) tick() time.Time {
	b.clock = b.clock.Add(time.Second)
	return b.clock
}

func (b *fakeBackend) get(orderNumber string) *handover.Inspection {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.byNum[orderNumber].Clone()
}

func (b *fakeBackend) byID(id int64) *handover.Inspection {
	for _, in := range b.byNum {
		if in.ID == id {
			return in
		}
	}
	return nil
}

func (b *fakeBackend) FindInspectionByOrderNumber(ctx context.Context, orderNumber string) (*handover.Inspection, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.failFind != nil {
		return nil, b.failFind
	}
	in, ok := b.byNum[orderNumber]
	if !ok {
		return nil, handover.NotFound("No inspection for order %s", orderNumber)
	}
	return in.Clone(), nil
}

func (b *fakeBackend) CreateInspection(ctx context.Context, in *handover.Inspection) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.nextID++
	in.ID = b.nextID
	in.CreatedAt = b.tick()
	in.UpdatedAt = in.CreatedAt
	b.byNum[in.OrderNumber] = in.Clone()
	return nil
}

func (b *fakeBackend) UpdateInspection(ctx context.Context, id int64, upd handover.InspectionUpdate) (*handover.Inspection, error) {
	b.mu.Lock()
	if b.failUpdate != nil {
		err := b.failUpdate
		b.mu.Unlock()
		return nil, err
	}
	release := b.release
	b.mu.Unlock()

	if release != nil {
		select {
		case b.entered <- struct{}{}:
		default:
		}
		<-release
	}

	b.mu.Lock()
	defer b.mu.Unlock()
	in := b.byID(id)
	if in == nil {
		return nil, handover.NotFound("Inspection not found")
	}
	b.updates++
	upd.Apply(in)
	in.UpdatedAt = b.tick()
	return in.Clone(), nil
}

func (b *fakeBackend) CompletePhase(ctx context.Context, id int64, phase handover.Phase, signature string) (*handover.PhaseCompletion, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.failPhase != nil {
		return nil, b.failPhase
	}
	in := b.byID(id)
	if err := in.CompletePhase(phase, signature, b.tick()); err != nil {
		return nil, err
	}
	in.UpdatedAt = b.clock
	if phase != handover.PhaseTestDrive {
		return &handover.PhaseCompletion{Inspection: in.Clone()}, nil
	}

	in.Status = handover.StatusTestDriveCompleted
	result, err := b.report(in)
	if err != nil {
		return nil, err
	}
	return &handover.PhaseCompletion{Inspection: in.Clone(), Report: result}, nil
}

func (b *fakeBackend) CompleteInspection(ctx context.Context, id int64) (*handover.CompletionResult, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.completeRuns++
	return b.report(b.byID(id))
}

func (b *fakeBackend) report(in *handover.Inspection) (*handover.CompletionResult, error) {
	b.reportRuns++
	if b.failReport != nil {
		return nil, b.failReport
	}
	in.Status = handover.StatusFinalCompleted
	return &handover.CompletionResult{
		Success:   true,
		ReportID:  1,
		FileName:  handover.ReportFileName(in.OrderNumber),
		EmailSent: true,
	}, nil
}

type harness struct {
	backend *fakeBackend
	drafts  *mock.DraftCache
	orders  *mock.OrderLookup
	cfg     Config
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	c, err := catalog.Parse([]byte(testChecklist))
	require.NoError(t, err)

	h := &harness{
		backend: newFakeBackend(),
		drafts:  &mock.DraftCache{},
		orders: &mock.OrderLookup{
			LookupOrderFn: func(ctx context.Context, orderNumber string) (*handover.Order, error) {
				return &handover.Order{
					OrderNumber:   orderNumber,
					VIN:           "5YJ3E1EA7KF000001",
					CustomerName:  "Ada",
					CustomerEmail: "ada@example.com",
				}, nil
			},
		},
	}
	h.cfg = Config{
		Backend:  h.backend,
		Orders:   h.orders,
		Catalog:  c,
		Drafts:   h.drafts,
		Logger:   slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelError})),
		Uploader: &mock.MediaUploader{},
		Now: func() time.Time {
			h.backend.mu.Lock()
			defer h.backend.mu.Unlock()
			return h.backend.clock.Add(time.Hour)
		},
	}
	return h
}

func (h *harness) open(t *testing.T) *Session {
	t.Helper()
	s, err := Open(context.Background(), h.cfg, "RN123")
	require.NoError(t, err)
	return s
}

func pass(t *testing.T, s *Session, ids ...string) {
	t.Helper()
	status := handover.ItemPassed
	for _, id := range ids {
		require.NoError(t, s.UpdateItemByID(context.Background(), id, handover.ItemPatch{Status: &status}))
	}
}

func TestOpen_CreatesFromCatalogAndOrder(t *testing.T) {
	h := newHarness(t)
	s := h.open(t)

	in := s.Inspection()
	assert.NotZero(t, in.ID)
	assert.Equal(t, "5YJ3E1EA7KF000001", in.VIN)
	assert.Equal(t, 4, in.TotalItems)
	assert.Equal(t, handover.StatusOnDeliveryPending, in.Status)
	assert.False(t, s.TestDriveUnlocked())

	// Reopening loads the stored inspection.
	again := h.open(t)
	assert.Equal(t, in.ID, again.Inspection().ID)
	assert.Equal(t, int64(1), h.backend.nextID)
}

func TestOpen_OrderLookupFails(t *testing.T) {
	h := newHarness(t)
	h.orders.LookupOrderFn = func(ctx context.Context, orderNumber string) (*handover.Order, error) {
		return nil, handover.Unavailable("Order lookup failed", errors.New("connection refused"))
	}

	s := h.open(t)
	in := s.Inspection()
	assert.Equal(t, "7SAYGDEF*NF123456", in.VIN)
	assert.Equal(t, "Tesla Customer", in.CustomerName)
	assert.Equal(t, "RN123", in.OrderNumber)
	assert.Equal(t, 4, in.TotalItems)
}

func TestSession_CompleteOnDelivery(t *testing.T) {
	h := newHarness(t)
	s := h.open(t)
	ctx := context.Background()

	pass(t, s, "paint", "glass")
	assert.False(t, s.CanCompletePhase(handover.PhaseOnDelivery))

	_, err := s.CompletePhase(ctx, handover.PhaseOnDelivery, "sig")
	assert.Equal(t, handover.EINVALID, handover.ErrorCode(err))

	pass(t, s, "wheels")
	assert.True(t, s.CanCompletePhase(handover.PhaseOnDelivery))

	result, err := s.CompletePhase(ctx, handover.PhaseOnDelivery, "sig")
	require.NoError(t, err)
	assert.Nil(t, result)

	in := s.Inspection()
	assert.Equal(t, handover.StatusTestDrivePending, in.Status)
	assert.Equal(t, handover.PhaseStatusCompleted, in.OnDelivery.Status)
	assert.True(t, s.TestDriveUnlocked())
	assert.False(t, s.CanCompletePhase(handover.PhaseOnDelivery))
	assert.Equal(t, handover.StatusTestDrivePending, h.backend.get("RN123").Status)
}

func TestSession_WriteThroughFailure(t *testing.T) {
	h := newHarness(t)
	s := h.open(t)
	ctx := context.Background()

	h.backend.failUpdate = handover.Unavailable("Network error", errors.New("offline"))
	failed := handover.ItemFailed
	notes := "scratch on door"
	err := s.UpdateItemByID(ctx, "paint", handover.ItemPatch{Status: &failed, Notes: &notes})
	assert.Equal(t, handover.EUNAVAILABLE, handover.ErrorCode(err))

	// Local state is kept and flagged.
	assert.True(t, s.Unsaved())
	item, _ := s.Inspection().Item("paint")
	assert.Equal(t, handover.ItemFailed, item.Status)
	assert.Equal(t, 1, s.Inspection().FailedItems)

	draft, err := h.drafts.Load()
	require.NoError(t, err)
	assert.True(t, draft.Unsaved)

	h.backend.failUpdate = nil
	require.NoError(t, s.Flush(ctx))
	assert.False(t, s.Unsaved())

	stored, _ := h.backend.get("RN123").Item("paint")
	assert.Equal(t, handover.ItemFailed, stored.Status)
	assert.Equal(t, "scratch on door", stored.Notes)
}

func TestSession_UpdateItemOutOfRange(t *testing.T) {
	h := newHarness(t)
	s := h.open(t)
	status := handover.ItemPassed

	err := s.UpdateItem(context.Background(), 5, 0, handover.ItemPatch{Status: &status})
	assert.Equal(t, handover.EINVALID, handover.ErrorCode(err))
	assert.Equal(t, 0, h.backend.updates)
}

func TestSession_IdempotentPatch(t *testing.T) {
	h := newHarness(t)
	s := h.open(t)
	ctx := context.Background()

	failed := handover.ItemFailed
	notes := "dent"
	patch := handover.ItemPatch{Status: &failed, Notes: &notes}
	require.NoError(t, s.UpdateItem(ctx, 0, 1, patch))
	once := s.Inspection()
	require.NoError(t, s.UpdateItem(ctx, 0, 1, patch))
	twice := s.Inspection()

	assert.Equal(t, once.Sections, twice.Sections)
	assert.Equal(t, once.Totals(), twice.Totals())
}

func TestSession_FinalCompletion(t *testing.T) {
	h := newHarness(t)
	s := h.open(t)
	ctx := context.Background()

	pass(t, s, "paint", "glass", "wheels")
	_, err := s.CompletePhase(ctx, handover.PhaseOnDelivery, "sig-1")
	require.NoError(t, err)
	pass(t, s, "brakes")

	result, err := s.CompletePhase(ctx, handover.PhaseTestDrive, "sig-2")
	require.NoError(t, err)
	require.NotNil(t, result)
	assert.True(t, result.Success)
	assert.Equal(t, 1, h.backend.reportRuns)

	assert.Equal(t, handover.StatusFinalCompleted, s.Inspection().Status)
	assert.False(t, s.CompletionPending())

	draft, err := h.drafts.Load()
	require.NoError(t, err)
	assert.Nil(t, draft)
}

func TestSession_ReportFailureThenFlush(t *testing.T) {
	h := newHarness(t)
	s := h.open(t)
	ctx := context.Background()

	pass(t, s, "paint", "glass", "wheels")
	_, err := s.CompletePhase(ctx, handover.PhaseOnDelivery, "sig-1")
	require.NoError(t, err)
	pass(t, s, "brakes")

	h.backend.failReport = handover.Unavailable("Failed to complete inspection", errors.New("smtp"))
	_, err = s.CompletePhase(ctx, handover.PhaseTestDrive, "sig-2")
	assert.Equal(t, handover.EUNAVAILABLE, handover.ErrorCode(err))
	assert.True(t, s.CompletionPending())
	assert.Equal(t, handover.PhaseStatusCompleted, s.Inspection().TestDrive.Status)

	draft, err := h.drafts.Load()
	require.NoError(t, err)
	assert.True(t, draft.CompletionPending)

	h.backend.failReport = nil
	require.NoError(t, s.Flush(ctx))
	assert.Equal(t, 1, h.backend.completeRuns)
	assert.False(t, s.CompletionPending())
	assert.Equal(t, handover.StatusFinalCompleted, s.Inspection().Status)
	require.NotNil(t, s.Result())

	draft, err = h.drafts.Load()
	require.NoError(t, err)
	assert.Nil(t, draft)
}

func TestSession_OfflineSignatureReplayed(t *testing.T) {
	h := newHarness(t)
	s := h.open(t)
	ctx := context.Background()

	pass(t, s, "paint", "glass", "wheels")
	h.backend.failPhase = handover.Errorf(handover.ETIMEOUT, "Request timed out")
	_, err := s.CompletePhase(ctx, handover.PhaseOnDelivery, "sig-1")
	assert.Equal(t, handover.ETIMEOUT, handover.ErrorCode(err))
	assert.True(t, s.CompletionPending())
	assert.True(t, s.TestDriveUnlocked())
	assert.Equal(t, handover.PhaseStatusPending, h.backend.get("RN123").OnDelivery.Status)

	h.backend.failPhase = nil
	require.NoError(t, s.Flush(ctx))
	assert.False(t, s.CompletionPending())
	stored := h.backend.get("RN123")
	assert.Equal(t, handover.PhaseStatusCompleted, stored.OnDelivery.Status)
	assert.Equal(t, "sig-1", stored.OnDelivery.Signature)
}

func TestSession_ServerRejectsPhase(t *testing.T) {
	h := newHarness(t)
	s := h.open(t)
	pass(t, s, "paint", "glass", "wheels")

	h.backend.failPhase = handover.Invalid("Phase On Delivery cannot be completed yet")
	_, err := s.CompletePhase(context.Background(), handover.PhaseOnDelivery, "sig")
	assert.Equal(t, handover.EINVALID, handover.ErrorCode(err))
	assert.False(t, s.CompletionPending())
	assert.Equal(t, handover.PhaseStatusPending, s.Inspection().OnDelivery.Status)
}

func TestOpen_RecoversNewerDraft(t *testing.T) {
	h := newHarness(t)
	s := h.open(t)

	h.backend.failUpdate = handover.Unavailable("Network error", nil)
	notes := "offline note"
	_ = s.UpdateItemByID(context.Background(), "glass", handover.ItemPatch{Notes: &notes})
	h.backend.failUpdate = nil

	reopened := h.open(t)
	assert.True(t, reopened.Unsaved())
	item, _ := reopened.Inspection().Item("glass")
	assert.Equal(t, "offline note", item.Notes)

	require.NoError(t, reopened.Flush(context.Background()))
	stored, _ := h.backend.get("RN123").Item("glass")
	assert.Equal(t, "offline note", stored.Notes)
}

func TestOpen_OfflineWithDraft(t *testing.T) {
	h := newHarness(t)
	s := h.open(t)
	id := s.Inspection().ID

	h.backend.failFind = handover.Unavailable("Network error", nil)
	reopened := h.open(t)
	assert.Equal(t, id, reopened.Inspection().ID)
	assert.True(t, reopened.Unsaved())

	h.drafts.Clear()
	_, err := Open(context.Background(), h.cfg, "RN123")
	assert.Equal(t, handover.EUNAVAILABLE, handover.ErrorCode(err))
}

func TestSession_UpdateDetails(t *testing.T) {
	h := newHarness(t)
	s := h.open(t)

	km := 42
	lang := "de"
	require.NoError(t, s.UpdateDetails(context.Background(), Details{TestDriveKilometers: &km, Language: &lang}))

	stored := h.backend.get("RN123")
	assert.Equal(t, 42, stored.TestDriveKilometers)
	assert.Equal(t, "de", stored.Language)
}

func TestSession_NewCapture(t *testing.T) {
	h := newHarness(t)
	s := h.open(t)
	ctx := context.Background()

	_, err := s.NewCapture("missing")
	assert.Equal(t, handover.ENOTFOUND, handover.ErrorCode(err))

	p, err := s.NewCapture("paint")
	require.NoError(t, err)
	defer p.Close()

	jpeg := append([]byte{0xFF, 0xD8, 0xFF, 0xE0, 0x00, 0x10, 'J', 'F', 'I', 'F', 0x00}, make([]byte, 32)...)
	att, err := p.UploadFile(ctx, "door.jpg", jpeg)
	require.NoError(t, err)
	assert.Equal(t, handover.MediaPhoto, att.Kind)

	item, _ := s.Inspection().Item("paint")
	require.Len(t, item.Media, 1)
	stored, _ := h.backend.get("RN123").Item("paint")
	assert.Len(t, stored.Media, 1)
}

func TestSession_ReadsDuringSave(t *testing.T) {
	h := newHarness(t)
	s := h.open(t)
	ctx := context.Background()

	h.backend.entered = make(chan struct{}, 1)
	h.backend.release = make(chan struct{})

	failed := handover.ItemFailed
	done := make(chan error, 1)
	go func() {
		done <- s.UpdateItemByID(ctx, "paint", handover.ItemPatch{Status: &failed})
	}()
	<-h.backend.entered

	read := make(chan *handover.Inspection, 1)
	go func() { read <- s.Inspection() }()
	select {
	case in := <-read:
		item, _ := in.Item("paint")
		assert.Equal(t, handover.ItemFailed, item.Status, "optimistic state is visible")
		assert.Equal(t, 1, in.FailedItems)
	case <-time.After(time.Second):
		t.Fatal("Inspection blocked while a save was in flight")
	}
	assert.True(t, s.Unsaved())
	assert.False(t, s.CanCompletePhase(handover.PhaseOnDelivery))

	close(h.backend.release)
	require.NoError(t, <-done)
	assert.False(t, s.Unsaved())
}

func TestSession_StaleSaveKeepsUnsaved(t *testing.T) {
	h := newHarness(t)
	s := h.open(t)
	ctx := context.Background()

	h.backend.entered = make(chan struct{}, 1)
	h.backend.release = make(chan struct{})

	failed := handover.ItemFailed
	first := make(chan error, 1)
	go func() {
		first <- s.UpdateItemByID(ctx, "paint", handover.ItemPatch{Status: &failed})
	}()
	<-h.backend.entered

	// A second edit lands locally while the first save is in flight.
	notes := "chip on hood"
	second := make(chan error, 1)
	go func() {
		second <- s.UpdateItemByID(ctx, "glass", handover.ItemPatch{Notes: &notes})
	}()
	require.Eventually(t, func() bool {
		item, _ := s.Inspection().Item("glass")
		return item.Notes == notes
	}, time.Second, 5*time.Millisecond)

	// The first save succeeds; the second one cannot reach the server.
	h.backend.mu.Lock()
	h.backend.failUpdate = handover.Unavailable("Network error", nil)
	h.backend.mu.Unlock()
	close(h.backend.release)

	require.NoError(t, <-first)
	assert.Equal(t, handover.EUNAVAILABLE, handover.ErrorCode(<-second))
	assert.True(t, s.Unsaved(), "the first response predates the second edit")

	stored, _ := h.backend.get("RN123").Item("glass")
	assert.Empty(t, stored.Notes)

	h.backend.mu.Lock()
	h.backend.failUpdate = nil
	h.backend.mu.Unlock()
	require.NoError(t, s.Flush(ctx))
	assert.False(t, s.Unsaved())
	stored, _ = h.backend.get("RN123").Item("glass")
	assert.Equal(t, notes, stored.Notes)
}

func TestSession_TestDriveLocked(t *testing.T) {
	h := newHarness(t)
	s := h.open(t)
	ctx := context.Background()
	passed := handover.ItemPassed

	err := s.UpdateItemByID(ctx, "brakes", handover.ItemPatch{Status: &passed})
	assert.Equal(t, handover.EINVALID, handover.ErrorCode(err))
	item, _ := s.Inspection().Item("brakes")
	assert.Equal(t, handover.ItemPending, item.Status)
	assert.Equal(t, 0, h.backend.updates)

	err = s.UpdateItem(ctx, 1, 0, handover.ItemPatch{Status: &passed})
	assert.Equal(t, handover.EINVALID, handover.ErrorCode(err))

	_, err = s.NewCapture("brakes")
	assert.Equal(t, handover.EINVALID, handover.ErrorCode(err))

	t.Run("offline signature is refused", func(t *testing.T) {
		// A draft that already has the test drive item passed.
		in := s.Inspection()
		require.NoError(t, in.UpdateItemByID("brakes", handover.ItemPatch{Status: &passed}))
		require.NoError(t, h.drafts.Save(&handover.DraftSnapshot{Inspection: in, SavedAt: h.cfg.Now(), Unsaved: true}))

		reopened := h.open(t)
		require.False(t, reopened.TestDriveUnlocked())
		require.True(t, reopened.CanCompletePhase(handover.PhaseTestDrive))

		h.backend.failUpdate = handover.Unavailable("Network error", nil)
		h.backend.failPhase = handover.Unavailable("Network error", nil)
		_, err := reopened.CompletePhase(ctx, handover.PhaseTestDrive, "sig")
		assert.Equal(t, handover.EINVALID, handover.ErrorCode(err))

		got := reopened.Inspection()
		assert.Equal(t, handover.StatusOnDeliveryPending, got.Status)
		assert.Equal(t, handover.PhaseStatusPending, got.TestDrive.Status)
		assert.False(t, reopened.CompletionPending())

		draft, err := h.drafts.Load()
		require.NoError(t, err)
		assert.Equal(t, handover.PhaseStatusPending, draft.Inspection.TestDrive.Status)
		assert.False(t, draft.CompletionPending)
	})
}

func TestSession_OfflineSignWithUnsavedEdits(t *testing.T) {
	h := newHarness(t)
	s := h.open(t)
	ctx := context.Background()

	h.backend.failUpdate = handover.Unavailable("Network error", nil)
	passed := handover.ItemPassed
	for _, id := range []string{"paint", "glass", "wheels"} {
		_ = s.UpdateItemByID(ctx, id, handover.ItemPatch{Status: &passed})
	}
	require.True(t, s.Unsaved())

	_, err := s.CompletePhase(ctx, handover.PhaseOnDelivery, "sig-1")
	assert.Equal(t, handover.EUNAVAILABLE, handover.ErrorCode(err))
	assert.True(t, s.CompletionPending())
	assert.True(t, s.TestDriveUnlocked())

	h.backend.failUpdate = nil
	require.NoError(t, s.Flush(ctx))
	assert.False(t, s.Unsaved())
	assert.False(t, s.CompletionPending())
	stored := h.backend.get("RN123")
	assert.Equal(t, handover.PhaseStatusCompleted, stored.OnDelivery.Status)
	assert.Equal(t, 3, stored.CompletedItems)
}
