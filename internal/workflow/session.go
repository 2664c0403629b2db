// Package workflow drives one inspection from the inspector's side.
//
// A Session applies every change to its local copy first and then writes it
// through to the server. The state lock is never held across a network call,
// so reads see the optimistic local state while a write is in flight. A
// failed write never rolls the local state back; it leaves the session marked
// unsaved until Flush succeeds. A draft snapshot is saved after every
// mutation so a restarted client resumes where it stopped.
package workflow

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/dukerupert/handover"
	"github.com/dukerupert/handover/internal/capture"
	"github.com/dukerupert/handover/internal/catalog"
	"github.com/dukerupert/handover/internal/orders"
)

// Backend is the server API a session writes through to.
type Backend interface {
	FindInspectionByOrderNumber(ctx context.Context, orderNumber string) (*handover.Inspection, error)
	CreateInspection(ctx context.Context, inspection *handover.Inspection) error
	UpdateInspection(ctx context.Context, id int64, upd handover.InspectionUpdate) (*handover.Inspection, error)

	// CompletePhase signs a phase on the server. Signing the test drive also
	// runs report completion.
	CompletePhase(ctx context.Context, id int64, phase handover.Phase, signature string) (*handover.PhaseCompletion, error)

	// CompleteInspection reruns report completion for a signed inspection.
	CompleteInspection(ctx context.Context, id int64) (*handover.CompletionResult, error)
}

// Config holds the collaborators of a session.
type Config struct {
	Backend Backend

	// Orders is consulted when the order has no inspection yet. Failures
	// fall back to the placeholder order.
	Orders  handover.OrderLookup
	Catalog *catalog.Catalog
	Drafts  handover.DraftCache
	Logger  *slog.Logger

	// Uploader and Camera serve capture pipelines created by NewCapture.
	Uploader handover.MediaUploader
	Camera   capture.Camera

	Now func() time.Time
}

// Session is the client-side state machine for one inspection.
type Session struct {
	cfg    Config
	logger *slog.Logger

	// syncMu serializes server writes so they arrive in order. It is taken
	// before mu, never after.
	syncMu sync.Mutex

	mu                sync.Mutex
	inspection        *handover.Inspection
	version           uint64 // bumped by every local edit
	unsaved           bool
	completionPending bool
	result            *handover.CompletionResult
}

// Open loads the inspection for orderNumber, creating it from the catalog
// and the order lookup when it does not exist. A draft holding unsaved work
// that is newer than the server copy replaces it.
func Open(ctx context.Context, cfg Config, orderNumber string) (*Session, error) {
	if orderNumber == "" {
		return nil, handover.Invalid("Order number is required")
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}

	s := &Session{
		cfg:    cfg,
		logger: cfg.Logger.With(slog.String("order_number", orderNumber)),
	}

	draft, err := cfg.Drafts.Load()
	if err != nil {
		s.logger.Warn("ignoring unreadable draft", slog.String("error", err.Error()))
		draft = nil
	}
	if draft != nil && (draft.Inspection == nil || draft.Inspection.OrderNumber != orderNumber) {
		draft = nil
	}

	in, err := s.load(ctx, orderNumber)
	switch {
	case err != nil && draft != nil && handover.Retryable(err):
		// Server unreachable: continue from the draft.
		s.logger.Warn("server unavailable, resuming from draft", slog.String("error", err.Error()))
		s.inspection = draft.Inspection
		s.unsaved = true
		s.completionPending = draft.CompletionPending
	case err != nil:
		return nil, err
	case draft != nil && (draft.Unsaved || draft.CompletionPending) && draft.SavedAt.After(in.UpdatedAt):
		s.logger.Info("recovered draft",
			slog.Int64("inspection_id", in.ID),
			slog.Time("saved_at", draft.SavedAt))
		s.inspection = draft.Inspection
		if s.inspection.ID == 0 {
			s.inspection.ID = in.ID
		}
		s.unsaved = draft.Unsaved
		s.completionPending = draft.CompletionPending
	default:
		s.inspection = in
	}

	s.saveDraft()
	return s, nil
}

func (s *Session) load(ctx context.Context, orderNumber string) (*handover.Inspection, error) {
	in, err := s.cfg.Backend.FindInspectionByOrderNumber(ctx, orderNumber)
	if err == nil {
		return in, nil
	}
	if !handover.IsErrorCode(err, handover.ENOTFOUND) {
		return nil, err
	}

	order, _ := orders.WithFallback(s.cfg.Orders, s.logger).LookupOrder(ctx, orderNumber)
	in = handover.NewInspection(order, s.cfg.Catalog.Sections())
	if err := s.cfg.Backend.CreateInspection(ctx, in); err != nil {
		if handover.IsErrorCode(err, handover.ECONFLICT) {
			return s.cfg.Backend.FindInspectionByOrderNumber(ctx, orderNumber)
		}
		return nil, err
	}

	s.logger.Info("inspection created",
		slog.Int64("inspection_id", in.ID),
		slog.Bool("placeholder_order", order.Placeholder))
	return in, nil
}

// Inspection returns a copy of the local state.
func (s *Session) Inspection() *handover.Inspection {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.inspection.Clone()
}

// Unsaved reports whether local changes have not reached the server.
func (s *Session) Unsaved() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.unsaved
}

// CompletionPending reports whether a signed phase or the final report has
// not been confirmed by the server.
func (s *Session) CompletionPending() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.completionPending
}

// Result returns the report completion outcome once the inspection is final.
func (s *Session) Result() *handover.CompletionResult {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.result
}

// CanCompletePhase reports whether the phase may be signed.
func (s *Session) CanCompletePhase(phase handover.Phase) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.inspection.CanCompletePhase(phase)
}

// TestDriveUnlocked reports whether the test drive may begin.
func (s *Session) TestDriveUnlocked() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.inspection.TestDriveUnlocked()
}

// UpdateItem applies patch locally and writes the item tree through. A
// failed write keeps the change, marks the session unsaved, and returns the
// error. Test-drive items cannot be changed while the test drive is locked.
func (s *Session) UpdateItem(ctx context.Context, sectionIdx, itemIdx int, patch handover.ItemPatch) error {
	return s.edit(ctx, func(in *handover.Inspection) error {
		if sectionIdx >= 0 && sectionIdx < len(in.Sections) {
			if items := in.Sections[sectionIdx].Items; itemIdx >= 0 && itemIdx < len(items) {
				if err := checkUnlocked(in, items[itemIdx]); err != nil {
					return err
				}
			}
		}
		return in.UpdateItem(sectionIdx, itemIdx, patch)
	})
}

// UpdateItemByID is UpdateItem addressed by item ID.
func (s *Session) UpdateItemByID(ctx context.Context, itemID string, patch handover.ItemPatch) error {
	return s.edit(ctx, func(in *handover.Inspection) error {
		if it, ok := in.Item(itemID); ok {
			if err := checkUnlocked(in, it); err != nil {
				return err
			}
		}
		return in.UpdateItemByID(itemID, patch)
	})
}

func checkUnlocked(in *handover.Inspection, it handover.Item) error {
	if it.Stage == handover.PhaseTestDrive && !in.TestDriveUnlocked() {
		return handover.Invalid("The test drive is locked until the on-delivery phase is signed")
	}
	return nil
}

// AttachMedia appends an uploaded attachment to an item.
func (s *Session) AttachMedia(ctx context.Context, itemID string, att *handover.MediaAttachment) error {
	return s.UpdateItemByID(ctx, itemID, handover.ItemPatch{AppendMedia: []handover.MediaAttachment{*att}})
}

// Details are the inspection fields an inspector may edit.
type Details struct {
	TestDriveKilometers *int
	RepresentativeName  *string
	CustomerEmail       *string
	Language            *string
}

// UpdateDetails applies d locally and writes it through.
func (s *Session) UpdateDetails(ctx context.Context, d Details) error {
	return s.edit(ctx, func(in *handover.Inspection) error {
		handover.InspectionUpdate{
			TestDriveKilometers: d.TestDriveKilometers,
			RepresentativeName:  d.RepresentativeName,
			CustomerEmail:       d.CustomerEmail,
			Language:            d.Language,
		}.Apply(in)
		return nil
	})
}

// contentUpdate carries everything the inspector edits directly. Phase
// records and status move only through CompletePhase.
func contentUpdate(i *handover.Inspection) handover.InspectionUpdate {
	c := i.Clone()
	return handover.InspectionUpdate{
		Sections:            c.Sections,
		TestDriveKilometers: &c.TestDriveKilometers,
		RepresentativeName:  &c.RepresentativeName,
		CustomerEmail:       &c.CustomerEmail,
		Language:            &c.Language,
	}
}

// edit applies fn to the local state, then writes the result through.
func (s *Session) edit(ctx context.Context, fn func(in *handover.Inspection) error) error {
	s.mu.Lock()
	if err := fn(s.inspection); err != nil {
		s.mu.Unlock()
		return err
	}
	s.version++
	s.unsaved = true
	s.saveDraftLocked()
	s.mu.Unlock()

	s.syncMu.Lock()
	defer s.syncMu.Unlock()
	return s.push(ctx)
}

// push sends the current content to the server. The caller holds syncMu.
// A response only clears the unsaved flag when no edit happened while it
// was in flight.
func (s *Session) push(ctx context.Context) error {
	s.mu.Lock()
	if !s.unsaved {
		// An earlier push already carried this edit.
		s.mu.Unlock()
		return nil
	}
	id, version, upd := s.inspection.ID, s.version, contentUpdate(s.inspection)
	s.mu.Unlock()

	updated, err := s.cfg.Backend.UpdateInspection(ctx, id, upd)

	s.mu.Lock()
	defer s.mu.Unlock()
	if err != nil {
		s.logger.Error("saving inspection failed",
			slog.Int64("inspection_id", id),
			slog.String("error", err.Error()))
		return err
	}

	if updated.UpdatedAt.After(s.inspection.UpdatedAt) {
		s.inspection.UpdatedAt = updated.UpdatedAt
	}
	if version == s.version {
		s.unsaved = false
	}
	s.saveDraftLocked()
	return nil
}

// CompletePhase signs a phase. The phase must be eligible locally and the
// test drive must be unlocked. Unsaved item changes and earlier unconfirmed
// signatures are flushed first so the server sees the same state.
//
// When the server cannot be reached the signature is kept locally and the
// session is marked completion pending; Flush retries it. For the test drive
// the returned result describes the generated report.
func (s *Session) CompletePhase(ctx context.Context, phase handover.Phase, signature string) (*handover.CompletionResult, error) {
	if signature == "" {
		return nil, handover.Invalid("Signature is required")
	}

	s.syncMu.Lock()
	defer s.syncMu.Unlock()

	s.mu.Lock()
	err := checkPhase(s.inspection, phase)
	id := s.inspection.ID
	s.mu.Unlock()
	if err != nil {
		return nil, err
	}

	if err := s.flush(ctx); err != nil {
		if !handover.Retryable(err) {
			return nil, err
		}
		return nil, s.signLocally(phase, signature, err)
	}

	resp, err := s.cfg.Backend.CompletePhase(ctx, id, phase, signature)
	if err != nil {
		if !handover.Retryable(err) {
			return nil, err
		}
		return nil, s.signLocally(phase, signature, err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.adoptLocked(resp.Inspection)
	if resp.Report != nil {
		s.finishLocked(resp.Report)
		return resp.Report, nil
	}
	s.saveDraftLocked()
	return nil, nil
}

func checkPhase(in *handover.Inspection, phase handover.Phase) error {
	if phase == handover.PhaseTestDrive && !in.TestDriveUnlocked() {
		return handover.Invalid("The on-delivery phase must be signed first")
	}
	if !in.CanCompletePhase(phase) {
		return handover.Invalid("Phase %s cannot be completed yet", phase.Title())
	}
	return nil
}

// signLocally records the signature without server confirmation and returns
// cause, the error that kept the server from confirming it.
func (s *Session) signLocally(phase handover.Phase, signature string, cause error) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.inspection.CompletePhase(phase, signature, s.cfg.Now()); err != nil {
		return err
	}
	s.completionPending = true
	s.saveDraftLocked()
	s.logger.Warn("phase signed locally, server confirmation pending",
		slog.Int64("inspection_id", s.inspection.ID),
		slog.String("phase", string(phase)),
		slog.String("error", cause.Error()))
	return cause
}

// Flush pushes unsaved changes and retries any pending phase confirmation
// or report completion.
func (s *Session) Flush(ctx context.Context) error {
	s.syncMu.Lock()
	defer s.syncMu.Unlock()
	return s.flush(ctx)
}

// flush is Flush with syncMu held.
func (s *Session) flush(ctx context.Context) error {
	if err := s.push(ctx); err != nil {
		return err
	}

	s.mu.Lock()
	pending := s.completionPending
	local := s.inspection.Clone()
	s.mu.Unlock()
	if !pending {
		return nil
	}

	server, err := s.cfg.Backend.FindInspectionByOrderNumber(ctx, local.OrderNumber)
	if err != nil {
		return err
	}

	for _, phase := range handover.Phases {
		mine, remote := local.PhaseRecord(phase), server.PhaseRecord(phase)
		if mine.Status != handover.PhaseStatusCompleted || remote.Status != handover.PhaseStatusPending {
			continue
		}
		resp, err := s.cfg.Backend.CompletePhase(ctx, server.ID, phase, mine.Signature)
		if err != nil {
			return err
		}
		server = resp.Inspection
		if resp.Report != nil {
			s.mu.Lock()
			defer s.mu.Unlock()
			s.adoptLocked(server)
			s.finishLocked(resp.Report)
			return nil
		}
	}

	if server.TestDrive.Status == handover.PhaseStatusCompleted && !server.Status.IsTerminal() {
		result, err := s.cfg.Backend.CompleteInspection(ctx, server.ID)
		if err != nil {
			return err
		}
		server.Status = handover.StatusFinalCompleted
		s.mu.Lock()
		defer s.mu.Unlock()
		s.adoptLocked(server)
		s.finishLocked(result)
		return nil
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.adoptLocked(server)
	s.completionPending = false
	s.saveDraftLocked()
	return nil
}

// adoptLocked takes the server's phase records and status.
func (s *Session) adoptLocked(server *handover.Inspection) {
	if server == nil {
		return
	}
	s.inspection.OnDelivery = server.OnDelivery
	s.inspection.TestDrive = server.TestDrive
	s.inspection.Status = server.Status
	s.inspection.UpdatedAt = server.UpdatedAt
}

func (s *Session) finishLocked(result *handover.CompletionResult) {
	s.result = result
	s.completionPending = false
	s.inspection.Status = handover.StatusFinalCompleted
	if err := s.cfg.Drafts.Clear(); err != nil {
		s.logger.Warn("clearing draft", slog.String("error", err.Error()))
	}
	s.logger.Info("inspection completed",
		slog.Int64("inspection_id", s.inspection.ID),
		slog.Bool("email_sent", result.EmailSent))
}

// NewCapture returns a capture pipeline for one item. Uploaded media is
// attached to the item through the session.
func (s *Session) NewCapture(itemID string) (*capture.Pipeline, error) {
	s.mu.Lock()
	it, ok := s.inspection.Item(itemID)
	id := s.inspection.ID
	var locked error
	if ok {
		locked = checkUnlocked(s.inspection, it)
	}
	s.mu.Unlock()
	if !ok {
		return nil, handover.NotFound("Item %q not found", itemID)
	}
	if locked != nil {
		return nil, locked
	}
	if s.cfg.Uploader == nil {
		return nil, handover.Unavailable("Media upload is not configured", nil)
	}

	return capture.New(capture.Config{
		InspectionID: id,
		ItemID:       itemID,
		Item: func() (handover.Item, bool) {
			s.mu.Lock()
			defer s.mu.Unlock()
			return s.inspection.Item(itemID)
		},
		Camera:   s.cfg.Camera,
		Uploader: s.cfg.Uploader,
		Logger:   s.logger,
		OnAttached: func(ctx context.Context, att *handover.MediaAttachment) {
			// A failed write leaves the session unsaved; Flush retries it.
			_ = s.AttachMedia(ctx, itemID, att)
		},
		OnAutoStop: func(att *handover.MediaAttachment, err error) {
			if err != nil {
				s.logger.Error("automatic recording upload failed",
					slog.String("item_id", itemID),
					slog.String("error", err.Error()))
			}
		},
		Now: s.cfg.Now,
	}), nil
}

func (s *Session) saveDraft() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.saveDraftLocked()
}

func (s *Session) saveDraftLocked() {
	err := s.cfg.Drafts.Save(&handover.DraftSnapshot{
		Inspection:        s.inspection.Clone(),
		SavedAt:           s.cfg.Now(),
		Unsaved:           s.unsaved,
		CompletionPending: s.completionPending,
	})
	if err != nil {
		s.logger.Warn("saving draft", slog.String("error", err.Error()))
	}
}
