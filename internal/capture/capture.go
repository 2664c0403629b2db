// Package capture acquires photo and video evidence from a camera or a file
// and hands it to the upload pipeline.
//
// A Pipeline serves one checklist item. It holds the camera exclusively and
// releases the stream on every exit path: after a photo snapshot, when a
// recording stops, when the media kind changes, on Cancel, and on Close.
package capture

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"sync"
	"time"

	"github.com/dukerupert/handover"
	"github.com/gabriel-vasile/mimetype"
)

// State is the position of the pipeline in the capture lifecycle.
type State string

const (
	StateIdle           State = "idle"
	StateCameraActive   State = "camera_active"
	StateCapturingPhoto State = "capturing_photo"
	StateRecordingVideo State = "recording_video"
)

// ErrBusy is returned when a capture or upload is already in flight. The
// pipeline never queues work.
var ErrBusy = handover.Conflict("A capture or upload is already in progress")

// DefaultUploadTimeout bounds the upload that follows an automatic stop.
const DefaultUploadTimeout = 2 * time.Minute

// CameraOptions selects the device and tracks to open.
type CameraOptions struct {
	// Facing is "environment" for the rear camera.
	Facing string
	Audio  bool
}

// Camera opens device streams.
type Camera interface {
	Open(ctx context.Context, opts CameraOptions) (Stream, error)
}

// Stream is an open camera. Close stops every track.
type Stream interface {
	// Snapshot encodes the current frame as JPEG.
	Snapshot(ctx context.Context) ([]byte, error)
	Record() (Recorder, error)
	Close() error
}

// Recorder collects video from a stream until stopped.
type Recorder interface {
	// Stop finalizes the recording and returns the encoded bytes.
	Stop() ([]byte, error)
}

// Ticker drives the recording clock.
type Ticker interface {
	C() <-chan time.Time
	Stop()
}

type realTicker struct {
	t *time.Ticker
}

func (r realTicker) C() <-chan time.Time { return r.t.C }
func (r realTicker) Stop()               { r.t.Stop() }

// Config wires a pipeline to one item.
type Config struct {
	InspectionID int64
	ItemID       string

	// Item returns the current state of the item so count limits see media
	// attached since the pipeline was created.
	Item func() (handover.Item, bool)

	Camera   Camera
	Uploader handover.MediaUploader
	Logger   *slog.Logger

	// OnAttached is called after every successful upload.
	OnAttached func(ctx context.Context, att *handover.MediaAttachment)

	// OnAutoStop receives the outcome of a recording stopped by the
	// duration cap.
	OnAutoStop func(att *handover.MediaAttachment, err error)

	MaxDuration   time.Duration
	UploadTimeout time.Duration
	NewTicker     func(d time.Duration) Ticker
	Now           func() time.Time
}

// Pipeline is the capture state machine for one item.
type Pipeline struct {
	cfg Config

	mu       sync.Mutex
	state    State
	kind     handover.MediaKind
	stream   Stream
	recorder Recorder
	elapsed  time.Duration
	stopTick chan struct{}
	busy     bool
	closed   bool
}

// New creates an idle pipeline.
func New(cfg Config) *Pipeline {
	if cfg.MaxDuration <= 0 {
		cfg.MaxDuration = handover.MaxVideoDuration
	}
	if cfg.UploadTimeout <= 0 {
		cfg.UploadTimeout = DefaultUploadTimeout
	}
	if cfg.NewTicker == nil {
		cfg.NewTicker = func(d time.Duration) Ticker { return realTicker{time.NewTicker(d)} }
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	return &Pipeline{cfg: cfg, state: StateIdle}
}

// State returns the current state.
func (p *Pipeline) State() State {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.state
}

// Kind returns the media kind of the open camera, empty when idle.
func (p *Pipeline) Kind() handover.MediaKind {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.kind
}

// Elapsed returns the length of the current recording.
func (p *Pipeline) Elapsed() time.Duration {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.elapsed
}

// StartCamera opens the rear camera for kind. Audio is requested only for
// video. Switching kind tears down the open stream first. On failure the
// pipeline is idle.
func (p *Pipeline) StartCamera(ctx context.Context, kind handover.MediaKind) error {
	if kind != handover.MediaPhoto && kind != handover.MediaVideo {
		return handover.Errorf(handover.EINVALIDFILETYPE, "Only photos and videos can be captured")
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	if p.closed {
		return handover.Invalid("Capture is closed")
	}
	if p.busy {
		return ErrBusy
	}
	switch p.state {
	case StateCameraActive:
		if p.kind == kind {
			return nil
		}
		p.releaseLocked()
	case StateIdle:
	default:
		return handover.Invalid("Camera is in use")
	}

	if p.cfg.Camera == nil {
		return handover.Unavailable("No camera available", nil)
	}
	stream, err := p.cfg.Camera.Open(ctx, CameraOptions{
		Facing: "environment",
		Audio:  kind == handover.MediaVideo,
	})
	if err != nil {
		return cameraError(err)
	}

	p.stream = stream
	p.kind = kind
	p.state = StateCameraActive
	p.cfg.Logger.Debug("camera started",
		slog.String("item_id", p.cfg.ItemID),
		slog.String("kind", string(kind)))
	return nil
}

func cameraError(err error) error {
	if errors.Is(err, fs.ErrPermission) || handover.IsErrorCode(err, handover.EPERMISSION) {
		return handover.WrapError(handover.EPERMISSION, "Camera access was denied", err)
	}
	return handover.Unavailable("Camera is not available", err)
}

// CapturePhoto snapshots a JPEG, stops the camera, then validates and
// uploads the image.
func (p *Pipeline) CapturePhoto(ctx context.Context) (*handover.MediaAttachment, error) {
	p.mu.Lock()
	if p.busy {
		p.mu.Unlock()
		return nil, ErrBusy
	}
	if p.state != StateCameraActive || p.kind != handover.MediaPhoto {
		p.mu.Unlock()
		return nil, handover.Invalid("Photo camera is not active")
	}
	p.state = StateCapturingPhoto
	p.busy = true
	stream := p.stream
	p.mu.Unlock()

	defer p.done()

	data, err := stream.Snapshot(ctx)
	p.release()
	if err != nil {
		return nil, handover.Unavailable("Failed to capture photo", err)
	}

	name := fmt.Sprintf("photo_%d.jpg", p.cfg.Now().UnixMilli())
	return p.upload(ctx, name, "image/jpeg", handover.MediaPhoto, data, 0)
}

// StartRecording begins recording from the video camera. A recording that
// reaches the duration cap stops and uploads by itself; the outcome is
// reported to OnAutoStop.
func (p *Pipeline) StartRecording() error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.busy {
		return ErrBusy
	}
	if p.state != StateCameraActive || p.kind != handover.MediaVideo {
		return handover.Invalid("Video camera is not active")
	}

	rec, err := p.stream.Record()
	if err != nil {
		return handover.Unavailable("Failed to start recording", err)
	}

	p.recorder = rec
	p.elapsed = 0
	p.state = StateRecordingVideo
	p.stopTick = make(chan struct{})
	go p.tick(p.cfg.NewTicker(time.Second), p.stopTick)
	return nil
}

func (p *Pipeline) tick(t Ticker, stop <-chan struct{}) {
	defer t.Stop()
	for {
		select {
		case <-stop:
			return
		case <-t.C():
			p.mu.Lock()
			if p.state != StateRecordingVideo {
				p.mu.Unlock()
				return
			}
			p.elapsed += time.Second
			if p.elapsed < p.cfg.MaxDuration {
				p.mu.Unlock()
				continue
			}
			data, duration, err := p.stopLocked()
			p.mu.Unlock()

			p.cfg.Logger.Info("recording reached duration cap",
				slog.String("item_id", p.cfg.ItemID),
				slog.Duration("duration", duration))

			ctx, cancel := context.WithTimeout(context.Background(), p.cfg.UploadTimeout)
			att, err := p.finishRecording(ctx, data, duration, err)
			cancel()
			if p.cfg.OnAutoStop != nil {
				p.cfg.OnAutoStop(att, err)
			}
			return
		}
	}
}

// StopRecording finalizes the recording, releases the camera, and uploads
// the video. Recordings over the size cap are discarded.
func (p *Pipeline) StopRecording(ctx context.Context) (*handover.MediaAttachment, error) {
	p.mu.Lock()
	if p.state != StateRecordingVideo {
		p.mu.Unlock()
		return nil, handover.Invalid("No recording in progress")
	}
	data, duration, err := p.stopLocked()
	p.mu.Unlock()

	return p.finishRecording(ctx, data, duration, err)
}

// stopLocked ends the recording and releases the stream. The pipeline stays
// busy until finishRecording returns.
func (p *Pipeline) stopLocked() ([]byte, time.Duration, error) {
	close(p.stopTick)
	p.stopTick = nil

	data, err := p.recorder.Stop()
	p.recorder = nil
	duration := p.elapsed
	p.releaseLocked()
	p.busy = true
	return data, duration, err
}

func (p *Pipeline) finishRecording(ctx context.Context, data []byte, duration time.Duration, err error) (*handover.MediaAttachment, error) {
	defer p.done()

	if err != nil {
		return nil, handover.Unavailable("Failed to finalize recording", err)
	}
	if int64(len(data)) > handover.MaxMediaSize {
		p.cfg.Logger.Warn("recording discarded",
			slog.String("item_id", p.cfg.ItemID),
			slog.Int("size", len(data)))
		return nil, handover.Errorf(handover.EFILETOOLARGE, "Recording exceeds the 50 MB limit")
	}

	mt := mimetype.Detect(data)
	contentType, ext := mt.String(), mt.Extension()
	if kind, ok := handover.MediaKindFromContentType(contentType); !ok || kind != handover.MediaVideo {
		contentType, ext = "video/webm", ".webm"
	}
	if probed, ok := ProbeDuration(data); ok {
		duration = probed
	}

	name := fmt.Sprintf("video_%d%s", p.cfg.Now().UnixMilli(), ext)
	return p.upload(ctx, name, contentType, handover.MediaVideo, data, duration)
}

// UploadFile validates and uploads a picked file. The kind is inferred from
// the sniffed content type, never from the name.
func (p *Pipeline) UploadFile(ctx context.Context, name string, data []byte) (*handover.MediaAttachment, error) {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return nil, handover.Invalid("Capture is closed")
	}
	if p.busy || p.state == StateRecordingVideo {
		p.mu.Unlock()
		return nil, ErrBusy
	}
	p.busy = true
	p.mu.Unlock()

	defer p.done()

	contentType := mimetype.Detect(data).String()
	kind, ok := handover.MediaKindFromContentType(contentType)
	if !ok {
		return nil, handover.Errorf(handover.EINVALIDFILETYPE, "Only photos and videos can be attached")
	}

	var duration time.Duration
	if kind == handover.MediaVideo {
		duration, _ = ProbeDuration(data)
	}
	return p.upload(ctx, name, contentType, kind, data, duration)
}

func (p *Pipeline) upload(ctx context.Context, name, contentType string, kind handover.MediaKind, data []byte, duration time.Duration) (*handover.MediaAttachment, error) {
	item, ok := p.cfg.Item()
	if !ok {
		return nil, handover.NotFound("Item %q not found", p.cfg.ItemID)
	}

	upload := &handover.MediaUpload{
		InspectionID: p.cfg.InspectionID,
		ItemID:       p.cfg.ItemID,
		FileName:     name,
		ContentType:  contentType,
		Kind:         kind,
		Data:         data,
		Duration:     duration,
	}
	if err := handover.ValidateAttachment(item, upload.Candidate()); err != nil {
		return nil, err
	}

	att, err := p.cfg.Uploader.UploadMedia(ctx, upload)
	if err != nil {
		p.cfg.Logger.Error("media upload failed",
			slog.Int64("inspection_id", p.cfg.InspectionID),
			slog.String("item_id", p.cfg.ItemID),
			slog.String("error", err.Error()))

		var appErr *handover.Error
		if errors.As(err, &appErr) {
			return nil, err
		}
		return nil, handover.Unavailable("Upload failed, please try again", err)
	}

	if p.cfg.OnAttached != nil {
		p.cfg.OnAttached(ctx, att)
	}
	return att, nil
}

// Cancel discards any recording and releases the camera.
func (p *Pipeline) Cancel() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.cancelLocked()
}

// Close cancels and rejects further use.
func (p *Pipeline) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.cancelLocked()
	p.closed = true
	return nil
}

func (p *Pipeline) cancelLocked() {
	if p.state == StateRecordingVideo {
		close(p.stopTick)
		p.stopTick = nil
		if _, err := p.recorder.Stop(); err != nil {
			p.cfg.Logger.Warn("stopping discarded recording", slog.String("error", err.Error()))
		}
		p.recorder = nil
	}
	p.releaseLocked()
}

func (p *Pipeline) release() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.releaseLocked()
}

func (p *Pipeline) releaseLocked() {
	if p.stream != nil {
		if err := p.stream.Close(); err != nil {
			p.cfg.Logger.Warn("closing camera stream", slog.String("error", err.Error()))
		}
		p.stream = nil
	}
	p.kind = ""
	p.elapsed = 0
	p.state = StateIdle
}

func (p *Pipeline) done() {
	p.mu.Lock()
	p.busy = false
	p.mu.Unlock()
}
