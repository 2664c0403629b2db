package pdf

import (
	"bytes"
	"context"
	"encoding/base64"
	"image"
	"image/color"
	"image/png"
	"testing"
	"time"

	"github.com/dukerupert/handover"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testInspection() *handover.Inspection {
	signedAt := time.Date(2026, 5, 2, 9, 30, 0, 0, time.UTC)
	sections := []handover.Section{
		{
			ID: "documentation", Name: "Documentation & Identity", Stage: handover.PhaseOnDelivery,
			Items: []handover.Item{
				{ID: "vin-match", Name: "VIN & Document Verification", Stage: handover.PhaseOnDelivery, Status: handover.ItemPassed},
				{ID: "paint", Name: "Paint Quality", Stage: handover.PhaseOnDelivery, Status: handover.ItemFailed, Notes: "Scratch on rear bumper – 3 cm",
					Media: []handover.MediaAttachment{{Kind: handover.MediaPhoto}}},
			},
		},
		{
			ID: "driving", Name: "Driving", Stage: handover.PhaseTestDrive,
			Items: []handover.Item{{ID: "brakes", Name: "Brakes", Stage: handover.PhaseTestDrive}},
		},
	}
	in := handover.NewInspection(handover.PlaceholderOrder("RN123", signedAt), sections)
	in.OnDelivery = handover.PhaseRecord{Status: handover.PhaseStatusCompleted, Signature: pngDataURL(), CompletedAt: &signedAt}
	return in
}

func pngDataURL() string {
	img := image.NewRGBA(image.Rect(0, 0, 20, 10))
	for x := 0; x < 20; x++ {
		img.Set(x, 5, color.Black)
	}
	var buf bytes.Buffer
	_ = png.Encode(&buf, img)
	return "data:image/png;base64," + base64.StdEncoding.EncodeToString(buf.Bytes())
}

func TestRenderer_Render(t *testing.T) {
	r := NewRenderer()
	r.Now = func() time.Time { return time.Date(2026, 5, 2, 12, 0, 0, 0, time.UTC) }

	media := []*handover.MediaAttachment{
		{ItemID: "paint", Kind: handover.MediaPhoto, FileName: "scratch.jpg", Link: "https://example.com/1", UploadStatus: handover.UploadUploaded},
		{ItemID: "paint", Kind: handover.MediaVideo, FileName: "walk.mp4", UploadStatus: handover.UploadFailed},
	}

	out, err := r.Render(context.Background(), testInspection(), media)
	require.NoError(t, err)
	assert.True(t, bytes.HasPrefix(out, []byte("%PDF-")))
	assert.Greater(t, len(out), 1000)
}

func TestRenderer_InvalidSignatureImage(t *testing.T) {
	in := testInspection()
	in.TestDrive = handover.PhaseRecord{Status: handover.PhaseStatusCompleted, Signature: "data:image/png;base64,bm90IGEgcG5n"}

	out, err := NewRenderer().Render(context.Background(), in, nil)
	require.NoError(t, err)
	assert.True(t, bytes.HasPrefix(out, []byte("%PDF-")))
}

func TestRenderer_CancelledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := NewRenderer().Render(ctx, testInspection(), nil)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestSignatureFingerprint(t *testing.T) {
	a := SignatureFingerprint("Jane Doe")
	assert.Len(t, a, 16)
	assert.Equal(t, a, SignatureFingerprint("Jane Doe"))
	assert.NotEqual(t, a, SignatureFingerprint("John Doe"))
}
