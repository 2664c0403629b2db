package main

import (
	"bytes"
	"context"
	"io"
	"log/slog"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/dukerupert/handover"
	handoverhttp "github.com/dukerupert/handover/http"
	"github.com/dukerupert/handover/internal/audit"
	"github.com/dukerupert/handover/internal/catalog"
	"github.com/dukerupert/handover/mock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// backend is an in-memory server for CLI tests.
type backend struct {
	mu          sync.Mutex
	inspections map[int64]*handover.Inspection
	nextID      int64
}

func (b *backend) find(id int64) (*handover.Inspection, error) {
	in, ok := b.inspections[id]
	if !ok {
		return nil, handover.NotFound("Inspection not found")
	}
	return in, nil
}

func (b *backend) service() *mock.InspectionService {
	return &mock.InspectionService{
		FindInspectionByIDFn: func(_ context.Context, id int64) (*handover.Inspection, error) {
			b.mu.Lock()
			defer b.mu.Unlock()
			in, err := b.find(id)
			if err != nil {
				return nil, err
			}
			return in.Clone(), nil
		},
		FindInspectionByOrderNumberFn: func(_ context.Context, n string) (*handover.Inspection, error) {
			b.mu.Lock()
			defer b.mu.Unlock()
			for _, in := range b.inspections {
				if in.OrderNumber == n {
					return in.Clone(), nil
				}
			}
			return nil, handover.NotFound("No inspection for order %s", n)
		},
		CreateInspectionFn: func(_ context.Context, in *handover.Inspection) error {
			b.mu.Lock()
			defer b.mu.Unlock()
			b.nextID++
			in.ID = b.nextID
			in.CreatedAt = time.Now()
			in.UpdatedAt = in.CreatedAt
			b.inspections[in.ID] = in.Clone()
			return nil
		},
		UpdateInspectionFn: func(_ context.Context, id int64, upd handover.InspectionUpdate) (*handover.Inspection, error) {
			b.mu.Lock()
			defer b.mu.Unlock()
			in, err := b.find(id)
			if err != nil {
				return nil, err
			}
			upd.Apply(in)
			in.UpdatedAt = time.Now()
			return in.Clone(), nil
		},
	}
}

func (b *backend) CompletePhase(_ context.Context, id int64, phase handover.Phase, sig string) (*handover.PhaseCompletion, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	in, err := b.find(id)
	if err != nil {
		return nil, err
	}
	if err := in.CompletePhase(phase, sig, time.Now()); err != nil {
		return nil, err
	}
	return &handover.PhaseCompletion{Inspection: in.Clone()}, nil
}

func (b *backend) Complete(context.Context, int64) (*handover.CompletionResult, error) {
	return nil, handover.Unavailable("Failed to complete inspection", nil)
}

type cliEnv struct {
	backend *backend
	server  *httptest.Server
	url     string
	drafts  string
}

func newCLIEnv(t *testing.T) *cliEnv {
	t.Helper()

	cat, err := catalog.Default()
	require.NoError(t, err)

	b := &backend{inspections: make(map[int64]*handover.Inspection)}
	srv := handoverhttp.NewServer(handoverhttp.Config{
		Logger:            slog.New(slog.NewTextHandler(io.Discard, nil)),
		InspectionService: b.service(),
		MediaService:      &mock.MediaService{},
		ReportService:     &mock.ReportService{},
		Uploader:          &mock.MediaUploader{},
		Completer:         b,
		Orders: &mock.OrderLookup{
			LookupOrderFn: func(_ context.Context, n string) (*handover.Order, error) {
				return handover.PlaceholderOrder(n, time.Now()), nil
			},
		},
		Catalog: cat,
	})
	ts := httptest.NewServer(srv.Echo())
	t.Cleanup(func() {
		ts.Close()
		_ = srv.Close(context.Background())
	})

	return &cliEnv{backend: b, server: ts, url: ts.URL, drafts: t.TempDir()}
}

func (e *cliEnv) run(t *testing.T, args ...string) (string, error) {
	t.Helper()

	var out bytes.Buffer
	cmd := newRootCommand(func(string) string { return "" })
	cmd.SetOut(&out)
	cmd.SetErr(&out)
	cmd.SetArgs(append([]string{"--server", e.url, "--drafts", e.drafts}, args...))
	err := cmd.ExecuteContext(context.Background())
	return out.String(), err
}

func TestOpenAndMark(t *testing.T) {
	env := newCLIEnv(t)

	out, err := env.run(t, "open", "RN900")
	require.NoError(t, err)
	assert.Contains(t, out, "Inspection #1 for order RN900")
	assert.Contains(t, out, "7SAYGDEF*NF123456")
	assert.Contains(t, out, "Test Drive: pending (locked)")

	out, err = env.run(t, "mark", "RN900", "vin-match", "failed", "--notes", "plate scratched")
	require.NoError(t, err)
	assert.Contains(t, out, "vin-match marked failed (1/28 done, 1 failed)")

	out, err = env.run(t, "status", "RN900", "--phase", "on_delivery")
	require.NoError(t, err)
	assert.Contains(t, out, "vin-match")
	assert.Contains(t, out, "plate scratched")

	_, err = env.run(t, "mark", "RN900", "vin-match", "maybe")
	assert.Equal(t, handover.EINVALID, handover.ErrorCode(err))

	_, err = env.run(t, "mark", "RN900", "no-such-item", "passed")
	assert.Equal(t, handover.ENOTFOUND, handover.ErrorCode(err))

	out, err = env.run(t, "flush", "RN900")
	require.NoError(t, err)
	assert.Contains(t, out, "Nothing to flush")
}

func TestSign(t *testing.T) {
	env := newCLIEnv(t)
	cat, err := catalog.Default()
	require.NoError(t, err)

	_, err = env.run(t, "open", "RN901")
	require.NoError(t, err)

	_, err = env.run(t, "sign", "RN901", "on_delivery", "--signature", "J. Doe")
	require.Error(t, err)
	assert.Contains(t, describeError(err), "cannot be completed yet")

	drive, ok := cat.Phase(handover.PhaseTestDrive)
	require.True(t, ok)
	driveItem := drive.Sections[0].Items[0].ID

	_, err = env.run(t, "mark", "RN901", driveItem, "passed")
	assert.Equal(t, handover.EINVALID, handover.ErrorCode(err))
	assert.Contains(t, describeError(err), "test drive is locked")

	_, err = env.run(t, "sign", "RN901", "test_drive", "--signature", "J. Doe")
	assert.Equal(t, handover.EINVALID, handover.ErrorCode(err))
	assert.Contains(t, describeError(err), "on-delivery phase must be signed first")

	env.backend.mu.Lock()
	stored, ok := env.backend.inspections[1].Item(driveItem)
	status := env.backend.inspections[1].TestDrive.Status
	env.backend.mu.Unlock()
	require.True(t, ok)
	assert.Equal(t, handover.ItemPending, stored.Status)
	assert.Equal(t, handover.PhaseStatusPending, status)

	p, ok := cat.Phase(handover.PhaseOnDelivery)
	require.True(t, ok)
	for _, sec := range p.Sections {
		for _, it := range sec.Items {
			_, err := env.run(t, "mark", "RN901", it.ID, "passed")
			require.NoError(t, err, it.ID)
		}
	}

	_, err = env.run(t, "sign", "RN901", "on_delivery")
	assert.ErrorContains(t, err, "signature is required")

	out, err := env.run(t, "sign", "RN901", "on_delivery", "--signature", "J. Doe")
	require.NoError(t, err)
	assert.Contains(t, out, "signed")

	out, err = env.run(t, "open", "RN901")
	require.NoError(t, err)
	assert.Contains(t, out, string(handover.StatusTestDrivePending))
	assert.NotContains(t, out, "(locked)")

	out, err = env.run(t, "mark", "RN901", driveItem, "passed")
	require.NoError(t, err)
	assert.Contains(t, out, driveItem+" marked passed")
}

func TestOfflineMarkThenFlush(t *testing.T) {
	env := newCLIEnv(t)

	_, err := env.run(t, "open", "RN902")
	require.NoError(t, err)

	online := env.url
	env.url = "http://127.0.0.1:1"

	out, err := env.run(t, "mark", "RN902", "vin-match", "passed")
	require.Error(t, err)
	assert.True(t, handover.Retryable(err))
	assert.Contains(t, out, "saved locally only")

	env.url = online
	out, err = env.run(t, "flush", "RN902")
	require.NoError(t, err)
	assert.Contains(t, out, "Synchronized with server")

	env.backend.mu.Lock()
	item, ok := env.backend.inspections[1].Item("vin-match")
	env.backend.mu.Unlock()
	require.True(t, ok)
	assert.Equal(t, handover.ItemPassed, item.Status)
}

func TestLoadSignature(t *testing.T) {
	_, err := loadSignature("a", "b")
	assert.Error(t, err)

	sig, err := loadSignature("Jane", "")
	require.NoError(t, err)
	assert.Equal(t, "Jane", sig)

	_, err = loadSignature("", "")
	assert.Error(t, err)
}

func TestDescribeError(t *testing.T) {
	err := handover.ErrorWithFields(map[string]string{"orderNumber": "is required"})
	assert.Equal(t, "Validation failed (orderNumber is required)", describeError(err))
	assert.True(t, strings.HasPrefix(describeError(io.EOF), "EOF"))
}

func TestRenderHistory(t *testing.T) {
	out := renderHistory([]audit.Entry{{
		Action:    audit.ActionPhaseSigned,
		Details:   map[string]any{"phase": "on_delivery", "b": 1},
		IPAddress: "10.1.1.1",
		CreatedAt: time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC),
	}})
	assert.Contains(t, out, audit.ActionPhaseSigned)
	assert.Contains(t, out, "b=1 phase=on_delivery")
	assert.Contains(t, out, "10.1.1.1")
}

func TestHistoryDisabled(t *testing.T) {
	env := newCLIEnv(t)
	_, err := env.run(t, "open", "RN903")
	require.NoError(t, err)

	_, err = env.run(t, "history", "RN903")
	assert.Equal(t, handover.EUNAVAILABLE, handover.ErrorCode(err))
}
