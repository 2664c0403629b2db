package http_test

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"mime/multipart"
	"net/http"
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

// store keeps inspections in memory behind mock.InspectionService.
type store struct {
	mu          sync.Mutex
	inspections map[int64]*handover.Inspection
	nextID      int64
}

func newStore() *store {
	return &store{inspections: make(map[int64]*handover.Inspection)}
}

func (s *store) service() *mock.InspectionService {
	return &mock.InspectionService{
		FindInspectionByIDFn: func(_ context.Context, id int64) (*handover.Inspection, error) {
			s.mu.Lock()
			defer s.mu.Unlock()
			in, ok := s.inspections[id]
			if !ok {
				return nil, handover.NotFound("Inspection not found")
			}
			return in.Clone(), nil
		},
		FindInspectionByOrderNumberFn: func(_ context.Context, orderNumber string) (*handover.Inspection, error) {
			s.mu.Lock()
			defer s.mu.Unlock()
			for _, in := range s.inspections {
				if in.OrderNumber == orderNumber {
					return in.Clone(), nil
				}
			}
			return nil, handover.NotFound("No inspection for order %s", orderNumber)
		},
		FindInspectionsFn: func(_ context.Context, filter handover.InspectionFilter) ([]*handover.Inspection, int, error) {
			s.mu.Lock()
			defer s.mu.Unlock()
			var out []*handover.Inspection
			for _, in := range s.inspections {
				if filter.Status == nil || in.Status == *filter.Status {
					out = append(out, in.Clone())
				}
			}
			return out, len(out), nil
		},
		CreateInspectionFn: func(_ context.Context, in *handover.Inspection) error {
			s.mu.Lock()
			defer s.mu.Unlock()
			s.nextID++
			in.ID = s.nextID
			s.inspections[in.ID] = in.Clone()
			return nil
		},
		UpdateInspectionFn: func(_ context.Context, id int64, upd handover.InspectionUpdate) (*handover.Inspection, error) {
			s.mu.Lock()
			defer s.mu.Unlock()
			in, ok := s.inspections[id]
			if !ok {
				return nil, handover.NotFound("Inspection not found")
			}
			upd.Apply(in)
			return in.Clone(), nil
		},
	}
}

func (s *store) put(in *handover.Inspection) *handover.Inspection {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.nextID++
	in.ID = s.nextID
	s.inspections[in.ID] = in.Clone()
	return in
}

type completer struct {
	completePhase func(ctx context.Context, id int64, phase handover.Phase, signature string) (*handover.PhaseCompletion, error)
	complete      func(ctx context.Context, id int64) (*handover.CompletionResult, error)
}

func (c *completer) CompletePhase(ctx context.Context, id int64, phase handover.Phase, signature string) (*handover.PhaseCompletion, error) {
	return c.completePhase(ctx, id, phase, signature)
}

func (c *completer) Complete(ctx context.Context, id int64) (*handover.CompletionResult, error) {
	return c.complete(ctx, id)
}

type pinger struct{ err error }

func (p pinger) Ping(context.Context) error { return p.err }

// auditLog keeps history entries in memory.
type auditLog struct {
	mu      sync.Mutex
	entries []audit.Entry
}

func (a *auditLog) Record(_ context.Context, e audit.Entry) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.entries = append(a.entries, e)
}

func (a *auditLog) History(_ context.Context, id int64, limit, offset int) ([]audit.Entry, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	var out []audit.Entry
	for _, e := range a.entries {
		if e.InspectionID == id {
			out = append(out, e)
		}
	}
	if offset > len(out) {
		offset = len(out)
	}
	out = out[offset:]
	if limit < len(out) {
		out = out[:limit]
	}
	return out, nil
}

type harness struct {
	server    *handoverhttp.Server
	store     *store
	uploader  *mock.MediaUploader
	completer *completer
	orders    *mock.OrderLookup
	catalog   *catalog.Catalog
}

func newHarness(t *testing.T, opts ...func(*handoverhttp.Config)) *harness {
	t.Helper()

	cat, err := catalog.Default()
	require.NoError(t, err)

	h := &harness{
		store:    newStore(),
		uploader: &mock.MediaUploader{},
		completer: &completer{
			completePhase: func(context.Context, int64, handover.Phase, string) (*handover.PhaseCompletion, error) {
				return nil, errors.New("unexpected call")
			},
			complete: func(context.Context, int64) (*handover.CompletionResult, error) {
				return nil, errors.New("unexpected call")
			},
		},
		orders: &mock.OrderLookup{
			LookupOrderFn: func(_ context.Context, orderNumber string) (*handover.Order, error) {
				return &handover.Order{
					OrderNumber:   orderNumber,
					VIN:           "5YJYGDEE1MF000001",
					VehicleModel:  "Model Y",
					CustomerName:  "Ada Lovelace",
					CustomerEmail: "ada@example.com",
					SalesRepEmail: "rep@example.com",
					DeliveryDate:  time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC),
				}, nil
			},
		},
		catalog: cat,
	}

	cfg := handoverhttp.Config{
		Logger:            slog.New(slog.NewTextHandler(io.Discard, nil)),
		InspectionService: h.store.service(),
		MediaService:      &mock.MediaService{},
		ReportService:     &mock.ReportService{},
		Uploader:          h.uploader,
		Completer:         h.completer,
		Orders:            h.orders,
		Catalog:           cat,
	}
	for _, o := range opts {
		o(&cfg)
	}

	h.server = handoverhttp.NewServer(cfg)
	t.Cleanup(func() { _ = h.server.Close(context.Background()) })
	return h
}

func (h *harness) do(t *testing.T, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()

	var r io.Reader
	if body != nil {
		b, err := json.Marshal(body)
		require.NoError(t, err)
		r = bytes.NewReader(b)
	}
	req := httptest.NewRequest(method, path, r)
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	h.server.Echo().ServeHTTP(rec, req)
	return rec
}

func (h *harness) seed(t *testing.T) *handover.Inspection {
	t.Helper()
	order := handover.PlaceholderOrder("RN100", time.Now())
	return h.store.put(handover.NewInspection(order, h.catalog.Sections()))
}

func decode[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &v), rec.Body.String())
	return v
}

func TestCreateInspection(t *testing.T) {
	t.Run("looks up order and seeds checklist", func(t *testing.T) {
		h := newHarness(t)

		rec := h.do(t, http.MethodPost, "/api/inspections", map[string]any{
			"orderNumber":        "RN123",
			"representativeName": "  Grace  ",
		})
		require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())

		in := decode[handover.Inspection](t, rec)
		assert.NotZero(t, in.ID)
		assert.Equal(t, "5YJYGDEE1MF000001", in.VIN)
		assert.Equal(t, "Grace", in.RepresentativeName)
		assert.Equal(t, handover.StatusOnDeliveryPending, in.Status)
		assert.Equal(t, 28, in.TotalItems)
		assert.Equal(t, handover.DefaultLanguage, in.Language)
	})

	t.Run("uses supplied order details", func(t *testing.T) {
		h := newHarness(t)
		h.orders.LookupOrderFn = func(context.Context, string) (*handover.Order, error) {
			t.Fatal("lookup should not be called")
			return nil, nil
		}

		rec := h.do(t, http.MethodPost, "/api/inspections", map[string]any{
			"orderNumber":  "RN124",
			"vin":          "VIN-OWN",
			"customerName": "Alan",
			"language":     "de",
		})
		require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())

		in := decode[handover.Inspection](t, rec)
		assert.Equal(t, "VIN-OWN", in.VIN)
		assert.Equal(t, "de", in.Language)
		assert.False(t, in.DeliveryDate.IsZero())
	})

	t.Run("validation errors carry fields", func(t *testing.T) {
		h := newHarness(t)

		rec := h.do(t, http.MethodPost, "/api/inspections", map[string]any{
			"orderNumber":   "RN/../1",
			"customerEmail": "not-an-email",
		})
		require.Equal(t, http.StatusBadRequest, rec.Code)

		resp := decode[handoverhttp.ErrorResponse](t, rec)
		assert.Equal(t, handover.EINVALID, resp.Error)
		assert.Contains(t, resp.Fields, "orderNumber")
		assert.Contains(t, resp.Fields, "customerEmail")
	})

	t.Run("duplicate order conflicts", func(t *testing.T) {
		h := newHarness(t, func(c *handoverhttp.Config) {
			c.InspectionService = &mock.InspectionService{
				CreateInspectionFn: func(context.Context, *handover.Inspection) error {
					return handover.Conflict("Order RN1 already has an inspection")
				},
			}
		})

		rec := h.do(t, http.MethodPost, "/api/inspections", map[string]any{"orderNumber": "RN1"})
		assert.Equal(t, http.StatusConflict, rec.Code)
	})
}

func TestGetInspection(t *testing.T) {
	h := newHarness(t)
	in := h.seed(t)

	tests := []struct {
		name   string
		path   string
		status int
		code   string
	}{
		{"by id", "/api/inspections/1", http.StatusOK, ""},
		{"by order", "/api/inspections/order/RN100", http.StatusOK, ""},
		{"missing", "/api/inspections/99", http.StatusNotFound, handover.ENOTFOUND},
		{"bad id", "/api/inspections/abc", http.StatusBadRequest, handover.EINVALID},
		{"missing order", "/api/inspections/order/RN999", http.StatusNotFound, handover.ENOTFOUND},
		{"unknown route", "/api/nothing", http.StatusNotFound, handover.ENOTFOUND},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := h.do(t, http.MethodGet, tt.path, nil)
			require.Equal(t, tt.status, rec.Code, rec.Body.String())
			if tt.code != "" {
				assert.Equal(t, tt.code, decode[handoverhttp.ErrorResponse](t, rec).Error)
				return
			}
			assert.Equal(t, in.ID, decode[handover.Inspection](t, rec).ID)
		})
	}
}

func TestListInspections(t *testing.T) {
	h := newHarness(t)
	h.seed(t)

	rec := h.do(t, http.MethodGet, "/api/inspections?status=on_delivery_pending&limit=5", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	list := decode[handoverhttp.ListResponse[handover.Inspection]](t, rec)
	assert.Equal(t, 1, list.Total)
	assert.Equal(t, 5, list.Limit)
	assert.Len(t, list.Data, 1)

	rec = h.do(t, http.MethodGet, "/api/inspections?status=bogus", nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = h.do(t, http.MethodGet, "/api/inspections?limit=-1", nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestUpdateItem(t *testing.T) {
	h := newHarness(t)
	in := h.seed(t)

	rec := h.do(t, http.MethodPatch, "/api/inspections/1/items/vin-match", map[string]any{
		"status": "failed",
		"notes":  "VIN plate scratched\x00",
	})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	got := decode[handover.Inspection](t, rec)
	item, ok := got.Item("vin-match")
	require.True(t, ok)
	assert.Equal(t, handover.ItemFailed, item.Status)
	assert.Equal(t, "VIN plate scratched", item.Notes)
	assert.Equal(t, 1, got.CompletedItems)
	assert.Equal(t, 1, got.FailedItems)
	assert.Equal(t, in.TotalItems, got.TotalItems)

	t.Run("unknown status", func(t *testing.T) {
		rec := h.do(t, http.MethodPatch, "/api/inspections/1/items/vin-match", map[string]any{"status": "maybe"})
		assert.Equal(t, http.StatusBadRequest, rec.Code)
	})

	t.Run("unknown item", func(t *testing.T) {
		rec := h.do(t, http.MethodPatch, "/api/inspections/1/items/nope", map[string]any{"status": "passed"})
		assert.Equal(t, http.StatusNotFound, rec.Code)
	})

	t.Run("final inspection is read-only", func(t *testing.T) {
		done := handover.NewInspection(handover.PlaceholderOrder("RN200", time.Now()), h.catalog.Sections())
		done.Status = handover.StatusFinalCompleted
		h.store.put(done)

		rec := h.do(t, http.MethodPatch, "/api/inspections/2/items/vin-match", map[string]any{"status": "passed"})
		assert.Equal(t, http.StatusConflict, rec.Code)

		rec = h.do(t, http.MethodPut, "/api/inspections/2", map[string]any{"testDriveKilometers": 12})
		assert.Equal(t, http.StatusConflict, rec.Code)
	})
}

func TestUpdateInspection(t *testing.T) {
	h := newHarness(t)
	h.seed(t)

	rec := h.do(t, http.MethodPut, "/api/inspections/1", map[string]any{
		"testDriveKilometers": 14,
		"representativeName":  "Grace",
		"language":            "fr",
		"status":              "final_completed",
	})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	got := decode[handover.Inspection](t, rec)
	assert.Equal(t, 14, got.TestDriveKilometers)
	assert.Equal(t, "Grace", got.RepresentativeName)
	assert.Equal(t, "fr", got.Language)
	assert.Equal(t, handover.StatusOnDeliveryPending, got.Status, "status only moves through phases")

	rec = h.do(t, http.MethodPut, "/api/inspections/1", map[string]any{"testDriveKilometers": 100000})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestCompletePhase(t *testing.T) {
	h := newHarness(t)
	in := h.seed(t)

	var gotPhase handover.Phase
	h.completer.completePhase = func(_ context.Context, id int64, phase handover.Phase, signature string) (*handover.PhaseCompletion, error) {
		gotPhase = phase
		assert.Equal(t, in.ID, id)
		assert.Equal(t, "data:image/png;base64,AAAA", signature)
		return &handover.PhaseCompletion{Inspection: in}, nil
	}

	rec := h.do(t, http.MethodPost, "/api/inspections/1/phases/on_delivery", map[string]any{
		"signature": "data:image/png;base64,AAAA",
	})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Equal(t, handover.PhaseOnDelivery, gotPhase)

	rec = h.do(t, http.MethodPost, "/api/inspections/1/phases/final", map[string]any{"signature": "x"})
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = h.do(t, http.MethodPost, "/api/inspections/1/phases/test_drive", map[string]any{})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestCompleteInspection(t *testing.T) {
	h := newHarness(t)
	h.seed(t)

	t.Run("success", func(t *testing.T) {
		h.completer.complete = func(context.Context, int64) (*handover.CompletionResult, error) {
			return &handover.CompletionResult{Success: true, ReportID: 7, EmailSent: true}, nil
		}
		rec := h.do(t, http.MethodPost, "/api/inspections/1/complete", nil)
		require.Equal(t, http.StatusOK, rec.Code)
		assert.Equal(t, int64(7), decode[handover.CompletionResult](t, rec).ReportID)
	})

	t.Run("unavailable", func(t *testing.T) {
		h.completer.complete = func(context.Context, int64) (*handover.CompletionResult, error) {
			return nil, handover.Unavailable("Failed to complete inspection", errors.New("smtp"))
		}
		rec := h.do(t, http.MethodPost, "/api/inspections/1/complete", nil)
		require.Equal(t, http.StatusServiceUnavailable, rec.Code)
		resp := decode[handoverhttp.ErrorResponse](t, rec)
		assert.Equal(t, handover.EUNAVAILABLE, resp.Error)
		assert.Equal(t, "Failed to complete inspection", resp.Message)
	})

	t.Run("deadline maps to timeout", func(t *testing.T) {
		h.completer.complete = func(context.Context, int64) (*handover.CompletionResult, error) {
			return nil, context.DeadlineExceeded
		}
		rec := h.do(t, http.MethodPost, "/api/inspections/1/complete", nil)
		assert.Equal(t, http.StatusGatewayTimeout, rec.Code)
	})

	t.Run("internal details are hidden", func(t *testing.T) {
		h.completer.complete = func(context.Context, int64) (*handover.CompletionResult, error) {
			return nil, errors.New("pq: password authentication failed")
		}
		rec := h.do(t, http.MethodPost, "/api/inspections/1/complete", nil)
		require.Equal(t, http.StatusInternalServerError, rec.Code)
		assert.NotContains(t, rec.Body.String(), "password")
	})
}

var pngHeader = []byte("\x89PNG\r\n\x1a\n\x00\x00\x00\rIHDR\x00\x00\x00\x01\x00\x00\x00\x01\x08\x02\x00\x00\x00")

func multipartBody(t *testing.T, fields map[string]string, fileName string, data []byte) (*bytes.Buffer, string) {
	t.Helper()
	var buf bytes.Buffer
	w := multipart.NewWriter(&buf)
	for k, v := range fields {
		require.NoError(t, w.WriteField(k, v))
	}
	if data != nil {
		fw, err := w.CreateFormFile("file", fileName)
		require.NoError(t, err)
		_, err = fw.Write(data)
		require.NoError(t, err)
	}
	require.NoError(t, w.Close())
	return &buf, w.FormDataContentType()
}

func (h *harness) upload(t *testing.T, fields map[string]string, fileName string, data []byte) *httptest.ResponseRecorder {
	t.Helper()
	body, contentType := multipartBody(t, fields, fileName, data)
	req := httptest.NewRequest(http.MethodPost, "/api/inspections/1/media", body)
	req.Header.Set("Content-Type", contentType)
	rec := httptest.NewRecorder()
	h.server.Echo().ServeHTTP(rec, req)
	return rec
}

func TestUploadMedia(t *testing.T) {
	h := newHarness(t)
	h.seed(t)

	t.Run("photo", func(t *testing.T) {
		rec := h.upload(t, map[string]string{"itemId": "paint-quality"}, "scratch.txt", pngHeader)
		require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())

		require.Len(t, h.uploader.Uploads, 1)
		up := h.uploader.Uploads[0]
		assert.Equal(t, handover.MediaPhoto, up.Kind)
		assert.Equal(t, "image/png", up.ContentType)
		assert.Equal(t, "paint-quality", up.ItemID)
		assert.Equal(t, int64(1), up.InspectionID)
	})

	t.Run("text is rejected", func(t *testing.T) {
		rec := h.upload(t, map[string]string{"itemId": "paint-quality"}, "photo.jpg", []byte("just some text"))
		require.Equal(t, http.StatusUnsupportedMediaType, rec.Code)
		assert.Equal(t, handover.EINVALIDFILETYPE, decode[handoverhttp.ErrorResponse](t, rec).Error)
	})

	t.Run("missing item", func(t *testing.T) {
		rec := h.upload(t, nil, "a.png", pngHeader)
		assert.Equal(t, http.StatusBadRequest, rec.Code)
	})

	t.Run("missing file", func(t *testing.T) {
		rec := h.upload(t, map[string]string{"itemId": "paint-quality"}, "", nil)
		assert.Equal(t, http.StatusBadRequest, rec.Code)
	})

	t.Run("limit maps to 422", func(t *testing.T) {
		h.uploader.UploadMediaFn = func(context.Context, *handover.MediaUpload) (*handover.MediaAttachment, error) {
			return nil, handover.Errorf(handover.EPHOTOLIMIT, "Maximum 5 photos per item")
		}
		rec := h.upload(t, map[string]string{"itemId": "paint-quality"}, "a.png", pngHeader)
		require.Equal(t, http.StatusUnprocessableEntity, rec.Code)
		assert.Equal(t, handover.EPHOTOLIMIT, decode[handoverhttp.ErrorResponse](t, rec).Error)
	})
}

func TestLookups(t *testing.T) {
	h := newHarness(t)

	rec := h.do(t, http.MethodGet, "/api/orders/RN555", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "RN555", decode[handover.Order](t, rec).OrderNumber)

	rec = h.do(t, http.MethodGet, "/api/orders/RN%20555", nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = h.do(t, http.MethodGet, "/api/catalog", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, len(h.catalog.Phases), len(decode[catalog.Catalog](t, rec).Phases))
}

func TestHealth(t *testing.T) {
	h := newHarness(t, func(c *handoverhttp.Config) { c.DB = pinger{err: errors.New("down")} })

	rec := h.do(t, http.MethodGet, "/health/live", nil)
	assert.Equal(t, http.StatusOK, rec.Code)

	rec = h.do(t, http.MethodGet, "/health/ready", nil)
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)

	rec = h.do(t, http.MethodGet, "/metrics", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.True(t, strings.Contains(rec.Body.String(), "http_requests_total") ||
		strings.Contains(rec.Body.String(), "go_goroutines"))
}

func TestRequestIDEchoed(t *testing.T) {
	h := newHarness(t)

	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	req.Header.Set("X-Request-ID", "abc-123")
	rec := httptest.NewRecorder()
	h.server.Echo().ServeHTTP(rec, req)

	assert.Equal(t, "abc-123", rec.Header().Get("X-Request-ID"))
}

func TestHistory(t *testing.T) {
	log := &auditLog{}
	h := newHarness(t, func(cfg *handoverhttp.Config) { cfg.AuditLog = log })
	h.seed(t)

	req := httptest.NewRequest(http.MethodPatch, "/api/inspections/1/items/vin-match",
		strings.NewReader(`{"status":"passed"}`))
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-Request-ID", "tablet-7")
	req.Header.Set("User-Agent", "handover-tablet")
	h.server.Echo().ServeHTTP(httptest.NewRecorder(), req)

	rec := h.do(t, http.MethodGet, "/api/inspections/1/history", nil)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	entries := decode[[]audit.Entry](t, rec)
	require.Len(t, entries, 1)
	assert.Equal(t, audit.ActionItemUpdated, entries[0].Action)
	assert.Equal(t, "tablet-7", entries[0].RequestID)
	assert.Equal(t, "handover-tablet", entries[0].UserAgent)
	assert.Equal(t, "vin-match", entries[0].Details["itemId"])

	t.Run("csv", func(t *testing.T) {
		rec := h.do(t, http.MethodGet, "/api/inspections/1/history?format=csv", nil)
		require.Equal(t, http.StatusOK, rec.Code)
		assert.Contains(t, rec.Header().Get("Content-Type"), "text/csv")
		assert.Contains(t, rec.Header().Get("Content-Disposition"), "inspection-1-history.csv")
		assert.True(t, strings.HasPrefix(rec.Body.String(), "timestamp,action,"))
		assert.Contains(t, rec.Body.String(), audit.ActionItemUpdated)
	})

	t.Run("unknown inspection", func(t *testing.T) {
		rec := h.do(t, http.MethodGet, "/api/inspections/99/history", nil)
		assert.Equal(t, http.StatusNotFound, rec.Code)
	})

	t.Run("disabled", func(t *testing.T) {
		rec := newHarness(t).do(t, http.MethodGet, "/api/inspections/1/history", nil)
		assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
	})
}
