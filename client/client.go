// Package client is the HTTP client for the handover API. It implements the
// backend, media uploader, and order lookup used by a workflow session.
package client

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/dukerupert/handover"
	"github.com/dukerupert/handover/internal/audit"
	"github.com/dukerupert/handover/internal/workflow"
)

// DefaultTimeout bounds every request.
const DefaultTimeout = 30 * time.Second

// Compile-time interface checks
var (
	_ workflow.Backend       = (*Client)(nil)
	_ handover.MediaUploader = (*Client)(nil)
	_ handover.OrderLookup   = (*Client)(nil)
)

// Client talks to a handover server.
type Client struct {
	baseURL    string
	httpClient *http.Client
}

// Option configures a Client.
type Option func(*Client)

// WithHTTPClient replaces the default HTTP client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.httpClient = hc }
}

// New creates a client for the server at baseURL.
func New(baseURL string, opts ...Option) *Client {
	c := &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{Timeout: DefaultTimeout},
	}
	for _, o := range opts {
		o(c)
	}
	return c
}

// FindInspectionByOrderNumber fetches the inspection for an order.
func (c *Client) FindInspectionByOrderNumber(ctx context.Context, orderNumber string) (*handover.Inspection, error) {
	var in handover.Inspection
	if err := c.do(ctx, http.MethodGet, "/api/inspections/order/"+url.PathEscape(orderNumber), nil, &in); err != nil {
		return nil, err
	}
	return &in, nil
}

// FindInspectionByID fetches an inspection.
func (c *Client) FindInspectionByID(ctx context.Context, id int64) (*handover.Inspection, error) {
	var in handover.Inspection
	if err := c.do(ctx, http.MethodGet, inspectionPath(id, ""), nil, &in); err != nil {
		return nil, err
	}
	return &in, nil
}

type createRequest struct {
	OrderNumber        string             `json:"orderNumber"`
	VIN                string             `json:"vin"`
	VehicleModel       string             `json:"vehicleModel"`
	VehicleColor       string             `json:"vehicleColor"`
	CustomerName       string             `json:"customerName"`
	CustomerEmail      string             `json:"customerEmail,omitempty"`
	SalesRepEmail      string             `json:"salesRepEmail,omitempty"`
	RepresentativeName string             `json:"representativeName,omitempty"`
	DeliveryDate       time.Time          `json:"deliveryDate"`
	Language           string             `json:"language,omitempty"`
	Sections           []handover.Section `json:"sections"`
}

// CreateInspection creates the inspection on the server and copies the
// stored record back into inspection.
func (c *Client) CreateInspection(ctx context.Context, inspection *handover.Inspection) error {
	req := createRequest{
		OrderNumber:        inspection.OrderNumber,
		VIN:                inspection.VIN,
		VehicleModel:       inspection.VehicleModel,
		VehicleColor:       inspection.VehicleColor,
		CustomerName:       inspection.CustomerName,
		CustomerEmail:      inspection.CustomerEmail,
		SalesRepEmail:      inspection.SalesRepEmail,
		RepresentativeName: inspection.RepresentativeName,
		DeliveryDate:       inspection.DeliveryDate,
		Language:           inspection.Language,
		Sections:           inspection.Sections,
	}
	var created handover.Inspection
	if err := c.do(ctx, http.MethodPost, "/api/inspections", req, &created); err != nil {
		return err
	}
	*inspection = created
	return nil
}

// UpdateInspection sends a partial update. Phase records and status in upd
// are ignored by the server.
func (c *Client) UpdateInspection(ctx context.Context, id int64, upd handover.InspectionUpdate) (*handover.Inspection, error) {
	var in handover.Inspection
	if err := c.do(ctx, http.MethodPut, inspectionPath(id, ""), upd, &in); err != nil {
		return nil, err
	}
	return &in, nil
}

// CompletePhase signs a phase.
func (c *Client) CompletePhase(ctx context.Context, id int64, phase handover.Phase, signature string) (*handover.PhaseCompletion, error) {
	var out handover.PhaseCompletion
	body := map[string]string{"signature": signature}
	if err := c.do(ctx, http.MethodPost, inspectionPath(id, "/phases/"+string(phase)), body, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// CompleteInspection reruns report completion.
func (c *Client) CompleteInspection(ctx context.Context, id int64) (*handover.CompletionResult, error) {
	var out handover.CompletionResult
	if err := c.do(ctx, http.MethodPost, inspectionPath(id, "/complete"), nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// FindReport fetches the report of a completed inspection.
func (c *Client) FindReport(ctx context.Context, id int64) (*handover.InspectionReport, error) {
	var out handover.InspectionReport
	if err := c.do(ctx, http.MethodGet, inspectionPath(id, "/report"), nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// FindHistory fetches the audit history of an inspection.
func (c *Client) FindHistory(ctx context.Context, id int64) ([]audit.Entry, error) {
	var out []audit.Entry
	if err := c.do(ctx, http.MethodGet, inspectionPath(id, "/history"), nil, &out); err != nil {
		return nil, err
	}
	return out, nil
}

// LookupOrder fetches order details.
func (c *Client) LookupOrder(ctx context.Context, orderNumber string) (*handover.Order, error) {
	var out handover.Order
	if err := c.do(ctx, http.MethodGet, "/api/orders/"+url.PathEscape(orderNumber), nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// UploadMedia posts a file as multipart form data.
func (c *Client) UploadMedia(ctx context.Context, upload *handover.MediaUpload) (*handover.MediaAttachment, error) {
	var buf bytes.Buffer
	w := multipart.NewWriter(&buf)
	if err := w.WriteField("itemId", upload.ItemID); err != nil {
		return nil, err
	}
	if upload.Duration > 0 {
		secs := strconv.FormatFloat(upload.Duration.Seconds(), 'f', 3, 64)
		if err := w.WriteField("duration", secs); err != nil {
			return nil, err
		}
	}
	fw, err := w.CreateFormFile("file", upload.FileName)
	if err != nil {
		return nil, err
	}
	if _, err := fw.Write(upload.Data); err != nil {
		return nil, err
	}
	if err := w.Close(); err != nil {
		return nil, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+inspectionPath(upload.InspectionID, "/media"), &buf)
	if err != nil {
		return nil, fmt.Errorf("building request: %w", err)
	}
	req.Header.Set("Content-Type", w.FormDataContentType())

	var att handover.MediaAttachment
	if err := c.send(req, &att); err != nil {
		return nil, err
	}
	return &att, nil
}

func inspectionPath(id int64, suffix string) string {
	return "/api/inspections/" + strconv.FormatInt(id, 10) + suffix
}

func (c *Client) do(ctx context.Context, method, path string, body, out any) error {
	var r io.Reader
	if body != nil {
		b, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("encoding request: %w", err)
		}
		r = bytes.NewReader(b)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, r)
	if err != nil {
		return fmt.Errorf("building request: %w", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	req.Header.Set("Accept", "application/json")

	return c.send(req, out)
}

func (c *Client) send(req *http.Request, out any) error {
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return transportError(err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		return decodeError(resp)
	}
	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return handover.Unavailable("Invalid response from server", err)
	}
	return nil
}

func transportError(err error) error {
	var netErr interface{ Timeout() bool }
	if errors.Is(err, context.DeadlineExceeded) || errors.As(err, &netErr) && netErr.Timeout() {
		return handover.WrapError(handover.ETIMEOUT, "The server did not respond in time", err)
	}
	if errors.Is(err, context.Canceled) {
		return err
	}
	return handover.Unavailable("Could not reach the server", err)
}

type errorResponse struct {
	Error   string            `json:"error"`
	Message string            `json:"message"`
	Fields  map[string]string `json:"fields"`
}

// decodeError rebuilds the domain error from an error response. Bodies that
// are not API errors, such as proxy pages, are mapped by status.
func decodeError(resp *http.Response) error {
	var body errorResponse
	data, _ := io.ReadAll(io.LimitReader(resp.Body, 64<<10))
	if json.Unmarshal(data, &body) == nil && body.Error != "" {
		return &handover.Error{Code: body.Error, Message: body.Message, Fields: body.Fields}
	}

	msg := http.StatusText(resp.StatusCode)
	return &handover.Error{Code: statusCode(resp.StatusCode), Message: msg}
}

func statusCode(status int) string {
	switch status {
	case http.StatusBadRequest, http.StatusUnprocessableEntity:
		return handover.EINVALID
	case http.StatusUnauthorized, http.StatusForbidden:
		return handover.EPERMISSION
	case http.StatusNotFound:
		return handover.ENOTFOUND
	case http.StatusConflict:
		return handover.ECONFLICT
	case http.StatusRequestEntityTooLarge:
		return handover.EFILETOOLARGE
	case http.StatusUnsupportedMediaType:
		return handover.EINVALIDFILETYPE
	case http.StatusTooManyRequests:
		return handover.ERATELIMIT
	case http.StatusBadGateway, http.StatusServiceUnavailable:
		return handover.EUNAVAILABLE
	case http.StatusGatewayTimeout:
		return handover.ETIMEOUT
	default:
		return handover.EINTERNAL
	}
}
