// Package orders looks up vehicle order details from the fleet order API.
package orders

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/dukerupert/handover"
	"golang.org/x/oauth2"
	"golang.org/x/oauth2/clientcredentials"
)

// Compile-time interface checks
var (
	_ handover.OrderLookup = (*FleetClient)(nil)
	_ handover.OrderLookup = (*Fallback)(nil)
	_ handover.OrderLookup = (*Cached)(nil)
)

// DefaultTimeout bounds a single order lookup including token refresh.
const DefaultTimeout = 30 * time.Second

// FleetClient calls the order API with an OAuth2 client-credentials token.
type FleetClient struct {
	baseURL string
	client  *http.Client
}

// NewFleetClient creates a client. Tokens are fetched from cfg.TokenURL and
// refreshed automatically.
func NewFleetClient(cfg handover.OrderConfig) *FleetClient {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = DefaultTimeout
	}

	cc := clientcredentials.Config{
		ClientID:     cfg.ClientID,
		ClientSecret: cfg.ClientSecret,
		TokenURL:     cfg.TokenURL,
		AuthStyle:    oauth2.AuthStyleInParams,
	}

	base := &http.Client{Timeout: timeout}
	ctx := context.WithValue(context.Background(), oauth2.HTTPClient, base)
	client := cc.Client(ctx)
	client.Timeout = timeout

	return &FleetClient{
		baseURL: strings.TrimRight(cfg.BaseURL, "/"),
		client:  client,
	}
}

// orderResponse is the wire shape of the order API.
type orderResponse struct {
	OrderNumber   string `json:"order_number"`
	CustomerEmail string `json:"customer_email"`
	SalesRepEmail string `json:"sales_rep_email"`
	VehicleVIN    string `json:"vehicle_vin"`
	VehicleModel  string `json:"vehicle_model"`
	VehicleColor  string `json:"vehicle_color"`
	CustomerName  string `json:"customer_name"`
	DeliveryDate  string `json:"delivery_date"`
}

// LookupOrder fetches one order.
func (c *FleetClient) LookupOrder(ctx context.Context, orderNumber string) (*handover.Order, error) {
	if orderNumber == "" {
		return nil, handover.Invalid("Order number is required")
	}

	endpoint := fmt.Sprintf("%s/api/1/orders/%s", c.baseURL, url.PathEscape(orderNumber))
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, fmt.Errorf("building order request: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.client.Do(req)
	if err != nil {
		var retrieveErr *oauth2.RetrieveError
		if errors.As(err, &retrieveErr) {
			return nil, handover.WrapError(handover.EPERMISSION, "Order API rejected the credentials", err)
		}
		if errors.Is(err, context.DeadlineExceeded) {
			return nil, handover.WrapError(handover.ETIMEOUT, "Order lookup timed out", err)
		}
		return nil, handover.Unavailable("Order lookup failed", err)
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusNotFound:
		return nil, handover.NotFound("Order %s not found", orderNumber)
	case resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden:
		return nil, handover.PermissionDenied("Order API access denied")
	case resp.StatusCode == http.StatusTooManyRequests:
		return nil, handover.Errorf(handover.ERATELIMIT, "Order API rate limit reached")
	case resp.StatusCode >= 300:
		return nil, handover.Unavailable("Order lookup failed", fmt.Errorf("order API returned status %d", resp.StatusCode))
	}

	var body orderResponse
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return nil, handover.Unavailable("Order lookup failed", fmt.Errorf("decoding order: %w", err))
	}

	order := &handover.Order{
		OrderNumber:   body.OrderNumber,
		VIN:           body.VehicleVIN,
		VehicleModel:  body.VehicleModel,
		VehicleColor:  body.VehicleColor,
		CustomerName:  body.CustomerName,
		CustomerEmail: body.CustomerEmail,
		SalesRepEmail: body.SalesRepEmail,
	}
	if order.OrderNumber == "" {
		order.OrderNumber = orderNumber
	}
	if body.DeliveryDate != "" {
		if d, err := parseDate(body.DeliveryDate); err == nil {
			order.DeliveryDate = d
		}
	}
	return order, nil
}

// parseDate accepts a bare date or an RFC 3339 timestamp.
func parseDate(s string) (time.Time, error) {
	if t, err := time.Parse("2006-01-02", s); err == nil {
		return t, nil
	}
	return time.Parse(time.RFC3339, s)
}
