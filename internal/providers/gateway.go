package providers

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/avelarde/boostpanel-backend/pkg/db/models"
	"github.com/avelarde/boostpanel-backend/pkg/logger"
)

const (
	actionAdd      = "add"
	actionStatus   = "status"
	actionCancel   = "cancel"
	actionRefill   = "refill"
	actionServices = "services"
	actionBalance  = "balance"

	maxResponseBytes = 4 << 20
)

// SubmitRequest carries the normalized submission payload.
type SubmitRequest struct {
	ServiceID string
	Link      string
	Quantity  int
	Comments  string
}

// StatusResult is the normalized provider view of an order's progress.
// Pointer fields are nil when the provider omitted them.
type StatusResult struct {
	Status     string
	Charge     *decimal.Decimal
	StartCount *int
	Remains    *int
}

// AckResult reports acceptance of a cancel or refill request. Accepted is
// true only when the provider returned a positive numeric id; a zero,
// negative, or missing id is surfaced as an error instead, so callers never
// see Accepted=false.
type AckResult struct {
	Accepted bool
	AckID    int64
}

// ServiceDescriptor is one provider-side service from the services action.
type ServiceDescriptor struct {
	ServiceID      string
	Name           string
	Category       string
	Rate           decimal.Decimal
	MinQuantity    int
	MaxQuantity    int
	SupportsRefill bool
	SupportsCancel bool
	Description    string
	Raw            json.RawMessage
}

// Gateway normalizes one provider's HTTP API into canonical calls. All
// failures are *providers.Error; callers must never infer success from the
// absence of an error alone.
type Gateway interface {
	Submit(ctx context.Context, req SubmitRequest) (string, error)
	Status(ctx context.Context, providerOrderID string) (*StatusResult, error)
	Cancel(ctx context.Context, providerOrderID string) (*AckResult, error)
	Refill(ctx context.Context, providerOrderID string) (*AckResult, error)
	ListServices(ctx context.Context) ([]ServiceDescriptor, error)
	Balance(ctx context.Context) (decimal.Decimal, error)
}

// Factory builds a Gateway for a provider record. Indirection exists so the
// reconcile and sync jobs can be tested against stub gateways.
type Factory func(provider *models.Provider) Gateway

// HTTPGateway speaks the conventional panel-provider protocol:
// form-encoded POST with a shared key and an action, JSON response.
type HTTPGateway struct {
	name   string
	apiURL string
	apiKey string
	client *http.Client
	logg   *logger.Logger
}

// NewHTTPGateway wires a gateway for one provider.
func NewHTTPGateway(provider *models.Provider, timeout time.Duration, logg *logger.Logger) *HTTPGateway {
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &HTTPGateway{
		name:   provider.Name,
		apiURL: provider.APIURL,
		apiKey: provider.APIKey,
		client: &http.Client{Timeout: timeout},
		logg:   logg,
	}
}

// NewFactory returns a Factory producing HTTP gateways with shared settings.
func NewFactory(timeout time.Duration, logg *logger.Logger) Factory {
	return func(provider *models.Provider) Gateway {
		return NewHTTPGateway(provider, timeout, logg)
	}
}

type submitResponse struct {
	Order flexString `json:"order"`
	Error flexString `json:"error"`
}

func (g *HTTPGateway) Submit(ctx context.Context, req SubmitRequest) (string, error) {
	params := url.Values{}
	params.Set("service", req.ServiceID)
	params.Set("link", req.Link)
	params.Set("quantity", strconv.Itoa(req.Quantity))
	if req.Comments != "" {
		params.Set("comments", req.Comments)
	}

	body, err := g.post(ctx, actionAdd, params)
	if err != nil {
		return "", err
	}

	var resp submitResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return "", newError(g.name, actionAdd, "malformed response: %v", err)
	}
	if resp.Error != "" {
		return "", newError(g.name, actionAdd, "%s", resp.Error)
	}
	orderID := strings.TrimSpace(string(resp.Order))
	if orderID == "" || orderID == "0" {
		return "", newError(g.name, actionAdd, "response missing order id")
	}
	return orderID, nil
}

type statusResponse struct {
	Status     string      `json:"status"`
	Charge     flexDecimal `json:"charge"`
	StartCount flexInt     `json:"start_count"`
	Remains    flexInt     `json:"remains"`
	Error      flexString  `json:"error"`
}

func (g *HTTPGateway) Status(ctx context.Context, providerOrderID string) (*StatusResult, error) {
	params := url.Values{}
	params.Set("order", providerOrderID)

	body, err := g.post(ctx, actionStatus, params)
	if err != nil {
		return nil, err
	}

	var resp statusResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return nil, newError(g.name, actionStatus, "malformed response: %v", err)
	}
	if resp.Error != "" {
		return nil, newError(g.name, actionStatus, "%s", resp.Error)
	}
	if strings.TrimSpace(resp.Status) == "" {
		return nil, newError(g.name, actionStatus, "response missing status")
	}

	result := &StatusResult{Status: resp.Status}
	if resp.Charge.Set {
		charge := resp.Charge.Value
		result.Charge = &charge
	}
	if resp.StartCount.Set {
		v := int(resp.StartCount.Value)
		result.StartCount = &v
	}
	if resp.Remains.Set {
		v := int(resp.Remains.Value)
		result.Remains = &v
	}
	return result, nil
}

type ackResponse struct {
	Cancel flexInt    `json:"cancel"`
	Refill flexInt    `json:"refill"`
	Error  flexString `json:"error"`
}

func (g *HTTPGateway) Cancel(ctx context.Context, providerOrderID string) (*AckResult, error) {
	return g.ack(ctx, actionCancel, providerOrderID)
}

func (g *HTTPGateway) Refill(ctx context.Context, providerOrderID string) (*AckResult, error) {
	return g.ack(ctx, actionRefill, providerOrderID)
}

// ack requires a positive numeric acceptance id. Providers have been seen
// returning 0, -1, or error-shaped bodies that superficially resemble
// success; none of those count.
func (g *HTTPGateway) ack(ctx context.Context, action string, providerOrderID string) (*AckResult, error) {
	params := url.Values{}
	params.Set("order", providerOrderID)

	body, err := g.post(ctx, action, params)
	if err != nil {
		return nil, err
	}

	var resp ackResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return nil, newError(g.name, action, "malformed response: %v", err)
	}
	if resp.Error != "" {
		return nil, newError(g.name, action, "%s", resp.Error)
	}

	id := resp.Cancel
	if action == actionRefill {
		id = resp.Refill
	}
	if !id.Set || id.Value <= 0 {
		return nil, newError(g.name, action, "request not accepted (id=%d)", id.Value)
	}
	return &AckResult{Accepted: true, AckID: id.Value}, nil
}

type serviceDescriptorResponse struct {
	Service  flexString  `json:"service"`
	Name     string      `json:"name"`
	Category string      `json:"category"`
	Rate     flexDecimal `json:"rate"`
	Min      flexInt     `json:"min"`
	Max      flexInt     `json:"max"`
	Refill   flexBool    `json:"refill"`
	Cancel   flexBool    `json:"cancel"`
	Desc     string      `json:"desc"`
}

func (g *HTTPGateway) ListServices(ctx context.Context) ([]ServiceDescriptor, error) {
	body, err := g.post(ctx, actionServices, url.Values{})
	if err != nil {
		return nil, err
	}

	// a bare error object instead of the documented array
	var errResp struct {
		Error flexString `json:"error"`
	}
	if jsonErr := json.Unmarshal(body, &errResp); jsonErr == nil && errResp.Error != "" {
		return nil, newError(g.name, actionServices, "%s", errResp.Error)
	}

	var raw []json.RawMessage
	if err := json.Unmarshal(body, &raw); err != nil {
		return nil, newError(g.name, actionServices, "malformed response: %v", err)
	}

	descriptors := make([]ServiceDescriptor, 0, len(raw))
	for _, entry := range raw {
		var item serviceDescriptorResponse
		if err := json.Unmarshal(entry, &item); err != nil {
			return nil, newError(g.name, actionServices, "malformed service entry: %v", err)
		}
		id := strings.TrimSpace(string(item.Service))
		if id == "" {
			continue
		}
		descriptors = append(descriptors, ServiceDescriptor{
			ServiceID:      id,
			Name:           item.Name,
			Category:       item.Category,
			Rate:           item.Rate.Value,
			MinQuantity:    int(item.Min.Value),
			MaxQuantity:    int(item.Max.Value),
			SupportsRefill: bool(item.Refill),
			SupportsCancel: bool(item.Cancel),
			Description:    item.Desc,
			Raw:            entry,
		})
	}
	return descriptors, nil
}

type balanceResponse struct {
	Balance flexDecimal `json:"balance"`
	Error   flexString  `json:"error"`
}

func (g *HTTPGateway) Balance(ctx context.Context) (decimal.Decimal, error) {
	body, err := g.post(ctx, actionBalance, url.Values{})
	if err != nil {
		return decimal.Zero, err
	}

	var resp balanceResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return decimal.Zero, newError(g.name, actionBalance, "malformed response: %v", err)
	}
	if resp.Error != "" {
		return decimal.Zero, newError(g.name, actionBalance, "%s", resp.Error)
	}
	if !resp.Balance.Set {
		return decimal.Zero, newError(g.name, actionBalance, "response missing balance")
	}
	return resp.Balance.Value, nil
}

func (g *HTTPGateway) post(ctx context.Context, action string, params url.Values) ([]byte, error) {
	params.Set("key", g.apiKey)
	params.Set("action", action)

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, g.apiURL, strings.NewReader(params.Encode()))
	if err != nil {
		return nil, newError(g.name, action, "build request: %v", err)
	}
	httpReq.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	g.log(ctx, "request", action)
	resp, err := g.client.Do(httpReq)
	if err != nil {
		return nil, newError(g.name, action, "http: %v", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return nil, newError(g.name, action, "read body: %v", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, newError(g.name, action, "http %d: %s", resp.StatusCode, truncate(string(body), 200))
	}
	g.log(ctx, "response", action)
	return body, nil
}

func (g *HTTPGateway) log(ctx context.Context, phase, action string) {
	if g.logg == nil {
		return
	}
	ctx = g.logg.WithFields(ctx, map[string]any{
		"provider": g.name,
		"action":   action,
	})
	g.logg.Debug(ctx, fmt.Sprintf("provider.%s", phase))
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
