package orders

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/shopspring/decimal"

	"github.com/avelarde/boostpanel-backend/internal/audit"
	"github.com/avelarde/boostpanel-backend/internal/pricing"
	"github.com/avelarde/boostpanel-backend/internal/providers"
	"github.com/avelarde/boostpanel-backend/internal/users"
	"github.com/avelarde/boostpanel-backend/pkg/config"
	"github.com/avelarde/boostpanel-backend/pkg/db/models"
	"github.com/avelarde/boostpanel-backend/pkg/enums"
	pkgerrors "github.com/avelarde/boostpanel-backend/pkg/errors"
	"github.com/avelarde/boostpanel-backend/pkg/logger"
)

type txRunner interface {
	WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error
}

type rateLimiter interface {
	FixedWindowAllow(ctx context.Context, scope string, limit int64, window time.Duration) (bool, int64, error)
}

type auditRecorder interface {
	Record(ctx context.Context, event models.AuditEvent)
}

type serviceCatalog interface {
	FindServiceByID(ctx context.Context, id uuid.UUID) (*models.Service, error)
}

type customRates interface {
	CustomRate(ctx context.Context, userID, serviceID uuid.UUID) (*decimal.Decimal, error)
}

type providerStore interface {
	FindByID(ctx context.Context, id uuid.UUID) (*models.Provider, error)
}

// Service owns the order lifecycle from intake through the cancellation
// handshake. Status transitions and refunds after submission belong to the
// reconciliation job, not here.
type Service struct {
	tx        txRunner
	orders    Repository
	users     users.Repository
	catalog   serviceCatalog
	rules     customRates
	providers providerStore
	gateways  providers.Factory
	limiter   rateLimiter
	audit     auditRecorder
	logg      *logger.Logger
	cfg       config.IntakeConfig
	now       func() time.Time
}

// ServiceParams wires the order service.
type ServiceParams struct {
	Tx        txRunner
	Orders    Repository
	Users     users.Repository
	Catalog   serviceCatalog
	Rules     customRates
	Providers providerStore
	Gateways  providers.Factory
	Limiter   rateLimiter
	Audit     auditRecorder
	Logger    *logger.Logger
	Config    config.IntakeConfig
	Now       func() time.Time
}

// NewService validates dependencies and returns the order service.
func NewService(params ServiceParams) (*Service, error) {
	switch {
	case params.Tx == nil:
		return nil, fmt.Errorf("transaction runner required")
	case params.Orders == nil:
		return nil, fmt.Errorf("orders repository required")
	case params.Users == nil:
		return nil, fmt.Errorf("users repository required")
	case params.Catalog == nil:
		return nil, fmt.Errorf("catalog repository required")
	case params.Rules == nil:
		return nil, fmt.Errorf("pricing rule repository required")
	case params.Providers == nil:
		return nil, fmt.Errorf("providers repository required")
	case params.Gateways == nil:
		return nil, fmt.Errorf("gateway factory required")
	}
	if params.Now == nil {
		params.Now = time.Now
	}
	return &Service{
		tx:        params.Tx,
		orders:    params.Orders,
		users:     params.Users,
		catalog:   params.Catalog,
		rules:     params.Rules,
		providers: params.Providers,
		gateways:  params.Gateways,
		limiter:   params.Limiter,
		audit:     params.Audit,
		logg:      params.Logger,
		cfg:       params.Config,
		now:       params.Now,
	}, nil
}

// Create validates, prices, debits, persists, and submits a new order.
// The debit and the order row commit together; the provider submission
// happens after commit. A failed submission is not a failed request: the
// order stays pending with the debit intact and the reconcile loop retries
// the submission.
func (s *Service) Create(ctx context.Context, userID uuid.UUID, req CreateOrderRequest) (*OrderResponse, error) {
	if err := s.allowIntake(ctx, userID); err != nil {
		return nil, err
	}

	service, err := s.loadOrderableService(ctx, req.ServiceID)
	if err != nil {
		return nil, err
	}
	if err := s.validateIntake(service, req); err != nil {
		return nil, err
	}

	since := s.now().Add(-s.cfg.DuplicateLinkWindow)
	duplicate, err := s.orders.HasRecentDuplicate(ctx, userID, service.ID, req.Link, since)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "checking duplicate orders")
	}
	if duplicate {
		return nil, pkgerrors.New(pkgerrors.CodeConflict, "an active order for this link already exists")
	}

	user, err := s.users.FindByID(ctx, userID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, pkgerrors.New(pkgerrors.CodeNotFound, "user not found")
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "loading user")
	}

	customRate, err := s.rules.CustomRate(ctx, userID, service.ID)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "loading pricing rule")
	}
	charge, err := pricing.Quote(service.RatePer1000, customRate, user.DiscountPercent, req.Quantity)
	if err != nil {
		return nil, err
	}

	order := &models.Order{
		ID:         uuid.New(),
		UserID:     userID,
		ServiceID:  service.ID,
		ProviderID: service.ProviderID,
		Link:       req.Link,
		Quantity:   req.Quantity,
		Comments:   req.Comments,
		Status:     enums.OrderStatusPending,
		ChargeUser: charge,
	}

	err = s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		debited, err := s.users.WithTx(tx).DebitBalance(ctx, userID, charge)
		if err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "debiting balance")
		}
		if !debited {
			return pkgerrors.New(pkgerrors.CodeInsufficientBalance, "balance does not cover the order").
				WithDetails(map[string]string{"required": charge.String()})
		}
		if err := s.orders.WithTx(tx).Create(ctx, order); err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "persisting order")
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	if service.LinkedToProvider() {
		if err := s.submit(ctx, order, service); err != nil {
			return nil, err
		}
	}

	if s.audit != nil {
		s.audit.Record(ctx, audit.Event(&userID, "order.created", map[string]any{
			"order_id":   order.ID,
			"service_id": service.ID,
			"quantity":   order.Quantity,
			"charge":     charge.String(),
		}))
	}
	resp := toOrderResponse(order)
	return &resp, nil
}

// submit forwards the order to its provider. Any failure on this path
// leaves the order pending with the debit intact; a submit timeout may mean
// the provider actually accepted, so reversing here could refund an order
// that is being delivered. The reconcile loop retries the submission.
func (s *Service) submit(ctx context.Context, order *models.Order, service *models.Service) error {
	provider, err := s.providers.FindByID(ctx, *service.ProviderID)
	if err != nil {
		s.noteSubmitFailure(ctx, order, "", err)
		return nil
	}
	if !provider.Enabled {
		// Leave the order pending; the reconcile loop will retry submission
		// once the provider is re-enabled.
		if s.logg != nil {
			logCtx := s.logg.WithFields(ctx, map[string]any{"order_id": order.ID, "provider": provider.Name})
			s.logg.Warn(logCtx, "provider disabled, order held pending")
		}
		return nil
	}

	submitCtx := ctx
	if s.cfg.SubmitTimeoutSeconds > 0 {
		var cancel context.CancelFunc
		submitCtx, cancel = context.WithTimeout(ctx, time.Duration(s.cfg.SubmitTimeoutSeconds)*time.Second)
		defer cancel()
	}

	submitReq := providers.SubmitRequest{
		ServiceID: *service.ProviderServiceID,
		Link:      order.Link,
		Quantity:  order.Quantity,
	}
	if order.Comments != nil {
		submitReq.Comments = *order.Comments
	}

	providerOrderID, err := s.gateways(provider).Submit(submitCtx, submitReq)
	if err != nil {
		s.noteSubmitFailure(ctx, order, provider.Name, err)
		return nil
	}

	if err := s.orders.AttachProviderOrderID(ctx, order.ID, providerOrderID); err != nil {
		// The provider accepted; losing the id would orphan the remote
		// order, so surface the persistence failure without reversing.
		return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "recording provider order id")
	}
	order.ProviderOrderID = &providerOrderID
	return nil
}

func (s *Service) noteSubmitFailure(ctx context.Context, order *models.Order, providerName string, cause error) {
	if s.logg != nil {
		logCtx := s.logg.WithFields(ctx, map[string]any{
			"order_id": order.ID,
			"provider": providerName,
			"error":    cause.Error(),
		})
		s.logg.Warn(logCtx, "provider submission failed, order held pending")
	}
	if s.audit != nil {
		s.audit.Record(ctx, audit.Event(&order.UserID, "order.submit_failed", map[string]any{
			"order_id": order.ID,
			"provider": providerName,
			"error":    cause.Error(),
		}))
	}
}

// GetByID returns an order visible to the caller.
func (s *Service) GetByID(ctx context.Context, userID uuid.UUID, role enums.UserRole, orderID uuid.UUID) (*OrderResponse, error) {
	order, err := s.loadVisibleOrder(ctx, userID, role, orderID)
	if err != nil {
		return nil, err
	}
	resp := toOrderResponse(order)
	return &resp, nil
}

// List returns the caller's orders, newest first.
func (s *Service) List(ctx context.Context, userID uuid.UUID, req ListOrdersRequest) ([]OrderResponse, error) {
	limit := req.Limit
	if limit <= 0 {
		limit = s.cfg.DefaultPageSize
	}
	if s.cfg.MaxPageSize > 0 && limit > s.cfg.MaxPageSize {
		limit = s.cfg.MaxPageSize
	}
	offset := 0
	if req.Page > 1 {
		offset = (req.Page - 1) * limit
	}
	if req.Status != nil && !req.Status.IsValid() {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "unknown order status")
	}

	records, err := s.orders.ListByUser(ctx, userID, ListFilters{Status: req.Status, Limit: limit, Offset: offset})
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "listing orders")
	}
	return toOrderResponses(records), nil
}

// RequestCancellation starts the two-phase cancel. The provider must accept
// the cancellation before anything is persisted; only then is the request
// stamped, exactly once, and the reconcile loop settles the outcome. Orders
// never submitted cancel and refund immediately without a provider call.
func (s *Service) RequestCancellation(ctx context.Context, userID uuid.UUID, role enums.UserRole, orderID uuid.UUID) (*OrderResponse, error) {
	order, err := s.loadVisibleOrder(ctx, userID, role, orderID)
	if err != nil {
		return nil, err
	}
	if order.Status.IsTerminal() || order.Refunded {
		return nil, pkgerrors.New(pkgerrors.CodeStateConflict, "order already settled")
	}
	if order.CancelRequestedAt != nil {
		return nil, pkgerrors.New(pkgerrors.CodeStateConflict, "cancellation already requested")
	}

	service, err := s.catalog.FindServiceByID(ctx, order.ServiceID)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "loading service")
	}
	if !service.SupportsCancel {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "service does not support cancellation")
	}

	if order.ProviderOrderID != nil {
		// A refusal must not consume the cancel stamp: an unstamped order
		// can be retried, a stamped one never can.
		if err := s.forwardCancel(ctx, order); err != nil {
			return nil, err
		}
	}

	stamped, err := s.orders.SetCancelRequested(ctx, orderID, s.now())
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "stamping cancellation")
	}
	if !stamped {
		return nil, pkgerrors.New(pkgerrors.CodeStateConflict, "cancellation already requested")
	}

	if order.ProviderOrderID == nil {
		if err := s.cancelLocally(ctx, order); err != nil {
			return nil, err
		}
	}

	if s.audit != nil {
		s.audit.Record(ctx, audit.Event(&order.UserID, "order.cancel_requested", map[string]any{"order_id": order.ID}))
	}

	fresh, err := s.orders.FindByID(ctx, orderID)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "reloading order")
	}
	resp := toOrderResponse(fresh)
	return &resp, nil
}

// cancelLocally settles an order the provider never saw: full refund and a
// terminal canceled status in one transaction.
func (s *Service) cancelLocally(ctx context.Context, order *models.Order) error {
	err := s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		claimed, err := s.orders.WithTx(tx).ClaimRefund(ctx, order.ID, order.ChargeUser)
		if err != nil {
			return err
		}
		if claimed {
			if err := s.users.WithTx(tx).CreditBalance(ctx, order.UserID, order.ChargeUser); err != nil {
				return err
			}
		}
		return s.orders.WithTx(tx).UpdateStatusProgress(ctx, order.ID, StatusProgress{Status: enums.OrderStatusCanceled})
	})
	if err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "canceling unsubmitted order")
	}
	return nil
}

// forwardCancel asks the provider to cancel. Acceptance means accepted for
// processing, not canceled; the reconcile loop observes the real outcome.
func (s *Service) forwardCancel(ctx context.Context, order *models.Order) error {
	if order.ProviderID == nil {
		return pkgerrors.New(pkgerrors.CodeStateConflict, "order has no provider reference")
	}
	provider, err := s.providers.FindByID(ctx, *order.ProviderID)
	if err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "loading provider")
	}
	if _, err := s.gateways(provider).Cancel(ctx, *order.ProviderOrderID); err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeProvider, err, "provider did not accept the cancellation")
	}
	return nil
}

// RequestRefill forwards a refill for a delivered order and reports the
// provider's acknowledgement id.
func (s *Service) RequestRefill(ctx context.Context, userID uuid.UUID, role enums.UserRole, orderID uuid.UUID) (*RefillResponse, error) {
	order, err := s.loadVisibleOrder(ctx, userID, role, orderID)
	if err != nil {
		return nil, err
	}
	if order.Status != enums.OrderStatusCompleted && order.Status != enums.OrderStatusPartial {
		return nil, pkgerrors.New(pkgerrors.CodeStateConflict, "refill requires a delivered order")
	}
	if order.ProviderID == nil || order.ProviderOrderID == nil {
		return nil, pkgerrors.New(pkgerrors.CodeStateConflict, "order has no provider reference")
	}

	service, err := s.catalog.FindServiceByID(ctx, order.ServiceID)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "loading service")
	}
	if !service.SupportsRefill {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "service does not support refill")
	}

	provider, err := s.providers.FindByID(ctx, *order.ProviderID)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "loading provider")
	}
	ack, err := s.gateways(provider).Refill(ctx, *order.ProviderOrderID)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeProvider, err, "provider refused refill")
	}

	if s.audit != nil {
		s.audit.Record(ctx, audit.Event(&order.UserID, "order.refill_requested", map[string]any{
			"order_id":  order.ID,
			"refill_id": ack.AckID,
		}))
	}
	return &RefillResponse{OrderID: order.ID, RefillID: ack.AckID}, nil
}

func (s *Service) allowIntake(ctx context.Context, userID uuid.UUID) error {
	if s.limiter == nil || s.cfg.RateLimitMax <= 0 {
		return nil
	}
	allowed, _, err := s.limiter.FixedWindowAllow(ctx, "orders:"+userID.String(), int64(s.cfg.RateLimitMax), s.cfg.RateLimitWindow)
	if err != nil {
		// Redis being down must not block paying customers.
		if s.logg != nil {
			s.logg.Warn(ctx, "rate limiter unavailable, allowing request")
		}
		return nil
	}
	if !allowed {
		return pkgerrors.New(pkgerrors.CodeRateLimit, "too many orders, slow down")
	}
	return nil
}

func (s *Service) loadOrderableService(ctx context.Context, serviceID uuid.UUID) (*models.Service, error) {
	service, err := s.catalog.FindServiceByID(ctx, serviceID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, pkgerrors.New(pkgerrors.CodeNotFound, "service not found")
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "loading service")
	}
	if !service.Enabled {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "service is disabled")
	}
	return service, nil
}

func (s *Service) validateIntake(service *models.Service, req CreateOrderRequest) error {
	link := strings.TrimSpace(req.Link)
	if link == "" {
		return pkgerrors.New(pkgerrors.CodeValidation, "link is required")
	}
	if s.cfg.MaxLinkLength > 0 && len(link) > s.cfg.MaxLinkLength {
		return pkgerrors.New(pkgerrors.CodeValidation, "link exceeds maximum length")
	}
	parsed, err := url.Parse(link)
	if err != nil || (parsed.Scheme != "http" && parsed.Scheme != "https") || parsed.Host == "" {
		return pkgerrors.New(pkgerrors.CodeValidation, "link must be an http or https url")
	}

	if req.Quantity < service.MinQuantity || req.Quantity > service.MaxQuantity {
		return pkgerrors.New(pkgerrors.CodeValidation, "quantity out of service bounds").
			WithDetails(map[string]int{"min": service.MinQuantity, "max": service.MaxQuantity})
	}

	if service.Type.RequiresComments() {
		if req.Comments == nil {
			return pkgerrors.New(pkgerrors.CodeValidation, "comments are required for this service")
		}
		if n := countCommentLines(*req.Comments); n != req.Quantity {
			return pkgerrors.New(pkgerrors.CodeValidation, "quantity must match the number of comments").
				WithDetails(map[string]int{"comments": n, "quantity": req.Quantity})
		}
	}
	return nil
}

func (s *Service) loadVisibleOrder(ctx context.Context, userID uuid.UUID, role enums.UserRole, orderID uuid.UUID) (*models.Order, error) {
	order, err := s.orders.FindByID(ctx, orderID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, pkgerrors.New(pkgerrors.CodeNotFound, "order not found")
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "loading order")
	}
	if order.UserID != userID && role != enums.UserRoleAdmin {
		// Do not disclose that another user's order exists.
		return nil, pkgerrors.New(pkgerrors.CodeNotFound, "order not found")
	}
	return order, nil
}

func countCommentLines(comments string) int {
	count := 0
	for _, line := range strings.Split(comments, "\n") {
		if strings.TrimSpace(line) != "" {
			count++
		}
	}
	return count
}
