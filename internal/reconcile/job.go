package reconcile

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/multierr"

	"github.com/avelarde/boostpanel-backend/internal/orders"
	"github.com/avelarde/boostpanel-backend/internal/providers"
	"github.com/avelarde/boostpanel-backend/internal/refund"
	"github.com/avelarde/boostpanel-backend/pkg/config"
	"github.com/avelarde/boostpanel-backend/pkg/db/models"
	"github.com/avelarde/boostpanel-backend/pkg/enums"
	"github.com/avelarde/boostpanel-backend/pkg/logger"
	"github.com/avelarde/boostpanel-backend/pkg/metrics"
)

// JobName identifies the reconcile job in the cron registry and metrics.
const JobName = "order-reconcile"

type providerStore interface {
	FindByID(ctx context.Context, id uuid.UUID) (*models.Provider, error)
}

type serviceStore interface {
	FindServiceByID(ctx context.Context, id uuid.UUID) (*models.Service, error)
}

type refundLedger interface {
	Apply(ctx context.Context, order *models.Order, amount decimal.Decimal) (bool, error)
}

// Job polls providers for order progress and settles statuses and refunds.
// Each cycle makes several passes with a short delay so orders that settle
// quickly are observed within one cycle. One order failing never stops the
// sweep; failures are collected and reported together.
type Job struct {
	orders   orders.Repository
	provider providerStore
	services serviceStore
	gateways providers.Factory
	ledger   refundLedger
	cfg      config.ReconcileConfig
	logg     *logger.Logger
	metrics  *metrics.ReconcileMetrics
	sleep    func(ctx context.Context, d time.Duration) error
}

// JobParams wires the reconcile job.
type JobParams struct {
	Orders    orders.Repository
	Providers providerStore
	Services  serviceStore
	Gateways  providers.Factory
	Ledger    refundLedger
	Config    config.ReconcileConfig
	Logger    *logger.Logger
	Metrics   *metrics.ReconcileMetrics
}

// NewJob validates dependencies and returns the reconcile job.
func NewJob(params JobParams) (*Job, error) {
	switch {
	case params.Orders == nil:
		return nil, fmt.Errorf("orders repository required")
	case params.Providers == nil:
		return nil, fmt.Errorf("provider store required")
	case params.Services == nil:
		return nil, fmt.Errorf("service store required")
	case params.Gateways == nil:
		return nil, fmt.Errorf("gateway factory required")
	case params.Ledger == nil:
		return nil, fmt.Errorf("refund ledger required")
	}
	return &Job{
		orders:   params.Orders,
		provider: params.Providers,
		services: params.Services,
		gateways: params.Gateways,
		ledger:   params.Ledger,
		cfg:      params.Config,
		logg:     params.Logger,
		metrics:  params.Metrics,
		sleep:    sleepCtx,
	}, nil
}

// Name implements cron.Job.
func (j *Job) Name() string { return JobName }

// Run implements cron.Job.
func (j *Job) Run(ctx context.Context) error {
	passes := j.cfg.Passes
	if passes <= 0 {
		passes = 1
	}

	var errs error
	for pass := 0; pass < passes; pass++ {
		if pass > 0 && j.cfg.PassDelay > 0 {
			if err := j.sleep(ctx, j.cfg.PassDelay); err != nil {
				return multierr.Append(errs, err)
			}
		}
		errs = multierr.Append(errs, j.runPass(ctx))
	}
	return errs
}

func (j *Job) runPass(ctx context.Context) error {
	pollable, err := j.orders.ListPollable(ctx, j.cfg.BatchSize)
	if err != nil {
		return fmt.Errorf("listing pollable orders: %w", err)
	}
	if len(pollable) == 0 {
		return nil
	}

	// ListPollable orders by provider so one gateway serves each run of
	// consecutive orders.
	var (
		errs       error
		gateway    providers.Gateway
		gatewayFor *uuid.UUID
		provName   string
	)
	for i := range pollable {
		order := &pollable[i]
		if order.ProviderID == nil {
			continue
		}
		if gatewayFor == nil || *gatewayFor != *order.ProviderID {
			gateway, provName, err = j.gatewayFor(ctx, *order.ProviderID)
			if err != nil {
				errs = multierr.Append(errs, err)
				gatewayFor = nil
				continue
			}
			gatewayFor = order.ProviderID
		}
		if gateway == nil {
			continue
		}
		if order.ProviderOrderID == nil {
			// Debited but never reached the provider: retry the submission
			// instead of polling.
			if order.Status == enums.OrderStatusPending {
				if err := j.resubmit(ctx, gateway, provName, order); err != nil {
					j.metrics.IncPollError(provName)
					errs = multierr.Append(errs, fmt.Errorf("order %s: %w", order.ID, err))
				}
			}
			continue
		}
		if err := j.reconcileOrder(ctx, gateway, provName, order); err != nil {
			j.metrics.IncPollError(provName)
			errs = multierr.Append(errs, fmt.Errorf("order %s: %w", order.ID, err))
		}
	}
	return errs
}

// resubmit forwards a pending order that has no external id yet. The order
// keeps its debit the whole time; once the provider accepts, the next pass
// polls it like any other.
func (j *Job) resubmit(ctx context.Context, gateway providers.Gateway, provName string, order *models.Order) error {
	service, err := j.services.FindServiceByID(ctx, order.ServiceID)
	if err != nil {
		return fmt.Errorf("loading service: %w", err)
	}
	if !service.LinkedToProvider() {
		return nil
	}

	req := providers.SubmitRequest{
		ServiceID: *service.ProviderServiceID,
		Link:      order.Link,
		Quantity:  order.Quantity,
	}
	if order.Comments != nil {
		req.Comments = *order.Comments
	}

	providerOrderID, err := gateway.Submit(ctx, req)
	if err != nil {
		return fmt.Errorf("resubmitting: %w", err)
	}
	if err := j.orders.AttachProviderOrderID(ctx, order.ID, providerOrderID); err != nil {
		return fmt.Errorf("recording provider order id: %w", err)
	}
	order.ProviderOrderID = &providerOrderID
	j.metrics.IncResubmit(provName)
	if j.logg != nil {
		logCtx := j.logg.WithFields(ctx, map[string]any{
			"order_id":          order.ID,
			"provider":          provName,
			"provider_order_id": providerOrderID,
		})
		j.logg.Info(logCtx, "pending order resubmitted")
	}
	return nil
}

// gatewayFor resolves a provider record into a gateway. Disabled providers
// return a nil gateway without error; their orders wait.
func (j *Job) gatewayFor(ctx context.Context, providerID uuid.UUID) (providers.Gateway, string, error) {
	provider, err := j.provider.FindByID(ctx, providerID)
	if err != nil {
		return nil, "", fmt.Errorf("loading provider %s: %w", providerID, err)
	}
	if !provider.Enabled {
		return nil, provider.Name, nil
	}
	return j.gateways(provider), provider.Name, nil
}

func (j *Job) reconcileOrder(ctx context.Context, gateway providers.Gateway, provName string, order *models.Order) error {
	j.metrics.IncPolled()

	result, err := gateway.Status(ctx, *order.ProviderOrderID)
	if err != nil {
		return err
	}

	mapped, known := MapProviderStatus(result.Status)
	if !known {
		j.metrics.IncUnknownStatus(provName)
		if j.logg != nil {
			logCtx := j.logg.WithFields(ctx, map[string]any{
				"order_id": order.ID,
				"provider": provName,
				"status":   result.Status,
			})
			j.logg.Warn(logCtx, "unknown provider status, leaving order untouched")
		}
		return nil
	}

	// Refund before the status write: if the status write is lost the order
	// stays pollable and the claim makes a second credit impossible.
	if err := j.settleRefund(ctx, order, mapped, result); err != nil {
		return err
	}

	if mapped != order.Status || result.StartCount != nil || result.Remains != nil || result.Charge != nil {
		progress := orders.StatusProgress{
			Status:       mapped,
			StartCount:   result.StartCount,
			Remains:      result.Remains,
			CostProvider: result.Charge,
		}
		if err := j.orders.UpdateStatusProgress(ctx, order.ID, progress); err != nil {
			return fmt.Errorf("updating status: %w", err)
		}
		if mapped != order.Status {
			j.metrics.IncTransition(string(mapped))
			if j.logg != nil {
				logCtx := j.logg.WithFields(ctx, map[string]any{
					"order_id": order.ID,
					"from":     order.Status,
					"to":       mapped,
				})
				j.logg.Info(logCtx, "order status transition")
			}
		}
	}
	return nil
}

func (j *Job) settleRefund(ctx context.Context, order *models.Order, mapped enums.OrderStatus, result *providers.StatusResult) error {
	var amount decimal.Decimal
	switch {
	case mapped.IsRefundableTransition():
		amount = refund.Full(order.ChargeUser)
	case mapped == enums.OrderStatusPartial:
		if result.Remains == nil {
			if j.logg != nil {
				logCtx := j.logg.WithField(ctx, "order_id", order.ID)
				j.logg.Warn(logCtx, "partial status without remains, skipping refund")
			}
			return nil
		}
		if *result.Remains <= 0 {
			// Nothing undelivered: do not consume the refunded-once claim
			// on a zero credit.
			return nil
		}
		if *result.Remains > order.Quantity && j.logg != nil {
			logCtx := j.logg.WithFields(ctx, map[string]any{
				"order_id": order.ID,
				"remains":  *result.Remains,
				"quantity": order.Quantity,
			})
			j.logg.Warn(logCtx, "remains exceeds quantity, clamping refund to full charge")
		}
		amount = refund.Partial(order.ChargeUser, order.Quantity, *result.Remains)
	default:
		return nil
	}

	applied, err := j.ledger.Apply(ctx, order, amount)
	if err != nil {
		return fmt.Errorf("applying refund: %w", err)
	}
	if applied {
		j.metrics.IncRefund()
	}
	return nil
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
