package refund

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"github.com/avelarde/boostpanel-backend/internal/orders"
	"github.com/avelarde/boostpanel-backend/internal/users"
	"github.com/avelarde/boostpanel-backend/pkg/db/models"
	"github.com/avelarde/boostpanel-backend/pkg/logger"
)

type txRunner interface {
	WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error
}

type auditSink interface {
	Record(ctx context.Context, event models.AuditEvent)
}

// Full returns the refund amount for a fully refundable terminal
// transition: the entire user charge.
func Full(chargeUser decimal.Decimal) decimal.Decimal {
	return chargeUser
}

// Partial returns the refund for an order the provider only partially
// delivered: charge_user x remains / quantity, clamped to [0, charge_user].
// A remains value above quantity means the provider reports progress in a
// different unit; clamping keeps the refund bounded either way.
func Partial(chargeUser decimal.Decimal, quantity, remains int) decimal.Decimal {
	if quantity <= 0 || remains <= 0 {
		return decimal.Zero
	}
	amount := chargeUser.
		Mul(decimal.NewFromInt(int64(remains))).
		Div(decimal.NewFromInt(int64(quantity))).
		Round(8)
	if amount.IsNegative() {
		return decimal.Zero
	}
	if amount.GreaterThan(chargeUser) {
		return chargeUser
	}
	return amount
}

// Ledger applies refunds under a refunded-once guarantee.
type Ledger struct {
	tx     txRunner
	orders orders.Repository
	users  users.Repository
	audit  auditSink
	logg   *logger.Logger
}

// NewLedger wires the refund ledger.
func NewLedger(tx txRunner, ordersRepo orders.Repository, usersRepo users.Repository, audit auditSink, logg *logger.Logger) (*Ledger, error) {
	if tx == nil {
		return nil, fmt.Errorf("transaction runner required")
	}
	if ordersRepo == nil {
		return nil, fmt.Errorf("orders repository required")
	}
	if usersRepo == nil {
		return nil, fmt.Errorf("users repository required")
	}
	return &Ledger{tx: tx, orders: ordersRepo, users: usersRepo, audit: audit, logg: logg}, nil
}

// Apply credits the refund amount to the order's owner, exactly once per
// order. The refund claim and the balance credit share one transaction:
// either both land or the operation is retryable as not-yet-applied.
// Returns false when another invocation already claimed the refund.
func (l *Ledger) Apply(ctx context.Context, order *models.Order, amount decimal.Decimal) (bool, error) {
	if order == nil {
		return false, fmt.Errorf("order required")
	}
	if amount.IsNegative() {
		return false, fmt.Errorf("refund amount must not be negative")
	}
	if amount.GreaterThan(order.ChargeUser) {
		amount = order.ChargeUser
	}

	applied := false
	err := l.tx.WithTx(ctx, func(tx *gorm.DB) error {
		claimed, err := l.orders.WithTx(tx).ClaimRefund(ctx, order.ID, amount)
		if err != nil {
			return fmt.Errorf("claim refund: %w", err)
		}
		if !claimed {
			return nil
		}
		if err := l.users.WithTx(tx).CreditBalance(ctx, order.UserID, amount); err != nil {
			return fmt.Errorf("credit balance: %w", err)
		}
		applied = true
		return nil
	})
	if err != nil {
		return false, err
	}
	if !applied {
		return false, nil
	}

	if l.logg != nil {
		logCtx := l.logg.WithFields(ctx, map[string]any{
			"order_id": order.ID,
			"user_id":  order.UserID,
			"amount":   amount.String(),
		})
		l.logg.Info(logCtx, "refund applied")
	}
	l.recordAudit(ctx, order, amount)
	return true, nil
}

func (l *Ledger) recordAudit(ctx context.Context, order *models.Order, amount decimal.Decimal) {
	if l.audit == nil {
		return
	}
	details, _ := json.Marshal(map[string]any{
		"order_id": order.ID,
		"amount":   amount.String(),
	})
	userID := order.UserID
	l.audit.Record(ctx, models.AuditEvent{
		UserID:  &userID,
		Action:  "order.refunded",
		Details: details,
	})
}
