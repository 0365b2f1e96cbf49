package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/avelarde/boostpanel-backend/pkg/enums"
)

// Order is one purchased fulfillment task. Status and the refund fields are
// written only by the reconciliation job; CancelRequestedAt is written only
// by the cancellation handshake, and at most once.
//
// Invariant: Refunded=true implies RefundAmount is set and was credited to
// the user balance exactly once.
type Order struct {
	ID                uuid.UUID         `gorm:"type:uuid;default:gen_random_uuid();primaryKey"`
	UserID            uuid.UUID         `gorm:"column:user_id;type:uuid;not null;index"`
	ServiceID         uuid.UUID         `gorm:"column:service_id;type:uuid;not null;index"`
	ProviderID        *uuid.UUID        `gorm:"column:provider_id;type:uuid;index"`
	ProviderOrderID   *string           `gorm:"column:provider_order_id"`
	Link              string            `gorm:"column:link;not null"`
	Quantity          int               `gorm:"column:quantity;not null"`
	Comments          *string           `gorm:"column:comments"`
	Status            enums.OrderStatus `gorm:"column:status;type:text;not null;default:'pending';index"`
	ChargeUser        decimal.Decimal   `gorm:"column:charge_user;type:numeric(20,8);not null"`
	CostProvider      *decimal.Decimal  `gorm:"column:cost_provider;type:numeric(20,8)"`
	StartCount        *int              `gorm:"column:start_count"`
	Remains           *int              `gorm:"column:remains"`
	CancelRequestedAt *time.Time        `gorm:"column:cancel_requested_at"`
	Refunded          bool              `gorm:"column:refunded;not null;default:false"`
	RefundAmount      *decimal.Decimal  `gorm:"column:refund_amount;type:numeric(20,8)"`
	CreatedAt         time.Time         `gorm:"column:created_at;autoCreateTime;index"`
	UpdatedAt         time.Time         `gorm:"column:updated_at;autoUpdateTime"`
}
