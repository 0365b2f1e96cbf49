package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// PaymentTransaction records one balance credit from the payment-capture
// collaborator. The unique external transaction id is the idempotency
// guarantee: a second credit for the same id is rejected.
type PaymentTransaction struct {
	ID           uuid.UUID       `gorm:"type:uuid;default:gen_random_uuid();primaryKey"`
	UserID       uuid.UUID       `gorm:"column:user_id;type:uuid;not null;index"`
	ExternalTxID string          `gorm:"column:external_tx_id;not null;uniqueIndex"`
	Amount       decimal.Decimal `gorm:"column:amount;type:numeric(20,8);not null"`
	CreatedAt    time.Time       `gorm:"column:created_at;autoCreateTime"`
}
