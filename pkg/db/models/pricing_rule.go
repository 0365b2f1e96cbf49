package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// PricingRule overrides a service's base rate for one user.
type PricingRule struct {
	ID         uuid.UUID       `gorm:"type:uuid;default:gen_random_uuid();primaryKey"`
	UserID     uuid.UUID       `gorm:"column:user_id;type:uuid;not null;uniqueIndex:idx_pricing_user_service"`
	ServiceID  uuid.UUID       `gorm:"column:service_id;type:uuid;not null;uniqueIndex:idx_pricing_user_service"`
	CustomRate decimal.Decimal `gorm:"column:custom_rate;type:numeric(20,8);not null"`
	CreatedAt  time.Time       `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt  time.Time       `gorm:"column:updated_at;autoUpdateTime"`
}
