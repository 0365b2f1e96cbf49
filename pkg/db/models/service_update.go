package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/avelarde/boostpanel-backend/pkg/enums"
)

// ServiceUpdate is one discrete catalog-sync mutation (disable, enable,
// rate change), recorded individually for audit.
type ServiceUpdate struct {
	ID         uuid.UUID               `gorm:"type:uuid;default:gen_random_uuid();primaryKey"`
	ServiceID  uuid.UUID               `gorm:"column:service_id;type:uuid;not null;index"`
	ProviderID uuid.UUID               `gorm:"column:provider_id;type:uuid;not null;index"`
	Kind       enums.ServiceUpdateKind `gorm:"column:kind;type:text;not null"`
	Detail     string                  `gorm:"column:detail;not null"`
	OldRate    *decimal.Decimal        `gorm:"column:old_rate;type:numeric(20,8)"`
	NewRate    *decimal.Decimal        `gorm:"column:new_rate;type:numeric(20,8)"`
	CreatedAt  time.Time               `gorm:"column:created_at;autoCreateTime"`
}
