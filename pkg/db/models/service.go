package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/avelarde/boostpanel-backend/pkg/enums"
)

// Service is a local catalog entry. Provider linkage is nullable for
// manually fulfilled services; when SyncWithProvider is false the catalog
// sync job must never touch enabled/rate/bounds.
type Service struct {
	ID                uuid.UUID         `gorm:"type:uuid;default:gen_random_uuid();primaryKey"`
	Name              string            `gorm:"column:name;not null"`
	Type              enums.ServiceType `gorm:"column:type;type:text;not null;default:'default'"`
	ProviderID        *uuid.UUID        `gorm:"column:provider_id;type:uuid;index"`
	ProviderServiceID *string           `gorm:"column:provider_service_id"`
	SyncWithProvider  bool              `gorm:"column:sync_with_provider;not null;default:false"`
	Enabled           bool              `gorm:"column:enabled;not null;default:true"`
	DisabledReason    *string           `gorm:"column:disabled_reason"`
	RatePer1000       decimal.Decimal   `gorm:"column:rate_per_1000;type:numeric(20,8);not null"`
	MinQuantity       int               `gorm:"column:min_quantity;not null;default:1"`
	MaxQuantity       int               `gorm:"column:max_quantity;not null"`
	SupportsRefill    bool              `gorm:"column:supports_refill;not null;default:false"`
	SupportsCancel    bool              `gorm:"column:supports_cancel;not null;default:false"`
	CreatedAt         time.Time         `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt         time.Time         `gorm:"column:updated_at;autoUpdateTime"`
}

// LinkedToProvider reports whether the service is backed by a provider-side
// service and therefore eligible for submission and catalog sync.
func (s *Service) LinkedToProvider() bool {
	return s.ProviderID != nil && s.ProviderServiceID != nil && *s.ProviderServiceID != ""
}
