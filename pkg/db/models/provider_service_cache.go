package models

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// ProviderServiceCacheEntry is a snapshot of one provider-side service,
// refreshed wholesale on every catalog sync run.
type ProviderServiceCacheEntry struct {
	ID                uuid.UUID       `gorm:"type:uuid;default:gen_random_uuid();primaryKey"`
	ProviderID        uuid.UUID       `gorm:"column:provider_id;type:uuid;not null;uniqueIndex:idx_provider_service"`
	ProviderServiceID string          `gorm:"column:provider_service_id;not null;uniqueIndex:idx_provider_service"`
	Name              string          `gorm:"column:name;not null"`
	Category          string          `gorm:"column:category"`
	Rate              decimal.Decimal `gorm:"column:rate;type:numeric(20,8);not null"`
	MinQuantity       int             `gorm:"column:min_quantity;not null;default:0"`
	MaxQuantity       int             `gorm:"column:max_quantity;not null;default:0"`
	SupportsRefill    bool            `gorm:"column:supports_refill;not null;default:false"`
	SupportsCancel    bool            `gorm:"column:supports_cancel;not null;default:false"`
	Raw               json.RawMessage `gorm:"column:raw;type:jsonb"`
	RefreshedAt       time.Time       `gorm:"column:refreshed_at;not null"`
	CreatedAt         time.Time       `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt         time.Time       `gorm:"column:updated_at;autoUpdateTime"`
}
