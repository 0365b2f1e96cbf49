package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/avelarde/boostpanel-backend/pkg/enums"
)

// User is the account entity the panel debits and credits. Authentication
// itself lives in the auth collaborator; this table is the balance ledger
// anchor.
type User struct {
	ID              uuid.UUID       `gorm:"type:uuid;default:gen_random_uuid();primaryKey"`
	Email           string          `gorm:"type:text;not null;uniqueIndex"`
	Role            enums.UserRole  `gorm:"column:role;type:text;not null;default:'user'"`
	Balance         decimal.Decimal `gorm:"column:balance;type:numeric(20,8);not null;default:0"`
	DiscountPercent decimal.Decimal `gorm:"column:discount_percent;type:numeric(5,2);not null;default:0"`
	IsActive        bool            `gorm:"column:is_active;not null;default:true"`
	CreatedAt       time.Time       `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt       time.Time       `gorm:"column:updated_at;autoUpdateTime"`
}
