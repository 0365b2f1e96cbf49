package models

import (
	"time"

	"github.com/google/uuid"
)

// Provider is an external fulfillment provider reachable over HTTP with a
// shared API key.
type Provider struct {
	ID        uuid.UUID `gorm:"type:uuid;default:gen_random_uuid();primaryKey"`
	Name      string    `gorm:"column:name;not null;uniqueIndex"`
	APIURL    string    `gorm:"column:api_url;not null"`
	APIKey    string    `gorm:"column:api_key;not null"`
	Enabled   bool      `gorm:"column:enabled;not null;default:true"`
	CreatedAt time.Time `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt time.Time `gorm:"column:updated_at;autoUpdateTime"`
}
