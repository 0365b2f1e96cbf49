package pricing

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"github.com/avelarde/boostpanel-backend/pkg/db/models"
)

// RuleRepository looks up per-user rate overrides.
type RuleRepository interface {
	// CustomRate returns the override for the user/service pair, or nil when
	// none exists.
	CustomRate(ctx context.Context, userID, serviceID uuid.UUID) (*decimal.Decimal, error)
	Upsert(ctx context.Context, rule *models.PricingRule) error
	DeleteForUserService(ctx context.Context, userID, serviceID uuid.UUID) error
}

type ruleRepository struct {
	db *gorm.DB
}

// NewRuleRepository returns a pricing rule repository.
func NewRuleRepository(db *gorm.DB) RuleRepository {
	return &ruleRepository{db: db}
}

func (r *ruleRepository) CustomRate(ctx context.Context, userID, serviceID uuid.UUID) (*decimal.Decimal, error) {
	var rule models.PricingRule
	err := r.db.WithContext(ctx).
		Where("user_id = ? AND service_id = ?", userID, serviceID).
		First(&rule).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	rate := rule.CustomRate
	return &rate, nil
}

func (r *ruleRepository) Upsert(ctx context.Context, rule *models.PricingRule) error {
	var existing models.PricingRule
	err := r.db.WithContext(ctx).
		Where("user_id = ? AND service_id = ?", rule.UserID, rule.ServiceID).
		First(&existing).Error
	switch {
	case err == nil:
		return r.db.WithContext(ctx).
			Model(&models.PricingRule{}).
			Where("id = ?", existing.ID).
			UpdateColumn("custom_rate", rule.CustomRate).Error
	case errors.Is(err, gorm.ErrRecordNotFound):
		return r.db.WithContext(ctx).Create(rule).Error
	default:
		return err
	}
}

func (r *ruleRepository) DeleteForUserService(ctx context.Context, userID, serviceID uuid.UUID) error {
	return r.db.WithContext(ctx).
		Where("user_id = ? AND service_id = ?", userID, serviceID).
		Delete(&models.PricingRule{}).Error
}
