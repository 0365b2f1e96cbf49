package catalog

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"github.com/avelarde/boostpanel-backend/internal/pricing"
	"github.com/avelarde/boostpanel-backend/internal/users"
	"github.com/avelarde/boostpanel-backend/pkg/enums"
	pkgerrors "github.com/avelarde/boostpanel-backend/pkg/errors"
)

// ServiceResponse is the catalog entry shown to a user, with the rate
// already personalized by discount and pricing rules.
type ServiceResponse struct {
	ID             uuid.UUID         `json:"id"`
	Name           string            `json:"name"`
	Type           enums.ServiceType `json:"type"`
	RatePer1000    decimal.Decimal   `json:"rate_per_1000"`
	MinQuantity    int               `json:"min_quantity"`
	MaxQuantity    int               `json:"max_quantity"`
	SupportsRefill bool              `json:"supports_refill"`
	SupportsCancel bool              `json:"supports_cancel"`
}

type customRates interface {
	CustomRate(ctx context.Context, userID, serviceID uuid.UUID) (*decimal.Decimal, error)
}

// Service serves the user-facing catalog.
type Service struct {
	repo  Repository
	users users.Repository
	rules customRates
}

// NewService wires the catalog read service.
func NewService(repo Repository, usersRepo users.Repository, rules customRates) (*Service, error) {
	if repo == nil {
		return nil, fmt.Errorf("catalog repository required")
	}
	if usersRepo == nil {
		return nil, fmt.Errorf("users repository required")
	}
	if rules == nil {
		return nil, fmt.Errorf("pricing rule repository required")
	}
	return &Service{repo: repo, users: usersRepo, rules: rules}, nil
}

// ListForUser returns all enabled services priced for the caller.
func (s *Service) ListForUser(ctx context.Context, userID uuid.UUID) ([]ServiceResponse, error) {
	user, err := s.users.FindByID(ctx, userID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, pkgerrors.New(pkgerrors.CodeNotFound, "user not found")
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "loading user")
	}

	services, err := s.repo.ListEnabledServices(ctx)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "listing services")
	}

	out := make([]ServiceResponse, 0, len(services))
	for i := range services {
		svc := &services[i]
		custom, err := s.rules.CustomRate(ctx, userID, svc.ID)
		if err != nil {
			return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "loading pricing rule")
		}
		out = append(out, ServiceResponse{
			ID:             svc.ID,
			Name:           svc.Name,
			Type:           svc.Type,
			RatePer1000:    pricing.EffectiveRate(svc.RatePer1000, custom, user.DiscountPercent),
			MinQuantity:    svc.MinQuantity,
			MaxQuantity:    svc.MaxQuantity,
			SupportsRefill: svc.SupportsRefill,
			SupportsCancel: svc.SupportsCancel,
		})
	}
	return out, nil
}
