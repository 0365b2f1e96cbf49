package payments

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"github.com/avelarde/boostpanel-backend/internal/audit"
	"github.com/avelarde/boostpanel-backend/internal/users"
	"github.com/avelarde/boostpanel-backend/pkg/db"
	"github.com/avelarde/boostpanel-backend/pkg/db/models"
	pkgerrors "github.com/avelarde/boostpanel-backend/pkg/errors"
	"github.com/avelarde/boostpanel-backend/pkg/logger"
)

// Repository persists payment transactions.
type Repository interface {
	WithTx(tx *gorm.DB) Repository
	Create(ctx context.Context, payment *models.PaymentTransaction) error
	FindByExternalTxID(ctx context.Context, externalTxID string) (*models.PaymentTransaction, error)
	ListByUser(ctx context.Context, userID uuid.UUID, limit int) ([]models.PaymentTransaction, error)
}

type repository struct {
	db *gorm.DB
}

// NewRepository returns a payment transaction repository.
func NewRepository(db *gorm.DB) Repository {
	return &repository{db: db}
}

func (r *repository) WithTx(tx *gorm.DB) Repository {
	if tx == nil {
		return r
	}
	return &repository{db: tx}
}

func (r *repository) Create(ctx context.Context, payment *models.PaymentTransaction) error {
	return r.db.WithContext(ctx).Create(payment).Error
}

func (r *repository) FindByExternalTxID(ctx context.Context, externalTxID string) (*models.PaymentTransaction, error) {
	var payment models.PaymentTransaction
	err := r.db.WithContext(ctx).Where("external_tx_id = ?", externalTxID).First(&payment).Error
	if err != nil {
		return nil, err
	}
	return &payment, nil
}

func (r *repository) ListByUser(ctx context.Context, userID uuid.UUID, limit int) ([]models.PaymentTransaction, error) {
	query := r.db.WithContext(ctx).Where("user_id = ?", userID)
	if limit > 0 {
		query = query.Limit(limit)
	}
	var payments []models.PaymentTransaction
	if err := query.Order("created_at DESC").Find(&payments).Error; err != nil {
		return nil, err
	}
	return payments, nil
}

// CreditRequest credits a user balance for one captured payment.
type CreditRequest struct {
	UserID       uuid.UUID       `json:"user_id" validate:"required"`
	ExternalTxID string          `json:"external_tx_id" validate:"required"`
	Amount       decimal.Decimal `json:"amount" validate:"required"`
}

// CreditResponse reports the recorded payment.
type CreditResponse struct {
	PaymentID    uuid.UUID       `json:"payment_id"`
	UserID       uuid.UUID       `json:"user_id"`
	ExternalTxID string          `json:"external_tx_id"`
	Amount       decimal.Decimal `json:"amount"`
}

type txRunner interface {
	WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error
}

type auditRecorder interface {
	Record(ctx context.Context, event models.AuditEvent)
}

// Service applies balance credits exactly once per external transaction id.
type Service struct {
	tx       txRunner
	payments Repository
	users    users.Repository
	audit    auditRecorder
	logg     *logger.Logger
}

// NewService wires the payment credit service.
func NewService(tx txRunner, payments Repository, usersRepo users.Repository, audit auditRecorder, logg *logger.Logger) (*Service, error) {
	if tx == nil {
		return nil, fmt.Errorf("transaction runner required")
	}
	if payments == nil {
		return nil, fmt.Errorf("payments repository required")
	}
	if usersRepo == nil {
		return nil, fmt.Errorf("users repository required")
	}
	return &Service{tx: tx, payments: payments, users: usersRepo, audit: audit, logg: logg}, nil
}

// Credit records the payment and adds the amount to the user's balance in
// one transaction. The unique external_tx_id makes retries safe: a replay
// fails the insert and nothing is credited twice.
func (s *Service) Credit(ctx context.Context, req CreditRequest) (*CreditResponse, error) {
	if strings.TrimSpace(req.ExternalTxID) == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "external transaction id is required")
	}
	if !req.Amount.IsPositive() {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "amount must be positive")
	}

	payment := &models.PaymentTransaction{
		ID:           uuid.New(),
		UserID:       req.UserID,
		ExternalTxID: strings.TrimSpace(req.ExternalTxID),
		Amount:       req.Amount,
	}

	err := s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		if err := s.payments.WithTx(tx).Create(ctx, payment); err != nil {
			if db.IsUniqueViolation(err, "external_tx_id") {
				return pkgerrors.New(pkgerrors.CodeIdempotency, "payment already credited").
					WithDetails(map[string]string{"external_tx_id": payment.ExternalTxID})
			}
			return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "recording payment")
		}
		if err := s.users.WithTx(tx).CreditBalance(ctx, req.UserID, req.Amount); err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return pkgerrors.New(pkgerrors.CodeNotFound, "user not found")
			}
			return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "crediting balance")
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	if s.logg != nil {
		logCtx := s.logg.WithFields(ctx, map[string]any{
			"user_id":        req.UserID,
			"external_tx_id": payment.ExternalTxID,
			"amount":         req.Amount.String(),
		})
		s.logg.Info(logCtx, "balance credited")
	}
	if s.audit != nil {
		userID := req.UserID
		s.audit.Record(ctx, audit.Event(&userID, "payment.credited", map[string]any{
			"external_tx_id": payment.ExternalTxID,
			"amount":         req.Amount.String(),
		}))
	}
	return &CreditResponse{
		PaymentID:    payment.ID,
		UserID:       payment.UserID,
		ExternalTxID: payment.ExternalTxID,
		Amount:       payment.Amount,
	}, nil
}
