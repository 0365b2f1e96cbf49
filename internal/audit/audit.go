package audit

import (
	"context"
	"encoding/json"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/avelarde/boostpanel-backend/pkg/db/models"
	"github.com/avelarde/boostpanel-backend/pkg/logger"
)

// Repository persists audit events.
type Repository interface {
	Create(ctx context.Context, event *models.AuditEvent) error
	ListByUser(ctx context.Context, userID uuid.UUID, limit int) ([]models.AuditEvent, error)
}

type repository struct {
	db *gorm.DB
}

// NewRepository returns an audit event repository.
func NewRepository(db *gorm.DB) Repository {
	return &repository{db: db}
}

func (r *repository) Create(ctx context.Context, event *models.AuditEvent) error {
	return r.db.WithContext(ctx).Create(event).Error
}

func (r *repository) ListByUser(ctx context.Context, userID uuid.UUID, limit int) ([]models.AuditEvent, error) {
	query := r.db.WithContext(ctx).Where("user_id = ?", userID)
	if limit > 0 {
		query = query.Limit(limit)
	}
	var events []models.AuditEvent
	if err := query.Order("created_at DESC").Find(&events).Error; err != nil {
		return nil, err
	}
	return events, nil
}

// Sink records audit events best-effort: a failed write is logged and
// dropped, never surfaced to the operation that produced the event.
type Sink struct {
	repo Repository
	logg *logger.Logger
}

// NewSink wires the audit sink.
func NewSink(repo Repository, logg *logger.Logger) *Sink {
	return &Sink{repo: repo, logg: logg}
}

// Record persists the event, swallowing any storage failure.
func (s *Sink) Record(ctx context.Context, event models.AuditEvent) {
	if s == nil || s.repo == nil {
		return
	}
	if err := s.repo.Create(ctx, &event); err != nil {
		if s.logg != nil {
			logCtx := s.logg.WithFields(ctx, map[string]any{
				"action": event.Action,
				"error":  err.Error(),
			})
			s.logg.Warn(logCtx, "audit event dropped")
		}
	}
}

// Event builds an audit event with JSON-encoded details. Marshal failures
// degrade to a nil details payload rather than losing the event.
func Event(userID *uuid.UUID, action string, details any) models.AuditEvent {
	var raw json.RawMessage
	if details != nil {
		if encoded, err := json.Marshal(details); err == nil {
			raw = encoded
		}
	}
	return models.AuditEvent{UserID: userID, Action: action, Details: raw}
}
