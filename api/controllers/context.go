package controllers

import (
	"context"

	"github.com/google/uuid"

	"github.com/avelarde/boostpanel-backend/api/middleware"
	"github.com/avelarde/boostpanel-backend/pkg/enums"
	pkgerrors "github.com/avelarde/boostpanel-backend/pkg/errors"
)

// callerFromContext extracts the authenticated user id and role seeded by
// the auth middleware.
func callerFromContext(ctx context.Context) (uuid.UUID, enums.UserRole, error) {
	raw := middleware.UserIDFromContext(ctx)
	if raw == "" {
		return uuid.Nil, "", pkgerrors.New(pkgerrors.CodeUnauthorized, "missing credentials")
	}
	userID, err := uuid.Parse(raw)
	if err != nil {
		return uuid.Nil, "", pkgerrors.Wrap(pkgerrors.CodeUnauthorized, err, "invalid user id")
	}
	role := enums.UserRole(middleware.RoleFromContext(ctx))
	if !role.IsValid() {
		role = enums.UserRoleUser
	}
	return userID, role, nil
}
