// Package identity handles password hashing, JWT issuance/verification,
// and request-scoped user context — the teacher's Keycloak-backed
// internal/auth reworked around a self-issued JWT per SPEC_FULL.md §1
// (no external IdP dependency is named by the spec).
package identity

import (
	"context"
	"errors"

	"github.com/google/uuid"

	"classroomd/internal/enum"
)

type contextKey string

const userContextKey contextKey = "user"

// UserContext is the authenticated principal extracted from a verified
// access token, grounded on volaticloud/internal/auth.UserContext.
type UserContext struct {
	UserID uuid.UUID
	Email  string
	Role   enum.Role
}

// SetUserContext stores user in ctx.
func SetUserContext(ctx context.Context, user *UserContext) context.Context {
	return context.WithValue(ctx, userContextKey, user)
}

// GetUserContext retrieves the authenticated user, failing for an
// unauthenticated request.
func GetUserContext(ctx context.Context) (*UserContext, error) {
	user, ok := ctx.Value(userContextKey).(*UserContext)
	if !ok || user == nil {
		return nil, errors.New("no user context found - request is not authenticated")
	}
	return user, nil
}

// IsAdmin reports whether the user holds the admin role.
func (u *UserContext) IsAdmin() bool { return u.Role == enum.RoleAdmin }

// IsTeacher reports whether the user holds the teacher role.
func (u *UserContext) IsTeacher() bool { return u.Role == enum.RoleTeacher || u.Role == enum.RoleAdmin }
