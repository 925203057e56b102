package ports

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/sokopay/api/internal/core/domain"
)

type UserRepository interface {
	GetByEmail(ctx context.Context, email string) (*domain.User, error)
	GetByID(ctx context.Context, id uuid.UUID) (*domain.User, error)
	Create(ctx context.Context, user *domain.User) error

	// SetSession stores a fresh refresh token, its expiry and the login time.
	SetSession(ctx context.Context, userID uuid.UUID, refreshToken string, expiresAt time.Time, lastLoginAt time.Time) error

	// RotateRefreshToken swaps oldToken for newToken only if oldToken is still
	// the stored value. Returns false when another writer rotated first.
	RotateRefreshToken(ctx context.Context, userID uuid.UUID, oldToken, newToken string, expiresAt time.Time) (bool, error)

	// ClearSession removes the refresh token. Clearing an already-cleared
	// session is not an error.
	ClearSession(ctx context.Context, userID uuid.UUID) error
}
