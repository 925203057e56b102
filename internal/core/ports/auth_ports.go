package ports

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/sokopay/api/internal/core/domain"
)

type RegisterInput struct {
	Name            string
	Email           string
	Password        string
	ConfirmPassword string
	PhoneNumber     string
	Role            string
}

type AuthPayload struct {
	User                 *domain.Profile `json:"user"`
	AccessToken          string          `json:"access_token"`
	AccessTokenExpiresAt time.Time       `json:"access_token_expires_at"`
	RefreshToken         string          `json:"refresh_token"`
}

type AuthService interface {
	Register(ctx context.Context, input RegisterInput) (*AuthPayload, error)
	Login(ctx context.Context, email, password string) (*AuthPayload, error)
	// Refresh requires both credentials: the (possibly expired) signed access
	// token and the opaque refresh token. Both must check out independently.
	Refresh(ctx context.Context, accessToken, refreshToken string) (*AuthPayload, error)
	Revoke(ctx context.Context, userID uuid.UUID) error
	GetProfile(ctx context.Context, userID uuid.UUID) (*domain.Profile, error)
}
