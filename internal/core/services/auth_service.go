package services

import (
	"context"
	"crypto/hmac"
	"crypto/rand"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"strings"
	"time"
	"unicode"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/sokopay/api/internal/config"
	"github.com/sokopay/api/internal/core/domain"
	"github.com/sokopay/api/internal/core/ports"
)

type AuthService struct {
	users         ports.UserRepository
	tokens        *TokenService
	refreshExpiry time.Duration
	logger        *zap.Logger
}

func NewAuthService(users ports.UserRepository, tokens *TokenService, cfg *config.Config, logger *zap.Logger) ports.AuthService {
	return &AuthService{
		users:         users,
		tokens:        tokens,
		refreshExpiry: cfg.JWT.RefreshTokenExpiry,
		logger:        logger,
	}
}

func (s *AuthService) Register(ctx context.Context, input ports.RegisterInput) (*ports.AuthPayload, error) {
	if err := validateRegisterInput(input); err != nil {
		return nil, err
	}

	email := domain.NormalizeEmail(input.Email)

	existing, err := s.users.GetByEmail(ctx, email)
	if err != nil {
		return nil, fmt.Errorf("failed to look up email: %w", err)
	}
	if existing != nil {
		return nil, domain.ErrDuplicateEmail
	}

	hash, salt, err := hashPassword(input.Password)
	if err != nil {
		return nil, fmt.Errorf("failed to hash password: %w", err)
	}

	role, _ := domain.ParseRole(input.Role)
	now := time.Now()
	user := &domain.User{
		ID:           uuid.New(),
		Name:         strings.TrimSpace(input.Name),
		Email:        email,
		PasswordHash: hash,
		PasswordSalt: salt,
		PhoneNumber:  domain.NormalizeMsisdn(input.PhoneNumber),
		Role:         role,
		CreatedAt:    now,
		UpdatedAt:    now,
	}

	if err := s.users.Create(ctx, user); err != nil {
		return nil, fmt.Errorf("failed to create user: %w", err)
	}

	return s.startSession(ctx, user)
}

func (s *AuthService) Login(ctx context.Context, email, password string) (*ports.AuthPayload, error) {
	user, err := s.users.GetByEmail(ctx, domain.NormalizeEmail(email))
	if err != nil {
		return nil, fmt.Errorf("failed to look up user: %w", err)
	}

	// A single generic error for unknown email and wrong password, so a
	// caller cannot enumerate accounts.
	if user == nil || !verifyPassword(password, user.PasswordHash, user.PasswordSalt) {
		return nil, domain.ErrInvalidCredentials
	}

	return s.startSession(ctx, user)
}

func (s *AuthService) Refresh(ctx context.Context, accessToken, refreshToken string) (*ports.AuthPayload, error) {
	claims, err := s.tokens.ExtractClaimsIgnoringExpiry(accessToken)
	if err != nil {
		return nil, err
	}

	userID, err := uuid.Parse(claims.Subject)
	if err != nil {
		return nil, fmt.Errorf("%w: malformed subject claim", domain.ErrInvalidToken)
	}

	user, err := s.users.GetByID(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to look up user: %w", err)
	}
	if user == nil {
		return nil, domain.ErrInvalidToken
	}

	if user.RefreshToken == nil || *user.RefreshToken != refreshToken {
		return nil, domain.ErrInvalidRefreshToken
	}
	if user.RefreshTokenExpiresAt == nil || !user.RefreshTokenExpiresAt.After(time.Now()) {
		return nil, domain.ErrInvalidRefreshToken
	}

	newRefreshToken, err := s.tokens.IssueRefreshToken()
	if err != nil {
		return nil, err
	}

	// Compare-and-swap on the stored token value: of two concurrent refresh
	// calls holding the same token, only the first rotation lands.
	rotated, err := s.users.RotateRefreshToken(ctx, user.ID, refreshToken, newRefreshToken, time.Now().Add(s.refreshExpiry))
	if err != nil {
		return nil, fmt.Errorf("failed to rotate refresh token: %w", err)
	}
	if !rotated {
		s.logger.Warn("refresh token rotation lost a concurrent race", zap.String("user_id", user.ID.String()))
		return nil, domain.ErrInvalidRefreshToken
	}

	newAccessToken, expiresAt, err := s.tokens.IssueAccessToken(user)
	if err != nil {
		return nil, err
	}

	return &ports.AuthPayload{
		User:                 user.Profile(),
		AccessToken:          newAccessToken,
		AccessTokenExpiresAt: expiresAt,
		RefreshToken:         newRefreshToken,
	}, nil
}

func (s *AuthService) Revoke(ctx context.Context, userID uuid.UUID) error {
	// Idempotent: revoking an already-revoked session still succeeds.
	if err := s.users.ClearSession(ctx, userID); err != nil {
		return fmt.Errorf("failed to clear session: %w", err)
	}
	return nil
}

func (s *AuthService) GetProfile(ctx context.Context, userID uuid.UUID) (*domain.Profile, error) {
	user, err := s.users.GetByID(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to get user: %w", err)
	}
	if user == nil {
		return nil, domain.ErrUserNotFound
	}
	return user.Profile(), nil
}

func (s *AuthService) startSession(ctx context.Context, user *domain.User) (*ports.AuthPayload, error) {
	accessToken, expiresAt, err := s.tokens.IssueAccessToken(user)
	if err != nil {
		return nil, err
	}

	refreshToken, err := s.tokens.IssueRefreshToken()
	if err != nil {
		return nil, err
	}

	now := time.Now()
	if err := s.users.SetSession(ctx, user.ID, refreshToken, now.Add(s.refreshExpiry), now); err != nil {
		return nil, fmt.Errorf("failed to store session: %w", err)
	}
	user.LastLoginAt = &now

	return &ports.AuthPayload{
		User:                 user.Profile(),
		AccessToken:          accessToken,
		AccessTokenExpiresAt: expiresAt,
		RefreshToken:         refreshToken,
	}, nil
}

// hashPassword derives a salted one-way MAC of the password: a fresh random
// 32-byte key per call acts as the salt, and the stored hash is the HMAC of
// the password under that key. Both are hex-encoded at rest.
func hashPassword(password string) (hash, salt string, err error) {
	key := make([]byte, 32)
	if _, err := rand.Read(key); err != nil {
		return "", "", err
	}

	mac := hmac.New(sha256.New, key)
	mac.Write([]byte(password))
	return hex.EncodeToString(mac.Sum(nil)), hex.EncodeToString(key), nil
}

func verifyPassword(password, storedHash, storedSalt string) bool {
	key, err := hex.DecodeString(storedSalt)
	if err != nil {
		return false
	}
	expected, err := hex.DecodeString(storedHash)
	if err != nil {
		return false
	}

	mac := hmac.New(sha256.New, key)
	mac.Write([]byte(password))
	return hmac.Equal(mac.Sum(nil), expected)
}

func validateRegisterInput(input ports.RegisterInput) error {
	if strings.TrimSpace(input.Name) == "" {
		return fmt.Errorf("%w: name is required", domain.ErrValidation)
	}
	email := domain.NormalizeEmail(input.Email)
	if at := strings.Index(email, "@"); at <= 0 || at == len(email)-1 {
		return fmt.Errorf("%w: malformed email", domain.ErrValidation)
	}
	if strings.TrimSpace(input.PhoneNumber) == "" {
		return fmt.Errorf("%w: phone number is required", domain.ErrValidation)
	}
	if _, ok := domain.ParseRole(input.Role); !ok {
		return fmt.Errorf("%w: role must be individual or business", domain.ErrValidation)
	}
	if input.Password != input.ConfirmPassword {
		return fmt.Errorf("%w: passwords do not match", domain.ErrValidation)
	}
	return validatePassword(input.Password)
}

func validatePassword(password string) error {
	if len(password) < 8 {
		return fmt.Errorf("%w: password must be at least 8 characters", domain.ErrValidation)
	}
	var hasUpper, hasLower, hasDigit bool
	for _, r := range password {
		switch {
		case unicode.IsUpper(r):
			hasUpper = true
		case unicode.IsLower(r):
			hasLower = true
		case unicode.IsDigit(r):
			hasDigit = true
		}
	}
	if !hasUpper || !hasLower || !hasDigit {
		return fmt.Errorf("%w: password needs upper, lower and digit characters", domain.ErrValidation)
	}
	return nil
}
