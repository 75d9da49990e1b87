package service

import (
	"context"
	"ctchen222/blog-web-api/internal/api/models"
	"ctchen222/blog-web-api/internal/repository"
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

// TokenManager issues and validates session tokens. A token is only valid
// while its generation matches the generation stored for its user.
type TokenManager interface {
	Issue(ctx context.Context, username string) (string, error)
	// Validate returns the username the token was issued to.
	Validate(ctx context.Context, token string) (string, error)
	// BumpGeneration invalidates every token of username and returns a fresh one.
	BumpGeneration(ctx context.Context, username string) (string, error)
	// Mint signs a token for an already loaded user state.
	Mint(user *models.User) (string, error)
}

type tokenClaims struct {
	UserID     string `json:"uid"`
	Generation int64  `json:"gen"`
	jwt.RegisteredClaims
}

type tokenManager struct {
	userRepo repository.UserRepository
	secret   []byte
	ttl      time.Duration
}

// NewTokenManager creates a TokenManager signing HS256 tokens valid for ttl.
func NewTokenManager(userRepo repository.UserRepository, secret []byte, ttl time.Duration) TokenManager {
	return &tokenManager{userRepo: userRepo, secret: secret, ttl: ttl}
}

var errInvalidToken = models.NewError(models.ErrInvalidToken, "Invalid authentication 'token'.")

func (m *tokenManager) Issue(ctx context.Context, username string) (string, error) {
	user, err := m.userRepo.Get(ctx, username)
	if err != nil {
		if errors.Is(err, models.ErrUserNotFound) {
			return "", errUnknownUser
		}
		return "", fmt.Errorf("get user: %w", err)
	}
	return m.Mint(user)
}

func (m *tokenManager) Mint(user *models.User) (string, error) {
	now := time.Now()
	claims := tokenClaims{
		UserID:     user.ID,
		Generation: user.Generation,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   user.Username,
			ID:        uuid.NewString(),
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(m.ttl)),
		},
	}

	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(m.secret)
	if err != nil {
		return "", fmt.Errorf("sign token: %w", err)
	}
	return token, nil
}

func (m *tokenManager) Validate(ctx context.Context, token string) (string, error) {
	var claims tokenClaims
	_, err := jwt.ParseWithClaims(token, &claims, func(*jwt.Token) (any, error) {
		return m.secret, nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}), jwt.WithExpirationRequired())
	if err != nil {
		return "", errInvalidToken
	}

	user, err := m.userRepo.Get(ctx, claims.Subject)
	if err != nil {
		if errors.Is(err, models.ErrUserNotFound) {
			return "", errInvalidToken
		}
		return "", fmt.Errorf("get user: %w", err)
	}
	if user.ID != claims.UserID || user.Generation != claims.Generation {
		return "", errInvalidToken
	}
	return user.Username, nil
}

func (m *tokenManager) BumpGeneration(ctx context.Context, username string) (string, error) {
	user, err := m.userRepo.BumpGeneration(ctx, username)
	if err != nil {
		if errors.Is(err, models.ErrUserNotFound) {
			return "", errUnknownUser
		}
		return "", fmt.Errorf("bump generation: %w", err)
	}
	return m.Mint(user)
}
