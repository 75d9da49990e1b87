package service

import (
	"context"
	"crypto/sha256"
	"ctchen222/blog-web-api/internal/api/models"
	"ctchen222/blog-web-api/internal/repository"
	"ctchen222/blog-web-api/internal/validator"
	"encoding/base64"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"
)

// CredentialStore keeps username to password hash records.
type CredentialStore interface {
	Create(ctx context.Context, username, password string) (*models.User, error)
	Verify(ctx context.Context, username, password string) (*models.User, error)
	// ChangePassword replaces the hash and bumps the generation in a single store operation.
	ChangePassword(ctx context.Context, username, oldPassword, newPassword string) (*models.User, error)
	Remove(ctx context.Context, username, password string) error
	List(ctx context.Context) ([]string, error)
	Random(ctx context.Context) (string, error)
	Exists(ctx context.Context, username string) (bool, error)
}

type credentialStore struct {
	userRepo repository.UserRepository
	cost     int
}

// NewCredentialStore creates a CredentialStore hashing passwords with bcrypt at the given cost.
func NewCredentialStore(userRepo repository.UserRepository, cost int) CredentialStore {
	return &credentialStore{userRepo: userRepo, cost: cost}
}

var (
	errUsernameTaken  = models.NewError(models.ErrAlreadyExists, "Invalid 'username' (already exists).")
	errUnknownUser    = models.NewError(models.ErrNotFound, "Invalid 'username' (doesn't exist).")
	errWrongPassword  = models.NewError(models.ErrWrongPassword, "Invalid 'password'.")
	errNewPasswordLen = models.NewError(models.ErrValidation, "'newPassword' needs to be between 6 and 20 characters.")
)

func (s *credentialStore) Create(ctx context.Context, username, password string) (*models.User, error) {
	hash, err := s.hash(password)
	if err != nil {
		return nil, err
	}

	user := &models.User{
		ID:           uuid.NewString(),
		Username:     username,
		PasswordHash: hash,
		CreatedAt:    time.Now().Unix(),
	}
	if err := s.userRepo.Create(ctx, user); err != nil {
		if errors.Is(err, models.ErrAlreadyExists) {
			return nil, errUsernameTaken
		}
		return nil, fmt.Errorf("create user: %w", err)
	}
	return user, nil
}

func (s *credentialStore) Verify(ctx context.Context, username, password string) (*models.User, error) {
	user, err := s.userRepo.Get(ctx, username)
	if err != nil {
		if errors.Is(err, models.ErrUserNotFound) {
			return nil, errUnknownUser
		}
		return nil, fmt.Errorf("get user: %w", err)
	}

	if err := bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), prehash(password)); err != nil {
		return nil, errWrongPassword
	}
	return user, nil
}

func (s *credentialStore) ChangePassword(ctx context.Context, username, oldPassword, newPassword string) (*models.User, error) {
	if err := validator.GetValidator().Var(newPassword, "min=6,max=20"); err != nil {
		return nil, errNewPasswordLen
	}
	if _, err := s.Verify(ctx, username, oldPassword); err != nil {
		return nil, err
	}

	hash, err := s.hash(newPassword)
	if err != nil {
		return nil, err
	}
	user, err := s.userRepo.UpdatePassword(ctx, username, hash)
	if err != nil {
		if errors.Is(err, models.ErrUserNotFound) {
			return nil, errUnknownUser
		}
		return nil, fmt.Errorf("update password: %w", err)
	}
	return user, nil
}

func (s *credentialStore) Remove(ctx context.Context, username, password string) error {
	if _, err := s.Verify(ctx, username, password); err != nil {
		return err
	}
	if err := s.userRepo.Delete(ctx, username); err != nil {
		if errors.Is(err, models.ErrUserNotFound) {
			return errUnknownUser
		}
		return fmt.Errorf("delete user: %w", err)
	}
	return nil
}

func (s *credentialStore) List(ctx context.Context) ([]string, error) {
	usernames, err := s.userRepo.List(ctx)
	if err != nil {
		return nil, fmt.Errorf("list users: %w", err)
	}
	return usernames, nil
}

func (s *credentialStore) Random(ctx context.Context) (string, error) {
	username, err := s.userRepo.Random(ctx)
	if err != nil {
		if errors.Is(err, models.ErrNoUsers) {
			return "", models.NewError(models.ErrEmpty, "No user available")
		}
		return "", fmt.Errorf("random user: %w", err)
	}
	return username, nil
}

func (s *credentialStore) Exists(ctx context.Context, username string) (bool, error) {
	_, err := s.userRepo.Get(ctx, username)
	switch {
	case err == nil:
		return true, nil
	case errors.Is(err, models.ErrUserNotFound):
		return false, nil
	default:
		return false, fmt.Errorf("get user: %w", err)
	}
}

func (s *credentialStore) hash(password string) (string, error) {
	hash, err := bcrypt.GenerateFromPassword(prehash(password), s.cost)
	if err != nil {
		return "", fmt.Errorf("hash password: %w", err)
	}
	return string(hash), nil
}

// prehash maps any password to 44 bytes so bcrypt's 72-byte input limit
// never truncates or rejects a password that passed the length checks.
func prehash(password string) []byte {
	sum := sha256.Sum256([]byte(password))
	out := make([]byte, base64.StdEncoding.EncodedLen(len(sum)))
	base64.StdEncoding.Encode(out, sum[:])
	return out
}
