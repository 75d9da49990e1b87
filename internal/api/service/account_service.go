package service

import (
	"context"
	"ctchen222/blog-web-api/internal/api/models"
	"ctchen222/blog-web-api/internal/events"
	"ctchen222/blog-web-api/internal/validator"
	"errors"
	"log/slog"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

var (
	tracer = otel.Tracer("service")
	meter  = otel.Meter("service")
)

// AccountService defines the interface for account-related business logic.
type AccountService interface {
	Create(ctx context.Context, req *models.CredentialsRequest) (string, error)
	Login(ctx context.Context, req *models.CredentialsRequest) (string, error)
	// Remove deletes the user together with every post they wrote.
	Remove(ctx context.Context, req *models.CredentialsRequest) error
	ChangePassword(ctx context.Context, req *models.ChangePasswordRequest) (string, error)
	InvalidateTokens(ctx context.Context, req *models.CredentialsRequest) (string, error)
	ListUsers(ctx context.Context) ([]string, error)
	RandomUser(ctx context.Context) (*models.RandomUser, error)
}

type accountService struct {
	credentials CredentialStore
	tokens      TokenManager
	posts       PostStore
	publisher   events.Publisher
	locks       *KeyedMutex

	accountsCreated    metric.Int64Counter
	authFailures       metric.Int64Counter
	tokenInvalidations metric.Int64Counter
}

// NewAccountService creates a new AccountService. locks must be shared with
// the BlogService so that posts cannot be added for a user being removed.
func NewAccountService(credentials CredentialStore, tokens TokenManager, posts PostStore, publisher events.Publisher, locks *KeyedMutex) AccountService {
	accountsCreated, _ := meter.Int64Counter("blog.accounts.created",
		metric.WithDescription("Number of created accounts"))
	authFailures, _ := meter.Int64Counter("blog.auth.failures",
		metric.WithDescription("Number of rejected credentials"))
	tokenInvalidations, _ := meter.Int64Counter("blog.tokens.invalidations",
		metric.WithDescription("Number of generation bumps"))

	return &accountService{
		credentials:        credentials,
		tokens:             tokens,
		posts:              posts,
		publisher:          publisher,
		locks:              locks,
		accountsCreated:    accountsCreated,
		authFailures:       authFailures,
		tokenInvalidations: tokenInvalidations,
	}
}

func (s *accountService) Create(ctx context.Context, req *models.CredentialsRequest) (string, error) {
	ctx, span := tracer.Start(ctx, "AccountService.Create")
	defer span.End()

	if err := validator.Check(req); err != nil {
		return "", err
	}
	defer s.locks.Lock(req.Username)()

	user, err := s.credentials.Create(ctx, req.Username, req.Password)
	if err != nil {
		return "", recordFailure(ctx, span, err)
	}
	token, err := s.tokens.Mint(user)
	if err != nil {
		return "", recordFailure(ctx, span, err)
	}

	s.accountsCreated.Add(ctx, 1)
	slog.InfoContext(ctx, "User created", "user.name", user.Username, "user.id", user.ID)
	return token, nil
}

func (s *accountService) Login(ctx context.Context, req *models.CredentialsRequest) (string, error) {
	ctx, span := tracer.Start(ctx, "AccountService.Login")
	defer span.End()

	if err := validator.Check(req); err != nil {
		return "", err
	}
	defer s.locks.Lock(req.Username)()

	if _, err := s.authenticate(ctx, req.Username, req.Password); err != nil {
		return "", recordFailure(ctx, span, err)
	}
	token, err := s.tokens.Issue(ctx, req.Username)
	if err != nil {
		return "", recordFailure(ctx, span, err)
	}
	return token, nil
}

func (s *accountService) Remove(ctx context.Context, req *models.CredentialsRequest) error {
	ctx, span := tracer.Start(ctx, "AccountService.Remove")
	defer span.End()

	if err := validator.Check(req); err != nil {
		return err
	}
	defer s.locks.Lock(req.Username)()

	if _, err := s.authenticate(ctx, req.Username, req.Password); err != nil {
		return recordFailure(ctx, span, err)
	}

	removed, err := s.posts.RemoveAllByAuthor(ctx, req.Username)
	if err != nil {
		return recordFailure(ctx, span, err)
	}
	if err := s.credentials.Remove(ctx, req.Username, req.Password); err != nil {
		return recordFailure(ctx, span, err)
	}

	span.SetAttributes(attribute.Int("posts.removed", removed))
	slog.InfoContext(ctx, "User removed", "user.name", req.Username, "posts.removed", removed)
	publish(ctx, s.publisher, events.UserRemoved, events.UserRemovedPayload{Username: req.Username, RemovedPosts: removed})
	return nil
}

func (s *accountService) ChangePassword(ctx context.Context, req *models.ChangePasswordRequest) (string, error) {
	ctx, span := tracer.Start(ctx, "AccountService.ChangePassword")
	defer span.End()

	if err := validator.Check(req); err != nil {
		return "", err
	}
	defer s.locks.Lock(req.Username)()

	user, err := s.credentials.ChangePassword(ctx, req.Username, req.Password, req.NewPassword)
	if err != nil {
		if errors.Is(err, models.ErrWrongPassword) || errors.Is(err, models.ErrNotFound) {
			s.authFailures.Add(ctx, 1)
		}
		return "", recordFailure(ctx, span, err)
	}
	token, err := s.tokens.Mint(user)
	if err != nil {
		return "", recordFailure(ctx, span, err)
	}

	s.tokenInvalidations.Add(ctx, 1, metric.WithAttributes(attribute.String("reason", "password_change")))
	slog.InfoContext(ctx, "Password changed", "user.name", user.Username, "user.generation", user.Generation)
	return token, nil
}

func (s *accountService) InvalidateTokens(ctx context.Context, req *models.CredentialsRequest) (string, error) {
	ctx, span := tracer.Start(ctx, "AccountService.InvalidateTokens")
	defer span.End()

	if err := validator.Check(req); err != nil {
		return "", err
	}
	defer s.locks.Lock(req.Username)()

	if _, err := s.authenticate(ctx, req.Username, req.Password); err != nil {
		return "", recordFailure(ctx, span, err)
	}
	token, err := s.tokens.BumpGeneration(ctx, req.Username)
	if err != nil {
		return "", recordFailure(ctx, span, err)
	}

	s.tokenInvalidations.Add(ctx, 1, metric.WithAttributes(attribute.String("reason", "explicit")))
	slog.InfoContext(ctx, "Tokens invalidated", "user.name", req.Username)
	return token, nil
}

func (s *accountService) ListUsers(ctx context.Context) ([]string, error) {
	ctx, span := tracer.Start(ctx, "AccountService.ListUsers")
	defer span.End()

	usernames, err := s.credentials.List(ctx)
	if err != nil {
		return nil, recordFailure(ctx, span, err)
	}
	if usernames == nil {
		usernames = []string{}
	}
	return usernames, nil
}

func (s *accountService) RandomUser(ctx context.Context) (*models.RandomUser, error) {
	ctx, span := tracer.Start(ctx, "AccountService.RandomUser")
	defer span.End()

	username, err := s.credentials.Random(ctx)
	if err != nil {
		return nil, recordFailure(ctx, span, err)
	}

	ids, err := s.posts.ListByAuthor(ctx, username)
	if err != nil && !errors.Is(err, models.ErrEmpty) {
		return nil, recordFailure(ctx, span, err)
	}
	if ids == nil {
		ids = []int64{}
	}
	return &models.RandomUser{Username: username, PostIDs: ids}, nil
}

func (s *accountService) authenticate(ctx context.Context, username, password string) (*models.User, error) {
	user, err := s.credentials.Verify(ctx, username, password)
	if err != nil {
		if errors.Is(err, models.ErrWrongPassword) || errors.Is(err, models.ErrNotFound) {
			s.authFailures.Add(ctx, 1)
		}
		return nil, err
	}
	return user, nil
}
