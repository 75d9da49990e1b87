package service

import (
	"context"
	"ctchen222/blog-web-api/internal/api/models"
	"ctchen222/blog-web-api/internal/events"
	"ctchen222/blog-web-api/internal/validator"
	"log/slog"
	"strconv"
	"strings"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"
)

// BlogService defines the interface for post-related business logic.
type BlogService interface {
	AddPost(ctx context.Context, req *models.AddPostRequest) (*models.Post, error)
	UpdatePost(ctx context.Context, req *models.UpdatePostRequest) (*models.Post, error)
	RemovePost(ctx context.Context, req *models.RemovePostRequest) error
	GetPost(ctx context.Context, id string) (*models.Post, error)
	PostsByAuthor(ctx context.Context, username string) ([]int64, error)
	RandomPost(ctx context.Context) (*models.Post, error)
	ListPosts(ctx context.Context) ([]int64, error)
}

type blogService struct {
	credentials CredentialStore
	tokens      TokenManager
	posts       PostStore
	publisher   events.Publisher
	locks       *KeyedMutex

	postsCreated metric.Int64Counter
}

func NewBlogService(credentials CredentialStore, tokens TokenManager, posts PostStore, publisher events.Publisher, locks *KeyedMutex) BlogService {
	postsCreated, _ := meter.Int64Counter("blog.posts.created",
		metric.WithDescription("Number of created posts"))

	return &blogService{
		credentials:  credentials,
		tokens:       tokens,
		posts:        posts,
		publisher:    publisher,
		locks:        locks,
		postsCreated: postsCreated,
	}
}

func parsePostID(raw string) (int64, error) {
	id, err := strconv.ParseInt(strings.TrimSpace(raw), 10, 64)
	if err != nil {
		return 0, models.NewError(models.ErrValidation, "Invalid 'blogId' argument.")
	}
	return id, nil
}

func (s *blogService) AddPost(ctx context.Context, req *models.AddPostRequest) (*models.Post, error) {
	ctx, span := tracer.Start(ctx, "BlogService.AddPost")
	defer span.End()

	if err := validator.Check(req); err != nil {
		return nil, err
	}
	author, err := s.tokens.Validate(ctx, req.Token)
	if err != nil {
		return nil, recordFailure(ctx, span, err)
	}

	// The author may have been removed while waiting for the lock.
	defer s.locks.Lock(author)()
	if _, err := s.tokens.Validate(ctx, req.Token); err != nil {
		return nil, recordFailure(ctx, span, err)
	}

	post, err := s.posts.Add(ctx, author, req.Title, req.Body)
	if err != nil {
		return nil, recordFailure(ctx, span, err)
	}

	span.SetAttributes(attribute.Int64("post.id", post.ID))
	s.postsCreated.Add(ctx, 1)
	slog.InfoContext(ctx, "Post created", "post.id", post.ID, "post.author", author)
	publish(ctx, s.publisher, events.PostCreated, postPayload(post))
	return post, nil
}

func (s *blogService) UpdatePost(ctx context.Context, req *models.UpdatePostRequest) (*models.Post, error) {
	ctx, span := tracer.Start(ctx, "BlogService.UpdatePost")
	defer span.End()

	if err := validator.Check(req); err != nil {
		return nil, err
	}
	id, err := parsePostID(string(req.PostID))
	if err != nil {
		return nil, err
	}
	span.SetAttributes(attribute.Int64("post.id", id))

	requester, err := s.tokens.Validate(ctx, req.Token)
	if err != nil {
		return nil, recordFailure(ctx, span, err)
	}
	post, err := s.posts.Update(ctx, id, requester, req.Title, req.Body)
	if err != nil {
		return nil, recordFailure(ctx, span, err)
	}

	slog.InfoContext(ctx, "Post updated", "post.id", id, "post.author", requester)
	publish(ctx, s.publisher, events.PostUpdated, postPayload(post))
	return post, nil
}

func (s *blogService) RemovePost(ctx context.Context, req *models.RemovePostRequest) error {
	ctx, span := tracer.Start(ctx, "BlogService.RemovePost")
	defer span.End()

	if err := validator.Check(req); err != nil {
		return err
	}
	id, err := parsePostID(string(req.PostID))
	if err != nil {
		return err
	}
	span.SetAttributes(attribute.Int64("post.id", id))

	requester, err := s.tokens.Validate(ctx, req.Token)
	if err != nil {
		return recordFailure(ctx, span, err)
	}
	if err := s.posts.Remove(ctx, id, requester); err != nil {
		return recordFailure(ctx, span, err)
	}

	slog.InfoContext(ctx, "Post removed", "post.id", id, "post.author", requester)
	publish(ctx, s.publisher, events.PostRemoved, events.PostRemovedPayload{PostID: id, Author: requester})
	return nil
}

func (s *blogService) GetPost(ctx context.Context, rawID string) (*models.Post, error) {
	ctx, span := tracer.Start(ctx, "BlogService.GetPost")
	defer span.End()

	id, err := parsePostID(rawID)
	if err != nil {
		return nil, err
	}
	post, err := s.posts.Get(ctx, id)
	if err != nil {
		return nil, recordFailure(ctx, span, err)
	}
	return post, nil
}

func (s *blogService) PostsByAuthor(ctx context.Context, username string) ([]int64, error) {
	ctx, span := tracer.Start(ctx, "BlogService.PostsByAuthor", trace.WithAttributes(
		attribute.String("user.name", username),
	))
	defer span.End()

	if username == "" {
		return nil, models.NewError(models.ErrMissingArgument, "Missing 'username' argument.")
	}
	exists, err := s.credentials.Exists(ctx, username)
	if err != nil {
		return nil, recordFailure(ctx, span, err)
	}
	if !exists {
		return nil, recordFailure(ctx, span, errUnknownUser)
	}

	ids, err := s.posts.ListByAuthor(ctx, username)
	if err != nil {
		return nil, recordFailure(ctx, span, err)
	}
	return ids, nil
}

func (s *blogService) RandomPost(ctx context.Context) (*models.Post, error) {
	ctx, span := tracer.Start(ctx, "BlogService.RandomPost")
	defer span.End()

	post, err := s.posts.Random(ctx)
	if err != nil {
		return nil, recordFailure(ctx, span, err)
	}
	return post, nil
}

func (s *blogService) ListPosts(ctx context.Context) ([]int64, error) {
	ctx, span := tracer.Start(ctx, "BlogService.ListPosts")
	defer span.End()

	ids, err := s.posts.ListAll(ctx)
	if err != nil {
		return nil, recordFailure(ctx, span, err)
	}
	if ids == nil {
		ids = []int64{}
	}
	return ids, nil
}

func postPayload(post *models.Post) events.PostPayload {
	return events.PostPayload{
		PostID:      post.ID,
		Author:      post.Author,
		Title:       post.Title,
		LastUpdated: post.LastUpdated,
	}
}
