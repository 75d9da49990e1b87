package service

import (
	"context"
	"ctchen222/blog-web-api/internal/api/models"
	"ctchen222/blog-web-api/internal/repository"
	"ctchen222/blog-web-api/internal/validator"
	"errors"
	"fmt"
)

// PostStore manages posts and enforces that only the author mutates a post.
type PostStore interface {
	Add(ctx context.Context, author, title, body string) (*models.Post, error)
	Get(ctx context.Context, id int64) (*models.Post, error)
	Update(ctx context.Context, id int64, requester, title, body string) (*models.Post, error)
	Remove(ctx context.Context, id int64, requester string) error
	// ListByAuthor fails with models.ErrEmpty when username has no posts.
	ListByAuthor(ctx context.Context, username string) ([]int64, error)
	// RemoveAllByAuthor is idempotent and reports how many posts were removed.
	RemoveAllByAuthor(ctx context.Context, username string) (int, error)
	Random(ctx context.Context) (*models.Post, error)
	ListAll(ctx context.Context) ([]int64, error)
}

type postStore struct {
	postRepo repository.PostRepository
}

func NewPostStore(postRepo repository.PostRepository) PostStore {
	return &postStore{postRepo: postRepo}
}

var (
	errPostNotFound = models.NewError(models.ErrNotFound, "Didn't find the blog post.")
	errNotAuthor    = models.NewError(models.ErrNotOwner, "The blog posts state can only be changed by its author.")
	errTitleLen     = models.NewError(models.ErrValidation, "'title' needs to be between 5 and 100 characters.")
	errBodyLen      = models.NewError(models.ErrValidation, "'body' needs to be between 10 and 10000 characters.")
)

func checkPost(title, body string) error {
	v := validator.GetValidator()
	if err := v.Var(title, "min=5,max=100"); err != nil {
		return errTitleLen
	}
	if err := v.Var(body, "min=10,max=10000"); err != nil {
		return errBodyLen
	}
	return nil
}

// postError maps repository failures onto caller facing errors.
func postError(op string, err error) error {
	switch {
	case errors.Is(err, models.ErrPostNotFound):
		return errPostNotFound
	case errors.Is(err, models.ErrNotOwner):
		return errNotAuthor
	default:
		return fmt.Errorf("%s: %w", op, err)
	}
}

func (s *postStore) Add(ctx context.Context, author, title, body string) (*models.Post, error) {
	if err := checkPost(title, body); err != nil {
		return nil, err
	}

	post := &models.Post{Author: author, Title: title, Body: body}
	if err := s.postRepo.Create(ctx, post); err != nil {
		return nil, fmt.Errorf("create post: %w", err)
	}
	return post, nil
}

func (s *postStore) Get(ctx context.Context, id int64) (*models.Post, error) {
	post, err := s.postRepo.Get(ctx, id)
	if err != nil {
		return nil, postError("get post", err)
	}
	return post, nil
}

func (s *postStore) Update(ctx context.Context, id int64, requester, title, body string) (*models.Post, error) {
	if err := checkPost(title, body); err != nil {
		return nil, err
	}

	post, err := s.postRepo.Update(ctx, id, requester, title, body)
	if err != nil {
		return nil, postError("update post", err)
	}
	return post, nil
}

func (s *postStore) Remove(ctx context.Context, id int64, requester string) error {
	if err := s.postRepo.Delete(ctx, id, requester); err != nil {
		return postError("delete post", err)
	}
	return nil
}

func (s *postStore) ListByAuthor(ctx context.Context, username string) ([]int64, error) {
	ids, err := s.postRepo.ListByAuthor(ctx, username)
	if err != nil {
		return nil, fmt.Errorf("list posts by author: %w", err)
	}
	if len(ids) == 0 {
		return nil, models.NewError(models.ErrEmpty, "No posts found.")
	}
	return ids, nil
}

func (s *postStore) RemoveAllByAuthor(ctx context.Context, username string) (int, error) {
	n, err := s.postRepo.DeleteByAuthor(ctx, username)
	if err != nil {
		return n, fmt.Errorf("delete posts by author: %w", err)
	}
	return n, nil
}

func (s *postStore) Random(ctx context.Context) (*models.Post, error) {
	post, err := s.postRepo.Random(ctx)
	if err != nil {
		if errors.Is(err, models.ErrNoPosts) {
			return nil, models.NewError(models.ErrEmpty, "Couldn't find any post.")
		}
		return nil, fmt.Errorf("random post: %w", err)
	}
	return post, nil
}

func (s *postStore) ListAll(ctx context.Context) ([]int64, error) {
	ids, err := s.postRepo.ListAll(ctx)
	if err != nil {
		return nil, fmt.Errorf("list posts: %w", err)
	}
	return ids, nil
}
