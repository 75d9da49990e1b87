package repository

import (
	"context"
	"ctchen222/blog-web-api/internal/api/models"
	"errors"
	"fmt"
	"strconv"

	"github.com/go-redis/redis/v8"
)

const (
	postsKey      = "posts"
	lastPostIDKey = "posts:last_id"
)

// Post hash fields.
const (
	fieldPostID      = "id"
	fieldAuthor      = "author"
	fieldTitle       = "title"
	fieldBody        = "body"
	fieldLastUpdated = "last_updated"
)

// PostRepository defines the interface for post storage.
type PostRepository interface {
	// Create assigns the next id and the last-updated time to post and stores it.
	Create(ctx context.Context, post *models.Post) error
	// Get returns models.ErrPostNotFound for unknown ids.
	Get(ctx context.Context, id int64) (*models.Post, error)
	// Update changes title and body if requester is the author.
	Update(ctx context.Context, id int64, requester, title, body string) (*models.Post, error)
	// Delete removes the post if requester is the author.
	Delete(ctx context.Context, id int64, requester string) error
	// ListByAuthor returns the author's post ids in ascending order, possibly none.
	ListByAuthor(ctx context.Context, author string) ([]int64, error)
	// DeleteByAuthor removes every post of author and reports how many were removed.
	DeleteByAuthor(ctx context.Context, author string) (int, error)
	// Random returns models.ErrNoPosts when the store is empty.
	Random(ctx context.Context) (*models.Post, error)
	// ListAll returns every post id in ascending order.
	ListAll(ctx context.Context) ([]int64, error)
}

type redisPostRepository struct {
	rdb *redis.Client
}

// NewPostRepository creates a new Redis-based PostRepository.
func NewPostRepository(rdb *redis.Client) PostRepository {
	return &redisPostRepository{rdb: rdb}
}

func postKey(id int64) string {
	return fmt.Sprintf("post:%d", id)
}

func authorPostsKey(author string) string {
	return fmt.Sprintf("posts:author:%s", author)
}

// Create allocates an id with INCR, so ids are never handed out twice even
// after the post holding them is removed.
func (r *redisPostRepository) Create(ctx context.Context, post *models.Post) error {
	ctx, span := tracer.Start(ctx, "PostRepository.Create")
	defer span.End()

	id, err := r.rdb.Incr(ctx, lastPostIDKey).Result()
	if err != nil {
		return fmt.Errorf("failed to allocate post id: %w", err)
	}
	now, err := r.rdb.Time(ctx).Result()
	if err != nil {
		return fmt.Errorf("failed to read redis time: %w", err)
	}

	post.ID = id
	post.LastUpdated = now.Unix()

	member := strconv.FormatInt(id, 10)
	pipe := r.rdb.TxPipeline()
	pipe.HSet(ctx, postKey(id),
		fieldPostID, post.ID,
		fieldAuthor, post.Author,
		fieldTitle, post.Title,
		fieldBody, post.Body,
		fieldLastUpdated, post.LastUpdated,
	)
	pipe.ZAdd(ctx, postsKey, &redis.Z{Score: float64(id), Member: member})
	pipe.ZAdd(ctx, authorPostsKey(post.Author), &redis.Z{Score: float64(id), Member: member})
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("failed to create post in redis: %w", err)
	}
	return nil
}

// Get retrieves a post by id.
func (r *redisPostRepository) Get(ctx context.Context, id int64) (*models.Post, error) {
	ctx, span := tracer.Start(ctx, "PostRepository.Get")
	defer span.End()

	data, err := r.rdb.HGetAll(ctx, postKey(id)).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to get post from redis: %w", err)
	}
	if len(data) == 0 {
		return nil, models.ErrPostNotFound
	}
	return postFromHash(id, data)
}

// Update checks ownership and rewrites the post inside one WATCH transaction.
func (r *redisPostRepository) Update(ctx context.Context, id int64, requester, title, body string) (*models.Post, error) {
	ctx, span := tracer.Start(ctx, "PostRepository.Update")
	defer span.End()

	key := postKey(id)
	var post *models.Post
	txf := func(tx *redis.Tx) error {
		data, err := tx.HGetAll(ctx, key).Result()
		if err != nil {
			return err
		}
		if len(data) == 0 {
			return models.ErrPostNotFound
		}
		if data[fieldAuthor] != requester {
			return models.ErrNotOwner
		}
		post, err = postFromHash(id, data)
		if err != nil {
			return err
		}

		now, err := tx.Time(ctx).Result()
		if err != nil {
			return err
		}
		post.Title = title
		post.Body = body
		post.LastUpdated = now.Unix()

		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.HSet(ctx, key,
				fieldTitle, post.Title,
				fieldBody, post.Body,
				fieldLastUpdated, post.LastUpdated,
			)
			return nil
		})
		return err
	}

	if err := r.watch(ctx, txf, key); err != nil {
		return nil, err
	}
	return post, nil
}

// Delete checks ownership and removes the post and its index entries.
func (r *redisPostRepository) Delete(ctx context.Context, id int64, requester string) error {
	ctx, span := tracer.Start(ctx, "PostRepository.Delete")
	defer span.End()

	key := postKey(id)
	member := strconv.FormatInt(id, 10)
	txf := func(tx *redis.Tx) error {
		author, err := tx.HGet(ctx, key, fieldAuthor).Result()
		if errors.Is(err, redis.Nil) {
			return models.ErrPostNotFound
		}
		if err != nil {
			return err
		}
		if author != requester {
			return models.ErrNotOwner
		}

		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.Del(ctx, key)
			pipe.ZRem(ctx, postsKey, member)
			pipe.ZRem(ctx, authorPostsKey(author), member)
			return nil
		})
		return err
	}

	return r.watch(ctx, txf, key)
}

// watch runs txf with retries, passing ownership and lookup errors through.
func (r *redisPostRepository) watch(ctx context.Context, txf func(*redis.Tx) error, keys ...string) error {
	err := watchWithRetry(ctx, r.rdb, txf, keys...)
	switch {
	case err == nil:
		return nil
	case errors.Is(err, models.ErrPostNotFound), errors.Is(err, models.ErrNotOwner):
		return err
	default:
		return fmt.Errorf("failed to update post in redis: %w", err)
	}
}

// ListByAuthor returns the ids of the author's posts.
func (r *redisPostRepository) ListByAuthor(ctx context.Context, author string) ([]int64, error) {
	ctx, span := tracer.Start(ctx, "PostRepository.ListByAuthor")
	defer span.End()

	members, err := r.rdb.ZRange(ctx, authorPostsKey(author), 0, -1).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to list author posts from redis: %w", err)
	}
	return parseIDs(members)
}

// DeleteByAuthor first collects the author's post ids and then deletes
// exactly those, so running it twice is harmless.
func (r *redisPostRepository) DeleteByAuthor(ctx context.Context, author string) (int, error) {
	ctx, span := tracer.Start(ctx, "PostRepository.DeleteByAuthor")
	defer span.End()

	ids, err := r.ListByAuthor(ctx, author)
	if err != nil {
		return 0, err
	}
	if len(ids) == 0 {
		return 0, nil
	}

	members := make([]interface{}, len(ids))
	pipe := r.rdb.TxPipeline()
	for i, id := range ids {
		members[i] = strconv.FormatInt(id, 10)
		pipe.Del(ctx, postKey(id))
	}
	pipe.ZRem(ctx, postsKey, members...)
	pipe.ZRem(ctx, authorPostsKey(author), members...)
	if _, err := pipe.Exec(ctx); err != nil {
		return 0, fmt.Errorf("failed to delete author posts from redis: %w", err)
	}
	return len(ids), nil
}

// Random picks a post uniformly at random.
func (r *redisPostRepository) Random(ctx context.Context) (*models.Post, error) {
	ctx, span := tracer.Start(ctx, "PostRepository.Random")
	defer span.End()

	for attempt := 0; attempt < maxTxRetries; attempt++ {
		members, err := r.rdb.ZRandMember(ctx, postsKey, 1, false).Result()
		if err != nil {
			return nil, fmt.Errorf("failed to get random post from redis: %w", err)
		}
		if len(members) == 0 {
			return nil, models.ErrNoPosts
		}
		id, err := strconv.ParseInt(members[0], 10, 64)
		if err != nil {
			return nil, fmt.Errorf("corrupt post id %q: %w", members[0], err)
		}

		post, err := r.Get(ctx, id)
		if errors.Is(err, models.ErrPostNotFound) {
			// Removed between the pick and the read.
			continue
		}
		return post, err
	}
	return nil, models.ErrNoPosts
}

// ListAll returns every post id.
func (r *redisPostRepository) ListAll(ctx context.Context) ([]int64, error) {
	ctx, span := tracer.Start(ctx, "PostRepository.ListAll")
	defer span.End()

	members, err := r.rdb.ZRange(ctx, postsKey, 0, -1).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to list posts from redis: %w", err)
	}
	return parseIDs(members)
}

func parseIDs(members []string) ([]int64, error) {
	ids := make([]int64, 0, len(members))
	for _, m := range members {
		id, err := strconv.ParseInt(m, 10, 64)
		if err != nil {
			return nil, fmt.Errorf("corrupt post id %q: %w", m, err)
		}
		ids = append(ids, id)
	}
	return ids, nil
}

func postFromHash(id int64, data map[string]string) (*models.Post, error) {
	lastUpdated, err := strconv.ParseInt(data[fieldLastUpdated], 10, 64)
	if err != nil {
		return nil, fmt.Errorf("corrupt last_updated for post %d: %w", id, err)
	}

	return &models.Post{
		ID:          id,
		Author:      data[fieldAuthor],
		Title:       data[fieldTitle],
		Body:        data[fieldBody],
		LastUpdated: lastUpdated,
	}, nil
}
