package repository

import (
	"context"
	"ctchen222/blog-web-api/internal/api/models"
	"errors"
	"fmt"
	"sort"
	"strconv"

	"github.com/go-redis/redis/v8"
	"go.opentelemetry.io/otel"
)

var tracer = otel.Tracer("repository")

const (
	usersKey     = "users"
	maxTxRetries = 10
)

var bumpGenerationScript = redis.NewScript(`
if redis.call('EXISTS', KEYS[1]) == 0 then
	return false
end
if ARGV[1] ~= '' then
	redis.call('HSET', KEYS[1], 'password_hash', ARGV[1])
end
redis.call('HINCRBY', KEYS[1], 'generation', 1)
return redis.call('HGETALL', KEYS[1])
`)

// User hash fields.
const (
	fieldUserID       = "id"
	fieldPasswordHash = "password_hash"
	fieldGeneration   = "generation"
	fieldCreatedAt    = "created_at"
)

// UserRepository defines the interface for credential and session-generation storage.
type UserRepository interface {
	// Create stores a new user. Returns models.ErrAlreadyExists if the username is taken.
	Create(ctx context.Context, user *models.User) error
	// Get returns models.ErrUserNotFound for unknown usernames.
	Get(ctx context.Context, username string) (*models.User, error)
	// UpdatePassword replaces the hash and bumps the generation in one step.
	UpdatePassword(ctx context.Context, username, passwordHash string) (*models.User, error)
	// BumpGeneration increments the generation and returns the updated user.
	BumpGeneration(ctx context.Context, username string) (*models.User, error)
	Delete(ctx context.Context, username string) error
	List(ctx context.Context) ([]string, error)
	// Random returns models.ErrNoUsers when there is no user.
	Random(ctx context.Context) (string, error)
}

type redisUserRepository struct {
	rdb *redis.Client
}

// NewUserRepository creates a new Redis-based UserRepository.
func NewUserRepository(rdb *redis.Client) UserRepository {
	return &redisUserRepository{rdb: rdb}
}

func userKey(username string) string {
	return fmt.Sprintf("user:%s", username)
}

// Create stores the user hash and indexes the username.
func (r *redisUserRepository) Create(ctx context.Context, user *models.User) error {
	ctx, span := tracer.Start(ctx, "UserRepository.Create")
	defer span.End()

	key := userKey(user.Username)
	txf := func(tx *redis.Tx) error {
		n, err := tx.Exists(ctx, key).Result()
		if err != nil {
			return err
		}
		if n > 0 {
			return models.ErrAlreadyExists
		}

		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.HSet(ctx, key,
				fieldUserID, user.ID,
				fieldPasswordHash, user.PasswordHash,
				fieldGeneration, user.Generation,
				fieldCreatedAt, user.CreatedAt,
			)
			pipe.SAdd(ctx, usersKey, user.Username)
			return nil
		})
		return err
	}

	// A concurrent create or delete of the key aborts EXEC; the retry
	// re-reads EXISTS and decides again.
	err := watchWithRetry(ctx, r.rdb, txf, key)
	if err != nil && !errors.Is(err, models.ErrAlreadyExists) {
		return fmt.Errorf("failed to create user in redis: %w", err)
	}
	return err
}

// watchWithRetry runs txf under WATCH, retrying up to maxTxRetries times when
// a watched key changes before EXEC. Errors from txf are returned unwrapped.
func watchWithRetry(ctx context.Context, rdb *redis.Client, txf func(*redis.Tx) error, keys ...string) error {
	for attempt := 0; attempt < maxTxRetries; attempt++ {
		err := rdb.Watch(ctx, txf, keys...)
		if errors.Is(err, redis.TxFailedErr) {
			continue
		}
		return err
	}
	return redis.TxFailedErr
}

// Get retrieves a user by username.
func (r *redisUserRepository) Get(ctx context.Context, username string) (*models.User, error) {
	ctx, span := tracer.Start(ctx, "UserRepository.Get")
	defer span.End()

	data, err := r.rdb.HGetAll(ctx, userKey(username)).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to get user from redis: %w", err)
	}
	if len(data) == 0 {
		return nil, models.ErrUserNotFound
	}
	return userFromHash(username, data)
}

// UpdatePassword swaps the password hash and invalidates previous tokens atomically.
func (r *redisUserRepository) UpdatePassword(ctx context.Context, username, passwordHash string) (*models.User, error) {
	ctx, span := tracer.Start(ctx, "UserRepository.UpdatePassword")
	defer span.End()

	return r.update(ctx, username, passwordHash)
}

// BumpGeneration invalidates every token issued so far for the user.
func (r *redisUserRepository) BumpGeneration(ctx context.Context, username string) (*models.User, error) {
	ctx, span := tracer.Start(ctx, "UserRepository.BumpGeneration")
	defer span.End()

	return r.update(ctx, username, "")
}

// update bumps the generation, and replaces the password hash when one is
// given, in a single script so no reader ever sees one change without the
// other. Unknown users are not created by HINCRBY.
func (r *redisUserRepository) update(ctx context.Context, username, passwordHash string) (*models.User, error) {
	res, err := bumpGenerationScript.Run(ctx, r.rdb, []string{userKey(username)}, passwordHash).Result()
	if errors.Is(err, redis.Nil) {
		return nil, models.ErrUserNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to update user in redis: %w", err)
	}

	values, ok := res.([]interface{})
	if !ok || len(values)%2 != 0 {
		return nil, fmt.Errorf("unexpected script reply %T for user %s", res, username)
	}
	data := make(map[string]string, len(values)/2)
	for i := 0; i < len(values); i += 2 {
		field, _ := values[i].(string)
		value, _ := values[i+1].(string)
		data[field] = value
	}
	return userFromHash(username, data)
}

// Delete removes the user hash and its index entry.
func (r *redisUserRepository) Delete(ctx context.Context, username string) error {
	ctx, span := tracer.Start(ctx, "UserRepository.Delete")
	defer span.End()

	pipe := r.rdb.TxPipeline()
	del := pipe.Del(ctx, userKey(username))
	pipe.SRem(ctx, usersKey, username)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("failed to delete user from redis: %w", err)
	}
	if del.Val() == 0 {
		return models.ErrUserNotFound
	}
	return nil
}

// List returns all usernames in lexical order.
func (r *redisUserRepository) List(ctx context.Context) ([]string, error) {
	ctx, span := tracer.Start(ctx, "UserRepository.List")
	defer span.End()

	names, err := r.rdb.SMembers(ctx, usersKey).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to list users from redis: %w", err)
	}
	sort.Strings(names)
	return names, nil
}

// Random picks a username uniformly at random.
func (r *redisUserRepository) Random(ctx context.Context) (string, error) {
	ctx, span := tracer.Start(ctx, "UserRepository.Random")
	defer span.End()

	name, err := r.rdb.SRandMember(ctx, usersKey).Result()
	if errors.Is(err, redis.Nil) {
		return "", models.ErrNoUsers
	}
	if err != nil {
		return "", fmt.Errorf("failed to get random user from redis: %w", err)
	}
	return name, nil
}

func userFromHash(username string, data map[string]string) (*models.User, error) {
	gen, err := strconv.ParseInt(data[fieldGeneration], 10, 64)
	if err != nil {
		return nil, fmt.Errorf("corrupt generation for user %s: %w", username, err)
	}
	createdAt, err := strconv.ParseInt(data[fieldCreatedAt], 10, 64)
	if err != nil {
		return nil, fmt.Errorf("corrupt created_at for user %s: %w", username, err)
	}

	return &models.User{
		ID:           data[fieldUserID],
		Username:     username,
		PasswordHash: data[fieldPasswordHash],
		Generation:   gen,
		CreatedAt:    createdAt,
	}, nil
}
