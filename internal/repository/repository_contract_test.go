package repository

import (
	"context"
	"ctchen222/blog-web-api/internal/api/models"
	"fmt"
	"sync"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// The same behaviour is expected from every storage backend; the Redis and
// SQLite test files run these suites against a fresh store.

func newUser(username string) *models.User {
	return &models.User{
		ID:           uuid.New().String(),
		Username:     username,
		PasswordHash: "hash-" + username,
		CreatedAt:    1700000000,
	}
}

func testUserRepository(t *testing.T, newRepo func(t *testing.T) UserRepository) {
	ctx := context.Background()

	t.Run("create and get", func(t *testing.T) {
		repo := newRepo(t)
		user := newUser("alice")
		require.NoError(t, repo.Create(ctx, user))

		got, err := repo.Get(ctx, "alice")
		require.NoError(t, err)
		assert.Equal(t, user, got)
	})

	t.Run("duplicate create fails without side effects", func(t *testing.T) {
		repo := newRepo(t)
		require.NoError(t, repo.Create(ctx, newUser("alice")))

		dup := newUser("alice")
		dup.PasswordHash = "other"
		assert.ErrorIs(t, repo.Create(ctx, dup), models.ErrAlreadyExists)

		got, err := repo.Get(ctx, "alice")
		require.NoError(t, err)
		assert.Equal(t, "hash-alice", got.PasswordHash)
	})

	t.Run("unknown user", func(t *testing.T) {
		repo := newRepo(t)
		_, err := repo.Get(ctx, "ghost")
		assert.ErrorIs(t, err, models.ErrUserNotFound)
		_, err = repo.BumpGeneration(ctx, "ghost")
		assert.ErrorIs(t, err, models.ErrUserNotFound)
		_, err = repo.UpdatePassword(ctx, "ghost", "hash")
		assert.ErrorIs(t, err, models.ErrUserNotFound)
		assert.ErrorIs(t, repo.Delete(ctx, "ghost"), models.ErrUserNotFound)

		// A failed bump must not create the user as a side effect.
		_, err = repo.Get(ctx, "ghost")
		assert.ErrorIs(t, err, models.ErrUserNotFound)
	})

	t.Run("password update bumps generation", func(t *testing.T) {
		repo := newRepo(t)
		require.NoError(t, repo.Create(ctx, newUser("alice")))

		got, err := repo.UpdatePassword(ctx, "alice", "new-hash")
		require.NoError(t, err)
		assert.Equal(t, "new-hash", got.PasswordHash)
		assert.EqualValues(t, 1, got.Generation)

		got, err = repo.BumpGeneration(ctx, "alice")
		require.NoError(t, err)
		assert.EqualValues(t, 2, got.Generation)
		assert.Equal(t, "new-hash", got.PasswordHash)
	})

	t.Run("concurrent bumps are all counted", func(t *testing.T) {
		repo := newRepo(t)
		require.NoError(t, repo.Create(ctx, newUser("alice")))

		const n = 20
		var wg sync.WaitGroup
		for i := 0; i < n; i++ {
			wg.Add(1)
			go func() {
				defer wg.Done()
				_, err := repo.BumpGeneration(ctx, "alice")
				assert.NoError(t, err)
			}()
		}
		wg.Wait()

		got, err := repo.Get(ctx, "alice")
		require.NoError(t, err)
		assert.EqualValues(t, n, got.Generation)
	})

	t.Run("list random delete", func(t *testing.T) {
		repo := newRepo(t)
		_, err := repo.Random(ctx)
		assert.ErrorIs(t, err, models.ErrNoUsers)

		names, err := repo.List(ctx)
		require.NoError(t, err)
		assert.Empty(t, names)

		for _, name := range []string{"carol", "alice", "bob"} {
			require.NoError(t, repo.Create(ctx, newUser(name)))
		}

		names, err = repo.List(ctx)
		require.NoError(t, err)
		assert.Equal(t, []string{"alice", "bob", "carol"}, names)

		name, err := repo.Random(ctx)
		require.NoError(t, err)
		assert.Contains(t, names, name)

		require.NoError(t, repo.Delete(ctx, "bob"))
		names, err = repo.List(ctx)
		require.NoError(t, err)
		assert.Equal(t, []string{"alice", "carol"}, names)
	})
}

func testPostRepository(t *testing.T, newRepo func(t *testing.T) PostRepository) {
	ctx := context.Background()

	add := func(t *testing.T, repo PostRepository, author string) *models.Post {
		t.Helper()
		post := &models.Post{Author: author, Title: "The title.", Body: "The body message."}
		require.NoError(t, repo.Create(ctx, post))
		return post
	}

	t.Run("create and get", func(t *testing.T) {
		repo := newRepo(t)
		post := add(t, repo, "alice")
		assert.Positive(t, post.ID)
		assert.Positive(t, post.LastUpdated)

		got, err := repo.Get(ctx, post.ID)
		require.NoError(t, err)
		assert.Equal(t, post, got)

		_, err = repo.Get(ctx, post.ID+100)
		assert.ErrorIs(t, err, models.ErrPostNotFound)
	})

	t.Run("ids are never reused", func(t *testing.T) {
		repo := newRepo(t)
		first := add(t, repo, "alice")
		second := add(t, repo, "alice")
		require.NoError(t, repo.Delete(ctx, second.ID, "alice"))

		third := add(t, repo, "alice")
		assert.Greater(t, second.ID, first.ID)
		assert.Greater(t, third.ID, second.ID)
	})

	t.Run("concurrent creates get unique ids", func(t *testing.T) {
		repo := newRepo(t)
		const n = 20
		ids := make(chan int64, n)
		var wg sync.WaitGroup
		for i := 0; i < n; i++ {
			wg.Add(1)
			go func(i int) {
				defer wg.Done()
				post := &models.Post{Author: fmt.Sprintf("user%d", i%3), Title: "title", Body: "body"}
				if assert.NoError(t, repo.Create(ctx, post)) {
					ids <- post.ID
				}
			}(i)
		}
		wg.Wait()
		close(ids)

		seen := map[int64]bool{}
		for id := range ids {
			assert.False(t, seen[id], "duplicate id %d", id)
			seen[id] = true
		}
		assert.Len(t, seen, n)
	})

	t.Run("only the author may update or delete", func(t *testing.T) {
		repo := newRepo(t)
		post := add(t, repo, "alice")

		_, err := repo.Update(ctx, post.ID, "mallory", "Hacked title", "Hacked body text")
		assert.ErrorIs(t, err, models.ErrNotOwner)
		assert.ErrorIs(t, repo.Delete(ctx, post.ID, "mallory"), models.ErrNotOwner)

		got, err := repo.Get(ctx, post.ID)
		require.NoError(t, err)
		assert.Equal(t, "The title.", got.Title)

		updated, err := repo.Update(ctx, post.ID, "alice", "New title", "New body message")
		require.NoError(t, err)
		assert.Equal(t, "New title", updated.Title)
		assert.Equal(t, "New body message", updated.Body)
		assert.GreaterOrEqual(t, updated.LastUpdated, post.LastUpdated)

		require.NoError(t, repo.Delete(ctx, post.ID, "alice"))
		_, err = repo.Get(ctx, post.ID)
		assert.ErrorIs(t, err, models.ErrPostNotFound)

		_, err = repo.Update(ctx, post.ID, "alice", "New title", "New body message")
		assert.ErrorIs(t, err, models.ErrPostNotFound)
		assert.ErrorIs(t, repo.Delete(ctx, post.ID, "alice"), models.ErrPostNotFound)
	})

	t.Run("listing and author removal", func(t *testing.T) {
		repo := newRepo(t)
		ids, err := repo.ListAll(ctx)
		require.NoError(t, err)
		assert.Empty(t, ids)
		_, err = repo.Random(ctx)
		assert.ErrorIs(t, err, models.ErrNoPosts)

		a1 := add(t, repo, "alice")
		b1 := add(t, repo, "bob")
		a2 := add(t, repo, "alice")

		ids, err = repo.ListAll(ctx)
		require.NoError(t, err)
		assert.Equal(t, []int64{a1.ID, b1.ID, a2.ID}, ids)

		ids, err = repo.ListByAuthor(ctx, "alice")
		require.NoError(t, err)
		assert.Equal(t, []int64{a1.ID, a2.ID}, ids)

		random, err := repo.Random(ctx)
		require.NoError(t, err)
		assert.Contains(t, []int64{a1.ID, b1.ID, a2.ID}, random.ID)

		removed, err := repo.DeleteByAuthor(ctx, "alice")
		require.NoError(t, err)
		assert.Equal(t, 2, removed)

		removed, err = repo.DeleteByAuthor(ctx, "alice")
		require.NoError(t, err)
		assert.Equal(t, 0, removed)

		ids, err = repo.ListByAuthor(ctx, "alice")
		require.NoError(t, err)
		assert.Empty(t, ids)

		ids, err = repo.ListAll(ctx)
		require.NoError(t, err)
		assert.Equal(t, []int64{b1.ID}, ids)
	})
}
