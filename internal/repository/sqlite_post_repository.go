package repository

import (
	"context"
	"ctchen222/blog-web-api/internal/api/models"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"
)

type sqlitePostRepository struct {
	db  *sqlx.DB
	now func() time.Time
}

// NewSQLitePostRepository creates a new SQLite-based PostRepository.
func NewSQLitePostRepository(db *sqlx.DB) PostRepository {
	return &sqlitePostRepository{db: db, now: time.Now}
}

// Create inserts the post; AUTOINCREMENT guarantees ids are never reused.
func (r *sqlitePostRepository) Create(ctx context.Context, post *models.Post) error {
	ctx, span := tracer.Start(ctx, "SQLitePostRepository.Create")
	defer span.End()

	post.LastUpdated = r.now().Unix()
	query := `INSERT INTO posts (author, title, body, last_updated) VALUES (?, ?, ?, ?)`
	res, err := r.db.ExecContext(ctx, query, post.Author, post.Title, post.Body, post.LastUpdated)
	if err != nil {
		return fmt.Errorf("failed to create post: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return fmt.Errorf("failed to read post id: %w", err)
	}
	post.ID = id
	return nil
}

// Get retrieves a post by id.
func (r *sqlitePostRepository) Get(ctx context.Context, id int64) (*models.Post, error) {
	ctx, span := tracer.Start(ctx, "SQLitePostRepository.Get")
	defer span.End()

	return getPost(ctx, r.db, id)
}

func getPost(ctx context.Context, q sqlx.QueryerContext, id int64) (*models.Post, error) {
	var post models.Post
	query := `SELECT id, author, title, body, last_updated FROM posts WHERE id = ?`
	err := sqlx.GetContext(ctx, q, &post, query, id)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, models.ErrPostNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get post: %w", err)
	}
	return &post, nil
}

// Update checks ownership and rewrites the post in one transaction.
func (r *sqlitePostRepository) Update(ctx context.Context, id int64, requester, title, body string) (*models.Post, error) {
	ctx, span := tracer.Start(ctx, "SQLitePostRepository.Update")
	defer span.End()

	var post *models.Post
	err := r.inTx(ctx, func(tx *sqlx.Tx) error {
		var err error
		post, err = getPost(ctx, tx, id)
		if err != nil {
			return err
		}
		if post.Author != requester {
			return models.ErrNotOwner
		}

		post.Title = title
		post.Body = body
		post.LastUpdated = r.now().Unix()
		_, err = tx.ExecContext(ctx, `UPDATE posts SET title = ?, body = ?, last_updated = ? WHERE id = ?`,
			post.Title, post.Body, post.LastUpdated, id)
		return err
	})
	if err != nil {
		return nil, err
	}
	return post, nil
}

// Delete checks ownership and removes the post in one transaction.
func (r *sqlitePostRepository) Delete(ctx context.Context, id int64, requester string) error {
	ctx, span := tracer.Start(ctx, "SQLitePostRepository.Delete")
	defer span.End()

	return r.inTx(ctx, func(tx *sqlx.Tx) error {
		post, err := getPost(ctx, tx, id)
		if err != nil {
			return err
		}
		if post.Author != requester {
			return models.ErrNotOwner
		}
		_, err = tx.ExecContext(ctx, `DELETE FROM posts WHERE id = ?`, id)
		return err
	})
}

// ListByAuthor returns the ids of the author's posts.
func (r *sqlitePostRepository) ListByAuthor(ctx context.Context, author string) ([]int64, error) {
	ctx, span := tracer.Start(ctx, "SQLitePostRepository.ListByAuthor")
	defer span.End()

	ids := []int64{}
	if err := r.db.SelectContext(ctx, &ids, `SELECT id FROM posts WHERE author = ? ORDER BY id`, author); err != nil {
		return nil, fmt.Errorf("failed to list author posts: %w", err)
	}
	return ids, nil
}

// DeleteByAuthor collects the author's post ids and deletes exactly those.
func (r *sqlitePostRepository) DeleteByAuthor(ctx context.Context, author string) (int, error) {
	ctx, span := tracer.Start(ctx, "SQLitePostRepository.DeleteByAuthor")
	defer span.End()

	var removed int
	err := r.inTx(ctx, func(tx *sqlx.Tx) error {
		ids := []int64{}
		if err := tx.SelectContext(ctx, &ids, `SELECT id FROM posts WHERE author = ?`, author); err != nil {
			return err
		}
		if len(ids) == 0 {
			return nil
		}

		query, args, err := sqlx.In(`DELETE FROM posts WHERE id IN (?)`, ids)
		if err != nil {
			return err
		}
		if _, err := tx.ExecContext(ctx, tx.Rebind(query), args...); err != nil {
			return err
		}
		removed = len(ids)
		return nil
	})
	if err != nil {
		return 0, err
	}
	return removed, nil
}

// Random picks a post uniformly at random.
func (r *sqlitePostRepository) Random(ctx context.Context) (*models.Post, error) {
	ctx, span := tracer.Start(ctx, "SQLitePostRepository.Random")
	defer span.End()

	var post models.Post
	query := `SELECT id, author, title, body, last_updated FROM posts ORDER BY RANDOM() LIMIT 1`
	err := r.db.GetContext(ctx, &post, query)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, models.ErrNoPosts
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get random post: %w", err)
	}
	return &post, nil
}

// ListAll returns every post id.
func (r *sqlitePostRepository) ListAll(ctx context.Context) ([]int64, error) {
	ctx, span := tracer.Start(ctx, "SQLitePostRepository.ListAll")
	defer span.End()

	ids := []int64{}
	if err := r.db.SelectContext(ctx, &ids, `SELECT id FROM posts ORDER BY id`); err != nil {
		return nil, fmt.Errorf("failed to list posts: %w", err)
	}
	return ids, nil
}

func (r *sqlitePostRepository) inTx(ctx context.Context, fn func(tx *sqlx.Tx) error) error {
	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}

	if err := fn(tx); err != nil {
		tx.Rollback()
		if errors.Is(err, models.ErrPostNotFound) || errors.Is(err, models.ErrNotOwner) {
			return err
		}
		return fmt.Errorf("failed to write posts: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	return nil
}
