package image

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/aliskhannn/image-storage/internal/model"
)

var ErrImageNotFound = errors.New("image not found")

// executor is satisfied by *sql.DB, such as the dbpg master.
type executor interface {
	ExecContext(ctx context.Context, query string, args ...interface{}) (sql.Result, error)
	QueryRowContext(ctx context.Context, query string, args ...interface{}) *sql.Row
}

// Repository provides CRUD operations for image metadata records.
type Repository struct {
	db executor
}

// NewRepository creates a new Repository with the given DB connection.
func NewRepository(db executor) *Repository {
	return &Repository{db: db}
}

// Create inserts a record for (container, key) and returns it with its id.
func (r *Repository) Create(ctx context.Context, container, key string) (model.Image, error) {
	query := `
		INSERT INTO images (container, key)
		VALUES ($1, $2)
		RETURNING id, created_at
	`

	img := model.Image{Container: container, Key: key}
	err := r.db.QueryRowContext(ctx, query, container, key).Scan(&img.ID, &img.CreatedAt)
	if err != nil {
		return model.Image{}, fmt.Errorf("create: failed to insert image: %w", err)
	}

	return img, nil
}

// GetByID retrieves a record by its id.
func (r *Repository) GetByID(ctx context.Context, id int64) (model.Image, error) {
	query := `
		SELECT id, container, key, created_at
		FROM images
		WHERE id = $1
	`

	return r.get(ctx, query, id)
}

// GetByKey retrieves the record of key in whichever container holds it.
// Keys are minted as UUIDs, so at most one container has a given key.
func (r *Repository) GetByKey(ctx context.Context, key string) (model.Image, error) {
	query := `
		SELECT id, container, key, created_at
		FROM images
		WHERE key = $1
		ORDER BY id
		LIMIT 1
	`

	return r.get(ctx, query, key)
}

func (r *Repository) get(ctx context.Context, query string, args ...interface{}) (model.Image, error) {
	var img model.Image
	err := r.db.QueryRowContext(ctx, query, args...).Scan(&img.ID, &img.Container, &img.Key, &img.CreatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return model.Image{}, ErrImageNotFound
		}

		return model.Image{}, fmt.Errorf("get: failed to get image: %w", err)
	}

	return img, nil
}

// Delete removes a record by id. It returns ErrImageNotFound when no row
// was deleted.
func (r *Repository) Delete(ctx context.Context, id int64) error {
	query := `
		DELETE FROM images WHERE id = $1
	`

	res, err := r.db.ExecContext(ctx, query, id)
	if err != nil {
		return fmt.Errorf("delete: failed to delete image: %w", err)
	}

	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("delete: failed to get number of rows affected: %w", err)
	}

	if n == 0 {
		return ErrImageNotFound
	}

	return nil
}
