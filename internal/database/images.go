package database

import (
	"context"
	"errors"
	"time"

	"picshare/internal/models"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

var ErrOwnerNotFound = errors.New("image owner does not exist")

const imageWithOwnerColumns = `
	i.id, i.description, i.url, i.owner_id, i.created_at, i.updated_at,
	u.id, u.username, u.full_name, u.avatar
`

func scanImageWithOwner(row pgx.Row) (*models.Image, error) {
	var image models.Image
	var owner models.Owner
	err := row.Scan(
		&image.ID,
		&image.Description,
		&image.URL,
		&image.OwnerID,
		&image.CreatedAt,
		&image.UpdatedAt,
		&owner.ID,
		&owner.Username,
		&owner.FullName,
		&owner.Avatar,
	)
	if err != nil {
		return nil, err
	}
	image.Owner = &owner
	return &image, nil
}

func collectImages(rows pgx.Rows) ([]models.Image, error) {
	defer rows.Close()

	var images []models.Image
	for rows.Next() {
		image, err := scanImageWithOwner(rows)
		if err != nil {
			return nil, err
		}
		images = append(images, *image)
	}

	if err := rows.Err(); err != nil {
		return nil, err
	}

	if images == nil {
		return []models.Image{}, nil
	}

	return images, nil
}

type CreateImageParams struct {
	ID          string
	OwnerID     int64
	Description string
	URL         string
}

func (q *Queries) CreateImage(ctx context.Context, arg CreateImageParams) (*models.Image, error) {
	query := `
		INSERT INTO images (id, owner_id, description, url, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6)
		RETURNING id, owner_id, description, url, created_at, updated_at
	`
	now := time.Now()

	var image models.Image
	err := q.db.QueryRow(ctx, query,
		arg.ID,
		arg.OwnerID,
		arg.Description,
		arg.URL,
		now,
		now,
	).Scan(
		&image.ID,
		&image.OwnerID,
		&image.Description,
		&image.URL,
		&image.CreatedAt,
		&image.UpdatedAt,
	)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == pgForeignKeyViolation {
			return nil, ErrOwnerNotFound
		}
		return nil, err
	}

	return &image, nil
}

func (q *Queries) ImageExists(ctx context.Context, id string) (bool, error) {
	var exists bool
	query := "SELECT EXISTS(SELECT 1 FROM images WHERE id = $1)"
	err := q.db.QueryRow(ctx, query, id).Scan(&exists)
	if err != nil {
		return false, err
	}
	return exists, nil
}

// GetImageByID returns the image with its owner projection, or nil when the
// image does not exist or is being deleted.
func (q *Queries) GetImageByID(ctx context.Context, id string) (*models.Image, error) {
	query := `
		SELECT ` + imageWithOwnerColumns + `
		FROM images i
		JOIN users u ON u.id = i.owner_id
		WHERE i.id = $1 AND i.pending_delete_at IS NULL
	`
	image, err := scanImageWithOwner(q.db.QueryRow(ctx, query, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	return image, nil
}

func (q *Queries) ListRecentImages(ctx context.Context, limit int, offset int) ([]models.Image, error) {
	query := `
		SELECT ` + imageWithOwnerColumns + `
		FROM images i
		JOIN users u ON u.id = i.owner_id
		WHERE i.pending_delete_at IS NULL
		ORDER BY i.created_at DESC, i.id DESC
		LIMIT $1 OFFSET $2
	`
	rows, err := q.db.Query(ctx, query, limit, offset)
	if err != nil {
		return nil, err
	}
	return collectImages(rows)
}

func (q *Queries) CountImages(ctx context.Context) (int64, error) {
	var total int64
	query := `SELECT COUNT(*) FROM images WHERE pending_delete_at IS NULL`
	err := q.db.QueryRow(ctx, query).Scan(&total)
	return total, err
}

func (q *Queries) ListImagesByOwner(ctx context.Context, ownerID int64) ([]models.Image, error) {
	query := `
		SELECT ` + imageWithOwnerColumns + `
		FROM images i
		JOIN users u ON u.id = i.owner_id
		WHERE i.owner_id = $1 AND i.pending_delete_at IS NULL
		ORDER BY i.created_at DESC, i.id DESC
	`
	rows, err := q.db.Query(ctx, query, ownerID)
	if err != nil {
		return nil, err
	}
	return collectImages(rows)
}

// MarkImagePendingDelete starts the delete saga. It only matches a visible
// image owned by ownerID, so a concurrent second delete gets nil.
func (q *Queries) MarkImagePendingDelete(ctx context.Context, id string, ownerID int64) (*models.Image, error) {
	query := `
		UPDATE images
		SET pending_delete_at = $3
		WHERE id = $1 AND owner_id = $2 AND pending_delete_at IS NULL
		RETURNING id, owner_id, description, url, created_at, updated_at, pending_delete_at
	`
	var image models.Image
	err := q.db.QueryRow(ctx, query, id, ownerID, time.Now()).Scan(
		&image.ID,
		&image.OwnerID,
		&image.Description,
		&image.URL,
		&image.CreatedAt,
		&image.UpdatedAt,
		&image.PendingDeleteAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	return &image, nil
}

func (q *Queries) ClearImagePendingDelete(ctx context.Context, id string) error {
	query := `UPDATE images SET pending_delete_at = NULL WHERE id = $1`
	_, err := q.db.Exec(ctx, query, id)
	return err
}

func (q *Queries) DeleteImage(ctx context.Context, id string) (bool, error) {
	query := `DELETE FROM images WHERE id = $1`
	res, err := q.db.Exec(ctx, query, id)
	if err != nil {
		return false, err
	}
	return res.RowsAffected() > 0, nil
}

// ListStalePendingDeletes returns images whose delete saga started before
// the given time and never finished.
func (q *Queries) ListStalePendingDeletes(ctx context.Context, before time.Time, limit int) ([]models.Image, error) {
	query := `
		SELECT id, owner_id, description, url, created_at, updated_at, pending_delete_at
		FROM images
		WHERE pending_delete_at IS NOT NULL AND pending_delete_at < $1
		ORDER BY pending_delete_at
		LIMIT $2
	`
	rows, err := q.db.Query(ctx, query, before, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var images []models.Image
	for rows.Next() {
		var image models.Image
		if err := rows.Scan(
			&image.ID,
			&image.OwnerID,
			&image.Description,
			&image.URL,
			&image.CreatedAt,
			&image.UpdatedAt,
			&image.PendingDeleteAt,
		); err != nil {
			return nil, err
		}
		images = append(images, image)
	}

	if err = rows.Err(); err != nil {
		return nil, err
	}

	if images == nil {
		return []models.Image{}, nil
	}

	return images, nil
}
