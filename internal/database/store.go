package database

import (
	"context"
	"errors"
	"fmt"

	"picshare/internal/models"

	"github.com/jackc/pgx/v5/pgxpool"
)

type Store struct {
	pool *pgxpool.Pool
	*Queries
}

func NewStore(pool *pgxpool.Pool) *Store {
	return &Store{
		pool:    pool,
		Queries: New(pool),
	}
}

func (s *Store) ExecTx(ctx context.Context, fn func(*Queries) error) error {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx)

	q := New(tx)
	err = fn(q)
	if err != nil {
		if rbErr := tx.Rollback(ctx); rbErr != nil {
			return fmt.Errorf("tx err: %v, rb err: %v", err, rbErr)
		}
		return err
	}

	return tx.Commit(ctx)
}

// CreateImageWithOwner inserts an image and reads it back joined with its
// owner in one transaction. A failed read-back rolls the insert back.
func (s *Store) CreateImageWithOwner(ctx context.Context, arg CreateImageParams) (*models.Image, error) {
	var image *models.Image
	err := s.ExecTx(ctx, func(q *Queries) error {
		created, err := q.CreateImage(ctx, arg)
		if err != nil {
			return err
		}

		image, err = q.GetImageByID(ctx, created.ID)
		if err != nil {
			return err
		}
		if image == nil {
			return errors.New("created image is not visible")
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return image, nil
}

func (s *Store) Ping(ctx context.Context) error {
	return s.pool.Ping(ctx)
}
