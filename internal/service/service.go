// Package service holds the user directory and image catalog logic that sits
// between the HTTP handlers and the database and media store.
package service

import (
	"context"
	"time"

	"picshare/internal/database"
	"picshare/internal/models"
)

type UserStore interface {
	CreateUser(ctx context.Context, arg database.CreateUserParams) (*models.User, error)
	GetUserByID(ctx context.Context, id int64) (*models.User, error)
	GetUserByUsername(ctx context.Context, username string) (*models.User, error)
	GetUserByLogin(ctx context.Context, username, email string) (*models.User, error)
	UserExists(ctx context.Context, username, email string) (bool, error)
	SetRefreshToken(ctx context.Context, userID int64, refreshToken *string) error
	RotateRefreshToken(ctx context.Context, userID int64, current, next string) (bool, error)
	ListImagesByOwner(ctx context.Context, ownerID int64) ([]models.Image, error)
}

type ImageStore interface {
	CreateImageWithOwner(ctx context.Context, arg database.CreateImageParams) (*models.Image, error)
	ImageExists(ctx context.Context, id string) (bool, error)
	GetImageByID(ctx context.Context, id string) (*models.Image, error)
	ListRecentImages(ctx context.Context, limit int, offset int) ([]models.Image, error)
	CountImages(ctx context.Context) (int64, error)
	MarkImagePendingDelete(ctx context.Context, id string, ownerID int64) (*models.Image, error)
	ClearImagePendingDelete(ctx context.Context, id string) error
	DeleteImage(ctx context.Context, id string) (bool, error)
	ListStalePendingDeletes(ctx context.Context, before time.Time, limit int) ([]models.Image, error)
}

// Publisher receives feed events; the websocket hub implements it.
type Publisher interface {
	Publish(eventType string, data interface{})
}

type nopPublisher struct{}

func (nopPublisher) Publish(string, interface{}) {}
