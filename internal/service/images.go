package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"picshare/internal/apperror"
	"picshare/internal/database"
	"picshare/internal/models"
	"picshare/internal/storage"
	"picshare/internal/websocket"

	"github.com/jaevor/go-nanoid"
	"go.uber.org/zap"
)

const (
	imageIDLength       = 21
	DefaultPageSize     = 10
	MaxPageSize         = 50
	mediaCleanupTimeout = 30 * time.Second
)

const msgImageNotFound = "Image does not exist or Unauthorized request"

// ValidImageID reports whether id has the shape of a generated image id.
func ValidImageID(id string) bool {
	if len(id) != imageIDLength {
		return false
	}
	for _, c := range id {
		switch {
		case c >= 'a' && c <= 'z', c >= 'A' && c <= 'Z', c >= '0' && c <= '9', c == '_', c == '-':
		default:
			return false
		}
	}
	return true
}

type ImageService struct {
	store     ImageStore
	media     storage.MediaStore
	publisher Publisher
	logger    *zap.Logger
}

func NewImageService(store ImageStore, media storage.MediaStore, publisher Publisher, logger *zap.Logger) *ImageService {
	if publisher == nil {
		publisher = nopPublisher{}
	}
	return &ImageService{
		store:     store,
		media:     media,
		publisher: publisher,
		logger:    logger,
	}
}

func (s *ImageService) generateUniqueID(ctx context.Context) (string, error) {
	maxRetries := 10

	generateID, err := nanoid.Standard(imageIDLength)
	if err != nil {
		return "", fmt.Errorf("failed to initialize nanoid generator: %w", err)
	}

	for i := 0; i < maxRetries; i++ {
		id := generateID()
		exists, err := s.store.ImageExists(ctx, id)
		if err != nil {
			return "", fmt.Errorf("failed to check for image existence: %w", err)
		}
		if !exists {
			return id, nil
		}
	}

	return "", fmt.Errorf("failed to generate a unique ID after %d attempts", maxRetries)
}

func (s *ImageService) Upload(ctx context.Context, ownerID int64, description string, file *storage.Upload) (*models.Image, error) {
	if file == nil {
		return nil, apperror.Validation("Image is required")
	}

	imageID, err := s.generateUniqueID(ctx)
	if err != nil {
		return nil, apperror.Upstream("Some problem occurred while saving the image", err)
	}

	imageURL, err := s.media.Upload(ctx, file)
	if err != nil {
		mediaFailures.WithLabelValues("upload").Inc()
		return nil, apperror.Upstream("Some error occurred while uploading the image", err)
	}

	image, err := s.store.CreateImageWithOwner(ctx, database.CreateImageParams{
		ID:          imageID,
		OwnerID:     ownerID,
		Description: description,
		URL:         imageURL,
	})
	if err != nil {
		s.discardMedia(imageURL)
		if errors.Is(err, database.ErrOwnerNotFound) {
			return nil, apperror.Unauthorized("User does not exist", err)
		}
		return nil, apperror.Upstream("Some problem occurred while saving the image", err)
	}

	imagesUploaded.Inc()
	s.publisher.Publish(websocket.EventImageUploaded, image)

	return image, nil
}

func (s *ImageService) discardMedia(objectURL string) {
	ctx, cancel := context.WithTimeout(context.Background(), mediaCleanupTimeout)
	defer cancel()
	if err := s.media.Delete(ctx, objectURL); err != nil && !errors.Is(err, storage.ErrObjectNotFound) {
		mediaFailures.WithLabelValues("delete").Inc()
		s.logger.Warn("failed to discard orphaned media", zap.String("url", objectURL), zap.Error(err))
	}
}

// Delete removes an image owned by requesterID. Missing and foreign images
// produce the same NotFound error.
//
// The image is first marked pending (hiding it from reads), then the stored
// object is deleted, then the row. If the object delete fails the mark is
// cleared; if the row delete fails the Reconciler finishes the job.
func (s *ImageService) Delete(ctx context.Context, imageID string, requesterID int64) error {
	if !ValidImageID(imageID) {
		return apperror.NotFound(msgImageNotFound)
	}

	image, err := s.store.MarkImagePendingDelete(ctx, imageID, requesterID)
	if err != nil {
		return apperror.Upstream("Some problem occurred while deleting the image", err)
	}
	if image == nil {
		return apperror.NotFound(msgImageNotFound)
	}

	if err := s.media.Delete(ctx, image.URL); err != nil && !errors.Is(err, storage.ErrObjectNotFound) {
		mediaFailures.WithLabelValues("delete").Inc()
		if clearErr := s.store.ClearImagePendingDelete(context.WithoutCancel(ctx), image.ID); clearErr != nil {
			s.logger.Error("failed to clear pending delete marker",
				zap.String("image_id", image.ID), zap.Error(clearErr))
		}
		return apperror.Upstream("Some problem occurred while deleting the image", err)
	}

	if _, err := s.store.DeleteImage(ctx, image.ID); err != nil {
		s.logger.Error("image object deleted but row remains; reconciler will retry",
			zap.String("image_id", image.ID), zap.Error(err))
		return apperror.Upstream("Some error occurred while removing the image", err)
	}

	imagesDeleted.WithLabelValues("request").Inc()
	s.publisher.Publish(websocket.EventImageDeleted, map[string]string{"id": image.ID})

	return nil
}

func (s *ImageService) GetByID(ctx context.Context, imageID string) (*models.Image, error) {
	if !ValidImageID(imageID) {
		return nil, apperror.NotFound("Image does not exist")
	}

	image, err := s.store.GetImageByID(ctx, imageID)
	if err != nil {
		return nil, apperror.Upstream("Failed to fetch the image", err)
	}
	if image == nil {
		return nil, apperror.NotFound("Image does not exist")
	}

	return image, nil
}

// ListRecent returns one page of the feed, newest first. Out-of-range
// arguments fall back to page 1 and DefaultPageSize; limit is capped at
// MaxPageSize.
func (s *ImageService) ListRecent(ctx context.Context, page, limit int) (*models.RecentImages, error) {
	if page < 1 {
		page = 1
	}
	if limit < 1 {
		limit = DefaultPageSize
	}
	if limit > MaxPageSize {
		limit = MaxPageSize
	}

	total, err := s.store.CountImages(ctx)
	if err != nil {
		return nil, apperror.Upstream("Failed to count images", err)
	}

	images := []models.Image{}
	offset := int64(page-1) * int64(limit)
	if offset < total {
		images, err = s.store.ListRecentImages(ctx, limit, int(offset))
		if err != nil {
			return nil, apperror.Upstream("Failed to fetch recent images", err)
		}
	}

	return &models.RecentImages{
		Images:     images,
		Pagination: models.NewPagination(page, limit, total),
	}, nil
}
