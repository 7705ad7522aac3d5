package service

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"picshare/internal/database"
	"picshare/internal/models"
	"picshare/internal/storage"
)

// fakeStore is an in-memory UserStore and ImageStore.
type fakeStore struct {
	mu       sync.Mutex
	users    map[int64]*models.User
	images   map[string]*models.Image
	nextID   int64
	clock    time.Time
	failNext map[string]error
}

func newFakeStore() *fakeStore {
	return &fakeStore{
		users:    make(map[int64]*models.User),
		images:   make(map[string]*models.Image),
		clock:    time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC),
		failNext: make(map[string]error),
	}
}

func (f *fakeStore) tick() time.Time {
	f.clock = f.clock.Add(time.Second)
	return f.clock
}

func (f *fakeStore) fail(op string) error {
	if err, ok := f.failNext[op]; ok {
		delete(f.failNext, op)
		return err
	}
	return nil
}

func (f *fakeStore) CreateUser(ctx context.Context, arg database.CreateUserParams) (*models.User, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.fail("CreateUser"); err != nil {
		return nil, err
	}
	for _, u := range f.users {
		if u.Username == arg.Username || u.Email == arg.Email {
			return nil, database.ErrDuplicateUser
		}
	}
	f.nextID++
	now := f.tick()
	u := &models.User{
		ID:           f.nextID,
		Username:     arg.Username,
		Email:        arg.Email,
		FullName:     arg.FullName,
		Avatar:       arg.Avatar,
		PasswordHash: arg.PasswordHash,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	f.users[u.ID] = u
	out := *u
	return &out, nil
}

func (f *fakeStore) copyUser(u *models.User) *models.User {
	if u == nil {
		return nil
	}
	out := *u
	if u.RefreshToken != nil {
		token := *u.RefreshToken
		out.RefreshToken = &token
	}
	return &out
}

func (f *fakeStore) GetUserByID(ctx context.Context, id int64) (*models.User, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.copyUser(f.users[id]), nil
}

func (f *fakeStore) GetUserByUsername(ctx context.Context, username string) (*models.User, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, u := range f.users {
		if u.Username == username {
			return f.copyUser(u), nil
		}
	}
	return nil, nil
}

func (f *fakeStore) GetUserByLogin(ctx context.Context, username, email string) (*models.User, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, u := range f.users {
		if (username != "" && u.Username == username) || (email != "" && u.Email == email) {
			return f.copyUser(u), nil
		}
	}
	return nil, nil
}

func (f *fakeStore) UserExists(ctx context.Context, username, email string) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, u := range f.users {
		if u.Username == username || u.Email == email {
			return true, nil
		}
	}
	return false, nil
}

func (f *fakeStore) SetRefreshToken(ctx context.Context, userID int64, refreshToken *string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	u, ok := f.users[userID]
	if !ok {
		return fmt.Errorf("user %d not found", userID)
	}
	u.RefreshToken = refreshToken
	return nil
}

func (f *fakeStore) RotateRefreshToken(ctx context.Context, userID int64, current, next string) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	u, ok := f.users[userID]
	if !ok || u.RefreshToken == nil || *u.RefreshToken != current {
		return false, nil
	}
	u.RefreshToken = &next
	return true, nil
}

func (f *fakeStore) withOwner(img *models.Image) models.Image {
	out := *img
	if owner, ok := f.users[img.OwnerID]; ok {
		out.Owner = &models.Owner{ID: owner.ID, Username: owner.Username, FullName: owner.FullName, Avatar: owner.Avatar}
	}
	return out
}

func (f *fakeStore) visibleNewestFirst(match func(*models.Image) bool) []models.Image {
	images := []models.Image{}
	for _, img := range f.images {
		if img.PendingDeleteAt == nil && match(img) {
			images = append(images, f.withOwner(img))
		}
	}
	sort.Slice(images, func(i, j int) bool {
		if images[i].CreatedAt.Equal(images[j].CreatedAt) {
			return images[i].ID > images[j].ID
		}
		return images[i].CreatedAt.After(images[j].CreatedAt)
	})
	return images
}

func (f *fakeStore) ListImagesByOwner(ctx context.Context, ownerID int64) ([]models.Image, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.visibleNewestFirst(func(img *models.Image) bool { return img.OwnerID == ownerID }), nil
}

func (f *fakeStore) CreateImageWithOwner(ctx context.Context, arg database.CreateImageParams) (*models.Image, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.fail("CreateImageWithOwner"); err != nil {
		return nil, err
	}
	if _, ok := f.users[arg.OwnerID]; !ok {
		return nil, database.ErrOwnerNotFound
	}
	now := f.tick()
	img := &models.Image{
		ID:          arg.ID,
		Description: arg.Description,
		URL:         arg.URL,
		OwnerID:     arg.OwnerID,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	f.images[img.ID] = img
	out := f.withOwner(img)
	return &out, nil
}

func (f *fakeStore) ImageExists(ctx context.Context, id string) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	_, ok := f.images[id]
	return ok, nil
}

func (f *fakeStore) GetImageByID(ctx context.Context, id string) (*models.Image, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	img, ok := f.images[id]
	if !ok || img.PendingDeleteAt != nil {
		return nil, nil
	}
	out := f.withOwner(img)
	return &out, nil
}

func (f *fakeStore) ListRecentImages(ctx context.Context, limit int, offset int) ([]models.Image, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	all := f.visibleNewestFirst(func(*models.Image) bool { return true })
	if offset >= len(all) {
		return []models.Image{}, nil
	}
	end := offset + limit
	if end > len(all) {
		end = len(all)
	}
	return all[offset:end], nil
}

func (f *fakeStore) CountImages(ctx context.Context) (int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return int64(len(f.visibleNewestFirst(func(*models.Image) bool { return true }))), nil
}

func (f *fakeStore) MarkImagePendingDelete(ctx context.Context, id string, ownerID int64) (*models.Image, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	img, ok := f.images[id]
	if !ok || img.OwnerID != ownerID || img.PendingDeleteAt != nil {
		return nil, nil
	}
	now := f.tick()
	img.PendingDeleteAt = &now
	out := *img
	return &out, nil
}

func (f *fakeStore) ClearImagePendingDelete(ctx context.Context, id string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if img, ok := f.images[id]; ok {
		img.PendingDeleteAt = nil
	}
	return nil
}

func (f *fakeStore) DeleteImage(ctx context.Context, id string) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.fail("DeleteImage"); err != nil {
		return false, err
	}
	_, ok := f.images[id]
	delete(f.images, id)
	return ok, nil
}

func (f *fakeStore) ListStalePendingDeletes(ctx context.Context, before time.Time, limit int) ([]models.Image, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	stale := []models.Image{}
	for _, img := range f.images {
		if img.PendingDeleteAt != nil && img.PendingDeleteAt.Before(before) {
			stale = append(stale, *img)
		}
	}
	if len(stale) > limit {
		stale = stale[:limit]
	}
	return stale, nil
}

// fakeMedia records stored objects by URL.
type fakeMedia struct {
	mu          sync.Mutex
	objects     map[string]bool
	counter     int
	uploadErr   error
	deleteErr   error
	deleteCalls int
}

func newFakeMedia() *fakeMedia {
	return &fakeMedia{objects: make(map[string]bool)}
}

func (m *fakeMedia) Upload(ctx context.Context, file *storage.Upload) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.uploadErr != nil {
		return "", m.uploadErr
	}
	m.counter++
	url := fmt.Sprintf("https://media.test/images/%d-%s", m.counter, file.Filename)
	m.objects[url] = true
	return url, nil
}

func (m *fakeMedia) Delete(ctx context.Context, url string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.deleteCalls++
	if m.deleteErr != nil {
		return m.deleteErr
	}
	if !strings.HasPrefix(url, "https://media.test/") {
		return storage.ErrForeignURL
	}
	if !m.objects[url] {
		return storage.ErrObjectNotFound
	}
	delete(m.objects, url)
	return nil
}

func (m *fakeMedia) has(url string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.objects[url]
}

func (m *fakeMedia) count() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.objects)
}

type recordedEvent struct {
	Type string
	Data interface{}
}

type fakePublisher struct {
	mu     sync.Mutex
	events []recordedEvent
}

func (p *fakePublisher) Publish(eventType string, data interface{}) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, recordedEvent{Type: eventType, Data: data})
}

func (p *fakePublisher) types() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]string, 0, len(p.events))
	for _, e := range p.events {
		out = append(out, e.Type)
	}
	return out
}

var errMediaDown = errors.New("media store unavailable")

func testUpload(name string) *storage.Upload {
	return &storage.Upload{Path: "/nonexistent/" + name, Filename: name, ContentType: "image/png", Size: 16}
}
