package users

import (
	"context"
	"errors"
	"io"
	"strings"
	"sync"
	"testing"

	"packtrack/internal/storage"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type memRepo struct {
	mu    sync.Mutex
	users map[string]*User
}

func newMemRepo(users ...*User) *memRepo {
	r := &memRepo{users: make(map[string]*User)}
	for _, u := range users {
		r.users[u.ID] = u
	}
	return r
}

func (r *memRepo) Create(_ context.Context, u *User) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, existing := range r.users {
		if strings.EqualFold(existing.Email, u.Email) {
			return ErrEmailExists
		}
	}
	cp := *u
	r.users[u.ID] = &cp
	return nil
}

func (r *memRepo) GetByID(_ context.Context, id string) (*User, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	u, ok := r.users[id]
	if !ok {
		return nil, ErrNotFound
	}
	cp := *u
	return &cp, nil
}

func (r *memRepo) GetByEmail(_ context.Context, email string) (*User, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, u := range r.users {
		if strings.EqualFold(u.Email, email) {
			cp := *u
			return &cp, nil
		}
	}
	return nil, ErrNotFound
}

func (r *memRepo) Update(_ context.Context, id string, req UpdateProfileRequest) (*User, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	u, ok := r.users[id]
	if !ok {
		return nil, ErrNotFound
	}
	if req.Username != nil {
		for _, other := range r.users {
			if other.ID != id && other.Username != nil && strings.EqualFold(*other.Username, *req.Username) {
				return nil, ErrUsernameTaken
			}
		}
		name := *req.Username
		u.Username = &name
	}
	if req.Fullname != nil {
		u.Fullname = *req.Fullname
	}
	if req.Bio != nil {
		u.Bio = *req.Bio
	}
	if req.MFAEnabled != nil {
		u.MFAEnabled = *req.MFAEnabled
	}
	cp := *u
	return &cp, nil
}

func (r *memRepo) SetProfilePicURL(_ context.Context, id, url string) (*User, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	u, ok := r.users[id]
	if !ok {
		return nil, ErrNotFound
	}
	u.ProfilePicURL = url
	cp := *u
	return &cp, nil
}

type fakeStorage struct {
	mu        sync.Mutex
	uploaded  map[string][]byte
	deleted   chan string
	uploadErr error
}

func newFakeStorage() *fakeStorage {
	return &fakeStorage{uploaded: make(map[string][]byte), deleted: make(chan string, 4)}
}

const fakeBase = "http://cdn.test/packtrack/"

func (f *fakeStorage) Upload(_ context.Context, key, _ string, body io.Reader, _ int64) (string, error) {
	if f.uploadErr != nil {
		return "", f.uploadErr
	}
	data, _ := io.ReadAll(body)
	f.mu.Lock()
	f.uploaded[key] = data
	f.mu.Unlock()
	return fakeBase + key, nil
}

func (f *fakeStorage) Delete(_ context.Context, key string) error {
	f.deleted <- key
	return nil
}

func (f *fakeStorage) KeyFromURL(u string) (string, bool) {
	key, ok := strings.CutPrefix(u, fakeBase)
	return key, ok && key != ""
}

func (f *fakeStorage) EnsureBucketExists(context.Context) error { return nil }
func (f *fakeStorage) Health(context.Context) error             { return nil }

var testImage = &storage.Image{Data: []byte("\x89PNG\r\n\x1a\n"), ContentType: "image/png"}

func TestUpdateProfile_OwnerOnly(t *testing.T) {
	repo := newMemRepo(&User{ID: "u1", Email: "a@x.com"}, &User{ID: "u2", Email: "b@x.com"})
	svc := NewService(repo, nil)

	bio := "hello"
	_, err := svc.UpdateProfile(context.Background(), "u2", "u1", UpdateProfileRequest{Bio: &bio})
	assert.True(t, errors.Is(err, ErrUnauthorized))

	u, err := svc.UpdateProfile(context.Background(), "u1", "u1", UpdateProfileRequest{Bio: &bio})
	require.NoError(t, err)
	assert.Equal(t, "hello", u.Bio)
}

func TestGetProfile_NotFound(t *testing.T) {
	svc := NewService(newMemRepo(), nil)

	_, err := svc.GetProfile(context.Background(), "ghost")
	assert.True(t, errors.Is(err, ErrNotFound))
}

func TestUploadProfilePicture_ReplacesOldObject(t *testing.T) {
	repo := newMemRepo(&User{ID: "u1", Email: "a@x.com", ProfilePicURL: fakeBase + "users/u1/old.png"})
	images := newFakeStorage()
	svc := NewService(repo, images)

	u, err := svc.UploadProfilePicture(context.Background(), "u1", "u1", testImage)
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(u.ProfilePicURL, fakeBase+"users/u1/"))
	assert.True(t, strings.HasSuffix(u.ProfilePicURL, ".png"))

	assert.Equal(t, "users/u1/old.png", <-images.deleted)
}

func TestUploadProfilePicture_NoStorage(t *testing.T) {
	svc := NewService(newMemRepo(&User{ID: "u1"}), nil)

	_, err := svc.UploadProfilePicture(context.Background(), "u1", "u1", testImage)
	assert.True(t, errors.Is(err, storage.ErrUnavailable))
}

func TestUploadProfilePicture_OtherUser(t *testing.T) {
	images := newFakeStorage()
	svc := NewService(newMemRepo(&User{ID: "u1"}), images)

	_, err := svc.UploadProfilePicture(context.Background(), "u2", "u1", testImage)
	assert.True(t, errors.Is(err, ErrUnauthorized))
	assert.Empty(t, images.uploaded)
}
