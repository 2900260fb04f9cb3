package services

import (
	"bytes"
	"context"
	"errors"
	"image"
	"regexp"

	"github.com/disintegration/imaging"
	"github.com/google/uuid"
	"github.com/jjudge-oj/accounts/internal/apperror"
	"github.com/jjudge-oj/accounts/internal/storage"
	"github.com/jjudge-oj/accounts/internal/store"
	"github.com/jjudge-oj/accounts/types"
)

const (
	AvatarMaxBytes    = 1_000_000
	AvatarSize        = 250
	AvatarContentType = "image/png"

	// Decoded images above this many pixels are rejected before decoding.
	avatarMaxPixels = 40_000_000
)

var avatarFilenamePattern = regexp.MustCompile(`(?i)\.(jpg|jpeg|png)$`)

var (
	ErrAvatarType     = apperror.Validation("Please upload a JPG/JPEG/PNG image.")
	ErrAvatarTooLarge = apperror.Validation("File too large")
	ErrAvatarInvalid  = apperror.Validation("Please upload a valid image.")
	ErrAvatarNotFound = apperror.NotFound("avatar not found", nil)
)

// AvatarStore persists transformed avatars. Load returns store.ErrNotFound
// when there is nothing stored for the user.
type AvatarStore interface {
	Save(ctx context.Context, userID string, data []byte) error
	Load(ctx context.Context, userID string) ([]byte, error)
	Delete(ctx context.Context, userID string) error
}

// AvatarService validates uploads, normalizes them to PNG and stores them.
type AvatarService struct {
	users UserRepository
	store AvatarStore
}

func NewAvatarService(users UserRepository, avatars AvatarStore) *AvatarService {
	return &AvatarService{users: users, store: avatars}
}

// Accept validates an upload and returns the 250x250 PNG to store.
func (s *AvatarService) Accept(raw []byte, filename string) ([]byte, error) {
	if !avatarFilenamePattern.MatchString(filename) {
		return nil, ErrAvatarType
	}
	if len(raw) > AvatarMaxBytes {
		return nil, ErrAvatarTooLarge
	}
	if len(raw) == 0 {
		return nil, ErrAvatarInvalid
	}

	cfg, _, err := image.DecodeConfig(bytes.NewReader(raw))
	if err != nil {
		return nil, ErrAvatarInvalid
	}
	if cfg.Width*cfg.Height > avatarMaxPixels {
		return nil, ErrAvatarInvalid
	}

	img, err := imaging.Decode(bytes.NewReader(raw), imaging.AutoOrientation(true))
	if err != nil {
		return nil, ErrAvatarInvalid
	}

	resized := imaging.Fill(img, AvatarSize, AvatarSize, imaging.Center, imaging.Lanczos)

	var buf bytes.Buffer
	if err := imaging.Encode(&buf, resized, imaging.PNG); err != nil {
		return nil, apperror.Internal("failed to encode avatar", err)
	}
	return buf.Bytes(), nil
}

// Upload transforms raw and stores it as the user's avatar.
func (s *AvatarService) Upload(ctx context.Context, user types.User, raw []byte, filename string) error {
	data, err := s.Accept(raw, filename)
	if err != nil {
		return err
	}
	if err := s.store.Save(ctx, user.ID, data); err != nil {
		return apperror.Internal("failed to store avatar", err)
	}
	return nil
}

// Remove clears the user's avatar. Removing a missing avatar succeeds.
func (s *AvatarService) Remove(ctx context.Context, user types.User) error {
	if err := s.store.Delete(ctx, user.ID); err != nil && !errors.Is(err, store.ErrNotFound) {
		return apperror.Internal("failed to remove avatar", err)
	}
	return nil
}

// Fetch returns the stored PNG and its content type.
func (s *AvatarService) Fetch(ctx context.Context, userID string) ([]byte, string, error) {
	if _, err := uuid.Parse(userID); err != nil {
		return nil, "", ErrAvatarNotFound
	}

	if _, err := s.users.GetByID(ctx, userID); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, "", ErrAvatarNotFound
		}
		return nil, "", apperror.Internal("failed to load user", err)
	}

	data, err := s.store.Load(ctx, userID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, "", ErrAvatarNotFound
		}
		return nil, "", apperror.Internal("failed to load avatar", err)
	}
	return data, AvatarContentType, nil
}

// RecordAvatarStore keeps avatars on the user record itself.
type RecordAvatarStore struct {
	repo UserRepository
}

func NewRecordAvatarStore(repo UserRepository) *RecordAvatarStore {
	return &RecordAvatarStore{repo: repo}
}

func (r *RecordAvatarStore) Save(ctx context.Context, userID string, data []byte) error {
	return r.repo.SetAvatar(ctx, userID, data)
}

func (r *RecordAvatarStore) Load(ctx context.Context, userID string) ([]byte, error) {
	data, err := r.repo.GetAvatar(ctx, userID)
	if err != nil {
		return nil, err
	}
	if len(data) == 0 {
		return nil, store.ErrNotFound
	}
	return data, nil
}

func (r *RecordAvatarStore) Delete(ctx context.Context, userID string) error {
	return r.repo.SetAvatar(ctx, userID, nil)
}

// BucketAvatarStore keeps avatars in object storage under avatars/<user-id>.png.
type BucketAvatarStore struct {
	storage *storage.Storage
}

func NewBucketAvatarStore(s *storage.Storage) *BucketAvatarStore {
	return &BucketAvatarStore{storage: s}
}

func (b *BucketAvatarStore) Save(ctx context.Context, userID string, data []byte) error {
	return b.storage.PutBytes(ctx, avatarKey(userID), data, AvatarContentType)
}

func (b *BucketAvatarStore) Load(ctx context.Context, userID string) ([]byte, error) {
	data, err := b.storage.GetBytes(ctx, avatarKey(userID))
	if err != nil {
		if errors.Is(err, storage.ErrObjectNotFound) {
			return nil, store.ErrNotFound
		}
		return nil, err
	}
	return data, nil
}

func (b *BucketAvatarStore) Delete(ctx context.Context, userID string) error {
	err := b.storage.Delete(ctx, avatarKey(userID))
	if errors.Is(err, storage.ErrObjectNotFound) {
		return store.ErrNotFound
	}
	return err
}

func avatarKey(userID string) string {
	return "avatars/" + userID + ".png"
}
