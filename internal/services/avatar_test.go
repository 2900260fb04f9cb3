package services

import (
	"bytes"
	"context"
	"image"
	"image/png"
	"io"
	"testing"

	"github.com/jjudge-oj/accounts/internal/apperror"
	"github.com/jjudge-oj/accounts/internal/storage"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAccept_Rejects(t *testing.T) {
	env := newTestEnv(t)

	_, err := env.avatars.Accept(testJPEG(t, 10, 10), "avatar.gif")
	assert.ErrorIs(t, err, ErrAvatarType)

	_, err = env.avatars.Accept(testJPEG(t, 10, 10), "avatar")
	assert.ErrorIs(t, err, ErrAvatarType)

	_, err = env.avatars.Accept(make([]byte, 2_000_000), "big.jpg")
	assert.ErrorIs(t, err, ErrAvatarTooLarge)

	_, err = env.avatars.Accept([]byte("definitely not an image"), "fake.png")
	assert.ErrorIs(t, err, ErrAvatarInvalid)

	_, err = env.avatars.Accept(nil, "empty.png")
	assert.ErrorIs(t, err, ErrAvatarInvalid)
}

func TestAccept_ResizesToPNG(t *testing.T) {
	env := newTestEnv(t)

	for name, raw := range map[string][]byte{
		"photo.JPG":  testJPEG(t, 640, 480),
		"photo.jpeg": testJPEG(t, 120, 300),
		"icon.png":   testPNG(t, 64, 64),
	} {
		t.Run(name, func(t *testing.T) {
			out, err := env.avatars.Accept(raw, name)
			require.NoError(t, err)

			cfg, format, err := image.DecodeConfig(bytes.NewReader(out))
			require.NoError(t, err)
			assert.Equal(t, "png", format)
			assert.Equal(t, AvatarSize, cfg.Width)
			assert.Equal(t, AvatarSize, cfg.Height)
		})
	}
}

func TestAvatarLifecycle_RecordStore(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	user, err := env.users.Create(ctx, RegisterInput{Name: "Ada", Email: "ada@x.com", Password: "secret123"})
	require.NoError(t, err)

	_, _, err = env.avatars.Fetch(ctx, user.ID)
	assert.ErrorIs(t, err, ErrAvatarNotFound)

	require.NoError(t, env.avatars.Upload(ctx, user, testJPEG(t, 800, 600), "me.jpg"))

	data, contentType, err := env.avatars.Fetch(ctx, user.ID)
	require.NoError(t, err)
	assert.Equal(t, "image/png", contentType)
	img, err := png.Decode(bytes.NewReader(data))
	require.NoError(t, err)
	assert.Equal(t, image.Rect(0, 0, 250, 250), img.Bounds())

	require.NoError(t, env.avatars.Remove(ctx, user))
	require.NoError(t, env.avatars.Remove(ctx, user))
	_, _, err = env.avatars.Fetch(ctx, user.ID)
	assert.ErrorIs(t, err, ErrAvatarNotFound)
}

func TestFetch_UnknownUser(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	_, _, err := env.avatars.Fetch(ctx, "not-a-uuid")
	assert.True(t, apperror.Is(err, apperror.KindNotFound))

	_, _, err = env.avatars.Fetch(ctx, "3f1b4f7e-7a4c-4f55-9d43-0d7a1b2c3d4e")
	assert.True(t, apperror.Is(err, apperror.KindNotFound))
}

func TestDeletedUserAvatarIsNotFound(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	user, err := env.users.Create(ctx, RegisterInput{Name: "Ada", Email: "ada@x.com", Password: "secret123"})
	require.NoError(t, err)
	require.NoError(t, env.avatars.Upload(ctx, user, testPNG(t, 300, 300), "me.png"))

	require.NoError(t, env.users.Remove(ctx, user))
	require.NoError(t, env.avatars.Remove(ctx, user))

	_, _, err = env.avatars.Fetch(ctx, user.ID)
	assert.ErrorIs(t, err, ErrAvatarNotFound)
}

type bucketBackend struct {
	objects map[string][]byte
}

func (b *bucketBackend) EnsureBucket(ctx context.Context) error { return nil }

func (b *bucketBackend) Put(ctx context.Context, key string, r io.Reader, size int64, contentType string) error {
	data, err := io.ReadAll(r)
	if err != nil {
		return err
	}
	b.objects[key] = data
	return nil
}

func (b *bucketBackend) Get(ctx context.Context, key string) (io.ReadCloser, error) {
	data, ok := b.objects[key]
	if !ok {
		return nil, storage.ErrObjectNotFound
	}
	return io.NopCloser(bytes.NewReader(data)), nil
}

func (b *bucketBackend) Delete(ctx context.Context, key string) error {
	if _, ok := b.objects[key]; !ok {
		return storage.ErrObjectNotFound
	}
	delete(b.objects, key)
	return nil
}

func (b *bucketBackend) Bucket() string { return "avatars" }

func TestAvatarLifecycle_BucketStore(t *testing.T) {
	env := newTestEnv(t)
	backend := &bucketBackend{objects: map[string][]byte{}}
	avatars := NewAvatarService(env.repo, NewBucketAvatarStore(storage.NewStorage(backend)))
	ctx := context.Background()

	user, err := env.users.Create(ctx, RegisterInput{Name: "Ada", Email: "ada@x.com", Password: "secret123"})
	require.NoError(t, err)

	require.NoError(t, avatars.Upload(ctx, user, testPNG(t, 100, 400), "tall.png"))
	assert.Contains(t, backend.objects, "avatars/"+user.ID+".png")

	data, contentType, err := avatars.Fetch(ctx, user.ID)
	require.NoError(t, err)
	assert.Equal(t, AvatarContentType, contentType)
	assert.Equal(t, backend.objects["avatars/"+user.ID+".png"], data)

	require.NoError(t, avatars.Remove(ctx, user))
	require.NoError(t, avatars.Remove(ctx, user))
	_, _, err = avatars.Fetch(ctx, user.ID)
	assert.ErrorIs(t, err, ErrAvatarNotFound)
}
