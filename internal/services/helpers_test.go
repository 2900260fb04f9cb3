package services

import (
	"bytes"
	"image"
	"image/color"
	"image/jpeg"
	"image/png"
	"testing"

	"github.com/jjudge-oj/accounts/config"
	"github.com/jjudge-oj/accounts/internal/store"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"
)

const testSecret = "test-secret"

type testEnv struct {
	repo        *store.MemoryUserRepository
	credentials *CredentialService
	users       *UserService
	avatars     *AvatarService
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	repo := store.NewMemoryUserRepository()
	credentials, err := NewCredentialService(repo, config.AuthConfig{JWTSecret: testSecret, BcryptCost: bcrypt.MinCost})
	require.NoError(t, err)
	return &testEnv{
		repo:        repo,
		credentials: credentials,
		users:       NewUserService(repo, credentials),
		avatars:     NewAvatarService(repo, NewRecordAvatarStore(repo)),
	}
}

func testImage(w, h int) *image.RGBA {
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			img.Set(x, y, color.RGBA{R: uint8(x), G: uint8(y), B: 120, A: 255})
		}
	}
	return img
}

func testJPEG(t *testing.T, w, h int) []byte {
	t.Helper()
	var buf bytes.Buffer
	require.NoError(t, jpeg.Encode(&buf, testImage(w, h), &jpeg.Options{Quality: 80}))
	return buf.Bytes()
}

func testPNG(t *testing.T, w, h int) []byte {
	t.Helper()
	var buf bytes.Buffer
	require.NoError(t, png.Encode(&buf, testImage(w, h)))
	return buf.Bytes()
}
