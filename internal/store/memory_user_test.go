package store

import (
	"context"
	"testing"

	"github.com/jjudge-oj/accounts/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMemoryUserRepository_Lifecycle(t *testing.T) {
	repo := NewMemoryUserRepository()
	ctx := context.Background()

	user, err := repo.Create(ctx, types.User{Name: "Ada", Email: "ada@x.com", PasswordHash: "hash"})
	require.NoError(t, err)
	require.NotEmpty(t, user.ID)

	_, err = repo.Create(ctx, types.User{Name: "Other", Email: "ada@x.com", PasswordHash: "hash"})
	assert.ErrorIs(t, err, ErrDuplicateEmail)

	require.NoError(t, repo.AddToken(ctx, user.ID, "t1"))
	require.NoError(t, repo.AddToken(ctx, user.ID, "t2"))
	require.NoError(t, repo.RemoveToken(ctx, user.ID, "t1"))
	require.NoError(t, repo.RemoveToken(ctx, user.ID, "t1"))

	got, err := repo.GetByEmail(ctx, "ada@x.com")
	require.NoError(t, err)
	assert.Equal(t, []string{"t2"}, got.Tokens)

	got.Tokens[0] = "mutated"
	again, err := repo.GetByID(ctx, user.ID)
	require.NoError(t, err)
	assert.Equal(t, []string{"t2"}, again.Tokens)

	require.NoError(t, repo.ClearTokens(ctx, user.ID))
	again, err = repo.GetByID(ctx, user.ID)
	require.NoError(t, err)
	assert.Empty(t, again.Tokens)

	require.NoError(t, repo.SetAvatar(ctx, user.ID, []byte("png")))
	avatar, err := repo.GetAvatar(ctx, user.ID)
	require.NoError(t, err)
	assert.Equal(t, []byte("png"), avatar)
	assert.Nil(t, again.Avatar)

	require.NoError(t, repo.Delete(ctx, user.ID))
	_, err = repo.GetAvatar(ctx, user.ID)
	assert.ErrorIs(t, err, ErrNotFound)
	assert.ErrorIs(t, repo.Delete(ctx, user.ID), ErrNotFound)
}

func TestMemoryUserRepository_UpdateEmail(t *testing.T) {
	repo := NewMemoryUserRepository()
	ctx := context.Background()

	ada, err := repo.Create(ctx, types.User{Name: "Ada", Email: "ada@x.com", PasswordHash: "hash"})
	require.NoError(t, err)
	_, err = repo.Create(ctx, types.User{Name: "Bob", Email: "bob@x.com", PasswordHash: "hash"})
	require.NoError(t, err)

	ada.Email = "bob@x.com"
	_, err = repo.Update(ctx, ada)
	assert.ErrorIs(t, err, ErrDuplicateEmail)

	ada.Email = "lovelace@x.com"
	_, err = repo.Update(ctx, ada)
	require.NoError(t, err)

	_, err = repo.GetByEmail(ctx, "ada@x.com")
	assert.ErrorIs(t, err, ErrNotFound)
	got, err := repo.GetByEmail(ctx, "lovelace@x.com")
	require.NoError(t, err)
	assert.Equal(t, ada.ID, got.ID)

	_, err = repo.Update(ctx, types.User{ID: "missing", Email: "m@x.com"})
	assert.ErrorIs(t, err, ErrNotFound)
}
