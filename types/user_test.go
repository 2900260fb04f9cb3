package types

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestUserJSONOmitsSecrets(t *testing.T) {
	user := User{
		ID:           "8b1e6a4e-0000-4000-8000-000000000001",
		Name:         "Ada",
		Email:        "ada@x.com",
		Age:          36,
		PasswordHash: "$2a$10$hash",
		Tokens:       []string{"tok-1", "tok-2"},
		Avatar:       []byte{0x89, 'P', 'N', 'G'},
		CreatedAt:    time.Unix(0, 0).UTC(),
		UpdatedAt:    time.Unix(0, 0).UTC(),
	}

	data, err := json.Marshal(user)
	require.NoError(t, err)

	var fields map[string]any
	require.NoError(t, json.Unmarshal(data, &fields))

	for _, key := range []string{"password", "PasswordHash", "password_hash", "tokens", "Tokens", "avatar", "Avatar"} {
		assert.NotContains(t, fields, key)
	}
	assert.Equal(t, "Ada", fields["name"])
	assert.Equal(t, "ada@x.com", fields["email"])
	assert.NotContains(t, string(data), "tok-1")
	assert.NotContains(t, string(data), "$2a$10$hash")
}

func TestUserHasToken(t *testing.T) {
	user := User{Tokens: []string{"a", "b"}}

	assert.True(t, user.HasToken("a"))
	assert.True(t, user.HasToken("b"))
	assert.False(t, user.HasToken("c"))
	assert.False(t, User{}.HasToken(""))
}
