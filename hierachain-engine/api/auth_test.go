package api

import (
	"encoding/json"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestValidateToken(t *testing.T) {
	off := NewAuthenticator(AuthConfig{}, zerolog.Nop())
	assert.False(t, off.IsEnabled())
	assert.NoError(t, off.ValidateToken(""))

	on := NewAuthenticator(AuthConfig{Enabled: true, Token: "secret"}, zerolog.Nop())
	assert.ErrorIs(t, on.ValidateToken(""), ErrAuthRequired)
	assert.ErrorIs(t, on.ValidateToken("nope"), ErrAuthTokenMismatch)
	assert.NoError(t, on.ValidateToken("secret"))
}

func TestGeneratedToken(t *testing.T) {
	a := NewAuthenticator(AuthConfig{Enabled: true}, zerolog.Nop())
	assert.Len(t, a.GetToken(), 64)
	assert.NoError(t, a.ValidateToken(a.GetToken()))
	assert.NotEqual(t, GenerateToken(), GenerateToken())
}

func TestHandshake(t *testing.T) {
	a := NewAuthenticator(AuthConfig{Enabled: true, Token: "secret"}, zerolog.Nop())

	tests := []struct {
		name  string
		frame string
		err   error
	}{
		{"ok", `{"type":"auth","token":"secret"}`, nil},
		{"wrong token", `{"type":"auth","token":"x"}`, ErrAuthTokenMismatch},
		{"wrong type", `{"type":"block","token":"secret"}`, ErrAuthRequired},
		{"garbage", `not json`, ErrAuthTokenInvalid},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			raw, err := a.Handshake([]byte(tt.frame))
			var resp AuthResponse
			require.NoError(t, json.Unmarshal(raw, &resp))

			if tt.err == nil {
				assert.NoError(t, err)
				assert.True(t, resp.Success)
				assert.Empty(t, resp.Error)
				return
			}
			assert.ErrorIs(t, err, tt.err)
			assert.False(t, resp.Success)
		})
	}
}
