package sessions

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGenerateToken(t *testing.T) {
	token, tokenHash, err := GenerateToken()
	require.NoError(t, err)

	assert.True(t, strings.HasPrefix(token, TokenPrefix))
	assert.Equal(t, HashToken(token), tokenHash)
	assert.Len(t, tokenHash, 64) // hex-encoded SHA-256

	// Tokens must be unique.
	token2, _, err := GenerateToken()
	require.NoError(t, err)
	assert.NotEqual(t, token, token2)
}

func TestValidateTokenFormat(t *testing.T) {
	token, _, err := GenerateToken()
	require.NoError(t, err)
	assert.NoError(t, ValidateTokenFormat(token))

	tests := []struct {
		name  string
		token string
	}{
		{"missing prefix", "abc123"},
		{"wrong prefix", "spk_abc123"},
		{"prefix only", "wdn_"},
		{"invalid encoding", "wdn_not!valid!base64!"},
		{"empty", ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Error(t, ValidateTokenFormat(tt.token))
		})
	}
}

func TestDisplayPrefix(t *testing.T) {
	assert.Equal(t, "wdn_abcdefgh", DisplayPrefix("wdn_abcdefghijklmnop"))
	assert.Equal(t, "wdn_abc", DisplayPrefix("wdn_abc"))
	assert.Equal(t, "", DisplayPrefix("not-a-token"))
}
