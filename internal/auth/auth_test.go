package auth

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestVerifier_RoundTrip(t *testing.T) {
	v := NewVerifier("secret")

	for _, id := range []string{"u1", "user@example.com", "ünïcode id"} {
		token := v.Sign(id)
		got, err := v.Verify(token)
		require.NoError(t, err)
		assert.Equal(t, id, got)
	}
}

func TestVerifier_Rejects(t *testing.T) {
	v := NewVerifier("secret")
	other := NewVerifier("other-secret")
	good := v.Sign("u1")

	tests := []struct {
		name  string
		token string
	}{
		{"empty", ""},
		{"no separator", "abc"},
		{"empty id", "." + good[len(good)/2:]},
		{"bad base64", "!!!.???"},
		{"wrong secret", other.Sign("u1")},
		{"tampered id", v.Sign("u2")[:3] + good[3:]},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := v.Verify(tt.token)
			assert.ErrorIs(t, err, ErrInvalidToken)
		})
	}
}

func TestBearerToken(t *testing.T) {
	tok, ok := BearerToken("Bearer abc.def")
	assert.True(t, ok)
	assert.Equal(t, "abc.def", tok)

	tok, ok = BearerToken("bearer xyz")
	assert.True(t, ok)
	assert.Equal(t, "xyz", tok)

	_, ok = BearerToken("Basic abc")
	assert.False(t, ok)
	_, ok = BearerToken("Bearer ")
	assert.False(t, ok)
}
