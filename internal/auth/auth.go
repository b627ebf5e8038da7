// Package auth resolves participant tokens to stable participant ids.
//
// A token is "<base64url participant id>.<base64url HMAC-SHA256 of the id>"
// keyed with the server secret. Tokens are issued by whatever signs users in;
// the polling server only verifies them.
package auth

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
	"errors"
	"strings"
)

var ErrInvalidToken = errors.New("invalid token")

type Verifier struct {
	secret []byte
}

func NewVerifier(secret string) *Verifier {
	return &Verifier{secret: []byte(secret)}
}

func (v *Verifier) mac(participantID string) []byte {
	h := hmac.New(sha256.New, v.secret)
	h.Write([]byte(participantID))
	return h.Sum(nil)
}

// Sign issues a token for participantID.
func (v *Verifier) Sign(participantID string) string {
	enc := base64.RawURLEncoding
	return enc.EncodeToString([]byte(participantID)) + "." + enc.EncodeToString(v.mac(participantID))
}

// Verify returns the participant id carried by token.
func (v *Verifier) Verify(token string) (string, error) {
	idPart, sigPart, ok := strings.Cut(token, ".")
	if !ok || idPart == "" || sigPart == "" {
		return "", ErrInvalidToken
	}

	enc := base64.RawURLEncoding
	id, err := enc.DecodeString(idPart)
	if err != nil || len(id) == 0 {
		return "", ErrInvalidToken
	}
	sig, err := enc.DecodeString(sigPart)
	if err != nil {
		return "", ErrInvalidToken
	}

	if !hmac.Equal(sig, v.mac(string(id))) {
		return "", ErrInvalidToken
	}
	return string(id), nil
}

// BearerToken extracts the token of an "Authorization: Bearer <token>" header.
func BearerToken(header string) (string, bool) {
	const prefix = "Bearer "
	if len(header) <= len(prefix) || !strings.EqualFold(header[:len(prefix)], prefix) {
		return "", false
	}
	return strings.TrimSpace(header[len(prefix):]), true
}
