// Package auth signs and checks the short-lived tokens that let a capture
// client stream audio into one session.
package auth

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"
)

var (
	ErrNoSecret     = errors.New("ingest token secret not configured")
	ErrTokenFormat  = errors.New("invalid token format")
	ErrTokenSig     = errors.New("invalid token signature")
	ErrTokenExpired = errors.New("token expired")
	ErrTokenSession = errors.New("session id mismatch")
)

// Claims are the fields carried by an ingest token.
type Claims struct {
	SessionID string
	Expires   time.Time
}

// Sign builds base64url(session_id "." exp_unix "." hex(hmac_sha256(secret, session_id "." exp_unix))).
func Sign(secret, sessionID string, exp time.Time) (string, error) {
	if secret == "" {
		return "", ErrNoSecret
	}
	if sessionID == "" || strings.Contains(sessionID, ".") {
		return "", ErrTokenFormat
	}
	msg := sessionID + "." + strconv.FormatInt(exp.Unix(), 10)
	raw := msg + "." + hex.EncodeToString(mac(secret, msg))
	return base64.RawURLEncoding.EncodeToString([]byte(raw)), nil
}

// Verify checks the signature, the session and the expiry. A token stays
// valid for skew past its expiry.
func Verify(secret, token, sessionID string, now time.Time, skew time.Duration) (Claims, error) {
	if secret == "" {
		return Claims{}, ErrNoSecret
	}
	b, err := base64.RawURLEncoding.DecodeString(token)
	if err != nil {
		return Claims{}, ErrTokenFormat
	}
	parts := strings.Split(string(b), ".")
	if len(parts) != 3 {
		return Claims{}, ErrTokenFormat
	}
	sid, expStr, sigHex := parts[0], parts[1], parts[2]
	exp, err := strconv.ParseInt(expStr, 10, 64)
	if err != nil {
		return Claims{}, ErrTokenFormat
	}
	got, err := hex.DecodeString(sigHex)
	if err != nil {
		return Claims{}, ErrTokenFormat
	}
	// constant-time compare
	if !hmac.Equal(mac(secret, sid+"."+expStr), got) {
		return Claims{}, ErrTokenSig
	}
	if sessionID != "" && sid != sessionID {
		return Claims{}, ErrTokenSession
	}
	c := Claims{SessionID: sid, Expires: time.Unix(exp, 0)}
	if now.After(c.Expires.Add(skew)) {
		return Claims{}, ErrTokenExpired
	}
	return c, nil
}

// BearerToken extracts the token of an "Authorization: Bearer" header.
func BearerToken(r *http.Request) (string, bool) {
	authz := r.Header.Get("Authorization")
	if !strings.HasPrefix(authz, "Bearer ") {
		return "", false
	}
	tok := strings.TrimSpace(strings.TrimPrefix(authz, "Bearer "))
	return tok, tok != ""
}

func mac(secret, msg string) []byte {
	h := hmac.New(sha256.New, []byte(secret))
	h.Write([]byte(msg))
	return h.Sum(nil)
}
