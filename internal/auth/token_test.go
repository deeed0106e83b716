package auth

import (
	"errors"
	"net/http/httptest"
	"testing"
	"time"
)

func TestSignAndVerify(t *testing.T) {
	sec := "secret123"
	sid := "abcd1234"
	exp := time.Now().Add(5 * time.Minute).Truncate(time.Second)

	tok, err := Sign(sec, sid, exp)
	if err != nil {
		t.Fatalf("sign: %v", err)
	}
	c, err := Verify(sec, tok, sid, time.Now(), time.Minute)
	if err != nil {
		t.Fatalf("verify: %v", err)
	}
	if c.SessionID != sid || !c.Expires.Equal(exp) {
		t.Fatalf("mismatch: %+v", c)
	}
}

func TestVerifyFailures(t *testing.T) {
	sec := "secret123"
	now := time.Now()
	tok, _ := Sign(sec, "abcd1234", now.Add(time.Minute))

	// flip a char
	bad := "A" + tok[1:]
	if tok[0] == 'A' {
		bad = "B" + tok[1:]
	}

	cases := []struct {
		name   string
		secret string
		token  string
		sid    string
		now    time.Time
		want   error
	}{
		{"tampered", sec, bad, "abcd1234", now, nil},
		{"wrong secret", "other", tok, "abcd1234", now, ErrTokenSig},
		{"wrong session", sec, tok, "ffff0000", now, ErrTokenSession},
		{"expired", sec, tok, "abcd1234", now.Add(2 * time.Minute), ErrTokenExpired},
		{"garbage", sec, "!!!", "abcd1234", now, ErrTokenFormat},
		{"no secret", "", tok, "abcd1234", now, ErrNoSecret},
	}
	for _, tc := range cases {
		_, err := Verify(tc.secret, tc.token, tc.sid, tc.now, 30*time.Second)
		if err == nil {
			t.Errorf("%s: expected error", tc.name)
			continue
		}
		if tc.want != nil && !errors.Is(err, tc.want) {
			t.Errorf("%s: expected %v, got %v", tc.name, tc.want, err)
		}
	}
}

func TestSkewExtendsExpiry(t *testing.T) {
	now := time.Now()
	tok, _ := Sign("s", "abcd1234", now)
	if _, err := Verify("s", tok, "", now.Add(20*time.Second), 30*time.Second); err != nil {
		t.Fatalf("token inside skew should verify: %v", err)
	}
}

func TestSignRejects(t *testing.T) {
	if _, err := Sign("", "abcd1234", time.Now()); !errors.Is(err, ErrNoSecret) {
		t.Fatalf("expected ErrNoSecret, got %v", err)
	}
	if _, err := Sign("s", "a.b", time.Now()); !errors.Is(err, ErrTokenFormat) {
		t.Fatalf("expected ErrTokenFormat, got %v", err)
	}
}

func TestBearerToken(t *testing.T) {
	r := httptest.NewRequest("GET", "/ws/audio", nil)
	if _, ok := BearerToken(r); ok {
		t.Fatalf("expected no token")
	}
	r.Header.Set("Authorization", "Bearer abc")
	if tok, ok := BearerToken(r); !ok || tok != "abc" {
		t.Fatalf("unexpected token %q %v", tok, ok)
	}
}
