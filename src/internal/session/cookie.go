package session

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
	"net/http"
	"strings"
	"time"

	"challengehub-realtime-svc/src/internal/models"
)

// CookieCodec issues and reads the signed session cookie. The cookie value is
// "<session id>.<hmac>", so a tampered identifier never reaches the store.
type CookieCodec struct {
	Name   string
	Secret []byte
	Secure bool
	MaxAge time.Duration
}

func NewCookieCodec(name, secret string, secure bool, maxAge time.Duration) *CookieCodec {
	return &CookieCodec{
		Name:   name,
		Secret: []byte(secret),
		Secure: secure,
		MaxAge: maxAge,
	}
}

func (c *CookieCodec) sign(id string) string {
	mac := hmac.New(sha256.New, c.Secret)
	mac.Write([]byte(id))
	return base64.RawURLEncoding.EncodeToString(mac.Sum(nil))
}

// Encode returns the signed cookie value for a session id.
func (c *CookieCodec) Encode(id string) string {
	return id + "." + c.sign(id)
}

// Decode verifies a cookie value and returns the session id.
func (c *CookieCodec) Decode(value string) (string, error) {
	id, sig, ok := strings.Cut(value, ".")
	if !ok || id == "" || sig == "" {
		return "", models.ErrSessionInvalid
	}
	if !hmac.Equal([]byte(sig), []byte(c.sign(id))) {
		return "", models.ErrSessionInvalid
	}
	return id, nil
}

// Read extracts the session id from the request cookie.
func (c *CookieCodec) Read(r *http.Request) (string, error) {
	cookie, err := r.Cookie(c.Name)
	if err != nil || cookie.Value == "" {
		return "", models.ErrSessionNotFound
	}
	return c.Decode(cookie.Value)
}

// Write issues the session cookie to the client.
func (c *CookieCodec) Write(w http.ResponseWriter, s *Session) {
	http.SetCookie(w, &http.Cookie{
		Name:     c.Name,
		Value:    c.Encode(s.ID),
		Path:     "/",
		Expires:  s.ExpiresAt,
		MaxAge:   int(c.MaxAge.Seconds()),
		HttpOnly: true,
		Secure:   c.Secure,
		SameSite: http.SameSiteLaxMode,
	})
}

// Clear removes the session cookie from the client.
func (c *CookieCodec) Clear(w http.ResponseWriter) {
	http.SetCookie(w, &http.Cookie{
		Name:     c.Name,
		Value:    "",
		Path:     "/",
		MaxAge:   -1,
		HttpOnly: true,
		Secure:   c.Secure,
		SameSite: http.SameSiteLaxMode,
	})
}
