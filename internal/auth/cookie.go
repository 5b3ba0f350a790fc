package auth

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
)

// DefaultCookieName is used when the configuration leaves the name empty.
const DefaultCookieName = "session"

// CookieWriter writes and clears the HTTP-only session cookie.
type CookieWriter struct {
	Name   string
	Secure bool
}

// NewCookieWriter returns a writer for the named session cookie.
func NewCookieWriter(name string, secure bool) *CookieWriter {
	if name == "" {
		name = DefaultCookieName
	}
	return &CookieWriter{Name: name, Secure: secure}
}

// Write sets the session cookie with the given token and lifetime.
func (w *CookieWriter) Write(c *gin.Context, token string, ttl time.Duration) {
	http.SetCookie(c.Writer, &http.Cookie{
		Name:     w.Name,
		Value:    token,
		Path:     "/",
		MaxAge:   int(ttl.Seconds()),
		HttpOnly: true,
		Secure:   w.Secure,
		SameSite: http.SameSiteLaxMode,
	})
}

// Clear expires the session cookie immediately.
func (w *CookieWriter) Clear(c *gin.Context) {
	http.SetCookie(c.Writer, &http.Cookie{
		Name:     w.Name,
		Value:    "",
		Path:     "/",
		MaxAge:   -1,
		HttpOnly: true,
		Secure:   w.Secure,
		SameSite: http.SameSiteLaxMode,
	})
}

// Read returns the raw session token from the request, or an empty string.
func (w *CookieWriter) Read(c *gin.Context) string {
	cookie, err := c.Request.Cookie(w.Name)
	if err != nil {
		return ""
	}
	return cookie.Value
}
