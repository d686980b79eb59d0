package sparepart

import (
	"crypto/subtle"
	"net/http"
	"strings"

	"github.com/google/uuid"
)

const (
	csrfCookieName = "csrftoken"
	csrfHeaderName = "X-CSRFToken"
	csrfFieldName  = "csrfmiddlewaretoken"
)

func NewCSRFToken() string {
	return strings.ReplaceAll(uuid.NewString(), "-", "")
}

// EnsureCSRFCookie returns the request's CSRF cookie value, issuing a new
// cookie when there is none.
func EnsureCSRFCookie(w http.ResponseWriter, r *http.Request) string {
	if c, err := r.Cookie(csrfCookieName); err == nil && c.Value != "" {
		return c.Value
	}
	token := NewCSRFToken()
	http.SetCookie(w, &http.Cookie{
		Name:     csrfCookieName,
		Value:    token,
		Path:     "/",
		SameSite: http.SameSiteLaxMode,
	})
	return token
}

// CheckCSRF compares the cookie with the header or, for form posts, the
// csrfmiddlewaretoken field.
func CheckCSRF(r *http.Request) bool {
	c, err := r.Cookie(csrfCookieName)
	if err != nil || c.Value == "" {
		return false
	}
	sent := r.Header.Get(csrfHeaderName)
	if sent == "" && r.Method == http.MethodPost {
		sent = r.PostFormValue(csrfFieldName)
	}
	if sent == "" {
		return false
	}
	return subtle.ConstantTimeCompare([]byte(c.Value), []byte(sent)) == 1
}
