package sparepart

import (
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEnsureCSRFCookie(t *testing.T) {
	rec := httptest.NewRecorder()
	token := EnsureCSRFCookie(rec, httptest.NewRequest(http.MethodGet, "/", nil))
	assert.Len(t, token, 32)
	cookies := rec.Result().Cookies()
	require.Len(t, cookies, 1)
	assert.Equal(t, token, cookies[0].Value)

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.AddCookie(&http.Cookie{Name: "csrftoken", Value: "existing"})
	rec = httptest.NewRecorder()
	assert.Equal(t, "existing", EnsureCSRFCookie(rec, req))
	assert.Empty(t, rec.Result().Cookies())
}

func TestCheckCSRF(t *testing.T) {
	get := func(cookie, header string) *http.Request {
		r := httptest.NewRequest(http.MethodGet, "/", nil)
		if cookie != "" {
			r.AddCookie(&http.Cookie{Name: "csrftoken", Value: cookie})
		}
		if header != "" {
			r.Header.Set("X-CSRFToken", header)
		}
		return r
	}
	assert.True(t, CheckCSRF(get("abc", "abc")))
	assert.False(t, CheckCSRF(get("abc", "abd")))
	assert.False(t, CheckCSRF(get("abc", "")))
	assert.False(t, CheckCSRF(get("", "abc")))

	post := httptest.NewRequest(http.MethodPost, "/", strings.NewReader(url.Values{"csrfmiddlewaretoken": {"abc"}}.Encode()))
	post.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	post.AddCookie(&http.Cookie{Name: "csrftoken", Value: "abc"})
	assert.True(t, CheckCSRF(post))
}
