package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"busbooking/internal/domain"
	"busbooking/internal/utils"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var secret = []byte("mw-secret")

func newEngine(seen *domain.RequestContext) *gin.Engine {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.Use(RequestID())
	r.GET("/me", AuthRequired(secret), func(c *gin.Context) {
		rc, ok := Customer(c)
		if !ok {
			c.Status(http.StatusInternalServerError)
			return
		}
		*seen = rc
		c.String(http.StatusOK, utils.RequestIDFromContext(c.Request.Context()))
	})
	return r
}

func sign(t *testing.T, method jwt.SigningMethod, key any, claims jwt.MapClaims) string {
	t.Helper()
	s, err := jwt.NewWithClaims(method, claims).SignedString(key)
	require.NoError(t, err)
	return s
}

func TestAuthRequired(t *testing.T) {
	exp := time.Now().Add(time.Hour).Unix()
	cases := []struct {
		name   string
		header string
		want   int
		id     string
	}{
		{"numeric user id", "Bearer " + sign(t, jwt.SigningMethodHS256, secret, jwt.MapClaims{"user_id": 17, "role": "customer", "exp": exp}), http.StatusOK, "17"},
		{"string user id", "bearer " + sign(t, jwt.SigningMethodHS256, secret, jwt.MapClaims{"user_id": " u-9 ", "exp": exp}), http.StatusOK, "u-9"},
		{"missing header", "", http.StatusUnauthorized, ""},
		{"not bearer", "Basic abc", http.StatusUnauthorized, ""},
		{"expired", "Bearer " + sign(t, jwt.SigningMethodHS256, secret, jwt.MapClaims{"user_id": 17, "exp": time.Now().Add(-time.Minute).Unix()}), http.StatusUnauthorized, ""},
		{"no exp", "Bearer " + sign(t, jwt.SigningMethodHS256, secret, jwt.MapClaims{"user_id": 17}), http.StatusUnauthorized, ""},
		{"wrong secret", "Bearer " + sign(t, jwt.SigningMethodHS256, []byte("other"), jwt.MapClaims{"user_id": 17, "exp": exp}), http.StatusUnauthorized, ""},
		{"wrong alg", "Bearer " + sign(t, jwt.SigningMethodHS512, secret, jwt.MapClaims{"user_id": 17, "exp": exp}), http.StatusUnauthorized, ""},
		{"no user id", "Bearer " + sign(t, jwt.SigningMethodHS256, secret, jwt.MapClaims{"exp": exp}), http.StatusUnauthorized, ""},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			var seen domain.RequestContext
			req := httptest.NewRequest(http.MethodGet, "/me", nil)
			if tc.header != "" {
				req.Header.Set("Authorization", tc.header)
			}
			w := httptest.NewRecorder()
			newEngine(&seen).ServeHTTP(w, req)

			require.Equal(t, tc.want, w.Code, w.Body.String())
			if tc.want == http.StatusOK {
				assert.Equal(t, tc.id, seen.CustomerID)
				assert.Equal(t, w.Header().Get("X-Request-ID"), seen.RequestID)
			} else {
				assert.Contains(t, w.Body.String(), `"code":"unauthorized"`)
			}
		})
	}
}

func TestRequestID(t *testing.T) {
	var seen domain.RequestContext
	r := newEngine(&seen)
	tok := "Bearer " + sign(t, jwt.SigningMethodHS256, secret, jwt.MapClaims{"user_id": 1, "exp": time.Now().Add(time.Hour).Unix()})

	req := httptest.NewRequest(http.MethodGet, "/me", nil)
	req.Header.Set("Authorization", tok)
	req.Header.Set("X-Request-ID", "req-123")
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "req-123", w.Header().Get("X-Request-ID"))
	assert.Equal(t, "req-123", w.Body.String())

	req = httptest.NewRequest(http.MethodGet, "/me", nil)
	req.Header.Set("Authorization", tok)
	w = httptest.NewRecorder()
	r.ServeHTTP(w, req)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Len(t, w.Header().Get("X-Request-ID"), 36)
	assert.Equal(t, w.Header().Get("X-Request-ID"), w.Body.String())
}
