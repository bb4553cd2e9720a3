package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"collabnote/internal/identity"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testSecret = "test-secret"

func sign(t *testing.T, method jwt.SigningMethod, key interface{}, claims jwt.MapClaims) string {
	t.Helper()
	token, err := jwt.NewWithClaims(method, claims).SignedString(key)
	require.NoError(t, err)
	return token
}

// echoUser responds with the id of the authenticated user.
func echoUser(seen *identity.User) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		u, _ := identity.FromContext(r.Context())
		*seen = u
		w.WriteHeader(http.StatusOK)
	})
}

func TestAuthAcceptsQueryToken(t *testing.T) {
	var seen identity.User
	token := sign(t, jwt.SigningMethodHS256, []byte(testSecret), jwt.MapClaims{
		"sub":           "user-1",
		"email":         "alice@example.com",
		"user_metadata": map[string]interface{}{"full_name": "Alice"},
		"exp":           time.Now().Add(time.Hour).Unix(),
	})

	req := httptest.NewRequest(http.MethodGet, "/api/socket?token="+token, nil)
	rec := httptest.NewRecorder()
	Auth(testSecret)(echoUser(&seen)).ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, identity.User{ID: "user-1", Email: "alice@example.com", FullName: "Alice"}, seen)
}

func TestAuthAcceptsBearerHeader(t *testing.T) {
	var seen identity.User
	token := sign(t, jwt.SigningMethodHS256, []byte(testSecret), jwt.MapClaims{"sub": "user-2", "full_name": "Bob"})

	req := httptest.NewRequest(http.MethodGet, "/api/documents", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	rec := httptest.NewRecorder()
	Auth(testSecret)(echoUser(&seen)).ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "Bob", seen.FullName)
}

func TestAuthRejects(t *testing.T) {
	cases := map[string]string{
		"missing token": "",
		"wrong secret":  sign(t, jwt.SigningMethodHS256, []byte("other"), jwt.MapClaims{"sub": "user-1"}),
		"expired":       sign(t, jwt.SigningMethodHS256, []byte(testSecret), jwt.MapClaims{"sub": "user-1", "exp": time.Now().Add(-time.Minute).Unix()}),
		"missing sub":   sign(t, jwt.SigningMethodHS256, []byte(testSecret), jwt.MapClaims{"email": "x@example.com"}),
		"garbage":       "not-a-jwt",
	}
	for name, token := range cases {
		t.Run(name, func(t *testing.T) {
			called := false
			next := http.HandlerFunc(func(http.ResponseWriter, *http.Request) { called = true })

			req := httptest.NewRequest(http.MethodGet, "/api/documents", nil)
			if token != "" {
				req.Header.Set("Authorization", "Bearer "+token)
			}
			rec := httptest.NewRecorder()
			Auth(testSecret)(next).ServeHTTP(rec, req)

			assert.Equal(t, http.StatusUnauthorized, rec.Code)
			assert.False(t, called)
		})
	}
}

func TestAuthRejectsUnsignedToken(t *testing.T) {
	token := sign(t, jwt.SigningMethodNone, jwt.UnsafeAllowNoneSignatureType, jwt.MapClaims{"sub": "user-1"})

	req := httptest.NewRequest(http.MethodGet, "/?token="+token, nil)
	rec := httptest.NewRecorder()
	Auth(testSecret)(http.NotFoundHandler()).ServeHTTP(rec, req)

	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}
