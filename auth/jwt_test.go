package auth_test

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/programme-lv/evalboard/auth"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var jwtKey = []byte("test")

func TestGenerateAndValidateJWT(t *testing.T) {
	token, err := auth.GenerateJWT("alice", []string{"admin"}, time.Hour, jwtKey)
	require.NoError(t, err)

	claims, err := auth.ValidateJWT(token, jwtKey)
	require.NoError(t, err)
	assert.Equal(t, "alice", claims.Username)
	assert.True(t, claims.HasScope("admin"))
	assert.False(t, claims.HasScope("voter"))

	_, err = auth.ValidateJWT(token, []byte("other"))
	require.Error(t, err)

	expired, err := auth.GenerateJWT("alice", nil, -time.Minute, jwtKey)
	require.NoError(t, err)
	_, err = auth.ValidateJWT(expired, jwtKey)
	require.Error(t, err)

	_, err = auth.GenerateJWT("", nil, time.Hour, jwtKey)
	require.Error(t, err)
}

func TestJwtAuthMiddleware(t *testing.T) {
	var seen *auth.JwtClaims
	handler := auth.GetJwtAuthMiddleware(jwtKey)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seen = auth.ClaimsFromContext(r.Context())
		w.WriteHeader(http.StatusNoContent)
	}))

	// anonymous requests pass through without claims
	w := httptest.NewRecorder()
	handler.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/", nil))
	require.Equal(t, http.StatusNoContent, w.Code)
	require.Nil(t, seen)

	token, err := auth.GenerateJWT("bob", nil, time.Hour, jwtKey)
	require.NoError(t, err)
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	w = httptest.NewRecorder()
	handler.ServeHTTP(w, req)
	require.Equal(t, http.StatusNoContent, w.Code)
	require.NotNil(t, seen)
	require.Equal(t, "bob", seen.Username)

	req = httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("Authorization", "Bearer not-a-token")
	w = httptest.NewRecorder()
	handler.ServeHTTP(w, req)
	require.Equal(t, http.StatusUnauthorized, w.Code)
	require.Contains(t, w.Body.String(), auth.ErrCodeInvalidToken)
}
