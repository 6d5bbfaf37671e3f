package auth

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"
)

func TestCheckPlainAndHashed(t *testing.T) {
	hash, err := HashToken("hashed-secret", bcrypt.MinCost)
	require.NoError(t, err)

	a, err := New(Config{Tokens: []string{"plain-secret", hash}})
	require.NoError(t, err)
	assert.True(t, a.Enabled())

	assert.NoError(t, a.Check("plain-secret"))
	assert.NoError(t, a.Check("hashed-secret"))
	assert.ErrorIs(t, a.Check("wrong"), ErrInvalidCredentials)
	assert.ErrorIs(t, a.Check(""), ErrInvalidCredentials)
	assert.ErrorIs(t, a.Check(hash), ErrInvalidCredentials, "the hash itself is not a credential")
}

func TestNewRejectsBadTokens(t *testing.T) {
	_, err := New(Config{Tokens: []string{"  "}})
	assert.Error(t, err)
	_, err = New(Config{Tokens: []string{"$2a$99$broken"}})
	assert.Error(t, err)
	_, err = New(Config{BcryptCost: bcrypt.MaxCost + 1})
	assert.Error(t, err)
	_, err = HashToken("x", 2)
	assert.Error(t, err, "costs below bcrypt.MinCost are rejected, not silently raised")
}

func TestDisabledAllowsEverything(t *testing.T) {
	a, err := New(Config{})
	require.NoError(t, err)
	assert.False(t, a.Enabled())

	rec := serve(t, a, "")
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestGinAuth(t *testing.T) {
	a, err := New(Config{Tokens: []string{"s3cret"}})
	require.NoError(t, err)

	rec := serve(t, a, "")
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.NotEmpty(t, rec.Header().Get("WWW-Authenticate"))

	assert.Equal(t, http.StatusOK, serve(t, a, "Bearer s3cret").Code)
	assert.Equal(t, http.StatusOK, serve(t, a, "bearer s3cret").Code)
	assert.Equal(t, http.StatusUnauthorized, serve(t, a, "Basic s3cret").Code)

	gin.SetMode(gin.TestMode)
	g := gin.New()
	g.Use(a.GinAuth())
	g.GET("/x", func(c *gin.Context) { c.Status(http.StatusOK) })
	req := httptest.NewRequest(http.MethodGet, "/x", nil)
	req.Header.Set(APIKeyHeader, "s3cret")
	rec = httptest.NewRecorder()
	g.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestGenerateToken(t *testing.T) {
	a, err := GenerateToken()
	require.NoError(t, err)
	b, err := GenerateToken()
	require.NoError(t, err)
	assert.Len(t, a, 64)
	assert.NotEqual(t, a, b)
}

func serve(t *testing.T, a *Authenticator, authz string) *httptest.ResponseRecorder {
	t.Helper()
	gin.SetMode(gin.TestMode)
	g := gin.New()
	g.Use(a.GinAuth())
	g.GET("/x", func(c *gin.Context) { c.Status(http.StatusOK) })
	req := httptest.NewRequest(http.MethodGet, "/x", nil)
	if authz != "" {
		req.Header.Set("Authorization", authz)
	}
	rec := httptest.NewRecorder()
	g.ServeHTTP(rec, req)
	return rec
}
