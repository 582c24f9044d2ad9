package api

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	jwt "github.com/golang-jwt/jwt/v4"
	"github.com/stretchr/testify/require"

	"example.com/horizon/services/ledger/auth"
	"example.com/horizon/services/ledger/tenant"
)

const (
	testSecret   = "test-secret"
	testIssuer   = "https://iam.horizon.example.com"
	testAudience = "ledger"
)

func init() {
	gin.SetMode(gin.TestMode)
}

func testToken(t *testing.T, tenantID string) string {
	t.Helper()
	claims := &auth.Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   "user-1",
			Issuer:    testIssuer,
			Audience:  jwt.ClaimStrings{testAudience},
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
		},
		TenantID: tenantID,
		Roles:    []string{"admin"},
	}
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(testSecret))
	require.NoError(t, err)
	return token
}

// probeObservation records what the route handler at the end of the
// middleware pipeline observed.
type probeObservation struct {
	tenantID  string
	tenantSet bool
	hasClaims bool
}

// newAuthPipeline wires the auth middlewares in server order in front of a
// probe handler that records what the route handler would observe.
func newAuthPipeline(observed *probeObservation) *gin.Engine {
	validator := auth.NewTokenValidator(testSecret, testIssuer, testAudience)

	router := gin.New()
	router.Use(AuthMiddleware(validator))
	router.Use(TenantContextMiddleware())
	router.GET("/probe", func(c *gin.Context) {
		observed.tenantID, observed.tenantSet = tenant.FromContext(c.Request.Context())
		_, observed.hasClaims = c.Get(claimsKey)
		c.Status(http.StatusOK)
	})
	return router
}

func TestAuthMiddlewareNoHeaderPassesThroughUnauthenticated(t *testing.T) {
	var observed probeObservation
	router := newAuthPipeline(&observed)

	w := httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/probe", nil))

	require.Equal(t, http.StatusOK, w.Code)
	require.False(t, observed.hasClaims)
	require.False(t, observed.tenantSet)
}

func TestAuthMiddlewareValidTokenBindsTenant(t *testing.T) {
	var observed probeObservation
	router := newAuthPipeline(&observed)

	req := httptest.NewRequest(http.MethodGet, "/probe", nil)
	req.Header.Set("Authorization", "Bearer "+testToken(t, "tenant-a"))
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	require.Equal(t, http.StatusOK, w.Code)
	require.True(t, observed.hasClaims)
	require.True(t, observed.tenantSet)
	require.Equal(t, "tenant-a", observed.tenantID)
}

func TestAuthMiddlewareInvalidTokenRejectedGenerically(t *testing.T) {
	var observed probeObservation
	router := newAuthPipeline(&observed)

	for _, header := range []string{
		"Bearer not-a-token",
		"Basic dXNlcjpwYXNz",
		"Bearer",
	} {
		req := httptest.NewRequest(http.MethodGet, "/probe", nil)
		req.Header.Set("Authorization", header)
		w := httptest.NewRecorder()
		router.ServeHTTP(w, req)

		require.Equal(t, http.StatusUnauthorized, w.Code, "header %q", header)
		// Same generic body for every failure kind
		require.JSONEq(t, `{"error":"unauthorized"}`, w.Body.String(), "header %q", header)
	}
}

func TestTenantContextClearedAfterRequest(t *testing.T) {
	validator := auth.NewTokenValidator(testSecret, testIssuer, testAudience)

	var afterNext struct {
		tenantSet bool
	}

	router := gin.New()
	// Outer middleware observes the request context after the pipeline below
	// it has fully unwound
	router.Use(func(c *gin.Context) {
		c.Next()
		_, afterNext.tenantSet = tenant.FromContext(c.Request.Context())
	})
	router.Use(AuthMiddleware(validator))
	router.Use(TenantContextMiddleware())
	router.GET("/probe", func(c *gin.Context) {
		_, ok := tenant.FromContext(c.Request.Context())
		require.True(t, ok)
		c.Status(http.StatusOK)
	})

	req := httptest.NewRequest(http.MethodGet, "/probe", nil)
	req.Header.Set("Authorization", "Bearer "+testToken(t, "tenant-a"))
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	require.Equal(t, http.StatusOK, w.Code)
	require.False(t, afterNext.tenantSet, "tenant binding must not outlive the request")
}

func TestTenantContextClearedOnPanic(t *testing.T) {
	validator := auth.NewTokenValidator(testSecret, testIssuer, testAudience)

	var afterNext struct {
		tenantSet bool
	}

	router := gin.New()
	router.Use(func(c *gin.Context) {
		c.Next()
		_, afterNext.tenantSet = tenant.FromContext(c.Request.Context())
	})
	router.Use(gin.Recovery())
	router.Use(AuthMiddleware(validator))
	router.Use(TenantContextMiddleware())
	router.GET("/probe", func(c *gin.Context) {
		panic("handler exploded")
	})

	req := httptest.NewRequest(http.MethodGet, "/probe", nil)
	req.Header.Set("Authorization", "Bearer "+testToken(t, "tenant-a"))
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	require.Equal(t, http.StatusInternalServerError, w.Code)
	require.False(t, afterNext.tenantSet, "tenant binding must not survive a panic")
}

func TestLoggingMiddlewareToleratesMissingRequestID(t *testing.T) {
	// No RequestIDMiddleware ahead of it: the request must still complete
	router := gin.New()
	router.Use(LoggingMiddleware())
	router.GET("/probe", func(c *gin.Context) { c.Status(http.StatusOK) })

	w := httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/probe", nil))
	require.Equal(t, http.StatusOK, w.Code)
}

func TestRequestIDMiddlewarePropagatesAndGenerates(t *testing.T) {
	router := gin.New()
	router.Use(RequestIDMiddleware())
	router.GET("/probe", func(c *gin.Context) { c.Status(http.StatusOK) })

	// Caller-supplied ID is echoed back
	req := httptest.NewRequest(http.MethodGet, "/probe", nil)
	req.Header.Set(requestIDKey, "req-123")
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	require.Equal(t, "req-123", w.Header().Get(requestIDKey))

	// Otherwise one is generated
	w = httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/probe", nil))
	require.NotEmpty(t, w.Header().Get(requestIDKey))
}
