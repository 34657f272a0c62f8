package middleware

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/you/civicauth/domain"
	"github.com/you/civicauth/internal/metrics"
	"github.com/you/civicauth/internal/mocks"
)

func init() {
	gin.SetMode(gin.TestMode)
}

func serve(r *gin.Engine, req *http.Request) *httptest.ResponseRecorder {
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func TestAuthMiddleware(t *testing.T) {
	tokenSvc := mocks.NewMockTokenService()
	tokenSvc.ValidateAccessTokenFunc = func(token string) (*domain.TokenClaims, error) {
		switch token {
		case "good":
			return &domain.TokenClaims{UserID: 7, Role: domain.RolePending, SessionID: "s7", TokenType: "access"}, nil
		case "other":
			return &domain.TokenClaims{UserID: 8, Role: domain.RoleCitizen, SessionID: "s7", TokenType: "access"}, nil
		case "nosession":
			return &domain.TokenClaims{UserID: 7, Role: domain.RoleCitizen, TokenType: "access"}, nil
		case "old":
			return nil, domain.ErrTokenExpired
		}
		return nil, domain.ErrTokenInvalid
	}
	sessionRepo := mocks.NewMockSessionRepository()
	sessionRepo.FindByIDFunc = func(ctx context.Context, id string) (*domain.Session, error) {
		if id == "s7" {
			return &domain.Session{ID: "s7", UserID: 7, ExpiresAt: time.Now().Add(time.Hour)}, nil
		}
		return nil, domain.ErrSessionNotFound
	}

	r := gin.New()
	r.GET("/me", NewAuthMW(tokenSvc, sessionRepo).WithJWT(), func(c *gin.Context) {
		id, _ := UserID(c)
		c.JSON(http.StatusOK, gin.H{"id": id, "role": Role(c), "sid": SessionID(c)})
	})

	tests := []struct {
		name   string
		header string
		status int
		body   string
	}{
		{name: "valid token", header: "Bearer good", status: http.StatusOK, body: `{"id":7,"role":"pending","sid":"s7"}`},
		{name: "lowercase scheme", header: "bearer good", status: http.StatusOK},
		{name: "no header", status: http.StatusUnauthorized, body: `"UNAUTHORIZED"`},
		{name: "basic auth", header: "Basic Zm9vOmJhcg==", status: http.StatusUnauthorized},
		{name: "expired token", header: "Bearer old", status: http.StatusUnauthorized, body: `"TOKEN_EXPIRED"`},
		{name: "garbage token", header: "Bearer nope", status: http.StatusUnauthorized, body: `"TOKEN_INVALID"`},
		{name: "token without session", header: "Bearer nosession", status: http.StatusUnauthorized},
		{name: "session of another user", header: "Bearer other", status: http.StatusUnauthorized, body: `"SESSION_INVALID"`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/me", nil)
			if tt.header != "" {
				req.Header.Set("Authorization", tt.header)
			}
			w := serve(r, req)
			assert.Equal(t, tt.status, w.Code)
			if tt.body != "" {
				assert.Contains(t, w.Body.String(), tt.body)
			}
		})
	}
}

func TestCasbinMW_Enforce(t *testing.T) {
	policies := mocks.NewMockPolicyService()
	policies.CheckPermissionFunc = func(role, resource, action string) (bool, error) {
		if role == "broken" {
			return false, errors.New("adapter down")
		}
		return role == domain.RolePending && resource == "/auth/profile" && action == http.MethodPost, nil
	}
	mw := NewCasbinMW(policies, nil)

	newRouter := func(role string) *gin.Engine {
		r := gin.New()
		r.Use(func(c *gin.Context) {
			if role != "" {
				c.Set(ContextUserRole, role)
			}
		}, mw.Enforce())
		r.POST("/auth/profile", func(c *gin.Context) { c.Status(http.StatusOK) })
		r.GET("/admin/policies", func(c *gin.Context) { c.Status(http.StatusOK) })
		return r
	}

	tests := []struct {
		name   string
		role   string
		method string
		path   string
		status int
	}{
		{"pending may complete profile", domain.RolePending, http.MethodPost, "/auth/profile", http.StatusOK},
		{"pending may not reach admin", domain.RolePending, http.MethodGet, "/admin/policies", http.StatusForbidden},
		{"citizen may not complete profile", domain.RoleCitizen, http.MethodPost, "/auth/profile", http.StatusForbidden},
		{"missing role", "", http.MethodPost, "/auth/profile", http.StatusUnauthorized},
		{"enforcer failure", "broken", http.MethodPost, "/auth/profile", http.StatusInternalServerError},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := serve(newRouter(tt.role), httptest.NewRequest(tt.method, tt.path, nil))
			assert.Equal(t, tt.status, w.Code)
		})
	}
}

func TestRateLimit(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })

	m := metrics.New()
	limiter := NewRedisLimiter(client, 2, time.Minute)
	r := gin.New()
	r.Use(RateLimit(limiter, m, nil))
	r.POST("/auth/otp/request", func(c *gin.Context) { c.Status(http.StatusCreated) })

	request := func(ip string) *httptest.ResponseRecorder {
		req := httptest.NewRequest(http.MethodPost, "/auth/otp/request", nil)
		req.RemoteAddr = ip + ":1234"
		return serve(r, req)
	}

	assert.Equal(t, http.StatusCreated, request("10.0.0.1").Code)
	assert.Equal(t, http.StatusCreated, request("10.0.0.1").Code)

	w := request("10.0.0.1")
	assert.Equal(t, http.StatusTooManyRequests, w.Code)
	assert.Equal(t, "60", w.Header().Get("Retry-After"))
	assert.Contains(t, w.Body.String(), `"RATE_LIMITED"`)

	// Other clients have their own window.
	assert.Equal(t, http.StatusCreated, request("10.0.0.2").Code)

	mr.FastForward(61 * time.Second)
	assert.Equal(t, http.StatusCreated, request("10.0.0.1").Code)
}

func TestRateLimit_RedisDown(t *testing.T) {
	client := redis.NewClient(&redis.Options{Addr: "127.0.0.1:1", MaxRetries: -1})
	t.Cleanup(func() { _ = client.Close() })

	r := gin.New()
	r.Use(RateLimit(NewRedisLimiter(client, 1, time.Minute), nil, nil))
	r.POST("/auth/otp/request", func(c *gin.Context) { c.Status(http.StatusCreated) })

	for i := 0; i < 3; i++ {
		w := serve(r, httptest.NewRequest(http.MethodPost, "/auth/otp/request", nil))
		assert.Equal(t, http.StatusCreated, w.Code)
	}
}

func TestNewRedisLimiter_Disabled(t *testing.T) {
	assert.Nil(t, NewRedisLimiter(nil, 10, time.Minute))

	var l *RedisLimiter
	ok, retry, err := l.Allow(context.Background(), "10.0.0.1")
	assert.True(t, ok)
	assert.Zero(t, retry)
	assert.NoError(t, err)
}

func TestRequestID(t *testing.T) {
	r := gin.New()
	r.Use(RequestID(), AccessLog(nil, nil))
	r.GET("/x", func(c *gin.Context) {
		cc := domain.ClientContextFrom(c.Request.Context())
		require.NotNil(t, cc)
		c.JSON(http.StatusOK, gin.H{"request_id": cc.RequestID, "ua": cc.UserAgent, "ip": cc.IPAddress})
	})

	req := httptest.NewRequest(http.MethodGet, "/x", nil)
	req.Header.Set("User-Agent", "civic-test")
	w := serve(r, req)
	id := w.Header().Get("X-Request-ID")
	assert.Len(t, id, 36)
	assert.Contains(t, w.Body.String(), id)
	assert.Contains(t, w.Body.String(), `"ua":"civic-test"`)

	req = httptest.NewRequest(http.MethodGet, "/x", nil)
	req.Header.Set("X-Request-ID", "upstream-id")
	w = serve(r, req)
	assert.Equal(t, "upstream-id", w.Header().Get("X-Request-ID"))
}
