package e2e

import (
	"bytes"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/you/civicauth/internal/app"
	"github.com/you/civicauth/internal/config"
	"github.com/you/civicauth/internal/infrastructure/database"
	"github.com/you/civicauth/internal/mocks"
)

// TestServer runs the fully wired service over SQLite and miniredis.
type TestServer struct {
	Server    *httptest.Server
	Container *app.Container
	Gateway   *mocks.MockDeliveryGateway
	Redis     *miniredis.Miniredis
	Clock     *Clock
	Client    *http.Client
}

// Clock drives OTP session timing so cooldowns can be skipped.
type Clock struct {
	mu  sync.Mutex
	now time.Time
}

// Now returns the current fake time.
func (c *Clock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

// Advance moves the clock forward.
func (c *Clock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

func testConfig() *config.Config {
	return &config.Config{
		GinMode:           gin.TestMode,
		Env:               "test",
		JWTSecret:         "e2e-secret-e2e-secret-e2e-secret-42",
		JWTIssuer:         "civicauth",
		AccessTTL:         15 * time.Minute,
		RefreshTTL:        720 * time.Hour,
		OTPTTL:            300 * time.Second,
		OTPLength:         6,
		OTPMaxAttempts:    5,
		OTPCooldown:       60 * time.Second,
		OTPRetention:      10 * time.Minute,
		SweepInterval:     time.Minute,
		OTPStore:          config.StoreRedis,
		OTPHashCost:       bcrypt.MinCost,
		TwilioChannel:     config.ChannelLog,
		MagicLinkBaseURL:  "https://civic.example/entrar",
		CasbinModelPath:   "../../../config/rbac_model.conf",
		RateLimitRequests: 1000,
		RateLimitWindow:   time.Minute,
	}
}

// NewTestServer builds the container, seeds policies and starts an HTTP server.
func NewTestServer(t *testing.T, mutate ...func(*config.Config)) *TestServer {
	t.Helper()

	cfg := testConfig()
	for _, m := range mutate {
		m(cfg)
	}

	gormCfg := database.Config("")
	gormCfg.Logger = logger.Default.LogMode(logger.Silent)
	db, err := gorm.Open(sqlite.Open(":memory:"), gormCfg)
	require.NoError(t, err)
	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)

	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})

	gw := mocks.NewMockDeliveryGateway()
	clock := &Clock{now: time.Now()}
	c, err := app.Build(cfg, zap.NewNop(), app.Infra{DB: db, Redis: rdb, Gateway: gw, Now: clock.Now})
	require.NoError(t, err)
	require.NoError(t, c.SeedPolicies())

	srv := httptest.NewServer(c.Router())
	t.Cleanup(func() {
		srv.Close()
		_ = c.Close()
	})

	return &TestServer{
		Server:    srv,
		Container: c,
		Gateway:   gw,
		Redis:     mr,
		Clock:     clock,
		Client:    &http.Client{Timeout: 10 * time.Second},
	}
}

// Response is a decoded API reply.
type Response struct {
	Status int
	Header http.Header
	Data   map[string]any
	Error  map[string]any
}

// Code returns the error code of a failed reply.
func (r Response) Code() string {
	if r.Error == nil {
		return ""
	}
	code, _ := r.Error["code"].(string)
	return code
}

// Do sends a JSON request with an optional bearer token.
func (s *TestServer) Do(t *testing.T, method, path string, body any, token string) Response {
	t.Helper()

	var rd io.Reader
	if body != nil {
		b, err := json.Marshal(body)
		require.NoError(t, err)
		rd = bytes.NewReader(b)
	}
	req, err := http.NewRequest(method, s.Server.URL+path, rd)
	require.NoError(t, err)
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	resp, err := s.Client.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()

	var envelope struct {
		Data  map[string]any `json:"data"`
		Error map[string]any `json:"error"`
	}
	raw, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	if len(raw) > 0 {
		require.NoError(t, json.Unmarshal(raw, &envelope), "body: %s", raw)
	}
	return Response{Status: resp.StatusCode, Header: resp.Header, Data: envelope.Data, Error: envelope.Error}
}

// LastCode returns the OTP code of the most recent delivery.
func (s *TestServer) LastCode(t *testing.T) string {
	t.Helper()
	d, ok := s.Gateway.Last()
	require.True(t, ok, "no OTP delivered")
	return d.Code
}
