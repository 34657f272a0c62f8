package app

import (
	"context"
	"fmt"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/you/civicauth/domain"
	"github.com/you/civicauth/internal/config"
	httpx "github.com/you/civicauth/internal/http"
	"github.com/you/civicauth/internal/http/handlers"
	"github.com/you/civicauth/internal/http/middleware"
	"github.com/you/civicauth/internal/infrastructure/audit"
	"github.com/you/civicauth/internal/infrastructure/auth"
	"github.com/you/civicauth/internal/infrastructure/database"
	"github.com/you/civicauth/internal/infrastructure/notifications"
	"github.com/you/civicauth/internal/infrastructure/repositories"
	applog "github.com/you/civicauth/internal/logger"
	"github.com/you/civicauth/internal/metrics"
	"github.com/you/civicauth/internal/services"
)

// Infra carries connections opened outside the container. Gateway, when
// set, replaces the configured delivery channel. Now, when set, is the OTP
// session clock.
type Infra struct {
	DB      *gorm.DB
	Redis   redis.UniversalClient
	Gateway domain.DeliveryGateway
	Now     func() time.Time
}

// Container holds all dependencies
type Container struct {
	// Config
	Config  *config.Config
	Logger  *zap.Logger
	Metrics *metrics.Metrics

	// Infrastructure
	DB     *gorm.DB
	Redis  redis.UniversalClient
	Casbin *auth.CasbinService
	kafka  *audit.KafkaPublisher

	// Repositories
	UserRepo    domain.UserRepository
	SessionRepo domain.SessionRepository
	OTPStore    domain.OTPSessionStore

	// Services
	Gateway    domain.DeliveryGateway
	Audit      domain.AuditLogger
	TokenSvc   domain.TokenService
	Flow       *services.FlowService
	Issuer     *services.SessionIssuerImpl
	MagicLinks *services.MagicLinkResolverImpl
	AuthSvc    *services.AuthServiceImpl
	PolicySvc  domain.PolicyService
}

// NewContainer opens Postgres and Redis from cfg and wires everything on top.
func NewContainer(ctx context.Context, cfg *config.Config, logger *zap.Logger) (*Container, error) {
	db, err := database.Open(cfg.DSN, cfg.TablePrefix)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	rdb := database.NewRedis(cfg.RedisAddr, cfg.RedisPassword, cfg.RedisDB)
	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := rdb.Ping(pingCtx); err != nil {
		closeDB(db)
		return nil, err
	}

	c, err := Build(cfg, logger, Infra{DB: db, Redis: rdb.Client})
	if err != nil {
		closeDB(db)
		_ = rdb.Close()
		return nil, err
	}
	return c, nil
}

// Build wires the container over already opened connections.
func Build(cfg *config.Config, logger *zap.Logger, infra Infra) (*Container, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	c := &Container{
		Config:  cfg,
		Logger:  logger,
		Metrics: metrics.New(),
		DB:      infra.DB,
		Redis:   infra.Redis,
	}

	if err := database.AutoMigrate(c.DB); err != nil {
		return nil, err
	}
	cas, err := auth.NewCasbinService(c.DB, cfg.CasbinModelPath)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize casbin: %w", err)
	}
	c.Casbin = cas

	c.initRepositories(infra.Now)
	c.initAudit()
	c.initGateway(infra.Gateway)
	c.initServices()
	return c, nil
}

func (c *Container) initRepositories(now func() time.Time) {
	c.UserRepo = repositories.NewUserRepository(c.DB)
	c.SessionRepo = repositories.NewSessionRepository(c.Redis, c.Config.RefreshTTL)

	hasher := auth.NewCodeHasher(c.Config.OTPHashCost)
	otpCfg := repositories.OTPConfig{
		Length:      c.Config.OTPLength,
		TTL:         c.Config.OTPTTL,
		Cooldown:    c.Config.OTPCooldown,
		MaxAttempts: c.Config.OTPMaxAttempts,
		Retention:   c.Config.OTPRetention,
		Now:         now,
	}
	switch c.Config.OTPStore {
	case config.StoreMemory:
		c.OTPStore = repositories.NewMemoryOTPStore(hasher, otpCfg)
	default:
		c.OTPStore = repositories.NewRedisOTPStore(c.Redis, hasher, otpCfg)
	}
	c.Logger.Info("otp store ready", zap.String("backend", c.Config.OTPStore))
}

func (c *Container) initAudit() {
	sinks := []domain.AuditLogger{audit.NewZapLogger(c.Logger)}
	if len(c.Config.KafkaBrokers) > 0 {
		c.kafka = audit.NewKafkaPublisher(c.Config.KafkaBrokers, c.Config.KafkaTopic, c.Logger)
		sinks = append(sinks, c.kafka)
		c.Logger.Info("audit events published to kafka",
			zap.Strings("brokers", c.Config.KafkaBrokers), zap.String("topic", c.Config.KafkaTopic))
	}
	c.Audit = audit.NewMultiLogger(sinks...)
}

func (c *Container) initGateway(override domain.DeliveryGateway) {
	switch {
	case override != nil:
		c.Gateway = override
	case c.Config.TwilioChannel == config.ChannelLog:
		c.Gateway = notifications.NewLogGateway(c.Logger)
	default:
		c.Gateway = notifications.NewTwilioGateway(
			c.Config.TwilioSID,
			c.Config.TwilioToken,
			c.Config.TwilioFrom,
			c.Config.TwilioChannel,
			c.Logger,
		)
	}
	c.Logger.Info("delivery gateway ready", zap.String("channel", c.Gateway.Channel()))
}

func (c *Container) initServices() {
	cfg := c.Config
	c.TokenSvc = auth.NewJWTService(cfg.JWTSecret, cfg.JWTIssuer, cfg.AccessTTL, cfg.RefreshTTL)
	c.PolicySvc = services.NewPolicyService(c.Casbin.E)

	c.Issuer = services.NewSessionIssuer(c.OTPStore, c.UserRepo, c.SessionRepo, c.TokenSvc,
		c.Audit, c.Metrics, applog.WithComponent(c.Logger, "issuer"), cfg.AccessTTL, cfg.RefreshTTL)
	c.Flow = services.NewFlowService(c.OTPStore, c.Gateway, c.Issuer, c.UserRepo, c.Audit,
		c.Metrics, applog.WithComponent(c.Logger, "flow"), services.FlowConfig{
			MagicLinkBaseURL: cfg.MagicLinkBaseURL,
		})
	c.MagicLinks = services.NewMagicLinkResolver(c.OTPStore, c.Audit, c.Metrics, applog.WithComponent(c.Logger, "magic_link"))
	c.AuthSvc = services.NewAuthService(c.UserRepo, c.SessionRepo, c.TokenSvc, c.Audit,
		applog.WithComponent(c.Logger, "auth"), cfg.AccessTTL)
}

// SeedPolicies installs the default route policies into an empty table.
func (c *Container) SeedPolicies() error {
	seeded, err := c.PolicySvc.SeedDefaults()
	if err != nil {
		return fmt.Errorf("failed to seed policies: %w", err)
	}
	if seeded {
		c.Logger.Info("casbin: seeded default policies", zap.Int("count", len(services.DefaultPolicies)))
	}
	return nil
}

// Router builds the HTTP handler for the container.
func (c *Container) Router() *gin.Engine {
	gin.SetMode(c.Config.GinMode)
	return httpx.BuildRouter(httpx.RouterDeps{
		Auth:    handlers.NewAuthHandlers(c.Flow, c.MagicLinks, c.AuthSvc),
		Policy:  handlers.NewPolicyHandlers(c.PolicySvc),
		JWT:     middleware.NewAuthMW(c.TokenSvc, c.SessionRepo),
		Casbin:  middleware.NewCasbinMW(c.PolicySvc, c.Logger),
		Limiter: middleware.NewRedisLimiter(c.Redis, c.Config.RateLimitRequests, c.Config.RateLimitWindow),
		Metrics: c.Metrics,
		Logger:  c.Logger,
	})
}

// Sweeper returns the background cleanup loop for the container's stores.
func (c *Container) Sweeper() *Sweeper {
	return NewSweeper(c.OTPStore, c.SessionRepo, c.Config.SweepInterval, c.Metrics, c.Logger)
}

// Close closes all connections
func (c *Container) Close() error {
	if c.kafka != nil {
		if err := c.kafka.Close(); err != nil {
			c.Logger.Warn("failed to close kafka writer", zap.Error(err))
		}
	}
	if c.Redis != nil {
		_ = c.Redis.Close()
	}
	if c.DB != nil {
		sqlDB, err := c.DB.DB()
		if err != nil {
			return err
		}
		return sqlDB.Close()
	}
	return nil
}

func closeDB(db *gorm.DB) {
	if sqlDB, err := db.DB(); err == nil {
		_ = sqlDB.Close()
	}
}
