package httpx

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/you/civicauth/internal/http/handlers"
	"github.com/you/civicauth/internal/http/middleware"
	"github.com/you/civicauth/internal/metrics"
	"go.uber.org/zap"
)

// RouterDeps carries everything the router mounts.
type RouterDeps struct {
	Auth    *handlers.AuthHandlers
	Policy  *handlers.PolicyHandlers
	JWT     *middleware.AuthMW
	Casbin  *middleware.CasbinMW
	Limiter *middleware.RedisLimiter
	Metrics *metrics.Metrics
	Logger  *zap.Logger
}

func BuildRouter(d RouterDeps) *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery(), middleware.RequestID(), middleware.AccessLog(d.Logger, d.Metrics))

	r.GET("/health", func(c *gin.Context) { c.JSON(http.StatusOK, gin.H{"ok": true}) })
	if d.Metrics != nil {
		r.GET("/metrics", gin.WrapH(d.Metrics.Handler()))
	}

	// Unauthenticated flow endpoints share the per IP limit.
	auth := r.Group("/auth")
	public := auth.Group("", middleware.RateLimit(d.Limiter, d.Metrics, d.Logger))
	public.POST("/otp/request", d.Auth.RequestOTP)
	public.POST("/otp/resend", d.Auth.ResendOTP)
	public.POST("/otp/verify", d.Auth.VerifyOTP)
	public.GET("/otp/:sid", d.Auth.OTPStatus)
	public.DELETE("/otp/:sid", d.Auth.RestartOTP)
	public.POST("/magic-link/resolve", d.Auth.ResolveMagicLink)
	public.POST("/refresh", d.Auth.Refresh)

	v := auth.Group("", d.JWT.WithJWT(), d.Casbin.Enforce())
	v.GET("/me", d.Auth.Me)
	v.POST("/profile", d.Auth.CompleteProfile)
	v.POST("/logout", d.Auth.Logout)

	adm := r.Group("/admin", d.JWT.WithJWT(), d.Casbin.Enforce())
	adm.GET("/policies", d.Policy.List)
	adm.POST("/policies", d.Policy.Add)
	adm.DELETE("/policies", d.Policy.Remove)

	return r
}
