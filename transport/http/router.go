package http

import (
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"
	"github.com/wubuku/UniAuth/internal/ratelimit"
	"github.com/wubuku/UniAuth/service"
)

// SetupRouter sets up the Gin router
func SetupRouter(
	authService *service.AuthService,
	accountService *service.AccountService,
	limiter *ratelimit.Limiter,
	logger zerolog.Logger,
) *gin.Engine {
	router := gin.New()
	router.Use(gin.Recovery(), RequestLogger(logger), MetricsMiddleware())

	handlers := NewAuthHandlers(authService, accountService)

	router.GET("/healthz", handlers.Health)
	router.GET("/metrics", gin.WrapH(promhttp.Handler()))

	auth := router.Group("/api/auth")
	auth.Use(RateLimitMiddleware(limiter))
	{
		auth.POST("/register", handlers.Register)
		auth.POST("/login", handlers.Login)
		auth.POST("/refresh", handlers.Refresh)
		auth.POST("/logout", handlers.Logout)
		auth.GET("/me", AuthMiddleware(authService), handlers.Me)
	}

	web3 := auth.Group("/web3")
	{
		web3.GET("/nonce/:address", handlers.Nonce)
		web3.DELETE("/nonce/:address", handlers.InvalidateNonce)
		web3.POST("/verify", handlers.Verify)
		web3.GET("/status/:address", handlers.Status)
	}

	// Protected wallet routes
	protected := web3.Group("")
	protected.Use(AuthMiddleware(authService))
	{
		protected.POST("/bind", handlers.Bind)
		protected.GET("/wallets", handlers.Wallets)
	}

	return router
}
