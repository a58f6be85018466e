package routes

import (
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"

	"github.com/stakevault/backend/internal/handlers"
	"github.com/stakevault/backend/internal/logger"
	"github.com/stakevault/backend/internal/middleware"
)

// Handlers groups every HTTP handler the router mounts
type Handlers struct {
	Investments *handlers.InvestmentHandler
	Referrals   *handlers.ReferralHandler
	Withdrawals *handlers.WithdrawalHandler
	Users       *handlers.UserHandler
	Admin       *handlers.AdminHandler
}

// Options configures the router's middleware
type Options struct {
	CORSOrigins []string
	HSTS        bool
	Tokens      middleware.TokenValidator
	RateLimiter *middleware.RateLimiter
	Log         *logger.Logger
}

// SetupRouter builds the gin engine with every API route
func SetupRouter(h Handlers, opts Options) *gin.Engine {
	router := gin.New()
	router.Use(gin.Recovery())
	if opts.Log != nil {
		router.Use(middleware.RequestLogger(opts.Log))
	}
	router.Use(middleware.SecureHeaders(opts.HSTS))
	if len(opts.CORSOrigins) > 0 {
		router.Use(cors.New(cors.Config{
			AllowOrigins:     opts.CORSOrigins,
			AllowMethods:     []string{"GET", "POST", "PUT", "PATCH", "DELETE", "OPTIONS"},
			AllowHeaders:     []string{"Origin", "Content-Type", "Accept", "Authorization"},
			ExposeHeaders:    []string{"Content-Length"},
			AllowCredentials: true,
			MaxAge:           12 * time.Hour,
		}))
	}
	if opts.RateLimiter != nil {
		router.Use(opts.RateLimiter.Middleware())
	}

	router.GET("/health", func(c *gin.Context) {
		c.JSON(200, gin.H{"status": "ok"})
	})

	api := router.Group("/api/v1")
	{
		api.GET("/plans", h.Investments.GetPlans)
		api.POST("/users", h.Users.Register)
	}

	auth := api.Group("")
	auth.Use(middleware.AuthMiddleware(opts.Tokens))
	{
		auth.GET("/me", h.Users.GetMe)
		auth.GET("/me/referrals", h.Users.GetReferrals)

		auth.POST("/investments", h.Investments.CreateInvestment)
		auth.GET("/investments", h.Investments.ListInvestments)
		auth.GET("/investments/:id", h.Investments.GetInvestment)
		auth.POST("/investments/:id/upgrade/amount", h.Investments.RequestAmountUpgrade)
		auth.POST("/investments/:id/upgrade/duration", h.Investments.UpgradeDuration)
		auth.POST("/investments/:id/reinvest", h.Investments.Reinvest)
		auth.POST("/investments/:id/reinvest/referral", h.Investments.ReinvestReferral)
		auth.POST("/investments/:id/withdrawals", h.Investments.Withdraw)

		auth.GET("/referrals/stats", h.Referrals.GetStats)
		auth.GET("/referrals/actions", h.Referrals.GetActions)
		auth.POST("/referrals/withdrawals", h.Referrals.Withdraw)

		auth.GET("/withdrawals", h.Withdrawals.ListWithdrawals)
		auth.GET("/withdrawals/:id", h.Withdrawals.GetWithdrawal)
	}

	admin := api.Group("/admin")
	admin.Use(middleware.AuthMiddleware(opts.Tokens), middleware.AdminMiddleware())
	{
		admin.POST("/approvals/:kind/:id", h.Admin.Decide)
		admin.GET("/queues", h.Admin.GetQueueStats)
	}

	return router
}
