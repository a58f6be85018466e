package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/go-redis/redis/v8"
	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"github.com/stakevault/backend/internal/approval"
	"github.com/stakevault/backend/internal/approval/telegram"
	"github.com/stakevault/backend/internal/config"
	"github.com/stakevault/backend/internal/database"
	"github.com/stakevault/backend/internal/handlers"
	"github.com/stakevault/backend/internal/jobs"
	"github.com/stakevault/backend/internal/logger"
	"github.com/stakevault/backend/internal/middleware"
	"github.com/stakevault/backend/internal/queue"
	"github.com/stakevault/backend/internal/routes"
	"github.com/stakevault/backend/internal/services/approvals"
	"github.com/stakevault/backend/internal/services/commission"
	"github.com/stakevault/backend/internal/services/investment"
	"github.com/stakevault/backend/internal/services/users"
	"github.com/stakevault/backend/internal/services/withdrawal"
	"github.com/stakevault/backend/internal/store"
	"github.com/stakevault/backend/internal/utils"
	"github.com/stakevault/backend/internal/validation"
)

func main() {
	cfg := config.LoadConfig()
	log := logger.New(cfg.LogLevel, cfg.Environment)
	if cfg.IsProduction() {
		gin.SetMode(gin.ReleaseMode)
	}

	schedule, rules, err := config.LoadRates(cfg.RatesFile)
	if err != nil {
		log.Fatal().Err(err).Str("path", cfg.RatesFile).Msg("Failed to load rate table")
	}

	// Initialize database
	db, err := database.InitDB(cfg.Database)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to initialize database")
	}
	defer database.Close(db)
	if err := database.Migrate(db); err != nil {
		log.Fatal().Err(err).Msg("Failed to run migrations")
	}
	st := store.NewGormStore(db)

	// Initialize Redis client
	redisOpts, err := redis.ParseURL(cfg.Redis.URL)
	if err != nil {
		log.Fatal().Err(err).Msg("Invalid REDIS_URL")
	}
	if cfg.Redis.Password != "" {
		redisOpts.Password = cfg.Redis.Password
	}
	if cfg.Redis.DB != 0 {
		redisOpts.DB = cfg.Redis.DB
	}
	redisClient := redis.NewClient(redisOpts)
	defer redisClient.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	if _, err := redisClient.Ping(ctx).Result(); err != nil {
		log.Fatal().Err(err).Msg("Failed to connect to Redis")
	}
	jobQueue := queue.NewRedisQueue(redisClient, log)

	// Approval channel. Actions go through the queue so a Telegram outage
	// does not block the request that created them.
	var (
		bot      *telegram.Bot
		botAPI   *tgbotapi.BotAPI
		notifier approval.Notifier = approval.Nop
		texts    jobs.TextSender
		reports  queue.Enqueuer
	)
	if cfg.Telegram.Enabled() {
		botAPI, err = tgbotapi.NewBotAPI(cfg.Telegram.Token)
		if err != nil {
			log.Fatal().Err(err).Msg("Failed to connect to Telegram")
		}
		botAPI.Debug = cfg.Telegram.Debug
		bot = telegram.NewBot(botAPI, cfg.Telegram.AdminChatIDs, log)
		notifier = approval.NewQueuedNotifier(jobQueue)
		texts = bot
		reports = jobQueue
		log.Info().Str("bot", botAPI.Self.UserName).Int("admins", len(cfg.Telegram.AdminChatIDs)).Msg("Telegram approvals enabled")
	} else {
		log.Warn().Msg("Telegram is not configured, approval actions will only be available over the admin API")
	}

	// Initialize services
	addresses := validation.NewValidator()
	engine := commission.NewEngine(st, rules, log)
	ledger := withdrawal.NewLedger(st, engine, addresses, notifier, log)
	investments := investment.NewService(st, schedule, engine, ledger, addresses, notifier, log)
	accounts := users.NewService(st, cfg.FrontendURL, log)
	resolver := approvals.NewService(investments, ledger, log)

	// Background work
	processor := queue.NewProcessor(jobQueue, cfg.Jobs.Workers, log)
	if bot != nil {
		bot.SetResolver(resolver)
		jobs.RegisterHandlers(processor, bot, texts)

		updates := botAPI.GetUpdatesChan(tgbotapi.UpdateConfig{Timeout: 60})
		go bot.Run(ctx, updates)
	}
	processor.Start(ctx)

	profits := jobs.NewProfitSummaryJob(st, reports, log)
	scheduler := jobs.NewScheduler(investments, profits, schedule.Location(), cfg.Jobs.ReportAt, log)
	if err := scheduler.Start(ctx); err != nil {
		log.Fatal().Err(err).Msg("Failed to start scheduler")
	}

	// HTTP
	limiter := middleware.NewRateLimiter(cfg.RateLimit.RequestsPerSecond, cfg.RateLimit.Burst)
	router := routes.SetupRouter(routes.Handlers{
		Investments: handlers.NewInvestmentHandler(investments),
		Referrals:   handlers.NewReferralHandler(engine, ledger),
		Withdrawals: handlers.NewWithdrawalHandler(ledger),
		Users:       handlers.NewUserHandler(accounts),
		Admin:       handlers.NewAdminHandler(resolver, jobQueue),
	}, routes.Options{
		CORSOrigins: cfg.CORSOrigins,
		HSTS:        cfg.IsProduction(),
		Tokens:      utils.NewTokenManager(cfg.JWT.Secret),
		RateLimiter: limiter,
		Log:         log,
	})
	srv := startServer(router, cfg.Server, log)

	// Wait for interrupt signal to gracefully shut down the server
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	log.Info().Msg("Shutting down server...")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("Server forced to shutdown")
	}

	scheduler.Stop()
	if botAPI != nil {
		botAPI.StopReceivingUpdates()
	}
	cancel()
	processor.Stop()
	limiter.Stop()

	log.Info().Msg("Server exiting")
}

// startServer starts the HTTP server
func startServer(router *gin.Engine, cfg config.ServerConfig, log *logger.Logger) *http.Server {
	srv := &http.Server{
		Addr:         ":" + cfg.Port,
		Handler:      router,
		ReadTimeout:  time.Duration(cfg.ReadTimeout) * time.Second,
		WriteTimeout: time.Duration(cfg.WriteTimeout) * time.Second,
	}

	go func() {
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal().Err(err).Msg("Failed to start server")
		}
	}()

	log.Info().Str("port", cfg.Port).Msg("Server started")
	return srv
}
