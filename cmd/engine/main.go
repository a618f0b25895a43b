package main

import (
	"context"
	"fmt"
	"os/signal"
	"syscall"
	"time"

	"payment_scheduler/internal/app"
	"payment_scheduler/internal/domain/mail"
	domainTelegram "payment_scheduler/internal/domain/telegram"
	"payment_scheduler/internal/infra/chain"
	"payment_scheduler/internal/infra/config"
	idb "payment_scheduler/internal/infra/database"
	"payment_scheduler/internal/infra/httpapi"
	"payment_scheduler/internal/infra/lease"
	"payment_scheduler/internal/infra/logger"
	imail "payment_scheduler/internal/infra/mail"
	"payment_scheduler/internal/infra/scheduler"
	"payment_scheduler/internal/infra/telegram"
	"payment_scheduler/internal/infra/vault"

	"github.com/sirupsen/logrus"
	"gopkg.in/telebot.v3"
)

func main() {
	fmt.Println("Payment scheduler starting...")

	cfg, err := config.Load()
	if err != nil {
		logrus.Fatalf("Could not load application configuration: %v", err)
	}

	log := logger.Init(cfg)
	mainLogger := logger.Component("main")
	mainLogger.WithFields(logrus.Fields{
		"log_level":   cfg.LogLevel,
		"environment": cfg.Environment,
		"http_addr":   cfg.HTTPAddr,
	}).Info("Configuration loaded")

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// Initialize Database Connection
	db, err := idb.NewPostgresConnection(cfg.DatabaseURL)
	if err != nil {
		mainLogger.WithError(err).Fatal("Could not connect to database")
	}
	defer db.Close()
	if err := idb.EnsureSchema(ctx, db); err != nil {
		mainLogger.WithError(err).Fatal("Could not apply database schema")
	}
	mainLogger.Info("Database connection established successfully.")

	// Initialize Repositories
	paymentRepo := idb.NewPostgresPaymentRepository(db)
	ownerRepo := idb.NewPostgresOwnerRepository(db)
	historyRepo := idb.NewPostgresHistoryRepository(db)

	keyVault, err := vault.New(cfg.SigningKeySecret)
	if err != nil {
		mainLogger.WithError(err).Fatal("Could not initialize signing key vault")
	}

	dialCtx, cancelDial := context.WithTimeout(ctx, cfg.RPCTimeout)
	chainClient, err := chain.Dial(dialCtx, cfg.RPCURL, logger.Component("chain"))
	cancelDial()
	if err != nil {
		mainLogger.WithError(err).Fatal("Could not connect to chain RPC")
	}
	defer chainClient.Close()

	var locker app.Locker
	if cfg.RedisAddr != "" {
		redisLocker := lease.NewRedisLocker(cfg.RedisAddr, cfg.RedisPassword, 0, logger.Component("lease"))
		if err := redisLocker.Ping(ctx); err != nil {
			mainLogger.WithError(err).Fatal("Could not reach Redis for payment leases")
		}
		defer redisLocker.Close()
		locker = redisLocker
		mainLogger.Info("Using Redis payment leases.")
	} else {
		locker = lease.NewMemoryLocker()
		mainLogger.Warn("REDIS_ADDR is not set, payment leases are process-local.")
	}

	var mailer mail.Mailer
	if cfg.SMTPHost != "" {
		mailer = imail.NewSMTPMailer(cfg.SMTPHost, cfg.SMTPPort, cfg.SMTPUsername, cfg.SMTPPassword, cfg.SMTPFrom)
		mainLogger.Info("Email receipts enabled.")
	}

	var bot *telebot.Bot
	var messenger domainTelegram.Messenger
	if cfg.TelegramToken != "" {
		pref := telebot.Settings{
			Token:  cfg.TelegramToken,
			Poller: &telebot.LongPoller{Timeout: 10 * time.Second},
			OnError: func(err error, c telebot.Context) { // Global error handler
				entry := logger.Component("telebot").WithError(err)
				if c != nil && c.Sender() != nil && c.Chat() != nil {
					entry = entry.WithFields(logrus.Fields{"sender_id": c.Sender().ID, "chat_id": c.Chat().ID})
				}
				entry.Error("Telegram handler error")
			},
		}
		bot, err = telebot.NewBot(pref)
		if err != nil {
			mainLogger.WithError(err).Fatal("Could not create Telegram bot")
		}
		messenger = telegram.NewTelebotAdapter(bot)
	}

	// Initialize services
	clock := app.SystemClock{}
	engineCfg := app.EngineConfig{
		DefaultFeeEstimate:  cfg.DefaultFeeEstimate,
		GasMarginPercent:    app.DefaultEngineConfig().GasMarginPercent,
		RPCTimeout:          cfg.RPCTimeout,
		ConfirmationTimeout: cfg.ConfirmationTimeout,
	}
	scheduleService := app.NewScheduleService(paymentRepo, clock, logger.Component("schedule_service"))
	engine := app.NewExecutionEngine(ownerRepo, chainClient, engineCfg, logger.Component("execution_engine"))
	ticker := app.NewTicker(
		paymentRepo,
		app.NewConditionEvaluator(ownerRepo, chainClient, cfg.RPCTimeout),
		engine,
		app.NewStateUpdater(paymentRepo, clock, logger.Component("state_updater")),
		app.NewSigningKeyService(ownerRepo, keyVault),
		app.NewReceiptService(ownerRepo, historyRepo, messenger, mailer, logger.Component("receipts")),
		locker,
		clock,
		cfg.LeaseTTL,
		logger.Component("ticker"),
	)

	paymentScheduler := scheduler.NewPaymentScheduler(
		ticker,
		logger.Component("scheduler"),
		cfg.CronSpecGeneralTick,
		cfg.CronSpecConditionalTick,
		cfg.TickTimeout,
	)
	if err := paymentScheduler.Start(); err != nil {
		mainLogger.WithError(err).Fatal("Could not start payment scheduler")
	}

	if bot != nil {
		adminService := app.NewAdminService(scheduleService, ticker, engine, cfg.AdminTelegramID)
		botLogger := logger.Component("telegram")
		telegram.RegisterBotCommands(bot, cfg.AdminTelegramID, botLogger)
		telegram.RegisterAdminHandlers(ctx, bot, adminService, cfg.AdminTelegramID, cfg.TickTimeout, botLogger)
		go bot.Start()
		mainLogger.Info("Telegram bot started.")
	}

	handler := httpapi.NewHandler(scheduleService, ticker, engine, cfg.TickTimeout, logger.Component("http"))
	server := httpapi.NewApp(handler)
	go func() {
		if err := server.Listen(cfg.HTTPAddr); err != nil {
			mainLogger.WithError(err).Error("HTTP server stopped")
			stop()
		}
	}()

	mainLogger.Info("Application setup complete.")
	<-ctx.Done()

	mainLogger.Info("Shutting down application...")
	if err := server.ShutdownWithTimeout(10 * time.Second); err != nil {
		mainLogger.WithError(err).Warn("HTTP server shutdown failed")
	}
	if bot != nil {
		bot.Stop()
	}
	paymentScheduler.Stop()
	log.Info("Application shut down gracefully.")
}
