package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"hostelpay/internal/api"
	"hostelpay/internal/bot"
	"hostelpay/internal/config"
	"hostelpay/internal/database"
	"hostelpay/internal/domain"
	"hostelpay/internal/events"
	"hostelpay/internal/gateway"
	"hostelpay/internal/google"
	"hostelpay/internal/logging"
	"hostelpay/internal/metrics"
	"hostelpay/internal/models"
	"hostelpay/internal/receipt"
	"hostelpay/internal/repository"
	"hostelpay/internal/service"
	"hostelpay/internal/worker"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"gopkg.in/yaml.v2"
)

func main() {
	if err := run(); err != nil {
		log.Fatalf("Fatal error: %v", err)
	}
}

func run() error {
	cfg, logger, closer, err := loadConfigAndLogger()
	if err != nil {
		return err
	}
	if closer != nil {
		defer (func() { _ = closer.Close() })()
	}

	rooms, err := loadRooms(cfg, &logger)
	if err != nil {
		return err
	}

	db, err := database.NewDB(cfg.Database.Path, &logger)
	if err != nil {
		logger.Error().Err(err).Str("db_path", cfg.Database.Path).Msg("init database")
		return err
	}
	defer db.Close()
	db.SetRooms(rooms)

	if !cfg.API.Enabled {
		logger.Warn().Msg("API is disabled in config, but starting API application. Check your config.")
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	redisClient := initRedis(ctx, cfg, &logger)
	if redisClient != nil {
		defer func() { _ = repository.Close(redisClient) }()
	}
	attempts := initAttemptStore(redisClient, &logger)

	bus := events.NewEventBus()
	if kafka := initKafka(cfg, &logger); kafka != nil {
		kafka.Attach(bus)
		defer kafka.Close()
	}
	tgBot := initTelegram(cfg, &logger, bus)
	if cfg.Email.Enabled {
		receipt.NewMailer(cfg.Email, cfg.Paystack.Currency, logging.Component(&logger, "receipt")).Attach(bus)
	}

	paystack := gateway.NewClient(
		cfg.Paystack.BaseURL,
		cfg.Paystack.SecretKey,
		cfg.Paystack.Currency,
		cfg.Paystack.CallbackURL,
		time.Duration(cfg.Paystack.Timeout)*time.Second,
	)

	payments := service.NewPaymentService(db, paystack, attempts, bus, cfg.Payments, logging.Component(&logger, "payments"))

	ledger := initLedgerSheet(ctx, cfg, &logger)
	if cfg.Payments.Reconcile.Enabled {
		w := initWorker(cfg, db, payments, ledger, redisClient, &logger)
		payments.UseTaskQueue(w)
		go w.Start(ctx)
	}

	if tgBot != nil {
		adminBot := bot.NewBot(tgBot, payments, cfg.Telegram.AdminChatIDs, cfg.Paystack.Currency, logging.Component(&logger, "admin-bot"))
		go adminBot.Start(ctx)
	}

	if cfg.Backup.Enabled {
		go database.NewBackupService(db, cfg.Backup, logging.Component(&logger, "backup")).Start(ctx)
	}

	grpcServer, err := api.NewGRPCServer(&cfg.API, payments, &logger)
	if err != nil {
		logger.Error().Err(err).Msg("create grpc server")
		return err
	}

	httpServer := api.NewHTTPServer(&cfg.API, payments, &logger, readinessChecks(db, redisClient)...)

	startMetrics(ctx, cfg, &logger)

	return startServers(ctx, grpcServer, httpServer, cfg, &logger)
}

func loadConfigAndLogger() (*config.Config, zerolog.Logger, io.Closer, error) {
	configPath := os.Getenv("CONFIG_PATH")
	if configPath == "" {
		configPath = "configs/config.yaml"
	}

	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, zerolog.Logger{}, nil, fmt.Errorf("load config: %w", err)
	}

	baseLogger, closer, err := logging.New(cfg.Logging, cfg.App)
	if err != nil {
		return nil, zerolog.Logger{}, nil, fmt.Errorf("init logger: %w", err)
	}
	logger := baseLogger.With().Str("component", "api-main").Logger()

	return cfg, logger, closer, nil
}

// loadRooms merges the room catalog file into the rooms of the main config.
// A missing catalog file is not an error.
func loadRooms(cfg *config.Config, logger *zerolog.Logger) ([]models.Room, error) {
	roomsPath := os.Getenv("ROOMS_PATH")
	if roomsPath == "" {
		roomsPath = "configs/rooms.yaml"
	}
	data, err := os.ReadFile(roomsPath)
	if errors.Is(err, os.ErrNotExist) {
		logger.Info().Str("rooms_path", roomsPath).Int("rooms", len(cfg.Rooms)).Msg("no room catalog file")
		return cfg.Rooms, nil
	}
	if err != nil {
		logger.Error().Err(err).Str("rooms_path", roomsPath).Msg("read rooms")
		return nil, err
	}

	var catalog struct {
		Rooms []models.Room `yaml:"rooms"`
	}
	if err := yaml.Unmarshal(data, &catalog); err != nil {
		logger.Error().Err(err).Str("rooms_path", roomsPath).Msg("parse rooms")
		return nil, err
	}

	rooms := append(append([]models.Room{}, cfg.Rooms...), catalog.Rooms...)
	if err := config.ValidateRooms(rooms); err != nil {
		return nil, fmt.Errorf("room catalog %s: %w", roomsPath, err)
	}
	logger.Info().Str("rooms_path", roomsPath).Int("rooms", len(rooms)).Msg("room catalog loaded")
	return rooms, nil
}

func initRedis(ctx context.Context, cfg *config.Config, logger *zerolog.Logger) *redis.Client {
	if cfg.Redis.Address == "" {
		return nil
	}

	redisClient := repository.NewRedisClient(cfg.Redis)
	pingCtx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()
	if err := repository.Ping(pingCtx, redisClient); err != nil {
		logger.Warn().Err(err).Msg("redis connection failed, continuing without redis")
		_ = redisClient.Close()
		return nil
	}

	logger.Info().Str("addr", cfg.Redis.Address).Msg("redis connected")
	return redisClient
}

func initAttemptStore(redisClient *redis.Client, logger *zerolog.Logger) domain.AttemptStore {
	memory := repository.NewMemoryAttemptStore()
	if redisClient == nil {
		logger.Warn().Msg("attempt locks are process-local, run a single replica")
		return memory
	}
	return repository.NewFailoverAttemptStore(
		repository.NewRedisAttemptStore(redisClient),
		memory,
		logging.Component(logger, "attempt-store"),
	)
}

func initKafka(cfg *config.Config, logger *zerolog.Logger) *events.KafkaBridge {
	writer := events.NewKafkaWriter(cfg.Kafka.Brokers, cfg.Kafka.Topic)
	if writer == nil {
		return nil
	}
	logger.Info().Strs("brokers", cfg.Kafka.Brokers).Str("topic", cfg.Kafka.Topic).Msg("kafka event bridge enabled")
	return events.NewKafkaBridge(writer, logging.Component(logger, "kafka"))
}

// initTelegram attaches payment alerts to bus. The returned client also
// serves the admin commands.
func initTelegram(cfg *config.Config, logger *zerolog.Logger, bus *events.EventBus) *tgbotapi.BotAPI {
	if cfg.Telegram.BotToken == "" || len(cfg.Telegram.AdminChatIDs) == 0 {
		return nil
	}
	tg, err := tgbotapi.NewBotAPI(cfg.Telegram.BotToken)
	if err != nil {
		logger.Warn().Err(err).Msg("telegram init failed, continuing without admin alerts")
		return nil
	}
	tg.Debug = cfg.Telegram.Debug

	service.NewTelegramService(tg, cfg.Telegram.AdminChatIDs, logging.Component(logger, "telegram")).Attach(bus)
	logger.Info().Str("bot", tg.Self.UserName).Msg("telegram admin alerts enabled")
	return tg
}

func initLedgerSheet(ctx context.Context, cfg *config.Config, logger *zerolog.Logger) *google.LedgerSheet {
	if cfg.Google.CredentialsFile == "" || cfg.Google.LedgerSpreadsheetID == "" {
		return nil
	}

	sheet, err := google.NewLedgerSheet(ctx, cfg.Google.CredentialsFile, cfg.Google.LedgerSpreadsheetID)
	if err != nil {
		logger.Warn().Err(err).Msg("google sheets init failed, continuing without ledger sheet")
		return nil
	}
	if err := sheet.TestConnection(ctx); err != nil {
		if email, emailErr := google.GetServiceAccountEmail(cfg.Google.CredentialsFile); emailErr == nil {
			logger.Warn().Err(err).Str("share_with", email).Msg("ledger sheet not reachable, share it with the service account")
		} else {
			logger.Warn().Err(err).Msg("ledger sheet not reachable")
		}
		return nil
	}

	go sheet.StartCacheRefresh(ctx)
	logger.Info().Msg("google sheets connected")
	return sheet
}

func initWorker(
	cfg *config.Config,
	db *database.DB,
	payments *service.PaymentService,
	sheet *google.LedgerSheet,
	redisClient *redis.Client,
	logger *zerolog.Logger,
) *worker.PaymentWorker {
	var ledger domain.LedgerWriter
	if sheet != nil {
		ledger = sheet
	}

	rc := cfg.Payments.Reconcile
	w := worker.NewPaymentWorker(
		db,
		payments,
		ledger,
		db,
		redisClient,
		worker.RetryPolicyFrom(rc),
		logging.Component(logger, "worker"),
	)
	w.SetPollInterval(rc.PollInterval)
	return w
}

func readinessChecks(db *database.DB, redisClient *redis.Client) []api.ReadinessCheck {
	checks := []api.ReadinessCheck{{Name: "database", Check: db.PingContext}}
	if redisClient != nil {
		checks = append(checks, api.ReadinessCheck{
			Name:  "redis",
			Check: func(ctx context.Context) error { return repository.Ping(ctx, redisClient) },
		})
	}
	return checks
}

func startMetrics(ctx context.Context, cfg *config.Config, logger *zerolog.Logger) {
	if !cfg.Monitoring.PrometheusEnabled {
		return
	}

	metrics.Register()
	port := cfg.Monitoring.PrometheusPort
	if port == 0 {
		port = 9090
	}
	go startMetricsServer(ctx, port, logger)
}

func startServers(
	ctx context.Context,
	grpcServer *api.GRPCServer,
	httpServer *api.HTTPServer,
	cfg *config.Config,
	logger *zerolog.Logger,
) error {
	go func() {
		if !cfg.API.GRPC.Enabled {
			return
		}
		if err := grpcServer.Serve(); err != nil {
			logger.Error().Err(err).Msg("grpc server stopped")
		}
	}()

	go func() {
		if !cfg.API.HTTP.Enabled {
			return
		}
		if err := httpServer.Start(); err != nil {
			logger.Error().Err(err).Msg("http server stopped")
		}
	}()

	logger.Info().Str("grpc_addr", grpcServer.Addr()).Int("http_port", cfg.API.HTTP.Port).Msg("API server started")

	<-ctx.Done()
	logger.Info().Msg("shutdown signal received")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	grpcServer.Shutdown(shutdownCtx)
	_ = httpServer.Shutdown(shutdownCtx)

	logger.Info().Msg("API server stopped")
	return nil
}

func startMetricsServer(ctx context.Context, port int, logger *zerolog.Logger) {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())

	srv := &http.Server{Addr: fmt.Sprintf(":%d", port), Handler: mux, ReadHeaderTimeout: 5 * time.Second}
	go func() {
		<-ctx.Done()
		ctxShutdown, cancel := context.WithTimeout(context.Background(), 3*time.Second)
		defer cancel()
		_ = srv.Shutdown(ctxShutdown)
	}()
	if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		logger.Error().Err(err).Msg("metrics server error")
	}
}
