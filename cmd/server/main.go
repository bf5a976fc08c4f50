package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"packtrack/internal/auth"
	"packtrack/internal/config"
	"packtrack/internal/consul"
	"packtrack/internal/database"
	"packtrack/internal/email"
	kafkapkg "packtrack/internal/kafka"
	"packtrack/internal/logger"
	"packtrack/internal/mfa"
	"packtrack/internal/notifications"
	"packtrack/internal/packs"
	"packtrack/internal/password"
	"packtrack/internal/server"
	"packtrack/internal/storage"
	"packtrack/internal/token"
	"packtrack/internal/users"

	_ "github.com/joho/godotenv/autoload"
	"github.com/redis/go-redis/v9"
)

const (
	serviceName     = "packtrack-api"
	shutdownTimeout = 10 * time.Second
	janitorInterval = time.Minute
)

func main() {
	lgr := logger.New()
	logger.SetDefault(lgr)

	cfg, err := config.Load()
	if err != nil {
		lgr.Error("Invalid configuration", "error", err)
		os.Exit(1)
	}

	lgr.Info("Starting PackTrack API...",
		"port", cfg.Port,
		"env", cfg.AppEnv,
		"mfa_store", cfg.MFAStore,
		"kafka", cfg.EnableKafka,
		"consul", cfg.EnableConsul)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	db, err := database.New(ctx, cfg.DatabaseURL, cfg.StoreTimeout)
	if err != nil {
		lgr.Error("Failed to connect to database", "error", err)
		os.Exit(1)
	}
	if err := db.Migrate(ctx); err != nil {
		lgr.Error("Failed to run migrations", "error", err)
		os.Exit(1)
	}
	lgr.Info("Connected to database")

	codes, redisClient, err := newCodeStore(ctx, cfg)
	if err != nil {
		lgr.Error("Failed to initialise MFA store", "error", err)
		os.Exit(1)
	}

	sender, producer := newCodeSender(cfg, lgr)

	images, err := storage.NewFromEnv(ctx)
	switch {
	case errors.Is(err, storage.ErrNotConfigured):
		lgr.Warn("Object storage not configured, image uploads disabled")
	case err != nil:
		lgr.Error("Failed to create storage service", "error", err)
		os.Exit(1)
	default:
		if err := images.EnsureBucketExists(ctx); err != nil {
			lgr.Error("Failed to ensure bucket exists", "error", err)
			os.Exit(1)
		}
		lgr.Info("Object storage ready")
	}

	tokens, err := token.NewManager([]byte(cfg.JWTSecret), cfg.FullTokenTTL, cfg.TempTokenTTL)
	if err != nil {
		lgr.Error("Failed to create token manager", "error", err)
		os.Exit(1)
	}

	userRepo := users.NewRepository(db)
	userService := users.NewService(userRepo, images)
	authService := auth.NewService(
		userRepo,
		password.NewHasher(cfg.BcryptCost),
		tokens,
		codes,
		sender,
		auth.NewAccessLogRepository(db),
		cfg.MFACodeTTL,
	)
	notificationService := notifications.NewService(notifications.NewRepository(db))
	packService := packs.NewService(packs.NewRepository(db), notificationService, images, cfg.PublicBaseURL)

	srv := server.New(cfg, server.Deps{
		DB:            db,
		Storage:       images,
		Auth:          authService,
		Users:         userService,
		Packs:         packService,
		Notifications: notificationService,
	}).HTTPServer()

	go func() {
		lgr.Info("HTTP server started", "addr", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			lgr.Error("HTTP server error", "error", err)
			os.Exit(1)
		}
	}()

	var registry *consul.Client
	var serviceID string
	if cfg.EnableConsul {
		registry, serviceID = register(cfg, lgr)
	}

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	lgr.Info("Shutting down PackTrack API...")

	if registry != nil {
		if err := registry.Deregister(serviceID); err != nil {
			lgr.Error("Failed to deregister from Consul", "error", err)
		}
	}

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer shutdownCancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		lgr.Error("HTTP server forced to shutdown", "error", err)
	}

	cancel()
	if producer != nil {
		producer.Close()
	}
	if redisClient != nil {
		if err := redisClient.Close(); err != nil {
			lgr.Error("Failed to close Redis client", "error", err)
		}
	}
	if err := db.Close(); err != nil {
		lgr.Error("Failed to close database", "error", err)
	}

	lgr.Info("PackTrack API stopped")
}

// newCodeStore picks the MFA backend. The Redis client is returned so it can
// be closed on shutdown; it is nil for the in-memory store.
func newCodeStore(ctx context.Context, cfg *config.Config) (mfa.Store, redis.UniversalClient, error) {
	if cfg.MFAStore == config.MFAStoreRedis {
		client := redis.NewUniversalClient(&redis.UniversalOptions{
			Addrs:    []string{cfg.RedisAddr},
			Password: cfg.RedisPassword,
			DB:       cfg.RedisDB,
		})
		if err := client.Ping(ctx).Err(); err != nil {
			client.Close()
			return nil, nil, err
		}
		slog.Info("Connected to Redis", "addr", cfg.RedisAddr)
		return mfa.NewRedisStore(client, "", cfg.MFACodeTTL), client, nil
	}

	store := mfa.NewMemoryStore(cfg.MFACodeTTL)
	store.StartJanitor(ctx, janitorInterval)
	return store, nil, nil
}

// newCodeSender queues codes through Kafka when it is enabled and reachable,
// falling back to sending them directly.
func newCodeSender(cfg *config.Config, lgr *slog.Logger) (auth.CodeSender, *kafkapkg.Producer) {
	direct := func() auth.CodeSender {
		emailConfig := email.NewConfig()
		lgr.Info("Email sender initialized", "mode", emailConfig.Mode)
		return email.NewSender(emailConfig)
	}

	if !cfg.EnableKafka {
		lgr.Info("Kafka disabled, using direct email")
		return direct(), nil
	}

	kafkaConfig, err := kafkapkg.LoadConfig()
	if err != nil {
		lgr.Warn("Failed to load Kafka config, using direct email", "error", err)
		return direct(), nil
	}
	producer, err := kafkapkg.NewProducer(kafkaConfig, lgr)
	if err != nil {
		lgr.Warn("Failed to create Kafka producer, using direct email", "error", err)
		return direct(), nil
	}

	return email.NewQueuedSender(producer, kafkaConfig.EmailEventsTopic), producer
}

// register announces the API to Consul. Failure is logged, not fatal.
func register(cfg *config.Config, lgr *slog.Logger) (*consul.Client, string) {
	client, err := consul.NewClientWithToken(cfg.ConsulAddr, cfg.ConsulToken)
	if err != nil {
		lgr.Error("Failed to create Consul client", "error", err)
		return nil, ""
	}

	svc := consul.NewServiceConfig(serviceName, cfg.Host, cfg.Port, "api", "packs", "auth")
	// A crashed instance may have left its registration behind.
	_ = client.Deregister(svc.ID)

	if err := client.Register(svc); err != nil {
		lgr.Error("Failed to register with Consul", "error", err)
		return nil, ""
	}
	lgr.Info("Registered with Consul", "serviceID", svc.ID)
	return client, svc.ID
}
