package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"packtrack/internal/config"
	"packtrack/internal/consul"
	"packtrack/internal/email"
	kafkapkg "packtrack/internal/kafka"
	"packtrack/internal/logger"

	"github.com/gin-gonic/gin"
	_ "github.com/joho/godotenv/autoload"
	"github.com/redis/go-redis/v9"
)

const serviceName = "packtrack-mailer"

func main() {
	lgr := logger.New()
	logger.SetDefault(lgr)
	lgr.Info("Starting mailer...")

	host := config.GetEnvOrDefault("MAILER_HOST", "localhost")
	port, err := strconv.Atoi(config.GetEnvOrDefault("MAILER_PORT", "8085"))
	if err != nil {
		lgr.Error("Invalid MAILER_PORT", "error", err)
		os.Exit(1)
	}
	redisAddr := config.GetEnvOrDefault("REDIS_ADDR", "localhost:6379")

	kafkaConfig, err := kafkapkg.LoadConfig()
	if err != nil {
		lgr.Error("Failed to load Kafka config", "error", err)
		os.Exit(1)
	}

	lgr.Info("Configuration loaded",
		"port", port,
		"host", host,
		"redis", redisAddr,
		"kafka", kafkaConfig.Brokers,
		"topic", kafkaConfig.EmailEventsTopic)

	redisDB, _ := strconv.Atoi(config.GetEnvOrDefault("REDIS_DB", "0"))
	redisClient := redis.NewUniversalClient(&redis.UniversalOptions{
		Addrs:    []string{redisAddr},
		Password: os.Getenv("REDIS_PASSWORD"),
		DB:       redisDB,
	})
	defer redisClient.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if err := redisClient.Ping(ctx).Err(); err != nil {
		lgr.Error("Failed to connect to Redis", "error", err)
		os.Exit(1)
	}
	lgr.Info("Connected to Redis")

	idempotencyStore := email.NewIdempotencyStore(redisClient, lgr)

	emailConfig := email.NewConfig()
	emailSender := email.NewSender(emailConfig)
	lgr.Info("Email sender initialized", "mode", emailConfig.Mode)

	// The DLQ is optional; without a producer dead letters are only logged.
	var dlq email.DeadLetterPublisher
	dlqProducer, err := kafkapkg.NewProducer(kafkaConfig, lgr)
	if err != nil {
		lgr.Warn("Failed to create DLQ producer", "error", err)
	} else {
		dlq = dlqProducer
		defer dlqProducer.Close()
	}

	consumerConfig := &email.ConsumerConfig{
		Brokers:       kafkaConfig.Brokers,
		Topic:         kafkaConfig.EmailEventsTopic,
		DLQTopic:      kafkaConfig.EmailDLQTopic,
		ConsumerGroup: kafkaConfig.ConsumerGroup,
		MaxRetries:    kafkaConfig.MaxRetries,
	}
	processor := email.NewProcessor(emailSender, idempotencyStore, dlq, consumerConfig, lgr)

	consumer, err := email.NewConsumer(consumerConfig, processor, lgr)
	if err != nil {
		lgr.Error("Failed to create Kafka consumer", "error", err)
		os.Exit(1)
	}
	defer consumer.Close()

	consumerDone := make(chan struct{})
	go func() {
		defer close(consumerDone)
		if err := consumer.Start(ctx); err != nil {
			lgr.Error("Consumer error", "error", err)
		}
	}()

	r := gin.New()
	r.Use(gin.Recovery())
	email.NewHandler(redisClient, idempotencyStore, lgr).RegisterRoutes(r)

	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", port),
		Handler:           r,
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		lgr.Info("HTTP server started", "port", port)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			lgr.Error("HTTP server error", "error", err)
			os.Exit(1)
		}
	}()

	var registry *consul.Client
	var serviceID string
	if os.Getenv("ENABLE_CONSUL") == "true" {
		registry, err = consul.NewClientWithToken(
			config.GetEnvOrDefault("CONSUL_HTTP_ADDR", "localhost:8500"),
			os.Getenv("CONSUL_HTTP_TOKEN"),
		)
		if err != nil {
			lgr.Error("Failed to create Consul client", "error", err)
		} else {
			svc := consul.NewServiceConfig(serviceName, host, port, "email", "kafka-consumer")
			_ = registry.Deregister(svc.ID)
			if err := registry.Register(svc); err != nil {
				lgr.Error("Failed to register with Consul", "error", err)
				registry = nil
			} else {
				serviceID = svc.ID
				lgr.Info("Registered with Consul", "serviceID", serviceID)
			}
		}
	}

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	lgr.Info("Shutting down mailer...")

	if registry != nil {
		if err := registry.Deregister(serviceID); err != nil {
			lgr.Error("Failed to deregister from Consul", "error", err)
		}
	}

	cancel()
	<-consumerDone

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		lgr.Error("HTTP server forced to shutdown", "error", err)
	}

	lgr.Info("Mailer stopped")
}
