package main

import (
	"context"
	"flag"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/charmbracelet/log"
	"github.com/joho/godotenv"
	"github.com/rx3lixir/voicecards/internal/config"
	"github.com/rx3lixir/voicecards/internal/db"
	"github.com/rx3lixir/voicecards/internal/http-server"
	"github.com/rx3lixir/voicecards/internal/session"
	"github.com/rx3lixir/voicecards/pkg/jwt"
	"github.com/rx3lixir/voicecards/pkg/s3storage"
)

func main() {
	configPath := flag.String("config", "internal/config/config.yaml", "Path to the server config file")
	flag.Parse()

	// Setting up logger
	logger := log.NewWithOptions(os.Stderr, log.Options{
		ReportCaller:    true,
		ReportTimestamp: true,
		TimeFormat:      "2006-01-02 15:04:05",
		Level:           log.InfoLevel,
	})

	// .env is optional, real environment wins
	if err := godotenv.Load(); err != nil {
		logger.Debug("No .env file found")
	}

	// Initializing global context instance
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Initializing config manager
	cm, err := config.NewConfigManager(*configPath)
	if err != nil {
		logger.Error("Error getting config file", "error", err)
		os.Exit(1)
	}

	c := cm.GetConfig()

	// Validating configuration
	if err := c.Validate(); err != nil {
		logger.Error("Invalid configuration", "error", err)
		os.Exit(1)
	}

	if level, err := log.ParseLevel(c.GeneralParams.LogLevel); err == nil {
		logger.SetLevel(level)
	} else {
		logger.Warn("Unknown log level, keeping info", "level", c.GeneralParams.LogLevel)
	}

	logger.Info(
		"Configuration loaded",
		"env", c.GeneralParams.Env,
		"http_addr", c.GeneralParams.HTTPaddress,
		"public_url", c.GeneralParams.PublicURL,
		"database", c.MainDBParams.Name,
		"auth", c.AuthDBParams.Host,
	)

	// Initializing JWT service
	jwtService := jwt.NewService(
		c.GeneralParams.SecretKey,
		c.GeneralParams.AccessTokenTTL,
		c.GeneralParams.RefreshTokenTTL,
	)

	logger.Info("JWT service initialized")

	var (
		store    db.Store
		blobs    httpserver.BlobStorage
		sessions httpserver.SessionStore
		cache    httpserver.ListCache
	)

	if c.GeneralParams.Env == "test" {
		// Self-contained mode: nothing outlives the process
		kv := session.NewMemoryManager()
		store, blobs, sessions, cache = db.NewMemoryStore(), s3storage.NewMemoryStorage(), kv, kv

		logger.Warn("Running with in-memory storage")
	} else {
		// Creating database connection pool
		pool, err := db.CreatePostgresPool(ctx, c.MainDBParams.GetDSN())
		if err != nil {
			logger.Error(
				"Failed to create postgres pool",
				"error", err,
				"db", c.MainDBParams.Name,
			)
			os.Exit(1)
		}
		defer pool.Close()

		logger.Info("Database connection established", "db", c.MainDBParams.Name)

		if err := db.RunMigrations(ctx, pool); err != nil {
			logger.Error("Failed to apply migrations", "error", err)
			os.Exit(1)
		}

		logger.Info("Database migrations applied")

		store = db.NewPostgresStore(pool, time.Duration(c.MainDBParams.Timeout)*time.Second)

		// Initialize Key-value storage
		sessionManager, err := session.NewManager(
			c.AuthDBParams.Host,
			c.AuthDBParams.Username,
			c.AuthDBParams.Password,
		)
		if err != nil {
			logger.Error("Failed to create session manager", "error", err)
			os.Exit(1)
		}
		defer sessionManager.Close()

		sessions, cache = sessionManager, sessionManager

		logger.Info("Key-Value session manager initialized")

		// Initialize S3 client
		s3Client, err := s3storage.NewMinIOClient(
			c.S3Params.Endpoint,
			c.S3Params.AccessKeyID,
			c.S3Params.SecretAccessKey,
			c.S3Params.BucketName,
			c.S3Params.UseSSL,
		)
		if err != nil {
			logger.Error("Failed to create S3 client", "error", err)
			os.Exit(1)
		}
		blobs = s3Client

		logger.Info("S3 storage client initialized", "bucket", c.S3Params.BucketName)
	}

	// Creates HTTP server
	HTTPserver := httpserver.New(
		c.GeneralParams.HTTPaddress,
		store,
		blobs,
		sessions,
		cache,
		jwtService,
		httpserver.Options{
			PublicURL:      c.GeneralParams.PublicURL,
			RequestTimeout: c.GeneralParams.RequestTimeout,
			MaxUploadBytes: c.GeneralParams.MaxUploadBytes,
			FeedTTL:        c.AuthDBParams.FeedTTL,
			AllowedOrigins: c.GeneralParams.AllowedOrigins,
		},
		logger,
	)

	// Channel to listen for errors coming from the server
	serverErrors := make(chan error, 1)

	// Start the HTTP server in a gorutine
	go func() {
		serverErrors <- HTTPserver.Start()
	}()

	// Channel to listen for interrupt signals
	shutdown := make(chan os.Signal, 1)
	signal.Notify(shutdown, os.Interrupt, syscall.SIGTERM)

	// Block until we recieve a signal or error
	select {
	case err := <-serverErrors:
		if err != nil {
			logger.Error("Server error", "error", err)
			os.Exit(1)
		}

	case sig := <-shutdown:
		logger.Info("Shutdown signal received", "signal", sig)

		// Give outstanding requests 10s to complete
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()

		logger.Info("Shutting down HTTP server...")
		if err := HTTPserver.Shutdown(ctx); err != nil {
			logger.Error("Graceful shutdown failed", "error", err)
		}

		logger.Info("Server stopped gracefully")
	}
}
