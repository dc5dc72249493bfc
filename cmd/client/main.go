package main

import (
	"context"
	"flag"
	"os"
	"os/signal"
	"syscall"

	"github.com/charmbracelet/log"
	"github.com/joho/godotenv"
	"github.com/rx3lixir/voicecards/internal/audio"
	"github.com/rx3lixir/voicecards/internal/client"
	"github.com/rx3lixir/voicecards/internal/config"
	"github.com/rx3lixir/voicecards/internal/playback"
	"golang.org/x/term"
)

func main() {
	configPath := flag.String("config", "internal/config/client.yaml", "Path to the client config file")
	flag.Parse()

	// Setup logger
	logger := log.NewWithOptions(os.Stderr, log.Options{
		ReportCaller:    false,
		ReportTimestamp: true,
		TimeFormat:      "15:04:05",
		Level:           log.InfoLevel,
	})

	if err := godotenv.Load(); err != nil {
		logger.Debug("No .env file found")
	}

	cm, err := config.NewClientConfigManager(*configPath)
	if err != nil {
		logger.Fatal("Error getting config file", "error", err)
	}

	cfg := cm.GetConfig()
	if err := cfg.Validate(); err != nil {
		logger.Fatal("Invalid configuration", "error", err)
	}

	if level, err := log.ParseLevel(cfg.LogLevel); err == nil {
		logger.SetLevel(level)
	}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	api := client.New(cfg.APIBaseURL, cfg.NetworkTimeout, logger)

	player := playback.New(
		audio.NewPlayer(api),
		logger,
		playback.WithTickInterval(cfg.TickInterval),
	)
	defer player.Close()

	sh := newShell(api, player, audio.NewMicrophone(cfg.MediaDir), cfg, logger, os.Stdout)
	defer sh.Close()

	if fd := int(os.Stdin.Fd()); term.IsTerminal(fd) {
		sh.readPassword = func() (string, error) {
			pw, err := term.ReadPassword(fd)
			return string(pw), err
		}
	}

	logger.Info("Voice cards client started", "api", cfg.APIBaseURL)

	sh.Run(ctx, os.Stdin)
}
