package main

import (
	"flag"
	"fmt"
	"log/slog"
	"os"

	"github.com/ilyakaznacheev/cleanenv"
	"github.com/joho/godotenv"
	"github.com/mark3labs/mcp-go/server"
	"github.com/tendant/oss-upload/internal/mcp"
	"github.com/tendant/oss-upload/pkg/ossupload/config"
)

type Config struct {
	Host    string `env:"HOST" env-default:"localhost"`
	Port    uint16 `env:"PORT" env-default:"8000"`
	BaseUrl string `env:"BASE_URL" env-default:"http://localhost:8000"`
}

func main() {
	// Server mode flags
	var mode = flag.String("mode", "stdio", "Server mode: 'stdio', 'sse', or 'http'")

	flag.Parse()

	// Load environment variables from .env file
	if err := godotenv.Load(".env"); err != nil {
		slog.Info("No .env file found or error loading it, using default values", "err", err)
	}

	var cfg Config
	if err := cleanenv.ReadEnv(&cfg); err != nil {
		slog.Error("Failed to read configuration", "err", err)
		os.Exit(1)
	}

	uploadCfg, err := config.Load(config.WithEnv())
	if err != nil {
		slog.Error("Failed to load upload configuration", "err", err)
		os.Exit(1)
	}

	// stdout carries the protocol in stdio mode
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: uploadCfg.SlogLevel()}))
	slog.SetDefault(logger)

	uploader, err := uploadCfg.BuildUploader(logger)
	if err != nil {
		slog.Error("Failed to create uploader", "err", err)
		os.Exit(1)
	}

	s := server.NewMCPServer(
		"OSS Upload Mcp",
		"1.0.0",
		server.WithToolCapabilities(false),
	)

	handler := mcp.NewUploadHandler(uploader, uploadCfg.KeyPrefix, logger)
	handler.RegisterTools(s)

	switch *mode {
	case "sse":
		sseServer := server.NewSSEServer(s, server.WithBaseURL(cfg.BaseUrl))
		slog.Info("Starting SSE server", "base url", cfg.BaseUrl)
		if err := sseServer.Start(fmt.Sprintf(":%d", cfg.Port)); err != nil {
			slog.Error("Failed to start SSE server", "err", err)
			os.Exit(-1)
		}
	case "http":
		httpServer := server.NewStreamableHTTPServer(s)
		slog.Info("HTTP server listening", "port", cfg.Port)
		if err := httpServer.Start(fmt.Sprintf(":%d", cfg.Port)); err != nil {
			slog.Error("Server error", "err", err)
			os.Exit(-1)
		}
	default:
		slog.Info("Starting in stdio mode", "credential_url", uploadCfg.CredentialURL)
		if err := server.ServeStdio(s); err != nil {
			slog.Error("Failed to start stdio server", "err", err)
			os.Exit(-1)
		}
	}
}
