package main

import (
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/go-chi/jwtauth"
	"github.com/ilyakaznacheev/cleanenv"
	"github.com/joho/godotenv"
	"github.com/tendant/chi-demo/app"
	"github.com/tendant/oss-upload/internal/sandbox"
	"github.com/tendant/oss-upload/internal/sandbox/store"
	"github.com/tendant/oss-upload/internal/sandbox/store/fs"
	"github.com/tendant/oss-upload/internal/sandbox/store/memory"
)

type Config struct {
	// PublicURL is the address clients upload to; it becomes the credential endpoint
	PublicURL string `env:"SANDBOX_PUBLIC_URL" env-default:"http://localhost:3000"`
	// HostURL is an optional download host handed out with credentials
	HostURL    string        `env:"SANDBOX_HOST_URL"`
	JWTSecret  string        `env:"SANDBOX_JWT_SECRET"`
	TokenTTL   time.Duration `env:"SANDBOX_TOKEN_TTL" env-default:"1h"`
	StorageDir string        `env:"SANDBOX_STORAGE_DIR"`
	LogLevel   string        `env:"LOG_LEVEL" env-default:"info"`
}

func newBlobStore(config Config) (store.BlobStore, error) {
	if config.StorageDir == "" {
		return memory.New(), nil
	}
	backend, err := fs.New(fs.Config{BaseDir: config.StorageDir})
	if err != nil {
		return nil, fmt.Errorf("failed to create filesystem store: %w", err)
	}
	return backend, nil
}

func newSandbox(config Config, logger *slog.Logger) (*sandbox.Server, error) {
	blobs, err := newBlobStore(config)
	if err != nil {
		return nil, err
	}

	opts := []sandbox.Option{sandbox.WithLogger(logger)}
	if config.JWTSecret != "" {
		opts = append(opts, sandbox.WithJWTAuth(jwtauth.New("HS256", []byte(config.JWTSecret), nil)))
	}

	issuer := sandbox.NewIssuer(config.PublicURL, config.HostURL, config.TokenTTL)
	return sandbox.New(issuer, blobs, opts...), nil
}

func logLevel(level string) slog.Level {
	var l slog.Level
	if err := l.UnmarshalText([]byte(level)); err != nil {
		return slog.LevelInfo
	}
	return l
}

func main() {
	if err := godotenv.Load(".env"); err != nil {
		slog.Debug("no .env file loaded", "err", err)
	}

	var config Config
	if err := cleanenv.ReadEnv(&config); err != nil {
		slog.Error("Failed to read configuration", "err", err)
		os.Exit(1)
	}

	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: logLevel(config.LogLevel)}))
	slog.SetDefault(logger)

	sb, err := newSandbox(config, logger)
	if err != nil {
		slog.Error("Failed to initialize sandbox", "err", err)
		os.Exit(1)
	}

	server := app.DefaultApp()

	app.RoutesHealthz(server.R)
	app.RoutesHealthzReady(server.R)

	sb.RegisterRoutes(server.R)

	slog.Info("sandbox ready",
		"public_url", config.PublicURL,
		"token_path", sandbox.TokenPath,
		"jwt", config.JWTSecret != "",
		"storage_dir", config.StorageDir,
	)

	server.Run()
}
