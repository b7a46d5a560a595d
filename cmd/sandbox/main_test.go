package main

import (
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tendant/oss-upload/internal/sandbox"
	"github.com/tendant/oss-upload/internal/sandbox/store/fs"
	"github.com/tendant/oss-upload/internal/sandbox/store/memory"
)

func TestServerSetup(t *testing.T) {
	sb, err := newSandbox(Config{
		PublicURL: "http://localhost:3000",
		TokenTTL:  time.Hour,
	}, slog.New(slog.NewTextHandler(io.Discard, nil)))
	require.NoError(t, err)

	r := chi.NewRouter()
	r.Use(middleware.Recoverer)
	r.Use(middleware.RequestID)
	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
	sb.RegisterRoutes(r)

	ts := httptest.NewServer(r)
	defer ts.Close()

	resp, err := http.Get(ts.URL + "/healthz")
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	resp, err = http.Get(ts.URL + sandbox.TokenPath)
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)
}

func TestJWTSecretProtectsTokens(t *testing.T) {
	sb, err := newSandbox(Config{
		PublicURL: "http://localhost:3000",
		JWTSecret: "secret",
	}, slog.New(slog.NewTextHandler(io.Discard, nil)))
	require.NoError(t, err)

	ts := httptest.NewServer(sb.Routes())
	defer ts.Close()

	resp, err := http.Get(ts.URL + sandbox.TokenPath)
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
}

func TestNewBlobStore(t *testing.T) {
	blobs, err := newBlobStore(Config{})
	require.NoError(t, err)
	assert.IsType(t, &memory.Backend{}, blobs)

	blobs, err = newBlobStore(Config{StorageDir: t.TempDir()})
	require.NoError(t, err)
	assert.IsType(t, &fs.Backend{}, blobs)
}

func TestLogLevel(t *testing.T) {
	assert.Equal(t, slog.LevelDebug, logLevel("debug"))
	assert.Equal(t, slog.LevelWarn, logLevel("WARN"))
	assert.Equal(t, slog.LevelInfo, logLevel("nonsense"))
}
