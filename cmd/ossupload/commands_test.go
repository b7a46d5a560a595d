package main

import (
	"bytes"
	"encoding/json"
	"image"
	"image/color"
	"image/png"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tendant/oss-upload/internal/sandbox"
	"github.com/tendant/oss-upload/internal/sandbox/store/memory"
	"github.com/tendant/oss-upload/pkg/ossupload/credential"
)

// startSandbox runs a sandbox and points the CLI at it through the environment.
func startSandbox(t *testing.T) *httptest.Server {
	t.Helper()
	mux := http.NewServeMux()
	ts := httptest.NewServer(mux)
	t.Cleanup(ts.Close)

	issuer := sandbox.NewIssuer(ts.URL, "", time.Hour)
	sb := sandbox.New(issuer, memory.New(), sandbox.WithLogger(slog.New(slog.NewTextHandler(io.Discard, nil))))
	mux.Handle("/", sb.Routes())

	t.Setenv("OSS_CREDENTIAL_URL", ts.URL+sandbox.TokenPath)
	t.Setenv("OSS_KEY_PREFIX", "test/")
	t.Setenv("LOG_LEVEL", "error")
	return ts
}

func run(t *testing.T, args ...string) (string, string, error) {
	t.Helper()
	var stdout, stderr bytes.Buffer
	cmd := NewRootCommand()
	cmd.SetOut(&stdout)
	cmd.SetErr(&stderr)
	cmd.SetArgs(args)
	err := cmd.Execute()
	return stdout.String(), stderr.String(), err
}

func writeFile(t *testing.T, dir, name, content string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestUploadCommand(t *testing.T) {
	ts := startSandbox(t)
	path := writeFile(t, t.TempDir(), "notes.txt", "hello bucket")

	stdout, _, err := run(t, "upload", path)
	require.NoError(t, err)

	url := strings.TrimSpace(stdout)
	assert.True(t, strings.HasPrefix(url, ts.URL+"/test/"), url)
	assert.True(t, strings.HasSuffix(url, ".txt"), url)

	resp, err := http.Get(url)
	require.NoError(t, err)
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	assert.Equal(t, "hello bucket", string(body))
}

func TestUploadCommandJSON(t *testing.T) {
	startSandbox(t)
	path := writeFile(t, t.TempDir(), "notes.txt", "hello")

	stdout, _, err := run(t, "upload", "--json", path)
	require.NoError(t, err)

	var result struct {
		URL        string `json:"url"`
		Key        string `json:"key"`
		StatusCode int    `json:"statusCode"`
	}
	require.NoError(t, json.Unmarshal([]byte(stdout), &result))
	assert.Equal(t, http.StatusOK, result.StatusCode)
	assert.True(t, strings.HasPrefix(result.Key, "test/"))
}

func TestUploadCommandMissingFile(t *testing.T) {
	startSandbox(t)
	_, _, err := run(t, "upload", filepath.Join(t.TempDir(), "missing.jpg"))
	assert.Error(t, err)
}

func TestUploadCommandCredentialFailure(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "nope", http.StatusUnauthorized)
	}))
	defer ts.Close()
	t.Setenv("OSS_CREDENTIAL_URL", ts.URL)

	path := writeFile(t, t.TempDir(), "a.txt", "x")
	_, _, err := run(t, "upload", path)
	require.Error(t, err)
	assert.ErrorIs(t, err, credential.ErrFetchFailed)
}

func TestPickCommand(t *testing.T) {
	startSandbox(t)
	dir := t.TempDir()

	img := image.NewRGBA(image.Rect(0, 0, 8, 8))
	img.Set(1, 1, color.RGBA{R: 255, A: 255})
	f, err := os.Create(filepath.Join(dir, "shot.png"))
	require.NoError(t, err)
	require.NoError(t, png.Encode(f, img))
	require.NoError(t, f.Close())

	stdout, stderr, err := run(t, "pick", dir)
	require.NoError(t, err)
	assert.True(t, strings.HasSuffix(strings.TrimSpace(stdout), ".png"))
	assert.Contains(t, stderr, "Uploading...")
	assert.Contains(t, stderr, "✔ Upload succeeded")
}

func TestPickCommandEmptyDir(t *testing.T) {
	startSandbox(t)
	_, stderr, err := run(t, "pick", t.TempDir())
	require.Error(t, err)
	assert.NotContains(t, stderr, "Uploading...")
}

func TestTokenCommandMasksSecret(t *testing.T) {
	ts := startSandbox(t)

	stdout, _, err := run(t, "token")
	require.NoError(t, err)

	var cred credential.Credential
	require.NoError(t, json.Unmarshal([]byte(stdout), &cred))
	assert.Equal(t, ts.URL, cred.Endpoint)
	assert.True(t, strings.HasSuffix(cred.AccessKeySecret, "****"))

	stdout, _, err = run(t, "token", "--show-secret")
	require.NoError(t, err)
	require.NoError(t, json.Unmarshal([]byte(stdout), &cred))
	assert.NotContains(t, cred.AccessKeySecret, "****")
}

func TestKeyCommand(t *testing.T) {
	t.Setenv("OSS_KEY_PREFIX", "")
	path := writeFile(t, t.TempDir(), "photo.JPG", "x")

	stdout, _, err := run(t, "key", "--prefix", "env/", path)
	require.NoError(t, err)

	key := strings.TrimSpace(stdout)
	parts := strings.Split(key, "/")
	require.Len(t, parts, 3)
	assert.Equal(t, "env", parts[0])
	assert.Equal(t, time.Now().Format("2006-01-02"), parts[1])
	assert.Len(t, strings.TrimSuffix(parts[2], ".JPG"), 16)
}

func TestSignCommand(t *testing.T) {
	ts := startSandbox(t)
	path := writeFile(t, t.TempDir(), "a.txt", "x")

	stdout, _, err := run(t, "sign", path)
	require.NoError(t, err)

	var form signedForm
	require.NoError(t, json.Unmarshal([]byte(stdout), &form))
	assert.Equal(t, ts.URL, form.URL)
	assert.Equal(t, "file", form.FieldName)
	assert.Equal(t, form.Key, form.FormData["key"])
	assert.NotEmpty(t, form.FormData["policy"])
	assert.NotEmpty(t, form.FormData["signature"])
	assert.Equal(t, "200", form.FormData["success_action_status"])
}

func TestMask(t *testing.T) {
	assert.Equal(t, "****", mask(""))
	assert.Equal(t, "abcd****", mask("abcdefgh"))
}
