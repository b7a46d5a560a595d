package sandbox

import (
	"bytes"
	"context"
	"encoding/json"
	"encoding/xml"
	"io"
	"log/slog"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/go-chi/jwtauth"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tendant/oss-upload/internal/sandbox/store/memory"
	"github.com/tendant/oss-upload/pkg/ossupload"
	"github.com/tendant/oss-upload/pkg/ossupload/credential"
	"github.com/tendant/oss-upload/pkg/ossupload/policy"
)

type testEnv struct {
	server *httptest.Server
	issuer *Issuer
	blobs  *memory.Backend
}

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func newTestEnv(t *testing.T, opts ...Option) *testEnv {
	t.Helper()
	issuer := NewIssuer("", "", time.Hour)
	blobs := memory.New()
	opts = append([]Option{WithLogger(quietLogger())}, opts...)
	srv := httptest.NewServer(New(issuer, blobs, opts...).Routes())
	t.Cleanup(srv.Close)
	issuer.endpoint = srv.URL
	return &testEnv{server: srv, issuer: issuer, blobs: blobs}
}

// signedFields returns a complete form for cred with a policy valid from now.
func signedFields(cred credential.Credential, key string, now time.Time, maxSize int64) map[string]string {
	encoded, _ := policy.New(now, time.Hour, maxSize).Encode()
	return map[string]string{
		ossupload.FieldKey:           key,
		ossupload.FieldAccessKeyID:   cred.AccessKeyID,
		ossupload.FieldSecurityToken: cred.SecurityToken,
		ossupload.FieldPolicy:        encoded,
		ossupload.FieldSignature:     policy.Sign(cred.AccessKeySecret, encoded),
	}
}

func postForm(t *testing.T, url string, fields map[string]string, content []byte) *http.Response {
	t.Helper()
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	for k, v := range fields {
		require.NoError(t, mw.WriteField(k, v))
	}
	if content != nil {
		fw, err := mw.CreateFormFile(ossupload.DefaultFileField, "upload.bin")
		require.NoError(t, err)
		_, err = fw.Write(content)
		require.NoError(t, err)
	}
	require.NoError(t, mw.Close())

	resp, err := http.Post(url, mw.FormDataContentType(), &buf)
	require.NoError(t, err)
	t.Cleanup(func() { resp.Body.Close() })
	return resp
}

func decodeError(t *testing.T, resp *http.Response) errorResponse {
	t.Helper()
	var body errorResponse
	data, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	require.NoError(t, xml.Unmarshal(data, &body))
	return body
}

func TestUploadEndToEnd(t *testing.T) {
	env := newTestEnv(t)

	path := filepath.Join(t.TempDir(), "cat.png")
	require.NoError(t, os.WriteFile(path, []byte("png bytes"), 0o644))

	provider := credential.NewHTTPProvider(env.server.URL+TokenPath, credential.WithLogger(quietLogger()))
	uploader := ossupload.New(provider,
		ossupload.WithKeyPrefix("test/"),
		ossupload.WithLogger(quietLogger()),
	)

	result, err := uploader.Upload(context.Background(), ossupload.File{Path: path})
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, result.StatusCode)
	assert.True(t, strings.HasPrefix(result.Key, "test/"))
	assert.True(t, strings.HasSuffix(result.Key, ".png"))
	assert.Equal(t, env.server.URL+"/"+result.Key, result.URL)

	resp, err := http.Get(result.URL)
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	data, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	assert.Equal(t, "png bytes", string(data))
}

func TestUploadFailureSurfacesBucketMessage(t *testing.T) {
	env := newTestEnv(t)

	path := filepath.Join(t.TempDir(), "cat.png")
	require.NoError(t, os.WriteFile(path, []byte("png bytes"), 0o644))

	cred := env.issuer.Issue("")
	cred.AccessKeySecret = "not-the-secret"
	uploader := ossupload.New(credential.NewStaticProvider(cred), ossupload.WithLogger(quietLogger()))

	_, err := uploader.Upload(context.Background(), ossupload.File{Path: path})
	require.Error(t, err)
	assert.True(t, ossupload.IsTransferError(err))
	assert.Contains(t, ossupload.ErrorMessage(err), "signature")
}

func TestUploadRejections(t *testing.T) {
	env := newTestEnv(t)
	now := time.Now()

	tests := []struct {
		name       string
		fields     func() map[string]string
		content    []byte
		wantStatus int
		wantCode   string
	}{
		{
			name: "unknown access key",
			fields: func() map[string]string {
				f := signedFields(env.issuer.Issue(""), "a.txt", now, 1024)
				f[ossupload.FieldAccessKeyID] = "STS.nobody"
				return f
			},
			content:    []byte("x"),
			wantStatus: http.StatusForbidden,
			wantCode:   "InvalidAccessKeyId",
		},
		{
			name: "wrong security token",
			fields: func() map[string]string {
				f := signedFields(env.issuer.Issue(""), "a.txt", now, 1024)
				f[ossupload.FieldSecurityToken] = "forged"
				return f
			},
			content:    []byte("x"),
			wantStatus: http.StatusForbidden,
			wantCode:   "InvalidSecurityToken",
		},
		{
			name: "bad signature",
			fields: func() map[string]string {
				f := signedFields(env.issuer.Issue(""), "a.txt", now, 1024)
				f[ossupload.FieldSignature] = policy.Sign("other", f[ossupload.FieldPolicy])
				return f
			},
			content:    []byte("x"),
			wantStatus: http.StatusForbidden,
			wantCode:   "SignatureDoesNotMatch",
		},
		{
			name: "expired policy",
			fields: func() map[string]string {
				return signedFields(env.issuer.Issue(""), "a.txt", now.Add(-2*time.Hour), 1024)
			},
			content:    []byte("x"),
			wantStatus: http.StatusForbidden,
			wantCode:   "AccessDenied",
		},
		{
			name: "too large",
			fields: func() map[string]string {
				return signedFields(env.issuer.Issue(""), "a.txt", now, 4)
			},
			content:    []byte("hello world"),
			wantStatus: http.StatusBadRequest,
			wantCode:   "EntityTooLarge",
		},
		{
			name: "missing signature",
			fields: func() map[string]string {
				f := signedFields(env.issuer.Issue(""), "a.txt", now, 1024)
				delete(f, ossupload.FieldSignature)
				return f
			},
			content:    []byte("x"),
			wantStatus: http.StatusForbidden,
			wantCode:   "AccessDenied",
		},
		{
			name: "invalid key",
			fields: func() map[string]string {
				return signedFields(env.issuer.Issue(""), "../escape.txt", now, 1024)
			},
			content:    []byte("x"),
			wantStatus: http.StatusBadRequest,
			wantCode:   "InvalidArgument",
		},
		{
			name: "missing file",
			fields: func() map[string]string {
				return signedFields(env.issuer.Issue(""), "a.txt", now, 1024)
			},
			wantStatus: http.StatusBadRequest,
			wantCode:   "InvalidArgument",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			resp := postForm(t, env.server.URL+"/", tt.fields(), tt.content)
			assert.Equal(t, tt.wantStatus, resp.StatusCode)
			assert.Equal(t, tt.wantCode, decodeError(t, resp).Code)

			_, err := env.blobs.Stat(context.Background(), "a.txt")
			assert.Error(t, err)
		})
	}
}

func TestUploadRequiresContentLength(t *testing.T) {
	env := newTestEnv(t)

	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	for k, v := range signedFields(env.issuer.Issue(""), "chunked.txt", time.Now(), 1024) {
		require.NoError(t, mw.WriteField(k, v))
	}
	fw, err := mw.CreateFormFile(ossupload.DefaultFileField, "chunked.txt")
	require.NoError(t, err)
	fw.Write([]byte("x"))
	require.NoError(t, mw.Close())

	// a plain io.Reader has no known length, so the client sends it chunked
	req, err := http.NewRequest(http.MethodPost, env.server.URL+"/", io.MultiReader(&buf))
	require.NoError(t, err)
	req.Header.Set("Content-Type", mw.FormDataContentType())

	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusLengthRequired, resp.StatusCode)
	assert.Equal(t, "MissingContentLength", decodeError(t, resp).Code)

	_, err = env.blobs.Stat(context.Background(), "chunked.txt")
	assert.Error(t, err)
}

func TestUploadSuccessStatus(t *testing.T) {
	env := newTestEnv(t)
	now := time.Now()

	tests := []struct {
		status string
		want   int
	}{
		{"", http.StatusNoContent},
		{"200", http.StatusOK},
		{"201", http.StatusCreated},
		{"204", http.StatusNoContent},
		{"302", http.StatusNoContent},
	}
	for _, tt := range tests {
		t.Run("status "+tt.status, func(t *testing.T) {
			fields := signedFields(env.issuer.Issue(""), "docs/note.txt", now, 1024)
			if tt.status != "" {
				fields[ossupload.FieldSuccessActionStatus] = tt.status
			}
			resp := postForm(t, env.server.URL+"/", fields, []byte("note"))
			assert.Equal(t, tt.want, resp.StatusCode)
			if tt.want == http.StatusCreated {
				body, err := io.ReadAll(resp.Body)
				require.NoError(t, err)
				assert.Contains(t, string(body), "<Key>docs/note.txt</Key>")
			}
		})
	}
}

func TestGetMissingObject(t *testing.T) {
	env := newTestEnv(t)

	resp, err := http.Get(env.server.URL + "/nope/missing.jpg")
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
	assert.Equal(t, "NoSuchKey", decodeError(t, resp).Code)
}

func TestTokenEndpoint(t *testing.T) {
	env := newTestEnv(t)

	resp, err := http.Get(env.server.URL + TokenPath)
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var body struct {
		Data credential.Credential `json:"data"`
	}
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
	assert.Equal(t, env.server.URL, body.Data.Endpoint)
	assert.NotEmpty(t, body.Data.AccessKeyID)
	assert.Equal(t, 1, env.issuer.Len())
}

func TestTokenEndpointRequiresJWT(t *testing.T) {
	ja := jwtauth.New("HS256", []byte("sandbox-secret"), nil)
	env := newTestEnv(t, WithJWTAuth(ja))

	resp, err := http.Get(env.server.URL + TokenPath)
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)

	_, tokenString, err := ja.Encode(map[string]interface{}{"sub": "user-42"})
	require.NoError(t, err)

	provider := credential.NewHTTPProvider(env.server.URL+TokenPath,
		credential.WithBearerToken(tokenString),
		credential.WithLogger(quietLogger()),
	)
	cred, err := provider.Fetch(context.Background())
	require.NoError(t, err)
	assert.Equal(t, env.server.URL, cred.Endpoint)

	env.issuer.mu.Lock()
	entry := env.issuer.issued[cred.AccessKeyID]
	env.issuer.mu.Unlock()
	assert.Equal(t, "user-42", entry.subject)
}

func TestMetricsEndpoint(t *testing.T) {
	env := newTestEnv(t)

	cred := env.issuer.Issue("")
	resp := postForm(t, env.server.URL+"/", signedFields(cred, "m.txt", time.Now(), 1024), []byte("12345"))
	require.Equal(t, http.StatusNoContent, resp.StatusCode)

	bad := signedFields(cred, "m2.txt", time.Now(), 1024)
	bad[ossupload.FieldSignature] = "bogus"
	postForm(t, env.server.URL+"/", bad, []byte("x"))

	mresp, err := http.Get(env.server.URL + "/metrics")
	require.NoError(t, err)
	defer mresp.Body.Close()
	data, err := io.ReadAll(mresp.Body)
	require.NoError(t, err)

	text := string(data)
	assert.Contains(t, text, `ossupload_sandbox_uploads_total{result="success"} 1`)
	assert.Contains(t, text, `ossupload_sandbox_uploads_total{result="rejected"} 1`)
	assert.Contains(t, text, "ossupload_sandbox_upload_bytes_total 5")
}
