package ossupload

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"time"

	"github.com/tendant/oss-upload/pkg/ossupload/credential"
	"github.com/tendant/oss-upload/pkg/ossupload/objectkey"
	"github.com/tendant/oss-upload/pkg/ossupload/policy"
)

// Result is the outcome of a successful upload.
type Result struct {
	URL        string `json:"url"` // Public URL of the object
	Key        string `json:"key"` // Object key inside the bucket
	StatusCode int    `json:"statusCode"`
}

// Uploader signs and sends single-file uploads.
type Uploader struct {
	provider      credential.Provider
	transport     Transport
	keyGen        objectkey.Generator
	policyTTL     time.Duration
	maxSize       int64
	successStatus string
	now           func() time.Time
	logger        *slog.Logger
}

// New creates an Uploader that signs with credentials from provider.
func New(provider credential.Provider, opts ...Option) *Uploader {
	u := &Uploader{
		provider:      provider,
		transport:     NewHTTPTransport(),
		keyGen:        objectkey.NewHashGenerator(""),
		policyTTL:     policy.DefaultTTL,
		maxSize:       policy.DefaultMaxSize,
		successStatus: "200",
		now:           time.Now,
		logger:        slog.Default(),
	}
	for _, opt := range opts {
		opt(u)
	}
	return u
}

// Upload sends file to the bucket and returns the public URL of the new object.
//
// Example:
//
//	result, err := uploader.Upload(ctx, ossupload.File{Path: "/tmp/a.jpg"})
//	if err != nil {
//	    msg := ossupload.ErrorMessage(err) // bucket message, if any
//	}
func (u *Uploader) Upload(ctx context.Context, file File) (*Result, error) {
	if file.Path == "" {
		return nil, ErrNoFile
	}
	if file.Size == 0 {
		if info, err := os.Stat(file.Path); err == nil {
			file.Size = info.Size()
		}
	}
	if file.Size > u.maxSize {
		return nil, fmt.Errorf("%w: %d bytes exceeds %d", policy.ErrContentLength, file.Size, u.maxSize)
	}

	cred, err := u.provider.Fetch(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch upload credential: %w", err)
	}
	if cred == nil {
		return nil, ErrNoCredential
	}

	key := u.keyGen.GenerateKey(file.keyInfo())
	req, err := u.buildRequest(cred, file, key)
	if err != nil {
		return nil, err
	}

	logger := u.logger.With("key", key, "endpoint", cred.Endpoint)
	logger.Debug("uploading file", "path", file.Path, "size", file.Size)

	resp, err := u.transport.Transfer(ctx, req)
	if err != nil {
		logger.Error("upload failed", "err", err)
		return nil, err
	}

	result := &Result{
		URL: cred.BaseURL() + "/" + key,
		Key: key,
	}
	if resp != nil {
		result.StatusCode = resp.StatusCode
	}
	logger.Info("upload complete", "url", result.URL)
	return result, nil
}

// Sign builds the signed form for file without sending it. Useful when another
// component (a browser, a mobile shell) performs the transfer.
func (u *Uploader) Sign(ctx context.Context, file File) (*Request, error) {
	if file.Path == "" {
		return nil, ErrNoFile
	}
	cred, err := u.provider.Fetch(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch upload credential: %w", err)
	}
	if cred == nil {
		return nil, ErrNoCredential
	}
	return u.buildRequest(cred, file, u.keyGen.GenerateKey(file.keyInfo()))
}

func (u *Uploader) buildRequest(cred *credential.Credential, file File, key string) (*Request, error) {
	doc := policy.New(u.now(), u.policyTTL, u.maxSize)
	encoded, err := doc.Encode()
	if err != nil {
		return nil, err
	}
	signature := policy.Sign(cred.AccessKeySecret, encoded)

	form := map[string]string{
		FieldKey:                 key,
		FieldAccessKeyID:         cred.AccessKeyID,
		FieldPolicy:              encoded,
		FieldSignature:           signature,
		FieldSuccessActionStatus: u.successStatus,
	}
	if cred.SecurityToken != "" {
		form[FieldSecurityToken] = cred.SecurityToken
	}

	return &Request{
		URL:         cred.Endpoint,
		Method:      http.MethodPost,
		FilePath:    file.Path,
		FieldName:   DefaultFileField,
		ContentType: file.Type,
		FormData:    form,
		Key:         key,
		Credential:  cred,
	}, nil
}
