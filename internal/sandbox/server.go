// Package sandbox is a local stand-in for the application backend and the bucket.
//
// It issues upload credentials the way the production backend does and accepts OSS
// style POST-policy uploads, verifying the same signature, token and policy
// conditions a real bucket checks. Objects land in a store.BlobStore.
package sandbox

import (
	"encoding/xml"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"mime/multipart"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/jwtauth"
	"github.com/go-chi/render"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/tendant/oss-upload/internal/sandbox/store"
	"github.com/tendant/oss-upload/pkg/ossupload"
	"github.com/tendant/oss-upload/pkg/ossupload/credential"
	"github.com/tendant/oss-upload/pkg/ossupload/policy"
)

// TokenPath is where credentials are issued
const TokenPath = "/api/v1/oss/token"

// maxFieldSize bounds a single non-file form field.
const maxFieldSize = 64 << 10

var errEntityTooLarge = errors.New("entity too large")

// Server serves the credential endpoint and the bucket
type Server struct {
	issuer  *Issuer
	blobs   store.BlobStore
	jwtAuth *jwtauth.JWTAuth
	metrics *Metrics
	logger  *slog.Logger
	now     func() time.Time
}

// Option is a functional option for configuring a Server
type Option func(*Server)

// WithJWTAuth protects the credential endpoint with bearer JWTs
func WithJWTAuth(ja *jwtauth.JWTAuth) Option {
	return func(s *Server) {
		s.jwtAuth = ja
	}
}

// WithLogger sets the logger
func WithLogger(logger *slog.Logger) Option {
	return func(s *Server) {
		s.logger = logger
	}
}

// WithMetrics sets the metrics collectors
func WithMetrics(m *Metrics) Option {
	return func(s *Server) {
		s.metrics = m
	}
}

// WithClock overrides the clock used for policy checks
func WithClock(now func() time.Time) Option {
	return func(s *Server) {
		s.now = now
	}
}

// New creates a sandbox server
func New(issuer *Issuer, blobs store.BlobStore, opts ...Option) *Server {
	s := &Server{
		issuer:  issuer,
		blobs:   blobs,
		metrics: NewMetrics(),
		logger:  slog.Default(),
		now:     time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Routes returns a router serving the sandbox
func (s *Server) Routes() chi.Router {
	r := chi.NewRouter()
	s.RegisterRoutes(r)
	return r
}

// RegisterRoutes adds the sandbox routes to r
func (s *Server) RegisterRoutes(r chi.Router) {
	r.Group(func(r chi.Router) {
		if s.jwtAuth != nil {
			r.Use(jwtauth.Verifier(s.jwtAuth))
			r.Use(jwtauth.Authenticator)
		}
		r.Get(TokenPath, s.handleToken)
	})
	r.Handle("/metrics", promhttp.HandlerFor(s.metrics.Registry(), promhttp.HandlerOpts{}))
	r.Post("/", s.handleUpload)
	r.Get("/*", s.handleGet)
}

type tokenResponse struct {
	Data credential.Credential `json:"data"`
}

func (s *Server) handleToken(w http.ResponseWriter, r *http.Request) {
	subject := ""
	if s.jwtAuth != nil {
		if _, claims, err := jwtauth.FromContext(r.Context()); err == nil {
			subject, _ = claims["sub"].(string)
		}
	}

	cred := s.issuer.Issue(subject)
	s.metrics.tokensIssuedTotal.Inc()
	s.logger.Info("issued upload credential", "access_key_id", cred.AccessKeyID, "subject", subject)

	render.JSON(w, r, tokenResponse{Data: cred})
}

// uploadError is an OSS style rejection
type uploadError struct {
	status  int
	code    string
	message string
}

func (e *uploadError) Error() string {
	return e.code + ": " + e.message
}

func reject(status int, code, message string) *uploadError {
	return &uploadError{status: status, code: code, message: message}
}

func (s *Server) handleUpload(w http.ResponseWriter, r *http.Request) {
	key, size, status, err := s.receive(r)
	if err != nil {
		var ue *uploadError
		if errors.As(err, &ue) {
			s.metrics.uploadsTotal.WithLabelValues("rejected").Inc()
			s.logger.Warn("upload rejected", "code", ue.code, "message", ue.message, "key", key)
			writeError(w, ue.status, ue.code, ue.message)
			return
		}
		s.metrics.uploadsTotal.WithLabelValues("error").Inc()
		s.logger.Error("upload failed", "err", err, "key", key)
		writeError(w, http.StatusInternalServerError, "InternalError", "failed to store object")
		return
	}

	s.metrics.uploadsTotal.WithLabelValues("success").Inc()
	s.metrics.uploadBytesTotal.Add(float64(size))
	s.logger.Info("upload stored", "key", key, "size", size)

	if status == http.StatusCreated {
		w.Header().Set("Content-Type", "application/xml")
		w.WriteHeader(status)
		xml.NewEncoder(w).Encode(postResponse{Key: key, Location: "/" + key})
		return
	}
	w.WriteHeader(status)
}

// receive parses the form, verifies it and stores the file. Fields after the file part
// are ignored, like a real bucket does.
func (s *Server) receive(r *http.Request) (string, int64, int, error) {
	now := s.now()

	if r.ContentLength < 0 {
		return "", 0, 0, reject(http.StatusLengthRequired, "MissingContentLength", "You must provide the Content-Length HTTP header.")
	}

	mr, err := r.MultipartReader()
	if err != nil {
		return "", 0, 0, reject(http.StatusBadRequest, "InvalidArgument", "request is not multipart/form-data")
	}

	fields := make(map[string]string)
	for {
		part, err := mr.NextPart()
		if err == io.EOF {
			return fields["key"], 0, 0, reject(http.StatusBadRequest, "InvalidArgument", "file field is missing")
		}
		if err != nil {
			return "", 0, 0, reject(http.StatusBadRequest, "MalformedPOSTRequest", err.Error())
		}

		name := strings.ToLower(part.FormName())
		if name != ossupload.DefaultFileField {
			data, err := io.ReadAll(io.LimitReader(part, maxFieldSize))
			part.Close()
			if err != nil {
				return "", 0, 0, reject(http.StatusBadRequest, "MalformedPOSTRequest", err.Error())
			}
			fields[name] = string(data)
			continue
		}

		defer part.Close()
		key := fields["key"]
		size, status, err := s.storeFile(r, fields, part, now)
		return key, size, status, err
	}
}

func (s *Server) storeFile(r *http.Request, fields map[string]string, part *multipart.Part, now time.Time) (int64, int, error) {
	key := fields["key"]
	if err := store.ValidateKey(key); err != nil {
		return 0, 0, reject(http.StatusBadRequest, "InvalidArgument", fmt.Sprintf("invalid object key %q", key))
	}

	accessKeyID := fields[strings.ToLower(ossupload.FieldAccessKeyID)]
	encodedPolicy := fields[ossupload.FieldPolicy]
	signature := fields[ossupload.FieldSignature]
	if accessKeyID == "" || encodedPolicy == "" || signature == "" {
		return 0, 0, reject(http.StatusForbidden, "AccessDenied", "anonymous uploads are not allowed")
	}

	secret, err := s.issuer.Secret(accessKeyID, fields[ossupload.FieldSecurityToken])
	switch {
	case errors.Is(err, ErrUnknownAccessKey):
		return 0, 0, reject(http.StatusForbidden, "InvalidAccessKeyId", "The OSS Access Key Id you provided does not exist in our records.")
	case errors.Is(err, ErrCredentialExpired):
		return 0, 0, reject(http.StatusForbidden, "SecurityTokenExpired", "The security token you provided has expired.")
	case err != nil:
		return 0, 0, reject(http.StatusForbidden, "InvalidSecurityToken", "The security token you provided is invalid.")
	}

	if err := policy.Verify(secret, encodedPolicy, signature); err != nil {
		return 0, 0, reject(http.StatusForbidden, "SignatureDoesNotMatch", "The request signature we calculated does not match the signature you provided.")
	}

	doc, err := policy.Decode(encodedPolicy)
	if err != nil {
		return 0, 0, reject(http.StatusBadRequest, "InvalidPolicyDocument", "The content of form element policy is not a valid policy document.")
	}
	if err := doc.Check(now, -1); err != nil {
		return 0, 0, reject(http.StatusForbidden, "AccessDenied", "Invalid according to Policy: Policy expired.")
	}

	counter := &countingReader{reader: part, limit: -1}
	if max, ok := doc.MaxSize(); ok {
		counter.limit = max
	}

	if err := s.blobs.Put(r.Context(), key, counter, part.Header.Get("Content-Type")); err != nil {
		if errors.Is(err, errEntityTooLarge) {
			return 0, 0, reject(http.StatusBadRequest, "EntityTooLarge", "Your proposed upload exceeds the maximum allowed size.")
		}
		return 0, 0, err
	}

	if err := doc.Check(now, counter.n); err != nil {
		s.blobs.Delete(r.Context(), key)
		return 0, 0, reject(http.StatusBadRequest, "EntityTooSmall", "Your proposed upload is smaller than the minimum allowed size.")
	}

	return counter.n, successStatus(fields[ossupload.FieldSuccessActionStatus]), nil
}

func successStatus(raw string) int {
	status, err := strconv.Atoi(raw)
	if err != nil {
		return http.StatusNoContent
	}
	switch status {
	case http.StatusOK, http.StatusCreated, http.StatusNoContent:
		return status
	}
	return http.StatusNoContent
}

func (s *Server) handleGet(w http.ResponseWriter, r *http.Request) {
	key := chi.URLParam(r, "*")
	rc, meta, err := s.blobs.Get(r.Context(), key)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			writeError(w, http.StatusNotFound, "NoSuchKey", "The specified key does not exist.")
			return
		}
		s.logger.Error("failed to read object", "err", err, "key", key)
		writeError(w, http.StatusInternalServerError, "InternalError", "failed to read object")
		return
	}
	defer rc.Close()

	w.Header().Set("Content-Type", meta.ContentType)
	w.Header().Set("Content-Length", strconv.FormatInt(meta.Size, 10))
	w.Header().Set("Last-Modified", meta.UpdatedAt.UTC().Format(http.TimeFormat))
	w.WriteHeader(http.StatusOK)
	io.Copy(w, rc)
}

type errorResponse struct {
	XMLName xml.Name `xml:"Error"`
	Code    string   `xml:"Code"`
	Message string   `xml:"Message"`
}

type postResponse struct {
	XMLName  xml.Name `xml:"PostResponse"`
	Location string   `xml:"Location"`
	Key      string   `xml:"Key"`
}

func writeError(w http.ResponseWriter, status int, code, message string) {
	w.Header().Set("Content-Type", "application/xml")
	w.WriteHeader(status)
	io.WriteString(w, xml.Header)
	xml.NewEncoder(w).Encode(errorResponse{Code: code, Message: message})
}

// countingReader counts bytes and fails once more than limit bytes were read.
type countingReader struct {
	reader io.Reader
	n      int64
	limit  int64
}

func (c *countingReader) Read(p []byte) (int, error) {
	n, err := c.reader.Read(p)
	c.n += int64(n)
	if c.limit >= 0 && c.n > c.limit {
		return n, errEntityTooLarge
	}
	return n, err
}
