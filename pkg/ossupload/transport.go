package ossupload

import (
	"bytes"
	"context"
	"encoding/xml"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/textproto"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/tendant/oss-upload/pkg/ossupload/credential"
)

// Form field names of an OSS POST upload.
const (
	FieldKey                 = "key"
	FieldAccessKeyID         = "OSSAccessKeyId"
	FieldSecurityToken       = "x-oss-security-token"
	FieldPolicy              = "policy"
	FieldSignature           = "signature"
	FieldSuccessActionStatus = "success_action_status"

	// DefaultFileField is the multipart part that carries the file body
	DefaultFileField = "file"
)

// maxErrorBody bounds how much of a failed response is kept.
const maxErrorBody = 64 << 10

// Request describes one form upload handed to a Transport.
type Request struct {
	URL         string
	Method      string
	FilePath    string
	FieldName   string
	ContentType string
	FormData    map[string]string

	// Key and Credential are duplicated out of FormData for transports that do not
	// speak the POST form protocol.
	Key        string
	Credential *credential.Credential
}

// Response is the transport's report of a finished transfer.
type Response struct {
	StatusCode int
	Body       []byte
}

// Transport moves a file to the bucket. It is the seam where a host runtime plugs its
// own upload primitive in.
type Transport interface {
	Transfer(ctx context.Context, req *Request) (*Response, error)
}

// TransportFunc adapts a function to Transport.
type TransportFunc func(ctx context.Context, req *Request) (*Response, error)

func (f TransportFunc) Transfer(ctx context.Context, req *Request) (*Response, error) {
	return f(ctx, req)
}

// ProgressFunc is called during upload to report progress
// It receives the number of bytes uploaded so far
type ProgressFunc func(bytesUploaded int64)

// HTTPTransport posts the form as multipart/form-data with net/http.
type HTTPTransport struct {
	httpClient   *http.Client
	progressFunc ProgressFunc
}

// HTTPTransportOption is a functional option for configuring an HTTPTransport
type HTTPTransportOption func(*HTTPTransport)

// WithTransportHTTPClient sets a custom HTTP client
func WithTransportHTTPClient(client *http.Client) HTTPTransportOption {
	return func(t *HTTPTransport) {
		t.httpClient = client
	}
}

// WithProgress sets a progress callback function
func WithProgress(fn ProgressFunc) HTTPTransportOption {
	return func(t *HTTPTransport) {
		t.progressFunc = fn
	}
}

// NewHTTPTransport creates a new multipart form transport
func NewHTTPTransport(opts ...HTTPTransportOption) *HTTPTransport {
	t := &HTTPTransport{
		httpClient: &http.Client{
			Timeout: 30 * time.Minute, // Long timeout for large uploads
		},
	}
	for _, opt := range opts {
		opt(t)
	}
	return t
}

// Transfer sends the form fields followed by the file part. Fields are written in
// sorted order; OSS ignores every field that comes after the file. The body carries a
// Content-Length because buckets refuse chunked POST uploads.
func (t *HTTPTransport) Transfer(ctx context.Context, req *Request) (*Response, error) {
	file, err := os.Open(req.FilePath)
	if err != nil {
		return nil, fmt.Errorf("failed to open file: %w", err)
	}
	defer file.Close()

	info, err := file.Stat()
	if err != nil {
		return nil, fmt.Errorf("failed to stat file: %w", err)
	}

	var body io.Reader = file
	if t.progressFunc != nil {
		body = &progressReader{reader: file, callback: t.progressFunc}
	}

	head, tail, contentType, err := formEnvelope(req)
	if err != nil {
		return nil, fmt.Errorf("failed to build form: %w", err)
	}

	method := req.Method
	if method == "" {
		method = http.MethodPost
	}
	httpReq, err := http.NewRequestWithContext(ctx, method, req.URL,
		io.MultiReader(bytes.NewReader(head), io.LimitReader(body, info.Size()), bytes.NewReader(tail)))
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	httpReq.ContentLength = int64(len(head)) + info.Size() + int64(len(tail))
	httpReq.Header.Set("Content-Type", contentType)

	resp, err := t.httpClient.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUploadFailed, err)
	}
	defer resp.Body.Close()

	respBody, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, newTransferError(resp.StatusCode, respBody)
	}

	return &Response{StatusCode: resp.StatusCode, Body: respBody}, nil
}

// formEnvelope renders everything of the multipart body except the file content: head
// holds the fields and the file part header, tail the closing boundary.
func formEnvelope(req *Request) (head, tail []byte, contentType string, err error) {
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)

	keys := make([]string, 0, len(req.FormData))
	for k := range req.FormData {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		if err := mw.WriteField(k, req.FormData[k]); err != nil {
			return nil, nil, "", err
		}
	}

	fieldName := req.FieldName
	if fieldName == "" {
		fieldName = DefaultFileField
	}
	fileType := req.ContentType
	if fileType == "" {
		fileType = "application/octet-stream"
	}

	h := make(textproto.MIMEHeader)
	h.Set("Content-Disposition", fmt.Sprintf(`form-data; name="%s"; filename="%s"`,
		escapeQuotes(fieldName), escapeQuotes(filepath.Base(req.FilePath))))
	h.Set("Content-Type", fileType)
	if _, err := mw.CreatePart(h); err != nil {
		return nil, nil, "", err
	}
	head = bytes.Clone(buf.Bytes())

	buf.Reset()
	if err := mw.Close(); err != nil {
		return nil, nil, "", err
	}
	tail = bytes.Clone(buf.Bytes())

	return head, tail, mw.FormDataContentType(), nil
}

var quoteEscaper = strings.NewReplacer("\\", "\\\\", `"`, "\\\"")

func escapeQuotes(s string) string {
	return quoteEscaper.Replace(s)
}

// bucketError is the XML error document OSS and S3 return.
type bucketError struct {
	XMLName xml.Name `xml:"Error"`
	Code    string   `xml:"Code"`
	Message string   `xml:"Message"`
}

func newTransferError(status int, body []byte) *TransferError {
	te := &TransferError{StatusCode: status}
	var be bucketError
	if err := xml.Unmarshal(body, &be); err == nil && (be.Code != "" || be.Message != "") {
		te.Code = be.Code
		te.Message = be.Message
		return te
	}
	te.Message = string(bytes.TrimSpace(body))
	if te.Message == "" {
		te.Message = http.StatusText(status)
	}
	return te
}

// progressReader wraps an io.Reader to track upload progress
type progressReader struct {
	reader    io.Reader
	bytesRead int64
	callback  ProgressFunc
}

func (pr *progressReader) Read(p []byte) (int, error) {
	n, err := pr.reader.Read(p)
	pr.bytesRead += int64(n)
	if pr.callback != nil && n > 0 {
		pr.callback(pr.bytesRead)
	}
	return n, err
}
