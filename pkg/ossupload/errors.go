package ossupload

import (
	"errors"
	"fmt"
)

var (
	// ErrNoFile is returned when Upload is called without a file path
	ErrNoFile = errors.New("ossupload: no file to upload")

	// ErrUploadFailed is returned when the transport reports a failed transfer
	ErrUploadFailed = errors.New("ossupload: upload failed")

	// ErrNoCredential is returned when the provider yields no credential
	ErrNoCredential = errors.New("ossupload: no upload credential")
)

// TransferError carries the bucket's answer to a rejected upload.
type TransferError struct {
	StatusCode int
	Code       string // Error code from the bucket, e.g. "AccessDenied"
	Message    string // Human readable message suitable for a toast
}

func (e *TransferError) Error() string {
	if e.Code != "" {
		return fmt.Sprintf("upload rejected with status %d (%s): %s", e.StatusCode, e.Code, e.Message)
	}
	return fmt.Sprintf("upload rejected with status %d: %s", e.StatusCode, e.Message)
}

// Unwrap lets errors.Is(err, ErrUploadFailed) match transfer errors
func (e *TransferError) Unwrap() error {
	return ErrUploadFailed
}

// ErrorMessage extracts a user-facing message from err: the bucket message of a
// TransferError when present, otherwise "".
func ErrorMessage(err error) string {
	var te *TransferError
	if errors.As(err, &te) {
		return te.Message
	}
	return ""
}

// IsTransferError returns true if err wraps a TransferError
func IsTransferError(err error) bool {
	var te *TransferError
	return errors.As(err, &te)
}
