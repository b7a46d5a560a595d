package ossupload

import (
	"log/slog"
	"time"

	"github.com/tendant/oss-upload/pkg/ossupload/objectkey"
	"github.com/tendant/oss-upload/pkg/ossupload/policy"
)

// Option is a functional option for configuring an Uploader
type Option func(*Uploader)

// WithTransport sets the transport that performs the transfer
// Default is an HTTPTransport
func WithTransport(t Transport) Option {
	return func(u *Uploader) {
		u.transport = t
	}
}

// WithKeyGenerator replaces the object key generator
func WithKeyGenerator(g objectkey.Generator) Option {
	return func(u *Uploader) {
		u.keyGen = g
	}
}

// WithKeyPrefix sets the prefix of generated keys, e.g. "test/" to keep staging
// uploads apart. Ignored when a custom generator is set after it.
func WithKeyPrefix(prefix string) Option {
	return func(u *Uploader) {
		u.keyGen = objectkey.NewHashGenerator(prefix)
	}
}

// WithPolicyTTL sets how long each signed policy stays valid
// Default is 1 hour
func WithPolicyTTL(ttl time.Duration) Option {
	return func(u *Uploader) {
		u.policyTTL = ttl
	}
}

// WithMaxSize sets the upper bound of the content-length-range condition
// Default is 1 GiB; zero or negative sizes keep the default
func WithMaxSize(size int64) Option {
	return func(u *Uploader) {
		if size <= 0 {
			size = policy.DefaultMaxSize
		}
		u.maxSize = size
	}
}

// WithSuccessStatus sets the success_action_status the bucket answers with
// Default is "200"
func WithSuccessStatus(status string) Option {
	return func(u *Uploader) {
		u.successStatus = status
	}
}

// WithLogger sets the logger
func WithLogger(logger *slog.Logger) Option {
	return func(u *Uploader) {
		u.logger = logger
	}
}

// WithClock overrides the clock used for policy expiration
func WithClock(now func() time.Time) Option {
	return func(u *Uploader) {
		u.now = now
	}
}
