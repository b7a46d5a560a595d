// Package credential fetches the short-lived STS credential an upload is signed with.
package credential

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
)

var (
	// ErrInvalidCredential is returned when a fetched credential misses required fields
	ErrInvalidCredential = errors.New("credential: invalid credential")

	// ErrFetchFailed is returned when the credential endpoint answers with an error
	ErrFetchFailed = errors.New("credential: fetch failed")
)

var validate = validator.New(validator.WithRequiredStructEnabled())

// Credential is a temporary access key bound to one bucket endpoint.
type Credential struct {
	AccessKeyID     string    `json:"accessKeyId" validate:"required"`
	AccessKeySecret string    `json:"accessKeySecret" validate:"required"`
	SecurityToken   string    `json:"securityToken"`
	Endpoint        string    `json:"endpoint" validate:"required,url"`
	Host            string    `json:"host,omitempty" validate:"omitempty,url"`
	Expiration      Timestamp `json:"expiration,omitzero"`
}

// Validate checks that the credential can be used to sign an upload.
func (c *Credential) Validate() error {
	if c == nil {
		return ErrInvalidCredential
	}
	if err := validate.Struct(c); err != nil {
		return errors.Join(ErrInvalidCredential, err)
	}
	return nil
}

// BaseURL is the public prefix of uploaded objects: Host when the backend provides one
// (e.g. a CDN domain), otherwise the bucket endpoint.
func (c *Credential) BaseURL() string {
	base := c.Host
	if base == "" {
		base = c.Endpoint
	}
	return strings.TrimRight(base, "/")
}

// Expired reports whether the credential carries an expiration that has passed.
func (c *Credential) Expired(now time.Time) bool {
	return !c.Expiration.IsZero() && !now.Before(c.Expiration.Time)
}

// Provider supplies a credential for the next upload.
type Provider interface {
	Fetch(ctx context.Context) (*Credential, error)
}

// StaticProvider always returns the same credential.
type StaticProvider struct {
	Credential Credential
}

func NewStaticProvider(c Credential) *StaticProvider {
	return &StaticProvider{Credential: c}
}

func (p *StaticProvider) Fetch(ctx context.Context) (*Credential, error) {
	c := p.Credential
	if err := c.Validate(); err != nil {
		return nil, err
	}
	return &c, nil
}

// ProviderFunc adapts a function to Provider.
type ProviderFunc func(ctx context.Context) (*Credential, error)

func (f ProviderFunc) Fetch(ctx context.Context) (*Credential, error) {
	return f(ctx)
}
