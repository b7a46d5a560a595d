package sandbox

import (
	"crypto/subtle"
	"encoding/base64"
	"errors"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/tendant/oss-upload/pkg/ossupload/credential"
)

var (
	// ErrUnknownAccessKey is returned for access key ids the issuer never handed out
	ErrUnknownAccessKey = errors.New("unknown access key id")

	// ErrTokenMismatch is returned when the security token does not belong to the key
	ErrTokenMismatch = errors.New("security token mismatch")

	// ErrCredentialExpired is returned for credentials past their expiration
	ErrCredentialExpired = errors.New("credential expired")
)

type issued struct {
	secret        string
	securityToken string
	subject       string
	expiresAt     time.Time
}

// Issuer hands out short-lived STS-style credentials and remembers them so uploads
// can be verified.
type Issuer struct {
	mu       sync.Mutex
	issued   map[string]issued
	ttl      time.Duration
	endpoint string
	host     string
	now      func() time.Time
}

// NewIssuer creates an issuer whose credentials point at endpoint and live for ttl.
func NewIssuer(endpoint, host string, ttl time.Duration) *Issuer {
	if ttl <= 0 {
		ttl = time.Hour
	}
	return &Issuer{
		issued:   make(map[string]issued),
		ttl:      ttl,
		endpoint: strings.TrimRight(endpoint, "/"),
		host:     strings.TrimRight(host, "/"),
		now:      time.Now,
	}
}

// Issue creates a credential for subject (the authenticated user, or "" when the
// endpoint is open).
func (i *Issuer) Issue(subject string) credential.Credential {
	now := i.now()

	id := "STS." + strings.ReplaceAll(uuid.NewString(), "-", "")
	secretID := uuid.New()
	secret := base64.RawURLEncoding.EncodeToString(secretID[:])
	token := uuid.NewString()
	expiresAt := now.Add(i.ttl)

	i.mu.Lock()
	defer i.mu.Unlock()

	i.pruneLocked(now)
	i.issued[id] = issued{
		secret:        secret,
		securityToken: token,
		subject:       subject,
		expiresAt:     expiresAt,
	}

	return credential.Credential{
		AccessKeyID:     id,
		AccessKeySecret: secret,
		SecurityToken:   token,
		Endpoint:        i.endpoint,
		Host:            i.host,
		Expiration:      credential.NewTimestamp(expiresAt.UTC()),
	}
}

// Secret returns the secret of a live credential after checking its security token.
func (i *Issuer) Secret(accessKeyID, securityToken string) (string, error) {
	i.mu.Lock()
	defer i.mu.Unlock()

	entry, ok := i.issued[accessKeyID]
	if !ok {
		return "", ErrUnknownAccessKey
	}
	if !i.now().Before(entry.expiresAt) {
		delete(i.issued, accessKeyID)
		return "", ErrCredentialExpired
	}
	if subtle.ConstantTimeCompare([]byte(entry.securityToken), []byte(securityToken)) != 1 {
		return "", ErrTokenMismatch
	}
	return entry.secret, nil
}

// Len returns the number of live credentials
func (i *Issuer) Len() int {
	i.mu.Lock()
	defer i.mu.Unlock()
	i.pruneLocked(i.now())
	return len(i.issued)
}

func (i *Issuer) pruneLocked(now time.Time) {
	for id, entry := range i.issued {
		if !now.Before(entry.expiresAt) {
			delete(i.issued, id)
		}
	}
}
