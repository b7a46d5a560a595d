package sandbox

import (
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestIssuerIssue(t *testing.T) {
	issuer := NewIssuer("http://bucket.local/", "https://cdn.local", time.Hour)

	cred := issuer.Issue("user-1")
	assert.True(t, strings.HasPrefix(cred.AccessKeyID, "STS."))
	assert.NotEmpty(t, cred.AccessKeySecret)
	assert.NotEmpty(t, cred.SecurityToken)
	assert.Equal(t, "http://bucket.local", cred.Endpoint)
	assert.Equal(t, "https://cdn.local", cred.Host)
	require.NoError(t, cred.Validate())

	other := issuer.Issue("user-1")
	assert.NotEqual(t, cred.AccessKeyID, other.AccessKeyID)
	assert.NotEqual(t, cred.AccessKeySecret, other.AccessKeySecret)
	assert.Equal(t, 2, issuer.Len())
}

func TestIssuerSecret(t *testing.T) {
	issuer := NewIssuer("http://bucket.local", "", time.Hour)
	cred := issuer.Issue("")

	secret, err := issuer.Secret(cred.AccessKeyID, cred.SecurityToken)
	require.NoError(t, err)
	assert.Equal(t, cred.AccessKeySecret, secret)

	_, err = issuer.Secret("STS.unknown", cred.SecurityToken)
	assert.ErrorIs(t, err, ErrUnknownAccessKey)

	_, err = issuer.Secret(cred.AccessKeyID, "wrong")
	assert.ErrorIs(t, err, ErrTokenMismatch)
}

func TestIssuerExpiry(t *testing.T) {
	now := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	issuer := NewIssuer("http://bucket.local", "", 15*time.Minute)
	issuer.now = func() time.Time { return now }

	cred := issuer.Issue("")
	assert.Equal(t, now.Add(15*time.Minute), cred.Expiration.Time)

	now = now.Add(15 * time.Minute)
	_, err := issuer.Secret(cred.AccessKeyID, cred.SecurityToken)
	assert.ErrorIs(t, err, ErrCredentialExpired)
	assert.Equal(t, 0, issuer.Len())
}

func TestIssuerDefaultTTL(t *testing.T) {
	issuer := NewIssuer("http://bucket.local", "", 0)
	assert.Equal(t, time.Hour, issuer.ttl)
}
