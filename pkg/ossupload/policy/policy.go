// Package policy builds and signs the POST policy document that authorizes a single
// browser-style form upload to an OSS bucket.
//
// A policy is a small JSON document carrying an expiration instant and a list of
// conditions. The client sends it Base64 encoded together with an HMAC-SHA1
// signature computed with the temporary access key secret:
//
//	doc := policy.New(time.Now(), time.Hour, policy.DefaultMaxSize)
//	encoded, err := doc.Encode()
//	signature := policy.Sign(cred.AccessKeySecret, encoded)
//
// The receiving side reverses the process with Decode, Verify and Document.Check.
package policy

import (
	"crypto/hmac"
	"crypto/sha1"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"time"
)

const (
	// DefaultTTL is how long a freshly built policy stays valid.
	DefaultTTL = time.Hour

	// DefaultMaxSize is the upper bound of the content-length-range condition (1 GiB).
	DefaultMaxSize int64 = 1024 * 1024 * 1024

	// ConditionContentLengthRange names the size condition.
	ConditionContentLengthRange = "content-length-range"

	// expirationLayout matches the ISO-8601 form OSS expects: UTC with milliseconds.
	expirationLayout = "2006-01-02T15:04:05.000Z"
)

var (
	// ErrInvalidPolicy is returned when an encoded policy cannot be decoded
	ErrInvalidPolicy = errors.New("policy: invalid policy document")

	// ErrPolicyExpired is returned when the policy expiration is in the past
	ErrPolicyExpired = errors.New("policy: policy has expired")

	// ErrContentLength is returned when a body size falls outside content-length-range
	ErrContentLength = errors.New("policy: content length out of range")

	// ErrSignatureMismatch is returned when a signature does not match the policy
	ErrSignatureMismatch = errors.New("policy: signature mismatch")
)

// Condition is one entry of the conditions array, e.g. ["content-length-range", 0, 1024].
type Condition []any

// ContentLengthRange returns a condition bounding the uploaded body size.
func ContentLengthRange(min, max int64) Condition {
	return Condition{ConditionContentLengthRange, min, max}
}

// Document is the POST policy sent alongside a form upload.
type Document struct {
	Expiration time.Time
	Conditions []Condition
}

type wireDocument struct {
	Expiration string      `json:"expiration"`
	Conditions []Condition `json:"conditions"`
}

// New builds a policy that expires ttl after now and limits the body to maxSize bytes.
// Zero or negative values fall back to DefaultTTL and DefaultMaxSize.
func New(now time.Time, ttl time.Duration, maxSize int64) *Document {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	if maxSize <= 0 {
		maxSize = DefaultMaxSize
	}
	return &Document{
		Expiration: now.Add(ttl),
		Conditions: []Condition{ContentLengthRange(0, maxSize)},
	}
}

// MarshalJSON renders the document in the wire format.
func (d *Document) MarshalJSON() ([]byte, error) {
	conditions := d.Conditions
	if conditions == nil {
		conditions = []Condition{}
	}
	return json.Marshal(wireDocument{
		Expiration: d.Expiration.UTC().Format(expirationLayout),
		Conditions: conditions,
	})
}

// UnmarshalJSON parses the wire format.
func (d *Document) UnmarshalJSON(data []byte) error {
	var w wireDocument
	if err := json.Unmarshal(data, &w); err != nil {
		return err
	}
	exp, err := time.Parse(time.RFC3339Nano, w.Expiration)
	if err != nil {
		return fmt.Errorf("invalid expiration %q: %w", w.Expiration, err)
	}
	d.Expiration = exp
	d.Conditions = w.Conditions
	return nil
}

// Encode returns the Base64 encoding of the JSON document. The encoded string is what
// gets signed and posted as the "policy" form field.
func (d *Document) Encode() (string, error) {
	raw, err := json.Marshal(d)
	if err != nil {
		return "", fmt.Errorf("failed to marshal policy: %w", err)
	}
	return base64.StdEncoding.EncodeToString(raw), nil
}

// Decode parses a Base64 encoded policy.
func Decode(encoded string) (*Document, error) {
	raw, err := base64.StdEncoding.DecodeString(encoded)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidPolicy, err)
	}
	var d Document
	if err := json.Unmarshal(raw, &d); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidPolicy, err)
	}
	return &d, nil
}

// MaxSize returns the upper bound of the content-length-range condition, if any.
func (d *Document) MaxSize() (int64, bool) {
	_, max, ok := d.contentLengthRange()
	return max, ok
}

// Check verifies that the policy is still valid at now and that size satisfies the
// content-length-range condition. A negative size skips the size check.
func (d *Document) Check(now time.Time, size int64) error {
	if !now.Before(d.Expiration) {
		return ErrPolicyExpired
	}
	if size < 0 {
		return nil
	}
	min, max, ok := d.contentLengthRange()
	if !ok {
		return nil
	}
	if size < min || size > max {
		return fmt.Errorf("%w: %d not in [%d, %d]", ErrContentLength, size, min, max)
	}
	return nil
}

func (d *Document) contentLengthRange() (int64, int64, bool) {
	for _, c := range d.Conditions {
		if len(c) != 3 {
			continue
		}
		if name, _ := c[0].(string); name != ConditionContentLengthRange {
			continue
		}
		min, okMin := toInt64(c[1])
		max, okMax := toInt64(c[2])
		if okMin && okMax {
			return min, max, true
		}
	}
	return 0, 0, false
}

func toInt64(v any) (int64, bool) {
	switch n := v.(type) {
	case int64:
		return n, true
	case int:
		return int64(n), true
	case float64:
		return int64(n), true
	case json.Number:
		i, err := n.Int64()
		return i, err == nil
	}
	return 0, false
}

// Sign computes Base64(HMAC-SHA1(secret, encodedPolicy)).
func Sign(secret, encodedPolicy string) string {
	h := hmac.New(sha1.New, []byte(secret))
	h.Write([]byte(encodedPolicy))
	return base64.StdEncoding.EncodeToString(h.Sum(nil))
}

// Verify reports ErrSignatureMismatch unless signature was produced by Sign with the
// same secret and policy.
func Verify(secret, encodedPolicy, signature string) error {
	expected := Sign(secret, encodedPolicy)
	// constant-time comparison
	if !hmac.Equal([]byte(signature), []byte(expected)) {
		return ErrSignatureMismatch
	}
	return nil
}
