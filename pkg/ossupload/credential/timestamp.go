package credential

import (
	"bytes"
	"encoding/json"
	"strconv"
	"strings"
	"time"
)

// timestampLayouts are the expiration formats seen from credential backends.
var timestampLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02T15:04:05",
	"2006-01-02 15:04:05",
}

// Timestamp is a credential expiration. Decoding accepts RFC 3339 strings,
// "2006-01-02 15:04:05" strings, and epoch seconds or milliseconds as number or string.
// Empty or unrecognised values decode to the zero Timestamp, meaning no expiration.
type Timestamp struct {
	time.Time
}

// NewTimestamp wraps t
func NewTimestamp(t time.Time) Timestamp {
	return Timestamp{Time: t}
}

func (ts Timestamp) MarshalJSON() ([]byte, error) {
	if ts.IsZero() {
		return []byte(`""`), nil
	}
	return json.Marshal(ts.Time.UTC().Format(time.RFC3339))
}

func (ts *Timestamp) UnmarshalJSON(data []byte) error {
	ts.Time = time.Time{}

	data = bytes.TrimSpace(data)
	if len(data) == 0 || bytes.Equal(data, []byte("null")) {
		return nil
	}

	if data[0] == '"' {
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return nil
		}
		ts.Time = parseTimestamp(strings.TrimSpace(s))
		return nil
	}

	ts.Time = parseEpoch(string(data))
	return nil
}

func parseTimestamp(s string) time.Time {
	if s == "" {
		return time.Time{}
	}
	for _, layout := range timestampLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t
		}
	}
	return parseEpoch(s)
}

// parseEpoch reads seconds, or milliseconds for values past year 33658 in seconds.
func parseEpoch(s string) time.Time {
	n, err := strconv.ParseFloat(s, 64)
	if err != nil || n <= 0 {
		return time.Time{}
	}
	if n >= 1e12 {
		return time.UnixMilli(int64(n))
	}
	return time.Unix(int64(n), 0)
}
