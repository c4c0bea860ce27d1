package buildtrace

import (
	"strings"
	"time"
)

// Timestamp is a span boundary in nanoseconds since the Unix epoch.
// The zero value is unset, which sinks interpret as "now".
type Timestamp struct {
	ns  int64
	set bool
}

// Unset returns the unset timestamp.
func Unset() Timestamp {
	return Timestamp{}
}

// At returns a resolved timestamp for ns nanoseconds since the epoch.
func At(ns int64) Timestamp {
	return Timestamp{ns: ns, set: true}
}

// FromTime returns a resolved timestamp for t.
func FromTime(t time.Time) Timestamp {
	return At(t.UnixNano())
}

// ParseTimestamp converts an ISO-8601 timestamp into a resolved Timestamp.
// The value is normalized to UTC and rounded to whole seconds.
func ParseTimestamp(s string) (Timestamp, error) {
	raw := strings.TrimSpace(s)
	t, err := time.Parse(time.RFC3339Nano, raw)
	if err != nil {
		return Unset(), &FormatError{Value: s, Cause: err}
	}
	return FromTime(t.UTC().Round(time.Second)), nil
}

// TimestampFromPtr parses an optional timestamp field. Absent or empty
// values are unset and are not an error.
func TimestampFromPtr(s *string) (Timestamp, error) {
	if s == nil || strings.TrimSpace(*s) == "" {
		return Unset(), nil
	}
	return ParseTimestamp(*s)
}

// IsSet reports whether the timestamp is resolved.
func (t Timestamp) IsSet() bool {
	return t.set
}

// UnixNano returns the nanosecond value. It is 0 for unset timestamps;
// check IsSet first.
func (t Timestamp) UnixNano() int64 {
	return t.ns
}

// Time returns the timestamp as UTC time, or the zero time when unset.
func (t Timestamp) Time() time.Time {
	if !t.set {
		return time.Time{}
	}
	return time.Unix(0, t.ns).UTC()
}

// Add shifts a resolved timestamp by d. Unset stays unset.
func (t Timestamp) Add(d time.Duration) Timestamp {
	if !t.set {
		return t
	}
	return At(t.ns + int64(d))
}

// Before reports whether both timestamps are resolved and t is earlier than u.
func (t Timestamp) Before(u Timestamp) bool {
	return t.set && u.set && t.ns < u.ns
}

// After reports whether both timestamps are resolved and t is later than u.
func (t Timestamp) After(u Timestamp) bool {
	return t.set && u.set && t.ns > u.ns
}

func (t Timestamp) String() string {
	if !t.set {
		return "unset"
	}
	return t.Time().Format(time.RFC3339Nano)
}

// MinOf returns the earliest resolved timestamp, ignoring unset values.
func MinOf(ts ...Timestamp) Timestamp {
	var out Timestamp
	for _, t := range ts {
		if !t.set {
			continue
		}
		if !out.set || t.ns < out.ns {
			out = t
		}
	}
	return out
}

// MaxOf returns the latest resolved timestamp, ignoring unset values.
func MaxOf(ts ...Timestamp) Timestamp {
	var out Timestamp
	for _, t := range ts {
		if !t.set {
			continue
		}
		if !out.set || t.ns > out.ns {
			out = t
		}
	}
	return out
}
