package core

import (
	"time"
)

// Timestamp is a UTC instant with microsecond precision, the finest
// PostgreSQL stores, so stored runs compare equal after a round trip.
type Timestamp time.Time

// Now returns the current UTC time without a monotonic reading
func Now() Timestamp {
	return Timestamp(time.Now().UTC().Round(0).Truncate(time.Microsecond))
}

func (t Timestamp) Time() time.Time { return time.Time(t) }

func (t Timestamp) Before(u Timestamp) bool {
	return time.Time(t).Before(time.Time(u))
}

// MarshalText writes RFC 3339 with fractional seconds.
func (t Timestamp) MarshalText() ([]byte, error) {
	return time.Time(t).MarshalText()
}

func (t *Timestamp) UnmarshalText(b []byte) error {
	var tt time.Time
	if err := tt.UnmarshalText(b); err != nil {
		return err
	}
	*t = Timestamp(tt.UTC())
	return nil
}
