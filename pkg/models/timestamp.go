package models

import (
	"math"
	"time"
)

// TimestampLayout is the millisecond-precision layout used for the local and
// UTC renderings of every timestamp written to the logs.
const TimestampLayout = "2006-01-02 15:04:05.000"

// EventTime is the timestamp attached to every JSONL record.
type EventTime struct {
	Local string  `json:"local"`
	UTC   string  `json:"utc"`
	Unix  float64 `json:"unix"`
}

// SessionTime is the timestamp shape used inside SessionInfo. It differs from
// EventTime only in the name of the unix field.
type SessionTime struct {
	Local         string  `json:"local"`
	UTC           string  `json:"utc"`
	UnixTimestamp float64 `json:"unix_timestamp"`
}

// NewEventTime renders t in both local and UTC form with millisecond precision.
func NewEventTime(t time.Time) EventTime {
	return EventTime{
		Local: t.Local().Format(TimestampLayout),
		UTC:   t.UTC().Format(TimestampLayout),
		Unix:  UnixSeconds(t),
	}
}

// NewSessionTime renders t for a SessionInfo start or end field.
func NewSessionTime(t time.Time) SessionTime {
	return SessionTime{
		Local:         t.Local().Format(TimestampLayout),
		UTC:           t.UTC().Format(TimestampLayout),
		UnixTimestamp: UnixSeconds(t),
	}
}

// Time converts the unix field back into a time.Time.
func (t EventTime) Time() time.Time {
	return FromUnixSeconds(t.Unix)
}

// Time converts the unix_timestamp field back into a time.Time.
func (t SessionTime) Time() time.Time {
	return FromUnixSeconds(t.UnixTimestamp)
}

// UnixSeconds returns t as fractional seconds since the epoch, truncated to
// millisecond precision.
func UnixSeconds(t time.Time) float64 {
	return float64(t.UnixMilli()) / 1000
}

// FromUnixSeconds is the inverse of UnixSeconds.
func FromUnixSeconds(s float64) time.Time {
	sec, frac := math.Modf(s)
	return time.Unix(int64(sec), int64(math.Round(frac*1e3))*int64(time.Millisecond))
}
