package relay

import "time"

// DurationHistorySize bounds the rolling connection-lifetime history.
const DurationHistorySize = 100

// ConnectionStats records connect attempt/success counters and a bounded
// FIFO history of completed connection lifetimes. Pure bookkeeping, no
// policy. Not safe for concurrent use; the owning Connection serializes
// access.
type ConnectionStats struct {
	attempts    int
	successes   int
	durations   []time.Duration
	connectedAt time.Time
}

// RecordAttempt increments the attempt counter.
func (s *ConnectionStats) RecordAttempt() {
	s.attempts++
}

// RecordConnected increments the success counter and marks the start of
// the in-progress connection.
func (s *ConnectionStats) RecordConnected(now time.Time) {
	s.successes++
	s.connectedAt = now
}

// RecordDisconnected appends the completed connection's lifetime to the
// history, evicting the oldest entry once at capacity, and clears the
// start timestamp. A second call without an intervening RecordConnected
// is a no-op; this guards against duplicate disconnect notifications.
func (s *ConnectionStats) RecordDisconnected(now time.Time) {
	if s.connectedAt.IsZero() {
		return
	}
	d := now.Sub(s.connectedAt)
	s.connectedAt = time.Time{}

	if len(s.durations) >= DurationHistorySize {
		copy(s.durations, s.durations[1:])
		s.durations[len(s.durations)-1] = d
		return
	}
	s.durations = append(s.durations, d)
}

// Snapshot returns a read-only copy of the current stats.
func (s *ConnectionStats) Snapshot() StatsSnapshot {
	durations := make([]time.Duration, len(s.durations))
	copy(durations, s.durations)
	return StatsSnapshot{
		Attempts:    s.attempts,
		Successes:   s.successes,
		Durations:   durations,
		ConnectedAt: s.connectedAt,
	}
}

// StatsSnapshot is a point-in-time copy of a ConnectionStats.
type StatsSnapshot struct {
	Attempts    int
	Successes   int
	Durations   []time.Duration
	ConnectedAt time.Time // zero unless currently connected
}

// LastDuration returns the most recent completed connection lifetime, or
// zero and false when no lifetime has been recorded yet.
func (s StatsSnapshot) LastDuration() (time.Duration, bool) {
	if len(s.Durations) == 0 {
		return 0, false
	}
	return s.Durations[len(s.Durations)-1], true
}
