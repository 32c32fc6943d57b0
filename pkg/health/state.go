package health

import (
	"time"
)

// State is what the monitor remembers between evaluations.
type State struct {
	// Consecutive counts critical evaluations since the last healthy
	// one. Warning evaluations leave it as it is.
	Consecutive int
	LastAlert   time.Time
	Threshold   int
	Cooldown    time.Duration
}

// Observe folds a classification into the state, and reports whether
// an alert is due. Alerting doesn't reset the count; only a healthy
// evaluation does, so a continuing outage alerts again once per
// cooldown.
func (s *State) Observe(c Classification, now time.Time) bool {
	switch c {
	case Healthy:
		s.Consecutive = 0
	case Critical:
		s.Consecutive++
	}
	if s.Consecutive < s.Threshold {
		return false
	}
	if !s.LastAlert.IsZero() && now.Sub(s.LastAlert) < s.Cooldown {
		return false
	}
	s.LastAlert = now
	return true
}
