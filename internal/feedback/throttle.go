package feedback

import "time"

// Throttle enforces minimum wall-clock intervals between surfaced
// notifications: one cooldown for spoken corrections and a separate,
// typically longer, cooldown for repeated positioning warnings. Both are
// measured from the last-fired timestamp, independent of frame rate.
//
// Throttle is pure over its inputs: the timestamps live in the session state and
// are owned by the state machine, so the reducer stays deterministic.
type Throttle struct {
	feedbackCooldown    time.Duration
	positioningCooldown time.Duration
}

// NewThrottle builds a Throttle from centralized tuning values.
func NewThrottle(feedbackCooldown, positioningCooldown time.Duration) *Throttle {
	return &Throttle{
		feedbackCooldown:    feedbackCooldown,
		positioningCooldown: positioningCooldown,
	}
}

// AllowFeedback reports whether a spoken correction may fire at now, given
// the last time one fired. A zero last timestamp always allows.
func (t *Throttle) AllowFeedback(last, now time.Time) bool {
	return last.IsZero() || now.Sub(last) >= t.feedbackCooldown
}

// AllowPositioning reports whether a positioning warning may fire at now.
func (t *Throttle) AllowPositioning(last, now time.Time) bool {
	return last.IsZero() || now.Sub(last) >= t.positioningCooldown
}
