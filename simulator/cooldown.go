package simulator

import "time"

// Cooldown tracks a ready-at timestamp for internal-cooldown style gating.
type Cooldown struct {
	readyAt time.Duration
}

// Ready returns true if the cooldown has elapsed at the provided time.
func (c *Cooldown) Ready(now time.Duration) bool {
	return now >= c.readyAt
}

// Remaining returns the time left until the cooldown is ready.
func (c *Cooldown) Remaining(now time.Duration) time.Duration {
	if now >= c.readyAt {
		return 0
	}
	return c.readyAt - now
}

// Start makes the cooldown ready again after duration.
func (c *Cooldown) Start(now, duration time.Duration) {
	c.readyAt = now + duration
}

// ReadyAt returns the current ready timestamp.
func (c *Cooldown) ReadyAt() time.Duration {
	return c.readyAt
}

// Reset makes the cooldown immediately ready.
func (c *Cooldown) Reset() {
	c.readyAt = 0
}
