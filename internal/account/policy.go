package account

import (
	"fmt"
	"time"
)

// Policy contains the time windows of a flow kind.
type Policy struct {
	// Validity is how long a token can be confirmed after it was requested.
	Validity time.Duration
	// Cooldown is the minimum time between two tokens sent for the same account.
	// Zero disables the cooldown.
	Cooldown time.Duration
}

// Validate checks the policy windows are usable.
func (p Policy) Validate() error {
	if p.Validity <= 0 {
		return fmt.Errorf("validity must be positive, got %s", p.Validity)
	}
	if p.Cooldown < 0 {
		return fmt.Errorf("cooldown can't be negative, got %s", p.Cooldown)
	}
	return nil
}

// LifetimeMinutes is the validity in whole minutes, rounded up.
func (p Policy) LifetimeMinutes() int {
	return int((p.Validity + time.Minute - 1) / time.Minute)
}

// HasElapsed reports whether window has passed since ref, that is ref+window < now.
func HasElapsed(ref time.Time, window time.Duration, now time.Time) bool {
	return ref.Add(window).Before(now)
}
