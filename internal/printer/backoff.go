package printer

import (
	"fmt"
	"time"
)

// Default reconnect timing: a flat five second pause between attempts.
const (
	defaultReconnectDelay = 5 * time.Second
	defaultMultiplier     = 1.0
)

// ReconnectPolicy describes the delay between connection attempts.
//
// The first delay is InitialDelay. Each further consecutive failure
// multiplies the delay by Multiplier, capped at MaxDelay. A successful
// connection resets the sequence. With MaxDelay equal to InitialDelay the
// delay is constant.
type ReconnectPolicy struct {
	InitialDelay time.Duration
	MaxDelay     time.Duration
	Multiplier   float64
}

// DefaultReconnectPolicy returns the flat five second policy.
func DefaultReconnectPolicy() ReconnectPolicy {
	return ReconnectPolicy{
		InitialDelay: defaultReconnectDelay,
		MaxDelay:     defaultReconnectDelay,
		Multiplier:   defaultMultiplier,
	}
}

// withDefaults fills zero fields.
func (p ReconnectPolicy) withDefaults() ReconnectPolicy {
	if p.InitialDelay <= 0 {
		p.InitialDelay = defaultReconnectDelay
	}
	if p.MaxDelay <= 0 {
		p.MaxDelay = p.InitialDelay
	}
	if p.Multiplier == 0 {
		p.Multiplier = defaultMultiplier
	}
	return p
}

// Validate reports an unusable policy.
func (p ReconnectPolicy) Validate() error {
	p = p.withDefaults()
	if p.MaxDelay < p.InitialDelay {
		return fmt.Errorf("%w: reconnect max delay %v below initial delay %v",
			ErrInvalidConfig, p.MaxDelay, p.InitialDelay)
	}
	if p.Multiplier < 1 {
		return fmt.Errorf("%w: reconnect multiplier %v below 1", ErrInvalidConfig, p.Multiplier)
	}
	return nil
}

// backoff walks the delay sequence of a policy. Not safe for concurrent use.
type backoff struct {
	policy ReconnectPolicy
	next   time.Duration
}

func newBackoff(p ReconnectPolicy) *backoff {
	p = p.withDefaults()
	return &backoff{policy: p, next: p.InitialDelay}
}

// Next returns the delay to wait now and advances the sequence.
func (b *backoff) Next() time.Duration {
	d := b.next
	grown := time.Duration(float64(b.next) * b.policy.Multiplier)
	if grown > b.policy.MaxDelay {
		grown = b.policy.MaxDelay
	}
	b.next = grown
	return d
}

// Reset restarts the sequence at InitialDelay.
func (b *backoff) Reset() {
	b.next = b.policy.InitialDelay
}
