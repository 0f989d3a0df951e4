package guard

import (
	"time"

	"clipguard/internal/wallet"
)

// State identifies the monitor's protection state. PendingProtection and
// ProtectionSession are mutually exclusive: exactly one of them is non-nil
// in StatePending and StateActive respectively, neither in StateIdle.
type State int

const (
	// StateIdle means no address is being tracked.
	StateIdle State = iota
	// StatePending means an address was captured and awaits confirmation.
	StatePending
	// StateActive means a protection session is enforcing the clipboard.
	StateActive
)

// String returns the state name.
func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StatePending:
		return "pending"
	case StateActive:
		return "active"
	default:
		return "unknown"
	}
}

// PendingProtection holds the just-copied candidate during the confirmation
// window. The fingerprint is computed from the clipboard content at the
// instant of detection, before any event is emitted, so malware reacting to
// the confirmation prompt is already too late to swap unnoticed.
type PendingProtection struct {
	// Address is the normalized address, used for display and events.
	Address string

	// Content is the trimmed clipboard text as captured. Restores and
	// fingerprint comparisons use this, never a normalized form.
	Content string

	// Fingerprint is the digest of Content at capture time.
	Fingerprint string

	Coin       wallet.Coin
	CapturedAt time.Time

	// responded is the single-consume token: confirm, dismiss, tamper
	// abort, and the deadline all race for it, and only the first wins.
	responded bool
}

// ProtectionSession is the active, time-boxed guarded state. Created only
// from a successfully re-verified PendingProtection.
type ProtectionSession struct {
	// Content is the protected clipboard text, restored verbatim on any
	// foreign write.
	Content string

	// Fingerprint is write-once: carried over from capture time, never
	// recomputed from clipboard content after creation.
	Fingerprint string

	// Address is the normalized address for events and status.
	Address string

	Coin      wallet.Coin
	StartedAt time.Time
	Duration  time.Duration
}

// Remaining returns the session time left at now, clamped at zero.
func (s *ProtectionSession) Remaining(now time.Time) time.Duration {
	r := s.Duration - now.Sub(s.StartedAt)
	if r < 0 {
		return 0
	}
	return r
}

// Status is a point-in-time snapshot of the monitor for the control
// socket and CLI. Addresses are truncated so status output stays safe to
// paste into bug reports.
type Status struct {
	State          string        `json:"state"`
	Coin           string        `json:"coin,omitempty"`
	AddressPrefix  string        `json:"address_prefix,omitempty"`
	Remaining      time.Duration `json:"remaining,omitempty"`
	PendingAge     time.Duration `json:"pending_age,omitempty"`
	ThreatsBlocked uint64        `json:"threats_blocked"`
	Running        bool          `json:"running"`
}

// addressPrefix returns a short identifying prefix of an address.
func addressPrefix(addr string) string {
	if len(addr) <= 10 {
		return addr
	}
	return addr[:10] + "…"
}
