package guard

import (
	"time"

	"clipguard/internal/wallet"
)

// EventType distinguishes guard event types.
type EventType int

const (
	// EventCryptoDetected indicates a wallet address was copied and a
	// confirmation window opened.
	EventCryptoDetected EventType = iota
	// EventProtectionConfirmed indicates the user confirmed protection
	// and a session started.
	EventProtectionConfirmed
	// EventHijackDuringConfirmation indicates the clipboard was tampered
	// with between capture and the user's response.
	EventHijackDuringConfirmation
	// EventLockWarning indicates a foreign write was reverted while a
	// session was active. The session survives.
	EventLockWarning
	// EventSameAddressCopied indicates the protected address was copied
	// again while already protected.
	EventSameAddressCopied
	// EventPasteVerified indicates a paste of the protected address was
	// verified, ending the session.
	EventPasteVerified
	// EventSessionExpired indicates the session reached the end of its
	// time box without a verified paste.
	EventSessionExpired
	// EventTimeRemaining reports the session countdown. Emitted only when
	// the integer-second value changes.
	EventTimeRemaining
)

// String returns the event type name.
func (t EventType) String() string {
	switch t {
	case EventCryptoDetected:
		return "crypto_detected"
	case EventProtectionConfirmed:
		return "protection_confirmed"
	case EventHijackDuringConfirmation:
		return "hijack_during_confirmation"
	case EventLockWarning:
		return "lock_warning"
	case EventSameAddressCopied:
		return "same_address_copied"
	case EventPasteVerified:
		return "paste_verified"
	case EventSessionExpired:
		return "session_expired"
	case EventTimeRemaining:
		return "time_remaining"
	default:
		return "unknown"
	}
}

// Event is delivered to subscribers when guard state changes.
type Event struct {
	Type EventType

	// Coin is set for address-bearing events.
	Coin wallet.Coin

	// Address is the protected (normalized) address for detection,
	// confirmation, hijack, and paste events.
	Address string

	// Current is the foreign clipboard content observed during a hijack
	// or lock warning.
	Current string

	// Remaining is the session time left for TimeRemaining events.
	Remaining time.Duration

	Timestamp time.Time
}

// emit sends an event to all subscribers. Caller must hold m.mu.
// Sends are non-blocking; a subscriber that stops draining misses events
// rather than stalling the poll loop.
func (m *Monitor) emitLocked(ev Event) {
	for _, ch := range m.subscribers {
		select {
		case ch <- ev:
		default:
		}
	}
}

// Subscribe returns a channel of guard events. The channel is closed when
// the monitor stops. Subscribing to an already stopped monitor returns a
// closed channel.
func (m *Monitor) Subscribe() <-chan Event {
	m.mu.Lock()
	defer m.mu.Unlock()

	ch := make(chan Event, 64)
	if m.stopped {
		close(ch)
		return ch
	}
	m.subscribers = append(m.subscribers, ch)
	return ch
}
