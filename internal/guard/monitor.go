// Package guard implements the clipboard protection state machine.
//
// The monitor polls the clipboard on a short interval, captures an
// immutable fingerprint the instant a wallet address is copied, runs an
// opt-in confirmation window that is itself watchdog-checked for
// tampering, and enforces clipboard integrity for the lifetime of a
// confirmed, time-boxed protection session.
//
// Concurrency model: four periodic activities touch the same state (the
// poller, the confirmation watchdog, the expiry countdown, and external
// paste signals). All of them are serialized through one mutex, and the
// watchdog/expiry cadences are derived from the poll loop's clock rather
// than scheduled independently, so no two timers can ever disagree about
// what the state is.
package guard

import (
	"context"
	"errors"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"clipguard/internal/clipboard"
	"clipguard/internal/fingerprint"
	"clipguard/internal/logging"
	"clipguard/internal/wallet"
)

var (
	// ErrAlreadyRunning is returned when Start is called while running.
	ErrAlreadyRunning = errors.New("guard: already running")

	// ErrNoPending is returned for confirm/dismiss with nothing pending.
	// Callers treat it as informational; the monitor logs and ignores.
	ErrNoPending = errors.New("guard: no pending protection")

	// ErrTampered is returned by Confirm when the clipboard no longer
	// matches the captured fingerprint. No session is created.
	ErrTampered = errors.New("guard: clipboard changed during confirmation")
)

// ClassifyFunc decides whether text is a wallet address.
type ClassifyFunc func(text string) (wallet.Classification, bool)

// Config holds the monitor's timing constants.
type Config struct {
	// PollInterval is how often the clipboard change counter is checked.
	PollInterval time.Duration

	// TickInterval is the watchdog/expiry check cadence. Derived checks
	// run on poll ticks, so this must be >= PollInterval.
	TickInterval time.Duration

	// ConfirmTimeout auto-dismisses an unanswered confirmation window.
	ConfirmTimeout time.Duration

	// SessionDuration is the protection session time box.
	SessionDuration time.Duration
}

// DefaultConfig returns the default monitor timing.
func DefaultConfig() Config {
	return Config{
		PollInterval:    5 * time.Millisecond,
		TickInterval:    100 * time.Millisecond,
		ConfirmTimeout:  10 * time.Second,
		SessionDuration: 120 * time.Second,
	}
}

// Monitor owns the protection state machine.
type Monitor struct {
	mu sync.Mutex

	cfg      Config
	clip     clipboard.Accessor
	classify ClassifyFunc
	stats    Recorder
	log      *logging.Logger

	// Protection state. Exactly one of pending/session is non-nil in
	// StatePending/StateActive; both are nil in StateIdle.
	state   State
	pending *PendingProtection
	session *ProtectionSession

	// lastCounter is the last processed clipboard change counter. Updated
	// unconditionally on every observed change so nothing is reprocessed,
	// and bumped past the monitor's own restoring writes.
	lastCounter uint64
	counterSeen bool

	// monitoredFP is transient bookkeeping for the most recent
	// classified-or-not content. Cleared on unreadable or non-crypto
	// content; never affects pending or session state.
	monitoredFP string

	// lastSlowCheck gates the TickInterval-derived watchdog/expiry work.
	lastSlowCheck time.Time

	// lastWholeSec is the last emitted integer-second countdown value.
	lastWholeSec int64

	threats atomic.Uint64

	subscribers []chan Event

	// now is injectable for tests.
	now func() time.Time

	running bool
	stopped bool
	cancel  context.CancelFunc
	wg      sync.WaitGroup
}

// New creates a monitor. classify defaults to the wallet package
// classifier and stats to a no-op recorder when nil.
func New(cfg Config, clip clipboard.Accessor, classify ClassifyFunc, stats Recorder, log *logging.Logger) *Monitor {
	if classify == nil {
		classify = func(text string) (wallet.Classification, bool) {
			return wallet.Classify(text)
		}
	}
	if stats == nil {
		stats = NopRecorder{}
	}
	if log == nil {
		log = logging.Default()
	}
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = DefaultConfig().PollInterval
	}
	if cfg.TickInterval < cfg.PollInterval {
		cfg.TickInterval = cfg.PollInterval
	}

	return &Monitor{
		cfg:      cfg,
		clip:     clip,
		classify: classify,
		stats:    stats,
		log:      log.WithComponent("guard"),
		state:    StateIdle,
		now:      time.Now,
	}
}

// Start begins polling. The loop runs until Stop or ctx cancellation.
func (m *Monitor) Start(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.running {
		return ErrAlreadyRunning
	}

	ctx, m.cancel = context.WithCancel(ctx)
	m.running = true
	m.stopped = false
	m.lastSlowCheck = m.now()

	// Prime the counter so content already on the clipboard at startup
	// is not treated as a fresh copy.
	if counter, _, err := m.clip.Read(); err == nil {
		m.lastCounter = counter
		m.counterSeen = true
	}

	m.wg.Add(1)
	go m.run(ctx)
	return nil
}

// Stop halts polling and closes subscriber channels.
func (m *Monitor) Stop() {
	m.mu.Lock()
	if !m.running {
		m.mu.Unlock()
		return
	}
	m.running = false
	cancel := m.cancel
	m.mu.Unlock()

	cancel()
	m.wg.Wait()

	m.mu.Lock()
	defer m.mu.Unlock()
	m.stopped = true
	for _, ch := range m.subscribers {
		close(ch)
	}
	m.subscribers = nil
}

// Running reports whether the poll loop is active.
func (m *Monitor) Running() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.running
}

func (m *Monitor) run(ctx context.Context) {
	defer m.wg.Done()

	ticker := time.NewTicker(m.cfg.PollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			m.step()
		}
	}
}

// step is one iteration of the unified scheduler: the poll-path change
// detection plus, every TickInterval, the watchdog/expiry checks. No error
// in any branch stops the loop.
func (m *Monitor) step() {
	now := m.now()
	counter, text, err := m.clip.Read()

	m.mu.Lock()
	defer m.mu.Unlock()

	if err != nil {
		// Binary or unreadable clipboard data: no crypto content.
		// Informational bookkeeping is cleared; pending captures and
		// active sessions are only cleared by their own rules.
		m.monitoredFP = ""
	} else if !m.counterSeen || counter != m.lastCounter {
		m.lastCounter = counter
		m.counterSeen = true
		m.handleChangeLocked(now, text)
	}

	if now.Sub(m.lastSlowCheck) >= m.cfg.TickInterval {
		m.lastSlowCheck = now
		m.slowCheckLocked(now, text, err)
	}
}

// handleChangeLocked processes a detected clipboard change.
func (m *Monitor) handleChangeLocked(now time.Time, raw string) {
	trimmed := strings.TrimSpace(raw)
	fp := fingerprint.Hash(trimmed)
	m.stats.RecordCheck()

	switch m.state {
	case StateActive:
		if fingerprint.Equal(fp, m.session.Fingerprint) {
			// Same-content re-write: no enforcement needed. A re-copy
			// of the protected address is acknowledged without opening
			// a new confirmation window.
			if cls, ok := m.classify(trimmed); ok {
				m.log.Debug("protected address copied again", "coin", cls.Coin)
				m.emitLocked(Event{
					Type:      EventSameAddressCopied,
					Coin:      cls.Coin,
					Address:   m.session.Address,
					Timestamp: now,
				})
			}
			return
		}
		m.enforceLocked(now, trimmed)

	case StatePending:
		// The poll path catches tampering faster than the 100ms
		// watchdog; both land in the same abort.
		if !fingerprint.Equal(fp, m.pending.Fingerprint) {
			m.abortPendingLocked(now, trimmed)
		}

	case StateIdle:
		cls, ok := m.classify(trimmed)
		if !ok {
			m.monitoredFP = ""
			return
		}

		// Capture before anything externally visible happens. The
		// fingerprint taken here is the one the eventual session will
		// carry; it is never recomputed.
		m.monitoredFP = fp
		m.pending = &PendingProtection{
			Address:     cls.Normalized,
			Content:     trimmed,
			Fingerprint: fp,
			Coin:        cls.Coin,
			CapturedAt:  now,
		}
		m.state = StatePending
		m.stats.RecordCopy(cls.Coin)

		m.log.Info("wallet address detected", "coin", cls.Coin, "address", cls.Normalized)
		m.emitLocked(Event{
			Type:      EventCryptoDetected,
			Coin:      cls.Coin,
			Address:   cls.Normalized,
			Timestamp: now,
		})
	}
}

// enforceLocked is the in-session guard: a foreign write is reverted and
// warned about; the session's identity and remaining time are unaffected.
func (m *Monitor) enforceLocked(now time.Time, current string) {
	counter, err := m.clip.Write(m.session.Content)
	if err != nil {
		m.log.Error("failed to restore protected clipboard", "error", err)
		// The foreign change stays unconsumed so the next tick retries
		// the restore instead of leaving the hijacked content in place.
		m.counterSeen = false
	} else {
		// Mark exactly the restoring write as seen, using its own counter.
		// A foreign write racing the restore produces a later counter and
		// is reprocessed on the next tick.
		m.lastCounter = counter
	}

	m.threats.Add(1)
	m.stats.RecordThreatBlocked()

	m.log.Warn("clipboard hijack blocked during active session",
		"coin", m.session.Coin, "foreign_content", current)
	m.emitLocked(Event{
		Type:      EventLockWarning,
		Coin:      m.session.Coin,
		Address:   m.session.Address,
		Current:   current,
		Timestamp: now,
	})
}

// abortPendingLocked handles tampering detected during the confirmation
// window, from the watchdog, the poll path, or a failed confirm.
func (m *Monitor) abortPendingLocked(now time.Time, current string) {
	p := m.pending
	p.responded = true

	m.threats.Add(1)
	m.stats.RecordThreatBlocked()

	m.log.Warn("clipboard hijack detected during confirmation",
		"coin", p.Coin, "address", p.Address, "foreign_content", current)
	m.emitLocked(Event{
		Type:      EventHijackDuringConfirmation,
		Coin:      p.Coin,
		Address:   p.Address,
		Current:   current,
		Timestamp: now,
	})

	m.pending = nil
	m.state = StateIdle
	m.monitoredFP = ""
}

// slowCheckLocked runs the TickInterval-derived work: the confirmation
// watchdog and deadline while pending, the expiry countdown while active.
// The two are mutually exclusive by construction.
func (m *Monitor) slowCheckLocked(now time.Time, text string, readErr error) {
	switch m.state {
	case StatePending:
		p := m.pending
		if readErr == nil {
			fp := fingerprint.HashTrimmed(text)
			if !fingerprint.Equal(fp, p.Fingerprint) {
				m.abortPendingLocked(now, strings.TrimSpace(text))
				return
			}
		}
		if now.Sub(p.CapturedAt) >= m.cfg.ConfirmTimeout {
			// Deadline: functionally a dismiss. The responded token
			// makes this a no-op if the user acted concurrently.
			if !p.responded {
				p.responded = true
				m.pending = nil
				m.state = StateIdle
				m.monitoredFP = ""
				m.log.Info("confirmation window timed out", "coin", p.Coin)
			}
		}

	case StateActive:
		remaining := m.session.Remaining(now)
		whole := int64(remaining / time.Second)
		if whole != m.lastWholeSec {
			m.lastWholeSec = whole
			m.emitLocked(Event{
				Type:      EventTimeRemaining,
				Coin:      m.session.Coin,
				Remaining: remaining,
				Timestamp: now,
			})
		}
		if remaining == 0 {
			s := m.session
			m.session = nil
			m.state = StateIdle
			m.monitoredFP = ""
			m.log.Info("protection session expired", "coin", s.Coin)
			m.emitLocked(Event{
				Type:      EventSessionExpired,
				Coin:      s.Coin,
				Address:   s.Address,
				Timestamp: now,
			})
		}
	}
}

// Confirm activates protection for the pending capture. The clipboard is
// re-read and re-verified first: a confirm must never trust state captured
// before the user's reaction time. On success the session carries the
// originally captured fingerprint, not the just-re-read one.
func (m *Monitor) Confirm() error {
	counter, text, readErr := m.clip.Read()

	m.mu.Lock()
	defer m.mu.Unlock()
	now := m.now()

	if m.state != StatePending || m.pending == nil || m.pending.responded {
		m.log.Debug("confirm with no pending protection")
		return ErrNoPending
	}
	p := m.pending

	if readErr != nil || strings.TrimSpace(text) == "" {
		// The original content can no longer be verified: treated
		// exactly like tampering.
		m.abortPendingLocked(now, "")
		return ErrTampered
	}

	trimmed := strings.TrimSpace(text)
	if !fingerprint.Equal(fingerprint.Hash(trimmed), p.Fingerprint) {
		m.abortPendingLocked(now, trimmed)
		return ErrTampered
	}

	// Verified: transition atomically. The re-read content is discarded;
	// the session is built from the capture.
	p.responded = true
	m.lastCounter = counter
	m.counterSeen = true
	m.session = &ProtectionSession{
		Content:     p.Content,
		Fingerprint: p.Fingerprint,
		Address:     p.Address,
		Coin:        p.Coin,
		StartedAt:   now,
		Duration:    m.cfg.SessionDuration,
	}
	m.pending = nil
	m.state = StateActive
	m.lastWholeSec = int64(m.cfg.SessionDuration / time.Second)
	m.stats.RecordProtectionActivation(m.cfg.SessionDuration)

	m.log.Info("protection session started",
		"coin", p.Coin, "address", p.Address, "duration", m.cfg.SessionDuration)
	m.emitLocked(Event{
		Type:      EventProtectionConfirmed,
		Coin:      p.Coin,
		Address:   p.Address,
		Remaining: m.cfg.SessionDuration,
		Timestamp: now,
	})
	return nil
}

// Dismiss clears the pending capture without starting a session. Emits no
// protection event; a dismissal is informational only.
func (m *Monitor) Dismiss() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.state != StatePending || m.pending == nil || m.pending.responded {
		m.log.Debug("dismiss with no pending protection")
		return ErrNoPending
	}

	m.pending.responded = true
	coin := m.pending.Coin
	m.pending = nil
	m.state = StateIdle
	m.monitoredFP = ""

	m.log.Info("protection dismissed", "coin", coin)
	return nil
}

// Cancel ends an active session early without a verified paste.
func (m *Monitor) Cancel() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.state != StateActive || m.session == nil {
		return ErrNoPending
	}

	coin := m.session.Coin
	m.session = nil
	m.state = StateIdle
	m.monitoredFP = ""

	m.log.Info("protection session cancelled", "coin", coin)
	return nil
}

// PasteSignal is called by the paste-detection collaborator when a paste
// is about to occur. The current clipboard content is treated as the
// paste's content: a match against the protected fingerprint verifies the
// paste and ends the session; anything else is a legitimate paste of
// unrelated content and passes silently.
func (m *Monitor) PasteSignal() {
	_, text, readErr := m.clip.Read()

	m.mu.Lock()
	defer m.mu.Unlock()
	now := m.now()

	if m.state != StateActive || m.session == nil || readErr != nil {
		return
	}

	fp := fingerprint.HashTrimmed(text)
	if !fingerprint.Equal(fp, m.session.Fingerprint) {
		return
	}

	s := m.session
	m.session = nil
	m.state = StateIdle
	m.monitoredFP = ""
	m.stats.RecordSafePaste()

	m.log.Info("paste verified, protection complete", "coin", s.Coin, "address", s.Address)
	m.emitLocked(Event{
		Type:      EventPasteVerified,
		Coin:      s.Coin,
		Address:   s.Address,
		Timestamp: now,
	})
}

// ThreatsBlocked returns the number of hijack attempts neutralized since
// the monitor was created.
func (m *Monitor) ThreatsBlocked() uint64 {
	return m.threats.Load()
}

// Status returns a snapshot of the monitor state.
func (m *Monitor) Status() Status {
	m.mu.Lock()
	defer m.mu.Unlock()
	now := m.now()

	st := Status{
		State:          m.state.String(),
		ThreatsBlocked: m.threats.Load(),
		Running:        m.running,
	}
	switch m.state {
	case StatePending:
		st.Coin = string(m.pending.Coin)
		st.AddressPrefix = addressPrefix(m.pending.Address)
		st.PendingAge = now.Sub(m.pending.CapturedAt)
	case StateActive:
		st.Coin = string(m.session.Coin)
		st.AddressPrefix = addressPrefix(m.session.Address)
		st.Remaining = m.session.Remaining(now)
	}
	return st
}
