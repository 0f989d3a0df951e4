package guard

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"clipguard/internal/clipboard"
	"clipguard/internal/fingerprint"
	"clipguard/internal/logging"
	"clipguard/internal/wallet"
)

const (
	btcAddr = "1A1zP1eP5QGefi2DMPTfTL5SLmv7DivfNa"
	ethAddr = "0x742d35Cc6634C0532925a3b844Bc454e4438f44e"
)

// fakeClock drives the monitor's injected time source.
type fakeClock struct {
	t time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{t: time.Date(2026, 3, 14, 9, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) now() time.Time {
	return c.t
}

func (c *fakeClock) advance(d time.Duration) {
	c.t = c.t.Add(d)
}

// recordingStats captures recorder calls for assertions.
type recordingStats struct {
	checks      int
	copies      []wallet.Coin
	safePastes  int
	threats     int
	activations []time.Duration
}

func (r *recordingStats) RecordCheck()             { r.checks++ }
func (r *recordingStats) RecordCopy(c wallet.Coin) { r.copies = append(r.copies, c) }
func (r *recordingStats) RecordSafePaste()         { r.safePastes++ }
func (r *recordingStats) RecordThreatBlocked()     { r.threats++ }
func (r *recordingStats) RecordProtectionActivation(d time.Duration) {
	r.activations = append(r.activations, d)
}

func quietLogger(t *testing.T) *logging.Logger {
	t.Helper()
	log, err := logging.New(&logging.Config{
		Level:  logging.LevelError,
		Output: "stderr",
	})
	require.NoError(t, err)
	return log
}

// newTestMonitor builds a monitor over an in-memory clipboard with a fake
// clock. Tests drive step() directly instead of running the poll loop.
func newTestMonitor(t *testing.T) (*Monitor, *clipboard.Memory, *fakeClock, *recordingStats, <-chan Event) {
	t.Helper()

	clip := clipboard.NewMemory("")
	clk := newFakeClock()
	stats := &recordingStats{}

	m := New(DefaultConfig(), clip, nil, stats, quietLogger(t))
	m.now = clk.now
	m.lastSlowCheck = clk.t

	events := m.Subscribe()

	// Consume the empty startup content so it never counts as a copy.
	m.step()
	drain(events)
	*stats = recordingStats{}

	return m, clip, clk, stats, events
}

// drain returns all currently buffered events.
func drain(ch <-chan Event) []Event {
	var out []Event
	for {
		select {
		case ev := <-ch:
			out = append(out, ev)
		default:
			return out
		}
	}
}

func eventsOfType(events []Event, t EventType) []Event {
	var out []Event
	for _, ev := range events {
		if ev.Type == t {
			out = append(out, ev)
		}
	}
	return out
}

func copyText(m *Monitor, clip *clipboard.Memory, text string) {
	clip.Write(text)
	m.step()
}

func TestDetectionCapturesFingerprintImmediately(t *testing.T) {
	m, clip, _, stats, events := newTestMonitor(t)

	copyText(m, clip, btcAddr)

	got := drain(events)
	detected := eventsOfType(got, EventCryptoDetected)
	require.Len(t, detected, 1, "exactly one CryptoDetected expected")
	assert.Equal(t, wallet.Bitcoin, detected[0].Coin)
	assert.Equal(t, btcAddr, detected[0].Address)

	require.Equal(t, StatePending, m.state)
	require.NotNil(t, m.pending)
	assert.Equal(t, fingerprint.Hash(btcAddr), m.pending.Fingerprint,
		"captured fingerprint must be the digest of the content at detection time")
	assert.Equal(t, []wallet.Coin{wallet.Bitcoin}, stats.copies)
	assert.Nil(t, m.session)
}

func TestDetectionTrimsWhitespace(t *testing.T) {
	m, clip, _, _, events := newTestMonitor(t)

	copyText(m, clip, "  "+btcAddr+"\n")

	got := eventsOfType(drain(events), EventCryptoDetected)
	require.Len(t, got, 1)
	require.NotNil(t, m.pending)
	assert.Equal(t, btcAddr, m.pending.Content)
	assert.Equal(t, fingerprint.Hash(btcAddr), m.pending.Fingerprint)
}

func TestNonAddressContentIsIgnored(t *testing.T) {
	m, clip, _, stats, events := newTestMonitor(t)

	copyText(m, clip, "hello world")

	assert.Empty(t, drain(events))
	assert.Equal(t, StateIdle, m.state)
	assert.Equal(t, 1, stats.checks)
	assert.Empty(t, stats.copies)
}

func TestWatchdogDetectsHijackDuringConfirmation(t *testing.T) {
	m, clip, clk, stats, events := newTestMonitor(t)

	copyText(m, clip, btcAddr)
	drain(events)

	// Malware swaps the address inside the confirmation window.
	clip.Write(ethAddr)
	clk.advance(100 * time.Millisecond)
	m.step()

	got := drain(events)
	hijacks := eventsOfType(got, EventHijackDuringConfirmation)
	require.Len(t, hijacks, 1, "exactly one hijack event expected")
	assert.Equal(t, btcAddr, hijacks[0].Address)
	assert.Equal(t, ethAddr, hijacks[0].Current)

	assert.Equal(t, StateIdle, m.state)
	assert.Nil(t, m.pending)
	assert.Nil(t, m.session, "no session may ever be created from a tampered pending state")
	assert.Equal(t, 1, stats.threats)
	assert.EqualValues(t, 1, m.ThreatsBlocked())

	// A late confirm is a no-op.
	assert.ErrorIs(t, m.Confirm(), ErrNoPending)
}

func TestConfirmVerifiesAndKeepsCapturedFingerprint(t *testing.T) {
	m, clip, _, stats, events := newTestMonitor(t)

	copyText(m, clip, btcAddr)
	captured := m.pending.Fingerprint
	drain(events)

	require.NoError(t, m.Confirm())

	got := drain(events)
	confirmed := eventsOfType(got, EventProtectionConfirmed)
	require.Len(t, confirmed, 1)
	assert.Equal(t, 120*time.Second, confirmed[0].Remaining)

	require.Equal(t, StateActive, m.state)
	require.NotNil(t, m.session)
	assert.Equal(t, captured, m.session.Fingerprint,
		"session must carry the originally captured fingerprint")
	assert.Equal(t, btcAddr, m.session.Content)
	assert.Nil(t, m.pending)
	assert.Equal(t, []time.Duration{120 * time.Second}, stats.activations)
}

func TestConfirmDetectsLastInstantTamper(t *testing.T) {
	m, clip, _, stats, events := newTestMonitor(t)

	copyText(m, clip, btcAddr)
	drain(events)

	// Swap happens after the last poll but before the user clicks.
	clip.Write(ethAddr)
	err := m.Confirm()
	require.ErrorIs(t, err, ErrTampered)

	got := drain(events)
	require.Len(t, eventsOfType(got, EventHijackDuringConfirmation), 1)
	assert.Nil(t, m.session)
	assert.Equal(t, StateIdle, m.state)
	assert.Equal(t, 1, stats.threats)
}

func TestConfirmWithUnreadableClipboardAborts(t *testing.T) {
	m, clip, _, _, events := newTestMonitor(t)

	copyText(m, clip, btcAddr)
	drain(events)

	clip.SetReadError(errors.New("no text data"))
	err := m.Confirm()
	require.ErrorIs(t, err, ErrTampered)

	require.Len(t, eventsOfType(drain(events), EventHijackDuringConfirmation), 1)
	assert.Equal(t, StateIdle, m.state)
	assert.Nil(t, m.session)
}

func TestDismissClearsPendingWithoutEvents(t *testing.T) {
	m, clip, _, _, events := newTestMonitor(t)

	copyText(m, clip, btcAddr)
	drain(events)

	require.NoError(t, m.Dismiss())
	assert.Empty(t, drain(events))
	assert.Equal(t, StateIdle, m.state)

	// Duplicate signals are no-ops.
	assert.ErrorIs(t, m.Dismiss(), ErrNoPending)
	assert.ErrorIs(t, m.Confirm(), ErrNoPending)
}

func TestConfirmationDeadlineAutoDismisses(t *testing.T) {
	m, clip, clk, stats, events := newTestMonitor(t)

	copyText(m, clip, btcAddr)
	drain(events)

	clk.advance(DefaultConfig().ConfirmTimeout)
	m.step()

	assert.Empty(t, drain(events), "timeout dismissal is silent")
	assert.Equal(t, StateIdle, m.state)
	assert.Nil(t, m.pending)
	assert.Zero(t, stats.threats)
	assert.ErrorIs(t, m.Confirm(), ErrNoPending)
}

func TestGuardRestoresForeignWrite(t *testing.T) {
	m, clip, clk, stats, events := newTestMonitor(t)

	copyText(m, clip, btcAddr)
	require.NoError(t, m.Confirm())
	drain(events)

	clk.advance(200 * time.Millisecond)
	clip.Write(ethAddr)
	m.step()

	got := drain(events)
	warnings := eventsOfType(got, EventLockWarning)
	require.Len(t, warnings, 1)
	assert.Equal(t, ethAddr, warnings[0].Current)
	assert.Empty(t, eventsOfType(got, EventCryptoDetected))
	assert.Empty(t, eventsOfType(got, EventHijackDuringConfirmation))

	_, text, err := clip.Read()
	require.NoError(t, err)
	assert.Equal(t, btcAddr, text, "protected content must be restored")

	require.Equal(t, StateActive, m.state)
	remaining := m.session.Remaining(clk.now())
	assert.InDelta(t, float64(120*time.Second-200*time.Millisecond), float64(remaining),
		float64(time.Millisecond), "remaining time unaffected by the attempt")
	assert.Equal(t, 1, stats.threats)

	// The restoring write itself is not reprocessed.
	m.step()
	assert.Empty(t, eventsOfType(drain(events), EventLockWarning))
}

func TestSameAddressRecopyShortcut(t *testing.T) {
	m, clip, _, _, events := newTestMonitor(t)

	copyText(m, clip, btcAddr)
	require.NoError(t, m.Confirm())
	drain(events)

	copyText(m, clip, btcAddr)

	got := drain(events)
	require.Len(t, eventsOfType(got, EventSameAddressCopied), 1)
	assert.Empty(t, eventsOfType(got, EventCryptoDetected), "no new confirmation prompt")
	assert.Empty(t, eventsOfType(got, EventLockWarning))
	assert.Equal(t, StateActive, m.state)
}

func TestPasteVerificationEndsSession(t *testing.T) {
	m, clip, _, stats, events := newTestMonitor(t)

	copyText(m, clip, btcAddr)
	require.NoError(t, m.Confirm())
	drain(events)

	m.PasteSignal()

	got := drain(events)
	verified := eventsOfType(got, EventPasteVerified)
	require.Len(t, verified, 1)
	assert.Equal(t, btcAddr, verified[0].Address)
	assert.Equal(t, StateIdle, m.state)
	assert.Nil(t, m.session)
	assert.Equal(t, 1, stats.safePastes)

	// A second signal is a no-op.
	m.PasteSignal()
	assert.Empty(t, drain(events))
}

func TestPasteOfUnrelatedContentIsIgnored(t *testing.T) {
	m, clip, _, stats, events := newTestMonitor(t)

	copyText(m, clip, btcAddr)
	require.NoError(t, m.Confirm())
	drain(events)

	// Unrelated content at paste time: no event, session untouched.
	// (Written without a poll step in between, as a paste of other
	// content would race the guard in the wild.)
	clip.Write("grocery list")
	m.PasteSignal()

	assert.Empty(t, drain(events))
	assert.Equal(t, StateActive, m.state)
	assert.Zero(t, stats.safePastes)
}

func TestPasteSignalWithoutSessionIsIgnored(t *testing.T) {
	m, clip, _, stats, events := newTestMonitor(t)

	copyText(m, clip, "not an address")
	m.PasteSignal()

	assert.Empty(t, drain(events))
	assert.Zero(t, stats.safePastes)
}

func TestExpiryCountsDownOnceToZero(t *testing.T) {
	m, clip, clk, _, events := newTestMonitor(t)

	copyText(m, clip, btcAddr)
	require.NoError(t, m.Confirm())
	drain(events)

	var remainingSeen []time.Duration
	var expired int
	for i := 0; i < 125; i++ {
		clk.advance(time.Second)
		m.step()
		for _, ev := range drain(events) {
			switch ev.Type {
			case EventTimeRemaining:
				remainingSeen = append(remainingSeen, ev.Remaining)
			case EventSessionExpired:
				expired++
			}
		}
	}

	require.NotEmpty(t, remainingSeen)
	for i := 1; i < len(remainingSeen); i++ {
		assert.Less(t, remainingSeen[i], remainingSeen[i-1],
			"remaining must strictly decrease")
	}
	assert.Equal(t, time.Duration(0), remainingSeen[len(remainingSeen)-1])
	assert.Equal(t, 1, expired, "SessionExpired fires exactly once")
	assert.Equal(t, StateIdle, m.state)

	// A fresh copy starts a new cycle.
	copyText(m, clip, ethAddr)
	require.Len(t, eventsOfType(drain(events), EventCryptoDetected), 1)
	assert.Equal(t, StatePending, m.state)
}

func TestUnreadableClipboardKeepsProtectionState(t *testing.T) {
	m, clip, clk, _, events := newTestMonitor(t)

	copyText(m, clip, btcAddr)
	require.NoError(t, m.Confirm())
	drain(events)

	clip.SetReadError(errors.New("binary clipboard data"))
	clk.advance(100 * time.Millisecond)
	m.step()

	assert.Equal(t, StateActive, m.state, "read failures never clear a session")
	assert.NotNil(t, m.session)

	clip.SetReadError(nil)
	m.step()
	assert.Equal(t, StateActive, m.state)
}

func TestStatusSnapshot(t *testing.T) {
	m, clip, _, _, _ := newTestMonitor(t)

	st := m.Status()
	assert.Equal(t, "idle", st.State)

	copyText(m, clip, btcAddr)
	st = m.Status()
	assert.Equal(t, "pending", st.State)
	assert.Equal(t, "bitcoin", st.Coin)
	assert.NotContains(t, st.AddressPrefix, btcAddr[12:],
		"status must not expose the full address")

	require.NoError(t, m.Confirm())
	st = m.Status()
	assert.Equal(t, "active", st.State)
	assert.Equal(t, 120*time.Second, st.Remaining)
}

// TestFullProtectionScenario walks the end-to-end flow: detect, confirm,
// block an in-session hijack, acknowledge a re-copy, verify the paste.
func TestFullProtectionScenario(t *testing.T) {
	m, clip, clk, stats, events := newTestMonitor(t)

	// Copy a Bitcoin address.
	copyText(m, clip, btcAddr)
	detected := eventsOfType(drain(events), EventCryptoDetected)
	require.Len(t, detected, 1)
	assert.Equal(t, wallet.Bitcoin, detected[0].Coin)

	// Confirm protection.
	require.NoError(t, m.Confirm())
	confirmed := eventsOfType(drain(events), EventProtectionConfirmed)
	require.Len(t, confirmed, 1)
	assert.Equal(t, 120*time.Second, m.session.Remaining(clk.now()))

	// 200ms later malware writes an Ethereum address.
	clk.advance(200 * time.Millisecond)
	clip.Write(ethAddr)
	m.step()
	require.Len(t, eventsOfType(drain(events), EventLockWarning), 1)
	_, text, _ := clip.Read()
	assert.Equal(t, btcAddr, text)
	assert.InDelta(t, float64(119800*time.Millisecond),
		float64(m.session.Remaining(clk.now())), float64(time.Millisecond))

	// Re-copying the protected address does not re-prompt.
	copyText(m, clip, btcAddr)
	got := drain(events)
	require.Len(t, eventsOfType(got, EventSameAddressCopied), 1)
	assert.Empty(t, eventsOfType(got, EventCryptoDetected))

	// The paste goes through intact.
	m.PasteSignal()
	require.Len(t, eventsOfType(drain(events), EventPasteVerified), 1)
	assert.Equal(t, StateIdle, m.state)
	assert.Equal(t, 1, stats.safePastes)
	assert.Equal(t, 1, stats.threats)
}

// rewritingAccessor reapplies a foreign payload right after every restore,
// modeling malware that wins the race between the guard's write and its
// next observation of the clipboard.
type rewritingAccessor struct {
	*clipboard.Memory
	payload  string
	rewrites int
}

func (a *rewritingAccessor) Write(text string) (uint64, error) {
	counter, err := a.Memory.Write(text)
	if err != nil || a.rewrites == 0 || text == a.payload {
		return counter, err
	}
	a.rewrites--
	a.Memory.Write(a.payload)
	return counter, err
}

// flakyWriteAccessor fails a number of writes before recovering.
type flakyWriteAccessor struct {
	*clipboard.Memory
	failures int
}

func (a *flakyWriteAccessor) Write(text string) (uint64, error) {
	if a.failures > 0 {
		a.failures--
		return 0, errors.New("clipboard busy")
	}
	return a.Memory.Write(text)
}

// newAccessorMonitor is newTestMonitor over a caller-supplied accessor.
func newAccessorMonitor(t *testing.T, clip clipboard.Accessor) (*Monitor, *fakeClock, *recordingStats, <-chan Event) {
	t.Helper()

	clk := newFakeClock()
	stats := &recordingStats{}
	m := New(DefaultConfig(), clip, nil, stats, quietLogger(t))
	m.now = clk.now
	m.lastSlowCheck = clk.t

	events := m.Subscribe()
	m.step()
	drain(events)
	*stats = recordingStats{}
	return m, clk, stats, events
}

func TestGuardRecoversFromRacingRewrites(t *testing.T) {
	clip := &rewritingAccessor{
		Memory:   clipboard.NewMemory(""),
		payload:  ethAddr,
		rewrites: 2,
	}
	m, clk, stats, events := newAccessorMonitor(t, clip)

	clip.Memory.Write(btcAddr)
	m.step()
	require.NoError(t, m.Confirm())
	drain(events)

	// Foreign write, then malware re-hijacks immediately after each of the
	// next two restores. Enforcement must observe every re-write and keep
	// restoring until the attacker gives up.
	clip.Memory.Write(ethAddr)
	for i := 0; i < 6; i++ {
		clk.advance(5 * time.Millisecond)
		m.step()
	}

	_, text, err := clip.Read()
	require.NoError(t, err)
	assert.Equal(t, btcAddr, text, "protected content must win once the re-writes stop")

	warnings := eventsOfType(drain(events), EventLockWarning)
	assert.Len(t, warnings, 3, "initial hijack plus both racing re-writes")
	assert.Equal(t, 3, stats.threats)
	assert.Equal(t, StateActive, m.state)
}

func TestGuardRetriesFailedRestore(t *testing.T) {
	clip := &flakyWriteAccessor{Memory: clipboard.NewMemory("")}
	m, clk, _, events := newAccessorMonitor(t, clip)

	clip.Memory.Write(btcAddr)
	m.step()
	require.NoError(t, m.Confirm())
	drain(events)

	clip.failures = 1
	clip.Memory.Write(ethAddr)

	clk.advance(5 * time.Millisecond)
	m.step()
	_, text, _ := clip.Read()
	assert.Equal(t, ethAddr, text, "first restore attempt fails")

	// The failed restore leaves the change unconsumed; the next tick
	// retries and succeeds.
	clk.advance(5 * time.Millisecond)
	m.step()
	_, text, _ = clip.Read()
	assert.Equal(t, btcAddr, text, "restore must be retried after a write failure")
	assert.Equal(t, StateActive, m.state)
	assert.NotEmpty(t, eventsOfType(drain(events), EventLockWarning))
}

func TestSubscribeAfterStopReturnsClosedChannel(t *testing.T) {
	m := New(DefaultConfig(), clipboard.NewMemory(""), nil, nil, quietLogger(t))
	require.NoError(t, m.Start(context.Background()))
	m.Stop()

	ch := m.Subscribe()
	select {
	case _, ok := <-ch:
		assert.False(t, ok, "channel from a stopped monitor must be closed")
	default:
		t.Fatal("subscription on a stopped monitor must not block")
	}
}

func TestStartStop(t *testing.T) {
	clip := clipboard.NewMemory("")
	m := New(DefaultConfig(), clip, nil, nil, quietLogger(t))
	events := m.Subscribe()

	require.NoError(t, m.Start(context.Background()))
	assert.True(t, m.Running())
	assert.ErrorIs(t, m.Start(context.Background()), ErrAlreadyRunning)

	m.Stop()
	assert.False(t, m.Running())

	// Subscriber channels close on stop.
	for range events {
	}

	// Stop is idempotent.
	m.Stop()
}
