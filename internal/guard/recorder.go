package guard

import (
	"time"

	"clipguard/internal/wallet"
)

// Recorder receives usage statistics from the monitor. Calls are
// fire-and-forget: the monitor never inspects results and implementations
// must not block the poll loop.
type Recorder interface {
	// RecordCheck is called once per processed clipboard change.
	RecordCheck()

	// RecordCopy is called when a wallet address is detected.
	RecordCopy(coin wallet.Coin)

	// RecordSafePaste is called when a paste of the protected address
	// is verified.
	RecordSafePaste()

	// RecordThreatBlocked is called for every hijack that was detected
	// and neutralized, during confirmation or in-session.
	RecordThreatBlocked()

	// RecordProtectionActivation is called when a session starts.
	RecordProtectionActivation(duration time.Duration)
}

// NopRecorder discards all statistics.
type NopRecorder struct{}

func (NopRecorder) RecordCheck()                             {}
func (NopRecorder) RecordCopy(wallet.Coin)                   {}
func (NopRecorder) RecordSafePaste()                         {}
func (NopRecorder) RecordThreatBlocked()                     {}
func (NopRecorder) RecordProtectionActivation(time.Duration) {}
