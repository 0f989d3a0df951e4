// Package notify delivers guard events to the user.
//
// The guard core emits typed events and knows nothing about presentation;
// this package subscribes on its behalf and fans events out to sinks: a
// structured-log sink everywhere, and desktop notifications where a
// notification service is reachable. Widget rendering itself stays outside
// the daemon.
package notify

import (
	"fmt"
	"sync"

	"clipguard/internal/guard"
	"clipguard/internal/logging"
)

// Sink receives rendered guard events.
type Sink interface {
	// Notify delivers one event. Errors are logged, never propagated;
	// a broken notification channel must not affect protection.
	Notify(ev guard.Event) error
}

// Dispatcher drains a guard event subscription into sinks.
type Dispatcher struct {
	sinks []Sink
	log   *logging.Logger

	wg sync.WaitGroup
}

// NewDispatcher creates a dispatcher over the given sinks.
func NewDispatcher(log *logging.Logger, sinks ...Sink) *Dispatcher {
	if log == nil {
		log = logging.Default()
	}
	return &Dispatcher{
		sinks: sinks,
		log:   log.WithComponent("notify"),
	}
}

// Run consumes events until the channel closes (monitor stop).
func (d *Dispatcher) Run(events <-chan guard.Event) {
	d.wg.Add(1)
	go func() {
		defer d.wg.Done()
		for ev := range events {
			// Countdown ticks are status, not notifications.
			if ev.Type == guard.EventTimeRemaining {
				continue
			}
			for _, sink := range d.sinks {
				if err := sink.Notify(ev); err != nil {
					d.log.Debug("notification sink failed",
						"event", ev.Type.String(), "error", err)
				}
			}
		}
	}()
}

// Wait blocks until the event channel has been drained.
func (d *Dispatcher) Wait() {
	d.wg.Wait()
}

// Render returns a summary line and body for an event. ShowAddresses
// controls whether full addresses appear; the default keeps them to a
// short prefix.
func Render(ev guard.Event, showAddresses bool) (summary, body string) {
	addr := ev.Address
	if !showAddresses && len(addr) > 12 {
		addr = addr[:12] + "…"
	}

	switch ev.Type {
	case guard.EventCryptoDetected:
		return fmt.Sprintf("%s address copied", ev.Coin.DisplayName()),
			fmt.Sprintf("Protect %s against clipboard hijacking?", addr)
	case guard.EventProtectionConfirmed:
		return "Clipboard protection active",
			fmt.Sprintf("%s address %s is guarded for %s", ev.Coin.DisplayName(), addr, ev.Remaining)
	case guard.EventHijackDuringConfirmation:
		return "Clipboard hijack blocked",
			fmt.Sprintf("Your %s address was replaced before you confirmed. The copy was discarded.", ev.Coin.DisplayName())
	case guard.EventLockWarning:
		return "Clipboard hijack blocked",
			fmt.Sprintf("Something overwrote your protected %s address. It has been restored.", ev.Coin.DisplayName())
	case guard.EventSameAddressCopied:
		return fmt.Sprintf("%s address already protected", ev.Coin.DisplayName()), ""
	case guard.EventPasteVerified:
		return "Paste verified",
			fmt.Sprintf("Your %s address was pasted intact. Protection complete.", ev.Coin.DisplayName())
	case guard.EventSessionExpired:
		return "Clipboard protection ended",
			fmt.Sprintf("The session for %s expired without a paste.", addr)
	default:
		return ev.Type.String(), ""
	}
}

// LogSink writes every event to the structured log.
type LogSink struct {
	log *logging.Logger
}

// NewLogSink creates a sink logging to the given logger.
func NewLogSink(log *logging.Logger) *LogSink {
	if log == nil {
		log = logging.Default()
	}
	return &LogSink{log: log.WithComponent("events")}
}

// Notify logs the event at a severity matching its nature.
func (s *LogSink) Notify(ev guard.Event) error {
	attrs := []any{"event", ev.Type.String(), "coin", string(ev.Coin)}
	if ev.Address != "" {
		attrs = append(attrs, "address", ev.Address)
	}

	switch ev.Type {
	case guard.EventHijackDuringConfirmation, guard.EventLockWarning:
		s.log.Warn("clipboard threat", attrs...)
	default:
		s.log.Info("guard event", attrs...)
	}
	return nil
}
