// Package clipboard provides system clipboard access with a monotonic
// change counter.
//
// The guard's poller needs two things the raw OS clipboard does not give
// uniformly across platforms: a cheap "did anything change" signal and a
// write primitive whose own effect can be distinguished from foreign
// writes. Accessor implementations maintain a counter that advances on
// every observed content change, including changes caused by Write.
package clipboard

import (
	"crypto/sha256"
	"errors"
	"sync"

	"github.com/atotto/clipboard"
)

// ErrUnavailable is returned when the system clipboard cannot be reached
// (no display server, headless session, unsupported platform).
var ErrUnavailable = errors.New("clipboard: unavailable")

// Accessor reads and writes the clipboard.
//
// Read returns the current change counter alongside the content so a caller
// can atomically learn both "what" and "which version". Write returns the
// counter its own write produced, taken under the accessor's lock, so a
// caller restoring content can mark exactly that write as seen; a foreign
// write racing the restore lands on a later counter and is still observed.
// Counters are monotonic per accessor, not globally meaningful.
type Accessor interface {
	Read() (counter uint64, text string, err error)
	Write(text string) (counter uint64, err error)
}

// System is an Accessor over the real OS clipboard.
//
// The underlying library exposes no native change counter, so System derives
// one: each Read hashes the content and bumps the counter when the hash
// differs from the previous observation. Write bumps it unconditionally.
type System struct {
	mu       sync.Mutex
	counter  uint64
	lastHash [sha256.Size]byte
	primed   bool
}

// NewSystem returns a system clipboard accessor.
func NewSystem() *System {
	return &System{}
}

// Available reports whether the OS clipboard can be read at all.
func Available() bool {
	_, err := clipboard.ReadAll()
	return err == nil
}

// Read returns the clipboard text and the derived change counter.
func (s *System) Read() (uint64, string, error) {
	text, err := clipboard.ReadAll()
	if err != nil {
		return 0, "", ErrUnavailable
	}
	return s.observe(text), text, nil
}

// observe folds the content into the derived change counter.
func (s *System) observe(text string) uint64 {
	s.mu.Lock()
	defer s.mu.Unlock()

	h := sha256.Sum256([]byte(text))
	if !s.primed || h != s.lastHash {
		s.counter++
		s.lastHash = h
		s.primed = true
	}
	return s.counter
}

// Write replaces the clipboard content and returns the resulting counter.
func (s *System) Write(text string) (uint64, error) {
	if err := clipboard.WriteAll(text); err != nil {
		return 0, ErrUnavailable
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.counter++
	s.lastHash = sha256.Sum256([]byte(text))
	s.primed = true
	return s.counter, nil
}

// Memory is an in-process Accessor used by tests and by the daemon's
// dry-run mode. Writes from any goroutine bump the counter, which makes
// hijack scenarios straightforward to script.
type Memory struct {
	mu      sync.Mutex
	counter uint64
	text    string
	readErr error
}

// NewMemory returns an in-memory accessor holding the given initial text.
func NewMemory(text string) *Memory {
	return &Memory{text: text, counter: 1}
}

// Read returns the stored text and counter, or the injected read error.
func (m *Memory) Read() (uint64, string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.readErr != nil {
		return 0, "", m.readErr
	}
	return m.counter, m.text, nil
}

// Write stores text and returns the advanced counter.
func (m *Memory) Write(text string) (uint64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.text = text
	m.counter++
	return m.counter, nil
}

// SetReadError makes subsequent Reads fail with err (nil clears it).
// Models binary or otherwise unreadable clipboard content.
func (m *Memory) SetReadError(err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.readErr = err
}

// Counter returns the current change counter without touching content.
func (m *Memory) Counter() uint64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.counter
}
