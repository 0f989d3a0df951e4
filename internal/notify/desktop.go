package notify

import (
	"fmt"

	"github.com/godbus/dbus/v5"

	"clipguard/internal/guard"
)

// Notification service constants (org.freedesktop.Notifications).
const (
	notifyService   = "org.freedesktop.Notifications"
	notifyPath      = "/org/freedesktop/Notifications"
	notifyMethod    = "org.freedesktop.Notifications.Notify"
	notifyTimeoutMs = 8000
)

// DesktopSink sends freedesktop.org desktop notifications over D-Bus.
// Available on Linux desktops running a notification service; NewDesktopSink
// fails cleanly elsewhere and the daemon falls back to the log sink.
type DesktopSink struct {
	conn          *dbus.Conn
	showAddresses bool

	// lastID lets consecutive notifications replace each other instead
	// of stacking up during an attack burst.
	lastID uint32
}

// NewDesktopSink connects to the session bus notification service.
func NewDesktopSink(showAddresses bool) (*DesktopSink, error) {
	conn, err := dbus.SessionBus()
	if err != nil {
		return nil, fmt.Errorf("connect session bus: %w", err)
	}
	return &DesktopSink{conn: conn, showAddresses: showAddresses}, nil
}

// Notify renders the event and sends it as a desktop notification.
func (s *DesktopSink) Notify(ev guard.Event) error {
	summary, body := Render(ev, s.showAddresses)

	urgency := byte(1) // normal
	switch ev.Type {
	case guard.EventHijackDuringConfirmation, guard.EventLockWarning:
		urgency = 2 // critical
	case guard.EventSameAddressCopied:
		urgency = 0 // low
	}

	obj := s.conn.Object(notifyService, notifyPath)
	call := obj.Call(notifyMethod, 0,
		"clipguard",          // app_name
		s.lastID,             // replaces_id
		"security-high",      // app_icon
		summary,              // summary
		body,                 // body
		[]string{},           // actions
		map[string]dbus.Variant{
			"urgency": dbus.MakeVariant(urgency),
		},
		int32(notifyTimeoutMs),
	)
	if call.Err != nil {
		return fmt.Errorf("send notification: %w", call.Err)
	}
	return call.Store(&s.lastID)
}

// Close releases the bus connection.
func (s *DesktopSink) Close() error {
	return s.conn.Close()
}
