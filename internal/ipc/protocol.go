// Package ipc provides communication between the clipguard daemon and its
// control CLI.
//
// The protocol is newline-delimited JSON over a Unix domain socket: one
// request line in, one response line out, connection per command. The
// command set is small enough that framing and correlation machinery would
// outweigh the protocol itself.
package ipc

import (
	"clipguard/internal/guard"
	"clipguard/internal/stats"
)

// ProtocolVersion guards against daemon/CLI skew.
const ProtocolVersion = 1

// Command names accepted by the daemon.
const (
	CmdPing     = "ping"
	CmdStatus   = "status"
	CmdConfirm  = "confirm"
	CmdDismiss  = "dismiss"
	CmdCancel   = "cancel"
	CmdStats    = "stats"
	CmdShutdown = "shutdown"
)

// Request is a single command from a client.
type Request struct {
	Version int    `json:"version"`
	Command string `json:"command"`
}

// Response is the daemon's reply.
type Response struct {
	OK    bool   `json:"ok"`
	Error string `json:"error,omitempty"`

	// Status is set for status responses.
	Status *guard.Status `json:"status,omitempty"`

	// Stats is set for stats responses.
	Stats *stats.Snapshot `json:"stats,omitempty"`
}

// errorResponse builds a failed Response.
func errorResponse(msg string) Response {
	return Response{OK: false, Error: msg}
}
