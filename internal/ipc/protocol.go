// Package ipc implements the newline-delimited JSON control protocol spoken
// over the session's unix socket.
package ipc

import "github.com/rbright/steno/internal/pipeline"

// Commands understood by a running session.
const (
	CommandStatus = "status"
	CommandStop   = "stop"
)

// Request is one client command.
type Request struct {
	Command string `json:"command"`
}

// Response is the session's reply. Stats is set for status and stop.
type Response struct {
	OK             bool            `json:"ok"`
	State          string          `json:"state,omitempty"`
	Session        string          `json:"session,omitempty"`
	Message        string          `json:"message,omitempty"`
	Error          string          `json:"error,omitempty"`
	Stats          *pipeline.Stats `json:"stats,omitempty"`
	Transcriptions int64           `json:"transcriptions,omitempty"`
}
