// Copyright (c) 2023-2025 RapidaAI
// Author: Prashant Srivastav <prashant@rapida.ai>
//
// Licensed under GPL-2.0 with Rapida Additional Terms.
// See LICENSE.md or contact sales@rapida.ai for commercial usage.

package internal_registry

import (
	"time"

	internal_session "github.com/rapidaai/callbridge/api/call-api/internal/session"
)

// Status represents the lifecycle state of an in-flight call.
type Status string

const (
	// StatusInitiated indicates the outbound call was accepted by the
	// carrier but no media stream has attached yet.
	StatusInitiated Status = "initiated"
	// StatusActive indicates the media WebSocket is connected.
	StatusActive Status = "active"
	// StatusTransferring indicates an operator requested a transfer and
	// the carrier has been asked to re-fetch call-control instructions.
	StatusTransferring Status = "transferring"
	// StatusTransferred indicates the transfer document was served.
	// Terminal: the record must never re-enter StatusActive.
	StatusTransferred Status = "transferred"
)

// String returns the string representation of Status.
func (s Status) String() string {
	return string(s)
}

// IsTerminal returns true once the call left the bot's hands.
func (s Status) IsTerminal() bool {
	return s == StatusTransferred
}

// CallRecord tracks one in-flight call, keyed by the carrier-assigned
// call UUID. The session back reference is live only while the media
// stream is connected and is never owned by the registry.
type CallRecord struct {
	CallUUID  string    `json:"callUuid"`
	Status    Status    `json:"status"`
	StartedAt time.Time `json:"startedAt"`

	// PendingRedirect is set when a transfer is requested and cleared,
	// exactly once, by the /answer handler that serves the transfer
	// document.
	PendingRedirect bool `json:"pendingRedirect"`

	// Path is the WebSocket route the carrier connected on.
	Path string `json:"path,omitempty"`

	RecordingID  string `json:"recordingId,omitempty"`
	RecordingURL string `json:"recordingUrl,omitempty"`

	session *internal_session.Session
}

// Session returns the live media session, nil when no stream is attached.
func (r *CallRecord) Session() *internal_session.Session {
	return r.session
}

// snapshotCopy returns a serializable copy without the session handle.
func (r *CallRecord) snapshotCopy() CallRecord {
	cp := *r
	cp.session = nil
	return cp
}
