// Copyright (c) 2023-2025 RapidaAI
// Author: Prashant Srivastav <prashant@rapida.ai>
//
// Licensed under GPL-2.0 with Rapida Additional Terms.
// See LICENSE.md or contact sales@rapida.ai for commercial usage.

package internal_registry

import (
	"errors"
	"sync"
	"time"

	internal_session "github.com/rapidaai/callbridge/api/call-api/internal/session"
	"github.com/rapidaai/callbridge/pkg/commons"
)

var (
	// ErrCallNotFound is returned for lookups on unknown call UUIDs.
	ErrCallNotFound = errors.New("call not found")
	// ErrCallAlreadyTransferred is returned when a transfer is requested
	// on a call that already left the bot's hands.
	ErrCallAlreadyTransferred = errors.New("call already transferred")
)

// Registry tracks in-flight calls across asynchronous, independently
// arriving carrier callbacks and the media WebSocket lifecycle.
//
// Carrier callbacks (answer, recording events) and transfer requests can
// arrive in any order relative to each other and to the media stream.
// The registry is therefore the single source of truth for "is this call
// mid-transfer": per-call mutations are serialized behind one mutex so
// read-modify-write sequences on Status and PendingRedirect never
// interleave.
type Registry interface {
	// Register inserts a record if absent. Re-registering an existing
	// call UUID is a no-op: the carrier retries callbacks.
	Register(callUUID string, status Status) *CallRecord

	// Get returns a snapshot copy of the record, or ErrCallNotFound.
	Get(callUUID string) (CallRecord, error)

	// AttachSession transitions the record to StatusActive and stores the
	// session back reference, lazily creating the record for inbound
	// calls that were never pre-registered. A transferred record is left
	// untouched: it must never re-enter StatusActive.
	AttachSession(callUUID string, sess *internal_session.Session, path string)

	// RequestTransfer flips the call to StatusTransferring.
	// Fails with ErrCallNotFound on unknown calls and with
	// ErrCallAlreadyTransferred once the call is terminal.
	RequestTransfer(callUUID string) (CallRecord, error)

	// MarkPendingRedirect arms the flag consumed by the next /answer.
	MarkPendingRedirect(callUUID string) error

	// ConsumeTransferFlag atomically reads and clears PendingRedirect,
	// returning the prior value. Exactly-once: a second concurrent
	// consumer for the same call observes false. Unknown calls are
	// tolerated and report false.
	ConsumeTransferFlag(callUUID string) bool

	// MarkTransferred moves the call to its terminal state.
	MarkTransferred(callUUID string) error

	// DetachSession is called when a media session ends. A transferring
	// record is retained without its session so the transfer document
	// can still be served to the next /answer; anything else is deleted.
	DetachSession(callUUID string)

	// RecordingFinished stores the recording id and URL. Best-effort:
	// recordings may outlive the in-memory record, so an unknown call is
	// logged and dropped, never an error.
	RecordingFinished(callUUID, recordingID, recordingURL string)

	// Snapshot returns serializable copies of all records, session
	// handles excluded.
	Snapshot() []CallRecord
}

type memoryRegistry struct {
	mu     sync.Mutex
	calls  map[string]*CallRecord
	logger commons.Logger
}

// NewRegistry creates the process-wide in-memory call registry. It is
// constructed once at startup and injected into every handler; there is
// deliberately no package-level instance.
func NewRegistry(logger commons.Logger) Registry {
	return &memoryRegistry{
		calls:  make(map[string]*CallRecord),
		logger: logger,
	}
}

func (m *memoryRegistry) Register(callUUID string, status Status) *CallRecord {
	m.mu.Lock()
	defer m.mu.Unlock()

	if rec, ok := m.calls[callUUID]; ok {
		m.logger.Debugf("call %s already registered with status %s, keeping it", callUUID, rec.Status)
		return rec
	}

	rec := &CallRecord{
		CallUUID:  callUUID,
		Status:    status,
		StartedAt: time.Now(),
	}
	m.calls[callUUID] = rec

	m.logger.Info("registered call", "call_uuid", callUUID, "status", status.String())
	return rec
}

func (m *memoryRegistry) Get(callUUID string) (CallRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	rec, ok := m.calls[callUUID]
	if !ok {
		return CallRecord{}, ErrCallNotFound
	}
	return rec.snapshotCopy(), nil
}

func (m *memoryRegistry) AttachSession(callUUID string, sess *internal_session.Session, path string) {
	m.mu.Lock()
	defer m.mu.Unlock()

	rec, ok := m.calls[callUUID]
	if !ok {
		// Inbound call with no pre-registration.
		rec = &CallRecord{
			CallUUID:  callUUID,
			StartedAt: time.Now(),
		}
		m.calls[callUUID] = rec
		m.logger.Info("lazily created call record on stream attach", "call_uuid", callUUID, "path", path)
	}

	if rec.Status.IsTerminal() {
		m.logger.Warn("stream attached to transferred call, not reactivating",
			"call_uuid", callUUID,
			"path", path,
		)
		rec.Path = path
		return
	}

	rec.Status = StatusActive
	rec.Path = path
	rec.session = sess

	m.logger.Info("media session attached", "call_uuid", callUUID, "path", path)
}

func (m *memoryRegistry) RequestTransfer(callUUID string) (CallRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	rec, ok := m.calls[callUUID]
	if !ok {
		return CallRecord{}, ErrCallNotFound
	}
	if rec.Status.IsTerminal() {
		return CallRecord{}, ErrCallAlreadyTransferred
	}

	rec.Status = StatusTransferring
	m.logger.Info("call transferring", "call_uuid", callUUID)
	return rec.snapshotCopy(), nil
}

func (m *memoryRegistry) MarkPendingRedirect(callUUID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	rec, ok := m.calls[callUUID]
	if !ok {
		return ErrCallNotFound
	}
	rec.PendingRedirect = true
	return nil
}

func (m *memoryRegistry) ConsumeTransferFlag(callUUID string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()

	rec, ok := m.calls[callUUID]
	if !ok {
		return false
	}
	was := rec.PendingRedirect
	rec.PendingRedirect = false
	return was
}

func (m *memoryRegistry) MarkTransferred(callUUID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	rec, ok := m.calls[callUUID]
	if !ok {
		return ErrCallNotFound
	}
	rec.Status = StatusTransferred
	m.logger.Info("call transferred to human agent", "call_uuid", callUUID)
	return nil
}

func (m *memoryRegistry) DetachSession(callUUID string) {
	m.mu.Lock()
	defer m.mu.Unlock()

	rec, ok := m.calls[callUUID]
	if !ok {
		return
	}

	if rec.Status == StatusTransferring {
		// Keep the record: the carrier will call /answer again to fetch
		// the transfer document after the stream drops.
		rec.session = nil
		m.logger.Info("session detached, retaining transferring call", "call_uuid", callUUID)
		return
	}

	delete(m.calls, callUUID)
	m.logger.Info("session detached, call removed", "call_uuid", callUUID, "status", rec.Status.String())
}

func (m *memoryRegistry) RecordingFinished(callUUID, recordingID, recordingURL string) {
	m.mu.Lock()
	defer m.mu.Unlock()

	rec, ok := m.calls[callUUID]
	if !ok {
		// Recordings regularly finish after the call record was cleaned
		// up; that is expected, not an error.
		m.logger.Debugf("recording %s finished for unknown call %s, dropping", recordingID, callUUID)
		return
	}

	rec.RecordingID = recordingID
	rec.RecordingURL = recordingURL
	m.logger.Info("recording finished", "call_uuid", callUUID, "recording_id", recordingID)
}

func (m *memoryRegistry) Snapshot() []CallRecord {
	m.mu.Lock()
	defer m.mu.Unlock()

	out := make([]CallRecord, 0, len(m.calls))
	for _, rec := range m.calls {
		out = append(out, rec.snapshotCopy())
	}
	return out
}
