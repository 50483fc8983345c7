// Copyright (c) 2023-2025 RapidaAI
// Author: Prashant Srivastav <prashant@rapida.ai>
//
// Licensed under GPL-2.0 with Rapida Additional Terms.
// See LICENSE.md or contact sales@rapida.ai for commercial usage.

package internal_session

import (
	"encoding/base64"
	"encoding/json"
	"sync"

	"github.com/gorilla/websocket"
)

// Session wraps a live carrier media WebSocket together with the call it
// belongs to. The session is owned by the handler that accepted the
// socket; the call registry only keeps a back reference while the
// stream is connected.
type Session struct {
	CallUUID string
	// Path is the WebSocket route the carrier connected on (diagnostic;
	// Vobiz is not consistent about which one it dials).
	Path string
	// Body is the caller-supplied payload decoded from the base64 "body"
	// query parameter of the stream URL.
	Body map[string]interface{}

	conn    *websocket.Conn
	writeMu sync.Mutex
	closed  bool
}

// New wraps an accepted carrier WebSocket.
func New(callUUID, path string, body map[string]interface{}, conn *websocket.Conn) *Session {
	return &Session{
		CallUUID: callUUID,
		Path:     path,
		Body:     body,
		conn:     conn,
	}
}

// Conn exposes the underlying WebSocket connection.
func (s *Session) Conn() *websocket.Conn {
	return s.conn
}

// WriteMessage serializes concurrent writers onto the carrier socket.
func (s *Session) WriteMessage(messageType int, data []byte) error {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()
	return s.conn.WriteMessage(messageType, data)
}

// Close closes the carrier socket. Safe to call more than once.
func (s *Session) Close() error {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()
	if s.closed {
		return nil
	}
	s.closed = true
	return s.conn.Close()
}

// DecodeBody decodes the base64-of-JSON payload carried on the stream
// URL. An empty parameter yields an empty map, never an error.
func DecodeBody(encoded string) (map[string]interface{}, error) {
	body := map[string]interface{}{}
	if encoded == "" {
		return body, nil
	}
	raw, err := base64.StdEncoding.DecodeString(encoded)
	if err != nil {
		return nil, err
	}
	if err := json.Unmarshal(raw, &body); err != nil {
		return nil, err
	}
	return body, nil
}
