// Copyright (c) 2023-2025 RapidaAI
// Author: Prashant Srivastav <prashant@rapida.ai>
//
// Licensed under GPL-2.0 with Rapida Additional Terms.
// See LICENSE.md or contact sales@rapida.ai for commercial usage.

// Package internal_bot owns the lifetime of a carrier media session
// once the WebSocket is attached: either relaying frames to an upstream
// bot or draining the stream when no bot is configured.
package internal_bot

import (
	"context"
	"errors"
	"fmt"
	"net"

	"github.com/gorilla/websocket"
	"golang.org/x/sync/errgroup"

	internal_session "github.com/rapidaai/callbridge/api/call-api/internal/session"
	"github.com/rapidaai/callbridge/pkg/commons"
)

// Handler runs a media session to completion. Handle returns when the
// carrier closes the stream, the upstream bot disconnects, or ctx is
// cancelled.
type Handler interface {
	Handle(ctx context.Context, session *internal_session.Session) error
}

// NewHandler picks the session strategy: a bidirectional relay when an
// upstream bot URL is configured, otherwise a drain that keeps the
// carrier stream alive without media processing.
func NewHandler(botURL string, logger commons.Logger) Handler {
	if botURL == "" {
		return &drainHandler{logger: logger}
	}
	return &relayHandler{botURL: botURL, logger: logger}
}

// drainHandler reads and discards carrier frames so the carrier keeps
// the call up until the far end hangs up.
type drainHandler struct {
	logger commons.Logger
}

func (h *drainHandler) Handle(ctx context.Context, session *internal_session.Session) error {
	h.logger.Warn("no bot configured, draining media stream", "call_uuid", session.CallUUID)
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}
		if _, _, err := session.Conn().ReadMessage(); err != nil {
			if isExpectedClose(err) {
				return nil
			}
			return fmt.Errorf("carrier stream closed: %w", err)
		}
	}
}

// relayHandler dials the upstream bot and pumps frames both ways until
// either side closes.
type relayHandler struct {
	botURL string
	logger commons.Logger
}

func (h *relayHandler) Handle(ctx context.Context, session *internal_session.Session) error {
	botConn, _, err := websocket.DefaultDialer.DialContext(ctx, h.botURL, nil)
	if err != nil {
		return fmt.Errorf("failed to connect upstream bot: %w", err)
	}
	defer botConn.Close()

	h.logger.Info("bot relay established", "call_uuid", session.CallUUID, "bot_url", h.botURL)

	// Closing the counterpart when one direction finishes unblocks the
	// other pump's read; gorilla reads are not context-aware.
	group, ctx := errgroup.WithContext(ctx)
	group.Go(func() error {
		defer botConn.Close()
		return pump(ctx, "carrier->bot", session.Conn(), botConn)
	})
	group.Go(func() error {
		defer session.Close()
		return pumpToSession(ctx, botConn, session)
	})

	err = group.Wait()
	if err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	return nil
}

func pump(ctx context.Context, direction string, src, dst *websocket.Conn) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}
		messageType, payload, err := src.ReadMessage()
		if err != nil {
			if isExpectedClose(err) {
				return nil
			}
			return fmt.Errorf("%s read failed: %w", direction, err)
		}
		if err := dst.WriteMessage(messageType, payload); err != nil {
			return fmt.Errorf("%s write failed: %w", direction, err)
		}
	}
}

// pumpToSession writes through the session so frames interleave safely
// with any other writer on the carrier socket.
func pumpToSession(ctx context.Context, src *websocket.Conn, session *internal_session.Session) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}
		messageType, payload, err := src.ReadMessage()
		if err != nil {
			if isExpectedClose(err) {
				return nil
			}
			return fmt.Errorf("bot->carrier read failed: %w", err)
		}
		if err := session.WriteMessage(messageType, payload); err != nil {
			return fmt.Errorf("bot->carrier write failed: %w", err)
		}
	}
}

// isExpectedClose treats a peer hangup or a locally closed socket (the
// other pump finished first) as normal teardown.
func isExpectedClose(err error) bool {
	if websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
		return true
	}
	return errors.Is(err, net.ErrClosed)
}
