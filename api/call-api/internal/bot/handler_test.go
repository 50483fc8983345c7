// Copyright (c) 2023-2025 RapidaAI
// Author: Prashant Srivastav <prashant@rapida.ai>
//
// Licensed under GPL-2.0 with Rapida Additional Terms.
// See LICENSE.md or contact sales@rapida.ai for commercial usage.

package internal_bot

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	internal_session "github.com/rapidaai/callbridge/api/call-api/internal/session"
	"github.com/rapidaai/callbridge/pkg/commons"
)

func newTestLogger(t *testing.T) commons.Logger {
	t.Helper()
	logger, err := commons.NewApplicationLogger(
		commons.Name("test-bot"),
		commons.Level("debug"),
	)
	require.NoError(t, err)
	return logger
}

var testUpgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool { return true },
}

// wsPair dials a throwaway WebSocket server and returns both ends:
// the server-side conn stands in for the carrier's connection to us,
// the client-side conn lets the test play the carrier.
func wsPair(t *testing.T) (serverSide, clientSide *websocket.Conn) {
	t.Helper()
	connCh := make(chan *websocket.Conn, 1)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := testUpgrader.Upgrade(w, r, nil)
		require.NoError(t, err)
		connCh <- conn
	}))
	t.Cleanup(srv.Close)

	wsURL := "ws" + strings.TrimPrefix(srv.URL, "http")
	client, _, err := websocket.DefaultDialer.Dial(wsURL, nil)
	require.NoError(t, err)
	t.Cleanup(func() { client.Close() })

	server := <-connCh
	t.Cleanup(func() { server.Close() })
	return server, client
}

func TestDrainHandler_ReturnsOnNormalClose(t *testing.T) {
	serverSide, clientSide := wsPair(t)
	session := internal_session.New("CA123", "/voice/ws", nil, serverSide)

	done := make(chan error, 1)
	go func() {
		done <- NewHandler("", newTestLogger(t)).Handle(context.Background(), session)
	}()

	require.NoError(t, clientSide.WriteMessage(websocket.BinaryMessage, []byte("audio")))
	require.NoError(t, clientSide.WriteControl(
		websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
		time.Now().Add(time.Second),
	))

	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("drain handler did not return after carrier close")
	}
}

func TestRelayHandler_ForwardsBothWays(t *testing.T) {
	botFrames := make(chan []byte, 1)
	botSrv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := testUpgrader.Upgrade(w, r, nil)
		require.NoError(t, err)
		defer conn.Close()

		_, payload, err := conn.ReadMessage()
		if err != nil {
			return
		}
		botFrames <- payload
		// Answer with a frame of its own, then hang up cleanly.
		_ = conn.WriteMessage(websocket.BinaryMessage, []byte("bot-audio"))
		_ = conn.WriteControl(
			websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
			time.Now().Add(time.Second),
		)
		_, _, _ = conn.ReadMessage()
	}))
	defer botSrv.Close()
	botURL := "ws" + strings.TrimPrefix(botSrv.URL, "http")

	serverSide, clientSide := wsPair(t)
	session := internal_session.New("CA123", "/voice/ws", nil, serverSide)

	done := make(chan error, 1)
	go func() {
		done <- NewHandler(botURL, newTestLogger(t)).Handle(context.Background(), session)
	}()

	require.NoError(t, clientSide.WriteMessage(websocket.BinaryMessage, []byte("carrier-audio")))

	select {
	case payload := <-botFrames:
		assert.Equal(t, []byte("carrier-audio"), payload)
	case <-time.After(5 * time.Second):
		t.Fatal("bot never received the carrier frame")
	}

	_, payload, err := clientSide.ReadMessage()
	require.NoError(t, err)
	assert.Equal(t, []byte("bot-audio"), payload)

	// The relay may already have torn the carrier socket down after the
	// bot hung up, so a close here is best-effort.
	_ = clientSide.WriteControl(
		websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
		time.Now().Add(time.Second),
	)

	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("relay handler did not return")
	}
}

func TestRelayHandler_BotUnreachable(t *testing.T) {
	serverSide, _ := wsPair(t)
	session := internal_session.New("CA123", "/voice/ws", nil, serverSide)

	err := NewHandler("ws://127.0.0.1:1/ws", newTestLogger(t)).Handle(context.Background(), session)
	assert.Error(t, err)
}
