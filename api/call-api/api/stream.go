// Copyright (c) 2023-2025 RapidaAI
// Author: Prashant Srivastav <prashant@rapida.ai>
//
// Licensed under GPL-2.0 with Rapida Additional Terms.
// See LICENSE.md or contact sales@rapida.ai for commercial usage.

package call_api

import (
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	internal_session "github.com/rapidaai/callbridge/api/call-api/internal/session"
)

var mediaUpgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin:     func(r *http.Request) bool { return true },
}

// MediaStream accepts the carrier's media WebSocket, binds it to the
// call record, and hands the session to the bot. The record is always
// detached on exit; detach decides whether the record survives based
// on transfer state.
//
// @Router /voice/ws [get]
func (cApi *callApi) MediaStream(c *gin.Context) {
	conn, err := mediaUpgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		cApi.logger.Errorf("websocket upgrade failed: %v", err)
		return
	}

	callUUID := callUUIDParam(c)
	if callUUID == "" {
		// Inbound streams may arrive without an id; mint one so the
		// registry can still track the session.
		callUUID = uuid.New().String()
		cApi.logger.Warn("media stream without call id", "assigned_uuid", callUUID)
	}

	body, err := internal_session.DecodeBody(c.Query("body"))
	if err != nil {
		cApi.logger.Warn("discarding malformed body parameter", "call_uuid", callUUID, "error", err.Error())
		body = map[string]interface{}{}
	}

	session := internal_session.New(callUUID, c.Request.URL.Path, body, conn)
	defer session.Close()

	cApi.registry.AttachSession(callUUID, session, c.Request.URL.Path)
	defer cApi.registry.DetachSession(callUUID)

	cApi.logger.Info("media stream attached", "call_uuid", callUUID, "path", c.Request.URL.Path)
	if err := cApi.bot.Handle(c.Request.Context(), session); err != nil {
		cApi.logger.Warn("media session ended with error", "call_uuid", callUUID, "error", err.Error())
	}
	cApi.logger.Info("media stream detached", "call_uuid", callUUID)
}

// decodeBodyData parses the percent-encoded JSON payload carried on the
// answer URL's body_data parameter. Gin has already percent-decoded the
// query value by the time it reaches here.
func decodeBodyData(raw string) (map[string]interface{}, error) {
	if raw == "" {
		return nil, nil
	}
	var body map[string]interface{}
	if err := json.Unmarshal([]byte(raw), &body); err != nil {
		return nil, fmt.Errorf("invalid body_data payload: %w", err)
	}
	return body, nil
}
