// Copyright (c) 2023-2025 RapidaAI
// Author: Prashant Srivastav <prashant@rapida.ai>
//
// Licensed under GPL-2.0 with Rapida Additional Terms.
// See LICENSE.md or contact sales@rapida.ai for commercial usage.

package call_api

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	internal_bot "github.com/rapidaai/callbridge/api/call-api/internal/bot"
	internal_callcontrol "github.com/rapidaai/callbridge/api/call-api/internal/callcontrol"
	internal_recording "github.com/rapidaai/callbridge/api/call-api/internal/recording"
	internal_registry "github.com/rapidaai/callbridge/api/call-api/internal/registry"
	internal_vobiz "github.com/rapidaai/callbridge/api/call-api/internal/telephony/vobiz"
	"github.com/rapidaai/callbridge/config"
	"github.com/rapidaai/callbridge/pkg/commons"
)

const contentTypeXML = "application/xml"

type callApi struct {
	cfg        *config.AppConfig
	logger     commons.Logger
	registry   internal_registry.Registry
	carrier    internal_vobiz.Client
	downloader internal_recording.Downloader
	bot        internal_bot.Handler
}

// CallApi exposes the webhook, operator, and media endpoints of the
// call-control service.
type CallApi interface {
	StartCall(c *gin.Context)
	Answer(c *gin.Context)
	RecordingFinished(c *gin.Context)
	RecordingReady(c *gin.Context)
	TransferToHuman(c *gin.Context)
	InitiateTransfer(c *gin.Context)
	ActiveCalls(c *gin.Context)
	MediaStream(c *gin.Context)
}

func NewCallApi(
	cfg *config.AppConfig,
	logger commons.Logger,
	registry internal_registry.Registry,
	carrier internal_vobiz.Client,
	downloader internal_recording.Downloader,
	bot internal_bot.Handler,
) CallApi {
	return &callApi{
		cfg:        cfg,
		logger:     logger,
		registry:   registry,
		carrier:    carrier,
		downloader: downloader,
		bot:        bot,
	}
}

type startCallRequest struct {
	PhoneNumber string                 `json:"phone_number" binding:"required"`
	FromNumber  string                 `json:"from_number"`
	Body        map[string]interface{} `json:"body"`
}

// StartCall places an outbound call through the carrier and
// pre-registers the returned call UUID.
//
// @Router /start [post]
func (cApi *callApi) StartCall(c *gin.Context) {
	var req startCallRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "phone_number is required"})
		return
	}

	from := req.FromNumber
	if from == "" {
		from = cApi.cfg.VobizPhoneNumber
	}
	if from == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "no from_number given and no default outbound number configured"})
		return
	}

	host, protocol, err := internal_callcontrol.ResolveHostProtocol(cApi.cfg.PublicURL, c.Request)
	if err != nil {
		cApi.logger.Errorf("cannot resolve callback host: %v", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "cannot determine callback URL"})
		return
	}

	answerURL, err := internal_callcontrol.AnswerURL(protocol, host, req.Body)
	if err != nil {
		cApi.logger.Errorf("cannot build answer URL: %v", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "cannot build callback URL"})
		return
	}

	callUUID, err := cApi.carrier.PlaceCall(c.Request.Context(), req.PhoneNumber, from, answerURL)
	if err != nil {
		cApi.logger.Errorw("carrier rejected outbound call", "to", req.PhoneNumber, "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	cApi.registry.Register(callUUID, internal_registry.StatusInitiated)
	cApi.logger.Info("outbound call initiated", "call_uuid", callUUID, "to", req.PhoneNumber)

	c.JSON(http.StatusOK, gin.H{
		"call_uuid":    callUUID,
		"status":       "call_initiated",
		"phone_number": req.PhoneNumber,
	})
}

// Answer serves carrier call-control instructions. A pending transfer
// is consumed here exactly once; otherwise the stream document is
// served so the carrier opens the media WebSocket.
//
// @Router /answer [get]
// @Router /answer [post]
func (cApi *callApi) Answer(c *gin.Context) {
	callUUID := callUUIDParam(c)

	if callUUID != "" && cApi.registry.ConsumeTransferFlag(callUUID) {
		cApi.serveTransferDocument(c, callUUID)
		return
	}

	host, protocol, err := internal_callcontrol.ResolveHostProtocol(cApi.cfg.PublicURL, c.Request)
	if err != nil {
		// The carrier still needs a parseable document.
		cApi.logger.Errorf("cannot resolve host for answer: %v", err)
		c.Data(http.StatusOK, contentTypeXML, []byte(internal_callcontrol.EmptyDocument()))
		return
	}

	body, err := decodeBodyData(c.Query("body_data"))
	if err != nil {
		cApi.logger.Warn("discarding malformed body_data", "call_uuid", callUUID, "error", err.Error())
		body = nil
	}

	wsURL, err := internal_callcontrol.WebsocketURL(host, cApi.cfg.DeploymentEnvironment(), cApi.cfg.ServiceHost(), body)
	if err != nil {
		cApi.logger.Errorf("cannot build websocket URL: %v", err)
		c.Data(http.StatusOK, contentTypeXML, []byte(internal_callcontrol.EmptyDocument()))
		return
	}

	params := internal_callcontrol.StreamParams{
		WebsocketURL: wsURL,
		Greeting:     cApi.cfg.Greeting,
	}
	if cApi.cfg.RecordingEnabled {
		base := protocol + "://" + host
		params.Record = &internal_callcontrol.RecordParams{
			ActionURL:   base + "/recording-finished",
			CallbackURL: base + "/recording-ready",
			MaxLength:   cApi.cfg.RecordingMaxLength,
		}
	}

	doc, err := internal_callcontrol.StreamDocument(params)
	if err != nil {
		cApi.logger.Errorf("cannot render stream document: %v", err)
		c.Data(http.StatusOK, contentTypeXML, []byte(internal_callcontrol.EmptyDocument()))
		return
	}

	cApi.logger.Info("serving stream document", "call_uuid", callUUID, "websocket_url", wsURL)
	c.Data(http.StatusOK, contentTypeXML, []byte(doc))
}

func (cApi *callApi) serveTransferDocument(c *gin.Context, callUUID string) {
	doc, err := internal_callcontrol.TransferDocument(cApi.cfg.TransferAnnouncement, cApi.cfg.TransferNumber)
	if err != nil {
		cApi.logger.Errorf("cannot render transfer document: %v", err)
		c.Data(http.StatusOK, contentTypeXML, []byte(internal_callcontrol.EmptyDocument()))
		return
	}
	if err := cApi.registry.MarkTransferred(callUUID); err != nil {
		cApi.logger.Warn("transfer flag consumed for unknown call", "call_uuid", callUUID)
	}
	cApi.logger.Info("serving transfer document", "call_uuid", callUUID, "number", cApi.cfg.TransferNumber)
	c.Data(http.StatusOK, contentTypeXML, []byte(doc))
}

// RecordingFinished records the carrier-reported recording metadata on
// the call record. Tolerant of calls that already ended.
//
// @Router /recording-finished [post]
func (cApi *callApi) RecordingFinished(c *gin.Context) {
	callUUID := callUUIDParam(c)
	recordingID := firstParam(c, "RecordingID", "recording_id")
	recordingURL := firstParam(c, "RecordUrl", "RecordingUrl", "record_url")

	cApi.logger.Info("recording finished",
		"call_uuid", callUUID,
		"recording_id", recordingID,
		"duration_ms", firstParam(c, "RecordingDurationMs", "RecordingDuration"),
	)
	cApi.registry.RecordingFinished(callUUID, recordingID, recordingURL)

	c.Data(http.StatusOK, contentTypeXML, []byte(internal_callcontrol.EmptyDocument()))
}

// RecordingReady downloads the finished recording in the background
// and always acks the carrier immediately.
//
// @Router /recording-ready [post]
func (cApi *callApi) RecordingReady(c *gin.Context) {
	callUUID := callUUIDParam(c)
	recordingID := firstParam(c, "RecordingID", "recording_id")
	recordingURL := firstParam(c, "RecordUrl", "RecordingUrl", "record_url")

	if recordingID != "" && recordingURL != "" {
		go func() {
			ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
			defer cancel()
			if _, err := cApi.downloader.Download(ctx, recordingID, recordingURL); err != nil {
				cApi.logger.Errorw("recording download failed",
					"call_uuid", callUUID, "recording_id", recordingID, "error", err)
			}
		}()
	} else {
		cApi.logger.Warn("recording ready callback missing id or url", "call_uuid", callUUID)
	}

	c.Data(http.StatusOK, contentTypeXML, []byte(internal_callcontrol.EmptyDocument()))
}

// TransferToHuman returns the transfer document for the fixed human
// destination, independent of registry state.
//
// @Router /transfer-to-human [post]
func (cApi *callApi) TransferToHuman(c *gin.Context) {
	doc, err := internal_callcontrol.TransferDocument(cApi.cfg.TransferAnnouncement, cApi.cfg.TransferNumber)
	if err != nil {
		cApi.logger.Errorf("cannot render transfer document: %v", err)
		c.Data(http.StatusOK, contentTypeXML, []byte(internal_callcontrol.EmptyDocument()))
		return
	}
	c.Data(http.StatusOK, contentTypeXML, []byte(doc))
}

type initiateTransferRequest struct {
	CallUUID string `json:"call_uuid" binding:"required"`
}

// InitiateTransfer is the operator entry point for a mid-call handoff:
// flip the call to transferring, ask the carrier to re-fetch /answer
// for the caller leg, and arm the redirect flag that /answer consumes.
//
// @Router /initiate-transfer [post]
func (cApi *callApi) InitiateTransfer(c *gin.Context) {
	var req initiateTransferRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "call_uuid is required"})
		return
	}

	record, err := cApi.registry.RequestTransfer(req.CallUUID)
	switch err {
	case nil:
	case internal_registry.ErrCallNotFound:
		c.JSON(http.StatusNotFound, gin.H{"error": "call not found", "call_uuid": req.CallUUID})
		return
	case internal_registry.ErrCallAlreadyTransferred:
		c.JSON(http.StatusConflict, gin.H{"error": "call already transferred", "call_uuid": req.CallUUID})
		return
	default:
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	host, protocol, err := internal_callcontrol.ResolveHostProtocol(cApi.cfg.PublicURL, c.Request)
	if err != nil {
		cApi.logger.Errorf("cannot resolve host for transfer redirect: %v", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "cannot determine redirect URL"})
		return
	}
	alegURL := protocol + "://" + host + "/answer?CallUUID=" + req.CallUUID

	if err := cApi.carrier.RedirectCall(c.Request.Context(), req.CallUUID, alegURL); err != nil {
		cApi.logger.Errorw("carrier rejected call redirect", "call_uuid", req.CallUUID, "error", err)
		c.JSON(http.StatusBadGateway, gin.H{"error": err.Error(), "call_uuid": req.CallUUID})
		return
	}

	if err := cApi.registry.MarkPendingRedirect(req.CallUUID); err != nil {
		// The record vanished between RequestTransfer and now; the
		// carrier redirect is already in flight, so report it anyway.
		cApi.logger.Warn("call disappeared while arming transfer", "call_uuid", req.CallUUID)
	}

	cApi.logger.Info("transfer initiated", "call_uuid", req.CallUUID, "status", record.Status.String())
	c.JSON(http.StatusOK, gin.H{
		"call_uuid": req.CallUUID,
		"status":    internal_registry.StatusTransferring.String(),
	})
}

// ActiveCalls returns a diagnostic snapshot of the registry.
//
// @Router /active-calls [get]
func (cApi *callApi) ActiveCalls(c *gin.Context) {
	calls := cApi.registry.Snapshot()
	c.JSON(http.StatusOK, gin.H{
		"count": len(calls),
		"calls": calls,
	})
}

// callUUIDParam reads the call UUID from query or form, covering both
// the carrier's CallUUID convention and snake_case variants.
func callUUIDParam(c *gin.Context) string {
	return firstParam(c, "CallUUID", "call_uuid")
}

func firstParam(c *gin.Context, names ...string) string {
	for _, name := range names {
		if v := c.Query(name); v != "" {
			return v
		}
		if v := c.PostForm(name); v != "" {
			return v
		}
	}
	return ""
}
