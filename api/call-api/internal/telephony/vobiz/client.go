// Copyright (c) 2023-2025 RapidaAI
// Author: Prashant Srivastav <prashant@rapida.ai>
//
// Licensed under GPL-2.0 with Rapida Additional Terms.
// See LICENSE.md or contact sales@rapida.ai for commercial usage.

// Package internal_vobiz talks to the Vobiz carrier REST API: placing
// outbound calls, redirecting live call legs, and fetching recording
// files. All requests authenticate with the account header pair.
package internal_vobiz

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/go-resty/resty/v2"

	"github.com/rapidaai/callbridge/pkg/commons"
)

const (
	headerAuthID    = "X-Auth-ID"
	headerAuthToken = "X-Auth-Token"

	defaultTimeout = 30 * time.Second
)

// CarrierError reports a non-success response from the carrier API.
type CarrierError struct {
	Op         string
	StatusCode int
	Body       string
}

func (e *CarrierError) Error() string {
	return fmt.Sprintf("vobiz %s failed with status %d: %s", e.Op, e.StatusCode, e.Body)
}

// Client is the carrier-facing surface used by the call API.
type Client interface {
	// PlaceCall initiates an outbound call and returns the carrier call
	// UUID once the carrier accepts the request.
	PlaceCall(ctx context.Context, to, from, answerURL string) (string, error)

	// RedirectCall points the A-leg of a live call at a new answer URL.
	RedirectCall(ctx context.Context, callUUID, alegURL string) error

	// DownloadRecording fetches a recording file with account
	// authentication and returns its raw bytes.
	DownloadRecording(ctx context.Context, recordingURL string) ([]byte, error)
}

type vobizClient struct {
	http   *resty.Client
	authID string
	logger commons.Logger
}

// NewClient builds a carrier client against the given API base URL,
// for example https://api.vobiz.ai.
func NewClient(baseURL, authID, authToken string, logger commons.Logger) Client {
	httpClient := resty.New().
		SetBaseURL(baseURL).
		SetTimeout(defaultTimeout).
		SetHeader(headerAuthID, authID).
		SetHeader(headerAuthToken, authToken).
		SetHeader("Content-Type", "application/json")
	return &vobizClient{
		http:   httpClient,
		authID: authID,
		logger: logger,
	}
}

type placeCallRequest struct {
	To           string `json:"to"`
	From         string `json:"from"`
	AnswerURL    string `json:"answer_url"`
	AnswerMethod string `json:"answer_method"`
}

type placeCallResponse struct {
	RequestUUID string `json:"request_uuid"`
	CallUUID    string `json:"call_uuid"`
	Message     string `json:"message"`
}

func (c *vobizClient) PlaceCall(ctx context.Context, to, from, answerURL string) (string, error) {
	var out placeCallResponse
	resp, err := c.http.R().
		SetContext(ctx).
		SetBody(placeCallRequest{
			To:           to,
			From:         from,
			AnswerURL:    answerURL,
			AnswerMethod: http.MethodPost,
		}).
		SetResult(&out).
		Post(fmt.Sprintf("/api/v1/Account/%s/Call/", c.authID))
	if err != nil {
		return "", fmt.Errorf("failed to reach carrier: %w", err)
	}
	if resp.StatusCode() != http.StatusCreated {
		return "", &CarrierError{Op: "place call", StatusCode: resp.StatusCode(), Body: string(resp.Body())}
	}

	// Newer API versions return request_uuid, older ones call_uuid.
	callUUID := out.RequestUUID
	if callUUID == "" {
		callUUID = out.CallUUID
	}
	if callUUID == "" {
		return "", &CarrierError{Op: "place call", StatusCode: resp.StatusCode(), Body: "response missing call identifier"}
	}

	c.logger.Info("carrier accepted outbound call", "call_uuid", callUUID, "to", to)
	return callUUID, nil
}

type redirectRequest struct {
	Legs    string `json:"legs"`
	AlegURL string `json:"aleg_url"`
}

func (c *vobizClient) RedirectCall(ctx context.Context, callUUID, alegURL string) error {
	resp, err := c.http.R().
		SetContext(ctx).
		SetBody(redirectRequest{Legs: "aleg", AlegURL: alegURL}).
		Post(fmt.Sprintf("/api/v1/Account/%s/Call/%s/", c.authID, callUUID))
	if err != nil {
		return fmt.Errorf("failed to reach carrier: %w", err)
	}
	if resp.StatusCode() != http.StatusAccepted {
		return &CarrierError{Op: "redirect call", StatusCode: resp.StatusCode(), Body: string(resp.Body())}
	}

	c.logger.Info("carrier accepted call redirect", "call_uuid", callUUID, "aleg_url", alegURL)
	return nil
}

func (c *vobizClient) DownloadRecording(ctx context.Context, recordingURL string) ([]byte, error) {
	resp, err := c.http.R().
		SetContext(ctx).
		Get(recordingURL)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch recording: %w", err)
	}
	if resp.StatusCode() != http.StatusOK {
		return nil, &CarrierError{Op: "download recording", StatusCode: resp.StatusCode(), Body: string(resp.Body())}
	}
	return resp.Body(), nil
}
