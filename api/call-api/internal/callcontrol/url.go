// Copyright (c) 2023-2025 RapidaAI
// Author: Prashant Srivastav <prashant@rapida.ai>
//
// Licensed under GPL-2.0 with Rapida Additional Terms.
// See LICENSE.md or contact sales@rapida.ai for commercial usage.

package internal_callcontrol

import (
	"encoding/base64"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"

	"github.com/rapidaai/callbridge/pkg/utils"
)

const (
	// ProductionRelayURL is the fixed upstream media relay used in
	// production deployments; the Plivo endpoint accepts Vobiz streams.
	ProductionRelayURL = "wss://api.pipecat.daily.co/ws/plivo"

	// StreamPath is the WebSocket route advertised to the carrier in
	// the stream document.
	StreamPath = "/voice/ws"
)

// ResolveHostProtocol determines the externally reachable host and
// protocol of this server. An explicit public URL always wins; otherwise
// the request's Host header is used with the forwarded protocol, falling
// back to http for loopback hosts and https for everything else.
func ResolveHostProtocol(publicURL string, r *http.Request) (host string, protocol string, err error) {
	if publicURL != "" {
		switch {
		case strings.HasPrefix(publicURL, "https://"):
			return strings.TrimSuffix(strings.TrimPrefix(publicURL, "https://"), "/"), "https", nil
		case strings.HasPrefix(publicURL, "http://"):
			return strings.TrimSuffix(strings.TrimPrefix(publicURL, "http://"), "/"), "http", nil
		default:
			// No protocol on the configured URL, assume https.
			return strings.TrimSuffix(publicURL, "/"), "https", nil
		}
	}

	if r == nil {
		return "", "", fmt.Errorf("request required when no public URL is configured")
	}

	host = r.Host
	if host == "" {
		return "", "", fmt.Errorf("cannot determine server host from request")
	}

	if forwarded := r.Header.Get("X-Forwarded-Proto"); forwarded != "" {
		return host, forwarded, nil
	}

	if strings.HasPrefix(host, "localhost") || strings.HasPrefix(host, "127.0.0.1") {
		// The carrier cannot reach a loopback URL; callers are expected
		// to configure a public URL for anything beyond local testing.
		return host, "http", nil
	}
	return host, "https", nil
}

// WebsocketURL builds the media WebSocket URL handed to the carrier in
// the stream document. Production routes to the fixed upstream relay,
// everything else to this server. The caller-supplied body payload is
// base64-of-JSON encoded; this is deliberately a different encoding from
// the percent-encoded body_data on the answer URL.
func WebsocketURL(host string, env utils.Environment, serviceHost string, body map[string]interface{}) (string, error) {
	base := fmt.Sprintf("wss://%s%s", host, StreamPath)
	if env.IsProduction() {
		base = ProductionRelayURL
	}

	var params []string
	if env.IsProduction() && serviceHost != "" {
		params = append(params, "serviceHost="+url.QueryEscape(serviceHost))
	}
	if len(body) > 0 {
		raw, err := json.Marshal(body)
		if err != nil {
			return "", fmt.Errorf("failed to encode body payload: %w", err)
		}
		encoded := base64.StdEncoding.EncodeToString(raw)
		params = append(params, "body="+url.QueryEscape(encoded))
	}

	if len(params) == 0 {
		return base, nil
	}
	return base + "?" + strings.Join(params, "&"), nil
}

// AnswerURL builds the call-control callback URL registered with the
// carrier at call start. The body payload travels percent-encoded on
// the body_data query parameter.
func AnswerURL(protocol, host string, body map[string]interface{}) (string, error) {
	answerURL := fmt.Sprintf("%s://%s/answer", protocol, host)
	if len(body) == 0 {
		return answerURL, nil
	}
	raw, err := json.Marshal(body)
	if err != nil {
		return "", fmt.Errorf("failed to encode body payload: %w", err)
	}
	return answerURL + "?body_data=" + url.QueryEscape(string(raw)), nil
}
