// Copyright (c) 2023-2025 RapidaAI
// Author: Prashant Srivastav <prashant@rapida.ai>
//
// Licensed under GPL-2.0 with Rapida Additional Terms.
// See LICENSE.md or contact sales@rapida.ai for commercial usage.

package internal_session

import (
	"encoding/base64"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDecodeBody(t *testing.T) {
	encoded := base64.StdEncoding.EncodeToString([]byte(`{"x":1,"caller":"+15550100"}`))

	body, err := DecodeBody(encoded)
	require.NoError(t, err)
	assert.Equal(t, float64(1), body["x"])
	assert.Equal(t, "+15550100", body["caller"])
}

func TestDecodeBody_Empty(t *testing.T) {
	body, err := DecodeBody("")
	require.NoError(t, err)
	assert.NotNil(t, body)
	assert.Empty(t, body)
}

func TestDecodeBody_InvalidBase64(t *testing.T) {
	_, err := DecodeBody("%%%not-base64%%%")
	assert.Error(t, err)
}

func TestDecodeBody_InvalidJSON(t *testing.T) {
	encoded := base64.StdEncoding.EncodeToString([]byte("not json"))
	_, err := DecodeBody(encoded)
	assert.Error(t, err)
}

func TestSession_Accessors(t *testing.T) {
	body := map[string]interface{}{"x": 1}
	s := New("CA123", "/voice/ws", body, nil)

	assert.Equal(t, "CA123", s.CallUUID)
	assert.Equal(t, "/voice/ws", s.Path)
	assert.Equal(t, body, s.Body)
	assert.Nil(t, s.Conn())
}
