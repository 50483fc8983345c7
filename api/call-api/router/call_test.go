package call_routers

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	internal_bot "github.com/rapidaai/callbridge/api/call-api/internal/bot"
	internal_recording "github.com/rapidaai/callbridge/api/call-api/internal/recording"
	internal_registry "github.com/rapidaai/callbridge/api/call-api/internal/registry"
	"github.com/rapidaai/callbridge/config"
	"github.com/rapidaai/callbridge/pkg/commons"
)

type fakeCarrier struct {
	placeUUID   string
	placeErr    error
	redirectErr error

	placedTo      string
	placedFrom    string
	placedAnswer  string
	redirectedID  string
	redirectedURL string
}

func (f *fakeCarrier) PlaceCall(ctx context.Context, to, from, answerURL string) (string, error) {
	f.placedTo, f.placedFrom, f.placedAnswer = to, from, answerURL
	if f.placeErr != nil {
		return "", f.placeErr
	}
	return f.placeUUID, nil
}

func (f *fakeCarrier) RedirectCall(ctx context.Context, callUUID, alegURL string) error {
	f.redirectedID, f.redirectedURL = callUUID, alegURL
	return f.redirectErr
}

func (f *fakeCarrier) DownloadRecording(ctx context.Context, recordingURL string) ([]byte, error) {
	return []byte("mp3-bytes"), nil
}

type testServer struct {
	engine   *gin.Engine
	registry internal_registry.Registry
	carrier  *fakeCarrier
}

func newTestServer(t *testing.T, carrier *fakeCarrier) *testServer {
	t.Helper()
	gin.SetMode(gin.TestMode)

	logger, err := commons.NewApplicationLogger(
		commons.Name("test-call-api"),
		commons.Level("debug"),
	)
	require.NoError(t, err)
	cfg := &config.AppConfig{
		Name:                 "callbridge",
		Version:              "test",
		PublicURL:            "https://example.com",
		VobizPhoneNumber:     "+15550200",
		Environment:          "local",
		TransferNumber:       "+15550123",
		TransferAnnouncement: "Transferring you to an agent",
		Greeting:             "Hello",
	}

	registry := internal_registry.NewRegistry(logger)
	downloader := internal_recording.NewDownloader(carrier, t.TempDir(), logger)
	bot := internal_bot.NewHandler("", logger)

	engine := gin.New()
	HealthCheckRoutes(cfg, engine, logger)
	CallApiRoutes(cfg, engine, logger, registry, carrier, downloader, bot)

	return &testServer{engine: engine, registry: registry, carrier: carrier}
}

func (ts *testServer) do(method, target string, body interface{}) *httptest.ResponseRecorder {
	var reader *bytes.Reader
	if body != nil {
		raw, _ := json.Marshal(body)
		reader = bytes.NewReader(raw)
	} else {
		reader = bytes.NewReader(nil)
	}
	req := httptest.NewRequest(method, target, reader)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	w := httptest.NewRecorder()
	ts.engine.ServeHTTP(w, req)
	return w
}

func TestStartCall(t *testing.T) {
	ts := newTestServer(t, &fakeCarrier{placeUUID: "CA123"})

	w := ts.do(http.MethodPost, "/start", gin.H{"phone_number": "+15551234567"})
	require.Equal(t, http.StatusOK, w.Code)

	var resp map[string]interface{}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, "CA123", resp["call_uuid"])
	assert.Equal(t, "call_initiated", resp["status"])
	assert.Equal(t, "+15551234567", resp["phone_number"])

	assert.Equal(t, "+15551234567", ts.carrier.placedTo)
	assert.Equal(t, "+15550200", ts.carrier.placedFrom)
	assert.Equal(t, "https://example.com/answer", ts.carrier.placedAnswer)

	record, err := ts.registry.Get("CA123")
	require.NoError(t, err)
	assert.Equal(t, internal_registry.StatusInitiated, record.Status)
}

func TestStartCall_MissingPhoneNumber(t *testing.T) {
	ts := newTestServer(t, &fakeCarrier{placeUUID: "CA123"})
	w := ts.do(http.MethodPost, "/start", gin.H{})
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestStartCall_CarrierFailure(t *testing.T) {
	ts := newTestServer(t, &fakeCarrier{placeErr: errors.New("carrier down")})
	w := ts.do(http.MethodPost, "/start", gin.H{"phone_number": "+15551234567"})
	assert.Equal(t, http.StatusInternalServerError, w.Code)
}

func TestAnswer_ServesStreamDocument(t *testing.T) {
	ts := newTestServer(t, &fakeCarrier{})

	w := ts.do(http.MethodGet, "/answer?CallUUID=CA123", nil)
	require.Equal(t, http.StatusOK, w.Code)

	body := w.Body.String()
	assert.Contains(t, body, "<Stream")
	assert.Contains(t, body, "wss://example.com/voice/ws")
	assert.Contains(t, body, `bidirectional="true"`)
	assert.NotContains(t, body, "<Dial")
}

func TestTransferFlow(t *testing.T) {
	ts := newTestServer(t, &fakeCarrier{placeUUID: "CA123"})

	// Place the call and simulate the media stream being live.
	w := ts.do(http.MethodPost, "/start", gin.H{"phone_number": "+15551234567"})
	require.Equal(t, http.StatusOK, w.Code)
	ts.registry.AttachSession("CA123", nil, "/voice/ws")

	w = ts.do(http.MethodPost, "/initiate-transfer", gin.H{"call_uuid": "CA123"})
	require.Equal(t, http.StatusOK, w.Code)

	assert.Equal(t, "CA123", ts.carrier.redirectedID)
	assert.Equal(t, "https://example.com/answer?CallUUID=CA123", ts.carrier.redirectedURL)

	record, err := ts.registry.Get("CA123")
	require.NoError(t, err)
	assert.Equal(t, internal_registry.StatusTransferring, record.Status)
	assert.True(t, record.PendingRedirect)

	// The carrier re-fetches /answer: transfer document, exactly once.
	w = ts.do(http.MethodGet, "/answer?CallUUID=CA123", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "<Dial")
	assert.Contains(t, w.Body.String(), "+15550123")

	record, err = ts.registry.Get("CA123")
	require.NoError(t, err)
	assert.Equal(t, internal_registry.StatusTransferred, record.Status)
	assert.False(t, record.PendingRedirect)

	// A second fetch falls back to the stream document.
	w = ts.do(http.MethodGet, "/answer?CallUUID=CA123", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "<Stream")
}

func TestInitiateTransfer_UnknownCall(t *testing.T) {
	ts := newTestServer(t, &fakeCarrier{})
	w := ts.do(http.MethodPost, "/initiate-transfer", gin.H{"call_uuid": "nope"})
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestInitiateTransfer_AlreadyTransferred(t *testing.T) {
	ts := newTestServer(t, &fakeCarrier{})
	ts.registry.Register("CA123", internal_registry.StatusTransferred)

	w := ts.do(http.MethodPost, "/initiate-transfer", gin.H{"call_uuid": "CA123"})
	assert.Equal(t, http.StatusConflict, w.Code)
}

func TestInitiateTransfer_CarrierFailure(t *testing.T) {
	ts := newTestServer(t, &fakeCarrier{redirectErr: errors.New("redirect rejected")})
	ts.registry.Register("CA123", internal_registry.StatusActive)

	w := ts.do(http.MethodPost, "/initiate-transfer", gin.H{"call_uuid": "CA123"})
	assert.Equal(t, http.StatusBadGateway, w.Code)
}

func TestRecordingFinished(t *testing.T) {
	ts := newTestServer(t, &fakeCarrier{})
	ts.registry.Register("CA123", internal_registry.StatusActive)

	w := ts.do(http.MethodPost, "/recording-finished?CallUUID=CA123&RecordingID=rec-1&RecordUrl=https://media.vobiz.ai/rec-1.mp3", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "<Response></Response>")

	record, err := ts.registry.Get("CA123")
	require.NoError(t, err)
	assert.Equal(t, "rec-1", record.RecordingID)
	assert.Equal(t, "https://media.vobiz.ai/rec-1.mp3", record.RecordingURL)
	assert.Equal(t, internal_registry.StatusActive, record.Status)
}

func TestRecordingFinished_UnknownCallStillAcks(t *testing.T) {
	ts := newTestServer(t, &fakeCarrier{})
	w := ts.do(http.MethodPost, "/recording-finished?CallUUID=gone&RecordingID=rec-1", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "<Response></Response>")
}

func TestRecordingReady_AlwaysAcks(t *testing.T) {
	ts := newTestServer(t, &fakeCarrier{})
	w := ts.do(http.MethodPost, "/recording-ready?CallUUID=CA123&RecordingID=rec-1&RecordUrl=https://media.vobiz.ai/rec-1.mp3", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "<Response></Response>")
}

func TestTransferToHuman(t *testing.T) {
	ts := newTestServer(t, &fakeCarrier{})
	w := ts.do(http.MethodPost, "/transfer-to-human", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "<Dial")
	assert.Contains(t, w.Body.String(), "+15550123")
}

func TestActiveCalls(t *testing.T) {
	ts := newTestServer(t, &fakeCarrier{})
	ts.registry.Register("CA123", internal_registry.StatusActive)
	ts.registry.Register("CA456", internal_registry.StatusInitiated)

	w := ts.do(http.MethodGet, "/active-calls", nil)
	require.Equal(t, http.StatusOK, w.Code)

	var resp struct {
		Count int                            `json:"count"`
		Calls []internal_registry.CallRecord `json:"calls"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, 2, resp.Count)
	assert.Len(t, resp.Calls, 2)
}

func TestHealthz(t *testing.T) {
	ts := newTestServer(t, &fakeCarrier{})
	w := ts.do(http.MethodGet, "/healthz", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.True(t, strings.Contains(w.Body.String(), "callbridge"))
}
