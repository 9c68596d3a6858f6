package api

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/myaccess/kiosk-console/internal/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func dialDashboard(t *testing.T, s *testServer, deviceID string) *websocket.Conn {
	t.Helper()
	srv := httptest.NewServer(s.e)
	t.Cleanup(srv.Close)

	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/api/ws/devices/" + deviceID
	ws, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	t.Cleanup(func() { ws.Close() })
	return ws
}

func readMessage(t *testing.T, ws *websocket.Conn, want string) WSMessage {
	t.Helper()
	ws.SetReadDeadline(time.Now().Add(5 * time.Second))
	for {
		var msg WSMessage
		require.NoError(t, ws.ReadJSON(&msg))
		if msg.Type == want {
			return msg
		}
	}
}

func readViews(t *testing.T, ws *websocket.Conn) []models.WidgetView {
	t.Helper()
	msg := readMessage(t, ws, MsgTypeViews)
	var views []models.WidgetView
	require.NoError(t, json.Unmarshal(msg.Payload, &views))
	return views
}

func TestWebSocketPushesViews(t *testing.T) {
	s := newTestServer(t)
	require.Equal(t, http.StatusOK, s.do(t, http.MethodPut, "/api/devices/dev-1/ui-config", sliderLayout).Code)

	ws := dialDashboard(t, s, "dev-1")
	connected := readMessage(t, ws, MsgTypeConnected)
	assert.Equal(t, "dev-1", connected.ID)

	views := readViews(t, ws)
	require.Len(t, views, 1)
	assert.True(t, views[0].NoData)

	rec := s.do(t, http.MethodPost, "/api/devices/dev-1/document", `{"dev": {"speed": {"type": "int", "value": 64}}}`)
	require.Equal(t, http.StatusOK, rec.Code)

	views = readViews(t, ws)
	require.Len(t, views, 1)
	assert.False(t, views[0].NoData)
	assert.Equal(t, float64(64), views[0].Value)
}

func TestWebSocketMessages(t *testing.T) {
	s := newTestServer(t)
	require.Equal(t, http.StatusOK, s.do(t, http.MethodPut, "/api/devices/dev-1/ui-config", sliderLayout).Code)
	s.do(t, http.MethodPost, "/api/devices/dev-1/document", `{"dev": {"speed": {"type": "int", "value": 5}}}`)

	ws := dialDashboard(t, s, "dev-1")
	readViews(t, ws)

	require.NoError(t, ws.WriteJSON(WSMessage{Type: MsgTypePing, ID: "p1"}))
	pong := readMessage(t, ws, MsgTypePong)
	assert.Equal(t, "p1", pong.ID)

	require.NoError(t, ws.WriteJSON(WSMessage{
		Type:    MsgTypeInteract,
		ID:      "i1",
		Payload: json.RawMessage(`{"widgetId": "s1", "event": "stage", "value": 30}`),
	}))
	ack := readMessage(t, ws, MsgTypeAck)
	assert.Equal(t, "i1", ack.ID)
	var resp InteractResponse
	require.NoError(t, json.Unmarshal(ack.Payload, &resp))
	assert.Equal(t, models.StateInteracting, resp.View.State)
	assert.Equal(t, float64(30), resp.View.Value)

	require.NoError(t, ws.WriteJSON(WSMessage{
		Type:    MsgTypeInteract,
		ID:      "i2",
		Payload: json.RawMessage(`{"widgetId": "s1", "event": "commit"}`),
	}))
	failed := readMessage(t, ws, MsgTypeError)
	assert.Equal(t, "i2", failed.ID)
	assert.Contains(t, string(failed.Payload), "no connection for write operation")

	require.NoError(t, ws.WriteJSON(WSMessage{Type: "shout"}))
	unknown := readMessage(t, ws, MsgTypeError)
	assert.Contains(t, string(unknown.Payload), "INVALID_TYPE")
}

func TestWebSocketDisconnectAbandonsGestures(t *testing.T) {
	s := newTestServer(t)
	require.Equal(t, http.StatusOK, s.do(t, http.MethodPut, "/api/devices/dev-1/ui-config", sliderLayout).Code)
	s.do(t, http.MethodPost, "/api/devices/dev-1/document", `{"dev": {"speed": {"type": "int", "value": 5}}}`)

	ws := dialDashboard(t, s, "dev-1")
	readViews(t, ws)
	require.NoError(t, ws.WriteJSON(WSMessage{
		Type:    MsgTypeInteract,
		ID:      "i1",
		Payload: json.RawMessage(`{"widgetId": "s1", "event": "stage", "value": 30}`),
	}))
	readMessage(t, ws, MsgTypeAck)
	require.NoError(t, ws.Close())

	assert.Eventually(t, func() bool {
		var views []models.WidgetView
		rec := s.do(t, http.MethodGet, "/api/devices/dev-1/views", "")
		if json.Unmarshal(rec.Body.Bytes(), &views) != nil || len(views) != 1 {
			return false
		}
		return views[0].State == models.StateIdle && views[0].Value == float64(5)
	}, 5*time.Second, 20*time.Millisecond)

	rec := s.do(t, http.MethodPost, "/api/devices/dev-1/document", `{"dev": {"speed": {"type": "int", "value": 9}}}`)
	assert.Contains(t, rec.Body.String(), `"value":9`)
}
