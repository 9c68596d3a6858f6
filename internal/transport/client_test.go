package transport

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/myaccess/kiosk-console/internal/models"
	"github.com/myaccess/kiosk-console/internal/payload"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/vmihailenco/msgpack/v5"
)

// fakeDevice accepts one socket, records what it receives and plays back
// the given frames after the client's get command.
type fakeDevice struct {
	t        *testing.T
	frames   []frame
	received chan []byte
}

type frame struct {
	kind int
	data []byte
}

func (d *fakeDevice) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	up := websocket.Upgrader{}
	ws, err := up.Upgrade(w, r, nil)
	if err != nil {
		d.t.Errorf("upgrade: %v", err)
		return
	}
	defer ws.Close()

	for {
		_, data, err := ws.ReadMessage()
		if err != nil {
			return
		}
		d.received <- data
		var cmd models.Command
		if json.Unmarshal(data, &cmd) == nil && cmd.Action == models.ActionGet {
			for _, f := range d.frames {
				ws.WriteMessage(f.kind, f.data)
			}
		}
	}
}

func startDevice(t *testing.T, frames ...frame) (*fakeDevice, string) {
	t.Helper()
	dev := &fakeDevice{t: t, frames: frames, received: make(chan []byte, 16)}
	srv := httptest.NewServer(dev)
	t.Cleanup(srv.Close)
	return dev, "ws" + strings.TrimPrefix(srv.URL, "http") + "/ws/applications/tok/?type=web"
}

func next(t *testing.T, ch chan []byte) string {
	t.Helper()
	select {
	case data := <-ch:
		return string(data)
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for message")
	}
	return ""
}

func TestDeviceURL(t *testing.T) {
	assert.Equal(t, "wss://api.example.com/ws/applications/a%2Fb/?type=web", DeviceURL("wss://api.example.com/", "a/b"))
}

func TestClientOpenSequenceAndDocuments(t *testing.T) {
	envelope, err := msgpack.Marshal(map[string]any{
		"action":  "update",
		"payload": map[string]any{"speed": map[string]any{"type": "int", "value": 9}},
	})
	require.NoError(t, err)

	dev, url := startDevice(t,
		frame{websocket.TextMessage, []byte(`{"speed": {"type": "int", "value": 7}}`)},
		frame{websocket.TextMessage, []byte(`not json`)},
		frame{websocket.BinaryMessage, envelope},
	)

	c := NewClient(url, DefaultSettings(), nil)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	require.NoError(t, c.Connect(ctx))
	defer c.Close()
	assert.True(t, c.Connected())

	assert.JSONEq(t, `{"action":"subscribe","paths":["/"]}`, next(t, dev.received))
	assert.JSONEq(t, `{"action":"get","path":"/"}`, next(t, dev.received))

	docs := make(chan payload.Document, 4)
	go c.Run(ctx, func(d payload.Document) { docs <- d })

	for _, want := range []int64{7, 9} {
		select {
		case d := <-docs:
			e, ok := payload.Resolve(d, "", "speed")
			require.True(t, ok)
			assert.Equal(t, want, e.Interface())
		case <-time.After(2 * time.Second):
			t.Fatal("timed out waiting for document")
		}
	}

	cmd := models.Command{Action: models.ActionPatch, Payload: map[string]payload.Node{"speed": *payload.Typed(payload.TypeInt, 42).Node}}
	require.NoError(t, c.Send(ctx, cmd))
	assert.JSONEq(t, `{"action":"patch","path":"","payload":{"speed":{"type":"int","value":42}}}`, next(t, dev.received))
}

func TestClientRunStopsOnCancel(t *testing.T) {
	_, url := startDevice(t)
	c := NewClient(url, DefaultSettings(), nil)
	ctx, cancel := context.WithCancel(context.Background())
	require.NoError(t, c.Connect(ctx))

	errc := make(chan error, 1)
	go func() { errc <- c.Run(ctx, func(payload.Document) {}) }()
	cancel()

	select {
	case err := <-errc:
		assert.ErrorIs(t, err, context.Canceled)
	case <-time.After(2 * time.Second):
		t.Fatal("Run did not return")
	}
	assert.False(t, c.Connected())
}

func TestClientNotConnected(t *testing.T) {
	c := NewClient("ws://127.0.0.1:1/ws", DefaultSettings(), nil)
	assert.ErrorIs(t, c.Send(context.Background(), models.GetCommand("/")), ErrNotConnected)
	assert.ErrorIs(t, c.Run(context.Background(), func(payload.Document) {}), ErrNotConnected)
	assert.NoError(t, c.Close())
}

func TestDecodeFrame(t *testing.T) {
	t.Run("bare document", func(t *testing.T) {
		doc, err := DecodeFrame(websocket.TextMessage, []byte(`{"a": {"b": 1}}`))
		require.NoError(t, err)
		assert.Equal(t, payload.KindFolder, doc["a"].Kind)
	})

	t.Run("data envelope", func(t *testing.T) {
		doc, err := DecodeFrame(websocket.TextMessage, []byte(`{"type": "state", "data": {"x": 1}}`))
		require.NoError(t, err)
		assert.Contains(t, doc, "x")
		assert.NotContains(t, doc, "type")
	})

	t.Run("envelope without document", func(t *testing.T) {
		_, err := DecodeFrame(websocket.TextMessage, []byte(`{"action": "patch", "status": "ok"}`))
		assert.ErrorIs(t, err, ErrNoDocument)

		_, err = DecodeFrame(websocket.TextMessage, []byte(`{"type": "ack", "data": "done"}`))
		assert.ErrorIs(t, err, ErrNoDocument)

		ack, err := msgpack.Marshal(map[string]any{"action": "patch", "status": "ok"})
		require.NoError(t, err)
		_, err = DecodeFrame(websocket.BinaryMessage, ack)
		assert.ErrorIs(t, err, ErrNoDocument)
	})

	t.Run("payload key without envelope marker", func(t *testing.T) {
		doc, err := DecodeFrame(websocket.TextMessage, []byte(`{"payload": {"x": 1}}`))
		require.NoError(t, err)
		assert.Contains(t, doc, "payload")
	})

	t.Run("not an object", func(t *testing.T) {
		_, err := DecodeFrame(websocket.TextMessage, []byte(`[1, 2]`))
		assert.Error(t, err)
		_, err = DecodeFrame(websocket.TextMessage, []byte(`null`))
		assert.ErrorIs(t, err, payload.ErrNotObject)
	})
}

func TestBinaryCommands(t *testing.T) {
	dev, url := startDevice(t)
	settings := DefaultSettings()
	settings.BinaryFrames = true
	c := NewClient(url, settings, nil)
	require.NoError(t, c.Connect(context.Background()))
	defer c.Close()

	var cmd map[string]any
	require.NoError(t, msgpack.Unmarshal([]byte(next(t, dev.received)), &cmd))
	assert.Equal(t, "subscribe", cmd["action"])
}
