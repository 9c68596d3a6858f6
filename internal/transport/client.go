// Package transport talks to a device over its application websocket.
package transport

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/myaccess/kiosk-console/internal/logging"
	"github.com/myaccess/kiosk-console/internal/models"
	"github.com/myaccess/kiosk-console/internal/payload"
	"github.com/vmihailenco/msgpack/v5"
	"go.uber.org/zap"
)

// ErrNotConnected is returned by Send while the socket is not open.
var ErrNotConnected = errors.New("transport: not connected")

// ErrNoDocument is returned for envelope frames that carry no document.
var ErrNoDocument = errors.New("transport: envelope without document")

// Settings tunes the client.
type Settings struct {
	WriteTimeout     time.Duration
	ReconnectTimeout time.Duration
	HandshakeTimeout time.Duration
	// BinaryFrames sends commands as msgpack binary frames instead of JSON text.
	BinaryFrames bool
}

// DefaultSettings returns the settings used when none are configured.
func DefaultSettings() Settings {
	return Settings{
		WriteTimeout:     10 * time.Second,
		ReconnectTimeout: 5 * time.Second,
		HandshakeTimeout: 10 * time.Second,
	}
}

// DeviceURL builds the application socket URL for token under base, for
// example wss://host/ws/applications/{token}/?type=web.
func DeviceURL(base, token string) string {
	return strings.TrimRight(base, "/") + "/ws/applications/" + url.PathEscape(token) + "/?type=web"
}

// Client is a device socket connection. It is the console's write sink.
type Client struct {
	url      string
	settings Settings
	dialer   *websocket.Dialer
	log      *zap.Logger

	mu   sync.Mutex
	conn *websocket.Conn
}

// NewClient creates a client for the socket at rawURL. It does not dial.
func NewClient(rawURL string, settings Settings, log *zap.Logger) *Client {
	if log == nil {
		log = zap.NewNop()
	}
	return &Client{
		url:      rawURL,
		settings: settings,
		dialer:   &websocket.Dialer{HandshakeTimeout: settings.HandshakeTimeout},
		log:      log.With(zap.String("url", logging.RedactToken(rawURL))),
	}
}

// Connected reports whether the socket is open.
func (c *Client) Connected() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.conn != nil
}

// Connect dials the device and subscribes to the whole document, then asks
// for its current state.
func (c *Client) Connect(ctx context.Context) error {
	ws, _, err := c.dialer.DialContext(ctx, c.url, nil)
	if err != nil {
		return fmt.Errorf("dialing device: %w", err)
	}

	c.mu.Lock()
	if c.conn != nil {
		c.conn.Close()
	}
	c.conn = ws
	c.mu.Unlock()

	for _, cmd := range []models.Command{models.SubscribeCommand("/"), models.GetCommand("/")} {
		if err := c.Send(ctx, cmd); err != nil {
			c.drop(ws)
			return err
		}
	}
	c.log.Info("device connected")
	return nil
}

// Send writes cmd to the device.
func (c *Client) Send(ctx context.Context, cmd models.Command) error {
	msgType, data, err := c.encode(cmd)
	if err != nil {
		return err
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if c.conn == nil {
		return ErrNotConnected
	}

	deadline := time.Now().Add(c.settings.WriteTimeout)
	if d, ok := ctx.Deadline(); ok && d.Before(deadline) {
		deadline = d
	}
	c.conn.SetWriteDeadline(deadline)
	if err := c.conn.WriteMessage(msgType, data); err != nil {
		// a write deadline error cannot be recovered on a websocket
		c.conn.Close()
		c.conn = nil
		return fmt.Errorf("writing %s command: %w", cmd.Action, err)
	}
	c.log.Debug("command sent", zap.String("action", cmd.Action), zap.String("path", cmd.Path))
	return nil
}

func (c *Client) encode(cmd models.Command) (int, []byte, error) {
	if c.settings.BinaryFrames {
		data, err := msgpack.Marshal(cmd)
		if err != nil {
			return 0, nil, fmt.Errorf("encoding command: %w", err)
		}
		return websocket.BinaryMessage, data, nil
	}
	data, err := json.Marshal(cmd)
	if err != nil {
		return 0, nil, fmt.Errorf("encoding command: %w", err)
	}
	return websocket.TextMessage, data, nil
}

// Run reads frames until the socket closes or ctx ends, handing every
// decoded document to onDocument. Frames that do not decode are logged and
// skipped.
func (c *Client) Run(ctx context.Context, onDocument func(payload.Document)) error {
	c.mu.Lock()
	ws := c.conn
	c.mu.Unlock()
	if ws == nil {
		return ErrNotConnected
	}
	defer c.drop(ws)

	done := make(chan struct{})
	defer close(done)
	go func() {
		select {
		case <-ctx.Done():
			ws.Close()
		case <-done:
		}
	}()

	for {
		msgType, data, err := ws.ReadMessage()
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				c.log.Warn("device connection lost", zap.Error(err))
			}
			return fmt.Errorf("reading device frame: %w", err)
		}
		doc, err := DecodeFrame(msgType, data)
		if err != nil {
			c.log.Warn("skipping device frame", zap.Int("bytes", len(data)), zap.Error(err))
			continue
		}
		onDocument(doc)
	}
}

// RunForever keeps the client connected, reconnecting after failures, until
// ctx ends. onState is told about every connect and disconnect.
func (c *Client) RunForever(ctx context.Context, onDocument func(payload.Document), onState func(connected bool)) {
	if onState == nil {
		onState = func(bool) {}
	}
	for {
		if err := c.Connect(ctx); err != nil {
			c.log.Info("device connect failed", zap.Error(err))
		} else {
			onState(true)
			err := c.Run(ctx, onDocument)
			onState(false)
			c.log.Info("device disconnected", zap.Error(err))
		}

		select {
		case <-ctx.Done():
			return
		case <-time.After(c.settings.ReconnectTimeout):
		}
	}
}

// Close closes the socket.
func (c *Client) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.conn == nil {
		return nil
	}
	c.conn.WriteControl(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""), time.Now().Add(time.Second))
	err := c.conn.Close()
	c.conn = nil
	return err
}

func (c *Client) drop(ws *websocket.Conn) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.conn == ws {
		c.conn.Close()
		c.conn = nil
	}
}

// DecodeFrame turns a device frame into a document. Text frames carry JSON
// and binary frames msgpack. A frame may be the document itself or an
// envelope with an "action" or "type" string and the document under
// "payload" or "data". Envelopes without a document, such as acks, are
// rejected with ErrNoDocument.
func DecodeFrame(msgType int, data []byte) (payload.Document, error) {
	var raw map[string]any
	switch msgType {
	case websocket.TextMessage:
		dec := json.NewDecoder(bytes.NewReader(data))
		dec.UseNumber()
		if err := dec.Decode(&raw); err != nil {
			return nil, fmt.Errorf("decoding json frame: %w", err)
		}
	case websocket.BinaryMessage:
		if err := msgpack.Unmarshal(data, &raw); err != nil {
			return nil, fmt.Errorf("decoding msgpack frame: %w", err)
		}
	default:
		return nil, fmt.Errorf("unsupported frame type %d", msgType)
	}
	if raw == nil {
		return nil, payload.ErrNotObject
	}
	doc, err := unwrapEnvelope(raw)
	if err != nil {
		return nil, err
	}
	return payload.FromMap(doc), nil
}

func unwrapEnvelope(m map[string]any) (map[string]any, error) {
	action, hasAction := m["action"].(string)
	kind, hasType := m["type"].(string)
	if !hasAction && !hasType {
		return m, nil
	}
	for _, key := range []string{"payload", "data"} {
		switch inner := m[key].(type) {
		case map[string]any:
			return inner, nil
		case map[any]any:
			out := make(map[string]any, len(inner))
			for k, v := range inner {
				out[fmt.Sprint(k)] = v
			}
			return out, nil
		}
	}
	if !hasAction {
		action = kind
	}
	return nil, fmt.Errorf("%w: %q", ErrNoDocument, action)
}
