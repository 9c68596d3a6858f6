package api

import (
	"context"
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/labstack/echo/v4"
	"github.com/myaccess/kiosk-console/internal/models"
	"github.com/myaccess/kiosk-console/internal/widget"
	"go.uber.org/zap"
)

// WebSocket message types for the live dashboard protocol
const (
	// Client -> Server messages
	MsgTypeInteract = "interact"
	MsgTypeRefresh  = "refresh"
	MsgTypePing     = "ping"

	// Server -> Client messages
	MsgTypeConnected = "connected"
	MsgTypeViews     = "views"
	MsgTypeAck       = "ack"
	MsgTypeError     = "error"
	MsgTypePong      = "pong"
)

const (
	wsWriteWait  = 10 * time.Second
	wsPongWait   = 60 * time.Second
	wsPingPeriod = (wsPongWait * 9) / 10
)

// WebSocket message structure
type WSMessage struct {
	Type      string          `json:"type"`
	ID        string          `json:"id,omitempty"`
	Payload   json.RawMessage `json:"payload,omitempty"`
	Timestamp int64           `json:"timestamp"`
}

// WebSocket error response
type WSErrorResponse struct {
	Message string `json:"message"`
	Code    string `json:"code,omitempty"`
}

// WebSocketHandler pushes widget views to browsers and takes their gestures.
type WebSocketHandler struct {
	handler  *Handler
	upgrader websocket.Upgrader
}

// NewWebSocketHandler creates a new live dashboard handler
func NewWebSocketHandler(h *Handler) *WebSocketHandler {
	return &WebSocketHandler{
		handler: h,
		upgrader: websocket.Upgrader{
			CheckOrigin: func(r *http.Request) bool {
				return true
			},
			ReadBufferSize:  16 * 1024,
			WriteBufferSize: 64 * 1024,
		},
	}
}

// wsConn serializes writes; gorilla allows one writer at a time.
type wsConn struct {
	ws  *websocket.Conn
	mu  sync.Mutex
	log *zap.Logger
}

func (c *wsConn) send(msg WSMessage) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if msg.Timestamp == 0 {
		msg.Timestamp = time.Now().UnixMilli()
	}
	c.ws.SetWriteDeadline(time.Now().Add(wsWriteWait))
	if err := c.ws.WriteJSON(msg); err != nil {
		c.log.Debug("failed to send message", zap.String("type", msg.Type), zap.Error(err))
		return err
	}
	return nil
}

func (c *wsConn) ping() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.ws.WriteControl(websocket.PingMessage, nil, time.Now().Add(wsWriteWait))
}

func (c *wsConn) sendError(id, message, code string) {
	c.send(WSMessage{
		Type:    MsgTypeError,
		ID:      id,
		Payload: mustJSON(WSErrorResponse{Message: message, Code: code}),
	})
}

func (c *wsConn) sendViews(views []models.WidgetView) error {
	return c.send(WSMessage{Type: MsgTypeViews, Payload: mustJSON(views)})
}

// HandleWebSocket streams the views of a device dashboard after every
// update and applies interaction messages from the browser.
func (wsh *WebSocketHandler) HandleWebSocket(c echo.Context) error {
	dash, err := wsh.handler.dashboard(c)
	if err != nil {
		return err
	}
	deviceID := dash.DeviceID()
	updates, unsubscribe, err := wsh.handler.sessions.Listen(deviceID)
	if err != nil {
		return err
	}
	defer unsubscribe()

	ws, err := wsh.upgrader.Upgrade(c.Response(), c.Request(), nil)
	if err != nil {
		return err
	}
	defer ws.Close()

	log := wsh.handler.logger(c).With(zap.String("device", deviceID))
	conn := &wsConn{ws: ws, log: log}
	log.Info("dashboard client connected")

	conn.send(WSMessage{Type: MsgTypeConnected, ID: deviceID})
	if err := conn.sendViews(dash.Views()); err != nil {
		return nil
	}

	ctx, cancel := context.WithCancel(c.Request().Context())
	defer cancel()
	go wsh.writeLoop(ctx, conn, updates)

	// Gestures left open by this browser are abandoned when it goes away.
	gestures := make(map[string]struct{})
	defer wsh.abandon(dash, gestures, log)

	ws.SetReadDeadline(time.Now().Add(wsPongWait))
	ws.SetPongHandler(func(string) error {
		return ws.SetReadDeadline(time.Now().Add(wsPongWait))
	})

	for {
		var msg WSMessage
		if err := ws.ReadJSON(&msg); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				log.Warn("dashboard connection error", zap.Error(err))
			}
			break
		}
		ws.SetReadDeadline(time.Now().Add(wsPongWait))

		switch msg.Type {
		case MsgTypePing:
			conn.send(WSMessage{Type: MsgTypePong, ID: msg.ID})
		case MsgTypeRefresh:
			conn.sendViews(dash.Views())
		case MsgTypeInteract:
			var req InteractRequest
			if err := json.Unmarshal(msg.Payload, &req); err != nil {
				conn.sendError(msg.ID, "Invalid interact payload: "+err.Error(), "INVALID_PAYLOAD")
				continue
			}
			resp, err := wsh.handler.interact(ctx, dash, req.WidgetID, req)
			if resp.View.State == models.StateInteracting {
				gestures[req.WidgetID] = struct{}{}
			} else if err == nil {
				delete(gestures, req.WidgetID)
			}
			if err != nil {
				apiErr := toAPIError(err)
				conn.sendError(msg.ID, apiErr.Message, apiErr.Code)
				continue
			}
			conn.send(WSMessage{Type: MsgTypeAck, ID: msg.ID, Payload: mustJSON(resp)})
		default:
			conn.sendError(msg.ID, "Unknown message type: "+msg.Type, "INVALID_TYPE")
		}
	}

	log.Info("dashboard client disconnected")
	return nil
}

// abandon cancels the gestures a disconnected browser left open.
func (wsh *WebSocketHandler) abandon(dash *widget.Dashboard, gestures map[string]struct{}, log *zap.Logger) {
	n := 0
	for id := range gestures {
		cancelled, err := dash.Cancel(id)
		if err != nil {
			continue
		}
		if cancelled {
			n++
		}
	}
	if n > 0 {
		log.Info("abandoned open gestures", zap.Int("widgets", n))
		wsh.handler.sessions.Notify(dash.DeviceID())
	}
}

// writeLoop forwards view updates and keeps the connection alive.
func (wsh *WebSocketHandler) writeLoop(ctx context.Context, conn *wsConn, updates <-chan []models.WidgetView) {
	ticker := time.NewTicker(wsPingPeriod)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case views := <-updates:
			if err := conn.sendViews(views); err != nil {
				return
			}
		case <-ticker.C:
			if err := conn.ping(); err != nil {
				return
			}
		}
	}
}

func mustJSON(v interface{}) json.RawMessage {
	data, err := json.Marshal(v)
	if err != nil {
		return []byte("{}")
	}
	return data
}
