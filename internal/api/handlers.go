package api

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"sort"
	"strings"

	"github.com/labstack/echo/v4"
	"github.com/myaccess/kiosk-console/internal/logging"
	"github.com/myaccess/kiosk-console/internal/models"
	"github.com/myaccess/kiosk-console/internal/payload"
	"github.com/myaccess/kiosk-console/internal/session"
	"github.com/myaccess/kiosk-console/internal/widget"
	"github.com/vmihailenco/msgpack/v5"
	"go.uber.org/zap"
	"gopkg.in/yaml.v3"
)

// MIMEApplicationMsgpack is the content type of binary views and documents.
const MIMEApplicationMsgpack = "application/msgpack"

// Handler handles API requests.
type Handler struct {
	sessions *session.Manager
	log      *zap.Logger
	version  string
}

// NewHandler creates a new API handler.
func NewHandler(sessions *session.Manager, log *zap.Logger, version string) *Handler {
	if log == nil {
		log = zap.NewNop()
	}
	return &Handler{sessions: sessions, log: log, version: version}
}

// HandleHealth returns server health status.
func (h *Handler) HandleHealth(c echo.Context) error {
	return c.JSON(http.StatusOK, map[string]interface{}{
		"status":  "ok",
		"version": h.version,
	})
}

// HandleListDevices lists the devices with an open dashboard or a stored
// layout.
func (h *Handler) HandleListDevices(c echo.Context) error {
	stored, err := h.sessions.StoredDevices(c.Request().Context())
	if err != nil {
		return NewInternalError("failed to list stored layouts", err)
	}
	hasLayout := make(map[string]bool, len(stored))
	for _, id := range stored {
		hasLayout[id] = true
	}

	open := h.sessions.Devices()
	isOpen := make(map[string]bool, len(open))
	ids := append([]string(nil), stored...)
	for _, id := range open {
		isOpen[id] = true
		if !hasLayout[id] {
			ids = append(ids, id)
		}
	}
	sort.Strings(ids)

	out := make([]map[string]interface{}, 0, len(ids))
	for _, id := range ids {
		out = append(out, map[string]interface{}{
			"deviceId":  id,
			"open":      isOpen[id],
			"stored":    hasLayout[id],
			"connected": h.sessions.Connected(id),
		})
	}
	return c.JSON(http.StatusOK, out)
}

// PaletteEntry describes a widget type the canvas accepts.
type PaletteEntry struct {
	Type       models.WidgetType `json:"type"`
	Label      string            `json:"label"`
	DataType   payload.Type      `json:"dataType"`
	Mode       widget.Mode       `json:"mode"`
	Continuous bool              `json:"continuous"`
}

// HandleGetPalette lists the widget types in palette order.
func (h *Handler) HandleGetPalette(c echo.Context) error {
	out := make([]PaletteEntry, 0, len(widget.Palette))
	for _, t := range widget.Palette {
		spec, ok := widget.Lookup(t)
		if !ok {
			continue
		}
		out = append(out, PaletteEntry{
			Type:       t,
			Label:      spec.Label,
			DataType:   spec.DataType,
			Mode:       spec.Mode,
			Continuous: widget.IsContinuous(t),
		})
	}
	return c.JSON(http.StatusOK, out)
}

// logger returns the request-scoped logger.
func (h *Handler) logger(c echo.Context) *zap.Logger {
	return logging.LoggerFrom(c.Request().Context(), h.log)
}

func (h *Handler) dashboard(c echo.Context) (*widget.Dashboard, error) {
	return h.sessions.Open(c.Request().Context(), c.Param("deviceId"), nil)
}

// HandleGetUIConfig returns the layout of a device.
func (h *Handler) HandleGetUIConfig(c echo.Context) error {
	dash, err := h.dashboard(c)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, models.UIConfig{Components: dash.Configs()})
}

// HandlePutUIConfig validates and saves a layout.
func (h *Handler) HandlePutUIConfig(c echo.Context) error {
	var req models.UIConfig
	if err := c.Bind(&req); err != nil {
		return NewBadRequestError("invalid request body", err)
	}
	return h.saveConfig(c, req.Components)
}

func (h *Handler) saveConfig(c echo.Context, configs []models.WidgetConfig) error {
	deviceID := c.Param("deviceId")
	if _, err := h.dashboard(c); err != nil {
		return err
	}
	saved, err := h.sessions.SaveConfig(c.Request().Context(), deviceID, configs)
	if err != nil {
		h.logger(c).Warn("layout rejected", zap.String("device", deviceID), zap.Error(err))
		return err
	}
	return c.JSON(http.StatusOK, map[string]interface{}{
		"ui_config": models.UIConfig{Components: saved},
	})
}

// HandleExportUIConfig returns the layout of a device as a YAML download.
func (h *Handler) HandleExportUIConfig(c echo.Context) error {
	dash, err := h.dashboard(c)
	if err != nil {
		return err
	}
	data, err := yaml.Marshal(models.UIConfig{Components: dash.Configs()})
	if err != nil {
		return NewInternalError("failed to encode layout", err)
	}
	c.Response().Header().Set(echo.HeaderContentDisposition,
		fmt.Sprintf("attachment; filename=%q", "ui_config_"+dash.DeviceID()+".yaml"))
	return c.Blob(http.StatusOK, "application/yaml", data)
}

// HandleImportUIConfig replaces the layout of a device with an uploaded
// YAML document.
func (h *Handler) HandleImportUIConfig(c echo.Context) error {
	data, err := io.ReadAll(c.Request().Body)
	if err != nil {
		return NewBadRequestError("failed to read request body", err)
	}
	var cfg models.UIConfig
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return NewBadRequestError("invalid YAML layout", err)
	}
	return h.saveConfig(c, cfg.Components)
}

// DropRequest places a palette widget on the canvas.
type DropRequest struct {
	Type     models.WidgetType `json:"type"`
	Position models.Position   `json:"position"`
}

// HandleDropWidget adds a new unbound widget to the canvas of a device. The
// layout is stored on the next save.
func (h *Handler) HandleDropWidget(c echo.Context) error {
	var req DropRequest
	if err := c.Bind(&req); err != nil {
		return NewBadRequestError("invalid request body", err)
	}
	cfg, err := widget.NewConfig(req.Type, req.Position)
	if err != nil {
		return err
	}
	dash, err := h.dashboard(c)
	if err != nil {
		return err
	}
	if err := dash.Add(cfg); err != nil {
		return err
	}
	h.sessions.Notify(dash.DeviceID())
	return c.JSON(http.StatusCreated, cfg)
}

// HandleUpdateWidget replaces the configuration of a widget.
func (h *Handler) HandleUpdateWidget(c echo.Context) error {
	var cfg models.WidgetConfig
	if err := c.Bind(&cfg); err != nil {
		return NewBadRequestError("invalid request body", err)
	}
	cfg.ID = c.Param("widgetId")
	if _, ok := widget.Lookup(cfg.Type); !ok {
		return fmt.Errorf("%w: %q", widget.ErrUnknownType, cfg.Type)
	}
	dash, err := h.dashboard(c)
	if err != nil {
		return err
	}
	if err := dash.Update(cfg); err != nil {
		return err
	}
	h.sessions.Notify(dash.DeviceID())
	return h.respondView(c, dash, cfg.ID, nil)
}

// HandleMoveWidget repositions a widget.
func (h *Handler) HandleMoveWidget(c echo.Context) error {
	var pos models.Position
	if err := c.Bind(&pos); err != nil {
		return NewBadRequestError("invalid request body", err)
	}
	dash, err := h.dashboard(c)
	if err != nil {
		return err
	}
	if err := dash.Move(c.Param("widgetId"), pos); err != nil {
		return err
	}
	return c.JSON(http.StatusOK, pos)
}

// HandleRemoveWidget deletes a widget from the canvas.
func (h *Handler) HandleRemoveWidget(c echo.Context) error {
	dash, err := h.dashboard(c)
	if err != nil {
		return err
	}
	if err := dash.Remove(c.Param("widgetId")); err != nil {
		return err
	}
	h.sessions.Notify(dash.DeviceID())
	return c.NoContent(http.StatusNoContent)
}

// HandleGetViews renders every widget of a device for the latest document.
func (h *Handler) HandleGetViews(c echo.Context) error {
	dash, err := h.dashboard(c)
	if err != nil {
		return err
	}
	views := dash.Views()
	if c.QueryParam("format") == "msgpack" {
		data, err := msgpack.Marshal(views)
		if err != nil {
			return NewInternalError("failed to encode msgpack", err)
		}
		return c.Blob(http.StatusOK, MIMEApplicationMsgpack, data)
	}
	return c.JSON(http.StatusOK, views)
}

// HandlePushDocument applies a device document sent over HTTP. JSON and
// msgpack bodies are accepted.
func (h *Handler) HandlePushDocument(c echo.Context) error {
	data, err := io.ReadAll(c.Request().Body)
	if err != nil {
		return NewBadRequestError("failed to read request body", err)
	}
	var doc payload.Document
	if strings.HasPrefix(c.Request().Header.Get(echo.HeaderContentType), MIMEApplicationMsgpack) {
		doc, err = payload.ParseMsgpack(data)
	} else {
		doc, err = payload.ParseJSON(data)
	}
	if err != nil {
		return NewBadRequestError("invalid document", err)
	}

	dash, err := h.dashboard(c)
	if err != nil {
		return err
	}
	if err := h.sessions.Publish(c.Request().Context(), dash.DeviceID(), doc); err != nil {
		return err
	}
	return c.JSON(http.StatusOK, dash.Views())
}

// HandleGetDocument returns the latest document of a device.
func (h *Handler) HandleGetDocument(c echo.Context) error {
	dash, err := h.dashboard(c)
	if err != nil {
		return err
	}
	doc := dash.Document()
	if c.QueryParam("format") == "msgpack" {
		data, err := payload.MarshalMsgpack(doc)
		if err != nil {
			return NewInternalError("failed to encode msgpack", err)
		}
		return c.Blob(http.StatusOK, MIMEApplicationMsgpack, data)
	}
	return c.JSON(http.StatusOK, doc)
}

// ConnectRequest attaches a dashboard to its device socket.
type ConnectRequest struct {
	Token string `json:"token"`
}

// HandleConnect opens the device socket of a dashboard.
func (h *Handler) HandleConnect(c echo.Context) error {
	var req ConnectRequest
	if err := c.Bind(&req); err != nil {
		return NewBadRequestError("invalid request body", err)
	}
	if strings.TrimSpace(req.Token) == "" {
		return NewBadRequestError("token is required", nil)
	}
	dash, err := h.dashboard(c)
	if err != nil {
		return err
	}
	if err := h.sessions.Connect(dash.DeviceID(), req.Token); err != nil {
		return err
	}
	h.logger(c).Info("device socket requested", zap.String("device", dash.DeviceID()))
	return c.JSON(http.StatusAccepted, map[string]interface{}{
		"deviceId":  dash.DeviceID(),
		"connected": h.sessions.Connected(dash.DeviceID()),
	})
}

// HandleDisconnect closes the dashboard of a device and its socket.
func (h *Handler) HandleDisconnect(c echo.Context) error {
	h.sessions.Close(c.Param("deviceId"))
	return c.NoContent(http.StatusNoContent)
}

// Interaction events.
const (
	EventBegin   = "begin"
	EventStage   = "stage"
	EventCommit  = "commit"
	EventToggle  = "toggle"
	EventStep    = "step"
	EventAbandon = "abandon"
)

// InteractRequest is a user gesture on a widget.
type InteractRequest struct {
	WidgetID string          `json:"widgetId,omitempty"`
	Event    string          `json:"event"`
	Value    json.RawMessage `json:"value,omitempty"`
	Delta    float64         `json:"delta,omitempty"`
}

// InteractResponse carries the widget view after a gesture and the command
// sent to the device, if any.
type InteractResponse struct {
	View    models.WidgetView `json:"view"`
	Command *models.Command   `json:"command,omitempty"`
}

// HandleInteract runs a gesture on a widget.
func (h *Handler) HandleInteract(c echo.Context) error {
	var req InteractRequest
	if err := c.Bind(&req); err != nil {
		return NewBadRequestError("invalid request body", err)
	}
	dash, err := h.dashboard(c)
	if err != nil {
		return err
	}
	resp, err := h.interact(c.Request().Context(), dash, c.Param("widgetId"), req)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, resp)
}

func (h *Handler) interact(ctx context.Context, dash *widget.Dashboard, widgetID string, req InteractRequest) (InteractResponse, error) {
	var (
		cmd models.Command
		err error
	)
	sent := false
	switch req.Event {
	case EventBegin:
		err = dash.Begin(widgetID)
	case EventStage:
		var v any
		if v, err = gestureValue(req.Value); err == nil {
			err = dash.Stage(widgetID, v)
		}
	case EventCommit:
		cmd, err = dash.Commit(ctx, widgetID)
		sent = true
	case EventToggle:
		var v any
		if v, err = gestureValue(req.Value); err == nil {
			cmd, err = dash.Toggle(ctx, widgetID, v)
			sent = true
		}
	case EventStep:
		cmd, err = dash.Step(ctx, widgetID, req.Delta)
		sent = true
	case EventAbandon:
		_, err = dash.Cancel(widgetID)
	default:
		return InteractResponse{}, NewBadRequestError(fmt.Sprintf("unknown event %q", req.Event), nil)
	}
	h.sessions.Notify(dash.DeviceID())
	if err != nil {
		return InteractResponse{}, err
	}

	view, err := dash.View(widgetID)
	if err != nil {
		return InteractResponse{}, err
	}
	resp := InteractResponse{View: view}
	if sent {
		resp.Command = &cmd
	}
	return resp, nil
}

// gestureValue decodes a gesture value, keeping integers integral.
func gestureValue(raw json.RawMessage) (any, error) {
	if len(raw) == 0 {
		return nil, nil
	}
	e, err := payload.ParseJSON([]byte(`{"v":` + string(raw) + `}`))
	if err != nil {
		return nil, NewBadRequestError("invalid value", err)
	}
	return e["v"].Interface(), nil
}

func (h *Handler) respondView(c echo.Context, dash *widget.Dashboard, widgetID string, cmd *models.Command) error {
	view, err := dash.View(widgetID)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, InteractResponse{View: view, Command: cmd})
}
