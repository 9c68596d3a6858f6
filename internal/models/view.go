package models

import (
	"github.com/myaccess/kiosk-console/internal/payload"
	"github.com/myaccess/kiosk-console/internal/projection"
)

// WidgetState is the binding state of a widget.
type WidgetState string

const (
	StateUnbound     WidgetState = "unbound"
	StateIdle        WidgetState = "idle"
	StateInteracting WidgetState = "interacting"
)

// WidgetView is what a widget renders for the current document.
type WidgetView struct {
	ID      string               `json:"id" msgpack:"id"`
	Type    WidgetType           `json:"type" msgpack:"type"`
	Alias   string               `json:"alias" msgpack:"alias"`
	State   WidgetState          `json:"state" msgpack:"state"`
	NoData  bool                 `json:"noData" msgpack:"noData"`
	Value   any                  `json:"value,omitempty" msgpack:"value,omitempty"`
	Percent *float64             `json:"percent,omitempty" msgpack:"percent,omitempty"`
	Series  []projection.Point   `json:"series,omitempty" msgpack:"series,omitempty"`
	Logs    []projection.LogLine `json:"logs,omitempty" msgpack:"logs,omitempty"`
	Keys    int                  `json:"keys,omitempty" msgpack:"keys,omitempty"`
	Unit    string               `json:"unit,omitempty" msgpack:"unit,omitempty"`
}

// DevicePayloadBody is the request body fragment for device create/update
// calls carrying a payload built in the editor.
type DevicePayloadBody struct {
	Payload payload.Document `json:"payload,omitempty"`
}
