// Package widget binds dashboard widgets to the live device document and
// turns user interaction into patch commands.
package widget

import (
	"fmt"

	"github.com/google/uuid"
	"github.com/myaccess/kiosk-console/internal/models"
	"github.com/myaccess/kiosk-console/internal/payload"
)

// Mode says whether a widget only displays data or can also write it.
type Mode string

const (
	ModeRead  Mode = "read"
	ModeWrite Mode = "write"
)

// Spec describes a widget type in the palette.
type Spec struct {
	Label    string       `json:"label"`
	DataType payload.Type `json:"dataType"`
	Mode     Mode         `json:"mode"`
}

var catalogue = map[models.WidgetType]Spec{
	models.WidgetGauge:       {Label: "Gauge", DataType: payload.TypeFloat, Mode: ModeRead},
	models.WidgetSlider:      {Label: "Smart Slider", DataType: payload.TypeInt, Mode: ModeWrite},
	models.WidgetSwitch:      {Label: "Switch", DataType: payload.TypeBoolean, Mode: ModeWrite},
	models.WidgetButton:      {Label: "Button", DataType: payload.TypeBoolean, Mode: ModeWrite},
	models.WidgetTextInput:   {Label: "Input", DataType: payload.TypeString, Mode: ModeWrite},
	models.WidgetTextDisplay: {Label: "Display", DataType: payload.TypeString, Mode: ModeRead},
	models.WidgetLineChart:   {Label: "Line Chart", DataType: payload.TypeDict, Mode: ModeRead},
	models.WidgetBarChart:    {Label: "Bar Chart", DataType: payload.TypeDict, Mode: ModeRead},
	models.WidgetPieChart:    {Label: "Pie Chart", DataType: payload.TypeDict, Mode: ModeRead},
	models.WidgetLogViewer:   {Label: "Log Viewer", DataType: payload.TypeDict, Mode: ModeRead},
}

// Palette is the display order of the widget palette.
var Palette = []models.WidgetType{
	models.WidgetGauge, models.WidgetSlider, models.WidgetSwitch, models.WidgetButton,
	models.WidgetTextInput, models.WidgetTextDisplay, models.WidgetLineChart,
	models.WidgetBarChart, models.WidgetPieChart, models.WidgetLogViewer,
}

// Lookup returns the palette entry of t.
func Lookup(t models.WidgetType) (Spec, bool) {
	s, ok := catalogue[t]
	return s, ok
}

// IsComplex reports whether t reads a whole sub-document rather than one field.
func IsComplex(t models.WidgetType) bool {
	switch t {
	case models.WidgetLineChart, models.WidgetBarChart, models.WidgetPieChart, models.WidgetLogViewer:
		return true
	}
	return false
}

// IsContinuous reports whether t stages edits before committing them.
func IsContinuous(t models.WidgetType) bool {
	return t == models.WidgetSlider || t == models.WidgetTextInput
}

// IsDiscrete reports whether t commits on every toggle.
func IsDiscrete(t models.WidgetType) bool {
	return t == models.WidgetSwitch || t == models.WidgetButton
}

// NewConfig builds the configuration of a widget dropped on the canvas: no
// path or field yet, so it starts unbound.
func NewConfig(t models.WidgetType, pos models.Position) (models.WidgetConfig, error) {
	spec, ok := Lookup(t)
	if !ok {
		return models.WidgetConfig{}, fmt.Errorf("%w: %q", ErrUnknownType, t)
	}
	return models.WidgetConfig{
		ID:       "comp_" + uuid.NewString(),
		Type:     t,
		DataType: string(spec.DataType),
		Alias:    spec.Label,
		Position: pos,
		Settings: models.DefaultSettings(),
	}, nil
}
