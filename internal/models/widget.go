// Package models contains the wire and persistence types of the kiosk console.
package models

// WidgetType names a dashboard widget kind.
type WidgetType string

const (
	WidgetGauge       WidgetType = "gauge"
	WidgetSlider      WidgetType = "slider"
	WidgetSwitch      WidgetType = "switch"
	WidgetButton      WidgetType = "button"
	WidgetTextInput   WidgetType = "text_input"
	WidgetTextDisplay WidgetType = "text_display"
	WidgetLineChart   WidgetType = "line_chart"
	WidgetBarChart    WidgetType = "bar_chart"
	WidgetPieChart    WidgetType = "pie_chart"
	WidgetLogViewer   WidgetType = "log_viewer"
)

// WidgetConfig binds one widget on the canvas to a field of the device
// payload document.
type WidgetConfig struct {
	ID        string         `json:"id" yaml:"id"`
	Type      WidgetType     `json:"type" yaml:"type"`
	DataType  string         `json:"data_type" yaml:"data_type"`
	Path      string         `json:"path" yaml:"path"`
	FieldName string         `json:"field_name" yaml:"field_name"`
	Alias     string         `json:"alias" yaml:"alias"`
	Settings  WidgetSettings `json:"settings" yaml:"settings"`
	Position  Position       `json:"position" yaml:"position"`
}

// WidgetSettings holds the per-widget display options.
type WidgetSettings struct {
	Min     float64 `json:"min" yaml:"min"`
	Max     float64 `json:"max" yaml:"max"`
	Unit    string  `json:"unit" yaml:"unit"`
	Width   int     `json:"width" yaml:"width"`
	Height  int     `json:"height" yaml:"height"`
	Default any     `json:"default,omitempty" yaml:"default,omitempty"`
}

// Position is the canvas placement of a widget.
type Position struct {
	X float64 `json:"x" yaml:"x"`
	Y float64 `json:"y" yaml:"y"`
}

// UIConfig is the persisted dashboard layout of a device.
type UIConfig struct {
	Components []WidgetConfig `json:"components" yaml:"components"`
}

// DefaultSettings returns the settings a freshly dropped widget starts with.
func DefaultSettings() WidgetSettings {
	return WidgetSettings{Min: 0, Max: 100, Unit: "", Width: 160, Height: 100}
}
