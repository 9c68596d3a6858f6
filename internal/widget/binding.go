package widget

import (
	"math"
	"strings"

	"github.com/myaccess/kiosk-console/internal/models"
	"github.com/myaccess/kiosk-console/internal/payload"
	"github.com/myaccess/kiosk-console/internal/projection"
)

// Binding is the runtime state of one widget.
//
// Unbound widgets have neither path nor field and always show no data.
// Idle widgets follow the document: every update replaces the displayed
// value. Interacting widgets hold a staged value that document updates never
// overwrite; commit adopts it and hands back the patch command.
type Binding struct {
	cfg     models.WidgetConfig
	state   models.WidgetState
	local   any
	staged  any
	raw     payload.Entry
	hasData bool
}

// NewBinding creates the binding for cfg. The displayed value starts at the
// configured default, or 0.
func NewBinding(cfg models.WidgetConfig) *Binding {
	b := &Binding{cfg: cfg, local: initialValue(cfg)}
	b.state = models.StateUnbound
	if configured(cfg) {
		b.state = models.StateIdle
	}
	return b
}

func initialValue(cfg models.WidgetConfig) any {
	switch d := cfg.Settings.Default.(type) {
	case nil:
		return int64(0)
	case bool:
		if !d {
			return int64(0)
		}
	case string:
		if d == "" {
			return int64(0)
		}
	case float64:
		if d == 0 {
			return int64(0)
		}
	}
	return cfg.Settings.Default
}

func configured(cfg models.WidgetConfig) bool {
	return strings.TrimSpace(cfg.Path) != "" || strings.TrimSpace(cfg.FieldName) != ""
}

// Config returns the widget configuration.
func (b *Binding) Config() models.WidgetConfig { return b.cfg }

// State returns the current binding state.
func (b *Binding) State() models.WidgetState { return b.state }

// Reconfigure swaps the configuration. The widget leaves Unbound the moment
// it gets a path or field, and returns to it when both are cleared. A gesture
// in progress survives only if the widget keeps its continuous type.
func (b *Binding) Reconfigure(cfg models.WidgetConfig, doc payload.Document) {
	if b.state == models.StateInteracting && (cfg.Type != b.cfg.Type || !IsContinuous(cfg.Type)) {
		b.Cancel()
	}
	b.cfg = cfg
	switch {
	case !configured(cfg):
		b.state = models.StateUnbound
		b.staged = nil
	case b.state == models.StateUnbound:
		b.state = models.StateIdle
	}
	b.Apply(doc)
}

// Cancel abandons a gesture: the staged value is dropped and the widget
// follows the document again. It reports whether a gesture was in progress.
func (b *Binding) Cancel() bool {
	if b.state != models.StateInteracting {
		return false
	}
	b.staged = nil
	b.state = models.StateIdle
	return true
}

// Apply re-derives the widget from a new document.
func (b *Binding) Apply(doc payload.Document) {
	if b.state == models.StateUnbound {
		b.raw, b.hasData = payload.Entry{}, false
		return
	}
	field := b.cfg.FieldName
	if IsComplex(b.cfg.Type) {
		field = payload.Wildcard
	}
	b.raw, b.hasData = payload.Resolve(doc, b.cfg.Path, field)
	if b.hasData && b.state == models.StateIdle && !IsComplex(b.cfg.Type) {
		b.local = b.raw.Interface()
	}
}

func (b *Binding) writable() error {
	spec, ok := Lookup(b.cfg.Type)
	if !ok {
		return ErrUnknownType
	}
	if spec.Mode != ModeWrite {
		return ErrReadOnly
	}
	if b.state == models.StateUnbound {
		return ErrNotConfigured
	}
	return nil
}

// Begin marks the start of a gesture (pointer down, first keystroke). It is
// a no-op for discrete controls, which never stage.
func (b *Binding) Begin() error {
	if err := b.writable(); err != nil {
		return err
	}
	if !IsContinuous(b.cfg.Type) {
		return nil
	}
	if b.state == models.StateIdle {
		b.state = models.StateInteracting
		b.staged = b.local
	}
	return nil
}

// Stage records an in-progress value without emitting anything.
func (b *Binding) Stage(v any) error {
	if err := b.writable(); err != nil {
		return err
	}
	if !IsContinuous(b.cfg.Type) {
		return ErrNotContinuous
	}
	b.state = models.StateInteracting
	b.staged = v
	return nil
}

// Commit ends the gesture (pointer up, blur, enter): the staged value becomes
// the displayed value and the patch command for it is returned. Committing
// an idle widget re-sends its displayed value.
func (b *Binding) Commit() (models.Command, error) {
	if err := b.writable(); err != nil {
		return models.Command{}, err
	}
	if b.state == models.StateInteracting {
		b.local = b.staged
		b.staged = nil
		b.state = models.StateIdle
	}
	return BuildPatch(b.cfg, b.local)
}

// Set writes a value immediately, as a toggle or button press does.
func (b *Binding) Set(v any) (models.Command, error) {
	if err := b.writable(); err != nil {
		return models.Command{}, err
	}
	b.local = v
	b.staged = nil
	b.state = models.StateIdle
	return BuildPatch(b.cfg, v)
}

// Toggle writes the new state of a switch or button.
func (b *Binding) Toggle(v any) (models.Command, error) {
	if err := b.writable(); err != nil {
		return models.Command{}, err
	}
	if !IsDiscrete(b.cfg.Type) {
		return models.Command{}, ErrNotDiscrete
	}
	return b.Set(v)
}

// Step nudges a slider by delta within its min/max and commits at once.
func (b *Binding) Step(delta float64) (models.Command, error) {
	if b.cfg.Type != models.WidgetSlider {
		return models.Command{}, ErrNotSlider
	}
	if err := b.writable(); err != nil {
		return models.Command{}, err
	}
	current, _ := payload.ToFloat(b.displayed())
	lo, hi := bounds(b.cfg.Settings)
	next := math.Min(math.Max(current+delta, lo), hi)
	return b.Set(next)
}

func (b *Binding) displayed() any {
	if b.state == models.StateInteracting {
		return b.staged
	}
	return b.local
}

// bounds returns the slider and gauge range; an unset max means 100.
func bounds(s models.WidgetSettings) (float64, float64) {
	hi := s.Max
	if hi == 0 {
		hi = 100
	}
	return s.Min, hi
}

// View renders the widget for the last applied document.
func (b *Binding) View() models.WidgetView {
	v := models.WidgetView{
		ID:    b.cfg.ID,
		Type:  b.cfg.Type,
		Alias: b.cfg.Alias,
		State: b.state,
		Unit:  b.cfg.Settings.Unit,
	}
	if b.state == models.StateUnbound {
		v.NoData = true
		return v
	}

	switch b.cfg.Type {
	case models.WidgetLineChart, models.WidgetBarChart:
		v.Series = []projection.Point{}
		if b.hasData {
			v.Series = projection.ProjectSeries(b.raw, b.cfg.FieldName)
		}
		v.NoData = len(v.Series) == 0
	case models.WidgetLogViewer:
		v.Logs = []projection.LogLine{}
		if b.hasData {
			v.Logs = projection.NewestFirst(projection.ProjectLogs(b.raw, b.cfg.FieldName))
		}
		v.NoData = len(v.Logs) == 0
	case models.WidgetPieChart:
		if b.hasData {
			v.Keys = countKeys(b.raw)
		}
		v.NoData = v.Keys == 0
	default:
		v.Value = b.displayed()
		v.NoData = !b.hasData && b.state != models.StateInteracting
		if b.cfg.Type == models.WidgetGauge {
			pct := gaugePercent(v.Value, b.cfg.Settings)
			v.Percent = &pct
		}
	}
	return v
}

func countKeys(e payload.Entry) int {
	switch e.Kind {
	case payload.KindFolder:
		return len(e.Folder)
	case payload.KindNode:
		return countKeys(e.Node.Value)
	case payload.KindArray:
		return len(e.Items)
	}
	return 0
}

func gaugePercent(value any, s models.WidgetSettings) float64 {
	f, _ := payload.ToFloat(value)
	lo, hi := bounds(s)
	if hi == lo {
		return 0
	}
	pct := (f - lo) / (hi - lo) * 100
	return math.Round(math.Min(math.Max(pct, 0), 100))
}
