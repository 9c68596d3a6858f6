package widget

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/myaccess/kiosk-console/internal/models"
	"github.com/myaccess/kiosk-console/internal/payload"
	"go.uber.org/zap"
)

// WriteSink delivers commands to the device.
type WriteSink interface {
	Send(ctx context.Context, cmd models.Command) error
}

// Option configures a Dashboard.
type Option func(*Dashboard)

// WithSink sets the write sink used for commits.
func WithSink(s WriteSink) Option {
	return func(d *Dashboard) { d.sink = s }
}

// WithLogger sets the logger.
func WithLogger(l *zap.Logger) Option {
	return func(d *Dashboard) {
		if l != nil {
			d.log = l
		}
	}
}

// Dashboard owns the widgets of one device and the latest document they are
// derived from.
type Dashboard struct {
	mu       sync.Mutex
	deviceID string
	doc      payload.Document
	order    []string
	bindings map[string]*Binding
	sink     WriteSink
	log      *zap.Logger
}

// NewDashboard creates a dashboard for deviceID showing configs.
func NewDashboard(deviceID string, configs []models.WidgetConfig, opts ...Option) *Dashboard {
	d := &Dashboard{
		deviceID: deviceID,
		doc:      payload.Document{},
		bindings: make(map[string]*Binding),
		log:      zap.NewNop(),
	}
	for _, opt := range opts {
		opt(d)
	}
	d.log = d.log.With(zap.String("device", deviceID))
	for _, cfg := range configs {
		d.addLocked(cfg)
	}
	return d
}

// DeviceID returns the device the dashboard belongs to.
func (d *Dashboard) DeviceID() string { return d.deviceID }

// SetSink swaps the write sink; nil disconnects it.
func (d *Dashboard) SetSink(s WriteSink) {
	d.mu.Lock()
	d.sink = s
	d.mu.Unlock()
}

// Apply replaces the document and re-derives every widget from it.
func (d *Dashboard) Apply(doc payload.Document) {
	if doc == nil {
		doc = payload.Document{}
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	d.doc = doc
	for _, id := range d.order {
		d.bindings[id].Apply(doc)
	}
	d.log.Debug("document applied", zap.Int("keys", len(doc)), zap.Int("widgets", len(d.order)))
}

// Document returns a copy of the latest document.
func (d *Dashboard) Document() payload.Document {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.doc.Clone()
}

// Views renders every widget in canvas order.
func (d *Dashboard) Views() []models.WidgetView {
	d.mu.Lock()
	defer d.mu.Unlock()
	views := make([]models.WidgetView, 0, len(d.order))
	for _, id := range d.order {
		views = append(views, d.bindings[id].View())
	}
	return views
}

// View renders a single widget.
func (d *Dashboard) View(id string) (models.WidgetView, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	b, err := d.binding(id)
	if err != nil {
		return models.WidgetView{}, err
	}
	return b.View(), nil
}

// Configs returns the widget configurations in canvas order.
func (d *Dashboard) Configs() []models.WidgetConfig {
	d.mu.Lock()
	defer d.mu.Unlock()
	out := make([]models.WidgetConfig, 0, len(d.order))
	for _, id := range d.order {
		out = append(out, d.bindings[id].Config())
	}
	return out
}

// Replace swaps the whole layout. Widgets that keep their id keep their
// interaction state.
func (d *Dashboard) Replace(configs []models.WidgetConfig) {
	d.mu.Lock()
	defer d.mu.Unlock()
	old := d.bindings
	d.order = nil
	d.bindings = make(map[string]*Binding, len(configs))
	for _, cfg := range configs {
		if b, ok := old[cfg.ID]; ok {
			b.Reconfigure(cfg, d.doc)
			d.order = append(d.order, cfg.ID)
			d.bindings[cfg.ID] = b
			continue
		}
		d.addLocked(cfg)
	}
}

// Add places a new widget on the canvas.
func (d *Dashboard) Add(cfg models.WidgetConfig) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if _, ok := d.bindings[cfg.ID]; ok {
		return fmt.Errorf("%w: %s", ErrDuplicateID, cfg.ID)
	}
	d.addLocked(cfg)
	return nil
}

func (d *Dashboard) addLocked(cfg models.WidgetConfig) {
	if _, ok := d.bindings[cfg.ID]; ok {
		d.log.Warn("duplicate widget id ignored", zap.String("widget", cfg.ID))
		return
	}
	b := NewBinding(cfg)
	b.Apply(d.doc)
	d.bindings[cfg.ID] = b
	d.order = append(d.order, cfg.ID)
}

// Update changes the configuration of an existing widget.
func (d *Dashboard) Update(cfg models.WidgetConfig) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	b, err := d.binding(cfg.ID)
	if err != nil {
		return err
	}
	b.Reconfigure(cfg, d.doc)
	return nil
}

// Move repositions a widget on the canvas.
func (d *Dashboard) Move(id string, pos models.Position) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	b, err := d.binding(id)
	if err != nil {
		return err
	}
	b.cfg.Position = pos
	return nil
}

// Remove deletes a widget.
func (d *Dashboard) Remove(id string) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if _, err := d.binding(id); err != nil {
		return err
	}
	delete(d.bindings, id)
	for i, oid := range d.order {
		if oid == id {
			d.order = append(d.order[:i], d.order[i+1:]...)
			break
		}
	}
	return nil
}

// Begin starts a gesture on a widget.
func (d *Dashboard) Begin(id string) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	b, err := d.binding(id)
	if err != nil {
		return err
	}
	return b.Begin()
}

// Stage records an in-progress value on a widget.
func (d *Dashboard) Stage(id string, v any) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	b, err := d.binding(id)
	if err != nil {
		return err
	}
	return b.Stage(v)
}

// Cancel abandons the gesture on a widget and re-derives it from the latest
// document. It reports whether a gesture was in progress.
func (d *Dashboard) Cancel(id string) (bool, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	b, err := d.binding(id)
	if err != nil {
		return false, err
	}
	if !b.Cancel() {
		return false, nil
	}
	b.Apply(d.doc)
	d.log.Debug("gesture abandoned", zap.String("widget", id))
	return true, nil
}

// Commit ends a gesture and sends the resulting patch.
func (d *Dashboard) Commit(ctx context.Context, id string) (models.Command, error) {
	return d.write(ctx, id, func(b *Binding) (models.Command, error) { return b.Commit() })
}

// Toggle writes the new state of a switch or button at once.
func (d *Dashboard) Toggle(ctx context.Context, id string, v any) (models.Command, error) {
	return d.write(ctx, id, func(b *Binding) (models.Command, error) { return b.Toggle(v) })
}

// Step nudges a slider and sends the resulting patch.
func (d *Dashboard) Step(ctx context.Context, id string, delta float64) (models.Command, error) {
	return d.write(ctx, id, func(b *Binding) (models.Command, error) { return b.Step(delta) })
}

// write runs op under the lock and sends its command outside of it. A
// missing or failing sink drops the command; the next write tries again.
func (d *Dashboard) write(ctx context.Context, id string, op func(*Binding) (models.Command, error)) (models.Command, error) {
	d.mu.Lock()
	b, err := d.binding(id)
	if err != nil {
		d.mu.Unlock()
		return models.Command{}, err
	}
	cmd, err := op(b)
	sink := d.sink
	d.mu.Unlock()
	if err != nil {
		if errors.Is(err, ErrNoFieldName) {
			d.log.Warn("write skipped, widget has no field name", zap.String("widget", id))
		}
		return models.Command{}, err
	}

	if sink == nil {
		d.log.Warn("no connection for write operation", zap.String("widget", id))
		return cmd, ErrNoWriteSink
	}
	if err := sink.Send(ctx, cmd); err != nil {
		d.log.Warn("write failed", zap.String("widget", id), zap.Error(err))
		return cmd, fmt.Errorf("%w: %v", ErrNoWriteSink, err)
	}
	d.log.Debug("patch sent", zap.String("widget", id), zap.String("path", cmd.Path))
	return cmd, nil
}

func (d *Dashboard) binding(id string) (*Binding, error) {
	b, ok := d.bindings[id]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	return b, nil
}
