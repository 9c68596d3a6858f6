package widget

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/myaccess/kiosk-console/internal/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"
)

type recordingSink struct {
	mu   sync.Mutex
	sent []models.Command
	err  error
}

func (s *recordingSink) Send(_ context.Context, cmd models.Command) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.err != nil {
		return s.err
	}
	s.sent = append(s.sent, cmd)
	return nil
}

func TestDashboardSliderScenario(t *testing.T) {
	sink := &recordingSink{}
	d := NewDashboard("dev-1", []models.WidgetConfig{slider()}, WithSink(sink))
	ctx := context.Background()

	require.NoError(t, d.Begin("s1"))
	for _, v := range []any{12.0, 30.0, 42.0} {
		require.NoError(t, d.Stage("s1", v))
		d.Apply(doc(t, `{"speed": {"type": "int", "value": 1}}`))
	}
	assert.Empty(t, sink.sent, "nothing is written while dragging")

	_, err := d.Commit(ctx, "s1")
	require.NoError(t, err)
	require.Len(t, sink.sent, 1)
	assert.Equal(t, "", sink.sent[0].Path)
	assert.Equal(t, int64(42), sink.sent[0].Payload["speed"].Value.Scalar)
}

func TestDashboardNoSinkWarnsAndRetries(t *testing.T) {
	core, logs := observer.New(zap.WarnLevel)
	d := NewDashboard("dev-1", []models.WidgetConfig{slider()}, WithLogger(zap.New(core)))
	ctx := context.Background()

	require.NoError(t, d.Stage("s1", 5))
	_, err := d.Commit(ctx, "s1")
	assert.ErrorIs(t, err, ErrNoWriteSink)
	assert.Equal(t, 1, logs.FilterMessage("no connection for write operation").Len())

	sink := &recordingSink{}
	d.SetSink(sink)
	_, err = d.Step(ctx, "s1", 1)
	require.NoError(t, err)
	require.Len(t, sink.sent, 1, "the failed write is not queued")
	assert.Equal(t, int64(6), sink.sent[0].Payload["speed"].Value.Scalar)
}

func TestDashboardSinkFailure(t *testing.T) {
	sink := &recordingSink{err: errors.New("socket closed")}
	d := NewDashboard("dev-1", []models.WidgetConfig{slider()}, WithSink(sink))

	_, err := d.Step(context.Background(), "s1", 3)
	assert.ErrorIs(t, err, ErrNoWriteSink)
	assert.Contains(t, err.Error(), "socket closed")
}

func TestDashboardLayoutEdits(t *testing.T) {
	d := NewDashboard("dev-1", nil)
	d.Apply(doc(t, `{"speed": {"type": "int", "value": 8}}`))

	cfg, err := NewConfig(models.WidgetSlider, models.Position{X: 10, Y: 20})
	require.NoError(t, err)
	require.NoError(t, d.Add(cfg))
	assert.ErrorIs(t, d.Add(cfg), ErrDuplicateID)

	v, err := d.View(cfg.ID)
	require.NoError(t, err)
	assert.Equal(t, models.StateUnbound, v.State)

	cfg.FieldName = "speed"
	require.NoError(t, d.Update(cfg))
	v, err = d.View(cfg.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(8), v.Value)

	require.NoError(t, d.Move(cfg.ID, models.Position{X: 1, Y: 2}))
	assert.Equal(t, models.Position{X: 1, Y: 2}, d.Configs()[0].Position)

	require.NoError(t, d.Remove(cfg.ID))
	assert.Empty(t, d.Views())
	assert.ErrorIs(t, d.Remove(cfg.ID), ErrNotFound)
}

func TestDashboardReplaceKeepsInteraction(t *testing.T) {
	d := NewDashboard("dev-1", []models.WidgetConfig{slider()})
	require.NoError(t, d.Stage("s1", 55))

	other := models.WidgetConfig{ID: "t", Type: models.WidgetTextDisplay, FieldName: "name"}
	updated := slider()
	updated.Alias = "Speed"
	d.Replace([]models.WidgetConfig{other, updated})

	views := d.Views()
	require.Len(t, views, 2)
	assert.Equal(t, "t", views[0].ID)
	assert.Equal(t, models.StateInteracting, views[1].State)
	assert.Equal(t, 55, views[1].Value)
	assert.Equal(t, "Speed", views[1].Alias)
}

func TestDashboardCancel(t *testing.T) {
	d := NewDashboard("dev-1", []models.WidgetConfig{slider()})
	d.Apply(doc(t, `{"speed": {"type": "int", "value": 7}}`))
	require.NoError(t, d.Stage("s1", 55))

	cancelled, err := d.Cancel("s1")
	require.NoError(t, err)
	assert.True(t, cancelled)
	view, err := d.View("s1")
	require.NoError(t, err)
	assert.Equal(t, models.StateIdle, view.State)
	assert.Equal(t, int64(7), view.Value)

	cancelled, err = d.Cancel("s1")
	require.NoError(t, err)
	assert.False(t, cancelled)

	_, err = d.Cancel("missing")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestDashboardReplaceEndsGestureOnTypeChange(t *testing.T) {
	d := NewDashboard("dev-1", []models.WidgetConfig{slider()})
	require.NoError(t, d.Stage("s1", 10))

	gauge := slider()
	gauge.Type = models.WidgetGauge
	d.Replace([]models.WidgetConfig{gauge})
	d.Apply(doc(t, `{"speed": {"type": "int", "value": 77}}`))

	view, err := d.View("s1")
	require.NoError(t, err)
	assert.Equal(t, models.StateIdle, view.State)
	assert.Equal(t, int64(77), view.Value)
}

func TestNewConfigDefaults(t *testing.T) {
	cfg, err := NewConfig(models.WidgetGauge, models.Position{})
	require.NoError(t, err)
	assert.Regexp(t, `^comp_`, cfg.ID)
	assert.Equal(t, "float", cfg.DataType)
	assert.Equal(t, "Gauge", cfg.Alias)
	assert.Empty(t, cfg.Path)
	assert.Empty(t, cfg.FieldName)
	assert.Equal(t, models.DefaultSettings(), cfg.Settings)

	_, err = NewConfig("radar", models.Position{})
	assert.ErrorIs(t, err, ErrUnknownType)
}

func TestValidate(t *testing.T) {
	err := Validate([]models.WidgetConfig{
		{ID: "a", Type: models.WidgetGauge, FieldName: "x"},
		{ID: "b", Type: models.WidgetLogViewer},
		{ID: "c", Type: models.WidgetSlider},
		{ID: "a", Type: models.WidgetSwitch, FieldName: "y"},
	})
	var verr *ValidationError
	require.ErrorAs(t, err, &verr)
	assert.Equal(t, []string{"c"}, verr.MissingField)
	assert.Equal(t, []string{"a"}, verr.DuplicateID)

	assert.NoError(t, Validate([]models.WidgetConfig{{ID: "a", Type: models.WidgetLogViewer}}))
}
