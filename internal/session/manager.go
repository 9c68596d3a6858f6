// Package session keeps one live dashboard per device and fans its views
// out to connected browsers.
package session

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/myaccess/kiosk-console/internal/models"
	"github.com/myaccess/kiosk-console/internal/payload"
	"github.com/myaccess/kiosk-console/internal/storage"
	"github.com/myaccess/kiosk-console/internal/transport"
	"github.com/myaccess/kiosk-console/internal/widget"
	"go.uber.org/zap"
)

// MaxSessions limits the dashboards held in memory.
const MaxSessions = 64

// SessionKeepAliveWindow protects recently used dashboards from cleanup.
const SessionKeepAliveWindow = 5 * time.Minute

// ErrNoSession is returned for devices without an open dashboard.
var ErrNoSession = errors.New("session: no dashboard for device")

// SnapshotStore keeps device documents across restarts.
type SnapshotStore interface {
	RecordSnapshot(ctx context.Context, deviceID string, doc payload.Document) error
	Latest(ctx context.Context, deviceID string) (storage.Snapshot, error)
}

// Options configures a Manager.
type Options struct {
	Store     storage.ConfigStore
	Snapshots SnapshotStore
	// DeviceURL is the base websocket URL devices are reached under.
	DeviceURL string
	Transport transport.Settings
	Logger    *zap.Logger
}

// Manager owns the open dashboards.
type Manager struct {
	mu       sync.RWMutex
	sessions map[string]*State
	opts     Options
	log      *zap.Logger
}

// State is one open dashboard and whoever is watching it.
type State struct {
	Dashboard    *widget.Dashboard
	LastAccessed time.Time

	listeners map[string]chan []models.WidgetView
	client    *transport.Client
	cancel    context.CancelFunc
}

// NewManager creates a manager.
func NewManager(opts Options) *Manager {
	log := opts.Logger
	if log == nil {
		log = zap.NewNop()
	}
	if opts.Transport == (transport.Settings{}) {
		opts.Transport = transport.DefaultSettings()
	}
	return &Manager{
		sessions: make(map[string]*State),
		opts:     opts,
		log:      log,
	}
}

// Open returns the dashboard of deviceID, creating it if needed. Layouts
// embedded in the device record win over the stored layout; with neither the
// dashboard starts empty. A stored snapshot seeds the first document.
func (m *Manager) Open(ctx context.Context, deviceID string, embedded []models.WidgetConfig) (*widget.Dashboard, error) {
	if dash, ok := m.Get(deviceID); ok {
		return dash, nil
	}

	configs, err := m.LoadConfig(ctx, deviceID, embedded)
	if err != nil {
		return nil, err
	}
	dash := widget.NewDashboard(deviceID, configs, widget.WithLogger(m.log))

	if m.opts.Snapshots != nil {
		snap, err := m.opts.Snapshots.Latest(ctx, deviceID)
		switch {
		case err == nil:
			dash.Apply(snap.Document)
		case !errors.Is(err, storage.ErrNotFound):
			m.log.Warn("loading snapshot failed", zap.String("device", deviceID), zap.Error(err))
		}
	}

	m.cleanupOldSessionsIfNeeded()

	m.mu.Lock()
	defer m.mu.Unlock()
	if existing, ok := m.sessions[deviceID]; ok {
		existing.LastAccessed = time.Now()
		return existing.Dashboard, nil
	}
	m.sessions[deviceID] = &State{
		Dashboard:    dash,
		LastAccessed: time.Now(),
		listeners:    make(map[string]chan []models.WidgetView),
	}
	m.log.Info("dashboard opened", zap.String("device", deviceID), zap.Int("widgets", len(configs)))
	return dash, nil
}

// LoadConfig resolves the layout of deviceID without opening a dashboard.
func (m *Manager) LoadConfig(ctx context.Context, deviceID string, embedded []models.WidgetConfig) ([]models.WidgetConfig, error) {
	if len(embedded) > 0 {
		return embedded, nil
	}
	if m.opts.Store == nil {
		return []models.WidgetConfig{}, nil
	}
	configs, err := m.opts.Store.Load(ctx, deviceID)
	if errors.Is(err, storage.ErrNotFound) {
		return []models.WidgetConfig{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("loading layout: %w", err)
	}
	return configs, nil
}

// Get returns the open dashboard of deviceID and marks it used.
func (m *Manager) Get(deviceID string) (*widget.Dashboard, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	state, ok := m.sessions[deviceID]
	if !ok {
		return nil, false
	}
	state.LastAccessed = time.Now()
	return state.Dashboard, true
}

// Publish applies a new device document, records it and pushes the
// resulting views to listeners.
func (m *Manager) Publish(ctx context.Context, deviceID string, doc payload.Document) error {
	dash, ok := m.Get(deviceID)
	if !ok {
		return fmt.Errorf("%w: %s", ErrNoSession, deviceID)
	}
	dash.Apply(doc)

	if m.opts.Snapshots != nil {
		if err := m.opts.Snapshots.RecordSnapshot(ctx, deviceID, doc); err != nil {
			m.log.Warn("recording snapshot failed", zap.String("device", deviceID), zap.Error(err))
		}
	}
	m.Notify(deviceID)
	return nil
}

// Notify pushes the current views of deviceID to every listener. Slow
// listeners only ever see the latest views.
func (m *Manager) Notify(deviceID string) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	state, ok := m.sessions[deviceID]
	if !ok || len(state.listeners) == 0 {
		return
	}
	views := state.Dashboard.Views()
	for _, ch := range state.listeners {
		select {
		case <-ch:
		default:
		}
		select {
		case ch <- views:
		default:
		}
	}
}

// Listen registers a view listener on deviceID. The returned function
// unregisters it.
func (m *Manager) Listen(deviceID string) (<-chan []models.WidgetView, func(), error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	state, ok := m.sessions[deviceID]
	if !ok {
		return nil, nil, fmt.Errorf("%w: %s", ErrNoSession, deviceID)
	}
	id := uuid.NewString()
	ch := make(chan []models.WidgetView, 1)
	state.listeners[id] = ch
	state.LastAccessed = time.Now()

	var once sync.Once
	return ch, func() {
		once.Do(func() {
			m.mu.Lock()
			defer m.mu.Unlock()
			delete(state.listeners, id)
		})
	}, nil
}

// SaveConfig validates and stores a layout, then shows it on the open
// dashboard. Nothing is stored when validation fails.
func (m *Manager) SaveConfig(ctx context.Context, deviceID string, configs []models.WidgetConfig) ([]models.WidgetConfig, error) {
	if configs == nil {
		configs = []models.WidgetConfig{}
	}
	if err := widget.Validate(configs); err != nil {
		return nil, err
	}
	if m.opts.Store != nil {
		if err := m.opts.Store.Save(ctx, deviceID, configs); err != nil {
			return nil, fmt.Errorf("saving layout: %w", err)
		}
	}
	if dash, ok := m.Get(deviceID); ok {
		dash.Replace(configs)
		m.Notify(deviceID)
	}
	m.log.Info("layout saved", zap.String("device", deviceID), zap.Int("widgets", len(configs)))
	return configs, nil
}

// Connect attaches the dashboard of deviceID to the device socket for
// token. The connection is kept up until Close.
func (m *Manager) Connect(deviceID, token string) error {
	m.mu.Lock()
	state, ok := m.sessions[deviceID]
	if !ok {
		m.mu.Unlock()
		return fmt.Errorf("%w: %s", ErrNoSession, deviceID)
	}
	if state.cancel != nil {
		state.cancel()
	}
	client := transport.NewClient(transport.DeviceURL(m.opts.DeviceURL, token), m.opts.Transport,
		m.log.With(zap.String("device", deviceID)))
	ctx, cancel := context.WithCancel(context.Background())
	state.client = client
	state.cancel = cancel
	state.Dashboard.SetSink(client)
	m.mu.Unlock()

	go client.RunForever(ctx,
		func(doc payload.Document) {
			if err := m.Publish(ctx, deviceID, doc); err != nil {
				m.log.Debug("dropping document", zap.String("device", deviceID), zap.Error(err))
			}
		},
		func(connected bool) {
			m.log.Info("device link changed", zap.String("device", deviceID), zap.Bool("connected", connected))
		})
	return nil
}

// Connected reports whether deviceID has a live device socket.
func (m *Manager) Connected(deviceID string) bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	state, ok := m.sessions[deviceID]
	return ok && state.client != nil && state.client.Connected()
}

// Close drops the dashboard of deviceID and its device socket.
func (m *Manager) Close(deviceID string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if state, ok := m.sessions[deviceID]; ok {
		m.closeLocked(deviceID, state)
	}
}

// CloseAll drops every dashboard.
func (m *Manager) CloseAll() {
	m.mu.Lock()
	defer m.mu.Unlock()
	for id, state := range m.sessions {
		m.closeLocked(id, state)
	}
}

func (m *Manager) closeLocked(deviceID string, state *State) {
	if state.cancel != nil {
		state.cancel()
	}
	if state.client != nil {
		state.client.Close()
	}
	delete(m.sessions, deviceID)
	m.log.Info("dashboard closed", zap.String("device", deviceID))
}

// Devices lists the open dashboards.
func (m *Manager) Devices() []string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	ids := make([]string, 0, len(m.sessions))
	for id := range m.sessions {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// StoredDevices lists the devices with a stored layout. Stores that cannot
// enumerate their layouts report none.
func (m *Manager) StoredDevices(ctx context.Context) ([]string, error) {
	lister, ok := m.opts.Store.(storage.Lister)
	if !ok {
		return nil, nil
	}
	return lister.Devices(ctx)
}

// cleanupOldSessionsIfNeeded closes the least recently used unwatched
// dashboards while at capacity.
func (m *Manager) cleanupOldSessionsIfNeeded() {
	m.mu.Lock()
	defer m.mu.Unlock()
	if len(m.sessions) < MaxSessions {
		return
	}

	var idle []string
	for id, state := range m.sessions {
		if len(state.listeners) == 0 {
			idle = append(idle, id)
		}
	}
	sort.Slice(idle, func(i, j int) bool {
		return m.sessions[idle[i]].LastAccessed.Before(m.sessions[idle[j]].LastAccessed)
	})

	toFree := len(m.sessions) - MaxSessions + 1
	for i := 0; i < toFree && i < len(idle); i++ {
		m.closeLocked(idle[i], m.sessions[idle[i]])
	}
}

// CleanupOldSessions closes dashboards nobody watched or used for maxAge.
func (m *Manager) CleanupOldSessions(maxAge time.Duration) {
	m.mu.Lock()
	defer m.mu.Unlock()

	keep := SessionKeepAliveWindow
	if maxAge > keep {
		keep = maxAge
	}
	cutoff := time.Now().Add(-keep)
	for id, state := range m.sessions {
		if len(state.listeners) > 0 || state.LastAccessed.After(cutoff) {
			continue
		}
		m.closeLocked(id, state)
	}
}
