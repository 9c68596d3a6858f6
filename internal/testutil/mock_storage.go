// mock_storage.go - In-memory stores and sinks for testing
package testutil

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/myaccess/kiosk-console/internal/models"
	"github.com/myaccess/kiosk-console/internal/payload"
	"github.com/myaccess/kiosk-console/internal/storage"
)

// MockConfigStore implements storage.ConfigStore in memory.
type MockConfigStore struct {
	mu      sync.RWMutex
	configs map[string][]models.WidgetConfig
	saves   int

	// SaveErr, when set, is returned by every Save.
	SaveErr error
}

// NewMockConfigStore creates an empty store.
func NewMockConfigStore() *MockConfigStore {
	return &MockConfigStore{configs: make(map[string][]models.WidgetConfig)}
}

func (m *MockConfigStore) Load(_ context.Context, deviceID string) ([]models.WidgetConfig, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	configs, ok := m.configs[deviceID]
	if !ok {
		return nil, fmt.Errorf("%w: %s", storage.ErrNotFound, deviceID)
	}
	out := make([]models.WidgetConfig, len(configs))
	copy(out, configs)
	return out, nil
}

func (m *MockConfigStore) Save(_ context.Context, deviceID string, configs []models.WidgetConfig) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.SaveErr != nil {
		return m.SaveErr
	}
	stored := make([]models.WidgetConfig, len(configs))
	copy(stored, configs)
	m.configs[deviceID] = stored
	m.saves++
	return nil
}

// Devices lists the devices with a stored layout, sorted.
func (m *MockConfigStore) Devices(_ context.Context) ([]string, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	ids := make([]string, 0, len(m.configs))
	for id := range m.configs {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids, nil
}

// Put seeds a layout without counting it as a save.
func (m *MockConfigStore) Put(deviceID string, configs []models.WidgetConfig) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.configs[deviceID] = configs
}

// SaveCount returns how many saves succeeded.
func (m *MockConfigStore) SaveCount() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.saves
}

// MockSnapshotStore keeps the latest document per device in memory.
type MockSnapshotStore struct {
	mu   sync.Mutex
	docs map[string][]payload.Document
}

// NewMockSnapshotStore creates an empty snapshot store.
func NewMockSnapshotStore() *MockSnapshotStore {
	return &MockSnapshotStore{docs: make(map[string][]payload.Document)}
}

func (m *MockSnapshotStore) RecordSnapshot(_ context.Context, deviceID string, doc payload.Document) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.docs[deviceID] = append(m.docs[deviceID], doc)
	return nil
}

func (m *MockSnapshotStore) Latest(_ context.Context, deviceID string) (storage.Snapshot, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	docs := m.docs[deviceID]
	if len(docs) == 0 {
		return storage.Snapshot{}, fmt.Errorf("%w: no snapshot for %s", storage.ErrNotFound, deviceID)
	}
	return storage.Snapshot{Seq: int64(len(docs)), TakenAt: time.Now(), Document: docs[len(docs)-1]}, nil
}

// Count returns how many snapshots deviceID has.
func (m *MockSnapshotStore) Count(deviceID string) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.docs[deviceID])
}

// RecordingSink is a write sink that keeps every command it is given.
type RecordingSink struct {
	mu   sync.Mutex
	sent []models.Command

	// Err, when set, is returned instead of recording.
	Err error
}

func (s *RecordingSink) Send(_ context.Context, cmd models.Command) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.Err != nil {
		return s.Err
	}
	s.sent = append(s.sent, cmd)
	return nil
}

// Sent returns a copy of the recorded commands.
func (s *RecordingSink) Sent() []models.Command {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]models.Command, len(s.sent))
	copy(out, s.sent)
	return out
}

// MustDocument parses a JSON document or panics.
func MustDocument(raw string) payload.Document {
	doc, err := payload.ParseJSON([]byte(raw))
	if err != nil {
		panic(err)
	}
	return doc
}
