package storage

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	"github.com/myaccess/kiosk-console/internal/models"
)

const filePrefix = "ui_config_"

// LocalStore keeps one JSON file per device under a directory.
type LocalStore struct {
	mu  sync.RWMutex
	dir string
}

// NewLocalStore creates the directory if needed.
func NewLocalStore(dir string) (*LocalStore, error) {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("creating config directory: %w", err)
	}
	return &LocalStore{dir: dir}, nil
}

func (s *LocalStore) path(deviceID string) string {
	return filepath.Join(s.dir, filePrefix+deviceID+".json")
}

// Load reads the stored layout of deviceID.
func (s *LocalStore) Load(_ context.Context, deviceID string) ([]models.WidgetConfig, error) {
	if err := checkDeviceID(deviceID); err != nil {
		return nil, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()

	data, err := os.ReadFile(s.path(deviceID))
	if errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, deviceID)
	}
	if err != nil {
		return nil, fmt.Errorf("reading config: %w", err)
	}

	var cfg models.UIConfig
	if err := json.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("decoding config for %s: %w", deviceID, err)
	}
	if cfg.Components == nil {
		cfg.Components = []models.WidgetConfig{}
	}
	return cfg.Components, nil
}

// Save writes the layout of deviceID, replacing the previous one atomically.
func (s *LocalStore) Save(_ context.Context, deviceID string, configs []models.WidgetConfig) error {
	if err := checkDeviceID(deviceID); err != nil {
		return err
	}
	if configs == nil {
		configs = []models.WidgetConfig{}
	}
	data, err := json.MarshalIndent(models.UIConfig{Components: configs}, "", "  ")
	if err != nil {
		return fmt.Errorf("encoding config: %w", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	tmp, err := os.CreateTemp(s.dir, filePrefix+"*.tmp")
	if err != nil {
		return fmt.Errorf("creating temp file: %w", err)
	}
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmp.Name())
		return fmt.Errorf("writing config: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmp.Name())
		return fmt.Errorf("closing config: %w", err)
	}
	if err := os.Rename(tmp.Name(), s.path(deviceID)); err != nil {
		os.Remove(tmp.Name())
		return fmt.Errorf("replacing config: %w", err)
	}
	return nil
}

// Devices lists the devices that have a stored layout, sorted.
func (s *LocalStore) Devices(_ context.Context) ([]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	entries, err := os.ReadDir(s.dir)
	if err != nil {
		return nil, fmt.Errorf("listing configs: %w", err)
	}
	var ids []string
	for _, e := range entries {
		name := e.Name()
		if e.IsDir() || !strings.HasPrefix(name, filePrefix) || !strings.HasSuffix(name, ".json") {
			continue
		}
		ids = append(ids, strings.TrimSuffix(strings.TrimPrefix(name, filePrefix), ".json"))
	}
	sort.Strings(ids)
	return ids, nil
}
