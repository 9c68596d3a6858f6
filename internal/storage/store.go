// Package storage persists dashboard layouts and device document snapshots.
package storage

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/myaccess/kiosk-console/internal/models"
)

var (
	// ErrNotFound is returned when a device has no stored layout.
	ErrNotFound = errors.New("storage: not found")
	// ErrInvalidDeviceID is returned for ids that cannot name a record.
	ErrInvalidDeviceID = errors.New("storage: invalid device id")
)

// ConfigStore loads and saves the widget layout of a device.
type ConfigStore interface {
	Load(ctx context.Context, deviceID string) ([]models.WidgetConfig, error)
	Save(ctx context.Context, deviceID string, configs []models.WidgetConfig) error
}

// Lister is implemented by stores that can enumerate their layouts.
type Lister interface {
	Devices(ctx context.Context) ([]string, error)
}

func checkDeviceID(deviceID string) error {
	if deviceID == "" || strings.ContainsAny(deviceID, `/\`) || strings.Contains(deviceID, "..") {
		return fmt.Errorf("%w: %q", ErrInvalidDeviceID, deviceID)
	}
	return nil
}
