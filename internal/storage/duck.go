package storage

import (
	"context"
	"database/sql"
	"database/sql/driver"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/marcboeker/go-duckdb"
	"github.com/myaccess/kiosk-console/internal/models"
	"github.com/myaccess/kiosk-console/internal/payload"
	"go.uber.org/zap"
)

// DefaultSnapshotLimit is the number of documents kept per device.
const DefaultSnapshotLimit = 500

// Snapshot is one stored device document.
type Snapshot struct {
	Seq      int64            `json:"seq"`
	TakenAt  time.Time        `json:"takenAt"`
	Document payload.Document `json:"document"`
}

// DuckStore keeps layouts and a bounded document history per device in a
// DuckDB file.
type DuckStore struct {
	db     *sql.DB
	dbPath string
	limit  int
	log    *zap.Logger
}

// NewDuckStore opens or creates the database at dbPath. limit caps the
// snapshots kept per device; zero means DefaultSnapshotLimit.
func NewDuckStore(dbPath string, limit int, log *zap.Logger) (*DuckStore, error) {
	if log == nil {
		log = zap.NewNop()
	}
	if limit <= 0 {
		limit = DefaultSnapshotLimit
	}
	log = log.With(zap.String("db", dbPath))

	connector, err := duckdb.NewConnector(dbPath, func(execer driver.ExecerContext) error {
		pragmas := []string{
			"PRAGMA memory_limit='256MB'",
			"PRAGMA threads=2",
			"PRAGMA enable_progress_bar=false",
		}
		for _, pragma := range pragmas {
			if _, err := execer.ExecContext(context.Background(), pragma, nil); err != nil {
				log.Warn("pragma failed", zap.String("pragma", pragma), zap.Error(err))
			}
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create DuckDB connector: %w", err)
	}

	db := sql.OpenDB(connector)
	schema := []string{
		`CREATE TABLE IF NOT EXISTS ui_configs (
			device_id  VARCHAR PRIMARY KEY,
			config     VARCHAR NOT NULL,
			updated_at BIGINT NOT NULL
		)`,
		`CREATE SEQUENCE IF NOT EXISTS snapshot_seq START 1`,
		`CREATE TABLE IF NOT EXISTS snapshots (
			seq       BIGINT PRIMARY KEY,
			device_id VARCHAR NOT NULL,
			taken_at  BIGINT NOT NULL,
			document  BLOB NOT NULL
		)`,
	}
	for _, stmt := range schema {
		if _, err := db.Exec(stmt); err != nil {
			db.Close()
			return nil, fmt.Errorf("failed to create schema: %w", err)
		}
	}

	log.Info("duckdb store ready", zap.Int("snapshotLimit", limit))
	return &DuckStore{db: db, dbPath: dbPath, limit: limit, log: log}, nil
}

// Load reads the stored layout of deviceID.
func (ds *DuckStore) Load(ctx context.Context, deviceID string) ([]models.WidgetConfig, error) {
	if err := checkDeviceID(deviceID); err != nil {
		return nil, err
	}
	var raw string
	err := ds.db.QueryRowContext(ctx, `SELECT config FROM ui_configs WHERE device_id = ?`, deviceID).Scan(&raw)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, deviceID)
	}
	if err != nil {
		return nil, fmt.Errorf("querying config: %w", err)
	}

	var cfg models.UIConfig
	if err := json.Unmarshal([]byte(raw), &cfg); err != nil {
		return nil, fmt.Errorf("decoding config for %s: %w", deviceID, err)
	}
	if cfg.Components == nil {
		cfg.Components = []models.WidgetConfig{}
	}
	return cfg.Components, nil
}

// Save upserts the layout of deviceID.
func (ds *DuckStore) Save(ctx context.Context, deviceID string, configs []models.WidgetConfig) error {
	if err := checkDeviceID(deviceID); err != nil {
		return err
	}
	if configs == nil {
		configs = []models.WidgetConfig{}
	}
	data, err := json.Marshal(models.UIConfig{Components: configs})
	if err != nil {
		return fmt.Errorf("encoding config: %w", err)
	}
	_, err = ds.db.ExecContext(ctx,
		`INSERT OR REPLACE INTO ui_configs (device_id, config, updated_at) VALUES (?, ?, ?)`,
		deviceID, string(data), time.Now().UnixMilli())
	if err != nil {
		return fmt.Errorf("saving config: %w", err)
	}
	return nil
}

// RecordSnapshot stores doc as the newest document of deviceID and drops
// snapshots beyond the limit.
func (ds *DuckStore) RecordSnapshot(ctx context.Context, deviceID string, doc payload.Document) error {
	if err := checkDeviceID(deviceID); err != nil {
		return err
	}
	blob, err := payload.MarshalMsgpack(doc)
	if err != nil {
		return fmt.Errorf("encoding snapshot: %w", err)
	}

	tx, err := ds.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("starting transaction: %w", err)
	}
	defer tx.Rollback()

	_, err = tx.ExecContext(ctx,
		`INSERT INTO snapshots (seq, device_id, taken_at, document) VALUES (nextval('snapshot_seq'), ?, ?, ?)`,
		deviceID, time.Now().UnixMilli(), blob)
	if err != nil {
		return fmt.Errorf("inserting snapshot: %w", err)
	}
	_, err = tx.ExecContext(ctx, `
		DELETE FROM snapshots
		WHERE device_id = ? AND seq NOT IN (
			SELECT seq FROM snapshots WHERE device_id = ? ORDER BY seq DESC LIMIT ?
		)`, deviceID, deviceID, ds.limit)
	if err != nil {
		return fmt.Errorf("trimming snapshots: %w", err)
	}
	return tx.Commit()
}

// Latest returns the newest stored document of deviceID.
func (ds *DuckStore) Latest(ctx context.Context, deviceID string) (Snapshot, error) {
	snaps, err := ds.Snapshots(ctx, deviceID, 1)
	if err != nil {
		return Snapshot{}, err
	}
	if len(snaps) == 0 {
		return Snapshot{}, fmt.Errorf("%w: no snapshot for %s", ErrNotFound, deviceID)
	}
	return snaps[0], nil
}

// Snapshots returns up to limit documents of deviceID, newest first.
func (ds *DuckStore) Snapshots(ctx context.Context, deviceID string, limit int) ([]Snapshot, error) {
	if err := checkDeviceID(deviceID); err != nil {
		return nil, err
	}
	if limit <= 0 || limit > ds.limit {
		limit = ds.limit
	}
	rows, err := ds.db.QueryContext(ctx,
		`SELECT seq, taken_at, document FROM snapshots WHERE device_id = ? ORDER BY seq DESC LIMIT ?`,
		deviceID, limit)
	if err != nil {
		return nil, fmt.Errorf("querying snapshots: %w", err)
	}
	defer rows.Close()

	snaps := make([]Snapshot, 0, limit)
	for rows.Next() {
		var (
			s     Snapshot
			taken int64
			blob  []byte
		)
		if err := rows.Scan(&s.Seq, &taken, &blob); err != nil {
			return nil, fmt.Errorf("scanning snapshot: %w", err)
		}
		doc, err := payload.ParseMsgpack(blob)
		if err != nil {
			ds.log.Warn("skipping unreadable snapshot", zap.Int64("seq", s.Seq), zap.Error(err))
			continue
		}
		s.TakenAt = time.UnixMilli(taken)
		s.Document = doc
		snaps = append(snaps, s)
	}
	return snaps, rows.Err()
}

// Devices lists the devices that have a stored layout, sorted.
func (ds *DuckStore) Devices(ctx context.Context) ([]string, error) {
	rows, err := ds.db.QueryContext(ctx, `SELECT device_id FROM ui_configs ORDER BY device_id`)
	if err != nil {
		return nil, fmt.Errorf("listing configs: %w", err)
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("scanning device id: %w", err)
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

// Close closes the database. The file is kept.
func (ds *DuckStore) Close() error {
	if ds.db == nil {
		return nil
	}
	return ds.db.Close()
}
