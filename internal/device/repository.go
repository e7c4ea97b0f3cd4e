package device

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// timestampFormat is fixed-width so text ordering matches time ordering.
const timestampFormat = "2006-01-02T15:04:05.000000000Z"

const (
	defaultSnapshotLimit = 20
	maxSnapshotLimit     = 200
)

// Snapshot is a stored copy of a device's information record.
type Snapshot struct {
	ID        string         `json:"id"`
	Serial    string         `json:"serial"`
	Status    Status         `json:"status"`
	Groups    []string       `json:"groups"`
	Fields    map[string]any `json:"fields"`
	CreatedAt time.Time      `json:"created_at"`
}

// Record is the persisted summary of a device droidprobe has seen.
type Record struct {
	Serial       string            `json:"serial"`
	Model        string            `json:"model,omitempty"`
	Manufacturer string            `json:"manufacturer,omitempty"`
	Status       Status            `json:"status"`
	Attributes   map[string]string `json:"attributes,omitempty"`
	FirstSeen    time.Time         `json:"first_seen"`
	LastSeen     time.Time         `json:"last_seen"`
}

// Repository persists device records and information snapshots.
type Repository interface {
	// SaveSnapshot stores a snapshot, assigning ID and CreatedAt when empty.
	SaveSnapshot(ctx context.Context, snap *Snapshot) error

	// LatestSnapshot returns the newest snapshot for serial.
	// Returns ErrSnapshotNotFound if there is none.
	LatestSnapshot(ctx context.Context, serial string) (*Snapshot, error)

	// ListSnapshots returns snapshots for serial, newest first.
	ListSnapshots(ctx context.Context, serial string, limit int) ([]Snapshot, error)

	// UpsertDevice inserts or updates a device record, keeping FirstSeen.
	UpsertDevice(ctx context.Context, rec *Record) error

	// GetDevice returns the record for serial.
	// Returns ErrDeviceNotFound if the serial was never seen.
	GetDevice(ctx context.Context, serial string) (*Record, error)

	// ListDevices returns all device records ordered by serial.
	ListDevices(ctx context.Context) ([]Record, error)

	// PruneSnapshots deletes all but the newest keep snapshots for serial.
	PruneSnapshots(ctx context.Context, serial string, keep int) (int64, error)
}

// SQLiteRepository implements Repository using SQLite.
//
// Field values are stored as JSON, so integers read back as float64.
type SQLiteRepository struct {
	db *sql.DB
}

// NewSQLiteRepository creates a new SQLite-backed repository.
// The db parameter should be an open, migrated SQLite connection.
func NewSQLiteRepository(db *sql.DB) *SQLiteRepository {
	return &SQLiteRepository{db: db}
}

// SaveSnapshot inserts a snapshot.
func (r *SQLiteRepository) SaveSnapshot(ctx context.Context, snap *Snapshot) error {
	if snap.Serial == "" {
		return fmt.Errorf("snapshot serial is required")
	}
	if snap.ID == "" {
		snap.ID = uuid.NewString()
	}
	if snap.CreatedAt.IsZero() {
		snap.CreatedAt = time.Now().UTC()
	}
	if snap.Fields == nil {
		snap.Fields = map[string]any{}
	}
	if snap.Groups == nil {
		snap.Groups = []string{}
	}

	fieldsJSON, err := json.Marshal(snap.Fields)
	if err != nil {
		return fmt.Errorf("marshalling snapshot fields: %w", err)
	}
	groupsJSON, err := json.Marshal(snap.Groups)
	if err != nil {
		return fmt.Errorf("marshalling snapshot groups: %w", err)
	}

	_, err = r.db.ExecContext(ctx,
		`INSERT INTO device_snapshots (id, serial, status, extracted_groups, fields, created_at)
		 VALUES (?, ?, ?, ?, ?, ?)`,
		snap.ID,
		snap.Serial,
		string(snap.Status),
		string(groupsJSON),
		string(fieldsJSON),
		snap.CreatedAt.UTC().Format(timestampFormat),
	)
	if err != nil {
		return fmt.Errorf("inserting snapshot: %w", err)
	}
	return nil
}

// LatestSnapshot returns the newest snapshot for serial.
func (r *SQLiteRepository) LatestSnapshot(ctx context.Context, serial string) (*Snapshot, error) {
	snaps, err := r.ListSnapshots(ctx, serial, 1)
	if err != nil {
		return nil, err
	}
	if len(snaps) == 0 {
		return nil, ErrSnapshotNotFound
	}
	return &snaps[0], nil
}

// ListSnapshots returns snapshots for serial ordered newest first.
// limit defaults to 20 and is capped at 200.
func (r *SQLiteRepository) ListSnapshots(ctx context.Context, serial string, limit int) ([]Snapshot, error) {
	if limit <= 0 {
		limit = defaultSnapshotLimit
	}
	if limit > maxSnapshotLimit {
		limit = maxSnapshotLimit
	}

	rows, err := r.db.QueryContext(ctx,
		`SELECT id, serial, status, extracted_groups, fields, created_at
		 FROM device_snapshots
		 WHERE serial = ?
		 ORDER BY created_at DESC
		 LIMIT ?`,
		serial,
		limit,
	)
	if err != nil {
		return nil, fmt.Errorf("querying snapshots: %w", err)
	}
	defer rows.Close()

	snaps := make([]Snapshot, 0, limit)
	for rows.Next() {
		var (
			snap       Snapshot
			status     string
			groupsJSON string
			fieldsJSON string
			createdAt  string
		)
		if err := rows.Scan(&snap.ID, &snap.Serial, &status, &groupsJSON, &fieldsJSON, &createdAt); err != nil {
			return nil, fmt.Errorf("scanning snapshot: %w", err)
		}
		snap.Status = Status(status)
		if err := json.Unmarshal([]byte(groupsJSON), &snap.Groups); err != nil {
			return nil, fmt.Errorf("unmarshalling snapshot groups: %w", err)
		}
		if err := json.Unmarshal([]byte(fieldsJSON), &snap.Fields); err != nil {
			return nil, fmt.Errorf("unmarshalling snapshot fields: %w", err)
		}
		if snap.CreatedAt, err = parseTimestamp(createdAt); err != nil {
			return nil, err
		}
		snaps = append(snaps, snap)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating snapshots: %w", err)
	}
	return snaps, nil
}

// PruneSnapshots keeps the newest keep snapshots for serial.
func (r *SQLiteRepository) PruneSnapshots(ctx context.Context, serial string, keep int) (int64, error) {
	if keep < 0 {
		keep = 0
	}
	result, err := r.db.ExecContext(ctx,
		`DELETE FROM device_snapshots
		 WHERE serial = ? AND id NOT IN (
			SELECT id FROM device_snapshots WHERE serial = ?
			ORDER BY created_at DESC LIMIT ?
		 )`,
		serial, serial, keep,
	)
	if err != nil {
		return 0, fmt.Errorf("pruning snapshots: %w", err)
	}
	n, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("checking pruned rows: %w", err)
	}
	return n, nil
}

// UpsertDevice inserts or updates a device record.
func (r *SQLiteRepository) UpsertDevice(ctx context.Context, rec *Record) error {
	if rec.Serial == "" {
		return fmt.Errorf("device serial is required")
	}
	now := time.Now().UTC()
	if rec.LastSeen.IsZero() {
		rec.LastSeen = now
	}
	if rec.FirstSeen.IsZero() {
		rec.FirstSeen = rec.LastSeen
	}
	attrsJSON, err := json.Marshal(rec.Attributes)
	if err != nil {
		return fmt.Errorf("marshalling attributes: %w", err)
	}

	_, err = r.db.ExecContext(ctx,
		`INSERT INTO devices (serial, model, manufacturer, status, attributes, first_seen, last_seen)
		 VALUES (?, ?, ?, ?, ?, ?, ?)
		 ON CONFLICT(serial) DO UPDATE SET
			model = CASE WHEN excluded.model != '' THEN excluded.model ELSE devices.model END,
			manufacturer = CASE WHEN excluded.manufacturer != '' THEN excluded.manufacturer ELSE devices.manufacturer END,
			status = excluded.status,
			attributes = excluded.attributes,
			last_seen = excluded.last_seen`,
		rec.Serial,
		rec.Model,
		rec.Manufacturer,
		string(rec.Status),
		string(attrsJSON),
		rec.FirstSeen.UTC().Format(timestampFormat),
		rec.LastSeen.UTC().Format(timestampFormat),
	)
	if err != nil {
		return fmt.Errorf("upserting device: %w", err)
	}
	return nil
}

// GetDevice returns the record for serial.
func (r *SQLiteRepository) GetDevice(ctx context.Context, serial string) (*Record, error) {
	row := r.db.QueryRowContext(ctx,
		`SELECT serial, model, manufacturer, status, attributes, first_seen, last_seen
		 FROM devices WHERE serial = ?`, serial)
	rec, err := scanRecord(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrDeviceNotFound
		}
		return nil, fmt.Errorf("querying device: %w", err)
	}
	return rec, nil
}

// ListDevices returns all device records ordered by serial.
func (r *SQLiteRepository) ListDevices(ctx context.Context) ([]Record, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT serial, model, manufacturer, status, attributes, first_seen, last_seen
		 FROM devices ORDER BY serial`)
	if err != nil {
		return nil, fmt.Errorf("querying devices: %w", err)
	}
	defer rows.Close()

	var recs []Record
	for rows.Next() {
		rec, err := scanRecord(rows)
		if err != nil {
			return nil, fmt.Errorf("scanning device: %w", err)
		}
		recs = append(recs, *rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating devices: %w", err)
	}
	return recs, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanRecord(row rowScanner) (*Record, error) {
	var (
		rec       Record
		status    string
		attrsJSON string
		firstSeen string
		lastSeen  string
	)
	if err := row.Scan(&rec.Serial, &rec.Model, &rec.Manufacturer, &status, &attrsJSON, &firstSeen, &lastSeen); err != nil {
		return nil, err
	}
	rec.Status = Status(status)
	if attrsJSON != "" && attrsJSON != "null" {
		if err := json.Unmarshal([]byte(attrsJSON), &rec.Attributes); err != nil {
			return nil, fmt.Errorf("unmarshalling attributes: %w", err)
		}
	}
	var err error
	if rec.FirstSeen, err = parseTimestamp(firstSeen); err != nil {
		return nil, err
	}
	if rec.LastSeen, err = parseTimestamp(lastSeen); err != nil {
		return nil, err
	}
	return &rec, nil
}

func parseTimestamp(value string) (time.Time, error) {
	ts, err := time.Parse(timestampFormat, value)
	if err != nil {
		return time.Time{}, fmt.Errorf("parsing timestamp %q: %w", value, err)
	}
	return ts.UTC(), nil
}
