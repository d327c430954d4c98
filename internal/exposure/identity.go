package exposure

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/google/uuid"

	"github.com/nerrad567/gray-logic-matterbridge/internal/bridge"
	"github.com/nerrad567/gray-logic-matterbridge/internal/device"
)

// Identity is the persisted identity of the bridge node.
type Identity struct {
	// UniqueID appears in every device serial number. Generated once as the
	// creation time in milliseconds.
	UniqueID string `json:"unique_id"`

	// NodeID identifies this installation on the MQTT mirror and in logs.
	NodeID string `json:"node_id"`

	CreatedAt time.Time `json:"created_at"`
}

// DeviceIdentity is one row of the device ledger: a serial number the
// bridge has exposed at some point.
type DeviceIdentity struct {
	SerialNumber string     `json:"serial_number"`
	EntityID     string     `json:"entity_id"`
	Family       string     `json:"family"`
	Kind         string     `json:"kind"`
	Label        string     `json:"label"`
	FirstSeen    time.Time  `json:"first_seen"`
	LastSeen     time.Time  `json:"last_seen"`
	RemovedAt    *time.Time `json:"removed_at,omitempty"`
}

// Live reports whether the device is currently exposed.
func (d DeviceIdentity) Live() bool {
	return d.RemovedAt == nil
}

// IdentityStore persists the bridge identity and the device ledger in
// SQLite. It is an aggregator Listener: every Add and Remove is recorded.
//
// Thread Safety: safe for concurrent use; SQLite serialises writers.
type IdentityStore struct {
	db     *sql.DB
	logger Logger
	now    func() time.Time

	// timeout bounds the ledger writes made from listener callbacks.
	timeout time.Duration
}

// NewIdentityStore creates a store over an already migrated database.
func NewIdentityStore(db *sql.DB, logger Logger) *IdentityStore {
	return &IdentityStore{
		db:      db,
		logger:  orNoop(logger),
		now:     time.Now,
		timeout: 5 * time.Second,
	}
}

// EnsureIdentity returns the stored identity, creating it on first start.
// A non-empty override replaces the stored unique id, so an installation
// can pin the id it was first paired with.
//
// Parameters:
//   - ctx: Context for timeout/cancellation
//   - override: configured unique id, or "" to keep the stored one
//
// Returns:
//   - Identity: the identity to use for this run
//   - error: if the database cannot be read or written
func (s *IdentityStore) EnsureIdentity(ctx context.Context, override string) (Identity, error) {
	var id Identity
	var createdAt string
	err := s.db.QueryRowContext(ctx,
		`SELECT unique_id, node_id, created_at FROM bridge_identity WHERE id = 1`,
	).Scan(&id.UniqueID, &id.NodeID, &createdAt)

	switch {
	case errors.Is(err, sql.ErrNoRows):
		now := s.now().UTC()
		id = Identity{
			UniqueID:  strconv.FormatInt(now.UnixMilli(), 10),
			NodeID:    uuid.NewString(),
			CreatedAt: now.Truncate(time.Second),
		}
		if override != "" {
			id.UniqueID = override
		}
		_, err = s.db.ExecContext(ctx,
			`INSERT INTO bridge_identity (id, unique_id, node_id, created_at) VALUES (1, ?, ?, ?)`,
			id.UniqueID, id.NodeID, now.Format(time.RFC3339))
		if err != nil {
			return Identity{}, fmt.Errorf("creating bridge identity: %w", err)
		}
		s.logger.Info("bridge identity created", "unique_id", id.UniqueID, "node_id", id.NodeID)
		return id, nil

	case err != nil:
		return Identity{}, fmt.Errorf("reading bridge identity: %w", err)
	}

	id.CreatedAt, _ = time.Parse(time.RFC3339, createdAt) //nolint:errcheck // format is controlled

	if override != "" && override != id.UniqueID {
		if _, err := s.db.ExecContext(ctx,
			`UPDATE bridge_identity SET unique_id = ? WHERE id = 1`, override); err != nil {
			return Identity{}, fmt.Errorf("updating bridge unique id: %w", err)
		}
		s.logger.Warn("bridge unique id overridden by configuration",
			"previous", id.UniqueID, "unique_id", override)
		id.UniqueID = override
	}
	return id, nil
}

// CloseStale marks every device left live by a previous run as removed.
// Call it once at startup, before the registry exposes anything.
//
// Returns:
//   - int64: number of rows closed
func (s *IdentityStore) CloseStale(ctx context.Context) (int64, error) {
	res, err := s.db.ExecContext(ctx,
		`UPDATE device_identities SET removed_at = ? WHERE removed_at IS NULL`,
		s.now().UTC().Format(time.RFC3339))
	if err != nil {
		return 0, fmt.Errorf("closing stale devices: %w", err)
	}
	n, _ := res.RowsAffected() //nolint:errcheck // sqlite always reports it
	return n, nil
}

// RecordExposed upserts the ledger row of an exposed device.
func (s *IdentityStore) RecordExposed(ctx context.Context, dev *device.Device, meta device.Metadata) error {
	now := s.now().UTC().Format(time.RFC3339)
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO device_identities (serial_number, entity_id, family, kind, label, first_seen, last_seen, removed_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, NULL)
		 ON CONFLICT(serial_number) DO UPDATE SET
		     entity_id = excluded.entity_id,
		     family = excluded.family,
		     kind = excluded.kind,
		     label = excluded.label,
		     last_seen = excluded.last_seen,
		     removed_at = NULL`,
		meta.SerialNumber, meta.ProductLabel, string(bridge.FamilyOf(dev.Kind())), string(dev.Kind()),
		meta.Label, now, now,
	)
	if err != nil {
		return fmt.Errorf("recording device %s: %w", meta.SerialNumber, err)
	}
	return nil
}

// RecordRemoved stamps removed_at on the ledger row of a device.
func (s *IdentityStore) RecordRemoved(ctx context.Context, serial string) error {
	now := s.now().UTC().Format(time.RFC3339)
	_, err := s.db.ExecContext(ctx,
		`UPDATE device_identities SET removed_at = ?, last_seen = ? WHERE serial_number = ?`,
		now, now, serial)
	if err != nil {
		return fmt.Errorf("recording removal of %s: %w", serial, err)
	}
	return nil
}

// Devices lists the ledger, newest first.
func (s *IdentityStore) Devices(ctx context.Context) ([]DeviceIdentity, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT serial_number, entity_id, family, kind, label, first_seen, last_seen, removed_at
		 FROM device_identities ORDER BY last_seen DESC, serial_number`)
	if err != nil {
		return nil, fmt.Errorf("listing devices: %w", err)
	}
	defer rows.Close()

	var out []DeviceIdentity
	for rows.Next() {
		var d DeviceIdentity
		var firstSeen, lastSeen string
		var removedAt sql.NullString
		if err := rows.Scan(&d.SerialNumber, &d.EntityID, &d.Family, &d.Kind, &d.Label,
			&firstSeen, &lastSeen, &removedAt); err != nil {
			return nil, fmt.Errorf("scanning device row: %w", err)
		}
		d.FirstSeen, _ = time.Parse(time.RFC3339, firstSeen) //nolint:errcheck // format is controlled
		d.LastSeen, _ = time.Parse(time.RFC3339, lastSeen)   //nolint:errcheck // format is controlled
		if removedAt.Valid {
			t, _ := time.Parse(time.RFC3339, removedAt.String) //nolint:errcheck // format is controlled
			d.RemovedAt = &t
		}
		out = append(out, d)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating devices: %w", err)
	}
	return out, nil
}

// DeviceAdded implements Listener.
func (s *IdentityStore) DeviceAdded(dev *device.Device, meta device.Metadata) {
	ctx, cancel := context.WithTimeout(context.Background(), s.timeout)
	defer cancel()
	if err := s.RecordExposed(ctx, dev, meta); err != nil {
		s.logger.Error("device ledger write failed", "serial", meta.SerialNumber, "error", err)
	}
}

// DeviceRemoved implements Listener.
func (s *IdentityStore) DeviceRemoved(_ *device.Device, meta device.Metadata) {
	ctx, cancel := context.WithTimeout(context.Background(), s.timeout)
	defer cancel()
	if err := s.RecordRemoved(ctx, meta.SerialNumber); err != nil {
		s.logger.Error("device ledger write failed", "serial", meta.SerialNumber, "error", err)
	}
}
