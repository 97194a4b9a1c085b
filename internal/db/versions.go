package db

import (
	"context"
	"database/sql"
	"errors"
	"time"
)

// Version kinds in the manifest.
const (
	KindSynthesis      = "synthesis"
	KindImplementation = "implementation"
)

// VersionRecord is one manifest row.
type VersionRecord struct {
	Design    string
	Tech      string
	Kind      string
	Version   string
	Stage     string
	Status    string
	CreatedAt time.Time
	UpdatedAt time.Time
}

const timeLayout = time.RFC3339Nano

// RecordVersion inserts or refreshes a manifest row. Re-running a stage for
// an existing version bumps updated_at and the last completed stage.
func (d *DB) RecordVersion(ctx context.Context, rec VersionRecord) error {
	now := time.Now().UTC()
	if rec.CreatedAt.IsZero() {
		rec.CreatedAt = now
	}
	if rec.UpdatedAt.IsZero() {
		rec.UpdatedAt = now
	}
	_, err := d.conn.ExecContext(ctx, `
INSERT INTO versions (design, tech, kind, version, stage, status, created_at, updated_at)
VALUES (?, ?, ?, ?, ?, ?, ?, ?)
ON CONFLICT(design, tech, kind, version) DO UPDATE SET
  stage = excluded.stage,
  status = excluded.status,
  updated_at = excluded.updated_at`,
		rec.Design, rec.Tech, rec.Kind, rec.Version, rec.Stage, rec.Status,
		rec.CreatedAt.Format(timeLayout), rec.UpdatedAt.Format(timeLayout))
	return err
}

// LatestVersion returns the most recently updated version of a kind, or
// ok=false when the manifest has no row for the design.
func (d *DB) LatestVersion(ctx context.Context, design, tech, kind string) (string, bool, error) {
	row := d.conn.QueryRowContext(ctx, `
SELECT version FROM versions
WHERE design = ? AND tech = ? AND kind = ?
ORDER BY updated_at DESC, version DESC
LIMIT 1`, design, tech, kind)

	var version string
	switch err := row.Scan(&version); {
	case errors.Is(err, sql.ErrNoRows):
		return "", false, nil
	case err != nil:
		return "", false, err
	}
	return version, true, nil
}

// ListVersions returns every manifest row for a design, newest first.
func (d *DB) ListVersions(ctx context.Context, design, tech string) ([]VersionRecord, error) {
	rows, err := d.conn.QueryContext(ctx, `
SELECT design, tech, kind, version, stage, status, created_at, updated_at
FROM versions
WHERE design = ? AND tech = ?
ORDER BY updated_at DESC`, design, tech)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []VersionRecord
	for rows.Next() {
		var rec VersionRecord
		var created, updated string
		if err := rows.Scan(&rec.Design, &rec.Tech, &rec.Kind, &rec.Version,
			&rec.Stage, &rec.Status, &created, &updated); err != nil {
			return nil, err
		}
		rec.CreatedAt, _ = time.Parse(timeLayout, created)
		rec.UpdatedAt, _ = time.Parse(timeLayout, updated)
		out = append(out, rec)
	}
	return out, rows.Err()
}
