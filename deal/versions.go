package deal

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
)

const versionColumns = `id, deal_id, version_number, locked, delivery_enabled, approved_at, subtotal, taxes, total, created_at, updated_at`

// InsertVersion creates the next pricing snapshot for a deal. The partial
// unique index on (deal_id) WHERE NOT locked rejects a second unlocked
// version at the storage layer.
func (r *Repository) InsertVersion(ctx context.Context, tx pgx.Tx, dealID string) (Version, error) {
	const insertSQL = `
INSERT INTO deal_versions (deal_id, version_number)
SELECT $1, COALESCE(MAX(version_number), 0) + 1
FROM deal_versions
WHERE deal_id = $1
RETURNING ` + versionColumns

	rec, err := scanVersion(tx.QueryRow(ctx, insertSQL, dealID))
	if err != nil {
		return Version{}, fmt.Errorf("deal: insert version: %w", err)
	}
	return rec, nil
}

// CurrentVersionForUpdate loads the single unlocked version of a deal with a
// row lock.
func (r *Repository) CurrentVersionForUpdate(ctx context.Context, tx pgx.Tx, dealID string) (Version, error) {
	const query = `SELECT ` + versionColumns + ` FROM deal_versions WHERE deal_id = $1 AND NOT locked FOR UPDATE`

	rec, err := scanVersion(tx.QueryRow(ctx, query, dealID))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Version{}, ErrNotFound
		}
		return Version{}, fmt.Errorf("deal: current version for update: %w", err)
	}
	return rec, nil
}

// CurrentVersion loads the single unlocked version without locking.
func (r *Repository) CurrentVersion(ctx context.Context, q Querier, dealID string) (Version, error) {
	const query = `SELECT ` + versionColumns + ` FROM deal_versions WHERE deal_id = $1 AND NOT locked`

	rec, err := scanVersion(q.QueryRow(ctx, query, dealID))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Version{}, ErrNotFound
		}
		return Version{}, fmt.Errorf("deal: current version: %w", err)
	}
	return rec, nil
}

// GetVersionForUpdate loads a specific version of a deal with a row lock.
func (r *Repository) GetVersionForUpdate(ctx context.Context, tx pgx.Tx, dealID, versionID string) (Version, error) {
	const query = `SELECT ` + versionColumns + ` FROM deal_versions WHERE id = $1 AND deal_id = $2 FOR UPDATE`

	rec, err := scanVersion(tx.QueryRow(ctx, query, versionID, dealID))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Version{}, ErrNotFound
		}
		return Version{}, fmt.Errorf("deal: get version for update: %w", err)
	}
	return rec, nil
}

// GetVersion loads a version without locking.
func (r *Repository) GetVersion(ctx context.Context, q Querier, dealID, versionID string) (Version, error) {
	const query = `SELECT ` + versionColumns + ` FROM deal_versions WHERE id = $1 AND deal_id = $2`

	rec, err := scanVersion(q.QueryRow(ctx, query, versionID, dealID))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Version{}, ErrNotFound
		}
		return Version{}, fmt.Errorf("deal: get version: %w", err)
	}
	return rec, nil
}

// LockedVersion loads a deal's most recent locked version.
func (r *Repository) LockedVersion(ctx context.Context, q Querier, dealID string) (Version, error) {
	const query = `
SELECT ` + versionColumns + `
FROM deal_versions
WHERE deal_id = $1 AND locked
ORDER BY version_number DESC
LIMIT 1
`
	rec, err := scanVersion(q.QueryRow(ctx, query, dealID))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Version{}, ErrNotFound
		}
		return Version{}, fmt.Errorf("deal: locked version: %w", err)
	}
	return rec, nil
}

// ListVersions returns every version of a deal, newest first.
func (r *Repository) ListVersions(ctx context.Context, q Querier, dealID string) ([]Version, error) {
	const query = `SELECT ` + versionColumns + ` FROM deal_versions WHERE deal_id = $1 ORDER BY version_number DESC`

	rows, err := q.Query(ctx, query, dealID)
	if err != nil {
		return nil, fmt.Errorf("deal: list versions: %w", err)
	}
	defer rows.Close()

	versions := make([]Version, 0, 4)
	for rows.Next() {
		rec, err := scanVersion(rows)
		if err != nil {
			return nil, fmt.Errorf("deal: scan version: %w", err)
		}
		versions = append(versions, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("deal: iterate versions: %w", err)
	}
	return versions, nil
}

// LockVersion performs the one-way lock transition. Locking an already
// locked version is rejected rather than silently ignored: it signals a
// programming or concurrency error upstream.
func (r *Repository) LockVersion(ctx context.Context, tx pgx.Tx, versionID string) (Version, error) {
	const updateSQL = `
UPDATE deal_versions
SET locked = true,
    approved_at = now(),
    updated_at = now()
WHERE id = $1 AND NOT locked
RETURNING ` + versionColumns

	rec, err := scanVersion(tx.QueryRow(ctx, updateSQL, versionID))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Version{}, ErrVersionLocked
		}
		return Version{}, fmt.Errorf("deal: lock version: %w", err)
	}
	return rec, nil
}

// EnableDelivery makes the locked version's customer-visible subset readable
// by the intake/customer-facing role.
func (r *Repository) EnableDelivery(ctx context.Context, tx pgx.Tx, versionID string) error {
	tag, err := tx.Exec(ctx, `UPDATE deal_versions SET delivery_enabled = true, updated_at = now() WHERE id = $1`, versionID)
	if err != nil {
		return fmt.Errorf("deal: enable delivery: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func scanVersion(row pgx.Row) (Version, error) {
	var v Version
	err := row.Scan(
		&v.ID,
		&v.DealID,
		&v.VersionNumber,
		&v.Locked,
		&v.DeliveryEnabled,
		&v.ApprovedAt,
		&v.Subtotal,
		&v.Taxes,
		&v.Total,
		&v.CreatedAt,
		&v.UpdatedAt,
	)
	if err != nil {
		return Version{}, err
	}
	return v, nil
}
