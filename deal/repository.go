package deal

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

// Repository holds the transactional data access for the deal workflow.
// Methods take the caller's pgx.Tx so multi-step writes commit or roll back
// as one unit together with their audit entries.
type Repository struct{}

func NewRepository() *Repository {
	return &Repository{}
}

const dealColumns = `id, company_id, contact_id, contact_name, stage, assigned_to, created_by, approved_by, approved_at, subtotal, taxes, total, created_at, updated_at`

// InsertDeal creates a deal at OPEN for the given tenant.
func (r *Repository) InsertDeal(ctx context.Context, tx pgx.Tx, d Deal) (Deal, error) {
	const insertSQL = `
INSERT INTO deals (company_id, contact_id, contact_name, stage, created_by)
VALUES ($1, $2, $3, 'OPEN', $4)
RETURNING ` + dealColumns

	rec, err := scanDeal(tx.QueryRow(ctx, insertSQL, d.CompanyID, d.ContactID, d.ContactName, d.CreatedByID))
	if err != nil {
		return Deal{}, fmt.Errorf("deal: insert: %w", err)
	}
	return rec, nil
}

// GetForUpdate loads a deal inside the caller's transaction with a row lock,
// scoped to the tenant. Cross-tenant ids read as absent.
func (r *Repository) GetForUpdate(ctx context.Context, tx pgx.Tx, companyID, dealID string) (Deal, error) {
	const query = `SELECT ` + dealColumns + ` FROM deals WHERE id = $1 AND company_id = $2 FOR UPDATE`

	rec, err := scanDeal(tx.QueryRow(ctx, query, dealID, companyID))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Deal{}, ErrNotFound
		}
		return Deal{}, fmt.Errorf("deal: get for update: %w", err)
	}
	return rec, nil
}

// Get loads a deal without locking.
func (r *Repository) Get(ctx context.Context, q Querier, companyID, dealID string) (Deal, error) {
	const query = `SELECT ` + dealColumns + ` FROM deals WHERE id = $1 AND company_id = $2`

	rec, err := scanDeal(q.QueryRow(ctx, query, dealID, companyID))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Deal{}, ErrNotFound
		}
		return Deal{}, fmt.Errorf("deal: get: %w", err)
	}
	return rec, nil
}

// SetStage moves a deal to the given stage.
func (r *Repository) SetStage(ctx context.Context, tx pgx.Tx, dealID string, stage Stage) error {
	tag, err := tx.Exec(ctx, `UPDATE deals SET stage = $2, updated_at = now() WHERE id = $1`, dealID, stage)
	if err != nil {
		return fmt.Errorf("deal: set stage: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// AssignEstimator records the estimator a deal was routed to.
func (r *Repository) AssignEstimator(ctx context.Context, tx pgx.Tx, dealID, userID string) error {
	if _, err := tx.Exec(ctx, `UPDATE deals SET assigned_to = $2, updated_at = now() WHERE id = $1`, dealID, userID); err != nil {
		return fmt.Errorf("deal: assign estimator: %w", err)
	}
	return nil
}

// MarkDispatched flips the deal to DISPATCHED and records the approver.
func (r *Repository) MarkDispatched(ctx context.Context, tx pgx.Tx, dealID, approverID string) error {
	tag, err := tx.Exec(ctx, `
UPDATE deals
SET stage = 'DISPATCHED',
    approved_by = $2,
    approved_at = now(),
    updated_at = now()
WHERE id = $1
`, dealID, approverID)
	if err != nil {
		return fmt.Errorf("deal: mark dispatched: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// ApplyTotals persists recomputed aggregates on both the version and the deal.
func (r *Repository) ApplyTotals(ctx context.Context, tx pgx.Tx, dealID, versionID string, totals Totals) error {
	if _, err := tx.Exec(ctx, `
UPDATE deal_versions
SET subtotal = $2, taxes = $3, total = $4, updated_at = now()
WHERE id = $1
`, versionID, totals.Subtotal, totals.Taxes, totals.Total); err != nil {
		return fmt.Errorf("deal: apply version totals: %w", err)
	}
	if _, err := tx.Exec(ctx, `
UPDATE deals
SET subtotal = $2, taxes = $3, total = $4, updated_at = now()
WHERE id = $1
`, dealID, totals.Subtotal, totals.Taxes, totals.Total); err != nil {
		return fmt.Errorf("deal: apply deal totals: %w", err)
	}
	return nil
}

// InsertDocument records a rendered proposal's storage reference.
func (r *Repository) InsertDocument(ctx context.Context, tx pgx.Tx, doc Document) (Document, error) {
	const insertSQL = `
INSERT INTO deal_documents (deal_id, version_id, storage_key, generated_by)
VALUES ($1, $2, $3, $4)
RETURNING id, deal_id, version_id, storage_key, generated_by, generated_at
`
	var rec Document
	if err := tx.QueryRow(ctx, insertSQL, doc.DealID, doc.VersionID, doc.StorageKey, doc.GeneratedByID).Scan(
		&rec.ID, &rec.DealID, &rec.VersionID, &rec.StorageKey, &rec.GeneratedByID, &rec.GeneratedAt,
	); err != nil {
		return Document{}, fmt.Errorf("deal: insert document: %w", err)
	}
	return rec, nil
}

// InsertHandoff records the dispatch handoff. The unique constraint on
// deal_id guarantees at most one handoff ever exists per deal.
func (r *Repository) InsertHandoff(ctx context.Context, tx pgx.Tx, h Handoff) (Handoff, error) {
	const insertSQL = `
INSERT INTO dispatch_handoffs (deal_id, version_id, document_id, created_by)
VALUES ($1, $2, $3, $4)
RETURNING id, deal_id, version_id, document_id, created_by, created_at
`
	var rec Handoff
	if err := tx.QueryRow(ctx, insertSQL, h.DealID, h.VersionID, h.DocumentID, h.CreatedByID).Scan(
		&rec.ID, &rec.DealID, &rec.VersionID, &rec.DocumentID, &rec.CreatedByID, &rec.CreatedAt,
	); err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23505" {
			return Handoff{}, ErrApprovalConflict
		}
		return Handoff{}, fmt.Errorf("deal: insert handoff: %w", err)
	}
	return rec, nil
}

// Querier is the read surface shared by pgxpool.Pool and pgx.Tx.
type Querier interface {
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

func scanDeal(row pgx.Row) (Deal, error) {
	var d Deal
	err := row.Scan(
		&d.ID,
		&d.CompanyID,
		&d.ContactID,
		&d.ContactName,
		&d.Stage,
		&d.AssignedToID,
		&d.CreatedByID,
		&d.ApprovedByID,
		&d.ApprovedAt,
		&d.Subtotal,
		&d.Taxes,
		&d.Total,
		&d.CreatedAt,
		&d.UpdatedAt,
	)
	if err != nil {
		return Deal{}, err
	}
	if d.Stage, err = ParseStage(string(d.Stage)); err != nil {
		return Deal{}, err
	}
	return d, nil
}
