package dispatch

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/shopspring/decimal"

	"dealflow/deal"
)

// Record is one dispatched deal as the execution side sees it: the handoff
// joined with its deal, locked version, and proposal document.
type Record struct {
	HandoffID     string
	DealID        string
	ContactName   string
	Stage         deal.Stage
	VersionID     string
	VersionNumber int
	Subtotal      decimal.Decimal
	Taxes         decimal.Decimal
	Total         decimal.Decimal
	DocumentID    string
	StorageKey    string
	ApprovedAt    *time.Time
	HandedOffAt   time.Time
}

// Repository reads the dispatch board. Handoffs only exist for deals that
// completed approval, so every row it returns is DISPATCHED or later.
type Repository struct{}

func NewRepository() *Repository {
	return &Repository{}
}

const recordQuery = `
SELECT h.id, d.id, d.contact_name, d.stage,
       v.id, v.version_number, v.subtotal, v.taxes, v.total,
       doc.id, doc.storage_key,
       v.approved_at, h.created_at
FROM dispatch_handoffs h
JOIN deals d ON d.id = h.deal_id
JOIN deal_versions v ON v.id = h.version_id
JOIN deal_documents doc ON doc.id = h.document_id
`

// ListForCompany returns the tenant's dispatch board, newest handoff first.
func (r *Repository) ListForCompany(ctx context.Context, q deal.Querier, companyID string) ([]Record, error) {
	rows, err := q.Query(ctx, recordQuery+`WHERE d.company_id = $1 ORDER BY h.created_at DESC`, companyID)
	if err != nil {
		return nil, fmt.Errorf("dispatch: list: %w", err)
	}
	defer rows.Close()

	records := make([]Record, 0, 16)
	for rows.Next() {
		rec, err := scanRecord(rows)
		if err != nil {
			return nil, fmt.Errorf("dispatch: scan: %w", err)
		}
		records = append(records, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("dispatch: iterate: %w", err)
	}
	return records, nil
}

// GetForDeal returns the handoff record of one deal within the tenant.
func (r *Repository) GetForDeal(ctx context.Context, q deal.Querier, companyID, dealID string) (Record, error) {
	rec, err := scanRecord(q.QueryRow(ctx, recordQuery+`WHERE d.company_id = $1 AND d.id = $2`, companyID, dealID))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Record{}, deal.ErrNotFound
		}
		return Record{}, fmt.Errorf("dispatch: get: %w", err)
	}
	return rec, nil
}

func scanRecord(row pgx.Row) (Record, error) {
	var rec Record
	err := row.Scan(
		&rec.HandoffID,
		&rec.DealID,
		&rec.ContactName,
		&rec.Stage,
		&rec.VersionID,
		&rec.VersionNumber,
		&rec.Subtotal,
		&rec.Taxes,
		&rec.Total,
		&rec.DocumentID,
		&rec.StorageKey,
		&rec.ApprovedAt,
		&rec.HandedOffAt,
	)
	if err != nil {
		return Record{}, err
	}
	return rec, nil
}
