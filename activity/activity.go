package activity

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// Type enumerates the business events recorded on the audit trail.
type Type string

const (
	TypeDealCreated          Type = "DEAL_CREATED"
	TypeDealSentToEstimating Type = "DEAL_SENT_TO_ESTIMATING"
	TypeLineItemAdded        Type = "LINE_ITEM_ADDED"
	TypeLineItemUpdated      Type = "LINE_ITEM_UPDATED"
	TypeLineItemDeleted      Type = "LINE_ITEM_DELETED"
	TypeDealSubmitted        Type = "DEAL_SUBMITTED"
	TypeDealApproved         Type = "DEAL_APPROVED"
	TypeDocumentGenerated    Type = "DOCUMENT_GENERATED"
	TypeDealDispatched       Type = "DEAL_DISPATCHED"
	TypeDeliveryEnabled      Type = "DELIVERY_ENABLED"
)

// Entry is one append-only audit record. Entries are written inside the same
// transaction as the mutation they document so the trail and the mutated
// state can never diverge.
type Entry struct {
	CompanyID  string
	DealID     *string
	ActorID    *string
	Type       Type
	Subject    string
	Metadata   map[string]any
	OccurredAt time.Time
}

// Record mirrors the activities table.
type Record struct {
	ID         int64
	CompanyID  string
	DealID     *string
	ActorID    *string
	Type       Type
	Subject    string
	Metadata   []byte
	OccurredAt time.Time
	CreatedAt  time.Time
}

// Emitter appends audit entries. There is no update or delete.
type Emitter struct{}

func NewEmitter() *Emitter {
	return &Emitter{}
}

// Append inserts one entry inside the caller's transaction.
func (e *Emitter) Append(ctx context.Context, tx pgx.Tx, entry Entry) error {
	if entry.CompanyID == "" {
		return fmt.Errorf("activity: missing company id")
	}
	if entry.Type == "" {
		return fmt.Errorf("activity: missing type")
	}

	metadata := entry.Metadata
	if metadata == nil {
		metadata = map[string]any{}
	}
	body, err := json.Marshal(metadata)
	if err != nil {
		return fmt.Errorf("activity: marshal metadata: %w", err)
	}

	occurredAt := entry.OccurredAt
	if occurredAt.IsZero() {
		occurredAt = time.Now().UTC()
	}

	const insertSQL = `
INSERT INTO activities (company_id, deal_id, actor_id, type, subject, metadata, occurred_at)
VALUES ($1, $2, $3, $4, $5, $6::jsonb, $7)
`
	if _, err := tx.Exec(ctx, insertSQL,
		entry.CompanyID,
		entry.DealID,
		entry.ActorID,
		entry.Type,
		entry.Subject,
		body,
		occurredAt,
	); err != nil {
		return fmt.Errorf("activity: insert: %w", err)
	}

	return nil
}

// Repository provides read access to the audit trail.
type Repository struct {
	pool *pgxpool.Pool
}

func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

// ListForDeal returns a deal's activities, oldest first.
func (r *Repository) ListForDeal(ctx context.Context, companyID, dealID string) ([]Record, error) {
	const query = `
		SELECT id, company_id, deal_id, actor_id, type, subject, metadata, occurred_at, created_at
		FROM activities
		WHERE company_id = $1 AND deal_id = $2
		ORDER BY id ASC
	`

	rows, err := r.pool.Query(ctx, query, companyID, dealID)
	if err != nil {
		return nil, fmt.Errorf("activity: list for deal: %w", err)
	}
	defer rows.Close()

	records := make([]Record, 0, 16)
	for rows.Next() {
		var rec Record
		if err := rows.Scan(
			&rec.ID,
			&rec.CompanyID,
			&rec.DealID,
			&rec.ActorID,
			&rec.Type,
			&rec.Subject,
			&rec.Metadata,
			&rec.OccurredAt,
			&rec.CreatedAt,
		); err != nil {
			return nil, fmt.Errorf("activity: scan: %w", err)
		}
		records = append(records, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("activity: iterate: %w", err)
	}
	return records, nil
}
