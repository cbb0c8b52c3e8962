package deal

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/shopspring/decimal"

	"dealflow/activity"
	"dealflow/auth"
)

const lineItemColumns = `id, deal_id, version_id, description, quantity, unit, unit_cost, line_total, category, phase, discipline, customer_visible, internal_only, sort_order, created_at, updated_at`

// LineItemParams carries the caller-supplied fields of a new line item.
// The line total is never accepted from the caller.
type LineItemParams struct {
	Description     string          `json:"description"`
	Quantity        decimal.Decimal `json:"quantity"`
	Unit            string          `json:"unit"`
	UnitCost        decimal.Decimal `json:"unitCost"`
	Category        Category        `json:"category"`
	Phase           *string         `json:"phase"`
	Discipline      *string         `json:"discipline"`
	CustomerVisible *bool           `json:"customerVisible"`
	InternalOnly    bool            `json:"internalOnly"`
	SortOrder       int             `json:"sortOrder"`
}

func (p LineItemParams) validate() error {
	if strings.TrimSpace(p.Description) == "" {
		return fmt.Errorf("%w: description required", ErrValidation)
	}
	if !p.Quantity.IsPositive() {
		return fmt.Errorf("%w: quantity must be positive", ErrValidation)
	}
	if p.UnitCost.IsNegative() {
		return fmt.Errorf("%w: unit cost must be non-negative", ErrValidation)
	}
	if !ValidCategory(p.Category) {
		return fmt.Errorf("%w: unknown category %q", ErrValidation, p.Category)
	}
	return nil
}

// UpdateLineItemParams carries a partial update; nil fields are left as-is.
type UpdateLineItemParams struct {
	Description     *string          `json:"description"`
	Quantity        *decimal.Decimal `json:"quantity"`
	Unit            *string          `json:"unit"`
	UnitCost        *decimal.Decimal `json:"unitCost"`
	Category        *Category        `json:"category"`
	Phase           *string          `json:"phase"`
	Discipline      *string          `json:"discipline"`
	CustomerVisible *bool            `json:"customerVisible"`
	InternalOnly    *bool            `json:"internalOnly"`
	SortOrder       *int             `json:"sortOrder"`
}

func (p UpdateLineItemParams) validate() error {
	if p.Description != nil && strings.TrimSpace(*p.Description) == "" {
		return fmt.Errorf("%w: description required", ErrValidation)
	}
	if p.Quantity != nil && !p.Quantity.IsPositive() {
		return fmt.Errorf("%w: quantity must be positive", ErrValidation)
	}
	if p.UnitCost != nil && p.UnitCost.IsNegative() {
		return fmt.Errorf("%w: unit cost must be non-negative", ErrValidation)
	}
	if p.Category != nil && !ValidCategory(*p.Category) {
		return fmt.Errorf("%w: unknown category %q", ErrValidation, *p.Category)
	}
	return nil
}

// AddLineItem appends a priced entry to the version, recomputes the version
// and deal aggregates, and writes the audit entry, all in one transaction.
func (s *Service) AddLineItem(ctx context.Context, actor auth.Actor, dealID, versionID string, params LineItemParams) (LineItem, error) {
	if err := params.validate(); err != nil {
		return LineItem{}, err
	}

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return LineItem{}, fmt.Errorf("deal: begin tx: %w", err)
	}
	defer tx.Rollback(ctx)

	d, version, err := s.editableVersion(ctx, tx, actor, dealID, versionID)
	if err != nil {
		return LineItem{}, err
	}

	visible := true
	if params.CustomerVisible != nil {
		visible = *params.CustomerVisible
	}

	item := LineItem{
		DealID:          d.ID,
		VersionID:       version.ID,
		Description:     strings.TrimSpace(params.Description),
		Quantity:        params.Quantity,
		Unit:            params.Unit,
		UnitCost:        params.UnitCost,
		LineTotal:       ComputeLineTotal(params.Quantity, params.UnitCost),
		Category:        params.Category,
		Phase:           params.Phase,
		Discipline:      params.Discipline,
		CustomerVisible: visible,
		InternalOnly:    params.InternalOnly,
		SortOrder:       params.SortOrder,
	}

	created, err := s.repo.InsertLineItem(ctx, tx, item)
	if err != nil {
		return LineItem{}, err
	}

	if err := s.refreshTotals(ctx, tx, d.ID, version.ID); err != nil {
		return LineItem{}, err
	}

	if err := s.activities.Append(ctx, tx, activity.Entry{
		CompanyID: actor.CompanyID,
		DealID:    &d.ID,
		ActorID:   &actor.UserID,
		Type:      activity.TypeLineItemAdded,
		Subject:   created.Description,
		Metadata: map[string]any{
			"line_item_id": created.ID,
			"version_id":   version.ID,
			"line_total":   created.LineTotal.String(),
		},
	}); err != nil {
		return LineItem{}, err
	}

	if err := tx.Commit(ctx); err != nil {
		return LineItem{}, fmt.Errorf("deal: commit add line item: %w", err)
	}

	return created, nil
}

// UpdateLineItem applies a partial update and recomputes the line total and
// aggregates from the persisted inputs.
func (s *Service) UpdateLineItem(ctx context.Context, actor auth.Actor, dealID, versionID, itemID string, params UpdateLineItemParams) (LineItem, error) {
	if err := params.validate(); err != nil {
		return LineItem{}, err
	}

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return LineItem{}, fmt.Errorf("deal: begin tx: %w", err)
	}
	defer tx.Rollback(ctx)

	d, version, err := s.editableVersion(ctx, tx, actor, dealID, versionID)
	if err != nil {
		return LineItem{}, err
	}

	item, err := s.repo.GetLineItemForUpdate(ctx, tx, version.ID, itemID)
	if err != nil {
		return LineItem{}, err
	}

	if params.Description != nil {
		item.Description = strings.TrimSpace(*params.Description)
	}
	if params.Quantity != nil {
		item.Quantity = *params.Quantity
	}
	if params.Unit != nil {
		item.Unit = *params.Unit
	}
	if params.UnitCost != nil {
		item.UnitCost = *params.UnitCost
	}
	if params.Category != nil {
		item.Category = *params.Category
	}
	if params.Phase != nil {
		item.Phase = params.Phase
	}
	if params.Discipline != nil {
		item.Discipline = params.Discipline
	}
	if params.CustomerVisible != nil {
		item.CustomerVisible = *params.CustomerVisible
	}
	if params.InternalOnly != nil {
		item.InternalOnly = *params.InternalOnly
	}
	if params.SortOrder != nil {
		item.SortOrder = *params.SortOrder
	}
	item.LineTotal = ComputeLineTotal(item.Quantity, item.UnitCost)

	updated, err := s.repo.UpdateLineItem(ctx, tx, item)
	if err != nil {
		return LineItem{}, err
	}

	if err := s.refreshTotals(ctx, tx, d.ID, version.ID); err != nil {
		return LineItem{}, err
	}

	if err := s.activities.Append(ctx, tx, activity.Entry{
		CompanyID: actor.CompanyID,
		DealID:    &d.ID,
		ActorID:   &actor.UserID,
		Type:      activity.TypeLineItemUpdated,
		Subject:   updated.Description,
		Metadata: map[string]any{
			"line_item_id": updated.ID,
			"version_id":   version.ID,
			"line_total":   updated.LineTotal.String(),
		},
	}); err != nil {
		return LineItem{}, err
	}

	if err := tx.Commit(ctx); err != nil {
		return LineItem{}, fmt.Errorf("deal: commit update line item: %w", err)
	}

	return updated, nil
}

// DeleteLineItem removes an entry and recomputes the aggregates.
func (s *Service) DeleteLineItem(ctx context.Context, actor auth.Actor, dealID, versionID, itemID string) error {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("deal: begin tx: %w", err)
	}
	defer tx.Rollback(ctx)

	d, version, err := s.editableVersion(ctx, tx, actor, dealID, versionID)
	if err != nil {
		return err
	}

	item, err := s.repo.GetLineItemForUpdate(ctx, tx, version.ID, itemID)
	if err != nil {
		return err
	}

	if err := s.repo.DeleteLineItem(ctx, tx, version.ID, item.ID); err != nil {
		return err
	}

	if err := s.refreshTotals(ctx, tx, d.ID, version.ID); err != nil {
		return err
	}

	if err := s.activities.Append(ctx, tx, activity.Entry{
		CompanyID: actor.CompanyID,
		DealID:    &d.ID,
		ActorID:   &actor.UserID,
		Type:      activity.TypeLineItemDeleted,
		Subject:   item.Description,
		Metadata: map[string]any{
			"line_item_id": item.ID,
			"version_id":   version.ID,
		},
	}); err != nil {
		return err
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("deal: commit delete line item: %w", err)
	}

	return nil
}

// editableVersion locks the deal and the targeted version and asserts the
// stage, lock, and role preconditions of a ledger mutation. A locked version
// is rejected before the role check so immutability holds for every role.
func (s *Service) editableVersion(ctx context.Context, tx pgx.Tx, actor auth.Actor, dealID, versionID string) (Deal, Version, error) {
	d, err := s.repo.GetForUpdate(ctx, tx, actor.CompanyID, dealID)
	if err != nil {
		return Deal{}, Version{}, err
	}

	decision := Decide(d.Stage, ActionEditLineItems, actor.Role)
	if !decision.Allowed && decision.Reason == DenialStage {
		return Deal{}, Version{}, ErrInvalidStage
	}

	version, err := s.repo.GetVersionForUpdate(ctx, tx, d.ID, versionID)
	if err != nil {
		return Deal{}, Version{}, err
	}
	if version.Locked {
		return Deal{}, Version{}, ErrVersionLocked
	}

	if !decision.Allowed {
		return Deal{}, Version{}, decision.Err()
	}

	return d, version, nil
}

// refreshTotals recomputes and persists the version and deal aggregates from
// the line items currently attached to the version.
func (s *Service) refreshTotals(ctx context.Context, tx pgx.Tx, dealID, versionID string) error {
	items, err := s.repo.ListLineItems(ctx, tx, versionID)
	if err != nil {
		return err
	}
	return s.repo.ApplyTotals(ctx, tx, dealID, versionID, RecomputeTotals(items, s.taxRate))
}

// InsertLineItem persists a new line item.
func (r *Repository) InsertLineItem(ctx context.Context, tx pgx.Tx, item LineItem) (LineItem, error) {
	const insertSQL = `
INSERT INTO deal_line_items (deal_id, version_id, description, quantity, unit, unit_cost, line_total, category, phase, discipline, customer_visible, internal_only, sort_order)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)
RETURNING ` + lineItemColumns

	rec, err := scanLineItem(tx.QueryRow(ctx, insertSQL,
		item.DealID,
		item.VersionID,
		item.Description,
		item.Quantity,
		item.Unit,
		item.UnitCost,
		item.LineTotal,
		item.Category,
		item.Phase,
		item.Discipline,
		item.CustomerVisible,
		item.InternalOnly,
		item.SortOrder,
	))
	if err != nil {
		return LineItem{}, fmt.Errorf("deal: insert line item: %w", err)
	}
	return rec, nil
}

// GetLineItemForUpdate loads a line item of a version with a row lock.
func (r *Repository) GetLineItemForUpdate(ctx context.Context, tx pgx.Tx, versionID, itemID string) (LineItem, error) {
	const query = `SELECT ` + lineItemColumns + ` FROM deal_line_items WHERE id = $1 AND version_id = $2 FOR UPDATE`

	rec, err := scanLineItem(tx.QueryRow(ctx, query, itemID, versionID))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return LineItem{}, ErrNotFound
		}
		return LineItem{}, fmt.Errorf("deal: get line item: %w", err)
	}
	return rec, nil
}

// UpdateLineItem persists the full row with its recomputed line total.
func (r *Repository) UpdateLineItem(ctx context.Context, tx pgx.Tx, item LineItem) (LineItem, error) {
	const updateSQL = `
UPDATE deal_line_items
SET description = $3, quantity = $4, unit = $5, unit_cost = $6, line_total = $7,
    category = $8, phase = $9, discipline = $10, customer_visible = $11,
    internal_only = $12, sort_order = $13, updated_at = now()
WHERE id = $1 AND version_id = $2
RETURNING ` + lineItemColumns

	rec, err := scanLineItem(tx.QueryRow(ctx, updateSQL,
		item.ID,
		item.VersionID,
		item.Description,
		item.Quantity,
		item.Unit,
		item.UnitCost,
		item.LineTotal,
		item.Category,
		item.Phase,
		item.Discipline,
		item.CustomerVisible,
		item.InternalOnly,
		item.SortOrder,
	))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return LineItem{}, ErrNotFound
		}
		return LineItem{}, fmt.Errorf("deal: update line item: %w", err)
	}
	return rec, nil
}

// DeleteLineItem removes a line item from an unlocked version.
func (r *Repository) DeleteLineItem(ctx context.Context, tx pgx.Tx, versionID, itemID string) error {
	tag, err := tx.Exec(ctx, `DELETE FROM deal_line_items WHERE id = $1 AND version_id = $2`, itemID, versionID)
	if err != nil {
		return fmt.Errorf("deal: delete line item: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// ListLineItems returns every line item attached to a version in sort order.
func (r *Repository) ListLineItems(ctx context.Context, q Querier, versionID string) ([]LineItem, error) {
	const query = `SELECT ` + lineItemColumns + ` FROM deal_line_items WHERE version_id = $1 ORDER BY sort_order, created_at`

	return r.listItems(ctx, q, query, versionID)
}

// ListCustomerVisibleItems returns the subset of a version's items that the
// customer-facing view and the rendered proposal may include.
func (r *Repository) ListCustomerVisibleItems(ctx context.Context, q Querier, versionID string) ([]LineItem, error) {
	const query = `
SELECT ` + lineItemColumns + `
FROM deal_line_items
WHERE version_id = $1 AND customer_visible AND NOT internal_only
ORDER BY sort_order, created_at
`
	return r.listItems(ctx, q, query, versionID)
}

func (r *Repository) listItems(ctx context.Context, q Querier, query, versionID string) ([]LineItem, error) {
	rows, err := q.Query(ctx, query, versionID)
	if err != nil {
		return nil, fmt.Errorf("deal: list line items: %w", err)
	}
	defer rows.Close()

	items := make([]LineItem, 0, 8)
	for rows.Next() {
		rec, err := scanLineItem(rows)
		if err != nil {
			return nil, fmt.Errorf("deal: scan line item: %w", err)
		}
		items = append(items, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("deal: iterate line items: %w", err)
	}
	return items, nil
}

func scanLineItem(row pgx.Row) (LineItem, error) {
	var item LineItem
	err := row.Scan(
		&item.ID,
		&item.DealID,
		&item.VersionID,
		&item.Description,
		&item.Quantity,
		&item.Unit,
		&item.UnitCost,
		&item.LineTotal,
		&item.Category,
		&item.Phase,
		&item.Discipline,
		&item.CustomerVisible,
		&item.InternalOnly,
		&item.SortOrder,
		&item.CreatedAt,
		&item.UpdatedAt,
	)
	if err != nil {
		return LineItem{}, err
	}
	return item, nil
}
