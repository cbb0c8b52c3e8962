package deal

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"dealflow/activity"
	"dealflow/auth"
	"dealflow/blob"
	"dealflow/document"
)

// ApprovalRepository defines the data access the approval workflow needs.
type ApprovalRepository interface {
	Get(ctx context.Context, q Querier, companyID, dealID string) (Deal, error)
	CurrentVersion(ctx context.Context, q Querier, dealID string) (Version, error)
	ListCustomerVisibleItems(ctx context.Context, q Querier, versionID string) ([]LineItem, error)
	GetForUpdate(ctx context.Context, tx pgx.Tx, companyID, dealID string) (Deal, error)
	GetVersionForUpdate(ctx context.Context, tx pgx.Tx, dealID, versionID string) (Version, error)
	LockVersion(ctx context.Context, tx pgx.Tx, versionID string) (Version, error)
	InsertDocument(ctx context.Context, tx pgx.Tx, doc Document) (Document, error)
	InsertHandoff(ctx context.Context, tx pgx.Tx, h Handoff) (Handoff, error)
	MarkDispatched(ctx context.Context, tx pgx.Tx, dealID, approverID string) error
	EnableDelivery(ctx context.Context, tx pgx.Tx, versionID string) error
}

// Approver runs the approval workflow: lock the submitted version, render
// and store the proposal document, hand the deal off to dispatch, move it to
// DISPATCHED, and enable the customer-facing estimate, atomically.
//
// The document is rendered and uploaded from a snapshot before the write
// transaction opens, so no row lock is held across a network call. The
// transaction then re-checks every precondition under FOR UPDATE and aborts
// with ErrApprovalConflict if a concurrent approval won the race. A failure
// at any point before commit leaves the deal at SUBMITTED with its version
// unlocked; at worst an orphaned object remains in blob storage, referenced
// by nothing.
type Approver struct {
	pool       Pool
	repo       ApprovalRepository
	activities ActivityWriter
	renderer   document.Renderer
	store      blob.Store
	now        func() time.Time
}

func NewApprover(pool Pool, repo ApprovalRepository, activities ActivityWriter, renderer document.Renderer, store blob.Store) *Approver {
	if repo == nil {
		repo = NewRepository()
	}
	return &Approver{
		pool:       pool,
		repo:       repo,
		activities: activities,
		renderer:   renderer,
		store:      store,
		now:        time.Now,
	}
}

// ApprovalResult reports everything a successful approval produced.
type ApprovalResult struct {
	Deal              Deal
	Version           Version
	Document          Document
	Handoff           Handoff
	ActivitiesCreated int
}

// ApproveParams carries the optional approval note.
type ApproveParams struct {
	Notes string `json:"notes"`
}

// Approve runs the workflow for the actor. Stage and role are checked twice:
// once on the snapshot so an obviously invalid request never renders a
// document, and again under the row lock before any write.
func (a *Approver) Approve(ctx context.Context, actor auth.Actor, dealID string, params ApproveParams) (ApprovalResult, error) {
	d, version, items, err := a.snapshot(ctx, actor, dealID)
	if err != nil {
		return ApprovalResult{}, err
	}

	generatedAt := a.now().UTC()
	rendered, err := a.renderer.Render(ctx, buildProposal(d, version, items, generatedAt))
	if err != nil {
		return ApprovalResult{}, err
	}

	storageKey := fmt.Sprintf("proposals/%s/v%d-%s.html", d.ID, version.VersionNumber, uuid.NewString())
	if err := a.store.Put(ctx, storageKey, rendered, "text/html"); err != nil {
		return ApprovalResult{}, err
	}

	return a.commit(ctx, actor, d.ID, version.ID, storageKey, params.Notes)
}

// snapshot reads the deal, its unlocked version, and the customer-visible
// items without holding any lock.
func (a *Approver) snapshot(ctx context.Context, actor auth.Actor, dealID string) (Deal, Version, []LineItem, error) {
	d, err := a.repo.Get(ctx, a.pool, actor.CompanyID, dealID)
	if err != nil {
		return Deal{}, Version{}, nil, err
	}

	decision := Decide(d.Stage, ActionApprove, actor.Role)
	if !decision.Allowed {
		// A deal already past approval makes a second approve a duplicate,
		// not a premature request.
		if decision.Reason == DenialStage && (d.Stage == StageDispatched || d.Stage.Terminal()) {
			return Deal{}, Version{}, nil, ErrApprovalConflict
		}
		return Deal{}, Version{}, nil, decision.Err()
	}

	version, err := a.repo.CurrentVersion(ctx, a.pool, d.ID)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return Deal{}, Version{}, nil, ErrApprovalConflict
		}
		return Deal{}, Version{}, nil, err
	}

	items, err := a.repo.ListCustomerVisibleItems(ctx, a.pool, version.ID)
	if err != nil {
		return Deal{}, Version{}, nil, err
	}

	return d, version, items, nil
}

// commit re-checks the preconditions under FOR UPDATE and performs every
// write of the workflow in one transaction.
func (a *Approver) commit(ctx context.Context, actor auth.Actor, dealID, versionID, storageKey, notes string) (ApprovalResult, error) {
	tx, err := a.pool.Begin(ctx)
	if err != nil {
		return ApprovalResult{}, fmt.Errorf("deal: begin approval tx: %w", err)
	}
	defer tx.Rollback(ctx)

	d, err := a.repo.GetForUpdate(ctx, tx, actor.CompanyID, dealID)
	if err != nil {
		return ApprovalResult{}, err
	}
	if d.Stage != StageSubmitted {
		return ApprovalResult{}, ErrApprovalConflict
	}

	version, err := a.repo.GetVersionForUpdate(ctx, tx, d.ID, versionID)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return ApprovalResult{}, ErrApprovalConflict
		}
		return ApprovalResult{}, err
	}
	if version.Locked {
		return ApprovalResult{}, ErrApprovalConflict
	}

	locked, err := a.repo.LockVersion(ctx, tx, version.ID)
	if err != nil {
		if errors.Is(err, ErrVersionLocked) {
			return ApprovalResult{}, ErrApprovalConflict
		}
		return ApprovalResult{}, err
	}

	doc, err := a.repo.InsertDocument(ctx, tx, Document{
		DealID:        d.ID,
		VersionID:     locked.ID,
		StorageKey:    storageKey,
		GeneratedByID: actor.UserID,
	})
	if err != nil {
		return ApprovalResult{}, err
	}

	handoff, err := a.repo.InsertHandoff(ctx, tx, Handoff{
		DealID:      d.ID,
		VersionID:   locked.ID,
		DocumentID:  doc.ID,
		CreatedByID: actor.UserID,
	})
	if err != nil {
		return ApprovalResult{}, err
	}

	if err := a.repo.MarkDispatched(ctx, tx, d.ID, actor.UserID); err != nil {
		return ApprovalResult{}, err
	}
	d.Stage = StageDispatched
	d.ApprovedByID = &actor.UserID

	if err := a.repo.EnableDelivery(ctx, tx, locked.ID); err != nil {
		return ApprovalResult{}, err
	}
	locked.DeliveryEnabled = true

	milestones := []struct {
		typ      activity.Type
		metadata map[string]any
	}{
		{activity.TypeDealApproved, withNotes(map[string]any{"version_id": locked.ID, "version_number": locked.VersionNumber, "total": locked.Total.String()}, notes)},
		{activity.TypeDocumentGenerated, map[string]any{"document_id": doc.ID, "storage_key": doc.StorageKey}},
		{activity.TypeDealDispatched, map[string]any{"handoff_id": handoff.ID}},
		{activity.TypeDeliveryEnabled, map[string]any{"version_id": locked.ID}},
	}
	for _, m := range milestones {
		if err := a.activities.Append(ctx, tx, activity.Entry{
			CompanyID: actor.CompanyID,
			DealID:    &d.ID,
			ActorID:   &actor.UserID,
			Type:      m.typ,
			Subject:   d.ContactName,
			Metadata:  m.metadata,
		}); err != nil {
			return ApprovalResult{}, err
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return ApprovalResult{}, fmt.Errorf("deal: commit approval: %w", err)
	}

	return ApprovalResult{Deal: d, Version: locked, Document: doc, Handoff: handoff, ActivitiesCreated: len(milestones)}, nil
}

func buildProposal(d Deal, version Version, items []LineItem, generatedAt time.Time) document.Proposal {
	p := document.Proposal{
		DealID:        d.ID,
		ContactName:   d.ContactName,
		VersionNumber: version.VersionNumber,
		GeneratedAt:   generatedAt,
		Subtotal:      version.Subtotal.StringFixed(2),
		Taxes:         version.Taxes.StringFixed(2),
		Total:         version.Total.StringFixed(2),
	}
	for _, item := range items {
		p.Items = append(p.Items, document.ProposalItem{
			Description: item.Description,
			Quantity:    item.Quantity.String(),
			Unit:        item.Unit,
			UnitCost:    item.UnitCost.StringFixed(2),
			LineTotal:   item.LineTotal.StringFixed(2),
		})
	}
	return p
}
