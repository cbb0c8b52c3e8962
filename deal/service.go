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

// TxBeginner starts transactions. Satisfied by *pgxpool.Pool.
type TxBeginner interface {
	Begin(ctx context.Context) (pgx.Tx, error)
}

// Pool is the connection surface the workflow needs: transactional writes
// plus plain reads. Satisfied by *pgxpool.Pool.
type Pool interface {
	TxBeginner
	Querier
}

// ActivityWriter appends audit entries inside the caller's transaction so an
// aborted workflow step leaves no trail.
type ActivityWriter interface {
	Append(ctx context.Context, tx pgx.Tx, entry activity.Entry) error
}

// Service implements the deal lifecycle: intake, estimating, submission, and
// reads of the customer-visible estimate.
type Service struct {
	pool       Pool
	repo       *Repository
	activities ActivityWriter
	taxRate    decimal.Decimal
}

func NewService(pool Pool, repo *Repository, activities ActivityWriter, taxRate decimal.Decimal) *Service {
	if repo == nil {
		repo = NewRepository()
	}
	return &Service{pool: pool, repo: repo, activities: activities, taxRate: taxRate}
}

// CreateDealParams carries the intake fields of a new deal.
type CreateDealParams struct {
	ContactID   *string `json:"contactId"`
	ContactName string  `json:"contactName"`
}

// CreateDeal opens a deal at OPEN for the actor's tenant and records the
// creation on the audit trail.
func (s *Service) CreateDeal(ctx context.Context, actor auth.Actor, params CreateDealParams) (Deal, error) {
	if err := StaffOnly(actor.Role); err != nil {
		return Deal{}, err
	}
	if strings.TrimSpace(params.ContactName) == "" {
		return Deal{}, fmt.Errorf("%w: contact name required", ErrValidation)
	}

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return Deal{}, fmt.Errorf("deal: begin tx: %w", err)
	}
	defer tx.Rollback(ctx)

	created, err := s.repo.InsertDeal(ctx, tx, Deal{
		CompanyID:   actor.CompanyID,
		ContactID:   params.ContactID,
		ContactName: strings.TrimSpace(params.ContactName),
		CreatedByID: actor.UserID,
	})
	if err != nil {
		return Deal{}, err
	}

	if err := s.activities.Append(ctx, tx, activity.Entry{
		CompanyID: actor.CompanyID,
		DealID:    &created.ID,
		ActorID:   &actor.UserID,
		Type:      activity.TypeDealCreated,
		Subject:   created.ContactName,
	}); err != nil {
		return Deal{}, err
	}

	if err := tx.Commit(ctx); err != nil {
		return Deal{}, fmt.Errorf("deal: commit create: %w", err)
	}

	return created, nil
}

// Detail is a deal together with its version history.
type Detail struct {
	Deal     Deal
	Versions []Version
}

// Get returns a deal and its versions, scoped to the actor's tenant.
func (s *Service) Get(ctx context.Context, actor auth.Actor, dealID string) (Detail, error) {
	if err := StaffOnly(actor.Role); err != nil {
		return Detail{}, err
	}
	d, err := s.repo.Get(ctx, s.pool, actor.CompanyID, dealID)
	if err != nil {
		return Detail{}, err
	}
	versions, err := s.repo.ListVersions(ctx, s.pool, d.ID)
	if err != nil {
		return Detail{}, err
	}
	return Detail{Deal: d, Versions: versions}, nil
}

// ListLineItemsForVersion returns the full ledger of a version for staff
// views, scoped to the actor's tenant.
func (s *Service) ListLineItemsForVersion(ctx context.Context, actor auth.Actor, dealID, versionID string) ([]LineItem, error) {
	if err := StaffOnly(actor.Role); err != nil {
		return nil, err
	}
	d, err := s.repo.Get(ctx, s.pool, actor.CompanyID, dealID)
	if err != nil {
		return nil, err
	}
	if _, err := s.repo.GetVersion(ctx, s.pool, d.ID, versionID); err != nil {
		return nil, err
	}
	return s.repo.ListLineItems(ctx, s.pool, versionID)
}

// SendToEstimatingParams optionally routes the deal to a named estimator.
type SendToEstimatingParams struct {
	EstimatorID *string `json:"estimatorId"`
	Notes       string  `json:"notes"`
}

// SubmitParams carries the optional submission note.
type SubmitParams struct {
	Notes string `json:"notes"`
}

// SendToEstimating advances OPEN to IN_ESTIMATING and creates the deal's
// first pricing version.
func (s *Service) SendToEstimating(ctx context.Context, actor auth.Actor, dealID string, params SendToEstimatingParams) (Detail, error) {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return Detail{}, fmt.Errorf("deal: begin tx: %w", err)
	}
	defer tx.Rollback(ctx)

	d, err := s.repo.GetForUpdate(ctx, tx, actor.CompanyID, dealID)
	if err != nil {
		return Detail{}, err
	}

	decision := Decide(d.Stage, ActionAdvanceToEstimating, actor.Role)
	if !decision.Allowed {
		return Detail{}, decision.Err()
	}

	if err := s.repo.SetStage(ctx, tx, d.ID, decision.Next); err != nil {
		return Detail{}, err
	}
	d.Stage = decision.Next

	if params.EstimatorID != nil {
		if err := s.repo.AssignEstimator(ctx, tx, d.ID, *params.EstimatorID); err != nil {
			return Detail{}, err
		}
		d.AssignedToID = params.EstimatorID
	}

	version, err := s.repo.InsertVersion(ctx, tx, d.ID)
	if err != nil {
		return Detail{}, err
	}

	if err := s.activities.Append(ctx, tx, activity.Entry{
		CompanyID: actor.CompanyID,
		DealID:    &d.ID,
		ActorID:   &actor.UserID,
		Type:      activity.TypeDealSentToEstimating,
		Subject:   d.ContactName,
		Metadata: withNotes(map[string]any{
			"version_id":     version.ID,
			"version_number": version.VersionNumber,
		}, params.Notes),
	}); err != nil {
		return Detail{}, err
	}

	if err := tx.Commit(ctx); err != nil {
		return Detail{}, fmt.Errorf("deal: commit send to estimating: %w", err)
	}

	return Detail{Deal: d, Versions: []Version{version}}, nil
}

// Submit advances IN_ESTIMATING to SUBMITTED. The current version stays
// unlocked; locking happens only inside a successful approval.
func (s *Service) Submit(ctx context.Context, actor auth.Actor, dealID string, params SubmitParams) (Deal, error) {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return Deal{}, fmt.Errorf("deal: begin tx: %w", err)
	}
	defer tx.Rollback(ctx)

	d, err := s.repo.GetForUpdate(ctx, tx, actor.CompanyID, dealID)
	if err != nil {
		return Deal{}, err
	}

	decision := Decide(d.Stage, ActionSubmit, actor.Role)
	if !decision.Allowed {
		return Deal{}, decision.Err()
	}

	version, err := s.repo.CurrentVersionForUpdate(ctx, tx, d.ID)
	if err != nil {
		return Deal{}, err
	}

	if err := s.repo.SetStage(ctx, tx, d.ID, decision.Next); err != nil {
		return Deal{}, err
	}
	d.Stage = decision.Next

	if err := s.activities.Append(ctx, tx, activity.Entry{
		CompanyID: actor.CompanyID,
		DealID:    &d.ID,
		ActorID:   &actor.UserID,
		Type:      activity.TypeDealSubmitted,
		Subject:   d.ContactName,
		Metadata: withNotes(map[string]any{
			"version_id":     version.ID,
			"version_number": version.VersionNumber,
			"total":          version.Total.String(),
		}, params.Notes),
	}); err != nil {
		return Deal{}, err
	}

	if err := tx.Commit(ctx); err != nil {
		return Deal{}, fmt.Errorf("deal: commit submit: %w", err)
	}

	return d, nil
}

// Estimate is the customer-visible projection of an approved version:
// the filtered line items plus the version aggregates.
type Estimate struct {
	Deal    Deal
	Version Version
	Items   []LineItem
}

// Estimate returns the delivery-enabled locked version of a deal with
// internal-only and hidden items filtered out. Until the approval workflow
// enables delivery the estimate reads as unavailable.
func (s *Service) Estimate(ctx context.Context, actor auth.Actor, dealID string) (Estimate, error) {
	d, err := s.repo.Get(ctx, s.pool, actor.CompanyID, dealID)
	if err != nil {
		return Estimate{}, err
	}

	version, err := s.repo.LockedVersion(ctx, s.pool, d.ID)
	if err != nil {
		// No locked version yet means the estimate is simply not available,
		// not that the deal is missing.
		if errors.Is(err, ErrNotFound) {
			return Estimate{}, ErrDeliveryDisabled
		}
		return Estimate{}, err
	}
	if !version.DeliveryEnabled {
		return Estimate{}, ErrDeliveryDisabled
	}

	items, err := s.repo.ListCustomerVisibleItems(ctx, s.pool, version.ID)
	if err != nil {
		return Estimate{}, err
	}

	return Estimate{Deal: d, Version: version, Items: items}, nil
}

// withNotes attaches a caller note to activity metadata when present.
func withNotes(meta map[string]any, notes string) map[string]any {
	if notes != "" {
		meta["notes"] = notes
	}
	return meta
}
