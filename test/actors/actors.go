package actors

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"

	"dealflow/auth"
	"dealflow/deal"
)

// Env bundles the services and identities the stress actors operate with.
type Env struct {
	Pool     *pgxpool.Pool
	Deals    *deal.Service
	Approver *deal.Approver

	Sales      auth.Actor
	Estimator  auth.Actor
	Admin      auth.Actor
	Dispatcher auth.Actor
}

// expected reports whether an error is a domain denial the workflow hands
// out under contention. Anything else aborts the run.
func expected(err error) bool {
	return errors.Is(err, deal.ErrForbidden) ||
		errors.Is(err, deal.ErrInvalidStage) ||
		errors.Is(err, deal.ErrVersionLocked) ||
		errors.Is(err, deal.ErrApprovalConflict) ||
		errors.Is(err, deal.ErrNotFound) ||
		errors.Is(err, deal.ErrDeliveryDisabled)
}

// Intake creates deals and pushes them into estimating.
func Intake(ctx context.Context, env Env, stop <-chan struct{}) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-stop:
			return nil
		default:
		}

		created, err := env.Deals.CreateDeal(ctx, env.Sales, deal.CreateDealParams{
			ContactName: fmt.Sprintf("Stress Contact %d", rand.Int63()),
		})
		if err != nil {
			return fmt.Errorf("intake create: %w", err)
		}
		if _, err := env.Deals.SendToEstimating(ctx, env.Sales, created.ID, deal.SendToEstimatingParams{}); err != nil && !expected(err) {
			return fmt.Errorf("intake advance: %w", err)
		}
		time.Sleep(time.Duration(20+rand.Intn(40)) * time.Millisecond)
	}
}

// Pricer adds line items to random unlocked versions and occasionally
// submits the deal.
func Pricer(ctx context.Context, env Env, stop <-chan struct{}) error {
	categories := []deal.Category{deal.CategoryLabor, deal.CategoryEquipment, deal.CategoryMaterials, deal.CategoryMisc}
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-stop:
			return nil
		default:
		}

		var dealID, versionID string
		err := env.Pool.QueryRow(ctx, `
SELECT d.id, v.id FROM deals d
JOIN deal_versions v ON v.deal_id = d.id AND NOT v.locked
WHERE d.company_id = $1 AND d.stage = 'IN_ESTIMATING'
ORDER BY random() LIMIT 1
`, env.Estimator.CompanyID).Scan(&dealID, &versionID)
		if err != nil {
			time.Sleep(30 * time.Millisecond)
			continue
		}

		_, err = env.Deals.AddLineItem(ctx, env.Estimator, dealID, versionID, deal.LineItemParams{
			Description: fmt.Sprintf("Entry %d", rand.Int63()),
			Quantity:    decimal.NewFromInt(int64(1 + rand.Intn(20))),
			Unit:        "ea",
			UnitCost:    decimal.NewFromInt(int64(rand.Intn(500))),
			Category:    categories[rand.Intn(len(categories))],
		})
		if err != nil && !expected(err) {
			return fmt.Errorf("pricer add: %w", err)
		}

		if rand.Intn(4) == 0 {
			if _, err := env.Deals.Submit(ctx, env.Estimator, dealID, deal.SubmitParams{}); err != nil && !expected(err) {
				return fmt.Errorf("pricer submit: %w", err)
			}
		}
		time.Sleep(time.Duration(15+rand.Intn(35)) * time.Millisecond)
	}
}

// Approver races other approvers over SUBMITTED deals. Conflicts are the
// point; only unexpected errors abort.
func Approver(ctx context.Context, env Env, stop <-chan struct{}) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-stop:
			return nil
		default:
		}

		var dealID string
		err := env.Pool.QueryRow(ctx, `
SELECT id FROM deals WHERE company_id = $1 AND stage = 'SUBMITTED' ORDER BY random() LIMIT 1
`, env.Admin.CompanyID).Scan(&dealID)
		if err != nil {
			time.Sleep(40 * time.Millisecond)
			continue
		}

		if _, err := env.Approver.Approve(ctx, env.Admin, dealID, deal.ApproveParams{}); err != nil && !expected(err) {
			return fmt.Errorf("approve %s: %w", dealID, err)
		}
		time.Sleep(time.Duration(20+rand.Intn(40)) * time.Millisecond)
	}
}

// LockedProber attempts mutations against locked versions and fails the run
// if one is ever accepted.
func LockedProber(ctx context.Context, env Env, stop <-chan struct{}) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-stop:
			return nil
		default:
		}

		var dealID, versionID string
		err := env.Pool.QueryRow(ctx, `
SELECT d.id, v.id FROM deals d
JOIN deal_versions v ON v.deal_id = d.id AND v.locked
WHERE d.company_id = $1
ORDER BY random() LIMIT 1
`, env.Admin.CompanyID).Scan(&dealID, &versionID)
		if err != nil {
			time.Sleep(50 * time.Millisecond)
			continue
		}

		_, err = env.Deals.AddLineItem(ctx, env.Admin, dealID, versionID, deal.LineItemParams{
			Description: "late mutation",
			Quantity:    decimal.NewFromInt(1),
			UnitCost:    decimal.NewFromInt(1),
			Category:    deal.CategoryMisc,
		})
		if err == nil {
			return fmt.Errorf("locked version %s accepted a mutation", versionID)
		}
		if !expected(err) {
			return fmt.Errorf("locked probe: %w", err)
		}
		time.Sleep(time.Duration(40+rand.Intn(60)) * time.Millisecond)
	}
}

// EstimateReader polls the customer-facing view of random deals.
func EstimateReader(ctx context.Context, env Env, stop <-chan struct{}) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-stop:
			return nil
		default:
		}

		var dealID string
		err := env.Pool.QueryRow(ctx, `
SELECT id FROM deals WHERE company_id = $1 ORDER BY random() LIMIT 1
`, env.Sales.CompanyID).Scan(&dealID)
		if err != nil {
			time.Sleep(60 * time.Millisecond)
			continue
		}

		if _, err := env.Deals.Estimate(ctx, env.Sales, dealID); err != nil && !expected(err) {
			return fmt.Errorf("estimate read: %w", err)
		}
		time.Sleep(time.Duration(30+rand.Intn(50)) * time.Millisecond)
	}
}
