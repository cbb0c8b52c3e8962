package deal

import (
	"context"
	"errors"
	"fmt"
	"os"
	"testing"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"

	"dealflow/activity"
	"dealflow/auth"
	"dealflow/blob"
	"dealflow/document"
)

// TestDealWorkflow_Integration connects to a real PostgreSQL via DATABASE_URL
// and walks a deal from intake through approval, verifying the persisted
// state after every stage.
func TestDealWorkflow_Integration(t *testing.T) {
	dsn := os.Getenv("DATABASE_URL")
	if dsn == "" {
		t.Skip("DATABASE_URL is empty; set it to a live PostgreSQL to run integration test")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 60*time.Second)
	defer cancel()

	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		t.Fatalf("connect pool: %v", err)
	}
	defer pool.Close()

	for _, table := range []string{"companies", "users", "deals", "deal_versions", "deal_line_items", "deal_documents", "dispatch_handoffs", "activities"} {
		if !tableExists(ctx, t, pool, table) {
			t.Skipf("database schema missing table %s; apply migrations first", table)
		}
	}

	// Seed a tenant with one user per role the scenario needs.
	var companyID string
	if err := pool.QueryRow(ctx, `INSERT INTO companies (name) VALUES ($1) RETURNING id`,
		fmt.Sprintf("Integration Co %d", time.Now().UnixNano())).Scan(&companyID); err != nil {
		t.Fatalf("seed company: %v", err)
	}

	seedUser := func(role auth.Role) auth.Actor {
		var id string
		if err := pool.QueryRow(ctx, `
INSERT INTO users (company_id, email, full_name, password_hash, role)
VALUES ($1, $2, $3, 'x', $4) RETURNING id
`, companyID, fmt.Sprintf("%s+%d@example.com", role, time.Now().UnixNano()), string(role), string(role)).Scan(&id); err != nil {
			t.Fatalf("seed %s user: %v", role, err)
		}
		return auth.Actor{UserID: id, Role: role, CompanyID: companyID}
	}

	sales := seedUser(auth.RoleSales)
	estimator := seedUser(auth.RoleEstimator)
	dispatcher := seedUser(auth.RoleDispatcher)
	admin := seedUser(auth.RoleAdmin)

	t.Cleanup(func() {
		ctx2, cancel2 := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel2()
		pool.Exec(ctx2, `DELETE FROM activities WHERE company_id = $1`, companyID)
		pool.Exec(ctx2, `DELETE FROM dispatch_handoffs WHERE deal_id IN (SELECT id FROM deals WHERE company_id = $1)`, companyID)
		pool.Exec(ctx2, `DELETE FROM deal_documents WHERE deal_id IN (SELECT id FROM deals WHERE company_id = $1)`, companyID)
		pool.Exec(ctx2, `DELETE FROM deals WHERE company_id = $1`, companyID)
		pool.Exec(ctx2, `DELETE FROM users WHERE company_id = $1`, companyID)
		pool.Exec(ctx2, `DELETE FROM companies WHERE id = $1`, companyID)
	})

	repo := NewRepository()
	emitter := activity.NewEmitter()
	svc := NewService(pool, repo, emitter, decimal.Zero)
	store := blob.NewMemoryStore()
	approver := NewApprover(pool, repo, emitter, document.NewHTMLRenderer(), store)

	// Intake.
	created, err := svc.CreateDeal(ctx, sales, CreateDealParams{ContactName: "Acme Paving"})
	if err != nil {
		t.Fatalf("create deal: %v", err)
	}
	if created.Stage != StageOpen {
		t.Fatalf("new deal stage = %s, want OPEN", created.Stage)
	}

	// Approving an OPEN deal is a stage error, not a role error.
	if _, err := approver.Approve(ctx, admin, created.ID, ApproveParams{}); !errors.Is(err, ErrInvalidStage) {
		t.Fatalf("approve OPEN deal: err = %v, want ErrInvalidStage", err)
	}

	detail, err := svc.SendToEstimating(ctx, sales, created.ID, SendToEstimatingParams{EstimatorID: &estimator.UserID})
	if err != nil {
		t.Fatalf("send to estimating: %v", err)
	}
	if detail.Deal.Stage != StageInEstimating {
		t.Fatalf("stage = %s, want IN_ESTIMATING", detail.Deal.Stage)
	}
	if len(detail.Versions) != 1 || detail.Versions[0].VersionNumber != 1 {
		t.Fatalf("expected version 1, got %+v", detail.Versions)
	}
	versionID := detail.Versions[0].ID

	// The execution role cannot price.
	_, err = svc.AddLineItem(ctx, dispatcher, created.ID, versionID, LineItemParams{
		Description: "unauthorized", Quantity: dec("1"), UnitCost: dec("1"), Category: CategoryMisc,
	})
	if !errors.Is(err, ErrForbidden) {
		t.Fatalf("dispatcher add line item: err = %v, want ErrForbidden", err)
	}

	// Price the version: 10 @ 50 + 2 @ 200 + 1 @ 75 = 975.
	ledger := []LineItemParams{
		{Description: "Crew labor", Quantity: dec("10"), Unit: "hr", UnitCost: dec("50"), Category: CategoryLabor},
		{Description: "Excavator rental", Quantity: dec("2"), Unit: "day", UnitCost: dec("200"), Category: CategoryEquipment},
		{Description: "Gravel", Quantity: dec("1"), Unit: "load", UnitCost: dec("75"), Category: CategoryMaterials},
	}
	var lastItem LineItem
	for _, params := range ledger {
		lastItem, err = svc.AddLineItem(ctx, estimator, created.ID, versionID, params)
		if err != nil {
			t.Fatalf("add line item %q: %v", params.Description, err)
		}
	}

	version, err := repo.GetVersion(ctx, pool, created.ID, versionID)
	if err != nil {
		t.Fatalf("reload version: %v", err)
	}
	if !version.Subtotal.Equal(dec("975")) {
		t.Fatalf("subtotal = %s, want 975", version.Subtotal)
	}

	// A client-supplied total is ignored; the server recomputes.
	updated, err := svc.UpdateLineItem(ctx, estimator, created.ID, versionID, lastItem.ID, UpdateLineItemParams{Quantity: decPtr("2")})
	if err != nil {
		t.Fatalf("update line item: %v", err)
	}
	if !updated.LineTotal.Equal(dec("150")) {
		t.Fatalf("line total = %s, want 150", updated.LineTotal)
	}
	if _, err := svc.UpdateLineItem(ctx, estimator, created.ID, versionID, lastItem.ID, UpdateLineItemParams{Quantity: decPtr("1")}); err != nil {
		t.Fatalf("restore line item: %v", err)
	}

	// No version is locked yet, so the customer estimate is unavailable
	// rather than missing.
	if _, err := svc.Estimate(ctx, sales, created.ID); !errors.Is(err, ErrDeliveryDisabled) {
		t.Fatalf("estimate before approval: err = %v, want ErrDeliveryDisabled", err)
	}

	// Submit and approve.
	submitted, err := svc.Submit(ctx, estimator, created.ID, SubmitParams{})
	if err != nil {
		t.Fatalf("submit: %v", err)
	}
	if submitted.Stage != StageSubmitted {
		t.Fatalf("stage = %s, want SUBMITTED", submitted.Stage)
	}

	result, err := approver.Approve(ctx, admin, created.ID, ApproveParams{})
	if err != nil {
		t.Fatalf("approve: %v", err)
	}
	if result.Deal.Stage != StageDispatched {
		t.Fatalf("stage = %s, want DISPATCHED", result.Deal.Stage)
	}
	if !result.Version.Locked || !result.Version.DeliveryEnabled {
		t.Fatalf("version after approval: %+v", result.Version)
	}
	if store.Len() != 1 {
		t.Fatalf("stored documents = %d, want 1", store.Len())
	}

	// Exactly one document and one handoff.
	var docCount, handoffCount int
	if err := pool.QueryRow(ctx, `SELECT COUNT(*) FROM deal_documents WHERE deal_id = $1`, created.ID).Scan(&docCount); err != nil {
		t.Fatalf("count documents: %v", err)
	}
	if err := pool.QueryRow(ctx, `SELECT COUNT(*) FROM dispatch_handoffs WHERE deal_id = $1`, created.ID).Scan(&handoffCount); err != nil {
		t.Fatalf("count handoffs: %v", err)
	}
	if docCount != 1 || handoffCount != 1 {
		t.Fatalf("documents = %d, handoffs = %d, want 1 and 1", docCount, handoffCount)
	}

	// Milestone activities.
	var milestoneCount int
	if err := pool.QueryRow(ctx, `
SELECT COUNT(*) FROM activities
WHERE deal_id = $1 AND type IN ('DEAL_APPROVED', 'DOCUMENT_GENERATED', 'DEAL_DISPATCHED', 'DELIVERY_ENABLED')
`, created.ID).Scan(&milestoneCount); err != nil {
		t.Fatalf("count milestones: %v", err)
	}
	if milestoneCount != 4 {
		t.Fatalf("milestone activities = %d, want 4", milestoneCount)
	}

	// The locked version rejects further edits for every role.
	_, err = svc.AddLineItem(ctx, admin, created.ID, versionID, LineItemParams{
		Description: "late addition", Quantity: dec("1"), UnitCost: dec("5"), Category: CategoryMisc,
	})
	if !errors.Is(err, ErrInvalidStage) && !errors.Is(err, ErrVersionLocked) {
		t.Fatalf("edit locked version: err = %v, want stage or lock rejection", err)
	}

	// Re-approval is a conflict, not a duplicate document.
	if _, err := approver.Approve(ctx, admin, created.ID, ApproveParams{}); !errors.Is(err, ErrApprovalConflict) {
		t.Fatalf("re-approve: err = %v, want ErrApprovalConflict", err)
	}
	if err := pool.QueryRow(ctx, `SELECT COUNT(*) FROM deal_documents WHERE deal_id = $1`, created.ID).Scan(&docCount); err != nil {
		t.Fatalf("recount documents: %v", err)
	}
	if docCount != 1 {
		t.Fatalf("documents after re-approve = %d, want 1", docCount)
	}

	// The intake role can now read the customer-visible estimate.
	est, err := svc.Estimate(ctx, sales, created.ID)
	if err != nil {
		t.Fatalf("estimate: %v", err)
	}
	if len(est.Items) != 3 {
		t.Fatalf("estimate items = %d, want 3", len(est.Items))
	}
	if !est.Version.Locked {
		t.Fatal("estimate version should be locked")
	}

	// Cross-tenant reads come back as absent.
	var otherCompany string
	if err := pool.QueryRow(ctx, `INSERT INTO companies (name) VALUES ('Other Co') RETURNING id`).Scan(&otherCompany); err != nil {
		t.Fatalf("seed other company: %v", err)
	}
	t.Cleanup(func() {
		pool.Exec(context.Background(), `DELETE FROM companies WHERE id = $1`, otherCompany)
	})
	outsider := auth.Actor{UserID: admin.UserID, Role: auth.RoleAdmin, CompanyID: otherCompany}
	if _, err := svc.Get(ctx, outsider, created.ID); !errors.Is(err, ErrNotFound) {
		t.Fatalf("cross-tenant get: err = %v, want ErrNotFound", err)
	}
}

func decPtr(s string) *decimal.Decimal {
	d := dec(s)
	return &d
}

func tableExists(ctx context.Context, t *testing.T, pool *pgxpool.Pool, name string) bool {
	t.Helper()
	var exists bool
	err := pool.QueryRow(ctx, `SELECT EXISTS (SELECT 1 FROM information_schema.tables WHERE table_schema = 'public' AND table_name = $1)`, name).Scan(&exists)
	if err != nil {
		t.Fatalf("check table %s: %v", name, err)
	}
	return exists
}
