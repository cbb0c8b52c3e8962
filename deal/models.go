package deal

import (
	"fmt"
	"time"

	"github.com/shopspring/decimal"
)

// Stage is the durable lifecycle position of a deal. APPROVED is a transient
// label the approval transaction passes through on its way to DISPATCHED;
// no deal is ever persisted at rest in that stage.
type Stage string

const (
	StageOpen         Stage = "OPEN"
	StageInEstimating Stage = "IN_ESTIMATING"
	StageSubmitted    Stage = "SUBMITTED"
	StageApproved     Stage = "APPROVED"
	StageDispatched   Stage = "DISPATCHED"
	StageWon          Stage = "WON"
	StageLost         Stage = "LOST"
)

// Terminal reports whether no further mutation is permitted at this stage.
func (s Stage) Terminal() bool {
	return s == StageWon || s == StageLost
}

// ParseStage maps a stored stage value back to the enum. Unknown values are
// rejected rather than passed through.
func ParseStage(v string) (Stage, error) {
	switch s := Stage(v); s {
	case StageOpen, StageInEstimating, StageSubmitted, StageApproved, StageDispatched, StageWon, StageLost:
		return s, nil
	}
	return "", fmt.Errorf("%w: unknown stage %q", ErrValidation, v)
}

// Category enumerates the pricing buckets a line item may belong to.
type Category string

const (
	CategoryLabor         Category = "labor"
	CategoryEquipment     Category = "equipment"
	CategoryMaterials     Category = "materials"
	CategorySubcontractor Category = "subcontractor"
	CategoryDiscipline    Category = "discipline"
	CategoryMisc          Category = "misc"
)

// ValidCategory reports whether c is one of the enumerated pricing buckets.
// An unrecognized category is a validation error, never a default.
func ValidCategory(c Category) bool {
	switch c {
	case CategoryLabor, CategoryEquipment, CategoryMaterials, CategorySubcontractor, CategoryDiscipline, CategoryMisc:
		return true
	default:
		return false
	}
}

// Deal mirrors the deals table columns touched by the workflow.
type Deal struct {
	ID           string
	CompanyID    string
	ContactID    *string
	ContactName  string
	Stage        Stage
	AssignedToID *string
	CreatedByID  string
	ApprovedByID *string
	ApprovedAt   *time.Time
	Subtotal     decimal.Decimal
	Taxes        decimal.Decimal
	Total        decimal.Decimal
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

// Version is one pricing snapshot of a deal. At most one version per deal is
// unlocked at any time; locking is one-way.
type Version struct {
	ID              string
	DealID          string
	VersionNumber   int
	Locked          bool
	DeliveryEnabled bool
	ApprovedAt      *time.Time
	Subtotal        decimal.Decimal
	Taxes           decimal.Decimal
	Total           decimal.Decimal
	CreatedAt       time.Time
	UpdatedAt       time.Time
}

// LineItem is one priced entry within a version. LineTotal is always
// recomputed server-side from Quantity and UnitCost.
type LineItem struct {
	ID              string
	DealID          string
	VersionID       string
	Description     string
	Quantity        decimal.Decimal
	Unit            string
	UnitCost        decimal.Decimal
	LineTotal       decimal.Decimal
	Category        Category
	Phase           *string
	Discipline      *string
	CustomerVisible bool
	InternalOnly    bool
	SortOrder       int
	CreatedAt       time.Time
	UpdatedAt       time.Time
}

// Document records a rendered proposal. Created once per successful
// approval and immutable thereafter.
type Document struct {
	ID            string
	DealID        string
	VersionID     string
	StorageKey    string
	GeneratedByID string
	GeneratedAt   time.Time
}

// Handoff signals the dispatch subsystem that a deal's locked version is
// ready to schedule. Created exactly once per successful approval.
type Handoff struct {
	ID          string
	DealID      string
	VersionID   string
	DocumentID  string
	CreatedByID string
	CreatedAt   time.Time
}

// Totals is the aggregate pricing of a version, always derived from its
// line items by RecomputeTotals.
type Totals struct {
	Subtotal decimal.Decimal
	Taxes    decimal.Decimal
	Total    decimal.Decimal
}
