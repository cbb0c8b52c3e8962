package deal

import "dealflow/auth"

// Action names a guarded operation on a deal.
type Action string

const (
	ActionAdvanceToEstimating Action = "advance_to_estimating"
	ActionEditLineItems       Action = "edit_line_items"
	ActionSubmit              Action = "submit"
	ActionApprove             Action = "approve"
	ActionViewDispatch        Action = "view_dispatch"
)

// DenialReason distinguishes why the guard rejected an action: clients need
// to tell a role problem apart from a stage problem.
type DenialReason int

const (
	DenialNone DenialReason = iota
	// DenialStage means the action is never valid at the deal's current
	// stage, for any role.
	DenialStage
	// DenialRole means the action exists at this stage but the actor's role
	// is not permitted to perform it.
	DenialRole
)

// Decision is the guard's verdict. Next is only meaningful when Allowed.
type Decision struct {
	Allowed bool
	Next    Stage
	Reason  DenialReason
}

// Err maps a denial to the matching sentinel error.
func (d Decision) Err() error {
	switch d.Reason {
	case DenialRole:
		return ErrForbidden
	case DenialStage:
		return ErrInvalidStage
	default:
		return nil
	}
}

// Decide is the stage transition guard: a pure function of the deal's
// current stage, the requested action, and the actor's role. Anything not
// explicitly allowed is denied; an unrecognized role or action falls through
// to the default deny.
func Decide(stage Stage, action Action, role auth.Role) Decision {
	switch {
	case stage == StageOpen && action == ActionAdvanceToEstimating:
		switch role {
		case auth.RoleSales, auth.RoleEstimator, auth.RoleAdmin, auth.RoleOwner:
			return Decision{Allowed: true, Next: StageInEstimating}
		}
		return Decision{Reason: DenialRole}

	case stage == StageInEstimating && action == ActionEditLineItems:
		switch role {
		case auth.RoleEstimator, auth.RoleAdmin, auth.RoleOwner:
			return Decision{Allowed: true, Next: StageInEstimating}
		}
		return Decision{Reason: DenialRole}

	case stage == StageInEstimating && action == ActionSubmit:
		switch role {
		case auth.RoleEstimator, auth.RoleAdmin, auth.RoleOwner:
			return Decision{Allowed: true, Next: StageSubmitted}
		}
		return Decision{Reason: DenialRole}

	case stage == StageSubmitted && action == ActionApprove:
		switch role {
		case auth.RoleEstimator, auth.RoleAdmin, auth.RoleOwner:
			// The approval transaction passes through APPROVED on its way to
			// DISPATCHED; DISPATCHED is the only stage ever at rest.
			return Decision{Allowed: true, Next: StageDispatched}
		}
		return Decision{Reason: DenialRole}

	case stage == StageDispatched && action == ActionViewDispatch:
		switch role {
		case auth.RoleDispatcher, auth.RoleSales, auth.RoleEstimator, auth.RoleAdmin, auth.RoleOwner:
			return Decision{Allowed: true, Next: StageDispatched}
		}
		return Decision{Reason: DenialRole}
	}

	return Decision{Reason: DenialStage}
}

// StaffOnly admits the office-side roles to deal CRM surfaces. The execution
// role reads exclusively through the dispatch views, at any stage; every
// unrecognized role is denied.
func StaffOnly(role auth.Role) error {
	switch role {
	case auth.RoleSales, auth.RoleEstimator, auth.RoleAdmin, auth.RoleOwner:
		return nil
	}
	return ErrForbidden
}
