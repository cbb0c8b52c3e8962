package deal

import "errors"

var (
	// ErrNotFound is returned when the deal, version, or line item does not
	// exist inside the caller's tenant. Rows outside the tenant scope read
	// the same as absent rows.
	ErrNotFound = errors.New("deal: not found")
	// ErrForbidden signals the actor's role does not permit the action at the
	// deal's current stage.
	ErrForbidden = errors.New("deal: action forbidden for role")
	// ErrInvalidStage signals the action is not valid for the deal's current
	// stage regardless of role.
	ErrInvalidStage = errors.New("deal: action not valid for stage")
	// ErrVersionLocked signals a mutation targeted a locked version.
	ErrVersionLocked = errors.New("deal: version is locked")
	// ErrValidation wraps malformed-input failures (unknown category,
	// negative quantity or cost, missing fields).
	ErrValidation = errors.New("deal: validation failed")
	// ErrApprovalConflict signals a concurrent or duplicate approval attempt:
	// the precondition re-check inside the approval transaction found the
	// deal no longer SUBMITTED or its version already locked.
	ErrApprovalConflict = errors.New("deal: approval conflict")
	// ErrDeliveryDisabled signals the customer-facing view of an approved
	// version has not been enabled yet.
	ErrDeliveryDisabled = errors.New("deal: delivery not enabled")
)
