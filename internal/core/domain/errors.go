package domain

import "errors"

var (
	// ErrInvalidTransition is returned when a state machine guard is
	// violated, including losing an optimistic concurrency race. Never
	// retried automatically.
	ErrInvalidTransition = errors.New("invalid transition")

	// ErrInvalidDelta is returned when a stock mutation would drive
	// on-hand quantity below zero.
	ErrInvalidDelta = errors.New("invalid delta")

	// ErrDuplicateApplication is returned when a mutation for the same
	// (order, product) pair was already applied. Callers treat it as
	// success.
	ErrDuplicateApplication = errors.New("duplicate application")

	// ErrCrossTenantAccess is returned when an operation targets an
	// entity belonging to a different tenant.
	ErrCrossTenantAccess = errors.New("cross-tenant access")

	// ErrPaymentRefTaken is returned when another order of the tenant
	// already holds the supplied payment reference.
	ErrPaymentRefTaken = errors.New("payment reference already used")

	// ErrNotPermitted is returned when the caller's role lacks the
	// capability a transition requires.
	ErrNotPermitted = errors.New("not permitted")

	// ErrVersionConflict is returned by stores when a write loses an
	// optimistic locking race. Services surface it as ErrInvalidTransition.
	ErrVersionConflict = errors.New("optimistic lock conflict")

	// ErrNotFound is returned when the target entity does not exist
	// within the tenant's scope.
	ErrNotFound = errors.New("not found")
)
