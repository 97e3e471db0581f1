package domain

import (
	"errors"
	"fmt"
	"math/big"
)

// Precondition violations. Callers can retry after satisfying the
// precondition; state is left unchanged.
var (
	// ErrCeremonyNotFound is returned when a ceremony code resolves to nothing
	ErrCeremonyNotFound = errors.New("ceremony not found")

	// ErrCeremonyNotActive is returned when an operation requires an active ceremony
	ErrCeremonyNotActive = errors.New("ceremony not active")

	// ErrCeremonyStillActive is returned when badge aggregation runs before conclude
	ErrCeremonyStillActive = errors.New("ceremony still active")

	// ErrCeremonyAlreadyExists is returned on a code collision during start
	ErrCeremonyAlreadyExists = errors.New("ceremony already exists")

	// ErrMembershipRequired is returned when the caller holds no membership unit
	ErrMembershipRequired = errors.New("membership required")

	// ErrAlreadyOwnsMembership is returned on a second purchase by the same identity
	ErrAlreadyOwnsMembership = errors.New("already owns membership")

	// ErrEntryAlreadyRequested is returned on a repeated entry request
	ErrEntryAlreadyRequested = errors.New("entry already requested")

	// ErrEntryNotRequested is returned when approval precedes a request
	ErrEntryNotRequested = errors.New("entry not requested")

	// ErrParticipantAlreadyApproved is returned on a repeated approval
	ErrParticipantAlreadyApproved = errors.New("participant already approved")

	// ErrAlreadyVoted is returned when a vote would overwrite an earlier one
	ErrAlreadyVoted = errors.New("already voted")

	// ErrNotApproved is returned when the caller was never admitted to the ceremony
	ErrNotApproved = errors.New("participant not approved")

	// ErrNotVested is returned when the caller's membership has not finished vesting
	ErrNotVested = errors.New("membership not vested")

	// ErrSessionNotFound is returned when a feature vote session index is out of range
	ErrSessionNotFound = errors.New("feature vote session not found")

	// ErrSessionClosed is returned when a feature vote session is no longer active
	ErrSessionClosed = errors.New("feature vote session closed")

	// ErrDuplicateFeatureSession is returned when a feature code is reused within a ceremony
	ErrDuplicateFeatureSession = errors.New("duplicate feature vote session")

	// ErrResultsAlreadyAggregated is returned when every participant's badge has been rolled up
	ErrResultsAlreadyAggregated = errors.New("ceremony results already aggregated")

	// ErrZeroIdentity is returned when the empty identity is passed where a real one is required
	ErrZeroIdentity = errors.New("zero identity")

	// ErrInvalidVestingPeriod is returned when a zero vesting period is configured
	ErrInvalidVestingPeriod = errors.New("invalid vesting period")

	// ErrAlreadyInitialized is returned on a second admin initialization
	ErrAlreadyInitialized = errors.New("already initialized")

	// ErrAlreadyPaused is returned when pause is called on a paused engine
	ErrAlreadyPaused = errors.New("already paused")

	// ErrNotPaused is returned when unpause is called on a running engine
	ErrNotPaused = errors.New("not paused")

	// ErrInvalidArguments is returned when a dispatch payload has the wrong shape
	ErrInvalidArguments = errors.New("invalid arguments")
)

// Authorization failures. Non-retryable without a role change.
var (
	// ErrNotAuthorized is returned on any failed role or ownership check
	ErrNotAuthorized = errors.New("not authorized")

	// ErrNotOwner is returned when a router-owner operation is called by someone else
	ErrNotOwner = errors.New("caller is not the router owner")
)

// Version/integrity failures. Fatal for the running deployment; require an
// explicit migration step.
var (
	// ErrStorageNotInitialized is returned when the store version tag is zero
	ErrStorageNotInitialized = errors.New("storage not initialized")
)

// Pause gate.
var (
	// ErrSystemPaused is returned for non-exempt operations while paused
	ErrSystemPaused = errors.New("system paused")
)

// ErrReentrantCall is returned when a guarded transfer function is re-entered
// while it is still executing.
var ErrReentrantCall = errors.New("reentrant call")

// VersionMismatchError is returned when the stored schema version differs
// from the version this build expects.
type VersionMismatchError struct {
	Expected uint64
	Actual   uint64
}

func (e *VersionMismatchError) Error() string {
	return fmt.Sprintf("storage version mismatch: expected %d, got %d", e.Expected, e.Actual)
}

// OperationNotRegisteredError is returned when dispatch cannot resolve an
// operation to a facet.
type OperationNotRegisteredError struct {
	Op Operation
}

func (e *OperationNotRegisteredError) Error() string {
	return fmt.Sprintf("operation not registered: %s", e.Op)
}

// ContributionTooLargeError is returned when a direct transfer to the router
// exceeds the configured ceiling.
type ContributionTooLargeError struct {
	Sent *big.Int
	Max  *big.Int
}

func (e *ContributionTooLargeError) Error() string {
	return fmt.Sprintf("contribution too large: sent %s, max %s", e.Sent, e.Max)
}

// InsufficientFundsError is returned when a withdrawal exceeds the available
// balance.
type InsufficientFundsError struct {
	Requested *big.Int
	Available *big.Int
}

func (e *InsufficientFundsError) Error() string {
	return fmt.Sprintf("insufficient funds: requested %s, available %s", e.Requested, e.Available)
}

// IncorrectPaymentAmountError is returned when the attached payment does not
// equal the current exchange rate exactly.
type IncorrectPaymentAmountError struct {
	Sent     *big.Int
	Required *big.Int
}

func (e *IncorrectPaymentAmountError) Error() string {
	return fmt.Sprintf("incorrect payment amount: sent %s, required %s", e.Sent, e.Required)
}

// InvalidVoteValueError is returned when a vote exceeds MaxVoteValue.
type InvalidVoteValueError struct {
	Value uint64
	Max   uint64
}

func (e *InvalidVoteValueError) Error() string {
	return fmt.Sprintf("invalid vote value: %d exceeds max %d", e.Value, e.Max)
}

// RegistrationError is returned when a facet registration action violates the
// ownership rules of the routing table.
type RegistrationError struct {
	Op     Operation
	Reason string
}

func (e *RegistrationError) Error() string {
	return fmt.Sprintf("cannot register %s: %s", e.Op, e.Reason)
}
