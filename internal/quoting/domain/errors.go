package domain

import (
	"errors"
	"fmt"

	"marketplace_quotes_backend/platform/apperr"
)

// Sentinels for errors.Is checks. The constructors below wrap them in
// *apperr.Error so the HTTP layer can map them.
var (
	ErrNoCriteria            = errors.New("no eligibility criteria")
	ErrCriteriaExists        = errors.New("eligibility criteria already registered")
	ErrDuplicateInvite       = errors.New("duplicate invite")
	ErrDuplicatePendingQuote = errors.New("duplicate pending quotation")
	ErrInvalidTransition     = errors.New("invalid transition")
	ErrNotFound              = errors.New("not found")
	ErrUpstreamUnavailable   = errors.New("upstream unavailable")
)

// Machine readable codes returned to API clients.
const (
	CodeInvalidTransition     = "INVALID_TRANSITION"
	CodeDuplicateInvite       = "DUPLICATE_INVITE"
	CodeDuplicatePendingQuote = "DUPLICATE_PENDING_QUOTE"
	CodeNoCriteria            = "NO_CRITERIA"
	CodeCriteriaExists        = "CRITERIA_EXISTS"
	CodeNotFound              = "NOT_FOUND"
	CodeValidation            = "VALIDATION_FAILED"
	CodeUpstreamUnavailable   = "UPSTREAM_UNAVAILABLE"
)

// Invalid returns a validation error.
func Invalid(message string) *apperr.Error {
	return apperr.Validation(message).WithCode(CodeValidation)
}

// NoCriteria reports a job without eligibility criteria.
func NoCriteria(jobID fmt.Stringer) *apperr.Error {
	return apperr.Wrap(apperr.KindNotFound, fmt.Sprintf("no eligibility criteria for job %s", jobID), ErrNoCriteria).
		WithCode(CodeNoCriteria)
}

// CriteriaExists reports a second registration for the same job.
func CriteriaExists(jobID fmt.Stringer) *apperr.Error {
	return apperr.Wrap(apperr.KindConflict, fmt.Sprintf("eligibility criteria for job %s already registered", jobID), ErrCriteriaExists).
		WithCode(CodeCriteriaExists)
}

// DuplicateInvite reports an existing invite for a (job, provider) pair.
func DuplicateInvite(jobID, providerID fmt.Stringer) *apperr.Error {
	return apperr.Wrap(apperr.KindConflict,
		fmt.Sprintf("provider %s is already invited to job %s", providerID, jobID), ErrDuplicateInvite).
		WithCode(CodeDuplicateInvite)
}

// DuplicatePendingQuote reports a second pending quotation from the same
// provider on the same job.
func DuplicatePendingQuote(jobID, providerID fmt.Stringer) *apperr.Error {
	return apperr.Wrap(apperr.KindConflict,
		fmt.Sprintf("provider %s already has a pending quotation for job %s", providerID, jobID), ErrDuplicatePendingQuote).
		WithCode(CodeDuplicatePendingQuote)
}

// InvalidTransition reports a state change that the lifecycle forbids.
// current is attached so clients can re-render the authoritative state.
func InvalidTransition(entity string, from, to string, current any) *apperr.Error {
	return apperr.Wrap(apperr.KindConflict,
		fmt.Sprintf("%s cannot move from %s to %s", entity, from, to), ErrInvalidTransition).
		WithCode(CodeInvalidTransition).
		WithDetails(current)
}

// NotFound reports an unknown id.
func NotFound(entity string, id fmt.Stringer) *apperr.Error {
	return apperr.Wrap(apperr.KindNotFound, fmt.Sprintf("%s %s not found", entity, id), ErrNotFound).
		WithCode(CodeNotFound)
}

// UpstreamUnavailable reports an exhausted retry against an external lookup.
func UpstreamUnavailable(service string, err error) *apperr.Error {
	return apperr.Wrap(apperr.KindUnavailable, fmt.Sprintf("%s is unavailable", service),
		errors.Join(ErrUpstreamUnavailable, err)).
		WithCode(CodeUpstreamUnavailable)
}

// JobAlreadyAccepted reports a quotation change on a job whose customer has
// already accepted a quotation.
func JobAlreadyAccepted(jobID fmt.Stringer, current any) *apperr.Error {
	return apperr.Wrap(apperr.KindConflict,
		fmt.Sprintf("job %s already has an accepted quotation", jobID), ErrInvalidTransition).
		WithCode(CodeInvalidTransition).
		WithDetails(current)
}
