package domain

import "errors"

// Error taxonomy shared by every layer. Callers wrap these with fmt.Errorf("%w: ...")
// and match them with errors.Is.
var (
	// ErrNotFound: the rule, entity or score is absent or belongs to another tenant.
	ErrNotFound = errors.New("not found")

	// ErrValidation: malformed weight or config supplied at rule administration time.
	ErrValidation = errors.New("validation failed")

	// ErrIntegrity: a write would break the (tenant, scope, code) uniqueness invariant.
	ErrIntegrity = errors.New("integrity violation")

	// ErrEvaluation: the facts needed for an evaluation could not be built.
	ErrEvaluation = errors.New("evaluation failed")

	// ErrInvalidInput: the caller omitted a required argument such as the tenant.
	ErrInvalidInput = errors.New("invalid input")
)
