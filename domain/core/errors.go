package core

import (
	"errors"
	"fmt"
)

// Domain errors - centralized error definitions for the analysis pipeline
var (
	// Construction-time errors (caller misuse, fatal to the call)
	ErrColumnNotFound = errors.New("column not found in input data")
	ErrTypeConversion = errors.New("column value cannot be converted to the required type")
	ErrDuplicateTrial = errors.New("trial already present")
	ErrUnknownTrial   = errors.New("unknown trial")

	// Design resolution errors
	ErrUnknownDesign = errors.New("unknown trial design")
	ErrMissingDesign = errors.New("no trial design available")

	// Extraction errors
	ErrUnsupportedStatistic = errors.New("statistic not supported by this fit")
	ErrMissingStandardError = errors.New("no standard error statistic selected")

	// Engine errors
	ErrEngineUnavailable = errors.New("modeling engine unavailable")
	ErrSingularDesign    = errors.New("singular design matrix")
)

// Error constructors with context

func NewColumnNotFoundError(column string) error {
	return fmt.Errorf("%w: %q", ErrColumnNotFound, column)
}

func NewTypeConversionError(column, value string) error {
	return fmt.Errorf("%w: column %q value %q", ErrTypeConversion, column, value)
}

func NewDuplicateTrialError(trial string) error {
	return fmt.Errorf("%w: %q", ErrDuplicateTrial, trial)
}

func NewUnknownTrialError(trial string) error {
	return fmt.Errorf("%w: %q", ErrUnknownTrial, trial)
}

func NewUnknownDesignError(code string) error {
	return fmt.Errorf("%w: %q", ErrUnknownDesign, code)
}

func NewMissingDesignError(trial string) error {
	return fmt.Errorf("%w for trial %q: set a metadata design or pass an override", ErrMissingDesign, trial)
}

func NewUnsupportedStatisticError(stat, precondition string) error {
	return fmt.Errorf("%w: %q requires %s", ErrUnsupportedStatistic, stat, precondition)
}

func NewEngineUnavailableError(engine string) error {
	return fmt.Errorf("%w: %q", ErrEngineUnavailable, engine)
}

// Error checking helpers

func IsConstructionError(err error) bool {
	return errors.Is(err, ErrColumnNotFound) ||
		errors.Is(err, ErrTypeConversion) ||
		errors.Is(err, ErrDuplicateTrial) ||
		errors.Is(err, ErrUnknownTrial)
}

func IsDesignError(err error) bool {
	return errors.Is(err, ErrUnknownDesign) || errors.Is(err, ErrMissingDesign)
}

func IsFitError(err error) bool {
	return errors.Is(err, ErrSingularDesign) || errors.Is(err, ErrEngineUnavailable)
}
