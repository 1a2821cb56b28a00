package trip

import (
	"fmt"

	"backend-tanquecheio/internal/shared/apperr"
)

var (
	ErrTripNotFound      = fmt.Errorf("%w: trip not found", apperr.ErrNotFound)
	ErrInvalidLocation   = fmt.Errorf("%w: invalid location", apperr.ErrValidation)
	ErrInvalidInterval   = fmt.Errorf("%w: notification interval must be positive", apperr.ErrValidation)
	ErrInvalidFuelType   = fmt.Errorf("%w: unknown fuel type", apperr.ErrValidation)
	ErrMissingUser       = fmt.Errorf("%w: user_id required", apperr.ErrValidation)
	ErrImpossibleDelta   = fmt.Errorf("%w: sample rejected as impossible movement", apperr.ErrValidation)
	ErrTripAlreadyActive = fmt.Errorf("%w: user already has an active trip", apperr.ErrConflict)
)
