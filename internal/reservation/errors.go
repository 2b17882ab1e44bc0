package reservation

import "errors"

// Admission error kinds.  Every error returned by Service.Admit wraps exactly
// one of them.
var (
	ErrValidation         = errors.New("validation failed")
	ErrNotFound           = errors.New("not found")
	ErrBusy               = errors.New("spot is busy")
	ErrConflict           = errors.New("reservation conflict")
	ErrPricingUnavailable = errors.New("pricing unavailable")
	// ErrLockTimeout means another admission held the spot for too long.
	// The request had no effect and may be retried.
	ErrLockTimeout = errors.New("spot locked by a concurrent admission")
)
