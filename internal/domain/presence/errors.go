package presence

import "errors"

var (
	ErrPresenceNotFound  = errors.New("doctor presence not found")
	ErrPresenceConflict  = errors.New("doctor presence changed concurrently")
	ErrDoctorUnavailable = errors.New("doctor is not available")
	ErrInvalidStatus     = errors.New("invalid presence status")
	ErrInvalidLocation   = errors.New("latitude must be within [-90, 90] and longitude within [-180, 180]")
)
