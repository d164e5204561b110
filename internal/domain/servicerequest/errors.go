package servicerequest

import "errors"

var (
	ErrRequestNotFound   = errors.New("service request not found")
	ErrConflict          = errors.New("service request status changed concurrently")
	ErrAlreadyTaken      = errors.New("service request already taken by another doctor")
	ErrInvalidTransition = errors.New("invalid service request status transition")
	ErrInvalidStatus     = errors.New("invalid service request status")
	ErrInvalidUrgency    = errors.New("invalid urgency level")
)
