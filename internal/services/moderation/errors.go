package moderation

import "errors"

var (
	ErrValidation                 = errors.New("validation error")
	ErrInvalidCursor              = errors.New("invalid cursor")
	ErrNotFound                   = errors.New("content item not found")
	ErrUnauthorized               = errors.New("admin identity required")
	ErrInvalidTransition          = errors.New("invalid moderation transition")
	ErrConcurrentDecisionConflict = errors.New("concurrent decision conflict")
	ErrAlreadyExists              = errors.New("content item already exists")
	ErrAlreadyReported            = errors.New("item already reported by this user")
)
