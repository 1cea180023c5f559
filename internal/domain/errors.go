package domain

import "errors"

var (
	ErrConfigNotFound    = errors.New("crawler config not found")
	ErrConfigDisabled    = errors.New("crawler config is disabled")
	ErrInvalidConfig     = errors.New("invalid crawler config")
	ErrValidation        = errors.New("article validation failed")
	ErrInvalidTransition = errors.New("invalid task status transition")
	ErrTaskNotFound      = errors.New("crawler task not found")
)
