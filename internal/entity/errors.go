package entity

import "errors"

// Domain errors for the practice engine.
var (
	ErrInvalidConfig        = errors.New("invalid practice configuration")
	ErrInvalidFact          = errors.New("invalid fact")
	ErrInconsistentQuestion = errors.New("question answer does not match its fact")
	ErrInvalidUserID        = errors.New("invalid user ID")
	ErrConcurrentUpdate     = errors.New("mastery record changed concurrently")
	ErrMasteryNotFound      = errors.New("mastery record not found")
)
