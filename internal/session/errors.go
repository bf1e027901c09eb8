package session

import "errors"

var (
	ErrNotTherapist       = errors.New("user is not a therapist")
	ErrNotPatient         = errors.New("user is not a patient")
	ErrNotSessionOwner    = errors.New("session belongs to another therapist")
	ErrSessionCompleted   = errors.New("session is already completed")
	ErrSessionTaken       = errors.New("session already has a different patient")
	ErrEmptyQuestion      = errors.New("question text cannot be empty")
	ErrCodeGeneration     = errors.New("could not generate a unique session code")
	ErrQuestionNotInScope = errors.New("question does not belong to the session")
)
