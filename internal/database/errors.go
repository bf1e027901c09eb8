package database

import "errors"

var (
	ErrUserNotFound     = errors.New("user not found")
	ErrSessionNotFound  = errors.New("session not found")
	ErrQuestionNotFound = errors.New("question not found")
	ErrAnalysisNotFound = errors.New("emotion analysis not found")
)
