package auth

import "errors"

var (
	ErrTokenFormat    = errors.New("malformed token")
	ErrTokenSignature = errors.New("invalid token signature")
	ErrTokenExpired   = errors.New("token expired")
)
