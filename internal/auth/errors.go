package auth

import "errors"

// Sentinel errors for the bearer-token middleware. The webhook signature
// path never returns these; it answers 401 directly.
var (
	ErrUnauthorized = errors.New("auth: unauthorized")
	ErrForbidden    = errors.New("auth: forbidden")
	ErrInvalidToken = errors.New("auth: invalid token")
)
