package domain

import "errors"

var (
	ErrNotFound      = errors.New("not found")
	ErrAlreadyExists = errors.New("already exists")
	ErrMarketNotOpen = errors.New("market not open")
	ErrNotResolved   = errors.New("market not resolved")
	ErrLockHeld      = errors.New("lock already held")
)
