package domain

import "errors"

var (
	ErrNotFound     = errors.New("not found")
	ErrRateLimited  = errors.New("rate limited")
	ErrUnauthorized = errors.New("unauthorized")
	ErrBadRequest   = errors.New("bad request")
	ErrInvalidOrder = errors.New("invalid order parameters")
	ErrLockHeld     = errors.New("lock already held")

	ErrEmptyBook        = errors.New("orderbook is empty")
	ErrOneSidedBook     = errors.New("orderbook is one-sided")
	ErrCrossedBook      = errors.New("orderbook is crossed")
	ErrNoMidPrice       = errors.New("mid price unavailable")
	ErrInsufficientFund = errors.New("insufficient balance")
	ErrNotQuotable      = errors.New("market is not quotable")
)
