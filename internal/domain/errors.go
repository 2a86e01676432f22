package domain

import "errors"

var (
	ErrNotFound            = errors.New("not found")
	ErrQueueEmpty          = errors.New("opportunity queue empty")
	ErrMalformedPayload    = errors.New("malformed payload")
	ErrInsufficientCapital = errors.New("insufficient capital")
	ErrFlashLoanLimit      = errors.New("flash loan limit exceeded")
	ErrLeverageExceeded    = errors.New("leverage ratio exceeded")
	ErrMaxPositions        = errors.New("max open positions reached")
	ErrLockHeld            = errors.New("lock already held")
)
