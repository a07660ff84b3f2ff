package domain

import "errors"

var (
	ErrNotFound       = errors.New("not found")
	ErrOrderNotFound  = errors.New("order not found")
	ErrDuplicateOrder = errors.New("duplicate order id")
	ErrNoLiquidity    = errors.New("no liquidity available")
	ErrUnknownSymbol  = errors.New("unknown symbol")
	ErrInvalidSide    = errors.New("invalid order side")
	ErrRateLimited    = errors.New("rate limited")
	ErrLockHeld       = errors.New("lock already held")
	ErrWSDisconnect   = errors.New("websocket disconnected")
)
