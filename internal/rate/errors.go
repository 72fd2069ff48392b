package rate

import "errors"

var (
	// ErrRateLimited is returned once the failed-login budget is spent.
	ErrRateLimited = errors.New("rate limited")
	// ErrRedisUnavailable wraps Redis command failures.
	ErrRedisUnavailable = errors.New("redis unavailable")
)
