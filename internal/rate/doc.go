// Package rate provides the Redis-backed failed-login limiter.
//
// # Window semantics
//
// Fixed-window counters: INCR + conditional EXPIRE on first hit. A login is
// refused once the counter has reached MaxLoginAttempts. Key layout, under
// the configured prefix:
//   - {prefix}:al:{identifier}  login per identifier
//   - {prefix}:ali:{ip}         login per IP
//
// # What this package must NOT do
//
//   - Count successful logins. Success resets the counters.
//   - Be imported outside the authcore module.
package rate
