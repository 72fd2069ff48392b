// Package authcore provides the authentication session lifecycle: credential
// verification, paired JWT access/refresh token issuance, refresh token
// rotation with reuse detection, and logout revocation.
//
// The package is designed for concurrent server workloads: Engine methods are safe to call
// from multiple goroutines after initialization through [Builder.Build].
//
// # Session model
//
// Each identity holds at most one stored refresh token. Login overwrites it,
// Refresh replaces it through an atomic compare-and-set at the storage
// boundary, and Logout clears it. A refresh token is valid only while it is
// byte-for-byte equal to the stored value, so every earlier token fails with
// [ErrSessionRevoked].
//
// # Architecture boundaries
//
// authcore is the public surface. It exposes [Engine], [Builder], [Config], and value types
// (TokenPair, PublicUser, MetricsSnapshot). Flow orchestration, rate limiting and audit
// dispatch live under internal/ and are never exported. Storage backends live in
// redisstore and sqlstore; HTTP transport lives in httpapi.
//
// # What this package must NOT do
//
//   - Parse HTTP requests or set cookies. Transports own framing.
//   - Open database connections or read process configuration.
//   - Import any sub-package that re-imports authcore (no import cycles).
//
// # Performance contract
//
// Validate is the hot path. It performs no store round-trips. Refresh performs
// one lookup, one read and one conditional write.
package authcore
