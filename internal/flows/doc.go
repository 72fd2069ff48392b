// Package flows contains pure-function orchestrators for every Engine operation.
//
// Each flow function (RunVerifyCredentials, RunIssue, RunRefresh, RunLogout,
// RunRegister, RunValidate) accepts a typed dependency struct and returns a
// result carrying either the payload or a failure kind. The root package maps
// failure kinds onto its public error taxonomy, metrics and audit events.
//
// # Architecture boundaries
//
// Flow functions coordinate calls to the credential store, JWT manager and
// password hasher. They do NOT own any of these resources; ownership stays
// with the Engine.
//
// # What this package must NOT do
//
//   - Hold mutable state between calls.
//   - Import authcore (to avoid import cycles).
//   - Perform I/O directly. All I/O is mediated through dependency functions.
package flows
