// Package middleware exposes net/http adapters that gate handlers on a
// verified access token, built on top of authcore.Engine validation.
//
// # Guards
//
//   - [Guard] rejects requests without a valid, unexpired access token.
//   - [Authenticate] performs the same check for transports that bring their
//     own middleware chain (see httpapi).
//
// The access token is read from the access cookie first and from an
// "Authorization: Bearer" header otherwise. Validated claims are injected
// into the request context.
//
// # What this package must NOT do
//
//   - Parse or create JWTs directly (delegates to Engine).
//   - Touch the credential store.
//   - Make authorization decisions beyond pass/reject from Engine.Validate.
package middleware
