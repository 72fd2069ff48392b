// Package jwt issues and verifies the HS256 access and refresh tokens used by
// authcore. Access and refresh tokens are signed with distinct secrets and
// carry a "typ" claim, so neither can be replayed in place of the other.
package jwt
