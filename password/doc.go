// Package password hashes and verifies user passwords.
//
// # Output format
//
// New hashes are Argon2id in PHC string format:
//
//	$argon2id$v=19$m=<memory>,t=<time>,p=<threads>$<salt>$<hash>
//
// Salt and hash are unpadded standard base64.
//
// Bcrypt hashes ($2a$, $2b$, $2y$) from earlier deployments still verify.
// [Hasher.NeedsUpgrade] reports true for them, and for Argon2 hashes made with
// weaker parameters, so the engine can re-hash after the next successful login.
//
// # Architecture boundaries
//
// This package owns hashing and verification only. It never stores
// passwords, never logs them, and imports no other authcore package.
package password
