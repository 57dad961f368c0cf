// Package identity owns the principals that sessions are issued for.
//
// It holds the Identity record, the closed Role set, identity persistence
// (in-memory and Postgres), and the Authenticator that verifies credentials
// on behalf of the session engine. Password hashing is delegated to
// security/password; this package never sees a plaintext password outside
// of a single call.
package identity
