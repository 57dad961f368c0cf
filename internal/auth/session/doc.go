// Package session is the session lifecycle engine.
//
// A session is one issued credential pair: a short-lived signed access token and a
// long-lived, single-use opaque refresh token. Refresh tokens are persisted only as a
// keyed digest (security/token). Consuming a refresh token deletes its session in the
// same atomic storage step that finds it, so two concurrent refreshes with the same
// token can never both succeed.
//
// Store backends: memory, Postgres, Redis and SQLite. Manager orchestrates login,
// rotation, logout and revocation on top of any of them.
package session
