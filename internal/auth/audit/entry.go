// Package audit is the append-only trail of security events.
//
// Appends are asynchronous and never fail the caller: entries are queued onto
// per-identity shards and written to one or more sinks by background workers.
// A sink failure is logged and counted, nothing more.
package audit

import (
	"context"
	"time"
)

// Action is the closed set of audited event kinds.
type Action string

const (
	ActionLoginSuccess                Action = "LOGIN_SUCCESS"
	ActionLoginFailure                Action = "LOGIN_FAILURE"
	ActionTokenRefresh                Action = "TOKEN_REFRESH"
	ActionLogout                      Action = "LOGOUT"
	ActionSuspiciousLoginNewIP        Action = "SUSPICIOUS_LOGIN_NEW_IP"
	ActionSuspiciousLoginNewUserAgent Action = "SUSPICIOUS_LOGIN_NEW_USER_AGENT"
	ActionTwoFactorEnabled            Action = "TWO_FACTOR_ENABLED"
)

// Valid reports whether a is a known action.
func (a Action) Valid() bool {
	switch a {
	case ActionLoginSuccess, ActionLoginFailure, ActionTokenRefresh, ActionLogout,
		ActionSuspiciousLoginNewIP, ActionSuspiciousLoginNewUserAgent, ActionTwoFactorEnabled:
		return true
	}
	return false
}

// MetaPrincipal is the metadata key for the attempted username on failed logins.
const MetaPrincipal = "principal"

// Entry is one immutable audit record. IdentityID is empty for failures against an
// unknown principal.
type Entry struct {
	ID         string         `json:"id"`
	IdentityID string         `json:"identity_id,omitempty"`
	SessionID  string         `json:"session_id,omitempty"`
	Action     Action         `json:"action"`
	IP         string         `json:"ip,omitempty"`
	Metadata   map[string]any `json:"metadata,omitempty"`
	CreatedAt  time.Time      `json:"created_at"`
}

// OrderingKey is the key whose entries must be written in append order.
// Anonymous failures fall back to the attempted principal, then the IP.
func (e Entry) OrderingKey() string {
	if e.IdentityID != "" {
		return e.IdentityID
	}
	if p, ok := e.Metadata[MetaPrincipal].(string); ok && p != "" {
		return "principal:" + p
	}
	return "ip:" + e.IP
}

// Appender is what security operations depend on. Append never fails the caller.
type Appender interface {
	Append(ctx context.Context, e Entry)
}

// Sink persists or forwards entries. Write may block; it is only ever called
// from trail workers.
type Sink interface {
	Name() string
	Write(ctx context.Context, e Entry) error
}
