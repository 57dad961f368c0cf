// Package suspicious flags logins from an IP address or user agent that none of the
// identity's other live sessions has used.
//
// Matching is exact-string. There is no CIDR grouping or user-agent normalization,
// so a client whose agent string changes on every browser update is flagged each time.
// Flags are advisory: they annotate the audit trail and never block a login.
package suspicious

import (
	"context"
	"fmt"
	"log/slog"

	"warden/internal/auth/audit"
	"warden/internal/auth/session"
)

// Flag is one anomaly found on a login.
type Flag string

const (
	FlagNewIP        Flag = "new_ip"
	FlagNewUserAgent Flag = "new_user_agent"
)

// Action is the audit action recorded for f.
func (f Flag) Action() audit.Action {
	if f == FlagNewIP {
		return audit.ActionSuspiciousLoginNewIP
	}
	return audit.ActionSuspiciousLoginNewUserAgent
}

// History is the read side of the session store the detector needs.
type History interface {
	ListByIdentity(ctx context.Context, identityID string) ([]session.Session, error)
}

// Detector inspects a freshly persisted session against the identity's other sessions.
type Detector struct {
	history History
	audit   audit.Appender
	log     *slog.Logger
	metrics *Metrics
}

type Option func(*Detector)

func WithLogger(l *slog.Logger) Option {
	return func(d *Detector) {
		if l != nil {
			d.log = l
		}
	}
}

func WithMetrics(m *Metrics) Option {
	return func(d *Detector) {
		if m != nil {
			d.metrics = m
		}
	}
}

// NewDetector builds a Detector that records one audit entry per flag on trail.
func NewDetector(history History, trail audit.Appender, opts ...Option) *Detector {
	d := &Detector{
		history: history,
		audit:   trail,
		log:     slog.Default(),
		metrics: NewMetrics(nil),
	}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// Inspect compares current with every other session of its identity and audits
// each flag raised. An identity with no other session is never flagged.
func (d *Detector) Inspect(ctx context.Context, current session.Session) ([]Flag, error) {
	all, err := d.history.ListByIdentity(ctx, current.IdentityID)
	if err != nil {
		return nil, fmt.Errorf("suspicious: list sessions: %w", err)
	}

	var (
		prior             int
		seenIP, seenAgent bool
	)
	for _, s := range all {
		if s.ID == current.ID {
			continue
		}
		prior++
		seenIP = seenIP || s.IP == current.IP
		seenAgent = seenAgent || s.UserAgent == current.UserAgent
	}
	if prior == 0 {
		return nil, nil
	}

	var flags []Flag
	if !seenIP {
		flags = append(flags, FlagNewIP)
	}
	if !seenAgent {
		flags = append(flags, FlagNewUserAgent)
	}

	for _, f := range flags {
		d.metrics.flags.WithLabelValues(string(f)).Inc()
		d.audit.Append(ctx, d.entry(f, current))
	}
	if len(flags) > 0 {
		d.log.Warn("auth.login.suspicious",
			"identity_id", current.IdentityID,
			"session_id", current.ID,
			"ip", current.IP,
			"flags", flags,
		)
	}
	return flags, nil
}

// ObserveLogin runs Inspect after a login. Errors are logged and otherwise ignored.
func (d *Detector) ObserveLogin(ctx context.Context, s session.Session) {
	if _, err := d.Inspect(ctx, s); err != nil {
		d.log.Error("auth.login.suspicious.inspect.fail", "identity_id", s.IdentityID, "err", err)
	}
}

func (d *Detector) entry(f Flag, s session.Session) audit.Entry {
	meta := map[string]any{"user_agent": s.UserAgent}
	switch f {
	case FlagNewIP:
		meta["message"] = fmt.Sprintf("Suspicious login detected for identity %s from new IP address %s", s.IdentityID, s.IP)
	case FlagNewUserAgent:
		meta["message"] = fmt.Sprintf("Suspicious login detected for identity %s with new User-Agent %s", s.IdentityID, s.UserAgent)
	}
	return audit.Entry{
		IdentityID: s.IdentityID,
		SessionID:  s.ID,
		Action:     f.Action(),
		IP:         s.IP,
		Metadata:   meta,
	}
}
