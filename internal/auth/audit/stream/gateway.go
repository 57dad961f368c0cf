package stream

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"net/url"
	"slices"
	"strings"
	"time"

	"github.com/coder/websocket"

	"warden/internal/auth/accesstoken"
	"warden/internal/identity"
	"warden/internal/ids"
)

// Authenticator verifies a bearer access token.
type Authenticator interface {
	Authenticate(ctx context.Context, accessToken string) (accesstoken.Claims, error)
}

// Gateway upgrades admin requests and pumps hub broadcasts to the socket.
// The feed is write-only: inbound frames other than control frames close the connection.
type Gateway struct {
	cfg  Config
	log  *slog.Logger
	hub  *Hub
	auth Authenticator

	// websocket.Accept checks cross-origin requests against these host patterns,
	// derived from AllowedOrigins so both layers agree.
	originPatterns []string
}

func NewGateway(cfg Config, hub *Hub, auth Authenticator, log *slog.Logger) *Gateway {
	if log == nil {
		log = slog.Default()
	}
	if cfg.SendQueue < minSendQueue {
		cfg.SendQueue = minSendQueue
	}
	return &Gateway{
		cfg:            cfg,
		log:            log,
		hub:            hub,
		auth:           auth,
		originPatterns: originPatterns(cfg.AllowedOrigins),
	}
}

func (g *Gateway) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if err := g.enforceOrigin(r); err != nil {
		g.log.Info("audit.stream.reject.origin", "err", err, "origin", r.Header.Get("Origin"), "remote", r.RemoteAddr)
		http.Error(w, "forbidden", http.StatusForbidden)
		return
	}

	claims, status := g.authorize(r)
	if status != 0 {
		http.Error(w, http.StatusText(status), status)
		return
	}

	conn, err := websocket.Accept(w, r, &websocket.AcceptOptions{
		Subprotocols:   []string{Subprotocol},
		OriginPatterns: g.originPatterns,
		// enforceOrigin already ran; "*" must not be vetoed by the library check.
		InsecureSkipVerify: slices.Contains(g.cfg.AllowedOrigins, "*"),
	})
	if err != nil {
		g.log.Error("audit.stream.accept.fail", "err", err)
		return
	}
	defer func() { _ = conn.CloseNow() }()

	if sp := conn.Subprotocol(); sp != Subprotocol {
		_ = conn.Close(websocket.StatusProtocolError, "subprotocol required")
		return
	}
	conn.SetReadLimit(maxFrameBytes)

	// CloseRead discards inbound data and cancels ctx when the peer goes away.
	ctx := conn.CloseRead(r.Context())

	sub := NewSubscriber(ids.New(time.Now().UTC()), claims.Subject, g.cfg.SendQueue)
	g.hub.Register(sub)
	defer g.hub.Unregister(sub.ID)

	// Entries broadcast meanwhile wait in sub.Send behind the hello.
	hello, err := newEnvelope(TypeHello, HelloPayload{SubscriberID: sub.ID}, time.Now().UTC())
	if err != nil {
		return
	}
	if err := g.write(ctx, conn, hello); err != nil {
		return
	}

	go g.heartbeat(ctx, conn, sub)

	for {
		select {
		case <-ctx.Done():
			_ = conn.Close(websocket.StatusNormalClosure, "bye")
			return
		case <-sub.Done():
			if g.hub.ShuttingDown() {
				_ = conn.Close(websocket.StatusGoingAway, "server shutting down")
			} else {
				_ = conn.Close(websocket.StatusPolicyViolation, "too slow")
			}
			return
		case env := <-sub.Send:
			if err := g.write(ctx, conn, env); err != nil {
				g.log.Info("audit.stream.write.fail", "subscriber_id", sub.ID, "close_status", websocket.CloseStatus(err), "err", err)
				return
			}
		}
	}
}

// authorize returns the caller's claims, or the HTTP status to reject with.
func (g *Gateway) authorize(r *http.Request) (accesstoken.Claims, int) {
	raw := strings.TrimSpace(r.Header.Get("Authorization"))
	tok, ok := strings.CutPrefix(raw, "Bearer ")
	if !ok || strings.TrimSpace(tok) == "" {
		return accesstoken.Claims{}, http.StatusUnauthorized
	}
	claims, err := g.auth.Authenticate(r.Context(), strings.TrimSpace(tok))
	if err != nil {
		g.log.Info("audit.stream.reject.auth", "err", err, "remote", r.RemoteAddr)
		return accesstoken.Claims{}, http.StatusUnauthorized
	}
	if !claims.HasRole(identity.RoleAdmin) {
		g.log.Warn("audit.stream.reject.role", "identity_id", claims.Subject)
		return accesstoken.Claims{}, http.StatusForbidden
	}
	return claims, 0
}

func (g *Gateway) heartbeat(ctx context.Context, conn *websocket.Conn, sub *Subscriber) {
	t := time.NewTicker(g.cfg.HeartbeatInterval)
	defer t.Stop()

	fails := 0
	for {
		select {
		case <-ctx.Done():
			return
		case <-sub.Done():
			return
		case <-t.C:
			pctx, cancel := context.WithTimeout(ctx, g.cfg.HeartbeatTimeout)
			err := conn.Ping(pctx)
			cancel()
			if err == nil {
				fails = 0
				continue
			}
			fails++
			g.log.Info("audit.stream.ping.fail", "subscriber_id", sub.ID, "failures", fails, "err", err)
			if fails >= maxPingFails {
				_ = conn.Close(websocket.StatusGoingAway, "heartbeat failed")
				return
			}
		}
	}
}

func (g *Gateway) write(parent context.Context, conn *websocket.Conn, env Envelope) error {
	ctx, cancel := context.WithTimeout(parent, g.cfg.WriteTimeout)
	defer cancel()

	b, err := json.Marshal(env)
	if err != nil {
		return err
	}
	return conn.Write(ctx, websocket.MessageText, b)
}

func (g *Gateway) enforceOrigin(r *http.Request) error {
	origin := strings.TrimSpace(r.Header.Get("Origin"))
	if origin == "" {
		if g.cfg.OriginRequired {
			return errors.New("missing origin")
		}
		return nil
	}

	host := originHost(origin)
	for _, a := range g.cfg.AllowedOrigins {
		if a == "*" || a == origin {
			return nil
		}
		if host != "" && host == originHost(a) {
			return nil
		}
	}
	return fmt.Errorf("origin not allowed: %s", origin)
}

// originHost extracts the lower-cased host from a full origin or a host[:port].
func originHost(s string) string {
	s = strings.TrimSpace(s)
	if strings.Contains(s, "://") {
		u, err := url.Parse(s)
		if err != nil {
			return ""
		}
		s = u.Host
	}
	if h, _, err := net.SplitHostPort(s); err == nil {
		s = h
	}
	return strings.ToLower(s)
}

func originPatterns(allowed []string) []string {
	var out []string
	for _, a := range allowed {
		if h := originHost(a); h != "" && h != "*" {
			out = append(out, h)
		}
	}
	slices.Sort(out)
	return slices.Compact(out)
}
