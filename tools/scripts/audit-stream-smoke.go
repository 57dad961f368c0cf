// Package main provides a CI-friendly smoke test for the warden admin audit stream.
//
// It validates:
//   - admin login over HTTP
//   - handshake + subprotocol selection with bearer auth
//   - hello frame
//   - a failed login being fanned out as a LOGIN_FAILURE entry
package main

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"net/url"
	"os"
	"strings"
	"time"

	"github.com/coder/websocket"

	"warden/internal/auth/audit"
	"warden/internal/auth/audit/stream"
)

const maxReadBytes = 1 << 20 // 1MiB

type smokeClient struct {
	conn  *websocket.Conn
	inbox chan stream.Envelope
	errCh chan error
}

func main() {
	var (
		baseURL  = flag.String("url", "http://127.0.0.1:8080", "warden base URL")
		origin   = flag.String("origin", "http://localhost", "Origin header to send (browser-like WS handshake)")
		username = flag.String("username", "admin", "admin username")
		password = flag.String("password", os.Getenv("WARDEN_SMOKE_PASSWORD"), "admin password (default $WARDEN_SMOKE_PASSWORD)")
		timeout  = flag.Duration("timeout", 7*time.Second, "Per-step timeout")
		verbose  = flag.Bool("v", false, "Verbose output")
	)
	flag.Parse()

	base, err := url.Parse(strings.TrimRight(*baseURL, "/"))
	if err != nil || (base.Scheme != "http" && base.Scheme != "https") || base.Host == "" {
		fatalf("invalid -url: %q", *baseURL)
	}
	if *password == "" {
		fatalf("missing -password")
	}

	root := context.Background()

	token := mustLogin(root, base, *username, *password, *timeout)
	c := mustConnect(root, wsURL(base), *origin, token, *timeout)
	defer closeWS(c.conn)

	hello := c.mustReadUntilType(root, stream.TypeHello, *timeout)
	var hp stream.HelloPayload
	if err := json.Unmarshal(hello.Payload, &hp); err != nil || hp.SubscriberID == "" {
		fatalf("bad hello payload: %s", hello.Payload)
	}
	if *verbose {
		fmt.Printf("connected: subscriber=%s origin=%q\n", hp.SubscriberID, *origin)
	}

	status := postLogin(root, base, *username, "definitely-not-the-password", *timeout, nil)
	if status != http.StatusUnauthorized {
		fatalf("failed login: status=%d want=%d", status, http.StatusUnauthorized)
	}

	for {
		env := c.mustReadUntilType(root, stream.TypeEntry, *timeout)
		var e audit.Entry
		if err := json.Unmarshal(env.Payload, &e); err != nil {
			fatalf("bad entry payload: %v", err)
		}
		if *verbose {
			fmt.Printf("entry: %s %s\n", e.Action, e.ID)
		}
		if e.Action == audit.ActionLoginFailure {
			fmt.Printf("OK: subscriber=%s entry=%s action=%s\n", hp.SubscriberID, e.ID, e.Action)
			return
		}
	}
}

func wsURL(base *url.URL) string {
	u := *base
	u.Scheme = "ws"
	if base.Scheme == "https" {
		u.Scheme = "wss"
	}
	u.Path = "/audit/stream"
	return u.String()
}

func postLogin(parent context.Context, base *url.URL, username, password string, stepTimeout time.Duration, out any) int {
	ctx, cancel := context.WithTimeout(parent, stepTimeout)
	defer cancel()

	body, _ := json.Marshal(map[string]string{"username": username, "password": password})
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, base.String()+"/auth/login", bytes.NewReader(body))
	if err != nil {
		fatalf("build login request: %v", err)
	}
	req.Header.Set("Content-Type", "application/json")

	res, err := http.DefaultClient.Do(req)
	if err != nil {
		fatalf("login request: %v", err)
	}
	defer func() { _ = res.Body.Close() }()

	if out != nil && res.StatusCode == http.StatusOK {
		if err := json.NewDecoder(res.Body).Decode(out); err != nil {
			fatalf("decode login response: %v", err)
		}
	}
	return res.StatusCode
}

func mustLogin(parent context.Context, base *url.URL, username, password string, stepTimeout time.Duration) string {
	var out struct {
		Session struct {
			AccessToken string `json:"access_token"`
		} `json:"session"`
	}
	if status := postLogin(parent, base, username, password, stepTimeout, &out); status != http.StatusOK {
		fatalf("admin login: status=%d", status)
	}
	if out.Session.AccessToken == "" {
		fatalf("admin login returned no access token")
	}
	return out.Session.AccessToken
}

func mustConnect(parent context.Context, wsURL, origin, token string, stepTimeout time.Duration) *smokeClient {
	ctx, cancel := context.WithTimeout(parent, stepTimeout)
	defer cancel()

	h := http.Header{}
	h.Set("Authorization", "Bearer "+token)
	if strings.TrimSpace(origin) != "" {
		h.Set("Origin", origin)
	}

	conn, resp, err := websocket.Dial(ctx, wsURL, &websocket.DialOptions{
		Subprotocols: []string{stream.Subprotocol},
		HTTPHeader:   h,
	})
	if resp != nil && resp.Body != nil {
		_ = resp.Body.Close()
	}
	if err != nil {
		fatalf("connect: %v", err)
	}
	if got := conn.Subprotocol(); got != stream.Subprotocol {
		fatalf("subprotocol mismatch: got=%q want=%q", got, stream.Subprotocol)
	}

	conn.SetReadLimit(maxReadBytes)

	c := &smokeClient{
		conn:  conn,
		inbox: make(chan stream.Envelope, 512),
		errCh: make(chan error, 1),
	}
	c.startReadLoop()
	return c
}

func (c *smokeClient) startReadLoop() {
	go func() {
		defer close(c.inbox)

		for {
			_, data, err := c.conn.Read(context.Background())
			if err != nil {
				c.fail(err)
				return
			}

			var env stream.Envelope
			if err := json.Unmarshal(data, &env); err != nil {
				c.fail(fmt.Errorf("bad json: %w", err))
				return
			}
			if env.V != stream.Version {
				c.fail(fmt.Errorf("bad envelope version: %d", env.V))
				return
			}

			select {
			case c.inbox <- env:
			default:
				c.fail(errors.New("inbox overflow: consumer too slow"))
				return
			}
		}
	}()
}

func (c *smokeClient) fail(err error) {
	select {
	case c.errCh <- err:
	default:
	}
}

func (c *smokeClient) mustReadUntilType(parent context.Context, wantType string, stepTimeout time.Duration) stream.Envelope {
	ctx, cancel := context.WithTimeout(parent, stepTimeout)
	defer cancel()

	for {
		select {
		case <-ctx.Done():
			fatalf("timeout waiting for %q: %v", wantType, ctx.Err())
		case err := <-c.errCh:
			fatalf("connection error while waiting for %q: %v", wantType, err)
		case env, ok := <-c.inbox:
			if !ok {
				fatalf("connection closed while waiting for %q", wantType)
			}
			if env.Type == wantType {
				return env
			}
			if env.Type == stream.TypeError {
				var ep stream.ErrorPayload
				_ = json.Unmarshal(env.Payload, &ep)
				fatalf("server error: code=%q msg=%q", ep.Code, ep.Message)
			}
		}
	}
}

func closeWS(conn *websocket.Conn) {
	_ = conn.Close(websocket.StatusNormalClosure, "bye")
}

func fatalf(format string, args ...any) {
	fmt.Fprintf(os.Stderr, "FAIL: "+format+"\n", args...)
	os.Exit(1)
}
