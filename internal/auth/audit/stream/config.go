package stream

import (
	"errors"
	"os"
	"strconv"
	"strings"
	"time"
)

const (
	Subprotocol = "warden.audit.v1"

	defaultSendQueue = 256
	minSendQueue     = 16

	maxFrameBytes = 4 << 10
	maxPingFails  = 3
)

// ErrConfig is returned for invalid configuration.
var ErrConfig = errors.New("invalid audit stream configuration")

// Config is the gateway policy.
type Config struct {
	// OriginRequired rejects handshakes without an Origin header.
	OriginRequired bool

	// AllowedOrigins lists full origins or bare hosts. "*" allows any.
	AllowedOrigins []string

	SendQueue         int
	WriteTimeout      time.Duration
	HeartbeatInterval time.Duration
	HeartbeatTimeout  time.Duration
}

func DefaultConfig() Config {
	return Config{
		OriginRequired:    true,
		AllowedOrigins:    []string{"http://localhost", "http://127.0.0.1"},
		SendQueue:         defaultSendQueue,
		WriteTimeout:      5 * time.Second,
		HeartbeatInterval: 25 * time.Second,
		HeartbeatTimeout:  5 * time.Second,
	}
}

// LoadConfigFromEnv loads gateway configuration.
//
// Optional:
//   - WARDEN_WS_ORIGIN_REQUIRED (bool)
//   - WARDEN_WS_ALLOWED_ORIGINS (comma separated)
//   - WARDEN_WS_SEND_QUEUE (>= 16)
//   - WARDEN_WS_WRITE_TIMEOUT, WARDEN_WS_HEARTBEAT_INTERVAL, WARDEN_WS_HEARTBEAT_TIMEOUT
func LoadConfigFromEnv() (Config, error) {
	cfg := DefaultConfig()

	if v := strings.TrimSpace(os.Getenv("WARDEN_WS_ORIGIN_REQUIRED")); v != "" {
		b, err := strconv.ParseBool(v)
		if err != nil {
			return Config{}, ErrConfig
		}
		cfg.OriginRequired = b
	}
	if v := strings.TrimSpace(os.Getenv("WARDEN_WS_ALLOWED_ORIGINS")); v != "" {
		cfg.AllowedOrigins = splitCSV(v)
	}
	if v := strings.TrimSpace(os.Getenv("WARDEN_WS_SEND_QUEUE")); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < minSendQueue {
			return Config{}, ErrConfig
		}
		cfg.SendQueue = n
	}
	for _, d := range []struct {
		key string
		dst *time.Duration
	}{
		{"WARDEN_WS_WRITE_TIMEOUT", &cfg.WriteTimeout},
		{"WARDEN_WS_HEARTBEAT_INTERVAL", &cfg.HeartbeatInterval},
		{"WARDEN_WS_HEARTBEAT_TIMEOUT", &cfg.HeartbeatTimeout},
	} {
		v := strings.TrimSpace(os.Getenv(d.key))
		if v == "" {
			continue
		}
		parsed, err := time.ParseDuration(v)
		if err != nil || parsed <= 0 {
			return Config{}, ErrConfig
		}
		*d.dst = parsed
	}
	return cfg, nil
}

func splitCSV(raw string) []string {
	parts := strings.Split(raw, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if s := strings.TrimSpace(p); s != "" {
			out = append(out, s)
		}
	}
	return out
}
