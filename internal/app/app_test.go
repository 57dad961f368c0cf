package app

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	paseto "aidanwoods.dev/go-paseto"

	"warden/internal/identity"
)

// clearAppEnv pins every variable LoadConfig reads so the host environment cannot leak in.
func clearAppEnv(t *testing.T) {
	t.Helper()
	for _, k := range []string{
		"WARDEN_DATABASE_URL",
		"WARDEN_SESSION_STORE",
		"WARDEN_REDIS_ADDR",
		"WARDEN_SQLITE_PATH",
		"WARDEN_KAFKA_BROKERS",
		"WARDEN_KAFKA_AUDIT_TOPIC",
		"WARDEN_KAFKA_RESET_TOPIC",
		"WARDEN_PASSWORD_RESET_TTL",
		"WARDEN_LOG_FORMAT",
	} {
		t.Setenv(k, "")
	}
}

func TestLoadConfig(t *testing.T) {
	cases := []struct {
		name      string
		env       map[string]string
		wantStore string
		wantErr   bool
	}{
		{name: "defaults to memory", wantStore: StoreMemory},
		{
			name:      "database selects postgres",
			env:       map[string]string{"WARDEN_DATABASE_URL": "postgres://localhost/warden"},
			wantStore: StorePostgres,
		},
		{
			name:      "explicit sqlite",
			env:       map[string]string{"WARDEN_SESSION_STORE": "SQLite", "WARDEN_SQLITE_PATH": "/tmp/s.db"},
			wantStore: StoreSQLite,
		},
		{
			name:      "redis with addr",
			env:       map[string]string{"WARDEN_SESSION_STORE": "redis", "WARDEN_REDIS_ADDR": "localhost:6379"},
			wantStore: StoreRedis,
		},
		{name: "redis without addr", env: map[string]string{"WARDEN_SESSION_STORE": "redis"}, wantErr: true},
		{name: "postgres without database", env: map[string]string{"WARDEN_SESSION_STORE": "postgres"}, wantErr: true},
		{name: "unknown store", env: map[string]string{"WARDEN_SESSION_STORE": "etcd"}, wantErr: true},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			clearAppEnv(t)
			for k, v := range tc.env {
				t.Setenv(k, v)
			}

			cfg, err := LoadConfig()
			if tc.wantErr {
				if !errors.Is(err, ErrConfig) {
					t.Fatalf("err=%v want ErrConfig", err)
				}
				return
			}
			if err != nil {
				t.Fatalf("LoadConfig: %v", err)
			}
			if cfg.SessionStore != tc.wantStore {
				t.Fatalf("store=%q want=%q", cfg.SessionStore, tc.wantStore)
			}
		})
	}
}

func TestLoadConfig_KafkaBrokers(t *testing.T) {
	clearAppEnv(t)
	t.Setenv("WARDEN_KAFKA_BROKERS", " k1:9092, ,k2:9092 ")

	cfg, err := LoadConfig()
	if err != nil {
		t.Fatalf("LoadConfig: %v", err)
	}
	if len(cfg.KafkaBrokers) != 2 || cfg.KafkaBrokers[0] != "k1:9092" || cfg.KafkaBrokers[1] != "k2:9092" {
		t.Fatalf("brokers=%q", cfg.KafkaBrokers)
	}
	if cfg.KafkaTopic != "warden.audit" {
		t.Fatalf("topic=%q", cfg.KafkaTopic)
	}
	if cfg.KafkaResetTopic != "warden.password_reset" {
		t.Fatalf("reset topic=%q", cfg.KafkaResetTopic)
	}
}

func TestLoadConfig_PasswordResetTTL(t *testing.T) {
	clearAppEnv(t)

	cfg, err := LoadConfig()
	if err != nil {
		t.Fatalf("LoadConfig: %v", err)
	}
	if cfg.PasswordResetTTL != identity.DefaultResetTTL {
		t.Fatalf("default ttl=%s", cfg.PasswordResetTTL)
	}

	t.Setenv("WARDEN_PASSWORD_RESET_TTL", "30m")
	cfg, err = LoadConfig()
	if err != nil {
		t.Fatalf("LoadConfig: %v", err)
	}
	if cfg.PasswordResetTTL != 30*time.Minute {
		t.Fatalf("ttl=%s, want 30m", cfg.PasswordResetTTL)
	}
}

func newTestApp(t *testing.T) *App {
	t.Helper()
	t.Setenv("WARDEN_TOKEN_ALGORITHM", "")
	t.Setenv("WARDEN_PASETO_V4_SECRET_KEY_HEX", paseto.NewV4AsymmetricSecretKey().ExportHex())
	t.Setenv("WARDEN_TOKEN_HMAC_KEY", "")
	t.Setenv("WARDEN_ARGON2_MEMORY_KIB", "8192")
	t.Setenv("WARDEN_ARGON2_ITERATIONS", "1")

	cfg := Config{
		SessionStore:   StoreMemory,
		AuditStream:    true,
		MetricsEnabled: true,
	}
	log := slog.New(slog.NewJSONHandler(io.Discard, nil))

	a, err := New(cfg, log)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = a.Close(ctx)
	})
	return a
}

func postJSON(t *testing.T, url string, body any) *http.Response {
	t.Helper()
	b, err := json.Marshal(body)
	if err != nil {
		t.Fatal(err)
	}
	res, err := http.Post(url, "application/json", bytes.NewReader(b))
	if err != nil {
		t.Fatalf("POST %s: %v", url, err)
	}
	return res
}

func TestApp_MemoryEndToEnd(t *testing.T) {
	a := newTestApp(t)
	srv := httptest.NewServer(a.Handler())
	defer srv.Close()

	res, err := http.Get(srv.URL + "/healthz")
	if err != nil {
		t.Fatal(err)
	}
	_ = res.Body.Close()
	if res.StatusCode != http.StatusOK {
		t.Fatalf("healthz status=%d", res.StatusCode)
	}
	if got := res.Header.Get("X-Content-Type-Options"); got != "nosniff" {
		t.Fatalf("nosniff header=%q", got)
	}

	creds := map[string]string{"username": "alice", "password": "Str0ng-Passw0rd!"}
	res = postJSON(t, srv.URL+"/auth/signup", creds)
	_ = res.Body.Close()
	if res.StatusCode != http.StatusCreated {
		t.Fatalf("signup status=%d", res.StatusCode)
	}

	res = postJSON(t, srv.URL+"/auth/login", creds)
	var login struct {
		Session struct {
			AccessToken  string `json:"access_token"`
			RefreshToken string `json:"refresh_token"`
		} `json:"session"`
	}
	err = json.NewDecoder(res.Body).Decode(&login)
	_ = res.Body.Close()
	if err != nil || res.StatusCode != http.StatusOK {
		t.Fatalf("login status=%d err=%v", res.StatusCode, err)
	}
	if login.Session.AccessToken == "" || login.Session.RefreshToken == "" {
		t.Fatalf("login returned empty tokens")
	}

	req, _ := http.NewRequest(http.MethodGet, srv.URL+"/me", nil)
	req.Header.Set("Authorization", "Bearer "+login.Session.AccessToken)
	res, err = http.DefaultClient.Do(req)
	if err != nil {
		t.Fatal(err)
	}
	_ = res.Body.Close()
	if res.StatusCode != http.StatusOK {
		t.Fatalf("me status=%d", res.StatusCode)
	}

	res, err = http.Get(srv.URL + "/metrics")
	if err != nil {
		t.Fatal(err)
	}
	body, _ := io.ReadAll(res.Body)
	_ = res.Body.Close()
	for _, want := range []string{"warden_auth_logins_total", "warden_http_requests_total"} {
		if !strings.Contains(string(body), want) {
			t.Fatalf("metrics missing %s", want)
		}
	}
}

func TestApp_AuditStreamRequiresOrigin(t *testing.T) {
	a := newTestApp(t)
	srv := httptest.NewServer(a.Handler())
	defer srv.Close()

	res, err := http.Get(srv.URL + "/audit/stream")
	if err != nil {
		t.Fatal(err)
	}
	_ = res.Body.Close()
	if res.StatusCode != http.StatusForbidden {
		t.Fatalf("status=%d want=%d", res.StatusCode, http.StatusForbidden)
	}
}

func TestApp_MetricsDisabled(t *testing.T) {
	t.Setenv("WARDEN_PASETO_V4_SECRET_KEY_HEX", paseto.NewV4AsymmetricSecretKey().ExportHex())
	t.Setenv("WARDEN_TOKEN_ALGORITHM", "")

	a, err := New(Config{SessionStore: StoreMemory}, slog.New(slog.NewJSONHandler(io.Discard, nil)))
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	defer func() { _ = a.Close(context.Background()) }()

	srv := httptest.NewServer(a.Handler())
	defer srv.Close()

	for path, want := range map[string]int{
		"/metrics":      http.StatusNotFound,
		"/audit/stream": http.StatusNotFound,
	} {
		res, err := http.Get(srv.URL + path)
		if err != nil {
			t.Fatal(err)
		}
		_ = res.Body.Close()
		if res.StatusCode != want {
			t.Fatalf("%s status=%d want=%d", path, res.StatusCode, want)
		}
	}
}

func TestNew_UnknownStoreFails(t *testing.T) {
	t.Setenv("WARDEN_PASETO_V4_SECRET_KEY_HEX", paseto.NewV4AsymmetricSecretKey().ExportHex())
	t.Setenv("WARDEN_TOKEN_ALGORITHM", "")

	_, err := New(Config{SessionStore: "etcd"}, slog.New(slog.NewJSONHandler(io.Discard, nil)))
	if !errors.Is(err, ErrConfig) {
		t.Fatalf("err=%v want ErrConfig", err)
	}
}
