package twofactor

import (
	"errors"
	"testing"
)

func TestLoadConfigFromEnv(t *testing.T) {
	tests := []struct {
		name    string
		env     map[string]string
		want    func(Config) bool
		wantErr bool
	}{
		{
			name: "defaults",
			want: func(c Config) bool { return c.SkewSteps == 0 && c.Issuer == "warden" && c.EnableAttemptsPerMinute == 5 },
		},
		{
			name: "skew one",
			env:  map[string]string{"WARDEN_TOTP_SKEW_STEPS": "1", "WARDEN_TOTP_ISSUER": "Acme"},
			want: func(c Config) bool { return c.SkewSteps == 1 && c.Issuer == "Acme" },
		},
		{name: "skew too wide", env: map[string]string{"WARDEN_TOTP_SKEW_STEPS": "2"}, wantErr: true},
		{name: "skew negative", env: map[string]string{"WARDEN_TOTP_SKEW_STEPS": "-1"}, wantErr: true},
		{name: "bad rate", env: map[string]string{"WARDEN_TOTP_ENABLE_RATE_PER_MINUTE": "0"}, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			for _, k := range []string{"WARDEN_TOTP_SKEW_STEPS", "WARDEN_TOTP_ISSUER", "WARDEN_TOTP_ENABLE_RATE_PER_MINUTE", "WARDEN_TOTP_ENABLE_BURST"} {
				t.Setenv(k, "")
			}
			for k, v := range tt.env {
				t.Setenv(k, v)
			}

			cfg, err := LoadConfigFromEnv()
			if tt.wantErr {
				if !errors.Is(err, ErrConfig) {
					t.Fatalf("expected ErrConfig, got %v", err)
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if !tt.want(cfg) {
				t.Fatalf("unexpected config: %+v", cfg)
			}
		})
	}
}
