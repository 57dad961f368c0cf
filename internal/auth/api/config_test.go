package authapi

import "testing"

func TestLoadConfigFromEnv(t *testing.T) {
	tests := []struct {
		name string
		env  map[string]string
		want Config
	}{
		{
			name: "defaults",
			want: DefaultConfig(),
		},
		{
			name: "overrides",
			env: map[string]string{
				"WARDEN_AUTH_TRUST_PROXY":    "true",
				"WARDEN_AUTH_MAX_BODY_BYTES": "2048",
				"WARDEN_AUTH_ALLOW_SIGNUP":   "false",
			},
			want: Config{TrustProxy: true, MaxBodyBytes: 2048, AllowSignup: false},
		},
		{
			name: "garbage falls back",
			env: map[string]string{
				"WARDEN_AUTH_TRUST_PROXY":    "maybe",
				"WARDEN_AUTH_MAX_BODY_BYTES": "-1",
			},
			want: DefaultConfig(),
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			for _, k := range []string{"WARDEN_AUTH_TRUST_PROXY", "WARDEN_AUTH_MAX_BODY_BYTES", "WARDEN_AUTH_ALLOW_SIGNUP"} {
				t.Setenv(k, "")
			}
			for k, v := range tc.env {
				t.Setenv(k, v)
			}
			if got := LoadConfigFromEnv(); got != tc.want {
				t.Fatalf("LoadConfigFromEnv()=%+v, want %+v", got, tc.want)
			}
		})
	}
}
