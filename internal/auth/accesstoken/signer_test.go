package accesstoken

import (
	"errors"
	"slices"
	"strings"
	"testing"
	"time"

	paseto "aidanwoods.dev/go-paseto"

	"warden/internal/identity"
)

type testClock struct{ t time.Time }

func (c *testClock) Now() time.Time { return c.t }

func newSigners(t *testing.T, clk *testClock) map[string]Signer {
	t.Helper()

	pcfg := DefaultConfig()
	pcfg.PasetoV4SecretKeyHex = paseto.NewV4AsymmetricSecretKey().ExportHex()
	ps, err := New(pcfg, WithClock(clk.Now))
	if err != nil {
		t.Fatalf("paseto signer: %v", err)
	}

	jcfg := DefaultConfig()
	jcfg.Algorithm = AlgorithmHS256
	jcfg.JWTSecret = []byte(strings.Repeat("k", 32))
	js, err := New(jcfg, WithClock(clk.Now))
	if err != nil {
		t.Fatalf("jwt signer: %v", err)
	}

	return map[string]Signer{"paseto-v4": ps, "hs256": js}
}

func TestSigner_RoundTripAndExpiry(t *testing.T) {
	clk := &testClock{t: time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)}

	for name, s := range newSigners(t, clk) {
		t.Run(name, func(t *testing.T) {
			clk.t = time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)
			roles := []identity.Role{identity.RoleManager, identity.RoleEmployee}

			tok, issued, err := s.Issue("user-1", roles, 15*time.Minute)
			if err != nil {
				t.Fatalf("issue: %v", err)
			}
			if issued.TokenID == "" {
				t.Fatalf("expected token id")
			}

			got, err := s.Verify(tok)
			if err != nil {
				t.Fatalf("verify: %v", err)
			}
			if got.Subject != "user-1" || got.TokenID != issued.TokenID {
				t.Fatalf("unexpected claims: %+v", got)
			}
			want := []identity.Role{identity.RoleEmployee, identity.RoleManager}
			if !slices.Equal(got.Roles, want) {
				t.Fatalf("roles = %v, want %v", got.Roles, want)
			}
			if !got.ExpiresAt.Equal(issued.ExpiresAt) {
				t.Fatalf("exp = %v, want %v", got.ExpiresAt, issued.ExpiresAt)
			}

			clk.t = clk.t.Add(15*time.Minute - time.Second)
			if _, err := s.Verify(tok); err != nil {
				t.Fatalf("verify before expiry: %v", err)
			}

			clk.t = clk.t.Add(time.Second)
			got, err = s.Verify(tok)
			if !errors.Is(err, ErrExpired) {
				t.Fatalf("expected ErrExpired, got %v", err)
			}
			if got.TokenID != issued.TokenID {
				t.Fatalf("expired verify should still return token id")
			}
		})
	}
}

func TestSigner_Malformed(t *testing.T) {
	clk := &testClock{t: time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)}

	for name, s := range newSigners(t, clk) {
		t.Run(name, func(t *testing.T) {
			tok, _, err := s.Issue("user-1", []identity.Role{identity.RoleAdmin}, time.Minute)
			if err != nil {
				t.Fatalf("issue: %v", err)
			}

			for _, bad := range []string{"", "garbage", tok[:len(tok)-4] + "AAAA"} {
				if _, err := s.Verify(bad); !errors.Is(err, ErrMalformed) {
					t.Fatalf("Verify(%q) = %v, want ErrMalformed", bad, err)
				}
			}
		})
	}
}

func TestSigner_ForeignKeyRejected(t *testing.T) {
	clk := &testClock{t: time.Now().UTC()}
	a := newSigners(t, clk)
	b := newSigners(t, clk)

	tok, _, err := a["paseto-v4"].Issue("user-1", []identity.Role{identity.RoleEmployee}, time.Minute)
	if err != nil {
		t.Fatalf("issue: %v", err)
	}
	if _, err := b["paseto-v4"].Verify(tok); !errors.Is(err, ErrMalformed) {
		t.Fatalf("expected ErrMalformed for foreign key, got %v", err)
	}
}

func TestSigner_IssuerMismatch(t *testing.T) {
	clk := &testClock{t: time.Now().UTC()}
	secret := strings.Repeat("s", 40)

	cfgA := Config{Algorithm: AlgorithmHS256, Issuer: "a", JWTSecret: []byte(secret)}
	cfgB := Config{Algorithm: AlgorithmHS256, Issuer: "b", JWTSecret: []byte(secret)}
	sa, err := New(cfgA, WithClock(clk.Now))
	if err != nil {
		t.Fatal(err)
	}
	sb, err := New(cfgB, WithClock(clk.Now))
	if err != nil {
		t.Fatal(err)
	}

	tok, _, err := sa.Issue("user-1", []identity.Role{identity.RoleEmployee}, time.Minute)
	if err != nil {
		t.Fatal(err)
	}
	if _, err := sb.Verify(tok); !errors.Is(err, ErrMalformed) {
		t.Fatalf("expected ErrMalformed for issuer mismatch, got %v", err)
	}
}

func TestSigner_RejectsBadIssueInput(t *testing.T) {
	clk := &testClock{t: time.Now().UTC()}
	for name, s := range newSigners(t, clk) {
		if _, _, err := s.Issue(" ", nil, time.Minute); err == nil {
			t.Fatalf("%s: expected error for empty subject", name)
		}
		if _, _, err := s.Issue("u", nil, 0); err == nil {
			t.Fatalf("%s: expected error for zero ttl", name)
		}
	}
}
