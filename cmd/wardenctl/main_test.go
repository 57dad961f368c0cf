package main

import (
	"bytes"
	"context"
	"errors"
	"os"
	"strings"
	"testing"

	paseto "aidanwoods.dev/go-paseto"

	"warden/internal/identity"
)

func TestRun_Usage(t *testing.T) {
	for _, args := range [][]string{nil, {"frobnicate"}} {
		var out, errOut bytes.Buffer
		err := run(context.Background(), args, strings.NewReader(""), &out, &errOut)
		if !errors.Is(err, errUsage) {
			t.Fatalf("args=%q err=%v want errUsage", args, err)
		}
	}

	var out bytes.Buffer
	if err := run(context.Background(), []string{"help"}, strings.NewReader(""), &out, &out); err != nil {
		t.Fatalf("help: %v", err)
	}
	if !strings.Contains(out.String(), "create-user") {
		t.Fatalf("help output=%q", out.String())
	}
}

func TestKeygen(t *testing.T) {
	var out bytes.Buffer
	if err := runKeygen(&out); err != nil {
		t.Fatalf("keygen: %v", err)
	}

	vals := map[string]string{}
	for line := range strings.Lines(out.String()) {
		k, v, ok := strings.Cut(strings.TrimSpace(line), "=")
		if !ok {
			t.Fatalf("bad line %q", line)
		}
		vals[k] = v
	}
	if _, err := paseto.NewV4AsymmetricSecretKeyFromHex(vals["WARDEN_PASETO_V4_SECRET_KEY_HEX"]); err != nil {
		t.Fatalf("paseto key: %v", err)
	}
	if got := len(vals["WARDEN_TOKEN_HMAC_KEY"]); got != 64 {
		t.Fatalf("hmac key len=%d want=64", got)
	}
}

func TestParseCreateUser(t *testing.T) {
	cases := []struct {
		name    string
		args    []string
		want    []identity.Role
		wantErr bool
	}{
		{name: "default role", args: []string{"-username", "bob"}, want: []identity.Role{identity.RoleEmployee}},
		{name: "admin flag", args: []string{"-username", "bob", "-admin"}, want: []identity.Role{identity.RoleEmployee, identity.RoleAdmin}},
		{name: "role list", args: []string{"-username", "bob", "-role", "manager, ROLE_OH_PROFESSIONAL"}, want: []identity.Role{identity.RoleManager, identity.RoleOHProfessional}},
		{name: "missing username", args: []string{"-role", "manager"}, wantErr: true},
		{name: "unknown role", args: []string{"-username", "bob", "-role", "janitor"}, wantErr: true},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			var errOut bytes.Buffer
			got, err := parseCreateUser(tc.args, &errOut)
			if tc.wantErr {
				if err == nil {
					t.Fatalf("expected error, got %+v", got)
				}
				return
			}
			if err != nil {
				t.Fatalf("parse: %v", err)
			}
			if got.username != "bob" {
				t.Fatalf("username=%q", got.username)
			}
			for _, r := range tc.want {
				if !identity.HasRole(got.roles, r) {
					t.Fatalf("roles=%v missing %s", got.roles, r)
				}
			}
			if len(got.roles) != len(tc.want) {
				t.Fatalf("roles=%v want=%v", got.roles, tc.want)
			}
		})
	}
}

func TestParseResetToken(t *testing.T) {
	var errOut bytes.Buffer
	email, err := parseResetToken([]string{"-email", "alice@example.com"}, &errOut)
	if err != nil || email != "alice@example.com" {
		t.Fatalf("email=%q err=%v", email, err)
	}

	for _, args := range [][]string{nil, {"-email", "  "}} {
		if _, err := parseResetToken(args, &errOut); !errors.Is(err, errUsage) {
			t.Fatalf("args=%q err=%v want errUsage", args, err)
		}
	}
}

func TestRun_ResetTokenNeedsDatabase(t *testing.T) {
	t.Setenv("WARDEN_DATABASE_URL", "")
	t.Setenv("WARDEN_SESSION_STORE", "")
	t.Setenv("WARDEN_KAFKA_BROKERS", "")

	var out, errOut bytes.Buffer
	err := run(context.Background(), []string{"reset-token", "-email", "alice@example.com"}, strings.NewReader(""), &out, &errOut)
	if err == nil || !strings.Contains(err.Error(), "WARDEN_DATABASE_URL") {
		t.Fatalf("err=%v, want missing database error", err)
	}
	if out.Len() != 0 {
		t.Fatalf("unexpected output %q", out.String())
	}
}

func TestPromptPassword_Piped(t *testing.T) {
	var w bytes.Buffer
	got, err := promptPassword(strings.NewReader("Str0ng-Passw0rd!\r\nignored\n"), &w)
	if err != nil {
		t.Fatalf("prompt: %v", err)
	}
	if got != "Str0ng-Passw0rd!" {
		t.Fatalf("password=%q", got)
	}

	got, err = promptPassword(strings.NewReader("no-newline"), &w)
	if err != nil || got != "no-newline" {
		t.Fatalf("password=%q err=%v", got, err)
	}

	if _, err := promptPassword(strings.NewReader(""), &w); err == nil {
		t.Fatal("expected error on empty input")
	}
}

func TestPromptPassword_Terminal(t *testing.T) {
	origRead, origTerm := readPassword, isTerminal
	t.Cleanup(func() { readPassword, isTerminal = origRead, origTerm })
	isTerminal = func(int) bool { return true }

	answers := [][]byte{[]byte("first"), []byte("first")}
	readPassword = func(int) ([]byte, error) {
		a := answers[0]
		answers = answers[1:]
		return a, nil
	}

	var w bytes.Buffer
	got, err := promptPassword(os.Stdin, &w)
	if err != nil || got != "first" {
		t.Fatalf("password=%q err=%v", got, err)
	}
	if !strings.Contains(w.String(), "Repeat password: ") {
		t.Fatalf("prompt output=%q", w.String())
	}

	answers = [][]byte{[]byte("first"), []byte("second")}
	if _, err := promptPassword(os.Stdin, &w); !errors.Is(err, errPasswordMismatch) {
		t.Fatalf("err=%v want mismatch", err)
	}
}
