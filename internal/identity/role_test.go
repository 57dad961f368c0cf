package identity

import (
	"errors"
	"slices"
	"testing"
)

func TestParseRole(t *testing.T) {
	t.Parallel()

	cases := []struct {
		in      string
		want    Role
		wantErr bool
	}{
		{in: "EMPLOYEE", want: RoleEmployee},
		{in: "ROLE_ADMIN", want: RoleAdmin},
		{in: " role_manager ", want: RoleManager},
		{in: "oh_professional", want: RoleOHProfessional},
		{in: "SUPERUSER", wantErr: true},
		{in: "", wantErr: true},
	}

	for _, tc := range cases {
		got, err := ParseRole(tc.in)
		if tc.wantErr {
			if !errors.Is(err, ErrUnknownRole) {
				t.Fatalf("ParseRole(%q) err=%v want ErrUnknownRole", tc.in, err)
			}
			continue
		}
		if err != nil || got != tc.want {
			t.Fatalf("ParseRole(%q)=(%q,%v) want %q", tc.in, got, err, tc.want)
		}
	}
}

func TestParseRoles_SortsAndDedupes(t *testing.T) {
	t.Parallel()

	got, err := ParseRoles([]string{"ROLE_MANAGER", "ADMIN", "manager"})
	if err != nil {
		t.Fatalf("ParseRoles: %v", err)
	}
	want := []Role{RoleAdmin, RoleManager}
	if !slices.Equal(got, want) {
		t.Fatalf("ParseRoles=%v want %v", got, want)
	}

	if _, err := ParseRoles([]string{"ADMIN", "ROOT"}); !errors.Is(err, ErrUnknownRole) {
		t.Fatalf("expected ErrUnknownRole, got %v", err)
	}
}

func TestRole_Authority(t *testing.T) {
	t.Parallel()

	if got := RoleOHProfessional.Authority(); got != "ROLE_OH_PROFESSIONAL" {
		t.Fatalf("Authority=%q", got)
	}
	if Role("ROOT").Valid() {
		t.Fatalf("ROOT must not be valid")
	}
}
