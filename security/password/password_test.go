package password

import (
	"errors"
	"testing"
)

// fastConfig keeps Argon2 cheap so the suite stays quick.
func fastConfig() Config {
	cfg := DefaultConfig()
	cfg.Params.MemoryKiB = 8 * 1024
	cfg.Params.Iterations = 1
	cfg.Params.Parallelism = 1
	return cfg
}

func TestHashAndVerify_OK(t *testing.T) {
	cfg := fastConfig()

	h, err := cfg.Hash("Correct-Horse-9")
	if err != nil {
		t.Fatalf("Hash error: %v", err)
	}

	ok, err := cfg.Verify(h, "Correct-Horse-9")
	if err != nil {
		t.Fatalf("Verify error: %v", err)
	}
	if !ok {
		t.Fatalf("expected match")
	}
}

func TestVerify_WrongPassword(t *testing.T) {
	cfg := fastConfig()

	h, err := cfg.Hash("Correct-Horse-9")
	if err != nil {
		t.Fatalf("Hash error: %v", err)
	}

	ok, err := cfg.Verify(h, "Wrong-Horse-9")
	if err != nil {
		t.Fatalf("Verify error: %v", err)
	}
	if ok {
		t.Fatalf("expected mismatch")
	}
}

func TestVerify_InvalidHash(t *testing.T) {
	cfg := fastConfig()

	for _, in := range []string{
		"not-a-hash",
		"$argon2i$v=19$m=8192,t=1,p=1$c2FsdHNhbHQ$a2V5a2V5a2V5a2V5a2V5",
		"$argon2id$v=19$m=0,t=1,p=1$c2FsdHNhbHQ$a2V5a2V5a2V5a2V5a2V5",
	} {
		ok, err := cfg.Verify(in, "whatever")
		if !errors.Is(err, ErrInvalidHash) || ok {
			t.Fatalf("Verify(%q)=(%v,%v) want (false, ErrInvalidHash)", in, ok, err)
		}
	}
}

func TestVerify_RejectsOversizedCost(t *testing.T) {
	cheap := fastConfig()
	costly := fastConfig()
	costly.Params.Iterations = 5

	h, err := costly.HashUnchecked("x")
	if err != nil {
		t.Fatalf("HashUnchecked error: %v", err)
	}
	if _, err := cheap.Verify(h, "x"); !errors.Is(err, ErrInvalidHash) {
		t.Fatalf("expected ErrInvalidHash, got %v", err)
	}
}

func TestValidate_Policy(t *testing.T) {
	cfg := DefaultConfig()

	cases := []struct {
		in   string
		want error
	}{
		{in: "Sh0rt!", want: ErrPasswordTooShort},
		{in: "alllowercase1!", want: ErrMissingCharClass},
		{in: "NoDigitsHere!", want: ErrMissingCharClass},
		{in: "NoSymbols123", want: ErrMissingCharClass},
		{in: "Correct-Horse-9", want: nil},
	}
	for _, tc := range cases {
		if err := cfg.Validate(tc.in); !errors.Is(err, tc.want) {
			t.Fatalf("Validate(%q)=%v want %v", tc.in, err, tc.want)
		}
	}

	cfg.Policy.MaxLength = 10
	if err := cfg.Validate("Correct-Horse-9"); !errors.Is(err, ErrPasswordTooLong) {
		t.Fatalf("expected ErrPasswordTooLong, got %v", err)
	}
}
