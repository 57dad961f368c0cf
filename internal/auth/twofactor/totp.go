// Package twofactor implements TOTP second factors (RFC 6238: SHA-1, six digits,
// 30-second steps) and the two-step enrollment that activates them.
package twofactor

import (
	"crypto/rand"
	"encoding/base32"
	"strings"
	"time"

	"github.com/pquerna/otp"
	"github.com/pquerna/otp/totp"
)

const (
	// SecretBytes is the raw secret size (160 bits).
	SecretBytes = 20

	period = 30
)

var b32 = base32.StdEncoding.WithPadding(base32.NoPadding)

func opts(skew uint) totp.ValidateOpts {
	return totp.ValidateOpts{
		Period:    period,
		Skew:      skew,
		Digits:    otp.DigitsSix,
		Algorithm: otp.AlgorithmSHA1,
	}
}

// GenerateSecret returns a fresh base32 secret without padding, suitable for manual
// entry and for a provisioning URI.
func GenerateSecret() (string, error) {
	raw := make([]byte, SecretBytes)
	if _, err := rand.Read(raw); err != nil {
		return "", err
	}
	return b32.EncodeToString(raw), nil
}

// ProvisioningURI builds the otpauth:// URI an authenticator app scans.
// The result depends only on its inputs.
func ProvisioningURI(secret, account, issuer string) (string, error) {
	raw, err := b32.DecodeString(strings.ToUpper(strings.TrimSpace(secret)))
	if err != nil || len(raw) == 0 {
		return "", ErrInvalidSecret
	}
	key, err := totp.Generate(totp.GenerateOpts{
		Issuer:      issuer,
		AccountName: account,
		Period:      period,
		Secret:      raw,
		Digits:      otp.DigitsSix,
		Algorithm:   otp.AlgorithmSHA1,
	})
	if err != nil {
		return "", err
	}
	return key.URL(), nil
}

// ValidateCode reports whether code is the code for secret in the time step that
// contains now. Neighbouring steps are rejected.
func ValidateCode(secret, code string, now time.Time) bool {
	return validate(secret, code, now, 0)
}

// GenerateCode returns the code for secret at t.
func GenerateCode(secret string, t time.Time) (string, error) {
	return totp.GenerateCodeCustom(secret, t.UTC(), opts(0))
}

func validate(secret, code string, now time.Time, skew uint) bool {
	code = strings.TrimSpace(code)
	if secret == "" || len(code) != int(otp.DigitsSix) {
		return false
	}
	ok, err := totp.ValidateCustom(code, secret, now.UTC(), opts(skew))
	return err == nil && ok
}
