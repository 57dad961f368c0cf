package password

import (
	"unicode"
	"unicode/utf8"
)

// Validate checks password against the policy. Length is counted in runes.
func (c Config) Validate(password string) error {
	n := utf8.RuneCountInString(password)
	if n < c.Policy.MinLength {
		return ErrPasswordTooShort
	}
	if n > c.Policy.MaxLength {
		return ErrPasswordTooLong
	}
	if c.Policy.RequireCharClasses && !hasAllClasses(password) {
		return ErrMissingCharClass
	}
	return nil
}

func hasAllClasses(pw string) bool {
	var digit, lower, upper, symbol bool
	for _, r := range pw {
		switch {
		case unicode.IsDigit(r):
			digit = true
		case unicode.IsLower(r):
			lower = true
		case unicode.IsUpper(r):
			upper = true
		case unicode.IsPunct(r), unicode.IsSymbol(r):
			symbol = true
		}
	}
	return digit && lower && upper && symbol
}
