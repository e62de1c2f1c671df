package util //nolint:revive // package name util hosts shared input-normalization helpers

import (
	"strings"

	apperrors "github.com/openfax/faxd/internal/errors"
)

// NormalizeUSFaxNumber converts a user-entered US fax number to E.164 form.
// Accepts 10-digit numbers and 11-digit numbers with a leading 1; everything
// else is a validation error.
func NormalizeUSFaxNumber(raw string) (string, error) {
	var digits strings.Builder
	for _, r := range strings.TrimSpace(raw) {
		if r >= '0' && r <= '9' {
			digits.WriteRune(r)
		}
	}

	d := digits.String()
	switch {
	case len(d) == 10:
		return "+1" + d, nil
	case len(d) == 11 && strings.HasPrefix(d, "1"):
		return "+" + d, nil
	default:
		return "", apperrors.ValidationField("destination_fax",
			"invalid US fax number; use a 10-digit US number")
	}
}
