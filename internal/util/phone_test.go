package util_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	apperrors "github.com/openfax/faxd/internal/errors"
	"github.com/openfax/faxd/internal/util"
)

func TestNormalizeUSFaxNumber(t *testing.T) {
	cases := []struct {
		name  string
		input string
		want  string
	}{
		{name: "bare 10 digits", input: "5551234567", want: "+15551234567"},
		{name: "formatted", input: "(555) 123-4567", want: "+15551234567"},
		{name: "dots", input: "555.123.4567", want: "+15551234567"},
		{name: "11 digits with country code", input: "15551234567", want: "+15551234567"},
		{name: "plus one prefix", input: "+1 555 123 4567", want: "+15551234567"},
		{name: "surrounding whitespace", input: "  5551234567  ", want: "+15551234567"},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got, err := util.NormalizeUSFaxNumber(tc.input)
			require.NoError(t, err)
			assert.Equal(t, tc.want, got)
		})
	}
}

func TestNormalizeUSFaxNumberRejectsInvalid(t *testing.T) {
	cases := []struct {
		name  string
		input string
	}{
		{name: "empty", input: ""},
		{name: "too short", input: "123456"},
		{name: "too long", input: "555123456789"},
		{name: "11 digits wrong prefix", input: "25551234567"},
		{name: "letters only", input: "not a number"},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := util.NormalizeUSFaxNumber(tc.input)
			require.Error(t, err)
			assert.True(t, apperrors.IsValidation(err))
			assert.Equal(t, "destination_fax", apperrors.GetField(err))
		})
	}
}
