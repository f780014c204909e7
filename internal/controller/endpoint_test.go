package controller

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	tcperr "tcpassist/internal/errors"
)

func TestParseEndpoint_Valid(t *testing.T) {
	tests := []struct {
		octets [4]string
		port   string
		want   string
	}{
		{[4]string{"192", "168", "0", "200"}, "7000", "192.168.0.200:7000"},
		{[4]string{"0", "0", "0", "0"}, "1", "0.0.0.0:1"},
		{[4]string{"255", "255", "255", "255"}, "65535", "255.255.255.255:65535"},
		{[4]string{" 10", "0 ", "\t0", "1\n"}, " 80 ", "10.0.0.1:80"},
		{[4]string{"010", "000", "0", "1"}, "0080", "10.0.0.1:80"},
	}
	for _, tt := range tests {
		ep, err := ParseEndpoint(tt.octets, tt.port)
		require.NoError(t, err, "%v:%s", tt.octets, tt.port)
		assert.Equal(t, tt.want, ep.String())
	}
}

func TestParseEndpoint_Invalid(t *testing.T) {
	tests := []struct {
		name   string
		octets [4]string
		port   string
		kind   tcperr.ValidationKind
		field  string
	}{
		{"empty octet", [4]string{"192", "", "0", "1"}, "7000", tcperr.EmptyField, "ip1"},
		{"blank octet", [4]string{"192", "168", "0", "   "}, "7000", tcperr.EmptyField, "ip3"},
		{"empty port", [4]string{"192", "168", "0", "1"}, "", tcperr.EmptyField, "port"},
		{"empty wins over range", [4]string{"999", "168", "0", "1"}, "", tcperr.EmptyField, "port"},
		{"octet too big", [4]string{"256", "0", "0", "1"}, "7000", tcperr.OutOfRange, "ip0"},
		{"negative octet", [4]string{"1", "-1", "0", "1"}, "7000", tcperr.OutOfRange, "ip1"},
		{"non-numeric octet", [4]string{"1", "2", "x", "1"}, "7000", tcperr.OutOfRange, "ip2"},
		{"port zero", [4]string{"1", "2", "3", "4"}, "0", tcperr.OutOfRange, "port"},
		{"port too big", [4]string{"1", "2", "3", "4"}, "70000", tcperr.OutOfRange, "port"},
		{"port text", [4]string{"1", "2", "3", "4"}, "http", tcperr.OutOfRange, "port"},
		{"inner space", [4]string{"1 2", "2", "3", "4"}, "80", tcperr.OutOfRange, "ip0"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ParseEndpoint(tt.octets, tt.port)
			var ve *tcperr.ValidationError
			require.ErrorAs(t, err, &ve)
			assert.Equal(t, tt.kind, ve.Kind)
			assert.Equal(t, tt.field, ve.Field)
		})
	}
}

func TestSplitHost(t *testing.T) {
	assert.Equal(t, [4]string{"192", "168", "0", "200"}, SplitHost("192.168.0.200"))
	assert.Equal(t, [4]string{"1", "2", "3", ""}, SplitHost("1.2.3"))
	assert.Equal(t, [4]string{"1", "2", "3", "4.5"}, SplitHost("1.2.3.4.5"))
	assert.Equal(t, [4]string{}, SplitHost(""))

	_, err := ParseEndpoint(SplitHost("1.2.3.4.5"), "80")
	var ve *tcperr.ValidationError
	require.ErrorAs(t, err, &ve)
	assert.Equal(t, "ip3", ve.Field)
}
