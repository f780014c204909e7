package controller

import (
	"strconv"
	"strings"

	"inet.af/netaddr"

	tcperr "tcpassist/internal/errors"
)

// Endpoint is a validated IPv4 address and non-zero port.
type Endpoint struct {
	netaddr.IPPort
}

// ParseEndpoint builds an Endpoint from four decimal octet fields and
// a decimal port field.  Surrounding whitespace is ignored.  Empty
// fields are reported before range errors, octets before the port.
func ParseEndpoint(octets [4]string, port string) (Endpoint, error) {
	fields := [5]string{}
	for i, o := range octets {
		fields[i] = strings.TrimSpace(o)
	}
	fields[4] = strings.TrimSpace(port)

	for i, f := range fields {
		if f == "" {
			return Endpoint{}, &tcperr.ValidationError{Kind: tcperr.EmptyField, Field: fieldName(i)}
		}
	}

	var ip [4]byte
	for i := 0; i < 4; i++ {
		v, err := strconv.Atoi(fields[i])
		if err != nil || v < 0 || v > 255 {
			return Endpoint{}, &tcperr.ValidationError{Kind: tcperr.OutOfRange, Field: fieldName(i), Value: fields[i]}
		}
		ip[i] = byte(v)
	}

	p, err := strconv.Atoi(fields[4])
	if err != nil || p < 1 || p > 65535 {
		return Endpoint{}, &tcperr.ValidationError{Kind: tcperr.OutOfRange, Field: "port", Value: fields[4]}
	}

	return Endpoint{netaddr.IPPortFrom(netaddr.IPv4(ip[0], ip[1], ip[2], ip[3]), uint16(p))}, nil
}

// SplitHost splits dotted-quad text into the four octet fields taken by
// ParseEndpoint.  Missing parts stay empty; anything past the third dot
// lands in the last field.
func SplitHost(host string) [4]string {
	var octets [4]string
	copy(octets[:], strings.SplitN(strings.TrimSpace(host), ".", 4))
	return octets
}

func fieldName(i int) string {
	if i == 4 {
		return "port"
	}
	return "ip" + strconv.Itoa(i)
}
