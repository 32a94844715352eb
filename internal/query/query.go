// Package query encodes user-authored query expressions for use as
// identifiers and URL path segments.
//
// Forward slashes are replaced by the literal marker "_slash_" before
// URI component encoding, so an encoded query never contains a path
// separator, even after a proxy has unescaped it.
package query

import (
	"fmt"
	"net/url"
	"strings"
)

// SlashMarker replaces "/" in encoded queries.
const SlashMarker = "_slash_"

const upperhex = "0123456789ABCDEF"

// Encode escape-encodes a query: "/" becomes SlashMarker, then every byte
// outside the URI component unreserved set is percent-encoded.
func Encode(q string) string {
	q = strings.ReplaceAll(q, "/", SlashMarker)

	var b strings.Builder
	b.Grow(len(q))
	for i := 0; i < len(q); i++ {
		c := q[i]
		if unreserved(c) {
			b.WriteByte(c)
			continue
		}
		b.WriteByte('%')
		b.WriteByte(upperhex[c>>4])
		b.WriteByte(upperhex[c&15])
	}
	return b.String()
}

// Decode reverses Encode.
func Decode(s string) (string, error) {
	s = strings.ReplaceAll(s, SlashMarker, "/")
	out, err := url.PathUnescape(s)
	if err != nil {
		return "", fmt.Errorf("invalid encoded query %q: %w", s, err)
	}
	return out, nil
}

// unreserved matches the set left alone by JavaScript's encodeURIComponent.
func unreserved(c byte) bool {
	switch {
	case 'a' <= c && c <= 'z', 'A' <= c && c <= 'Z', '0' <= c && c <= '9':
		return true
	}
	switch c {
	case '-', '_', '.', '!', '~', '*', '\'', '(', ')':
		return true
	}
	return false
}
