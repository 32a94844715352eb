package order

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestParseFloat(t *testing.T) {
	tests := []struct {
		in   string
		want float64
	}{
		{"3", 3},
		{"-2.5", -2.5},
		{"1.23e+05", 123000},
		{"  42", 42},
		{".5", 0.5},
		{"7.", 7},
		{"12abc", 12},
		{"1e", 1},
		{"Infinity", math.Inf(1)},
		{"-Infinity", math.Inf(-1)},
		{"1e999", math.Inf(1)},
	}

	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			assert.Equal(t, tt.want, ParseFloat(tt.in))
		})
	}
}

func TestParseFloat_NaN(t *testing.T) {
	for _, in := range []string{"", "NaN", "Array", "True", "abc", "-", ".", "e5", "inf"} {
		assert.True(t, math.IsNaN(ParseFloat(in)), "%q", in)
	}
}
