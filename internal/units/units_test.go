package units

import (
	"math/big"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParse(t *testing.T) {
	tests := []struct {
		name     string
		input    string
		decimals uint8
		want     string
		ok       bool
	}{
		{"whole amount", "1", 6, "1000000", true},
		{"fractional", "1.5", 6, "1500000", true},
		{"full precision", "0.000001", 6, "1", true},
		{"zero decimals token", "42", 0, "42", true},
		{"empty string is zero", "", 6, "0", true},
		{"zero", "0", 6, "0", true},
		{"excess precision truncated", "1.2345678", 6, "1234567", true},
		{"18 decimals", "2.5", 18, "2500000000000000000", true},

		{"negative rejected", "-1", 6, "", false},
		{"double dot rejected", "1.2.3", 6, "", false},
		{"letters rejected", "abc", 6, "", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := Parse(tt.input, tt.decimals)
			if !tt.ok {
				assert.False(t, ok)
				return
			}
			require.True(t, ok)
			assert.Equal(t, tt.want, got.String())
		})
	}
}

func TestFormat(t *testing.T) {
	tests := []struct {
		name     string
		amount   string
		decimals uint8
		want     string
	}{
		{"whole", "1000000", 6, "1"},
		{"fraction trims zeros", "1500000", 6, "1.5"},
		{"smallest unit", "1", 6, "0.000001"},
		{"zero", "0", 6, "0"},
		{"zero decimals", "42", 0, "42"},
		{"negative", "-1500000", 6, "-1.5"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			amt, ok := new(big.Int).SetString(tt.amount, 10)
			require.True(t, ok)
			assert.Equal(t, tt.want, Format(amt, tt.decimals))
		})
	}
}

func TestFormat_NilAmount(t *testing.T) {
	assert.Equal(t, "0", Format(nil, 6))
}

func TestParseFormatRoundTrip(t *testing.T) {
	for _, s := range []string{"1", "1.5", "0.000001", "123456.789"} {
		amt, ok := Parse(s, 6)
		require.True(t, ok, s)
		assert.Equal(t, s, Format(amt, 6))
	}
}

func TestFloat(t *testing.T) {
	amt, _ := new(big.Int).SetString("2500000", 10)
	assert.InDelta(t, 2.5, Float(amt, 6), 1e-9)
	assert.Equal(t, float64(0), Float(nil, 6))
	assert.InDelta(t, 42.0, Float(big.NewInt(42), 0), 1e-9)
}
