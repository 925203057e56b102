package domain

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestNormalizeMsisdn(t *testing.T) {
	tests := []struct {
		name  string
		input string
		want  string
	}{
		{"leading zero", "0712345678", "254712345678"},
		{"already prefixed", "254712345678", "254712345678"},
		{"bare subscriber number", "712345678", "254712345678"},
		{"plus prefix", "+254712345678", "254712345678"},
		{"surrounding spaces", " 0712345678 ", "254712345678"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, NormalizeMsisdn(tt.input))
		})
	}
}

func TestNormalizeMsisdnIsIdempotent(t *testing.T) {
	for _, input := range []string{"0712345678", "254712345678", "712345678"} {
		once := NormalizeMsisdn(input)
		assert.Equal(t, once, NormalizeMsisdn(once), "input %q", input)
	}
}
