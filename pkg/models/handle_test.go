package models

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestNormalizeHandle(t *testing.T) {
	tests := []struct {
		name   string
		handle string
		want   string
	}{
		{"already normalized", "+5491112345001", "+5491112345001"},
		{"spaces stripped", "+54 9 11 1234 5001", "+5491112345001"},
		{"hyphens stripped", "+54-911-1234-5001", "+5491112345001"},
		{"mixed separators", "+54 911-1234 5001", "+5491112345001"},
		{"no plus", "5491112345001", "5491112345001"},
		{"interior plus dropped", "54+91112345001", "5491112345001"},
		{"empty", "", ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, NormalizeHandle(tt.handle))
		})
	}
}

func TestNormalizeHandleFixpoint(t *testing.T) {
	handles := []string{"+54 9 11 1234-5001", "+5491112345001", "11-4444 5555"}
	for _, h := range handles {
		once := NormalizeHandle(h)
		assert.Equal(t, once, NormalizeHandle(once))
	}
}

func TestFormatAmount(t *testing.T) {
	assert.Equal(t, "$132,000", FormatAmount(132000))
	assert.Equal(t, "$45,000", FormatAmount(45000))
	assert.Equal(t, "$950", FormatAmount(950))
	assert.Equal(t, "$1,250,000", FormatAmount(1250000))
	assert.Equal(t, "$0", FormatAmount(0))
}
