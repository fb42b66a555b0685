package masking

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestMaskPII(t *testing.T) {
	in := "mensaje de +5491112345001 (maria.garcia@example.com)"
	out := MaskPII(in)
	assert.NotContains(t, out, "+5491112345001")
	assert.NotContains(t, out, "maria.garcia@example.com")
	assert.Contains(t, out, "+54")
	assert.Contains(t, out, "01")
}

func TestMaskHandle(t *testing.T) {
	assert.Equal(t, "+54********01", MaskHandle("+5491112345001"))
	assert.Equal(t, "***", MaskHandle("+54"))
}
