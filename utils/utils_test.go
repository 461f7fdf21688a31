package utils

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSlugify(t *testing.T) {
	assert.Equal(t, "classic-white-shirt", Slugify("Classic White Shirt"))
	assert.Equal(t, "caf-premium", Slugify("  Café   Premium!  "))
	assert.Equal(t, "a-b-c", Slugify("a---b___c"))
	assert.Equal(t, "", Slugify("!!!"))
}

func TestGenerateRandomDigitString(t *testing.T) {
	otp := GenerateRandomDigitString(6)
	require.Len(t, otp, 6)
	for _, c := range otp {
		assert.True(t, c >= '0' && c <= '9')
	}
}

func TestSanitizeFilename(t *testing.T) {
	assert.Equal(t, "my_file.jpg", SanitizeFilename("my file.jpg"))
	assert.NotContains(t, SanitizeFilename("../../etc/passwd"), "/")
}
