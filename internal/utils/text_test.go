package utils

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestFormatNumber(t *testing.T) {
	assert.Equal(t, "0", FormatNumber(0))
	assert.Equal(t, "999", FormatNumber(999))
	assert.Equal(t, "1.000", FormatNumber(1000))
	assert.Equal(t, "1.234.567", FormatNumber(1234567))
	assert.Equal(t, "-12.500", FormatNumber(-12500))
}

func TestFormatMinutes(t *testing.T) {
	assert.Equal(t, "45m", FormatMinutes(45))
	assert.Equal(t, "2h 5m", FormatMinutes(125))
	assert.Equal(t, "0m", FormatMinutes(-3))
}

func TestProgressBar(t *testing.T) {
	assert.Equal(t, "░░░░░░░░░░", ProgressBar(0, 100, 10))
	assert.Equal(t, "█████░░░░░", ProgressBar(50, 100, 10))
	assert.Equal(t, "██████████", ProgressBar(150, 100, 10))
	assert.Equal(t, "██████████", ProgressBar(5, 0, 10))
}

func TestTruncate(t *testing.T) {
	assert.Equal(t, "short", Truncate("short", 10))
	assert.Equal(t, "abcdefg...", Truncate("abcdefghijklmnop", 10))
}

func TestChannelSlug(t *testing.T) {
	assert.Equal(t, "max-mustermann", ChannelSlug("Max Mustermann"))
	assert.Equal(t, "user", ChannelSlug("!!!"))
	assert.Equal(t, "a-b", ChannelSlug("--A--B--"))
}

func TestSnowflakeRoundTrip(t *testing.T) {
	id, err := ParseSnowflake("123456789012345678")
	assert.NoError(t, err)
	assert.Equal(t, int64(123456789012345678), id)
	assert.Equal(t, "123456789012345678", FormatSnowflake(id))

	_, err = ParseSnowflake("abc")
	assert.Error(t, err)
	_, err = ParseSnowflake("-5")
	assert.Error(t, err)
}
