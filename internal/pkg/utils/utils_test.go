package utils

import (
	"regexp"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSlugify(t *testing.T) {
	testCases := []struct {
		in   string
		want string
	}{
		{in: "My Service", want: "my-service"},
		{in: "  spaced   out  ", want: "spaced-out"},
		{in: "dots.and@signs", want: "dotsandsigns"},
		{in: "abcdefghijklmnopqrstuvwxyz0123", want: "abcdefghijklmnopqrstuvwx"},
	}
	for _, tc := range testCases {
		t.Run(tc.in, func(t *testing.T) {
			assert.Equal(t, tc.want, Slugify(tc.in))
		})
	}
}

func TestRemoteUsername(t *testing.T) {
	name := RemoteUsername(123456, "Home_VPN")
	assert.Regexp(t, regexp.MustCompile(`^tg_123456-home_vpn-[a-z0-9]{4}$`), name)
	assert.NotEqual(t, name, RemoteUsername(123456, "Home_VPN"))
}

func TestValidServiceName(t *testing.T) {
	assert.True(t, ValidServiceName("home_vpn-1"))
	assert.False(t, ValidServiceName("ab"))
	assert.False(t, ValidServiceName("has space"))
	assert.False(t, ValidServiceName("abcdefghijklmnopqrstuvwxy"))
}

func TestParseAmount(t *testing.T) {
	v, err := ParseAmount("۱۵۰,۰۰۰")
	require.NoError(t, err)
	assert.Equal(t, int64(150000), v)

	_, err = ParseAmount("abc")
	assert.Error(t, err)
}

func TestFormatNumber(t *testing.T) {
	assert.Equal(t, "0", FormatNumber(0))
	assert.Equal(t, "-500", FormatNumber(-500))
	assert.Equal(t, "130,000", FormatNumber(130000))
	assert.Equal(t, "-1,000,000", FormatNumber(-1000000))
}

func TestGenerateHashID(t *testing.T) {
	now := time.UnixMilli(1718000000000)
	assert.Regexp(t, regexp.MustCompile(`^wallet-1718000000000-42-[a-z0-9]{4}$`), GenerateHashID("wallet", 42, now))
}
