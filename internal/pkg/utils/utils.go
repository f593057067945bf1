package utils

import (
	"crypto/rand"
	"fmt"
	"math/big"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
)

var (
	serviceNameRe = regexp.MustCompile(`^[a-zA-Z0-9_-]{3,24}$`)
	whitespaceRe  = regexp.MustCompile(`\s+`)
	slugStripRe   = regexp.MustCompile(`[^a-z0-9_-]`)
)

// GenerateRequestID generates a UUID v4 string.
func GenerateRequestID() string {
	return uuid.New().String()
}

// GenerateHashID builds the merchant order reference sent to the gateway,
// e.g. purchase-1718000000000-123456-x7k2.
func GenerateHashID(prefix string, telegramID int64, now time.Time) string {
	return fmt.Sprintf("%s-%d-%d-%s", prefix, now.UnixMilli(), telegramID, RandomCode(4))
}

// RandomCode generates a random lowercase alphanumeric code of given length.
func RandomCode(length int) string {
	const charset = "abcdefghijklmnopqrstuvwxyz0123456789"
	b := make([]byte, length)
	for i := range b {
		n, err := rand.Int(rand.Reader, big.NewInt(int64(len(charset))))
		if err != nil {
			// crypto/rand failing is unrecoverable; fall back to uuid entropy.
			return strings.ReplaceAll(uuid.NewString(), "-", "")[:length]
		}
		b[i] = charset[n.Int64()]
	}
	return string(b)
}

// ValidServiceName reports whether a trimmed name matches the allowed pattern.
func ValidServiceName(name string) bool {
	return serviceNameRe.MatchString(name)
}

// Slugify lowercases a service name for use inside a remote username.
func Slugify(name string) string {
	s := strings.ToLower(strings.TrimSpace(name))
	s = whitespaceRe.ReplaceAllString(s, "-")
	s = slugStripRe.ReplaceAllString(s, "")
	if len(s) > 24 {
		s = s[:24]
	}
	return s
}

// RemoteUsername builds a panel username unique across users and retries.
func RemoteUsername(telegramID int64, serviceName string) string {
	return fmt.Sprintf("tg_%d-%s-%s", telegramID, Slugify(serviceName), RandomCode(4))
}

// FormatBytes converts bytes to human-readable format.
func FormatBytes(bytes int64) string {
	if bytes <= 0 {
		return "0 B"
	}
	units := []string{"B", "KB", "MB", "GB", "TB"}
	size := float64(bytes)
	i := 0
	for size >= 1024 && i < len(units)-1 {
		size /= 1024
		i++
	}
	return fmt.Sprintf("%.2f %s", size, units[i])
}

// ConvertPersianToEnglish converts Persian/Arabic numerals to English.
func ConvertPersianToEnglish(s string) string {
	var result strings.Builder
	for _, r := range s {
		switch {
		case r >= '۰' && r <= '۹':
			result.WriteRune(r - '۰' + '0')
		case r >= '٠' && r <= '٩':
			result.WriteRune(r - '٠' + '0')
		default:
			result.WriteRune(r)
		}
	}
	return result.String()
}

// ParseAmount parses user typed numbers, accepting Persian digits and
// thousands separators.
func ParseAmount(s string) (int64, error) {
	s = ConvertPersianToEnglish(strings.TrimSpace(s))
	s = strings.NewReplacer(",", "", "٬", "", "_", "").Replace(s)
	return strconv.ParseInt(s, 10, 64)
}

// ParseUint parses an id argument.
func ParseUint(s string) (uint, bool) {
	v, err := strconv.ParseUint(strings.TrimSpace(ConvertPersianToEnglish(s)), 10, 64)
	if err != nil || v == 0 {
		return 0, false
	}
	return uint(v), true
}

// FormatNumber adds comma separators to a number.
func FormatNumber(n int64) string {
	s := strconv.FormatInt(n, 10)
	neg := false
	if s[0] == '-' {
		neg = true
		s = s[1:]
	}
	if len(s) <= 3 {
		if neg {
			return "-" + s
		}
		return s
	}
	var result strings.Builder
	for i, c := range s {
		if i > 0 && (len(s)-i)%3 == 0 {
			result.WriteRune(',')
		}
		result.WriteRune(c)
	}
	if neg {
		return "-" + result.String()
	}
	return result.String()
}

// FormatTomans renders an amount for messages.
func FormatTomans(n int64) string {
	return FormatNumber(n) + " تومان"
}
