package services

import (
	"math"
	"regexp"
	"strconv"
	"strings"
	"unicode"
)

const (
	// MinPlausibleCount filters out numbers too small to be an aggregate
	// play counter (track numbers, durations, likes).
	MinPlausibleCount = 1_000
	// MaxTimestampCount: anything above is almost certainly a misread
	// millisecond timestamp.
	MaxTimestampCount = 100_000_000_000
	// MaxTrackCount is the ceiling for a single track.
	MaxTrackCount = 10_000_000_000
)

// countRegexp captures a numeric literal and an optional k/m/b suffix.
var countRegexp = regexp.MustCompile(`(\d+(?:\.\d+)?|\.\d+)([kmb])?`)

var suffixMultiplier = map[string]int64{
	"k": 1_000,
	"m": 1_000_000,
	"b": 1_000_000_000,
}

// ParseCount turns display text such as "1.2M", "45,000" or "123K" into a
// count. Suffixed values are truncated, plain values rounded. It returns
// false when the text holds no numeric literal.
func ParseCount(text string) (int64, bool) {
	cleaned := strings.Map(func(r rune) rune {
		if r == ',' || unicode.IsSpace(r) {
			return -1
		}
		return unicode.ToLower(r)
	}, text)

	match := countRegexp.FindStringSubmatch(cleaned)
	if match == nil {
		return 0, false
	}
	literal, suffix := match[1], match[2]

	if suffix == "" {
		f, err := strconv.ParseFloat(literal, 64)
		if err != nil {
			return 0, false
		}
		return int64(math.Round(f)), true
	}
	return scaleTruncated(literal, suffixMultiplier[suffix])
}

// scaleTruncated multiplies a decimal literal by mult and truncates, using
// integer arithmetic so "1.2" * 1e6 is exactly 1200000.
func scaleTruncated(literal string, mult int64) (int64, bool) {
	intPart, fracPart, _ := strings.Cut(literal, ".")
	digits := intPart + fracPart
	if len(digits) > 9 {
		f, err := strconv.ParseFloat(literal, 64)
		if err != nil {
			return 0, false
		}
		return int64(f * float64(mult)), true
	}

	mantissa, err := strconv.ParseInt(digits, 10, 64)
	if err != nil {
		return 0, false
	}

	scale := int64(1)
	for range fracPart {
		scale *= 10
	}
	return mantissa * mult / scale, true
}

// IsPlausible reports whether a parsed count looks like a real play counter.
func IsPlausible(count int64) bool {
	if count < MinPlausibleCount {
		return false
	}
	if count > MaxTimestampCount {
		return false
	}
	if count > MaxTrackCount {
		return false
	}
	return true
}

// ParsePlausible parses text and applies IsPlausible. An unparseable text is
// never plausible.
func ParsePlausible(text string) (int64, bool) {
	n, ok := ParseCount(text)
	if !ok {
		return 0, false
	}
	return n, IsPlausible(n)
}

// HasDigit reports whether text contains at least one decimal digit.
func HasDigit(text string) bool {
	return strings.IndexFunc(text, unicode.IsDigit) >= 0
}
