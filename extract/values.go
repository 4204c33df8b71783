package extract

import (
	"math"
	"net/url"
	"regexp"
	"strconv"
	"strings"

	"golang.org/x/text/width"
)

var countPattern = regexp.MustCompile(`(\d+(?:\.\d+)?)\s*([万千亿wWkK]?)`)

var countMultipliers = map[string]float64{
	"":  1,
	"千": 1_000,
	"k": 1_000,
	"K": 1_000,
	"万": 10_000,
	"w": 10_000,
	"W": 10_000,
	"亿": 100_000_000,
}

// ParseCount converts counter text such as "1.2万" or "3,456" to an integer.
// Text equal to placeholder, or text without digits, counts as zero. Values
// too large for an int are clamped to math.MaxInt.
func ParseCount(text, placeholder string) int {
	s := strings.TrimSpace(width.Narrow.String(text))
	if s == "" || (placeholder != "" && s == placeholder) {
		return 0
	}
	s = strings.ReplaceAll(s, ",", "")

	m := countPattern.FindStringSubmatch(s)
	if m == nil {
		return 0
	}
	v, err := strconv.ParseFloat(m[1], 64)
	if err != nil {
		return 0
	}
	f := math.Round(v * countMultipliers[m[2]])
	if f >= math.MaxInt {
		return math.MaxInt
	}
	return int(f)
}

// NormalizeURL turns a media attribute value into an absolute URL. srcset
// values keep only their first URL, and scheme-relative "//host/path"
// values become https. Anything that is not an absolute http(s) URL after
// that is rejected.
func NormalizeURL(raw string) (string, bool) {
	fields := strings.Fields(raw)
	if len(fields) == 0 {
		return "", false
	}
	s := strings.TrimSuffix(fields[0], ",")

	if strings.HasPrefix(s, "//") {
		s = "https:" + s
	}

	u, err := url.Parse(s)
	if err != nil || u.Host == "" || (u.Scheme != "http" && u.Scheme != "https") {
		return "", false
	}
	return s, true
}
