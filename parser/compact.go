package parser

import (
	"math"
	"regexp"
	"strconv"
	"strings"
)

// space also matches Unicode separators such as U+00A0, which rendered &nbsp; produces.
const space = `[\s\p{Z}]`

var compactPattern = regexp.MustCompile(`(\d[\d,]*)(\.\d+)?` + space + `*([km])?`)

// DecodeCompact converts a compact number ("56", "1,234", "1.2k", "3.4M") into an integer.
// The result is truncated toward zero. ok is false when no numeric pattern is found.
func DecodeCompact(text string) (int, bool) {
	t := strings.ToLower(strings.TrimSpace(text))
	m := compactPattern.FindStringSubmatch(t)
	if m == nil {
		return 0, false
	}

	whole := strings.ReplaceAll(m[1], ",", "")
	num, err := strconv.ParseFloat(whole+m[2], 64)
	if err != nil {
		return 0, false
	}

	switch m[3] {
	case "k":
		num *= 1000.0
	case "m":
		num *= 1000000.0
	}

	if math.IsInf(num, 0) || math.IsNaN(num) || num >= math.MaxInt64 {
		return 0, false
	}
	return int(num), true
}
