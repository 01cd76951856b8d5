package progress

import (
	"math"
	"strconv"
	"strings"
)

// ParseSize converts a number and a binary unit ("KiB", "MB", "B", ...) to bytes.
// Units are treated as powers of 1024 with or without the "i".
func ParseSize(value, unit string) (int64, bool) {
	v, err := strconv.ParseFloat(value, 64)
	if err != nil || v < 0 {
		return 0, false
	}

	mult, ok := unitMultiplier(unit)
	if !ok {
		return 0, false
	}

	return int64(math.Round(v * mult)), true
}

func unitMultiplier(unit string) (float64, bool) {
	unit = strings.ToUpper(strings.TrimSpace(unit))
	if unit == "" || unit == "B" {
		return 1, true
	}

	var exp float64
	switch unit[0] {
	case 'K':
		exp = 1
	case 'M':
		exp = 2
	case 'G':
		exp = 3
	case 'T':
		exp = 4
	default:
		return 0, false
	}

	return math.Pow(1024, exp), true
}
