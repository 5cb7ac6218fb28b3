package segments

import (
	"fmt"
	"math"
)

// FormatTime renders seconds as MM:SS, or HH:MM:SS once the value reaches an
// hour. With prettify it renders "1h 2min 3s", "2min 3s" or "3s". Negative,
// zero and NaN values render as zero.
func FormatTime(seconds float64, prettify bool) string {
	if seconds <= 0 || math.IsNaN(seconds) || math.IsInf(seconds, 0) {
		if prettify {
			return "0s"
		}
		return "00:00"
	}
	total := int64(math.Floor(seconds))
	hours := total / 3600
	mins := (total % 3600) / 60
	secs := total % 60

	if prettify {
		switch {
		case hours > 0:
			return fmt.Sprintf("%dh %dmin %ds", hours, mins, secs)
		case mins > 0:
			return fmt.Sprintf("%dmin %ds", mins, secs)
		default:
			return fmt.Sprintf("%ds", secs)
		}
	}
	if hours > 0 {
		return fmt.Sprintf("%02d:%02d:%02d", hours, mins, secs)
	}
	return fmt.Sprintf("%02d:%02d", mins, secs)
}
