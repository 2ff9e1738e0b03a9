package countdown

import "fmt"

// FormatDuration renders seconds as MM:SS, or HH:MM:SS from one hour up.
// Negative input renders as 00:00.
func FormatDuration(seconds int) string {
	if seconds < 0 {
		seconds = 0
	}

	h := seconds / 3600
	m := (seconds % 3600) / 60
	s := seconds % 60

	if h >= 1 {
		return fmt.Sprintf("%02d:%02d:%02d", h, m, s)
	}
	return fmt.Sprintf("%02d:%02d", m, s)
}
