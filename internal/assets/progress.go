package assets

import "fmt"

const sizeUnit = 1024.0

// formatBytes renders a byte count in the largest unit below 1024.
func formatBytes(v int64) string {
	units := []string{"B", "KB", "MB", "GB", "TB"}
	remaining := float64(v)
	if remaining < 0 {
		remaining = 0
	}
	for i, unit := range units {
		if remaining < sizeUnit || i == len(units)-1 {
			if unit == "B" {
				return fmt.Sprintf("%d %s", int64(remaining), unit)
			}
			return fmt.Sprintf("%.1f %s", remaining, unit)
		}
		remaining /= sizeUnit
	}
	return fmt.Sprintf("%.1f TB", remaining)
}

// downloadMessage builds the human-readable progress line for one asset.
func downloadMessage(label string, downloaded, total int64) string {
	if total > 0 {
		return fmt.Sprintf("Downloading %s: %s / %s", label, formatBytes(downloaded), formatBytes(total))
	}
	return fmt.Sprintf("Downloading %s: %s", label, formatBytes(downloaded))
}
