package fileshare

import "fmt"

var sizeUnits = []string{"B", "KB", "MB", "GB", "TB"}

// FormatSize renders a byte count with two decimals in the largest unit
// that keeps the value below 1024, e.g. "1.50 KB".
func FormatSize(n float64) string {
	unit := 0
	for n >= 1024 && unit < len(sizeUnits)-1 {
		n /= 1024
		unit++
	}
	return fmt.Sprintf("%.2f %s", n, sizeUnits[unit])
}
