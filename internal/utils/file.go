package utils

import (
	"os"
	"strconv"
	"time"
)

// ModTime returns the modification time of path and whether it exists
func ModTime(path string) (time.Time, bool) {
	info, err := os.Stat(path)
	if err != nil {
		return time.Time{}, false
	}

	return info.ModTime(), true
}

// Exists reports whether path exists
func Exists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}

// FormatSize renders a byte count in KB the way build summaries print it
func FormatSize(n int64) string {
	return strconv.FormatFloat(float64(n)/1024, 'f', 1, 64) + " KB"
}
