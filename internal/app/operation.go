package app

import (
	"fmt"
	"time"

	"fileshare/internal/fileshare"
)

// FormatOperation renders one journaled operation for `fileshare history`.
func FormatOperation(op *fileshare.OperationRecord) string {
	duration := "-"
	if op.FinishedAt != nil {
		duration = op.FinishedAt.Sub(op.StartedAt).Truncate(time.Millisecond).String()
	}
	file := op.FileName
	if file == "" {
		file = "-"
	}
	line := fmt.Sprintf("#%d  %-8s  %s  %-10s  %-7s  %-8s  %s",
		op.ID,
		op.Operation,
		op.StartedAt.Local().Format("2006-01-02 15:04:05"),
		op.Username,
		op.Status,
		duration,
		file,
	)
	if op.Size > 0 {
		line += "  " + fileshare.FormatSize(float64(op.Size))
	}
	if op.Status == fileshare.StatusError && op.Message != "" {
		line += "  (" + op.Message + ")"
	}
	return line
}
