// Package output presents accepted results: the transcript file, console
// lines, an optional per-result command, and session statistics.
package output

import (
	"fmt"
	"strings"
	"time"

	"github.com/rbright/steno/internal/pipeline"
)

// FormatTimestamp renders a stream offset as HH:MM:SS, truncating fractions.
func FormatTimestamp(seconds float64) string {
	if seconds < 0 {
		seconds = 0
	}
	total := int(seconds)
	return fmt.Sprintf("%02d:%02d:%02d", total/3600, (total%3600)/60, total%60)
}

// FormatLine renders one result as "[HH:MM:SS] text", with " (conf: 0.80)"
// appended in verbose mode.
func FormatLine(r pipeline.Result, timestamps bool, verbose bool) string {
	var b strings.Builder
	if timestamps && r.Timestamp >= 0 {
		b.WriteString("[")
		b.WriteString(FormatTimestamp(r.Timestamp))
		b.WriteString("] ")
	}
	b.WriteString(r.Text)
	if verbose && r.Confidence > 0 {
		fmt.Fprintf(&b, " (conf: %.2f)", r.Confidence)
	}
	return b.String()
}

// FormatStats renders the running totals.
func FormatStats(s Stats, elapsed time.Duration) string {
	return fmt.Sprintf("Stats: %d transcriptions, %d total chunks, %ds elapsed",
		s.Transcriptions, s.Total, int64(elapsed/time.Second))
}
