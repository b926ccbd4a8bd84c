package sandbox

import "strings"

// CleanLog normalizes sandbox output before it reaches the analyzer: lines
// that are carriage-return progress updates (renderer percentage bars, rate
// counters) are dropped, and the remaining lines are trimmed of surrounding
// whitespace. The operation is idempotent.
func CleanLog(log string) string {
	lines := strings.Split(log, "\n")
	cleaned := make([]string, 0, len(lines))
	for _, line := range lines {
		if strings.Contains(line, "\r") && (strings.Contains(line, "%|") || strings.Contains(line, "it/s]")) {
			continue
		}
		cleaned = append(cleaned, strings.TrimSpace(line))
	}
	return strings.Join(cleaned, "\n")
}
