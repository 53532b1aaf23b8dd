package series

import "time"

// isoMillis renders e.g. 2024-05-01T14:30:00.000Z
const isoMillis = "2006-01-02T15:04:05.000Z"

// FormatMillis renders an epoch-ms timestamp as UTC ISO-8601 with milliseconds.
func FormatMillis(ms int64) string {
	return time.UnixMilli(ms).UTC().Format(isoMillis)
}
