package logger

import "strings"

const (
	// LevelDebug represents the debug severity level name.
	LevelDebug = "DEBUG"
	// LevelInfo represents the info severity level name.
	LevelInfo = "INFO"
	// LevelWarn represents the warning severity level name.
	LevelWarn = "WARN"
	// LevelError represents the error severity level name.
	LevelError = "ERROR"
)

var allowedLevels = map[string]string{
	"debug":   LevelDebug,
	"info":    LevelInfo,
	"warn":    LevelWarn,
	"warning": LevelWarn,
	"error":   LevelError,
}

var allowedStatus = map[string]struct{}{
	"ok":           {},
	"fail":         {},
	"skip":         {},
	"retry":        {},
	"rate_limited": {},
	"cancelled":    {},
	"evicted":      {},
	"ignored":      {},
	"invalid":      {},
}

// Outcomes of a conversation step. Anything else is dropped from the record.
var allowedOutcome = map[string]struct{}{
	"ok":         {},
	"fail":       {},
	"created":    {},
	"appended":   {},
	"invalid":    {},
	"ignored":    {},
	"cancelled":  {},
	"reprompt":   {},
	"advanced":   {},
	"submitted":  {},
	"abandoned":  {},
	"idle":       {},
	"rate_limit": {},
}

func normalizeLevel(level string) string {
	if level == "" {
		return LevelInfo
	}
	if mapped, ok := allowedLevels[strings.ToLower(level)]; ok {
		return mapped
	}
	return strings.ToUpper(level)
}

func normalizeStatus(status string) string {
	return strings.ToLower(strings.TrimSpace(status))
}

func normalizeOutcome(outcome string) (string, bool) {
	outcome = strings.ToLower(strings.TrimSpace(outcome))
	if outcome == "" {
		return "", false
	}
	_, ok := allowedOutcome[outcome]
	return outcome, ok
}

var defaultKeyOrder = []string{
	"ts",
	"level",
	"component",
	"event",
	"status",
	"rid",
	"rid_full",
	"ts_unix_nano",
	"update_id",
	"user_id",
	"chat_id",
	"handler",
	"kind",
	"phase",
	"from",
	"to",
	"outcome",
	"duration_ms",
	"files",
	"paper",
	"size",
	"price",
	"repeats",
	"idle_ms",
	"order_id",
	"sessions",
	"reprompted",
	"evicted",
	"papers",
	"source",
	"path",
	"payload",
	"username",
	"action",
	"endpoint",
	"mode",
	"listen",
	"public_url",
	"http_code",
	"db",
	"host",
	"port",
	"err",
	"err_kind",
	"err_code",
	"cause",
	"attempt",
	"attempts",
	"elapsed_ms",
}
