package model

import "strings"

// Level is the severity of a log record.
type Level string

const (
	LevelError Level = "error"
	LevelWarn  Level = "warn"
	LevelInfo  Level = "info"
	LevelDebug Level = "debug"
	LevelTrace Level = "trace"
)

// Levels lists every accepted level, most severe first.
var Levels = []Level{LevelError, LevelWarn, LevelInfo, LevelDebug, LevelTrace}

// Valid reports whether l is one of Levels.
func (l Level) Valid() bool {
	for _, v := range Levels {
		if l == v {
			return true
		}
	}
	return false
}

// ParseLevel converts a level name, accepting common upper-case and long forms
// such as "WARNING" or "ERR".
func ParseLevel(s string) (Level, bool) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "error", "err", "fatal", "critical":
		return LevelError, true
	case "warn", "warning":
		return LevelWarn, true
	case "info", "information":
		return LevelInfo, true
	case "debug":
		return LevelDebug, true
	case "trace":
		return LevelTrace, true
	default:
		return "", false
	}
}

func invalidLevelReason() string {
	names := make([]string, len(Levels))
	for i, l := range Levels {
		names[i] = string(l)
	}
	return "invalid log level. Must be one of: " + strings.Join(names, ", ")
}
