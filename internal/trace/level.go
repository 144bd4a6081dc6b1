package trace

import (
	"fmt"
	"strings"
)

// Level controls tracing verbosity.
type Level uint8

const (
	LevelOff   Level = iota // no tracing
	LevelError              // only dumped on abnormal exit
	LevelEvent              // editor events
	LevelRun                // validator runs
	LevelDebug              // everything including stream chunks
)

// String returns the string representation of Level.
func (l Level) String() string {
	switch l {
	case LevelOff:
		return "off"
	case LevelError:
		return "error"
	case LevelEvent:
		return "event"
	case LevelRun:
		return "run"
	case LevelDebug:
		return "debug"
	default:
		return "unknown"
	}
}

// ParseLevel converts a string to a Level.
func ParseLevel(s string) (Level, error) {
	switch strings.ToLower(s) {
	case "off", "":
		return LevelOff, nil
	case "error":
		return LevelError, nil
	case "event":
		return LevelEvent, nil
	case "run":
		return LevelRun, nil
	case "debug":
		return LevelDebug, nil
	default:
		return LevelOff, fmt.Errorf("invalid trace level: %q (expected: off|error|event|run|debug)", s)
	}
}

// ShouldEmit returns true if the given scope should emit at this level.
func (l Level) ShouldEmit(scope Scope) bool {
	switch l {
	case LevelOff:
		return false
	case LevelError:
		// the ring keeps everything up to runs so a dump has context
		return scope <= ScopeRun
	case LevelEvent:
		return scope <= ScopeDocument
	case LevelRun:
		return scope <= ScopeRun
	case LevelDebug:
		return true
	}
	return false
}
