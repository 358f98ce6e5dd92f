package logger

import (
	"runtime"
	"strings"

	"github.com/sirupsen/logrus"
)

// frameSkip jumps past runtime.Callers, the hook itself, logrus
// internals and the wrapper methods in this package before the caller
// search starts.
const frameSkip = 6

// callerHook rewrites the caller logrus reports so log lines point at
// the real call site instead of a wrapper in this package.
type callerHook struct{}

func (h *callerHook) Levels() []logrus.Level {
	return logrus.AllLevels
}

func (h *callerHook) Fire(entry *logrus.Entry) error {
	pcs := make([]uintptr, 16)
	n := runtime.Callers(frameSkip, pcs)
	frames := runtime.CallersFrames(pcs[:n])
	for {
		frame, more := frames.Next()
		if frame.PC != 0 && !internalFrame(frame.Function) {
			entry.Caller = &frame
			return nil
		}
		if !more {
			return nil
		}
	}
}

func internalFrame(fn string) bool {
	return strings.Contains(fn, "sirupsen/logrus") || strings.Contains(fn, "quantmuse/logger")
}
