// Package alert defines the sink for the engine's fire-and-forget side
// effects: a vibration request and a user-visible message. Sink failures
// are not actionable and must never feed back into alert state.
package alert

import "log/slog"

// Sink receives alert side effects. Implementations must not block the
// caller and must not return errors; delivery is best-effort.
type Sink interface {
	Vibrate(pattern []int)
	Notify(message string)
}

// LogSink writes alert effects to the structured log. The daemon uses
// it as the device-side sink; connected clients get the same alert
// through the event stream.
type LogSink struct{}

func (LogSink) Vibrate(pattern []int) {
	slog.Debug("vibrate requested", "pattern", pattern)
}

func (LogSink) Notify(message string) {
	slog.Info("proximity alert", "message", message)
}
