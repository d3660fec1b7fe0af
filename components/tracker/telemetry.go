package tracker

import (
	"context"
	"io"

	"github.com/sirupsen/logrus"
)

// Telemetry records tracker events for observability.
type Telemetry interface {
	Record(ctx context.Context, event string, payload map[string]any)
}

type noopTelemetry struct{}

func (noopTelemetry) Record(context.Context, string, map[string]any) {}

func normalizeTelemetry(t Telemetry) Telemetry {
	if t == nil {
		return noopTelemetry{}
	}
	return t
}

// LogTelemetry writes telemetry events as structured debug log lines.
type LogTelemetry struct {
	Logger *logrus.Entry
}

// Record logs the event with its payload as fields.
func (t LogTelemetry) Record(_ context.Context, event string, payload map[string]any) {
	if t.Logger == nil {
		return
	}
	t.Logger.WithFields(logrus.Fields(payload)).WithField("event", event).Debug("telemetry")
}

func normalizeLogger(logger *logrus.Entry) *logrus.Entry {
	if logger != nil {
		return logger
	}
	discard := logrus.New()
	discard.SetOutput(io.Discard)
	return logrus.NewEntry(discard)
}
