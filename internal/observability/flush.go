package observability

import (
	"go.uber.org/zap"
)

// FlushTelemetry flushes buffered log output during shutdown. Prometheus
// metrics are pull-based and need no flushing. Sync errors on a terminal
// stderr are expected and not reported.
func FlushTelemetry(logger *zap.Logger) {
	if logger == nil {
		return
	}
	_ = logger.Sync()
}
