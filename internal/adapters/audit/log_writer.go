package audit

import (
	"context"

	"go.uber.org/zap"

	"github.com/mikey/signup-guard/internal/core"
)

// LogWriter writes audit entries to the structured log
type LogWriter struct {
	logger *zap.Logger
}

// NewLogWriter creates a new log writer
func NewLogWriter(logger *zap.Logger) *LogWriter {
	return &LogWriter{logger: logger.Named("audit")}
}

// Write logs the entry at info level
func (w *LogWriter) Write(ctx context.Context, entry *core.AuditEntry) error {
	fields := []zap.Field{
		zap.String("id", entry.ID),
		zap.Time("timestamp", entry.Timestamp),
		zap.String("action", entry.Action),
		zap.Any("details", entry.Details),
		zap.String("ip", entry.ClientInfo.IP),
		zap.Bool("success", entry.Success),
	}
	if entry.Advisory != nil {
		fields = append(fields,
			zap.Bool("advisory_likely_spam", entry.Advisory.LikelySpam),
			zap.Float64("advisory_confidence", entry.Advisory.Confidence),
			zap.String("advisory_model", entry.Advisory.Model),
			zap.String("advisory_explanation", entry.Advisory.Explanation))
	}

	w.logger.Info("Audit event", fields...)
	return nil
}

// Close flushes the logger
func (w *LogWriter) Close() error {
	_ = w.logger.Sync()
	return nil
}
