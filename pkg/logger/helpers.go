package logger

import (
	"context"

	"github.com/rs/zerolog"
)

// LogRequest logs an inbound HTTP request once it has been served
func LogRequest(method, path string, statusCode int, durationMs float64) {
	fields := map[string]interface{}{
		"method":      method,
		"path":        path,
		"status_code": statusCode,
		"duration_ms": durationMs,
	}

	switch {
	case statusCode >= 500:
		GetLogger().ErrorWithFields("HTTP request server error", fields)
	case statusCode >= 400:
		GetLogger().WarnWithFields("HTTP request client error", fields)
	default:
		GetLogger().InfoWithFields("HTTP request completed", fields)
	}
}

// LogDownload logs the outcome of one asset download
func LogDownload(log Logger, contentID, role string, bytes int64, err error) {
	l := log.WithFields(map[string]interface{}{
		"content_id": contentID,
		"role":       role,
	})
	if err != nil {
		l.WithError(err).Warn("Asset download failed")
		return
	}
	l.DebugWithFields("Asset downloaded", map[string]interface{}{"bytes": bytes})
}

// LogEviction logs one tombstoned item and the bytes its files held
func LogEviction(log Logger, contentID, kind string, freedBytes int64) {
	log.InfoWithFields("Item evicted", map[string]interface{}{
		"content_id":  contentID,
		"kind":        kind,
		"freed_bytes": freedBytes,
	})
}

// LogComponentStart logs when a component starts
func LogComponentStart(component string, config map[string]interface{}) {
	l := GetLogger().WithField("component", component)
	if len(config) > 0 {
		l = l.WithFields(config)
	}
	l.Info("Component started")
}

// LogComponentStop logs when a component stops
func LogComponentStop(component string, reason string) {
	GetLogger().WithFields(map[string]interface{}{
		"component": component,
		"reason":    reason,
	}).Info("Component stopped")
}

// NewNopLogger creates a no-operation logger for testing
func NewNopLogger() Logger {
	return &nopLogger{}
}

type nopLogger struct{}

func (n *nopLogger) Debug(msg string)                                          {}
func (n *nopLogger) Info(msg string)                                           {}
func (n *nopLogger) Warn(msg string)                                           {}
func (n *nopLogger) Error(msg string)                                          {}
func (n *nopLogger) Fatal(msg string)                                          {}
func (n *nopLogger) WithField(key string, value interface{}) Logger            { return n }
func (n *nopLogger) WithFields(fields map[string]interface{}) Logger           { return n }
func (n *nopLogger) WithError(err error) Logger                                { return n }
func (n *nopLogger) WithContext(ctx context.Context) Logger                    { return n }
func (n *nopLogger) DebugWithFields(msg string, fields map[string]interface{}) {}
func (n *nopLogger) InfoWithFields(msg string, fields map[string]interface{})  {}
func (n *nopLogger) WarnWithFields(msg string, fields map[string]interface{})  {}
func (n *nopLogger) ErrorWithFields(msg string, fields map[string]interface{}) {}
func (n *nopLogger) FatalWithFields(msg string, fields map[string]interface{}) {}
func (n *nopLogger) GetZerolog() *zerolog.Logger {
	l := zerolog.Nop()
	return &l
}
