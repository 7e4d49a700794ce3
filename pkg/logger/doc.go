// Package logger provides the structured logging interface used across sharetok.
//
// It wraps zerolog behind a small Logger interface so packages can accept a
// logger as a dependency and tests can swap in NewNopLogger or NewTestLogger.
//
// Usage:
//
//	if err := logger.Initialize(&cfg.Logging); err != nil {
//	    return err
//	}
//	logger.WithField("content_id", id).Info("item stored")
//
//	log := logger.GetLogger().WithField("component", "evictor")
//	log.InfoWithFields("sweep finished", map[string]interface{}{
//	    "freed_bytes": freed,
//	    "evicted":     n,
//	})
//
// Two output formats are supported: "console" (colored, human readable) and
// "json" (one object per line). When File is set, records go to both stdout
// and the file.
package logger
