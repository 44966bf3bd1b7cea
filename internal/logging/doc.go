// Package logging provides structured logging for stockroom.
//
// This package wraps Go's log/slog to provide JSON-formatted logs with
// persistent context attributes. Every bus, store and watcher in stockroom
// takes a [Logger], so a single log file shows which component handled which
// event topic.
//
// # Thread Safety
//
// All types in this package are safe for concurrent use. Child loggers
// created via With* methods share the underlying writer.
//
// # Basic Usage
//
//	logger, err := logging.NewLogger("/var/log/stockroom", "INFO")
//	if err != nil {
//	    return err
//	}
//	defer logger.Close()
//
//	busLogger := logger.WithComponent("bus").WithTopic("WIDGET")
//	busLogger.Warn("listener failed", "error", err)
//
// Output:
//
//	{"time":"...","level":"WARN","msg":"listener failed","component":"bus","topic":"WIDGET","error":"..."}
//
// # Log Rotation
//
// File output goes through a size-based rotating writer:
//
//	logger, err := logging.NewLoggerWithRotation(dir, "INFO", logging.RotationConfig{
//	    MaxSizeMB:  10,
//	    MaxBackups: 3,
//	    Compress:   true,
//	})
//
// # Reading Logs Back
//
// [ReadLogs] and [FilterLogs] parse a log directory for the `stockroom logs`
// command:
//
//	entries, err := logging.ReadLogs(dir)
//	warnings := logging.FilterLogs(entries, logging.LogFilter{Level: "WARN", Component: "bus"})
//
// # Testing
//
// Use [NopLogger] to discard all output, or [NewLoggerWithWriter] with a
// bytes.Buffer to assert on emitted entries.
package logging
