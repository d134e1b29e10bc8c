// Package logging is the rainbridge wrapper around log/slog.
//
// Every entry carries service=rainbridge and the build version. The
// handler is JSON unless logging.format is "text":
//
//	logging:
//	  level: info      # debug, info, warn, error
//	  format: json
//	  output: stdout   # or stderr
//
// Besides the slog methods, Logger has two helpers used by controller
// code. Emit forwards a line whose level arrives as a string from a
// controller gateway. Failure logs a per-controller error at error level
// and appends a hint pointing the user at the support checklist:
//
//	log.Failure("controller init failed", err, "address", cfg.Address)
//
// Controller passwords and the API signing secret must never be logged.
package logging
