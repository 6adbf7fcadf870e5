// Package errors provides classified error primitives shared by the asset
// cache, the state store and the CLI.
//
// Key features:
//   - ErrorCategory: broad classification (transport, process, integrity, state, ...)
//   - ErrorSeverity: impact level (fatal, error, warning, info)
//   - RetryStrategy: whether an orchestration-level caller may retry
//   - ClassifiedError: structured error with category, severity, and context
//   - ErrorBuilder: fluent API for creating classified errors
//   - CLIErrorAdapter: exit code mapping and presentation
//
// Example usage:
//
//	err := errors.TransportError("sidecar fetch failed").
//		WithContext("url", sidecarURL).
//		WithContext("status", resp.StatusCode).
//		Build()
package errors
