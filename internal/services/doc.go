// Package services defines shared utilities consumed by the transcode worker,
// the reconciler, and the CLI.
//
// Key responsibilities:
//   - Context helpers that stamp job IDs, stage names, source directories, and
//     correlation identifiers for logging.
//   - Structured error markers plus the Wrap helper that let the retry policy
//     tell transient failures (hardware busy, timeouts) from permanent ones.
package services
