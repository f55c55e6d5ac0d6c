// Package preflight provides readiness checks for the filesystem paths and
// devices the daemon depends on.
//
// The daemon runs RunAll once at startup; a failed required check aborts the
// start because every job would fail the same way. The CLI "config validate"
// command prints the same results.
package preflight
