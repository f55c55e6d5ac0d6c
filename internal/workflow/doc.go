// Package workflow turns rip-done announcements into encoded files.
//
// The Manager validates and resolves each announcement, persists it as a
// pending job and wakes a single worker goroutine. The worker drains jobs in
// FIFO order; for every media file it checks whether the output already
// exists, then encodes it under the hardware lock with bounded retries for
// transient failures, reporting start/done/error through the status
// publisher.
//
// Once a file's encode has started it runs to completion even if the daemon
// is asked to stop; the worker stops between files. A job interrupted this
// way stays in processing and is returned to pending on the next start.
package workflow
