// Package queue persists transcode jobs in SQLite and exposes helpers for
// driving their lifecycle.
//
// The Store is a FIFO: jobs are claimed strictly in insertion order by a
// single worker. A claimed job is "processing" and carries a heartbeat; on
// startup, or when the heartbeat goes stale, it returns to "pending" so no
// announcement is lost across restarts.
//
// The database is transient storage for in-flight jobs rather than a
// long-term archive. Completed jobs are deleted unless history is kept.
// Schema changes bump the version in schema.go; users clear the database to
// adopt the new schema.
package queue
