// Package reconcile compares the raw rip tree with the transcoded
// destinations and re-announces every source directory that still has
// media files without an output. Announcements go to the inbound topic, so
// the daemon treats them exactly like fresh rip-done events.
package reconcile
