// Package daemon coordinates the long-running reel process.
//
// It holds a flock-based single-instance lock, subscribes to the inbound
// rip-done topic, hands every message to the workflow manager and runs the
// worker and the optional metrics endpoint under one errgroup. Shutdown is
// driven by the caller's context; the file being encoded at that moment is
// finished before Run returns.
//
// Keep orchestration logic here: encoding, queueing and status reporting live
// in their own packages while the daemon focuses on startup, shutdown and
// high level coordination.
package daemon
