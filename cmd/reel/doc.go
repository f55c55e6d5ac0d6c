// Command reel is the operator CLI for the rip-to-transcode bridge: it runs
// the daemon in the foreground, re-announces directories with missing
// outputs, and inspects the job queue and the hardware lock.
package main
