// Package protocol defines the JSON messages exchanged over the broker: the
// inbound rip-done announcement and the outbound per-file status events.
//
// Both directions carry an integer payload version. The worker rejects
// announcements whose version it does not support, and every status event it
// publishes repeats the version of the announcement that triggered it.
package protocol
