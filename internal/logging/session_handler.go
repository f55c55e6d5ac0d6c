package logging

import "log/slog"

// FieldSessionID tags every record written by one reeld run. The daemon picks
// a fresh id on each start so a single run can be pulled out of the shared
// state-dir log.
const FieldSessionID = "session_id"

// withSessionID binds the run's id on the handler itself rather than on each
// record, which keeps it a top-level key when components later open groups.
func withSessionID(base slog.Handler, sessionID string) slog.Handler {
	if base == nil {
		return NoopHandler{}
	}
	return base.WithAttrs([]slog.Attr{slog.String(FieldSessionID, sessionID)})
}
