package server

// MetricsCollector is an optional interface for collecting server
// metrics: implementations can forward to Prometheus, StatsD, or
// similar. The server checks for nil before calling, so
// implementations never need to guard against a nil receiver.
type MetricsCollector interface {
	// RecordCommand records one session-command execution.
	RecordCommand(cmd string, success bool)

	// RecordAdminCommand records one admin-command execution.
	RecordAdminCommand(cmd string, success bool)

	// RecordConnection records a connection attempt; reason gives
	// context such as "rate_limited" or "accepted".
	RecordConnection(accepted bool, reason string)

	// RecordAuthentication records a login attempt.
	RecordAuthentication(success bool, user string)
}
