// Package metrics provides a Prometheus-backed implementation of
// server.MetricsCollector: counters registered against a registry and
// incremented at each command, connection, and authentication call
// site, plus an admin-command counter. CSH has no data-connection
// transfer concept to measure, so there is no transfer counter.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Collector implements server.MetricsCollector by incrementing
// labeled Prometheus counters. It does not import package server to
// avoid a dependency cycle; server.WithMetricsCollector accepts it
// structurally since Go interfaces are satisfied implicitly.
type Collector struct {
	commands      *prometheus.CounterVec
	adminCommands *prometheus.CounterVec
	connections   *prometheus.CounterVec
	logins        *prometheus.CounterVec
}

// New builds a Collector and registers its counters against reg. Pass
// prometheus.DefaultRegisterer to expose metrics on the default
// /metrics handler.
func New(reg prometheus.Registerer) *Collector {
	c := &Collector{
		commands: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "csh",
			Name:      "session_commands_total",
			Help:      "Session commands processed, by command name and outcome.",
		}, []string{"command", "outcome"}),
		adminCommands: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "csh",
			Name:      "admin_commands_total",
			Help:      "Admin commands processed, by command name and outcome.",
		}, []string{"command", "outcome"}),
		connections: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "csh",
			Name:      "connections_total",
			Help:      "Accepted TCP connections, by accepted/rejected reason.",
		}, []string{"reason"}),
		logins: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "csh",
			Name:      "logins_total",
			Help:      "Login attempts, by outcome.",
		}, []string{"outcome"}),
	}
	reg.MustRegister(c.commands, c.adminCommands, c.connections, c.logins)
	return c
}

func outcome(success bool) string {
	if success {
		return "success"
	}
	return "failure"
}

// RecordCommand implements server.MetricsCollector.
func (c *Collector) RecordCommand(cmd string, success bool) {
	c.commands.WithLabelValues(cmd, outcome(success)).Inc()
}

// RecordAdminCommand implements server.MetricsCollector.
func (c *Collector) RecordAdminCommand(cmd string, success bool) {
	c.adminCommands.WithLabelValues(cmd, outcome(success)).Inc()
}

// RecordConnection implements server.MetricsCollector.
func (c *Collector) RecordConnection(accepted bool, reason string) {
	if accepted {
		c.connections.WithLabelValues("accepted").Inc()
		return
	}
	c.connections.WithLabelValues(reason).Inc()
}

// RecordAuthentication implements server.MetricsCollector. The
// username is intentionally not used as a label: an unbounded set of
// usernames would blow up Prometheus cardinality.
func (c *Collector) RecordAuthentication(success bool, user string) {
	c.logins.WithLabelValues(outcome(success)).Inc()
}
