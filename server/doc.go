// Package server implements the CSH network file server: the accept
// loop, the "CSH" length-prefixed framing, the tagged-value codec
// wiring, and the session/admin command dispatch tables described by
// the CSH wire protocol.
//
// # Overview
//
// A CSH server is a jailed filesystem exposed over a small
// length-prefixed binary protocol. Clients log in to receive an
// opaque session ID, then issue session commands (read, write,
// delete, rename, mkdir, rmdir, list, move, copy, chdir, cwd, size,
// exists) scoped to their session's current working directory.
// Administrators with a known password can additionally issue admin
// commands that manage users, sessions, and server settings.
//
//	root, _ := os.MkdirTemp("", "csh-root")
//	s, err := server.NewServer(":8008",
//	    server.WithRoot(root),
//	    server.WithUsersFile("users.json"),
//	)
//	if err != nil {
//	    log.Fatal(err)
//	}
//	log.Fatal(s.ListenAndServe())
//
// # Connections
//
// Every TCP (or TLS) connection carries exactly one request and one
// response: the server reads one frame, dispatches it, writes one
// frame back, and closes the connection. There is no connection
// pooling or keep-alive to manage.
//
// # TLS
//
// Wrap the listener in TLS with WithTLS:
//
//	cert, _ := tls.LoadX509KeyPair("server.crt", "server.key")
//	s, _ := server.NewServer(":8008",
//	    server.WithRoot(root),
//	    server.WithUsersFile("users.json"),
//	    server.WithTLS(&tls.Config{Certificates: []tls.Certificate{cert}}),
//	)
//	s.ListenAndServe()
//
// # Rate limiting and session limits
//
// WithRateLimitRules configures a multi-window per-IP admission rule
// set; WithSessionLimit caps concurrent sessions per user.
//
// # Metrics
//
// Implementations of the MetricsCollector interface can be attached
// with WithMetricsCollector to observe command, connection, and login
// counts; see the internal/metrics package for a Prometheus-backed
// implementation.
package server
