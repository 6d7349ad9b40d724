// Package hostresolve resolves the %HOSTNAME% and %IP% placeholders
// the config file and CLI flags accept for server_name and host,
// grounded on original_source/server/src/runtime.py's
// get_local_ip/socket.gethostname handling.
package hostresolve

import (
	"net"
	"os"
)

// ResolveServerName replaces a literal "%HOSTNAME%" with the system
// hostname; any other value passes through unchanged.
func ResolveServerName(name string) string {
	if name != "%HOSTNAME%" {
		return name
	}
	host, err := os.Hostname()
	if err != nil {
		return name
	}
	return host
}

// ResolveHost replaces a literal "%IP%" with a best-effort local IP
// address; any other value passes through unchanged.
func ResolveHost(host string) string {
	if host != "%IP%" {
		return host
	}
	return localIP()
}

// localIP mirrors runtime.py's get_local_ip: open a UDP "connection"
// to an address that will never be reached just to read back which
// local interface the kernel would route through, falling back to the
// loopback address if that fails.
func localIP() string {
	conn, err := net.Dial("udp", "10.255.255.255:1")
	if err != nil {
		return "127.0.0.1"
	}
	defer conn.Close()

	addr, ok := conn.LocalAddr().(*net.UDPAddr)
	if !ok {
		return "127.0.0.1"
	}
	return addr.IP.String()
}
