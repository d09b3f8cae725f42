// Package upstream derives origin identities and owns the TLS clients used
// to reach them.
package upstream

import (
	"fmt"
	"net"
	"regexp"
	"strconv"
)

// sanitizer collapses every byte outside [A-Za-z0-9] to an underscore.
var sanitizer = regexp.MustCompile(`[^a-zA-Z0-9]`)

// Identity names a dynamic origin endpoint.
type Identity struct {
	// Name is the stable registration token, e.g. dyn_example_com_443.
	// Hostnames differing only in sanitized bytes share a name (a.b and
	// a_b both yield dyn_a_b_443); it identifies the origin in logs and
	// metrics but never routes traffic.
	Name string

	// Target is the dial address, host:port.
	Target string

	// Host is the virtual host: Host header, SNI, and certificate name.
	Host string
}

// Derive builds the Identity for a hostname and port. Deterministic and
// total: equal inputs always yield the same Identity.
func Derive(hostname string, port int) Identity {
	p := strconv.Itoa(port)
	return Identity{
		Name:   fmt.Sprintf("dyn_%s_%s", sanitizer.ReplaceAllString(hostname, "_"), p),
		Target: net.JoinHostPort(hostname, p),
		Host:   hostname,
	}
}
