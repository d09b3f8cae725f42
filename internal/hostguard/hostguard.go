// Package hostguard classifies target hostnames so the relay never opens
// connections to private or internal destinations.
package hostguard

import (
	"strconv"
	"strings"
)

// Verdict is the result of classifying a hostname. Rule names the first
// matching rule for log and metric attribution; it is empty when allowed.
type Verdict struct {
	Blocked bool
	Rule    string
}

// localhostNames are blocked exactly, case-insensitively.
var localhostNames = map[string]bool{
	"localhost":             true,
	"localhost.localdomain": true,
}

// ipv6Loopback literals, bare and bracketed.
var ipv6Loopback = map[string]bool{
	"::1":   true,
	"[::1]": true,
}

// quadRules are evaluated in order against a parsed dotted-quad address.
var quadRules = []struct {
	name  string
	match func(o [4]int) bool
}{
	{"loopback", func(o [4]int) bool { return o[0] == 127 }},
	{"rfc1918_10", func(o [4]int) bool { return o[0] == 10 }},
	{"rfc1918_172", func(o [4]int) bool { return o[0] == 172 && o[1] >= 16 && o[1] <= 31 }},
	{"rfc1918_192", func(o [4]int) bool { return o[0] == 192 && o[1] == 168 }},
	// 169.254.0.0/16 includes cloud metadata endpoints.
	{"link_local", func(o [4]int) bool { return o[0] == 169 && o[1] == 254 }},
	{"current_network", func(o [4]int) bool { return o[0] == 0 }},
	{"broadcast", func(o [4]int) bool { return o == [4]int{255, 255, 255, 255} }},
}

var internalPrefixes = []string{"internal.", "intranet.", "private.", "corp.", "lan."}

var internalSuffixes = []string{".internal", ".local", ".localhost"}

// Classify reports whether hostname refers to a private or internal
// destination. The decision is purely syntactic: no DNS resolution, no
// network I/O. Name comparisons are case-insensitive.
//
// A hostname shaped like a dotted quad whose groups do not parse as octets
// (e.g. 999.1.1.1) is blocked: an address the rules cannot reason about is
// refused rather than passed through.
//
// IPv6 coverage is limited to the loopback literal; ULA and link-local
// ranges are not recognized.
func Classify(hostname string) Verdict {
	lower := strings.ToLower(hostname)

	if localhostNames[lower] {
		return Verdict{Blocked: true, Rule: "localhost"}
	}
	if ipv6Loopback[lower] {
		return Verdict{Blocked: true, Rule: "ipv6_loopback"}
	}

	if octets, shaped, ok := parseQuad(hostname); shaped {
		if !ok {
			return Verdict{Blocked: true, Rule: "malformed_address"}
		}
		for _, r := range quadRules {
			if r.match(octets) {
				return Verdict{Blocked: true, Rule: r.name}
			}
		}
		return Verdict{}
	}

	for _, p := range internalPrefixes {
		if strings.HasPrefix(lower, p) {
			return Verdict{Blocked: true, Rule: "internal_prefix"}
		}
	}
	for _, s := range internalSuffixes {
		if strings.HasSuffix(lower, s) {
			return Verdict{Blocked: true, Rule: "internal_suffix"}
		}
	}

	return Verdict{}
}

// parseQuad splits hostname into dotted-quad octets. shaped reports whether
// the name has exactly four non-empty all-digit groups; ok reports whether
// every group is a valid octet (0-255).
func parseQuad(hostname string) (octets [4]int, shaped, ok bool) {
	parts := strings.Split(hostname, ".")
	if len(parts) != 4 {
		return octets, false, false
	}
	for _, p := range parts {
		if p == "" || !allDigits(p) {
			return octets, false, false
		}
	}
	for i, p := range parts {
		n, err := strconv.Atoi(p)
		if err != nil || n > 255 {
			return octets, true, false
		}
		octets[i] = n
	}
	return octets, true, true
}

func allDigits(s string) bool {
	for _, r := range s {
		if r < '0' || r > '9' {
			return false
		}
	}
	return true
}
