/**
 * @description
 * This package matches request origins against a configured allow-list of
 * literal origins and single-level wildcard subdomain patterns. Matching is
 * pure string work with bounded cost: no regex engine ever sees a
 * caller-controlled pattern, and every comparison is a single pass over the
 * input.
 *
 * @notes
 * - Matching is exact-case. Browsers send lowercase scheme and host, and
 *   loosening the comparison would widen the accepted surface.
 * - A bare "*" or "scheme://*" is never a valid configured pattern; the
 *   wildcard must occupy exactly the leftmost host label and expands to
 *   exactly one label.
 */

package origin

import "strings"

const schemeSep = "://"

// Allowed reports whether a request origin matches any configured pattern.
// An empty pattern list allows every syntactically valid origin.
func Allowed(requestOrigin string, patterns []string) bool {
	if !validOrigin(requestOrigin) {
		return false
	}
	if len(patterns) == 0 {
		return true
	}
	for _, p := range patterns {
		if Match(requestOrigin, p) {
			return true
		}
	}
	return false
}

// ValidPattern reports whether a string is acceptable as a configured
// allow-list entry: either a literal origin or a single-level wildcard
// subdomain pattern. A bare "*" or "scheme://*" is never acceptable.
func ValidPattern(pattern string) bool {
	if !strings.Contains(pattern, "*") {
		return validOrigin(pattern)
	}
	scheme, rest, ok := splitScheme(pattern)
	if !ok || scheme == "" {
		return false
	}
	for i := 0; i < len(scheme); i++ {
		c := scheme[i]
		if !(c >= 'a' && c <= 'z' || c >= 'A' && c <= 'Z') {
			return false
		}
	}
	if !strings.HasPrefix(rest, "*.") {
		return false
	}
	suffix := rest[1:]
	if strings.Contains(suffix, "*") {
		return false
	}
	// The remainder after "*." must itself be a valid host[:port].
	return validOrigin(scheme + schemeSep + suffix[1:])
}

// Match reports whether a single pattern accepts the origin. Literal patterns
// must match exactly; wildcard patterns accept exactly one extra host label in
// the leftmost position with scheme and port matching exactly.
func Match(requestOrigin, pattern string) bool {
	if !validOrigin(requestOrigin) {
		return false
	}

	if !strings.Contains(pattern, "*") {
		return validOrigin(pattern) && requestOrigin == pattern
	}

	scheme, rest, ok := splitScheme(pattern)
	if !ok || scheme == "" {
		return false
	}
	// The only sanctioned wildcard position is "scheme://*.domain[:port]".
	if !strings.HasPrefix(rest, "*.") {
		return false
	}
	suffix := rest[1:] // ".domain[:port]"
	if len(suffix) < 2 || strings.Contains(suffix, "*") {
		return false
	}
	domain := strings.TrimSuffix(suffix[1:], portOf(suffix))
	if domain == "" || strings.HasPrefix(domain, ".") {
		return false
	}

	oScheme, oHost, ok := splitScheme(requestOrigin)
	if !ok || oScheme != scheme {
		return false
	}
	if !strings.HasSuffix(oHost, suffix) {
		return false
	}
	label := oHost[:len(oHost)-len(suffix)]
	return validLabel(label)
}

// portOf returns the ":port" tail of a host[:port] string, or "".
func portOf(hostport string) string {
	if i := strings.LastIndex(hostport, ":"); i >= 0 {
		return hostport[i:]
	}
	return ""
}

// validLabel reports whether s is exactly one non-empty DNS label.
func validLabel(s string) bool {
	if s == "" {
		return false
	}
	for i := 0; i < len(s); i++ {
		c := s[i]
		switch {
		case c >= 'a' && c <= 'z', c >= 'A' && c <= 'Z', c >= '0' && c <= '9', c == '-':
		default:
			return false
		}
	}
	return true
}

// splitScheme splits "scheme://rest" and fails on anything else.
func splitScheme(s string) (scheme, rest string, ok bool) {
	i := strings.Index(s, schemeSep)
	if i <= 0 {
		return "", "", false
	}
	return s[:i], s[i+len(schemeSep):], true
}

// validOrigin rejects any candidate that is not a plain scheme://host[:port]
// tuple: control characters, embedded credentials, paths, queries, fragments,
// embedded URLs, and wildcards all disqualify it.
func validOrigin(s string) bool {
	if s == "" {
		return false
	}
	for i := 0; i < len(s); i++ {
		if s[i] < 0x20 || s[i] == 0x7f || s[i] == ' ' {
			return false
		}
	}
	scheme, host, ok := splitScheme(s)
	if !ok || scheme == "" || host == "" {
		return false
	}
	for i := 0; i < len(scheme); i++ {
		c := scheme[i]
		if !(c >= 'a' && c <= 'z' || c >= 'A' && c <= 'Z') {
			return false
		}
	}
	// "/" also catches embedded URLs after the host.
	if strings.ContainsAny(host, "@/?#*\\") {
		return false
	}
	port := portOf(host)
	hostname := strings.TrimSuffix(host, port)
	if hostname == "" || strings.HasPrefix(hostname, ".") || strings.HasSuffix(hostname, ".") {
		return false
	}
	if port != "" {
		if len(port) < 2 {
			return false
		}
		for i := 1; i < len(port); i++ {
			if port[i] < '0' || port[i] > '9' {
				return false
			}
		}
	}
	if strings.Count(host, ":") > 1 {
		return false
	}
	return true
}
