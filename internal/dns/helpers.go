package dns

import (
	"strings"
)

// SplitHostname splits an FQDN into subdomain and domain parts.
// e.g. "seeds.example.org" → ("seeds", "example.org")
// e.g. "a.seeds.example.org" → ("a", "seeds.example.org")
func SplitHostname(fqdn string) (hostname, domain string) {
	fqdn = strings.TrimSuffix(fqdn, ".")
	parts := strings.SplitN(fqdn, ".", 2)
	if len(parts) < 2 {
		return fqdn, ""
	}
	return parts[0], parts[1]
}

// JoinHostname builds the FQDN for a subdomain of domain without a trailing
// dot. An empty subdomain yields the bare domain.
func JoinHostname(subdomain, domain string) string {
	domain = strings.TrimSuffix(domain, ".")
	if subdomain == "" {
		return domain
	}
	return subdomain + "." + domain
}

// SameName reports whether two DNS names are equal, ignoring case and a
// trailing dot.
func SameName(a, b string) bool {
	return strings.EqualFold(strings.TrimSuffix(a, "."), strings.TrimSuffix(b, "."))
}
