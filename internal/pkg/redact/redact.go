// Package redact scrubs network identifiers from free text before it is stored.
package redact

import "regexp"

// Placeholder replaces every IPv4 or IPv6 literal.
const Placeholder = "0.0.0.0"

var (
	ipv4Pattern = regexp.MustCompile(`(?:(?:25[0-5]|2[0-4][0-9]|[01]?[0-9][0-9]?)\.){3}(?:25[0-5]|2[0-4][0-9]|[01]?[0-9][0-9]?)`)
	ipv6Pattern = regexp.MustCompile(`(([0-9a-fA-F]{1,4}:){7,7}[0-9a-fA-F]{1,4}|([0-9a-fA-F]{1,4}:){1,7}:|([0-9a-fA-F]{1,4}:){1,6}:[0-9a-fA-F]{1,4}|([0-9a-fA-F]{1,4}:){1,5}(:[0-9a-fA-F]{1,4}){1,2}|([0-9a-fA-F]{1,4}:){1,4}(:[0-9a-fA-F]{1,4}){1,3}|([0-9a-fA-F]{1,4}:){1,3}(:[0-9a-fA-F]{1,4}){1,4}|([0-9a-fA-F]{1,4}:){1,2}(:[0-9a-fA-F]{1,4}){1,5}|[0-9a-fA-F]{1,4}:((:[0-9a-fA-F]{1,4}){1,6})|:((:[0-9a-fA-F]{1,4}){1,7}|:)|fe80:(:[0-9a-fA-F]{0,4}){0,4}%[0-9a-zA-Z]{1,}|::(ffff(:0{1,4}){0,1}:){0,1}((25[0-5]|(2[0-4]|1{0,1}[0-9]){0,1}[0-9])\.){3,3}(25[0-5]|(2[0-4]|1{0,1}[0-9]){0,1}[0-9])|([0-9a-fA-F]{1,4}:){1,4}:((25[0-5]|(2[0-4]|1{0,1}[0-9]){0,1}[0-9])\.){3,3}(25[0-5]|(2[0-4]|1{0,1}[0-9]){0,1}[0-9]))`)
	hostnamePattern = regexp.MustCompile(`"hostname":"([^\\"]|\\")*"`)
)

// Redactor removes IP literals and hostname fields when enabled.
// The zero value is disabled and returns its input untouched.
type Redactor struct {
	enabled bool
}

// New returns a Redactor gated by enabled.
func New(enabled bool) Redactor {
	return Redactor{enabled: enabled}
}

// Enabled reports whether Apply rewrites its input.
func (r Redactor) Enabled() bool {
	return r.enabled
}

// Apply returns text with IPv4/IPv6 literals and "hostname" JSON fields scrubbed.
func (r Redactor) Apply(text string) string {
	if !r.enabled {
		return text
	}
	return Text(text)
}

// IP returns the address to store for a client: the placeholder when enabled.
func (r Redactor) IP(ip string) string {
	if !r.enabled {
		return ip
	}
	return Placeholder
}

// Text unconditionally scrubs text.
func Text(text string) string {
	text = ipv4Pattern.ReplaceAllString(text, Placeholder)
	text = ipv6Pattern.ReplaceAllString(text, Placeholder)
	return hostnamePattern.ReplaceAllString(text, `"hostname":"REDACTED"`)
}
