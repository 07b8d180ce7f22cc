// Package carrier maps free-text ISP descriptors onto short carrier names.
package carrier

import (
	"regexp"
	"strings"

	"github.com/samber/lo"
)

// Major carriers always reported by location-scoped aggregation, in display order.
var Major = []string{"MTN", "Airtel", "Glo", "9mobile"}

type rule struct {
	needles []string
	name    string
}

// Order matters: the first matching rule wins.
var rules = []rule{
	{needles: []string{"globacom"}, name: "GLO"},
	{needles: []string{"mtn"}, name: "MTN"},
	{needles: []string{"airtel"}, name: "Airtel"},
	{needles: []string{"9mobile", "etisalat"}, name: "9mobile"},
}

// Normalize maps a raw carrier-lookup name to its short form.
// Names that match no rule are returned unchanged.
func Normalize(raw string) string {
	lower := strings.ToLower(raw)
	for _, r := range rules {
		if lo.SomeBy(r.needles, func(needle string) bool { return strings.Contains(lower, needle) }) {
			return r.name
		}
	}
	return raw
}

var (
	ipPrefixWithCountry = regexp.MustCompile(`(?i)\d+\.\d+\.\d+\.\d+\s*-\s*(.+?)(?:\s*Communications?\s*Limited)?,\s*Nigeria`)
	legalSuffix         = regexp.MustCompile(`(?i)Communications?\s*Limited`)
	countrySuffix       = regexp.MustCompile(`(?i),\s*Nigeria`)
	leadingIP           = regexp.MustCompile(`^\d+\.\d+\.\d+\.\d+\s*-\s*`)
)

// Clean strips the IP prefix and boilerplate legal-entity suffixes from a descriptor
// such as "102.89.1.1 - MTN NIGERIA Communication Limited, Nigeria".
func Clean(descriptor string) string {
	name := descriptor
	if m := ipPrefixWithCountry.FindStringSubmatch(name); len(m) > 1 && m[1] != "" {
		name = strings.TrimSpace(m[1])
	}
	name = legalSuffix.ReplaceAllString(name, "")
	name = countrySuffix.ReplaceAllString(name, "")
	name = leadingIP.ReplaceAllString(name, "")
	return strings.TrimSpace(name)
}

// Canonical reduces a descriptor to a major carrier name when the cleaned name and a
// major carrier contain one another (case-insensitive). Otherwise the cleaned name is returned.
func Canonical(descriptor string) string {
	name := Clean(descriptor)
	if name == "" {
		return name
	}
	lower := strings.ToLower(name)
	major, ok := lo.Find(Major, func(m string) bool {
		ml := strings.ToLower(m)
		return strings.Contains(lower, ml) || strings.Contains(ml, lower)
	})
	if ok {
		return major
	}
	return name
}

// IsMajor reports whether name is one of the major carriers.
func IsMajor(name string) bool {
	return lo.Contains(Major, name)
}
