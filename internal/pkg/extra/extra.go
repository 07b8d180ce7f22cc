// Package extra extracts optional values from the loosely structured JSON blobs
// sent by the speed-test client. Nothing here fails: absent or malformed input
// simply yields no value.
package extra

import (
	"math"
	"strings"

	"github.com/spf13/cast"
	"github.com/tidwall/gjson"

	"netscope/internal/domain"
)

var rawNamePaths = []string{"rawIspInfo.as_name", "rawIspInfo.org", "rawIspInfo.isp", "rawIspInfo.asn_org"}

// Location parses the telemetry extra blob and returns its coordinates.
// Both values must coerce to finite floats within ±90/±180 and neither may be exactly zero.
func Location(blob string) (domain.GeoPoint, bool) {
	blob = strings.TrimSpace(blob)
	if blob == "" || !gjson.Valid(blob) {
		return domain.GeoPoint{}, false
	}

	parsed := gjson.Parse(blob)
	if !parsed.IsObject() {
		return domain.GeoPoint{}, false
	}

	lat, ok := coerceFloat(parsed.Get("latitude"))
	if !ok {
		return domain.GeoPoint{}, false
	}
	lng, ok := coerceFloat(parsed.Get("longitude"))
	if !ok {
		return domain.GeoPoint{}, false
	}

	// zero is the client's "unset" value
	if lat == 0 || lng == 0 {
		return domain.GeoPoint{}, false
	}

	if !within(lat, 90) || !within(lng, 180) {
		return domain.GeoPoint{}, false
	}

	return domain.GeoPoint{Latitude: lat, Longitude: lng}, true
}

// within rejects NaN and infinities along with values beyond limit.
func within(v, limit float64) bool {
	return !math.IsNaN(v) && math.Abs(v) <= limit
}

// RawISPName returns the carrier name from the raw lookup object embedded in an ISP
// descriptor. The second result is false when the descriptor is not JSON or carries
// no raw lookup object.
func RawISPName(descriptor string) (string, bool) {
	descriptor = strings.TrimSpace(descriptor)
	if descriptor == "" || !gjson.Valid(descriptor) {
		return "", false
	}

	raw := gjson.Get(descriptor, "rawIspInfo")
	if !raw.IsObject() {
		return "", false
	}

	for _, path := range rawNamePaths {
		if v := gjson.Get(descriptor, path); v.Exists() && strings.TrimSpace(v.String()) != "" {
			return strings.TrimSpace(v.String()), true
		}
	}
	return "", false
}

func coerceFloat(v gjson.Result) (float64, bool) {
	if !v.Exists() || v.Type == gjson.Null {
		return 0, false
	}
	var value any = v.Value()
	if v.Type == gjson.String {
		value = strings.TrimSpace(v.Str)
		if value == "" {
			return 0, false
		}
	}
	f, err := cast.ToFloat64E(value)
	if err != nil {
		return 0, false
	}
	return f, true
}
