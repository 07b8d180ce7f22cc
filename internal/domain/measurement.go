package domain

import (
	"regexp"
	"strconv"
	"strings"
)

// MeasurementPattern matches the measurement text that is read as a number.
// Digit and exponent counts are bounded so a match always fits a float64.
const MeasurementPattern = `^[-+]?([0-9]{1,20}(\.[0-9]{0,20})?|\.[0-9]{1,20})([eE][-+]?[0-9]{1,2})?$`

var measurementRe = regexp.MustCompile(MeasurementPattern)

// ParseMeasurement reads a stored measurement. Anything outside MeasurementPattern counts as 0.
func ParseMeasurement(value string) float64 {
	value = strings.TrimSpace(value)
	if !measurementRe.MatchString(value) {
		return 0
	}
	parsed, err := strconv.ParseFloat(value, 64)
	if err != nil {
		return 0
	}
	return parsed
}
