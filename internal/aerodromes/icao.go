package aerodromes

import (
	"regexp"
	"strings"
)

var icaoPattern = regexp.MustCompile(`^[A-Z]{4}$`)

// NormalizeICAO upper-cases and trims s and reports whether it is a valid ICAO code.
func NormalizeICAO(s string) (string, bool) {
	icao := strings.ToUpper(strings.TrimSpace(s))
	return icao, icaoPattern.MatchString(icao)
}
