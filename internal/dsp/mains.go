package dsp

import (
	"strings"

	tzcountry "github.com/medama-io/go-timezone-country"
	"github.com/thlib/go-timezone-local/tzlocal"
)

// MainsFrequency returns the local electrical mains frequency in Hz, used
// as the hum-guard fundamental. Resolution goes timezone → country →
// frequency; any failure falls back to 50 Hz, the more common standard.
func MainsFrequency() int {
	name, err := tzlocal.RuntimeTZ()
	if err != nil {
		return 50
	}
	return MainsFrequencyForTimezone(name)
}

// MainsFrequencyForTimezone resolves the mains frequency for an IANA
// timezone name. Exported so tests can pin specific zones.
func MainsFrequencyForTimezone(name string) int {
	// Zones with no country association carry no grid information.
	if name == "UTC" || name == "GMT" || strings.HasPrefix(name, "Etc/") {
		return 50
	}

	countries, err := tzcountry.NewTimezoneCountryMap()
	if err != nil {
		return 50
	}
	country, err := countries.GetCountry(name)
	if err != nil {
		return 50
	}

	// Japan runs both grids; Tokyo's 50 Hz region holds most of the
	// population, so the ambiguity resolves low.
	if country == "Japan" {
		return 50
	}
	if mains60Hz[country] {
		return 60
	}
	return 50
}

// mains60Hz is the set of countries on a 60 Hz grid. Everywhere else is
// 50 Hz. Brazil is mixed but predominantly 60 Hz.
var mains60Hz = map[string]bool{
	"United States": true, "Canada": true, "Mexico": true,
	"Belize": true, "Costa Rica": true, "El Salvador": true,
	"Guatemala": true, "Honduras": true, "Nicaragua": true, "Panama": true,
	"Bahamas": true, "Barbados": true, "Cayman Islands": true,
	"Cuba": true, "Dominican Republic": true, "Haiti": true,
	"Jamaica": true, "Puerto Rico": true, "Trinidad and Tobago": true,
	"U.S. Virgin Islands": true,
	"Brazil":              true, "Colombia": true, "Ecuador": true,
	"Guyana": true, "Peru": true, "Suriname": true, "Venezuela": true,
	"South Korea": true, "Taiwan": true, "Philippines": true,
	"Saudi Arabia": true,
	"Guam":         true, "American Samoa": true, "Marshall Islands": true,
	"Micronesia": true, "Palau": true,
}
