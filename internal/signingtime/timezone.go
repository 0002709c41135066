package signingtime

import (
	"fmt"
	"strings"
	"time"
	_ "time/tzdata"
	"unicode"

	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

var countryZones = map[string]string{
	"AR": "America/Argentina/Buenos_Aires",
	"BO": "America/La_Paz",
	"BR": "America/Sao_Paulo",
	"CL": "America/Santiago",
	"CO": "America/Bogota",
	"CU": "America/Havana",
	"EC": "America/Guayaquil",
	"MX": "America/Mexico_City",
	"PA": "America/Panama",
	"PY": "America/Asuncion",
	"PE": "America/Lima",
	"UY": "America/Montevideo",
	"VE": "America/Caracas",
}

// Spanish country names as they appear in exporter fields, accents folded.
var countryNames = map[string]string{
	"ARGENTINA": "AR",
	"BOLIVIA":   "BO",
	"BRASIL":    "BR",
	"CHILE":     "CL",
	"COLOMBIA":  "CO",
	"CUBA":      "CU",
	"ECUADOR":   "EC",
	"MEXICO":    "MX",
	"PANAMA":    "PA",
	"PARAGUAY":  "PY",
	"PERU":      "PE",
	"URUGUAY":   "UY",
	"VENEZUELA": "VE",
}

type UnsupportedCountryError struct {
	Country string
}

func (e *UnsupportedCountryError) Error() string {
	return fmt.Sprintf("unsupported exporter country %q", e.Country)
}

// foldCountry upper-cases and strips diacritics, so "México" and "MEXICO"
// compare equal.
func foldCountry(country string) string {
	stripMarks := transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)
	folded, _, foldError := transform.String(stripMarks, strings.TrimSpace(country))
	if foldError != nil {
		folded = strings.TrimSpace(country)
	}
	return strings.ToUpper(folded)
}

// CountryCode resolves an ISO 3166-1 alpha-2 code or a Spanish country name.
func CountryCode(country string) (string, error) {
	folded := foldCountry(country)
	if _, ok := countryZones[folded]; ok {
		return folded, nil
	}
	if code, ok := countryNames[folded]; ok {
		return code, nil
	}
	return "", &UnsupportedCountryError{Country: country}
}

func CountryLocation(country string) (*time.Location, error) {
	code, err := CountryCode(country)
	if err != nil {
		return nil, err
	}
	location, loadLocationError := time.LoadLocation(countryZones[code])
	if loadLocationError != nil {
		return nil, fmt.Errorf("loading zone for %s: %w", code, loadLocationError)
	}
	return location, nil
}

// LocalToInstant reads a zone-less timestamp as wall-clock time in the
// exporter country and returns the corresponding UTC instant.
func LocalToInstant(local string, country string) (time.Time, error) {
	location, err := CountryLocation(country)
	if err != nil {
		return time.Time{}, err
	}
	wallClock, parseError := time.ParseInLocation(LocalLayout, strings.TrimSpace(local), location)
	if parseError != nil {
		return time.Time{}, fmt.Errorf("parsing %q: %w", local, parseError)
	}
	return wallClock.UTC(), nil
}
