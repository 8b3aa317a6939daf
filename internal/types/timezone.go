package types

import (
	"strings"
	"time"

	ierr "github.com/flexprice/entitlements/internal/errors"
)

// timezoneAbbreviations maps the abbreviations customers commonly send to IANA names.
var timezoneAbbreviations = map[string]string{
	"IST":  "Asia/Kolkata",
	"EST":  "America/New_York",
	"CST":  "America/Chicago",
	"MST":  "America/Denver",
	"PST":  "America/Los_Angeles",
	"GMT":  "Europe/London",
	"BST":  "Europe/London",
	"CET":  "Europe/Berlin",
	"EET":  "Europe/Athens",
	"JST":  "Asia/Tokyo",
	"KST":  "Asia/Seoul",
	"AEST": "Australia/Sydney",
}

// ResolveTimezone converts an abbreviation to its IANA identifier and returns
// any other input unchanged.
func ResolveTimezone(timezone string) string {
	if iana, ok := timezoneAbbreviations[strings.ToUpper(timezone)]; ok {
		return iana
	}
	return timezone
}

// LoadTimezone resolves timezone to a location, defaulting to UTC when empty.
func LoadTimezone(timezone string) (*time.Location, error) {
	if timezone == "" {
		return time.UTC, nil
	}
	loc, err := time.LoadLocation(ResolveTimezone(timezone))
	if err != nil {
		return nil, ierr.WithError(err).
			WithHintf("Unknown timezone %s", timezone).
			Mark(ierr.ErrValidation)
	}
	return loc, nil
}
