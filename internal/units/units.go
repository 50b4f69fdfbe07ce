// Package units validates and converts the display units of reports.
// Distances are stored in metres and timestamps in UTC.
package units

import (
	"fmt"
	"strings"
	"time"
)

// Distance unit constants
const (
	Metres = "m"
	Feet   = "ft"
	Yards  = "yd"
)

// ValidUnits contains all valid distance units
var ValidUnits = []string{Metres, Feet, Yards}

// IsValid checks if the given unit is in the list of valid units
func IsValid(unit string) bool {
	for _, validUnit := range ValidUnits {
		if unit == validUnit {
			return true
		}
	}
	return false
}

// GetValidUnitsString returns a comma-separated string of valid units for error messages
func GetValidUnitsString() string {
	return strings.Join(ValidUnits, ", ")
}

// ConvertDistance converts metres to the target unit. Unknown units are
// treated as metres.
func ConvertDistance(metres float64, targetUnits string) float64 {
	switch targetUnits {
	case Feet:
		return metres / 0.3048
	case Yards:
		return metres / 0.9144
	default:
		return metres
	}
}

// IsTimezoneValid checks the tz database for tz.
func IsTimezoneValid(tz string) bool {
	if tz == "" {
		return false
	}
	_, err := time.LoadLocation(tz)
	return err == nil
}

// ConvertTime converts a UTC time to the specified timezone for display.
func ConvertTime(utcTime time.Time, targetTimezone string) (time.Time, error) {
	if targetTimezone == "" || targetTimezone == "UTC" {
		return utcTime.UTC(), nil
	}
	loc, err := time.LoadLocation(targetTimezone)
	if err != nil {
		return utcTime, fmt.Errorf("failed to load timezone %s: %w", targetTimezone, err)
	}
	return utcTime.In(loc), nil
}
