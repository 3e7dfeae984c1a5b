package profile

import (
	"regexp"
	"strings"
)

// Matches reports whether the profile's identification applies to the device.
// Every non-empty profile field must match its device field; a non-empty
// profile field against an empty device field is a mismatch. A profile with
// no identification fields matches nothing.
func (p *DeviceProfile) Matches(info DeviceInfo) bool {
	pairs := []struct{ pattern, value string }{
		{p.Identification.FriendlyName, info.FriendlyName},
		{p.Identification.Manufacturer, info.Manufacturer},
		{p.Identification.ManufacturerURL, info.ManufacturerURL},
		{p.Identification.ModelDescription, info.ModelDescription},
		{p.Identification.ModelName, info.ModelName},
		{p.Identification.ModelNumber, info.ModelNumber},
		{p.Identification.ModelURL, info.ModelURL},
		{p.Identification.SerialNumber, info.SerialNumber},
	}

	matchedAny := false
	for _, pair := range pairs {
		if pair.pattern == "" {
			continue
		}
		if pair.value == "" || !fieldMatches(pair.pattern, pair.value) {
			return false
		}
		matchedAny = true
	}
	return matchedAny
}

// fieldMatches tries the pattern as a case-insensitive regex first, falling
// back to a case-insensitive substring test when it does not compile or does
// not match. Profiles in the wild mix both styles freely.
func fieldMatches(pattern, value string) bool {
	if re, err := regexp.Compile("(?i)" + pattern); err == nil && re.MatchString(value) {
		return true
	}
	return strings.Contains(strings.ToLower(value), strings.ToLower(pattern))
}
