package accessory

import "regexp"

var (
	// validName: starts and ends with a letter or digit, interior limited
	// to letters, digits, space and apostrophe.
	validName = regexp.MustCompile(`^[\p{L}\p{N}]([\p{L}\p{N} ']*[\p{L}\p{N}])?$`)

	disallowedChars = regexp.MustCompile(`[^\p{L}\p{N} ']`)
	ragged          = regexp.MustCompile(`^[^\p{L}\p{N}]+|[^\p{L}\p{N}]+$`)
)

// Sanitizer cleans user-facing labels before they are exposed to HomeKit.
type Sanitizer struct {
	allowAny bool
	logger   Logger
}

// NewSanitizer returns a Sanitizer. With allowAny set, labels pass through
// untouched.
func NewSanitizer(allowAny bool, logger Logger) *Sanitizer {
	if logger == nil {
		logger = noopLogger{}
	}
	return &Sanitizer{allowAny: allowAny, logger: logger}
}

// Sanitize returns value cleaned for use as the field of the accessory
// labelled current. It never fails and may return "".
func (s *Sanitizer) Sanitize(current, field, value string) string {
	if s.allowAny || validName.MatchString(value) {
		return value
	}

	cleaned := disallowedChars.ReplaceAllString(value, "")
	if cleaned != value {
		s.logger.Warn("removed invalid characters from name",
			"accessory", current, "field", field, "from", value, "to", cleaned)
	}

	trimmed := ragged.ReplaceAllString(cleaned, "")
	if trimmed != cleaned {
		s.logger.Warn("removed leading or trailing characters from name",
			"accessory", current, "field", field, "from", cleaned, "to", trimmed)
	}

	return trimmed
}
