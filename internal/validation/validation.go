package validation

import (
	"errors"
	"unicode"
	"unicode/utf8"
)

// ErrSelectionTooLong is returned when a submitted value exceeds the maximum length.
var ErrSelectionTooLong = errors.New("selection too long")

// ErrSelectionInvalidChars is returned when a submitted value contains control characters
// or is not valid UTF-8.
var ErrSelectionInvalidChars = errors.New("selection contains invalid characters")

// ValidateSelection checks a value posted from a select control. The value is returned
// unchanged: codes and city names are passed to the backend verbatim, so no trimming or
// case folding happens here. Empty is valid (the placeholder option). maxLen counts runes;
// maxLen <= 0 disables the length check.
func ValidateSelection(input string, maxLen int) (string, error) {
	if !utf8.ValidString(input) {
		return "", ErrSelectionInvalidChars
	}
	if maxLen > 0 && utf8.RuneCountInString(input) > maxLen {
		return "", ErrSelectionTooLong
	}
	for _, c := range input {
		if unicode.IsControl(c) {
			return "", ErrSelectionInvalidChars
		}
	}
	return input, nil
}
