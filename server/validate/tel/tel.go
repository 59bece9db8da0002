// Package tel normalizes phone numbers used as routable chatroom addresses.
//
// All addresses are stored and compared in E.164 form so different
// formattings of the same number ("+1 555 123 4567", "(555) 123-4567")
// always resolve to the same chatroom.
package tel

import (
	"errors"
	"strings"

	"github.com/nyaruka/phonenumbers"
)

// ErrInvalidNumber is returned when the input cannot be parsed as a phone
// number or fails validation for its region.
var ErrInvalidNumber = errors.New("tel: invalid phone number")

// Normalize parses raw and returns the number formatted as E.164.
// defaultRegion is the ISO 3166-1 country code assumed for numbers without
// the leading '+', e.g. "US".
func Normalize(raw, defaultRegion string) (string, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return "", ErrInvalidNumber
	}

	num, err := phonenumbers.Parse(raw, defaultRegion)
	if err != nil {
		return "", ErrInvalidNumber
	}
	// Possibility (length) check rather than full carrier validation:
	// messaging providers route from fictional and test ranges which fail
	// strict validation but are perfectly routable addresses.
	if !phonenumbers.IsPossibleNumber(num) {
		return "", ErrInvalidNumber
	}

	return phonenumbers.Format(num, phonenumbers.E164), nil
}
