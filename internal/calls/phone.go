package calls

import (
	"fmt"
	"strings"

	"github.com/nyaruka/phonenumbers"
)

// NormalizePhone parses raw in the given default region and returns it in E.164.
// Numbers that start with "+" ignore the region.
func NormalizePhone(raw, region string) (string, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return "", fmt.Errorf("%w: phone number is required", ErrInvalidArgument)
	}
	if region == "" {
		region = "US"
	}
	num, err := phonenumbers.Parse(raw, strings.ToUpper(region))
	if err != nil {
		return "", fmt.Errorf("%w: phone number %q is malformed", ErrInvalidArgument, raw)
	}
	if !phonenumbers.IsValidNumber(num) {
		return "", fmt.Errorf("%w: phone number %q is not a valid number", ErrInvalidArgument, raw)
	}
	return phonenumbers.Format(num, phonenumbers.E164), nil
}
