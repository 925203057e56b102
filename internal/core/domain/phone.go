package domain

import "strings"

const countryCodePrefix = "254"

// NormalizeMsisdn converts a Kenyan mobile number to international format:
// a leading "0" is replaced with "254", a number already carrying the prefix
// is left untouched, anything else gets the prefix prepended. The function is
// idempotent; creation and initiation both call it and must agree.
func NormalizeMsisdn(phone string) string {
	phone = strings.TrimSpace(phone)
	phone = strings.TrimPrefix(phone, "+")

	switch {
	case strings.HasPrefix(phone, countryCodePrefix):
		return phone
	case strings.HasPrefix(phone, "0"):
		return countryCodePrefix + phone[1:]
	default:
		return countryCodePrefix + phone
	}
}
