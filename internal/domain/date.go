package domain

import "strings"

// Calendar-day handling. Backend dates may arrive as bare YYYY-MM-DD strings
// or as full timestamps. Normalization works purely on the encoded date
// fields: a timestamp is never converted through a local-zone instant, which
// would risk shifting the day for users away from UTC.

const dayKeyLen = len("2006-01-02")

// NormalizeDate converts any backend date representation to a canonical
// YYYY-MM-DD string. Returns "" for values that carry no parseable calendar
// date; such records stay in the cache but are excluded from aggregation.
func NormalizeDate(value string) string {
	value = strings.TrimSpace(value)
	if value == "" {
		return ""
	}

	if isDayString(value) {
		return value
	}

	// Timestamps like 2024-03-05T23:30:00Z or 2024-03-05 23:30:00 start with
	// the calendar date followed by a separator. Take the date part as-is.
	if len(value) > dayKeyLen && isDayString(value[:dayKeyLen]) {
		switch value[dayKeyLen] {
		case 'T', 't', ' ':
			return value[:dayKeyLen]
		}
	}

	return ""
}

// MonthKey returns the YYYY-MM prefix of a normalized date, or "" when the
// date is empty or malformed.
func MonthKey(date string) string {
	if !isDayString(date) {
		return ""
	}
	return date[:len("2006-01")]
}

// isDayString reports whether s is exactly YYYY-MM-DD with plausible
// month/day components.
func isDayString(s string) bool {
	if len(s) != dayKeyLen || s[4] != '-' || s[7] != '-' {
		return false
	}
	for i, c := range s {
		if i == 4 || i == 7 {
			continue
		}
		if c < '0' || c > '9' {
			return false
		}
	}
	month := int(s[5]-'0')*10 + int(s[6]-'0')
	day := int(s[8]-'0')*10 + int(s[9]-'0')
	return month >= 1 && month <= 12 && day >= 1 && day <= 31
}
