package birthday

import (
	"fmt"
	"time"
)

// Date normalization and key arithmetic for recurring "DD.MM" birthday keys.
// Keys are year-agnostic: 29.02 is always a valid key even though it only
// matches in leap years.

var ErrUnrecognizedDate = fmt.Errorf("date not recognized, expected 2 to 4 digits")
var ErrImpossibleDate = fmt.Errorf("no such calendar day")

// daysInMonth is the maximum day accepted per month for a year-agnostic key.
// February allows 29 regardless of year.
var daysInMonth = [13]int{0, 31, 29, 31, 30, 31, 30, 31, 31, 30, 31, 30, 31}

// Normalize converts raw user input into a canonical "DD.MM" key.
// All non-digit characters are stripped first, so "15.09", "15 09" and
// "1509" are equivalent. The digit count decides the interpretation:
//
//	2 digits: day only, month defaults to January ("09" -> "09.01")
//	3 digits: single-digit day plus month ("310" -> "03.10")
//	4 digits: day plus month ("1509" -> "15.09")
//
// The January default for 2-digit input is questionable but is kept as
// long-standing behavior.
func Normalize(raw string) (string, error) {
	digits := make([]byte, 0, len(raw))
	for i := 0; i < len(raw); i++ {
		if raw[i] >= '0' && raw[i] <= '9' {
			digits = append(digits, raw[i])
		}
	}

	var key string
	switch len(digits) {
	case 2:
		key = string(digits) + ".01"
	case 3:
		key = "0" + string(digits[:1]) + "." + string(digits[1:])
	case 4:
		key = string(digits[:2]) + "." + string(digits[2:])
	default:
		return "", ErrUnrecognizedDate
	}

	if !IsValidKey(key) {
		return "", ErrImpossibleDate
	}
	return key, nil
}

// IsValidKey reports whether key is a well-formed "DD.MM" string naming a
// calendar day that exists in at least one year.
func IsValidKey(key string) bool {
	if len(key) != 5 || key[2] != '.' {
		return false
	}
	day, ok1 := twoDigits(key[0], key[1])
	month, ok2 := twoDigits(key[3], key[4])
	if !ok1 || !ok2 {
		return false
	}
	if month < 1 || month > 12 {
		return false
	}
	return day >= 1 && day <= daysInMonth[month]
}

func twoDigits(hi, lo byte) (int, bool) {
	if hi < '0' || hi > '9' || lo < '0' || lo > '9' {
		return 0, false
	}
	return int(hi-'0')*10 + int(lo-'0'), true
}

// KeyFor returns the "DD.MM" key of a concrete calendar date.
func KeyFor(t time.Time) string {
	return fmt.Sprintf("%02d.%02d", t.Day(), int(t.Month()))
}

// HorizonKey returns the key of the date horizonDays after t. The underlying
// arithmetic runs on the real calendar, so month and year rollovers (and
// leap days) are handled by time.AddDate.
func HorizonKey(t time.Time, horizonDays int) string {
	return KeyFor(t.AddDate(0, 0, horizonDays))
}

// RetainedKeys lists every key a live ledger entry may carry relative to
// today: from retentionDays in the past through horizonDays in the future.
// Anything outside this window is unreachable by any current run and can be
// swept. Year wraparound falls out of the calendar arithmetic: for today
// 02.01 with retention 2 the window starts at 31.12.
func RetainedKeys(today time.Time, retentionDays, horizonDays int) []string {
	keys := make([]string, 0, retentionDays+horizonDays+1)
	for off := -retentionDays; off <= horizonDays; off++ {
		keys = append(keys, KeyFor(today.AddDate(0, 0, off)))
	}
	return keys
}
