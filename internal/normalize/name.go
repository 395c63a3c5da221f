// Package normalize turns free-text spreadsheet cells into canonical values:
// person names into a display form plus a comparison key, and direction or
// status labels into closed-set codes.
package normalize

import (
	"strings"
	"unicode"

	"golang.org/x/text/cases"
	"golang.org/x/text/unicode/norm"
)

// maxUsernameBase leaves room for a numeric suffix inside the 150-char column.
const maxUsernameBase = 140

// Normalize collapses whitespace runs, trims and NFC-composes raw.
// key is the case-folded display form; an empty key means "no identity".
func Normalize(raw string) (display, key string) {
	fields := strings.Fields(raw)
	if len(fields) == 0 {
		return "", ""
	}
	display = norm.NFC.String(strings.Join(fields, " "))
	// Caser is stateful, one per call.
	key = cases.Fold().String(display)
	return display, key
}

// Key is Normalize without the display form.
func Key(raw string) string {
	_, key := Normalize(raw)
	return key
}

// SplitName splits a display form at the first whitespace.
// A single token yields an empty last name.
func SplitName(display string) (first, last string) {
	display = strings.TrimSpace(display)
	idx := strings.IndexFunc(display, unicode.IsSpace)
	if idx < 0 {
		return display, ""
	}
	return display[:idx], strings.TrimSpace(display[idx:])
}

// UsernameBase derives a login prefix from a display form: lower case,
// letters and digits of any script kept, every other run collapsed to '_'.
func UsernameBase(display, fallback string) string {
	var b strings.Builder
	pendingSep := false
	n := 0
	for _, r := range strings.ToLower(display) {
		if n >= maxUsernameBase {
			break
		}
		if unicode.IsLetter(r) || unicode.IsDigit(r) {
			if pendingSep && b.Len() > 0 {
				b.WriteByte('_')
				n++
			}
			pendingSep = false
			b.WriteRune(r)
			n++
			continue
		}
		pendingSep = true
	}
	if b.Len() == 0 {
		return fallback
	}
	return b.String()
}
