package normalize

import (
	"regexp"
	"strings"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"
)

var (
	multiSpace   = regexp.MustCompile(`\s+`)
	nonKeyChars  = regexp.MustCompile(`[^A-Z0-9]`)
	textLanguage = language.BrazilianPortuguese
)

// CleanText trims, upper-cases, and collapses internal whitespace runs to a
// single space. Returns nil if the input is nil or blank.
func CleanText(v *string) *string {
	if v == nil {
		return nil
	}
	s := strings.TrimSpace(*v)
	if s == "" {
		return nil
	}
	s = cases.Upper(textLanguage).String(s)
	s = multiSpace.ReplaceAllString(s, " ")
	return &s
}

// NormalizeSourceKey trims, upper-cases, and strips every character outside
// [A-Z0-9]. Returns nil if the input is blank or nothing survives.
func NormalizeSourceKey(raw string) *string {
	s := strings.TrimSpace(raw)
	if s == "" {
		return nil
	}
	s = cases.Upper(textLanguage).String(s)
	s = nonKeyChars.ReplaceAllString(s, "")
	if s == "" {
		return nil
	}
	return &s
}

// DoctorKey is the within-group identity of a doctor name.
func DoctorKey(name string) string {
	return strings.ToLower(strings.TrimSpace(name))
}

// Deref returns the trimmed value of v, or "" for nil.
func Deref(v *string) string {
	if v == nil {
		return ""
	}
	return strings.TrimSpace(*v)
}
