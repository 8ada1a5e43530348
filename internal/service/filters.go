package service

import "strings"

// Sentinel filter selections. "all" disables the filter, "none" matches
// only records with an empty value.
const (
	FilterValueAll  = "all"
	FilterValueNone = "none"
)

// NormalizeFilterSelection maps blank or missing selections to the
// all-pass sentinel.
func NormalizeFilterSelection(value string) string {
	if text := strings.TrimSpace(value); text != "" {
		return text
	}
	return FilterValueAll
}

// ToAPIFilterValue converts a UI selection to the value sent to the
// API: sentinels become empty (no server-side filter).
func ToAPIFilterValue(value string) string {
	selected := NormalizeFilterSelection(value)
	if selected == FilterValueAll || selected == FilterValueNone {
		return ""
	}
	return selected
}

// MatchesFilterSelection reports whether a candidate value passes the
// selection.
func MatchesFilterSelection(selected, candidate string) bool {
	filter := NormalizeFilterSelection(selected)
	value := strings.TrimSpace(candidate)

	switch filter {
	case FilterValueAll:
		return true
	case FilterValueNone:
		return value == ""
	default:
		return value == filter
	}
}
