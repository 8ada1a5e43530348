// Package worklog implements the machine-managed worklog section that
// the agent embeds inside a task's free-text description: a delimited
// ledger of per-day, per-workspace durations. All functions are pure;
// malformed input degrades to "no data" instead of erroring so a
// corrupted section can never block the user.
package worklog

import (
	"fmt"
	"net/url"
	"regexp"
	"sort"
	"strconv"
	"strings"
	"time"
)

const (
	// SectionStart and SectionEnd delimit the managed section inside a
	// task description. They must match byte-for-byte; everything
	// outside them is user content and is preserved verbatim.
	SectionStart = "[InvoiceNinja VSCode Worklog]"
	SectionEnd   = "[/InvoiceNinja VSCode Worklog]"

	// DefaultRetentionDays is the trailing window of local calendar
	// days kept in a merged section, today inclusive.
	DefaultRetentionDays = 14
)

var (
	entryPattern = regexp.MustCompile(`^-\s+(\d{4}-\d{2}-\d{2})\s*\|\s*(.+?)\s*\|\s*(\d+)s\s*$`)
	datePattern  = regexp.MustCompile(`^\d{4}-\d{2}-\d{2}$`)
)

// Entry is one worklog line: seconds spent in a workspace on a local
// calendar day.
type Entry struct {
	Date      string
	Workspace string
	Seconds   int64
}

type parsedSection struct {
	startIndex int
	endIndex   int
	entries    []Entry
}

// MapKey builds the composite accumulator key for a (date, workspace)
// pair. The workspace label is escaped so the key survives labels that
// contain '|' or '%'; ParseMapKey reverses it exactly.
func MapKey(date, workspace string) string {
	return date + "|" + url.QueryEscape(workspace)
}

// ParseMapKey splits a composite key back into its date and workspace.
// It returns ok=false for keys that do not carry a valid date or whose
// workspace trims to empty.
func ParseMapKey(key string) (date, workspace string, ok bool) {
	sep := strings.Index(key, "|")
	if sep <= 0 {
		return "", "", false
	}

	date = strings.TrimSpace(key[:sep])
	if !datePattern.MatchString(date) {
		return "", "", false
	}

	encoded := key[sep+1:]
	workspace, err := url.QueryUnescape(encoded)
	if err != nil {
		workspace = encoded
	}
	workspace = strings.TrimSpace(workspace)
	if workspace == "" {
		return "", "", false
	}

	return date, workspace, true
}

// LocalDateKey formats a unix timestamp as a YYYY-MM-DD string in the
// local timezone of the process. Wall-clock local time, not UTC.
func LocalDateKey(unixSeconds int64) string {
	return time.Unix(unixSeconds, 0).Local().Format("2006-01-02")
}

// AddInterval folds the half-open interval [startUnix, endUnix) into
// the accumulator, splitting it at local midnight so each local
// calendar day gets its own entry. The split seconds always sum to
// endUnix-startUnix. Existing values are incremented in place. A
// workspace that trims to empty or a non-positive interval is a no-op.
func AddInterval(worklog map[string]int64, workspace string, startUnix, endUnix int64) {
	label := strings.TrimSpace(workspace)
	if label == "" || endUnix <= startUnix {
		return
	}

	cursor := startUnix
	for cursor < endUnix {
		nextDay := nextLocalDayStartUnix(cursor)
		segmentEnd := endUnix
		if nextDay < segmentEnd {
			segmentEnd = nextDay
		}
		if seconds := segmentEnd - cursor; seconds > 0 {
			worklog[MapKey(LocalDateKey(cursor), label)] += seconds
		}
		cursor = segmentEnd
	}
}

// Merge folds additions into the worklog section of description and
// returns the updated text. Existing entries are re-parsed and summed
// per (date, workspace) before the additions are applied, which makes
// the merge idempotent for repeated identical inputs. Entries older
// than retentionDays local calendar days (today inclusive) are pruned.
// If nothing survives the prune, the original description is returned
// unchanged. When no well-formed section exists, a fresh one is
// appended after the existing text, separated by exactly one blank
// line; a malformed fragment (e.g. an unterminated start marker) is
// left in place verbatim.
func Merge(description string, additions map[string]int64, nowUnix int64, retentionDays int) string {
	parsed := parseSection(description)
	merged := make(map[string]int64)

	if parsed != nil {
		for _, entry := range parsed.entries {
			merged[MapKey(entry.Date, entry.Workspace)] += entry.Seconds
		}
	}

	for key, seconds := range additions {
		date, workspace, ok := ParseMapKey(key)
		if !ok || seconds <= 0 {
			continue
		}
		merged[MapKey(date, workspace)] += seconds
	}

	prune(merged, nowUnix, retentionDays)
	entries := sortedEntries(merged)
	if len(entries) == 0 {
		return description
	}

	section := renderSection(entries)
	if parsed != nil {
		return description[:parsed.startIndex] + section + description[parsed.endIndex+len(SectionEnd):]
	}

	return appendSection(description, section)
}

func parseSection(description string) *parsedSection {
	startIndex := strings.Index(description, SectionStart)
	if startIndex < 0 {
		return nil
	}

	rest := description[startIndex+len(SectionStart):]
	endOffset := strings.Index(rest, SectionEnd)
	if endOffset < 0 {
		return nil
	}
	endIndex := startIndex + len(SectionStart) + endOffset

	var entries []Entry
	body := description[startIndex+len(SectionStart) : endIndex]
	for _, rawLine := range strings.Split(body, "\n") {
		line := strings.TrimSpace(strings.TrimSuffix(rawLine, "\r"))
		if line == "" {
			continue
		}
		if entry, ok := parseLine(line); ok {
			entries = append(entries, entry)
		}
	}

	return &parsedSection{startIndex: startIndex, endIndex: endIndex, entries: entries}
}

// parseLine parses a single "- YYYY-MM-DD | <workspace> | <seconds>s"
// line. Lines that do not match are dropped by the caller.
func parseLine(line string) (Entry, bool) {
	match := entryPattern.FindStringSubmatch(line)
	if match == nil {
		return Entry{}, false
	}

	workspace := strings.TrimSpace(match[2])
	seconds, err := strconv.ParseInt(match[3], 10, 64)
	if workspace == "" || err != nil || seconds <= 0 {
		return Entry{}, false
	}

	return Entry{Date: match[1], Workspace: workspace, Seconds: seconds}, true
}

func prune(merged map[string]int64, nowUnix int64, retentionDays int) {
	allowed := retainedDays(nowUnix, retentionDays)
	for key := range merged {
		date, _, ok := ParseMapKey(key)
		if !ok || !allowed[date] {
			delete(merged, key)
		}
	}
}

// retainedDays returns the set of local calendar dates inside the
// retention window: today and the previous retentionDays-1 days.
func retainedDays(nowUnix int64, retentionDays int) map[string]bool {
	days := retentionDays
	if days < 1 {
		days = DefaultRetentionDays
	}

	now := time.Unix(nowUnix, 0).Local()
	today := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, now.Location())

	retained := make(map[string]bool, days)
	for offset := 0; offset < days; offset++ {
		retained[today.AddDate(0, 0, -offset).Format("2006-01-02")] = true
	}
	return retained
}

func sortedEntries(merged map[string]int64) []Entry {
	entries := make([]Entry, 0, len(merged))
	for key, seconds := range merged {
		date, workspace, ok := ParseMapKey(key)
		if !ok || seconds <= 0 {
			continue
		}
		entries = append(entries, Entry{Date: date, Workspace: workspace, Seconds: seconds})
	}

	sort.Slice(entries, func(i, j int) bool {
		if entries[i].Date != entries[j].Date {
			return entries[i].Date > entries[j].Date
		}
		return entries[i].Workspace < entries[j].Workspace
	})
	return entries
}

func renderSection(entries []Entry) string {
	var b strings.Builder
	b.WriteString(SectionStart)
	for _, entry := range entries {
		fmt.Fprintf(&b, "\n- %s | %s | %ds", entry.Date, entry.Workspace, entry.Seconds)
	}
	b.WriteString("\n")
	b.WriteString(SectionEnd)
	return b.String()
}

// appendSection joins a rendered section onto existing text so that
// exactly one blank line separates them, regardless of how many
// trailing newlines the text already has.
func appendSection(description, section string) string {
	if description == "" {
		return section
	}
	if strings.HasSuffix(description, "\n\n") {
		return description + section
	}
	if strings.HasSuffix(description, "\n") {
		return description + "\n" + section
	}
	return description + "\n\n" + section
}

func nextLocalDayStartUnix(unixSeconds int64) int64 {
	t := time.Unix(unixSeconds, 0).Local()
	return time.Date(t.Year(), t.Month(), t.Day()+1, 0, 0, 0, 0, t.Location()).Unix()
}
