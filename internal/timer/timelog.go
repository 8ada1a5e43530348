package timer

import (
	"encoding/json"
	"math"
	"strconv"
	"strings"

	"github.com/svenbledt/invoiceninja-vscode/internal/models"
)

// TimeSegment is one [startUnix, endUnix] pair from a task's time log.
// An end of 0 marks the segment as still open.
type TimeSegment [2]int64

// ParseTimeLog decodes the text-encoded time log into segments. It is
// total: malformed input, non-array payloads, and segments that are not
// numeric pairs all degrade to "no history" instead of erroring, so a
// corrupt time log can never block starting or stopping the timer.
func ParseTimeLog(raw string) []TimeSegment {
	if strings.TrimSpace(raw) == "" {
		return nil
	}

	var outer []json.RawMessage
	if err := json.Unmarshal([]byte(raw), &outer); err != nil {
		return nil
	}

	segments := make([]TimeSegment, 0, len(outer))
	for _, item := range outer {
		var pair []float64
		if err := json.Unmarshal(item, &pair); err != nil || len(pair) < 2 {
			continue
		}
		segments = append(segments, TimeSegment{
			int64(math.Floor(pair[0])),
			int64(math.Floor(pair[1])),
		})
	}
	return segments
}

// EncodeTimeLog renders segments back into the wire encoding.
func EncodeTimeLog(segments []TimeSegment) string {
	if segments == nil {
		segments = []TimeSegment{}
	}
	data, _ := json.Marshal(segments)
	return string(data)
}

// openSegmentIndex returns the index of the first open segment, or -1.
func openSegmentIndex(segments []TimeSegment) int {
	for i, segment := range segments {
		if segment[1] <= 0 {
			return i
		}
	}
	return -1
}

// TaskElapsedSeconds derives a task's total tracked seconds. The
// server-reported duration field wins when present: "h:mm:ss" and
// "mm:ss" clock strings, decimal hours, and plain integer seconds are
// all accepted. When the duration is absent or unreadable, the time
// log's segments are summed, with an open segment counted up to nowUnix.
func TaskElapsedSeconds(task *models.Task, nowUnix int64) int64 {
	text := strings.TrimSpace(task.Duration.String())
	if text != "" {
		if strings.Contains(text, ":") {
			if seconds, ok := parseClockDuration(text); ok {
				return seconds
			}
		} else if value, err := strconv.ParseFloat(text, 64); err == nil {
			if strings.Contains(text, ".") || value != math.Trunc(value) {
				return clampSeconds(math.Round(value * 3600))
			}
			return clampSeconds(math.Round(value))
		}
	}

	var total int64
	for _, segment := range ParseTimeLog(task.TimeLog) {
		start, end := segment[0], segment[1]
		if start == 0 {
			continue
		}
		if end <= 0 {
			end = nowUnix
		}
		if elapsed := end - start; elapsed > 0 {
			total += elapsed
		}
	}
	return total
}

func parseClockDuration(text string) (int64, bool) {
	parts := strings.Split(text, ":")
	values := make([]float64, 0, len(parts))
	for _, part := range parts {
		value, err := strconv.ParseFloat(strings.TrimSpace(part), 64)
		if err != nil {
			return 0, false
		}
		values = append(values, value)
	}

	switch len(values) {
	case 3:
		return clampSeconds(math.Round(values[0]*3600 + values[1]*60 + values[2])), true
	case 2:
		return clampSeconds(math.Round(values[0]*60 + values[1])), true
	default:
		return 0, false
	}
}

func clampSeconds(value float64) int64 {
	if value < 0 {
		return 0
	}
	return int64(value)
}

// FormatDuration renders seconds as an h:mm:ss clock string for the
// status line. Hours are not zero-padded and may exceed 24.
func FormatDuration(totalSeconds int64) string {
	if totalSeconds < 0 {
		totalSeconds = 0
	}
	hours := totalSeconds / 3600
	minutes := (totalSeconds % 3600) / 60
	seconds := totalSeconds % 60
	return strconv.FormatInt(hours, 10) + ":" + pad2(minutes) + ":" + pad2(seconds)
}

func pad2(value int64) string {
	if value < 10 {
		return "0" + strconv.FormatInt(value, 10)
	}
	return strconv.FormatInt(value, 10)
}
