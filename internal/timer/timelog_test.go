package timer

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/svenbledt/invoiceninja-vscode/internal/models"
)

func TestParseTimeLog(t *testing.T) {
	tests := []struct {
		name     string
		raw      string
		expected []TimeSegment
	}{
		{
			name:     "closed and open segments",
			raw:      `[[100,200],[300,0]]`,
			expected: []TimeSegment{{100, 200}, {300, 0}},
		},
		{
			name:     "empty string",
			raw:      "",
			expected: nil,
		},
		{
			name:     "not json",
			raw:      "garbage",
			expected: nil,
		},
		{
			name:     "not an array",
			raw:      `{"a":1}`,
			expected: nil,
		},
		{
			name:     "bad segments dropped individually",
			raw:      `[[100,200],"oops",[300],[400,500]]`,
			expected: []TimeSegment{{100, 200}, {400, 500}},
		},
		{
			name:     "fractional values floored",
			raw:      `[[100.9,200.2]]`,
			expected: []TimeSegment{{100, 200}},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, ParseTimeLog(tt.raw))
		})
	}
}

func TestEncodeTimeLog_RoundTrip(t *testing.T) {
	assert.Equal(t, `[]`, EncodeTimeLog(nil))

	encoded := EncodeTimeLog([]TimeSegment{{100, 200}, {300, 0}})
	assert.Equal(t, `[[100,200],[300,0]]`, encoded)
	assert.Equal(t, []TimeSegment{{100, 200}, {300, 0}}, ParseTimeLog(encoded))
}

func TestTaskElapsedSeconds(t *testing.T) {
	tests := []struct {
		name     string
		duration string
		timeLog  string
		now      int64
		expected int64
	}{
		{
			name:     "h:mm:ss clock string",
			duration: "1:30:15",
			expected: 5415,
		},
		{
			name:     "mm:ss clock string",
			duration: "45:30",
			expected: 2730,
		},
		{
			name:     "decimal hours",
			duration: "1.5",
			expected: 5400,
		},
		{
			name:     "integer seconds",
			duration: "3600",
			expected: 3600,
		},
		{
			name:     "negative duration clamps to zero",
			duration: "-5",
			expected: 0,
		},
		{
			name:     "falls back to summing segments",
			timeLog:  `[[100,400],[500,800]]`,
			expected: 600,
		},
		{
			name:     "open segment counts up to now",
			timeLog:  `[[100,400],[500,0]]`,
			now:      900,
			expected: 700,
		},
		{
			name:     "segments without a start are skipped",
			timeLog:  `[[0,400],[500,700]]`,
			expected: 200,
		},
		{
			name:     "no duration and no log",
			expected: 0,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			task := &models.Task{
				Duration: json.Number(tt.duration),
				TimeLog:  tt.timeLog,
			}
			assert.Equal(t, tt.expected, TaskElapsedSeconds(task, tt.now))
		})
	}
}

func TestFormatDuration(t *testing.T) {
	assert.Equal(t, "0:00:00", FormatDuration(0))
	assert.Equal(t, "0:00:59", FormatDuration(59))
	assert.Equal(t, "1:01:01", FormatDuration(3661))
	assert.Equal(t, "25:00:00", FormatDuration(90000))
	assert.Equal(t, "0:00:00", FormatDuration(-5))
}
