package tools

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"

	ports "github.com/ZanzyTHEbar/persona-rag/persona/generation/harness/ports"
)

const timeSinceSchema = `{
  "type": "object",
  "properties": {
    "date": {
      "type": "string",
      "description": "Start date as MM/YYYY, MM-YYYY or YYYY"
    }
  },
  "required": ["date"]
}`

var (
	monthYearPattern = regexp.MustCompile(`^(\d{1,2})[/-](\d{4})$`)
	yearPattern      = regexp.MustCompile(`^(\d{4})$`)

	ErrInvalidDate = errors.New("invalid date")
	ErrFutureDate  = errors.New("date is in the future")
)

// TimeSinceTool computes elapsed time from a month or year, e.g. for
// "how long have you worked with Java".
type TimeSinceTool struct {
	now func() time.Time
}

// NewTimeSinceTool uses now as the clock; nil means time.Now.
func NewTimeSinceTool(now func() time.Time) *TimeSinceTool {
	if now == nil {
		now = time.Now
	}
	return &TimeSinceTool{now: now}
}

func (t *TimeSinceTool) Name() string { return "time-since" }

func (t *TimeSinceTool) Description() string {
	return "Computes how much time has passed since a date given as MM/YYYY or YYYY. Use it for durations of experience or projects."
}

func (t *TimeSinceTool) Schema() []byte { return []byte(timeSinceSchema) }

func (t *TimeSinceTool) Invoke(_ context.Context, args json.RawMessage) (ports.ToolOutput, error) {
	var params struct {
		Date string `json:"date"`
	}
	if err := json.Unmarshal(args, &params); err != nil {
		return ports.ToolOutput{}, fmt.Errorf("invalid arguments: %w", err)
	}
	text, err := TimeSince(params.Date, t.now())
	if err != nil {
		return ports.ToolOutput{Text: "Error: " + err.Error()}, nil
	}
	return ports.ToolOutput{Text: text, Count: 1}, nil
}

// TimeSince renders the whole months between date and now.
func TimeSince(date string, now time.Time) (string, error) {
	year, month, err := parseMonthYear(strings.TrimSpace(date))
	if err != nil {
		return "", err
	}
	months := (now.Year()-year)*12 + int(now.Month()) - month
	if months < 0 {
		return "", fmt.Errorf("%w: %s", ErrFutureDate, date)
	}
	return formatElapsed(months/12, months%12), nil
}

func parseMonthYear(s string) (year, month int, err error) {
	if m := monthYearPattern.FindStringSubmatch(s); m != nil {
		month, _ = strconv.Atoi(m[1])
		year, _ = strconv.Atoi(m[2])
		if month < 1 || month > 12 {
			return 0, 0, fmt.Errorf("%w: month %d out of range in %q", ErrInvalidDate, month, s)
		}
		return year, month, nil
	}
	if m := yearPattern.FindStringSubmatch(s); m != nil {
		year, _ = strconv.Atoi(m[1])
		return year, 1, nil
	}
	return 0, 0, fmt.Errorf("%w: %q, expected MM/YYYY or YYYY", ErrInvalidDate, s)
}

func formatElapsed(years, months int) string {
	unit := func(n int, singular, plural string) string {
		if n == 1 {
			return "1 " + singular
		}
		return strconv.Itoa(n) + " " + plural
	}
	switch {
	case years == 0 && months == 0:
		return "less than one month"
	case months == 0:
		return unit(years, "year", "years")
	case years == 0:
		return unit(months, "month", "months")
	}
	return unit(years, "year", "years") + " and " + unit(months, "month", "months")
}
