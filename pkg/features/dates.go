package features

import (
	"strings"
	"time"

	"github.com/mchmarny/readmit/pkg/table"
)

var dateLayouts = []string{
	time.DateOnly,
	time.DateTime,
	time.RFC3339Nano,
	"2006-01-02T15:04:05",
	"2006-01-02T15:04",
	"2006-01-02 15:04",
	"2006/01/02",
	"01/02/2006",
	"1/2/2006",
	"01/02/2006 15:04:05",
	"1/2/2006 15:04",
	"01-02-2006",
	"02-Jan-2006",
	"Jan 2, 2006",
	"January 2, 2006",
	"20060102",
}

// ParseDate parses the date formats commonly found in claims extracts.
// Unparseable text returns false.
func ParseDate(s string) (time.Time, bool) {
	s = strings.TrimSpace(s)
	if s == "" {
		return time.Time{}, false
	}
	for _, layout := range dateLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t.UTC(), true
		}
	}
	return time.Time{}, false
}

// parseDates returns the parsed values of c and whether each parsed.
func parseDates(c *table.Column) ([]time.Time, []bool) {
	out := make([]time.Time, c.Len())
	ok := make([]bool, c.Len())
	for i := range out {
		if c.IsNull(i) {
			continue
		}
		out[i], ok[i] = ParseDate(c.String(i))
	}
	return out, ok
}
