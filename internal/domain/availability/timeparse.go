package availability

import (
	"fmt"
	"strings"
	"time"
)

// DisplayLayout is the long human form, as printed by browsers and JS engines
// without the trailing zone name. ParseTime accepts it as input only;
// Schedule.Start and End render RFC 3339.
const DisplayLayout = "Mon Jan 02 2006 15:04:05 GMT-0700"

var zonedLayouts = []string{
	time.RFC3339Nano,
	time.RFC3339,
	DisplayLayout,
}

var localLayouts = []string{
	"January 2, 2006 15:04:05",
	"January 2, 2006",
	"2006-01-02T15:04:05",
	"2006-01-02",
}

// ParseTime reads the date forms accepted by Extend. Forms without a zone are
// taken in the local zone.
func ParseTime(s string) (time.Time, error) {
	v := strings.TrimSpace(s)
	if i := strings.Index(v, " ("); i > 0 && strings.HasSuffix(v, ")") {
		v = v[:i]
	}
	for _, layout := range zonedLayouts {
		if t, err := time.Parse(layout, v); err == nil {
			return t, nil
		}
	}
	for _, layout := range localLayouts {
		if t, err := time.ParseInLocation(layout, v, time.Local); err == nil {
			return t, nil
		}
	}
	return time.Time{}, fmt.Errorf("invalid date %q", s)
}
