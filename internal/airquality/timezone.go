package airquality

import (
	"fmt"
	"time"
)

// ConvertTimezone re-expresses every timestamp of f in the zone named tz.
// Instants are unchanged. Timestamps are held as UTC instants from the
// moment they are parsed, so zone-less source values are read as UTC.
// On an unknown zone the error is returned and f is left untouched; callers
// keep using f.
func ConvertTimezone(f Frame, tz string) (Frame, error) {
	loc, err := time.LoadLocation(tz)
	if err != nil {
		return Frame{}, fmt.Errorf("load timezone %q: %w", tz, err)
	}

	out := Frame{
		Records:  make([]Record, len(f.Records)),
		Timeline: f.Timeline,
		Zone:     loc.String(),
	}
	for i, r := range f.Records {
		c := r.clone()
		if !c.Timestamp.IsZero() {
			c.Timestamp = c.Timestamp.In(loc)
		}
		out.Records[i] = c
	}
	return out, nil
}
