package periods

import (
	"fmt"
	"time"

	"github.com/sixdouglas/suncalc"
)

// GenerateDaylight bulk-creates labeled periods over [from, to) from the
// sun's schedule at the given coordinates: one period per daylight span and
// one per night span. When trueDuringDaylight is set the daylight spans are
// the TRUE class; otherwise the nights are.
//
// Spans are clipped to the requested range and degenerate spans are dropped,
// so the first and last day may contribute partial periods.
func GenerateDaylight(lat, lon float64, from, to time.Time, trueDuringDaylight bool) ([]TimePeriod, error) {
	if !from.Before(to) {
		return nil, fmt.Errorf("range start %s must be before end %s", from, to)
	}

	var out []TimePeriod
	cursor := from

	// Walk day by day; night periods bridge sunset to the next day's sunrise.
	for day := from; day.Before(to.Add(24 * time.Hour)); day = day.Add(24 * time.Hour) {
		times := suncalc.GetTimes(day, lat, lon)
		sunrise := times[suncalc.Sunrise].Value
		sunset := times[suncalc.Sunset].Value

		if sunrise.IsZero() || sunset.IsZero() || !sunrise.Before(sunset) {
			// Polar day/night: no usable boundary, skip this day
			continue
		}

		// Night span from the previous boundary up to this sunrise
		if night := clip(cursor, sunrise, from, to); night != nil {
			p, err := New(night[0], night[1], !trueDuringDaylight, "night")
			if err != nil {
				return nil, err
			}
			out = append(out, p)
		}

		// Daylight span
		if dayspan := clip(sunrise, sunset, from, to); dayspan != nil {
			p, err := New(dayspan[0], dayspan[1], trueDuringDaylight, "daylight")
			if err != nil {
				return nil, err
			}
			out = append(out, p)
		}

		cursor = sunset
		if !cursor.Before(to) {
			break
		}
	}

	// Trailing night after the last sunset
	if cursor.Before(to) {
		if night := clip(cursor, to, from, to); night != nil {
			p, err := New(night[0], night[1], !trueDuringDaylight, "night")
			if err != nil {
				return nil, err
			}
			out = append(out, p)
		}
	}

	return out, nil
}

// clip intersects [start, end) with [from, to) and returns nil when the
// intersection is empty.
func clip(start, end, from, to time.Time) []time.Time {
	if start.Before(from) {
		start = from
	}
	if end.After(to) {
		end = to
	}
	if !start.Before(end) {
		return nil
	}
	return []time.Time{start, end}
}
