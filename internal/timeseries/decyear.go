package timeseries

import "time"

// FromDecimalYear converts a decimal year (e.g. 2021.5) to an instant by
// linear interpolation over the calendar year, so leap years stretch the
// fraction over 366 days. The result is truncated to millisecond
// resolution, matching how the portals publish their stamps.
func FromDecimalYear(decyear float64) time.Time {
	year := int(decyear)
	jan1 := time.Date(year, time.January, 1, 0, 0, 0, 0, time.UTC)
	next := time.Date(year+1, time.January, 1, 0, 0, 0, 0, time.UTC)
	frac := decyear - float64(year)
	elapsed := time.Duration(frac * float64(next.Sub(jan1)))
	return jan1.Add(elapsed).Truncate(time.Millisecond)
}
