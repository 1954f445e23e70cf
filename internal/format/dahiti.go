// Package format holds the per-portal payload parsers. Each parser is a
// pure function from one raw product payload to a header map plus a
// normalized time series.
package format

import (
	"encoding/json"
	"fmt"
	"io"
	"time"

	"github.com/ITC-Water-Resources/hydrosync/internal/portal"
	"github.com/ITC-Water-Resources/hydrosync/internal/timeseries"
)

type dahitiSample struct {
	Datetime   string   `json:"datetime"`
	WaterLevel float64  `json:"water_level"`
	Error      *float64 `json:"error"`
}

type dahitiPayload struct {
	Info map[string]any `json:"info"`
	Data []dahitiSample `json:"data"`
}

var dahitiTimeLayouts = []string{
	"2006-01-02 15:04:05",
	"2006-01-02 15:04",
	"2006-01-02",
	time.RFC3339,
}

// ParseDahitiWaterLevel decodes a Dahiti download-water-level JSON body
// into a single-variable series (water_level plus wl_err). An empty data
// array yields portal.ErrEmptyResult.
func ParseDahitiWaterLevel(r io.Reader) (map[string]string, *timeseries.Series, error) {
	var payload dahitiPayload
	if err := json.NewDecoder(r).Decode(&payload); err != nil {
		return nil, nil, portal.Malformed(err, "dahiti water level body")
	}
	if len(payload.Data) == 0 {
		return nil, nil, portal.ErrEmptyResult
	}

	header := make(map[string]string, len(payload.Info))
	for k, v := range payload.Info {
		header[k] = fmt.Sprint(v)
	}

	series := timeseries.New()
	for i, sample := range payload.Data {
		t, err := parseDahitiTime(sample.Datetime)
		if err != nil {
			return nil, nil, portal.Malformed(err, "dahiti sample %d", i)
		}
		series.AppendTime(t)
		series.AppendFloat("water_level", sample.WaterLevel)
		if sample.Error != nil {
			series.AppendFloat("wl_err", *sample.Error)
		} else {
			series.AppendFloat("wl_err", 0)
		}
	}
	if err := series.Validate(); err != nil {
		return nil, nil, portal.Malformed(err, "dahiti series")
	}
	return header, series, nil
}

func parseDahitiTime(raw string) (time.Time, error) {
	for _, layout := range dahitiTimeLayouts {
		if t, err := time.Parse(layout, raw); err == nil {
			return t.UTC(), nil
		}
	}
	return time.Time{}, fmt.Errorf("unrecognized datetime %q", raw)
}
