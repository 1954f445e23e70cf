package format

import (
	"bufio"
	"io"
	"strconv"
	"strings"
	"time"

	"github.com/ITC-Water-Resources/hydrosync/internal/portal"
	"github.com/ITC-Water-Resources/hydrosync/internal/timeseries"
)

const stampLayout = "2006-01-02T15:04:05.000Z07:00"

// Hydroweb lakes files rename a few header keys to the vocabulary the
// record store uses.
var lakesKeyMap = map[string]string{
	"date":       "lastupdate",
	"id":         "hydrowebid",
	"last_date":  "tend",
	"first_date": "tstart",
}

// ParseHydrowebLakes reads a Hydroweb "lakes" text product: one
// ;-delimited key=value header line, then ;-delimited data rows with
// #-prefixed free text collected into a readme header entry. Decimal-year
// columns are converted to instants.
func ParseHydrowebLakes(r io.Reader) (map[string]string, *timeseries.Series, error) {
	sc := bufio.NewScanner(r)
	sc.Buffer(make([]byte, 64*1024), 4*1024*1024)

	if !sc.Scan() {
		return nil, nil, portal.Malformed(sc.Err(), "lakes header line missing")
	}

	header := make(map[string]string)
	series := timeseries.New()
	for _, entry := range strings.Split(strings.TrimSpace(sc.Text()), ";") {
		key, val, ok := strings.Cut(entry, "=")
		if !ok {
			return nil, nil, portal.Malformed(nil, "lakes header entry %q", entry)
		}
		switch key {
		case "date", "first_date", "last_date":
			decyear, err := strconv.ParseFloat(val, 64)
			if err != nil {
				return nil, nil, portal.Malformed(err, "lakes header %s", key)
			}
			header[lakesKeyMap[key]] = timeseries.FromDecimalYear(decyear).Format(stampLayout)
		case "lon", "lat":
			// scalar coordinates live on the series, not the header
			series.Attrs[key] = val
		default:
			if mapped, ok := lakesKeyMap[key]; ok {
				key = mapped
			}
			header[key] = val
		}
	}

	var readme strings.Builder
	for sc.Scan() {
		line := sc.Text()
		if strings.TrimSpace(line) == "" {
			continue
		}
		if strings.HasPrefix(line, "#") {
			readme.WriteString(line)
			readme.WriteString("\n")
			continue
		}
		cols := strings.Split(line, ";")
		if len(cols) < 7 {
			return nil, nil, portal.Malformed(nil, "lakes row has %d columns", len(cols))
		}
		decyear, err := strconv.ParseFloat(strings.TrimSpace(cols[0]), 64)
		if err != nil {
			return nil, nil, portal.Malformed(err, "lakes time column")
		}
		series.AppendTime(timeseries.FromDecimalYear(decyear))
		for name, idx := range map[string]int{
			"water_level":     3,
			"water_level_std": 4,
			"area":            5,
			"volume":          6,
		} {
			v, err := strconv.ParseFloat(strings.TrimSpace(cols[idx]), 64)
			if err != nil {
				return nil, nil, portal.Malformed(err, "lakes column %s", name)
			}
			series.AppendFloat(name, v)
		}
	}
	if err := sc.Err(); err != nil {
		return nil, nil, err
	}
	header["readme"] = readme.String()
	if err := series.Validate(); err != nil {
		return nil, nil, portal.Malformed(err, "lakes series")
	}
	return header, series, nil
}

// Hydroweb rivers header lines use KEY::value with a fixed vocabulary.
var riversHeaderMap = map[string]string{
	"#BASIN":                 "basin",
	"#RIVER":                 "river",
	"#ID":                    "hydrowebid",
	"#MISSION(S)-TRACK(S)":   "missions",
	"#MEAN ALTITUDE":         "mean_alt",
	"#FIRST DATE IN DATASET": "tstart",
	"#LAST DATE IN DATASET":  "tend",
	"#PRODUCTION DATE":       "lastupdate",
	"#REFERENCE LONGITUDE":   "reflon",
	"#REFERENCE LATITUDE":    "reflat",
	"#PRODUCT VERSION":       "version",
	"#PRODUCT CITATION":      "citation",
}

// riversFill is the sentinel the portal writes for missing coordinates;
// rows carrying it fall back to the header reference point.
const riversFill = 9999.999

var riversFloatCols = map[string]int{
	"water_level":     2,
	"water_level_std": 3,
	"lon":             5,
	"lat":             6,
	"groundtrack":     12,
	"cycle":           13,
}

var riversStringCols = map[string]int{
	"mission": 10,
	"retrack": 14,
}

// ParseHydrowebRivers reads a Hydroweb "rivers" text product: KEY::value
// header lines up to a ### separator, then whitespace-delimited rows whose
// first 16 characters are the timestamp.
func ParseHydrowebRivers(r io.Reader) (map[string]string, *timeseries.Series, error) {
	sc := bufio.NewScanner(r)
	sc.Buffer(make([]byte, 64*1024), 4*1024*1024)

	header := make(map[string]string)
	for sc.Scan() {
		line := sc.Text()
		if strings.HasPrefix(line, "###") {
			break
		}
		key, val, ok := strings.Cut(line, "::")
		if !ok {
			continue
		}
		if mapped, ok := riversHeaderMap[key]; ok {
			header[mapped] = strings.TrimSpace(val)
		}
	}

	reflon, err := strconv.ParseFloat(header["reflon"], 64)
	if err != nil {
		return nil, nil, portal.Malformed(err, "rivers reference longitude")
	}
	reflat, err := strconv.ParseFloat(header["reflat"], 64)
	if err != nil {
		return nil, nil, portal.Malformed(err, "rivers reference latitude")
	}

	series := timeseries.New()
	for sc.Scan() {
		line := sc.Text()
		if strings.TrimSpace(line) == "" {
			continue
		}
		if len(line) < 16 {
			return nil, nil, portal.Malformed(nil, "rivers row too short: %q", line)
		}
		t, err := parseRiversStamp(line[0:16])
		if err != nil {
			return nil, nil, portal.Malformed(err, "rivers timestamp")
		}
		cols := strings.Fields(line)
		if len(cols) < 15 {
			return nil, nil, portal.Malformed(nil, "rivers row has %d columns", len(cols))
		}
		series.AppendTime(t)
		for name, idx := range riversFloatCols {
			v, err := strconv.ParseFloat(cols[idx], 64)
			if err != nil {
				return nil, nil, portal.Malformed(err, "rivers column %s", name)
			}
			series.AppendFloat(name, v)
		}
		for name, idx := range riversStringCols {
			series.AppendString(name, cols[idx])
		}
	}
	if err := sc.Err(); err != nil {
		return nil, nil, err
	}

	// rows without their own coordinates fall back to the reference point
	lons, lats := series.Floats["lon"], series.Floats["lat"]
	for i := range lons {
		if lons[i] == riversFill || lats[i] == riversFill {
			lons[i] = reflon
			lats[i] = reflat
		}
	}

	if err := series.Validate(); err != nil {
		return nil, nil, portal.Malformed(err, "rivers series")
	}
	return header, series, nil
}

func parseRiversStamp(raw string) (time.Time, error) {
	for _, layout := range []string{"2006-01-02T15:04", "2006-01-02 15:04"} {
		if t, err := time.Parse(layout, raw); err == nil {
			return t.UTC(), nil
		}
	}
	return time.Time{}, portal.Malformed(nil, "unrecognized stamp %q", raw)
}
