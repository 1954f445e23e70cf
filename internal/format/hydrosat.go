package format

import (
	"bufio"
	"compress/gzip"
	"io"
	"strconv"
	"strings"
	"time"

	"github.com/ITC-Water-Resources/hydrosync/internal/portal"
	"github.com/ITC-Water-Resources/hydrosync/internal/timeseries"
)

// ParseHydrosat reads a gzip-compressed Hydrosat text product. Header
// lines are "#Key: Value" pairs; data rows are comma-separated
// year,month,day,value,error tuples. Rows containing the literal token
// NaN are dropped. The value column is named after the slugified
// "Data set content" header field, with an _err companion column.
func ParseHydrosat(r io.Reader) (map[string]string, *timeseries.Series, error) {
	gz, err := gzip.NewReader(r)
	if err != nil {
		return nil, nil, portal.Malformed(err, "hydrosat gzip stream")
	}
	defer gz.Close()

	header := make(map[string]string)
	type triple struct {
		t    time.Time
		v, e float64
	}
	var rows []triple

	sc := bufio.NewScanner(gz)
	for sc.Scan() {
		line := strings.TrimSpace(sc.Text())
		if line == "" {
			continue
		}
		if strings.HasPrefix(line, "#") {
			key, val, ok := strings.Cut(line[1:], ":")
			if ok {
				header[strings.TrimSpace(key)] = strings.TrimSpace(val)
			}
			continue
		}
		if strings.Contains(line, "NaN") {
			continue
		}
		cols := strings.Split(line, ",")
		if len(cols) < 5 {
			return nil, nil, portal.Malformed(nil, "hydrosat row has %d columns", len(cols))
		}
		year, err1 := strconv.Atoi(strings.TrimSpace(cols[0]))
		month, err2 := strconv.Atoi(strings.TrimSpace(cols[1]))
		day, err3 := strconv.Atoi(strings.TrimSpace(cols[2]))
		value, err4 := strconv.ParseFloat(strings.TrimSpace(cols[3]), 64)
		errval, err5 := strconv.ParseFloat(strings.TrimSpace(cols[4]), 64)
		for _, err := range []error{err1, err2, err3, err4, err5} {
			if err != nil {
				return nil, nil, portal.Malformed(err, "hydrosat row %q", line)
			}
		}
		rows = append(rows, triple{
			t: time.Date(year, time.Month(month), day, 0, 0, 0, 0, time.UTC),
			v: value,
			e: errval,
		})
	}
	if err := sc.Err(); err != nil {
		return nil, nil, err
	}

	content, ok := header["Data set content"]
	if !ok {
		return nil, nil, portal.Malformed(nil, "hydrosat header lacks data set content")
	}
	name := strings.ToLower(strings.ReplaceAll(content, " ", "_"))

	series := timeseries.New()
	for _, row := range rows {
		series.AppendTime(row.t)
		series.AppendFloat(name, row.v)
		series.AppendFloat(name+"_err", row.e)
	}
	if err := series.Validate(); err != nil {
		return nil, nil, portal.Malformed(err, "hydrosat series")
	}
	return header, series, nil
}
