package hydrosat

import (
	"bufio"
	"io"
	"regexp"
	"strconv"
	"strings"

	"golang.org/x/net/html"
)

// The Hydrosat site exposes its catalogue only through two HTML pages: a
// map page whose targets are assembled inside an embedded script, and a
// search page listing anchors with target ids in their query strings.
// What follows is a line-oriented micro-parser over that embedded script
// text, not a script grammar. It assumes the fixed layout of the source
// page and will need replacing if the page's formatting changes.

// searchRecord is one row scraped from the search page anchors.
type searchRecord struct {
	HydNo     int64
	CurrentID int
	DataType  string
	SourceID  int
}

// mapRecord is one marker scraped from the map page script.
type mapRecord struct {
	Title     string
	CurrentID int
	DataType  string
	SourceID  int
	Lon, Lat  float64
}

// d_content digits and marker icons both encode the product type. The png
// color names do not match the actual colors.
var contentLookup = map[string]string{"1": "SWE", "2": "WL", "3": "RD", "4": "WSch"}

var iconLookup = map[string]string{
	"cyan.png":        "SWE",
	"red.png":         "WL",
	"blue.png":        "RD",
	"violet.png":      "WSch",
	"violet_ring.png": "WSch",
}

var (
	reCurrent  = regexp.MustCompile(`current=([0-9]+)`)
	reHydNo    = regexp.MustCompile(`hyd_no=([0-9]+)`)
	reContent  = regexp.MustCompile(`d_content=([0-9])&source=`)
	reSource   = regexp.MustCompile(`source=([0-9]+)`)
	reTitle    = regexp.MustCompile(`title:\s+'([^']*)'`)
	reIcon     = regexp.MustCompile(`icon: '\.\./images/(\S+)'`)
	reLat      = regexp.MustCompile(`lat: (-?[0-9.]+),`)
	reLng      = regexp.MustCompile(`lng: (-?[0-9.]+)}`)
)

// scanDocument walks one HTML document, collecting search anchors and,
// inside script elements, map markers. Either slice may stay empty
// depending on which of the two pages was fed in.
func scanDocument(r io.Reader) (search []searchRecord, markers []mapRecord, err error) {
	tk := html.NewTokenizer(r)
	inScript := false
	for {
		switch tk.Next() {
		case html.ErrorToken:
			if tk.Err() == io.EOF {
				return search, markers, nil
			}
			return nil, nil, tk.Err()
		case html.StartTagToken:
			tok := tk.Token()
			switch tok.Data {
			case "script":
				inScript = true
			case "a":
				if rec, ok := anchorRecord(tok); ok {
					search = append(search, rec)
				}
			}
		case html.EndTagToken:
			if tok := tk.Token(); tok.Data == "script" {
				inScript = false
			}
		case html.TextToken:
			if !inScript {
				continue
			}
			text := string(tk.Text())
			if !strings.Contains(head(text, 20), "var markers0 =") {
				continue
			}
			markers = append(markers, scanMarkers(text)...)
		}
	}
}

func head(s string, n int) string {
	if len(s) < n {
		return s
	}
	return s[:n]
}

// anchorRecord extracts the target linkage from one search-result anchor
// (class "link" with current/hyd_no/d_content/source query parameters).
func anchorRecord(tok html.Token) (searchRecord, bool) {
	if len(tok.Attr) != 2 || tok.Attr[0].Key != "class" || tok.Attr[0].Val != "link" {
		return searchRecord{}, false
	}
	href := tok.Attr[1].Val
	current := reCurrent.FindStringSubmatch(href)
	hydNo := reHydNo.FindStringSubmatch(href)
	content := reContent.FindStringSubmatch(href)
	source := reSource.FindStringSubmatch(href)
	if current == nil || hydNo == nil || content == nil || source == nil {
		return searchRecord{}, false
	}
	dataType, ok := contentLookup[content[1]]
	if !ok {
		return searchRecord{}, false
	}
	rec := searchRecord{DataType: dataType}
	rec.CurrentID, _ = strconv.Atoi(current[1])
	rec.HydNo, _ = strconv.ParseInt(hydNo[1], 10, 64)
	rec.SourceID, _ = strconv.Atoi(source[1])
	return rec, true
}

// scanMarkers walks the marker-array script text. Each marker construction
// spans a fixed number of lines: four lines of constructor arguments
// (position, map, title, icon) followed three lines later by a request
// line carrying the current and source ids.
func scanMarkers(text string) []mapRecord {
	var records []mapRecord
	sc := bufio.NewScanner(strings.NewReader(text))
	sc.Buffer(make([]byte, 64*1024), 16*1024*1024)
	for sc.Scan() {
		if !strings.Contains(sc.Text(), "var marker = new google.maps.Marker") {
			continue
		}
		var block strings.Builder
		for i := 0; i < 4 && sc.Scan(); i++ {
			block.WriteString(sc.Text())
			block.WriteString("\n")
		}
		body := strings.ReplaceAll(strings.ReplaceAll(block.String(), "\t", ""), "\n", "")

		title := reTitle.FindStringSubmatch(body)
		icon := reIcon.FindStringSubmatch(body)
		lat := reLat.FindStringSubmatch(body)
		lng := reLng.FindStringSubmatch(body)
		if title == nil || icon == nil || lat == nil || lng == nil {
			continue
		}
		dataType, ok := iconLookup[icon[1]]
		if !ok {
			continue
		}

		var request string
		for i := 0; i < 3 && sc.Scan(); i++ {
			request = sc.Text()
		}
		current := reCurrent.FindStringSubmatch(request)
		source := reSource.FindStringSubmatch(request)
		if current == nil || source == nil {
			continue
		}

		rec := mapRecord{Title: title[1], DataType: dataType}
		rec.Lat, _ = strconv.ParseFloat(lat[1], 64)
		rec.Lon, _ = strconv.ParseFloat(lng[1], 64)
		rec.CurrentID, _ = strconv.Atoi(current[1])
		rec.SourceID, _ = strconv.Atoi(source[1])
		records = append(records, rec)
	}
	return records
}
