package hydrosat

import (
	"strings"
	"testing"
)

const mapPage = `<html><head><title>Hydrosat</title></head><body>
<div id="map"></div>
<script>
var markers0 = [];
function initMap() {
	var marker = new google.maps.Marker({
	position: {lat: 12.500, lng: 4.250},
	map: map,
	title: 'Lake_Chad',
	icon: '../images/red.png'});
	marker.addListener('click', function() {
	markerclick(marker);
	window.location.href = 'maps.php?current=3&d_content=2&source=1';
	});
	var marker = new google.maps.Marker({
	position: {lat: -1.250, lng: 33.100},
	map: map,
	title: 'Lake_Victoria',
	icon: '../images/cyan.png'});
	marker.addListener('click', function() {
	markerclick(marker);
	window.location.href = 'maps.php?current=9&d_content=1&source=2';
	});
}
</script>
</body></html>`

const searchPage = `<html><body><ul>
<li><a class="link" href="maps.php?current=3&d_content=2&source=1&hyd_no=7">Lake Chad WL</a></li>
<li><a class="link" href="maps.php?current=8&d_content=2&source=1&hyd_no=8">Orphan target</a></li>
</ul></body></html>`

func TestScanMapPage(t *testing.T) {
	search, markers, err := scanDocument(strings.NewReader(mapPage))
	if err != nil {
		t.Fatalf("scan: %v", err)
	}
	if len(search) != 0 {
		t.Errorf("map page should yield no search records, got %d", len(search))
	}
	if len(markers) != 2 {
		t.Fatalf("expected 2 markers, got %d", len(markers))
	}
	m := markers[0]
	if m.Title != "Lake_Chad" || m.DataType != "WL" || m.CurrentID != 3 || m.SourceID != 1 {
		t.Errorf("marker: %+v", m)
	}
	if m.Lat != 12.5 || m.Lon != 4.25 {
		t.Errorf("marker coordinates: %+v", m)
	}
	if markers[1].DataType != "SWE" {
		t.Errorf("icon lookup: %+v", markers[1])
	}
}

func TestScanSearchPage(t *testing.T) {
	search, markers, err := scanDocument(strings.NewReader(searchPage))
	if err != nil {
		t.Fatalf("scan: %v", err)
	}
	if len(markers) != 0 {
		t.Errorf("search page should yield no markers, got %d", len(markers))
	}
	if len(search) != 2 {
		t.Fatalf("expected 2 search records, got %d", len(search))
	}
	s := search[0]
	if s.HydNo != 7 || s.CurrentID != 3 || s.DataType != "WL" || s.SourceID != 1 {
		t.Errorf("search record: %+v", s)
	}
}

func TestJoinInventory(t *testing.T) {
	search, _, err := scanDocument(strings.NewReader(searchPage))
	if err != nil {
		t.Fatal(err)
	}
	_, markers, err := scanDocument(strings.NewReader(mapPage))
	if err != nil {
		t.Fatal(err)
	}

	targets := joinInventory(search, markers)
	// hyd_no=8 has no matching marker and the SWE marker has no search
	// record, so only the Lake Chad pair survives the inner join.
	if len(targets) != 1 {
		t.Fatalf("expected 1 joined target, got %d", len(targets))
	}
	got := targets[0]
	if got.ID != "7" || got.Title != "Lake_Chad" {
		t.Errorf("joined target: %+v", got)
	}
	if !got.HasProduct("WL") {
		t.Errorf("product: %+v", got.Products)
	}
	if got.Extra["current_id"] != "3" || got.Extra["source_id"] != "1" {
		t.Errorf("extra: %+v", got.Extra)
	}
}
