package celltools

import (
	"math"
	"strings"
	"testing"

	"github.com/golang/geo/s2"
)

func TestCellToWKT(t *testing.T) {
	cell := s2.CellFromCellID(s2.CellID(uint64(1152921779484753920)))
	wktString := cellToWKT(cell)

	if !strings.HasPrefix(wktString, "POLYGON((") || !strings.HasSuffix(wktString, "))") {
		t.Fatalf("malformed polygon %s", wktString)
	}
	coords := strings.Split(strings.TrimSuffix(strings.TrimPrefix(wktString, "POLYGON(("), "))"), ", ")
	if len(coords) != 5 {
		t.Fatalf("got %d vertices, want 5: %s", len(coords), wktString)
	}
	if coords[0] != coords[4] {
		t.Errorf("ring not closed: %s", wktString)
	}
}

func TestCellArea(t *testing.T) {
	// A level 11 cell over Amsterdam is a few square kilometres.
	id := s2.CellIDFromLatLng(s2.LatLngFromDegrees(52.37, 4.89)).Parent(11)
	area, err := CellArea(id)
	if err != nil {
		t.Fatal(err)
	}
	exact := s2.CellFromCellID(id).ExactArea() * EarthRadius * EarthRadius
	if math.Abs(area-exact)/exact > 0.05 {
		t.Errorf("got %v m2, want about %v m2", area, exact)
	}
}

func TestUTMZone(t *testing.T) {
	tests := []struct {
		lng  float64
		want int
	}{
		{-180, 1},
		{-177, 1},
		{4.89, 31},
		{179.5, 60},
		{180, 60},
	}
	for _, tt := range tests {
		if got := utmZone(tt.lng); got != tt.want {
			t.Errorf("utmZone(%v) = %d, want %d", tt.lng, got, tt.want)
		}
	}
}

func TestCellAreaOnAntimeridian(t *testing.T) {
	id := s2.CellIDFromLatLng(s2.LatLngFromDegrees(-16.5, 180)).Parent(11)
	area, err := CellArea(id)
	if err != nil {
		t.Fatal(err)
	}
	exact := s2.CellFromCellID(id).ExactArea() * EarthRadius * EarthRadius
	if math.Abs(area-exact)/exact > 0.05 {
		t.Errorf("got %v m2, want about %v m2", area, exact)
	}
}
