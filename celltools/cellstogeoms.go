package celltools

import (
	"fmt"
	"math"

	"github.com/airbusgeo/godal"
	"github.com/golang/geo/s2"
)

const wgs84Proj4 = "+proj=longlat +datum=WGS84 +no_defs"

func cellToWKT(cell s2.Cell) string {
	wkt := "POLYGON(("
	for k := 0; k < 4; k++ {
		latlng := s2.LatLngFromPoint(cell.Vertex(k))
		wkt += fmt.Sprintf("%v %v, ", latlng.Lng.Degrees(), latlng.Lat.Degrees())
	}
	closingPoint := s2.LatLngFromPoint(cell.Vertex(0))
	wkt += fmt.Sprintf("%v %v))", closingPoint.Lng.Degrees(), closingPoint.Lat.Degrees())

	return wkt
}

// CellArea returns the area of the cell polygon in square metres, measured in
// the UTM zone of the cell centre.
func CellArea(id s2.CellID) (float64, error) {
	cell := s2.CellFromCellID(id)
	center := s2.LatLngFromPoint(cell.Center())

	srs, err := godal.NewSpatialRefFromProj4(wgs84Proj4)
	if err != nil {
		return 0, err
	}
	defer srs.Close()
	geom, err := godal.NewGeometryFromWKT(cellToWKT(cell), srs)
	if err != nil {
		return 0, err
	}
	defer geom.Close()

	utmSRS, err := getUTMSpatialRef(center.Lng.Degrees(), center.Lat.Degrees())
	if err != nil {
		return 0, err
	}
	defer utmSRS.Close()
	if err := geom.Reproject(utmSRS); err != nil {
		return 0, err
	}
	return geom.Area(), nil
}

func getUTMSpatialRef(lng float64, lat float64) (*godal.SpatialRef, error) {
	utm := utmZone(lng)
	if lat >= 0 {
		return godal.NewSpatialRefFromEPSG(32600 + utm)
	}
	return godal.NewSpatialRefFromEPSG(32700 + utm)
}

// utmZone returns the 1-60 UTM zone of a longitude. The antimeridian belongs
// to zone 60.
func utmZone(lng float64) int {
	utm := int(math.Ceil((lng + 180) / 6))
	return max(1, min(utm, 60))
}
