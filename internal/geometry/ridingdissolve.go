package geometry

import (
	"fmt"
	"math"
	"sort"

	sf "github.com/peterstace/simplefeatures/geom"
)

const earthRadiusMeters = 6371000.0

// RidingRow is a whole-riding boundary formed by dissolving all poll
// geometries sharing a riding number, with its centroid in geographic
// coordinates.
type RidingRow struct {
	FEDNum       int
	DistrictName string
	Geom         sf.Geometry
	CentroidLon  float64
	CentroidLat  float64
}

// RidingTable holds dissolved riding boundaries for one year.
type RidingTable struct {
	Year int
	Rows []RidingRow
}

// DissolveRidings groups poll geometries by riding number, dissolves each
// group with the robust cascade and computes centroids in a locally
// accurate projected frame (centroids computed directly in lon/lat are
// distorted at Canadian latitudes).
func DissolveRidings(t *Table, tolerance float64) (*RidingTable, error) {
	groups := make(map[int][]sf.Geometry)
	names := make(map[int]string)
	for _, r := range t.Rows {
		groups[r.FEDNum] = append(groups[r.FEDNum], r.Geom)
		if _, ok := names[r.FEDNum]; !ok {
			names[r.FEDNum] = r.DistrictName
		}
	}

	fedNums := make([]int, 0, len(groups))
	for fed := range groups {
		fedNums = append(fedNums, fed)
	}
	sort.Ints(fedNums)

	out := &RidingTable{Year: t.Year}
	for _, fed := range fedNums {
		dissolved, err := RobustDissolve(groups[fed], tolerance)
		if err != nil {
			return nil, fmt.Errorf("dissolving riding %d: %w", fed, err)
		}
		lon, lat, err := ProjectedCentroid(dissolved)
		if err != nil {
			return nil, fmt.Errorf("centroid of riding %d: %w", fed, err)
		}
		out.Rows = append(out.Rows, RidingRow{
			FEDNum:       fed,
			DistrictName: names[fed],
			Geom:         dissolved,
			CentroidLon:  lon,
			CentroidLat:  lat,
		})
	}
	return out, nil
}

// Row returns the riding row for a riding number, or false if absent.
func (rt *RidingTable) Row(fedNum int) (RidingRow, bool) {
	for _, r := range rt.Rows {
		if r.FEDNum == fedNum {
			return r, true
		}
	}
	return RidingRow{}, false
}

// ProjectedCentroid computes a geometry's centroid in a local sinusoidal
// projection about the geometry's own rough center, then reprojects the
// centroid back to longitude/latitude. The projection scales each point's
// longitude offset by the cosine of its own latitude, so area weighting at
// Canadian latitudes matches ground distances rather than raw degrees.
func ProjectedCentroid(g sf.Geometry) (lon, lat float64, err error) {
	rough, ok := g.Centroid().XY()
	if !ok {
		return 0, 0, fmt.Errorf("empty geometry has no centroid")
	}

	projected := g.TransformXY(projectAbout(rough))
	c, ok := projected.Centroid().XY()
	if !ok {
		return 0, 0, fmt.Errorf("projected geometry has no centroid")
	}

	lonlat := unprojectAbout(rough, c)
	return lonlat.X, lonlat.Y, nil
}

// projectAbout maps lon/lat degrees to meters in a sinusoidal frame
// centered on origin, with the per-point latitude setting the parallel
// scale.
func projectAbout(origin sf.XY) func(sf.XY) sf.XY {
	return func(p sf.XY) sf.XY {
		return sf.XY{
			X: earthRadiusMeters * math.Cos(p.Y*math.Pi/180) * (p.X - origin.X) * math.Pi / 180,
			Y: earthRadiusMeters * (p.Y - origin.Y) * math.Pi / 180,
		}
	}
}

func unprojectAbout(origin sf.XY, p sf.XY) sf.XY {
	lat := origin.Y + p.Y/earthRadiusMeters*180/math.Pi
	return sf.XY{
		X: origin.X + p.X/(earthRadiusMeters*math.Cos(lat*math.Pi/180))*180/math.Pi,
		Y: lat,
	}
}
