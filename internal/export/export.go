// Package export writes election datasets as the single JSON document the
// Leaflet web viewer consumes: per-riding poll feature collections with
// per-party vote properties, riding boundaries, riding centroids and the
// overall area centroid.
package export

import (
	"encoding/json"
	"fmt"
	"os"
	"sort"

	sf "github.com/peterstace/simplefeatures/geom"
	geomt "github.com/twpayne/go-geom"
	"github.com/twpayne/go-geom/encoding/geojson"

	"github.com/votemap/votemap/internal/dataset"
	"github.com/votemap/votemap/internal/geometry"
	"github.com/votemap/votemap/internal/votes"
)

// PartyVotes is the per-party property on an advance-poll feature. On
// election-day features only Eday is populated.
type PartyVotes struct {
	EDay    int  `json:"eday"`
	Advance *int `json:"advance,omitempty"`
	Total   *int `json:"total,omitempty"`
}

// RidingData is one riding's slice of the export document.
type RidingData struct {
	Votes        *geojson.FeatureCollection `json:"votes"`
	DistrictName string                     `json:"district_name"`
	Candidates   map[string]string          `json:"candidates"`
	SpecialVotes map[string]int             `json:"special_votes"`
	// Election-day documents carry riding-level advance totals, since
	// advance votes have no polling-division geometry there.
	AdvanceVotes map[string]int `json:"advance_votes,omitempty"`
}

// Document is the full export payload.
type Document struct {
	PollData        map[string]*RidingData     `json:"polldata"`
	Ridings         *geojson.FeatureCollection `json:"ridings"`
	RidingCentroids *geojson.FeatureCollection `json:"riding_centroids"`
	Centroid        struct {
		Longitude float64 `json:"longitude"`
		Latitude  float64 `json:"latitude"`
	} `json:"centroid"`
}

// WriteLeafletData builds the export document for one dataset and writes
// it to path. kind selects the geometry level: advance documents carry
// advance-poll boundaries with combined eday/advance/total vote counts,
// election-day documents carry merge-set boundaries with election-day
// counts plus riding-level advance totals.
func WriteLeafletData(e *dataset.Election, kind geometry.Kind, path string) error {
	doc, err := BuildDocument(e, kind)
	if err != nil {
		return err
	}

	data, err := json.MarshalIndent(doc, "", "  ")
	if err != nil {
		return fmt.Errorf("encoding export document: %w", err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("writing %s: %w", path, err)
	}
	return nil
}

// BuildDocument assembles the export payload without writing it.
func BuildDocument(e *dataset.Election, kind geometry.Kind) (*Document, error) {
	doc := &Document{PollData: make(map[string]*RidingData)}

	candidates := candidateMap(e)
	special := ridingPartySums(e.Votes.Special)

	var table *dataset.MergedTable
	if kind == geometry.KindAdvance {
		table = e.Advance
	} else {
		table = e.EDayMerged
	}

	byRiding := make(map[int][]dataset.MergedRow)
	for _, r := range table.Rows {
		byRiding[r.DistrictNumber] = append(byRiding[r.DistrictNumber], r)
	}

	var advanceByRiding map[int]map[string]int
	if kind == geometry.KindElectionDay {
		advanceByRiding = make(map[int]map[string]int)
		for _, r := range e.Advance.Rows {
			m, ok := advanceByRiding[r.DistrictNumber]
			if !ok {
				m = make(map[string]int)
				advanceByRiding[r.DistrictNumber] = m
			}
			m[r.Party] += r.Votes
		}
	}

	for _, riding := range e.Ridings.Rows {
		rows, ok := byRiding[riding.FEDNum]
		if !ok {
			continue
		}
		fc, err := pollFeatures(rows, kind)
		if err != nil {
			return nil, fmt.Errorf("riding %d: %w", riding.FEDNum, err)
		}
		rd := &RidingData{
			Votes:        fc,
			DistrictName: riding.DistrictName,
			Candidates:   candidates[riding.FEDNum],
			SpecialVotes: special[riding.FEDNum],
		}
		if rd.Candidates == nil {
			rd.Candidates = map[string]string{}
		}
		if rd.SpecialVotes == nil {
			rd.SpecialVotes = map[string]int{}
		}
		if advanceByRiding != nil {
			rd.AdvanceVotes = advanceByRiding[riding.FEDNum]
		}
		doc.PollData[fmt.Sprintf("%d", riding.FEDNum)] = rd
	}

	var err error
	doc.Ridings, doc.RidingCentroids, err = ridingCollections(e.Ridings)
	if err != nil {
		return nil, err
	}

	lon, lat, err := areaCentroid(e.Ridings)
	if err != nil {
		return nil, err
	}
	doc.Centroid.Longitude = lon
	doc.Centroid.Latitude = lat

	return doc, nil
}

// pollFeatures pivots one riding's rows into one feature per poll, with a
// vote property per party.
func pollFeatures(rows []dataset.MergedRow, kind geometry.Kind) (*geojson.FeatureCollection, error) {
	type pollKey struct {
		pdNum    int
		mergeKey string
	}
	keyOf := func(r dataset.MergedRow) pollKey {
		if kind == geometry.KindAdvance {
			return pollKey{pdNum: r.PDNum}
		}
		return pollKey{mergeKey: r.MergeKey, pdNum: r.PDNum}
	}

	grouped := make(map[pollKey][]dataset.MergedRow)
	var order []pollKey
	for _, r := range rows {
		k := keyOf(r)
		if _, ok := grouped[k]; !ok {
			order = append(order, k)
		}
		grouped[k] = append(grouped[k], r)
	}
	sort.Slice(order, func(i, j int) bool {
		if order[i].pdNum != order[j].pdNum {
			return order[i].pdNum < order[j].pdNum
		}
		return order[i].mergeKey < order[j].mergeKey
	})

	fc := &geojson.FeatureCollection{}
	for _, k := range order {
		group := grouped[k]
		first := group[0]

		g, err := geometry.ToGeom(first.Geom)
		if err != nil {
			return nil, fmt.Errorf("poll %d: %w", first.PDNum, err)
		}

		props := map[string]interface{}{
			"DistrictName": first.DistrictName,
			"PD_NUM":       first.PDNum,
			"ADV_POLL_N":   first.AdvPollNum,
			"Poll":         first.Poll,
		}
		if kind == geometry.KindAdvance {
			totalAdv := first.TotalVotes
			total := first.TotalVotes + first.TotalElectionDayVotes
			props["TotalVotes"] = PartyVotes{
				EDay:    first.TotalElectionDayVotes,
				Advance: &totalAdv,
				Total:   &total,
			}
			for _, r := range group {
				if r.Party == "" {
					continue // zero-vote geometry row
				}
				adv := r.Votes
				tot := r.Votes + r.ElectionDayVotes
				props[r.Party] = PartyVotes{
					EDay:    r.ElectionDayVotes,
					Advance: &adv,
					Total:   &tot,
				}
			}
		} else {
			props["TotalVotes"] = PartyVotes{EDay: first.TotalVotes}
			for _, r := range group {
				if r.Party == "" {
					continue
				}
				props[r.Party] = PartyVotes{EDay: r.Votes}
			}
		}

		fc.Features = append(fc.Features, &geojson.Feature{
			Geometry:   g,
			Properties: props,
		})
	}
	return fc, nil
}

// ridingCollections splits the riding table into a boundary collection and
// a centroid-point collection, since GeoJSON features carry one geometry.
func ridingCollections(rt *geometry.RidingTable) (*geojson.FeatureCollection, *geojson.FeatureCollection, error) {
	boundaries := &geojson.FeatureCollection{}
	centroids := &geojson.FeatureCollection{}
	for _, r := range rt.Rows {
		g, err := geometry.ToGeom(r.Geom)
		if err != nil {
			return nil, nil, fmt.Errorf("riding %d boundary: %w", r.FEDNum, err)
		}
		props := map[string]interface{}{
			"FED_NUM":      r.FEDNum,
			"DistrictName": r.DistrictName,
		}
		boundaries.Features = append(boundaries.Features, &geojson.Feature{
			Geometry:   g,
			Properties: props,
		})
		centroids.Features = append(centroids.Features, &geojson.Feature{
			Geometry: geomt.NewPoint(geomt.XY).MustSetCoords(
				geomt.Coord{r.CentroidLon, r.CentroidLat}),
			Properties: props,
		})
	}
	return boundaries, centroids, nil
}

// areaCentroid dissolves all riding boundaries and computes the combined
// area's centroid, used as the initial map view.
func areaCentroid(rt *geometry.RidingTable) (lon, lat float64, err error) {
	geoms := make([]sf.Geometry, 0, len(rt.Rows))
	for _, r := range rt.Rows {
		geoms = append(geoms, r.Geom)
	}
	dissolved, err := geometry.RobustDissolve(geoms, 0)
	if err != nil {
		return 0, 0, fmt.Errorf("dissolving riding set: %w", err)
	}
	return geometry.ProjectedCentroid(dissolved)
}

// candidateMap builds the district-number to party to candidate-name
// lookup from the raw vote records.
func candidateMap(e *dataset.Election) map[int]map[string]string {
	out := make(map[int]map[string]string)
	for _, r := range e.Votes.Records {
		m, ok := out[r.DistrictNumber]
		if !ok {
			m = make(map[string]string)
			out[r.DistrictNumber] = m
		}
		if _, ok := m[r.Party]; !ok {
			m[r.Party] = fmt.Sprintf("%s %s", r.CandidateFirstName, r.CandidateLastName)
		}
	}
	return out
}

// ridingPartySums group-sums records by (district, party).
func ridingPartySums(records []votes.Record) map[int]map[string]int {
	out := make(map[int]map[string]int)
	for _, r := range records {
		m, ok := out[r.DistrictNumber]
		if !ok {
			m = make(map[string]int)
			out[r.DistrictNumber] = m
		}
		m[r.Party] += r.Votes
	}
	return out
}
