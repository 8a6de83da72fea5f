// Package geometry loads province-partitioned polling-division boundary
// archives and dissolves their polygons into merge-set and riding groups.
// Boundary data is parsed with go-geom's GeoJSON codec and operated on with
// simplefeatures; the two are bridged over WKB.
package geometry

import (
	"archive/zip"
	"encoding/binary"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	sf "github.com/peterstace/simplefeatures/geom"
	geomt "github.com/twpayne/go-geom"
	"github.com/twpayne/go-geom/encoding/geojson"
	"github.com/twpayne/go-geom/encoding/wkb"

	"github.com/votemap/votemap/internal/ridings"
)

// Kind tags a geometry table as election-day or advance-poll, instead of
// inferring the variant from which columns happen to be present.
type Kind int

const (
	// KindElectionDay tables are keyed by (FED_NUM, PD_NUM).
	KindElectionDay Kind = iota
	// KindAdvance tables are keyed by (FED_NUM, ADV_POLL_N).
	KindAdvance
)

func (k Kind) String() string {
	if k == KindAdvance {
		return "advance"
	}
	return "election-day"
}

// ErrArchiveMissing is a precondition failure: the per-province geometry
// archive has not been generated yet by the partition step.
var ErrArchiveMissing = errors.New("geometry archive missing; run the partition step first")

// Row is one polling-division boundary with its identifying keys.
type Row struct {
	FEDNum       int    // riding number
	PDNum        int    // election-day poll number (0 on advance rows)
	AdvPollNum   int    // advance poll containing this division
	PollName     string
	DistrictName string
	Geom         sf.Geometry
}

// Table is a set of polling-division boundaries of one Kind for one year.
type Table struct {
	Year int
	Kind Kind
	Rows []Row
}

// ArchiveName returns the per-province geometry archive file name written
// by the partition step.
func ArchiveName(province string, provCode, year int, kind Kind) string {
	suffix := "geometries"
	if kind == KindAdvance {
		suffix = "geometries_adv"
	}
	return fmt.Sprintf("%s_%d_%d_%s.zip", province, provCode, year, suffix)
}

// Load reads the per-province geometry archives spanned by the given
// riding numbers, concatenates them, filters to the requested ridings and
// pre-dissolves multi-part duplicate rows.
func Load(dataDir string, year int, ridingNumbers []int, kind Kind, tolerance float64) (*Table, error) {
	table := &Table{Year: year, Kind: kind}

	keep := make(map[int]struct{}, len(ridingNumbers))
	for _, n := range ridingNumbers {
		keep[n] = struct{}{}
	}

	for _, provCode := range ridings.ProvincesForRidings(ridingNumbers) {
		province, ok := ridings.CodeProvinces[provCode]
		if !ok {
			return nil, fmt.Errorf("unknown province code %d", provCode)
		}
		path := filepath.Join(dataDir, ArchiveName(province, provCode, year, kind))
		rows, err := loadArchive(path, kind)
		if err != nil {
			return nil, err
		}
		for _, row := range rows {
			if _, ok := keep[row.FEDNum]; ok {
				table.Rows = append(table.Rows, row)
			}
		}
	}

	if err := preDissolve(table, tolerance); err != nil {
		return nil, err
	}
	return table, nil
}

// loadArchive reads one per-province zip containing a GeoJSON feature
// collection.
func loadArchive(path string, kind Kind) ([]Row, error) {
	if _, err := os.Stat(path); os.IsNotExist(err) {
		return nil, fmt.Errorf("%w: %s", ErrArchiveMissing, path)
	}

	zr, err := zip.OpenReader(path)
	if err != nil {
		return nil, fmt.Errorf("opening geometry archive %s: %w", path, err)
	}
	defer zr.Close()

	var data []byte
	for _, zf := range zr.File {
		if !strings.HasSuffix(zf.Name, ".geojson") {
			continue
		}
		rc, err := zf.Open()
		if err != nil {
			return nil, fmt.Errorf("opening %s in %s: %w", zf.Name, path, err)
		}
		data, err = io.ReadAll(rc)
		rc.Close()
		if err != nil {
			return nil, fmt.Errorf("reading %s in %s: %w", zf.Name, path, err)
		}
		break
	}
	if data == nil {
		return nil, fmt.Errorf("no .geojson entry in %s", path)
	}

	var fc geojson.FeatureCollection
	if err := json.Unmarshal(data, &fc); err != nil {
		return nil, fmt.Errorf("parsing feature collection in %s: %w", path, err)
	}

	rows := make([]Row, 0, len(fc.Features))
	for i, feat := range fc.Features {
		if feat.Geometry == nil {
			continue
		}
		g, err := ToSimple(feat.Geometry)
		if err != nil {
			return nil, fmt.Errorf("feature %d in %s: %w", i, path, err)
		}
		row := Row{
			FEDNum:       propInt(feat.Properties, "FED_NUM"),
			AdvPollNum:   propInt(feat.Properties, "ADV_POLL_N"),
			PollName:     propString(feat.Properties, "POLL_NAME"),
			DistrictName: propString(feat.Properties, "ED_NAME"),
			Geom:         g,
		}
		if kind == KindElectionDay {
			row.PDNum = propInt(feat.Properties, "PD_NUM")
		}
		rows = append(rows, row)
	}
	return rows, nil
}

// preDissolve merges multi-part rows (same poll split across several
// geometry rows, a source-data artifact) into one row per poll, keeping
// the first row's non-geometry values.
func preDissolve(table *Table, tolerance float64) error {
	type key struct{ fed, poll int }
	pollOf := func(r Row) int {
		if table.Kind == KindAdvance {
			return r.AdvPollNum
		}
		return r.PDNum
	}

	counts := make(map[key]int)
	for _, r := range table.Rows {
		counts[key{r.FEDNum, pollOf(r)}]++
	}

	hasDupes := false
	for _, c := range counts {
		if c > 1 {
			hasDupes = true
			break
		}
	}
	if !hasDupes {
		return nil
	}

	groups := make(map[key][]sf.Geometry)
	firsts := make(map[key]Row)
	var order []key
	for _, r := range table.Rows {
		k := key{r.FEDNum, pollOf(r)}
		if _, ok := firsts[k]; !ok {
			firsts[k] = r
			order = append(order, k)
		}
		groups[k] = append(groups[k], r.Geom)
	}

	rows := make([]Row, 0, len(order))
	for _, k := range order {
		row := firsts[k]
		if len(groups[k]) > 1 {
			dissolved, err := RobustDissolve(groups[k], tolerance)
			if err != nil {
				return fmt.Errorf("pre-dissolving riding %d poll %d: %w", k.fed, k.poll, err)
			}
			row.Geom = dissolved
		}
		rows = append(rows, row)
	}
	table.Rows = rows
	return nil
}

// ToSimple converts a go-geom geometry to a simplefeatures geometry.
// Validation is skipped: source polygons are frequently invalid and the
// dissolve cascade is responsible for coping with them.
func ToSimple(g geomt.T) (sf.Geometry, error) {
	raw, err := wkb.Marshal(g, binary.LittleEndian)
	if err != nil {
		return sf.Geometry{}, fmt.Errorf("encoding geometry to WKB: %w", err)
	}
	out, err := sf.UnmarshalWKB(raw, sf.NoValidate{})
	if err != nil {
		return sf.Geometry{}, fmt.Errorf("decoding WKB: %w", err)
	}
	return out, nil
}

// ToGeom converts a simplefeatures geometry back to go-geom for GeoJSON
// serialization.
func ToGeom(g sf.Geometry) (geomt.T, error) {
	out, err := wkb.Unmarshal(g.AsBinary())
	if err != nil {
		return nil, fmt.Errorf("decoding WKB: %w", err)
	}
	return out, nil
}

func propInt(props map[string]interface{}, name string) int {
	v, ok := props[name]
	if !ok {
		return 0
	}
	switch n := v.(type) {
	case float64:
		return int(n)
	case int:
		return n
	case json.Number:
		i, _ := n.Int64()
		return int(i)
	case string:
		i, _ := strconv.Atoi(strings.TrimSpace(n))
		return i
	default:
		return 0
	}
}

func propString(props map[string]interface{}, name string) string {
	v, ok := props[name]
	if !ok {
		return ""
	}
	s, _ := v.(string)
	return s
}
