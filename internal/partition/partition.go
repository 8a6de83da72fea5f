// Package partition splits the nationwide polling-division shapefile
// archives into per-province GeoJSON zip archives, so per-riding loads
// never have to parse the country-wide file. The geometry loader consumes
// the partitioned archives; this package is the only shapefile reader on
// the federal path.
package partition

import (
	"archive/zip"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"

	shp "github.com/jonas-p/go-shp"
	geomt "github.com/twpayne/go-geom"
	"github.com/twpayne/go-geom/encoding/geojson"
	"golang.org/x/text/encoding/charmap"

	"github.com/votemap/votemap/internal/geometry"
	"github.com/votemap/votemap/internal/logger"
	"github.com/votemap/votemap/internal/ridings"
	"github.com/votemap/votemap/internal/votes"
)

// ErrArchiveMissing is a precondition failure: the nationwide boundary
// archive has not been downloaded yet.
var ErrArchiveMissing = errors.New("nationwide boundary archive missing; run the fetch step first")

// Provinces splits the nationwide boundary archive for a year into one
// GeoJSON zip per province, named as the geometry loader expects. Existing
// per-province archives are kept unless overwrite is set.
func Provinces(dataDir string, year int, advance, overwrite bool, log *logger.Logger) error {
	spec, err := votes.SpecForYear(year)
	if err != nil {
		return err
	}
	archive := spec.EDayArchive
	kind := geometry.KindElectionDay
	if advance {
		archive = spec.AdvArchive
		kind = geometry.KindAdvance
	}

	archivePath := filepath.Join(dataDir, archive)
	if _, err := os.Stat(archivePath); os.IsNotExist(err) {
		return fmt.Errorf("%w: %s", ErrArchiveMissing, archivePath)
	}

	features, err := readShapefileZip(archivePath)
	if err != nil {
		return err
	}

	byProvince := make(map[int][]*geojson.Feature)
	for _, feat := range features {
		fed := featureInt(feat, "FED_NUM")
		byProvince[ridings.ProvinceCodeForRiding(fed)] = append(
			byProvince[ridings.ProvinceCodeForRiding(fed)], feat)
	}

	provCodes := make([]int, 0, len(byProvince))
	for code := range byProvince {
		provCodes = append(provCodes, code)
	}
	sort.Ints(provCodes)

	for _, provCode := range provCodes {
		province, ok := ridings.CodeProvinces[provCode]
		if !ok {
			log.Warn("skipping features with unknown province code", map[string]interface{}{
				"code":     provCode,
				"features": len(byProvince[provCode]),
			})
			continue
		}

		outName := geometry.ArchiveName(province, provCode, year, kind)
		outPath := filepath.Join(dataDir, outName)
		if !overwrite {
			if _, err := os.Stat(outPath); err == nil {
				log.Debug("province archive exists, skipping", map[string]interface{}{
					"file": outName,
				})
				continue
			}
		}

		if err := writeProvinceArchive(outPath, byProvince[provCode]); err != nil {
			return err
		}
		log.Info("province archive written", map[string]interface{}{
			"file":     outName,
			"features": len(byProvince[provCode]),
		})
	}
	return nil
}

// readShapefileZip extracts a zipped shapefile to a temp directory and
// converts its shapes to GeoJSON features. DBF attribute strings are
// latin-1 in these archives.
func readShapefileZip(archivePath string) ([]*geojson.Feature, error) {
	tmpDir, err := os.MkdirTemp("", "votemap-shp-*")
	if err != nil {
		return nil, err
	}
	defer os.RemoveAll(tmpDir)

	shpPath, err := ExtractShapefile(archivePath, tmpDir)
	if err != nil {
		return nil, err
	}

	reader, err := shp.Open(shpPath)
	if err != nil {
		return nil, fmt.Errorf("opening shapefile %s: %w", shpPath, err)
	}
	defer reader.Close()

	fieldIdx := make(map[string]int)
	for i, f := range reader.Fields() {
		fieldIdx[strings.ToUpper(f.String())] = i
	}

	latin1 := charmap.ISO8859_1.NewDecoder()
	attr := func(row int, name string) string {
		idx, ok := fieldIdx[name]
		if !ok {
			return ""
		}
		raw := reader.ReadAttribute(row, idx)
		decoded, err := latin1.String(raw)
		if err != nil {
			return strings.TrimSpace(raw)
		}
		return strings.TrimSpace(decoded)
	}

	var features []*geojson.Feature
	for reader.Next() {
		n, shape := reader.Shape()
		poly, ok := shape.(*shp.Polygon)
		if !ok {
			continue
		}

		props := map[string]interface{}{}
		for _, name := range []string{"FED_NUM", "PD_NUM", "ADV_POLL_N"} {
			if v := attr(n, name); v != "" {
				if i, err := strconv.Atoi(v); err == nil {
					props[name] = i
				}
			}
		}
		for _, name := range []string{"POLL_NAME", "ED_NAME"} {
			if v := attr(n, name); v != "" {
				props[name] = v
			}
		}

		features = append(features, &geojson.Feature{
			Geometry:   PolygonGeom(poly),
			Properties: props,
		})
	}
	return features, nil
}

// ExtractShapefile unpacks a zipped shapefile into dir and returns the
// path of the .shp entry.
func ExtractShapefile(archivePath, dir string) (string, error) {
	zr, err := zip.OpenReader(archivePath)
	if err != nil {
		return "", fmt.Errorf("opening %s: %w", archivePath, err)
	}
	defer zr.Close()

	var shpPath string
	for _, zf := range zr.File {
		if zf.FileInfo().IsDir() {
			continue
		}
		name := filepath.Base(zf.Name)
		dst := filepath.Join(dir, name)

		rc, err := zf.Open()
		if err != nil {
			return "", err
		}
		out, err := os.Create(dst)
		if err != nil {
			rc.Close()
			return "", err
		}
		_, err = io.Copy(out, rc)
		rc.Close()
		out.Close()
		if err != nil {
			return "", fmt.Errorf("extracting %s: %w", zf.Name, err)
		}

		if strings.HasSuffix(strings.ToLower(name), ".shp") {
			shpPath = dst
		}
	}
	if shpPath == "" {
		return "", fmt.Errorf("no .shp entry in %s", archivePath)
	}
	return shpPath, nil
}

// PolygonGeom converts a shapefile polygon (flat point list with ring
// offsets) into a go-geom polygon.
func PolygonGeom(p *shp.Polygon) *geomt.Polygon {
	numParts := len(p.Parts)
	coords := make([][]geomt.Coord, 0, numParts)
	for i := 0; i < numParts; i++ {
		start := int(p.Parts[i])
		end := len(p.Points)
		if i+1 < numParts {
			end = int(p.Parts[i+1])
		}
		ring := make([]geomt.Coord, 0, end-start)
		for _, pt := range p.Points[start:end] {
			ring = append(ring, geomt.Coord{pt.X, pt.Y})
		}
		coords = append(coords, ring)
	}
	return geomt.NewPolygon(geomt.XY).MustSetCoords(coords)
}

func writeProvinceArchive(path string, features []*geojson.Feature) error {
	fc := geojson.FeatureCollection{Features: features}
	data, err := json.Marshal(&fc)
	if err != nil {
		return fmt.Errorf("encoding feature collection: %w", err)
	}

	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("creating %s: %w", path, err)
	}
	defer f.Close()

	zw := zip.NewWriter(f)
	entryName := strings.TrimSuffix(filepath.Base(path), ".zip") + ".geojson"
	w, err := zw.Create(entryName)
	if err != nil {
		return err
	}
	if _, err := w.Write(data); err != nil {
		return err
	}
	if err := zw.Close(); err != nil {
		return fmt.Errorf("finalizing %s: %w", path, err)
	}
	return nil
}

func featureInt(feat *geojson.Feature, name string) int {
	v, ok := feat.Properties[name]
	if !ok {
		return 0
	}
	switch n := v.(type) {
	case int:
		return n
	case float64:
		return int(n)
	default:
		return 0
	}
}
