// Package nearest answers nearest-riding queries over cached riding
// centroids, ranked by great-circle distance.
package nearest

import (
	"encoding/csv"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strconv"

	"github.com/golang/geo/s2"

	"github.com/votemap/votemap/internal/ridings"
)

// Centroid is one riding's centroid in geographic coordinates.
type Centroid struct {
	Number int
	Name   string
	Lon    float64
	Lat    float64
}

// CachePath returns the path of the per-year centroid cache file.
func CachePath(dataDir string, year int) string {
	return filepath.Join(dataDir, fmt.Sprintf("%d_riding_centroids.csv", year))
}

// Centroids returns the riding centroids for a year, building and caching
// them on first use. build is only invoked when no cache file exists.
func Centroids(dataDir string, year int, build func() ([]Centroid, error)) ([]Centroid, error) {
	path := CachePath(dataDir, year)
	if _, err := os.Stat(path); err == nil {
		return loadCache(path)
	}

	centroids, err := build()
	if err != nil {
		return nil, fmt.Errorf("building riding centroids for %d: %w", year, err)
	}
	if err := saveCache(path, centroids); err != nil {
		return nil, err
	}
	return centroids, nil
}

// Nearest returns the names of the n ridings closest to the named riding,
// ordered by ascending great-circle distance and excluding the riding
// itself.
func Nearest(name string, centroids []Centroid, n int) ([]string, error) {
	var query *Centroid
	for i := range centroids {
		if centroids[i].Name == name {
			query = &centroids[i]
			break
		}
	}
	if query == nil {
		return nil, fmt.Errorf("%w: %q not in centroid set", ridings.ErrUnknownRiding, name)
	}

	from := s2.LatLngFromDegrees(query.Lat, query.Lon)

	type ranked struct {
		name  string
		angle float64
	}
	others := make([]ranked, 0, len(centroids)-1)
	for _, c := range centroids {
		if c.Name == name {
			continue
		}
		to := s2.LatLngFromDegrees(c.Lat, c.Lon)
		others = append(others, ranked{name: c.Name, angle: from.Distance(to).Radians()})
	}

	sort.Slice(others, func(i, j int) bool {
		if others[i].angle != others[j].angle {
			return others[i].angle < others[j].angle
		}
		return others[i].name < others[j].name
	})

	if n > len(others) {
		n = len(others)
	}
	names := make([]string, 0, n)
	for _, r := range others[:n] {
		names = append(names, r.name)
	}
	return names, nil
}

func loadCache(path string) ([]Centroid, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("opening centroid cache %s: %w", path, err)
	}
	defer f.Close()

	reader := csv.NewReader(f)
	rows, err := reader.ReadAll()
	if err != nil {
		return nil, fmt.Errorf("reading centroid cache %s: %w", path, err)
	}

	var centroids []Centroid
	for i, row := range rows {
		if i == 0 {
			continue // header
		}
		if len(row) < 4 {
			return nil, fmt.Errorf("centroid cache %s row %d: want 4 columns, got %d", path, i, len(row))
		}
		number, err := strconv.Atoi(row[0])
		if err != nil {
			return nil, fmt.Errorf("centroid cache %s row %d: %w", path, i, err)
		}
		lon, err := strconv.ParseFloat(row[2], 64)
		if err != nil {
			return nil, fmt.Errorf("centroid cache %s row %d: %w", path, i, err)
		}
		lat, err := strconv.ParseFloat(row[3], 64)
		if err != nil {
			return nil, fmt.Errorf("centroid cache %s row %d: %w", path, i, err)
		}
		centroids = append(centroids, Centroid{Number: number, Name: row[1], Lon: lon, Lat: lat})
	}
	return centroids, nil
}

func saveCache(path string, centroids []Centroid) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("creating centroid cache %s: %w", path, err)
	}
	defer f.Close()

	w := csv.NewWriter(f)
	if err := w.Write([]string{"riding_number", "riding_name", "centroid_lon", "centroid_lat"}); err != nil {
		return err
	}
	for _, c := range centroids {
		record := []string{
			strconv.Itoa(c.Number),
			c.Name,
			strconv.FormatFloat(c.Lon, 'f', -1, 64),
			strconv.FormatFloat(c.Lat, 'f', -1, 64),
		}
		if err := w.Write(record); err != nil {
			return err
		}
	}
	w.Flush()
	if err := w.Error(); err != nil {
		return fmt.Errorf("writing centroid cache %s: %w", path, err)
	}
	return nil
}
