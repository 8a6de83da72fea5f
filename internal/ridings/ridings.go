package ridings

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"sort"
)

// Package-level errors.
var (
	// ErrUnknownRiding is returned when a riding name or number is not
	// present in the map for the requested year. Lookups fail loudly:
	// a silent substitution would corrupt vote/geometry joins downstream.
	ErrUnknownRiding = errors.New("unknown riding")

	// ErrMapMissing is returned when no riding map file exists for a year.
	ErrMapMissing = errors.New("riding map file missing")
)

// Map is the bidirectional riding-name <-> riding-number mapping for one
// election year. Riding boundaries are redrawn between some elections, so
// one Map instance exists per year. Numbers are unique within a year;
// names for the same physical area may differ across years.
type Map struct {
	year     int
	byName   map[string]int
	byNumber map[int]string
}

// New returns an empty riding map for the given year.
func New(year int) *Map {
	return &Map{
		year:     year,
		byName:   make(map[string]int),
		byNumber: make(map[int]string),
	}
}

// Year returns the election year this map describes.
func (m *Map) Year() int { return m.year }

// Len returns the number of ridings in the map.
func (m *Map) Len() int { return len(m.byName) }

// Add inserts or overwrites one name -> number entry. Rebuilding from the
// same source files is idempotent.
func (m *Map) Add(name string, number int) {
	if old, ok := m.byName[name]; ok {
		delete(m.byNumber, old)
	}
	m.byName[name] = number
	m.byNumber[number] = name
}

// Number returns the riding number for a name.
func (m *Map) Number(name string) (int, error) {
	num, ok := m.byName[name]
	if !ok {
		return 0, fmt.Errorf("%w: %q (year %d)", ErrUnknownRiding, name, m.year)
	}
	return num, nil
}

// Name returns the riding name for a number.
func (m *Map) Name(number int) (string, error) {
	name, ok := m.byNumber[number]
	if !ok {
		return "", fmt.Errorf("%w: %d (year %d)", ErrUnknownRiding, number, m.year)
	}
	return name, nil
}

// Numbers converts a list of riding names to numbers, failing on the first
// unknown name.
func (m *Map) Numbers(names []string) ([]int, error) {
	nums := make([]int, 0, len(names))
	for _, name := range names {
		num, err := m.Number(name)
		if err != nil {
			return nil, err
		}
		nums = append(nums, num)
	}
	return nums, nil
}

// Names returns all riding names in the map, sorted.
func (m *Map) Names() []string {
	names := make([]string, 0, len(m.byName))
	for name := range m.byName {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Validate returns the subset of names present in the map, preserving
// input order. Invalid entries are silently dropped; callers that need to
// report them must diff the input against the output.
func (m *Map) Validate(names []string) []string {
	valid := make([]string, 0, len(names))
	for _, name := range names {
		if _, ok := m.byName[name]; ok {
			valid = append(valid, name)
		}
	}
	return valid
}

// Query returns the riding names matching the given regular expression
// pattern (anchored at the start, like a prefix search), sorted.
func (m *Map) Query(pattern string) ([]string, error) {
	re, err := regexp.Compile(pattern)
	if err != nil {
		return nil, fmt.Errorf("invalid riding query pattern: %w", err)
	}
	var matches []string
	for name := range m.byName {
		if loc := re.FindStringIndex(name); loc != nil && loc[0] == 0 {
			matches = append(matches, name)
		}
	}
	sort.Strings(matches)
	return matches, nil
}

// Provinces returns the distinct province codes spanned by the given
// riding names.
func (m *Map) Provinces(names []string) ([]int, error) {
	nums, err := m.Numbers(names)
	if err != nil {
		return nil, err
	}
	return ProvincesForRidings(nums), nil
}

// MapPath returns the path of the riding map file for a year. The file is
// a human-diffable UTF-8 JSON object of riding-name -> riding-number.
func MapPath(dataDir string, year int) string {
	return filepath.Join(dataDir, fmt.Sprintf("%d_riding_map.json", year))
}

// LoadMap reads the riding map file for a year from dataDir.
func LoadMap(dataDir string, year int) (*Map, error) {
	path := MapPath(dataDir, year)
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("%w: %s (run the fetch step for %d first)",
				ErrMapMissing, path, year)
		}
		return nil, fmt.Errorf("reading riding map %s: %w", path, err)
	}

	byName := make(map[string]int)
	if err := json.Unmarshal(data, &byName); err != nil {
		return nil, fmt.Errorf("parsing riding map %s: %w", path, err)
	}

	m := New(year)
	for name, num := range byName {
		m.Add(name, num)
	}
	return m, nil
}

// Save writes the riding map file for the map's year into dataDir,
// overwriting any previous version. Keys are sorted by Go's JSON encoder,
// so successive writes of the same map are byte-identical.
func (m *Map) Save(dataDir string) error {
	data, err := json.MarshalIndent(m.byName, "", "  ")
	if err != nil {
		return fmt.Errorf("encoding riding map: %w", err)
	}
	data = append(data, '\n')

	path := MapPath(dataDir, m.year)
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("writing riding map %s: %w", path, err)
	}
	return nil
}
