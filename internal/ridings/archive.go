package ridings

import (
	"archive/zip"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"regexp"
	"strconv"
	"strings"

	"golang.org/x/text/encoding"
	"golang.org/x/text/transform"
)

var pollResultsFile = regexp.MustCompile(`(^|/)pollresults[^/]*\.csv$`)

// UpdateFromArchive merges the (riding-number, riding-name) pairs found in
// a per-province vote archive into the riding map for a year, creating the
// map if no file exists yet. Each per-riding CSV inside the archive
// contributes the first two columns of its first data row. The updated map
// is persisted back to dataDir before returning.
//
// dec decodes the archive's CSV bytes; pass nil for UTF-8 sources.
func UpdateFromArchive(dataDir string, year int, archivePath string, dec *encoding.Decoder) (*Map, error) {
	m, err := LoadMap(dataDir, year)
	if err != nil {
		if !errors.Is(err, ErrMapMissing) {
			return nil, err
		}
		m = New(year)
	}

	zr, err := zip.OpenReader(archivePath)
	if err != nil {
		return nil, fmt.Errorf("opening vote archive %s: %w", archivePath, err)
	}
	defer zr.Close()

	for _, zf := range zr.File {
		if !pollResultsFile.MatchString(zf.Name) {
			continue
		}
		number, name, err := firstRidingRow(zf, dec)
		if err != nil {
			return nil, fmt.Errorf("reading %s in %s: %w", zf.Name, archivePath, err)
		}
		m.Add(name, number)
	}

	if err := m.Save(dataDir); err != nil {
		return nil, err
	}
	return m, nil
}

// firstRidingRow reads the header and first data row of one per-riding CSV
// and returns the riding number and name from its first two columns.
func firstRidingRow(zf *zip.File, dec *encoding.Decoder) (int, string, error) {
	rc, err := zf.Open()
	if err != nil {
		return 0, "", err
	}
	defer rc.Close()

	var src io.Reader = rc
	if dec != nil {
		src = transform.NewReader(rc, dec)
	}

	reader := csv.NewReader(src)
	reader.LazyQuotes = true
	reader.FieldsPerRecord = -1

	// header
	if _, err := reader.Read(); err != nil {
		return 0, "", fmt.Errorf("reading header: %w", err)
	}
	row, err := reader.Read()
	if err != nil {
		return 0, "", fmt.Errorf("reading first data row: %w", err)
	}
	if len(row) < 2 {
		return 0, "", fmt.Errorf("first data row has %d columns, want at least 2", len(row))
	}

	number, err := strconv.Atoi(strings.TrimSpace(row[0]))
	if err != nil {
		return 0, "", fmt.Errorf("parsing riding number %q: %w", row[0], err)
	}
	// in some years' exports riding names carry stray quote characters
	name := strings.Trim(strings.TrimSpace(row[1]), `"`)
	return number, name, nil
}
