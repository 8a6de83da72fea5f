package votes

import (
	"archive/zip"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"regexp"
	"strconv"
	"strings"

	"golang.org/x/text/transform"

	"github.com/votemap/votemap/internal/config"
	"github.com/votemap/votemap/internal/logger"
	"github.com/votemap/votemap/internal/ridings"
)

// Package-level errors.
var (
	// ErrArchiveMissing is a precondition failure: the per-province vote
	// archive has not been downloaded yet. It aborts the affected
	// province/year without raising further; other provinces proceed.
	ErrArchiveMissing = errors.New("vote archive missing; run the fetch step first")

	// ErrIncomplete reports that a multi-province load retained partial
	// results because at least one province failed.
	ErrIncomplete = errors.New("vote load incomplete")
)

var pollResultsFile = regexp.MustCompile(`(^|/)pollresults[^/]*\.csv$`)

// Loader reads per-province vote archives and normalizes them into Tables.
type Loader struct {
	dataDir string
	policy  string
	log     *logger.Logger
}

// NewLoader creates a Loader. policy is one of config.PollNumberExclude or
// config.PollNumberZero and controls rows whose poll identifier has no
// numeric prefix.
func NewLoader(dataDir, policy string, log *logger.Logger) *Loader {
	return &Loader{dataDir: dataDir, policy: policy, log: log}
}

// Load reads vote data for all provinces spanned by the given riding
// numbers and concatenates the per-province tables. If some provinces fail
// the already-loaded ones are retained and the returned error wraps
// ErrIncomplete naming the failures.
func (l *Loader) Load(year int, ridingNumbers []int) (*Table, error) {
	table := &Table{Year: year}
	var failures []string

	for _, provCode := range ridings.ProvincesForRidings(ridingNumbers) {
		province, ok := ridings.CodeProvinces[provCode]
		if !ok {
			failures = append(failures, fmt.Sprintf("unknown province code %d", provCode))
			continue
		}
		provTable, err := l.LoadProvince(year, province, ridingNumbers)
		if err != nil {
			l.log.Error("province vote load failed", err, map[string]interface{}{
				"province": province,
				"year":     year,
			})
			failures = append(failures, fmt.Sprintf("%s: %v", province, err))
			continue
		}
		table.Records = append(table.Records, provTable.Records...)
		table.Special = append(table.Special, provTable.Special...)
	}

	if len(failures) > 0 {
		return table, fmt.Errorf("%w: %s", ErrIncomplete, strings.Join(failures, "; "))
	}
	return table, nil
}

// LoadProvince reads one province's vote archive for a year, normalizes
// column names and encodings, segregates special-voting-rules rows,
// computes per-poll vote totals and extracts numeric poll identifiers.
// ridingNumbers, when non-empty, filters the result to those districts.
func (l *Loader) LoadProvince(year int, province string, ridingNumbers []int) (*Table, error) {
	spec, err := SpecForYear(year)
	if err != nil {
		return nil, err
	}
	provCode, ok := ridings.ProvinceCodes[province]
	if !ok {
		return nil, fmt.Errorf("unknown province abbreviation %q", province)
	}

	path := spec.VoteArchivePath(l.dataDir, provCode)
	if _, err := os.Stat(path); os.IsNotExist(err) {
		return nil, fmt.Errorf("%w: %s", ErrArchiveMissing, path)
	}

	zr, err := zip.OpenReader(path)
	if err != nil {
		return nil, fmt.Errorf("opening vote archive %s: %w", path, err)
	}
	defer zr.Close()

	table := &Table{Year: year}
	for _, zf := range zr.File {
		if !pollResultsFile.MatchString(zf.Name) {
			continue
		}
		if err := l.parseRidingFile(zf, spec, table); err != nil {
			return nil, fmt.Errorf("parsing %s in %s: %w", zf.Name, path, err)
		}
	}

	if len(ridingNumbers) > 0 {
		table.Records = filterDistricts(table.Records, ridingNumbers)
		table.Special = filterDistricts(table.Special, ridingNumbers)
	}

	computeTotalVotes(table.Records)
	normalizeParties(table.Records)
	normalizeParties(table.Special)

	l.log.Info("province votes loaded", map[string]interface{}{
		"province": province,
		"year":     year,
		"records":  len(table.Records),
		"special":  len(table.Special),
	})
	return table, nil
}

// parseRidingFile decodes one per-riding CSV and appends its rows to the
// table, splitting special-voting-rules rows off into table.Special.
func (l *Loader) parseRidingFile(zf *zip.File, spec YearSpec, table *Table) error {
	rc, err := zf.Open()
	if err != nil {
		return err
	}
	defer rc.Close()

	var src io.Reader = rc
	if dec := spec.NewDecoder(); dec != nil {
		src = transform.NewReader(rc, dec)
	}

	reader := csv.NewReader(src)
	reader.LazyQuotes = true
	reader.FieldsPerRecord = -1

	header, err := reader.Read()
	if err != nil {
		return fmt.Errorf("reading header: %w", err)
	}
	cols := indexColumns(header, spec.ColumnRenames)
	for _, required := range []string{"DistrictNumber", "DistrictName", "Poll", "Party", "Votes"} {
		if _, ok := cols[required]; !ok {
			return fmt.Errorf("required column %s not found in header", required)
		}
	}

	for {
		row, err := reader.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return fmt.Errorf("reading row: %w", err)
		}

		rec, err := parseRecord(row, cols)
		if err != nil {
			return err
		}

		if strings.Contains(rec.Poll, spec.SpecialPollMarker) {
			table.Special = append(table.Special, rec)
			continue
		}

		pdNum, ok := IntPart(rec.Poll)
		if !ok {
			// non-numeric poll identifier outside the special sub-table;
			// behavior is policy-driven (see config.PollNumberPolicy)
			if l.policy == config.PollNumberZero {
				rec.PDNum = 0
				table.Records = append(table.Records, rec)
			}
			continue
		}
		rec.PDNum = pdNum
		table.Records = append(table.Records, rec)
	}
	return nil
}

// indexColumns maps canonical column names to their positions in the
// header, using the year's bilingual rename table.
func indexColumns(header []string, renames map[string]string) map[string]int {
	cols := make(map[string]int)
	for i, h := range header {
		h = strings.TrimSpace(h)
		if canonical, ok := renames[h]; ok {
			cols[canonical] = i
		}
	}
	return cols
}

func parseRecord(row []string, cols map[string]int) (Record, error) {
	get := func(name string) string {
		idx, ok := cols[name]
		if !ok || idx >= len(row) {
			return ""
		}
		return strings.TrimSpace(row[idx])
	}
	getInt := func(name string) int {
		s := get(name)
		if s == "" {
			return 0
		}
		n, err := strconv.Atoi(s)
		if err != nil {
			return 0
		}
		return n
	}
	getBool := func(name string) bool {
		return strings.EqualFold(get(name), "Y")
	}

	districtNumber, err := strconv.Atoi(get("DistrictNumber"))
	if err != nil {
		return Record{}, fmt.Errorf("parsing district number %q: %w", get("DistrictNumber"), err)
	}

	return Record{
		DistrictNumber:      districtNumber,
		DistrictName:        strings.Trim(get("DistrictName"), `"`),
		Poll:                get("Poll"),
		PollStationName:     get("PollStationName"),
		MergedWith:          get("MergedWith"),
		Party:               get("Party"),
		CandidateFirstName:  get("CandidateFirstName"),
		CandidateMiddleName: get("CandidateMiddleName"),
		CandidateLastName:   get("CandidateLastName"),
		Votes:               getInt("Votes"),
		Electors:            getInt("Electors"),
		RejectedBallots:     getInt("RejectedBallots"),
		Incumbent:           getBool("IncumbentIndicator"),
		Elected:             getBool("ElectedIndicator"),
		Void:                getBool("VoidIndicator"),
		NoPollHeld:          getBool("NoPollIndicator"),
	}, nil
}

func filterDistricts(records []Record, ridingNumbers []int) []Record {
	keep := make(map[int]struct{}, len(ridingNumbers))
	for _, n := range ridingNumbers {
		keep[n] = struct{}{}
	}
	out := records[:0]
	for _, r := range records {
		if _, ok := keep[r.DistrictNumber]; ok {
			out = append(out, r)
		}
	}
	return out
}

// computeTotalVotes fills TotalVotes on every record with the sum of Votes
// across parties at the record's poll.
func computeTotalVotes(records []Record) {
	type pollKey struct {
		district int
		poll     string
	}
	totals := make(map[pollKey]int)
	for _, r := range records {
		totals[pollKey{r.DistrictNumber, r.Poll}] += r.Votes
	}
	for i := range records {
		records[i].TotalVotes = totals[pollKey{records[i].DistrictNumber, records[i].Poll}]
	}
}

// UpdateRidingMap merges the riding names/numbers found in one province's
// vote archive into the year's riding map file.
func UpdateRidingMap(dataDir string, year int, province string) (*ridings.Map, error) {
	spec, err := SpecForYear(year)
	if err != nil {
		return nil, err
	}
	provCode, ok := ridings.ProvinceCodes[province]
	if !ok {
		return nil, fmt.Errorf("unknown province abbreviation %q", province)
	}
	path := spec.VoteArchivePath(dataDir, provCode)
	if _, err := os.Stat(path); os.IsNotExist(err) {
		return nil, fmt.Errorf("%w: %s", ErrArchiveMissing, path)
	}
	return ridings.UpdateFromArchive(dataDir, year, path, spec.NewDecoder())
}
