// Package ontario loads Ontario provincial general-election results and
// polling-division boundaries. Elections Ontario publishes one CSV zip per
// election (candidate, official-return and political-interest files) and
// one shapefile zip; both need more cleanup than the federal sources:
// by-election rows mixed into the files, French duplicate columns, and
// em-dashes in district names.
package ontario

import (
	"archive/zip"
	"encoding/csv"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"

	shp "github.com/jonas-p/go-shp"
	"golang.org/x/text/encoding/charmap"

	"github.com/votemap/votemap/internal/geometry"
	"github.com/votemap/votemap/internal/partition"
	"github.com/votemap/votemap/internal/votes"
)

// ErrArchiveMissing is returned when a required Ontario source archive has
// not been downloaded.
var ErrArchiveMissing = errors.New("ontario archive missing; run the fetch step first")

// Candidate is one candidacy in one district.
type Candidate struct {
	DistrictNumber int
	DistrictName   string
	Name           string
	PartyCode      string
	Party          string
}

// VoteRow is one candidate's result in one poll. Advance polls carry their
// original "ADV..." poll label with PDNum zero.
type VoteRow struct {
	DistrictName string
	PollNumber   string
	PDNum        int
	Candidate    string
	Party        string
	Votes        int
}

// Data holds one provincial election's cleaned vote tables.
type Data struct {
	Year       int
	Candidates []Candidate
	Votes      []VoteRow
}

// VoteArchiveName returns the file name of the provincial results zip.
func VoteArchiveName(year int) string {
	return fmt.Sprintf("%d_Ontario_General_Election-csv.zip", year)
}

// GeometryArchiveName returns the file name of the provincial
// polling-division shapefile zip.
func GeometryArchiveName(year int) string {
	return fmt.Sprintf("%d_Ontario_Polling_Division_Shapefile.zip", year)
}

// LoadVotes loads the provincial results zip for a year, keeping only
// general-election rows and, when ridingNames is non-empty, only the named
// districts. District names are normalized (em-dash to double dash, the
// numeric prefix stripped from the votes file) before filtering.
func LoadVotes(dataDir string, year int, ridingNames []string) (*Data, error) {
	path := filepath.Join(dataDir, VoteArchiveName(year))
	zr, err := zip.OpenReader(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("%w: %s", ErrArchiveMissing, path)
		}
		return nil, fmt.Errorf("opening %s: %w", path, err)
	}
	defer zr.Close()

	candRows, err := readCSVEntry(&zr.Reader, "Valid Votes")
	if err != nil {
		return nil, err
	}
	returnRows, err := readCSVEntry(&zr.Reader, "Official Return")
	if err != nil {
		return nil, err
	}
	interestRows, err := readCSVEntry(&zr.Reader, "Political Interest")
	if err != nil {
		return nil, err
	}

	parties, err := parseParties(interestRows)
	if err != nil {
		return nil, err
	}
	candidates, err := parseCandidates(candRows, parties, ridingNames)
	if err != nil {
		return nil, err
	}
	voteRows, err := parseVotes(returnRows, candidates, ridingNames)
	if err != nil {
		return nil, err
	}

	return &Data{Year: year, Candidates: candidates, Votes: voteRows}, nil
}

// CandidateMap converts the candidate list into a district-number to party
// to candidate-name lookup.
func CandidateMap(candidates []Candidate) map[int]map[string]string {
	out := make(map[int]map[string]string)
	for _, c := range candidates {
		m, ok := out[c.DistrictNumber]
		if !ok {
			m = make(map[string]string)
			out[c.DistrictNumber] = m
		}
		m[c.Party] = c.Name
	}
	return out
}

// LoadGeometries loads the provincial polling-division shapefile. DBF
// attributes are latin-1. Rows are keyed like the federal tables: the
// district number stands in for FED_NUM.
func LoadGeometries(dataDir string, year int, ridingNames []string) (*geometry.Table, error) {
	path := filepath.Join(dataDir, GeometryArchiveName(year))
	if _, err := os.Stat(path); os.IsNotExist(err) {
		return nil, fmt.Errorf("%w: %s", ErrArchiveMissing, path)
	}

	tmpDir, err := os.MkdirTemp("", "votemap-on-shp-*")
	if err != nil {
		return nil, err
	}
	defer os.RemoveAll(tmpDir)

	shpPath, err := partition.ExtractShapefile(path, tmpDir)
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
	attrInt := func(row int, name string) int {
		v, err := strconv.Atoi(attr(row, name))
		if err != nil {
			return 0
		}
		return v
	}

	keep := nameFilter(ridingNames)

	t := &geometry.Table{Year: year, Kind: geometry.KindElectionDay}
	for reader.Next() {
		n, shape := reader.Shape()
		poly, ok := shape.(*shp.Polygon)
		if !ok {
			continue
		}
		district := normalizeDistrict(attr(n, "ED_NAME_EN"))
		if !keep(district) {
			continue
		}
		g, err := geometry.ToSimple(partition.PolygonGeom(poly))
		if err != nil {
			return nil, fmt.Errorf("polling division %s/%d: %w",
				district, attrInt(n, "PD_NUMBER"), err)
		}
		t.Rows = append(t.Rows, geometry.Row{
			FEDNum:       attrInt(n, "ED_ID"),
			PDNum:        attrInt(n, "PD_NUMBER"),
			DistrictName: district,
			Geom:         g,
		})
	}
	return t, nil
}

// readCSVEntry reads the first zip entry whose name contains the marker.
func readCSVEntry(zr *zip.Reader, marker string) ([][]string, error) {
	for _, zf := range zr.File {
		if !strings.Contains(zf.Name, marker) {
			continue
		}
		rc, err := zf.Open()
		if err != nil {
			return nil, err
		}
		defer rc.Close()
		reader := csv.NewReader(rc)
		reader.LazyQuotes = true
		reader.FieldsPerRecord = -1
		rows, err := reader.ReadAll()
		if err != nil {
			return nil, fmt.Errorf("parsing %s: %w", zf.Name, err)
		}
		return rows, nil
	}
	return nil, fmt.Errorf("no %q file in archive", marker)
}

// header maps column names to indices and answers lookups on derived rows.
type header map[string]int

func indexHeader(row []string) header {
	h := make(header, len(row))
	for i, name := range row {
		h[strings.TrimSpace(name)] = i
	}
	return h
}

func (h header) get(row []string, name string) string {
	idx, ok := h[name]
	if !ok || idx >= len(row) {
		return ""
	}
	return strings.TrimSpace(row[idx])
}

func (h header) getInt(row []string, name string) int {
	v, err := strconv.Atoi(h.get(row, name))
	if err != nil {
		return 0
	}
	return v
}

// parseParties builds the party-code to party-name lookup from the
// political-interest file, skipping by-election rows.
func parseParties(rows [][]string) (map[string]string, error) {
	if len(rows) == 0 {
		return nil, errors.New("political interest file is empty")
	}
	h := indexHeader(rows[0])
	parties := make(map[string]string)
	for _, row := range rows[1:] {
		if strings.Contains(h.get(row, "EventNameEnglish"), "By-elections") {
			continue
		}
		code := h.get(row, "PoliticalInterestCode")
		if code == "" {
			continue
		}
		parties[code] = h.get(row, "PartyFullNameEnglish")
	}
	return parties, nil
}

func parseCandidates(rows [][]string, parties map[string]string, ridingNames []string) ([]Candidate, error) {
	if len(rows) == 0 {
		return nil, errors.New("valid votes file is empty")
	}
	h := indexHeader(rows[0])
	keep := nameFilter(ridingNames)

	var candidates []Candidate
	for _, row := range rows[1:] {
		if strings.Contains(h.get(row, "EventNameEnglish"), "By-elections") {
			continue
		}
		district := normalizeDistrict(h.get(row, "ElectoralDistrictNameEnglish"))
		if !keep(district) {
			continue
		}
		c := Candidate{
			DistrictNumber: h.getInt(row, "ElectoralDistricNumber"),
			DistrictName:   district,
			Name:           h.get(row, "NameOfCandidates"),
			PartyCode:      h.get(row, "PoliticalInterestCode"),
		}
		if c.PartyCode == "" {
			c.PartyCode = "IND"
			c.Party = "Independent"
		} else if party, ok := parties[c.PartyCode]; ok {
			c.Party = party
		} else {
			c.Party = "Independent"
		}
		candidates = append(candidates, c)
	}
	disambiguateIndependents(candidates)
	return candidates, nil
}

// disambiguateIndependents relabels the Party of independent candidates as
// Independent-01, Independent-02 and so on within any district fielding
// more than one of them.
func disambiguateIndependents(candidates []Candidate) {
	byDistrict := make(map[string][]int)
	for i, c := range candidates {
		if c.Party == "Independent" {
			byDistrict[c.DistrictName] = append(byDistrict[c.DistrictName], i)
		}
	}
	districts := make([]string, 0, len(byDistrict))
	for d := range byDistrict {
		districts = append(districts, d)
	}
	sort.Strings(districts)

	rename := make(map[string]string)
	for _, district := range districts {
		idxs := byDistrict[district]
		seen := make(map[string]struct{})
		var distinct []string
		for _, i := range idxs {
			name := candidates[i].Name
			if _, ok := seen[name]; ok {
				continue
			}
			seen[name] = struct{}{}
			distinct = append(distinct, name)
		}
		if len(distinct) < 2 {
			continue
		}
		for n, name := range distinct {
			rename[district+"\x00"+name] = fmt.Sprintf("Independent-%02d", n+1)
		}
	}
	for i := range candidates {
		if party, ok := rename[candidates[i].DistrictName+"\x00"+candidates[i].Name]; ok {
			candidates[i].Party = party
		}
	}
}

func parseVotes(rows [][]string, candidates []Candidate, ridingNames []string) ([]VoteRow, error) {
	if len(rows) == 0 {
		return nil, errors.New("official return file is empty")
	}
	h := indexHeader(rows[0])
	keep := nameFilter(ridingNames)

	partyOf := make(map[string]string, len(candidates))
	for _, c := range candidates {
		partyOf[c.DistrictName+"\x00"+c.Name] = c.Party
	}

	var out []VoteRow
	for _, row := range rows[1:] {
		if strings.Contains(h.get(row, "EventNameEnglish"), "By-elections") {
			continue
		}
		// votes-file district names carry a numeric prefix ("005 Name")
		raw := h.get(row, "ElectoralDistrictNameEnglish")
		if len(raw) > 4 {
			raw = raw[4:]
		}
		district := normalizeDistrict(raw)
		if !keep(district) {
			continue
		}

		v := VoteRow{
			DistrictName: district,
			PollNumber:   h.get(row, "PollNumber"),
			Candidate:    h.get(row, "NameOfCandidates"),
			Votes:        h.getInt(row, "Votes"),
		}
		if !strings.Contains(v.PollNumber, "ADV") {
			if n, ok := votes.IntPart(v.PollNumber); ok {
				v.PDNum = n
			}
		}
		v.Party = partyOf[v.DistrictName+"\x00"+v.Candidate]
		out = append(out, v)
	}
	return out, nil
}

func normalizeDistrict(s string) string {
	return strings.TrimSpace(strings.ReplaceAll(s, "—", "--"))
}

// nameFilter returns a predicate keeping only the named districts; an
// empty list keeps everything.
func nameFilter(ridingNames []string) func(string) bool {
	if len(ridingNames) == 0 {
		return func(string) bool { return true }
	}
	set := make(map[string]struct{}, len(ridingNames))
	for _, name := range ridingNames {
		set[name] = struct{}{}
	}
	return func(name string) bool {
		_, ok := set[name]
		return ok
	}
}
