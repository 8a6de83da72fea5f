package votes

import (
	"errors"
	"fmt"
	"path/filepath"
	"sort"

	"golang.org/x/text/encoding"
	"golang.org/x/text/encoding/charmap"
)

// ErrUnsupportedYear is returned when no YearSpec exists for a year.
var ErrUnsupportedYear = errors.New("unsupported election year")

// YearSpec describes everything about a federal election year that varies
// between years: CSV character encoding, the bilingual column headers and
// their canonical renames, the special-voting-rules marker, and the layout
// of the upstream download locations. Loaders select a YearSpec by year
// instead of branching on year inline.
type YearSpec struct {
	Year int

	// Encoding decodes the vote CSVs; nil means UTF-8. Elections Canada
	// switched to UTF-8 exports in 2015.
	Encoding encoding.Encoding

	// ColumnRenames maps bilingual source headers to canonical field names.
	ColumnRenames map[string]string

	// FrenchColumns are redundant French-only columns dropped on load.
	FrenchColumns []string

	// SpecialPollMarker identifies special-voting-rules rows (mail-in and
	// similar polls with no physical polling division) by substring match
	// on the poll identifier.
	SpecialPollMarker string

	// VotesBaseURL is the base URL of the per-province vote result zips.
	VotesBaseURL string

	// GeometryBaseURL is the base URL of the nationwide boundary archives.
	GeometryBaseURL string

	// EDayArchive and AdvArchive are the nationwide shapefile zip names
	// for election-day and advance polling divisions.
	EDayArchive string
	AdvArchive  string

	// DataDictionary is the name of the PDF data dictionary published
	// alongside the boundary archives.
	DataDictionary string
}

// baseColumnRenames is the bilingual header set shared by all supported
// federal years.
var baseColumnRenames = map[string]string{
	"Polling Station Number/Numéro du bureau de scrutin":                  "Poll",
	"Polling Station Name/Nom du bureau de scrutin":                       "PollStationName",
	"Merge With/Fusionné avec":                                            "MergedWith",
	"Candidate’s Family Name/Nom de famille du candidat":                  "CandidateLastName",
	"Candidate’s First Name/Prénom du candidat":                           "CandidateFirstName",
	"Candidate’s Middle Name/Second prénom du candidat":                   "CandidateMiddleName",
	"Political Affiliation Name_English/Appartenance politique_Anglais":   "Party",
	"Candidate Poll Votes Count/Votes du candidat pour le bureau":         "Votes",
	"Electors for Polling Station/Électeurs du bureau":                    "Electors",
	"Rejected Ballots for Polling Station/Bulletins rejetés du bureau":    "RejectedBallots",
	"Incumbent Indicator/Indicateur_Candidat sortant":                     "IncumbentIndicator",
	"Elected Candidate Indicator/Indicateur du candidat élu":              "ElectedIndicator",
	"Electoral District Name_English/Nom de circonscription_Anglais":      "DistrictName",
	"Electoral District Number/Numéro de circonscription":                 "DistrictNumber",
	"Void Poll Indicator/Indicateur de bureau supprimé":                   "VoidIndicator",
	"No Poll Held Indicator/Indicateur de bureau sans scrutin":            "NoPollIndicator",
}

var baseFrenchColumns = []string{
	"Electoral District Name_French/Nom de circonscription_Français",
	"Political Affiliation Name_French/Appartenance politique_Français",
}

func federalSpec(year int, enc encoding.Encoding, appPath string) YearSpec {
	return YearSpec{
		Year:              year,
		Encoding:          enc,
		ColumnRenames:     baseColumnRenames,
		FrenchColumns:     baseFrenchColumns,
		SpecialPollMarker: "S/R",
		VotesBaseURL: fmt.Sprintf(
			"https://elections.ca/res/rep/off/%s/data_donnees/", appPath),
		GeometryBaseURL: "https://ftp.maps.canada.ca/pub/elections_elections/" +
			"Electoral-districts_Circonscription-electorale/" +
			fmt.Sprintf("Elections_Canada_%d/", year),
		EDayArchive:    fmt.Sprintf("PD_CA_%d_EN.zip", year),
		AdvArchive:     fmt.Sprintf("ADVPD_CA_%d_EN.zip", year),
		DataDictionary: fmt.Sprintf("Elections_Canada_%d_Data_Dictionary.pdf", year),
	}
}

// yearSpecs holds one spec per supported federal general election.
var yearSpecs = map[int]YearSpec{
	2008: federalSpec(2008, charmap.Windows1252, "ovr2008app/40"),
	2011: federalSpec(2011, charmap.Windows1252, "ovr2011app/41"),
	2015: federalSpec(2015, nil, "ovr2015app/42"),
	2019: federalSpec(2019, nil, "ovr2019app/51"),
	2021: federalSpec(2021, nil, "ovr2021app/53"),
}

// SpecForYear returns the YearSpec for a supported federal election year.
func SpecForYear(year int) (YearSpec, error) {
	spec, ok := yearSpecs[year]
	if !ok {
		return YearSpec{}, fmt.Errorf("%w: %d (supported: %v)",
			ErrUnsupportedYear, year, SupportedYears())
	}
	return spec, nil
}

// SupportedYears lists the federal election years with a YearSpec,
// ascending.
func SupportedYears() []int {
	years := make([]int, 0, len(yearSpecs))
	for y := range yearSpecs {
		years = append(years, y)
	}
	sort.Ints(years)
	return years
}

// NewDecoder returns a decoder for the year's CSV encoding, or nil when
// the source is already UTF-8.
func (s YearSpec) NewDecoder() *encoding.Decoder {
	if s.Encoding == nil {
		return nil
	}
	return s.Encoding.NewDecoder()
}

// VoteArchiveName returns the per-province vote archive file name for a
// province code.
func (s YearSpec) VoteArchiveName(provCode int) string {
	return fmt.Sprintf("%d_pollresults_resultatsbureau%d.zip", s.Year, provCode)
}

// VoteArchivePath returns the local path of the per-province vote archive.
func (s YearSpec) VoteArchivePath(dataDir string, provCode int) string {
	return filepath.Join(dataDir, s.VoteArchiveName(provCode))
}

// VoteArchiveURL returns the upstream URL of the per-province vote archive.
// Upstream names the file without the year prefix used locally.
func (s YearSpec) VoteArchiveURL(provCode int) string {
	return s.VotesBaseURL + fmt.Sprintf("pollresults_resultatsbureau%d.zip", provCode)
}
