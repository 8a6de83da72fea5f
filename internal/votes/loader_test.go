package votes

import (
	"archive/zip"
	"os"
	"strconv"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/text/encoding/charmap"

	"github.com/votemap/votemap/internal/config"
	"github.com/votemap/votemap/internal/logger"
)

// voteHeader is the bilingual header shared by the per-riding CSVs of
// every supported federal year.
var voteHeader = []string{
	"Electoral District Number/Numéro de circonscription",
	"Electoral District Name_English/Nom de circonscription_Anglais",
	"Polling Station Number/Numéro du bureau de scrutin",
	"Polling Station Name/Nom du bureau de scrutin",
	"Merge With/Fusionné avec",
	"Political Affiliation Name_English/Appartenance politique_Anglais",
	"Candidate’s First Name/Prénom du candidat",
	"Candidate’s Family Name/Nom de famille du candidat",
	"Candidate Poll Votes Count/Votes du candidat pour le bureau",
	"Electors for Polling Station/Électeurs du bureau",
	"Rejected Ballots for Polling Station/Bulletins rejetés du bureau",
	"Elected Candidate Indicator/Indicateur du candidat élu",
}

type voteFixtureRow struct {
	district   int
	name       string
	poll       string
	station    string
	mergedWith string
	party      string
	first      string
	last       string
	votes      string
	electors   string
	rejected   string
	elected    string
}

func (r voteFixtureRow) csv() string {
	return strings.Join([]string{
		strconv.Itoa(r.district), r.name, r.poll, r.station, r.mergedWith,
		r.party, r.first, r.last, r.votes, r.electors, r.rejected, r.elected,
	}, ",")
}

// writeVoteArchive builds one province archive containing a single riding
// CSV assembled from the fixture rows.
func writeVoteArchive(t *testing.T, dir string, year, provCode int, rows []voteFixtureRow) {
	t.Helper()

	spec, err := SpecForYear(year)
	require.NoError(t, err)

	f, err := os.Create(spec.VoteArchivePath(dir, provCode))
	require.NoError(t, err)
	defer f.Close()

	zw := zip.NewWriter(f)
	w, err := zw.Create("pollresults_resultatsbureau35075.csv")
	require.NoError(t, err)

	lines := []string{strings.Join(voteHeader, ",")}
	for _, r := range rows {
		lines = append(lines, r.csv())
	}
	_, err = w.Write([]byte(strings.Join(lines, "\n") + "\n"))
	require.NoError(t, err)
	require.NoError(t, zw.Close())
}

func fixtureRows() []voteFixtureRow {
	base := voteFixtureRow{district: 35075, name: "Ottawa Centre"}
	row := func(poll, mergedWith, party, first, last, votes string) voteFixtureRow {
		r := base
		r.poll = poll
		r.station = "Station " + poll
		r.mergedWith = mergedWith
		r.party = party
		r.first = first
		r.last = last
		r.votes = votes
		r.electors = "400"
		r.rejected = "2"
		r.elected = "N"
		return r
	}
	return []voteFixtureRow{
		row("1", "", "Liberal", "Ada", "Loveless", "100"),
		row("1", "", "Conservative", "Bob", "Hill", "50"),
		row("2", "1", "Liberal", "Ada", "Loveless", "0"),
		row("2", "1", "Conservative", "Bob", "Hill", "0"),
		row("601", "", "Liberal", "Ada", "Loveless", "40"),
		row("601", "", "Conservative", "Bob", "Hill", "25"),
		row("S/R 1", "", "Liberal", "Ada", "Loveless", "7"),
		row("S/R 1", "", "Conservative", "Bob", "Hill", "3"),
		row("XX", "", "Liberal", "Ada", "Loveless", "1"),
	}
}

func TestLoadProvince_NormalizesRows(t *testing.T) {
	dir := t.TempDir()
	writeVoteArchive(t, dir, 2021, 35, fixtureRows())
	loader := NewLoader(dir, config.PollNumberExclude, logger.New("test"))

	table, err := loader.LoadProvince(2021, "ON", nil)

	require.NoError(t, err)
	// polls 1, 2 and 601 with two parties each; S/R segregated; XX dropped
	assert.Len(t, table.Records, 6)
	assert.Len(t, table.Special, 2)

	byPoll := make(map[string][]Record)
	for _, r := range table.Records {
		byPoll[r.Poll] = append(byPoll[r.Poll], r)
	}
	require.Len(t, byPoll["1"], 2)
	assert.Equal(t, 1, byPoll["1"][0].PDNum)
	assert.Equal(t, 150, byPoll["1"][0].TotalVotes)
	assert.Equal(t, "1", byPoll["2"][0].MergedWith)
	assert.Equal(t, 0, byPoll["2"][0].TotalVotes)
	assert.Equal(t, 601, byPoll["601"][0].PDNum)

	assert.NoError(t, table.VerifyTotals())
}

func TestLoadProvince_PollNumberZeroPolicy(t *testing.T) {
	dir := t.TempDir()
	writeVoteArchive(t, dir, 2021, 35, fixtureRows())
	loader := NewLoader(dir, config.PollNumberZero, logger.New("test"))

	table, err := loader.LoadProvince(2021, "ON", nil)

	require.NoError(t, err)
	// the "XX" row is kept with poll number zero instead of dropped
	assert.Len(t, table.Records, 7)
	var zeroRows int
	for _, r := range table.Records {
		if r.PDNum == 0 {
			zeroRows++
		}
	}
	assert.Equal(t, 1, zeroRows)
}

func TestLoadProvince_FiltersByRidingNumbers(t *testing.T) {
	dir := t.TempDir()
	writeVoteArchive(t, dir, 2021, 35, fixtureRows())
	loader := NewLoader(dir, config.PollNumberExclude, logger.New("test"))

	table, err := loader.LoadProvince(2021, "ON", []int{35999})

	require.NoError(t, err)
	assert.Empty(t, table.Records)
	assert.Empty(t, table.Special)
}

func TestLoadProvince_MissingArchive(t *testing.T) {
	loader := NewLoader(t.TempDir(), config.PollNumberExclude, logger.New("test"))

	_, err := loader.LoadProvince(2021, "ON", nil)

	assert.ErrorIs(t, err, ErrArchiveMissing)
}

func TestLoadProvince_Windows1252Decoding(t *testing.T) {
	dir := t.TempDir()
	spec, err := SpecForYear(2011)
	require.NoError(t, err)

	// encode the fixture CSV as Windows-1252, as the pre-2015 exports are
	rows := []voteFixtureRow{{
		district: 24001, name: "Abitibi--Témiscamingue", poll: "1",
		station: "École", party: "Liberal", first: "Ada", last: "Loveless",
		votes: "10", electors: "100", rejected: "0", elected: "N",
	}}
	lines := strings.Join(voteHeader, ",") + "\n" + rows[0].csv() + "\n"
	encoded, err := charmap.Windows1252.NewEncoder().String(lines)
	require.NoError(t, err)

	f, err := os.Create(spec.VoteArchivePath(dir, 24))
	require.NoError(t, err)
	zw := zip.NewWriter(f)
	w, err := zw.Create("pollresults_resultatsbureau24001.csv")
	require.NoError(t, err)
	_, err = w.Write([]byte(encoded))
	require.NoError(t, err)
	require.NoError(t, zw.Close())
	require.NoError(t, f.Close())

	loader := NewLoader(dir, config.PollNumberExclude, logger.New("test"))
	table, err := loader.LoadProvince(2011, "QC", nil)

	require.NoError(t, err)
	require.Len(t, table.Records, 1)
	assert.Equal(t, "Abitibi--Témiscamingue", table.Records[0].DistrictName)
	assert.Equal(t, "École", table.Records[0].PollStationName)
}

func TestLoad_PartialFailureWrapsErrIncomplete(t *testing.T) {
	dir := t.TempDir()
	writeVoteArchive(t, dir, 2021, 35, fixtureRows())
	loader := NewLoader(dir, config.PollNumberExclude, logger.New("test"))

	// Ontario archive exists, Alberta's does not
	table, err := loader.Load(2021, []int{35075, 48003})

	require.Error(t, err)
	assert.ErrorIs(t, err, ErrIncomplete)
	assert.Contains(t, err.Error(), "AB")
	// the province that loaded is retained
	assert.NotEmpty(t, table.Records)
}

func TestUpdateRidingMap_FromVoteArchive(t *testing.T) {
	dir := t.TempDir()
	writeVoteArchive(t, dir, 2021, 35, fixtureRows())

	m, err := UpdateRidingMap(dir, 2021, "ON")

	require.NoError(t, err)
	num, err := m.Number("Ottawa Centre")
	require.NoError(t, err)
	assert.Equal(t, 35075, num)
}
