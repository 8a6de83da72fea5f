package dataset

import (
	"fmt"
	"testing"

	sf "github.com/peterstace/simplefeatures/geom"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/votemap/votemap/internal/geometry"
	"github.com/votemap/votemap/internal/votes"
)

func square(t *testing.T, x, y float64) sf.Geometry {
	t.Helper()
	g, err := sf.UnmarshalWKT(fmt.Sprintf(
		"POLYGON((%[1]f %[2]f,%[3]f %[2]f,%[3]f %[4]f,%[1]f %[4]f,%[1]f %[2]f))",
		x, y, x+1, y+1))
	require.NoError(t, err)
	return g
}

func TestMergeVotes_JoinsOnPollNumber(t *testing.T) {
	vt := &votes.Table{
		Year: 2021,
		Records: []votes.Record{
			{DistrictNumber: 35075, DistrictName: "Ottawa Centre", Poll: "1", PDNum: 1,
				Party: "Liberal", Votes: 100, TotalVotes: 150, Electors: 400},
			{DistrictNumber: 35075, DistrictName: "Ottawa Centre", Poll: "1", PDNum: 1,
				Party: "Conservative", Votes: 50, TotalVotes: 150, Electors: 400},
		},
	}
	gt := &geometry.Table{
		Year: 2021,
		Kind: geometry.KindElectionDay,
		Rows: []geometry.Row{
			{FEDNum: 35075, PDNum: 1, AdvPollNum: 601, PollName: "Poll 1",
				DistrictName: "Ottawa Centre", Geom: square(t, 0, 0)},
		},
	}

	merged, err := MergeVotes(vt, gt)

	require.NoError(t, err)
	require.Len(t, merged.Rows, 2)
	assert.Equal(t, "Liberal", merged.Rows[0].Party)
	assert.Equal(t, 601, merged.Rows[0].AdvPollNum)
	assert.InDelta(t, 100.0/150.0, merged.Rows[0].VoteFraction, 1e-9)
	assert.InDelta(t, 100.0/400.0, merged.Rows[0].PotentialVoteFraction, 1e-9)
}

func TestMergeVotes_LeftJoinKeepsZeroVoteGeometry(t *testing.T) {
	vt := &votes.Table{Year: 2021}
	gt := &geometry.Table{
		Year: 2021,
		Kind: geometry.KindElectionDay,
		Rows: []geometry.Row{
			{FEDNum: 35075, PDNum: 9, DistrictName: "Ottawa Centre", Geom: square(t, 0, 0)},
		},
	}

	merged, err := MergeVotes(vt, gt)

	require.NoError(t, err)
	require.Len(t, merged.Rows, 1)
	row := merged.Rows[0]
	assert.Equal(t, 9, row.PDNum)
	assert.Zero(t, row.Votes)
	// zero votes yield 0.0, never NaN
	assert.Equal(t, 0.0, row.VoteFraction)
	assert.Equal(t, 0.0, row.PotentialVoteFraction)
	assert.False(t, row.Geom.IsEmpty())
}

func TestMergeVotes_AdvanceJoinsOnAdvPollNumber(t *testing.T) {
	vt := &votes.Table{
		Year: 2021,
		Records: []votes.Record{
			// the vote-side key of an advance poll is its 600-series number
			{DistrictNumber: 35075, DistrictName: "Ottawa Centre", Poll: "601", PDNum: 601,
				Party: "Liberal", Votes: 40, TotalVotes: 65},
			// election-day record must not leak into the advance join
			{DistrictNumber: 35075, DistrictName: "Ottawa Centre", Poll: "1", PDNum: 1,
				Party: "Liberal", Votes: 100, TotalVotes: 150},
		},
	}
	gt := &geometry.Table{
		Year: 2021,
		Kind: geometry.KindAdvance,
		Rows: []geometry.Row{
			{FEDNum: 35075, AdvPollNum: 601, DistrictName: "Ottawa Centre", Geom: square(t, 0, 0)},
		},
	}

	merged, err := MergeVotes(vt, gt)

	require.NoError(t, err)
	require.Len(t, merged.Rows, 1)
	assert.Equal(t, 601, merged.Rows[0].PDNum)
	assert.Equal(t, 40, merged.Rows[0].Votes)
}

func TestMergeVotes_YearMismatch(t *testing.T) {
	vt := &votes.Table{Year: 2019}
	gt := &geometry.Table{Year: 2021, Kind: geometry.KindElectionDay}

	_, err := MergeVotes(vt, gt)

	assert.Error(t, err)
}

func TestComputeVoteFractions_ZeroDenominator(t *testing.T) {
	table := &MergedTable{
		Rows: []MergedRow{
			{Votes: 10, TotalVotes: 0, Electors: 0},
			{Votes: 10, TotalVotes: 40, Electors: 100},
		},
	}

	ComputeVoteFractions(table)

	assert.Equal(t, 0.0, table.Rows[0].VoteFraction)
	assert.Equal(t, 0.0, table.Rows[0].PotentialVoteFraction)
	assert.InDelta(t, 0.25, table.Rows[1].VoteFraction, 1e-9)
	assert.InDelta(t, 0.1, table.Rows[1].PotentialVoteFraction, 1e-9)
}
