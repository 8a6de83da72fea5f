// Package dataset joins normalized vote records onto dissolved poll
// geometries and derives per-row vote metrics. Tables carry an explicit
// poll kind tag; the election-day and advance variants are never inferred
// from table shape.
package dataset

import (
	"fmt"

	sf "github.com/peterstace/simplefeatures/geom"

	"github.com/votemap/votemap/internal/geometry"
	"github.com/votemap/votemap/internal/votes"
)

// MergedRow is the join product of one vote record and one poll geometry,
// indexed by (district, party, poll number).
type MergedRow struct {
	DistrictNumber int
	DistrictName   string
	Party          string
	Poll           string
	PDNum          int
	AdvPollNum     int
	PollName       string
	MergeKey       string

	Votes           int
	TotalVotes      int
	Electors        int
	RejectedBallots int

	CandidateFirstName string
	CandidateLastName  string
	Elected            bool

	VoteFraction          float64
	PotentialVoteFraction float64

	// Advance-poll rows only: election-day votes cast inside this advance
	// poll's boundary, and the combined fraction.
	ElectionDayVotes      int
	TotalElectionDayVotes int
	AllVoteFraction       float64

	Geom sf.Geometry
}

// MergedTable is a set of merged vote/geometry rows of one Kind.
type MergedTable struct {
	Year int
	Kind geometry.Kind
	Rows []MergedRow
}

// MergeVotes left-joins vote records onto poll geometries: every geometry
// row appears in the result even when it has no votes, so zero-vote polls
// keep their boundaries (with VoteFraction 0.0 rather than NaN).
// Election-day tables join on (FED_NUM, PD_NUM); advance tables join on
// (FED_NUM, ADV_POLL_N), whose vote-side counterpart is the 600-series
// poll number.
func MergeVotes(vt *votes.Table, gt *geometry.Table) (*MergedTable, error) {
	if vt.Year != gt.Year {
		return nil, fmt.Errorf("vote table year %d != geometry table year %d", vt.Year, gt.Year)
	}

	var voteRows []votes.Record
	if gt.Kind == geometry.KindAdvance {
		voteRows = vt.Advance()
	} else {
		voteRows = vt.ElectionDay()
	}

	type key struct{ fed, poll int }
	byKey := make(map[key][]votes.Record)
	for _, r := range voteRows {
		k := key{r.DistrictNumber, r.PDNum}
		byKey[k] = append(byKey[k], r)
	}

	out := &MergedTable{Year: vt.Year, Kind: gt.Kind}
	for _, geo := range gt.Rows {
		pollNum := geo.PDNum
		if gt.Kind == geometry.KindAdvance {
			pollNum = geo.AdvPollNum
		}
		matched := byKey[key{geo.FEDNum, pollNum}]
		if len(matched) == 0 {
			// left join: geometry row survives with zero votes
			out.Rows = append(out.Rows, MergedRow{
				DistrictNumber: geo.FEDNum,
				DistrictName:   geo.DistrictName,
				PDNum:          pollNum,
				AdvPollNum:     geo.AdvPollNum,
				PollName:       geo.PollName,
				Geom:           geo.Geom,
			})
			continue
		}
		for _, v := range matched {
			out.Rows = append(out.Rows, MergedRow{
				DistrictNumber:     v.DistrictNumber,
				DistrictName:       v.DistrictName,
				Party:              v.Party,
				Poll:               v.Poll,
				PDNum:              pollNum,
				AdvPollNum:         geo.AdvPollNum,
				PollName:           geo.PollName,
				Votes:              v.Votes,
				TotalVotes:         v.TotalVotes,
				Electors:           v.Electors,
				RejectedBallots:    v.RejectedBallots,
				CandidateFirstName: v.CandidateFirstName,
				CandidateLastName:  v.CandidateLastName,
				Elected:            v.Elected,
				Geom:               geo.Geom,
			})
		}
	}

	ComputeVoteFractions(out)
	return out, nil
}

// ComputeVoteFractions fills VoteFraction (party share of the poll's
// votes) and PotentialVoteFraction (party share of eligible electors) on
// every row. Zero-denominator polls get 0.0 rather than an undefined
// value.
func ComputeVoteFractions(t *MergedTable) {
	for i := range t.Rows {
		r := &t.Rows[i]
		r.VoteFraction = safeFraction(r.Votes, r.TotalVotes)
		r.PotentialVoteFraction = safeFraction(r.Votes, r.Electors)
	}
}

func safeFraction(num, den int) float64 {
	if den == 0 {
		return 0.0
	}
	return float64(num) / float64(den)
}
