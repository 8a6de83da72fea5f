package dataset

import (
	"fmt"

	"github.com/votemap/votemap/internal/geometry"
)

// AddElectionDayVotes back-fills election-day totals into advance-poll
// rows. Every election-day poll geometry carries the advance poll that
// contains it (ADV_POLL_N), so the election-day table can be re-keyed by
// advance poll and group-summed by (district, party, advance poll). The
// sums are merged into the advance table as ElectionDayVotes and
// TotalElectionDayVotes, and AllVoteFraction combines both vote pools.
//
// Each election-day poll is nested in exactly one advance poll, so no poll
// is double-counted or omitted.
func AddElectionDayVotes(eday, advance *MergedTable) (*MergedTable, error) {
	if eday.Kind != geometry.KindElectionDay {
		return nil, fmt.Errorf("eday table has kind %s", eday.Kind)
	}
	if advance.Kind != geometry.KindAdvance {
		return nil, fmt.Errorf("advance table has kind %s", advance.Kind)
	}

	type key struct {
		district string
		party    string
		advPoll  int
	}

	type sums struct {
		votes      int
		totalVotes int
	}
	grouped := make(map[key]sums)
	for _, r := range eday.Rows {
		k := key{r.DistrictName, r.Party, r.AdvPollNum}
		s := grouped[k]
		s.votes += r.Votes
		s.totalVotes += r.TotalVotes
		grouped[k] = s
	}

	out := &MergedTable{Year: advance.Year, Kind: advance.Kind}
	out.Rows = make([]MergedRow, len(advance.Rows))
	copy(out.Rows, advance.Rows)

	for i := range out.Rows {
		r := &out.Rows[i]
		s := grouped[key{r.DistrictName, r.Party, r.PDNum}]
		r.ElectionDayVotes = s.votes
		r.TotalElectionDayVotes = s.totalVotes
		r.AllVoteFraction = safeFraction(
			r.Votes+r.ElectionDayVotes,
			r.TotalVotes+r.TotalElectionDayVotes,
		)
	}
	return out, nil
}
