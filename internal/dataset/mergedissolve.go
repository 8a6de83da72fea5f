package dataset

import (
	"fmt"
	"sort"

	sf "github.com/peterstace/simplefeatures/geom"

	"github.com/votemap/votemap/internal/geometry"
	"github.com/votemap/votemap/internal/mergesets"
)

// DissolveMergeSets regroups an election-day merged table by merge-set
// key, so merged-poll geometries and merged-poll vote totals stay
// consistent. Within a group, votes and elector counts are summed (exactly
// one constituent poll carries the real non-zero count, the rest are
// administratively empty), TotalVotes is taken as the max across
// constituent rows, and the remaining attributes come from the
// first row after sorting by poll number. Geometries are dissolved with
// the robust cascade, once per merge-set key.
func DissolveMergeSets(t *MergedTable, groups *mergesets.Groups, tolerance float64) (*MergedTable, error) {
	if t.Kind != geometry.KindElectionDay {
		return nil, fmt.Errorf("merge-set dissolve applies to election-day tables, got %s", t.Kind)
	}

	type groupKey struct {
		mergeKey string
		party    string
	}

	rowGroups := make(map[groupKey][]MergedRow)
	var order []groupKey
	// distinct poll geometries per merge-set key (party rows of one poll
	// share the same geometry)
	geomsByKey := make(map[string]map[int]sf.Geometry)
	for _, r := range t.Rows {
		mk := groups.Key(r.DistrictNumber, r.PDNum)
		gk := groupKey{mk, r.Party}
		if _, ok := rowGroups[gk]; !ok {
			order = append(order, gk)
		}
		rowGroups[gk] = append(rowGroups[gk], r)
		if _, ok := geomsByKey[mk]; !ok {
			geomsByKey[mk] = make(map[int]sf.Geometry)
		}
		geomsByKey[mk][r.PDNum] = r.Geom
	}

	dissolved := make(map[string]sf.Geometry, len(geomsByKey))
	for mk, byPoll := range geomsByKey {
		polls := make([]int, 0, len(byPoll))
		for pd := range byPoll {
			polls = append(polls, pd)
		}
		sort.Ints(polls)
		geoms := make([]sf.Geometry, 0, len(polls))
		for _, pd := range polls {
			geoms = append(geoms, byPoll[pd])
		}
		g, err := geometry.RobustDissolve(geoms, tolerance)
		if err != nil {
			return nil, fmt.Errorf("dissolving merge set %s: %w", mk, err)
		}
		dissolved[mk] = g
	}

	out := &MergedTable{Year: t.Year, Kind: t.Kind}
	for _, gk := range order {
		rows := rowGroups[gk]
		sort.Slice(rows, func(i, j int) bool { return rows[i].PDNum < rows[j].PDNum })

		agg := rows[0]
		agg.MergeKey = gk.mergeKey
		agg.Geom = dissolved[gk.mergeKey]
		for _, r := range rows[1:] {
			agg.Votes += r.Votes
			agg.Electors += r.Electors
			agg.RejectedBallots += r.RejectedBallots
			if r.TotalVotes > agg.TotalVotes {
				agg.TotalVotes = r.TotalVotes
			}
			if r.Elected {
				agg.Elected = true
			}
		}
		out.Rows = append(out.Rows, agg)
	}

	ComputeVoteFractions(out)
	return out, nil
}
