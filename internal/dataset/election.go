package dataset

import (
	"errors"
	"fmt"

	"github.com/votemap/votemap/internal/config"
	"github.com/votemap/votemap/internal/geometry"
	"github.com/votemap/votemap/internal/logger"
	"github.com/votemap/votemap/internal/mergesets"
	"github.com/votemap/votemap/internal/ridings"
	"github.com/votemap/votemap/internal/votes"
)

// Election is the immutable dataset for one (year, riding-set) load:
// normalized votes, merge groups, dissolved geometries and the merged
// vote/geometry tables. New riding sets are combined with Merge rather
// than by mutating an existing value, which keeps partial-failure recovery
// tractable: a failed load leaves previously built values untouched.
type Election struct {
	Year          int
	RidingNames   []string
	RidingNumbers []int

	Votes  *votes.Table
	Groups *mergesets.Groups

	EDayGeoms    *geometry.Table
	AdvanceGeoms *geometry.Table
	Ridings      *geometry.RidingTable

	EDay       *MergedTable // election-day polls, unmerged
	EDayMerged *MergedTable // election-day polls dissolved by merge set
	Advance    *MergedTable // advance polls with back-filled eday votes
}

// Builder sequences the per-year pipeline: riding map, votes, merge sets,
// geometries, merged tables.
type Builder struct {
	dataDir   string
	policy    string
	tolerance float64
	log       *logger.Logger
}

// NewBuilder creates a Builder from application configuration.
func NewBuilder(cfg *config.Config, log *logger.Logger) *Builder {
	return &Builder{
		dataDir:   cfg.DataDir,
		policy:    cfg.PollNumberPolicy,
		tolerance: cfg.SimplifyTolerance,
		log:       log,
	}
}

// Build loads and merges all data for the named ridings in one year. When
// some provinces fail to load, the returned Election retains everything
// that did load and the error wraps votes.ErrIncomplete.
func (b *Builder) Build(year int, ridingNames []string) (*Election, error) {
	rmap, err := ridings.LoadMap(b.dataDir, year)
	if err != nil {
		return nil, err
	}
	ridingNumbers, err := rmap.Numbers(ridingNames)
	if err != nil {
		return nil, err
	}

	e := &Election{
		Year:          year,
		RidingNames:   append([]string(nil), ridingNames...),
		RidingNumbers: ridingNumbers,
	}

	loader := votes.NewLoader(b.dataDir, b.policy, b.log)
	voteTable, voteErr := loader.Load(year, ridingNumbers)
	if voteErr != nil && !errors.Is(voteErr, votes.ErrIncomplete) {
		return nil, voteErr
	}
	e.Votes = voteTable
	if err := voteTable.VerifyTotals(); err != nil {
		return nil, fmt.Errorf("vote totals invariant violated: %w", err)
	}

	e.Groups = mergesets.Resolve(voteTable)

	e.EDayGeoms, err = geometry.Load(b.dataDir, year, ridingNumbers, geometry.KindElectionDay, b.tolerance)
	if err != nil {
		return nil, err
	}
	e.AdvanceGeoms, err = geometry.Load(b.dataDir, year, ridingNumbers, geometry.KindAdvance, b.tolerance)
	if err != nil {
		return nil, err
	}
	e.Ridings, err = geometry.DissolveRidings(e.AdvanceGeoms, b.tolerance)
	if err != nil {
		return nil, err
	}
	b.fillDistrictNames(e, rmap)

	e.EDay, err = MergeVotes(voteTable, e.EDayGeoms)
	if err != nil {
		return nil, err
	}
	e.EDayMerged, err = DissolveMergeSets(e.EDay, e.Groups, b.tolerance)
	if err != nil {
		return nil, err
	}

	advance, err := MergeVotes(voteTable, e.AdvanceGeoms)
	if err != nil {
		return nil, err
	}
	e.Advance, err = AddElectionDayVotes(e.EDay, advance)
	if err != nil {
		return nil, err
	}

	b.log.Info("election dataset built", map[string]interface{}{
		"year":        year,
		"ridings":     len(ridingNames),
		"eday_rows":   len(e.EDay.Rows),
		"merged_rows": len(e.EDayMerged.Rows),
		"adv_rows":    len(e.Advance.Rows),
	})

	// surface incompleteness after building what could be built
	if voteErr != nil {
		return e, voteErr
	}
	return e, nil
}

// fillDistrictNames annotates geometry rows with riding names from the
// year's riding map; the partitioned archives carry only numbers.
func (b *Builder) fillDistrictNames(e *Election, rmap *ridings.Map) {
	name := func(fed int) string {
		n, err := rmap.Name(fed)
		if err != nil {
			return ""
		}
		return n
	}
	for i := range e.EDayGeoms.Rows {
		if e.EDayGeoms.Rows[i].DistrictName == "" {
			e.EDayGeoms.Rows[i].DistrictName = name(e.EDayGeoms.Rows[i].FEDNum)
		}
	}
	for i := range e.AdvanceGeoms.Rows {
		if e.AdvanceGeoms.Rows[i].DistrictName == "" {
			e.AdvanceGeoms.Rows[i].DistrictName = name(e.AdvanceGeoms.Rows[i].FEDNum)
		}
	}
	for i := range e.Ridings.Rows {
		if e.Ridings.Rows[i].DistrictName == "" {
			e.Ridings.Rows[i].DistrictName = name(e.Ridings.Rows[i].FEDNum)
		}
	}
}

// Merge combines two datasets for the same year into a new value: riding
// sets are unioned and table rows concatenated. Neither input is modified.
func (e *Election) Merge(other *Election) (*Election, error) {
	if other == nil {
		return e, nil
	}
	if e.Year != other.Year {
		return nil, fmt.Errorf("cannot merge datasets for years %d and %d", e.Year, other.Year)
	}

	out := &Election{Year: e.Year}

	seen := make(map[string]struct{})
	for _, set := range [][]string{e.RidingNames, other.RidingNames} {
		for _, name := range set {
			if _, ok := seen[name]; ok {
				continue
			}
			seen[name] = struct{}{}
			out.RidingNames = append(out.RidingNames, name)
		}
	}
	seenNum := make(map[int]struct{})
	for _, set := range [][]int{e.RidingNumbers, other.RidingNumbers} {
		for _, num := range set {
			if _, ok := seenNum[num]; ok {
				continue
			}
			seenNum[num] = struct{}{}
			out.RidingNumbers = append(out.RidingNumbers, num)
		}
	}

	out.Votes = &votes.Table{
		Year:    e.Year,
		Records: concat(e.Votes.Records, other.Votes.Records),
		Special: concat(e.Votes.Special, other.Votes.Special),
	}
	out.Groups = mergesets.Resolve(out.Votes)

	out.EDayGeoms = &geometry.Table{Year: e.Year, Kind: geometry.KindElectionDay,
		Rows: concat(e.EDayGeoms.Rows, other.EDayGeoms.Rows)}
	out.AdvanceGeoms = &geometry.Table{Year: e.Year, Kind: geometry.KindAdvance,
		Rows: concat(e.AdvanceGeoms.Rows, other.AdvanceGeoms.Rows)}
	out.Ridings = &geometry.RidingTable{Year: e.Year,
		Rows: concat(e.Ridings.Rows, other.Ridings.Rows)}

	out.EDay = &MergedTable{Year: e.Year, Kind: geometry.KindElectionDay,
		Rows: concat(e.EDay.Rows, other.EDay.Rows)}
	out.EDayMerged = &MergedTable{Year: e.Year, Kind: geometry.KindElectionDay,
		Rows: concat(e.EDayMerged.Rows, other.EDayMerged.Rows)}
	out.Advance = &MergedTable{Year: e.Year, Kind: geometry.KindAdvance,
		Rows: concat(e.Advance.Rows, other.Advance.Rows)}

	return out, nil
}

func concat[T any](a, b []T) []T {
	out := make([]T, 0, len(a)+len(b))
	out = append(out, a...)
	out = append(out, b...)
	return out
}
