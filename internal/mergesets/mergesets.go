// Package mergesets computes the groups of polling divisions whose vote
// counts were reported jointly for ballot-secrecy reasons. The vote data
// marks a merged poll with a "MergedWith" pointer to the poll its count was
// folded into; this package normalizes those pointers and closes them
// transitively into disjoint per-riding merge sets. The resulting group
// keys drive both the vote aggregation and the geometry dissolve, so the
// two always use an identical grouping.
package mergesets

import (
	"fmt"
	"sort"

	"github.com/votemap/votemap/internal/votes"
)

// Groups is the resolved merge grouping: for every riding, a disjoint set
// partition of poll numbers, identified by group keys unique within the
// riding. Polls without a merge relation are implicitly their own
// singleton group.
type Groups struct {
	keys map[int]map[int]string // riding -> poll -> group key
	sets map[int][][]int        // riding -> merge sets with >= 2 members
}

// Resolve computes merge groups from the election-day records of a vote
// table. The result is deterministic: it does not depend on record order
// beyond the data itself.
func Resolve(table *votes.Table) *Groups {
	g := &Groups{
		keys: make(map[int]map[int]string),
		sets: make(map[int][][]int),
	}

	type pollRef struct {
		riding int
		poll   string
	}

	// Collect MergedWith values per (riding, poll). The same physical poll
	// sometimes carries inconsistent MergedWith values across its party
	// rows (upstream reporting errors); the mode wins.
	counts := make(map[pollRef]map[string]int)
	pdNums := make(map[pollRef]int)
	var order []pollRef
	for _, r := range table.ElectionDay() {
		ref := pollRef{r.DistrictNumber, r.Poll}
		if _, ok := counts[ref]; !ok {
			counts[ref] = make(map[string]int)
			order = append(order, ref)
		}
		counts[ref][r.MergedWith]++
		pdNums[ref] = r.PDNum
	}

	// Pair extraction: (target poll, source poll) wherever the modal
	// MergedWith is non-empty.
	type pair struct{ target, source int }
	pairsByRiding := make(map[int][]pair)
	for _, ref := range order {
		merged := modalValue(counts[ref])
		if merged == "" {
			continue
		}
		target, ok := votes.IntPart(merged)
		if !ok {
			continue
		}
		pairsByRiding[ref.riding] = append(pairsByRiding[ref.riding],
			pair{target: target, source: pdNums[ref]})
	}

	ridingNums := make([]int, 0, len(pairsByRiding))
	for riding := range pairsByRiding {
		ridingNums = append(ridingNums, riding)
	}
	sort.Ints(ridingNums)

	for _, riding := range ridingNums {
		uf := newUnionFind()
		for _, p := range pairsByRiding[riding] {
			uf.union(p.target, p.source)
		}

		sets := uf.components()
		// order groups by their smallest member so key assignment is stable
		sort.Slice(sets, func(i, j int) bool { return sets[i][0] < sets[j][0] })

		g.keys[riding] = make(map[int]string)
		for i, set := range sets {
			key := fmt.Sprintf("%d_merge_%d", riding, i)
			for _, poll := range set {
				g.keys[riding][poll] = key
			}
		}
		g.sets[riding] = sets
	}

	return g
}

// Key returns the group key for a poll within a riding. Unmerged polls get
// the default "{riding}_{poll}" singleton key.
func (g *Groups) Key(riding, poll int) string {
	if polls, ok := g.keys[riding]; ok {
		if key, ok := polls[poll]; ok {
			return key
		}
	}
	return fmt.Sprintf("%d_%d", riding, poll)
}

// Sets returns the merge sets (each with at least two members, sorted
// ascending) for a riding.
func (g *Groups) Sets(riding int) [][]int {
	return g.sets[riding]
}

// Ridings returns the ridings that have at least one non-singleton merge
// set, ascending.
func (g *Groups) Ridings() []int {
	out := make([]int, 0, len(g.sets))
	for riding := range g.sets {
		out = append(out, riding)
	}
	sort.Ints(out)
	return out
}

// modalValue returns the most frequent value in counts. Ties prefer a
// non-empty value, then the lexicographically smallest, so resolution is
// deterministic.
func modalValue(counts map[string]int) string {
	best := ""
	bestCount := -1
	keys := make([]string, 0, len(counts))
	for v := range counts {
		keys = append(keys, v)
	}
	sort.Strings(keys)
	for _, v := range keys {
		c := counts[v]
		if c > bestCount || (c == bestCount && best == "" && v != "") {
			best, bestCount = v, c
		}
	}
	return best
}

// unionFind is a small disjoint-set structure over poll numbers.
type unionFind struct {
	parent map[int]int
}

func newUnionFind() *unionFind {
	return &unionFind{parent: make(map[int]int)}
}

func (u *unionFind) find(x int) int {
	p, ok := u.parent[x]
	if !ok {
		u.parent[x] = x
		return x
	}
	if p == x {
		return x
	}
	root := u.find(p)
	u.parent[x] = root
	return root
}

func (u *unionFind) union(a, b int) {
	ra, rb := u.find(a), u.find(b)
	if ra == rb {
		return
	}
	// smaller root wins, keeping the forest independent of union order
	if rb < ra {
		ra, rb = rb, ra
	}
	u.parent[rb] = ra
}

// components returns the disjoint sets with at least two members, each
// sorted ascending.
func (u *unionFind) components() [][]int {
	members := make(map[int][]int)
	elems := make([]int, 0, len(u.parent))
	for x := range u.parent {
		elems = append(elems, x)
	}
	sort.Ints(elems)
	for _, x := range elems {
		root := u.find(x)
		members[root] = append(members[root], x)
	}
	var sets [][]int
	for _, set := range members {
		if len(set) >= 2 {
			sets = append(sets, set)
		}
	}
	return sets
}
