package votes

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
)

// Advance polls occupy the 600-series of poll numbers in federal results.
const (
	advancePollMin = 600
	advancePollMax = 699
)

// Record is one normalized vote-result row: one (riding, poll, party)
// combination. Records are immutable once loaded.
type Record struct {
	DistrictNumber      int
	DistrictName        string
	Poll                string // raw poll identifier, may be alphanumeric ("17A")
	PDNum               int    // numeric part of Poll; geometry join key
	PollStationName     string
	MergedWith          string // poll this one's count was folded into; empty if none
	Party               string
	CandidateFirstName  string
	CandidateMiddleName string
	CandidateLastName   string
	Votes               int
	TotalVotes          int // sum of Votes across parties at this poll
	Electors            int
	RejectedBallots     int
	Incumbent           bool
	Elected             bool
	Void                bool
	NoPollHeld          bool
}

// IsAdvance reports whether the record belongs to an advance poll.
func (r Record) IsAdvance() bool {
	return r.PDNum >= advancePollMin && r.PDNum <= advancePollMax
}

// Table holds the normalized vote records of one load operation. Special
// voting rules rows (mail-in and similar) are segregated into Special
// rather than discarded: they carry real votes but no polling-division
// geometry.
type Table struct {
	Year    int
	Records []Record
	Special []Record
}

// ElectionDay returns the records for physical election-day polls.
func (t *Table) ElectionDay() []Record {
	out := make([]Record, 0, len(t.Records))
	for _, r := range t.Records {
		if !r.IsAdvance() {
			out = append(out, r)
		}
	}
	return out
}

// Advance returns the records for advance polls (600-series).
func (t *Table) Advance() []Record {
	var out []Record
	for _, r := range t.Records {
		if r.IsAdvance() {
			out = append(out, r)
		}
	}
	return out
}

// Districts returns the distinct district numbers present in the table.
func (t *Table) Districts() []int {
	seen := make(map[int]struct{})
	var nums []int
	for _, r := range t.Records {
		if _, ok := seen[r.DistrictNumber]; !ok {
			seen[r.DistrictNumber] = struct{}{}
			nums = append(nums, r.DistrictNumber)
		}
	}
	return nums
}

// VerifyTotals checks the post-load invariant that TotalVotes at each poll
// equals the sum of Votes across the parties sharing that poll.
func (t *Table) VerifyTotals() error {
	type pollKey struct {
		district int
		poll     string
	}
	sums := make(map[pollKey]int)
	totals := make(map[pollKey]int)
	for _, r := range t.Records {
		k := pollKey{r.DistrictNumber, r.Poll}
		sums[k] += r.Votes
		totals[k] = r.TotalVotes
	}
	for k, total := range totals {
		if sums[k] != total {
			return fmt.Errorf("district %d poll %s: TotalVotes %d != party sum %d",
				k.district, k.poll, total, sums[k])
		}
	}
	return nil
}

var intPartPattern = regexp.MustCompile(`^[A-Za-z]*([0-9]+)`)

// IntPart extracts the numeric part of a poll identifier such as "17A" or
// "S/R 1". It returns false when the identifier has no leading
// letters-then-digits numeric part.
func IntPart(s string) (int, bool) {
	m := intPartPattern.FindStringSubmatch(strings.TrimSpace(s))
	if m == nil {
		return 0, false
	}
	n, err := strconv.Atoi(m[1])
	if err != nil {
		return 0, false
	}
	return n, true
}
