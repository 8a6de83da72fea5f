package votes

import "fmt"

// canonicalParties folds party labels that changed official spelling
// between elections into one canonical label, so cross-year comparisons
// line up.
var canonicalParties = map[string]string{
	"NDP-New Democratic Party": "New Democratic Party",
	"No Affiliation":           "Independent",
}

// independentLabel is the canonical label shared by unaffiliated candidates
// in the raw data.
const independentLabel = "Independent"

// normalizeParties canonicalizes party labels in place and disambiguates
// independent candidates sharing a riding. The raw data gives every
// unaffiliated candidate the same party label, which would merge their
// counts in any per-party aggregation; when a riding has more than one
// such candidate, each gets a synthetic label ("Independent-01",
// "Independent-02", ...) ordered by first appearance.
func normalizeParties(records []Record) {
	for i := range records {
		if canonical, ok := canonicalParties[records[i].Party]; ok {
			records[i].Party = canonical
		}
	}

	type candidate struct {
		district int
		first    string
		last     string
	}

	// distinct independent candidates per district, in appearance order
	perDistrict := make(map[int][]candidate)
	seen := make(map[candidate]struct{})
	for _, r := range records {
		if r.Party != independentLabel {
			continue
		}
		c := candidate{r.DistrictNumber, r.CandidateFirstName, r.CandidateLastName}
		if _, ok := seen[c]; ok {
			continue
		}
		seen[c] = struct{}{}
		perDistrict[c.district] = append(perDistrict[c.district], c)
	}

	labels := make(map[candidate]string)
	for _, cands := range perDistrict {
		if len(cands) < 2 {
			continue
		}
		for i, c := range cands {
			labels[c] = fmt.Sprintf("%s-%02d", independentLabel, i+1)
		}
	}
	if len(labels) == 0 {
		return
	}

	for i := range records {
		if records[i].Party != independentLabel {
			continue
		}
		c := candidate{records[i].DistrictNumber,
			records[i].CandidateFirstName, records[i].CandidateLastName}
		if label, ok := labels[c]; ok {
			records[i].Party = label
		}
	}
}
