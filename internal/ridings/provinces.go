package ridings

import "sort"

// ProvinceCodes maps two-letter province/territory abbreviations to the
// numeric prefix Elections Canada uses in riding numbers (e.g. riding
// 35104 is in Ontario because Ontario's code is 35).
var ProvinceCodes = map[string]int{
	"AB": 48,
	"BC": 59,
	"MB": 46,
	"NB": 13,
	"NL": 10,
	"NS": 12,
	"NT": 61,
	"NU": 62,
	"ON": 35,
	"PE": 11,
	"QC": 24,
	"SK": 47,
	"YT": 60,
}

// CodeProvinces is the inverse of ProvinceCodes.
var CodeProvinces = func() map[int]string {
	inv := make(map[int]string, len(ProvinceCodes))
	for prov, code := range ProvinceCodes {
		inv[code] = prov
	}
	return inv
}()

// ProvinceCodeForRiding extracts the province code prefix from a riding
// number. Riding numbers are five digits: two for the province, three for
// the sequence within it.
func ProvinceCodeForRiding(ridingNumber int) int {
	return ridingNumber / 1000
}

// ProvincesForRidings returns the distinct province codes spanned by the
// given riding numbers, in ascending order.
func ProvincesForRidings(ridingNumbers []int) []int {
	seen := make(map[int]struct{})
	var codes []int
	for _, num := range ridingNumbers {
		code := ProvinceCodeForRiding(num)
		if _, ok := seen[code]; ok {
			continue
		}
		seen[code] = struct{}{}
		codes = append(codes, code)
	}
	sort.Ints(codes)
	return codes
}
