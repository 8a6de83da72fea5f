package votes

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestIntPart(t *testing.T) {
	tests := []struct {
		in     string
		want   int
		wantOK bool
	}{
		{"17", 17, true},
		{"17A", 17, true},
		{"5B", 5, true},
		{"S/R 1", 0, false}, // slash before the digits breaks the prefix
		{"ABC", 0, false},
		{"", 0, false},
		{"  42  ", 42, true},
		{"A12", 12, true},
		{"601", 601, true},
	}

	for _, tt := range tests {
		got, ok := IntPart(tt.in)
		assert.Equal(t, tt.wantOK, ok, "IntPart(%q) ok", tt.in)
		assert.Equal(t, tt.want, got, "IntPart(%q) value", tt.in)
	}
}

func TestRecord_IsAdvance(t *testing.T) {
	assert.False(t, Record{PDNum: 1}.IsAdvance())
	assert.False(t, Record{PDNum: 599}.IsAdvance())
	assert.True(t, Record{PDNum: 600}.IsAdvance())
	assert.True(t, Record{PDNum: 601}.IsAdvance())
	assert.True(t, Record{PDNum: 699}.IsAdvance())
	assert.False(t, Record{PDNum: 700}.IsAdvance())
}

func TestTable_ElectionDayAndAdvanceSplit(t *testing.T) {
	table := &Table{
		Year: 2021,
		Records: []Record{
			{DistrictNumber: 35075, PDNum: 1},
			{DistrictNumber: 35075, PDNum: 601},
			{DistrictNumber: 35075, PDNum: 12},
		},
	}

	assert.Len(t, table.ElectionDay(), 2)
	assert.Len(t, table.Advance(), 1)
	assert.Equal(t, 601, table.Advance()[0].PDNum)
}

func TestTable_Districts(t *testing.T) {
	table := &Table{
		Records: []Record{
			{DistrictNumber: 35075},
			{DistrictNumber: 35075},
			{DistrictNumber: 48003},
		},
	}

	assert.Equal(t, []int{35075, 48003}, table.Districts())
}

func TestTable_VerifyTotals(t *testing.T) {
	good := &Table{
		Records: []Record{
			{DistrictNumber: 35075, Poll: "1", Party: "A", Votes: 100, TotalVotes: 150},
			{DistrictNumber: 35075, Poll: "1", Party: "B", Votes: 50, TotalVotes: 150},
		},
	}
	assert.NoError(t, good.VerifyTotals())

	bad := &Table{
		Records: []Record{
			{DistrictNumber: 35075, Poll: "1", Party: "A", Votes: 100, TotalVotes: 140},
			{DistrictNumber: 35075, Poll: "1", Party: "B", Votes: 50, TotalVotes: 140},
		},
	}
	assert.Error(t, bad.VerifyTotals())
}
