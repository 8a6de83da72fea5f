package ridings

import (
	"os"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMap_AddAndLookup(t *testing.T) {
	m := New(2021)

	m.Add("Ottawa Centre", 35075)
	m.Add("Toronto Centre", 35108)

	num, err := m.Number("Ottawa Centre")
	require.NoError(t, err)
	assert.Equal(t, 35075, num)

	name, err := m.Name(35108)
	require.NoError(t, err)
	assert.Equal(t, "Toronto Centre", name)
}

func TestMap_AddOverwritesExistingName(t *testing.T) {
	m := New(2021)
	m.Add("Ottawa Centre", 35075)

	// rebuilding from source files must be idempotent even when a riding
	// number changes between files
	m.Add("Ottawa Centre", 35076)

	num, err := m.Number("Ottawa Centre")
	require.NoError(t, err)
	assert.Equal(t, 35076, num)
	assert.Equal(t, 1, m.Len())

	_, err = m.Name(35075)
	assert.ErrorIs(t, err, ErrUnknownRiding)
}

func TestMap_NumberUnknownRiding(t *testing.T) {
	m := New(2021)

	_, err := m.Number("Narnia Centre")

	assert.ErrorIs(t, err, ErrUnknownRiding)
}

func TestMap_NumbersFailsOnFirstUnknown(t *testing.T) {
	m := New(2021)
	m.Add("Ottawa Centre", 35075)

	_, err := m.Numbers([]string{"Ottawa Centre", "Narnia Centre"})

	assert.ErrorIs(t, err, ErrUnknownRiding)
}

func TestMap_NamesSorted(t *testing.T) {
	m := New(2021)
	m.Add("Vancouver Centre", 59036)
	m.Add("Calgary Centre", 48003)
	m.Add("Ottawa Centre", 35075)

	names := m.Names()

	assert.Equal(t, []string{"Calgary Centre", "Ottawa Centre", "Vancouver Centre"}, names)
}

func TestMap_ValidateKeepsKnownSubset(t *testing.T) {
	m := New(2021)
	m.Add("Ottawa Centre", 35075)
	m.Add("Ottawa South", 35077)

	valid := m.Validate([]string{"Ottawa South", "Narnia Centre", "Ottawa Centre"})

	assert.Equal(t, []string{"Ottawa South", "Ottawa Centre"}, valid)
}

func TestMap_QueryMatchesPrefix(t *testing.T) {
	m := New(2021)
	m.Add("Ottawa Centre", 35075)
	m.Add("Ottawa South", 35077)
	m.Add("South Ottawa", 35099)

	matches, err := m.Query("Ottawa")

	require.NoError(t, err)
	assert.Equal(t, []string{"Ottawa Centre", "Ottawa South"}, matches)
}

func TestMap_QueryInvalidPattern(t *testing.T) {
	m := New(2021)

	_, err := m.Query("Ottawa(")

	assert.Error(t, err)
}

func TestMap_SaveLoadRoundTrip(t *testing.T) {
	dir := t.TempDir()
	m := New(2019)
	m.Add("Ottawa Centre", 35075)
	m.Add("Calgary Centre", 48003)

	require.NoError(t, m.Save(dir))

	loaded, err := LoadMap(dir, 2019)
	require.NoError(t, err)
	assert.Equal(t, 2, loaded.Len())

	num, err := loaded.Number("Calgary Centre")
	require.NoError(t, err)
	assert.Equal(t, 48003, num)
}

func TestMap_SaveIsDeterministic(t *testing.T) {
	dir := t.TempDir()
	m := New(2019)
	m.Add("B Riding", 2)
	m.Add("A Riding", 1)

	require.NoError(t, m.Save(dir))
	first, err := os.ReadFile(MapPath(dir, 2019))
	require.NoError(t, err)

	require.NoError(t, m.Save(dir))
	second, err := os.ReadFile(MapPath(dir, 2019))
	require.NoError(t, err)

	assert.Equal(t, first, second)
}

func TestLoadMap_MissingFile(t *testing.T) {
	_, err := LoadMap(t.TempDir(), 2021)

	assert.ErrorIs(t, err, ErrMapMissing)
}

func TestProvinceCodeForRiding(t *testing.T) {
	assert.Equal(t, 35, ProvinceCodeForRiding(35075))
	assert.Equal(t, 48, ProvinceCodeForRiding(48003))
	assert.Equal(t, 10, ProvinceCodeForRiding(10001))
}

func TestProvincesForRidings_DistinctSorted(t *testing.T) {
	provinces := ProvincesForRidings([]int{59036, 35075, 35077, 48003})

	assert.Equal(t, []int{35, 48, 59}, provinces)
}

func TestMap_Provinces(t *testing.T) {
	m := New(2021)
	m.Add("Ottawa Centre", 35075)
	m.Add("Calgary Centre", 48003)

	provinces, err := m.Provinces([]string{"Ottawa Centre", "Calgary Centre"})

	require.NoError(t, err)
	assert.Equal(t, []int{35, 48}, provinces)
}
