package nearest

import (
	"errors"
	"os"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/votemap/votemap/internal/ridings"
)

// fiveCentroids places four ridings at increasing distance from
// Centretown along the longitude axis.
func fiveCentroids() []Centroid {
	return []Centroid{
		{Number: 35075, Name: "Centretown", Lon: -75.70, Lat: 45.42},
		{Number: 35076, Name: "Near East", Lon: -75.60, Lat: 45.42},
		{Number: 35077, Name: "Mid East", Lon: -75.40, Lat: 45.42},
		{Number: 35078, Name: "Far East", Lon: -75.00, Lat: 45.42},
		{Number: 35079, Name: "Very Far East", Lon: -74.00, Lat: 45.42},
	}
}

func TestNearest_OrdersByDistanceExcludingSelf(t *testing.T) {
	names, err := Nearest("Centretown", fiveCentroids(), 3)

	require.NoError(t, err)
	assert.Equal(t, []string{"Near East", "Mid East", "Far East"}, names)
}

func TestNearest_CapsAtAvailableRidings(t *testing.T) {
	names, err := Nearest("Centretown", fiveCentroids(), 10)

	require.NoError(t, err)
	assert.Len(t, names, 4)
	assert.NotContains(t, names, "Centretown")
}

func TestNearest_UnknownRiding(t *testing.T) {
	_, err := Nearest("Narnia Centre", fiveCentroids(), 3)

	assert.ErrorIs(t, err, ridings.ErrUnknownRiding)
}

func TestCentroids_BuildsAndCaches(t *testing.T) {
	dir := t.TempDir()
	builds := 0
	build := func() ([]Centroid, error) {
		builds++
		return fiveCentroids(), nil
	}

	first, err := Centroids(dir, 2021, build)
	require.NoError(t, err)
	assert.Equal(t, 1, builds)
	assert.Len(t, first, 5)

	_, err = os.Stat(CachePath(dir, 2021))
	assert.NoError(t, err)

	// second call must hit the cache, not the builder
	second, err := Centroids(dir, 2021, build)
	require.NoError(t, err)
	assert.Equal(t, 1, builds)
	assert.Equal(t, first, second)
}

func TestCentroids_BuildFailurePropagates(t *testing.T) {
	wantErr := errors.New("no geometries")

	_, err := Centroids(t.TempDir(), 2021, func() ([]Centroid, error) {
		return nil, wantErr
	})

	assert.ErrorIs(t, err, wantErr)
}

func TestCentroids_CachesPerYear(t *testing.T) {
	dir := t.TempDir()

	_, err := Centroids(dir, 2019, func() ([]Centroid, error) {
		return fiveCentroids()[:2], nil
	})
	require.NoError(t, err)

	later, err := Centroids(dir, 2021, func() ([]Centroid, error) {
		return fiveCentroids(), nil
	})
	require.NoError(t, err)
	assert.Len(t, later, 5)
}
