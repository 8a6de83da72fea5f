package fetch

import (
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/votemap/votemap/internal/logger"
	"github.com/votemap/votemap/internal/ridings"
)

func TestDownloadFile_WritesBody(t *testing.T) {
	// Arrange
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte("archive bytes"))
	}))
	defer srv.Close()
	dir := t.TempDir()
	client := NewClient(dir, logger.New("test"))

	// Act
	path, err := client.DownloadFile(srv.URL+"/results.zip", "results.zip", false)

	// Assert
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(dir, "results.zip"), path)
	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, "archive bytes", string(data))
}

func TestDownloadFile_SkipsExistingFile(t *testing.T) {
	// Arrange
	var hits int64
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt64(&hits, 1)
		_, _ = w.Write([]byte("fresh"))
	}))
	defer srv.Close()
	dir := t.TempDir()
	existing := filepath.Join(dir, "results.zip")
	require.NoError(t, os.WriteFile(existing, []byte("cached"), 0o644))
	client := NewClient(dir, logger.New("test"))

	// Act
	path, err := client.DownloadFile(srv.URL+"/results.zip", "results.zip", false)

	// Assert
	require.NoError(t, err)
	assert.Equal(t, existing, path)
	assert.EqualValues(t, 0, atomic.LoadInt64(&hits))
	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, "cached", string(data))
}

func TestDownloadFile_OverwriteRedownloads(t *testing.T) {
	// Arrange
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte("fresh"))
	}))
	defer srv.Close()
	dir := t.TempDir()
	existing := filepath.Join(dir, "results.zip")
	require.NoError(t, os.WriteFile(existing, []byte("cached"), 0o644))
	client := NewClient(dir, logger.New("test"))

	// Act
	path, err := client.DownloadFile(srv.URL+"/results.zip", "results.zip", true)

	// Assert
	require.NoError(t, err)
	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, "fresh", string(data))
	assert.Equal(t, existing, path)
}

func TestDownloadFile_NonOKStatus(t *testing.T) {
	// Arrange
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.NotFound(w, r)
	}))
	defer srv.Close()
	dir := t.TempDir()
	client := NewClient(dir, logger.New("test"))

	// Act
	_, err := client.DownloadFile(srv.URL+"/missing.zip", "missing.zip", false)

	// Assert
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unexpected status")
	_, statErr := os.Stat(filepath.Join(dir, "missing.zip"))
	assert.True(t, os.IsNotExist(statErr))
}

func TestDownloadFile_LeavesNoTempFilesOnFailure(t *testing.T) {
	// Arrange
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()
	dir := t.TempDir()
	client := NewClient(dir, logger.New("test"))

	// Act
	_, err := client.DownloadFile(srv.URL+"/broken.zip", "broken.zip", false)

	// Assert
	require.Error(t, err)
	entries, readErr := os.ReadDir(dir)
	require.NoError(t, readErr)
	assert.Empty(t, entries)
}

func TestVoteData_UnknownProvince(t *testing.T) {
	client := NewClient(t.TempDir(), logger.New("test"))

	_, err := client.VoteData(2021, "ZZ", false)

	require.Error(t, err)
	assert.Contains(t, err.Error(), "ZZ")
}

func TestVoteData_UnsupportedYear(t *testing.T) {
	client := NewClient(t.TempDir(), logger.New("test"))

	_, err := client.VoteData(1993, "ON", false)

	assert.Error(t, err)
}

func TestProvinceList_SortedAndComplete(t *testing.T) {
	provinces := provinceList()

	assert.Len(t, provinces, len(ridings.ProvinceCodes))
	assert.Contains(t, provinces, "ON")
	for i := 1; i < len(provinces); i++ {
		assert.Less(t, provinces[i-1], provinces[i])
	}
}
