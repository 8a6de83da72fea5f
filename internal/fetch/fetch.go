// Package fetch downloads vote-result and boundary archives from their
// public sources into the data directory.
package fetch

import (
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/votemap/votemap/internal/logger"
	"github.com/votemap/votemap/internal/ridings"
	"github.com/votemap/votemap/internal/votes"
)

// Client downloads source archives. Downloads are skipped when the target
// file already exists, unless overwrite is requested.
type Client struct {
	dataDir string
	http    *http.Client
	log     *logger.Logger
}

// NewClient creates a fetch client writing into dataDir.
func NewClient(dataDir string, log *logger.Logger) *Client {
	return &Client{
		dataDir: dataDir,
		http:    &http.Client{Timeout: 10 * time.Minute},
		log:     log,
	}
}

// DownloadFile streams one URL into dataDir under localName and returns
// the local path. An existing file short-circuits the download unless
// overwrite is set.
func (c *Client) DownloadFile(url, localName string, overwrite bool) (string, error) {
	localPath := filepath.Join(c.dataDir, localName)
	if !overwrite {
		if _, err := os.Stat(localPath); err == nil {
			c.log.Debug("file already present, skipping download", map[string]interface{}{
				"file": localName,
			})
			return localPath, nil
		}
	}

	resp, err := c.http.Get(url)
	if err != nil {
		return "", fmt.Errorf("downloading %s: %w", url, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("downloading %s: unexpected status %s", url, resp.Status)
	}

	tmp, err := os.CreateTemp(c.dataDir, ".download-*")
	if err != nil {
		return "", fmt.Errorf("creating temp file: %w", err)
	}
	defer os.Remove(tmp.Name())

	if _, err := io.Copy(tmp, resp.Body); err != nil {
		tmp.Close()
		return "", fmt.Errorf("writing %s: %w", localPath, err)
	}
	if err := tmp.Close(); err != nil {
		return "", err
	}
	if err := os.Rename(tmp.Name(), localPath); err != nil {
		return "", fmt.Errorf("moving download into place: %w", err)
	}

	c.log.Info("downloaded", map[string]interface{}{
		"url":  url,
		"file": localName,
	})
	return localPath, nil
}

// VoteData downloads one province's vote results for a year and folds the
// province's riding names into the year's riding map.
func (c *Client) VoteData(year int, province string, overwrite bool) (string, error) {
	spec, err := votes.SpecForYear(year)
	if err != nil {
		return "", err
	}
	provCode, ok := ridings.ProvinceCodes[province]
	if !ok {
		return "", fmt.Errorf("unknown province abbreviation %q", province)
	}

	path, err := c.DownloadFile(spec.VoteArchiveURL(provCode),
		spec.VoteArchiveName(provCode), overwrite)
	if err != nil {
		return "", err
	}

	if _, err := votes.UpdateRidingMap(c.dataDir, year, province); err != nil {
		return "", fmt.Errorf("updating riding map after download: %w", err)
	}
	return path, nil
}

// AllVoteData downloads vote results for every province and territory.
// Provinces that fail are reported together after the rest complete.
func (c *Client) AllVoteData(year int, overwrite bool) error {
	var failures []string
	for _, province := range provinceList() {
		if _, err := c.VoteData(year, province, overwrite); err != nil {
			c.log.Error("province download failed", err, map[string]interface{}{
				"province": province,
				"year":     year,
			})
			failures = append(failures, fmt.Sprintf("%s: %v", province, err))
		}
	}
	if len(failures) > 0 {
		return fmt.Errorf("vote downloads incomplete: %s", strings.Join(failures, "; "))
	}
	return nil
}

// Geometries downloads the nationwide boundary shapefile archive (and its
// data dictionary) for a year.
func (c *Client) Geometries(year int, advance, overwrite bool) (string, error) {
	spec, err := votes.SpecForYear(year)
	if err != nil {
		return "", err
	}

	// data dictionary failure is not fatal; the boundary archive is
	if _, err := c.DownloadFile(spec.GeometryBaseURL+spec.DataDictionary,
		spec.DataDictionary, overwrite); err != nil {
		c.log.Warn("data dictionary download failed", map[string]interface{}{
			"year":  year,
			"error": err.Error(),
		})
	}

	archive := spec.EDayArchive
	if advance {
		archive = spec.AdvArchive
	}
	return c.DownloadFile(spec.GeometryBaseURL+archive, archive, overwrite)
}

func provinceList() []string {
	provinces := make([]string, 0, len(ridings.ProvinceCodes))
	for province := range ridings.ProvinceCodes {
		provinces = append(provinces, province)
	}
	sort.Strings(provinces)
	return provinces
}
