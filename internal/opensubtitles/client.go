package opensubtitles

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"time"

	"github.com/sonsuzanime/stremio-deepl-translate/internal/languages"
	"github.com/sonsuzanime/stremio-deepl-translate/internal/persistence"
	"github.com/sonsuzanime/stremio-deepl-translate/internal/subtitle"
	"github.com/sonsuzanime/stremio-deepl-translate/pkg/log"
)

// Client fetches candidate subtitles from the OpenSubtitles v3 Stremio
// addon and downloads them into the local subtitle directory.
type Client struct {
	baseURL     string
	subtitleDir string
	httpClient  *http.Client
}

func NewClient(baseURL, subtitleDir string) *Client {
	return &Client{
		baseURL:     baseURL,
		subtitleDir: subtitleDir,
		httpClient: &http.Client{
			Timeout: 30 * time.Second,
		},
	}
}

type candidate struct {
	Lang string `json:"lang"`
	URL  string `json:"url"`
}

type subtitlesResponse struct {
	Subtitles []candidate `json:"subtitles"`
}

// FetchCandidateURLs returns source subtitle URLs worth translating for a
// key, or nil when there is nothing to do: no candidates at all, or the
// target language already exists upstream. English sources are preferred;
// failing that the first candidate is used. At most one URL is returned
// to bound provider spend.
func (c *Client) FetchCandidateURLs(ctx context.Context, key persistence.BatchKey) ([]string, error) {
	target := languages.ISO6392(key.Language)

	var url string
	if key.IsEpisode() {
		url = fmt.Sprintf("%s/subtitles/series/%s:%d:%d.json", c.baseURL, key.IMDBID, key.Season, key.Episode)
	} else {
		url = fmt.Sprintf("%s/subtitles/movie/%s.json", c.baseURL, key.IMDBID)
	}
	log.Debug("Fetching subtitles from URL: %s", url)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, err
	}
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("fetch subtitles: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("fetch subtitles: unexpected status %d", resp.StatusCode)
	}

	var parsed subtitlesResponse
	if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
		return nil, fmt.Errorf("parse subtitles response: %w", err)
	}
	if len(parsed.Subtitles) == 0 {
		log.Warn("No subtitles found for %s", key.IMDBID)
		return nil, nil
	}

	for _, sub := range parsed.Subtitles {
		if sub.Lang == target {
			log.Info("Subtitles already exist for %s in language %s", key.IMDBID, target)
			return nil, nil
		}
	}

	urls := make([]string, 0)
	for _, sub := range parsed.Subtitles {
		if sub.Lang == "eng" {
			urls = append(urls, sub.URL)
		}
	}
	if len(urls) == 0 {
		log.Info("No English subtitles found, using first available subtitle")
		urls = []string{parsed.Subtitles[0].URL}
	}
	log.Info("Found %d subtitle(s) for %s", len(urls), key.IMDBID)

	return urls[:1], nil
}

// Download fetches each URL into the partitioned subtitle directory and
// returns the local paths. A failed download drops that file with a
// warning; it never fails the batch.
func (c *Client) Download(ctx context.Context, urls []string, key persistence.BatchKey) []string {
	dir := c.batchDir(key)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		log.Error("Failed to create subtitle directory %s: %v", dir, err)
		return nil
	}

	paths := make([]string, 0, len(urls))
	for i, url := range urls {
		path := c.sourcePath(dir, key, i+1)
		if err := c.downloadOne(ctx, url, path); err != nil {
			log.Warn("Subtitle download error for %s: %v", url, err)
			continue
		}
		log.Info("Subtitle downloaded and saved: %s", path)
		paths = append(paths, path)
	}
	return paths
}

func (c *Client) downloadOne(ctx context.Context, url, path string) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return err
	}
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("unexpected status %d", resp.StatusCode)
	}
	content, err := io.ReadAll(resp.Body)
	if err != nil {
		return err
	}
	if err := os.WriteFile(path, content, 0o644); err != nil {
		return err
	}

	if lang := subtitle.DetectLanguage(string(content)); lang != "" {
		log.Debug("Detected source language %s for %s", lang, path)
	}
	return nil
}

func (c *Client) batchDir(key persistence.BatchKey) string {
	if key.IsEpisode() {
		return filepath.Join(c.subtitleDir, key.Language, key.IMDBID, fmt.Sprintf("season%d", key.Season))
	}
	return filepath.Join(c.subtitleDir, key.Language, key.IMDBID)
}

func (c *Client) sourcePath(dir string, key persistence.BatchKey, n int) string {
	if key.IsEpisode() {
		return filepath.Join(dir, fmt.Sprintf("%s-subtitle_%d-%d.srt", key.IMDBID, key.Episode, n))
	}
	return filepath.Join(dir, fmt.Sprintf("%s-subtitle-%d.srt", key.IMDBID, n))
}
