package pipeline

import (
	"context"
	"os"
	"path/filepath"
	"time"

	"github.com/sonsuzanime/stremio-deepl-translate/internal/deepl"
	"github.com/sonsuzanime/stremio-deepl-translate/internal/persistence"
	"github.com/sonsuzanime/stremio-deepl-translate/internal/subtitle"
	"github.com/sonsuzanime/stremio-deepl-translate/pkg/log"
)

// Store is the persistence surface the pipeline needs: the subtitle
// catalog plus the advisory translation queue.
type Store interface {
	SeriesExists(ctx context.Context, imdbID string) (bool, error)
	AddSeries(ctx context.Context, imdbID string, titleType persistence.TitleType) error
	SubtitleExists(ctx context.Context, key persistence.BatchKey, path string) (bool, error)
	AddSubtitle(ctx context.Context, key persistence.BatchKey, titleType persistence.TitleType, path string) error
	ListSubtitlePaths(ctx context.Context, key persistence.BatchKey) ([]string, error)
	EnqueueTranslation(ctx context.Context, key persistence.BatchKey, fileCount int) error
	DequeueTranslation(ctx context.Context, key persistence.BatchKey) error
	PeekTranslation(ctx context.Context, key persistence.BatchKey) (int, bool, error)
}

// Source downloads candidate subtitles into local storage.
type Source interface {
	FetchCandidateURLs(ctx context.Context, key persistence.BatchKey) ([]string, error)
	Download(ctx context.Context, urls []string, key persistence.BatchKey) []string
}

// Coordinator sequences one translation batch: download sources, estimate
// the character cost, check it against the remaining quota, mark the batch
// in flight and drive each file through the provider, persisting what
// succeeds. Files are translated strictly one at a time.
type Coordinator struct {
	store        Store
	source       Source
	subtitleDir  string
	deeplBaseURL string
	pollInterval time.Duration
}

func NewCoordinator(store Store, source Source, subtitleDir, deeplBaseURL string, pollInterval time.Duration) *Coordinator {
	return &Coordinator{
		store:        store,
		source:       source,
		subtitleDir:  subtitleDir,
		deeplBaseURL: deeplBaseURL,
		pollInterval: pollInterval,
	}
}

// HasBudget reports whether the remaining quota covers the batch cost.
// The comparison is strict: a batch that would consume the quota exactly
// is rejected, matching the provider-side accounting.
func HasBudget(costChars int, remainingChars int64) bool {
	return remainingChars > int64(costChars)
}

// Batch is a prepared, quota-approved set of downloaded files ready for
// translation.
type Batch struct {
	Key    persistence.BatchKey
	Files  []string
	client *deepl.Client
}

// Prepare downloads the source files, estimates their character cost and
// checks it against the credential's remaining quota. It returns the
// prepared batch and whether it was accepted; a rejected batch has no
// side effects beyond the downloaded sources.
func (c *Coordinator) Prepare(ctx context.Context, key persistence.BatchKey, apiKey string, sourceURLs []string) (*Batch, bool) {
	client := deepl.NewClient(c.deeplBaseURL, apiKey)

	files := c.source.Download(ctx, sourceURLs, key)
	log.Debug("Processing subtitle files: %v", files)

	cost := subtitle.EstimateFiles(files)
	log.Info("Total character count for translation: %d", cost)

	remaining, err := client.Remaining(ctx)
	if err != nil {
		log.Error("Failed to check remaining quota for batch %s: %v", key, err)
		return nil, false
	}

	if !HasBudget(cost, remaining) {
		log.Warn("Insufficient API characters remaining. Required: %d, Available: %d", cost, remaining)
		return nil, false
	}
	log.Info("Sufficient API characters remaining. Proceeding with translation.")

	return &Batch{Key: key, Files: files, client: client}, true
}

// RunBatch executes one batch to completion. It returns false when the
// batch was rejected for insufficient quota (or the quota could not be
// determined) and no per-file work was started; true means the batch was
// accepted and every file was attempted. Per-file failures are visible
// through logs and the absence of persisted records, not the return
// value: callers re-query the catalog to see what exists.
func (c *Coordinator) RunBatch(ctx context.Context, key persistence.BatchKey, apiKey string, sourceURLs []string) bool {
	batch, ok := c.Prepare(ctx, key, apiKey, sourceURLs)
	if !ok {
		return false
	}
	c.Execute(ctx, batch)
	return true
}

// Execute drives a prepared batch through the provider.
func (c *Coordinator) Execute(ctx context.Context, batch *Batch) {
	c.translateBatch(ctx, batch.client, batch.Key, batch.Files)
}

// translateBatch owns the queue bookkeeping around the per-file loop. The
// dequeue is deferred so the in-flight marker is cleared on every exit
// path, including a panic out of the loop.
func (c *Coordinator) translateBatch(ctx context.Context, client *deepl.Client, key persistence.BatchKey, files []string) {
	if err := c.store.EnqueueTranslation(ctx, key, len(files)); err != nil {
		// Advisory bookkeeping only: translation still proceeds.
		log.Error("Add to translation queue error for %s: %v", key, err)
	} else {
		log.Info("Added to translation queue: %s, files=%d", key, len(files))
	}

	defer func() {
		if err := c.store.DequeueTranslation(context.WithoutCancel(ctx), key); err != nil {
			log.Error("Delete translation queue error for %s: %v", key, err)
		} else {
			log.Info("Deleted from translation queue: %s", key)
		}
	}()

	driver := deepl.NewDriver(client, c.pollInterval)
	for i, file := range files {
		if err := c.translateFile(ctx, driver, key, file, i+1); err != nil {
			log.Error("Subtitle translate error: %v", err)
		}
	}
}

// translateFile drives a single document through upload, polling and
// download, then persists the result. One file's failure never aborts
// its siblings.
func (c *Coordinator) translateFile(ctx context.Context, driver *deepl.Driver, key persistence.BatchKey, file string, n int) error {
	outPath := OutputPath(key, n)

	exists, err := c.store.SubtitleExists(ctx, key, outPath)
	if err != nil {
		log.Error("Check subtitle error for %s: %v", key.IMDBID, err)
	} else if exists {
		log.Info("Subtitle already translated, skipping: %s", outPath)
		return nil
	}

	task := &deepl.Task{FilePath: file, State: deepl.StateNotStarted}
	translated, err := driver.Translate(ctx, task, key.Language)
	if err != nil {
		if task.State == deepl.StateError {
			return WrapError(err, ErrProvider, "translation failed").
				WithContext("file", file).
				WithContext("document_id", task.DocumentID)
		}
		return WrapError(err, ErrUploadRejected, "document rejected before translation").
			WithContext("file", file)
	}

	absPath := filepath.Join(c.subtitleDir, filepath.FromSlash(outPath))
	if err := os.MkdirAll(filepath.Dir(absPath), 0o755); err != nil {
		return WrapError(err, ErrStorageWrite, "create output directory").WithContext("path", outPath)
	}
	if err := os.WriteFile(absPath, translated, 0o644); err != nil {
		return WrapError(err, ErrStorageWrite, "write translated subtitle").WithContext("path", outPath)
	}
	log.Info("Translation saved to: %s", absPath)

	return c.persistRecord(ctx, key, outPath)
}

func (c *Coordinator) persistRecord(ctx context.Context, key persistence.BatchKey, outPath string) error {
	titleType := key.Type()

	seriesExists, err := c.store.SeriesExists(ctx, key.IMDBID)
	if err != nil {
		return WrapError(err, ErrPersistence, "check series").WithContext("imdb", key.IMDBID)
	}
	if !seriesExists {
		if err := c.store.AddSeries(ctx, key.IMDBID, titleType); err != nil {
			return WrapError(err, ErrPersistence, "add series").WithContext("imdb", key.IMDBID)
		}
		log.Info("Added new series: %s type=%s", key.IMDBID, titleType)
	}

	exists, err := c.store.SubtitleExists(ctx, key, outPath)
	if err != nil {
		return WrapError(err, ErrPersistence, "check subtitle").WithContext("path", outPath)
	}
	if !exists {
		if err := c.store.AddSubtitle(ctx, key, titleType, outPath); err != nil {
			return WrapError(err, ErrPersistence, "add subtitle").WithContext("path", outPath)
		}
		log.Info("Added new subtitle: %s path=%s", key, outPath)
	}

	log.Info("Subtitle processing completed: %s", outPath)
	return nil
}
