package persistence

import (
	"context"
	"database/sql"
	"embed"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"

	"github.com/sonsuzanime/stremio-deepl-translate/pkg/log"
	_ "modernc.org/sqlite"
)

//go:embed migrations/*.sql
var migrationFiles embed.FS

// SQLiteStore is the process-scoped persistence service backing the
// subtitle catalog and the translation queue. It is created once on
// startup, health-checked by a periodic probe and closed on shutdown.
type SQLiteStore struct {
	db *sql.DB
}

func NewSQLiteStore(path string) (*SQLiteStore, error) {
	if strings.TrimSpace(path) == "" {
		return nil, fmt.Errorf("db path is required")
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("create db directory: %w", err)
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	store := &SQLiteStore{db: db}
	if err := store.init(context.Background()); err != nil {
		_ = db.Close()
		return nil, err
	}
	return store, nil
}

func (s *SQLiteStore) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

// Ping verifies the database is reachable.
func (s *SQLiteStore) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// Probe is the periodic health check wired into the scheduler. Failures
// are logged, never fatal; database/sql reopens connections on demand.
func (s *SQLiteStore) Probe() {
	if err := s.Ping(context.Background()); err != nil {
		log.Error("Database health probe failed: %v", err)
		return
	}
	log.Debug("Database health probe ok")
}

func (s *SQLiteStore) init(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, "PRAGMA journal_mode = WAL;"); err != nil {
		return fmt.Errorf("set WAL mode: %w", err)
	}
	if _, err := s.db.ExecContext(ctx, "PRAGMA busy_timeout = 5000;"); err != nil {
		return fmt.Errorf("set busy timeout: %w", err)
	}
	// Bootstrap schema_migrations table so we can track applied versions.
	if _, err := s.db.ExecContext(ctx, `CREATE TABLE IF NOT EXISTS schema_migrations (
		version INTEGER PRIMARY KEY,
		applied_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
	);`); err != nil {
		return fmt.Errorf("create schema_migrations: %w", err)
	}

	entries, err := migrationFiles.ReadDir("migrations")
	if err != nil {
		return fmt.Errorf("read migrations: %w", err)
	}
	sort.Slice(entries, func(i, j int) bool {
		return entries[i].Name() < entries[j].Name()
	})
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		version := migrationVersion(entry.Name())
		if version <= 0 {
			continue
		}
		var exists int
		if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM schema_migrations WHERE version = ?`, version).Scan(&exists); err != nil {
			return fmt.Errorf("check migration %s: %w", entry.Name(), err)
		}
		if exists > 0 {
			continue
		}
		content, err := migrationFiles.ReadFile(filepath.Join("migrations", entry.Name()))
		if err != nil {
			return fmt.Errorf("read migration %s: %w", entry.Name(), err)
		}
		if _, err := s.db.ExecContext(ctx, string(content)); err != nil {
			return fmt.Errorf("apply migration %s: %w", entry.Name(), err)
		}
		if _, err := s.db.ExecContext(ctx, `INSERT INTO schema_migrations (version) VALUES (?)`, version); err != nil {
			return fmt.Errorf("record migration %s: %w", entry.Name(), err)
		}
	}
	return nil
}

// migrationVersion extracts the leading integer from a migration filename (e.g. "001_init.sql" → 1).
func migrationVersion(name string) int {
	for i, c := range name {
		if c < '0' || c > '9' {
			if i == 0 {
				return 0
			}
			n, _ := strconv.Atoi(name[:i])
			return n
		}
	}
	n, _ := strconv.Atoi(name)
	return n
}

// SeriesExists reports whether the title is already in the catalog.
func (s *SQLiteStore) SeriesExists(ctx context.Context, imdbID string) (bool, error) {
	var count int
	err := s.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM series WHERE series_imdbid = ?`, imdbID,
	).Scan(&count)
	if err != nil {
		return false, err
	}
	return count > 0, nil
}

// AddSeries registers a title in the catalog.
func (s *SQLiteStore) AddSeries(ctx context.Context, imdbID string, titleType TitleType) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO series (series_imdbid, series_type) VALUES (?, ?)`,
		imdbID, titleType.dbValue(),
	)
	return err
}

// SubtitleExists reports whether a record with this exact identity
// (key + path) has already been persisted.
func (s *SQLiteStore) SubtitleExists(ctx context.Context, key BatchKey, path string) (bool, error) {
	var count int
	err := s.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM subtitles
		 WHERE series_imdbid = ? AND subtitle_seasonno IS ? AND subtitle_episodeno IS ?
		   AND subtitle_path = ? AND subtitle_langcode = ?`,
		key.IMDBID, key.seasonValue(), key.episodeValue(), path, key.Language,
	).Scan(&count)
	if err != nil {
		return false, err
	}
	return count > 0, nil
}

// AddSubtitle persists one translated subtitle record.
func (s *SQLiteStore) AddSubtitle(ctx context.Context, key BatchKey, titleType TitleType, path string) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO subtitles (series_imdbid, subtitle_type, subtitle_seasonno, subtitle_episodeno, subtitle_langcode, subtitle_path)
		 VALUES (?, ?, ?, ?, ?, ?)`,
		key.IMDBID, titleType.dbValue(), key.seasonValue(), key.episodeValue(), key.Language, path,
	)
	return err
}

// ListSubtitlePaths returns the persisted paths for a key, oldest first.
func (s *SQLiteStore) ListSubtitlePaths(ctx context.Context, key BatchKey) ([]string, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT subtitle_path FROM subtitles
		 WHERE series_imdbid = ? AND subtitle_seasonno IS ? AND subtitle_episodeno IS ? AND subtitle_langcode = ?
		 ORDER BY id ASC`,
		key.IMDBID, key.seasonValue(), key.episodeValue(), key.Language,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	ret := make([]string, 0)
	for rows.Next() {
		var path string
		if err := rows.Scan(&path); err != nil {
			return nil, err
		}
		ret = append(ret, path)
	}
	return ret, rows.Err()
}

// CountSubtitles returns how many records exist for a key.
func (s *SQLiteStore) CountSubtitles(ctx context.Context, key BatchKey) (int, error) {
	var count int
	err := s.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM subtitles
		 WHERE series_imdbid = ? AND subtitle_seasonno IS ? AND subtitle_episodeno IS ? AND subtitle_langcode = ?`,
		key.IMDBID, key.seasonValue(), key.episodeValue(), key.Language,
	).Scan(&count)
	return count, err
}

// EnqueueTranslation marks a batch as in flight. The row is advisory:
// there is no unique constraint, so concurrent processes can still race.
func (s *SQLiteStore) EnqueueTranslation(ctx context.Context, key BatchKey, fileCount int) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO translation_queue (series_imdbid, series_seasonno, series_episodeno, subcount, langcode)
		 VALUES (?, ?, ?, ?, ?)`,
		key.IMDBID, key.seasonValue(), key.episodeValue(), fileCount, key.Language,
	)
	return err
}

// DequeueTranslation clears the in-flight marker for a batch.
func (s *SQLiteStore) DequeueTranslation(ctx context.Context, key BatchKey) error {
	_, err := s.db.ExecContext(ctx,
		`DELETE FROM translation_queue
		 WHERE series_imdbid = ? AND series_seasonno IS ? AND series_episodeno IS ? AND langcode = ?`,
		key.IMDBID, key.seasonValue(), key.episodeValue(), key.Language,
	)
	return err
}

// PeekTranslation reports whether a batch is in flight and, if so, the
// number of files it is expected to produce.
func (s *SQLiteStore) PeekTranslation(ctx context.Context, key BatchKey) (int, bool, error) {
	var count int
	err := s.db.QueryRowContext(ctx,
		`SELECT subcount FROM translation_queue
		 WHERE series_imdbid = ? AND series_seasonno IS ? AND series_episodeno IS ? AND langcode = ?
		 ORDER BY id ASC LIMIT 1`,
		key.IMDBID, key.seasonValue(), key.episodeValue(), key.Language,
	).Scan(&count)
	if err == sql.ErrNoRows {
		return 0, false, nil
	}
	if err != nil {
		return 0, false, err
	}
	return count, true, nil
}
