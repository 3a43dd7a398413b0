package persistence

import "fmt"

// TitleType distinguishes movies from series in the catalog.
type TitleType string

const (
	TypeSeries TitleType = "series"
	TypeMovie  TitleType = "movie"
)

// dbValue keeps the integer encoding the original schema used.
func (t TitleType) dbValue() int {
	if t == TypeSeries {
		return 0
	}
	return 1
}

// BatchKey identifies one translation batch: a title, an optional
// season/episode pair, and the target language. Season and Episode of 0
// mean "movie" and are stored as NULL.
type BatchKey struct {
	IMDBID   string
	Season   int
	Episode  int
	Language string
}

// IsEpisode reports whether the key addresses a series episode.
func (k BatchKey) IsEpisode() bool {
	return k.Season > 0 && k.Episode > 0
}

// Type returns the catalog type implied by the key.
func (k BatchKey) Type() TitleType {
	if k.IsEpisode() {
		return TypeSeries
	}
	return TypeMovie
}

// String renders the key for logs and dedupe maps.
func (k BatchKey) String() string {
	if k.IsEpisode() {
		return fmt.Sprintf("%s:%d:%d:%s", k.IMDBID, k.Season, k.Episode, k.Language)
	}
	return fmt.Sprintf("%s:%s", k.IMDBID, k.Language)
}

// seasonValue and episodeValue produce the nullable column values.
func (k BatchKey) seasonValue() any {
	if k.Season > 0 {
		return k.Season
	}
	return nil
}

func (k BatchKey) episodeValue() any {
	if k.Episode > 0 {
		return k.Episode
	}
	return nil
}
