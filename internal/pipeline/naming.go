package pipeline

import (
	"fmt"
	"path"

	"github.com/sonsuzanime/stremio-deepl-translate/internal/persistence"
)

// OutputPath returns the storage-relative location of a translated file.
// The layout is load-bearing: the serving layer predicts these paths when
// a batch is still in flight, so it must not change.
//
//	movies:   {lang}/{imdb}/{imdb}-translated-{n}.srt
//	episodes: {lang}/{imdb}/season{season}/{imdb}-translated-{episode}-{n}.srt
//
// n is the 1-based position of the file within its batch.
func OutputPath(key persistence.BatchKey, n int) string {
	if key.IsEpisode() {
		return path.Join(
			key.Language,
			key.IMDBID,
			fmt.Sprintf("season%d", key.Season),
			fmt.Sprintf("%s-translated-%d-%d.srt", key.IMDBID, key.Episode, n),
		)
	}
	return path.Join(
		key.Language,
		key.IMDBID,
		fmt.Sprintf("%s-translated-%d.srt", key.IMDBID, n),
	)
}
