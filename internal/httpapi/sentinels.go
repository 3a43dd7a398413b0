package httpapi

import (
	"os"
	"path/filepath"

	"github.com/sonsuzanime/stremio-deepl-translate/pkg/log"
)

// Sentinel subtitles shown to the user instead of real output when
// something is off: translation still running, no source found, or a
// bad/depleted API key.
var sentinelFiles = map[string]string{
	"information.srt": "1\n00:00:00,000 --> 00:01:00,000\n" +
		"Your subtitles are being translated.\nCheck back in a few minutes.\n",
	"notfound.srt": "1\n00:00:00,000 --> 00:01:00,000\n" +
		"No source subtitles were found for this title.\n",
	"apikeyerror.srt": "1\n00:00:00,000 --> 00:01:00,000\n" +
		"Your DeepL API key is invalid or out of quota.\nCheck the addon configuration.\n",
}

// EnsureSentinelFiles writes the sentinel subtitles into the static
// directory so they are servable; existing files are left alone.
func EnsureSentinelFiles(subtitleDir string) error {
	if err := os.MkdirAll(subtitleDir, 0o755); err != nil {
		return err
	}
	for name, content := range sentinelFiles {
		path := filepath.Join(subtitleDir, name)
		if _, err := os.Stat(path); err == nil {
			continue
		}
		if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
			return err
		}
		log.Debug("Created sentinel subtitle %s", path)
	}
	return nil
}
