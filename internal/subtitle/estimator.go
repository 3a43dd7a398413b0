package subtitle

import (
	"os"
	"strings"
	"unicode/utf8"

	"github.com/sonsuzanime/stremio-deepl-translate/pkg/log"
)

// parseState tracks where we are inside an SRT block while walking the
// file line by line.
type parseState int

const (
	stateExpectIndex parseState = iota
	stateExpectTimecode
	stateInText
)

// Estimate returns the number of characters DeepL will bill for the given
// SRT content: the cue text lines only, index and timecode lines excluded.
// Markup embedded in the text counts. Malformed input never fails; lines
// are attributed to the block structure as they come, so the result is a
// best-effort count.
func Estimate(content string) int {
	total := 0
	state := stateExpectIndex

	for _, line := range strings.Split(content, "\n") {
		line = strings.TrimRight(line, "\r")

		if strings.TrimSpace(line) == "" {
			// blank separator ends the cue wherever we are
			state = stateExpectIndex
			continue
		}

		switch state {
		case stateExpectIndex:
			state = stateExpectTimecode
		case stateExpectTimecode:
			state = stateInText
		case stateInText:
			total += utf8.RuneCountInString(line)
		}
	}

	return total
}

// EstimateFiles sums Estimate over a batch of subtitle files. Files that
// cannot be read are logged and skipped rather than failing the batch.
func EstimateFiles(paths []string) int {
	total := 0
	for _, path := range paths {
		content, err := os.ReadFile(path)
		if err != nil {
			log.Error("Error processing subtitle file %s: %v", path, err)
			continue
		}
		total += Estimate(string(content))
	}
	return total
}
