package subtitle

import (
	"strings"

	"github.com/abadojack/whatlanggo"
)

// DetectLanguage guesses the ISO 639-1 code of the cue text in an SRT
// document. Index and timecode lines are excluded from the sample the
// same way Estimate excludes them from billing.
func DetectLanguage(content string) string {
	var texts []string
	state := stateExpectIndex

	for _, line := range strings.Split(content, "\n") {
		line = strings.TrimRight(line, "\r")
		if strings.TrimSpace(line) == "" {
			state = stateExpectIndex
			continue
		}
		switch state {
		case stateExpectIndex:
			state = stateExpectTimecode
		case stateExpectTimecode:
			state = stateInText
		case stateInText:
			texts = append(texts, line)
		}
	}

	if len(texts) == 0 {
		return ""
	}
	return whatlanggo.DetectLang(strings.Join(texts, "\n")).Iso6391()
}
