package httpapi

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"regexp"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/sonsuzanime/stremio-deepl-translate/internal/languages"
	"github.com/sonsuzanime/stremio-deepl-translate/internal/persistence"
	"github.com/sonsuzanime/stremio-deepl-translate/internal/pipeline"
	"github.com/sonsuzanime/stremio-deepl-translate/pkg/log"
)

type manifestConfigField struct {
	Key      string   `json:"key"`
	Title    string   `json:"title"`
	Type     string   `json:"type"`
	Required bool     `json:"required"`
	Options  []string `json:"options,omitempty"`
}

type manifest struct {
	ID            string                `json:"id"`
	Version       string                `json:"version"`
	Name          string                `json:"name"`
	Description   string                `json:"description"`
	Resources     []string              `json:"resources"`
	Types         []string              `json:"types"`
	Catalogs      []any                 `json:"catalogs"`
	BehaviorHints map[string]bool       `json:"behaviorHints"`
	Config        []manifestConfigField `json:"config"`
}

func (s *Server) handleManifest(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, manifest{
		ID:          "org.autotranslate.deepl",
		Version:     "1.0.1",
		Name:        "Auto Subtitle Translate (DeepL)",
		Description: "Takes subtitles from OpenSubtitlesV3 and translates them into the configured language using the DeepL document API.",
		Resources:   []string{"subtitles"},
		Types:       []string{"series", "movie"},
		Catalogs:    []any{},
		BehaviorHints: map[string]bool{
			"configurable":          true,
			"configurationRequired": true,
		},
		Config: []manifestConfigField{
			{
				Key:      "translateto",
				Title:    "Translate to",
				Type:     "select",
				Required: true,
				Options:  languages.AllDisplayNames(),
			},
			{
				Key:      "apikey",
				Title:    "DeepL Translate API Key",
				Type:     "text",
				Required: true,
			},
		},
	})
}

// userConfig is the configuration Stremio embeds in the addon URL.
type userConfig struct {
	TranslateTo string `json:"translateto"`
	APIKey      string `json:"apikey"`
}

func parseUserConfig(raw string) (userConfig, error) {
	decoded, err := url.PathUnescape(raw)
	if err != nil {
		decoded = raw
	}
	var cfg userConfig
	if err := json.Unmarshal([]byte(decoded), &cfg); err != nil {
		return userConfig{}, fmt.Errorf("parse user config: %w", err)
	}
	return cfg, nil
}

// resolveLanguage accepts either the display name stored by the
// configuration page or a raw language code.
func resolveLanguage(translateTo string) string {
	if code, ok := languages.CodeFromDisplayName(translateTo); ok {
		return code
	}
	if languages.Valid(translateTo) {
		return translateTo
	}
	return ""
}

var seriesIDPattern = regexp.MustCompile(`^tt(\d+):(\d+):(\d+)$`)
var movieIDPattern = regexp.MustCompile(`^tt\d+$`)

// parseMediaID turns a Stremio media id (tt0000001 or tt0000001:1:2)
// into a batch key for the given target language.
func parseMediaID(id, langCode string) (persistence.BatchKey, bool) {
	if m := seriesIDPattern.FindStringSubmatch(id); m != nil {
		season, _ := strconv.Atoi(m[2])
		episode, _ := strconv.Atoi(m[3])
		return persistence.BatchKey{
			IMDBID:   "tt" + m[1],
			Season:   season,
			Episode:  episode,
			Language: langCode,
		}, true
	}
	if movieIDPattern.MatchString(id) {
		return persistence.BatchKey{IMDBID: id, Language: langCode}, true
	}
	return persistence.BatchKey{}, false
}

type subtitleEntry struct {
	ID   string `json:"id"`
	URL  string `json:"url"`
	Lang string `json:"lang"`
}

type subtitlesResponse struct {
	Subtitles []subtitleEntry `json:"subtitles"`
}

func (s *Server) handleSubtitles(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	empty := subtitlesResponse{Subtitles: []subtitleEntry{}}

	cfg, err := parseUserConfig(chi.URLParam(r, "userConfig"))
	if err != nil {
		log.Warn("Invalid addon configuration: %v", err)
		writeJSON(w, http.StatusOK, empty)
		return
	}

	langCode := resolveLanguage(cfg.TranslateTo)
	if langCode == "" {
		log.Warn("Unknown target language: %q", cfg.TranslateTo)
		writeJSON(w, http.StatusOK, empty)
		return
	}
	lang2 := languages.ISO6392(langCode)

	rawID := strings.TrimSuffix(chi.URLParam(r, "id"), ".json")
	if decoded, err := url.PathUnescape(rawID); err == nil {
		rawID = decoded
	}
	key, ok := parseMediaID(rawID, langCode)
	if !ok {
		log.Warn("Invalid ID format: %q", rawID)
		writeJSON(w, http.StatusOK, empty)
		return
	}

	remaining, quotaErr := int64(0), error(nil)
	if cfg.APIKey == "" {
		quotaErr = fmt.Errorf("no api key configured")
	} else {
		remaining, quotaErr = s.remainingQuota(ctx, cfg.APIKey)
	}
	if quotaErr != nil {
		log.Error("Invalid or depleted API key: %v", quotaErr)
		writeJSON(w, http.StatusOK, subtitlesResponse{
			Subtitles: []subtitleEntry{s.sentinel("Apikey error", "apikeyerror.srt", lang2)},
		})
		return
	}
	log.Info("Request details - Remaining: %d, Language: %s (%s), Key: %s", remaining, langCode, lang2, key)

	// a batch already in flight for this key: report the expected files
	// instead of starting a duplicate translation
	if count, inFlight, err := s.store.PeekTranslation(ctx, key); err != nil {
		log.Error("Check for translation error: %v", err)
	} else if inFlight {
		log.Info("Found existing translation in flight for %s", key)
		writeJSON(w, http.StatusOK, subtitlesResponse{
			Subtitles: append(
				[]subtitleEntry{s.sentinel("Information", "information.srt", lang2)},
				s.subtitleLinks(key, count, lang2)...,
			),
		})
		return
	}

	// already translated: replay the persisted records
	paths, err := s.store.ListSubtitlePaths(ctx, key)
	if err != nil {
		log.Error("Get subtitles error for %s: %v", key.IMDBID, err)
		writeJSON(w, http.StatusOK, empty)
		return
	}
	if len(paths) > 0 {
		log.Info("Sending %d existing subtitles for %s", len(paths), key)
		writeJSON(w, http.StatusOK, subtitlesResponse{
			Subtitles: s.subtitleLinks(key, len(paths), lang2),
		})
		return
	}

	urls, err := s.source.FetchCandidateURLs(ctx, key)
	if err != nil {
		log.Error("Failed to fetch subtitles for %s: %v", key.IMDBID, err)
	}
	if len(urls) == 0 {
		log.Warn("No subtitles found for %s, returning not found message", key.IMDBID)
		writeJSON(w, http.StatusOK, subtitlesResponse{
			Subtitles: []subtitleEntry{s.sentinel("Not found", "notfound.srt", lang2)},
		})
		return
	}

	batch, accepted := s.coordinator.Prepare(ctx, key, cfg.APIKey, urls)
	if !accepted {
		log.Warn("API limit reached, returning error message")
		writeJSON(w, http.StatusOK, subtitlesResponse{
			Subtitles: []subtitleEntry{s.sentinel("Apikey error", "apikeyerror.srt", lang2)},
		})
		return
	}

	// translation continues after this response is sent
	s.dispatcher.Dispatch(key, func(ctx context.Context) {
		s.coordinator.Execute(ctx, batch)
	})

	writeJSON(w, http.StatusOK, subtitlesResponse{
		Subtitles: append(
			[]subtitleEntry{s.sentinel("Information", "information.srt", lang2)},
			s.subtitleLinks(key, len(batch.Files), lang2)...,
		),
	})
}

// subtitleLinks predicts the addresses of the batch's output files from
// the deterministic naming convention.
func (s *Server) subtitleLinks(key persistence.BatchKey, count int, lang2 string) []subtitleEntry {
	entries := make([]subtitleEntry, 0, count)
	for i := 1; i <= count; i++ {
		var id string
		if key.IsEpisode() {
			id = fmt.Sprintf("%s-%d-%dsubtitle-%d", key.IMDBID, key.Season, key.Episode, i)
		} else {
			id = fmt.Sprintf("%s-subtitle-%d", key.IMDBID, i)
		}
		entries = append(entries, subtitleEntry{
			ID:   id,
			URL:  fmt.Sprintf("%s/subtitles/%s", s.publicBaseURL, pipeline.OutputPath(key, i)),
			Lang: lang2,
		})
	}
	return entries
}

func (s *Server) sentinel(id, file, lang2 string) subtitleEntry {
	return subtitleEntry{
		ID:   id,
		URL:  fmt.Sprintf("%s/subtitles/%s", s.publicBaseURL, file),
		Lang: lang2,
	}
}
