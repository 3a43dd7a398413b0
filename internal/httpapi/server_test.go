package httpapi

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"net/url"
	"path/filepath"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sonsuzanime/stremio-deepl-translate/internal/opensubtitles"
	"github.com/sonsuzanime/stremio-deepl-translate/internal/persistence"
	"github.com/sonsuzanime/stremio-deepl-translate/internal/pipeline"
)

type testEnv struct {
	store      *persistence.SQLiteStore
	dispatcher *pipeline.Dispatcher
	addon      *httptest.Server
	uploads    *atomic.Int32
}

// newTestEnv wires the full addon stack against mocked DeepL and
// OpenSubtitles servers. quotaLimit controls the remaining characters
// reported for any key.
func newTestEnv(t *testing.T, quotaLimit int64) *testEnv {
	t.Helper()

	uploads := &atomic.Int32{}

	deeplMux := http.NewServeMux()
	deeplMux.HandleFunc("GET /usage", func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode(map[string]int64{
			"character_count": 0,
			"character_limit": quotaLimit,
		})
	})
	deeplMux.HandleFunc("POST /document", func(w http.ResponseWriter, r *http.Request) {
		uploads.Add(1)
		_ = json.NewEncoder(w).Encode(map[string]string{
			"document_id":  "doc-1",
			"document_key": "key-1",
		})
	})
	deeplMux.HandleFunc("POST /document/doc-1", func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode(map[string]string{"status": "done"})
	})
	deeplMux.HandleFunc("POST /document/doc-1/result", func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte("1\n00:00:01,000 --> 00:00:02,000\nmerhaba\n"))
	})
	deeplSrv := httptest.NewServer(deeplMux)
	t.Cleanup(deeplSrv.Close)

	// candidate handlers are registered after the server starts so the
	// download URLs can point back at the server itself
	osMux := http.NewServeMux()
	osSrv := httptest.NewServer(osMux)
	t.Cleanup(osSrv.Close)
	candidates, _ := json.Marshal(map[string]any{
		"subtitles": []map[string]string{
			{"lang": "eng", "url": osSrv.URL + "/download/source.srt"},
		},
	})
	osMux.HandleFunc("GET /subtitles/", func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write(candidates)
	})
	osMux.HandleFunc("GET /download/source.srt", func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte("1\n00:00:01,000 --> 00:00:02,000\nhello world\n"))
	})
	osMux.HandleFunc("GET /subtitles/movie/tt0000009.json", func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"subtitles":[]}`))
	})

	store, err := persistence.NewSQLiteStore(filepath.Join(t.TempDir(), "addon.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })

	subtitleDir := t.TempDir()
	require.NoError(t, EnsureSentinelFiles(subtitleDir))

	source := opensubtitles.NewClient(osSrv.URL, subtitleDir)
	coordinator := pipeline.NewCoordinator(store, source, subtitleDir, deeplSrv.URL, 2*time.Millisecond)
	dispatcher := pipeline.NewDispatcher()
	t.Cleanup(func() { _ = dispatcher.Drain(context.Background()) })

	server := NewServer(store, source, coordinator, dispatcher, subtitleDir, "http://addon.test", deeplSrv.URL)

	addon := httptest.NewServer(server.Handler())
	t.Cleanup(addon.Close)

	return &testEnv{
		store:      store,
		dispatcher: dispatcher,
		addon:      addon,
		uploads:    uploads,
	}
}

func configPath(translateTo, apiKey string) string {
	cfg, _ := json.Marshal(map[string]string{
		"translateto": translateTo,
		"apikey":      apiKey,
	})
	return url.PathEscape(string(cfg))
}

func getSubtitles(t *testing.T, env *testEnv, path string) subtitlesResponse {
	t.Helper()
	resp, err := http.Get(env.addon.URL + path)
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var parsed subtitlesResponse
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&parsed))
	return parsed
}

func TestHandleManifest(t *testing.T) {
	env := newTestEnv(t, 10000)

	resp, err := http.Get(env.addon.URL + "/manifest.json")
	require.NoError(t, err)
	defer resp.Body.Close()

	var m manifest
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&m))
	assert.Equal(t, "org.autotranslate.deepl", m.ID)
	assert.Equal(t, []string{"subtitles"}, m.Resources)
	assert.True(t, m.BehaviorHints["configurationRequired"])
	require.Len(t, m.Config, 2)
	assert.Equal(t, "translateto", m.Config[0].Key)
	assert.Contains(t, m.Config[0].Options, "Türkçe")
	assert.Equal(t, "apikey", m.Config[1].Key)
}

func TestHandleSubtitles_NewTranslationDispatched(t *testing.T) {
	env := newTestEnv(t, 10000)

	parsed := getSubtitles(t, env, "/"+configPath("Türkçe", "test-key")+"/subtitles/movie/tt0000001.json")

	require.Len(t, parsed.Subtitles, 2)
	assert.Equal(t, "Information", parsed.Subtitles[0].ID)
	assert.Equal(t, "http://addon.test/subtitles/information.srt", parsed.Subtitles[0].URL)
	assert.Equal(t, "tt0000001-subtitle-1", parsed.Subtitles[1].ID)
	assert.Equal(t, "http://addon.test/subtitles/tr/tt0000001/tt0000001-translated-1.srt", parsed.Subtitles[1].URL)
	assert.Equal(t, "tur", parsed.Subtitles[1].Lang)

	// the batch finishes in the background and persists its record
	key := persistence.BatchKey{IMDBID: "tt0000001", Language: "tr"}
	require.Eventually(t, func() bool {
		paths, err := env.store.ListSubtitlePaths(context.Background(), key)
		return err == nil && len(paths) == 1
	}, 5*time.Second, 10*time.Millisecond)
	assert.Equal(t, int32(1), env.uploads.Load())

	// the queue row is gone once the batch is finished
	_, inFlight, err := env.store.PeekTranslation(context.Background(), key)
	require.NoError(t, err)
	assert.False(t, inFlight)
}

func TestHandleSubtitles_InsufficientQuota(t *testing.T) {
	env := newTestEnv(t, 3)

	parsed := getSubtitles(t, env, "/"+configPath("Türkçe", "test-key")+"/subtitles/movie/tt0000001.json")

	require.Len(t, parsed.Subtitles, 1)
	assert.Equal(t, "Apikey error", parsed.Subtitles[0].ID)
	assert.Equal(t, "http://addon.test/subtitles/apikeyerror.srt", parsed.Subtitles[0].URL)
	assert.Equal(t, int32(0), env.uploads.Load())

	_, inFlight, err := env.store.PeekTranslation(context.Background(), persistence.BatchKey{IMDBID: "tt0000001", Language: "tr"})
	require.NoError(t, err)
	assert.False(t, inFlight)
}

func TestHandleSubtitles_MissingAPIKey(t *testing.T) {
	env := newTestEnv(t, 10000)

	parsed := getSubtitles(t, env, "/"+configPath("Türkçe", "")+"/subtitles/movie/tt0000001.json")

	require.Len(t, parsed.Subtitles, 1)
	assert.Equal(t, "Apikey error", parsed.Subtitles[0].ID)
	assert.Equal(t, int32(0), env.uploads.Load())
}

func TestHandleSubtitles_InvalidID(t *testing.T) {
	env := newTestEnv(t, 10000)

	parsed := getSubtitles(t, env, "/"+configPath("Türkçe", "test-key")+"/subtitles/movie/abc123.json")
	assert.Empty(t, parsed.Subtitles)
}

func TestHandleSubtitles_UnknownLanguage(t *testing.T) {
	env := newTestEnv(t, 10000)

	parsed := getSubtitles(t, env, "/"+configPath("Klingon!", "test-key")+"/subtitles/movie/tt0000001.json")
	assert.Empty(t, parsed.Subtitles)
}

func TestHandleSubtitles_NoCandidates(t *testing.T) {
	env := newTestEnv(t, 10000)

	parsed := getSubtitles(t, env, "/"+configPath("Türkçe", "test-key")+"/subtitles/movie/tt0000009.json")

	require.Len(t, parsed.Subtitles, 1)
	assert.Equal(t, "Not found", parsed.Subtitles[0].ID)
	assert.Equal(t, "http://addon.test/subtitles/notfound.srt", parsed.Subtitles[0].URL)
}

func TestHandleSubtitles_InFlightShortCircuit(t *testing.T) {
	env := newTestEnv(t, 10000)
	key := persistence.BatchKey{IMDBID: "tt0000001", Language: "tr"}
	require.NoError(t, env.store.EnqueueTranslation(context.Background(), key, 2))

	parsed := getSubtitles(t, env, "/"+configPath("Türkçe", "test-key")+"/subtitles/movie/tt0000001.json")

	require.Len(t, parsed.Subtitles, 3)
	assert.Equal(t, "Information", parsed.Subtitles[0].ID)
	assert.Equal(t, "http://addon.test/subtitles/tr/tt0000001/tt0000001-translated-2.srt", parsed.Subtitles[2].URL)
	// no duplicate translation was started
	assert.Equal(t, int32(0), env.uploads.Load())
}

func TestHandleSubtitles_ExistingRecordsReplayed(t *testing.T) {
	env := newTestEnv(t, 10000)
	key := persistence.BatchKey{IMDBID: "tt0000001", Language: "tr"}
	ctx := context.Background()
	require.NoError(t, env.store.AddSeries(ctx, key.IMDBID, persistence.TypeMovie))
	require.NoError(t, env.store.AddSubtitle(ctx, key, persistence.TypeMovie, "tr/tt0000001/tt0000001-translated-1.srt"))

	parsed := getSubtitles(t, env, "/"+configPath("Türkçe", "test-key")+"/subtitles/movie/tt0000001.json")

	require.Len(t, parsed.Subtitles, 1)
	assert.Equal(t, "tt0000001-subtitle-1", parsed.Subtitles[0].ID)
	assert.Equal(t, "http://addon.test/subtitles/tr/tt0000001/tt0000001-translated-1.srt", parsed.Subtitles[0].URL)
	assert.Equal(t, int32(0), env.uploads.Load())
}

func TestHandleSubtitles_EpisodeKeyParsing(t *testing.T) {
	env := newTestEnv(t, 10000)
	key := persistence.BatchKey{IMDBID: "tt0000002", Season: 1, Episode: 2, Language: "tr"}
	require.NoError(t, env.store.EnqueueTranslation(context.Background(), key, 1))

	parsed := getSubtitles(t, env, "/"+configPath("Türkçe", "test-key")+"/subtitles/series/tt0000002%3A1%3A2.json")

	require.Len(t, parsed.Subtitles, 2)
	assert.Equal(t, "tt0000002-1-2subtitle-1", parsed.Subtitles[1].ID)
	assert.Equal(t, "http://addon.test/subtitles/tr/tt0000002/season1/tt0000002-translated-2-1.srt", parsed.Subtitles[1].URL)
}

func TestHandleSubtitles_RawLanguageCodeAccepted(t *testing.T) {
	env := newTestEnv(t, 10000)
	key := persistence.BatchKey{IMDBID: "tt0000001", Language: "tr"}
	require.NoError(t, env.store.EnqueueTranslation(context.Background(), key, 1))

	parsed := getSubtitles(t, env, "/"+configPath("tr", "test-key")+"/subtitles/movie/tt0000001.json")
	require.Len(t, parsed.Subtitles, 2)
}

func TestStaticSubtitleServing(t *testing.T) {
	env := newTestEnv(t, 10000)

	resp, err := http.Get(env.addon.URL + "/subtitles/information.srt")
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)
}

func TestCORSHeaders(t *testing.T) {
	env := newTestEnv(t, 10000)

	req, err := http.NewRequest(http.MethodGet, env.addon.URL+"/manifest.json", nil)
	require.NoError(t, err)
	req.Header.Set("Origin", "https://app.strem.io")

	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, "*", resp.Header.Get("Access-Control-Allow-Origin"))
}
