package httpapi

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/cors"
	"golang.org/x/sync/singleflight"

	"github.com/sonsuzanime/stremio-deepl-translate/internal/deepl"
	"github.com/sonsuzanime/stremio-deepl-translate/internal/pipeline"
)

// Server exposes the Stremio addon protocol: the manifest, the subtitles
// resource and a static file server for the translated output. Stremio
// loads addons cross-origin, so every route is served with permissive
// CORS.
type Server struct {
	store       pipeline.Store
	source      pipeline.Source
	coordinator *pipeline.Coordinator
	dispatcher  *pipeline.Dispatcher

	subtitleDir   string
	publicBaseURL string
	deeplBaseURL  string

	// collapses concurrent usage lookups for the same credential
	quotaGroup singleflight.Group

	router chi.Router
	server *http.Server
}

func NewServer(
	store pipeline.Store,
	source pipeline.Source,
	coordinator *pipeline.Coordinator,
	dispatcher *pipeline.Dispatcher,
	subtitleDir string,
	publicBaseURL string,
	deeplBaseURL string,
) *Server {
	s := &Server{
		store:         store,
		source:        source,
		coordinator:   coordinator,
		dispatcher:    dispatcher,
		subtitleDir:   subtitleDir,
		publicBaseURL: publicBaseURL,
		deeplBaseURL:  deeplBaseURL,
	}
	s.routes()
	return s
}

func (s *Server) Handler() http.Handler {
	return s.router
}

func (s *Server) ListenAndServe(addr string) error {
	s.server = &http.Server{
		Addr:              addr,
		Handler:           s.router,
		ReadHeaderTimeout: 5 * time.Second,
	}
	return s.server.ListenAndServe()
}

func (s *Server) Shutdown(ctx context.Context) error {
	if s.server == nil {
		return nil
	}
	return s.server.Shutdown(ctx)
}

func (s *Server) routes() {
	r := chi.NewRouter()
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: []string{"*"},
		AllowedMethods: []string{http.MethodGet, http.MethodHead, http.MethodOptions},
		AllowedHeaders: []string{"*"},
	}))

	r.Get("/manifest.json", s.handleManifest)
	r.Get("/{userConfig}/manifest.json", s.handleManifest)
	r.Get("/{userConfig}/subtitles/{type}/{id}", s.handleSubtitles)
	r.Get("/{userConfig}/subtitles/{type}/{id}/{extra}", s.handleSubtitles)
	r.Handle("/subtitles/*", http.StripPrefix("/subtitles/",
		http.FileServer(http.Dir(s.subtitleDir))))

	s.router = r
}

// remainingQuota resolves the credential's remaining character budget,
// collapsing concurrent lookups for the same key into one API call.
func (s *Server) remainingQuota(ctx context.Context, apiKey string) (int64, error) {
	v, err, _ := s.quotaGroup.Do(apiKey, func() (any, error) {
		return deepl.NewClient(s.deeplBaseURL, apiKey).Remaining(ctx)
	})
	if err != nil {
		return 0, err
	}
	return v.(int64), nil
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
