// Package debugserver exposes the model cache and Prometheus metrics over HTTP.
package debugserver

import (
	"encoding/json"
	"net/http"

	"github.com/gorilla/handlers"
	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/Faultbox/midgard-models/internal/engine/loader"
	"github.com/Faultbox/midgard-models/internal/engine/model"
	"github.com/Faultbox/midgard-models/pkg/encoding"
)

// ModelSummary is the JSON view of a cached model.
type ModelSummary struct {
	Name     string     `json:"name"`
	Format   string     `json:"format"`
	Pieces   int        `json:"pieces"`
	Realized int        `json:"realized"`
	Faces    int        `json:"faces"`
	TwoSided int        `json:"two_sided"`
	Radius   float32    `json:"radius"`
	Height   float32    `json:"height"`
	Midpoint [3]float32 `json:"midpoint"`
	Textures []string   `json:"textures,omitempty"`
}

// Summarize builds the summary of m.
func Summarize(m *model.Model) ModelSummary {
	faces, twoSided := model.CountFaces(m)
	s := ModelSummary{
		Name:     encoding.Display(m.Name),
		Format:   m.Type.String(),
		Pieces:   m.NumObjects,
		Faces:    faces,
		TwoSided: twoSided,
		Radius:   m.Radius,
		Height:   m.Height,
		Midpoint: m.RelMidPos,
	}
	for _, tex := range m.Textures {
		s.Textures = append(s.Textures, encoding.Display(tex))
	}
	if m.Root != nil {
		m.Root.Walk(func(p *model.Piece) {
			if p.DrawList() != model.NoDrawHandle {
				s.Realized++
			}
		})
	}
	return s
}

// Options configures the handler.
type Options struct {
	Loader   *loader.Loader
	Gatherer prometheus.Gatherer // nil serves prometheus.DefaultGatherer
	Logger   *zap.Logger
}

type server struct {
	loader *loader.Loader
	log    *zap.Logger
}

// New returns the debug HTTP handler:
//
//	GET /metrics         Prometheus exposition
//	GET /models          summaries of every cached model
//	GET /models/{name}   summary of one cached model
//	GET /extensions      registered model extensions
func New(opts Options) http.Handler {
	log := opts.Logger
	if log == nil {
		log = zap.NewNop()
	}
	log = log.Named("debug")
	gatherer := opts.Gatherer
	if gatherer == nil {
		gatherer = prometheus.DefaultGatherer
	}

	s := &server{loader: opts.Loader, log: log}

	r := mux.NewRouter()
	r.Handle("/metrics", promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{})).Methods(http.MethodGet)
	r.HandleFunc("/models", s.handleModels).Methods(http.MethodGet)
	r.HandleFunc("/models/{name:.+}", s.handleModel).Methods(http.MethodGet)
	r.HandleFunc("/extensions", s.handleExtensions).Methods(http.MethodGet)

	h := handlers.RecoveryHandler(handlers.RecoveryLogger(zap.NewStdLog(log)))(r)
	return handlers.LoggingHandler(zap.NewStdLog(log).Writer(), h)
}

func (s *server) handleModels(w http.ResponseWriter, r *http.Request) {
	summaries := []ModelSummary{}
	for _, name := range s.loader.Names() {
		if m, ok := s.loader.Cached(name); ok {
			summaries = append(summaries, Summarize(m))
		}
	}
	s.writeJSON(w, http.StatusOK, summaries)
}

func (s *server) handleModel(w http.ResponseWriter, r *http.Request) {
	name := mux.Vars(r)["name"]
	m, ok := s.loader.Cached(name)
	if !ok && !encoding.IsASCII(name) {
		if raw, err := encoding.EncodeEUCKR(name); err == nil {
			m, ok = s.loader.Cached(raw)
		}
	}
	if !ok {
		s.writeJSON(w, http.StatusNotFound, map[string]string{"error": "model not cached: " + name})
		return
	}
	s.writeJSON(w, http.StatusOK, Summarize(m))
}

func (s *server) handleExtensions(w http.ResponseWriter, r *http.Request) {
	s.writeJSON(w, http.StatusOK, s.loader.Registry().Extensions())
}

func (s *server) writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		s.log.Warn("writing response", zap.Error(err))
	}
}
