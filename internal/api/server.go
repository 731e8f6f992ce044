package api

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/pbaille/osintdeck/internal/classifier"
	"github.com/pbaille/osintdeck/internal/domain"
	"github.com/pbaille/osintdeck/internal/extractor"
	"github.com/pbaille/osintdeck/internal/relevance"
	"github.com/pbaille/osintdeck/internal/tld"
)

// maxBodyBytes bounds request bodies, sample imports included
const maxBodyBytes = 4 << 20

// Deps are the services behind the API
type Deps struct {
	Engine     *relevance.Engine
	Extractor  *extractor.Extractor
	Classifier *classifier.Classifier
	TLDs       *tld.Oracle
	Logger     *slog.Logger
}

// Server handles HTTP requests for the osintdeck API
type Server struct {
	Deps
	addr string
}

// New creates a new API server
func New(deps Deps, addr string) *Server {
	if deps.Logger == nil {
		deps.Logger = slog.Default()
	}
	return &Server{Deps: deps, addr: addr}
}

// Handler returns the routed handler
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()

	// Search
	mux.HandleFunc("GET /search", s.search)
	mux.HandleFunc("GET /detect", s.detect)
	mux.HandleFunc("GET /tools/relevant", s.relevantTools)
	mux.HandleFunc("GET /cards/relevant", s.relevantCards)

	// Intent classifier
	mux.HandleFunc("GET /intent", s.predict)
	mux.HandleFunc("GET /samples", s.listSamples)
	mux.HandleFunc("POST /samples", s.addSample)
	mux.HandleFunc("DELETE /samples/{index}", s.deleteSample)
	mux.HandleFunc("DELETE /samples", s.clearSamples)
	mux.HandleFunc("POST /samples/import", s.importSamples)
	mux.HandleFunc("POST /samples/defaults", s.loadDefaults)
	mux.HandleFunc("POST /train", s.train)
	mux.HandleFunc("GET /model", s.modelInfo)

	// TLD oracle
	mux.HandleFunc("GET /tlds", s.listTLDs)
	mux.HandleFunc("GET /tlds/{label}", s.checkTLD)
	mux.HandleFunc("POST /tlds/refresh", s.refreshTLDs)
	mux.HandleFunc("POST /tlds/custom", s.addCustomTLD)
	mux.HandleFunc("DELETE /tlds/custom/{label}", s.removeCustomTLD)

	mux.Handle("GET /metrics", promhttp.Handler())
	mux.HandleFunc("GET /health", s.health)

	return withCORS(mux)
}

// Run serves until ctx is done, then shuts down gracefully
func (s *Server) Run(ctx context.Context) error {
	srv := &http.Server{
		Addr:              s.addr,
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		s.Logger.Info("starting server", "addr", s.addr)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return err
	}
	if err := <-errCh; err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// withCORS adds CORS headers for frontend development
func withCORS(h http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, DELETE, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type")

		if r.Method == "OPTIONS" {
			w.WriteHeader(http.StatusOK)
			return
		}

		h.ServeHTTP(w, r)
	})
}

func (s *Server) health(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) search(w http.ResponseWriter, r *http.Request) {
	res := s.Engine.ProcessSearch(r.Context(), r.URL.Query().Get("q"))
	writeJSON(w, http.StatusOK, res)
}

// DetectResponse is the response for a single-value type check
type DetectResponse struct {
	Value string       `json:"value"`
	Kind  *domain.Kind `json:"kind"`
}

func (s *Server) detect(w http.ResponseWriter, r *http.Request) {
	value := r.URL.Query().Get("value")
	resp := DetectResponse{Value: value}
	if k, ok := s.Extractor.DetectType(value); ok {
		resp.Kind = &k
	}
	writeJSON(w, http.StatusOK, resp)
}

// queryKinds reads repeated or comma-separated kind parameters
func queryKinds(r *http.Request) ([]domain.Kind, error) {
	var kinds []domain.Kind
	for _, raw := range r.URL.Query()["kind"] {
		for _, part := range strings.Split(raw, ",") {
			part = strings.TrimSpace(part)
			if part == "" {
				continue
			}
			k, ok := domain.ParseKind(part)
			if !ok {
				return nil, errors.New("unknown kind: " + part)
			}
			kinds = append(kinds, k)
		}
	}
	if len(kinds) == 0 {
		return nil, errors.New("query parameter 'kind' is required")
	}
	return kinds, nil
}

func (s *Server) relevantTools(w http.ResponseWriter, r *http.Request) {
	kinds, err := queryKinds(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"kinds": kinds,
		"tools": s.Engine.RelevantTools(r.Context(), kinds),
	})
}

func (s *Server) relevantCards(w http.ResponseWriter, r *http.Request) {
	kinds, err := queryKinds(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"kinds": kinds,
		"cards": s.Engine.RelevantCards(r.Context(), kinds),
	})
}

func (s *Server) predict(w http.ResponseWriter, r *http.Request) {
	query := r.URL.Query().Get("q")
	if strings.TrimSpace(query) == "" {
		writeError(w, http.StatusBadRequest, "query parameter 'q' is required")
		return
	}
	intent, ok := s.Classifier.Predict(query)
	if !ok {
		writeError(w, http.StatusNotFound, "no model")
		return
	}
	writeJSON(w, http.StatusOK, intent)
}

func (s *Server) listSamples(w http.ResponseWriter, r *http.Request) {
	samples, err := s.Classifier.Samples(r.Context())
	if err != nil {
		s.internalError(w, err)
		return
	}
	categories, err := s.Classifier.Categories(r.Context())
	if err != nil {
		s.internalError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"samples":    samples,
		"categories": categories,
	})
}

// AddSampleRequest is the request body for adding a training sample
type AddSampleRequest struct {
	Text     string `json:"text"`
	Category string `json:"category"`
}

func (s *Server) addSample(w http.ResponseWriter, r *http.Request) {
	var req AddSampleRequest
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes)).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	sample, err := s.Classifier.AddSample(r.Context(), req.Text, req.Category)
	if errors.Is(err, classifier.ErrEmptySample) {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if err != nil {
		s.internalError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, sample)
}

func (s *Server) deleteSample(w http.ResponseWriter, r *http.Request) {
	index, err := strconv.Atoi(r.PathValue("index"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "index must be an integer")
		return
	}
	ok, err := s.Classifier.DeleteSample(r.Context(), index)
	if err != nil {
		s.internalError(w, err)
		return
	}
	if !ok {
		writeError(w, http.StatusNotFound, "sample not found")
		return
	}
	writeJSON(w, http.StatusOK, map[string]int{"deleted": index})
}

func (s *Server) clearSamples(w http.ResponseWriter, r *http.Request) {
	if err := s.Classifier.ClearAll(r.Context()); err != nil {
		s.internalError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "cleared"})
}

func (s *Server) importSamples(w http.ResponseWriter, r *http.Request) {
	res, err := s.Classifier.ImportJSON(r.Context(), http.MaxBytesReader(w, r.Body, maxBodyBytes))
	if errors.Is(err, classifier.ErrInvalidSamples) {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if err != nil {
		s.internalError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

func (s *Server) loadDefaults(w http.ResponseWriter, r *http.Request) {
	res, err := s.Classifier.LoadDefaults(r.Context())
	if err != nil {
		s.internalError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

func (s *Server) train(w http.ResponseWriter, r *http.Request) {
	stats, err := s.Classifier.Train(r.Context())
	if errors.Is(err, classifier.ErrNoSamples) {
		writeError(w, http.StatusUnprocessableEntity, err.Error())
		return
	}
	if err != nil {
		s.internalError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, stats)
}

func (s *Server) modelInfo(w http.ResponseWriter, r *http.Request) {
	stats, ok := s.Classifier.ModelInfo()
	if !ok {
		writeError(w, http.StatusNotFound, "no model")
		return
	}
	writeJSON(w, http.StatusOK, stats)
}

func (s *Server) listTLDs(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"stats":  s.TLDs.Stats(),
		"custom": s.TLDs.Custom(),
	})
}

func (s *Server) checkTLD(w http.ResponseWriter, r *http.Request) {
	label := r.PathValue("label")
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"label": label,
		"valid": s.TLDs.IsValid(label),
	})
}

func (s *Server) refreshTLDs(w http.ResponseWriter, r *http.Request) {
	n, err := s.TLDs.Refresh(r.Context())
	if err != nil {
		writeError(w, http.StatusBadGateway, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]int{"labels": n})
}

// CustomTLDRequest is the request body for allow-listing a label
type CustomTLDRequest struct {
	Label string `json:"label"`
}

func (s *Server) addCustomTLD(w http.ResponseWriter, r *http.Request) {
	var req CustomTLDRequest
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes)).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if _, ok := tld.Normalize(req.Label); !ok {
		writeError(w, http.StatusBadRequest, "invalid label")
		return
	}

	added, err := s.TLDs.AddCustom(r.Context(), req.Label)
	if err != nil {
		s.internalError(w, err)
		return
	}
	status := http.StatusOK
	if added {
		status = http.StatusCreated
	}
	writeJSON(w, status, map[string]interface{}{"label": req.Label, "added": added})
}

func (s *Server) removeCustomTLD(w http.ResponseWriter, r *http.Request) {
	label := r.PathValue("label")
	removed, err := s.TLDs.RemoveCustom(r.Context(), label)
	if err != nil {
		s.internalError(w, err)
		return
	}
	if !removed {
		writeError(w, http.StatusNotFound, "label not in custom set")
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"label": label, "removed": true})
}

func (s *Server) internalError(w http.ResponseWriter, err error) {
	s.Logger.Error("request failed", "error", err)
	writeError(w, http.StatusInternalServerError, err.Error())
}

func writeJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]string{"error": message})
}
