// Package dummy is an in-memory stand-in for the diagnostic service, for
// local runs and tests.
package dummy

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

var DefaultLabs = []string{"QML40671", "QML41203", "ACL42151"}

var validResults = map[string]bool{
	"pending": true,
	"covid":   true,
	"h5n1":    true,
	"healthy": true,
	"failed":  true,
}

type ServerConfig struct {
	Port int

	// Delay is how long a job stays pending; Result is what it then reports.
	Delay  time.Duration
	Result string

	Labs []string
	Log  *zap.Logger

	// Now overrides the clock jobs resolve against.
	Now func() time.Time
}

type Server struct {
	cfg   ServerConfig
	labs  map[string]bool
	store *store
	log   *zap.Logger
}

func New(cfg ServerConfig) *Server {
	if cfg.Result == "" {
		cfg.Result = "covid"
	}
	if len(cfg.Labs) == 0 {
		cfg.Labs = DefaultLabs
	}
	if cfg.Log == nil {
		cfg.Log = zap.NewNop()
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}

	labs := make(map[string]bool, len(cfg.Labs))
	for _, l := range cfg.Labs {
		labs[l] = true
	}

	return &Server{
		cfg:   cfg,
		labs:  labs,
		store: newStore(cfg.Delay, cfg.Result, cfg.Now),
		log:   cfg.Log,
	}
}

func (s *Server) Handler() http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)
	r.Use(s.requestLog)

	r.Route("/api/v1", func(r chi.Router) {
		r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
			respondJSON(w, http.StatusOK, map[string]string{"status": "ok"})
		})

		r.Post("/analysis", s.submit)
		r.Get("/analysis", s.analysis)
		r.Put("/analysis", s.reassign)

		r.Get("/labs", s.listLabs)
		r.Get("/labs/results/{lab}", s.labResults)
		r.Get("/labs/results/{lab}/summary", s.labSummary)

		r.Get("/patients/results", s.patientResults)
	})

	return r
}

// Start serves until ctx is cancelled, then shuts down gracefully.
func Start(ctx context.Context, cfg ServerConfig) error {
	s := New(cfg)

	server := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.Port),
		Handler:           s.Handler(),
		ReadHeaderTimeout: 5 * time.Second,
	}

	errc := make(chan error, 1)
	go func() {
		s.log.Info("dummy service listening",
			zap.String("addr", server.Addr),
			zap.Duration("delay", s.cfg.Delay),
			zap.String("result", s.cfg.Result),
		)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errc <- err
		}
		close(errc)
	}()

	select {
	case err := <-errc:
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return server.Shutdown(shutdownCtx)
}

func (s *Server) requestLog(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		start := time.Now()
		next.ServeHTTP(ww, r)
		s.log.Debug("request",
			zap.String("method", r.Method),
			zap.String("path", r.URL.Path),
			zap.Int("status", ww.Status()),
			zap.Duration("elapsed", time.Since(start)),
			zap.String("request_id", middleware.GetReqID(r.Context())),
		)
	})
}

type jobView struct {
	RequestID string `json:"request_id"`
	LabID     string `json:"lab_id"`
	PatientID string `json:"patient_id"`
	Result    string `json:"result"`
	Urgent    bool   `json:"urgent"`
	CreatedAt string `json:"created_at"`
	UpdatedAt string `json:"updated_at"`
}

func (s *Server) view(j Job) jobView {
	return jobView{
		RequestID: j.RequestID,
		LabID:     j.LabID,
		PatientID: j.PatientID,
		Result:    s.store.resultOf(j),
		Urgent:    j.Urgent,
		CreatedAt: timestamp(j.CreatedAt),
		UpdatedAt: timestamp(j.UpdatedAt),
	}
}

func (s *Server) views(jobs []Job) []jobView {
	out := make([]jobView, 0, len(jobs))
	for _, j := range jobs {
		out = append(out, s.view(j))
	}
	return out
}

func (s *Server) submit(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()

	patient, lab := q.Get("patient_id"), q.Get("lab_id")
	switch {
	case !q.Has("patient_id"):
		respondError(w, http.StatusBadRequest, "missing_patient_id")
		return
	case !q.Has("lab_id"):
		respondError(w, http.StatusBadRequest, "missing_lab_id")
		return
	case !s.labs[lab]:
		respondError(w, http.StatusBadRequest, "invalid_lab_id")
		return
	case !validPatient(patient):
		respondError(w, http.StatusBadRequest, "invalid_patient_id")
		return
	}

	for key := range q {
		if key != "patient_id" && key != "lab_id" && key != "urgent" {
			respondError(w, http.StatusBadRequest, "unexpected query parameter: "+key)
			return
		}
	}

	var body map[string]any
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil || body == nil {
		respondError(w, http.StatusBadRequest, "request must be JSON")
		return
	}
	if _, ok := body["image"]; !ok {
		respondError(w, http.StatusBadRequest, "missing image in request body")
		return
	}
	if len(body) != 1 {
		respondError(w, http.StatusBadRequest, "only 'image' is allowed in the request body")
		return
	}

	j := s.store.create(patient, lab, strings.EqualFold(q.Get("urgent"), "true"))

	respondJSON(w, http.StatusCreated, map[string]string{
		"id":         j.RequestID,
		"created_at": timestamp(j.CreatedAt),
		"updated_at": timestamp(j.UpdatedAt),
		"status":     "pending",
	})
}

func (s *Server) analysis(w http.ResponseWriter, r *http.Request) {
	id := r.URL.Query().Get("request_id")
	if id == "" {
		respondError(w, http.StatusBadRequest, "missing request_id")
		return
	}
	if _, err := uuid.Parse(id); err != nil {
		respondError(w, http.StatusNotFound, "invalid request_id format")
		return
	}

	j, ok := s.store.get(id)
	if !ok {
		respondError(w, http.StatusNotFound, "analysis not found")
		return
	}
	respondJSON(w, http.StatusOK, s.view(j))
}

func (s *Server) reassign(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()

	id := q.Get("request_id")
	if _, err := uuid.Parse(id); err != nil {
		respondError(w, http.StatusNotFound, "invalid request_id format")
		return
	}
	if _, ok := s.store.get(id); !ok {
		respondError(w, http.StatusNotFound, "analysis job not found")
		return
	}

	lab := q.Get("lab_id")
	if lab == "" {
		respondError(w, http.StatusBadRequest, "missing lab_id parameter")
		return
	}
	if !s.labs[lab] {
		respondError(w, http.StatusBadRequest, "invalid lab identifier")
		return
	}

	j, _ := s.store.setLab(id, lab)
	respondJSON(w, http.StatusOK, s.view(j))
}

func (s *Server) listLabs(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, s.cfg.Labs)
}

func (s *Server) labResults(w http.ResponseWriter, r *http.Request) {
	lab := chi.URLParam(r, "lab")
	if !s.labs[lab] {
		respondError(w, http.StatusNotFound, "invalid_lab_id")
		return
	}

	q := r.URL.Query()

	limit, err := intParam(q.Get("limit"), 100)
	if err != nil || limit <= 0 || limit > 1000 {
		respondError(w, http.StatusBadRequest, "limit must be between 1 and 1000")
		return
	}
	offset, err := intParam(q.Get("offset"), 0)
	if err != nil || offset < 0 {
		respondError(w, http.StatusBadRequest, "offset must be greater than or equal to 0")
		return
	}

	match, ok := s.matcher(w, q.Get("patient_id"), statusParam(q.Get("status"), q.Get("result")), q.Get("urgent"))
	if !ok {
		return
	}

	jobs := s.store.filter(func(j Job, result string) bool {
		return j.LabID == lab && match(j, result)
	})

	if offset >= len(jobs) {
		respondJSON(w, http.StatusOK, []jobView{})
		return
	}
	jobs = jobs[offset:]
	if len(jobs) > limit {
		jobs = jobs[:limit]
	}
	respondJSON(w, http.StatusOK, s.views(jobs))
}

func (s *Server) labSummary(w http.ResponseWriter, r *http.Request) {
	lab := chi.URLParam(r, "lab")
	if !s.labs[lab] {
		respondError(w, http.StatusNotFound, "lab id not found")
		return
	}

	counts := map[string]int{}
	urgent := 0
	jobs := s.store.filter(func(j Job, result string) bool {
		if j.LabID != lab {
			return false
		}
		counts[result]++
		if j.Urgent {
			urgent++
		}
		return true
	})
	if len(jobs) == 0 {
		respondError(w, http.StatusNotFound, "lab has no analysis requests")
		return
	}

	respondJSON(w, http.StatusOK, map[string]any{
		"lab_id":       lab,
		"pending":      counts["pending"],
		"covid":        counts["covid"],
		"h5n1":         counts["h5n1"],
		"healthy":      counts["healthy"],
		"failed":       counts["failed"],
		"urgent":       urgent,
		"generated_at": timestamp(s.cfg.Now()),
	})
}

func (s *Server) patientResults(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()

	patient := q.Get("patient_id")
	if !validPatient(patient) {
		respondError(w, http.StatusBadRequest, "patient id must be an 11-digit medicare number")
		return
	}

	match, ok := s.matcher(w, patient, q.Get("status"), q.Get("urgent"))
	if !ok {
		return
	}
	respondJSON(w, http.StatusOK, s.views(s.store.filter(match)))
}

// matcher builds the optional patient/status/urgent filter shared by the
// collection endpoints, writing a 400 when a parameter is malformed.
func (s *Server) matcher(w http.ResponseWriter, patient, status, urgent string) (func(Job, string) bool, bool) {
	if patient != "" && !validPatient(patient) {
		respondError(w, http.StatusBadRequest, "patient id must be an 11-digit medicare number")
		return nil, false
	}
	if status != "" && !validResults[status] {
		respondError(w, http.StatusBadRequest, "invalid status")
		return nil, false
	}

	var want *bool
	if urgent != "" {
		switch strings.ToLower(urgent) {
		case "true", "1":
			v := true
			want = &v
		case "false", "0":
			v := false
			want = &v
		default:
			respondError(w, http.StatusBadRequest, "invalid urgent flag, must be true or false")
			return nil, false
		}
	}

	return func(j Job, result string) bool {
		if patient != "" && j.PatientID != patient {
			return false
		}
		if status != "" && result != status {
			return false
		}
		if want != nil && j.Urgent != *want {
			return false
		}
		return true
	}, true
}

func statusParam(status, result string) string {
	if status != "" {
		return status
	}
	return result
}

func intParam(raw string, def int) (int, error) {
	if raw == "" {
		return def, nil
	}
	return strconv.Atoi(raw)
}

func validPatient(id string) bool {
	if len(id) != 11 {
		return false
	}
	for _, c := range id {
		if c < '0' || c > '9' {
			return false
		}
	}
	return true
}

func timestamp(t time.Time) string {
	return t.UTC().Truncate(time.Second).Format(time.RFC3339)
}

func respondJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

func respondError(w http.ResponseWriter, status int, message string) {
	respondJSON(w, status, map[string]string{"error": message})
}
