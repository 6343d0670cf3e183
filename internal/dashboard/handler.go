// Package dashboard serves a local web front end over one analysis session.
package dashboard

import (
	"context"
	"embed"
	"encoding/json"
	"errors"
	"io"
	"io/fs"
	"net/http"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/kamilpajak/crestline/internal/display"
	"github.com/kamilpajak/crestline/internal/history"
	"github.com/kamilpajak/crestline/internal/intake"
	"github.com/kamilpajak/crestline/internal/logging"
	"github.com/kamilpajak/crestline/internal/session"
	"github.com/kamilpajak/crestline/pkg/analysis"
	"github.com/prometheus/client_golang/prometheus"
)

//go:embed static
var staticFiles embed.FS

// maxUploadBytes bounds a multipart image upload.
const maxUploadBytes = 64 << 20

// Config wires the dashboard to its collaborators.
type Config struct {
	Analyzer session.Analyzer
	// History is optional; history endpoints answer 404 without it.
	History history.Store
	Mode    analysis.Mode
	Zoom    string
	// RateLimit and Burst bound image uploads and runs per client address.
	// A non-positive RateLimit disables limiting.
	RateLimit float64
	Burst     int
	// Registry receives the metrics; nil uses a private registry.
	Registry *prometheus.Registry
}

// Handler serves the web dashboard and API endpoints.
type Handler struct {
	mux     *http.ServeMux
	root    http.Handler
	session *session.Session
	history history.Store
	limiter *KeyLimiter
	metrics *Metrics
}

// NewHandler creates a handler and the session it drives.
func NewHandler(cfg Config) *Handler {
	h := &Handler{
		mux:     http.NewServeMux(),
		history: cfg.History,
		limiter: NewKeyLimiter(cfg.RateLimit, cfg.Burst, 0),
		metrics: NewMetrics(cfg.Registry),
	}
	// Cross-site browser requests must not stage images or start runs.
	h.root = http.NewCrossOriginProtection().Handler(h.mux)

	opts := session.Options{
		Analyzer: cfg.Analyzer,
		Emitter:  h.metrics,
		Mode:     cfg.Mode,
		Zoom:     cfg.Zoom,
	}
	if cfg.History != nil {
		opts.Recorder = cfg.History
	}
	h.session = session.New(opts)

	staticFS, _ := fs.Sub(staticFiles, "static")
	h.mux.Handle("GET /", http.FileServer(http.FS(staticFS)))
	h.mux.HandleFunc("GET /health", h.handleHealth)
	h.mux.HandleFunc("GET /api/state", h.handleState)
	h.mux.HandleFunc("POST /api/image", h.limited(h.handleImage))
	h.mux.HandleFunc("PUT /api/mode", h.handleMode)
	h.mux.HandleFunc("PUT /api/zoom", h.handleZoom)
	h.mux.HandleFunc("POST /api/run", h.limited(h.handleRun))
	h.mux.HandleFunc("GET /api/history", h.handleHistory)
	h.mux.HandleFunc("GET /api/history/{id}/similar", h.handleSimilar)
	h.mux.Handle("GET /metrics", h.metrics.Handler())

	return h
}

// Session returns the session the dashboard drives.
func (h *Handler) Session() *session.Session {
	return h.session
}

// ServeHTTP implements http.Handler.
func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	h.root.ServeHTTP(w, r)
	logging.Debug("http request", "method", r.Method, "path", r.URL.Path, "elapsed", time.Since(start))
}

func (h *Handler) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (h *Handler) handleState(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, h.session.Snapshot())
}

// handleImage stages an uploaded image. Content that is not an image leaves
// the session untouched and still answers with the current state.
func (h *Handler) handleImage(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, maxUploadBytes)
	if err := r.ParseMultipartForm(32 << 20); err != nil {
		writeError(w, http.StatusBadRequest, "invalid multipart form")
		return
	}

	c, err := readUpload(r)
	switch {
	case errors.Is(err, intake.ErrNotImage):
		logging.Debug("ignoring non-image upload")
	case err != nil:
		writeError(w, http.StatusBadRequest, err.Error())
		return
	default:
		h.session.SelectImage(c)
	}
	writeJSON(w, http.StatusOK, h.session.Snapshot())
}

func readUpload(r *http.Request) (*intake.Candidate, error) {
	file, header, err := r.FormFile("image")
	if err != nil {
		return nil, errors.New("image file required")
	}
	defer file.Close()

	data, err := io.ReadAll(file)
	if err != nil {
		return nil, err
	}
	return intake.FromBytes(header.Filename, header.Header.Get("Content-Type"), data)
}

func (h *Handler) handleMode(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Mode string `json:"mode"`
	}
	if err := readJSON(r, &body); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	mode, err := analysis.ParseMode(body.Mode)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	_ = h.session.SetMode(mode)
	writeJSON(w, http.StatusOK, h.session.Snapshot())
}

func (h *Handler) handleZoom(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Zoom any `json:"zoom"`
	}
	if err := readJSON(r, &body); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	switch z := body.Zoom.(type) {
	case string:
		h.session.SetZoom(z)
	case float64:
		h.session.SetZoom(strconv.FormatFloat(z, 'f', -1, 64))
	case nil:
		h.session.SetZoom("")
	default:
		writeError(w, http.StatusBadRequest, "zoom must be a string or number")
		return
	}
	writeJSON(w, http.StatusOK, h.session.Snapshot())
}

// handleRun streams this run's progress events. A session that cannot run
// answers 409 before anything is streamed.
func (h *Handler) handleRun(w http.ResponseWriter, r *http.Request) {
	emitter := NewSSEEmitter(w)
	if emitter == nil {
		writeError(w, http.StatusInternalServerError, "streaming not supported")
		return
	}

	// The session outlives this stream; a dropped client does not abort the run.
	if _, err := h.session.RunObserved(context.WithoutCancel(r.Context()), emitter); err != nil {
		writeError(w, http.StatusConflict, err.Error())
	}
}

// entryView is a history entry with its result resolved for display.
type entryView struct {
	history.Entry
	Display display.Fields `json:"display"`
}

type matchView struct {
	entryView
	Distance float64 `json:"distance"`
}

func (h *Handler) handleHistory(w http.ResponseWriter, r *http.Request) {
	if h.history == nil {
		writeError(w, http.StatusNotFound, "history is disabled")
		return
	}
	entries, err := h.history.List(r.Context(), queryInt(r, "limit"))
	if err != nil {
		logging.Error("list history", "err", err)
		writeError(w, http.StatusInternalServerError, "failed to list history")
		return
	}

	views := make([]entryView, 0, len(entries))
	for _, e := range entries {
		views = append(views, entryView{Entry: e, Display: display.Present(e.Result, e.Mode)})
	}
	writeJSON(w, http.StatusOK, views)
}

func (h *Handler) handleSimilar(w http.ResponseWriter, r *http.Request) {
	if h.history == nil {
		writeError(w, http.StatusNotFound, "history is disabled")
		return
	}
	id, err := uuid.Parse(r.PathValue("id"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid entry id")
		return
	}

	matches, err := h.history.Similar(r.Context(), id, queryInt(r, "limit"))
	if errors.Is(err, history.ErrNotFound) {
		writeError(w, http.StatusNotFound, "history entry not found")
		return
	}
	if err != nil {
		logging.Error("similar history", "id", id, "err", err)
		writeError(w, http.StatusInternalServerError, "failed to search history")
		return
	}

	views := make([]matchView, 0, len(matches))
	for _, m := range matches {
		views = append(views, matchView{
			entryView: entryView{Entry: m.Entry, Display: display.Present(m.Result, m.Mode)},
			Distance:  m.Distance,
		})
	}
	writeJSON(w, http.StatusOK, views)
}

func queryInt(r *http.Request, key string) int {
	n, _ := strconv.Atoi(r.URL.Query().Get(key))
	return n
}

func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(data)
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]string{"error": message})
}

func readJSON(r *http.Request, v any) error {
	return json.NewDecoder(r.Body).Decode(v)
}
