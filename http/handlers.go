package http

import (
	"encoding/json"
	"errors"
	"fmt"
	"mime"
	"net/http"

	"go.uber.org/zap"

	"aquasense/assess"
	"aquasense/monitoring"
	"aquasense/prediction"
	"aquasense/records"
)

// Handlers holds what the routes need. Feed and Metrics may be nil, in which
// case their routes are not registered.
type Handlers struct {
	assessor *assess.Service
	feed     *monitoring.Hub
	metrics  *monitoring.MetricsCollector
	logger   *zap.Logger
}

func NewHandlers(assessor *assess.Service, feed *monitoring.Hub, metrics *monitoring.MetricsCollector, logger *zap.Logger) *Handlers {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Handlers{assessor: assessor, feed: feed, metrics: metrics, logger: logger}
}

// Register mounts every route on mux.
func (h *Handlers) Register(mux *http.ServeMux) {
	mux.HandleFunc("GET /api/health", handleHealth)
	mux.HandleFunc("GET /api/guidance", handleGuidance)
	mux.HandleFunc("POST /api/predict", h.handlePredict)
	mux.HandleFunc("GET /api/records", h.handleRecords)
	if h.feed != nil {
		mux.HandleFunc("GET /api/ws/records", h.feed.ServeWS)
	}
	if h.metrics != nil {
		mux.HandleFunc("GET /api/metrics", h.handleMetrics)
	}
}

func handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func handleGuidance(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, prediction.Guidance())
}

// handlePredict accepts a JSON body or form fields named ph, tds, turbidity
// and temperature. A storage failure still answers 200 with the label.
func (h *Handlers) handlePredict(w http.ResponseWriter, r *http.Request) {
	features, err := decodeFeatures(r)
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			writeError(w, http.StatusRequestEntityTooLarge, err)
			return
		}
		writeError(w, http.StatusBadRequest, err)
		return
	}

	res, err := h.assessor.Assess(r.Context(), features, true)
	if err != nil {
		status := http.StatusInternalServerError
		switch {
		case errors.Is(err, prediction.ErrInvalidInput):
			status = http.StatusBadRequest
		case errors.Is(err, prediction.ErrClassifierUnavailable):
			status = http.StatusServiceUnavailable
		}
		h.logger.Warn("prediction failed",
			zap.String("request_id", GetRequestID(r.Context())),
			zap.Error(err))
		writeError(w, status, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

func (h *Handlers) handleRecords(w http.ResponseWriter, r *http.Request) {
	history, err := h.assessor.History(r.Context())
	if err != nil {
		h.logger.Error("failed to load records",
			zap.String("request_id", GetRequestID(r.Context())),
			zap.Error(err))
		status := http.StatusInternalServerError
		if !errors.Is(err, records.ErrStoreCorrupt) {
			status = http.StatusServiceUnavailable
		}
		writeError(w, status, err)
		return
	}
	writeJSON(w, http.StatusOK, history)
}

func (h *Handlers) handleMetrics(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/plain; version=0.0.4")
	fmt.Fprint(w, h.metrics.ExportPrometheus())
}

func decodeFeatures(r *http.Request) (prediction.Features, error) {
	mediaType, _, _ := mime.ParseMediaType(r.Header.Get("Content-Type"))
	switch mediaType {
	case "application/x-www-form-urlencoded", "multipart/form-data":
		if err := r.ParseMultipartForm(32 << 10); err != nil && !errors.Is(err, http.ErrNotMultipart) {
			return prediction.Features{}, err
		}
		return prediction.ParseFeatures(
			r.FormValue("ph"),
			r.FormValue("tds"),
			r.FormValue("turbidity"),
			r.FormValue("temperature"),
		)
	default:
		var req assess.Request
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			var tooLarge *http.MaxBytesError
			if errors.As(err, &tooLarge) {
				return prediction.Features{}, err
			}
			return prediction.Features{}, fmt.Errorf("%w: %v", prediction.ErrInvalidInput, err)
		}
		return req.Features()
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, err error) {
	writeJSON(w, status, map[string]string{"error": err.Error()})
}
