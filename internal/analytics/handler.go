package analytics

import (
	"bytes"
	"encoding/json"
	"log/slog"
	"net/http"
	"strconv"
)

// maxTopN caps the top query lists a caller may request.
const maxTopN = 100

type Handler struct {
	aggregator *Aggregator
	logger     *slog.Logger
}

func NewHandler(aggregator *Aggregator) *Handler {
	return &Handler{
		aggregator: aggregator,
		logger:     slog.Default().With("component", "analytics-handler"),
	}
}

// Stats serves GET /api/v1/analytics. The optional top parameter sets the
// length of the top and zero-result query lists (1 to 100, default 10).
func (h *Handler) Stats(w http.ResponseWriter, r *http.Request) {
	n := DefaultTopN
	if raw := r.URL.Query().Get("top"); raw != "" {
		v, err := strconv.Atoi(raw)
		if err != nil || v < 1 || v > maxTopN {
			h.writeJSON(w, http.StatusBadRequest, map[string]string{"error": "top must be an integer between 1 and 100"})
			return
		}
		n = v
	}
	h.writeJSON(w, http.StatusOK, h.aggregator.StatsTop(n))
}

func (h *Handler) writeJSON(w http.ResponseWriter, status int, data any) {
	var buf bytes.Buffer
	if err := json.NewEncoder(&buf).Encode(data); err != nil {
		h.logger.Error("failed to encode analytics response", "error", err)
		http.Error(w, `{"error":"failed to encode response"}`, http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if _, err := w.Write(buf.Bytes()); err != nil {
		h.logger.Error("failed to write analytics response", "error", err)
	}
}
