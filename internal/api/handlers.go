package api

import (
	"encoding/json"
	"io"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/vatefs/efsd/internal/config"
	"github.com/vatefs/efsd/internal/feed"
	"github.com/vatefs/efsd/internal/flight"
	"github.com/vatefs/efsd/internal/strips"
	"github.com/vatefs/efsd/internal/websocket"
	"github.com/vatefs/efsd/pkg/logger"
)

// maxTelemetryBody bounds a single telemetry POST
const maxTelemetryBody = 1 << 20

// Handler contains the API handlers
type Handler struct {
	machine    *flight.Machine
	dispatcher *feed.Dispatcher
	wsServer   *websocket.Server
	config     *config.Config
	logger     *logger.Logger
	startedAt  time.Time
}

// NewHandler creates a new API handler
func NewHandler(machine *flight.Machine, dispatcher *feed.Dispatcher, wsServer *websocket.Server, config *config.Config, logger *logger.Logger) *Handler {
	return &Handler{
		machine:    machine,
		dispatcher: dispatcher,
		wsServer:   wsServer,
		config:     config,
		logger:     logger.Named("api-handler"),
		startedAt:  time.Now(),
	}
}

// PostTelemetry ingests one telemetry message from the radar client. The
// resulting event batch is broadcast to all displays and echoed back; a
// matched move command rides on the batch.
func (h *Handler) PostTelemetry(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(io.LimitReader(r.Body, maxTelemetryBody))
	if err != nil {
		h.respondError(w, http.StatusBadRequest, "failed to read request body")
		return
	}

	batch, err := h.dispatcher.Handle(body)
	if err != nil {
		h.logger.Warn("Rejected telemetry message", logger.Error(err))
		h.respondError(w, http.StatusBadRequest, err.Error())
		return
	}

	h.broadcast(batch)
	h.respondJSON(w, http.StatusOK, batch)
}

// GetAllStrips returns the current projection of every placed strip
func (h *Handler) GetAllStrips(w http.ResponseWriter, r *http.Request) {
	h.respondJSON(w, http.StatusOK, map[string]interface{}{
		"strips": h.machine.Strips(),
	})
}

// moveRequest is the body of a manual strip move
type moveRequest struct {
	Section string `json:"section"`
	Zone    string `json:"zone"`
	Index   *int   `json:"index"` // nil appends at the end
}

// MoveStrip relocates a strip at the operator's request
func (h *Handler) MoveStrip(w http.ResponseWriter, r *http.Request) {
	callsign := chi.URLParam(r, "callsign")

	var req moveRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.respondError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	zone, ok := parseZone(req.Zone)
	if !ok {
		h.respondError(w, http.StatusBadRequest, "zone must be \"top\" or \"bottom\"")
		return
	}

	batch, err := h.machine.ManualMove(callsign, req.Section, zone, req.Index)
	if err != nil {
		h.respondError(w, http.StatusUnprocessableEntity, err.Error())
		return
	}

	h.broadcast(batch)
	h.respondJSON(w, http.StatusOK, batch)
}

// GetGaps returns the operator-inserted gaps for one zone
func (h *Handler) GetGaps(w http.ResponseWriter, r *http.Request) {
	zone, ok := parseZone(r.URL.Query().Get("zone"))
	if !ok {
		h.respondError(w, http.StatusBadRequest, "zone must be \"top\" or \"bottom\"")
		return
	}
	bay := r.URL.Query().Get("bay")
	section := r.URL.Query().Get("section")

	h.respondJSON(w, http.StatusOK, map[string]interface{}{
		"gaps": h.machine.Gaps(bay, section, zone),
	})
}

// gapRequest is the body of a gap update
type gapRequest struct {
	Bay     string `json:"bay"`
	Section string `json:"section"`
	Zone    string `json:"zone"`
	Index   int    `json:"index"`
	Px      int    `json:"px"` // below the configured minimum clears the gap
}

// SetGap stores or clears an operator-inserted gap
func (h *Handler) SetGap(w http.ResponseWriter, r *http.Request) {
	var req gapRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.respondError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	zone, ok := parseZone(req.Zone)
	if !ok {
		h.respondError(w, http.StatusBadRequest, "zone must be \"top\" or \"bottom\"")
		return
	}
	// Gaps keyed to sections outside the layout would never render
	bay, _, ok := h.config.Layout.FindSection(req.Section)
	if !ok || bay.ID != req.Bay {
		h.respondError(w, http.StatusUnprocessableEntity, "unknown bay/section")
		return
	}

	h.machine.SetGap(req.Bay, req.Section, zone, req.Index, req.Px)
	h.respondJSON(w, http.StatusOK, map[string]interface{}{
		"gaps": h.machine.Gaps(req.Bay, req.Section, zone),
	})
}

// GetAllFlights returns every flight record, including soft-deleted ones
func (h *Handler) GetAllFlights(w http.ResponseWriter, r *http.Request) {
	h.respondJSON(w, http.StatusOK, map[string]interface{}{
		"flights": h.machine.Flights(),
	})
}

// GetFlightByCallsign returns one flight record
func (h *Handler) GetFlightByCallsign(w http.ResponseWriter, r *http.Request) {
	callsign := chi.URLParam(r, "callsign")
	f, ok := h.machine.Flight(callsign)
	if !ok {
		h.respondError(w, http.StatusNotFound, "unknown flight")
		return
	}
	h.respondJSON(w, http.StatusOK, f)
}

// flagsRequest is the body of an operator flag update
type flagsRequest struct {
	ClearedToLand *bool   `json:"cleared_to_land"`
	GroundState   *string `json:"ground_state"`
	ManualDelete  *bool   `json:"manual_delete"`
}

// SetFlightFlags applies operator flag changes relayed through the display
func (h *Handler) SetFlightFlags(w http.ResponseWriter, r *http.Request) {
	callsign := chi.URLParam(r, "callsign")

	var req flagsRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.respondError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	batch := h.machine.ApplyFlags(flight.FlagsDelta{
		Callsign:      callsign,
		ClearedToLand: req.ClearedToLand,
		GroundState:   req.GroundState,
		ManualDelete:  req.ManualDelete,
	})

	h.broadcast(batch)
	h.respondJSON(w, http.StatusOK, batch)
}

// GetCoverage returns the current effective role coverage and the online
// controller picture it was derived from
func (h *Handler) GetCoverage(w http.ResponseWriter, r *http.Request) {
	h.respondJSON(w, http.StatusOK, map[string]interface{}{
		"coverage":    h.dispatcher.Coverage(),
		"controllers": h.dispatcher.OnlineControllers(),
	})
}

// HandleWebSocket upgrades the connection and streams event batches
func (h *Handler) HandleWebSocket(w http.ResponseWriter, r *http.Request) {
	h.wsServer.HandleWS(w, r)
}

// GetHealth returns the health of the service
func (h *Handler) GetHealth(w http.ResponseWriter, r *http.Request) {
	status := map[string]interface{}{
		"status":     "ok",
		"uptime":     time.Since(h.startedAt).String(),
		"flights":    len(h.machine.Flights()),
		"ws_clients": h.wsServer.ClientCount(),
	}
	if last := h.dispatcher.LastMessageAt(); !last.IsZero() {
		status["last_telemetry"] = last
	}
	h.respondJSON(w, http.StatusOK, status)
}

// GetConfig returns the display-relevant configuration: station identity and
// the bay/section layout.
func (h *Handler) GetConfig(w http.ResponseWriter, r *http.Request) {
	h.respondJSON(w, http.StatusOK, map[string]interface{}{
		"station": h.config.Station,
		"layout":  h.config.Layout,
	})
}

func parseZone(s string) (strips.Zone, bool) {
	switch strips.Zone(s) {
	case strips.ZoneTop, strips.ZoneBottom:
		return strips.Zone(s), true
	case "":
		return strips.ZoneTop, true
	}
	return "", false
}

// broadcast pushes a non-empty batch to every connected display
func (h *Handler) broadcast(batch flight.Batch) {
	if len(batch.Events) == 0 && batch.Command == nil {
		return
	}
	h.wsServer.Broadcast(batch)
}

func (h *Handler) respondJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		h.logger.Error("Failed to encode response", logger.Error(err))
	}
}

func (h *Handler) respondError(w http.ResponseWriter, status int, msg string) {
	h.respondJSON(w, status, map[string]string{"error": msg})
}
