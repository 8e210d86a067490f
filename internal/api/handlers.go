package api

import (
	"encoding/json"
	"net/http"
	"strconv"

	"api-studio/internal/models"
	"api-studio/internal/services/collaboration"

	"github.com/gorilla/mux"
)

// Handler handles HTTP requests
type Handler struct {
	designs   DesignRepository
	log       CommandLogReader
	wsHandler *collaboration.WebSocketHandler
}

func NewHandler(
	designs DesignRepository, // Accept interfaces
	log CommandLogReader,
	wsHandler *collaboration.WebSocketHandler,
) *Handler {
	return &Handler{
		designs:   designs,
		log:       log,
		wsHandler: wsHandler,
	}
}

// Design handlers

func (h *Handler) CreateDesign(w http.ResponseWriter, r *http.Request) {
	var in models.ApiDesignCreate
	if err := json.NewDecoder(r.Body).Decode(&in); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	if in.Name == "" {
		http.Error(w, "name is required", http.StatusBadRequest)
		return
	}
	if in.SpecType == "" {
		in.SpecType = models.SpecTypeOpenAPI
	}
	if in.Content == "" {
		in.Content = "{}"
	}

	design, err := h.designs.Create(r.Context(), &in)
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusCreated, design)
}

func (h *Handler) ListDesigns(w http.ResponseWriter, r *http.Request) {
	limit := queryInt(r, "limit", 50)
	offset := queryInt(r, "offset", 0)

	designs, err := h.designs.List(r.Context(), limit, offset)
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, designs)
}

func (h *Handler) GetDesign(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]
	design, err := h.designs.GetByID(r.Context(), id)
	if err != nil {
		http.Error(w, err.Error(), http.StatusNotFound)
		return
	}
	writeJSON(w, http.StatusOK, design)
}

func (h *Handler) UpdateDesign(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]
	var in models.ApiDesignUpdate
	if err := json.NewDecoder(r.Body).Decode(&in); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	design, err := h.designs.Update(r.Context(), id, &in)
	if err != nil {
		http.Error(w, err.Error(), http.StatusNotFound)
		return
	}
	writeJSON(w, http.StatusOK, design)
}

func (h *Handler) DeleteDesign(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]
	if err := h.designs.Delete(r.Context(), id); err != nil {
		http.Error(w, err.Error(), http.StatusNotFound)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// GetEditableDesign returns the snapshot an editing session is
// constructed from: content plus the latest sequenced content version
func (h *Handler) GetEditableDesign(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]
	editable, err := h.designs.EditApi(r.Context(), id)
	if err != nil {
		http.Error(w, err.Error(), http.StatusNotFound)
		return
	}
	writeJSON(w, http.StatusOK, editable)
}

// GetActivity returns the newest entries of the append-only command
// log for the activity feed
func (h *Handler) GetActivity(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]
	limit := queryInt(r, "limit", 20)

	items, err := h.log.ListRecent(r.Context(), id, limit)
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, items)
}

// GetCommandsSince returns the commands sequenced after a content
// version, for catch-up sync
func (h *Handler) GetCommandsSince(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]
	since := int64(queryInt(r, "since", 0))

	cmds, err := h.log.ListAfter(r.Context(), id, since)
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, cmds)
}

// WebSocket endpoints

// HandleDesignWebSocket hands the connection to the collaboration hub
func (h *Handler) HandleDesignWebSocket(w http.ResponseWriter, r *http.Request) {
	h.wsHandler.HandleDesignConnection(w, r)
}

// helpers

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func queryInt(r *http.Request, key string, def int) int {
	if raw := r.URL.Query().Get(key); raw != "" {
		if n, err := strconv.Atoi(raw); err == nil {
			return n
		}
	}
	return def
}
