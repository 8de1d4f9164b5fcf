package comic

import (
	"encoding/json"
	"errors"
	"log"
	"net/http"

	"github.com/gorilla/mux"

	"comicgen-server/modules/common/store"
)

// Handler exposes the pipeline over HTTP.
type Handler struct {
	coordinator *Coordinator
}

func NewHandler(coordinator *Coordinator) *Handler {
	return &Handler{coordinator: coordinator}
}

// RegisterRoutes wires the comic endpoints onto the router.
func (h *Handler) RegisterRoutes(r *mux.Router) {
	r.HandleFunc("/generate-comic", h.HandleGenerate).Methods("POST", "OPTIONS")
	r.HandleFunc("/regenerate-panels", h.HandleRegenerate).Methods("POST", "OPTIONS")
	r.HandleFunc("/health", h.HandleHealth).Methods("GET")
	r.HandleFunc("/api/comics/{projectId}", h.HandleGetProject).Methods("GET")
	r.HandleFunc("/api/comics/{projectId}/cancel", h.HandleCancel).Methods("POST", "OPTIONS")
	log.Println("✅ Comic routes registered: /generate-comic, /regenerate-panels, /health, /api/comics/{projectId}")
}

func writeJSON(w http.ResponseWriter, status int, body interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(body); err != nil {
		log.Printf("⚠️ Failed to write response: %v", err)
	}
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]interface{}{
		"success": false,
		"error":   message,
	})
}

// HandleGenerate - POST /generate-comic
func (h *Handler) HandleGenerate(w http.ResponseWriter, r *http.Request) {
	if r.Method == "OPTIONS" {
		w.WriteHeader(http.StatusOK)
		return
	}

	var req GenerateRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	resp, err := h.coordinator.Generate(r.Context(), &req)
	if err != nil {
		if errors.Is(err, ErrInvalidRequest) {
			writeError(w, http.StatusBadRequest, err.Error())
			return
		}
		log.Printf("❌ Pipeline failed: %v", err)
		if resp != nil {
			writeJSON(w, http.StatusInternalServerError, resp)
		} else {
			writeError(w, http.StatusInternalServerError, err.Error())
		}
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

// HandleRegenerate - POST /regenerate-panels
func (h *Handler) HandleRegenerate(w http.ResponseWriter, r *http.Request) {
	if r.Method == "OPTIONS" {
		w.WriteHeader(http.StatusOK)
		return
	}

	var req RegenerateRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	result, err := h.coordinator.Regenerate(r.Context(), &req)
	if err != nil {
		switch {
		case errors.Is(err, ErrInvalidRequest):
			writeError(w, http.StatusBadRequest, err.Error())
		case errors.Is(err, store.ErrNotFound):
			writeError(w, http.StatusNotFound, err.Error())
		default:
			log.Printf("❌ Regeneration failed: %v", err)
			writeError(w, http.StatusInternalServerError, err.Error())
		}
		return
	}
	writeJSON(w, http.StatusOK, result)
}

// HandleHealth - GET /health
func (h *Handler) HandleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]bool{"ok": true})
}

// HandleGetProject - GET /api/comics/{projectId}
func (h *Handler) HandleGetProject(w http.ResponseWriter, r *http.Request) {
	projectID := mux.Vars(r)["projectId"]
	project, err := h.coordinator.Project(projectID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			writeError(w, http.StatusNotFound, "project not found")
			return
		}
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, project)
}

// HandleCancel - POST /api/comics/{projectId}/cancel
func (h *Handler) HandleCancel(w http.ResponseWriter, r *http.Request) {
	if r.Method == "OPTIONS" {
		w.WriteHeader(http.StatusOK)
		return
	}

	projectID := mux.Vars(r)["projectId"]
	if err := h.coordinator.Cancel(r.Context(), projectID); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			writeError(w, http.StatusNotFound, "project not found")
			return
		}
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"success":   true,
		"projectId": projectID,
		"status":    "cancel_requested",
	})
}
