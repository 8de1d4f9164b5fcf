package worker

import (
	"encoding/json"
	"log"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/mux"
	"github.com/redis/go-redis/v9"
)

// Handler exposes the async variant of comic generation: enqueue a request,
// poll its job status.
type Handler struct {
	rdb *redis.Client
}

func NewHandler(rdb *redis.Client) *Handler {
	return &Handler{rdb: rdb}
}

func (h *Handler) RegisterRoutes(r *mux.Router) {
	r.HandleFunc("/api/enqueue-comic", h.HandleEnqueue).Methods("POST", "OPTIONS")
	r.HandleFunc("/api/jobs/{jobId}", h.HandleJobStatus).Methods("GET")
	log.Println("✅ Queue routes registered: /api/enqueue-comic, /api/jobs/{jobId}")
}

// HandleEnqueue - POST /api/enqueue-comic
func (h *Handler) HandleEnqueue(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	if r.Method == "OPTIONS" {
		w.WriteHeader(http.StatusOK)
		return
	}

	var j job
	if err := json.NewDecoder(r.Body).Decode(&j.Request); err != nil {
		w.WriteHeader(http.StatusBadRequest)
		json.NewEncoder(w).Encode(map[string]interface{}{"success": false, "error": "invalid request body"})
		return
	}
	if strings.TrimSpace(j.Request.Prompt) == "" {
		w.WriteHeader(http.StatusBadRequest)
		json.NewEncoder(w).Encode(map[string]interface{}{"success": false, "error": "prompt is required"})
		return
	}
	j.JobID = "job_" + uuid.NewString()

	data, err := json.Marshal(j)
	if err != nil {
		w.WriteHeader(http.StatusInternalServerError)
		json.NewEncoder(w).Encode(map[string]interface{}{"success": false, "error": err.Error()})
		return
	}

	ctx := r.Context()
	if err := h.rdb.LPush(ctx, queueKey, data).Err(); err != nil {
		log.Printf("❌ Queue LPUSH failed: %v", err)
		w.WriteHeader(http.StatusInternalServerError)
		json.NewEncoder(w).Encode(map[string]interface{}{"success": false, "error": err.Error()})
		return
	}

	queueLen, _ := h.rdb.LLen(ctx, queueKey).Result()
	pending := &jobStatus{JobID: j.JobID, Status: "queued", EnqueuedAt: time.Now()}
	if statusData, err := json.Marshal(pending); err == nil {
		h.rdb.Set(ctx, jobKeyPrefix+j.JobID, statusData, jobTTL)
	}

	log.Printf("📥 Job %s enqueued (position: %d)", j.JobID, queueLen)
	json.NewEncoder(w).Encode(map[string]interface{}{
		"success":       true,
		"jobId":         j.JobID,
		"queue":         queueKey,
		"queuePosition": queueLen,
	})
}

// HandleJobStatus - GET /api/jobs/{jobId}
func (h *Handler) HandleJobStatus(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	jobID := mux.Vars(r)["jobId"]

	data, err := h.rdb.Get(r.Context(), jobKeyPrefix+jobID).Bytes()
	if err == redis.Nil {
		w.WriteHeader(http.StatusNotFound)
		json.NewEncoder(w).Encode(map[string]interface{}{"success": false, "error": "job not found"})
		return
	}
	if err != nil {
		w.WriteHeader(http.StatusInternalServerError)
		json.NewEncoder(w).Encode(map[string]interface{}{"success": false, "error": err.Error()})
		return
	}
	w.Write(data)
}
