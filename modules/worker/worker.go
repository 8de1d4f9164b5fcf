package worker

import (
	"context"
	"encoding/json"
	"log"
	"time"

	"github.com/redis/go-redis/v9"

	"comicgen-server/modules/comic"
)

const queueKey = "comics:queue"
const jobKeyPrefix = "comics:job:"
const jobTTL = 24 * time.Hour

// job is the queued form of a generation request.
type job struct {
	JobID   string                `json:"jobId"`
	Request comic.GenerateRequest `json:"request"`
}

// jobStatus is what GET /api/jobs/{jobId} returns.
type jobStatus struct {
	JobID      string                  `json:"jobId"`
	Status     string                  `json:"status"`
	EnqueuedAt time.Time               `json:"enqueuedAt"`
	Result     *comic.GenerateResponse `json:"result,omitempty"`
	Error      string                  `json:"error,omitempty"`
}

// Worker drains the comics queue and runs each job through the pipeline.
type Worker struct {
	rdb         *redis.Client
	coordinator *comic.Coordinator
}

func NewWorker(rdb *redis.Client, coordinator *comic.Coordinator) *Worker {
	return &Worker{rdb: rdb, coordinator: coordinator}
}

// Start blocks on the queue forever. Run it in its own goroutine.
func (w *Worker) Start() {
	log.Printf("👷 Comic worker started, watching %s", queueKey)
	ctx := context.Background()

	for {
		result, err := w.rdb.BRPop(ctx, 0, queueKey).Result()
		if err != nil {
			log.Printf("❌ Queue BRPOP error: %v", err)
			time.Sleep(5 * time.Second)
			continue
		}
		if len(result) < 2 {
			continue
		}

		var j job
		if err := json.Unmarshal([]byte(result[1]), &j); err != nil {
			log.Printf("❌ Malformed queue entry discarded: %v", err)
			continue
		}
		w.process(ctx, &j)
	}
}

func (w *Worker) process(ctx context.Context, j *job) {
	log.Printf("👷 Processing job %s", j.JobID)
	w.setStatus(ctx, j.JobID, &jobStatus{JobID: j.JobID, Status: "processing", EnqueuedAt: time.Now()})

	resp, err := w.coordinator.Generate(ctx, &j.Request)
	status := &jobStatus{JobID: j.JobID, EnqueuedAt: time.Now(), Result: resp}
	if err != nil {
		status.Status = "failed"
		status.Error = err.Error()
		log.Printf("❌ Job %s failed: %v", j.JobID, err)
	} else {
		status.Status = resp.Status
		log.Printf("✅ Job %s finished: %s", j.JobID, resp.Status)
	}
	w.setStatus(ctx, j.JobID, status)
}

func (w *Worker) setStatus(ctx context.Context, jobID string, status *jobStatus) {
	data, err := json.Marshal(status)
	if err != nil {
		log.Printf("⚠️ Failed to encode job status: %v", err)
		return
	}
	if err := w.rdb.Set(ctx, jobKeyPrefix+jobID, data, jobTTL).Err(); err != nil {
		log.Printf("⚠️ Failed to store job status: %v", err)
	}
}
