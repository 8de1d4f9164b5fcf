package main

import (
	"context"
	"log"
	"net/http"

	"github.com/gorilla/mux"

	"comicgen-server/modules/comic"
	"comicgen-server/modules/common/cancel"
	"comicgen-server/modules/common/config"
	"comicgen-server/modules/common/llm"
	"comicgen-server/modules/common/redis"
	"comicgen-server/modules/common/storage"
	"comicgen-server/modules/common/store"
	"comicgen-server/modules/compose"
	"comicgen-server/modules/dialogue"
	"comicgen-server/modules/panels"
	"comicgen-server/modules/story"
	"comicgen-server/modules/worker"
)

const localUploadsDir = "data/uploads"

// enableCORS adds permissive CORS headers for the front-end.
func enableCORS(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, PUT, DELETE, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization")

		if r.Method == "OPTIONS" {
			w.WriteHeader(http.StatusOK)
			return
		}

		next.ServeHTTP(w, r)
	})
}

func buildLLMClient(cfg *config.Config) (llm.Client, error) {
	if cfg.MockMode {
		log.Println("🧪 Mock mode: using canned LLM responses")
		return &llm.MockClient{}, nil
	}
	return llm.NewOpenAIClient(cfg)
}

func buildProvider(ctx context.Context, cfg *config.Config) (panels.Provider, error) {
	if cfg.MockMode {
		log.Println("🧪 Mock mode: using canned panel images")
		return panels.NewMockProvider(nil), nil
	}
	switch cfg.ImageProvider {
	case "gemini":
		return panels.NewGeminiProvider(ctx, cfg)
	default:
		return panels.NewLeonardoProvider(cfg), nil
	}
}

func buildUploader(cfg *config.Config) storage.Uploader {
	if cfg.MockMode {
		return storage.NewLocalUploader(localUploadsDir, "/static")
	}
	return storage.NewSupabaseUploader()
}

func main() {
	cfg, err := config.LoadConfig()
	if err != nil {
		log.Fatalf("❌ Failed to load config: %v", err)
	}

	projectStore, err := store.New(cfg.ProjectsDir)
	if err != nil {
		log.Fatalf("❌ Failed to open project store: %v", err)
	}

	llmClient, err := buildLLMClient(cfg)
	if err != nil {
		log.Fatalf("❌ Failed to initialize LLM client: %v", err)
	}

	ctx := context.Background()
	provider, err := buildProvider(ctx, cfg)
	if err != nil {
		log.Fatalf("❌ Failed to initialize image provider: %v", err)
	}

	uploader := buildUploader(cfg)

	// Redis drives the async queue and cross-instance cancellation; without
	// it the server still works synchronously.
	rdb := redis.Connect(cfg)
	var cancels cancel.Manager
	if rdb != nil {
		cancels = cancel.NewRedisManager(rdb)
	} else {
		log.Println("⚠️ Redis unavailable, cancellation is process-local and the queue is disabled")
		cancels = cancel.NewMemoryManager()
	}

	coordinator := comic.NewCoordinator(
		projectStore,
		story.NewStructurer(llmClient),
		panels.NewWorker(provider, uploader, cancels, cfg),
		dialogue.NewGenerator(llmClient),
		compose.NewComposer(cfg),
		uploader,
		cancels,
	)

	r := mux.NewRouter()
	r.Use(enableCORS)

	comic.NewHandler(coordinator).RegisterRoutes(r)

	if rdb != nil {
		worker.NewHandler(rdb).RegisterRoutes(r)
		go worker.NewWorker(rdb, coordinator).Start()
	}

	// locally stored artwork in mock mode
	r.PathPrefix("/static/").Handler(
		http.StripPrefix("/static/", http.FileServer(http.Dir(localUploadsDir))))

	log.Printf("🚀 Comic generation server starting on port %s", cfg.Port)
	log.Printf("❤️  Health check: http://localhost:%s/health", cfg.Port)
	log.Printf("🎨 Generate: POST http://localhost:%s/generate-comic", cfg.Port)

	if err := http.ListenAndServe(":"+cfg.Port, r); err != nil {
		log.Fatalf("Server failed to start: %v", err)
	}
}
