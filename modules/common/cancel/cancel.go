package cancel

import (
	"context"
	"log"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
)

// Manager tracks user cancellation requests for running comic pipelines.
// The pipeline polls IsCancelled between stages and between panels; a set
// flag turns the project status into user_cancelled while keeping whatever
// was already generated.
type Manager interface {
	RequestCancel(ctx context.Context, projectID string) error
	IsCancelled(ctx context.Context, projectID string) bool
	Clear(ctx context.Context, projectID string)
}

const cancelKeyPrefix = "comic:cancel:"

// cancel flags expire on their own so a crashed pipeline cannot leave a
// project permanently uncancellable
const cancelTTL = 30 * time.Minute

// RedisManager stores cancel flags in Redis so cancellation works across
// multiple server instances sharing the queue.
type RedisManager struct {
	client *redis.Client
}

func NewRedisManager(client *redis.Client) *RedisManager {
	return &RedisManager{client: client}
}

func (m *RedisManager) RequestCancel(ctx context.Context, projectID string) error {
	if err := m.client.Set(ctx, cancelKeyPrefix+projectID, "1", cancelTTL).Err(); err != nil {
		log.Printf("❌ Failed to set cancel flag for %s: %v", projectID, err)
		return err
	}
	log.Printf("🛑 Cancel requested for project %s", projectID)
	return nil
}

func (m *RedisManager) IsCancelled(ctx context.Context, projectID string) bool {
	n, err := m.client.Exists(ctx, cancelKeyPrefix+projectID).Result()
	if err != nil {
		log.Printf("⚠️ Cancel flag check failed for %s: %v", projectID, err)
		return false
	}
	return n > 0
}

func (m *RedisManager) Clear(ctx context.Context, projectID string) {
	m.client.Del(ctx, cancelKeyPrefix+projectID)
}

// MemoryManager is the in-process fallback used in mock mode or when Redis
// is unavailable.
type MemoryManager struct {
	mu    sync.Mutex
	flags map[string]bool
}

func NewMemoryManager() *MemoryManager {
	return &MemoryManager{flags: make(map[string]bool)}
}

func (m *MemoryManager) RequestCancel(_ context.Context, projectID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.flags[projectID] = true
	log.Printf("🛑 Cancel requested for project %s", projectID)
	return nil
}

func (m *MemoryManager) IsCancelled(_ context.Context, projectID string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.flags[projectID]
}

func (m *MemoryManager) Clear(_ context.Context, projectID string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.flags, projectID)
}
