package remind

import (
	"context"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
)

// Window is the rolling interval during which at most one reminder may be
// sent per debt, measured from the previous send rather than a calendar day.
const Window = 24 * time.Hour

// Throttle answers whether a reminder for the given debt may be sent now.
// A true result claims the slot, so callers must only ask when they intend
// to send.
type Throttle interface {
	Allow(ctx context.Context, debtID string) (bool, error)
}

// RedisThrottle claims the slot with SET NX EX so the window survives
// restarts and is shared across replicas.
type RedisThrottle struct {
	client *redis.Client
}

func NewRedisThrottle(client *redis.Client) *RedisThrottle {
	return &RedisThrottle{client: client}
}

func (t *RedisThrottle) Allow(ctx context.Context, debtID string) (bool, error) {
	return t.client.SetNX(ctx, "remind:"+debtID, "1", Window).Result()
}

// MemoryThrottle is the in-process fallback for dev/demo mode. The window
// resets on restart.
type MemoryThrottle struct {
	mu   sync.Mutex
	last map[string]time.Time
	now  func() time.Time
}

func NewMemoryThrottle() *MemoryThrottle {
	return &MemoryThrottle{
		last: map[string]time.Time{},
		now:  func() time.Time { return time.Now().UTC() },
	}
}

func (t *MemoryThrottle) Allow(ctx context.Context, debtID string) (bool, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	now := t.now()
	if sent, ok := t.last[debtID]; ok && now.Sub(sent) < Window {
		return false, nil
	}
	t.last[debtID] = now
	return true, nil
}
