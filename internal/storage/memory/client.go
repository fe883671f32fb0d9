package memory

import (
	"context"
	"sync"
	"time"
)

const defaultTTL = 10 * time.Minute

type item struct {
	count int
	exp   time.Time
}

// Client — in-memory реализация UnreadCache для режима -dev без Redis.
type Client struct {
	mu     sync.RWMutex
	counts map[string]item
	ttl    time.Duration
}

func New(ttl time.Duration) *Client {
	if ttl <= 0 {
		ttl = defaultTTL
	}
	return &Client{counts: make(map[string]item), ttl: ttl}
}

func (c *Client) Close() error { return nil }

func key(roomID, memberID string) string {
	return roomID + ":" + memberID
}

func (c *Client) GetUnread(ctx context.Context, roomID, memberID string) (int, bool, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	v, ok := c.counts[key(roomID, memberID)]
	if !ok || time.Now().After(v.exp) {
		return 0, false, nil
	}
	return v.count, true, nil
}

func (c *Client) SetUnread(ctx context.Context, roomID, memberID string, count int) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.counts[key(roomID, memberID)] = item{count: count, exp: time.Now().Add(c.ttl)}
	return nil
}

func (c *Client) Invalidate(ctx context.Context, roomID, memberID string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.counts, key(roomID, memberID))
	return nil
}
