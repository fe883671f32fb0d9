package redis

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"
)

// defaultTTL страхует от вечно живых ключей, если инвалидация не дошла
// (например, процесс упал между коммитом и Invalidate).
const defaultTTL = 10 * time.Minute

type Client struct {
	cli *redis.Client
	ttl time.Duration
}

func New(ctx context.Context, url string, ttl time.Duration) (*Client, error) {
	opts, err := redis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("redis parse url: %w", err)
	}
	cli := redis.NewClient(opts)
	if err := cli.Ping(ctx).Err(); err != nil {
		if closeErr := cli.Close(); closeErr != nil {
			return nil, fmt.Errorf("redis ping: %w (close: %v)", err, closeErr)
		}
		return nil, fmt.Errorf("redis ping: %w", err)
	}
	if ttl <= 0 {
		ttl = defaultTTL
	}
	return &Client{cli: cli, ttl: ttl}, nil
}

func (c *Client) Close() error {
	return c.cli.Close()
}

func unreadKey(roomID, memberID string) string {
	return "unread:" + roomID + ":" + memberID
}

// GetUnread возвращает кешированный счётчик; ok=false — промах кеша.
func (c *Client) GetUnread(ctx context.Context, roomID, memberID string) (int, bool, error) {
	val, err := c.cli.Get(ctx, unreadKey(roomID, memberID)).Result()
	if err == redis.Nil {
		return 0, false, nil
	}
	if err != nil {
		return 0, false, fmt.Errorf("redis get unread: %w", err)
	}
	n, err := strconv.Atoi(val)
	if err != nil {
		// Битое значение — считаем промахом, ключ перезапишется.
		return 0, false, nil
	}
	return n, true, nil
}

func (c *Client) SetUnread(ctx context.Context, roomID, memberID string, count int) error {
	return c.cli.Set(ctx, unreadKey(roomID, memberID), strconv.Itoa(count), c.ttl).Err()
}

func (c *Client) Invalidate(ctx context.Context, roomID, memberID string) error {
	return c.cli.Del(ctx, unreadKey(roomID, memberID)).Err()
}
