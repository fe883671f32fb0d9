package memory

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestClient_SetGetInvalidate(t *testing.T) {
	req := require.New(t)
	c := New(time.Minute)
	ctx := context.Background()

	_, ok, err := c.GetUnread(ctx, "room", "member")
	req.NoError(err)
	req.False(ok)

	req.NoError(c.SetUnread(ctx, "room", "member", 7))
	n, ok, err := c.GetUnread(ctx, "room", "member")
	req.NoError(err)
	req.True(ok)
	req.Equal(7, n)

	// Разные пары (room, member) не пересекаются.
	_, ok, err = c.GetUnread(ctx, "room", "other")
	req.NoError(err)
	req.False(ok)

	req.NoError(c.Invalidate(ctx, "room", "member"))
	_, ok, err = c.GetUnread(ctx, "room", "member")
	req.NoError(err)
	req.False(ok)
}

func TestClient_TTLExpiry(t *testing.T) {
	req := require.New(t)
	c := New(20 * time.Millisecond)
	ctx := context.Background()

	req.NoError(c.SetUnread(ctx, "room", "member", 3))
	_, ok, err := c.GetUnread(ctx, "room", "member")
	req.NoError(err)
	req.True(ok)

	time.Sleep(40 * time.Millisecond)
	_, ok, err = c.GetUnread(ctx, "room", "member")
	req.NoError(err)
	req.False(ok)
}
