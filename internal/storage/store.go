package storage

import "context"

// UnreadCache — кеш счётчиков непрочитанных сообщений для ListMyRooms.
// Реализации: redis.Client, memory.Client (для -dev без Redis).
// Источник истины — read_marks в БД; кеш инвалидируется при отправке
// сообщения и при MarkRead, поэтому устаревание ограничено TTL.
type UnreadCache interface {
	GetUnread(ctx context.Context, roomID, memberID string) (count int, ok bool, err error)
	SetUnread(ctx context.Context, roomID, memberID string, count int) error
	Invalidate(ctx context.Context, roomID, memberID string) error
	Close() error
}
