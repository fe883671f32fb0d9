package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/chatserver/internal/logger"
	"github.com/chatserver/internal/model"
	"github.com/jackc/pgx/v5"
)

type MessageRepository struct {
	db DB
}

func NewMessageRepository(db DB) *MessageRepository {
	return &MessageRepository{db: db}
}

// WithTx возвращает копию репозитория, работающую внутри tx.
func (r *MessageRepository) WithTx(tx pgx.Tx) *MessageRepository {
	return &MessageRepository{db: tx}
}

func (r *MessageRepository) Create(ctx context.Context, m *model.Message) error {
	defer logger.DeferLogDuration("msg.Create", time.Now())()
	_, err := r.db.Exec(ctx,
		`INSERT INTO messages (id, room_id, sender_id, content, created_at)
		 VALUES ($1, $2, $3, $4, $5)`,
		m.ID, m.RoomID, m.SenderID, m.Content, m.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("msgRepo.Create: %w", err)
	}
	return nil
}

// ListByRoomAsc возвращает все сообщения комнаты от старых к новым.
// Порядок: (created_at, id) — id разрешает равные created_at детерминированно.
func (r *MessageRepository) ListByRoomAsc(ctx context.Context, roomID string) ([]model.Message, error) {
	defer logger.DeferLogDuration("msg.ListByRoomAsc", time.Now())()
	rows, err := r.db.Query(ctx,
		`SELECT m.id, m.room_id, m.sender_id, u.username, m.content, m.created_at
		 FROM messages m
		 JOIN members u ON u.id = m.sender_id
		 WHERE m.room_id = $1
		 ORDER BY m.created_at, m.id`, roomID,
	)
	if err != nil {
		return nil, fmt.Errorf("msgRepo.ListByRoomAsc query: %w", err)
	}
	defer rows.Close()

	messages := make([]model.Message, 0, 32)
	for rows.Next() {
		var m model.Message
		if err := rows.Scan(&m.ID, &m.RoomID, &m.SenderID, &m.SenderName, &m.Content, &m.CreatedAt); err != nil {
			return nil, fmt.Errorf("msgRepo.ListByRoomAsc scan: %w", err)
		}
		messages = append(messages, m)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("msgRepo.ListByRoomAsc rows: %w", err)
	}
	return messages, nil
}
