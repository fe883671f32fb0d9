package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/chatserver/internal/logger"
	"github.com/chatserver/internal/model"
	"github.com/jackc/pgx/v5"
)

type ReadMarkRepository struct {
	db DB
}

func NewReadMarkRepository(db DB) *ReadMarkRepository {
	return &ReadMarkRepository{db: db}
}

// WithTx возвращает копию репозитория, работающую внутри tx.
func (r *ReadMarkRepository) WithTx(tx pgx.Tx) *ReadMarkRepository {
	return &ReadMarkRepository{db: tx}
}

// CreateBatch вставляет отметки одним batch-запросом (одна на участника
// на момент отправки сообщения). Вызывается в транзакции отправки: без
// сообщения отметок не бывает, без отметок сообщение не коммитится.
func (r *ReadMarkRepository) CreateBatch(ctx context.Context, marks []model.ReadMark) error {
	defer logger.DeferLogDuration("readmark.CreateBatch", time.Now())()
	if len(marks) == 0 {
		return nil
	}
	batch := &pgx.Batch{}
	for _, m := range marks {
		batch.Queue(
			`INSERT INTO read_marks (room_id, member_id, message_id, is_read)
			 VALUES ($1, $2, $3, $4)`,
			m.RoomID, m.MemberID, m.MessageID, m.IsRead,
		)
	}
	br := r.db.SendBatch(ctx, batch)
	defer br.Close()
	for range marks {
		if _, err := br.Exec(); err != nil {
			return fmt.Errorf("readmarkRepo.CreateBatch: %w", err)
		}
	}
	return nil
}

// MarkAllRead переводит все непрочитанные отметки участника в комнате в
// прочитанные. Обратного перехода нет: затрагиваются только is_read = FALSE.
// Возвращает число обновлённых строк; 0 — не ошибка (идемпотентность).
func (r *ReadMarkRepository) MarkAllRead(ctx context.Context, roomID, memberID string) (int64, error) {
	defer logger.DeferLogDuration("readmark.MarkAllRead", time.Now())()
	tag, err := r.db.Exec(ctx,
		`UPDATE read_marks SET is_read = TRUE
		 WHERE room_id = $1 AND member_id = $2 AND is_read = FALSE`,
		roomID, memberID,
	)
	if err != nil {
		return 0, fmt.Errorf("readmarkRepo.MarkAllRead: %w", err)
	}
	return tag.RowsAffected(), nil
}

func (r *ReadMarkRepository) CountUnread(ctx context.Context, roomID, memberID string) (int, error) {
	defer logger.DeferLogDuration("readmark.CountUnread", time.Now())()
	var count int
	err := r.db.QueryRow(ctx,
		`SELECT COUNT(*) FROM read_marks
		 WHERE room_id = $1 AND member_id = $2 AND is_read = FALSE`,
		roomID, memberID,
	).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("readmarkRepo.CountUnread: %w", err)
	}
	return count, nil
}

// CountByMessage — число отметок у сообщения (снимок участников на момент
// отправки); используется проверками целостности в тестах и админке.
func (r *ReadMarkRepository) CountByMessage(ctx context.Context, messageID string) (int, error) {
	defer logger.DeferLogDuration("readmark.CountByMessage", time.Now())()
	var count int
	err := r.db.QueryRow(ctx,
		`SELECT COUNT(*) FROM read_marks WHERE message_id = $1`, messageID,
	).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("readmarkRepo.CountByMessage: %w", err)
	}
	return count, nil
}

// GetMark возвращает отметку по (message, member).
func (r *ReadMarkRepository) GetMark(ctx context.Context, messageID, memberID string) (*model.ReadMark, error) {
	defer logger.DeferLogDuration("readmark.GetMark", time.Now())()
	m := &model.ReadMark{}
	err := r.db.QueryRow(ctx,
		`SELECT room_id, member_id, message_id, is_read
		 FROM read_marks WHERE message_id = $1 AND member_id = $2`,
		messageID, memberID,
	).Scan(&m.RoomID, &m.MemberID, &m.MessageID, &m.IsRead)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("readmarkRepo.GetMark: %w", err)
	}
	return m, nil
}
