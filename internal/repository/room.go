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

type RoomRepository struct {
	db DB
}

func NewRoomRepository(db DB) *RoomRepository {
	return &RoomRepository{db: db}
}

// WithTx возвращает копию репозитория, работающую внутри tx.
func (r *RoomRepository) WithTx(tx pgx.Tx) *RoomRepository {
	return &RoomRepository{db: tx}
}

func (r *RoomRepository) Create(ctx context.Context, room *model.Room) error {
	defer logger.DeferLogDuration("room.Create", time.Now())()
	_, err := r.db.Exec(ctx,
		`INSERT INTO rooms (id, name, is_group, created_by, created_at)
		 VALUES ($1, $2, $3, $4, $5)`,
		room.ID, room.Name, room.IsGroup, room.CreatedBy, room.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("roomRepo.Create: %w", err)
	}
	return nil
}

func (r *RoomRepository) GetByID(ctx context.Context, id string) (*model.Room, error) {
	defer logger.DeferLogDuration("room.GetByID", time.Now())()
	return r.get(ctx, id, false)
}

// GetByIDForUpdate блокирует строку комнаты (SELECT ... FOR UPDATE).
// Используется в LeaveRoom: два конкурентных выхода "последнего участника"
// сериализуются на этой блокировке, и удаление комнаты срабатывает один раз.
// Вызывать только внутри транзакции.
func (r *RoomRepository) GetByIDForUpdate(ctx context.Context, id string) (*model.Room, error) {
	defer logger.DeferLogDuration("room.GetByIDForUpdate", time.Now())()
	return r.get(ctx, id, true)
}

func (r *RoomRepository) get(ctx context.Context, id string, forUpdate bool) (*model.Room, error) {
	sql := `SELECT id, name, is_group, created_by, created_at FROM rooms WHERE id = $1`
	if forUpdate {
		sql += ` FOR UPDATE`
	}
	room := &model.Room{}
	err := r.db.QueryRow(ctx, sql, id).
		Scan(&room.ID, &room.Name, &room.IsGroup, &room.CreatedBy, &room.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("roomRepo.get: %w", err)
	}
	return room, nil
}

func (r *RoomRepository) ListGroupRooms(ctx context.Context) ([]model.RoomSummary, error) {
	defer logger.DeferLogDuration("room.ListGroupRooms", time.Now())()
	rows, err := r.db.Query(ctx,
		`SELECT id, name FROM rooms WHERE is_group = TRUE ORDER BY created_at, id`,
	)
	if err != nil {
		return nil, fmt.Errorf("roomRepo.ListGroupRooms query: %w", err)
	}
	defer rows.Close()

	summaries := make([]model.RoomSummary, 0, 16)
	for rows.Next() {
		var s model.RoomSummary
		if err := rows.Scan(&s.RoomID, &s.RoomName); err != nil {
			return nil, fmt.Errorf("roomRepo.ListGroupRooms scan: %w", err)
		}
		summaries = append(summaries, s)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("roomRepo.ListGroupRooms rows: %w", err)
	}
	return summaries, nil
}

// Delete удаляет комнату; participants/messages/read_marks уходят каскадом.
func (r *RoomRepository) Delete(ctx context.Context, id string) error {
	defer logger.DeferLogDuration("room.Delete", time.Now())()
	_, err := r.db.Exec(ctx, `DELETE FROM rooms WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("roomRepo.Delete: %w", err)
	}
	return nil
}
