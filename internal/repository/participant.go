package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/chatserver/internal/logger"
	"github.com/chatserver/internal/model"
	"github.com/jackc/pgx/v5"
)

type ParticipantRepository struct {
	db DB
}

func NewParticipantRepository(db DB) *ParticipantRepository {
	return &ParticipantRepository{db: db}
}

// WithTx возвращает копию репозитория, работающую внутри tx.
func (r *ParticipantRepository) WithTx(tx pgx.Tx) *ParticipantRepository {
	return &ParticipantRepository{db: tx}
}

// Add добавляет участника в комнату. Идемпотентно: повторное добавление
// той же пары (room, member) — no-op (ON CONFLICT DO NOTHING).
func (r *ParticipantRepository) Add(ctx context.Context, p *model.Participant) error {
	defer logger.DeferLogDuration("participant.Add", time.Now())()
	_, err := r.db.Exec(ctx,
		`INSERT INTO participants (room_id, member_id, joined_at)
		 VALUES ($1, $2, $3) ON CONFLICT DO NOTHING`,
		p.RoomID, p.MemberID, p.JoinedAt,
	)
	if err != nil {
		return fmt.Errorf("participantRepo.Add: %w", err)
	}
	return nil
}

// Remove удаляет участника; ErrNotFound, если строки не было.
func (r *ParticipantRepository) Remove(ctx context.Context, roomID, memberID string) error {
	defer logger.DeferLogDuration("participant.Remove", time.Now())()
	tag, err := r.db.Exec(ctx,
		`DELETE FROM participants WHERE room_id = $1 AND member_id = $2`,
		roomID, memberID,
	)
	if err != nil {
		return fmt.Errorf("participantRepo.Remove: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (r *ParticipantRepository) Exists(ctx context.Context, roomID, memberID string) (bool, error) {
	defer logger.DeferLogDuration("participant.Exists", time.Now())()
	var exists bool
	err := r.db.QueryRow(ctx,
		`SELECT EXISTS(SELECT 1 FROM participants WHERE room_id = $1 AND member_id = $2)`,
		roomID, memberID,
	).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("participantRepo.Exists: %w", err)
	}
	return exists, nil
}

// MemberIDs возвращает снимок текущих участников комнаты.
func (r *ParticipantRepository) MemberIDs(ctx context.Context, roomID string) ([]string, error) {
	defer logger.DeferLogDuration("participant.MemberIDs", time.Now())()
	rows, err := r.db.Query(ctx,
		`SELECT member_id FROM participants WHERE room_id = $1`, roomID,
	)
	if err != nil {
		return nil, fmt.Errorf("participantRepo.MemberIDs query: %w", err)
	}
	defer rows.Close()

	ids := make([]string, 0, 8)
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("participantRepo.MemberIDs scan: %w", err)
		}
		ids = append(ids, id)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("participantRepo.MemberIDs rows: %w", err)
	}
	return ids, nil
}

func (r *ParticipantRepository) CountByRoom(ctx context.Context, roomID string) (int, error) {
	defer logger.DeferLogDuration("participant.CountByRoom", time.Now())()
	var count int
	err := r.db.QueryRow(ctx,
		`SELECT COUNT(*) FROM participants WHERE room_id = $1`, roomID,
	).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("participantRepo.CountByRoom: %w", err)
	}
	return count, nil
}

// RoomsByMember возвращает комнаты, где состоит участник, в порядке вступления.
func (r *ParticipantRepository) RoomsByMember(ctx context.Context, memberID string) ([]model.Room, error) {
	defer logger.DeferLogDuration("participant.RoomsByMember", time.Now())()
	rows, err := r.db.Query(ctx,
		`SELECT r.id, r.name, r.is_group, r.created_by, r.created_at
		 FROM rooms r
		 JOIN participants p ON p.room_id = r.id
		 WHERE p.member_id = $1
		 ORDER BY p.joined_at, r.id`, memberID,
	)
	if err != nil {
		return nil, fmt.Errorf("participantRepo.RoomsByMember query: %w", err)
	}
	defer rows.Close()

	roomList := make([]model.Room, 0, 16)
	for rows.Next() {
		var room model.Room
		if err := rows.Scan(&room.ID, &room.Name, &room.IsGroup, &room.CreatedBy, &room.CreatedAt); err != nil {
			return nil, fmt.Errorf("participantRepo.RoomsByMember scan: %w", err)
		}
		roomList = append(roomList, room)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("participantRepo.RoomsByMember rows: %w", err)
	}
	return roomList, nil
}
