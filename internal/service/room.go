package service

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/chatserver/internal/logger"
	"github.com/chatserver/internal/model"
	"github.com/chatserver/internal/repository"
	"github.com/chatserver/internal/storage"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// RoomService управляет жизненным циклом комнат: создание, членство,
// удаление пустой группы. Идентификатор участника всегда приходит явным
// аргументом — никакого неявного "текущего пользователя".
type RoomService struct {
	pool         *pgxpool.Pool
	rooms        *repository.RoomRepository
	participants *repository.ParticipantRepository
	members      *repository.MemberRepository
	readMarks    *repository.ReadMarkRepository
	cache        storage.UnreadCache
}

func NewRoomService(
	pool *pgxpool.Pool,
	rooms *repository.RoomRepository,
	participants *repository.ParticipantRepository,
	members *repository.MemberRepository,
	readMarks *repository.ReadMarkRepository,
	cache storage.UnreadCache,
) *RoomService {
	return &RoomService{
		pool:         pool,
		rooms:        rooms,
		participants: participants,
		members:      members,
		readMarks:    readMarks,
		cache:        cache,
	}
}

// CreateGroupRoom создаёт групповую комнату и добавляет создателя как
// участника. Комната и строка участия пишутся одной транзакцией: комнаты
// без единого участника не существует даже мгновение.
func (s *RoomService) CreateGroupRoom(ctx context.Context, name, creatorID string) (*model.Room, error) {
	defer logger.DeferLogDuration("svc.CreateGroupRoom", time.Now())()
	name = strings.TrimSpace(name)
	if name == "" {
		return nil, fmt.Errorf("%w: room name required", ErrInvalidOperation)
	}
	if _, err := s.members.GetByID(ctx, creatorID); err != nil {
		return nil, fmt.Errorf("creator %s: %w", creatorID, err)
	}

	now := time.Now().UTC()
	room := &model.Room{
		ID:        uuid.New().String(),
		Name:      name,
		IsGroup:   true,
		CreatedBy: creatorID,
		CreatedAt: now,
	}
	err := repository.InTx(ctx, s.pool, func(tx pgx.Tx) error {
		if err := s.rooms.WithTx(tx).Create(ctx, room); err != nil {
			return err
		}
		return s.participants.WithTx(tx).Add(ctx, &model.Participant{
			RoomID:   room.ID,
			MemberID: creatorID,
			JoinedAt: now,
		})
	})
	if err != nil {
		return nil, err
	}
	return room, nil
}

// ListGroupRooms возвращает все групповые комнаты.
func (s *RoomService) ListGroupRooms(ctx context.Context) ([]model.RoomSummary, error) {
	return s.rooms.ListGroupRooms(ctx)
}

// JoinRoom добавляет участника в комнату. Идемпотентно: повторный вход —
// no-op. ErrNotFound, если комнаты или участника не существует.
func (s *RoomService) JoinRoom(ctx context.Context, roomID, memberID string) error {
	defer logger.DeferLogDuration("svc.JoinRoom", time.Now())()
	if _, err := s.rooms.GetByID(ctx, roomID); err != nil {
		return fmt.Errorf("room %s: %w", roomID, err)
	}
	if _, err := s.members.GetByID(ctx, memberID); err != nil {
		return fmt.Errorf("member %s: %w", memberID, err)
	}
	return s.participants.Add(ctx, &model.Participant{
		RoomID:   roomID,
		MemberID: memberID,
		JoinedAt: time.Now().UTC(),
	})
}

// LeaveRoom убирает участника из групповой комнаты; когда уходит последний,
// комната удаляется в той же транзакции. Блокировка строки комнаты
// (FOR UPDATE) сериализует конкурентные выходы: "я последний" наблюдает
// ровно один из них.
func (s *RoomService) LeaveRoom(ctx context.Context, roomID, memberID string) error {
	defer logger.DeferLogDuration("svc.LeaveRoom", time.Now())()
	return repository.InTx(ctx, s.pool, func(tx pgx.Tx) error {
		rooms := s.rooms.WithTx(tx)
		participants := s.participants.WithTx(tx)

		room, err := rooms.GetByIDForUpdate(ctx, roomID)
		if err != nil {
			return fmt.Errorf("room %s: %w", roomID, err)
		}
		if !room.IsGroup {
			return fmt.Errorf("%w: cannot leave a non-group room", ErrInvalidOperation)
		}
		if err := participants.Remove(ctx, roomID, memberID); err != nil {
			return fmt.Errorf("participant %s in room %s: %w", memberID, roomID, err)
		}
		remaining, err := participants.CountByRoom(ctx, roomID)
		if err != nil {
			return err
		}
		if remaining == 0 {
			logger.Infof("room %s is empty, deleting", roomID)
			return rooms.Delete(ctx, roomID)
		}
		return nil
	})
}

// ListMyRooms возвращает комнаты участника с числом непрочитанных.
// Счётчики читаются через кеш; промах добирается из read_marks.
func (s *RoomService) ListMyRooms(ctx context.Context, memberID string) ([]model.MyRoom, error) {
	defer logger.DeferLogDuration("svc.ListMyRooms", time.Now())()
	roomList, err := s.participants.RoomsByMember(ctx, memberID)
	if err != nil {
		return nil, err
	}

	result := make([]model.MyRoom, 0, len(roomList))
	for _, room := range roomList {
		unread, err := s.unreadCount(ctx, room.ID, memberID)
		if err != nil {
			return nil, err
		}
		result = append(result, model.MyRoom{
			RoomID:      room.ID,
			RoomName:    room.Name,
			IsGroup:     room.IsGroup,
			UnreadCount: unread,
		})
	}
	return result, nil
}

func (s *RoomService) unreadCount(ctx context.Context, roomID, memberID string) (int, error) {
	if s.cache != nil {
		if n, ok, err := s.cache.GetUnread(ctx, roomID, memberID); err != nil {
			// Кеш недоступен — не фатально, идём в БД.
			logger.Errorf("unread cache get room=%s member=%s: %v", roomID, memberID, err)
		} else if ok {
			return n, nil
		}
	}
	n, err := s.readMarks.CountUnread(ctx, roomID, memberID)
	if err != nil {
		return 0, err
	}
	if s.cache != nil {
		if err := s.cache.SetUnread(ctx, roomID, memberID, n); err != nil {
			logger.Errorf("unread cache set room=%s member=%s: %v", roomID, memberID, err)
		}
	}
	return n, nil
}
