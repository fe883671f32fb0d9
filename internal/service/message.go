package service

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/chatserver/internal/logger"
	"github.com/chatserver/internal/model"
	"github.com/chatserver/internal/repository"
	"github.com/chatserver/internal/storage"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// Publisher доставляет закоммиченное сообщение подписчикам комнаты.
// Реализуется ws-роутером; сервисный слой о вебсокетах не знает.
type Publisher interface {
	PublishMessage(roomID string, msg *model.Message)
}

// PushNotifier получает уведомление о новом сообщении для офлайн-доставки.
// Вызовы fire-and-forget: отказ пуша не влияет на отправку.
type PushNotifier interface {
	NotifyNewMessage(roomID string, recipientIDs []string, msg *model.Message)
}

// MessageService — конвейер сообщений: запись, отметки прочтения,
// история, трансляция. Порядок трансляции в комнате совпадает с порядком
// коммитов: мьютекс комнаты держится от начала транзакции до публикации.
type MessageService struct {
	pool         *pgxpool.Pool
	rooms        *repository.RoomRepository
	participants *repository.ParticipantRepository
	members      *repository.MemberRepository
	messages     *repository.MessageRepository
	readMarks    *repository.ReadMarkRepository
	cache        storage.UnreadCache
	publisher    Publisher
	notifier     PushNotifier

	roomLocks sync.Map // roomID -> *sync.Mutex
}

func NewMessageService(
	pool *pgxpool.Pool,
	rooms *repository.RoomRepository,
	participants *repository.ParticipantRepository,
	members *repository.MemberRepository,
	messages *repository.MessageRepository,
	readMarks *repository.ReadMarkRepository,
	cache storage.UnreadCache,
) *MessageService {
	return &MessageService{
		pool:         pool,
		rooms:        rooms,
		participants: participants,
		members:      members,
		messages:     messages,
		readMarks:    readMarks,
		cache:        cache,
	}
}

// SetPublisher подключает доставку в реальном времени. Вызывается один раз
// при сборке приложения, до обслуживания запросов.
func (s *MessageService) SetPublisher(p Publisher) { s.publisher = p }

// SetNotifier подключает пуш-уведомления для офлайн-участников.
func (s *MessageService) SetNotifier(n PushNotifier) { s.notifier = n }

func (s *MessageService) roomLock(roomID string) *sync.Mutex {
	mu, _ := s.roomLocks.LoadOrStore(roomID, &sync.Mutex{})
	return mu.(*sync.Mutex)
}

// Send принимает сообщение отправителя в комнату. Атомарно пишет само
// сообщение и отметку прочтения для каждого участника на момент отправки
// (у отправителя — сразу прочитано). После коммита публикует сообщение
// подписчикам комнаты; счётчики непрочитанного получателей сбрасываются
// в кеше.
func (s *MessageService) Send(ctx context.Context, roomID, senderID, content string) (*model.Message, error) {
	defer logger.DeferLogDuration("svc.Send", time.Now())()
	if content == "" {
		return nil, fmt.Errorf("%w: empty message content", ErrInvalidOperation)
	}
	if _, err := s.rooms.GetByID(ctx, roomID); err != nil {
		return nil, fmt.Errorf("room %s: %w", roomID, err)
	}
	sender, err := s.members.GetByID(ctx, senderID)
	if err != nil {
		return nil, fmt.Errorf("sender %s: %w", senderID, err)
	}
	ok, err := s.participants.Exists(ctx, roomID, senderID)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, fmt.Errorf("%w: sender %s is not in room %s", ErrForbidden, senderID, roomID)
	}

	// Мьютекс комнаты держится через коммит и публикацию: два конкурентных
	// Send в одну комнату транслируются в порядке коммитов. created_at
	// выставляется под локом, чтобы порядок истории совпадал с порядком
	// коммитов.
	mu := s.roomLock(roomID)
	mu.Lock()
	defer mu.Unlock()

	msg := &model.Message{
		ID:         uuid.New().String(),
		RoomID:     roomID,
		SenderID:   senderID,
		SenderName: sender.Username,
		Content:    content,
		CreatedAt:  time.Now().UTC(),
	}

	var recipients []string
	err = repository.InTx(ctx, s.pool, func(tx pgx.Tx) error {
		if err := s.messages.WithTx(tx).Create(ctx, msg); err != nil {
			return err
		}
		memberIDs, err := s.participants.WithTx(tx).MemberIDs(ctx, roomID)
		if err != nil {
			return err
		}
		marks := make([]model.ReadMark, 0, len(memberIDs))
		for _, id := range memberIDs {
			marks = append(marks, model.ReadMark{
				RoomID:    roomID,
				MemberID:  id,
				MessageID: msg.ID,
				IsRead:    id == senderID,
			})
			if id != senderID {
				recipients = append(recipients, id)
			}
		}
		return s.readMarks.WithTx(tx).CreateBatch(ctx, marks)
	})
	if err != nil {
		return nil, err
	}

	if s.publisher != nil {
		s.publisher.PublishMessage(roomID, msg)
	}
	s.afterSend(ctx, roomID, recipients, msg)
	return msg, nil
}

// afterSend — пост-коммитные побочные эффекты: сброс кеша непрочитанного
// у получателей и пуш. Ошибки здесь логируются, но не отменяют отправку.
func (s *MessageService) afterSend(ctx context.Context, roomID string, recipients []string, msg *model.Message) {
	if s.cache != nil {
		for _, id := range recipients {
			if err := s.cache.Invalidate(ctx, roomID, id); err != nil {
				logger.Errorf("unread cache invalidate room=%s member=%s: %v", roomID, id, err)
			}
		}
	}
	if s.notifier != nil && len(recipients) > 0 {
		s.notifier.NotifyNewMessage(roomID, recipients, msg)
	}
}

// History возвращает сообщения комнаты от старых к новым. Доступ только
// участникам: для всех прочих — ErrForbidden.
func (s *MessageService) History(ctx context.Context, roomID, memberID string) ([]model.MessageView, error) {
	defer logger.DeferLogDuration("svc.History", time.Now())()
	if _, err := s.rooms.GetByID(ctx, roomID); err != nil {
		return nil, fmt.Errorf("room %s: %w", roomID, err)
	}
	ok, err := s.participants.Exists(ctx, roomID, memberID)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, fmt.Errorf("%w: member %s is not in room %s", ErrForbidden, memberID, roomID)
	}

	messages, err := s.messages.ListByRoomAsc(ctx, roomID)
	if err != nil {
		return nil, err
	}
	views := make([]model.MessageView, 0, len(messages))
	for _, m := range messages {
		views = append(views, model.MessageView{
			SenderIdentity: m.SenderName,
			Content:        m.Content,
		})
	}
	return views, nil
}

// MarkRead отмечает все сообщения комнаты прочитанными для участника.
// Идемпотентно: повторный вызов ничего не меняет.
func (s *MessageService) MarkRead(ctx context.Context, roomID, memberID string) error {
	defer logger.DeferLogDuration("svc.MarkRead", time.Now())()
	if _, err := s.rooms.GetByID(ctx, roomID); err != nil {
		return fmt.Errorf("room %s: %w", roomID, err)
	}
	n, err := s.readMarks.MarkAllRead(ctx, roomID, memberID)
	if err != nil {
		return err
	}
	if n > 0 {
		logger.Debugf("member %s read %d messages in room %s", memberID, n, roomID)
	}
	if s.cache != nil {
		if err := s.cache.Invalidate(ctx, roomID, memberID); err != nil {
			logger.Errorf("unread cache invalidate room=%s member=%s: %v", roomID, memberID, err)
		}
	}
	return nil
}

// IsParticipant проверяет членство; ErrNotFound, если комнаты нет.
func (s *MessageService) IsParticipant(ctx context.Context, roomID, memberID string) (bool, error) {
	if _, err := s.rooms.GetByID(ctx, roomID); err != nil {
		return false, fmt.Errorf("room %s: %w", roomID, err)
	}
	return s.participants.Exists(ctx, roomID, memberID)
}
