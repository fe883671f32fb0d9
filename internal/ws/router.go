package ws

import (
	"context"
	"sync"
	"time"

	"github.com/chatserver/internal/logger"
	"github.com/chatserver/internal/model"
)

// MessageSender — операции конвейера сообщений, нужные ws-слою.
// Реализуется сервисным слоем; роутер не знает о БД.
type MessageSender interface {
	Send(ctx context.Context, roomID, senderID, content string) (*model.Message, error)
	MarkRead(ctx context.Context, roomID, memberID string) error
}

// Router — реестр подписчиков по комнатам. Подключение привязано к одной
// комнате на всё время жизни; Publish доставляет событие всем текущим
// подписчикам этой комнаты и никому больше.
type Router struct {
	mu       sync.RWMutex
	rooms    map[string]map[*Client]struct{}
	total    int
	maxConns int

	sender MessageSender

	register   chan *Client
	unregister chan *Client
	done       chan struct{}
}

func NewRouter(sender MessageSender, maxConns int) *Router {
	if maxConns <= 0 {
		maxConns = 10000
	}
	return &Router{
		rooms:      make(map[string]map[*Client]struct{}),
		maxConns:   maxConns,
		sender:     sender,
		register:   make(chan *Client, 64),
		unregister: make(chan *Client, 64),
		done:       make(chan struct{}),
	}
}

func (r *Router) Run(ctx context.Context) {
	defer close(r.done)
	for {
		select {
		case <-ctx.Done():
			r.shutdown()
			return
		case client := <-r.register:
			r.addClient(client)
		case client := <-r.unregister:
			r.removeClient(client)
		}
	}
}

func (r *Router) shutdown() {
	// Собираем клиентов под локом, сетевой I/O — строго вне мьютекса.
	r.mu.Lock()
	allClients := make([]*Client, 0, r.total)
	for _, clients := range r.rooms {
		for c := range clients {
			allClients = append(allClients, c)
		}
	}
	r.rooms = make(map[string]map[*Client]struct{})
	r.total = 0
	r.mu.Unlock()

	for _, c := range allClients {
		c.Close()
	}
	for _, c := range allClients {
		c.Wait()
	}
}

func (r *Router) addClient(c *Client) {
	r.mu.Lock()
	if r.total >= r.maxConns {
		r.mu.Unlock()
		logger.Errorf("ws connection limit reached (%d), rejecting member=%s room=%s", r.maxConns, c.memberID, c.roomID)
		c.Close()
		return
	}
	if _, ok := r.rooms[c.roomID]; !ok {
		r.rooms[c.roomID] = make(map[*Client]struct{})
	}
	r.rooms[c.roomID][c] = struct{}{}
	r.total++
	r.mu.Unlock()

	logger.Debugf("ws subscribed member=%s room=%s", c.memberID, c.roomID)
}

func (r *Router) removeClient(c *Client) {
	r.mu.Lock()
	clients, ok := r.rooms[c.roomID]
	if !ok {
		r.mu.Unlock()
		return
	}
	if _, exists := clients[c]; !exists {
		r.mu.Unlock()
		return
	}
	delete(clients, c)
	r.total--
	if len(clients) == 0 {
		delete(r.rooms, c.roomID)
	}
	r.mu.Unlock()

	// Network I/O outside the lock.
	c.Close()
	logger.Debugf("ws unsubscribed member=%s room=%s", c.memberID, c.roomID)
}

// HandleEvent dispatches incoming WebSocket frames.
func (r *Router) HandleEvent(ctx context.Context, c *Client, ev IncomingEvent) {
	switch ev.Type {
	case EventNewMessage:
		r.handleNewMessage(ctx, c, ev)
	case EventMessageRead:
		r.handleMessageRead(ctx, c)
	default:
		r.sendToClient(c, OutgoingEvent{Type: EventError, Payload: "unknown event type"})
	}
}

func (r *Router) handleNewMessage(ctx context.Context, c *Client, ev IncomingEvent) {
	defer logger.DeferLogDuration("ws.handleNewMessage", time.Now())()
	if ev.Content == "" {
		r.sendToClient(c, OutgoingEvent{Type: EventError, Payload: "content required"})
		return
	}

	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	// Трансляция подписчикам происходит внутри Send (через PublishMessage),
	// здесь её повторять нельзя.
	if _, err := r.sender.Send(ctx, c.roomID, c.memberID, ev.Content); err != nil {
		logger.Errorf("ws send message room=%s member=%s: %v", c.roomID, c.memberID, err)
		r.sendToClient(c, OutgoingEvent{Type: EventError, Payload: "failed to send message"})
	}
}

func (r *Router) handleMessageRead(ctx context.Context, c *Client) {
	defer logger.DeferLogDuration("ws.handleMessageRead", time.Now())()
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	if err := r.sender.MarkRead(ctx, c.roomID, c.memberID); err != nil {
		logger.Errorf("ws mark read room=%s member=%s: %v", c.roomID, c.memberID, err)
		return
	}

	out := OutgoingEvent{
		Type:    EventMessageRead,
		Payload: ReadPayload{RoomID: c.roomID, MemberID: c.memberID},
	}
	for _, target := range r.snapshot(c.roomID) {
		if target.memberID != c.memberID {
			r.sendToClient(target, out)
		}
	}
}

// PublishMessage доставляет закоммиченное сообщение подписчикам комнаты.
// Подписчики других комнат событие не видят.
func (r *Router) PublishMessage(roomID string, msg *model.Message) {
	out := OutgoingEvent{Type: EventNewMessage, Payload: msg}
	for _, c := range r.snapshot(roomID) {
		r.sendToClient(c, out)
	}
}

func (r *Router) snapshot(roomID string) []*Client {
	r.mu.RLock()
	defer r.mu.RUnlock()
	clients, ok := r.rooms[roomID]
	if !ok {
		return nil
	}
	targets := make([]*Client, 0, len(clients))
	for c := range clients {
		targets = append(targets, c)
	}
	return targets
}

func (r *Router) sendToClient(c *Client, ev OutgoingEvent) {
	select {
	case c.send <- ev:
	case <-c.done:
	default:
		// Backpressure: send buffer full, close slow client.
		logger.Errorf("ws send buffer full, closing slow client member=%s room=%s", c.memberID, c.roomID)
		c.Close()
	}
}

func (r *Router) Register(c *Client) {
	select {
	case r.register <- c:
	case <-r.done:
		c.Close()
	}
}

func (r *Router) Unregister(c *Client) {
	select {
	case r.unregister <- c:
	case <-r.done:
	}
}
