package ws

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/require"

	"github.com/chatserver/internal/model"
)

// fakeSender записывает вызовы конвейера сообщений вместо похода в БД.
type fakeSender struct {
	mu       sync.Mutex
	sent     []string
	read     []string
	router   *Router
	sendFail bool
}

func (f *fakeSender) Send(ctx context.Context, roomID, senderID, content string) (*model.Message, error) {
	f.mu.Lock()
	f.sent = append(f.sent, content)
	f.mu.Unlock()
	if f.sendFail {
		return nil, fmt.Errorf("boom")
	}
	msg := &model.Message{
		ID:       uuid.New().String(),
		RoomID:   roomID,
		SenderID: senderID,
		Content:  content,
	}
	// Как в боевом конвейере: публикация после записи.
	if f.router != nil {
		f.router.PublishMessage(roomID, msg)
	}
	return msg, nil
}

func (f *fakeSender) MarkRead(ctx context.Context, roomID, memberID string) error {
	f.mu.Lock()
	f.read = append(f.read, roomID+":"+memberID)
	f.mu.Unlock()
	return nil
}

func (f *fakeSender) sentContents() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.sent...)
}

type testServer struct {
	router *Router
	srv    *httptest.Server
	cancel context.CancelFunc
}

// newTestServer поднимает httptest-сервер, апгрейдящий /ws/{roomId}?member=...
// в подключение, подписанное на комнату.
func newTestServer(t *testing.T, sender MessageSender, maxConns int) *testServer {
	t.Helper()
	router := NewRouter(sender, maxConns)
	ctx, cancel := context.WithCancel(context.Background())
	go router.Run(ctx)

	upgrader := websocket.Upgrader{CheckOrigin: func(*http.Request) bool { return true }}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		roomID := strings.TrimPrefix(r.URL.Path, "/ws/")
		memberID := r.URL.Query().Get("member")
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		clientCtx, clientCancel := context.WithCancel(context.Background())
		client := NewClient(router, conn, roomID, memberID)
		client.Start(clientCtx, clientCancel)
		router.Register(client)
	}))

	ts := &testServer{router: router, srv: srv, cancel: cancel}
	t.Cleanup(func() {
		cancel()
		srv.Close()
	})
	return ts
}

func (ts *testServer) dial(t *testing.T, roomID, memberID string) *websocket.Conn {
	t.Helper()
	url := "ws" + strings.TrimPrefix(ts.srv.URL, "http") + "/ws/" + roomID + "?member=" + memberID
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })
	return conn
}

func waitSubscribers(t *testing.T, r *Router, roomID string, n int) {
	t.Helper()
	require.Eventually(t, func() bool {
		return len(r.snapshot(roomID)) == n
	}, 2*time.Second, 10*time.Millisecond)
}

func readEvent(t *testing.T, conn *websocket.Conn) OutgoingEvent {
	t.Helper()
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	var ev OutgoingEvent
	_, raw, err := conn.ReadMessage()
	require.NoError(t, err)
	require.NoError(t, json.Unmarshal(raw, &ev))
	return ev
}

func TestRouter_PublishReachesOnlyRoomSubscribers(t *testing.T) {
	req := require.New(t)
	sender := &fakeSender{}
	ts := newTestServer(t, sender, 0)
	sender.router = ts.router

	roomA := uuid.New().String()
	roomB := uuid.New().String()
	connA := ts.dial(t, roomA, "alice")
	connB := ts.dial(t, roomB, "bob")
	waitSubscribers(t, ts.router, roomA, 1)
	waitSubscribers(t, ts.router, roomB, 1)

	ts.router.PublishMessage(roomA, &model.Message{ID: "m1", RoomID: roomA, Content: "only A"})

	ev := readEvent(t, connA)
	req.Equal(EventNewMessage, ev.Type)

	// Подписчик другой комнаты ничего не получает.
	req.NoError(connB.SetReadDeadline(time.Now().Add(300 * time.Millisecond)))
	_, _, err := connB.ReadMessage()
	req.Error(err)
}

func TestRouter_InboundMessageGoesThroughSender(t *testing.T) {
	req := require.New(t)
	sender := &fakeSender{}
	ts := newTestServer(t, sender, 0)
	sender.router = ts.router

	roomID := uuid.New().String()
	connA := ts.dial(t, roomID, "alice")
	connB := ts.dial(t, roomID, "bob")
	waitSubscribers(t, ts.router, roomID, 2)

	frame, _ := json.Marshal(IncomingEvent{Type: EventNewMessage, Content: "hi room"})
	req.NoError(connA.WriteMessage(websocket.TextMessage, frame))

	// Оба подписчика получают опубликованное сообщение.
	for _, conn := range []*websocket.Conn{connA, connB} {
		ev := readEvent(t, conn)
		req.Equal(EventNewMessage, ev.Type)
	}
	req.Equal([]string{"hi room"}, sender.sentContents())
}

func TestRouter_PerSubscriberOrderPreserved(t *testing.T) {
	req := require.New(t)
	sender := &fakeSender{}
	ts := newTestServer(t, sender, 0)

	roomID := uuid.New().String()
	conn := ts.dial(t, roomID, "alice")
	waitSubscribers(t, ts.router, roomID, 1)

	const n = 50
	for i := 0; i < n; i++ {
		ts.router.PublishMessage(roomID, &model.Message{ID: fmt.Sprintf("m%03d", i), RoomID: roomID})
	}
	for i := 0; i < n; i++ {
		ev := readEvent(t, conn)
		payload, err := json.Marshal(ev.Payload)
		req.NoError(err)
		var m model.Message
		req.NoError(json.Unmarshal(payload, &m))
		req.Equal(fmt.Sprintf("m%03d", i), m.ID)
	}
}

func TestRouter_ReadFrameBroadcastsToOthers(t *testing.T) {
	req := require.New(t)
	sender := &fakeSender{}
	ts := newTestServer(t, sender, 0)

	roomID := uuid.New().String()
	connA := ts.dial(t, roomID, "alice")
	connB := ts.dial(t, roomID, "bob")
	waitSubscribers(t, ts.router, roomID, 2)

	frame, _ := json.Marshal(IncomingEvent{Type: EventMessageRead})
	req.NoError(connA.WriteMessage(websocket.TextMessage, frame))

	ev := readEvent(t, connB)
	req.Equal(EventMessageRead, ev.Type)

	// Инициатор своё же событие не получает.
	req.NoError(connA.SetReadDeadline(time.Now().Add(300 * time.Millisecond)))
	_, _, err := connA.ReadMessage()
	req.Error(err)
}

func TestRouter_UnknownFrameYieldsError(t *testing.T) {
	req := require.New(t)
	sender := &fakeSender{}
	ts := newTestServer(t, sender, 0)

	roomID := uuid.New().String()
	conn := ts.dial(t, roomID, "alice")
	waitSubscribers(t, ts.router, roomID, 1)

	req.NoError(conn.WriteMessage(websocket.TextMessage, []byte(`{"type":"dance"}`)))
	ev := readEvent(t, conn)
	req.Equal(EventError, ev.Type)
}

func TestRouter_DisconnectRemovesSubscription(t *testing.T) {
	sender := &fakeSender{}
	ts := newTestServer(t, sender, 0)

	roomID := uuid.New().String()
	conn := ts.dial(t, roomID, "alice")
	waitSubscribers(t, ts.router, roomID, 1)

	conn.Close()
	waitSubscribers(t, ts.router, roomID, 0)
}

func TestRouter_ConnectionLimit(t *testing.T) {
	sender := &fakeSender{}
	ts := newTestServer(t, sender, 1)

	roomID := uuid.New().String()
	ts.dial(t, roomID, "alice")
	waitSubscribers(t, ts.router, roomID, 1)

	// Второе подключение закрывается при регистрации поверх лимита.
	conn2 := ts.dial(t, roomID, "bob")
	require.NoError(t, conn2.SetReadDeadline(time.Now().Add(2*time.Second)))
	_, _, err := conn2.ReadMessage()
	require.Error(t, err)
	waitSubscribers(t, ts.router, roomID, 1)
}

// newRawServerConn выдаёт серверную сторону апгрейднутого подключения,
// у которой насосы не запущены.
func newRawServerConn(t *testing.T) *websocket.Conn {
	t.Helper()
	upgrader := websocket.Upgrader{CheckOrigin: func(*http.Request) bool { return true }}
	connCh := make(chan *websocket.Conn, 1)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		connCh <- conn
	}))
	t.Cleanup(srv.Close)
	dialConn, _, err := websocket.DefaultDialer.Dial("ws"+strings.TrimPrefix(srv.URL, "http"), nil)
	require.NoError(t, err)
	t.Cleanup(func() { dialConn.Close() })
	return <-connCh
}

func TestRouter_SlowSubscriberDroppedOthersKeepReceiving(t *testing.T) {
	req := require.New(t)
	sender := &fakeSender{}
	ts := newTestServer(t, sender, 0)

	roomID := uuid.New().String()
	fastConn := ts.dial(t, roomID, "fast")
	waitSubscribers(t, ts.router, roomID, 1)

	// Клиент без запущенных насосов: его send-буфер никто не разгребает.
	slow := NewClient(ts.router, newRawServerConn(t), roomID, "slow")
	ts.router.Register(slow)
	waitSubscribers(t, ts.router, roomID, 2)

	for i := 0; i <= sendBufSize; i++ {
		ts.router.PublishMessage(roomID, &model.Message{ID: fmt.Sprintf("m%03d", i), RoomID: roomID, Content: "x"})
	}

	// Переполнение буфера закрывает медленного клиента...
	select {
	case <-slow.done:
	default:
		t.Fatal("slow client was not closed on full send buffer")
	}

	// ...а быстрый подписчик получает все публикации по порядку.
	for i := 0; i <= sendBufSize; i++ {
		ev := readEvent(t, fastConn)
		req.Equal(EventNewMessage, ev.Type)
		payload, ok := ev.Payload.(map[string]any)
		req.True(ok)
		req.Equal(fmt.Sprintf("m%03d", i), payload["id"])
	}
}
