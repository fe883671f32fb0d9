package model

import "time"

// Message неизменяемо после создания; строки только добавляются.
// Порядок внутри комнаты: (created_at, id).
type Message struct {
	ID         string    `json:"id"`
	RoomID     string    `json:"room_id"`
	SenderID   string    `json:"sender_id"`
	SenderName string    `json:"sender_name,omitempty"`
	Content    string    `json:"content"`
	CreatedAt  time.Time `json:"created_at"`
}

// ReadMark — отметка о прочтении: одна строка на (сообщение, участник
// на момент отправки). Переход только false -> true.
type ReadMark struct {
	RoomID    string `json:"room_id"`
	MemberID  string `json:"member_id"`
	MessageID string `json:"message_id"`
	IsRead    bool   `json:"is_read"`
}

// MessageView — проекция сообщения для истории комнаты.
type MessageView struct {
	SenderIdentity string `json:"sender_identity"`
	Content        string `json:"content"`
}
