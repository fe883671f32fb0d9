package model

import "time"

type Room struct {
	ID        string    `json:"id"`
	Name      string    `json:"name"`
	IsGroup   bool      `json:"is_group"`
	CreatedBy string    `json:"created_by"`
	CreatedAt time.Time `json:"created_at"`
}

type Participant struct {
	RoomID   string    `json:"room_id"`
	MemberID string    `json:"member_id"`
	JoinedAt time.Time `json:"joined_at"`
}

// RoomSummary — строка списка групповых комнат.
type RoomSummary struct {
	RoomID   string `json:"room_id"`
	RoomName string `json:"room_name"`
}

// MyRoom — комната из списка текущего участника с числом непрочитанных.
type MyRoom struct {
	RoomID      string `json:"room_id"`
	RoomName    string `json:"room_name"`
	IsGroup     bool   `json:"is_group"`
	UnreadCount int    `json:"unread_count"`
}
