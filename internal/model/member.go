package model

import "time"

// Member — участник системы. Строки создаёт сервис идентификации
// (через /internal/members); движок чата их только читает.
type Member struct {
	ID        string    `json:"id"`
	Username  string    `json:"username"`
	Email     string    `json:"email"`
	CreatedAt time.Time `json:"created_at"`
}
