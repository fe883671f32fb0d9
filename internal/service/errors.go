package service

import (
	"errors"

	"github.com/chatserver/internal/repository"
)

// Таксономия ошибок команд движка. Все операции либо выполняются целиком,
// либо не оставляют частичного состояния (мутации идут через repository.InTx).
var (
	// ErrNotFound — комната/участник/строка участия не существует.
	// Алиас repository.ErrNotFound: errors.Is работает сквозь слои.
	ErrNotFound = repository.ErrNotFound

	// ErrForbidden — у вызывающего нет членства, требуемого операцией.
	ErrForbidden = errors.New("forbidden")

	// ErrInvalidOperation — структурно недопустимое действие
	// (например, выход из не-групповой комнаты).
	ErrInvalidOperation = errors.New("invalid operation")
)
