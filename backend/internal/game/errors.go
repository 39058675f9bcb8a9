package game

import "errors"

var (
	// ErrDanglingBinding привязка ссылается на тело, которого уже нет в мире
	ErrDanglingBinding = errors.New("dangling binding")

	// ErrStopped цикл кадров остановлен
	ErrStopped = errors.New("frame loop stopped")
)
