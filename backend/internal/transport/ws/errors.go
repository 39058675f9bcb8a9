package ws

import "errors"

var (
	// ErrUnknownCommand команда без зарегистрированного обработчика
	ErrUnknownCommand = errors.New("unknown command")
	// ErrInvalidCommand некорректные данные команды
	ErrInvalidCommand = errors.New("invalid command data")
)
