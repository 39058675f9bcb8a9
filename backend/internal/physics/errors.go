package physics

import "errors"

var (
	// ErrInvalidBodyConfig некорректная форма, масса или поза при регистрации тела
	ErrInvalidBodyConfig = errors.New("invalid body config")

	// ErrInvalidTimestep нечисловой или отрицательный шаг времени
	ErrInvalidTimestep = errors.New("invalid timestep")

	// ErrUnknownBody тело с таким идентификатором отсутствует в мире
	ErrUnknownBody = errors.New("unknown body")
)
