package world

import "errors"

var (
	// ErrDuplicateBinding сущность или тело уже участвуют в привязке
	ErrDuplicateBinding = errors.New("duplicate binding")

	// ErrUnknownEntity сущности нет в сцене
	ErrUnknownEntity = errors.New("unknown entity")

	// ErrDuplicateEntity сущность с таким идентификатором уже есть в сцене
	ErrDuplicateEntity = errors.New("duplicate entity")

	// ErrEntityBound сущность привязана к телу и не может быть удалена напрямую
	ErrEntityBound = errors.New("entity is bound to a body")

	// ErrInvalidEntity некорректное описание сущности
	ErrInvalidEntity = errors.New("invalid entity")

	// ErrRegistryClosed реестр уже освободил все тела
	ErrRegistryClosed = errors.New("registry closed")
)
