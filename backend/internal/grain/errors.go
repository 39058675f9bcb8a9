package grain

import "errors"

var (
	// ErrUnsupportedBlendMode режим смешивания вне закрытого перечисления
	ErrUnsupportedBlendMode = errors.New("unsupported blend mode")

	// ErrInvalidWeight вес смешивания вне [0,1]
	ErrInvalidWeight = errors.New("invalid blend weight")

	// ErrInvalidNoiseParams некорректные параметры шума
	ErrInvalidNoiseParams = errors.New("invalid noise params")
)
