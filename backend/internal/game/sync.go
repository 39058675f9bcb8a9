package game

import (
	"errors"
	"fmt"

	"go.uber.org/zap"

	"upper-mountains/backend/internal/physics"
	"upper-mountains/backend/internal/world"
)

// PoseRecorder получает каждую синхронизированную позу
type PoseRecorder interface {
	RecordPose(entityID string, state physics.BodyState)
}

// TransformSync копирует позы тел в привязанные сущности сцены
type TransformSync struct {
	registry *world.Registry
	recorder PoseRecorder
	logger   *zap.Logger

	bindings []world.Binding
}

// NewTransformSync создает синхронизатор
func NewTransformSync(registry *world.Registry, logger *zap.Logger) *TransformSync {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &TransformSync{
		registry: registry,
		logger:   logger.Named("TransformSync"),
	}
}

// SetRecorder подключает запись поз, nil отключает
func (s *TransformSync) SetRecorder(r PoseRecorder) {
	s.recorder = r
}

// Sync записывает позу каждого тела в его сущность без изменений и возвращает число обновленных сущностей.
// Тела, еще не участвовавшие в шаге, не трогают сущность.
// Пропавшее тело не прерывает проход, а возвращается как ErrDanglingBinding.
func (s *TransformSync) Sync() (int, error) {
	engine := s.registry.Engine()
	scene := s.registry.Scene()

	s.bindings = s.registry.AppendBindings(s.bindings[:0])

	updated := 0
	var errs []error
	for _, b := range s.bindings {
		state, err := engine.BodyState(b.Body)
		if err != nil {
			if errors.Is(err, physics.ErrUnknownBody) {
				err = fmt.Errorf("%w: сущность %q, тело %d", ErrDanglingBinding, b.EntityID, b.Body)
				s.logger.Error("Привязка ссылается на несуществующее тело",
					zap.String("entity", b.EntityID), zap.Uint64("body", uint64(b.Body)))
			}
			errs = append(errs, err)
			continue
		}
		if !state.Stepped {
			continue
		}

		if err := scene.SetTransform(b.EntityID, state.Pose); err != nil {
			errs = append(errs, err)
			continue
		}
		updated++

		if s.recorder != nil {
			s.recorder.RecordPose(b.EntityID, state)
		}
	}
	return updated, errors.Join(errs...)
}
