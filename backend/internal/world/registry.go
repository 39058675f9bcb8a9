package world

import (
	"errors"
	"fmt"
	"sort"
	"sync"

	"github.com/go-gl/mathgl/mgl64"
	"go.uber.org/zap"

	"upper-mountains/backend/internal/physics"
)

// Binding пара сущность -> тело
type Binding struct {
	EntityID string
	Body     physics.BodyID
}

// Registry владеет жизненным циклом тел и связью между сущностями сцены и телами.
// Тело привязано не более чем к одной сущности, сущность не более чем к одному телу.
type Registry struct {
	mu sync.Mutex

	engine physics.Engine
	scene  *Scene
	logger *zap.Logger

	// тело -> сущность, пустая строка означает отсутствие привязки
	bodies   map[physics.BodyID]string
	byEntity map[string]physics.BodyID
	closed   bool
}

// NewRegistry создает реестр поверх физического движка и сцены
func NewRegistry(engine physics.Engine, scene *Scene, logger *zap.Logger) *Registry {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Registry{
		engine:   engine,
		scene:    scene,
		logger:   logger.Named("Registry"),
		bodies:   make(map[physics.BodyID]string),
		byEntity: make(map[string]physics.BodyID),
	}
}

// Engine возвращает физический движок
func (r *Registry) Engine() physics.Engine {
	return r.engine
}

// Scene возвращает сцену
func (r *Registry) Scene() *Scene {
	return r.scene
}

// Register создает тело. Масса 0 делает тело статичным.
func (r *Registry) Register(shape physics.Shape, mass float64, pose physics.Pose, opts ...physics.BodyOption) (physics.BodyID, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.closed {
		return 0, ErrRegistryClosed
	}
	id, err := r.engine.CreateBody(shape, mass, pose, opts...)
	if err != nil {
		return 0, err
	}
	r.bodies[id] = ""

	r.logger.Debug("Тело зарегистрировано",
		zap.Uint64("body", uint64(id)),
		zap.Stringer("shape", shape.Type()),
		zap.Float64("mass", mass))
	return id, nil
}

// RegisterStaticBox регистрирует неподвижную коробку с полными размерами scale
func (r *Registry) RegisterStaticBox(scale mgl64.Vec3, pose physics.Pose, opts ...physics.BodyOption) (physics.BodyID, error) {
	return r.Register(physics.NewBoxFromScale(scale), 0, pose, opts...)
}

// RegisterBall регистрирует динамический шар
func (r *Registry) RegisterBall(radius, mass float64, pose physics.Pose, opts ...physics.BodyOption) (physics.BodyID, error) {
	if mass <= 0 {
		return 0, fmt.Errorf("%w: шар должен иметь положительную массу, получено %v", physics.ErrInvalidBodyConfig, mass)
	}
	return r.Register(physics.Sphere{Radius: radius}, mass, pose, opts...)
}

// Unregister снимает привязку, если она есть, и удаляет тело
func (r *Registry) Unregister(id physics.BodyID) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.unregisterLocked(id)
}

func (r *Registry) unregisterLocked(id physics.BodyID) error {
	entityID, exists := r.bodies[id]
	if !exists {
		return fmt.Errorf("%w: %d", physics.ErrUnknownBody, id)
	}
	// тело, которое движок не смог удалить, остается в реестре вместе с привязкой
	if err := r.engine.DestroyBody(id); err != nil {
		return fmt.Errorf("удаление тела %d: %w", id, err)
	}

	if entityID != "" {
		// сущность могла уже покинуть сцену, обратную ссылку тогда чистить не нужно
		if err := r.scene.setBody(entityID, 0); err != nil && !errors.Is(err, ErrUnknownEntity) {
			r.logger.Warn("Не удалось снять обратную ссылку", zap.String("entity", entityID), zap.Error(err))
		}
		delete(r.byEntity, entityID)
	}
	delete(r.bodies, id)
	r.logger.Debug("Тело удалено", zap.Uint64("body", uint64(id)), zap.String("entity", entityID))
	return nil
}

// Bind связывает сущность сцены с зарегистрированным телом.
// При любой ошибке ни сцена, ни реестр не меняются.
func (r *Registry) Bind(entityID string, id physics.BodyID) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	owner, exists := r.bodies[id]
	if !exists {
		return fmt.Errorf("%w: %d", physics.ErrUnknownBody, id)
	}
	if owner != "" {
		return fmt.Errorf("%w: тело %d уже привязано к %q", ErrDuplicateBinding, id, owner)
	}
	if bound, ok := r.byEntity[entityID]; ok {
		return fmt.Errorf("%w: сущность %q уже привязана к телу %d", ErrDuplicateBinding, entityID, bound)
	}

	e, ok := r.scene.Entity(entityID)
	if !ok {
		return fmt.Errorf("%w: %q", ErrUnknownEntity, entityID)
	}
	if e.Bound() {
		return fmt.Errorf("%w: сущность %q уже ссылается на тело %d", ErrDuplicateBinding, entityID, e.Body)
	}
	if err := r.scene.setBody(entityID, id); err != nil {
		return err
	}

	r.bodies[id] = entityID
	r.byEntity[entityID] = id
	return nil
}

// Unbind снимает привязку сущности, тело остается зарегистрированным
func (r *Registry) Unbind(entityID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	id, ok := r.byEntity[entityID]
	if !ok {
		return fmt.Errorf("%w: сущность %q не привязана", ErrUnknownEntity, entityID)
	}
	if err := r.scene.setBody(entityID, 0); err != nil && !errors.Is(err, ErrUnknownEntity) {
		return err
	}
	delete(r.byEntity, entityID)
	r.bodies[id] = ""
	return nil
}

// Spawn добавляет сущность в сцену вместе с телом и привязкой.
// Если любой шаг не удался, уже сделанные шаги откатываются.
func (r *Registry) Spawn(e Entity, shape physics.Shape, mass float64, opts ...physics.BodyOption) (string, physics.BodyID, error) {
	id, err := r.Register(shape, mass, e.Pose, opts...)
	if err != nil {
		return "", 0, err
	}

	entityID, err := r.scene.AddEntity(e)
	if err != nil {
		_ = r.Unregister(id)
		return "", 0, err
	}

	if err := r.Bind(entityID, id); err != nil {
		_ = r.Unregister(id)
		_, _ = r.scene.RemoveEntity(entityID)
		return "", 0, err
	}
	return entityID, id, nil
}

// Despawn удаляет сущность из сцены вместе с ее телом
func (r *Registry) Despawn(entityID string) error {
	r.mu.Lock()
	if id, ok := r.byEntity[entityID]; ok {
		if err := r.unregisterLocked(id); err != nil {
			r.mu.Unlock()
			return err
		}
	}
	r.mu.Unlock()

	_, err := r.scene.RemoveEntity(entityID)
	return err
}

// BodyOf возвращает тело, привязанное к сущности
func (r *Registry) BodyOf(entityID string) (physics.BodyID, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	id, ok := r.byEntity[entityID]
	return id, ok
}

// Bindings возвращает снимок привязок, упорядоченный по идентификатору сущности
func (r *Registry) Bindings() []Binding {
	return r.AppendBindings(nil)
}

// AppendBindings дописывает снимок привязок в dst, чтобы проход синхронизации не аллоцировал память
func (r *Registry) AppendBindings(dst []Binding) []Binding {
	r.mu.Lock()
	start := len(dst)
	for entityID, id := range r.byEntity {
		dst = append(dst, Binding{EntityID: entityID, Body: id})
	}
	r.mu.Unlock()

	tail := dst[start:]
	sort.Slice(tail, func(i, j int) bool { return tail[i].EntityID < tail[j].EntityID })
	return dst
}

// Orphans возвращает зарегистрированные тела без привязанной сущности
func (r *Registry) Orphans() []physics.BodyID {
	r.mu.Lock()
	defer r.mu.Unlock()

	var result []physics.BodyID
	for id, entityID := range r.bodies {
		if entityID == "" {
			result = append(result, id)
		}
	}
	sort.Slice(result, func(i, j int) bool { return result[i] < result[j] })
	return result
}

// Len возвращает количество зарегистрированных тел
func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.bodies)
}

// Close освобождает все тела, включая сирот. Повторный вызов ничего не делает.
func (r *Registry) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.closed {
		return nil
	}
	r.closed = true

	ids := make([]physics.BodyID, 0, len(r.bodies))
	orphans := 0
	for id, entityID := range r.bodies {
		ids = append(ids, id)
		if entityID == "" {
			orphans++
		}
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })

	var errs []error
	for _, id := range ids {
		if err := r.unregisterLocked(id); err != nil {
			errs = append(errs, err)
		}
	}

	r.logger.Info("Реестр закрыт",
		zap.Int("bodies", len(ids)),
		zap.Int("orphans", orphans))
	return errors.Join(errs...)
}
