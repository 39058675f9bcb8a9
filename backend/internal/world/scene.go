package world

import (
	"errors"
	"fmt"
	"sort"
	"sync"

	"github.com/google/uuid"

	"upper-mountains/backend/internal/physics"
)

// Mutation изменение сцены, которое применяется между тиками
type Mutation func(s *Scene) error

// Scene граф сцены: набор сущностей, доступных рендереру
type Scene struct {
	entities map[string]*Entity
	mu       sync.RWMutex

	pending   []Mutation
	pendingMu sync.Mutex

	version uint64
}

// NewScene создает пустую сцену
func NewScene() *Scene {
	return &Scene{
		entities: make(map[string]*Entity),
	}
}

// AddEntity добавляет сущность целиком или не добавляет вовсе.
// Пустой идентификатор заменяется сгенерированным. Привязка к телу выполняется только через реестр.
func (s *Scene) AddEntity(e Entity) (string, error) {
	if e.Bound() {
		return "", fmt.Errorf("%w: сущность %q уже ссылается на тело %d", ErrInvalidEntity, e.ID, e.Body)
	}
	if err := e.Pose.Validate(); err != nil {
		return "", fmt.Errorf("%w: %v", ErrInvalidEntity, err)
	}
	if e.ID == "" {
		e.ID = uuid.NewString()
	}
	if e.Name == "" {
		e.Name = e.ID
	}
	e.Pose = e.Pose.Normalized()

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.entities[e.ID]; exists {
		return "", fmt.Errorf("%w: %q", ErrDuplicateEntity, e.ID)
	}
	s.entities[e.ID] = &e
	s.version++
	return e.ID, nil
}

// Entity возвращает копию сущности
func (s *Scene) Entity(id string) (Entity, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	e, exists := s.entities[id]
	if !exists {
		return Entity{}, false
	}
	return *e, true
}

// Entities возвращает копии всех сущностей, упорядоченные по идентификатору
func (s *Scene) Entities() []Entity {
	s.mu.RLock()
	result := make([]Entity, 0, len(s.entities))
	for _, e := range s.entities {
		result = append(result, *e)
	}
	s.mu.RUnlock()

	sort.Slice(result, func(i, j int) bool { return result[i].ID < result[j].ID })
	return result
}

// Len возвращает количество сущностей
func (s *Scene) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.entities)
}

// Version счетчик структурных изменений сцены
func (s *Scene) Version() uint64 {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.version
}

// SetTransform записывает позу сущности без изменений
func (s *Scene) SetTransform(id string, pose physics.Pose) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	e, exists := s.entities[id]
	if !exists {
		return fmt.Errorf("%w: %q", ErrUnknownEntity, id)
	}
	e.Pose = pose
	return nil
}

// RemoveEntity удаляет непривязанную сущность.
// Привязанные сущности удаляются через Registry.Despawn.
func (s *Scene) RemoveEntity(id string) (Entity, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	e, exists := s.entities[id]
	if !exists {
		return Entity{}, fmt.Errorf("%w: %q", ErrUnknownEntity, id)
	}
	if e.Bound() {
		return Entity{}, fmt.Errorf("%w: %q -> %d", ErrEntityBound, id, e.Body)
	}
	delete(s.entities, id)
	s.version++
	return *e, nil
}

// setBody меняет обратную ссылку. Вызывается только реестром.
func (s *Scene) setBody(id string, body physics.BodyID) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	e, exists := s.entities[id]
	if !exists {
		return fmt.Errorf("%w: %q", ErrUnknownEntity, id)
	}
	e.Body = body
	return nil
}

// Enqueue ставит изменение в очередь. Безопасно вызывать из любой горутины.
func (s *Scene) Enqueue(m Mutation) {
	s.pendingMu.Lock()
	s.pending = append(s.pending, m)
	s.pendingMu.Unlock()
}

// Pending количество изменений в очереди
func (s *Scene) Pending() int {
	s.pendingMu.Lock()
	defer s.pendingMu.Unlock()
	return len(s.pending)
}

// ApplyPending применяет накопленные изменения в порядке поступления.
// Ошибки отдельных изменений не прерывают остальные и возвращаются вместе.
func (s *Scene) ApplyPending() (int, error) {
	s.pendingMu.Lock()
	batch := s.pending
	s.pending = nil
	s.pendingMu.Unlock()

	var errs []error
	for _, m := range batch {
		if err := m(s); err != nil {
			errs = append(errs, err)
		}
	}
	return len(batch), errors.Join(errs...)
}
