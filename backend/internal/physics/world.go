package physics

import (
	"fmt"
	"math"
	"sync"

	"github.com/go-gl/mathgl/mgl64"
)

// World дискретный мир динамики: владеет телами, гравитацией и параметрами решателя.
//
// Политика подшагов совпадает с Bullet: dt накапливается в аккумуляторе,
// из него вынимаются фиксированные подшаги FixedTimeStep, не более maxSubsteps
// за вызов. Остаток меньше одного подшага переносится на следующий вызов.
// Если лимит подшагов исчерпан, а в аккумуляторе остались целые подшаги,
// они отбрасываются и учитываются в DroppedTime.
type World struct {
	mu sync.RWMutex

	gravity mgl64.Vec3
	params  SolverParams

	bodies []*Body
	index  map[BodyID]*Body
	nextID BodyID

	accumulator float64
	droppedTime float64
	simTime     float64
	substeps    uint64

	// переиспользуемые буферы, чтобы шаг не аллоцировал память в установившемся режиме
	contacts []contact
	sorted   []*Body
	grid     *spatialGrid
}

// NewWorld создает мир с заданной гравитацией и параметрами решателя
func NewWorld(gravity mgl64.Vec3, params SolverParams) (*World, error) {
	if err := params.Validate(); err != nil {
		return nil, fmt.Errorf("параметры решателя: %w", err)
	}
	for i := 0; i < 3; i++ {
		if !isFinite(gravity[i]) {
			return nil, fmt.Errorf("гравитация содержит нечисловое значение: %v", gravity)
		}
	}
	return &World{
		gravity: gravity,
		params:  params,
		index:   make(map[BodyID]*Body),
	}, nil
}

// CreateBody создает тело в мире
func (w *World) CreateBody(shape Shape, mass float64, pose Pose, opts ...BodyOption) (BodyID, error) {
	if shape == nil {
		return 0, fmt.Errorf("%w: форма не задана", ErrInvalidBodyConfig)
	}
	if err := shape.Validate(); err != nil {
		return 0, err
	}
	if !isFinite(mass) || mass < 0 {
		return 0, fmt.Errorf("%w: масса %v", ErrInvalidBodyConfig, mass)
	}
	if shape.Type() == TRIANGLE_MESH && mass != 0 {
		return 0, fmt.Errorf("%w: сетка треугольников может быть только статичной", ErrInvalidBodyConfig)
	}
	if err := pose.Validate(); err != nil {
		return 0, err
	}

	w.mu.Lock()
	defer w.mu.Unlock()

	w.nextID++
	body := newBody(w.nextID, shape, mass, pose.Normalized())
	for _, opt := range opts {
		opt(body)
	}

	w.bodies = append(w.bodies, body)
	w.index[body.id] = body
	return body.id, nil
}

// DestroyBody удаляет тело из мира
func (w *World) DestroyBody(id BodyID) error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if _, exists := w.index[id]; !exists {
		return fmt.Errorf("%w: %d", ErrUnknownBody, id)
	}
	delete(w.index, id)
	for i, b := range w.bodies {
		if b.id == id {
			copy(w.bodies[i:], w.bodies[i+1:])
			w.bodies[len(w.bodies)-1] = nil
			w.bodies = w.bodies[:len(w.bodies)-1]
			break
		}
	}
	// спящие соседи могли лежать на удаленном теле
	for _, b := range w.bodies {
		b.wake()
	}
	return nil
}

// GetBodyTransform возвращает текущую позу тела
func (w *World) GetBodyTransform(id BodyID) (Pose, error) {
	w.mu.RLock()
	defer w.mu.RUnlock()

	b, exists := w.index[id]
	if !exists {
		return Pose{}, fmt.Errorf("%w: %d", ErrUnknownBody, id)
	}
	return b.pose, nil
}

// BodyState возвращает снимок состояния тела
func (w *World) BodyState(id BodyID) (BodyState, error) {
	w.mu.RLock()
	defer w.mu.RUnlock()

	b, exists := w.index[id]
	if !exists {
		return BodyState{}, fmt.Errorf("%w: %d", ErrUnknownBody, id)
	}
	return b.state(), nil
}

// ApplyImpulse применяет импульс к центру масс и будит тело
func (w *World) ApplyImpulse(id BodyID, impulse mgl64.Vec3) error {
	w.mu.Lock()
	defer w.mu.Unlock()

	b, exists := w.index[id]
	if !exists {
		return fmt.Errorf("%w: %d", ErrUnknownBody, id)
	}
	if b.isStatic() {
		return nil
	}
	b.wake()
	b.linVel = b.linVel.Add(impulse.Mul(b.invMass))
	return nil
}

// BodyCount возвращает количество тел в мире
func (w *World) BodyCount() int {
	w.mu.RLock()
	defer w.mu.RUnlock()
	return len(w.bodies)
}

// BodyIDs возвращает идентификаторы тел в порядке создания
func (w *World) BodyIDs() []BodyID {
	w.mu.RLock()
	defer w.mu.RUnlock()

	ids := make([]BodyID, len(w.bodies))
	for i, b := range w.bodies {
		ids[i] = b.id
	}
	return ids
}

// Gravity возвращает вектор гравитации
func (w *World) Gravity() mgl64.Vec3 {
	w.mu.RLock()
	defer w.mu.RUnlock()
	return w.gravity
}

// SetGravity меняет гравитацию и будит все тела
func (w *World) SetGravity(g mgl64.Vec3) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.gravity = g
	for _, b := range w.bodies {
		b.wake()
	}
}

// Params возвращает параметры решателя
func (w *World) Params() SolverParams {
	return w.params
}

// Residual возвращает накопленный остаток времени меньше одного подшага
func (w *World) Residual() float64 {
	w.mu.RLock()
	defer w.mu.RUnlock()
	return w.accumulator
}

// DroppedTime возвращает суммарное время, отброшенное ограничением подшагов
func (w *World) DroppedTime() float64 {
	w.mu.RLock()
	defer w.mu.RUnlock()
	return w.droppedTime
}

// SimulatedTime возвращает суммарное время симуляции
func (w *World) SimulatedTime() float64 {
	w.mu.RLock()
	defer w.mu.RUnlock()
	return w.simTime
}

// StepSimulation продвигает симуляцию. maxSubsteps <= 0 означает один шаг ровно на dt.
func (w *World) StepSimulation(dt float64, maxSubsteps int) (int, error) {
	if math.IsNaN(dt) || math.IsInf(dt, 0) || dt < 0 {
		return 0, fmt.Errorf("%w: %v", ErrInvalidTimestep, dt)
	}

	w.mu.Lock()
	defer w.mu.Unlock()

	if maxSubsteps <= 0 {
		if dt == 0 {
			return 0, nil
		}
		w.substep(dt)
		return 1, nil
	}

	fixed := w.params.FixedTimeStep
	w.accumulator += dt

	steps := 0
	for w.accumulator >= fixed && steps < maxSubsteps {
		w.substep(fixed)
		w.accumulator -= fixed
		steps++
	}

	if w.accumulator >= fixed {
		residual := math.Mod(w.accumulator, fixed)
		w.droppedTime += w.accumulator - residual
		w.accumulator = residual
	}

	return steps, nil
}

// substep один фиксированный подшаг: силы, столкновения, решатель, интегрирование
func (w *World) substep(h float64) {
	p := w.params
	linDamp := math.Max(0, 1-p.LinearDamping*h)
	angDamp := math.Max(0, 1-p.AngularDamping*h)

	for _, b := range w.bodies {
		b.stepped = true
		if b.isStatic() || b.sleeping {
			continue
		}
		b.linVel = b.linVel.Add(w.gravity.Mul(h)).Mul(linDamp)
		b.angVel = b.angVel.Mul(angDamp)
		b.updateBounds()
	}

	w.detectContacts()
	w.prepareContacts()

	for it := 0; it < p.Iterations; it++ {
		for i := range w.contacts {
			w.solveContact(&w.contacts[i])
		}
	}

	for _, b := range w.bodies {
		if b.isStatic() || b.sleeping {
			continue
		}
		b.pose.Position = b.pose.Position.Add(b.linVel.Mul(h))
		if b.angVel.Len() > 0 {
			spin := mgl64.Quat{W: 0, V: b.angVel}.Mul(b.pose.Orientation).Scale(0.5 * h)
			b.pose.Orientation = b.pose.Orientation.Add(spin).Normalize()
		}
	}

	w.correctPositions()

	for _, b := range w.bodies {
		if b.isStatic() || b.sleeping {
			continue
		}
		b.updateBounds()
		if b.linVel.Len() < p.SleepThreshold && b.angVel.Len() < p.SleepThreshold {
			b.idleTime += h
			if b.idleTime >= p.SleepTime {
				b.sleeping = true
				b.linVel = mgl64.Vec3{}
				b.angVel = mgl64.Vec3{}
			}
		} else {
			b.idleTime = 0
		}
	}

	w.simTime += h
	w.substeps++
}
