package game

import (
	"errors"
	"sync/atomic"

	"go.uber.org/zap"

	"upper-mountains/backend/internal/physics"
)

// PhysicsStepper продвигает физический мир на время кадра
type PhysicsStepper struct {
	engine physics.Engine
	logger *zap.Logger

	calls    atomic.Uint64
	substeps atomic.Uint64
	rejected atomic.Uint64
}

// NewPhysicsStepper создает шаговик поверх движка
func NewPhysicsStepper(engine physics.Engine, logger *zap.Logger) *PhysicsStepper {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &PhysicsStepper{
		engine: engine,
		logger: logger.Named("PhysicsStepper"),
	}
}

// Step продвигает симуляцию на deltaTime секунд и возвращает число выполненных подшагов.
// Некорректный deltaTime возвращает physics.ErrInvalidTimestep, состояние мира не меняется.
func (s *PhysicsStepper) Step(deltaTime float64, maxSubsteps int) (int, error) {
	n, err := s.engine.StepSimulation(deltaTime, maxSubsteps)
	if err != nil {
		if errors.Is(err, physics.ErrInvalidTimestep) {
			s.rejected.Add(1)
		}
		return 0, err
	}
	s.calls.Add(1)
	s.substeps.Add(uint64(n))
	return n, nil
}

// StepperStats счетчики шаговика
type StepperStats struct {
	Calls       uint64
	Substeps    uint64
	Rejected    uint64
	DroppedTime float64
}

// Stats возвращает счетчики шаговика
func (s *PhysicsStepper) Stats() StepperStats {
	stats := StepperStats{
		Calls:    s.calls.Load(),
		Substeps: s.substeps.Load(),
		Rejected: s.rejected.Load(),
	}
	if d, ok := s.engine.(interface{ DroppedTime() float64 }); ok {
		stats.DroppedTime = d.DroppedTime()
	}
	return stats
}
