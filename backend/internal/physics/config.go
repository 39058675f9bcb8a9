package physics

import (
	"fmt"
	"strings"

	"github.com/go-gl/mathgl/mgl64"
)

// Broadphase стратегия отбора пар кандидатов на столкновение
type Broadphase int

const (
	// BroadphaseBruteForce перебор всех пар
	BroadphaseBruteForce Broadphase = iota
	// BroadphaseSweepAndPrune сортировка AABB по оси X
	BroadphaseSweepAndPrune
	// BroadphaseGrid равномерная пространственная сетка с ячейкой GridCellSize
	BroadphaseGrid
)

func (b Broadphase) String() string {
	switch b {
	case BroadphaseBruteForce:
		return "brute_force"
	case BroadphaseSweepAndPrune:
		return "sweep_and_prune"
	case BroadphaseGrid:
		return "grid"
	default:
		return fmt.Sprintf("broadphase(%d)", int(b))
	}
}

// ParseBroadphase разбирает имя стратегии из конфигурации
func ParseBroadphase(name string) (Broadphase, error) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "", "sweep_and_prune", "sap":
		return BroadphaseSweepAndPrune, nil
	case "brute_force", "bruteforce":
		return BroadphaseBruteForce, nil
	case "grid", "spatial_grid":
		return BroadphaseGrid, nil
	default:
		return 0, fmt.Errorf("неизвестная стратегия broadphase: %q", name)
	}
}

// SolverParams глобальные параметры решателя
type SolverParams struct {
	// Iterations - количество итераций импульсного решателя на подшаг
	Iterations int

	// FixedTimeStep - длительность одного подшага в секундах
	FixedTimeStep float64

	// Broadphase - стратегия отбора пар
	Broadphase Broadphase

	// GridCellSize - размер ячейки для BroadphaseGrid
	GridCellSize float64

	// LinearDamping - затухание линейного движения (доля в секунду)
	LinearDamping float64

	// AngularDamping - затухание углового движения (доля в секунду)
	AngularDamping float64

	// SleepThreshold - скорость, ниже которой тело считается покоящимся
	SleepThreshold float64

	// SleepTime - время покоя до усыпления тела
	SleepTime float64

	// Baumgarte - доля проникновения, устраняемая за подшаг
	Baumgarte float64

	// Slop - допустимая глубина проникновения без коррекции
	Slop float64

	// RestitutionThreshold - скорость сближения, ниже которой отскок не применяется
	RestitutionThreshold float64
}

// DefaultSolverParams возвращает параметры по умолчанию
func DefaultSolverParams() SolverParams {
	return SolverParams{
		Iterations:           10,
		FixedTimeStep:        1.0 / 60.0,
		Broadphase:           BroadphaseSweepAndPrune,
		GridCellSize:         40,
		LinearDamping:        0.0,
		AngularDamping:       0.05,
		SleepThreshold:       0.05,
		SleepTime:            0.5,
		Baumgarte:            0.8,
		Slop:                 0.005,
		RestitutionThreshold: 1.0,
	}
}

// Validate проверяет параметры решателя
func (p SolverParams) Validate() error {
	if p.Iterations <= 0 {
		return fmt.Errorf("iterations должно быть положительным: %d", p.Iterations)
	}
	if !isFinite(p.FixedTimeStep) || p.FixedTimeStep <= 0 {
		return fmt.Errorf("fixed_time_step должно быть положительным: %v", p.FixedTimeStep)
	}
	switch p.Broadphase {
	case BroadphaseBruteForce, BroadphaseSweepAndPrune:
	case BroadphaseGrid:
		if !isFinite(p.GridCellSize) || p.GridCellSize <= 0 {
			return fmt.Errorf("grid_cell_size должно быть положительным: %v", p.GridCellSize)
		}
	default:
		return fmt.Errorf("неизвестная стратегия broadphase: %v", p.Broadphase)
	}
	if p.LinearDamping < 0 || p.AngularDamping < 0 {
		return fmt.Errorf("затухание не может быть отрицательным")
	}
	if p.Baumgarte < 0 || p.Baumgarte > 1 {
		return fmt.Errorf("baumgarte должно быть в [0,1]: %v", p.Baumgarte)
	}
	return nil
}

// Material свойства поверхности тела
type Material struct {
	Restitution float64
	Friction    float64
}

// DefaultMaterial материал по умолчанию: без отскока, умеренное трение
func DefaultMaterial() Material {
	return Material{Restitution: 0.0, Friction: 0.5}
}

// BodyOption настраивает тело при создании
type BodyOption func(*Body)

// WithMaterial задает материал тела
func WithMaterial(m Material) BodyOption {
	return func(b *Body) {
		b.material = m
	}
}

// WithLinearVelocity задает начальную скорость тела
func WithLinearVelocity(v mgl64.Vec3) BodyOption {
	return func(b *Body) {
		b.linVel = v
	}
}
