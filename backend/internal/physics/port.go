package physics

import "github.com/go-gl/mathgl/mgl64"

// Engine определяет узкий интерфейс взаимодействия с физическим движком.
// Реестр тел и шаговик зависят только от него, а не от внутренностей решателя.
type Engine interface {
	// CreateBody создает тело в симуляции. Масса 0 делает тело статичным.
	CreateBody(shape Shape, mass float64, pose Pose, opts ...BodyOption) (BodyID, error)

	// DestroyBody удаляет тело из симуляции
	DestroyBody(id BodyID) error

	// StepSimulation продвигает симуляцию на dt секунд, не более maxSubsteps подшагов
	StepSimulation(dt float64, maxSubsteps int) (int, error)

	// GetBodyTransform возвращает текущую позу тела
	GetBodyTransform(id BodyID) (Pose, error)

	// BodyState возвращает полный снимок состояния тела
	BodyState(id BodyID) (BodyState, error)

	// ApplyImpulse применяет импульс к центру масс тела
	ApplyImpulse(id BodyID, impulse mgl64.Vec3) error

	// BodyCount возвращает количество живых тел
	BodyCount() int
}

var _ Engine = (*World)(nil)
