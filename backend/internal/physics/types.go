package physics

import (
	"fmt"
	"math"

	"github.com/go-gl/mathgl/mgl64"
)

// BodyID идентификатор твердого тела внутри физического мира. Ноль никогда не выдается.
type BodyID uint64

// Pose положение и ориентация тела или узла сцены
type Pose struct {
	Position    mgl64.Vec3
	Orientation mgl64.Quat
}

// IdentityPose возвращает позу в начале координат без вращения
func IdentityPose() Pose {
	return Pose{Orientation: mgl64.QuatIdent()}
}

// NewPose создает позу из позиции и ориентации
func NewPose(position mgl64.Vec3, orientation mgl64.Quat) Pose {
	return Pose{Position: position, Orientation: orientation}
}

// Normalized возвращает позу с нормализованным кватернионом
func (p Pose) Normalized() Pose {
	p.Orientation = p.Orientation.Normalize()
	return p
}

// Validate проверяет что все компоненты позы конечны, а кватернион не нулевой
func (p Pose) Validate() error {
	for i := 0; i < 3; i++ {
		if !isFinite(p.Position[i]) {
			return fmt.Errorf("%w: позиция содержит нечисловое значение %v", ErrInvalidBodyConfig, p.Position)
		}
	}
	q := p.Orientation
	if !isFinite(q.W) || !isFinite(q.V[0]) || !isFinite(q.V[1]) || !isFinite(q.V[2]) {
		return fmt.Errorf("%w: ориентация содержит нечисловое значение", ErrInvalidBodyConfig)
	}
	if q.Len() == 0 {
		return fmt.Errorf("%w: нулевой кватернион", ErrInvalidBodyConfig)
	}
	return nil
}

// ShapeType тип формы тела
type ShapeType int

const (
	SPHERE ShapeType = iota
	BOX
	TRIANGLE_MESH
)

func (t ShapeType) String() string {
	switch t {
	case SPHERE:
		return "sphere"
	case BOX:
		return "box"
	case TRIANGLE_MESH:
		return "triangle_mesh"
	default:
		return fmt.Sprintf("shape(%d)", int(t))
	}
}

// Shape форма столкновений. Набор реализаций закрыт: Sphere, Box, TriangleMesh.
type Shape interface {
	Type() ShapeType
	// Validate проверяет размеры формы
	Validate() error
	// inertiaFactor возвращает k для скалярного момента инерции I = k * m
	inertiaFactor() float64
}

// Sphere сфера заданного радиуса
type Sphere struct {
	Radius float64
}

func (s Sphere) Type() ShapeType { return SPHERE }

func (s Sphere) Validate() error {
	if !isFinite(s.Radius) || s.Radius <= 0 {
		return fmt.Errorf("%w: радиус сферы %v", ErrInvalidBodyConfig, s.Radius)
	}
	return nil
}

func (s Sphere) inertiaFactor() float64 { return 0.4 * s.Radius * s.Radius }

// Box параллелепипед, заданный полуразмерами
type Box struct {
	HalfExtents mgl64.Vec3
}

// NewBoxFromScale создает коробку по полному размеру объекта (scale * 0.5 как в сцене)
func NewBoxFromScale(scale mgl64.Vec3) Box {
	return Box{HalfExtents: scale.Mul(0.5)}
}

func (b Box) Type() ShapeType { return BOX }

func (b Box) Validate() error {
	for i := 0; i < 3; i++ {
		if !isFinite(b.HalfExtents[i]) || b.HalfExtents[i] <= 0 {
			return fmt.Errorf("%w: полуразмеры коробки %v", ErrInvalidBodyConfig, b.HalfExtents)
		}
	}
	return nil
}

func (b Box) inertiaFactor() float64 {
	h := b.HalfExtents
	// усредненный момент по трем осям: (a²+b²)/3 для полуразмеров
	return (2.0 / 9.0) * (h[0]*h[0] + h[1]*h[1] + h[2]*h[2])
}

// Triangle треугольник в локальных координатах тела
type Triangle struct {
	A, B, C mgl64.Vec3
}

// Normal возвращает единичную нормаль треугольника (порядок обхода против часовой стрелки)
func (t Triangle) Normal() mgl64.Vec3 {
	n := t.B.Sub(t.A).Cross(t.C.Sub(t.A))
	if l := n.Len(); l > 0 {
		return n.Mul(1 / l)
	}
	return mgl64.Vec3{}
}

// TriangleMesh статическая аппроксимация поверхности террейна
type TriangleMesh struct {
	Triangles []Triangle
}

func (m TriangleMesh) Type() ShapeType { return TRIANGLE_MESH }

func (m TriangleMesh) Validate() error {
	if len(m.Triangles) == 0 {
		return fmt.Errorf("%w: пустая сетка треугольников", ErrInvalidBodyConfig)
	}
	for i, t := range m.Triangles {
		for _, v := range [3]mgl64.Vec3{t.A, t.B, t.C} {
			if !isFinite(v[0]) || !isFinite(v[1]) || !isFinite(v[2]) {
				return fmt.Errorf("%w: треугольник %d содержит нечисловую вершину", ErrInvalidBodyConfig, i)
			}
		}
		if t.B.Sub(t.A).Cross(t.C.Sub(t.A)).Len() == 0 {
			return fmt.Errorf("%w: вырожденный треугольник %d", ErrInvalidBodyConfig, i)
		}
	}
	return nil
}

func (m TriangleMesh) inertiaFactor() float64 { return 0 }

// BodyState снимок состояния тела для чтения снаружи мира
type BodyState struct {
	ID              BodyID
	Shape           ShapeType
	Mass            float64
	Pose            Pose
	LinearVelocity  mgl64.Vec3
	AngularVelocity mgl64.Vec3
	// Stepped true после первого шага симуляции, в котором тело участвовало
	Stepped  bool
	Sleeping bool
}

func isFinite(v float64) bool {
	return !math.IsNaN(v) && !math.IsInf(v, 0)
}
