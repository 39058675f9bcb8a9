package world

import (
	"fmt"

	"github.com/go-gl/mathgl/mgl64"

	"upper-mountains/backend/internal/physics"
)

// Entity узел сцены, который рисуется рендерером.
// Body является невладеющей ссылкой на тело, ноль означает отсутствие привязки.
type Entity struct {
	ID       string
	Name     string
	Mesh     string
	Material string
	Shape    *ShapeDescriptor
	Pose     physics.Pose
	Color    string
	Body     physics.BodyID
}

// Bound сообщает, привязана ли сущность к телу
func (e Entity) Bound() bool {
	return e.Body != 0
}

// ShapeDescriptor описание формы для рендерера
type ShapeDescriptor struct {
	Type    ShapeType
	Sphere  *SphereData
	Box     *BoxData
	Terrain *TerrainData
}

type ShapeType int

const (
	SPHERE ShapeType = iota
	BOX
	TERRAIN
)

func (t ShapeType) String() string {
	switch t {
	case SPHERE:
		return "sphere"
	case BOX:
		return "box"
	case TERRAIN:
		return "terrain"
	default:
		return fmt.Sprintf("shape(%d)", int(t))
	}
}

type SphereData struct {
	Radius float64
}

type BoxData struct {
	Width  float64
	Height float64
	Depth  float64
}

type TerrainData struct {
	Field *Heightfield
}

// Collider строит форму столкновений, соответствующую описанию
func (d *ShapeDescriptor) Collider() (physics.Shape, error) {
	if d == nil {
		return nil, fmt.Errorf("%w: форма не задана", ErrInvalidEntity)
	}
	switch d.Type {
	case SPHERE:
		if d.Sphere == nil {
			return nil, fmt.Errorf("%w: нет данных сферы", ErrInvalidEntity)
		}
		return physics.Sphere{Radius: d.Sphere.Radius}, nil
	case BOX:
		if d.Box == nil {
			return nil, fmt.Errorf("%w: нет данных коробки", ErrInvalidEntity)
		}
		return physics.NewBoxFromScale(mgl64.Vec3{d.Box.Width, d.Box.Height, d.Box.Depth}), nil
	case TERRAIN:
		if d.Terrain == nil || d.Terrain.Field == nil {
			return nil, fmt.Errorf("%w: нет данных террейна", ErrInvalidEntity)
		}
		return physics.TriangleMesh{Triangles: d.Terrain.Field.Triangles()}, nil
	default:
		return nil, fmt.Errorf("%w: неизвестный тип формы %v", ErrInvalidEntity, d.Type)
	}
}

// NewSphere создает сущность-шар
func NewSphere(id string, pose physics.Pose, radius float64, color string) Entity {
	return Entity{
		ID:       id,
		Name:     id,
		Mesh:     "sphere",
		Material: "standard",
		Shape:    &ShapeDescriptor{Type: SPHERE, Sphere: &SphereData{Radius: radius}},
		Pose:     pose,
		Color:    color,
	}
}

// NewBox создает сущность-коробку с полными размерами сторон
func NewBox(id string, pose physics.Pose, width, height, depth float64, color string) Entity {
	return Entity{
		ID:       id,
		Name:     id,
		Mesh:     "box",
		Material: "standard",
		Shape:    &ShapeDescriptor{Type: BOX, Box: &BoxData{Width: width, Height: height, Depth: depth}},
		Pose:     pose,
		Color:    color,
	}
}

// NewTerrain создает сущность террейна
func NewTerrain(id string, pose physics.Pose, field *Heightfield, color string) Entity {
	return Entity{
		ID:       id,
		Name:     id,
		Mesh:     "terrain",
		Material: "terrain",
		Shape:    &ShapeDescriptor{Type: TERRAIN, Terrain: &TerrainData{Field: field}},
		Pose:     pose,
		Color:    color,
	}
}
