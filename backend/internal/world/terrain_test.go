package world

import (
	"math"
	"testing"

	"github.com/go-gl/mathgl/mgl64"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"upper-mountains/backend/internal/physics"
)

func TestNewHeightfield_Validation(t *testing.T) {
	_, err := NewHeightfield(1, 3, 1, []float64{0, 0, 0})
	assert.ErrorIs(t, err, ErrInvalidEntity, "Нужно минимум 2 узла по каждой оси")

	_, err = NewHeightfield(2, 2, 0, make([]float64, 4))
	assert.ErrorIs(t, err, ErrInvalidEntity)
	_, err = NewHeightfield(2, 2, math.Inf(1), make([]float64, 4))
	assert.ErrorIs(t, err, ErrInvalidEntity)

	_, err = NewHeightfield(2, 2, 1, make([]float64, 3))
	assert.ErrorIs(t, err, ErrInvalidEntity, "Количество высот должно совпадать с размером сетки")
}

func TestHeightfield_Geometry(t *testing.T) {
	// 3x2 узла, шаг 10
	h, err := NewHeightfield(3, 2, 10, []float64{
		0, 1, 2,
		3, 4, 5,
	})
	require.NoError(t, err)

	assert.Equal(t, 4.0, h.At(1, 1))
	v := h.Vertex(0, 0)
	assert.Equal(t, -10.0, v.X(), "Сетка центрирована по X")
	assert.Equal(t, -5.0, v.Z(), "Сетка центрирована по Z")
	assert.Equal(t, 0.0, v.Y())

	ext := h.Extent()
	assert.Equal(t, 20.0, ext.X())
	assert.Equal(t, 10.0, ext.Y())

	lo, hi := h.HeightRange()
	assert.Equal(t, 0.0, lo)
	assert.Equal(t, 5.0, hi)
}

func TestHeightfield_HeightAt(t *testing.T) {
	h, err := NewHeightfield(3, 2, 10, []float64{
		0, 1, 2,
		3, 4, 5,
	})
	require.NoError(t, err)

	assert.InDelta(t, 4.0, h.HeightAt(0, 5), 1e-12, "В узле возвращается его высота")
	assert.InDelta(t, 0.0, h.HeightAt(-10, -5), 1e-12)
	assert.InDelta(t, 2.5, h.HeightAt(0, 0), 1e-12, "Середина между 1 и 4 по Z")
	assert.InDelta(t, 2.0, h.HeightAt(-5, 0), 1e-12, "Билинейная интерполяция внутри ячейки")

	assert.InDelta(t, 5.0, h.HeightAt(1000, 1000), 1e-12, "Вне сетки берется ближайший край")
	assert.InDelta(t, 0.0, h.HeightAt(-1000, -1000), 1e-12)
}

func TestHeightfield_TrianglesFaceUp(t *testing.T) {
	h, err := GenerateHeightfield(8, 6, 5, -10, 40, 1.5)
	require.NoError(t, err)

	tris := h.Triangles()
	assert.Len(t, tris, 2*(8-1)*(6-1))

	for i, tri := range tris {
		n := tri.B.Sub(tri.A).Cross(tri.C.Sub(tri.A))
		assert.Greater(t, n.Y(), 0.0, "Нормаль треугольника %d должна смотреть вверх", i)
	}
}

func TestGenerateHeightfield(t *testing.T) {
	_, err := GenerateHeightfield(1, 4, 1, 0, 1, 0)
	assert.ErrorIs(t, err, ErrInvalidEntity)
	_, err = GenerateHeightfield(4, 4, 1, 10, 10, 0)
	assert.ErrorIs(t, err, ErrInvalidEntity, "Пустой диапазон высот недопустим")

	a, err := GenerateHeightfield(32, 32, 10, -30, 120, 0.42)
	require.NoError(t, err)
	b, err := GenerateHeightfield(32, 32, 10, -30, 120, 0.42)
	require.NoError(t, err)
	assert.Equal(t, a.Heights, b.Heights, "Одинаковое зерно дает одинаковый рельеф")

	lo, hi := a.HeightRange()
	assert.GreaterOrEqual(t, lo, -30.0)
	assert.LessOrEqual(t, hi, 120.0)
	assert.Greater(t, hi, lo, "Рельеф не плоский")

	c, err := GenerateHeightfield(32, 32, 10, -30, 120, 7.3)
	require.NoError(t, err)
	assert.NotEqual(t, a.Heights, c.Heights, "Другое зерно дает другой рельеф")
}

func TestShapeDescriptor_Collider(t *testing.T) {
	pose := physics.IdentityPose()

	sphere, err := NewSphere("s", pose, 2, "").Shape.Collider()
	require.NoError(t, err)
	assert.Equal(t, physics.Sphere{Radius: 2}, sphere)

	box, err := NewBox("b", pose, 2, 4, 6, "").Shape.Collider()
	require.NoError(t, err)
	assert.Equal(t, physics.Box{HalfExtents: mgl64.Vec3{1, 2, 3}}, box)

	field, err := NewHeightfield(2, 2, 1, []float64{0, 0, 0, 0})
	require.NoError(t, err)
	mesh, err := NewTerrain("t", pose, field, "").Shape.Collider()
	require.NoError(t, err)
	assert.Equal(t, physics.TRIANGLE_MESH, mesh.Type())
	assert.Len(t, mesh.(physics.TriangleMesh).Triangles, 2)

	var missing *ShapeDescriptor
	_, err = missing.Collider()
	assert.ErrorIs(t, err, ErrInvalidEntity)
	_, err = (&ShapeDescriptor{Type: BOX}).Collider()
	assert.ErrorIs(t, err, ErrInvalidEntity)
	_, err = (&ShapeDescriptor{Type: ShapeType(42)}).Collider()
	assert.ErrorIs(t, err, ErrInvalidEntity)
	assert.Equal(t, "shape(42)", ShapeType(42).String())
}
