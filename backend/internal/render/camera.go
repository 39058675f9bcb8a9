package render

import (
	"math"

	"github.com/go-gl/mathgl/mgl64"
)

// Camera перспективная камера
type Camera struct {
	Position mgl64.Vec3
	Target   mgl64.Vec3
	Up       mgl64.Vec3
	// FovY вертикальный угол обзора в градусах
	FovY float64
	Near float64
	Far  float64
}

// DefaultCamera камера, смотрящая на горы сверху-сбоку
func DefaultCamera() Camera {
	return Camera{
		Position: mgl64.Vec3{0, 250, 700},
		Target:   mgl64.Vec3{0, 0, -150},
		Up:       mgl64.Vec3{0, 1, 0},
		FovY:     60,
		Near:     1,
		Far:      10000,
	}
}

// projector кэширует матрицы камеры для одного кадра
type projector struct {
	viewProj mgl64.Mat4
	view     mgl64.Mat4
	width    float64
	height   float64
	focal    float64
	near     float64
}

func newProjector(c Camera, width, height int) projector {
	aspect := float64(width) / float64(height)
	proj := mgl64.Perspective(mgl64.DegToRad(c.FovY), aspect, c.Near, c.Far)
	view := mgl64.LookAtV(c.Position, c.Target, c.Up)
	return projector{
		viewProj: proj.Mul4(view),
		view:     view,
		width:    float64(width),
		height:   float64(height),
		focal:    float64(height) / 2 / math.Tan(mgl64.DegToRad(c.FovY)/2),
		near:     c.Near,
	}
}

// project переводит мировую точку в экранные координаты.
// depth расстояние вдоль оси взгляда, ok false для точек за ближней плоскостью.
func (p projector) project(v mgl64.Vec3) (x, y, depth float64, ok bool) {
	clip := p.viewProj.Mul4x1(v.Vec4(1))
	if clip[3] < p.near {
		return 0, 0, 0, false
	}
	ndcX := clip[0] / clip[3]
	ndcY := clip[1] / clip[3]
	x = (ndcX + 1) / 2 * p.width
	y = (1 - ndcY) / 2 * p.height
	return x, y, clip[3], true
}

// toView переводит направление в систему координат камеры
func (p projector) toView(dir mgl64.Vec3) mgl64.Vec3 {
	return p.view.Mul4x1(dir.Vec4(0)).Vec3()
}
