package physics

import (
	"math"

	"github.com/go-gl/mathgl/mgl64"
)

// Body твердое тело. Принадлежит исключительно World.
type Body struct {
	id       BodyID
	shape    Shape
	mass     float64
	invMass  float64
	invInert float64
	pose     Pose
	linVel   mgl64.Vec3
	angVel   mgl64.Vec3
	material Material

	stepped  bool
	sleeping bool
	idleTime float64

	aabbMin mgl64.Vec3
	aabbMax mgl64.Vec3

	// треугольники сетки в мировых координатах, тело статично и не двигается
	meshTris []meshTriangle
}

type meshTriangle struct {
	tri    Triangle
	normal mgl64.Vec3
	min    mgl64.Vec3
	max    mgl64.Vec3
}

func newBody(id BodyID, shape Shape, mass float64, pose Pose) *Body {
	b := &Body{
		id:       id,
		shape:    shape,
		mass:     mass,
		pose:     pose,
		material: DefaultMaterial(),
	}
	if mass > 0 {
		b.invMass = 1 / mass
		if k := shape.inertiaFactor(); k > 0 {
			b.invInert = 1 / (k * mass)
		}
	}

	if mesh, ok := shape.(TriangleMesh); ok {
		b.meshTris = make([]meshTriangle, len(mesh.Triangles))
		for i, t := range mesh.Triangles {
			wt := Triangle{
				A: pose.Position.Add(pose.Orientation.Rotate(t.A)),
				B: pose.Position.Add(pose.Orientation.Rotate(t.B)),
				C: pose.Position.Add(pose.Orientation.Rotate(t.C)),
			}
			mt := meshTriangle{tri: wt, normal: wt.Normal()}
			for j := 0; j < 3; j++ {
				mt.min[j] = math.Min(wt.A[j], math.Min(wt.B[j], wt.C[j]))
				mt.max[j] = math.Max(wt.A[j], math.Max(wt.B[j], wt.C[j]))
			}
			b.meshTris[i] = mt
		}
	}

	b.updateBounds()
	return b
}

func (b *Body) isStatic() bool {
	return b.invMass == 0
}

// updateBounds пересчитывает мировой AABB тела
func (b *Body) updateBounds() {
	switch s := b.shape.(type) {
	case Sphere:
		r := mgl64.Vec3{s.Radius, s.Radius, s.Radius}
		b.aabbMin = b.pose.Position.Sub(r)
		b.aabbMax = b.pose.Position.Add(r)
	case Box:
		m := b.pose.Orientation.Mat4()
		var ext mgl64.Vec3
		for i := 0; i < 3; i++ {
			for j := 0; j < 3; j++ {
				ext[i] += math.Abs(m.At(i, j)) * s.HalfExtents[j]
			}
		}
		b.aabbMin = b.pose.Position.Sub(ext)
		b.aabbMax = b.pose.Position.Add(ext)
	case TriangleMesh:
		if len(b.meshTris) == 0 {
			return
		}
		lo, hi := b.meshTris[0].min, b.meshTris[0].max
		for _, t := range b.meshTris[1:] {
			for i := 0; i < 3; i++ {
				lo[i] = math.Min(lo[i], t.min[i])
				hi[i] = math.Max(hi[i], t.max[i])
			}
		}
		b.aabbMin, b.aabbMax = lo, hi
	}
}

func (b *Body) state() BodyState {
	return BodyState{
		ID:              b.id,
		Shape:           b.shape.Type(),
		Mass:            b.mass,
		Pose:            b.pose,
		LinearVelocity:  b.linVel,
		AngularVelocity: b.angVel,
		Stepped:         b.stepped,
		Sleeping:        b.sleeping,
	}
}

func (b *Body) wake() {
	b.sleeping = false
	b.idleTime = 0
}

func overlaps(a, b *Body) bool {
	return a.aabbMin[0] <= b.aabbMax[0] && a.aabbMax[0] >= b.aabbMin[0] &&
		a.aabbMin[1] <= b.aabbMax[1] && a.aabbMax[1] >= b.aabbMin[1] &&
		a.aabbMin[2] <= b.aabbMax[2] && a.aabbMax[2] >= b.aabbMin[2]
}
