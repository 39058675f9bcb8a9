package physics

import (
	"math"

	"github.com/go-gl/mathgl/mgl64"
)

// contact точка контакта между a и b, нормаль направлена от a к b
type contact struct {
	a, b   *Body
	normal mgl64.Vec3
	point  mgl64.Vec3
	depth  float64

	targetVn       float64
	normalImpulse  float64
	friction       float64
	massNormal     float64
	rA, rB         mgl64.Vec3
}

var worldUp = mgl64.Vec3{0, 1, 0}

// detectContacts заполняет w.contacts парами из broadphase
func (w *World) detectContacts() {
	w.contacts = w.contacts[:0]

	switch w.params.Broadphase {
	case BroadphaseGrid:
		if w.grid == nil {
			w.grid = newSpatialGrid(w.params.GridCellSize)
		}
		w.grid.rebuild(w.bodies)
		for _, p := range w.grid.pairs() {
			w.collide(p.a, p.b)
		}
	case BroadphaseBruteForce:
		for i := 0; i < len(w.bodies); i++ {
			for j := i + 1; j < len(w.bodies); j++ {
				a, b := w.bodies[i], w.bodies[j]
				if skipPair(a, b) || !overlaps(a, b) {
					continue
				}
				w.collide(a, b)
			}
		}
	default:
		w.sorted = append(w.sorted[:0], w.bodies...)
		// сортировка вставками: между кадрами порядок почти не меняется
		for i := 1; i < len(w.sorted); i++ {
			cur := w.sorted[i]
			j := i - 1
			for j >= 0 && w.sorted[j].aabbMin[0] > cur.aabbMin[0] {
				w.sorted[j+1] = w.sorted[j]
				j--
			}
			w.sorted[j+1] = cur
		}
		for i := 0; i < len(w.sorted); i++ {
			a := w.sorted[i]
			for j := i + 1; j < len(w.sorted); j++ {
				b := w.sorted[j]
				if b.aabbMin[0] > a.aabbMax[0] {
					break
				}
				if skipPair(a, b) || !overlaps(a, b) {
					continue
				}
				// стабильный порядок пары независимо от сортировки
				if b.id < a.id {
					w.collide(b, a)
				} else {
					w.collide(a, b)
				}
			}
		}
	}
}

func skipPair(a, b *Body) bool {
	if a.isStatic() && b.isStatic() {
		return true
	}
	aIdle := a.isStatic() || a.sleeping
	bIdle := b.isStatic() || b.sleeping
	return aIdle && bIdle
}

// collide диспетчеризация узкой фазы по типам форм
func (w *World) collide(a, b *Body) {
	ta, tb := a.shape.Type(), b.shape.Type()
	if tb < ta {
		a, b = b, a
		ta, tb = tb, ta
	}

	switch {
	case ta == SPHERE && tb == SPHERE:
		w.sphereSphere(a, b)
	case ta == SPHERE && tb == BOX:
		w.sphereBox(a, b)
	case ta == SPHERE && tb == TRIANGLE_MESH:
		w.sphereMesh(a, b)
	case ta == BOX && tb == BOX:
		w.boxBox(a, b)
	case ta == BOX && tb == TRIANGLE_MESH:
		w.boxMesh(a, b)
	}
}

func (w *World) addContact(a, b *Body, normal, point mgl64.Vec3, depth float64) {
	w.contacts = append(w.contacts, contact{a: a, b: b, normal: normal, point: point, depth: depth})
}

func (w *World) sphereSphere(a, b *Body) {
	ra := a.shape.(Sphere).Radius
	rb := b.shape.(Sphere).Radius
	d := b.pose.Position.Sub(a.pose.Position)
	dist := d.Len()
	if dist >= ra+rb {
		return
	}
	n := worldUp
	if dist > 1e-12 {
		n = d.Mul(1 / dist)
	}
	w.addContact(a, b, n, a.pose.Position.Add(n.Mul(ra)), ra+rb-dist)
}

// sphereBox контакт сферы s с ориентированной коробкой box, нормаль от коробки к сфере
func (w *World) sphereBox(s, box *Body) {
	r := s.shape.(Sphere).Radius
	h := box.shape.(Box).HalfExtents
	q := box.pose.Orientation

	local := q.Conjugate().Rotate(s.pose.Position.Sub(box.pose.Position))
	closest := mgl64.Vec3{
		mgl64.Clamp(local[0], -h[0], h[0]),
		mgl64.Clamp(local[1], -h[1], h[1]),
		mgl64.Clamp(local[2], -h[2], h[2]),
	}

	diff := local.Sub(closest)
	dist := diff.Len()

	var nLocal mgl64.Vec3
	var depth float64
	if dist > 1e-12 {
		if dist >= r {
			return
		}
		nLocal = diff.Mul(1 / dist)
		depth = r - dist
	} else {
		// центр внутри коробки: выталкиваем через ближайшую грань
		axis, minGap := 0, math.Inf(1)
		for i := 0; i < 3; i++ {
			if gap := h[i] - math.Abs(local[i]); gap < minGap {
				axis, minGap = i, gap
			}
		}
		sign := 1.0
		if local[axis] < 0 {
			sign = -1
		}
		nLocal[axis] = sign
		closest[axis] = sign * h[axis]
		depth = r + minGap
	}

	n := q.Rotate(nLocal)
	point := box.pose.Position.Add(q.Rotate(closest))
	w.addContact(box, s, n, point, depth)
}

func (w *World) sphereMesh(s, mesh *Body) {
	r := s.shape.(Sphere).Radius
	c := s.pose.Position
	for i := range mesh.meshTris {
		mt := &mesh.meshTris[i]
		if c[0]+r < mt.min[0] || c[0]-r > mt.max[0] ||
			c[1]+r < mt.min[1] || c[1]-r > mt.max[1] ||
			c[2]+r < mt.min[2] || c[2]-r > mt.max[2] {
			continue
		}
		p := closestPointOnTriangle(c, mt.tri.A, mt.tri.B, mt.tri.C)
		d := c.Sub(p)
		dist := d.Len()
		if dist >= r {
			continue
		}
		n := mt.normal
		if dist > 1e-12 {
			n = d.Mul(1 / dist)
		}
		w.addContact(mesh, s, n, p, r-dist)
	}
}

// boxBox приближение через мировые AABB: нормаль по оси наименьшего перекрытия
func (w *World) boxBox(a, b *Body) {
	axis, minOverlap := -1, math.Inf(1)
	var point mgl64.Vec3
	for i := 0; i < 3; i++ {
		lo := math.Max(a.aabbMin[i], b.aabbMin[i])
		hi := math.Min(a.aabbMax[i], b.aabbMax[i])
		overlap := hi - lo
		if overlap <= 0 {
			return
		}
		point[i] = (lo + hi) * 0.5
		if overlap < minOverlap {
			axis, minOverlap = i, overlap
		}
	}
	var n mgl64.Vec3
	n[axis] = 1
	if b.pose.Position[axis] < a.pose.Position[axis] {
		n[axis] = -1
	}
	w.addContact(a, b, n, point, minOverlap)
}

// boxMesh проверяет восемь вершин коробки против плоскостей треугольников
func (w *World) boxMesh(box, mesh *Body) {
	h := box.shape.(Box).HalfExtents
	maxDepth := 2 * math.Max(h[0], math.Max(h[1], h[2]))
	for cx := -1.0; cx <= 1; cx += 2 {
		for cy := -1.0; cy <= 1; cy += 2 {
			for cz := -1.0; cz <= 1; cz += 2 {
				corner := box.pose.Position.Add(box.pose.Orientation.Rotate(mgl64.Vec3{cx * h[0], cy * h[1], cz * h[2]}))
				w.pointMesh(corner, maxDepth, box, mesh)
			}
		}
	}
}

func (w *World) pointMesh(p mgl64.Vec3, maxDepth float64, body, mesh *Body) {
	for i := range mesh.meshTris {
		mt := &mesh.meshTris[i]
		if p[0] < mt.min[0] || p[0] > mt.max[0] || p[2] < mt.min[2] || p[2] > mt.max[2] {
			continue
		}
		s := p.Sub(mt.tri.A).Dot(mt.normal)
		if s >= 0 || s < -maxDepth {
			continue
		}
		proj := p.Sub(mt.normal.Mul(s))
		if closestPointOnTriangle(proj, mt.tri.A, mt.tri.B, mt.tri.C).Sub(proj).Len() > 1e-9 {
			continue
		}
		w.addContact(mesh, body, mt.normal, p, -s)
	}
}

// closestPointOnTriangle ближайшая к p точка треугольника abc
func closestPointOnTriangle(p, a, b, c mgl64.Vec3) mgl64.Vec3 {
	ab := b.Sub(a)
	ac := c.Sub(a)
	ap := p.Sub(a)
	d1 := ab.Dot(ap)
	d2 := ac.Dot(ap)
	if d1 <= 0 && d2 <= 0 {
		return a
	}

	bp := p.Sub(b)
	d3 := ab.Dot(bp)
	d4 := ac.Dot(bp)
	if d3 >= 0 && d4 <= d3 {
		return b
	}

	vc := d1*d4 - d3*d2
	if vc <= 0 && d1 >= 0 && d3 <= 0 {
		v := d1 / (d1 - d3)
		return a.Add(ab.Mul(v))
	}

	cp := p.Sub(c)
	d5 := ab.Dot(cp)
	d6 := ac.Dot(cp)
	if d6 >= 0 && d5 <= d6 {
		return c
	}

	vb := d5*d2 - d1*d6
	if vb <= 0 && d2 >= 0 && d6 <= 0 {
		t := d2 / (d2 - d6)
		return a.Add(ac.Mul(t))
	}

	va := d3*d6 - d5*d4
	if va <= 0 && (d4-d3) >= 0 && (d5-d6) >= 0 {
		t := (d4 - d3) / ((d4 - d3) + (d5 - d6))
		return b.Add(c.Sub(b).Mul(t))
	}

	denom := 1 / (va + vb + vc)
	v := vb * denom
	t := vc * denom
	return a.Add(ab.Mul(v)).Add(ac.Mul(t))
}

// prepareContacts вычисляет эффективные массы и целевые скорости отскока
func (w *World) prepareContacts() {
	for i := range w.contacts {
		c := &w.contacts[i]
		c.rA = c.point.Sub(c.a.pose.Position)
		c.rB = c.point.Sub(c.b.pose.Position)

		k := c.a.invMass + c.b.invMass
		rnA := c.rA.Cross(c.normal)
		rnB := c.rB.Cross(c.normal)
		k += c.a.invInert*rnA.Dot(rnA) + c.b.invInert*rnB.Dot(rnB)
		if k > 0 {
			c.massNormal = 1 / k
		}

		c.friction = math.Sqrt(c.a.material.Friction * c.b.material.Friction)

		vn := relativeVelocity(c).Dot(c.normal)
		e := math.Max(c.a.material.Restitution, c.b.material.Restitution)
		if vn < -w.params.RestitutionThreshold {
			c.targetVn = -e * vn
		}
	}
}

func relativeVelocity(c *contact) mgl64.Vec3 {
	vA := c.a.linVel.Add(c.a.angVel.Cross(c.rA))
	vB := c.b.linVel.Add(c.b.angVel.Cross(c.rB))
	return vB.Sub(vA)
}

func applyImpulse(c *contact, p mgl64.Vec3) {
	if !c.a.isStatic() {
		c.a.linVel = c.a.linVel.Sub(p.Mul(c.a.invMass))
		c.a.angVel = c.a.angVel.Sub(c.rA.Cross(p).Mul(c.a.invInert))
	}
	if !c.b.isStatic() {
		c.b.linVel = c.b.linVel.Add(p.Mul(c.b.invMass))
		c.b.angVel = c.b.angVel.Add(c.rB.Cross(p).Mul(c.b.invInert))
	}
}

// solveContact одна итерация последовательных импульсов для контакта
func (w *World) solveContact(c *contact) {
	if c.massNormal == 0 {
		return
	}

	rel := relativeVelocity(c)
	vn := rel.Dot(c.normal)
	lambda := (c.targetVn - vn) * c.massNormal

	accumulated := math.Max(c.normalImpulse+lambda, 0)
	lambda = accumulated - c.normalImpulse
	c.normalImpulse = accumulated

	if lambda != 0 {
		if c.a.sleeping && !c.b.isStatic() {
			c.a.wake()
		}
		if c.b.sleeping && !c.a.isStatic() {
			c.b.wake()
		}
		applyImpulse(c, c.normal.Mul(lambda))
	}

	// трение по касательной, ограничено конусом Кулона
	rel = relativeVelocity(c)
	tangent := rel.Sub(c.normal.Mul(rel.Dot(c.normal)))
	tl := tangent.Len()
	if tl < 1e-9 {
		return
	}
	tangent = tangent.Mul(1 / tl)

	k := c.a.invMass + c.b.invMass
	rtA := c.rA.Cross(tangent)
	rtB := c.rB.Cross(tangent)
	k += c.a.invInert*rtA.Dot(rtA) + c.b.invInert*rtB.Dot(rtB)
	if k == 0 {
		return
	}

	maxF := c.friction * c.normalImpulse
	lambdaT := mgl64.Clamp(-tl/k, -maxF, maxF)
	if lambdaT != 0 {
		applyImpulse(c, tangent.Mul(lambdaT))
	}
}

// correctPositions устраняет оставшееся проникновение (Baumgarte)
func (w *World) correctPositions() {
	p := w.params
	for i := range w.contacts {
		c := &w.contacts[i]
		invSum := c.a.invMass + c.b.invMass
		if invSum == 0 {
			continue
		}
		excess := c.depth - p.Slop
		if excess <= 0 {
			continue
		}
		corr := c.normal.Mul(excess * p.Baumgarte / invSum)
		if !c.a.isStatic() && !c.a.sleeping {
			c.a.pose.Position = c.a.pose.Position.Sub(corr.Mul(c.a.invMass))
		}
		if !c.b.isStatic() && !c.b.sleeping {
			c.b.pose.Position = c.b.pose.Position.Add(corr.Mul(c.b.invMass))
		}
	}
}
