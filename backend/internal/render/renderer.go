package render

import (
	"math"
	"sync"

	"github.com/go-gl/mathgl/mgl64"

	"upper-mountains/backend/internal/grain"
	"upper-mountains/backend/internal/physics"
	"upper-mountains/backend/internal/world"
)

var defaultColor = hexColor(0xb0b0b0)

// Renderer программный растеризатор сцены в FrameBuffer
type Renderer struct {
	mu         sync.RWMutex
	camera     Camera
	atmosphere Atmosphere
	// направление на солнце в мировых координатах
	sun mgl64.Vec3

	depth []float64
	proj  projector

	terrainCache map[*world.Heightfield][]physics.Triangle
}

// NewRenderer создает растеризатор
func NewRenderer(camera Camera, atmosphere Atmosphere) *Renderer {
	return &Renderer{
		camera:       camera,
		atmosphere:   atmosphere,
		sun:          mgl64.Vec3{0.4, 0.8, 0.3}.Normalize(),
		terrainCache: make(map[*world.Heightfield][]physics.Triangle),
	}
}

// SetCamera меняет камеру
func (r *Renderer) SetCamera(c Camera) {
	r.mu.Lock()
	r.camera = c
	r.mu.Unlock()
}

// Camera возвращает текущую камеру
func (r *Renderer) Camera() Camera {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.camera
}

// SetAtmosphere меняет атмосферу
func (r *Renderer) SetAtmosphere(a Atmosphere) {
	r.mu.Lock()
	r.atmosphere = a
	r.mu.Unlock()
}

// Atmosphere возвращает текущую атмосферу
func (r *Renderer) Atmosphere() Atmosphere {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.atmosphere
}

// Render очищает кадр фоном и рисует сущности с тестом глубины
func (r *Renderer) Render(fb *grain.FrameBuffer, entities []world.Entity) {
	r.mu.Lock()
	defer r.mu.Unlock()

	fb.Fill(r.atmosphere.Background)

	n := fb.Width * fb.Height
	if cap(r.depth) < n {
		r.depth = make([]float64, n)
	}
	r.depth = r.depth[:n]
	for i := range r.depth {
		r.depth[i] = math.Inf(1)
	}
	r.proj = newProjector(r.camera, fb.Width, fb.Height)

	for _, e := range entities {
		if e.Shape == nil {
			continue
		}
		base := defaultColor
		if c, err := ParseHexColor(e.Color); err == nil {
			base = c
		}

		switch e.Shape.Type {
		case world.SPHERE:
			if e.Shape.Sphere != nil {
				r.drawSphere(fb, e.Pose.Position, e.Shape.Sphere.Radius, base)
			}
		case world.BOX:
			if e.Shape.Box != nil {
				half := mgl64.Vec3{e.Shape.Box.Width / 2, e.Shape.Box.Height / 2, e.Shape.Box.Depth / 2}
				r.drawBox(fb, e.Pose, half, base)
			}
		case world.TERRAIN:
			if e.Shape.Terrain != nil && e.Shape.Terrain.Field != nil {
				r.drawTerrain(fb, e.Pose, e.Shape.Terrain.Field, base)
			}
		}
	}
}

// light освещение по Ламберту, ndotl косинус угла между нормалью и солнцем
func (r *Renderer) light(base grain.Color, ndotl float64) grain.Color {
	a := r.atmosphere
	diffuse := math.Max(0, ndotl) * a.SunIntensity
	return grain.Color{
		R: base.R * (a.Ambient.R*a.AmbientIntensity + diffuse),
		G: base.G * (a.Ambient.G*a.AmbientIntensity + diffuse),
		B: base.B * (a.Ambient.B*a.AmbientIntensity + diffuse),
		A: 1,
	}
}

// fog экспоненциальный туман exp(-(density*depth)^2)
func (r *Renderer) fog(c grain.Color, depth float64) grain.Color {
	a := r.atmosphere
	fd := a.FogDensity * depth
	f := 1 - math.Exp(-fd*fd)
	return grain.Color{
		R: mgl64.Clamp(c.R+(a.FogColor.R-c.R)*f, 0, 1),
		G: mgl64.Clamp(c.G+(a.FogColor.G-c.G)*f, 0, 1),
		B: mgl64.Clamp(c.B+(a.FogColor.B-c.B)*f, 0, 1),
		A: 1,
	}
}

func (r *Renderer) drawSphere(fb *grain.FrameBuffer, center mgl64.Vec3, radius float64, base grain.Color) {
	cx, cy, depth, ok := r.proj.project(center)
	if !ok {
		return
	}
	pr := radius * r.proj.focal / depth
	if pr < 0.5 {
		pr = 0.5
	}

	x0, x1 := clampInt(int(cx-pr), 0, fb.Width-1), clampInt(int(cx+pr)+1, 0, fb.Width-1)
	y0, y1 := clampInt(int(cy-pr), 0, fb.Height-1), clampInt(int(cy+pr)+1, 0, fb.Height-1)

	// нормаль считается в системе камеры, свет переводится туда же
	sunView := r.proj.toView(r.sun).Normalize()
	for y := y0; y <= y1; y++ {
		for x := x0; x <= x1; x++ {
			dx := (float64(x) + 0.5 - cx) / pr
			dy := (float64(y) + 0.5 - cy) / pr
			d2 := dx*dx + dy*dy
			if d2 > 1 {
				continue
			}
			nz := math.Sqrt(1 - d2)
			z := depth - nz*radius
			i := y*fb.Width + x
			if z >= r.depth[i] {
				continue
			}
			r.depth[i] = z

			normal := mgl64.Vec3{dx, -dy, nz}
			fb.Set(x, y, r.fog(r.light(base, normal.Dot(sunView)), z))
		}
	}
}

var boxFaces = [6][4]int{
	{0, 1, 3, 2}, {4, 6, 7, 5}, // -X, +X
	{0, 4, 5, 1}, {2, 3, 7, 6}, // -Y, +Y
	{0, 2, 6, 4}, {1, 5, 7, 3}, // -Z, +Z
}

func (r *Renderer) drawBox(fb *grain.FrameBuffer, pose physics.Pose, half mgl64.Vec3, base grain.Color) {
	var corners [8]mgl64.Vec3
	for i := 0; i < 8; i++ {
		local := mgl64.Vec3{-half[0], -half[1], -half[2]}
		if i&4 != 0 {
			local[0] = half[0]
		}
		if i&2 != 0 {
			local[1] = half[1]
		}
		if i&1 != 0 {
			local[2] = half[2]
		}
		corners[i] = pose.Position.Add(pose.Orientation.Rotate(local))
	}
	for _, f := range boxFaces {
		a, b, c, d := corners[f[0]], corners[f[1]], corners[f[2]], corners[f[3]]
		r.drawTriangle(fb, a, b, c, base)
		r.drawTriangle(fb, a, c, d, base)
	}
}

func (r *Renderer) drawTerrain(fb *grain.FrameBuffer, pose physics.Pose, field *world.Heightfield, base grain.Color) {
	tris, ok := r.terrainCache[field]
	if !ok {
		tris = field.Triangles()
		r.terrainCache[field] = tris
	}
	for _, t := range tris {
		a := pose.Position.Add(pose.Orientation.Rotate(t.A))
		b := pose.Position.Add(pose.Orientation.Rotate(t.B))
		c := pose.Position.Add(pose.Orientation.Rotate(t.C))
		r.drawTriangle(fb, a, b, c, base)
	}
}

// drawTriangle растеризует треугольник без отсечения задних граней
func (r *Renderer) drawTriangle(fb *grain.FrameBuffer, a, b, c mgl64.Vec3, base grain.Color) {
	ax, ay, az, okA := r.proj.project(a)
	bx, by, bz, okB := r.proj.project(b)
	cx, cy, cz, okC := r.proj.project(c)
	if !okA || !okB || !okC {
		return
	}

	area := edge(ax, ay, bx, by, cx, cy)
	if area == 0 {
		return
	}

	normal := b.Sub(a).Cross(c.Sub(a))
	if l := normal.Len(); l > 0 {
		normal = normal.Mul(1 / l)
	}
	// грань, повернутая от камеры, освещается с обратной стороны
	if normal.Dot(r.camera.Position.Sub(a)) < 0 {
		normal = normal.Mul(-1)
	}

	minX := clampInt(int(math.Floor(math.Min(ax, math.Min(bx, cx)))), 0, fb.Width-1)
	maxX := clampInt(int(math.Ceil(math.Max(ax, math.Max(bx, cx)))), 0, fb.Width-1)
	minY := clampInt(int(math.Floor(math.Min(ay, math.Min(by, cy)))), 0, fb.Height-1)
	maxY := clampInt(int(math.Ceil(math.Max(ay, math.Max(by, cy)))), 0, fb.Height-1)

	var color grain.Color
	shaded := false
	for y := minY; y <= maxY; y++ {
		py := float64(y) + 0.5
		for x := minX; x <= maxX; x++ {
			px := float64(x) + 0.5
			w0 := edge(bx, by, cx, cy, px, py) / area
			w1 := edge(cx, cy, ax, ay, px, py) / area
			w2 := 1 - w0 - w1
			if w0 < 0 || w1 < 0 || w2 < 0 {
				continue
			}
			z := w0*az + w1*bz + w2*cz
			i := y*fb.Width + x
			if z >= r.depth[i] {
				continue
			}
			r.depth[i] = z
			if !shaded {
				color = r.fog(r.light(base, normal.Dot(r.sun)), (az+bz+cz)/3)
				shaded = true
			}
			fb.Set(x, y, color)
		}
	}
}

func edge(ax, ay, bx, by, px, py float64) float64 {
	return (bx-ax)*(py-ay) - (by-ay)*(px-ax)
}

func clampInt(v, lo, hi int) int {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
