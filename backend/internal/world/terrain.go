package world

import (
	"fmt"
	"math"

	"github.com/go-gl/mathgl/mgl64"

	"upper-mountains/backend/internal/noisehash"
	"upper-mountains/backend/internal/physics"
)

// Константы для террейна по умолчанию
const (
	TerrainGridSize  = 64
	TerrainCellSize  = 20.0
	TerrainMinHeight = -30.0
	TerrainMaxHeight = 120.0
)

// Heightfield сетка высот. Узлы центрированы относительно начала координат.
type Heightfield struct {
	Width    int
	Depth    int
	CellSize float64
	Heights  []float64
}

// NewHeightfield создает сетку из готовых высот
func NewHeightfield(width, depth int, cellSize float64, heights []float64) (*Heightfield, error) {
	if width < 2 || depth < 2 {
		return nil, fmt.Errorf("%w: сетка высот %dx%d", ErrInvalidEntity, width, depth)
	}
	if cellSize <= 0 || math.IsNaN(cellSize) || math.IsInf(cellSize, 0) {
		return nil, fmt.Errorf("%w: шаг сетки %v", ErrInvalidEntity, cellSize)
	}
	if len(heights) != width*depth {
		return nil, fmt.Errorf("%w: ожидалось %d высот, получено %d", ErrInvalidEntity, width*depth, len(heights))
	}
	return &Heightfield{Width: width, Depth: depth, CellSize: cellSize, Heights: heights}, nil
}

// GenerateHeightfield процедурный рельеф: фрактальный шум плюс несколько гор
func GenerateHeightfield(width, depth int, cellSize, minHeight, maxHeight, seed float64) (*Heightfield, error) {
	if width < 2 || depth < 2 {
		return nil, fmt.Errorf("%w: сетка высот %dx%d", ErrInvalidEntity, width, depth)
	}
	if maxHeight <= minHeight {
		return nil, fmt.Errorf("%w: диапазон высот [%v, %v]", ErrInvalidEntity, minHeight, maxHeight)
	}

	scales := []float64{1.0, 0.5, 0.25, 0.125}
	amplitudes := []float64{0.5, 0.25, 0.125, 0.0625}

	type peak struct{ x, z, height, radius float64 }
	// фиксированные места гор, чтобы рельеф был воспроизводимым
	anchors := []mgl64.Vec2{{0.2, 0.3}, {0.7, 0.8}, {0.4, 0.7}, {0.8, 0.2}, {0.5, 0.5}}
	peaks := make([]peak, len(anchors))
	for i, a := range anchors {
		peaks[i] = peak{
			x:      a[0] * float64(width-1),
			z:      a[1] * float64(depth-1),
			height: 0.5 + 0.5*noisehash.FractSin(float64(i)*0.1+seed, 0.5),
			radius: float64(width) * (0.08 + 0.12*noisehash.FractSin(0.5, float64(i)*0.1+seed)),
		}
	}

	heights := make([]float64, width*depth)
	span := maxHeight - minHeight
	for j := 0; j < depth; j++ {
		for i := 0; i < width; i++ {
			nx := float64(i) / float64(width-1)
			nz := float64(j) / float64(depth-1)

			elevation := 0.0
			for layer := range scales {
				elevation += smoothNoise(nx*scales[layer]*10+seed, nz*scales[layer]*10) * amplitudes[layer]
			}
			elevation *= 0.5

			for _, p := range peaks {
				dx, dz := float64(i)-p.x, float64(j)-p.z
				dist := math.Sqrt(dx*dx + dz*dz)
				if dist < p.radius {
					falloff := 1 - dist/p.radius
					elevation += p.height * falloff * falloff
				}
			}

			heights[j*width+i] = minHeight + mgl64.Clamp(elevation, 0, 1)*span
		}
	}
	return NewHeightfield(width, depth, cellSize, heights)
}

// smoothNoise билинейно сглаженный хеш-шум
func smoothNoise(x, y float64) float64 {
	x0, y0 := math.Floor(x), math.Floor(y)
	sx := smoothstep(x - x0)
	sy := smoothstep(y - y0)

	n00 := noisehash.FractSin(x0, y0)
	n10 := noisehash.FractSin(x0+1, y0)
	n01 := noisehash.FractSin(x0, y0+1)
	n11 := noisehash.FractSin(x0+1, y0+1)

	return lerp(lerp(n00, n10, sx), lerp(n01, n11, sx), sy)
}

func smoothstep(t float64) float64 {
	return t * t * (3 - 2*t)
}

func lerp(a, b, t float64) float64 {
	return a + t*(b-a)
}

// At высота узла (i, j)
func (h *Heightfield) At(i, j int) float64 {
	return h.Heights[j*h.Width+i]
}

// Vertex мировая (локальная для тела) позиция узла
func (h *Heightfield) Vertex(i, j int) mgl64.Vec3 {
	return mgl64.Vec3{
		(float64(i) - float64(h.Width-1)/2) * h.CellSize,
		h.At(i, j),
		(float64(j) - float64(h.Depth-1)/2) * h.CellSize,
	}
}

// Extent полный размер сетки по X и Z
func (h *Heightfield) Extent() mgl64.Vec2 {
	return mgl64.Vec2{float64(h.Width-1) * h.CellSize, float64(h.Depth-1) * h.CellSize}
}

// HeightRange минимальная и максимальная высота
func (h *Heightfield) HeightRange() (float64, float64) {
	lo, hi := math.Inf(1), math.Inf(-1)
	for _, v := range h.Heights {
		lo = math.Min(lo, v)
		hi = math.Max(hi, v)
	}
	return lo, hi
}

// HeightAt билинейная высота в точке (x, z). Вне сетки возвращается высота ближайшего края.
func (h *Heightfield) HeightAt(x, z float64) float64 {
	fx := mgl64.Clamp(x/h.CellSize+float64(h.Width-1)/2, 0, float64(h.Width-1))
	fz := mgl64.Clamp(z/h.CellSize+float64(h.Depth-1)/2, 0, float64(h.Depth-1))

	i0, j0 := int(math.Floor(fx)), int(math.Floor(fz))
	i1, j1 := min(i0+1, h.Width-1), min(j0+1, h.Depth-1)
	tx, tz := fx-float64(i0), fz-float64(j0)

	return lerp(lerp(h.At(i0, j0), h.At(i1, j0), tx), lerp(h.At(i0, j1), h.At(i1, j1), tx), tz)
}

// Triangles разбивает каждую ячейку на два треугольника с нормалью вверх
func (h *Heightfield) Triangles() []physics.Triangle {
	tris := make([]physics.Triangle, 0, (h.Width-1)*(h.Depth-1)*2)
	for j := 0; j < h.Depth-1; j++ {
		for i := 0; i < h.Width-1; i++ {
			p00 := h.Vertex(i, j)
			p10 := h.Vertex(i+1, j)
			p01 := h.Vertex(i, j+1)
			p11 := h.Vertex(i+1, j+1)
			tris = append(tris,
				physics.Triangle{A: p00, B: p01, C: p10},
				physics.Triangle{A: p10, B: p01, C: p11},
			)
		}
	}
	return tris
}
