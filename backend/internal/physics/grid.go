package physics

import (
	"cmp"
	"math"
	"slices"

	"github.com/go-gl/mathgl/mgl64"
)

// maxGridCellsPerBody тела с AABB на большее число ячеек проверяются со всеми телами
const maxGridCellsPerBody = 512

type cellKey struct {
	x, y, z int64
}

type bodyPair struct {
	a, b *Body
}

// spatialGrid равномерная пространственная сетка для отбора пар.
// Тело занимает все ячейки, которые пересекает его AABB. Сетка перестраивается на каждом подшаге,
// срезы ячеек переиспользуются, поэтому в установившемся режиме память не выделяется.
type spatialGrid struct {
	cellSize float64
	cells    map[cellKey][]*Body
	bodies   []*Body
	// террейн и другие крупные тела
	oversized []*Body

	seen       map[[2]BodyID]struct{}
	candidates []bodyPair
}

func newSpatialGrid(cellSize float64) *spatialGrid {
	return &spatialGrid{
		cellSize: cellSize,
		cells:    make(map[cellKey][]*Body),
		seen:     make(map[[2]BodyID]struct{}),
	}
}

func (g *spatialGrid) coords(v mgl64.Vec3) cellKey {
	return cellKey{
		x: int64(math.Floor(v[0] / g.cellSize)),
		y: int64(math.Floor(v[1] / g.cellSize)),
		z: int64(math.Floor(v[2] / g.cellSize)),
	}
}

// cellSpan число ячеек, которые покрывает AABB тела
func (g *spatialGrid) cellSpan(b *Body) float64 {
	n := 1.0
	for i := 0; i < 3; i++ {
		n *= math.Floor(b.aabbMax[i]/g.cellSize) - math.Floor(b.aabbMin[i]/g.cellSize) + 1
	}
	return n
}

// rebuild раскладывает тела по ячейкам
func (g *spatialGrid) rebuild(bodies []*Body) {
	for k, cell := range g.cells {
		if len(cell) == 0 {
			// ячейка пустовала весь прошлый подшаг
			delete(g.cells, k)
			continue
		}
		g.cells[k] = cell[:0]
	}
	g.bodies = bodies
	g.oversized = g.oversized[:0]

	for _, b := range bodies {
		if span := g.cellSpan(b); span > maxGridCellsPerBody || math.IsNaN(span) {
			g.oversized = append(g.oversized, b)
			continue
		}
		lo, hi := g.coords(b.aabbMin), g.coords(b.aabbMax)
		for x := lo.x; x <= hi.x; x++ {
			for y := lo.y; y <= hi.y; y++ {
				for z := lo.z; z <= hi.z; z++ {
					k := cellKey{x, y, z}
					g.cells[k] = append(g.cells[k], b)
				}
			}
		}
	}
}

// pairs возвращает пары с пересекающимися AABB, каждую один раз, упорядоченные по идентификаторам
func (g *spatialGrid) pairs() []bodyPair {
	clear(g.seen)
	g.candidates = g.candidates[:0]

	visit := func(a, b *Body) {
		if a.id > b.id {
			a, b = b, a
		}
		key := [2]BodyID{a.id, b.id}
		if _, dup := g.seen[key]; dup {
			return
		}
		g.seen[key] = struct{}{}
		if skipPair(a, b) || !overlaps(a, b) {
			return
		}
		g.candidates = append(g.candidates, bodyPair{a, b})
	}

	for _, cell := range g.cells {
		for i := 0; i < len(cell); i++ {
			for j := i + 1; j < len(cell); j++ {
				visit(cell[i], cell[j])
			}
		}
	}
	for _, o := range g.oversized {
		for _, b := range g.bodies {
			if b != o {
				visit(o, b)
			}
		}
	}

	// обход карты случаен, решателю нужен стабильный порядок контактов
	slices.SortFunc(g.candidates, func(x, y bodyPair) int {
		if c := cmp.Compare(x.a.id, y.a.id); c != 0 {
			return c
		}
		return cmp.Compare(x.b.id, y.b.id)
	})
	return g.candidates
}
