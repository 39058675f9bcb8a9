package physics

import (
	"math"
	"math/rand"
	"sort"
	"testing"

	"github.com/go-gl/mathgl/mgl64"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const fixed = 1.0 / 60.0

func newTestWorld(t *testing.T) *World {
	t.Helper()
	w, err := NewWorld(mgl64.Vec3{0, -8, 0}, DefaultSolverParams())
	require.NoError(t, err)
	return w
}

func at(x, y, z float64) Pose {
	return NewPose(mgl64.Vec3{x, y, z}, mgl64.QuatIdent())
}

func TestNewWorld_Invalid(t *testing.T) {
	_, err := NewWorld(mgl64.Vec3{0, math.NaN(), 0}, DefaultSolverParams())
	assert.Error(t, err, "Гравитация с NaN недопустима")

	params := DefaultSolverParams()
	params.FixedTimeStep = 0
	_, err = NewWorld(mgl64.Vec3{}, params)
	assert.Error(t, err)

	params = DefaultSolverParams()
	params.Iterations = 0
	_, err = NewWorld(mgl64.Vec3{}, params)
	assert.Error(t, err)
}

func TestCreateBody_Validation(t *testing.T) {
	w := newTestWorld(t)

	tests := []struct {
		name  string
		shape Shape
		mass  float64
		pose  Pose
	}{
		{"Без формы", nil, 1, IdentityPose()},
		{"Нулевой радиус", Sphere{Radius: 0}, 1, IdentityPose()},
		{"Отрицательные размеры", Box{HalfExtents: mgl64.Vec3{1, -1, 1}}, 1, IdentityPose()},
		{"Отрицательная масса", Sphere{Radius: 1}, -1, IdentityPose()},
		{"Масса NaN", Sphere{Radius: 1}, math.NaN(), IdentityPose()},
		{"Позиция NaN", Sphere{Radius: 1}, 1, at(math.NaN(), 0, 0)},
		{"Позиция Inf", Sphere{Radius: 1}, 1, at(0, math.Inf(1), 0)},
		{"Нулевой кватернион", Sphere{Radius: 1}, 1, Pose{}},
		{"Пустая сетка", TriangleMesh{}, 0, IdentityPose()},
		{"Динамическая сетка", floorMesh(10), 1, IdentityPose()},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := w.CreateBody(tt.shape, tt.mass, tt.pose)
			assert.ErrorIs(t, err, ErrInvalidBodyConfig)
		})
	}
	assert.Zero(t, w.BodyCount(), "Отклоненные тела не попадают в мир")
}

func TestCreateBody_IDsAndNormalization(t *testing.T) {
	w := newTestWorld(t)

	a, err := w.CreateBody(Sphere{Radius: 1}, 1, Pose{Orientation: mgl64.Quat{W: 2}})
	require.NoError(t, err)
	b, err := w.CreateBody(Box{HalfExtents: mgl64.Vec3{1, 1, 1}}, 0, IdentityPose())
	require.NoError(t, err)

	assert.NotZero(t, a, "Ноль никогда не выдается")
	assert.Greater(t, b, a, "Идентификаторы растут монотонно")
	assert.Equal(t, []BodyID{a, b}, w.BodyIDs())

	pose, err := w.GetBodyTransform(a)
	require.NoError(t, err)
	assert.InDelta(t, 1.0, pose.Orientation.Len(), 1e-12, "Кватернион нормализуется при создании")

	state, err := w.BodyState(a)
	require.NoError(t, err)
	assert.False(t, state.Stepped, "До первого шага тело не симулировалось")
	assert.Equal(t, SPHERE, state.Shape)
}

func TestDestroyBody(t *testing.T) {
	w := newTestWorld(t)
	id, err := w.CreateBody(Sphere{Radius: 1}, 1, IdentityPose())
	require.NoError(t, err)

	require.NoError(t, w.DestroyBody(id))
	assert.Zero(t, w.BodyCount())
	assert.ErrorIs(t, w.DestroyBody(id), ErrUnknownBody)

	_, err = w.GetBodyTransform(id)
	assert.ErrorIs(t, err, ErrUnknownBody)
	_, err = w.BodyState(id)
	assert.ErrorIs(t, err, ErrUnknownBody)
	assert.ErrorIs(t, w.ApplyImpulse(id, mgl64.Vec3{1, 0, 0}), ErrUnknownBody)
}

func TestStepSimulation_InvalidTimestep(t *testing.T) {
	w := newTestWorld(t)
	id, err := w.CreateBody(Sphere{Radius: 1}, 1, at(0, 10, 0))
	require.NoError(t, err)

	_, err = w.StepSimulation(fixed*0.5, 10)
	require.NoError(t, err)
	residual := w.Residual()

	for _, dt := range []float64{math.NaN(), math.Inf(1), math.Inf(-1), -fixed} {
		steps, err := w.StepSimulation(dt, 10)
		assert.ErrorIs(t, err, ErrInvalidTimestep, "dt=%v", dt)
		assert.Zero(t, steps)
	}

	// Состояние мира не изменилось
	assert.Equal(t, residual, w.Residual())
	pose, err := w.GetBodyTransform(id)
	require.NoError(t, err)
	assert.Equal(t, mgl64.Vec3{0, 10, 0}, pose.Position)
	assert.Zero(t, w.SimulatedTime())
}

// quarterWorld мир с подшагом 0.25, точно представимым в двоичном виде
func quarterWorld(t *testing.T) *World {
	t.Helper()
	params := DefaultSolverParams()
	params.FixedTimeStep = 0.25
	w, err := NewWorld(mgl64.Vec3{0, -8, 0}, params)
	require.NoError(t, err)
	return w
}

func TestStepSimulation_Accumulator(t *testing.T) {
	w := quarterWorld(t)

	steps, err := w.StepSimulation(0.375, 10)
	require.NoError(t, err)
	assert.Equal(t, 1, steps)
	assert.Equal(t, 0.125, w.Residual(), "Остаток переносится на следующий вызов")

	steps, err = w.StepSimulation(0.125, 10)
	require.NoError(t, err)
	assert.Equal(t, 1, steps)
	assert.Zero(t, w.Residual())

	steps, err = w.StepSimulation(0, 10)
	require.NoError(t, err)
	assert.Zero(t, steps, "Нулевой шаг ничего не делает")
	assert.Equal(t, 0.5, w.SimulatedTime())
	assert.Zero(t, w.DroppedTime())
}

func TestStepSimulation_ClampDropsWholeSteps(t *testing.T) {
	w := quarterWorld(t)

	steps, err := w.StepSimulation(10.1, 10)
	require.NoError(t, err)
	assert.Equal(t, 10, steps, "Не больше maxSubsteps подшагов за вызов")
	assert.Equal(t, 2.5, w.SimulatedTime())
	assert.InDelta(t, 0.1, w.Residual(), 1e-9, "Остаток меньше подшага сохраняется")
	assert.InDelta(t, 7.5, w.DroppedTime(), 1e-9, "Целые подшаги сверх лимита отбрасываются")
}

func TestStepSimulation_VariableStep(t *testing.T) {
	w := newTestWorld(t)
	id, err := w.CreateBody(Sphere{Radius: 1}, 1, at(0, 10, 0))
	require.NoError(t, err)

	steps, err := w.StepSimulation(0.1, 0)
	require.NoError(t, err)
	assert.Equal(t, 1, steps, "maxSubsteps <= 0 означает один шаг ровно на dt")
	assert.InDelta(t, 0.1, w.SimulatedTime(), 1e-12)
	assert.Zero(t, w.Residual())

	state, err := w.BodyState(id)
	require.NoError(t, err)
	assert.InDelta(t, -0.8, state.LinearVelocity.Y(), 1e-9)
}

func TestFreeFall(t *testing.T) {
	w := newTestWorld(t)
	id, err := w.CreateBody(Sphere{Radius: 1}, 1, at(0, 100, 0))
	require.NoError(t, err)

	for i := 0; i < 60; i++ {
		_, err := w.StepSimulation(fixed, 10)
		require.NoError(t, err)
	}

	state, err := w.BodyState(id)
	require.NoError(t, err)
	assert.True(t, state.Stepped)
	assert.InDelta(t, -8.0, state.LinearVelocity.Y(), 1e-6, "За секунду скорость равна g")
	// полунеявный Эйлер: падение g*h^2*n(n+1)/2
	drop := 8 * fixed * fixed * 60 * 61 / 2
	assert.InDelta(t, 100-drop, state.Pose.Position.Y(), 1e-6)
}

func TestStaticBodiesNeverMove(t *testing.T) {
	w := newTestWorld(t)
	pose := NewPose(mgl64.Vec3{1, 2, 3}, mgl64.QuatRotate(0.3, mgl64.Vec3{0, 1, 0}))
	ground, err := w.CreateBody(NewBoxFromScale(mgl64.Vec3{100, 10, 100}), 0, pose)
	require.NoError(t, err)
	_, err = w.CreateBody(Sphere{Radius: 2}, 5, at(1, 20, 3))
	require.NoError(t, err)

	before, err := w.GetBodyTransform(ground)
	require.NoError(t, err)

	require.NoError(t, w.ApplyImpulse(ground, mgl64.Vec3{100, 100, 100}))
	for i := 0; i < 240; i++ {
		_, err := w.StepSimulation(fixed, 10)
		require.NoError(t, err)
	}

	after, err := w.GetBodyTransform(ground)
	require.NoError(t, err)
	assert.Equal(t, before, after, "Статичное тело не двигается даже под ударами")
}

func TestSphereSettlesOnBox(t *testing.T) {
	for _, bp := range []Broadphase{BroadphaseSweepAndPrune, BroadphaseBruteForce, BroadphaseGrid} {
		t.Run(bp.String(), func(t *testing.T) {
			params := DefaultSolverParams()
			params.Broadphase = bp
			w, err := NewWorld(mgl64.Vec3{0, -8, 0}, params)
			require.NoError(t, err)

			_, err = w.CreateBody(NewBoxFromScale(mgl64.Vec3{200, 20, 200}), 0, at(0, -10, 0))
			require.NoError(t, err)
			ball, err := w.CreateBody(Sphere{Radius: 10}, 1, at(0, 50, 0))
			require.NoError(t, err)

			for i := 0; i < 600; i++ {
				_, err := w.StepSimulation(fixed, 10)
				require.NoError(t, err)
			}

			state, err := w.BodyState(ball)
			require.NoError(t, err)
			assert.InDelta(t, 10.0, state.Pose.Position.Y(), 0.5, "Шар лежит на верхней грани")
			assert.Less(t, state.LinearVelocity.Len(), 0.5)
		})
	}
}

func floorMesh(half float64) TriangleMesh {
	p00 := mgl64.Vec3{-half, 0, -half}
	p01 := mgl64.Vec3{-half, 0, half}
	p10 := mgl64.Vec3{half, 0, -half}
	p11 := mgl64.Vec3{half, 0, half}
	return TriangleMesh{Triangles: []Triangle{
		{A: p00, B: p01, C: p10},
		{A: p10, B: p01, C: p11},
	}}
}

func TestSphereSettlesOnMesh(t *testing.T) {
	w := newTestWorld(t)
	mesh := floorMesh(100)
	for _, tri := range mesh.Triangles {
		assert.InDelta(t, 1.0, tri.Normal().Y(), 1e-12, "Нормали пола смотрят вверх")
	}

	_, err := w.CreateBody(mesh, 0, IdentityPose())
	require.NoError(t, err)
	ball, err := w.CreateBody(Sphere{Radius: 5}, 1, at(10, 30, 20))
	require.NoError(t, err)

	for i := 0; i < 600; i++ {
		_, err := w.StepSimulation(fixed, 10)
		require.NoError(t, err)
	}

	state, err := w.BodyState(ball)
	require.NoError(t, err)
	assert.InDelta(t, 5.0, state.Pose.Position.Y(), 0.5)
}

func TestApplyImpulse(t *testing.T) {
	w := newTestWorld(t)
	id, err := w.CreateBody(Sphere{Radius: 1}, 2, IdentityPose())
	require.NoError(t, err)

	require.NoError(t, w.ApplyImpulse(id, mgl64.Vec3{4, 0, 0}))
	state, err := w.BodyState(id)
	require.NoError(t, err)
	assert.Equal(t, mgl64.Vec3{2, 0, 0}, state.LinearVelocity, "Скорость равна импульсу, деленному на массу")
}

func TestSetGravity(t *testing.T) {
	w := newTestWorld(t)
	w.SetGravity(mgl64.Vec3{0, 0, 0})
	id, err := w.CreateBody(Sphere{Radius: 1}, 1, at(0, 5, 0))
	require.NoError(t, err)

	_, err = w.StepSimulation(1, 10)
	require.NoError(t, err)
	pose, err := w.GetBodyTransform(id)
	require.NoError(t, err)
	assert.Equal(t, mgl64.Vec3{0, 5, 0}, pose.Position, "Без гравитации тело висит")
	assert.Equal(t, mgl64.Vec3{}, w.Gravity())
}

type pair struct{ a, b BodyID }

func contactPairs(w *World) []pair {
	w.detectContacts()
	seen := make(map[pair]bool)
	for _, c := range w.contacts {
		p := pair{c.a.id, c.b.id}
		if p.b < p.a {
			p = pair{p.b, p.a}
		}
		seen[p] = true
	}
	out := make([]pair, 0, len(seen))
	for p := range seen {
		out = append(out, p)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].a != out[j].a {
			return out[i].a < out[j].a
		}
		return out[i].b < out[j].b
	})
	return out
}

func TestBroadphasesAgree(t *testing.T) {
	build := func(bp Broadphase, cellSize float64) *World {
		params := DefaultSolverParams()
		params.Broadphase = bp
		params.GridCellSize = cellSize
		w, err := NewWorld(mgl64.Vec3{0, -8, 0}, params)
		require.NoError(t, err)

		rng := rand.New(rand.NewSource(42))
		_, err = w.CreateBody(floorMesh(60), 0, IdentityPose())
		require.NoError(t, err)
		for i := 0; i < 80; i++ {
			pos := mgl64.Vec3{rng.Float64()*100 - 50, rng.Float64() * 20, rng.Float64()*100 - 50}
			var shape Shape = Sphere{Radius: 1 + rng.Float64()*3}
			if i%3 == 0 {
				shape = Box{HalfExtents: mgl64.Vec3{1 + rng.Float64()*2, 1 + rng.Float64()*2, 1 + rng.Float64()*2}}
			}
			mass := 1.0
			if i%7 == 0 {
				mass = 0
			}
			_, err := w.CreateBody(shape, mass, at(pos[0], pos[1], pos[2]))
			require.NoError(t, err)
		}
		return w
	}

	expected := contactPairs(build(BroadphaseBruteForce, 40))
	require.NotEmpty(t, expected, "Сцена должна содержать пересечения")
	assert.Equal(t, expected, contactPairs(build(BroadphaseSweepAndPrune, 40)))
	assert.Equal(t, expected, contactPairs(build(BroadphaseGrid, 40)))
	// мелкая ячейка: пол не помещается в сетку и проверяется со всеми телами
	assert.Equal(t, expected, contactPairs(build(BroadphaseGrid, 2)))
}

func TestSpatialGrid_OversizedBodies(t *testing.T) {
	params := DefaultSolverParams()
	params.Broadphase = BroadphaseGrid
	params.GridCellSize = 1
	w, err := NewWorld(mgl64.Vec3{0, -8, 0}, params)
	require.NoError(t, err)

	floor, err := w.CreateBody(floorMesh(100), 0, IdentityPose())
	require.NoError(t, err)
	ball, err := w.CreateBody(Sphere{Radius: 0.5}, 1, at(3, 0.4, 3))
	require.NoError(t, err)

	pairs := contactPairs(w)
	assert.Equal(t, []pair{{floor, ball}}, pairs)
	require.Len(t, w.grid.oversized, 1)
	assert.Equal(t, floor, w.grid.oversized[0].id)

	_, err = NewWorld(mgl64.Vec3{}, SolverParams{Iterations: 1, FixedTimeStep: fixed, Broadphase: BroadphaseGrid})
	assert.Error(t, err, "Сетка требует положительный размер ячейки")
}

func TestParseBroadphase(t *testing.T) {
	for name, expected := range map[string]Broadphase{
		"":            BroadphaseSweepAndPrune,
		"SAP":         BroadphaseSweepAndPrune,
		"brute_force": BroadphaseBruteForce,
		"grid":        BroadphaseGrid,
	} {
		bp, err := ParseBroadphase(name)
		require.NoError(t, err, name)
		assert.Equal(t, expected, bp, name)

		again, err := ParseBroadphase(bp.String())
		require.NoError(t, err)
		assert.Equal(t, bp, again, "Имя стратегии разбирается обратно")
	}

	_, err := ParseBroadphase("octree")
	assert.Error(t, err)
}

func TestStepSimulation_NoSteadyStateAllocations(t *testing.T) {
	for _, bp := range []Broadphase{BroadphaseBruteForce, BroadphaseSweepAndPrune, BroadphaseGrid} {
		t.Run(bp.String(), func(t *testing.T) {
			params := DefaultSolverParams()
			params.Broadphase = bp
			// тела не засыпают, контакты решаются на каждом подшаге
			params.SleepThreshold = 0
			w, err := NewWorld(mgl64.Vec3{0, -9.8, 0}, params)
			require.NoError(t, err)

			_, err = w.CreateBody(Box{HalfExtents: mgl64.Vec3{100, 1, 100}}, 0, at(0, -1, 0))
			require.NoError(t, err)
			for i := 0; i < 5; i++ {
				for j := 0; j < 4; j++ {
					_, err := w.CreateBody(Sphere{Radius: 1}, 1, at(5+8*float64(i), 1, 5+8*float64(j)))
					require.NoError(t, err)
				}
			}

			for i := 0; i < 200; i++ {
				_, err := w.StepSimulation(fixed, 1)
				require.NoError(t, err)
			}

			allocs := testing.AllocsPerRun(100, func() {
				_, _ = w.StepSimulation(fixed, 1)
			})
			assert.Zero(t, allocs, "Шаг не должен выделять память в установившемся режиме")
		})
	}
}
