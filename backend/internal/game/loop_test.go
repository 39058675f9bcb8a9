package game

import (
	"context"
	"errors"
	"math"
	"testing"
	"time"

	"github.com/go-gl/mathgl/mgl64"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"

	"upper-mountains/backend/internal/physics"
	"upper-mountains/backend/internal/world"
)

const frameDelta = 1.0 / 60.0

// scriptClock отдает заранее заданные шаги, затем frameDelta
type scriptClock struct {
	deltas  []float64
	elapsed float64
	resets  int
}

func (c *scriptClock) Reset() {
	c.elapsed = 0
	c.resets++
}

func (c *scriptClock) Delta() float64 {
	d := frameDelta
	if len(c.deltas) > 0 {
		d, c.deltas = c.deltas[0], c.deltas[1:]
	}
	if d > 0 && !math.IsInf(d, 0) {
		c.elapsed += d
	}
	return d
}

func (c *scriptClock) Elapsed() float64 { return c.elapsed }

type loopEnv struct {
	engine   *physics.World
	scene    *world.Scene
	registry *world.Registry
	stepper  *PhysicsStepper
	sync     *TransformSync
	clock    *scriptClock
	loop     *FrameLoop
}

func newLoopEnv(t *testing.T, deltas ...float64) *loopEnv {
	t.Helper()
	engine, err := physics.NewWorld(mgl64.Vec3{0, -8, 0}, physics.DefaultSolverParams())
	require.NoError(t, err)

	env := &loopEnv{
		engine: engine,
		scene:  world.NewScene(),
		clock:  &scriptClock{deltas: deltas},
	}
	env.registry = world.NewRegistry(engine, env.scene, nil)
	env.stepper = NewPhysicsStepper(engine, nil)
	env.sync = NewTransformSync(env.registry, nil)
	cfg := DefaultLoopConfig()
	cfg.StatsEvery = 0
	env.loop = NewFrameLoop(cfg, env.clock, env.scene, env.stepper, env.sync, nil)
	return env
}

func (env *loopEnv) spawnBall(t *testing.T, id string, y float64) physics.BodyID {
	t.Helper()
	pose := physics.NewPose(mgl64.Vec3{0, y, 0}, mgl64.QuatIdent())
	_, body, err := env.registry.Spawn(world.NewSphere(id, pose, 1, ""), physics.Sphere{Radius: 1}, 1)
	require.NoError(t, err)
	return body
}

type recordingSystem struct {
	name     string
	priority int
	calls    *[]string
	err      error
	panicMsg string
}

func (s *recordingSystem) Update(Frame) error {
	*s.calls = append(*s.calls, s.name)
	if s.panicMsg != "" {
		panic(s.panicMsg)
	}
	return s.err
}
func (s *recordingSystem) GetName() string  { return s.name }
func (s *recordingSystem) GetPriority() int { return s.priority }

func TestFrameLoop_States(t *testing.T) {
	env := newLoopEnv(t)
	ctx := context.Background()

	assert.Equal(t, StateUninitialized, env.loop.State())
	require.NoError(t, env.loop.Tick(ctx))
	assert.Equal(t, StateRunning, env.loop.State())
	assert.Equal(t, 1, env.clock.resets, "Часы запускаются первым кадром")

	env.loop.Stop()
	env.loop.Stop()
	assert.Equal(t, StateStopped, env.loop.State())
	assert.ErrorIs(t, env.loop.Tick(ctx), ErrStopped)
	assert.Equal(t, uint64(1), env.loop.TickCount())

	select {
	case <-env.loop.Done():
	default:
		t.Fatal("Done должен быть закрыт после Stop")
	}
	assert.Equal(t, "stopped", StateStopped.String())
}

func TestFrameLoop_TickCanceledContext(t *testing.T) {
	env := newLoopEnv(t)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	assert.ErrorIs(t, env.loop.Tick(ctx), context.Canceled)
	assert.Zero(t, env.loop.TickCount())
	assert.Equal(t, StateUninitialized, env.loop.State())
}

func TestFrameLoop_FirstTickHasZeroDelta(t *testing.T) {
	env := newLoopEnv(t, 0.5)
	body := env.spawnBall(t, "ball", 10)
	ctx := context.Background()

	require.NoError(t, env.loop.Tick(ctx))
	frame := env.loop.LastFrame()
	assert.Equal(t, uint64(1), frame.Index)
	assert.Zero(t, frame.Delta)
	assert.Zero(t, frame.Substeps)

	state, err := env.engine.BodyState(body)
	require.NoError(t, err)
	assert.False(t, state.Stepped, "Первый кадр не двигает физику")

	// второй кадр берет шаг из часов
	require.NoError(t, env.loop.Tick(ctx))
	frame = env.loop.LastFrame()
	assert.Equal(t, 0.5, frame.Delta)
	assert.Equal(t, 10, frame.Substeps, "Шаг ограничен числом подшагов")
	assert.Equal(t, 0.5, frame.Elapsed)
}

func TestFrameLoop_InvalidDeltaSkipsPhysics(t *testing.T) {
	env := newLoopEnv(t, math.NaN(), -1)
	env.spawnBall(t, "ball", 10)
	ctx := context.Background()

	require.NoError(t, env.loop.Tick(ctx))
	require.NoError(t, env.loop.Tick(ctx), "Некорректный шаг не останавливает цикл")
	require.NoError(t, env.loop.Tick(ctx))

	stats := env.loop.Stats()
	assert.Equal(t, uint64(3), stats.TickCount)
	assert.Equal(t, uint64(2), stats.SkippedSteps)
	assert.Equal(t, uint64(2), stats.Stepper.Rejected)
	assert.Equal(t, 0.0, env.loop.LastFrame().Delta)
	assert.Zero(t, env.engine.SimulatedTime(), "Физика не продвинулась")
}

func TestFrameLoop_SyncsPosesAfterStep(t *testing.T) {
	env := newLoopEnv(t)
	env.spawnBall(t, "ball", 10)
	ctx := context.Background()

	require.NoError(t, env.loop.Tick(ctx))
	e, _ := env.scene.Entity("ball")
	assert.Equal(t, 10.0, e.Pose.Position.Y())

	for i := 0; i < 30; i++ {
		require.NoError(t, env.loop.Tick(ctx))
	}
	e, _ = env.scene.Entity("ball")
	assert.Less(t, e.Pose.Position.Y(), 10.0, "Шар падает под действием гравитации")

	pose, err := env.engine.GetBodyTransform(e.Body)
	require.NoError(t, err)
	assert.Equal(t, pose, e.Pose, "Поза сущности совпадает с позой тела")
}

func TestFrameLoop_AppliesPendingBeforePhysics(t *testing.T) {
	env := newLoopEnv(t)
	ctx := context.Background()

	env.scene.Enqueue(func(*world.Scene) error {
		_, _, err := env.registry.Spawn(
			world.NewSphere("late", physics.NewPose(mgl64.Vec3{0, 5, 0}, mgl64.QuatIdent()), 1, ""),
			physics.Sphere{Radius: 1}, 1)
		return err
	})
	env.scene.Enqueue(func(*world.Scene) error { return errors.New("сбой изменения") })

	require.NoError(t, env.loop.Tick(ctx), "Ошибка изменения сцены не прерывает кадр")
	e, ok := env.scene.Entity("late")
	require.True(t, ok)
	assert.True(t, e.Bound())
	assert.Zero(t, env.scene.Pending())
}

func TestFrameLoop_SystemsRunByPriority(t *testing.T) {
	env := newLoopEnv(t)
	var calls []string

	env.loop.RegisterSystem(&recordingSystem{name: "present", priority: PriorityPresent, calls: &calls})
	env.loop.RegisterSystem(&recordingSystem{name: "render", priority: PriorityRender, calls: &calls})
	env.loop.RegisterSystem(&recordingSystem{name: "metrics", priority: PriorityMetrics, calls: &calls})
	env.loop.RegisterSystem(&recordingSystem{name: "composite", priority: PriorityComposite, calls: &calls})

	require.NoError(t, env.loop.Tick(context.Background()))
	assert.Equal(t, []string{"render", "composite", "present", "metrics"}, calls)
}

func TestFrameLoop_SystemFailuresAreIsolated(t *testing.T) {
	env := newLoopEnv(t)
	var calls []string

	env.loop.RegisterSystem(&recordingSystem{name: "broken", priority: 1, calls: &calls, err: errors.New("ошибка")})
	env.loop.RegisterSystem(&recordingSystem{name: "panicky", priority: 2, calls: &calls, panicMsg: "паника"})
	env.loop.RegisterSystem(&recordingSystem{name: "healthy", priority: 3, calls: &calls})

	ctx := context.Background()
	require.NoError(t, env.loop.Tick(ctx))
	require.NoError(t, env.loop.Tick(ctx))
	assert.Equal(t, []string{"broken", "panicky", "healthy", "broken", "panicky", "healthy"}, calls)

	byName := make(map[string]SystemMetrics)
	for _, sm := range env.loop.Stats().Systems {
		byName[sm.Name] = sm
	}
	assert.Equal(t, uint64(2), byName["broken"].Errors)
	assert.Equal(t, uint64(2), byName["panicky"].Errors)
	assert.Zero(t, byName["healthy"].Errors)
	assert.Equal(t, uint64(2), byName["healthy"].TotalExecutions)
}

func TestFrameLoop_RunStopsOnClosedRefresh(t *testing.T) {
	env := newLoopEnv(t)
	refresh := make(chan time.Time, 3)
	for i := 0; i < 3; i++ {
		refresh <- time.Now()
	}
	close(refresh)

	require.NoError(t, env.loop.Run(context.Background(), refresh))
	assert.Equal(t, uint64(3), env.loop.TickCount())
	assert.Equal(t, StateStopped, env.loop.State())
}

func TestFrameLoop_RunStopsOnContext(t *testing.T) {
	env := newLoopEnv(t)
	ctx, cancel := context.WithCancel(context.Background())

	refresh := make(chan time.Time)
	done := make(chan error, 1)
	go func() { done <- env.loop.Run(ctx, refresh) }()

	refresh <- time.Now()
	cancel()

	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("Run не завершился после отмены контекста")
	}
	assert.Equal(t, StateStopped, env.loop.State())
}

func TestFrameLoop_StopFromSystem(t *testing.T) {
	env := newLoopEnv(t)
	env.loop.RegisterSystem(NewFuncSystem("stopper", 1, func(f Frame) error {
		if f.Index == 2 {
			env.loop.Stop()
		}
		return nil
	}))

	refresh := make(chan time.Time, 10)
	for i := 0; i < 10; i++ {
		refresh <- time.Now()
	}
	require.NoError(t, env.loop.Run(context.Background(), refresh))
	assert.Equal(t, uint64(2), env.loop.TickCount())
}

func TestMetricsSystem_LogsFromInsideTick(t *testing.T) {
	env := newLoopEnv(t)
	env.spawnBall(t, "ball", 10)

	core, logs := observer.New(zap.InfoLevel)
	env.loop.RegisterSystem(NewMetricsSystem(env.loop, env.registry, 0.04, zap.New(core)))

	ctx := context.Background()
	for i := 0; i < 9; i++ {
		require.NoError(t, env.loop.Tick(ctx))
	}

	entries := logs.FilterMessage("Метрики кадра").All()
	// интервал 0.04 с при шаге 1/60: записи на 4-м и 7-м кадрах
	require.Len(t, entries, 2)
	fields := entries[0].ContextMap()
	assert.Equal(t, int64(1), fields["bodies"])
	assert.Equal(t, int64(1), fields["entities"])
	assert.Equal(t, int64(0), fields["orphans"])
}
