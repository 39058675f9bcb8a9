package world

import (
	"errors"
	"testing"

	"github.com/go-gl/mathgl/mgl64"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"upper-mountains/backend/internal/physics"
)

func newTestRegistry(t *testing.T) (*Registry, *physics.World, *Scene) {
	t.Helper()
	engine, err := physics.NewWorld(mgl64.Vec3{0, -8, 0}, physics.DefaultSolverParams())
	require.NoError(t, err)
	scene := NewScene()
	return NewRegistry(engine, scene, nil), engine, scene
}

func TestRegistry_RegisterValidation(t *testing.T) {
	r, engine, _ := newTestRegistry(t)

	_, err := r.Register(physics.Sphere{Radius: -1}, 1, at(0, 0, 0))
	assert.ErrorIs(t, err, physics.ErrInvalidBodyConfig)
	_, err = r.RegisterBall(1, 0, at(0, 0, 0))
	assert.ErrorIs(t, err, physics.ErrInvalidBodyConfig, "Шар обязан иметь массу")

	id, err := r.RegisterStaticBox(mgl64.Vec3{10, 2, 10}, at(0, -1, 0))
	require.NoError(t, err)
	state, err := engine.BodyState(id)
	require.NoError(t, err)
	assert.Zero(t, state.Mass)
	assert.Equal(t, 1, r.Len())
	assert.Equal(t, []physics.BodyID{id}, r.Orphans(), "Непривязанное тело считается сиротой")
}

func TestRegistry_Bind(t *testing.T) {
	r, _, scene := newTestRegistry(t)
	_, err := scene.AddEntity(NewSphere("a", at(0, 0, 0), 1, ""))
	require.NoError(t, err)
	_, err = scene.AddEntity(NewSphere("b", at(0, 0, 0), 1, ""))
	require.NoError(t, err)

	body1, err := r.RegisterBall(1, 1, at(0, 0, 0))
	require.NoError(t, err)
	body2, err := r.RegisterBall(1, 1, at(0, 0, 0))
	require.NoError(t, err)

	require.NoError(t, r.Bind("a", body1))
	e, _ := scene.Entity("a")
	assert.Equal(t, body1, e.Body, "Сущность получает обратную ссылку")
	got, ok := r.BodyOf("a")
	assert.True(t, ok)
	assert.Equal(t, body1, got)

	assert.ErrorIs(t, r.Bind("b", body1), ErrDuplicateBinding, "Тело привязано не более чем к одной сущности")
	assert.ErrorIs(t, r.Bind("a", body2), ErrDuplicateBinding, "Сущность привязана не более чем к одному телу")
	assert.ErrorIs(t, r.Bind("ghost", body2), ErrUnknownEntity)
	assert.ErrorIs(t, r.Bind("b", physics.BodyID(999)), physics.ErrUnknownBody)

	// Неудачные привязки ничего не меняют
	b, _ := scene.Entity("b")
	assert.False(t, b.Bound())
	assert.Equal(t, []Binding{{EntityID: "a", Body: body1}}, r.Bindings())
	assert.Equal(t, []physics.BodyID{body2}, r.Orphans())
}

func TestRegistry_UnbindAndUnregister(t *testing.T) {
	r, engine, scene := newTestRegistry(t)
	_, err := scene.AddEntity(NewSphere("a", at(0, 0, 0), 1, ""))
	require.NoError(t, err)
	body, err := r.RegisterBall(1, 1, at(0, 0, 0))
	require.NoError(t, err)
	require.NoError(t, r.Bind("a", body))

	_, err = scene.RemoveEntity("a")
	assert.ErrorIs(t, err, ErrEntityBound, "Привязанную сущность удаляют через реестр")

	require.NoError(t, r.Unbind("a"))
	e, _ := scene.Entity("a")
	assert.False(t, e.Bound())
	assert.ErrorIs(t, r.Unbind("a"), ErrUnknownEntity)

	require.NoError(t, r.Bind("a", body))
	require.NoError(t, r.Unregister(body))
	e, _ = scene.Entity("a")
	assert.False(t, e.Bound(), "Удаление тела снимает обратную ссылку")
	assert.Zero(t, engine.BodyCount())
	assert.ErrorIs(t, r.Unregister(body), physics.ErrUnknownBody)
}

func TestRegistry_SpawnAndDespawn(t *testing.T) {
	r, engine, scene := newTestRegistry(t)

	id, body, err := r.Spawn(NewSphere("ball", at(0, 5, 0), 1, ""), physics.Sphere{Radius: 1}, 1)
	require.NoError(t, err)
	assert.Equal(t, "ball", id)
	e, _ := scene.Entity("ball")
	assert.Equal(t, body, e.Body)

	// Дубликат сущности откатывает регистрацию тела
	_, _, err = r.Spawn(NewSphere("ball", at(0, 5, 0), 1, ""), physics.Sphere{Radius: 1}, 1)
	assert.ErrorIs(t, err, ErrDuplicateEntity)
	assert.Equal(t, 1, engine.BodyCount())
	assert.Empty(t, r.Orphans())

	// Некорректное тело не добавляет сущность
	_, _, err = r.Spawn(NewSphere("bad", at(0, 5, 0), 1, ""), physics.Sphere{Radius: 0}, 1)
	assert.ErrorIs(t, err, physics.ErrInvalidBodyConfig)
	_, ok := scene.Entity("bad")
	assert.False(t, ok)

	require.NoError(t, r.Despawn("ball"))
	assert.Zero(t, scene.Len())
	assert.Zero(t, engine.BodyCount())
	assert.Zero(t, r.Len())
}

func TestRegistry_DespawnUnboundEntity(t *testing.T) {
	r, _, scene := newTestRegistry(t)
	_, err := scene.AddEntity(NewBox("marker", at(0, 0, 0), 1, 1, 1, ""))
	require.NoError(t, err)

	require.NoError(t, r.Despawn("marker"))
	assert.Zero(t, scene.Len())
	assert.ErrorIs(t, r.Despawn("marker"), ErrUnknownEntity)
}

func TestRegistry_UnregisterAfterEntityGone(t *testing.T) {
	r, engine, scene := newTestRegistry(t)
	_, body, err := r.Spawn(NewSphere("ball", at(0, 0, 0), 1, ""), physics.Sphere{Radius: 1}, 1)
	require.NoError(t, err)

	// сущность исчезла в обход реестра: снимаем обратную ссылку и удаляем напрямую
	require.NoError(t, scene.setBody("ball", 0))
	_, err = scene.RemoveEntity("ball")
	require.NoError(t, err)

	require.NoError(t, r.Unregister(body), "Отсутствующая сущность не мешает удалить тело")
	assert.Zero(t, engine.BodyCount())
}

func TestRegistry_CloseReleasesEverything(t *testing.T) {
	r, engine, scene := newTestRegistry(t)
	_, _, err := r.Spawn(NewSphere("ball", at(0, 0, 0), 1, ""), physics.Sphere{Radius: 1}, 1)
	require.NoError(t, err)
	_, err = r.RegisterStaticBox(mgl64.Vec3{1, 1, 1}, at(0, 0, 0))
	require.NoError(t, err)
	require.Len(t, r.Orphans(), 1)

	require.NoError(t, r.Close())
	assert.Zero(t, engine.BodyCount(), "Сироты тоже освобождаются")
	assert.Zero(t, r.Len())
	e, ok := scene.Entity("ball")
	require.True(t, ok, "Сущности остаются в сцене")
	assert.False(t, e.Bound())

	require.NoError(t, r.Close(), "Повторное закрытие ничего не делает")
	_, err = r.RegisterBall(1, 1, at(0, 0, 0))
	assert.True(t, errors.Is(err, ErrRegistryClosed))
}

func TestRegistry_AppendBindingsReusesBuffer(t *testing.T) {
	r, _, _ := newTestRegistry(t)
	for _, id := range []string{"c", "a", "b"} {
		_, _, err := r.Spawn(NewSphere(id, at(0, 0, 0), 1, ""), physics.Sphere{Radius: 1}, 1)
		require.NoError(t, err)
	}

	buf := make([]Binding, 0, 8)
	buf = r.AppendBindings(buf[:0])
	require.Len(t, buf, 3)
	assert.Equal(t, "a", buf[0].EntityID)
	assert.Equal(t, "c", buf[2].EntityID)
	assert.Equal(t, 8, cap(buf), "Буфер достаточной емкости не перевыделяется")
}

var errEngineBusy = errors.New("движок занят")

// stuckEngine движок, который отказывается удалять тела
type stuckEngine struct {
	*physics.World
}

func (stuckEngine) DestroyBody(physics.BodyID) error { return errEngineBusy }

func TestRegistry_UnregisterKeepsBodyWhenEngineFails(t *testing.T) {
	engine, err := physics.NewWorld(mgl64.Vec3{0, -8, 0}, physics.DefaultSolverParams())
	require.NoError(t, err)
	scene := NewScene()
	r := NewRegistry(stuckEngine{engine}, scene, nil)

	_, body, err := r.Spawn(NewSphere("ball", at(0, 5, 0), 1, ""), physics.Sphere{Radius: 1}, 1)
	require.NoError(t, err)

	assert.ErrorIs(t, r.Unregister(body), errEngineBusy)
	assert.Equal(t, 1, r.Len(), "Неудаленное тело остается в реестре")
	got, ok := r.BodyOf("ball")
	require.True(t, ok, "Привязка сохраняется")
	assert.Equal(t, body, got)
	e, _ := scene.Entity("ball")
	assert.Equal(t, body, e.Body, "Обратная ссылка сохраняется")
	assert.Equal(t, 1, engine.BodyCount())

	assert.ErrorIs(t, r.Despawn("ball"), errEngineBusy)
	_, ok = scene.Entity("ball")
	assert.True(t, ok, "Сущность не удаляется, если тело не удалось освободить")
}
