package telemetry

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/go-gl/mathgl/mgl64"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"

	"upper-mountains/backend/internal/physics"
)

func ballState(id physics.BodyID, y float64) physics.BodyState {
	return physics.BodyState{
		ID:             id,
		Shape:          physics.SPHERE,
		Mass:           1,
		Pose:           physics.NewPose(mgl64.Vec3{0, y, 0}, mgl64.QuatIdent()),
		LinearVelocity: mgl64.Vec3{0, -3, 4},
	}
}

func TestManager_RecordPose(t *testing.T) {
	tm := NewManager(4, 0, nil)
	tm.now = func() time.Time { return time.UnixMilli(1234) }

	tm.RecordPose("ball", ballState(7, 10))
	samples := tm.Samples()
	require.Len(t, samples, 1)

	s := samples[0]
	assert.Equal(t, int64(1234), s.Timestamp)
	assert.Equal(t, "ball", s.EntityID)
	assert.Equal(t, uint64(7), s.BodyID)
	assert.Equal(t, "sphere", s.Shape)
	assert.Equal(t, 10.0, s.Position.Y())
	assert.InDelta(t, 5.0, s.Speed, 1e-12)
	assert.Nil(t, s.Impulse)
	assert.Equal(t, map[string]int{"pose_sphere": 1}, tm.Counters())
}

func TestManager_RingWraparound(t *testing.T) {
	tm := NewManager(3, 0, nil)
	for i := 1; i <= 5; i++ {
		tm.RecordPose("ball", ballState(1, float64(i)))
	}

	samples := tm.Samples()
	require.Len(t, samples, 3, "Буфер хранит только последние записи")
	for i, s := range samples {
		assert.Equal(t, float64(i+3), s.Position.Y(), "Записи идут от старых к новым")
	}
	assert.Equal(t, 5, tm.Counters()["pose_sphere"])
}

func TestManager_Latest(t *testing.T) {
	tm := NewManager(10, 0, nil)
	tm.RecordPose("a", ballState(1, 1))
	tm.RecordPose("b", ballState(2, 2))
	tm.RecordImpulse("a", ballState(1, 3), mgl64.Vec3{0, 60, 0})

	latest, ok := tm.Latest("a")
	require.True(t, ok)
	assert.Equal(t, 3.0, latest.Position.Y())
	require.NotNil(t, latest.Impulse)
	assert.Equal(t, mgl64.Vec3{0, 60, 0}, *latest.Impulse)

	_, ok = tm.Latest("ghost")
	assert.False(t, ok)

	assert.Equal(t, map[string]int{"pose_sphere": 2, "impulse_sphere": 1}, tm.Counters())
}

func TestManager_PrintSummary(t *testing.T) {
	core, logs := observer.New(zap.InfoLevel)
	tm := NewManager(10, 10*time.Second, zap.New(core))
	now := time.Unix(100, 0)
	tm.now = func() time.Time { return now }

	tm.RecordPose("a", ballState(1, 1))
	tm.RecordPose("a", ballState(1, 2))

	tm.PrintSummary()
	assert.Equal(t, 1, logs.FilterMessage("Сводка телеметрии").Len(), "Первая сводка выводится сразу")
	counter := logs.FilterMessage("Счетчик").All()
	require.Len(t, counter, 1)
	assert.Equal(t, "pose_sphere", counter[0].ContextMap()["key"])
	assert.Equal(t, int64(2), counter[0].ContextMap()["count"])
	assert.Empty(t, tm.Counters(), "Сводка сбрасывает счетчики")
	assert.Len(t, tm.Samples(), 2, "Записи после сводки сохраняются")

	tm.RecordPose("a", ballState(1, 3))
	now = now.Add(5 * time.Second)
	tm.PrintSummary()
	assert.Equal(t, 1, logs.FilterMessage("Сводка телеметрии").Len(), "Сводка не чаще интервала")
	assert.Equal(t, 1, tm.Counters()["pose_sphere"])

	now = now.Add(5 * time.Second)
	tm.PrintSummary()
	assert.Equal(t, 2, logs.FilterMessage("Сводка телеметрии").Len())
}

func TestManager_Disabled(t *testing.T) {
	core, logs := observer.New(zap.InfoLevel)
	tm := NewManager(10, 0, zap.New(core))
	tm.SetEnabled(false)

	tm.RecordPose("a", ballState(1, 1))
	tm.RecordImpulse("a", ballState(1, 1), mgl64.Vec3{1, 0, 0})
	tm.PrintSummary()

	assert.Empty(t, tm.Samples())
	assert.Empty(t, tm.Counters())
	assert.Zero(t, logs.FilterMessage("Сводка телеметрии").Len())

	tm.SetEnabled(true)
	tm.RecordPose("a", ballState(1, 1))
	assert.Len(t, tm.Samples(), 1)
}

func TestManager_JSONAndClear(t *testing.T) {
	tm := NewManager(0, 0, nil)
	tm.RecordImpulse("ball", ballState(3, 1), mgl64.Vec3{0, 5, 0})

	data, err := tm.JSON()
	require.NoError(t, err)

	var decoded []map[string]interface{}
	require.NoError(t, json.Unmarshal(data, &decoded))
	require.Len(t, decoded, 1)
	assert.Equal(t, "ball", decoded[0]["entity_id"])
	assert.Equal(t, "sphere", decoded[0]["shape"])
	assert.Contains(t, decoded[0], "impulse")

	tm.Clear()
	assert.Empty(t, tm.Samples())
	assert.Empty(t, tm.Counters())

	data, err = tm.JSON()
	require.NoError(t, err)
	assert.JSONEq(t, "[]", string(data))
}
