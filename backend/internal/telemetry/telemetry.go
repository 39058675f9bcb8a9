package telemetry

import (
	"encoding/json"
	"sort"
	"sync"
	"time"

	"github.com/go-gl/mathgl/mgl64"
	"go.uber.org/zap"

	"upper-mountains/backend/internal/physics"
)

// Sample запись о состоянии тела после синхронизации
type Sample struct {
	Timestamp int64      `json:"timestamp"` // Время в миллисекундах
	EntityID  string     `json:"entity_id"`
	BodyID    uint64     `json:"body_id"`
	Shape     string     `json:"shape"`
	Position  mgl64.Vec3 `json:"position"`
	Velocity  mgl64.Vec3 `json:"velocity"`
	Speed     float64    `json:"speed"`
	Mass      float64    `json:"mass"`
	Sleeping  bool       `json:"sleeping"`
	// Impulse примененный импульс, если запись о толчке
	Impulse *mgl64.Vec3 `json:"impulse,omitempty"`
}

// Manager кольцевой буфер телеметрии поз
type Manager struct {
	enabled bool
	data    []Sample
	next    int
	full    bool
	mutex   sync.RWMutex

	// Счетчики для статистики
	counters      map[string]int
	lastPrint     time.Time
	printInterval time.Duration

	now    func() time.Time
	logger *zap.Logger
}

// NewManager создает менеджер телеметрии на capacity записей
func NewManager(capacity int, printInterval time.Duration, logger *zap.Logger) *Manager {
	if capacity <= 0 {
		capacity = 200
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Manager{
		enabled:       true,
		data:          make([]Sample, capacity),
		counters:      make(map[string]int),
		printInterval: printInterval,
		now:           time.Now,
		logger:        logger.Named("Telemetry"),
	}
}

// RecordPose записывает состояние тела, синхронизированного в сущность
func (tm *Manager) RecordPose(entityID string, state physics.BodyState) {
	tm.record(entityID, state, nil)
}

// RecordImpulse записывает примененный к телу импульс
func (tm *Manager) RecordImpulse(entityID string, state physics.BodyState, impulse mgl64.Vec3) {
	tm.record(entityID, state, &impulse)
}

func (tm *Manager) record(entityID string, state physics.BodyState, impulse *mgl64.Vec3) {
	tm.mutex.Lock()
	defer tm.mutex.Unlock()

	if !tm.enabled {
		return
	}

	tm.data[tm.next] = Sample{
		Timestamp: tm.now().UnixMilli(),
		EntityID:  entityID,
		BodyID:    uint64(state.ID),
		Shape:     state.Shape.String(),
		Position:  state.Pose.Position,
		Velocity:  state.LinearVelocity,
		Speed:     state.LinearVelocity.Len(),
		Mass:      state.Mass,
		Sleeping:  state.Sleeping,
		Impulse:   impulse,
	}
	tm.next = (tm.next + 1) % len(tm.data)
	if tm.next == 0 {
		tm.full = true
	}

	if impulse != nil {
		tm.counters["impulse_"+state.Shape.String()]++
	} else {
		tm.counters["pose_"+state.Shape.String()]++
	}
}

// Samples возвращает записи от старых к новым
func (tm *Manager) Samples() []Sample {
	tm.mutex.RLock()
	defer tm.mutex.RUnlock()
	return tm.samplesLocked()
}

func (tm *Manager) samplesLocked() []Sample {
	if !tm.full {
		out := make([]Sample, tm.next)
		copy(out, tm.data[:tm.next])
		return out
	}
	out := make([]Sample, 0, len(tm.data))
	out = append(out, tm.data[tm.next:]...)
	return append(out, tm.data[:tm.next]...)
}

// Latest возвращает последнюю запись для сущности
func (tm *Manager) Latest(entityID string) (Sample, bool) {
	samples := tm.Samples()
	for i := len(samples) - 1; i >= 0; i-- {
		if samples[i].EntityID == entityID {
			return samples[i], true
		}
	}
	return Sample{}, false
}

// Counters возвращает копию счетчиков с последней сводки
func (tm *Manager) Counters() map[string]int {
	tm.mutex.RLock()
	defer tm.mutex.RUnlock()
	out := make(map[string]int, len(tm.counters))
	for k, v := range tm.counters {
		out[k] = v
	}
	return out
}

// PrintSummary выводит сводку не чаще printInterval и сбрасывает счетчики
func (tm *Manager) PrintSummary() {
	tm.mutex.Lock()
	defer tm.mutex.Unlock()

	if !tm.enabled {
		return
	}
	now := tm.now()
	if now.Sub(tm.lastPrint) < tm.printInterval {
		return
	}

	samples := tm.samplesLocked()
	tm.logger.Info("Сводка телеметрии", zap.Int("samples", len(samples)))

	keys := make([]string, 0, len(tm.counters))
	for k := range tm.counters {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		tm.logger.Info("Счетчик", zap.String("key", k), zap.Int("count", tm.counters[k]))
	}

	// Последние записи по каждой сущности
	seen := make(map[string]bool)
	for i := len(samples) - 1; i >= 0; i-- {
		s := samples[i]
		if seen[s.EntityID] {
			continue
		}
		seen[s.EntityID] = true
		tm.logger.Debug("Последнее состояние",
			zap.String("entity", s.EntityID),
			zap.Float64s("position", s.Position[:]),
			zap.Float64("speed", s.Speed),
			zap.Bool("sleeping", s.Sleeping))
	}

	tm.counters = make(map[string]int)
	tm.lastPrint = now
}

// JSON возвращает телеметрию в JSON формате
func (tm *Manager) JSON() ([]byte, error) {
	return json.MarshalIndent(tm.Samples(), "", "  ")
}

// SetEnabled включает/выключает телеметрию
func (tm *Manager) SetEnabled(enabled bool) {
	tm.mutex.Lock()
	tm.enabled = enabled
	tm.mutex.Unlock()
	tm.logger.Info("Телеметрия переключена", zap.Bool("enabled", enabled))
}

// Clear очищает все данные телеметрии
func (tm *Manager) Clear() {
	tm.mutex.Lock()
	defer tm.mutex.Unlock()

	for i := range tm.data {
		tm.data[i] = Sample{}
	}
	tm.next = 0
	tm.full = false
	tm.counters = make(map[string]int)
}
