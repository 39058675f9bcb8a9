package game

import (
	"go.uber.org/zap"

	"upper-mountains/backend/internal/world"
)

// Приоритеты стандартных систем кадра
const (
	PriorityRender    = 10
	PriorityComposite = 20
	PriorityPresent   = 50
	PriorityNetwork   = 100
	PriorityMetrics   = 200
)

// FuncSystem система из функции
type FuncSystem struct {
	name     string
	priority int
	fn       func(Frame) error
}

// NewFuncSystem создает систему, вызывающую fn на каждом кадре
func NewFuncSystem(name string, priority int, fn func(Frame) error) *FuncSystem {
	return &FuncSystem{name: name, priority: priority, fn: fn}
}

func (fs *FuncSystem) Update(frame Frame) error { return fs.fn(frame) }
func (fs *FuncSystem) GetName() string          { return fs.name }
func (fs *FuncSystem) GetPriority() int         { return fs.priority }

// MetricsSystem периодически логирует состояние цикла, сцены и реестра
type MetricsSystem struct {
	name     string
	priority int
	loop     *FrameLoop
	registry *world.Registry
	logger   *zap.Logger

	// интервал в секундах времени цикла
	interval float64
	lastLog  float64
}

// NewMetricsSystem создает систему сбора метрик
func NewMetricsSystem(loop *FrameLoop, registry *world.Registry, intervalSeconds float64, logger *zap.Logger) *MetricsSystem {
	if logger == nil {
		logger = zap.NewNop()
	}
	if intervalSeconds <= 0 {
		intervalSeconds = 30
	}
	return &MetricsSystem{
		name:     "MetricsSystem",
		priority: PriorityMetrics, // Метрики в самом конце кадра
		loop:     loop,
		registry: registry,
		logger:   logger.Named("Metrics"),
		interval: intervalSeconds,
	}
}

// Update логирует метрики не чаще одного раза за интервал
func (ms *MetricsSystem) Update(frame Frame) error {
	if frame.Elapsed-ms.lastLog < ms.interval {
		return nil
	}
	ms.lastLog = frame.Elapsed

	stats := ms.loop.Stats()
	fps := 0.0
	if frame.Elapsed > 0 {
		fps = float64(stats.TickCount) / frame.Elapsed
	}

	ms.logger.Info("Метрики кадра",
		zap.Float64("fps", fps),
		zap.Uint64("ticks", stats.TickCount),
		zap.Duration("avg_tick", stats.AverageTickTime),
		zap.Uint64("substeps", stats.Stepper.Substeps),
		zap.Uint64("rejected_steps", stats.Stepper.Rejected),
		zap.Float64("dropped_time", stats.Stepper.DroppedTime),
		zap.Int("bodies", ms.registry.Len()),
		zap.Int("orphans", len(ms.registry.Orphans())),
		zap.Int("entities", ms.registry.Scene().Len()))

	for _, sm := range stats.Systems {
		if sm.Errors > 0 {
			ms.logger.Warn("Система с ошибками",
				zap.String("system", sm.Name), zap.Uint64("errors", sm.Errors))
		}
	}
	return nil
}

func (ms *MetricsSystem) GetName() string  { return ms.name }
func (ms *MetricsSystem) GetPriority() int { return ms.priority }
