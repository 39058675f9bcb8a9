package game

import (
	"context"
	"errors"
	"fmt"
	"math"
	"sync"
	"time"

	"go.uber.org/zap"

	"upper-mountains/backend/internal/physics"
	"upper-mountains/backend/internal/world"
)

// Frame данные одного кадра, общие для всех систем
type Frame struct {
	Index uint64
	// Delta секунды с предыдущего кадра
	Delta float64
	// Elapsed секунды с запуска цикла, используется как uniform времени для зерна
	Elapsed float64
	// Substeps число выполненных подшагов физики
	Substeps int
}

// TickSystem интерфейс для систем, выполняемых после физики и синхронизации
type TickSystem interface {
	Update(frame Frame) error
	GetName() string
	GetPriority() int // Приоритет выполнения (меньше = раньше)
}

// LoopState состояние цикла кадров
type LoopState int

const (
	StateUninitialized LoopState = iota
	StateRunning
	StateStopped
)

func (s LoopState) String() string {
	switch s {
	case StateUninitialized:
		return "uninitialized"
	case StateRunning:
		return "running"
	case StateStopped:
		return "stopped"
	default:
		return fmt.Sprintf("state(%d)", int(s))
	}
}

// LoopConfig настройки цикла кадров
type LoopConfig struct {
	MaxSubsteps int
	// TargetFPS используется только для порогов предупреждений
	TargetFPS int
	// StatsEvery период логирования сводки в кадрах, 0 отключает
	StatsEvery uint64
}

// DefaultLoopConfig значения по умолчанию
func DefaultLoopConfig() LoopConfig {
	return LoopConfig{
		MaxSubsteps: 10,
		TargetFPS:   60,
		StatsEvery:  600,
	}
}

// FrameLoop цикл кадров: очередь сцены, шаг физики, синхронизация поз, рендер.
// Все тики выполняются последовательно.
type FrameLoop struct {
	tickMu sync.Mutex

	cfg   LoopConfig
	clock DeltaSource

	scene   *world.Scene
	stepper *PhysicsStepper
	sync    *TransformSync

	// Системы
	systems      []TickSystem
	systemsMutex sync.RWMutex

	perfMonitor *PerformanceMonitor

	stateMu  sync.RWMutex
	state    LoopState
	stopCh   chan struct{}
	stopOnce sync.Once

	// Метрики
	metricsMu       sync.RWMutex
	tickCount       uint64
	averageTickTime time.Duration
	maxObservedTick time.Duration
	skippedSteps    uint64
	lastSubsteps    int
	lastFrame       Frame

	tickDuration     time.Duration
	warningThreshold time.Duration

	logger *zap.Logger
}

// NewFrameLoop создает цикл кадров
func NewFrameLoop(cfg LoopConfig, clock DeltaSource, scene *world.Scene, stepper *PhysicsStepper, transforms *TransformSync, logger *zap.Logger) *FrameLoop {
	if cfg.TargetFPS <= 0 {
		cfg.TargetFPS = 60
	}
	if clock == nil {
		clock = NewFrameClock(nil)
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	tickDuration := time.Second / time.Duration(cfg.TargetFPS)
	return &FrameLoop{
		cfg:              cfg,
		clock:            clock,
		scene:            scene,
		stepper:          stepper,
		sync:             transforms,
		perfMonitor:      NewPerformanceMonitor(50, tickDuration/4), // Предупреждение при 25% от кадра
		stopCh:           make(chan struct{}),
		tickDuration:     tickDuration,
		warningThreshold: tickDuration / 2,
		logger:           logger.Named("FrameLoop"),
	}
}

// RegisterSystem добавляет систему в цикл
func (fl *FrameLoop) RegisterSystem(system TickSystem) {
	fl.systemsMutex.Lock()
	defer fl.systemsMutex.Unlock()

	fl.systems = append(fl.systems, system)

	// Сортируем по приоритету (меньше = выше приоритет)
	for i := len(fl.systems) - 1; i > 0; i-- {
		if fl.systems[i].GetPriority() < fl.systems[i-1].GetPriority() {
			fl.systems[i], fl.systems[i-1] = fl.systems[i-1], fl.systems[i]
		} else {
			break
		}
	}

	fl.perfMonitor.initSystemMetrics(system.GetName())

	fl.logger.Info("Зарегистрирована система",
		zap.String("system", system.GetName()),
		zap.Int("priority", system.GetPriority()))
}

// State возвращает текущее состояние цикла
func (fl *FrameLoop) State() LoopState {
	fl.stateMu.RLock()
	defer fl.stateMu.RUnlock()
	return fl.state
}

// Tick выполняет один кадр. Первый вызов запускает часы и переводит цикл в Running.
func (fl *FrameLoop) Tick(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	fl.tickMu.Lock()
	defer fl.tickMu.Unlock()

	fl.stateMu.Lock()
	switch fl.state {
	case StateStopped:
		fl.stateMu.Unlock()
		return ErrStopped
	case StateUninitialized:
		fl.clock.Reset()
		fl.state = StateRunning
		fl.stateMu.Unlock()
		fl.logger.Info("Запуск цикла кадров",
			zap.Int("max_substeps", fl.cfg.MaxSubsteps),
			zap.Duration("frame", fl.tickDuration))
		return fl.executeTick(0)
	}
	fl.stateMu.Unlock()

	return fl.executeTick(fl.clock.Delta())
}

// executeTick выполняет кадр с заданным шагом времени
func (fl *FrameLoop) executeTick(delta float64) error {
	tickStart := time.Now()

	// Готовые ассеты попадают в сцену только здесь, между кадрами
	if applied, err := fl.scene.ApplyPending(); err != nil {
		fl.logger.Warn("Ошибка применения изменений сцены", zap.Int("applied", applied), zap.Error(err))
	}

	substeps, err := fl.stepper.Step(delta, fl.cfg.MaxSubsteps)
	if err != nil {
		fl.metricsMu.Lock()
		fl.skippedSteps++
		fl.metricsMu.Unlock()
		if errors.Is(err, physics.ErrInvalidTimestep) {
			fl.logger.Warn("Шаг физики пропущен", zap.Float64("delta", delta), zap.Error(err))
		} else {
			fl.logger.Error("Ошибка шага физики", zap.Error(err))
		}
	}
	if _, err := fl.sync.Sync(); err != nil {
		fl.logger.Error("Ошибка синхронизации поз", zap.Error(err))
	}

	fl.metricsMu.Lock()
	fl.tickCount++
	fl.lastSubsteps = substeps
	frame := Frame{
		Index:    fl.tickCount,
		Delta:    delta,
		Elapsed:  fl.clock.Elapsed(),
		Substeps: substeps,
	}
	if math.IsNaN(frame.Delta) || math.IsInf(frame.Delta, 0) || frame.Delta < 0 {
		frame.Delta = 0
	}
	fl.lastFrame = frame
	fl.metricsMu.Unlock()

	fl.executeAllSystems(frame)

	totalTickTime := time.Since(tickStart)
	fl.metricsMu.Lock()
	fl.updateTickMetrics(totalTickTime)
	fl.metricsMu.Unlock()
	fl.checkPerformance(totalTickTime)

	if fl.cfg.StatsEvery > 0 && frame.Index%fl.cfg.StatsEvery == 0 {
		fl.logSummary()
	}
	return nil
}

// executeAllSystems выполняет все зарегистрированные системы
func (fl *FrameLoop) executeAllSystems(frame Frame) {
	fl.systemsMutex.RLock()
	systems := make([]TickSystem, len(fl.systems))
	copy(systems, fl.systems)
	fl.systemsMutex.RUnlock()

	for _, system := range systems {
		fl.executeSystem(system, frame)
	}
}

// executeSystem выполняет одну систему с замером времени
func (fl *FrameLoop) executeSystem(system TickSystem, frame Frame) {
	systemStart := time.Now()
	systemName := system.GetName()

	defer func() {
		if r := recover(); r != nil {
			fl.logger.Error("КРИТИЧЕСКАЯ ОШИБКА в системе",
				zap.String("system", systemName), zap.Any("panic", r))
			fl.perfMonitor.recordError(systemName)
		}
	}()

	err := system.Update(frame)

	if fl.perfMonitor.recordExecution(systemName, time.Since(systemStart)) {
		fl.logger.Debug("Медленная система", zap.String("system", systemName))
	}

	if err != nil {
		fl.logger.Warn("Ошибка в системе", zap.String("system", systemName), zap.Error(err))
		fl.perfMonitor.recordError(systemName)
	}
}

// Run выполняет кадр на каждый сигнал обновления экрана, пока не отменен ctx или не вызван Stop
func (fl *FrameLoop) Run(ctx context.Context, refresh <-chan time.Time) error {
	for {
		select {
		case <-ctx.Done():
			fl.Stop()
			return nil
		case <-fl.stopCh:
			return nil
		case _, ok := <-refresh:
			if !ok {
				fl.Stop()
				return nil
			}
			if err := fl.Tick(ctx); err != nil {
				if errors.Is(err, ErrStopped) || errors.Is(err, context.Canceled) {
					return nil
				}
				return err
			}
		}
	}
}

// Stop останавливает цикл. Последующие Tick возвращают ErrStopped.
func (fl *FrameLoop) Stop() {
	fl.stopOnce.Do(func() {
		fl.stateMu.Lock()
		fl.state = StateStopped
		fl.stateMu.Unlock()
		close(fl.stopCh)

		fl.logger.Info("Остановка цикла кадров")
	})
}

// Done закрывается после Stop
func (fl *FrameLoop) Done() <-chan struct{} {
	return fl.stopCh
}

// TickCount возвращает количество выполненных кадров
func (fl *FrameLoop) TickCount() uint64 {
	fl.metricsMu.RLock()
	defer fl.metricsMu.RUnlock()
	return fl.tickCount
}

// LastFrame возвращает данные последнего кадра
func (fl *FrameLoop) LastFrame() Frame {
	fl.metricsMu.RLock()
	defer fl.metricsMu.RUnlock()
	return fl.lastFrame
}

// LoopStats статистика цикла кадров
type LoopStats struct {
	State           LoopState
	TickCount       uint64
	AverageTickTime time.Duration
	MaxObservedTick time.Duration
	SkippedSteps    uint64
	LastSubsteps    int
	Stepper         StepperStats
	Systems         []SystemMetrics
}

// Stats возвращает статистику цикла
func (fl *FrameLoop) Stats() LoopStats {
	fl.metricsMu.RLock()
	stats := LoopStats{
		TickCount:       fl.tickCount,
		AverageTickTime: fl.averageTickTime,
		MaxObservedTick: fl.maxObservedTick,
		SkippedSteps:    fl.skippedSteps,
		LastSubsteps:    fl.lastSubsteps,
	}
	fl.metricsMu.RUnlock()

	stats.State = fl.State()
	stats.Stepper = fl.stepper.Stats()
	stats.Systems = fl.perfMonitor.SystemsStats()
	return stats
}

func (fl *FrameLoop) updateTickMetrics(tickTime time.Duration) {
	if tickTime > fl.maxObservedTick {
		fl.maxObservedTick = tickTime
	}

	// Простое скользящее среднее
	if fl.averageTickTime == 0 {
		fl.averageTickTime = tickTime
	} else {
		fl.averageTickTime = (fl.averageTickTime*9 + tickTime) / 10
	}
}

func (fl *FrameLoop) checkPerformance(tickTime time.Duration) {
	if tickTime > fl.tickDuration*2 {
		fl.logger.Warn("Кадр превысил максимальное время",
			zap.Duration("tick", tickTime), zap.Duration("target", fl.tickDuration))
	} else if tickTime > fl.warningThreshold {
		fl.logger.Debug("Медленный кадр",
			zap.Duration("tick", tickTime), zap.Duration("target", fl.tickDuration))
	}
}

func (fl *FrameLoop) logSummary() {
	st := fl.Stats()
	fl.logger.Info("Сводка цикла кадров",
		zap.Uint64("ticks", st.TickCount),
		zap.Duration("avg_tick", st.AverageTickTime),
		zap.Duration("max_tick", st.MaxObservedTick),
		zap.Uint64("skipped_steps", st.SkippedSteps),
		zap.Uint64("substeps", st.Stepper.Substeps),
		zap.Float64("dropped_time", st.Stepper.DroppedTime),
		zap.Int("entities", fl.scene.Len()))
}
