package app

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/gdamore/tcell/v2"
	"github.com/go-gl/mathgl/mgl64"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"upper-mountains/backend/internal/config"
	"upper-mountains/backend/internal/game"
	"upper-mountains/backend/internal/grain"
	"upper-mountains/backend/internal/physics"
	"upper-mountains/backend/internal/render"
	"upper-mountains/backend/internal/telemetry"
	"upper-mountains/backend/internal/transport/ws"
	"upper-mountains/backend/internal/world"
)

// App контекст приложения: владеет физикой, сценой, циклом кадров и выводом
type App struct {
	cfg    config.Config
	logger *zap.Logger

	Engine    *physics.World
	Scene     *world.Scene
	Registry  *world.Registry
	Loader    *world.AssetLoader
	Telemetry *telemetry.Manager
	Loop      *game.FrameLoop
	Pipeline  *render.Pipeline
	Server    *ws.Server

	httpServer *http.Server
	terminal   *render.TerminalPresenter
}

// Option настройка приложения
type Option func(*options)

type options struct {
	clock  game.DeltaSource
	screen tcell.Screen
}

// WithClock подменяет источник времени кадров
func WithClock(clock game.DeltaSource) Option {
	return func(o *options) { o.clock = clock }
}

// WithScreen задает экран терминала для вывода кадра
func WithScreen(screen tcell.Screen) Option {
	return func(o *options) { o.screen = screen }
}

// New собирает приложение и запускает загрузку сцены.
// Ассеты попадают в сцену в начале ближайших тиков.
func New(ctx context.Context, cfg config.Config, logger *zap.Logger, opts ...Option) (*App, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	o := options{}
	for _, opt := range opts {
		opt(&o)
	}

	solver, err := cfg.SolverParams()
	if err != nil {
		return nil, err
	}
	engine, err := physics.NewWorld(cfg.Physics.Gravity, solver)
	if err != nil {
		return nil, fmt.Errorf("создание физического мира: %w", err)
	}

	a := &App{
		cfg:    cfg,
		logger: logger.Named("App"),
		Engine: engine,
		Scene:  world.NewScene(),
	}
	a.Registry = world.NewRegistry(engine, a.Scene, logger)
	a.Telemetry = telemetry.NewManager(cfg.Telemetry.Capacity, cfg.Telemetry.PrintInterval, logger)
	a.Telemetry.SetEnabled(cfg.Telemetry.Enabled)

	// Кадровый цикл: очередь сцены, физика, синхронизация поз, системы
	stepper := game.NewPhysicsStepper(engine, logger)
	transforms := game.NewTransformSync(a.Registry, logger)
	transforms.SetRecorder(a.Telemetry)
	a.Loop = game.NewFrameLoop(cfg.LoopConfig(), o.clock, a.Scene, stepper, transforms, logger)

	if err := a.buildPipeline(o.screen, logger); err != nil {
		return nil, err
	}
	a.Loop.RegisterSystem(a.Pipeline)

	if cfg.Server.Enabled {
		a.Server = ws.NewServer(a.Scene, logger)
		a.Server.RegisterCommand("impulse", ws.NewImpulseHandler(a.Registry, a.Telemetry))
		a.Server.RegisterCommand("atmosphere", a.atmosphereCommand)
		a.Loop.RegisterSystem(ws.NewStreamer(a.Server, a.Scene, cfg.Server.StreamInterval, logger))
		a.httpServer = &http.Server{
			Addr:              cfg.Server.Addr,
			Handler:           a.Server.Handler(),
			ReadHeaderTimeout: 5 * time.Second,
		}
	}

	if cfg.Telemetry.Enabled {
		a.Loop.RegisterSystem(game.NewFuncSystem("TelemetrySystem", game.PriorityMetrics, func(game.Frame) error {
			a.Telemetry.PrintSummary()
			return nil
		}))
	}
	a.Loop.RegisterSystem(game.NewMetricsSystem(a.Loop, a.Registry, cfg.Loop.MetricsLog, logger))

	a.Loader = world.NewAssetLoader(ctx, a.Registry, cfg.Assets.Concurrency, logger)
	world.LoadScenery(a.Loader, cfg.Scenery)

	a.logger.Info("Приложение собрано",
		zap.Bool("server", a.Server != nil),
		zap.Bool("terminal", a.terminal != nil),
		zap.String("atmosphere", cfg.Render.Atmosphere))
	return a, nil
}

func (a *App) buildPipeline(screen tcell.Screen, logger *zap.Logger) error {
	atmosphere, err := a.cfg.Atmosphere()
	if err != nil {
		return err
	}

	var compositor *grain.Compositor
	if a.cfg.Grain.Enabled {
		field, err := grain.NewNoiseField(a.cfg.NoiseParams())
		if err != nil {
			return err
		}
		opts, err := a.cfg.CompositorOptions()
		if err != nil {
			return err
		}
		compositor, err = grain.NewCompositor(field, opts)
		if err != nil {
			return err
		}
	}

	renderer := render.NewRenderer(a.cfg.Camera(), atmosphere)
	a.Pipeline, err = render.NewPipeline(a.Scene, renderer, compositor, a.cfg.Render.Width, a.cfg.Render.Height, logger)
	if err != nil {
		return err
	}

	if a.cfg.Render.Presenter == config.PresenterTerminal && screen != nil {
		a.terminal = render.NewTerminalPresenter(screen, a.cfg.Render.ShowStatus)
		a.Pipeline.AddPresenter(a.terminal)
	}
	return nil
}

type atmosphereData struct {
	Preset string `json:"preset"`
}

func (a *App) atmosphereCommand(_ context.Context, cmd *ws.CommandMessage) error {
	var data atmosphereData
	if err := json.Unmarshal(cmd.Data, &data); err != nil {
		return fmt.Errorf("%w: %v", ws.ErrInvalidCommand, err)
	}
	return a.SetAtmosphere(data.Preset)
}

// SetAtmosphere переключает время суток между тиками. Неизвестный пресет отклоняется сразу.
func (a *App) SetAtmosphere(name string) error {
	preset, err := render.Preset(name)
	if err != nil {
		return err
	}
	if !a.cfg.Grain.Enabled {
		preset.GrainWeight = 0
	}
	a.Scene.Enqueue(func(*world.Scene) error {
		return a.Pipeline.SetAtmosphere(preset)
	})
	return nil
}

// Kick толкает все динамические тела импульсом между тиками
func (a *App) Kick(impulse mgl64.Vec3) {
	a.Scene.Enqueue(func(*world.Scene) error {
		var errs []error
		for _, b := range a.Registry.Bindings() {
			state, err := a.Engine.BodyState(b.Body)
			if err != nil {
				errs = append(errs, err)
				continue
			}
			if state.Mass <= 0 {
				continue
			}
			if err := a.Engine.ApplyImpulse(b.Body, impulse); err != nil {
				errs = append(errs, err)
				continue
			}
			a.Telemetry.RecordImpulse(b.EntityID, state, impulse)
		}
		return errors.Join(errs...)
	})
}

// Run крутит цикл кадров по сигналам refresh и обслуживает WebSocket до отмены ctx или Stop
func (a *App) Run(ctx context.Context, refresh <-chan time.Time) error {
	g, ctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		defer a.Loop.Stop()
		return a.Loop.Run(ctx, refresh)
	})

	g.Go(func() error {
		if err := a.Loader.Wait(); err != nil {
			a.logger.Warn("Часть ассетов не загружена", zap.Error(err))
		}
		return nil
	})

	if a.httpServer != nil {
		g.Go(func() error {
			a.logger.Info("WebSocket сервер запущен", zap.String("addr", a.httpServer.Addr))
			if err := a.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				return fmt.Errorf("websocket сервер: %w", err)
			}
			return nil
		})
		g.Go(func() error {
			select {
			case <-ctx.Done():
			case <-a.Loop.Done():
			}
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			a.Server.Close()
			return a.httpServer.Shutdown(shutdownCtx)
		})
	}

	return g.Wait()
}

// Stop останавливает цикл кадров, Run после этого завершается
func (a *App) Stop() {
	a.Loop.Stop()
}

// Close освобождает ресурсы в порядке: цикл, загрузчик, сервер, тела
func (a *App) Close() error {
	a.Loop.Stop()
	a.Loader.Shutdown()
	if a.Server != nil {
		a.Server.Close()
	}
	// изменения, оставшиеся в очереди, уже не будут применены
	if n := a.Scene.Pending(); n > 0 {
		a.logger.Debug("Очередь сцены отброшена", zap.Int("mutations", n))
	}
	err := a.Registry.Close()

	stats := a.Loader.Stats()
	a.logger.Info("Приложение остановлено",
		zap.Uint64("ticks", a.Loop.TickCount()),
		zap.Int64("assets_loaded", stats.Loaded),
		zap.Int64("assets_discarded", stats.Discarded))
	return err
}

// Terminal вывод в терминал, nil если не подключен
func (a *App) Terminal() *render.TerminalPresenter {
	return a.terminal
}
