package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"math"
	"os"
	"time"

	"github.com/go-gl/mathgl/mgl64"
	"gopkg.in/yaml.v3"

	"upper-mountains/backend/internal/game"
	"upper-mountains/backend/internal/grain"
	"upper-mountains/backend/internal/noisehash"
	"upper-mountains/backend/internal/physics"
	"upper-mountains/backend/internal/render"
	"upper-mountains/backend/internal/world"
)

// ErrInvalidConfig некорректное значение в конфигурации
var ErrInvalidConfig = errors.New("invalid config")

// Presenter способы вывода кадра
const (
	PresenterTerminal = "terminal"
	PresenterNone     = "none"
)

// Config конфигурация процесса
type Config struct {
	LogLevel  string              `yaml:"log_level"`
	Physics   PhysicsConfig       `yaml:"physics"`
	Loop      LoopConfig          `yaml:"loop"`
	Grain     GrainConfig         `yaml:"grain"`
	Render    RenderConfig        `yaml:"render"`
	Scenery   world.SceneryConfig `yaml:"scenery"`
	Assets    AssetsConfig        `yaml:"assets"`
	Server    ServerConfig        `yaml:"server"`
	Telemetry TelemetryConfig     `yaml:"telemetry"`
}

// PhysicsConfig гравитация и параметры решателя
type PhysicsConfig struct {
	Gravity              mgl64.Vec3 `yaml:"gravity"`
	Iterations           int        `yaml:"iterations"`
	FixedTimeStep        float64    `yaml:"fixed_time_step"`
	Broadphase           string     `yaml:"broadphase"`
	GridCellSize         float64    `yaml:"grid_cell_size"`
	LinearDamping        float64    `yaml:"linear_damping"`
	AngularDamping       float64    `yaml:"angular_damping"`
	SleepThreshold       float64    `yaml:"sleep_threshold"`
	SleepTime            float64    `yaml:"sleep_time"`
	Baumgarte            float64    `yaml:"baumgarte"`
	Slop                 float64    `yaml:"slop"`
	RestitutionThreshold float64    `yaml:"restitution_threshold"`
}

// LoopConfig параметры кадрового цикла
type LoopConfig struct {
	MaxSubsteps int     `yaml:"max_substeps"`
	TargetFPS   int     `yaml:"target_fps"`
	StatsEvery  uint64  `yaml:"stats_every"`
	MetricsLog  float64 `yaml:"metrics_interval"`
}

// GrainConfig параметры наложения зерна
type GrainConfig struct {
	Enabled   bool    `yaml:"enabled"`
	Mode      string  `yaml:"mode"`
	Weight    float64 `yaml:"weight"`
	Speed     float64 `yaml:"speed"`
	Mean      float64 `yaml:"mean"`
	Variance  float64 `yaml:"variance"`
	Seed      string  `yaml:"seed"`
	ShowNoise bool    `yaml:"show_noise"`
	SRGB      bool    `yaml:"srgb"`
}

// CameraConfig параметры перспективной камеры
type CameraConfig struct {
	Position mgl64.Vec3 `yaml:"position"`
	Target   mgl64.Vec3 `yaml:"target"`
	FovY     float64    `yaml:"fov_y"`
	Near     float64    `yaml:"near"`
	Far      float64    `yaml:"far"`
}

// RenderConfig размер кадра, атмосфера и способ вывода
type RenderConfig struct {
	Width      int          `yaml:"width"`
	Height     int          `yaml:"height"`
	Atmosphere string       `yaml:"atmosphere"`
	Camera     CameraConfig `yaml:"camera"`
	Presenter  string       `yaml:"presenter"`
	ShowStatus bool         `yaml:"show_status"`
}

// AssetsConfig параметры загрузки ресурсов
type AssetsConfig struct {
	Concurrency int `yaml:"concurrency"`
}

// ServerConfig WebSocket сервер
type ServerConfig struct {
	Enabled        bool    `yaml:"enabled"`
	Addr           string  `yaml:"addr"`
	StreamInterval float64 `yaml:"stream_interval"`
}

// TelemetryConfig буфер телеметрии поз
type TelemetryConfig struct {
	Enabled       bool          `yaml:"enabled"`
	Capacity      int           `yaml:"capacity"`
	PrintInterval time.Duration `yaml:"print_interval"`
}

// Default конфигурация по умолчанию
func Default() Config {
	solver := physics.DefaultSolverParams()
	noise := grain.DefaultNoiseParams()
	loop := game.DefaultLoopConfig()
	camera := render.DefaultCamera()

	return Config{
		LogLevel: "info",
		Physics: PhysicsConfig{
			Gravity:              mgl64.Vec3{0, -8, 0},
			Iterations:           solver.Iterations,
			FixedTimeStep:        solver.FixedTimeStep,
			Broadphase:           solver.Broadphase.String(),
			GridCellSize:         solver.GridCellSize,
			LinearDamping:        solver.LinearDamping,
			AngularDamping:       solver.AngularDamping,
			SleepThreshold:       solver.SleepThreshold,
			SleepTime:            solver.SleepTime,
			Baumgarte:            solver.Baumgarte,
			Slop:                 solver.Slop,
			RestitutionThreshold: solver.RestitutionThreshold,
		},
		Loop: LoopConfig{
			MaxSubsteps: loop.MaxSubsteps,
			TargetFPS:   loop.TargetFPS,
			StatsEvery:  loop.StatsEvery,
			MetricsLog:  10,
		},
		Grain: GrainConfig{
			Enabled:  true,
			Mode:     grain.BlendAdditive.String(),
			Weight:   0.05,
			Speed:    noise.Speed,
			Mean:     noise.Mean,
			Variance: noise.Variance,
			Seed:     "",
		},
		Render: RenderConfig{
			Width:      160,
			Height:     90,
			Atmosphere: "day",
			Camera: CameraConfig{
				Position: camera.Position,
				Target:   camera.Target,
				FovY:     camera.FovY,
				Near:     camera.Near,
				Far:      camera.Far,
			},
			Presenter:  PresenterTerminal,
			ShowStatus: true,
		},
		Scenery: world.DefaultScenery(),
		Assets:  AssetsConfig{Concurrency: 4},
		Server: ServerConfig{
			Enabled:        true,
			Addr:           ":8080",
			StreamInterval: 1.0 / 30.0,
		},
		Telemetry: TelemetryConfig{
			Enabled:       true,
			Capacity:      200,
			PrintInterval: 10 * time.Second,
		},
	}
}

// Load читает YAML поверх значений по умолчанию. Пустой путь означает конфигурацию по умолчанию.
func Load(path string) (Config, error) {
	if path == "" {
		cfg := Default()
		return cfg, cfg.Validate()
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return Config{}, fmt.Errorf("чтение конфигурации %s: %w", path, err)
	}
	return Parse(data)
}

// Parse разбирает YAML поверх значений по умолчанию и проверяет результат.
// Неизвестные ключи считаются ошибкой.
func Parse(data []byte) (Config, error) {
	cfg := Default()
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(&cfg); err != nil && !errors.Is(err, io.EOF) {
		return Config{}, fmt.Errorf("%w: %v", ErrInvalidConfig, err)
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Validate проверяет все разделы и возвращает все найденные ошибки
func (c Config) Validate() error {
	var errs []error
	invalid := func(format string, args ...interface{}) {
		errs = append(errs, fmt.Errorf("%w: %s", ErrInvalidConfig, fmt.Sprintf(format, args...)))
	}

	for _, g := range c.Physics.Gravity {
		if math.IsNaN(g) || math.IsInf(g, 0) {
			invalid("physics.gravity %v", c.Physics.Gravity)
			break
		}
	}
	if _, err := c.SolverParams(); err != nil {
		errs = append(errs, err)
	}

	if c.Loop.TargetFPS <= 0 {
		invalid("loop.target_fps должно быть положительным: %d", c.Loop.TargetFPS)
	}
	if c.Loop.MetricsLog < 0 {
		invalid("loop.metrics_interval не может быть отрицательным: %v", c.Loop.MetricsLog)
	}

	// Неподдерживаемый режим смешивания фатален даже при выключенном зерне
	if _, err := grain.ParseBlendMode(c.Grain.Mode); err != nil {
		errs = append(errs, fmt.Errorf("grain.mode: %w", err))
	}
	if c.Grain.Weight < 0 || c.Grain.Weight > 1 || math.IsNaN(c.Grain.Weight) {
		errs = append(errs, fmt.Errorf("grain.weight %v: %w", c.Grain.Weight, grain.ErrInvalidWeight))
	}
	if err := c.NoiseParams().Validate(); err != nil {
		errs = append(errs, fmt.Errorf("grain: %w", err))
	}

	if c.Render.Width <= 0 || c.Render.Height <= 0 {
		invalid("render размер кадра %dx%d", c.Render.Width, c.Render.Height)
	}
	if _, err := render.Preset(c.Render.Atmosphere); err != nil {
		invalid("render.atmosphere: %v", err)
	}
	cam := c.Render.Camera
	if cam.FovY <= 0 || cam.FovY >= 180 {
		invalid("render.camera.fov_y %v", cam.FovY)
	}
	if cam.Near <= 0 || cam.Far <= cam.Near {
		invalid("render.camera near %v far %v", cam.Near, cam.Far)
	}
	if c.Render.Presenter != PresenterTerminal && c.Render.Presenter != PresenterNone {
		invalid("render.presenter %q", c.Render.Presenter)
	}

	for _, b := range c.Scenery.Balls {
		if b.Mass <= 0 || b.Radius <= 0 {
			invalid("scenery.balls %q: масса и радиус должны быть положительными", b.Name)
		}
	}
	for _, m := range c.Scenery.Mountains {
		if m.Scale[0] <= 0 || m.Scale[1] <= 0 || m.Scale[2] <= 0 {
			invalid("scenery.mountains %q: масштаб %v", m.Name, m.Scale)
		}
	}

	if c.Assets.Concurrency <= 0 {
		invalid("assets.concurrency должно быть положительным: %d", c.Assets.Concurrency)
	}
	if c.Server.Enabled && c.Server.Addr == "" {
		invalid("server.addr пустой")
	}
	if c.Server.StreamInterval < 0 {
		invalid("server.stream_interval не может быть отрицательным")
	}
	if c.Telemetry.Capacity <= 0 {
		invalid("telemetry.capacity должно быть положительным: %d", c.Telemetry.Capacity)
	}
	return errors.Join(errs...)
}

// SolverParams параметры решателя физики
func (c Config) SolverParams() (physics.SolverParams, error) {
	bp, err := physics.ParseBroadphase(c.Physics.Broadphase)
	if err != nil {
		return physics.SolverParams{}, fmt.Errorf("%w: physics.broadphase: %v", ErrInvalidConfig, err)
	}
	p := physics.SolverParams{
		Iterations:           c.Physics.Iterations,
		FixedTimeStep:        c.Physics.FixedTimeStep,
		Broadphase:           bp,
		GridCellSize:         c.Physics.GridCellSize,
		LinearDamping:        c.Physics.LinearDamping,
		AngularDamping:       c.Physics.AngularDamping,
		SleepThreshold:       c.Physics.SleepThreshold,
		SleepTime:            c.Physics.SleepTime,
		Baumgarte:            c.Physics.Baumgarte,
		Slop:                 c.Physics.Slop,
		RestitutionThreshold: c.Physics.RestitutionThreshold,
	}
	if err := p.Validate(); err != nil {
		return physics.SolverParams{}, fmt.Errorf("%w: physics: %v", ErrInvalidConfig, err)
	}
	return p, nil
}

// NoiseParams параметры шума зерна
func (c Config) NoiseParams() grain.NoiseParams {
	return grain.NoiseParams{Speed: c.Grain.Speed, Mean: c.Grain.Mean, Variance: c.Grain.Variance}
}

// CompositorOptions параметры наложения. Выключенное зерно дает нулевой вес.
func (c Config) CompositorOptions() (grain.Options, error) {
	mode, err := grain.ParseBlendMode(c.Grain.Mode)
	if err != nil {
		return grain.Options{}, err
	}
	opts := grain.Options{
		Mode:      mode,
		Weight:    c.Grain.Weight,
		ShowNoise: c.Grain.ShowNoise,
		SRGB:      c.Grain.SRGB,
	}
	if !c.Grain.Enabled {
		opts.Weight = 0
	}
	if c.Grain.Seed != "" {
		opts.Seed = noisehash.Seed(c.Grain.Seed)
	}
	return opts, nil
}

// LoopConfig параметры кадрового цикла
func (c Config) LoopConfig() game.LoopConfig {
	return game.LoopConfig{
		MaxSubsteps: c.Loop.MaxSubsteps,
		TargetFPS:   c.Loop.TargetFPS,
		StatsEvery:  c.Loop.StatsEvery,
	}
}

// Camera камера рендерера
func (c Config) Camera() render.Camera {
	cam := render.DefaultCamera()
	cam.Position = c.Render.Camera.Position
	cam.Target = c.Render.Camera.Target
	cam.FovY = c.Render.Camera.FovY
	cam.Near = c.Render.Camera.Near
	cam.Far = c.Render.Camera.Far
	return cam
}

// Atmosphere начальная атмосфера. Вес зерна при старте берется из grain.weight,
// а не из пресета.
func (c Config) Atmosphere() (render.Atmosphere, error) {
	a, err := render.Preset(c.Render.Atmosphere)
	if err != nil {
		return render.Atmosphere{}, err
	}
	a.GrainWeight = c.Grain.Weight
	if !c.Grain.Enabled {
		a.GrainWeight = 0
	}
	return a, nil
}
