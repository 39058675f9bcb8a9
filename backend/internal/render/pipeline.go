package render

import (
	"errors"
	"fmt"

	"go.uber.org/zap"

	"upper-mountains/backend/internal/game"
	"upper-mountains/backend/internal/grain"
	"upper-mountains/backend/internal/world"
)

// Presenter выводит готовый кадр
type Presenter interface {
	Present(fb *grain.FrameBuffer, frame game.Frame) error
	Name() string
}

// Pipeline система кадра: рендер сцены, наложение зерна, вывод
type Pipeline struct {
	name     string
	priority int

	scene      *world.Scene
	renderer   *Renderer
	compositor *grain.Compositor
	fb         *grain.FrameBuffer
	presenters []Presenter
	logger     *zap.Logger

	lastChecksum uint64
}

// NewPipeline создает конвейер кадра. compositor nil отключает зерно.
func NewPipeline(scene *world.Scene, renderer *Renderer, compositor *grain.Compositor, width, height int, logger *zap.Logger) (*Pipeline, error) {
	fb, err := grain.NewFrameBuffer(width, height)
	if err != nil {
		return nil, err
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Pipeline{
		name:       "RenderPipeline",
		priority:   game.PriorityRender,
		scene:      scene,
		renderer:   renderer,
		compositor: compositor,
		fb:         fb,
		logger:     logger.Named("Render"),
	}, nil
}

// AddPresenter добавляет вывод кадра
func (p *Pipeline) AddPresenter(pr Presenter) {
	p.presenters = append(p.presenters, pr)
	p.logger.Info("Подключен вывод кадра", zap.String("presenter", pr.Name()))
}

// SetAtmosphere меняет время суток: фон, туман, свет и силу зерна
func (p *Pipeline) SetAtmosphere(a Atmosphere) error {
	if p.compositor != nil {
		if err := p.compositor.SetWeight(a.GrainWeight); err != nil {
			return fmt.Errorf("атмосфера %s: %w", a.Name, err)
		}
	}
	p.renderer.SetAtmosphere(a)
	p.logger.Info("Атмосфера изменена", zap.String("preset", a.Name), zap.Float64("grain", a.GrainWeight))
	return nil
}

// Update рисует кадр. Время зерна берется из frame.Elapsed, один раз за кадр.
func (p *Pipeline) Update(frame game.Frame) error {
	p.renderer.Render(p.fb, p.scene.Entities())

	if p.compositor != nil {
		if err := p.compositor.Composite(p.fb, frame.Elapsed); err != nil {
			return err
		}
	}
	p.lastChecksum = p.fb.Checksum()

	var errs []error
	for _, pr := range p.presenters {
		if err := pr.Present(p.fb, frame); err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", pr.Name(), err))
		}
	}
	return errors.Join(errs...)
}

// Snapshot копия последнего кадра
func (p *Pipeline) Snapshot() *grain.FrameBuffer {
	return p.fb.Clone()
}

// Checksum хеш последнего кадра
func (p *Pipeline) Checksum() uint64 {
	return p.lastChecksum
}

func (p *Pipeline) GetName() string  { return p.name }
func (p *Pipeline) GetPriority() int { return p.priority }

var _ game.TickSystem = (*Pipeline)(nil)
