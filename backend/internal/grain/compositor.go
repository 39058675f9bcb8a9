package grain

import (
	"fmt"
	"math"
	"sync"

	"github.com/go-gl/mathgl/mgl64"
)

const gamma = 2.2

// Options настройки наложения зерна
type Options struct {
	Mode   BlendMode
	Weight float64

	// ScreenScale нормализует координаты пикселя, нулевое значение заменяется DefaultScreenScale
	ScreenScale mgl64.Vec2
	Seed        float64

	// ShowNoise выводит сам шум вместо кадра, для отладки
	ShowNoise bool

	// SRGB линеаризует цвет перед смешиванием и кодирует обратно после
	SRGB bool
}

// Compositor накладывает зерно на готовый кадр
type Compositor struct {
	mu    sync.RWMutex
	field *NoiseField
	opts  Options
}

// NewCompositor проверяет режим и вес на этапе конфигурации
func NewCompositor(field *NoiseField, opts Options) (*Compositor, error) {
	if field == nil {
		return nil, fmt.Errorf("поле шума не задано")
	}
	if !opts.Mode.Valid() {
		return nil, fmt.Errorf("%w: %d", ErrUnsupportedBlendMode, int(opts.Mode))
	}
	if err := validateWeight(opts.Weight); err != nil {
		return nil, err
	}
	if opts.ScreenScale == (mgl64.Vec2{}) {
		opts.ScreenScale = DefaultScreenScale
	}
	return &Compositor{field: field, opts: opts}, nil
}

// Options возвращает текущие настройки
func (c *Compositor) Options() Options {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.opts
}

// SetWeight меняет силу эффекта, например при смене времени суток
func (c *Compositor) SetWeight(w float64) error {
	if err := validateWeight(w); err != nil {
		return err
	}
	c.mu.Lock()
	c.opts.Weight = w
	c.mu.Unlock()
	return nil
}

// Composite накладывает зерно на кадр в момент времени t
func (c *Compositor) Composite(fb *FrameBuffer, t float64) error {
	c.mu.RLock()
	opts := c.opts
	c.mu.RUnlock()
	return composite(fb, c.field, opts, t)
}

// Composite накладывает зерно с заданными режимом и весом.
// Пиксели за пределами Width x Height не затрагиваются, альфа не меняется.
func Composite(fb *FrameBuffer, field *NoiseField, mode BlendMode, weight, t float64) error {
	return composite(fb, field, Options{Mode: mode, Weight: weight, ScreenScale: DefaultScreenScale}, t)
}

func composite(fb *FrameBuffer, field *NoiseField, opts Options, t float64) error {
	if !opts.Mode.Valid() {
		return fmt.Errorf("%w: %d", ErrUnsupportedBlendMode, int(opts.Mode))
	}
	if err := validateWeight(opts.Weight); err != nil {
		return err
	}
	if fb == nil || field == nil {
		return nil
	}
	if opts.Weight == 0 && !opts.ShowNoise {
		return nil
	}

	for y := 0; y < fb.Height; y++ {
		// координаты как у фрагмента: центр пикселя, ось Y снизу вверх
		py := float64(fb.Height-1-y) + 0.5
		for x := 0; x < fb.Width; x++ {
			i := fb.offset(x, y)
			if i+3 >= len(fb.Pix) {
				return nil
			}
			noise := field.Intensity(mgl64.Vec2{float64(x) + 0.5, py}, opts.ScreenScale, t, opts.Seed)

			if opts.ShowNoise {
				fb.Pix[i], fb.Pix[i+1], fb.Pix[i+2] = noise, noise, noise
				continue
			}

			for ch := 0; ch < 3; ch++ {
				a := fb.Pix[i+ch]
				if opts.SRGB {
					a = math.Pow(math.Max(a, 0), gamma)
				}
				grain := noise * (1 - a)
				v := blend(opts.Mode, a, grain, opts.Weight)
				if opts.SRGB {
					v = math.Pow(math.Max(v, 0), 1/gamma)
				}
				fb.Pix[i+ch] = v
			}
		}
	}
	return nil
}

func validateWeight(w float64) error {
	if math.IsNaN(w) || w < 0 || w > 1 {
		return fmt.Errorf("%w: %v", ErrInvalidWeight, w)
	}
	return nil
}
