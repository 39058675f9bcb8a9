package grain

import (
	"fmt"
	"math"

	"github.com/go-gl/mathgl/mgl64"

	"upper-mountains/backend/internal/noisehash"
)

// DefaultScreenScale разрешение, на которое нормализуются координаты пикселя.
// Чем больше значение, тем крупнее зерно.
var DefaultScreenScale = mgl64.Vec2{1000, 1000}

// NoiseParams параметры поля шума
type NoiseParams struct {
	// Speed - скорость анимации зерна во времени (0..1)
	Speed float64

	// Mean - уровень серого, к которому стремится шум
	Mean float64

	// Variance - контраст шума
	Variance float64
}

// DefaultNoiseParams параметры по умолчанию
func DefaultNoiseParams() NoiseParams {
	return NoiseParams{
		Speed:    0.1,
		Mean:     0.0,
		Variance: 0.5,
	}
}

// Validate проверяет параметры шума
func (p NoiseParams) Validate() error {
	if !finite(p.Speed) || !finite(p.Mean) {
		return fmt.Errorf("%w: speed=%v mean=%v", ErrInvalidNoiseParams, p.Speed, p.Mean)
	}
	if !finite(p.Variance) || p.Variance <= 0 {
		return fmt.Errorf("%w: variance=%v", ErrInvalidNoiseParams, p.Variance)
	}
	return nil
}

// NoiseField чистая функция (пиксель, время) -> интенсивность зерна.
// Состояния нет, значение для каждого пикселя вычисляется независимо.
type NoiseField struct {
	params NoiseParams
	sigma  float64
	peak   float64
}

// NewNoiseField создает поле шума
func NewNoiseField(params NoiseParams) (*NoiseField, error) {
	if err := params.Validate(); err != nil {
		return nil, err
	}
	sigma := params.Variance * params.Variance
	return &NoiseField{
		params: params,
		sigma:  sigma,
		peak:   1.0 / (sigma * math.Sqrt(2*math.Pi)),
	}, nil
}

// Params возвращает параметры поля
func (f *NoiseField) Params() NoiseParams {
	return f.params
}

// Intensity интенсивность зерна в [0,1] для пикселя в момент времени t
func (f *NoiseField) Intensity(pixel, screenScale mgl64.Vec2, t, seed float64) float64 {
	sx, sy := screenScale[0], screenScale[1]
	if sx == 0 || !finite(sx) {
		sx = 1
	}
	if sy == 0 || !finite(sy) {
		sy = 1
	}
	uv := mgl64.Vec2{pixel[0] / sx, pixel[1] / sy}

	h := uv.Dot(mgl64.Vec2{noisehash.HashX, noisehash.HashY}) + seed
	n := noisehash.Fract(math.Sin(h)*noisehash.HashScale + t*f.params.Speed)
	v := gaussian(n, f.params.Mean, f.sigma) / f.peak

	if !finite(v) {
		return 0
	}
	return mgl64.Clamp(v, 0, 1)
}

// gaussian кривая отклика с центром u и шириной o
func gaussian(z, u, o float64) float64 {
	return (1.0 / (o * math.Sqrt(2*math.Pi))) * math.Exp(-((z-u)*(z-u))/(2*o*o))
}

func finite(v float64) bool {
	return !math.IsNaN(v) && !math.IsInf(v, 0)
}
