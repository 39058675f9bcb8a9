// Package noisehash детерминированные псевдослучайные функции для процедурной генерации:
// хеш fract(sin(dot(p, k)) * s) и зерно из строкового имени.
package noisehash

import (
	"math"

	"github.com/cespare/xxhash/v2"
)

// Константы хеш-функции fract(sin(dot(p, k)) * s)
const (
	HashX     = 12.9898
	HashY     = 78.233
	HashScale = 43758.5453
)

// Fract дробная часть числа, всегда в [0,1)
func Fract(x float64) float64 {
	return x - math.Floor(x)
}

// FractSin псевдослучайное значение в [0,1) для точки плоскости
func FractSin(x, y float64) float64 {
	return Fract(math.Sin(x*HashX+y*HashY) * HashScale)
}

// Seed получает стабильное зерно из имени
func Seed(name string) float64 {
	// 20 бит достаточно, чтобы sin оставался в точной области float64
	return float64(xxhash.Sum64String(name)&0xFFFFF) / 64.0
}
