package game

import "time"

// Clock источник монотонного времени
type Clock interface {
	Now() time.Time
}

// SystemClock часы процесса
type SystemClock struct{}

func (SystemClock) Now() time.Time { return time.Now() }

// DeltaSource источник шага времени для цикла кадров
type DeltaSource interface {
	// Reset начинает отсчет заново
	Reset()
	// Delta секунды с предыдущего вызова Delta или Reset
	Delta() float64
	// Elapsed секунды с последнего Reset
	Elapsed() float64
}

// FrameClock считает время между кадрами
type FrameClock struct {
	clock Clock
	start time.Time
	last  time.Time
}

// NewFrameClock создает часы кадров. nil означает системные часы.
func NewFrameClock(clock Clock) *FrameClock {
	if clock == nil {
		clock = SystemClock{}
	}
	return &FrameClock{clock: clock}
}

func (c *FrameClock) Reset() {
	c.start = c.clock.Now()
	c.last = c.start
}

func (c *FrameClock) Delta() float64 {
	now := c.clock.Now()
	d := now.Sub(c.last).Seconds()
	c.last = now
	return d
}

func (c *FrameClock) Elapsed() float64 {
	return c.last.Sub(c.start).Seconds()
}

var _ DeltaSource = (*FrameClock)(nil)
