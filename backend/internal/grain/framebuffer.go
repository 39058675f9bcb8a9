package grain

import (
	"encoding/binary"
	"fmt"
	"math"

	"github.com/cespare/xxhash/v2"
)

// Color цвет пикселя, каналы в [0,1]
type Color struct {
	R, G, B, A float64
}

// FrameBuffer RGBA изображение с плавающими каналами.
// Строки идут сверху вниз, Pix хранит по 4 значения на пиксель.
type FrameBuffer struct {
	Width  int
	Height int
	Pix    []float64
}

// NewFrameBuffer создает буфер заданного размера
func NewFrameBuffer(width, height int) (*FrameBuffer, error) {
	if width <= 0 || height <= 0 {
		return nil, fmt.Errorf("некорректный размер кадра %dx%d", width, height)
	}
	return &FrameBuffer{
		Width:  width,
		Height: height,
		Pix:    make([]float64, width*height*4),
	}, nil
}

// InBounds проверяет, что пиксель лежит внутри изображения
func (fb *FrameBuffer) InBounds(x, y int) bool {
	return x >= 0 && y >= 0 && x < fb.Width && y < fb.Height
}

func (fb *FrameBuffer) offset(x, y int) int {
	return (y*fb.Width + x) * 4
}

// At возвращает цвет пикселя. Вне границ возвращается нулевой цвет.
func (fb *FrameBuffer) At(x, y int) Color {
	if !fb.InBounds(x, y) {
		return Color{}
	}
	i := fb.offset(x, y)
	return Color{fb.Pix[i], fb.Pix[i+1], fb.Pix[i+2], fb.Pix[i+3]}
}

// Set записывает цвет пикселя, записи вне границ игнорируются
func (fb *FrameBuffer) Set(x, y int, c Color) {
	if !fb.InBounds(x, y) {
		return
	}
	i := fb.offset(x, y)
	fb.Pix[i], fb.Pix[i+1], fb.Pix[i+2], fb.Pix[i+3] = c.R, c.G, c.B, c.A
}

// Fill заливает весь кадр одним цветом
func (fb *FrameBuffer) Fill(c Color) {
	for y := 0; y < fb.Height; y++ {
		for x := 0; x < fb.Width; x++ {
			fb.Set(x, y, c)
		}
	}
}

// Clone возвращает независимую копию кадра
func (fb *FrameBuffer) Clone() *FrameBuffer {
	pix := make([]float64, len(fb.Pix))
	copy(pix, fb.Pix)
	return &FrameBuffer{Width: fb.Width, Height: fb.Height, Pix: pix}
}

// Checksum хеш содержимого кадра внутри границ
func (fb *FrameBuffer) Checksum() uint64 {
	d := xxhash.New()
	var buf [8]byte
	n := fb.Width * fb.Height * 4
	for i := 0; i < n && i < len(fb.Pix); i++ {
		binary.LittleEndian.PutUint64(buf[:], math.Float64bits(fb.Pix[i]))
		_, _ = d.Write(buf[:])
	}
	return d.Sum64()
}
