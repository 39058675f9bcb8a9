package render

import (
	"fmt"
	"sync"

	"github.com/gdamore/tcell/v2"
	"github.com/go-gl/mathgl/mgl64"

	"upper-mountains/backend/internal/game"
	"upper-mountains/backend/internal/grain"
)

// halfBlock верхняя половина ячейки: цвет текста сверху, фон снизу
const halfBlock = '▀'

// TerminalPresenter выводит кадр в терминал полублоками, две строки пикселей на ячейку
type TerminalPresenter struct {
	mu     sync.Mutex
	screen tcell.Screen
	status bool
	frames uint64
}

// NewTerminalPresenter создает вывод в уже инициализированный экран
func NewTerminalPresenter(screen tcell.Screen, showStatus bool) *TerminalPresenter {
	return &TerminalPresenter{screen: screen, status: showStatus}
}

func (tp *TerminalPresenter) Name() string { return "terminal" }

// Present масштабирует кадр под размер экрана методом ближайшего соседа
func (tp *TerminalPresenter) Present(fb *grain.FrameBuffer, frame game.Frame) error {
	tp.mu.Lock()
	defer tp.mu.Unlock()

	w, h := tp.screen.Size()
	rows := h
	if tp.status {
		rows--
	}
	if w <= 0 || rows <= 0 {
		return nil
	}

	for cy := 0; cy < rows; cy++ {
		topY := (2 * cy) * fb.Height / (2 * rows)
		bottomY := (2*cy + 1) * fb.Height / (2 * rows)
		for cx := 0; cx < w; cx++ {
			px := cx * fb.Width / w
			style := tcell.StyleDefault.
				Foreground(toTerminal(fb.At(px, topY))).
				Background(toTerminal(fb.At(px, bottomY)))
			tp.screen.SetContent(cx, cy, halfBlock, nil, style)
		}
	}

	if tp.status {
		line := []rune(fmt.Sprintf(" кадр %d  t=%.1fs  подшагов %d ", frame.Index, frame.Elapsed, frame.Substeps))
		style := tcell.StyleDefault.Foreground(tcell.ColorWhite).Background(tcell.ColorBlack)
		for cx := 0; cx < w; cx++ {
			r := ' '
			if cx < len(line) {
				r = line[cx]
			}
			tp.screen.SetContent(cx, h-1, r, nil, style)
		}
	}

	tp.screen.Show()
	tp.frames++
	return nil
}

// Frames количество выведенных кадров
func (tp *TerminalPresenter) Frames() uint64 {
	tp.mu.Lock()
	defer tp.mu.Unlock()
	return tp.frames
}

func toTerminal(c grain.Color) tcell.Color {
	return tcell.NewRGBColor(channel(c.R), channel(c.G), channel(c.B))
}

func channel(v float64) int32 {
	return int32(mgl64.Clamp(v, 0, 1)*255 + 0.5)
}
