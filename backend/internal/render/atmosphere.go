package render

import (
	"fmt"
	"sort"
	"strconv"
	"strings"

	"upper-mountains/backend/internal/grain"
)

// ParseHexColor разбирает цвет вида "#rrggbb" или "rrggbb"
func ParseHexColor(s string) (grain.Color, error) {
	h := strings.TrimPrefix(strings.TrimSpace(s), "#")
	h = strings.TrimPrefix(h, "0x")
	if len(h) != 6 {
		return grain.Color{}, fmt.Errorf("некорректный цвет %q", s)
	}
	v, err := strconv.ParseUint(h, 16, 32)
	if err != nil {
		return grain.Color{}, fmt.Errorf("некорректный цвет %q: %w", s, err)
	}
	return hexColor(uint32(v)), nil
}

func hexColor(v uint32) grain.Color {
	return grain.Color{
		R: float64((v>>16)&0xff) / 255,
		G: float64((v>>8)&0xff) / 255,
		B: float64(v&0xff) / 255,
		A: 1,
	}
}

// Atmosphere фон, туман, освещение и сила зерна
type Atmosphere struct {
	Name       string
	Background grain.Color
	FogColor   grain.Color
	// FogDensity плотность экспоненциального тумана exp(-(d*z)^2)
	FogDensity       float64
	Ambient          grain.Color
	AmbientIntensity float64
	SunIntensity     float64
	GrainWeight      float64
}

// Пресеты времени суток
var presets = map[string]Atmosphere{
	"neutral": {Background: hexColor(0xffffff), FogColor: hexColor(0xffffff), Ambient: hexColor(0xffffff), GrainWeight: 0.05},
	"dawn":    {Background: hexColor(0xc38170), FogColor: hexColor(0xc38170), Ambient: hexColor(0xb0e3ff), GrainWeight: 0.5},
	"day":     {Background: hexColor(0xb19f80), FogColor: hexColor(0xb19f80), Ambient: hexColor(0xdec4ad), GrainWeight: 1.0},
	"dusk":    {Background: hexColor(0x504343), FogColor: hexColor(0x504343), Ambient: hexColor(0x8986a2), GrainWeight: 0.5},
	"night":   {Background: hexColor(0x1c2334), FogColor: hexColor(0x1c2334), Ambient: hexColor(0x7cc1d7), GrainWeight: 0.0},
}

// Preset возвращает атмосферу по имени
func Preset(name string) (Atmosphere, error) {
	key := strings.ToLower(strings.TrimSpace(name))
	a, ok := presets[key]
	if !ok {
		return Atmosphere{}, fmt.Errorf("неизвестный пресет атмосферы %q (доступны: %s)", name, strings.Join(PresetNames(), ", "))
	}
	a.Name = key
	a.FogDensity = 0.0025
	a.AmbientIntensity = 0.35
	a.SunIntensity = 0.65
	return a, nil
}

// PresetNames имена доступных пресетов
func PresetNames() []string {
	names := make([]string, 0, len(presets))
	for n := range presets {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}
