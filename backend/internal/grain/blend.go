package grain

import (
	"fmt"
	"math"
	"strings"
)

// BlendMode способ наложения зерна на исходный цвет
type BlendMode int

const (
	BlendAdditive BlendMode = iota
	BlendScreen
	BlendOverlay
	BlendSoftLight
	BlendLightenOnly
)

var blendNames = map[BlendMode]string{
	BlendAdditive:    "additive",
	BlendScreen:      "screen",
	BlendOverlay:     "overlay",
	BlendSoftLight:   "soft_light",
	BlendLightenOnly: "lighten_only",
}

func (m BlendMode) String() string {
	if name, ok := blendNames[m]; ok {
		return name
	}
	return fmt.Sprintf("blend(%d)", int(m))
}

// Valid сообщает, входит ли режим в поддерживаемое перечисление
func (m BlendMode) Valid() bool {
	_, ok := blendNames[m]
	return ok
}

// ParseBlendMode разбирает имя режима. Принимаются также короткие имена шейдера.
func ParseBlendMode(s string) (BlendMode, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "additive", "madd", "add":
		return BlendAdditive, nil
	case "screen":
		return BlendScreen, nil
	case "overlay":
		return BlendOverlay, nil
	case "soft_light", "softlight", "soft-light":
		return BlendSoftLight, nil
	case "lighten_only", "lighten", "lighten-only":
		return BlendLightenOnly, nil
	}
	return 0, fmt.Errorf("%w: %q", ErrUnsupportedBlendMode, s)
}

// MarshalText сериализует режим для конфигурации
func (m BlendMode) MarshalText() ([]byte, error) {
	if !m.Valid() {
		return nil, fmt.Errorf("%w: %d", ErrUnsupportedBlendMode, int(m))
	}
	return []byte(m.String()), nil
}

// UnmarshalText разбирает режим из конфигурации
func (m *BlendMode) UnmarshalText(text []byte) error {
	parsed, err := ParseBlendMode(string(text))
	if err != nil {
		return err
	}
	*m = parsed
	return nil
}

// Blend смешивает канал a с зерном b по весу w.
// При w == 0 канал возвращается без изменений для любого режима.
func Blend(mode BlendMode, a, b, w float64) (float64, error) {
	if !mode.Valid() {
		return a, fmt.Errorf("%w: %d", ErrUnsupportedBlendMode, int(mode))
	}
	return blend(mode, a, b, w), nil
}

// blend формулы режимов, mode должен быть проверен заранее
func blend(mode BlendMode, a, b, w float64) float64 {
	if w == 0 {
		return a
	}

	switch mode {
	case BlendAdditive:
		return a + a*b*w
	case BlendScreen:
		return mix(a, 1-(1-a)*(1-b), w)
	case BlendOverlay:
		if a < 0.5 {
			return mix(a, 2*a*b, w)
		}
		return mix(a, 1-2*(1-a)*(1-b), w)
	case BlendSoftLight:
		return mix(a, math.Pow(math.Max(a, 0), math.Pow(2, 2*(0.5-b))), w)
	default:
		return math.Max(a, b*w)
	}
}

func mix(x, y, a float64) float64 {
	return x*(1-a) + y*a
}
