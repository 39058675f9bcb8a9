package ws

import (
	"context"
	"encoding/json"
	"fmt"
	"math"

	"github.com/go-gl/mathgl/mgl64"

	"upper-mountains/backend/internal/physics"
	"upper-mountains/backend/internal/world"
)

// ImpulseRecorder получатель сведений о примененных импульсах
type ImpulseRecorder interface {
	RecordImpulse(entityID string, state physics.BodyState, impulse mgl64.Vec3)
}

// ImpulseData данные команды impulse
type ImpulseData struct {
	ID string  `json:"id"`
	X  float64 `json:"x"`
	Y  float64 `json:"y"`
	Z  float64 `json:"z"`
}

// NewImpulseHandler обработчик команды impulse. Импульс применяется в начале следующего тика,
// чтобы не пересекаться с шагом физики.
func NewImpulseHandler(registry *world.Registry, recorder ImpulseRecorder) CommandHandler {
	return func(_ context.Context, cmd *CommandMessage) error {
		var data ImpulseData
		if err := json.Unmarshal(cmd.Data, &data); err != nil {
			return fmt.Errorf("%w: %v", ErrInvalidCommand, err)
		}
		impulse := mgl64.Vec3{data.X, data.Y, data.Z}
		for _, v := range impulse {
			if math.IsNaN(v) || math.IsInf(v, 0) {
				return fmt.Errorf("%w: impulse %v", ErrInvalidCommand, impulse)
			}
		}
		if _, ok := registry.BodyOf(data.ID); !ok {
			return fmt.Errorf("%w: %q", world.ErrUnknownEntity, data.ID)
		}

		registry.Scene().Enqueue(func(*world.Scene) error {
			body, ok := registry.BodyOf(data.ID)
			if !ok {
				return fmt.Errorf("%w: %q", world.ErrUnknownEntity, data.ID)
			}
			engine := registry.Engine()
			if err := engine.ApplyImpulse(body, impulse); err != nil {
				return err
			}
			if recorder != nil {
				if state, err := engine.BodyState(body); err == nil {
					recorder.RecordImpulse(data.ID, state, impulse)
				}
			}
			return nil
		})
		return nil
	}
}
