package world

import (
	"context"
	"fmt"

	"github.com/go-gl/mathgl/mgl64"

	"upper-mountains/backend/internal/noisehash"
	"upper-mountains/backend/internal/physics"
)

// TerrainSpec параметры процедурного террейна
type TerrainSpec struct {
	Enabled   bool       `yaml:"enabled"`
	GridSize  int        `yaml:"grid_size"`
	CellSize  float64    `yaml:"cell_size"`
	MinHeight float64    `yaml:"min_height"`
	MaxHeight float64    `yaml:"max_height"`
	Seed      string     `yaml:"seed"`
	Position  mgl64.Vec3 `yaml:"position"`
	Color     string     `yaml:"color"`
}

// MountainSpec неподвижная гора, приближенная коробкой
type MountainSpec struct {
	Name     string     `yaml:"name"`
	Scale    mgl64.Vec3 `yaml:"scale"`
	Position mgl64.Vec3 `yaml:"position"`
	Color    string     `yaml:"color"`
}

// BallSpec динамический шар
type BallSpec struct {
	Name        string     `yaml:"name"`
	Radius      float64    `yaml:"radius"`
	Mass        float64    `yaml:"mass"`
	Position    mgl64.Vec3 `yaml:"position"`
	Velocity    mgl64.Vec3 `yaml:"velocity"`
	Restitution float64    `yaml:"restitution"`
	Friction    float64    `yaml:"friction"`
	Color       string     `yaml:"color"`
}

// SceneryConfig начальное наполнение сцены
type SceneryConfig struct {
	Terrain   TerrainSpec    `yaml:"terrain"`
	Mountains []MountainSpec `yaml:"mountains"`
	Balls     []BallSpec     `yaml:"balls"`
}

// DefaultScenery горы, террейн и пробный шар
func DefaultScenery() SceneryConfig {
	return SceneryConfig{
		Terrain: TerrainSpec{
			Enabled:   true,
			GridSize:  TerrainGridSize,
			CellSize:  TerrainCellSize,
			MinHeight: TerrainMinHeight,
			MaxHeight: TerrainMaxHeight,
			Seed:      "upper-mountains",
			Position:  mgl64.Vec3{0, -150, 0},
			Color:     "#6b7b5a",
		},
		Mountains: []MountainSpec{
			{Name: "mountain_1", Scale: mgl64.Vec3{150, 150, 150}, Position: mgl64.Vec3{-200, 0, -300}, Color: "#8a8f99"},
			{Name: "mountain_2", Scale: mgl64.Vec3{150, 220, 150}, Position: mgl64.Vec3{250, 30, -350}, Color: "#7d828c"},
		},
		Balls: []BallSpec{
			{Name: "ball_1", Radius: 10, Mass: 1, Position: mgl64.Vec3{-200, 300, -300}, Friction: 0.5, Color: "#ff4444"},
			{Name: "ball_2", Radius: 10, Mass: 1, Position: mgl64.Vec3{0, 250, 0}, Restitution: 0.3, Friction: 0.5, Color: "#4488ff"},
		},
	}
}

// TerrainAsset генерирует террейн и его статическую сетку столкновений
func TerrainAsset(spec TerrainSpec) LoadFunc {
	return func(ctx context.Context) (Asset, error) {
		field, err := GenerateHeightfield(spec.GridSize, spec.GridSize, spec.CellSize,
			spec.MinHeight, spec.MaxHeight, noisehash.Seed(spec.Seed))
		if err != nil {
			return Asset{}, err
		}
		if err := ctx.Err(); err != nil {
			return Asset{}, err
		}

		entity := NewTerrain("terrain", physics.NewPose(spec.Position, mgl64.QuatIdent()), field, spec.Color)
		collider, err := entity.Shape.Collider()
		if err != nil {
			return Asset{}, err
		}
		return Asset{Entity: entity, Collider: collider}, nil
	}
}

// MountainAsset гора в виде статической коробки
func MountainAsset(spec MountainSpec) LoadFunc {
	return func(ctx context.Context) (Asset, error) {
		entity := NewBox(spec.Name, physics.NewPose(spec.Position, mgl64.QuatIdent()),
			spec.Scale[0], spec.Scale[1], spec.Scale[2], spec.Color)
		entity.Mesh = "mountain"
		return Asset{
			Entity:   entity,
			Collider: physics.NewBoxFromScale(spec.Scale),
		}, nil
	}
}

// BallAsset динамический шар
func BallAsset(spec BallSpec) LoadFunc {
	return func(ctx context.Context) (Asset, error) {
		if spec.Mass <= 0 {
			return Asset{}, fmt.Errorf("%w: масса шара %s = %v", physics.ErrInvalidBodyConfig, spec.Name, spec.Mass)
		}
		entity := NewSphere(spec.Name, physics.NewPose(spec.Position, mgl64.QuatIdent()), spec.Radius, spec.Color)
		return Asset{
			Entity:   entity,
			Collider: physics.Sphere{Radius: spec.Radius},
			Mass:     spec.Mass,
			Options: []physics.BodyOption{
				physics.WithMaterial(physics.Material{Restitution: spec.Restitution, Friction: spec.Friction}),
				physics.WithLinearVelocity(spec.Velocity),
			},
		}, nil
	}
}

// LoadScenery ставит в загрузку все объекты начальной сцены
func LoadScenery(loader *AssetLoader, cfg SceneryConfig) {
	if cfg.Terrain.Enabled {
		loader.Load("terrain", TerrainAsset(cfg.Terrain))
	}
	for _, m := range cfg.Mountains {
		loader.Load(m.Name, MountainAsset(m))
	}
	for _, b := range cfg.Balls {
		loader.Load(b.Name, BallAsset(b))
	}
}
