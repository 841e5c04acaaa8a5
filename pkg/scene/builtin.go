package scene

import (
	"math"
	"sort"

	"github.com/df07/go-schwarzschild-raytracer/pkg/core"
	"github.com/df07/go-schwarzschild-raytracer/pkg/observer"
)

const (
	defaultSchwarzR = 10.0
	skyRadius       = 500.0
	innerRadius     = 11.0
)

var builtinScenes = map[string]func() *Scene{
	"default":        NewDefaultScene,
	"accretion-disk": NewAccretionDiskScene,
	"spiral":         NewSpiralScene,
	"heart":          NewHeartScene,
	"flat":           NewFlatScene,
}

// BuiltinIDs returns the ids of the built-in scenes in sorted order
func BuiltinIDs() []string {
	ids := make([]string, 0, len(builtinScenes))
	for id := range builtinScenes {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// skySphere is the far away background
func skySphere() SphereConfig {
	return SphereConfig{Radius: skyRadius, Columns: 36, Rows: 18, Dark: 0.35}
}

// innerSphere sits just outside the horizon and catches the rays that
// circle the black hole
func innerSphere() SphereConfig {
	return SphereConfig{Radius: innerRadius, Columns: 12, Rows: 6, Dark: 0.6}
}

func baseScene(name string) *Scene {
	return &Scene{
		Name:          name,
		SchwarzR:      defaultSchwarzR,
		FOV:           math.Pi / 2,
		Spheres:       []SphereConfig{skySphere(), innerSphere()},
		ObserverStart: observer.StartPosition,
		Seed:          1,
	}
}

// NewDefaultScene creates a black hole between the sky and a sphere hugging the horizon
func NewDefaultScene() *Scene {
	return baseScene("Default Scene")
}

// NewAccretionDiskScene creates a disk of orbiting particles, seen from slightly above
func NewAccretionDiskScene() *Scene {
	s := baseScene("Accretion Disk")
	s.Spheres = []SphereConfig{skySphere()}
	s.PointCloud = AccretionDisk
	s.Farside = true
	s.ObserverStart = core.NewVec3(60, 0, 8)
	return s
}

// NewSpiralScene creates a flat spiral of points around the black hole
func NewSpiralScene() *Scene {
	s := baseScene("Spiral")
	s.PointCloud = SpiralPoints
	s.Farside = true
	return s
}

// NewHeartScene creates a heart of points next to a small black hole
func NewHeartScene() *Scene {
	s := baseScene("Heart")
	s.SchwarzR = 3
	s.Spheres = []SphereConfig{skySphere()}
	s.PointCloud = HeartPoints
	s.Farside = true
	s.ObserverStart = core.NewVec3(40, 0, 0)
	return s
}

// NewFlatScene creates the default scene without gravity
func NewFlatScene() *Scene {
	s := baseScene("Flat Space")
	s.SchwarzR = 0
	return s
}

// NewModelScene shows the vertices of a PLY model behind the black hole
func NewModelScene(path string) *Scene {
	s := baseScene(titleCase(modelName(path)))
	s.Spheres = []SphereConfig{skySphere()}
	s.PointCloud = ModelPoints
	s.Model = ModelConfig{
		Path:   path,
		Center: core.NewVec3(-25, 0, 0),
		Size:   8,
	}
	s.Farside = true
	return s
}
