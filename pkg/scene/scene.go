package scene

import (
	"errors"
	"fmt"
	"strings"

	"github.com/df07/go-schwarzschild-raytracer/pkg/core"
	"github.com/df07/go-schwarzschild-raytracer/pkg/loaders"
	"github.com/df07/go-schwarzschild-raytracer/pkg/observer"
	"github.com/df07/go-schwarzschild-raytracer/pkg/pointcloud"
	"github.com/df07/go-schwarzschild-raytracer/pkg/rayfan"
	"github.com/df07/go-schwarzschild-raytracer/pkg/renderer"
)

// ErrUnknownScene is returned by NewScene for ids that name no scene
var ErrUnknownScene = errors.New("scene: unknown scene")

// PointCloudKind selects the points of a scene
type PointCloudKind string

const (
	NoPoints      PointCloudKind = ""
	SpiralPoints  PointCloudKind = "spiral"
	HeartPoints   PointCloudKind = "heart"
	AccretionDisk PointCloudKind = "accretion-disk"
	ModelPoints   PointCloudKind = "model"
)

// SphereConfig describes a textured sphere around the black hole
type SphereConfig struct {
	Radius float64
	Image  string // Equirectangular texture file, a checker pattern when empty

	// Checker pattern used without an image
	Columns int
	Rows    int
	Dark    float64
}

// ModelConfig places the vertices of a PLY model in the scene
type ModelConfig struct {
	Path   string
	Center core.Vec3 // Where the centre of the bounding box ends up
	Size   float64   // Radius of the bounding sphere after scaling
}

// Scene contains everything needed to set up a simulation
type Scene struct {
	Name          string
	SchwarzR      float64
	FOV           float64
	Spheres       []SphereConfig
	PointCloud    PointCloudKind
	Model         ModelConfig
	Farside       bool
	ObserverStart core.Vec3
	Seed          uint64

	logger core.Logger
}

// NewScene looks up a built-in scene or a model scene by id. Model ids have
// the form "model:<name>" and refer to models/<name>.ply.
func NewScene(id string, logger core.Logger) (*Scene, error) {
	if logger == nil {
		logger = core.NopLogger{}
	}

	if name, ok := strings.CutPrefix(id, modelPrefix); ok {
		path, err := findModel(name)
		if err != nil {
			return nil, err
		}
		s := NewModelScene(path)
		s.logger = logger
		return s, nil
	}

	create, ok := builtinScenes[id]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownScene, id)
	}
	s := create()
	s.logger = logger
	return s, nil
}

// Layers builds the ray tracers and textures of the spheres. Fans are solved
// by the renderer.
func (s *Scene) Layers() ([]renderer.Layer, error) {
	layers := make([]renderer.Layer, 0, len(s.Spheres))
	for _, sphere := range s.Spheres {
		texture, err := sphere.texture()
		if err != nil {
			return nil, fmt.Errorf("sphere r = %g: %w", sphere.Radius, err)
		}
		layers = append(layers, renderer.Layer{
			Tracer:  rayfan.NewDefault(sphere.Radius, s.SchwarzR),
			Texture: texture,
		})
	}
	return layers, nil
}

func (c SphereConfig) texture() (renderer.Texture, error) {
	if c.Image == "" {
		return renderer.NewCheckerTexture(c.Columns, c.Rows, c.Dark), nil
	}
	img, err := loaders.LoadImage(c.Image)
	if err != nil {
		return nil, err
	}
	return renderer.NewImageTexture(img.Width, img.Height, img.Pixels), nil
}

// NewObserver creates an observer at the start of the scene
func (s *Scene) NewObserver(width, height int) *observer.Observer {
	o := observer.New(s.SchwarzR, s.FOV, float64(width), float64(height))
	o.SetStart(s.ObserverStart)
	return o
}

// NewPointCloud creates the points of the scene for an observer at
// observerPos, nil if the scene has none
func (s *Scene) NewPointCloud(observerPos core.Vec3) (*pointcloud.PointCloud, error) {
	opts := pointcloud.Options{
		Farside: s.Farside,
		Seed:    s.Seed,
		Logger:  s.logger,
	}

	switch s.PointCloud {
	case NoPoints:
		return nil, nil
	case SpiralPoints:
		return pointcloud.NewSpiral(s.SchwarzR, observerPos, opts), nil
	case HeartPoints:
		return pointcloud.NewHeart(s.SchwarzR, observerPos, opts), nil
	case AccretionDisk:
		return pointcloud.NewAccretionDisk(s.SchwarzR, observerPos, opts), nil
	case ModelPoints:
		vertices, err := s.loadModel()
		if err != nil {
			return nil, err
		}
		return pointcloud.New(vertices, s.SchwarzR, observerPos, opts), nil
	default:
		return nil, fmt.Errorf("unknown point cloud %q", s.PointCloud)
	}
}

// loadModel reads the model vertices and fits them into the configured
// bounding sphere
func (s *Scene) loadModel() ([]core.Vec3, error) {
	s.logger.Printf("Loading model from %s...\n", s.Model.Path)
	data, err := loaders.LoadPLY(s.Model.Path)
	if err != nil {
		return nil, fmt.Errorf("load model: %w", err)
	}
	if len(data.Vertices) == 0 {
		return nil, fmt.Errorf("load model: %s has no vertices", s.Model.Path)
	}

	vertices := FitVertices(data.Vertices, s.Model.Center, s.Model.Size)
	s.logger.Printf("Loaded %d model vertices\n", len(vertices))
	return vertices, nil
}

// FitVertices scales and moves vertices so that their bounding box is
// centred on center and its bounding sphere has radius size
func FitVertices(vertices []core.Vec3, center core.Vec3, size float64) []core.Vec3 {
	if len(vertices) == 0 {
		return nil
	}

	box := core.NewAABBFromPoints(vertices...)
	mid := box.Center()
	radius := box.BoundingRadius(vertices)
	scale := 1.0
	if radius > 0 {
		scale = size / radius
	}

	fitted := make([]core.Vec3, len(vertices))
	for i, v := range vertices {
		fitted[i] = v.Subtract(mid).Multiply(scale).Add(center)
	}
	return fitted
}
